package events

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type assignedPayload struct {
	DriverID string  `json:"driver_id"`
	Score    float64 `json:"score"`
}

func TestNewAndDecode(t *testing.T) {
	e, err := New(TypeDispatchAssigned, "order_1", assignedPayload{DriverID: "d1", Score: 81.5})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, TypeDispatchAssigned, e.Type)
	assert.Equal(t, "order_1", e.Subject)
	assert.False(t, e.OccurredAt.IsZero())

	var got assignedPayload
	require.NoError(t, e.Decode(&got))
	assert.Equal(t, assignedPayload{DriverID: "d1", Score: 81.5}, got)
}

func TestDecode_NoPayload(t *testing.T) {
	e, err := New(TypeDispatchNoDriver, "order_1", nil)
	require.NoError(t, err)
	var v map[string]any
	assert.Error(t, e.Decode(&v))
}

func TestFilterMatch(t *testing.T) {
	e := Event{Type: TypeDispatchAssigned, Subject: "order_1"}
	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "zero filter", filter: Filter{}, want: true},
		{name: "subject match", filter: Filter{Subject: "order_1"}, want: true},
		{name: "subject mismatch", filter: Filter{Subject: "order_2"}, want: false},
		{name: "type match", filter: Filter{Types: []string{TypeDispatchNoDriver, TypeDispatchAssigned}}, want: true},
		{name: "type mismatch", filter: Filter{Types: []string{TypeAssignmentAccepted}}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(e))
		})
	}
}

func TestMemoryBus_DeliversMatchingEvents(t *testing.T) {
	bus := NewMemoryBus(8, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, Filter{Subject: "order_1"})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Event{ID: "1", Type: TypeDispatchAssigned, Subject: "order_2"}))
	require.NoError(t, bus.Publish(ctx, Event{ID: "2", Type: TypeDispatchAssigned, Subject: "order_1"}))

	select {
	case e := <-ch:
		assert.Equal(t, "2", e.ID)
	case <-time.After(time.Second):
		t.Fatal("expected event for order_1")
	}
	assert.Len(t, ch, 0)
}

func TestMemoryBus_SlowSubscriberDrops(t *testing.T) {
	bus := NewMemoryBus(1, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, Filter{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(ctx, Event{Type: TypeDriverLocation}))
	}
	assert.Len(t, ch, 1)
}

func TestMemoryBus_CancelClosesChannel(t *testing.T) {
	bus := NewMemoryBus(0, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Subscribers())

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.Eventually(t, func() bool { return bus.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestKafkaMessage(t *testing.T) {
	e, err := New(TypeDispatchAssigned, "order_9", assignedPayload{DriverID: "d9"})
	require.NoError(t, err)

	msg, err := kafkaMessage(e)
	require.NoError(t, err)
	assert.Equal(t, []byte("order_9"), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "type", msg.Headers[0].Key)
	assert.Equal(t, []byte(TypeDispatchAssigned), msg.Headers[0].Value)
	assert.Contains(t, string(msg.Value), `"driver_id":"d9"`)
}

func TestRedisBus_RoundTrip(t *testing.T) {
	redisAddr := os.Getenv("KWENDA_REDIS_ADDR")
	if redisAddr == "" {
		t.Skip("KWENDA_REDIS_ADDR not set; skipping integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	bus := NewRedisBus(rdb, "kwenda:test:events:"+time.Now().Format("150405.000000"), zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := bus.Subscribe(ctx, Filter{Types: []string{TypeDispatchAssigned}})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Event{ID: "skip", Type: TypeDriverLocation, Subject: "d1"}))
	require.NoError(t, bus.Publish(ctx, Event{ID: "keep", Type: TypeDispatchAssigned, Subject: "o1"}))

	select {
	case e := <-ch:
		assert.Equal(t, "keep", e.ID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for redis event")
	}
}

type failingPublisher struct{ err error }

func (p failingPublisher) Publish(context.Context, Event) error { return p.err }

func TestFanout(t *testing.T) {
	bus := NewMemoryBus(4, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx, Filter{})
	require.NoError(t, err)

	boom := assert.AnError
	f := Fanout{failingPublisher{err: boom}, bus}
	e, err := New(TypeDispatchNoDriver, "order_9", nil)
	require.NoError(t, err)

	err = f.Publish(ctx, e)
	assert.ErrorIs(t, err, boom)

	select {
	case got := <-ch:
		assert.Equal(t, e.ID, got.ID, "later publishers still receive the event")
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	assert.NoError(t, Fanout{}.Publish(ctx, e))
}

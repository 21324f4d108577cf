package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const defaultSubscriberBuffer = 64

// MemoryBus is an in-process fan-out bus. A subscriber whose buffer is full
// misses the event rather than blocking the publisher.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[int]*memorySub
	nextID int
	buffer int
	log    *zap.Logger
}

type memorySub struct {
	filter Filter
	ch     chan Event
}

func NewMemoryBus(buffer int, log *zap.Logger) *MemoryBus {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &MemoryBus{
		subs:   make(map[int]*memorySub),
		buffer: buffer,
		log:    log,
	}
}

func (b *MemoryBus) Publish(_ context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, sub := range b.subs {
		if !sub.filter.Match(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.log.Warn("dropping event for slow subscriber",
				zap.Int("subscriber", id),
				zap.String("type", e.Type),
				zap.String("subject", e.Subject),
			)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, f Filter) (<-chan Event, error) {
	sub := &memorySub{filter: f, ch: make(chan Event, b.buffer)}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(sub.ch)
		b.mu.Unlock()
	}()
	return sub.ch, nil
}

// Subscribers returns the number of live subscriptions.
func (b *MemoryBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

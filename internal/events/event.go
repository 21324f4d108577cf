// README: Outcome events published by dispatch, assignment and location modules.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	TypeDispatchAssigned   = "dispatch.assigned"
	TypeDispatchNoDriver   = "dispatch.no_driver"
	TypeAssignmentAccepted = "assignment.accepted"
	TypeAssignmentDeclined = "assignment.declined"
	TypeAssignmentExpired  = "assignment.expired"
	TypeDriverLocation     = "driver.location_updated"
	TypeDriverAvailability = "driver.availability_changed"
)

// Event is a single change notification. Subject is the order or driver the
// event is about and is used as the partition key by brokers that have one.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Subject    string          `json:"subject"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// New builds an event with a fresh ID and a JSON encoded payload.
func New(eventType, subject string, payload any) (Event, error) {
	e := Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Subject:    subject,
		OccurredAt: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("encoding %s payload: %w", eventType, err)
		}
		e.Payload = raw
	}
	return e, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.ID)
	}
	return json.Unmarshal(e.Payload, v)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber delivers events matching a filter until ctx is cancelled, at
// which point the returned channel is closed.
type Subscriber interface {
	Subscribe(ctx context.Context, f Filter) (<-chan Event, error)
}

// Filter selects events by type and subject. Zero values match everything.
type Filter struct {
	Types   []string
	Subject string
}

func (f Filter) Match(e Event) bool {
	if f.Subject != "" && f.Subject != e.Subject {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, e.Type) {
		return false
	}
	return true
}

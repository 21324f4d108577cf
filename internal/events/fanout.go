package events

import (
	"context"
	"errors"
)

// Fanout publishes every event to each of its publishers in order. All
// publishers are tried; their errors are joined.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

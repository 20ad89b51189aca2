package dispatch

import (
	"context"
	"errors"

	"github.com/chachabrian/mooveit-dispatch/internal/events"
)

// Subscriber is the part of the bus the orchestrator listens on.
type Subscriber interface {
	Subscribe(name events.Name, label string, h events.Handler)
}

// Listen wires the orchestrator's own reactions to events: an accepted offer
// moves the trip to arriving.
func (o *Orchestrator) Listen(bus Subscriber) {
	bus.Subscribe(events.NameDriverAccepted, "dispatch.start_arriving", o.onDriverAccepted)
}

func (o *Orchestrator) onDriverAccepted(ctx context.Context, e events.Event) error {
	err := o.StartArriving(ctx, e.AggregateID())
	if errors.Is(err, ErrStateConflict) {
		// Redelivered event or the trip moved on already.
		o.log.Debugf("start arriving %s skipped: %v", e.AggregateID(), err)
		return nil
	}
	return err
}

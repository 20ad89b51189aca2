package services

import (
	"context"
	"errors"

	"github.com/chachabrian/mooveit-dispatch/internal/events"
)

// Subscriber is the part of the bus the services listen on.
type Subscriber interface {
	Subscribe(name events.Name, label string, h events.Handler)
}

// Listen keeps the busy flag of drivers in step with their trips: an
// accepted offer binds the driver, a finished or cancelled trip frees them.
func (d *DriverDirectory) Listen(bus Subscriber) {
	bus.Subscribe(events.NameDriverAccepted, "drivers.bind_trip", d.onAccepted)
	bus.Subscribe(events.NameTripCompleted, "drivers.release_trip", d.onReleased)
	bus.Subscribe(events.NameTripCancelled, "drivers.release_trip", d.onReleased)
}

func (d *DriverDirectory) onAccepted(ctx context.Context, e events.Event) error {
	ev, ok := e.(events.DriverAccepted)
	if !ok {
		return nil
	}
	tripID := ev.Trip.ID
	return d.SetCurrentTrip(ctx, ev.Assignment.DriverID, &tripID)
}

func (d *DriverDirectory) onReleased(ctx context.Context, e events.Event) error {
	var driverID string
	switch ev := e.(type) {
	case events.TripCompleted:
		driverID = ev.Trip.DriverID
	case events.TripCancelled:
		driverID = ev.Trip.DriverID
	}
	if driverID == "" {
		return nil
	}
	loc, err := d.Get(ctx, driverID)
	if errors.Is(err, ErrUnknownDriver) {
		return nil
	}
	if err != nil {
		return err
	}
	if loc.CurrentTripID == nil || *loc.CurrentTripID != e.AggregateID() {
		// already bound elsewhere
		return nil
	}
	return d.SetCurrentTrip(ctx, driverID, nil)
}

package realtime

import (
	"context"
	"errors"

	"github.com/chachabrian/mooveit-dispatch/internal/events"
	"github.com/chachabrian/mooveit-dispatch/internal/logger"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

// ContactBook resolves user ids to contact rows. A nil book leaves every
// phone number empty.
type ContactBook interface {
	Contact(ctx context.Context, id string) (models.User, error)
}

// Pusher is the part of the registry the fan-out writes to.
type Pusher interface {
	Push(d Delivery) (int, error)
	Revoke(sessionID, reason string) int
}

// Fanout turns bus events into socket pushes.
type Fanout struct {
	pusher   Pusher
	contacts ContactBook
	opts     ViewOptions
	log      logger.Logger
}

func NewFanout(p Pusher, contacts ContactBook, opts ViewOptions, log logger.Logger) *Fanout {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Fanout{pusher: p, contacts: contacts, opts: opts, log: log}
}

// AllSubscriber is the part of the bus the fan-out subscribes on.
type AllSubscriber interface {
	SubscribeAll(label string, h events.Handler)
}

func (f *Fanout) Listen(bus AllSubscriber) {
	bus.SubscribeAll("realtime.fanout", f.Handle)
}

// Handle pushes e to every interested connection. Contact lookups that fail
// degrade to empty phone numbers; push errors are returned.
func (f *Fanout) Handle(ctx context.Context, e events.Event) error {
	if ev, ok := e.(events.SessionRevoked); ok {
		f.pusher.Revoke(ev.SessionID, ev.Reason)
		return nil
	}
	passengerID, driverID, ok := Parties(e)
	if !ok {
		return nil
	}
	c := Contacts{
		PassengerPhone: f.phone(ctx, passengerID),
		DriverPhone:    f.phone(ctx, driverID),
	}
	var errs []error
	for _, d := range Route(e, c, f.opts) {
		if _, err := f.pusher.Push(d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) phone(ctx context.Context, userID string) string {
	if f.contacts == nil || userID == "" {
		return ""
	}
	u, err := f.contacts.Contact(ctx, userID)
	if err != nil {
		f.log.Debugf("contact %s: %v", userID, err)
		return ""
	}
	return u.PhoneNumber
}

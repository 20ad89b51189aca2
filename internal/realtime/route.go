package realtime

import (
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/events"
)

// Delivery is one push: a message for every connection of Channel that is
// in at least one of Groups.
type Delivery struct {
	Channel Channel
	Groups  []string
	Wire    string
	Payload any
}

// audiences holds the wire name per channel; empty means not delivered.
type audiences struct {
	passenger string
	driver    string
	admin     string
}

var routes = map[events.Name]audiences{
	events.NameTripRequested:       {passenger: WireTripRequested, admin: WireTripRequested},
	events.NameAssigningStarted:    {passenger: WireAssigningStarted, admin: WireAssigningStarted},
	events.NameDriverOffered:       {driver: WireAssignmentOffered, admin: WireAssignmentOffered},
	events.NameDriverAccepted:      {passenger: WireDriverAccepted, driver: WireAssignmentAccepted, admin: WireAssignmentAccepted},
	events.NameDriverAssigned:      {passenger: WireDriverAssigned, driver: WireDriverAssigned, admin: WireDriverAssigned},
	events.NameDriverRejected:      {admin: WireAssignmentRejected},
	events.NameAssignmentExpired:   {admin: WireAssignmentExpired},
	events.NameNoDriversFound:      {passenger: WireNoDriversFound, admin: WireNoDriversFound},
	events.NameArrivingStarted:     {passenger: WireArrivingStarted, driver: WireArrivingStarted, admin: WireArrivingStarted},
	events.NameDriverEnRoute:       {passenger: WireDriverEnRoute, driver: WireDriverEnRoute, admin: WireDriverEnRoute},
	events.NameDriverArrivedPickup: {passenger: WireDriverArrivedPickup, driver: WireDriverArrivedPickup, admin: WireDriverArrivedPickup},
	events.NameTripStarted:         {passenger: WireTripStarted, driver: WireTripStarted, admin: WireTripStarted},
	events.NameTripCompleted:       {passenger: WireTripCompleted, driver: WireTripCompleted, admin: WireTripCompleted},
	events.NameTripCancelled:       {passenger: WireTripCancelled, driver: WireTripCancelled, admin: WireTripCancelled},
}

// facts is the part of a trip event the views are built from.
type facts struct {
	trip       events.TripSnapshot
	offer      *events.AssignmentSnapshot
	reason     string
	occurredAt time.Time
	// driverID is the driver the event concerns, if any.
	driverID string
}

func factsOf(e events.Event) (facts, bool) {
	withOffer := func(te events.TripEvent, a events.AssignmentSnapshot) facts {
		return facts{trip: te.Trip, offer: &a, occurredAt: te.OccurredAt, driverID: a.DriverID}
	}
	plain := func(te events.TripEvent) facts {
		return facts{trip: te.Trip, occurredAt: te.OccurredAt, driverID: te.Trip.DriverID}
	}
	switch ev := e.(type) {
	case events.TripRequested:
		return plain(ev.TripEvent), true
	case events.AssigningStarted:
		return plain(ev.TripEvent), true
	case events.DriverOffered:
		return withOffer(ev.TripEvent, ev.Assignment), true
	case events.DriverAccepted:
		return withOffer(ev.TripEvent, ev.Assignment), true
	case events.DriverAssigned:
		return withOffer(ev.TripEvent, ev.Assignment), true
	case events.DriverRejected:
		f := withOffer(ev.TripEvent, ev.Assignment)
		f.reason = ev.Reason
		return f, true
	case events.AssignmentExpired:
		return withOffer(ev.TripEvent, ev.Assignment), true
	case events.NoDriversFound:
		return plain(ev.TripEvent), true
	case events.ArrivingStarted:
		return plain(ev.TripEvent), true
	case events.DriverEnRoute:
		return plain(ev.TripEvent), true
	case events.DriverArrivedPickup:
		return plain(ev.TripEvent), true
	case events.TripStarted:
		return plain(ev.TripEvent), true
	case events.TripCompleted:
		return plain(ev.TripEvent), true
	case events.TripCancelled:
		f := plain(ev.TripEvent)
		f.reason = ev.Reason
		if ev.Assignment != nil {
			a := *ev.Assignment
			f.offer = &a
			if f.driverID == "" {
				f.driverID = a.DriverID
			}
		}
		return f, true
	}
	return facts{}, false
}

// Parties returns the passenger and driver an event concerns.
func Parties(e events.Event) (passengerID, driverID string, ok bool) {
	f, ok := factsOf(e)
	if !ok {
		return "", "", false
	}
	return f.trip.PassengerID, f.driverID, true
}

// Route computes the pushes for e. It is pure: the same event and contacts
// always produce the same deliveries.
func Route(e events.Event, c Contacts, opts ViewOptions) []Delivery {
	aud, ok := routes[e.Name()]
	if !ok {
		return nil
	}
	f, ok := factsOf(e)
	if !ok {
		return nil
	}
	var out []Delivery
	if aud.passenger != "" && f.trip.PassengerID != "" {
		out = append(out, Delivery{
			Channel: ChannelPassenger,
			Groups:  []string{SelfGroup(f.trip.PassengerID)},
			Wire:    aud.passenger,
			Payload: NewPassengerView(f.trip, c),
		})
	}
	if aud.driver != "" && f.driverID != "" {
		out = append(out, Delivery{
			Channel: ChannelDriver,
			Groups:  []string{SelfGroup(f.driverID)},
			Wire:    aud.driver,
			Payload: NewDriverView(f.trip, f.offer, c),
		})
	}
	if aud.admin != "" {
		out = append(out, Delivery{
			Channel: ChannelAdmin,
			Groups:  []string{GroupAdminAll, EntityGroup(f.trip.ID)},
			Wire:    aud.admin,
			Payload: NewAdminView(e.Name(), f.trip, f.offer, f.reason, f.occurredAt, c, opts),
		})
	}
	return out
}

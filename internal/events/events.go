// Package events defines the domain events emitted by the dispatch core and
// the in-process bus that distributes them.
package events

import (
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

// Name identifies an event type. It is also the outbox row type.
type Name string

const (
	NameTripRequested       Name = "trip.requested"
	NameAssigningStarted    Name = "trip.assigning_started"
	NameDriverOffered       Name = "trip.assignment.offered"
	NameDriverAccepted      Name = "trip.assignment.accepted"
	NameDriverAssigned      Name = "trip.driver_assigned"
	NameDriverRejected      Name = "trip.assignment.rejected"
	NameAssignmentExpired   Name = "trip.assignment.expired"
	NameNoDriversFound      Name = "trip.no_drivers_found"
	NameArrivingStarted     Name = "trip.arriving_started"
	NameDriverEnRoute       Name = "trip.driver_en_route"
	NameDriverArrivedPickup Name = "trip.driver_arrived_pickup"
	NameTripStarted         Name = "trip.started"
	NameTripCompleted       Name = "trip.completed"
	NameTripCancelled       Name = "trip.cancelled"
	NameSessionRevoked      Name = "session.revoked"
)

// Topic groups event names for prefix subscriptions. Topics form a tree:
// a subscriber to TopicTrip also receives TopicAssignment events.
type Topic int

const (
	TopicNone Topic = iota
	TopicTrip
	TopicAssignment
	TopicSession
)

// Parent returns the enclosing topic, or TopicNone at the root.
func (t Topic) Parent() Topic {
	if t == TopicAssignment {
		return TopicTrip
	}
	return TopicNone
}

func (t Topic) String() string {
	switch t {
	case TopicTrip:
		return "trip"
	case TopicAssignment:
		return "trip.assignment"
	case TopicSession:
		return "session"
	}
	return "none"
}

// Event is an immutable fact about a state transition.
type Event interface {
	Name() Name
	Topic() Topic
	// AggregateID is the trip id, or the session id for session events.
	AggregateID() string
}

// TripSnapshot is the trip state captured when the event was emitted.
type TripSnapshot struct {
	ID           string            `json:"id"`
	PassengerID  string            `json:"passengerId"`
	DriverID     string            `json:"driverId,omitempty"`
	VehicleID    string            `json:"vehicleId,omitempty"`
	Status       models.TripStatus `json:"status"`
	Pickup       models.Point      `json:"pickup"`
	Dropoff      *models.Point     `json:"dropoff,omitempty"`
	FareEstimate float64           `json:"fareEstimate"`
	Currency     string            `json:"currency"`
	EtaMinutes   *int              `json:"etaMinutes,omitempty"`
	RequestedAt  time.Time         `json:"requestedAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// NewTripSnapshot copies the fields observers are allowed to see.
func NewTripSnapshot(t models.Trip) TripSnapshot {
	s := TripSnapshot{
		ID:           t.ID,
		PassengerID:  t.PassengerID,
		Status:       t.Status,
		Pickup:       t.Pickup(),
		Dropoff:      t.Dropoff(),
		FareEstimate: t.FareEstimate,
		Currency:     t.Currency,
		RequestedAt:  t.RequestedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	if t.DriverID != nil {
		s.DriverID = *t.DriverID
	}
	if t.VehicleID != nil {
		s.VehicleID = *t.VehicleID
	}
	if t.EtaMinutes != nil {
		v := *t.EtaMinutes
		s.EtaMinutes = &v
	}
	return s
}

// AssignmentSnapshot is the offer state captured when the event was emitted.
type AssignmentSnapshot struct {
	ID           string                  `json:"id"`
	DriverID     string                  `json:"driverId"`
	VehicleID    string                  `json:"vehicleId"`
	Status       models.AssignmentStatus `json:"status"`
	TTLExpiresAt time.Time               `json:"ttlExpiresAt"`
}

func NewAssignmentSnapshot(a models.Assignment) AssignmentSnapshot {
	return AssignmentSnapshot{
		ID:           a.ID,
		DriverID:     a.DriverID,
		VehicleID:    a.VehicleID,
		Status:       a.Status,
		TTLExpiresAt: a.TTLExpiresAt,
	}
}

// TripEvent is embedded by every trip lifecycle event.
type TripEvent struct {
	Trip       TripSnapshot `json:"trip"`
	OccurredAt time.Time    `json:"occurredAt"`
}

func (e TripEvent) AggregateID() string    { return e.Trip.ID }
func (e TripEvent) Occurred() time.Time    { return e.OccurredAt }
func (e TripEvent) Snapshot() TripSnapshot { return e.Trip }

type TripRequested struct {
	TripEvent
}

func (TripRequested) Name() Name   { return NameTripRequested }
func (TripRequested) Topic() Topic { return TopicTrip }

type AssigningStarted struct {
	TripEvent
	CandidateCount int `json:"candidateCount"`
}

func (AssigningStarted) Name() Name   { return NameAssigningStarted }
func (AssigningStarted) Topic() Topic { return TopicTrip }

// DriverOffered is emitted whenever a candidate receives an offer.
type DriverOffered struct {
	TripEvent
	Assignment AssignmentSnapshot `json:"assignment"`
	// Rank is the zero-based position of the driver in the ranked list.
	Rank int `json:"rank"`
}

func (DriverOffered) Name() Name   { return NameDriverOffered }
func (DriverOffered) Topic() Topic { return TopicAssignment }

type DriverAccepted struct {
	TripEvent
	Assignment AssignmentSnapshot `json:"assignment"`
}

func (DriverAccepted) Name() Name   { return NameDriverAccepted }
func (DriverAccepted) Topic() Topic { return TopicAssignment }

type DriverAssigned struct {
	TripEvent
	Assignment AssignmentSnapshot `json:"assignment"`
}

func (DriverAssigned) Name() Name   { return NameDriverAssigned }
func (DriverAssigned) Topic() Topic { return TopicTrip }

type DriverRejected struct {
	TripEvent
	Assignment AssignmentSnapshot `json:"assignment"`
	Reason     string             `json:"reason,omitempty"`
}

func (DriverRejected) Name() Name   { return NameDriverRejected }
func (DriverRejected) Topic() Topic { return TopicAssignment }

type AssignmentExpired struct {
	TripEvent
	Assignment AssignmentSnapshot `json:"assignment"`
}

func (AssignmentExpired) Name() Name   { return NameAssignmentExpired }
func (AssignmentExpired) Topic() Topic { return TopicAssignment }

type NoDriversFound struct {
	TripEvent
	// Offered is how many candidates received an offer before giving up.
	Offered int `json:"offered"`
}

func (NoDriversFound) Name() Name   { return NameNoDriversFound }
func (NoDriversFound) Topic() Topic { return TopicTrip }

type ArrivingStarted struct {
	TripEvent
	EtaMinutes int `json:"etaMinutes"`
}

func (ArrivingStarted) Name() Name   { return NameArrivingStarted }
func (ArrivingStarted) Topic() Topic { return TopicTrip }

type DriverEnRoute struct {
	TripEvent
}

func (DriverEnRoute) Name() Name   { return NameDriverEnRoute }
func (DriverEnRoute) Topic() Topic { return TopicTrip }

type DriverArrivedPickup struct {
	TripEvent
}

func (DriverArrivedPickup) Name() Name   { return NameDriverArrivedPickup }
func (DriverArrivedPickup) Topic() Topic { return TopicTrip }

type TripStarted struct {
	TripEvent
}

func (TripStarted) Name() Name   { return NameTripStarted }
func (TripStarted) Topic() Topic { return TopicTrip }

type TripCompleted struct {
	TripEvent
}

func (TripCompleted) Name() Name   { return NameTripCompleted }
func (TripCompleted) Topic() Topic { return TopicTrip }

type TripCancelled struct {
	TripEvent
	Actor  string `json:"actor"`
	Reason string `json:"reason,omitempty"`
	// Assignment is the offer that was outstanding when the trip was
	// cancelled, if any.
	Assignment *AssignmentSnapshot `json:"assignment,omitempty"`
}

func (TripCancelled) Name() Name   { return NameTripCancelled }
func (TripCancelled) Topic() Topic { return TopicTrip }

// SessionRevoked asks every live connection of the session to disconnect.
type SessionRevoked struct {
	SessionID  string    `json:"sessionId"`
	UserID     string    `json:"userId,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (SessionRevoked) Name() Name            { return NameSessionRevoked }
func (SessionRevoked) Topic() Topic          { return TopicSession }
func (e SessionRevoked) AggregateID() string { return e.SessionID }
func (e SessionRevoked) Occurred() time.Time { return e.OccurredAt }

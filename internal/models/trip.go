package models

import (
	"time"
)

type TripStatus string

const (
	TripStatusPending        TripStatus = "pending"
	TripStatusAssigning      TripStatus = "assigning"
	TripStatusAccepted       TripStatus = "accepted"
	TripStatusArriving       TripStatus = "arriving"
	TripStatusInProgress     TripStatus = "in_progress"
	TripStatusCompleted      TripStatus = "completed"
	TripStatusCancelled      TripStatus = "cancelled"
	TripStatusNoDriversFound TripStatus = "no_drivers_found"
)

// Terminal reports whether no further transition can leave the status.
func (s TripStatus) Terminal() bool {
	switch s {
	case TripStatusCompleted, TripStatusCancelled, TripStatusNoDriversFound:
		return true
	}
	return false
}

// Point is a WGS84 coordinate with an optional human readable address.
type Point struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// Candidate is one entry of the ranked driver list produced when assigning
// starts. The list is persisted with the trip and never re-ranked.
type Candidate struct {
	DriverID       string  `json:"driverId"`
	VehicleID      string  `json:"vehicleId"`
	DistanceMeters float64 `json:"distanceMeters"`
}

// Trip is one ride request from creation to a terminal outcome.
type Trip struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	PassengerID string     `json:"passengerId" gorm:"not null;index"`
	DriverID    *string    `json:"driverId,omitempty" gorm:"index"`
	VehicleID   *string    `json:"vehicleId,omitempty"`
	Status      TripStatus `json:"status" gorm:"column:current_status;not null;index"`

	PickupLat     float64  `json:"-" gorm:"not null"`
	PickupLng     float64  `json:"-" gorm:"not null"`
	PickupAddress string   `json:"-"`
	DropoffLat    *float64 `json:"-"`
	DropoffLng    *float64 `json:"-"`
	DropoffAddr   string   `json:"-"`

	FareEstimate float64 `json:"fareEstimate"`
	Currency     string  `json:"currency" gorm:"type:varchar(3)"`

	Candidates     []Candidate `json:"-" gorm:"serializer:json"`
	NextCandidate  int         `json:"-" gorm:"not null;default:0"`
	OfferTTLMillis int64       `json:"-" gorm:"not null;default:20000"`
	EtaMinutes     *int        `json:"etaMinutes,omitempty"`
	CancelReason   *string     `json:"cancelReason,omitempty"`

	RequestedAt time.Time  `json:"requestedAt" gorm:"not null"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	AcceptedAt  *time.Time `json:"acceptedAt,omitempty"`
	ArrivedAt   *time.Time `json:"arrivedAt,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	EnRouteAt   *time.Time `json:"enRouteAt,omitempty"`
}

// TableName specifies the table name
func (Trip) TableName() string {
	return "trips"
}

// Pickup returns the pickup point.
func (t Trip) Pickup() Point {
	return Point{Lat: t.PickupLat, Lng: t.PickupLng, Address: t.PickupAddress}
}

// Dropoff returns the destination, if one was given.
func (t Trip) Dropoff() *Point {
	if t.DropoffLat == nil || t.DropoffLng == nil {
		return nil
	}
	return &Point{Lat: *t.DropoffLat, Lng: *t.DropoffLng, Address: t.DropoffAddr}
}

// Clone returns a deep copy so snapshots handed to events are not aliased
// with rows still being mutated.
func (t Trip) Clone() Trip {
	c := t
	c.Candidates = append([]Candidate(nil), t.Candidates...)
	c.DriverID = cloneString(t.DriverID)
	c.VehicleID = cloneString(t.VehicleID)
	c.CancelReason = cloneString(t.CancelReason)
	if t.EtaMinutes != nil {
		v := *t.EtaMinutes
		c.EtaMinutes = &v
	}
	if t.DropoffLat != nil {
		v := *t.DropoffLat
		c.DropoffLat = &v
	}
	if t.DropoffLng != nil {
		v := *t.DropoffLng
		c.DropoffLng = &v
	}
	c.AcceptedAt = cloneTime(t.AcceptedAt)
	c.ArrivedAt = cloneTime(t.ArrivedAt)
	c.StartedAt = cloneTime(t.StartedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.CancelledAt = cloneTime(t.CancelledAt)
	c.EnRouteAt = cloneTime(t.EnRouteAt)
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

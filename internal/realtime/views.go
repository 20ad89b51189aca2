package realtime

import (
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/events"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

// Contacts are the phone numbers resolved for one event.
type Contacts struct {
	DriverPhone    string
	PassengerPhone string
}

// ViewOptions tune the admin view.
type ViewOptions struct {
	// IncludeAdminContact adds the unmasked driver phone to admin views.
	IncludeAdminContact bool
}

// PassengerView is what the requesting passenger sees.
type PassengerView struct {
	TripID       string            `json:"tripId"`
	Status       models.TripStatus `json:"status"`
	Pickup       models.Point      `json:"pickup"`
	Dropoff      *models.Point     `json:"dropoff,omitempty"`
	FareEstimate float64           `json:"fareEstimate"`
	Currency     string            `json:"currency"`
	EtaMinutes   *int              `json:"etaMinutes,omitempty"`
	Driver       *DriverSummary    `json:"driver,omitempty"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// DriverSummary describes the assigned driver to a passenger.
type DriverSummary struct {
	ID        string `json:"id"`
	VehicleID string `json:"vehicleId,omitempty"`
	// Phone is masked.
	Phone string `json:"phone,omitempty"`
}

// DriverView is what the offered or assigned driver sees.
type DriverView struct {
	TripID       string            `json:"tripId"`
	Status       models.TripStatus `json:"status"`
	Pickup       models.Point      `json:"pickup"`
	Dropoff      *models.Point     `json:"dropoff,omitempty"`
	FareEstimate float64           `json:"fareEstimate"`
	Currency     string            `json:"currency"`
	EtaMinutes   *int              `json:"etaMinutes,omitempty"`
	Offer        *OfferView        `json:"offer,omitempty"`
	// PassengerPhone is shared once the driver holds the trip.
	PassengerPhone string    `json:"passengerPhone,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type OfferView struct {
	AssignmentID string                  `json:"assignmentId"`
	Status       models.AssignmentStatus `json:"status"`
	ExpiresAt    time.Time               `json:"expiresAt"`
}

// AdminView carries raw identifiers for dashboards.
type AdminView struct {
	Event            events.Name             `json:"event"`
	TripID           string                  `json:"tripId"`
	PassengerID      string                  `json:"passengerId"`
	DriverID         string                  `json:"driverId,omitempty"`
	VehicleID        string                  `json:"vehicleId,omitempty"`
	Status           models.TripStatus       `json:"status"`
	AssignmentID     string                  `json:"assignmentId,omitempty"`
	AssignmentStatus models.AssignmentStatus `json:"assignmentStatus,omitempty"`
	OfferedDriverID  string                  `json:"offeredDriverId,omitempty"`
	Reason           string                  `json:"reason,omitempty"`
	DriverPhone      string                  `json:"driverPhone,omitempty"`
	Trip             events.TripSnapshot     `json:"trip"`
	OccurredAt       time.Time               `json:"occurredAt"`
}

// MaskPhone hides the middle of a phone number: +254712345678 becomes
// +2547****678.
func MaskPhone(phone string) string {
	if phone == "" {
		return ""
	}
	if len(phone) < 9 {
		return "****"
	}
	return phone[:5] + "****" + phone[len(phone)-3:]
}

func NewPassengerView(t events.TripSnapshot, c Contacts) PassengerView {
	v := PassengerView{
		TripID:       t.ID,
		Status:       t.Status,
		Pickup:       t.Pickup,
		Dropoff:      t.Dropoff,
		FareEstimate: t.FareEstimate,
		Currency:     t.Currency,
		EtaMinutes:   t.EtaMinutes,
		UpdatedAt:    t.UpdatedAt,
	}
	if t.DriverID != "" {
		v.Driver = &DriverSummary{ID: t.DriverID, VehicleID: t.VehicleID, Phone: MaskPhone(c.DriverPhone)}
	}
	return v
}

func NewDriverView(t events.TripSnapshot, offer *events.AssignmentSnapshot, c Contacts) DriverView {
	v := DriverView{
		TripID:       t.ID,
		Status:       t.Status,
		Pickup:       t.Pickup,
		Dropoff:      t.Dropoff,
		FareEstimate: t.FareEstimate,
		Currency:     t.Currency,
		EtaMinutes:   t.EtaMinutes,
		UpdatedAt:    t.UpdatedAt,
	}
	if offer != nil {
		v.Offer = &OfferView{AssignmentID: offer.ID, Status: offer.Status, ExpiresAt: offer.TTLExpiresAt}
	}
	if holdsTrip(t.Status) {
		v.PassengerPhone = c.PassengerPhone
	}
	return v
}

func holdsTrip(s models.TripStatus) bool {
	switch s {
	case models.TripStatusAccepted, models.TripStatusArriving, models.TripStatusInProgress:
		return true
	}
	return false
}

func NewAdminView(name events.Name, t events.TripSnapshot, offer *events.AssignmentSnapshot, reason string, occurredAt time.Time, c Contacts, opts ViewOptions) AdminView {
	v := AdminView{
		Event:       name,
		TripID:      t.ID,
		PassengerID: t.PassengerID,
		DriverID:    t.DriverID,
		VehicleID:   t.VehicleID,
		Status:      t.Status,
		Reason:      reason,
		Trip:        t,
		OccurredAt:  occurredAt,
	}
	if offer != nil {
		v.AssignmentID = offer.ID
		v.AssignmentStatus = offer.Status
		v.OfferedDriverID = offer.DriverID
	}
	if opts.IncludeAdminContact {
		v.DriverPhone = c.DriverPhone
	}
	return v
}

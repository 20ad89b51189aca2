package models

import "time"

type AssignmentStatus string

const (
	AssignmentStatusOffered  AssignmentStatus = "offered"
	AssignmentStatusAccepted AssignmentStatus = "accepted"
	AssignmentStatusRejected AssignmentStatus = "rejected"
	AssignmentStatusExpired  AssignmentStatus = "expired"
)

// Assignment is a time-bound offer of one trip to one driver. It is
// immutable once it leaves the offered status.
type Assignment struct {
	ID           string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TripID       string           `json:"tripId" gorm:"not null;index"`
	DriverID     string           `json:"driverId" gorm:"not null;index"`
	VehicleID    string           `json:"vehicleId"`
	Status       AssignmentStatus `json:"status" gorm:"not null;index"`
	TTLExpiresAt time.Time        `json:"ttlExpiresAt" gorm:"not null;index"`
	OfferedAt    time.Time        `json:"offeredAt" gorm:"not null"`
	RespondedAt  *time.Time       `json:"respondedAt,omitempty"`
	RejectReason *string          `json:"rejectReason,omitempty"`
}

// TableName specifies the table name
func (Assignment) TableName() string {
	return "trip_assignments"
}

func (a Assignment) Clone() Assignment {
	c := a
	c.RespondedAt = cloneTime(a.RespondedAt)
	c.RejectReason = cloneString(a.RejectReason)
	return c
}

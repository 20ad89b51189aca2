package models

import (
	"time"
)

// DriverLocation is the persisted availability snapshot of a driver. Redis
// holds the hot copy; this table keeps the last known state across restarts.
type DriverLocation struct {
	DriverID      string    `json:"driverId" gorm:"primaryKey;type:varchar(36)"`
	VehicleID     string    `json:"vehicleId"`
	Latitude      *float64  `json:"lat,omitempty"`
	Longitude     *float64  `json:"lng,omitempty"`
	IsOnline      bool      `json:"isOnline" gorm:"not null;default:false"`
	IsAvailable   bool      `json:"isAvailableForTrips" gorm:"not null;default:false"`
	CurrentTripID *string   `json:"currentTripId,omitempty"`
	LastSeen      time.Time `json:"lastSeen" gorm:"not null"`
}

// TableName specifies the table name
func (DriverLocation) TableName() string {
	return "driver_locations"
}

// Location returns the last known point, if any.
func (d DriverLocation) Location() *Point {
	if d.Latitude == nil || d.Longitude == nil {
		return nil
	}
	return &Point{Lat: *d.Latitude, Lng: *d.Longitude}
}

// Dispatchable reports whether the driver may receive a new offer.
func (d DriverLocation) Dispatchable() bool {
	return d.IsOnline && d.IsAvailable && d.CurrentTripID == nil
}

package dispatch

import (
	"context"
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

// CandidateSelector ranks drivers able to serve a pickup, nearest first.
type CandidateSelector interface {
	Rank(ctx context.Context, pickup models.Point, radiusMeters float64, limit int) ([]models.Candidate, error)
}

// LocationLookup returns a driver's last known position, or nil when unknown.
type LocationLookup interface {
	LastLocation(ctx context.Context, driverID string) (*models.Point, error)
}

// Timers arms and disarms offer expiry.
type Timers interface {
	Schedule(assignmentID string, expiresAt time.Time)
	Cancel(assignmentID string)
}

// Notifier is told after every commit that new outbox rows exist.
type Notifier interface {
	Notify()
}

// Actor identifies who asked for an operation.
type Actor struct {
	ID   string
	Role models.UserType
}

type nopTimers struct{}

func (nopTimers) Schedule(string, time.Time) {}
func (nopTimers) Cancel(string)              {}

type nopNotifier struct{}

func (nopNotifier) Notify() {}

// Package store persists trips, assignments and the event outbox.
//
// Every status change is a guarded write: the row is updated only if it still
// holds the expected prior status, and the caller learns whether it did.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

var (
	ErrNotFound     = errors.New("store: not found")
	ErrDuplicateKey = errors.New("store: duplicate key")
	// ErrDuplicateOffer is returned when a trip already has an offered
	// assignment.
	ErrDuplicateOffer = errors.New("store: trip already has an open offer")
)

// Repository is the data access surface used inside a unit of work.
type Repository interface {
	GetTrip(ctx context.Context, id string) (models.Trip, error)
	CreateTrip(ctx context.Context, t *models.Trip) error
	// UpdateTrip writes t only if the stored status still equals from.
	UpdateTrip(ctx context.Context, t models.Trip, from models.TripStatus) (bool, error)

	GetAssignment(ctx context.Context, id string) (models.Assignment, error)
	CreateAssignment(ctx context.Context, a *models.Assignment) error
	// UpdateAssignment writes a only if the stored status still equals from.
	UpdateAssignment(ctx context.Context, a models.Assignment, from models.AssignmentStatus) (bool, error)
	// FindOfferedAssignment returns the open offer of a trip or ErrNotFound.
	FindOfferedAssignment(ctx context.Context, tripID string) (models.Assignment, error)
	// ListStaleOffers returns offered assignments whose TTL is at or before now.
	ListStaleOffers(ctx context.Context, now time.Time, limit int) ([]models.Assignment, error)

	AppendOutbox(ctx context.Context, e *models.OutboxEntry) error
	// ClaimDueOutbox returns pending rows and failed rows whose retry time
	// has come, oldest first. maxAttempts of zero disables the ceiling.
	ClaimDueOutbox(ctx context.Context, now time.Time, limit, maxAttempts int) ([]models.OutboxEntry, error)
	MarkOutboxSent(ctx context.Context, id string, at time.Time) error
	// MarkOutboxFailed records a delivery failure and bumps the attempt count.
	MarkOutboxFailed(ctx context.Context, id, reason string, nextAttemptAt *time.Time) error
}

// Store is a Repository that can also run a unit of work. Everything fn does
// through its Repository commits together or not at all.
type Store interface {
	Repository
	Transact(ctx context.Context, fn func(Repository) error) error
}

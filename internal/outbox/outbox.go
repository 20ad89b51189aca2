// Package outbox makes domain events durable. Events are appended inside the
// unit of work that produced them and a Relay later delivers them on the bus.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chachabrian/mooveit-dispatch/internal/events"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/internal/store"
)

// Append records e in the outbox through repo. Call it with the Repository of
// the unit of work that made the state change so both commit together.
func Append(ctx context.Context, repo store.Repository, e events.Event, now time.Time) error {
	payload, err := events.Encode(e)
	if err != nil {
		return fmt.Errorf("outbox: encode %s: %w", e.Name(), err)
	}
	// v7 ids sort by creation time, which keeps ordering stable for rows
	// sharing a timestamp.
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("outbox: id: %w", err)
	}
	entry := &models.OutboxEntry{
		ID:          id.String(),
		Type:        string(e.Name()),
		AggregateID: e.AggregateID(),
		Payload:     payload,
		Status:      models.OutboxStatusPending,
		CreatedAt:   now,
	}
	if err := repo.AppendOutbox(ctx, entry); err != nil {
		return fmt.Errorf("outbox: append %s: %w", e.Name(), err)
	}
	return nil
}

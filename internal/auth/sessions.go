package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/events"
	"github.com/chachabrian/mooveit-dispatch/internal/outbox"
	"github.com/chachabrian/mooveit-dispatch/internal/store"
)

// Notifier wakes the outbox relay.
type Notifier interface {
	Notify()
}

// Sessions revokes login sessions. The revocation is recorded before the
// SessionRevoked event is appended to the outbox, so a token can no longer
// open new sockets by the time live ones are told to disconnect.
type Sessions struct {
	revoked  Revocations
	store    store.Store
	notifier Notifier
	ttl      time.Duration
	now      func() time.Time
}

func NewSessions(revoked Revocations, st store.Store, notifier Notifier, ttl time.Duration) *Sessions {
	return &Sessions{revoked: revoked, store: st, notifier: notifier, ttl: ttl, now: time.Now}
}

func (s *Sessions) Revoke(ctx context.Context, sessionID, userID, reason string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if err := s.revoked.Revoke(ctx, sessionID, s.ttl); err != nil {
		return fmt.Errorf("revoke session %s: %w", sessionID, err)
	}
	now := s.now().UTC()
	err := s.store.Transact(ctx, func(r store.Repository) error {
		return outbox.Append(ctx, r, events.SessionRevoked{
			SessionID:  sessionID,
			UserID:     userID,
			Reason:     reason,
			OccurredAt: now,
		}, now)
	})
	if err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.Notify()
	}
	return nil
}

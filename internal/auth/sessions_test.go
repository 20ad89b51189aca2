package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachabrian/mooveit-dispatch/internal/events"
	"github.com/chachabrian/mooveit-dispatch/internal/store"
)

type notifyCounter int

func (n *notifyCounter) Notify() { *n++ }

func TestSessionsRevokeRecordsAndEmits(t *testing.T) {
	ctx := context.Background()
	revoked := NewMemoryRevocations()
	st := store.NewMemoryStore()
	var notified notifyCounter
	s := NewSessions(revoked, st, &notified, time.Hour)

	require.NoError(t, s.Revoke(ctx, "s1", "u1", "stolen phone"))

	ok, err := revoked.IsRevoked(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, notifyCounter(1), notified)

	rows := st.Outbox()
	require.Len(t, rows, 1)
	assert.Equal(t, string(events.NameSessionRevoked), rows[0].Type)
	assert.Equal(t, "s1", rows[0].AggregateID)

	e, err := events.Decode(events.Name(rows[0].Type), rows[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "stolen phone", e.(events.SessionRevoked).Reason)
}

func TestSessionsRevokeNeedsID(t *testing.T) {
	s := NewSessions(NewMemoryRevocations(), store.NewMemoryStore(), nil, time.Hour)
	assert.Error(t, s.Revoke(context.Background(), "", "u1", ""))
}

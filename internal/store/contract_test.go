package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

// testStore runs the behaviour every Store implementation must share.
func testStore(t *testing.T, s Store) {
	t.Run("guarded trip update", func(t *testing.T) { testGuardedTripUpdate(t, s) })
	t.Run("single open offer", func(t *testing.T) { testSingleOpenOffer(t, s) })
	t.Run("stale offers", func(t *testing.T) { testStaleOffers(t, s) })
	t.Run("rollback", func(t *testing.T) { testRollback(t, s) })
	t.Run("outbox lifecycle", func(t *testing.T) { testOutboxLifecycle(t, s) })
}

func newTrip() *models.Trip {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Trip{
		ID:          uuid.NewString(),
		PassengerID: uuid.NewString(),
		Status:      models.TripStatusPending,
		PickupLat:   -1.2921,
		PickupLng:   36.8219,
		Currency:    "KES",
		RequestedAt: now,
	}
}

func newOffer(tripID string, ttl time.Time) *models.Assignment {
	return &models.Assignment{
		ID:           uuid.NewString(),
		TripID:       tripID,
		DriverID:     uuid.NewString(),
		VehicleID:    uuid.NewString(),
		Status:       models.AssignmentStatusOffered,
		TTLExpiresAt: ttl,
		OfferedAt:    time.Now().UTC(),
	}
}

func testGuardedTripUpdate(t *testing.T, s Store) {
	ctx := context.Background()
	trip := newTrip()
	require.NoError(t, s.CreateTrip(ctx, trip))

	next := trip.Clone()
	next.Status = models.TripStatusAssigning
	next.Candidates = []models.Candidate{{DriverID: "d1", VehicleID: "v1", DistanceMeters: 120}}
	ok, err := s.UpdateTrip(ctx, next, models.TripStatusPending)
	require.NoError(t, err)
	assert.True(t, ok)

	stale := trip.Clone()
	stale.Status = models.TripStatusCancelled
	ok, err = s.UpdateTrip(ctx, stale, models.TripStatusPending)
	require.NoError(t, err)
	assert.False(t, ok, "second writer with an outdated guard must lose")

	got, err := s.GetTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TripStatusAssigning, got.Status)
	assert.Equal(t, next.Candidates, got.Candidates)

	_, err = s.GetTrip(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func testSingleOpenOffer(t *testing.T, s Store) {
	ctx := context.Background()
	trip := newTrip()
	require.NoError(t, s.CreateTrip(ctx, trip))

	first := newOffer(trip.ID, time.Now().Add(time.Minute))
	require.NoError(t, s.CreateAssignment(ctx, first))
	err := s.CreateAssignment(ctx, newOffer(trip.ID, time.Now().Add(time.Minute)))
	assert.ErrorIs(t, err, ErrDuplicateOffer)

	open, err := s.FindOfferedAssignment(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, open.ID)

	resolved := open.Clone()
	resolved.Status = models.AssignmentStatusRejected
	now := time.Now().UTC()
	resolved.RespondedAt = &now
	ok, err := s.UpdateAssignment(ctx, resolved, models.AssignmentStatusOffered)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UpdateAssignment(ctx, resolved, models.AssignmentStatusOffered)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.FindOfferedAssignment(ctx, trip.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.CreateAssignment(ctx, newOffer(trip.ID, time.Now().Add(time.Minute))))
}

func testStaleOffers(t *testing.T, s Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	var stale []string
	for i := 0; i < 3; i++ {
		trip := newTrip()
		require.NoError(t, s.CreateTrip(ctx, trip))
		a := newOffer(trip.ID, now.Add(time.Duration(i-2)*time.Second))
		require.NoError(t, s.CreateAssignment(ctx, a))
		if i < 2 {
			stale = append(stale, a.ID)
		}
	}

	got, err := s.ListStaleOffers(ctx, now.Add(-500*time.Millisecond), 0)
	require.NoError(t, err)
	var ids []string
	for _, a := range got {
		ids = append(ids, a.ID)
	}
	assert.Subset(t, ids, stale)
	for _, a := range got {
		assert.False(t, a.TTLExpiresAt.After(now))
	}

	limited, err := s.ListStaleOffers(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func testRollback(t *testing.T, s Store) {
	ctx := context.Background()
	trip := newTrip()
	boom := errors.New("boom")

	err := s.Transact(ctx, func(r Repository) error {
		require.NoError(t, r.CreateTrip(ctx, trip))
		require.NoError(t, r.AppendOutbox(ctx, &models.OutboxEntry{
			ID:          uuid.NewString(),
			Type:        "trip.requested",
			AggregateID: trip.ID,
			Payload:     []byte(`{}`),
			CreatedAt:   time.Now().UTC(),
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetTrip(ctx, trip.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func testOutboxLifecycle(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	aggregate := uuid.NewString()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := uuid.NewV7()
		require.NoError(t, err)
		ids = append(ids, id.String())
		require.NoError(t, s.AppendOutbox(ctx, &models.OutboxEntry{
			ID:          id.String(),
			Type:        "trip.started",
			AggregateID: aggregate,
			Payload:     []byte(`{"n":1}`),
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}))
	}

	due := claimFor(t, s, aggregate, base.Add(time.Minute), 0)
	assert.Equal(t, ids, due)

	require.NoError(t, s.MarkOutboxSent(ctx, ids[0], base.Add(time.Minute)))
	retryAt := base.Add(2 * time.Minute)
	require.NoError(t, s.MarkOutboxFailed(ctx, ids[1], "socket closed", &retryAt))

	assert.Empty(t, claimFor(t, s, aggregate, base.Add(time.Minute), 0), "later rows wait behind a retrying row")
	other := uuid.NewString()
	require.NoError(t, s.AppendOutbox(ctx, &models.OutboxEntry{
		ID: uuid.NewString(), Type: "trip.started", AggregateID: other, Payload: []byte(`{}`), CreatedAt: base,
	}))
	assert.Len(t, claimFor(t, s, other, base.Add(time.Minute), 0), 1, "other trips are not held back")
	assert.Equal(t, ids[1:], claimFor(t, s, aggregate, retryAt, 0))
	assert.Equal(t, []string{ids[2]}, claimFor(t, s, aggregate, retryAt, 1), "attempt ceiling parks the row")

	assert.ErrorIs(t, s.MarkOutboxSent(ctx, uuid.NewString(), time.Now()), ErrNotFound)
}

func claimFor(t *testing.T, s Store, aggregate string, now time.Time, maxAttempts int) []string {
	t.Helper()
	rows, err := s.ClaimDueOutbox(context.Background(), now, 1000, maxAttempts)
	require.NoError(t, err)
	var ids []string
	for _, r := range rows {
		if r.AggregateID == aggregate {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chachabrian/mooveit-dispatch/internal/events"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/internal/store"
)

type staticSelector struct {
	mu         sync.Mutex
	candidates []models.Candidate
	err        error
	calls      int
}

func (s *staticSelector) Rank(_ context.Context, _ models.Point, _ float64, limit int) ([]models.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := append([]models.Candidate(nil), s.candidates...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeTimers struct {
	mu        sync.Mutex
	armed     map[string]time.Time
	cancelled []string
}

func (f *fakeTimers) Schedule(id string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed[id] = at
}

func (f *fakeTimers) Cancel(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.armed, id)
	f.cancelled = append(f.cancelled, id)
}

func (f *fakeTimers) isArmed(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.armed[id]
	return ok
}

type fakeLocations map[string]*models.Point

func (f fakeLocations) LastLocation(_ context.Context, id string) (*models.Point, error) {
	return f[id], nil
}

type countingNotifier struct{ n atomic.Int32 }

func (c *countingNotifier) Notify() { c.n.Add(1) }

type harness struct {
	t        *testing.T
	store    *store.MemoryStore
	selector *staticSelector
	timers   *fakeTimers
	notifier *countingNotifier
	orch     *Orchestrator
	now      time.Time
}

var pickup = models.Point{Lat: -1.2864, Lng: 36.8172, Address: "Kenyatta Avenue"}

func candidates(ids ...string) []models.Candidate {
	out := make([]models.Candidate, len(ids))
	for i, id := range ids {
		out[i] = models.Candidate{DriverID: id, VehicleID: "veh-" + id, DistanceMeters: float64(500 * (i + 1))}
	}
	return out
}

func newHarness(t *testing.T, drivers ...string) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		store:    store.NewMemoryStore(),
		selector: &staticSelector{candidates: candidates(drivers...)},
		timers:   &fakeTimers{armed: map[string]time.Time{}},
		notifier: &countingNotifier{},
		now:      time.Date(2025, 3, 5, 13, 0, 0, 0, time.UTC),
	}
	h.orch = New(Deps{
		Store:     h.store,
		Selector:  h.selector,
		Locations: fakeLocations{},
		Timers:    h.timers,
		Notifier:  h.notifier,
	}, Options{
		Assign:          AssignOptions{SearchRadiusMeters: 5000, MaxCandidates: 5, OfferTTL: 20 * time.Second},
		AverageSpeedKmh: 30,
	})
	h.orch.now = func() time.Time { return h.now }
	return h
}

func (h *harness) request() models.Trip {
	h.t.Helper()
	trip, err := h.orch.RequestTrip(context.Background(), RequestTripCommand{PassengerID: "p1", Pickup: pickup})
	require.NoError(h.t, err)
	return trip
}

func (h *harness) openOffer(tripID string) models.Assignment {
	h.t.Helper()
	a, err := h.store.FindOfferedAssignment(context.Background(), tripID)
	require.NoError(h.t, err)
	return a
}

func (h *harness) eventNames(tripID string) []events.Name {
	var out []events.Name
	for _, row := range h.store.Outbox() {
		if row.AggregateID == tripID {
			out = append(out, events.Name(row.Type))
		}
	}
	return out
}

func (h *harness) lastEvent(tripID string) events.Event {
	h.t.Helper()
	rows := h.store.Outbox()
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].AggregateID == tripID {
			e, err := events.Decode(events.Name(rows[i].Type), rows[i].Payload)
			require.NoError(h.t, err)
			return e
		}
	}
	h.t.Fatalf("no events for trip %s", tripID)
	return nil
}

func (h *harness) offeredCount(tripID string) int {
	n := 0
	for _, a := range h.store.Assignments(tripID) {
		if a.Status == models.AssignmentStatusOffered {
			n++
		}
	}
	return n
}

// accepted drives a fresh trip to accepted by d1.
func (h *harness) accepted() models.Trip {
	h.t.Helper()
	trip := h.request()
	a := h.openOffer(trip.ID)
	trip, err := h.orch.AcceptOffer(context.Background(), a.ID, a.DriverID)
	require.NoError(h.t, err)
	return trip
}

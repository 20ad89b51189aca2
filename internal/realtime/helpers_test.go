package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chachabrian/mooveit-dispatch/internal/events"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

type frame struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// memConn attaches a connection without a socket; tests read its queue.
func memConn(t *testing.T, r *Registry, ch Channel, owner, session string) *Conn {
	t.Helper()
	c := NewConn(owner, ch.Role(), session, ch, nil, 16)
	require.NoError(t, r.Attach(c))
	return c
}

// drain returns every queued frame without blocking.
func drain(t *testing.T, c *Conn) []frame {
	t.Helper()
	var out []frame
	for {
		select {
		case b, ok := <-c.send:
			if !ok {
				return out
			}
			var f frame
			require.NoError(t, json.Unmarshal(b, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func types(frames []frame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Type)
	}
	return out
}

var testTime = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func tripSnap(status models.TripStatus, driverID string) events.TripSnapshot {
	return events.TripSnapshot{
		ID:           "t1",
		PassengerID:  "p1",
		DriverID:     driverID,
		Status:       status,
		Pickup:       models.Point{Lat: -1.29, Lng: 36.82},
		FareEstimate: 420,
		Currency:     "KES",
		RequestedAt:  testTime,
		UpdatedAt:    testTime,
	}
}

func offerSnap(id, driverID string, status models.AssignmentStatus) events.AssignmentSnapshot {
	return events.AssignmentSnapshot{ID: id, DriverID: driverID, VehicleID: "v-" + driverID, Status: status, TTLExpiresAt: testTime.Add(20 * time.Second)}
}

func offeredEvent(driverID string) events.DriverOffered {
	return events.DriverOffered{
		TripEvent:  events.TripEvent{Trip: tripSnap(models.TripStatusAssigning, ""), OccurredAt: testTime},
		Assignment: offerSnap("a-"+driverID, driverID, models.AssignmentStatusOffered),
	}
}

func acceptedEvent(driverID string) events.DriverAccepted {
	return events.DriverAccepted{
		TripEvent:  events.TripEvent{Trip: tripSnap(models.TripStatusAccepted, driverID), OccurredAt: testTime},
		Assignment: offerSnap("a-"+driverID, driverID, models.AssignmentStatusAccepted),
	}
}

type contactStub map[string]models.User

func (s contactStub) Contact(_ context.Context, id string) (models.User, error) {
	u, ok := s[id]
	if !ok {
		return models.User{}, errUnknown
	}
	return u, nil
}

var errUnknown = errors.New("unknown user")

type fakeAvailability struct {
	mu       sync.Mutex
	status   map[string][2]bool
	location map[string]models.Point
	trip     map[string]*string
	vehicle  map[string]string
	err      error
}

func newFakeAvailability() *fakeAvailability {
	return &fakeAvailability{status: map[string][2]bool{}, location: map[string]models.Point{}, trip: map[string]*string{}, vehicle: map[string]string{}}
}

func (f *fakeAvailability) UpdateStatus(_ context.Context, id string, online, available bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.status[id] = [2]bool{online, available}
	return nil
}

func (f *fakeAvailability) UpdateLocation(_ context.Context, id string, p models.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.location[id] = p
	return nil
}

func (f *fakeAvailability) SetCurrentTrip(_ context.Context, id string, trip *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.trip[id] = trip
	return nil
}

func (f *fakeAvailability) SetVehicle(_ context.Context, id, vehicleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.vehicle[id] = vehicleID
	return nil
}

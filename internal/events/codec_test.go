package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

func TestDecodeRestoresConcreteType(t *testing.T) {
	driver, vehicle := "d1", "v1"
	trip := models.Trip{
		ID:          "t1",
		PassengerID: "p1",
		DriverID:    &driver,
		VehicleID:   &vehicle,
		Status:      models.TripStatusAccepted,
		PickupLat:   -1.28,
		PickupLng:   36.82,
		Currency:    "KES",
	}
	in := DriverAccepted{
		TripEvent: TripEvent{Trip: NewTripSnapshot(trip), OccurredAt: time.Unix(1700000000, 0).UTC()},
		Assignment: AssignmentSnapshot{
			ID:       "a1",
			DriverID: "d1",
			Status:   models.AssignmentStatusAccepted,
		},
	}

	payload, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(NameDriverAccepted, payload)
	require.NoError(t, err)
	got, ok := out.(DriverAccepted)
	require.True(t, ok, "got %T", out)
	assert.Equal(t, in, got)
	assert.Equal(t, "t1", got.AggregateID())
	assert.Equal(t, TopicAssignment, got.Topic())
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode("trip.unknown", []byte(`{}`))
	assert.ErrorContains(t, err, "unknown event")

	_, err = Decode(NameTripStarted, []byte(`{`))
	assert.ErrorContains(t, err, "decode trip.started")
}

func TestEveryNameIsRegistered(t *testing.T) {
	assert.Len(t, Names(), 15)
	for _, n := range Names() {
		e, err := Decode(n, []byte(`{}`))
		require.NoError(t, err)
		assert.Equal(t, n, e.Name())
	}
}

func TestTopicParents(t *testing.T) {
	assert.Equal(t, TopicTrip, TopicAssignment.Parent())
	assert.Equal(t, TopicNone, TopicTrip.Parent())
	assert.Equal(t, "trip.assignment", TopicAssignment.String())
}

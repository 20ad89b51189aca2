package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTripCloneIsDeep(t *testing.T) {
	d := "d1"
	lat, lng := 1.0, 2.0
	now := time.Now()
	trip := Trip{
		ID:         "t1",
		DriverID:   &d,
		DropoffLat: &lat,
		DropoffLng: &lng,
		Candidates: []Candidate{{DriverID: "d1"}},
		AcceptedAt: &now,
	}
	c := trip.Clone()
	*c.DriverID = "d2"
	c.Candidates[0].DriverID = "x"
	*c.DropoffLat = 9

	assert.Equal(t, "d1", *trip.DriverID)
	assert.Equal(t, "d1", trip.Candidates[0].DriverID)
	assert.Equal(t, 1.0, *trip.DropoffLat)
	assert.Equal(t, &Point{Lat: 1, Lng: 2}, trip.Dropoff())
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, TripStatusCompleted.Terminal())
	assert.True(t, TripStatusCancelled.Terminal())
	assert.True(t, TripStatusNoDriversFound.Terminal())
	assert.False(t, TripStatusAssigning.Terminal())
	assert.False(t, TripStatusArriving.Terminal())
}

func TestDispatchable(t *testing.T) {
	trip := "t1"
	assert.True(t, DriverLocation{IsOnline: true, IsAvailable: true}.Dispatchable())
	assert.False(t, DriverLocation{IsOnline: true, IsAvailable: false}.Dispatchable())
	assert.False(t, DriverLocation{IsOnline: false, IsAvailable: true}.Dispatchable())
	assert.False(t, DriverLocation{IsOnline: true, IsAvailable: true, CurrentTripID: &trip}.Dispatchable())
	assert.Nil(t, DriverLocation{}.Location())
}

package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineDistance(t *testing.T) {
	// Nairobi CBD to Westlands is roughly 2.4 km.
	d := HaversineDistance(-1.2864, 36.8172, -1.2675, 36.8078)
	assert.InDelta(t, 2.35, d, 0.1)
	assert.Zero(t, HaversineDistance(1, 1, 1, 1))
	assert.True(t, IsWithinRadius(-1.2864, 36.8172, -1.2675, 36.8078, 3))
	assert.False(t, IsWithinRadius(-1.2864, 36.8172, -1.2675, 36.8078, 1))
}

func TestCalculateETA(t *testing.T) {
	assert.Equal(t, 1, CalculateETA(0.05, 30))
	assert.Equal(t, 10, CalculateETA(5, 30))
	assert.Equal(t, 11, CalculateETA(5.1, 30))
	assert.Equal(t, 20, CalculateETA(10, 0), "zero speed falls back to 30 km/h")
}

func TestValidCoordinates(t *testing.T) {
	assert.True(t, ValidCoordinates(-1.28, 36.82))
	assert.False(t, ValidCoordinates(91, 0))
	assert.False(t, ValidCoordinates(0, -181))
}

func TestCalculateDynamicFare(t *testing.T) {
	eat := time.FixedZone("EAT", 3*60*60)
	quiet := time.Date(2025, 3, 5, 13, 0, 0, 0, eat) // Wednesday midday
	rush := time.Date(2025, 3, 5, 17, 0, 0, 0, eat)

	short := CalculateDynamicFare(-1.2864, 36.8172, -1.2675, 36.8078, quiet)
	assert.Equal(t, MinimumFare, short.TotalFare)
	assert.False(t, short.HasTraffic)

	long := CalculateDynamicFare(-1.2864, 36.8172, -1.2195, 36.8909, rush)
	assert.True(t, long.HasTraffic)
	assert.Equal(t, TrafficRatePerKm, long.BaseRate)
	assert.InDelta(t, long.Distance*TrafficRatePerKm, long.TotalFare, 0.5)
}

func TestTokenRoundTrip(t *testing.T) {
	tok, err := GenerateToken("secret", "u1", "s1", "driver", time.Minute)
	require.NoError(t, err)

	claims, err := ValidateToken("secret", tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "s1", claims.SessionID)
	assert.Equal(t, "driver", claims.UserType)

	_, err = ValidateToken("other", tok)
	assert.Error(t, err)

	expired, err := GenerateToken("secret", "u1", "s1", "driver", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken("secret", expired)
	assert.Error(t, err)

	_, err = GenerateToken("", "u1", "s1", "driver", time.Minute)
	assert.Error(t, err)
}

package utils

import (
	"math"
	"time"
)

// FareCalculationResult contains the calculated fare and breakdown
type FareCalculationResult struct {
	TotalFare  float64 `json:"totalFare"`
	Distance   float64 `json:"distance"`
	BaseRate   float64 `json:"baseRate"`
	HasTraffic bool    `json:"hasTraffic"`
}

const (
	// Base rates in KES
	StandardRatePerKm   = 35.0  // Normal rate per km
	TrafficRatePerKm    = 38.0  // Rate per km during high traffic
	MinimumFare         = 150.0 // Minimum fare for distances <= 3km
	MinimumFareDistance = 3.0   // Distance threshold for minimum fare in km
)

// CalculateDynamicFare prices a trip requested at the given time.
func CalculateDynamicFare(pickupLat, pickupLng, destLat, destLng float64, at time.Time) FareCalculationResult {
	distance := HaversineDistance(pickupLat, pickupLng, destLat, destLng)
	hasTraffic := IsLikelyTrafficTime(at)

	ratePerKm := StandardRatePerKm
	if hasTraffic {
		ratePerKm = TrafficRatePerKm
	}

	totalFare := MinimumFare
	if distance > MinimumFareDistance {
		totalFare = distance * ratePerKm
	}

	return FareCalculationResult{
		TotalFare:  math.Round(totalFare*100) / 100,
		Distance:   math.Round(distance*100) / 100,
		BaseRate:   ratePerKm,
		HasTraffic: hasTraffic,
	}
}

// IsLikelyTrafficTime determines if the given time is likely to have high
// traffic, based on typical Nairobi traffic patterns.
func IsLikelyTrafficTime(at time.Time) bool {
	location, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		// Fallback to a fixed EAT offset if tzdata is not available
		location = time.FixedZone("EAT", 3*60*60)
	}

	currentTime := at.In(location)
	hour := currentTime.Hour()
	dayOfWeek := currentTime.Weekday()

	// Weekend peak hours: 11 AM - 7 PM
	if dayOfWeek == time.Saturday || dayOfWeek == time.Sunday {
		return hour >= 11 && hour < 19
	}

	// Weekday rush: 6 AM - 10 AM and 4 PM - 8 PM
	isMorningRush := hour >= 6 && hour < 10
	isEveningRush := hour >= 16 && hour < 20

	return isMorningRush || isEveningRush
}

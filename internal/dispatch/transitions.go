package dispatch

import "github.com/chachabrian/mooveit-dispatch/internal/models"

var transitions = map[models.TripStatus][]models.TripStatus{
	models.TripStatusPending: {
		models.TripStatusAssigning,
		models.TripStatusNoDriversFound,
		models.TripStatusCancelled,
	},
	models.TripStatusAssigning: {
		models.TripStatusAccepted,
		models.TripStatusNoDriversFound,
		models.TripStatusCancelled,
	},
	models.TripStatusAccepted: {
		models.TripStatusArriving,
		models.TripStatusCancelled,
	},
	models.TripStatusArriving: {
		models.TripStatusInProgress,
	},
	models.TripStatusInProgress: {
		models.TripStatusCompleted,
	},
}

// CanTransition reports whether a trip may move from one status to another.
func CanTransition(from, to models.TripStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

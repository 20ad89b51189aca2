package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chachabrian/mooveit-dispatch/internal/dispatch"
	"github.com/chachabrian/mooveit-dispatch/internal/events"
	"github.com/chachabrian/mooveit-dispatch/internal/middleware"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

type tripResponse struct {
	Trip events.TripSnapshot `json:"trip"`
}

// RequestTrip creates a trip for the calling passenger and starts looking
// for a driver.
func RequestTrip(orch *dispatch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Pickup  *models.Point `json:"pickup" binding:"required"`
			Dropoff *models.Point `json:"dropoff"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		trip, err := orch.RequestTrip(c.Request.Context(), dispatch.RequestTripCommand{
			PassengerID: middleware.Principal(c).UserID,
			Pickup:      *input.Pickup,
			Dropoff:     input.Dropoff,
		})
		if err != nil && trip.ID == "" {
			respondError(c, err)
			return
		}
		// The trip exists even when assigning could not start.
		c.JSON(http.StatusCreated, tripResponse{Trip: events.NewTripSnapshot(trip)})
	}
}

// GetTrip returns a trip to its passenger, its driver or an admin.
func GetTrip(orch *dispatch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		trip, err := orch.GetTrip(c.Request.Context(), c.Param("tripId"))
		if err != nil {
			respondError(c, err)
			return
		}
		if p := middleware.Principal(c); !canView(p.UserID, p.Role, trip) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized to view this trip"})
			return
		}
		c.JSON(http.StatusOK, tripResponse{Trip: events.NewTripSnapshot(trip)})
	}
}

func canView(userID string, role models.UserType, t models.Trip) bool {
	switch role {
	case models.UserTypeAdmin:
		return true
	case models.UserTypePassenger:
		return t.PassengerID == userID
	case models.UserTypeDriver:
		return t.DriverID != nil && *t.DriverID == userID
	}
	return false
}

type reasonInput struct {
	Reason string `json:"reason"`
}

// bindReason accepts an empty body.
func bindReason(c *gin.Context) (string, bool) {
	var input reasonInput
	if c.Request.ContentLength == 0 {
		return "", true
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return input.Reason, true
}

// CancelTrip cancels a trip on behalf of its passenger, its driver or an admin.
func CancelTrip(orch *dispatch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		reason, ok := bindReason(c)
		if !ok {
			return
		}
		p := middleware.Principal(c)
		tripID := c.Param("tripId")
		if err := orch.CancelTrip(c.Request.Context(), tripID, dispatch.Actor{ID: p.UserID, Role: p.Role}, reason); err != nil {
			respondError(c, err)
			return
		}
		respondTrip(c, orch, tripID)
	}
}

// AcceptAssignment accepts an open offer for the calling driver.
func AcceptAssignment(orch *dispatch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		trip, err := orch.AcceptOffer(c.Request.Context(), c.Param("assignmentId"), middleware.Principal(c).UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, tripResponse{Trip: events.NewTripSnapshot(trip)})
	}
}

// RejectAssignment declines an open offer; the trip moves to the next
// candidate.
func RejectAssignment(orch *dispatch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		reason, ok := bindReason(c)
		if !ok {
			return
		}
		if err := orch.RejectOffer(c.Request.Context(), c.Param("assignmentId"), middleware.Principal(c).UserID, reason); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Offer rejected"})
	}
}

// DriverStep is one of the driver progress operations of the orchestrator.
type DriverStep func(ctx context.Context, tripID, driverID string) error

// AdvanceTrip runs step for the calling driver and returns the trip.
func AdvanceTrip(orch *dispatch.Orchestrator, step DriverStep) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID := c.Param("tripId")
		if err := step(c.Request.Context(), tripID, middleware.Principal(c).UserID); err != nil {
			respondError(c, err)
			return
		}
		respondTrip(c, orch, tripID)
	}
}

func respondTrip(c *gin.Context, orch *dispatch.Orchestrator, tripID string) {
	trip, err := orch.GetTrip(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, fmt.Errorf("reload trip: %w", err))
		return
	}
	c.JSON(http.StatusOK, tripResponse{Trip: events.NewTripSnapshot(trip)})
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chachabrian/mooveit-dispatch/pkg/utils"
)

// EstimateFare quotes a trip before it is requested.
func EstimateFare() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			PickupLat  float64 `form:"pickupLat" binding:"required"`
			PickupLng  float64 `form:"pickupLng" binding:"required"`
			DropoffLat float64 `form:"dropoffLat" binding:"required"`
			DropoffLng float64 `form:"dropoffLng" binding:"required"`
		}
		if err := c.ShouldBindQuery(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !utils.ValidCoordinates(input.PickupLat, input.PickupLng) || !utils.ValidCoordinates(input.DropoffLat, input.DropoffLng) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid coordinates"})
			return
		}
		fare := utils.CalculateDynamicFare(input.PickupLat, input.PickupLng, input.DropoffLat, input.DropoffLng, time.Now())
		c.JSON(http.StatusOK, gin.H{"fare": fare})
	}
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chachabrian/mooveit-dispatch/internal/auth"
	"github.com/chachabrian/mooveit-dispatch/internal/dispatch"
	"github.com/chachabrian/mooveit-dispatch/internal/middleware"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/internal/realtime"
)

// Routes holds what the HTTP surface needs.
type Routes struct {
	Orchestrator *dispatch.Orchestrator
	Sessions     SessionRevoker
	Verifier     auth.Verifier
	Realtime     *realtime.Handler
	Metrics      http.Handler
	Checks       map[string]Pinger
}

// Register mounts every route on r.
func Register(r *gin.Engine, rt Routes) {
	r.GET("/healthz", Healthz(rt.Checks))
	if rt.Metrics != nil {
		r.GET("/metrics", gin.WrapH(rt.Metrics))
	}

	if rt.Realtime != nil {
		ws := r.Group("/ws")
		{
			ws.GET("/passenger", rt.Realtime.Serve(realtime.ChannelPassenger))
			ws.GET("/driver", rt.Realtime.Serve(realtime.ChannelDriver))
			ws.GET("/admin", rt.Realtime.Serve(realtime.ChannelAdmin))
		}
	}

	api := r.Group("/api")
	api.GET("/fares/estimate", EstimateFare())

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(rt.Verifier))
	{
		orch := rt.Orchestrator

		protected.POST("/trips", middleware.RequireRole(models.UserTypePassenger), RequestTrip(orch))
		protected.GET("/trips/:tripId", GetTrip(orch))
		protected.POST("/trips/:tripId/cancel", CancelTrip(orch))

		driver := protected.Group("/")
		driver.Use(middleware.RequireRole(models.UserTypeDriver))
		{
			driver.POST("/assignments/:assignmentId/accept", AcceptAssignment(orch))
			driver.POST("/assignments/:assignmentId/reject", RejectAssignment(orch))
			driver.POST("/trips/:tripId/en-route", AdvanceTrip(orch, orch.DriverEnRoute))
			driver.POST("/trips/:tripId/arrived", AdvanceTrip(orch, orch.DriverArrivedPickup))
			driver.POST("/trips/:tripId/start", AdvanceTrip(orch, orch.StartTrip))
			driver.POST("/trips/:tripId/complete", AdvanceTrip(orch, orch.CompleteTrip))
		}

		if rt.Sessions != nil {
			protected.POST("/sessions/:sessionId/revoke", middleware.RequireRole(models.UserTypeAdmin), RevokeSession(rt.Sessions))
		}
	}
}

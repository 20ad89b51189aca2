package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/chachabrian/mooveit-dispatch/internal/auth"
	"github.com/chachabrian/mooveit-dispatch/internal/logger"
	"github.com/chachabrian/mooveit-dispatch/internal/metrics"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

// Availability receives the status reports drivers send over their socket.
type Availability interface {
	UpdateStatus(ctx context.Context, driverID string, online, available bool) error
	UpdateLocation(ctx context.Context, driverID string, p models.Point) error
	SetCurrentTrip(ctx context.Context, driverID string, tripID *string) error
	// SetVehicle binds the vehicle the driver is working with.
	SetVehicle(ctx context.Context, driverID, vehicleID string) error
}

type HandlerOptions struct {
	SendBuffer   int
	AllowOrigins []string
}

// Handler performs the websocket handshake for every channel and serves
// inbound messages.
type Handler struct {
	registry *Registry
	verifier auth.Verifier
	drivers  Availability
	opts     HandlerOptions
	upgrader websocket.Upgrader
	log      logger.Logger
	sink     metrics.Sink
}

func NewHandler(reg *Registry, verifier auth.Verifier, drivers Availability, opts HandlerOptions, log logger.Logger, sink metrics.Sink) *Handler {
	if log == nil {
		log = logger.NopLogger{}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	h := &Handler{registry: reg, verifier: verifier, drivers: drivers, opts: opts, log: log, sink: sink}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	// Browsers cannot set headers on a websocket request.
	return c.Query("token")
}

// Serve returns the gin handler of ch. A failed handshake answers with a
// bare status code and never upgrades.
func (h *Handler) Serve(ch Channel) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := h.verifier.Verify(c.Request.Context(), bearerToken(c))
		if err != nil {
			status, reason := http.StatusUnauthorized, "unauthenticated"
			if !errors.Is(err, auth.ErrAuthentication) {
				status, reason = http.StatusServiceUnavailable, "verifier_error"
				h.log.Errorf("verify %s handshake: %v", ch, err)
			}
			h.sink.RecordHandshakeRejected(ch.String(), reason)
			c.AbortWithStatus(status)
			return
		}
		if p.Role != ch.Role() {
			h.sink.RecordHandshakeRejected(ch.String(), "wrong_role")
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Warnf("WebSocket upgrade error: %v", err)
			return
		}
		conn := NewConn(p.UserID, p.Role, p.SessionID, ch, ws, h.opts.SendBuffer)
		h.Accept(c.Request.Context(), conn)
	}
}

// Accept attaches conn, greets it and pumps it until it disconnects. It
// blocks for the lifetime of the connection.
func (h *Handler) Accept(ctx context.Context, conn *Conn) {
	if err := h.registry.Attach(conn); err != nil {
		h.log.Errorf("attach: %v", err)
		_ = conn.transport.Close()
		return
	}
	defer h.registry.Detach(conn)

	greeting, _ := encode(WireHello, "", hello{Ok: true, Channel: conn.Channel.String()})
	conn.enqueue(greeting)

	go conn.writePump(h.log)
	conn.readPump(h.log, func(raw []byte) {
		if ack := h.HandleInbound(ctx, conn, raw); ack != nil {
			conn.enqueue(ack)
		}
	})
}

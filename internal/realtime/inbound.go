package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

type statusUpdate struct {
	IsOnline            bool   `json:"isOnline"`
	IsAvailableForTrips bool   `json:"isAvailableForTrips"`
	VehicleID           string `json:"vehicleId,omitempty"`
	Reason              string `json:"reason,omitempty"`
}

type locationPing struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
	// Ts is the client clock in unix milliseconds.
	Ts *int64 `json:"ts,omitempty"`
}

type tripSet struct {
	CurrentTripID *string `json:"currentTripId"`
}

type observeTrip struct {
	TripID string `json:"tripId"`
}

var (
	errMalformed   = errors.New("malformed message")
	errUnsupported = errors.New("unsupported message type")
	errNoDirectory = errors.New("availability is not configured")
)

// HandleInbound serves one client frame and returns the encoded ack.
func (h *Handler) HandleInbound(ctx context.Context, c *Conn, raw []byte) []byte {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		return ack(msg, errMalformed)
	}
	return ack(msg, h.serve(ctx, c, msg))
}

func (h *Handler) serve(ctx context.Context, c *Conn, msg Message) error {
	switch c.Channel {
	case ChannelDriver:
		return h.serveDriver(ctx, c, msg)
	case ChannelAdmin:
		return h.serveAdmin(c, msg)
	}
	return errUnsupported
}

func (h *Handler) serveDriver(ctx context.Context, c *Conn, msg Message) error {
	if h.drivers == nil {
		return errNoDirectory
	}
	switch msg.Type {
	case InStatusUpdate:
		var in statusUpdate
		if err := decodeData(msg, &in); err != nil {
			return err
		}
		if in.Reason != "" {
			h.log.Debugf("driver %s status online=%t available=%t: %s", c.OwnerID, in.IsOnline, in.IsAvailableForTrips, in.Reason)
		}
		if v := strings.TrimSpace(in.VehicleID); v != "" {
			if err := h.drivers.SetVehicle(ctx, c.OwnerID, v); err != nil {
				return err
			}
		}
		return h.drivers.UpdateStatus(ctx, c.OwnerID, in.IsOnline, in.IsAvailableForTrips)
	case InLocationPing:
		var in locationPing
		if err := decodeData(msg, &in); err != nil {
			return err
		}
		if in.Lat == nil || in.Lng == nil {
			return errors.New("lat and lng are required")
		}
		return h.drivers.UpdateLocation(ctx, c.OwnerID, models.Point{Lat: *in.Lat, Lng: *in.Lng})
	case InTripSet:
		var in tripSet
		if err := decodeData(msg, &in); err != nil {
			return err
		}
		if in.CurrentTripID != nil && strings.TrimSpace(*in.CurrentTripID) == "" {
			in.CurrentTripID = nil
		}
		return h.drivers.SetCurrentTrip(ctx, c.OwnerID, in.CurrentTripID)
	}
	return errUnsupported
}

func (h *Handler) serveAdmin(c *Conn, msg Message) error {
	switch msg.Type {
	case InObserveTrip, InUnobserveTrip:
		var in observeTrip
		if err := decodeData(msg, &in); err != nil {
			return err
		}
		if in.TripID == "" {
			return errors.New("tripId is required")
		}
		hub := h.registry.Hub(ChannelAdmin)
		if msg.Type == InUnobserveTrip {
			hub.Leave(c, EntityGroup(in.TripID))
			return nil
		}
		if !hub.Join(c, EntityGroup(in.TripID)) {
			return errors.New("connection is closed")
		}
		return nil
	}
	return errUnsupported
}

func decodeData(msg Message, v any) error {
	if len(msg.Data) == 0 {
		return errMalformed
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return errMalformed
	}
	return nil
}

func ack(msg Message, err error) []byte {
	a := Ack{Ok: err == nil, For: msg.Type}
	if err != nil {
		a.Error = err.Error()
	}
	b, _ := encode(WireAck, msg.ID, a)
	return b
}

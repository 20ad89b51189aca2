package events

import (
	"context"
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/logger"
)

// Audit returns a handler that writes one structured line per delivered
// event. Subscribe it with SubscribeAll.
func Audit(log logger.Logger) Handler {
	if log == nil {
		log = logger.NopLogger{}
	}
	return func(_ context.Context, e Event) error {
		log.Infow("event", auditFields(e))
		return nil
	}
}

func auditFields(e Event) map[string]any {
	f := map[string]any{
		"event":     string(e.Name()),
		"topic":     e.Topic().String(),
		"aggregate": e.AggregateID(),
	}
	if t, ok := e.(interface{ Occurred() time.Time }); ok && !t.Occurred().IsZero() {
		f["occurredAt"] = t.Occurred().UTC().Format(time.RFC3339Nano)
	}
	switch ev := e.(type) {
	case SessionRevoked:
		f["userId"] = ev.UserID
		f["reason"] = ev.Reason
	case interface{ Snapshot() TripSnapshot }:
		trip := ev.Snapshot()
		f["status"] = string(trip.Status)
		if trip.DriverID != "" {
			f["driverId"] = trip.DriverID
		}
	}
	return f
}

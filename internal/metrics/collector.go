package metrics

import (
	"context"

	"github.com/chachabrian/mooveit-dispatch/internal/events"
)

// Collect returns a bus handler recording every event in sink.
func Collect(sink Sink) events.Handler {
	return func(_ context.Context, e events.Event) error {
		sink.RecordTripEvent(string(e.Name()))
		switch e.(type) {
		case events.DriverAccepted:
			sink.RecordOfferOutcome("accepted")
		case events.DriverRejected:
			sink.RecordOfferOutcome("rejected")
		case events.AssignmentExpired:
			sink.RecordOfferOutcome("expired")
		}
		return nil
	}
}

package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachabrian/mooveit-dispatch/internal/events"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSink(reg)
	require.NoError(t, err)

	s.RecordOutboxDelivery("trip.started", true)
	s.RecordOutboxDelivery("trip.started", false)
	s.RecordOutboxDelivery("trip.started", false)
	s.SetArmedTimers(3)
	s.SetConnections("driver", 2)
	s.RecordRealtimeMessage("driver", "trip:assignment:offered")
	s.RecordHandshakeRejected("admin", "forbidden")

	assert.Equal(t, 1.0, testutil.ToFloat64(s.outbox.WithLabelValues("trip.started", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.outbox.WithLabelValues("trip.started", "false")))
	assert.Equal(t, 3.0, testutil.ToFloat64(s.timers))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.connections.WithLabelValues("driver")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.messages.WithLabelValues("driver", "trip:assignment:offered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.rejected.WithLabelValues("admin", "forbidden")))
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSink(reg)
	require.NoError(t, err)
	second, err := NewPromSink(reg)
	require.NoError(t, err)

	first.RecordOfferOutcome("expired")
	second.RecordOfferOutcome("expired")
	assert.Equal(t, 2.0, testutil.ToFloat64(first.offers.WithLabelValues("expired")))
}

func TestCollectCountsOffers(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSink(reg)
	require.NoError(t, err)
	h := Collect(s)

	ctx := context.Background()
	require.NoError(t, h(ctx, events.AssignmentExpired{}))
	require.NoError(t, h(ctx, events.DriverAccepted{}))
	require.NoError(t, h(ctx, events.TripStarted{}))

	assert.Equal(t, 1.0, testutil.ToFloat64(s.offers.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.offers.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.tripEvents.WithLabelValues("trip.started")))
}

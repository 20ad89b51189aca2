package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records measurements in Prometheus collectors.
type PromSink struct {
	tripEvents  *prometheus.CounterVec
	offers      *prometheus.CounterVec
	outbox      *prometheus.CounterVec
	timers      prometheus.Gauge
	connections *prometheus.GaugeVec
	messages    *prometheus.CounterVec
	rejected    *prometheus.CounterVec
}

// NewPromSink registers the collectors on reg. A nil registerer defaults to
// the global Prometheus registerer.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		tripEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_trip_events_total",
			Help: "Domain events delivered on the bus, by event name",
		}, []string{"event"}),
		offers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_offer_outcomes_total",
			Help: "Resolved driver offers, by outcome",
		}, []string{"outcome"}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_outbox_deliveries_total",
			Help: "Outbox relay delivery attempts",
		}, []string{"type", "ok"}),
		timers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_expiry_timers_armed",
			Help: "Offer expiry timers currently armed in this process",
		}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "realtime_connections",
			Help: "Live websocket connections per channel",
		}, []string{"channel"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_messages_total",
			Help: "Messages queued to websocket connections",
		}, []string{"channel", "event"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_handshakes_rejected_total",
			Help: "Websocket handshakes refused",
		}, []string{"channel", "reason"}),
	}

	var err error
	if s.tripEvents, err = register(reg, s.tripEvents); err != nil {
		return nil, err
	}
	if s.offers, err = register(reg, s.offers); err != nil {
		return nil, err
	}
	if s.outbox, err = register(reg, s.outbox); err != nil {
		return nil, err
	}
	if s.timers, err = register(reg, s.timers); err != nil {
		return nil, err
	}
	if s.connections, err = register(reg, s.connections); err != nil {
		return nil, err
	}
	if s.messages, err = register(reg, s.messages); err != nil {
		return nil, err
	}
	if s.rejected, err = register(reg, s.rejected); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when c was registered
// before, so building a second sink on the same registry is harmless.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (s *PromSink) RecordTripEvent(name string) {
	s.tripEvents.WithLabelValues(name).Inc()
}

func (s *PromSink) RecordOfferOutcome(outcome string) {
	s.offers.WithLabelValues(outcome).Inc()
}

func (s *PromSink) RecordOutboxDelivery(eventType string, ok bool) {
	s.outbox.WithLabelValues(eventType, strconv.FormatBool(ok)).Inc()
}

func (s *PromSink) SetArmedTimers(n int) {
	s.timers.Set(float64(n))
}

func (s *PromSink) SetConnections(channel string, n int) {
	s.connections.WithLabelValues(channel).Set(float64(n))
}

func (s *PromSink) RecordRealtimeMessage(channel, wireName string) {
	s.messages.WithLabelValues(channel, wireName).Inc()
}

func (s *PromSink) RecordHandshakeRejected(channel, reason string) {
	s.rejected.WithLabelValues(channel, reason).Inc()
}

// Package metrics records dispatch and delivery statistics. PromSink exports
// them to Prometheus; NopSink discards them. Collect turns bus events into
// trip and offer counters.
package metrics

// Sink receives measurements from every part of the service.
type Sink interface {
	RecordTripEvent(name string)
	RecordOfferOutcome(outcome string)
	RecordOutboxDelivery(eventType string, ok bool)
	SetArmedTimers(n int)
	SetConnections(channel string, n int)
	RecordRealtimeMessage(channel, wireName string)
	RecordHandshakeRejected(channel, reason string)
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) RecordTripEvent(string)                 {}
func (NopSink) RecordOfferOutcome(string)              {}
func (NopSink) RecordOutboxDelivery(string, bool)      {}
func (NopSink) SetArmedTimers(int)                     {}
func (NopSink) SetConnections(string, int)             {}
func (NopSink) RecordRealtimeMessage(string, string)   {}
func (NopSink) RecordHandshakeRejected(string, string) {}

package realtime

import "encoding/json"

// Outbound wire names.
const (
	WireHello           = "hello"
	WireAck             = "ack"
	WireForceDisconnect = "force:disconnect"

	WireTripRequested       = "trip:requested"
	WireAssigningStarted    = "trip:assigning_started"
	WireAssignmentOffered   = "trip:assignment:offered"
	WireAssignmentAccepted  = "trip:assignment:accepted"
	WireAssignmentRejected  = "trip:assignment:rejected"
	WireAssignmentExpired   = "trip:assignment:expired"
	WireDriverAccepted      = "trip:driver_accepted"
	WireDriverAssigned      = "trip:driver_assigned"
	WireNoDriversFound      = "trip:no_drivers_found"
	WireArrivingStarted     = "trip:arriving_started"
	WireDriverEnRoute       = "trip:driver_en_route"
	WireDriverArrivedPickup = "trip:driver_arrived_pickup"
	WireTripStarted         = "trip:started"
	WireTripCompleted       = "trip:completed"
	WireTripCancelled       = "trip:cancelled"
)

// Inbound message types.
const (
	InStatusUpdate  = "status:update"
	InLocationPing  = "location:ping"
	InTripSet       = "trip:set"
	InObserveTrip   = "observe:trip"
	InUnobserveTrip = "unobserve:trip"
)

// Message is the envelope of every frame in both directions.
type Message struct {
	Type string `json:"type"`
	// ID is echoed back in the ack of an inbound message.
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// outbound is the envelope written to clients.
type outbound struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Ack answers one inbound message.
type Ack struct {
	Ok    bool   `json:"ok"`
	For   string `json:"for,omitempty"`
	Error string `json:"error,omitempty"`
}

type hello struct {
	Ok      bool   `json:"ok"`
	Channel string `json:"channel"`
}

type forceDisconnect struct {
	Reason string `json:"reason,omitempty"`
}

func encode(wire, id string, data any) ([]byte, error) {
	return json.Marshal(outbound{Type: wire, ID: id, Data: data})
}

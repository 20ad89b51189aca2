package events

import (
	"encoding/json"
	"fmt"
)

type decodeFunc func([]byte) (Event, error)

func decoder[T Event]() decodeFunc {
	return func(b []byte) (Event, error) {
		var e T
		if err := json.Unmarshal(b, &e); err != nil {
			return nil, err
		}
		return e, nil
	}
}

var registry = map[Name]decodeFunc{
	NameTripRequested:       decoder[TripRequested](),
	NameAssigningStarted:    decoder[AssigningStarted](),
	NameDriverOffered:       decoder[DriverOffered](),
	NameDriverAccepted:      decoder[DriverAccepted](),
	NameDriverAssigned:      decoder[DriverAssigned](),
	NameDriverRejected:      decoder[DriverRejected](),
	NameAssignmentExpired:   decoder[AssignmentExpired](),
	NameNoDriversFound:      decoder[NoDriversFound](),
	NameArrivingStarted:     decoder[ArrivingStarted](),
	NameDriverEnRoute:       decoder[DriverEnRoute](),
	NameDriverArrivedPickup: decoder[DriverArrivedPickup](),
	NameTripStarted:         decoder[TripStarted](),
	NameTripCompleted:       decoder[TripCompleted](),
	NameTripCancelled:       decoder[TripCancelled](),
	NameSessionRevoked:      decoder[SessionRevoked](),
}

// Encode serializes the event payload.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// Decode rebuilds an event from its name and payload.
func Decode(name Name, payload []byte) (Event, error) {
	dec, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("events: unknown event %q", name)
	}
	e, err := dec(payload)
	if err != nil {
		return nil, fmt.Errorf("events: decode %s: %w", name, err)
	}
	return e, nil
}

// Names lists every registered event name.
func Names() []Name {
	out := make([]Name, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	return out
}

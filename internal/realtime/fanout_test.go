package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachabrian/mooveit-dispatch/internal/events"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

type allStub struct{ h events.Handler }

func (s *allStub) SubscribeAll(_ string, h events.Handler) { s.h = h }

func TestFanoutShapesContacts(t *testing.T) {
	r := NewRegistry(nil, nil)
	p := memConn(t, r, ChannelPassenger, "p1", "s-p")
	d := memConn(t, r, ChannelDriver, "d2", "s-d")
	contacts := contactStub{
		"p1": {ID: "p1", PhoneNumber: "+254700000111"},
		"d2": {ID: "d2", PhoneNumber: "+254712345678"},
	}
	bus := &allStub{}
	NewFanout(r, contacts, ViewOptions{}, nil).Listen(bus)

	require.NoError(t, bus.h(context.Background(), acceptedEvent("d2")))

	pf := drain(t, p)
	require.Len(t, pf, 1)
	var pv PassengerView
	require.NoError(t, json.Unmarshal(pf[0].Data, &pv))
	assert.Equal(t, "+2547****678", pv.Driver.Phone)

	df := drain(t, d)
	require.Len(t, df, 1)
	var dv DriverView
	require.NoError(t, json.Unmarshal(df[0].Data, &dv))
	assert.Equal(t, "+254700000111", dv.PassengerPhone)
}

func TestFanoutToleratesUnknownContacts(t *testing.T) {
	r := NewRegistry(nil, nil)
	d := memConn(t, r, ChannelDriver, "d1", "s")
	f := NewFanout(r, contactStub{}, ViewOptions{}, nil)

	require.NoError(t, f.Handle(context.Background(), offeredEvent("d1")))
	assert.Equal(t, []string{WireAssignmentOffered}, types(drain(t, d)))
}

func TestFanoutRevokesSessions(t *testing.T) {
	r := NewRegistry(nil, nil)
	c := memConn(t, r, ChannelPassenger, "p1", "s1")
	f := NewFanout(r, nil, ViewOptions{}, nil)

	require.NoError(t, f.Handle(context.Background(), events.SessionRevoked{SessionID: "s1", Reason: "admin"}))
	assert.Equal(t, []string{WireForceDisconnect}, types(drain(t, c)))
	assert.True(t, c.Closed())
}

func TestFanoutOrderPerConnection(t *testing.T) {
	r := NewRegistry(nil, nil)
	a := memConn(t, r, ChannelAdmin, "admin", "s")
	f := NewFanout(r, nil, ViewOptions{}, nil)
	ctx := context.Background()

	expired := events.AssignmentExpired{
		TripEvent:  events.TripEvent{Trip: tripSnap(models.TripStatusAssigning, "")},
		Assignment: offerSnap("a1", "d1", models.AssignmentStatusExpired),
	}
	require.NoError(t, f.Handle(ctx, expired))
	require.NoError(t, f.Handle(ctx, offeredEvent("d2")))
	require.NoError(t, f.Handle(ctx, acceptedEvent("d2")))

	assert.Equal(t, []string{WireAssignmentExpired, WireAssignmentOffered, WireAssignmentAccepted}, types(drain(t, a)))
}

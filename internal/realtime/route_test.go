package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachabrian/mooveit-dispatch/internal/events"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

func byChannel(ds []Delivery) map[Channel]Delivery {
	out := map[Channel]Delivery{}
	for _, d := range ds {
		out[d.Channel] = d
	}
	return out
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "+2547****678", MaskPhone("+254712345678"))
	assert.Equal(t, "****", MaskPhone("12345"))
	assert.Equal(t, "", MaskPhone(""))
}

func TestRouteOfferSkipsPassenger(t *testing.T) {
	ds := Route(offeredEvent("d1"), Contacts{}, ViewOptions{})
	got := byChannel(ds)
	require.Len(t, ds, 2)
	assert.NotContains(t, got, ChannelPassenger)

	drv := got[ChannelDriver]
	assert.Equal(t, WireAssignmentOffered, drv.Wire)
	assert.Equal(t, []string{"self:d1"}, drv.Groups)
	view := drv.Payload.(DriverView)
	require.NotNil(t, view.Offer)
	assert.Equal(t, "a-d1", view.Offer.AssignmentID)
	assert.Empty(t, view.PassengerPhone, "no passenger contact before acceptance")

	adm := got[ChannelAdmin]
	assert.Equal(t, WireAssignmentOffered, adm.Wire)
	assert.Equal(t, []string{GroupAdminAll, "entity:t1"}, adm.Groups)
	assert.Equal(t, "d1", adm.Payload.(AdminView).OfferedDriverID)
}

func TestRouteAcceptedShapesPerAudience(t *testing.T) {
	c := Contacts{DriverPhone: "+254712345678", PassengerPhone: "+254700000111"}
	got := byChannel(Route(acceptedEvent("d2"), c, ViewOptions{}))
	require.Len(t, got, 3)

	pv := got[ChannelPassenger].Payload.(PassengerView)
	assert.Equal(t, WireDriverAccepted, got[ChannelPassenger].Wire)
	require.NotNil(t, pv.Driver)
	assert.Equal(t, "+2547****678", pv.Driver.Phone)

	dv := got[ChannelDriver].Payload.(DriverView)
	assert.Equal(t, WireAssignmentAccepted, got[ChannelDriver].Wire)
	assert.Equal(t, "+254700000111", dv.PassengerPhone)

	av := got[ChannelAdmin].Payload.(AdminView)
	assert.Empty(t, av.DriverPhone)
	assert.Equal(t, events.NameDriverAccepted, av.Event)

	withContact := byChannel(Route(acceptedEvent("d2"), c, ViewOptions{IncludeAdminContact: true}))
	assert.Equal(t, "+254712345678", withContact[ChannelAdmin].Payload.(AdminView).DriverPhone)
}

func TestRouteAdminOnlyEvents(t *testing.T) {
	expired := events.AssignmentExpired{
		TripEvent:  events.TripEvent{Trip: tripSnap(models.TripStatusAssigning, "")},
		Assignment: offerSnap("a1", "d1", models.AssignmentStatusExpired),
	}
	rejected := events.DriverRejected{
		TripEvent:  events.TripEvent{Trip: tripSnap(models.TripStatusAssigning, "")},
		Assignment: offerSnap("a1", "d1", models.AssignmentStatusRejected),
		Reason:     "too far",
	}
	for _, e := range []events.Event{expired, rejected} {
		ds := Route(e, Contacts{}, ViewOptions{})
		require.Len(t, ds, 1, e.Name())
		assert.Equal(t, ChannelAdmin, ds[0].Channel)
	}
	assert.Equal(t, WireAssignmentExpired, Route(expired, Contacts{}, ViewOptions{})[0].Wire)
	assert.Equal(t, "too far", Route(rejected, Contacts{}, ViewOptions{})[0].Payload.(AdminView).Reason)
}

func TestRouteCancelledReachesOfferedDriver(t *testing.T) {
	a := offerSnap("a1", "d1", models.AssignmentStatusExpired)
	e := events.TripCancelled{
		TripEvent:  events.TripEvent{Trip: tripSnap(models.TripStatusCancelled, "")},
		Actor:      "p1",
		Assignment: &a,
	}
	got := byChannel(Route(e, Contacts{}, ViewOptions{}))
	require.Contains(t, got, ChannelDriver)
	assert.Equal(t, []string{"self:d1"}, got[ChannelDriver].Groups)
	assert.Equal(t, WireTripCancelled, got[ChannelPassenger].Wire)
}

func TestRouteLifecycleMirroredToDriver(t *testing.T) {
	e := events.TripStarted{TripEvent: events.TripEvent{Trip: tripSnap(models.TripStatusInProgress, "d1")}}
	got := byChannel(Route(e, Contacts{}, ViewOptions{}))
	require.Len(t, got, 3)
	assert.Equal(t, WireTripStarted, got[ChannelDriver].Wire)
	assert.Equal(t, WireTripStarted, got[ChannelPassenger].Wire)
}

func TestRouteIgnoresSessionEvents(t *testing.T) {
	assert.Empty(t, Route(events.SessionRevoked{SessionID: "s1"}, Contacts{}, ViewOptions{}))
	_, _, ok := Parties(events.SessionRevoked{SessionID: "s1"})
	assert.False(t, ok)
}

func TestEveryTripEventIsRouted(t *testing.T) {
	for _, name := range events.Names() {
		if name == events.NameSessionRevoked {
			continue
		}
		aud, ok := routes[name]
		require.True(t, ok, name)
		assert.NotEmpty(t, aud.admin, "admins see %s", name)
	}
}

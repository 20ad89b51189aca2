package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/chachabrian/mooveit-dispatch/internal/events"
	"github.com/chachabrian/mooveit-dispatch/internal/logger"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

// Messenger sends one FCM message. *messaging.Client implements it.
type Messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// ContactBook resolves a user id to its contact row.
type ContactBook interface {
	Contact(ctx context.Context, id string) (models.User, error)
}

// InitFirebase builds a messaging client from a service account file. An
// empty path disables push and returns nil.
func InitFirebase(ctx context.Context, serviceAccountPath string) (*messaging.Client, error) {
	if serviceAccountPath == "" {
		return nil, nil
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(serviceAccountPath))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}
	return client, nil
}

// NotificationPayload represents the notification data
type NotificationPayload struct {
	Title     string
	Body      string
	Data      map[string]string
	ChannelID string
	Tag       string
}

// PushNotifier sends device notifications for the moments a user is likely
// to have the app in the background: a new offer for the driver, and driver
// progress for the passenger.
type PushNotifier struct {
	messenger Messenger
	contacts  ContactBook
	log       logger.Logger
}

func NewPushNotifier(m Messenger, contacts ContactBook, log logger.Logger) *PushNotifier {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &PushNotifier{messenger: m, contacts: contacts, log: log}
}

// Listen subscribes the notifier to the events that produce a push.
func (p *PushNotifier) Listen(bus Subscriber) {
	for _, name := range []events.Name{
		events.NameDriverOffered,
		events.NameDriverAssigned,
		events.NameDriverArrivedPickup,
		events.NameTripCompleted,
		events.NameNoDriversFound,
	} {
		bus.Subscribe(name, "push", p.Handle)
	}
}

// Handle sends the push for e, if any. Push is best effort: failures are
// logged and never fail the delivery of the event.
func (p *PushNotifier) Handle(ctx context.Context, e events.Event) error {
	userID, payload, ok := pushFor(e)
	if !ok {
		return nil
	}
	if err := p.send(ctx, userID, payload); err != nil {
		p.log.Warnf("push %s to %s: %v", e.Name(), userID, err)
	}
	return nil
}

func (p *PushNotifier) send(ctx context.Context, userID string, payload NotificationPayload) error {
	user, err := p.contacts.Contact(ctx, userID)
	if errors.Is(err, ErrUnknownUser) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.FCMToken == "" {
		return nil
	}
	msg := &messaging.Message{
		Notification: &messaging.Notification{Title: payload.Title, Body: payload.Body},
		Data:         payload.Data,
		Token:        user.FCMToken,
		Android:      androidConfig(payload),
		APNS:         apnsConfig(),
	}
	id, err := p.messenger.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("error sending message: %w", err)
	}
	p.log.Debugf("sent %s to %s: %s", payload.Data["type"], userID, id)
	return nil
}

// pushFor maps an event to its recipient and notification.
func pushFor(e events.Event) (string, NotificationPayload, bool) {
	switch ev := e.(type) {
	case events.DriverOffered:
		return ev.Assignment.DriverID, NotificationPayload{
			Title:     "New Trip Request",
			Body:      fmt.Sprintf("Pickup at %s", addressOr(ev.Trip.Pickup, "your area")),
			ChannelID: "mooveit_offers",
			Tag:       "offer_" + ev.Assignment.ID,
			Data: map[string]string{
				"type":         "trip_offer",
				"tripId":       ev.Trip.ID,
				"assignmentId": ev.Assignment.ID,
				"expiresAt":    ev.Assignment.TTLExpiresAt.UTC().Format(time.RFC3339),
			},
		}, true
	case events.DriverAssigned:
		return ev.Trip.PassengerID, NotificationPayload{
			Title: "Driver Assigned",
			Body:  "A driver accepted your trip request",
			Tag:   "trip_" + ev.Trip.ID,
			Data:  map[string]string{"type": "driver_assigned", "tripId": ev.Trip.ID},
		}, true
	case events.DriverArrivedPickup:
		return ev.Trip.PassengerID, NotificationPayload{
			Title: "Driver Arrived",
			Body:  "Your driver has arrived at the pickup location",
			Tag:   "trip_" + ev.Trip.ID,
			Data:  map[string]string{"type": "driver_arrived", "tripId": ev.Trip.ID},
		}, true
	case events.TripCompleted:
		return ev.Trip.PassengerID, NotificationPayload{
			Title: "Trip Completed",
			Body:  fmt.Sprintf("Your trip is complete. Total fare: %s %.2f", ev.Trip.Currency, ev.Trip.FareEstimate),
			Tag:   "trip_" + ev.Trip.ID,
			Data:  map[string]string{"type": "trip_completed", "tripId": ev.Trip.ID},
		}, true
	case events.NoDriversFound:
		return ev.Trip.PassengerID, NotificationPayload{
			Title: "No Drivers Available",
			Body:  "We could not find a driver nearby. Please try again shortly",
			Tag:   "trip_" + ev.Trip.ID,
			Data:  map[string]string{"type": "no_drivers_found", "tripId": ev.Trip.ID},
		}, true
	}
	return "", NotificationPayload{}, false
}

func addressOr(p models.Point, fallback string) string {
	if p.Address != "" {
		return p.Address
	}
	return fallback
}

func androidConfig(payload NotificationPayload) *messaging.AndroidConfig {
	channelID := payload.ChannelID
	if channelID == "" {
		channelID = "mooveit_default"
	}
	return &messaging.AndroidConfig{
		Priority: "high",
		Notification: &messaging.AndroidNotification{
			Sound:                 "default",
			ChannelID:             channelID,
			Priority:              messaging.PriorityHigh,
			DefaultSound:          true,
			Icon:                  "ic_stat_logo",
			Color:                 "#7FFF00",
			Tag:                   payload.Tag,
			DefaultVibrateTimings: true,
		},
	}
}

func apnsConfig() *messaging.APNSConfig {
	badge := 1
	return &messaging.APNSConfig{
		Payload: &messaging.APNSPayload{
			Aps: &messaging.Aps{
				Sound:            "default",
				Badge:            &badge,
				MutableContent:   true,
				ContentAvailable: true,
			},
		},
	}
}

// Package dispatch drives a trip from request to a terminal outcome.
//
// Each operation runs as one unit of work: it re-reads the rows it touches,
// checks the required prior status, writes with that status as a guard and
// appends the resulting events to the outbox. Timers and the relay are only
// touched after the unit commits.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chachabrian/mooveit-dispatch/internal/events"
	"github.com/chachabrian/mooveit-dispatch/internal/logger"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/internal/outbox"
	"github.com/chachabrian/mooveit-dispatch/internal/store"
	"github.com/chachabrian/mooveit-dispatch/pkg/utils"
)

// AssignOptions controls candidate search and offer lifetime.
type AssignOptions struct {
	SearchRadiusMeters float64
	MaxCandidates      int
	OfferTTL           time.Duration
}

func (o AssignOptions) validate() error {
	if o.SearchRadiusMeters <= 0 || o.MaxCandidates <= 0 || o.OfferTTL <= 0 {
		return fmt.Errorf("%w: radius, candidates and offer ttl must be positive", ErrBadRequest)
	}
	return nil
}

type Options struct {
	Assign          AssignOptions
	AverageSpeedKmh float64
	Currency        string
}

// Deps are the collaborators of the orchestrator. Only Store and Selector
// are required.
type Deps struct {
	Store     store.Store
	Selector  CandidateSelector
	Locations LocationLookup
	Timers    Timers
	Notifier  Notifier
	Log       logger.Logger
}

type Orchestrator struct {
	store     store.Store
	selector  CandidateSelector
	locations LocationLookup
	timers    Timers
	notifier  Notifier
	opts      Options
	log       logger.Logger
	now       func() time.Time
}

func New(deps Deps, opts Options) *Orchestrator {
	o := &Orchestrator{
		store:     deps.Store,
		selector:  deps.Selector,
		locations: deps.Locations,
		timers:    deps.Timers,
		notifier:  deps.Notifier,
		opts:      opts,
		log:       deps.Log,
		now:       time.Now,
	}
	if o.timers == nil {
		o.timers = nopTimers{}
	}
	if o.notifier == nil {
		o.notifier = nopNotifier{}
	}
	if o.log == nil {
		o.log = logger.NopLogger{}
	}
	if o.opts.Currency == "" {
		o.opts.Currency = "KES"
	}
	return o
}

// unit is one committed-or-discarded piece of work.
type unit struct {
	ctx   context.Context
	repo  store.Repository
	now   time.Time
	after []func()
}

func (u *unit) emit(e events.Event) error {
	return outbox.Append(u.ctx, u.repo, e, u.now)
}

func (u *unit) tripEvent(t models.Trip) events.TripEvent {
	return events.TripEvent{Trip: events.NewTripSnapshot(t), OccurredAt: u.now}
}

func (u *unit) getTrip(id string) (models.Trip, error) {
	t, err := u.repo.GetTrip(u.ctx, id)
	return t, notFound(err, "trip", id)
}

func (u *unit) getAssignment(id string) (models.Assignment, error) {
	a, err := u.repo.GetAssignment(u.ctx, id)
	return a, notFound(err, "assignment", id)
}

// saveTrip writes t guarded on from.
func (u *unit) saveTrip(t models.Trip, from models.TripStatus) error {
	ok, err := u.repo.UpdateTrip(u.ctx, t, from)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: trip %s left %s", ErrStateConflict, t.ID, from)
	}
	return nil
}

func (u *unit) saveAssignment(a models.Assignment, from models.AssignmentStatus) error {
	ok, err := u.repo.UpdateAssignment(u.ctx, a, from)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: assignment %s left %s", ErrStateConflict, a.ID, from)
	}
	return nil
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return err
}

func (o *Orchestrator) run(ctx context.Context, fn func(u *unit) error) error {
	var u *unit
	err := o.store.Transact(ctx, func(r store.Repository) error {
		u = &unit{ctx: ctx, repo: r, now: o.now()}
		return fn(u)
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateOffer) {
			return fmt.Errorf("%w: %v", ErrStateConflict, err)
		}
		return err
	}
	for _, f := range u.after {
		f()
	}
	o.notifier.Notify()
	return nil
}

// RequestTripCommand describes a new ride request.
type RequestTripCommand struct {
	PassengerID string
	Pickup      models.Point
	Dropoff     *models.Point
}

// RequestTrip creates a pending trip and immediately starts assigning it with
// the configured options. The returned trip reflects the assigning outcome.
func (o *Orchestrator) RequestTrip(ctx context.Context, cmd RequestTripCommand) (models.Trip, error) {
	if cmd.PassengerID == "" || !utils.ValidCoordinates(cmd.Pickup.Lat, cmd.Pickup.Lng) {
		return models.Trip{}, fmt.Errorf("%w: passenger and a valid pickup are required", ErrBadRequest)
	}
	if cmd.Dropoff != nil && !utils.ValidCoordinates(cmd.Dropoff.Lat, cmd.Dropoff.Lng) {
		return models.Trip{}, fmt.Errorf("%w: invalid dropoff", ErrBadRequest)
	}
	if err := o.opts.Assign.validate(); err != nil {
		return models.Trip{}, err
	}

	now := o.now()
	trip := models.Trip{
		ID:             uuid.NewString(),
		PassengerID:    cmd.PassengerID,
		Status:         models.TripStatusPending,
		PickupLat:      cmd.Pickup.Lat,
		PickupLng:      cmd.Pickup.Lng,
		PickupAddress:  cmd.Pickup.Address,
		Currency:       o.opts.Currency,
		OfferTTLMillis: o.opts.Assign.OfferTTL.Milliseconds(),
		RequestedAt:    now,
		UpdatedAt:      now,
	}
	if d := cmd.Dropoff; d != nil {
		lat, lng := d.Lat, d.Lng
		trip.DropoffLat, trip.DropoffLng, trip.DropoffAddr = &lat, &lng, d.Address
		trip.FareEstimate = utils.CalculateDynamicFare(cmd.Pickup.Lat, cmd.Pickup.Lng, lat, lng, now).TotalFare
	}

	err := o.run(ctx, func(u *unit) error {
		if err := u.repo.CreateTrip(ctx, &trip); err != nil {
			return err
		}
		return u.emit(events.TripRequested{TripEvent: u.tripEvent(trip)})
	})
	if err != nil {
		return models.Trip{}, err
	}
	o.log.Infof("trip %s requested by %s", trip.ID, trip.PassengerID)

	if err := o.StartAssigning(ctx, trip.ID, o.opts.Assign); err != nil {
		return trip, fmt.Errorf("start assigning %s: %w", trip.ID, err)
	}
	return o.GetTrip(ctx, trip.ID)
}

// StartAssigning ranks candidates for a pending trip and offers it to the
// first one. With no candidates the trip goes straight to no_drivers_found.
func (o *Orchestrator) StartAssigning(ctx context.Context, tripID string, opts AssignOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}
	trip, err := o.GetTrip(ctx, tripID)
	if err != nil {
		return err
	}
	if trip.Status != models.TripStatusPending {
		return fmt.Errorf("%w: trip %s is %s", ErrStateConflict, tripID, trip.Status)
	}

	candidates, err := o.selector.Rank(ctx, trip.Pickup(), opts.SearchRadiusMeters, opts.MaxCandidates)
	if err != nil {
		return fmt.Errorf("rank candidates: %w", err)
	}
	if len(candidates) > opts.MaxCandidates {
		candidates = candidates[:opts.MaxCandidates]
	}

	return o.run(ctx, func(u *unit) error {
		trip, err := u.getTrip(tripID)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			trip.Status = models.TripStatusNoDriversFound
			if err := u.saveTrip(trip, models.TripStatusPending); err != nil {
				return err
			}
			o.log.Infof("trip %s: no candidates within %.0fm", tripID, opts.SearchRadiusMeters)
			return u.emit(events.NoDriversFound{TripEvent: u.tripEvent(trip)})
		}

		trip.Status = models.TripStatusAssigning
		trip.Candidates = candidates
		trip.NextCandidate = 0
		trip.OfferTTLMillis = opts.OfferTTL.Milliseconds()
		if err := u.saveTrip(trip, models.TripStatusPending); err != nil {
			return err
		}
		if err := u.emit(events.AssigningStarted{TripEvent: u.tripEvent(trip), CandidateCount: len(candidates)}); err != nil {
			return err
		}
		return o.offerNext(u, trip, opts.OfferTTL)
	})
}

// offerNext offers the trip to the candidate under the cursor, or ends the
// search when the ranked list is used up. The trip must be assigning.
func (o *Orchestrator) offerNext(u *unit, trip models.Trip, ttl time.Duration) error {
	if trip.NextCandidate >= len(trip.Candidates) {
		trip.Status = models.TripStatusNoDriversFound
		if err := u.saveTrip(trip, models.TripStatusAssigning); err != nil {
			return err
		}
		o.log.Infof("trip %s: all %d candidates declined", trip.ID, len(trip.Candidates))
		return u.emit(events.NoDriversFound{TripEvent: u.tripEvent(trip), Offered: len(trip.Candidates)})
	}

	rank := trip.NextCandidate
	c := trip.Candidates[rank]
	a := models.Assignment{
		ID:           uuid.NewString(),
		TripID:       trip.ID,
		DriverID:     c.DriverID,
		VehicleID:    c.VehicleID,
		Status:       models.AssignmentStatusOffered,
		TTLExpiresAt: u.now.Add(ttl),
		OfferedAt:    u.now,
	}
	if err := u.repo.CreateAssignment(u.ctx, &a); err != nil {
		return err
	}
	trip.NextCandidate = rank + 1
	if err := u.saveTrip(trip, models.TripStatusAssigning); err != nil {
		return err
	}
	u.after = append(u.after, func() { o.timers.Schedule(a.ID, a.TTLExpiresAt) })
	o.log.Debugf("trip %s offered to driver %s (rank %d)", trip.ID, c.DriverID, rank)
	return u.emit(events.DriverOffered{
		TripEvent:  u.tripEvent(trip),
		Assignment: events.NewAssignmentSnapshot(a),
		Rank:       rank,
	})
}

func (o *Orchestrator) offerTTL(t models.Trip) time.Duration {
	if t.OfferTTLMillis > 0 {
		return time.Duration(t.OfferTTLMillis) * time.Millisecond
	}
	return o.opts.Assign.OfferTTL
}

// AcceptOffer assigns the trip to the driver holding the open offer.
func (o *Orchestrator) AcceptOffer(ctx context.Context, assignmentID, driverID string) (models.Trip, error) {
	var accepted models.Trip
	err := o.run(ctx, func(u *unit) error {
		a, err := u.getAssignment(assignmentID)
		if err != nil {
			return err
		}
		if a.DriverID != driverID {
			return fmt.Errorf("%w: assignment %s belongs to another driver", ErrForbidden, assignmentID)
		}
		if a.Status != models.AssignmentStatusOffered {
			return fmt.Errorf("%w: assignment %s is %s", ErrStateConflict, assignmentID, a.Status)
		}
		trip, err := u.getTrip(a.TripID)
		if err != nil {
			return err
		}
		if trip.Status != models.TripStatusAssigning {
			return fmt.Errorf("%w: trip %s is %s", ErrStateConflict, trip.ID, trip.Status)
		}

		a.Status = models.AssignmentStatusAccepted
		a.RespondedAt = &u.now
		if err := u.saveAssignment(a, models.AssignmentStatusOffered); err != nil {
			return err
		}
		trip.Status = models.TripStatusAccepted
		trip.DriverID = &a.DriverID
		trip.VehicleID = &a.VehicleID
		trip.AcceptedAt = &u.now
		if err := u.saveTrip(trip, models.TripStatusAssigning); err != nil {
			return err
		}
		u.after = append(u.after, func() { o.timers.Cancel(a.ID) })

		te, snap := u.tripEvent(trip), events.NewAssignmentSnapshot(a)
		if err := u.emit(events.DriverAccepted{TripEvent: te, Assignment: snap}); err != nil {
			return err
		}
		accepted = trip
		return u.emit(events.DriverAssigned{TripEvent: te, Assignment: snap})
	})
	if err != nil {
		return models.Trip{}, err
	}
	o.log.Infof("trip %s accepted by driver %s", accepted.ID, driverID)
	return accepted, nil
}

// RejectOffer records the driver's refusal and moves on to the next ranked
// candidate. An empty driverID skips the ownership check.
func (o *Orchestrator) RejectOffer(ctx context.Context, assignmentID, driverID, reason string) error {
	return o.run(ctx, func(u *unit) error {
		a, err := u.getAssignment(assignmentID)
		if err != nil {
			return err
		}
		if driverID != "" && a.DriverID != driverID {
			return fmt.Errorf("%w: assignment %s belongs to another driver", ErrForbidden, assignmentID)
		}
		return o.resolve(u, a, models.AssignmentStatusRejected, reason)
	})
}

// ExpireOffer resolves an offer whose deadline passed. It returns
// ErrStateConflict without side effects when the offer is already resolved.
func (o *Orchestrator) ExpireOffer(ctx context.Context, assignmentID string) error {
	return o.run(ctx, func(u *unit) error {
		a, err := u.getAssignment(assignmentID)
		if err != nil {
			return err
		}
		return o.resolve(u, a, models.AssignmentStatusExpired, "")
	})
}

func (o *Orchestrator) resolve(u *unit, a models.Assignment, to models.AssignmentStatus, reason string) error {
	if a.Status != models.AssignmentStatusOffered {
		return fmt.Errorf("%w: assignment %s is %s", ErrStateConflict, a.ID, a.Status)
	}
	trip, err := u.getTrip(a.TripID)
	if err != nil {
		return err
	}
	if trip.Status != models.TripStatusAssigning {
		return fmt.Errorf("%w: trip %s is %s", ErrStateConflict, trip.ID, trip.Status)
	}

	a.Status = to
	a.RespondedAt = &u.now
	if reason != "" {
		a.RejectReason = &reason
	}
	if err := u.saveAssignment(a, models.AssignmentStatusOffered); err != nil {
		return err
	}
	u.after = append(u.after, func() { o.timers.Cancel(a.ID) })

	te, snap := u.tripEvent(trip), events.NewAssignmentSnapshot(a)
	var e events.Event = events.AssignmentExpired{TripEvent: te, Assignment: snap}
	if to == models.AssignmentStatusRejected {
		e = events.DriverRejected{TripEvent: te, Assignment: snap, Reason: reason}
	}
	if err := u.emit(e); err != nil {
		return err
	}
	o.log.Infof("trip %s: offer to driver %s %s", trip.ID, a.DriverID, to)
	return o.offerNext(u, trip, o.offerTTL(trip))
}

// StartArriving moves an accepted trip to arriving and records the pickup
// ETA. It is triggered by the DriverAccepted event.
func (o *Orchestrator) StartArriving(ctx context.Context, tripID string) error {
	trip, err := o.GetTrip(ctx, tripID)
	if err != nil {
		return err
	}
	if trip.Status != models.TripStatusAccepted || trip.DriverID == nil {
		return fmt.Errorf("%w: trip %s is %s", ErrStateConflict, tripID, trip.Status)
	}
	eta := o.pickupETA(ctx, trip)

	return o.run(ctx, func(u *unit) error {
		trip, err := u.getTrip(tripID)
		if err != nil {
			return err
		}
		if trip.Status != models.TripStatusAccepted {
			return fmt.Errorf("%w: trip %s is %s", ErrStateConflict, tripID, trip.Status)
		}
		trip.Status = models.TripStatusArriving
		trip.EtaMinutes = &eta
		if err := u.saveTrip(trip, models.TripStatusAccepted); err != nil {
			return err
		}
		return u.emit(events.ArrivingStarted{TripEvent: u.tripEvent(trip), EtaMinutes: eta})
	})
}

// pickupETA uses the driver's live position when known and falls back to the
// distance recorded when the driver was ranked.
func (o *Orchestrator) pickupETA(ctx context.Context, trip models.Trip) int {
	km := -1.0
	if o.locations != nil {
		p, err := o.locations.LastLocation(ctx, *trip.DriverID)
		if err != nil {
			o.log.Warnf("trip %s: driver location lookup failed: %v", trip.ID, err)
		} else if p != nil {
			km = utils.HaversineDistance(p.Lat, p.Lng, trip.PickupLat, trip.PickupLng)
		}
	}
	if km < 0 {
		km = 0
		for _, c := range trip.Candidates {
			if c.DriverID == *trip.DriverID {
				km = c.DistanceMeters / 1000
				break
			}
		}
	}
	return utils.CalculateETA(km, o.opts.AverageSpeedKmh)
}

// DriverEnRoute records that the assigned driver is heading to the pickup.
func (o *Orchestrator) DriverEnRoute(ctx context.Context, tripID, driverID string) error {
	return o.driverStep(ctx, tripID, driverID, models.TripStatusArriving, models.TripStatusArriving,
		func(u *unit, t *models.Trip) events.Event {
			t.EnRouteAt = &u.now
			return events.DriverEnRoute{TripEvent: u.tripEvent(*t)}
		})
}

// DriverArrivedPickup records that the assigned driver reached the pickup.
func (o *Orchestrator) DriverArrivedPickup(ctx context.Context, tripID, driverID string) error {
	return o.driverStep(ctx, tripID, driverID, models.TripStatusArriving, models.TripStatusArriving,
		func(u *unit, t *models.Trip) events.Event {
			t.ArrivedAt = &u.now
			return events.DriverArrivedPickup{TripEvent: u.tripEvent(*t)}
		})
}

func (o *Orchestrator) StartTrip(ctx context.Context, tripID, driverID string) error {
	return o.driverStep(ctx, tripID, driverID, models.TripStatusArriving, models.TripStatusInProgress,
		func(u *unit, t *models.Trip) events.Event {
			t.StartedAt = &u.now
			return events.TripStarted{TripEvent: u.tripEvent(*t)}
		})
}

func (o *Orchestrator) CompleteTrip(ctx context.Context, tripID, driverID string) error {
	return o.driverStep(ctx, tripID, driverID, models.TripStatusInProgress, models.TripStatusCompleted,
		func(u *unit, t *models.Trip) events.Event {
			t.CompletedAt = &u.now
			return events.TripCompleted{TripEvent: u.tripEvent(*t)}
		})
}

// driverStep is a transition performed by the assigned driver. from and to
// may be equal for steps that only stamp a timestamp.
func (o *Orchestrator) driverStep(ctx context.Context, tripID, driverID string, from, to models.TripStatus,
	apply func(u *unit, t *models.Trip) events.Event) error {
	err := o.run(ctx, func(u *unit) error {
		trip, err := u.getTrip(tripID)
		if err != nil {
			return err
		}
		if trip.DriverID == nil || *trip.DriverID != driverID {
			return fmt.Errorf("%w: trip %s is not assigned to %s", ErrForbidden, tripID, driverID)
		}
		if trip.Status != from {
			return fmt.Errorf("%w: trip %s is %s", ErrStateConflict, tripID, trip.Status)
		}
		trip.Status = to
		e := apply(u, &trip)
		if err := u.saveTrip(trip, from); err != nil {
			return err
		}
		return u.emit(e)
	})
	if err == nil {
		o.log.Infof("trip %s: driver %s %s", tripID, driverID, to)
	}
	return err
}

// CancelTrip cancels a trip that has not been picked up yet. An open offer is
// withdrawn in the same unit of work.
func (o *Orchestrator) CancelTrip(ctx context.Context, tripID string, actor Actor, reason string) error {
	return o.run(ctx, func(u *unit) error {
		trip, err := u.getTrip(tripID)
		if err != nil {
			return err
		}
		switch actor.Role {
		case models.UserTypeAdmin:
		case models.UserTypePassenger:
			if trip.PassengerID != actor.ID {
				return fmt.Errorf("%w: trip %s belongs to another passenger", ErrForbidden, tripID)
			}
		case models.UserTypeDriver:
			if trip.DriverID == nil || *trip.DriverID != actor.ID {
				return fmt.Errorf("%w: trip %s is not assigned to %s", ErrForbidden, tripID, actor.ID)
			}
		default:
			return fmt.Errorf("%w: unknown role %q", ErrForbidden, actor.Role)
		}
		if !CanTransition(trip.Status, models.TripStatusCancelled) {
			return fmt.Errorf("%w: trip %s is %s", ErrStateConflict, tripID, trip.Status)
		}

		from := trip.Status
		cancelled := events.TripCancelled{Actor: string(actor.Role), Reason: reason}
		if from == models.TripStatusAssigning {
			a, err := u.repo.FindOfferedAssignment(u.ctx, tripID)
			switch {
			case err == nil:
				a.Status = models.AssignmentStatusExpired
				a.RespondedAt = &u.now
				if err := u.saveAssignment(a, models.AssignmentStatusOffered); err != nil {
					return err
				}
				snap := events.NewAssignmentSnapshot(a)
				cancelled.Assignment = &snap
				u.after = append(u.after, func() { o.timers.Cancel(a.ID) })
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		trip.Status = models.TripStatusCancelled
		trip.CancelledAt = &u.now
		if reason != "" {
			trip.CancelReason = &reason
		}
		if err := u.saveTrip(trip, from); err != nil {
			return err
		}
		cancelled.TripEvent = u.tripEvent(trip)
		o.log.Infof("trip %s cancelled by %s %s", tripID, actor.Role, actor.ID)
		return u.emit(cancelled)
	})
}

func (o *Orchestrator) GetTrip(ctx context.Context, tripID string) (models.Trip, error) {
	t, err := o.store.GetTrip(ctx, tripID)
	return t, notFound(err, "trip", tripID)
}

// GetAssignment returns one offer.
func (o *Orchestrator) GetAssignment(ctx context.Context, assignmentID string) (models.Assignment, error) {
	a, err := o.store.GetAssignment(ctx, assignmentID)
	return a, notFound(err, "assignment", assignmentID)
}

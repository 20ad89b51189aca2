package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachabrian/mooveit-dispatch/internal/events"
	"github.com/chachabrian/mooveit-dispatch/internal/logger"
	"github.com/chachabrian/mooveit-dispatch/internal/metrics"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/internal/store"
)

type recordingBus struct {
	mu   sync.Mutex
	got  []events.Event
	fail func(events.Event) error
}

func (b *recordingBus) Deliver(_ context.Context, e events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		if err := b.fail(e); err != nil {
			return err
		}
	}
	b.got = append(b.got, e)
	return nil
}

func (b *recordingBus) names() []events.Name {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Name
	for _, e := range b.got {
		out = append(out, e.Name())
	}
	return out
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func trip(id string) events.TripEvent {
	return events.TripEvent{Trip: events.TripSnapshot{ID: id}}
}

func appendAll(t *testing.T, s *store.MemoryStore, at time.Time, evs ...events.Event) {
	t.Helper()
	require.NoError(t, s.Transact(context.Background(), func(r store.Repository) error {
		for _, e := range evs {
			if err := Append(context.Background(), r, e, at); err != nil {
				return err
			}
		}
		return nil
	}))
}

func newRelay(s store.Repository, bus Deliverer, opts Options, c *clock) *Relay {
	r := NewRelay(s, bus, opts, logger.NopLogger{}, metrics.NopSink{})
	r.now = c.Now
	return r
}

func TestAppendEncodesEvent(t *testing.T) {
	s := store.NewMemoryStore()
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	appendAll(t, s, at, events.TripStarted{TripEvent: trip("t1")})

	rows := s.Outbox()
	require.Len(t, rows, 1)
	assert.Equal(t, "trip.started", rows[0].Type)
	assert.Equal(t, "t1", rows[0].AggregateID)
	assert.Equal(t, models.OutboxStatusPending, rows[0].Status)
	assert.Equal(t, at, rows[0].CreatedAt)

	e, err := events.Decode(events.NameTripStarted, rows[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "t1", e.AggregateID())
}

func TestFlushDeliversInCreationOrder(t *testing.T) {
	s := store.NewMemoryStore()
	c := &clock{t: time.Now()}
	appendAll(t, s, c.Now(),
		events.TripRequested{TripEvent: trip("t1")},
		events.AssigningStarted{TripEvent: trip("t1")},
		events.DriverOffered{TripEvent: trip("t1")},
	)
	bus := &recordingBus{}
	r := newRelay(s, bus, Options{}, c)

	n, err := r.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []events.Name{events.NameTripRequested, events.NameAssigningStarted, events.NameDriverOffered}, bus.names())
	for _, row := range s.Outbox() {
		assert.Equal(t, models.OutboxStatusSent, row.Status)
		assert.NotNil(t, row.SentAt)
	}

	n, err = r.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "sent rows are not delivered twice")
}

func TestFailedRowIsRetriedAfterBackoffByAFreshRelay(t *testing.T) {
	s := store.NewMemoryStore()
	c := &clock{t: time.Now()}
	appendAll(t, s, c.Now(), events.TripCompleted{TripEvent: trip("t1")})

	failing := &recordingBus{fail: func(events.Event) error { return errors.New("socket closed") }}
	opts := Options{RetryBase: 2 * time.Second, RetryMax: time.Minute}
	_, err := newRelay(s, failing, opts, c).Flush(context.Background())
	require.NoError(t, err)

	row := s.Outbox()[0]
	assert.Equal(t, models.OutboxStatusFailed, row.Status)
	assert.Equal(t, 1, row.Attempts)
	require.NotNil(t, row.FailReason)
	assert.Equal(t, "socket closed", *row.FailReason)
	require.NotNil(t, row.NextAttemptAt)
	assert.Equal(t, c.Now().Add(2*time.Second), *row.NextAttemptAt)

	// A restarted process picks the row up once it is due.
	healthy := &recordingBus{}
	restarted := newRelay(s, healthy, opts, c)
	n, err := restarted.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	c.Advance(2 * time.Second)
	n, err = restarted.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.OutboxStatusSent, s.Outbox()[0].Status)
	assert.Equal(t, []events.Name{events.NameTripCompleted}, healthy.names())
}

func TestMaxAttemptsParksRow(t *testing.T) {
	s := store.NewMemoryStore()
	c := &clock{t: time.Now()}
	appendAll(t, s, c.Now(), events.TripStarted{TripEvent: trip("t1")})

	bus := &recordingBus{fail: func(events.Event) error { return errors.New("down") }}
	r := newRelay(s, bus, Options{MaxAttempts: 2, RetryBase: time.Second, RetryMax: time.Second}, c)
	for i := 0; i < 4; i++ {
		_, err := r.Flush(context.Background())
		require.NoError(t, err)
		c.Advance(time.Hour)
	}

	row := s.Outbox()[0]
	assert.Equal(t, models.OutboxStatusFailed, row.Status)
	assert.Equal(t, 2, row.Attempts)
	assert.Nil(t, row.NextAttemptAt)
}

func TestFailureHoldsBackSameTripOnly(t *testing.T) {
	s := store.NewMemoryStore()
	c := &clock{t: time.Now()}
	appendAll(t, s, c.Now(),
		events.AssignmentExpired{TripEvent: trip("t1")},
		events.TripStarted{TripEvent: trip("t2")},
		events.DriverOffered{TripEvent: trip("t1")},
	)
	bus := &recordingBus{fail: func(e events.Event) error {
		if e.Name() == events.NameAssignmentExpired {
			return errors.New("boom")
		}
		return nil
	}}

	n, err := newRelay(s, bus, Options{}, c).Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []events.Name{events.NameTripStarted}, bus.names())

	statuses := map[string]models.OutboxStatus{}
	for _, row := range s.Outbox() {
		statuses[row.Type] = row.Status
	}
	assert.Equal(t, models.OutboxStatusFailed, statuses["trip.assignment.expired"])
	assert.Equal(t, models.OutboxStatusPending, statuses["trip.assignment.offered"])
}

func TestTripOrderSurvivesRetryAcrossFlushes(t *testing.T) {
	s := store.NewMemoryStore()
	c := &clock{t: time.Now()}
	appendAll(t, s, c.Now(), events.DriverOffered{TripEvent: trip("t1")})

	down := true
	bus := &recordingBus{fail: func(events.Event) error {
		if down {
			return errors.New("socket closed")
		}
		return nil
	}}
	r := newRelay(s, bus, Options{RetryBase: 10 * time.Second, RetryMax: time.Minute}, c)
	_, err := r.Flush(context.Background())
	require.NoError(t, err)
	down = false

	c.Advance(time.Second)
	appendAll(t, s, c.Now(), events.AssignmentExpired{TripEvent: trip("t1")})
	n, err := r.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "expiry waits for the offer to go out")

	c.Advance(20 * time.Second)
	n, err = r.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []events.Name{events.NameDriverOffered, events.NameAssignmentExpired}, bus.names())
}

func TestUndecodableRowFails(t *testing.T) {
	s := store.NewMemoryStore()
	c := &clock{t: time.Now()}
	require.NoError(t, s.AppendOutbox(context.Background(), &models.OutboxEntry{
		ID: "x", Type: "trip.unknown", Payload: []byte(`{}`), CreatedAt: c.Now(),
	}))

	_, err := newRelay(s, &recordingBus{}, Options{}, c).Flush(context.Background())
	require.NoError(t, err)
	row := s.Outbox()[0]
	assert.Equal(t, models.OutboxStatusFailed, row.Status)
	assert.Contains(t, *row.FailReason, "unknown event")
}

func TestRunFlushesOnNotify(t *testing.T) {
	s := store.NewMemoryStore()
	bus := &recordingBus{}
	r := NewRelay(s, bus, Options{PollInterval: time.Hour}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx)
		close(done)
	}()

	appendAll(t, s, time.Now(), events.TripStarted{TripEvent: trip("t1")})
	r.Notify()

	assert.Eventually(t, func() bool { return len(bus.names()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestRetryDelayDoublesUpToCap(t *testing.T) {
	r := NewRelay(store.NewMemoryStore(), &recordingBus{}, Options{RetryBase: time.Second, RetryMax: 5 * time.Second}, nil, nil)
	var got []time.Duration
	for attempt := 1; attempt <= 5; attempt++ {
		got = append(got, r.retryDelay(attempt))
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}, got)
}

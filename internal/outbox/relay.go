package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/chachabrian/mooveit-dispatch/internal/events"
	"github.com/chachabrian/mooveit-dispatch/internal/logger"
	"github.com/chachabrian/mooveit-dispatch/internal/metrics"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/internal/store"
)

// Deliverer hands one event to its subscribers and reports whether every one
// of them succeeded.
type Deliverer interface {
	Deliver(ctx context.Context, e events.Event) error
}

// Options tunes the relay.
type Options struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxAttempts parks a row as failed once reached. Zero retries forever.
	MaxAttempts int
	RetryBase   time.Duration
	RetryMax    time.Duration
}

func (o *Options) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.RetryBase <= 0 {
		o.RetryBase = time.Second
	}
	if o.RetryMax < o.RetryBase {
		o.RetryMax = o.RetryBase
	}
}

// Relay polls the outbox and delivers due rows in creation order.
type Relay struct {
	repo    store.Repository
	bus     Deliverer
	opts    Options
	log     logger.Logger
	metrics metrics.Sink
	now     func() time.Time

	flushMu sync.Mutex
	wake    chan struct{}
}

func NewRelay(repo store.Repository, bus Deliverer, opts Options, log logger.Logger, sink metrics.Sink) *Relay {
	opts.setDefaults()
	if log == nil {
		log = logger.NopLogger{}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Relay{
		repo:    repo,
		bus:     bus,
		opts:    opts,
		log:     log,
		metrics: sink,
		now:     time.Now,
		wake:    make(chan struct{}, 1),
	}
}

// Notify asks the running relay to flush now instead of at the next tick.
// It never blocks; repeated calls before the flush coalesce.
func (r *Relay) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run flushes on every tick and notification until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	r.log.Infof("outbox relay started (interval=%s batch=%d)", r.opts.PollInterval, r.opts.BatchSize)
	for {
		if _, err := r.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Errorf("outbox flush: %v", err)
		}
		select {
		case <-ctx.Done():
			r.log.Infof("outbox relay stopped")
			return nil
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

// Flush delivers one batch of due rows and returns how many were sent. Only
// one flush runs at a time.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	rows, err := r.repo.ClaimDueOutbox(ctx, r.now(), r.opts.BatchSize, r.opts.MaxAttempts)
	if err != nil {
		return 0, err
	}
	sent := 0
	// A failed row holds back later rows of the same aggregate so one trip's
	// events are never delivered out of order.
	blocked := make(map[string]bool)
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if blocked[row.AggregateID] {
			continue
		}
		if r.deliver(ctx, row) {
			sent++
		} else if row.AggregateID != "" {
			blocked[row.AggregateID] = true
		}
	}
	return sent, nil
}

func (r *Relay) deliver(ctx context.Context, row models.OutboxEntry) bool {
	e, err := events.Decode(events.Name(row.Type), row.Payload)
	if err == nil {
		err = r.bus.Deliver(ctx, e)
	}
	if err == nil {
		r.metrics.RecordOutboxDelivery(row.Type, true)
		if err := r.repo.MarkOutboxSent(ctx, row.ID, r.now()); err != nil {
			r.log.Errorf("outbox %s delivered but not marked sent: %v", row.ID, err)
		}
		return true
	}

	r.metrics.RecordOutboxDelivery(row.Type, false)
	attempts := row.Attempts + 1
	var next *time.Time
	if r.opts.MaxAttempts == 0 || attempts < r.opts.MaxAttempts {
		at := r.now().Add(r.retryDelay(attempts))
		next = &at
		r.log.Warnf("outbox %s (%s) attempt %d failed, retry at %s: %v", row.ID, row.Type, attempts, at.Format(time.RFC3339), err)
	} else {
		r.log.Errorf("outbox %s (%s) gave up after %d attempts: %v", row.ID, row.Type, attempts, err)
	}
	if mErr := r.repo.MarkOutboxFailed(ctx, row.ID, err.Error(), next); mErr != nil {
		r.log.Errorf("outbox %s not marked failed: %v", row.ID, mErr)
	}
	return false
}

// retryDelay is RetryBase doubled per previous attempt, capped at RetryMax.
func (r *Relay) retryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.RetryBase
	b.MaxInterval = r.opts.RetryMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	d := b.InitialInterval
	for i := 0; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}

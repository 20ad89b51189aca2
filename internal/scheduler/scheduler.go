// Package scheduler expires unanswered driver offers. Timers are a fast path
// local to this process; a periodic sweep of the store catches every offer
// whose timer was lost to a restart or armed on another instance.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/dispatch"
	"github.com/chachabrian/mooveit-dispatch/internal/logger"
	"github.com/chachabrian/mooveit-dispatch/internal/metrics"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

// Expirer resolves an offer as expired. It must re-validate the offer state.
type Expirer interface {
	ExpireOffer(ctx context.Context, assignmentID string) error
}

// ExpireFunc adapts a function to Expirer.
type ExpireFunc func(ctx context.Context, assignmentID string) error

func (f ExpireFunc) ExpireOffer(ctx context.Context, id string) error { return f(ctx, id) }

// StaleOfferLister finds offers past their deadline.
type StaleOfferLister interface {
	ListStaleOffers(ctx context.Context, now time.Time, limit int) ([]models.Assignment, error)
}

type Options struct {
	SweepInterval time.Duration
	SweepBatch    int
}

type entry struct {
	timer *time.Timer
}

// Scheduler holds one single-fire timer per open offer.
type Scheduler struct {
	expirer Expirer
	offers  StaleOfferLister
	opts    Options
	log     logger.Logger
	metrics metrics.Sink
	now     func() time.Time

	mu     sync.Mutex
	timers map[string]*entry
	closed bool
	wg     sync.WaitGroup
}

func New(expirer Expirer, offers StaleOfferLister, opts Options, log logger.Logger, sink metrics.Sink) *Scheduler {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 15 * time.Second
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = 100
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Scheduler{
		expirer: expirer,
		offers:  offers,
		opts:    opts,
		log:     log,
		metrics: sink,
		now:     time.Now,
		timers:  make(map[string]*entry),
	}
}

// Schedule arms a timer that expires the offer at expiresAt. Scheduling an
// already armed offer replaces its timer.
func (s *Scheduler) Schedule(assignmentID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if old, ok := s.timers[assignmentID]; ok {
		old.timer.Stop()
	}
	e := &entry{}
	// fire takes mu, so it cannot observe e before the timer is stored.
	e.timer = time.AfterFunc(expiresAt.Sub(s.now()), func() { s.fire(assignmentID, e) })
	s.timers[assignmentID] = e
	s.metrics.SetArmedTimers(len(s.timers))
}

// Cancel disarms the offer's timer, if any.
func (s *Scheduler) Cancel(assignmentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.timers[assignmentID]; ok {
		e.timer.Stop()
		delete(s.timers, assignmentID)
		s.metrics.SetArmedTimers(len(s.timers))
	}
}

// Pending reports how many timers are armed.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) fire(assignmentID string, e *entry) {
	s.mu.Lock()
	if s.closed || s.timers[assignmentID] != e {
		s.mu.Unlock()
		return
	}
	delete(s.timers, assignmentID)
	s.metrics.SetArmedTimers(len(s.timers))
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	s.expire(context.Background(), assignmentID, "timer")
}

func (s *Scheduler) expire(ctx context.Context, assignmentID, source string) bool {
	err := s.expirer.ExpireOffer(ctx, assignmentID)
	switch {
	case err == nil:
		s.log.Debugf("offer %s expired (%s)", assignmentID, source)
		return true
	case errors.Is(err, dispatch.ErrStateConflict):
		s.log.Debugf("offer %s already resolved (%s)", assignmentID, source)
	case errors.Is(err, dispatch.ErrNotFound):
		s.log.Warnf("offer %s vanished before expiry (%s)", assignmentID, source)
	default:
		s.log.Errorf("expire offer %s (%s): %v", assignmentID, source, err)
	}
	return false
}

// Sweep expires every stored offer whose deadline has passed and returns
// how many it expired.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	stale, err := s.offers.ListStaleOffers(ctx, s.now(), s.opts.SweepBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range stale {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if s.expire(ctx, a.ID, "sweep") {
			n++
		}
	}
	if n > 0 {
		s.log.Infof("sweep expired %d stale offers", n)
	}
	return n, nil
}

// Run sweeps immediately and then every SweepInterval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Errorf("offer sweep: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Close disarms every timer and waits for expiries already in flight.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for id, e := range s.timers {
		e.timer.Stop()
		delete(s.timers, id)
	}
	s.metrics.SetArmedTimers(0)
	s.mu.Unlock()
	s.wg.Wait()
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

type memState struct {
	trips       map[string]models.Trip
	assignments map[string]models.Assignment
	outbox      map[string]models.OutboxEntry
	outboxSeq   map[string]int64
	seq         int64
}

func newMemState() *memState {
	return &memState{
		trips:       make(map[string]models.Trip),
		assignments: make(map[string]models.Assignment),
		outbox:      make(map[string]models.OutboxEntry),
		outboxSeq:   make(map[string]int64),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.trips {
		c.trips[k] = v.Clone()
	}
	for k, v := range s.assignments {
		c.assignments[k] = v.Clone()
	}
	for k, v := range s.outbox {
		c.outbox[k] = v.Clone()
	}
	for k, v := range s.outboxSeq {
		c.outboxSeq[k] = v
	}
	c.seq = s.seq
	return c
}

// MemoryStore keeps everything in process memory. Units of work run one at a
// time against a private copy that replaces the live state on success.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState(), now: time.Now}
}

func (m *MemoryStore) Transact(ctx context.Context, fn func(Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(&memRepo{st: work, now: m.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryStore) repo() *memRepo {
	return &memRepo{st: m.state, now: m.now}
}

func (m *MemoryStore) GetTrip(ctx context.Context, id string) (models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().GetTrip(ctx, id)
}

func (m *MemoryStore) CreateTrip(ctx context.Context, t *models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().CreateTrip(ctx, t)
}

func (m *MemoryStore) UpdateTrip(ctx context.Context, t models.Trip, from models.TripStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().UpdateTrip(ctx, t, from)
}

func (m *MemoryStore) GetAssignment(ctx context.Context, id string) (models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().GetAssignment(ctx, id)
}

func (m *MemoryStore) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().CreateAssignment(ctx, a)
}

func (m *MemoryStore) UpdateAssignment(ctx context.Context, a models.Assignment, from models.AssignmentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().UpdateAssignment(ctx, a, from)
}

func (m *MemoryStore) FindOfferedAssignment(ctx context.Context, tripID string) (models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().FindOfferedAssignment(ctx, tripID)
}

func (m *MemoryStore) ListStaleOffers(ctx context.Context, now time.Time, limit int) ([]models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().ListStaleOffers(ctx, now, limit)
}

func (m *MemoryStore) AppendOutbox(ctx context.Context, e *models.OutboxEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().AppendOutbox(ctx, e)
}

func (m *MemoryStore) ClaimDueOutbox(ctx context.Context, now time.Time, limit, maxAttempts int) ([]models.OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().ClaimDueOutbox(ctx, now, limit, maxAttempts)
}

func (m *MemoryStore) MarkOutboxSent(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().MarkOutboxSent(ctx, id, at)
}

func (m *MemoryStore) MarkOutboxFailed(ctx context.Context, id, reason string, next *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().MarkOutboxFailed(ctx, id, reason, next)
}

// Assignments returns every assignment of a trip in offer order.
func (m *MemoryStore) Assignments(tripID string) []models.Assignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Assignment
	for _, a := range m.state.assignments {
		if a.TripID == tripID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OfferedAt.Before(out[j].OfferedAt) })
	return out
}

// Outbox returns every outbox row in append order.
func (m *MemoryStore) Outbox() []models.OutboxEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.OutboxEntry, 0, len(m.state.outbox))
	for _, e := range m.state.outbox {
		out = append(out, e.Clone())
	}
	seq := m.state.outboxSeq
	sort.Slice(out, func(i, j int) bool { return seq[out[i].ID] < seq[out[j].ID] })
	return out
}

type memRepo struct {
	st  *memState
	now func() time.Time
}

func (r *memRepo) GetTrip(_ context.Context, id string) (models.Trip, error) {
	t, ok := r.st.trips[id]
	if !ok {
		return models.Trip{}, ErrNotFound
	}
	return t.Clone(), nil
}

func (r *memRepo) CreateTrip(_ context.Context, t *models.Trip) error {
	if _, ok := r.st.trips[t.ID]; ok {
		return ErrDuplicateKey
	}
	t.UpdatedAt = r.now()
	r.st.trips[t.ID] = t.Clone()
	return nil
}

func (r *memRepo) UpdateTrip(_ context.Context, t models.Trip, from models.TripStatus) (bool, error) {
	cur, ok := r.st.trips[t.ID]
	if !ok || cur.Status != from {
		return false, nil
	}
	t.UpdatedAt = r.now()
	r.st.trips[t.ID] = t.Clone()
	return true, nil
}

func (r *memRepo) GetAssignment(_ context.Context, id string) (models.Assignment, error) {
	a, ok := r.st.assignments[id]
	if !ok {
		return models.Assignment{}, ErrNotFound
	}
	return a.Clone(), nil
}

func (r *memRepo) CreateAssignment(_ context.Context, a *models.Assignment) error {
	if _, ok := r.st.assignments[a.ID]; ok {
		return ErrDuplicateKey
	}
	if a.Status == models.AssignmentStatusOffered {
		for _, other := range r.st.assignments {
			if other.TripID == a.TripID && other.Status == models.AssignmentStatusOffered {
				return ErrDuplicateOffer
			}
		}
	}
	r.st.assignments[a.ID] = a.Clone()
	return nil
}

func (r *memRepo) UpdateAssignment(_ context.Context, a models.Assignment, from models.AssignmentStatus) (bool, error) {
	cur, ok := r.st.assignments[a.ID]
	if !ok || cur.Status != from {
		return false, nil
	}
	r.st.assignments[a.ID] = a.Clone()
	return true, nil
}

func (r *memRepo) FindOfferedAssignment(_ context.Context, tripID string) (models.Assignment, error) {
	for _, a := range r.st.assignments {
		if a.TripID == tripID && a.Status == models.AssignmentStatusOffered {
			return a.Clone(), nil
		}
	}
	return models.Assignment{}, ErrNotFound
}

func (r *memRepo) ListStaleOffers(_ context.Context, now time.Time, limit int) ([]models.Assignment, error) {
	var out []models.Assignment
	for _, a := range r.st.assignments {
		if a.Status == models.AssignmentStatusOffered && !a.TTLExpiresAt.After(now) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TTLExpiresAt.Before(out[j].TTLExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) AppendOutbox(_ context.Context, e *models.OutboxEntry) error {
	if _, ok := r.st.outbox[e.ID]; ok {
		return ErrDuplicateKey
	}
	if e.Status == "" {
		e.Status = models.OutboxStatusPending
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	r.st.seq++
	r.st.outboxSeq[e.ID] = r.st.seq
	r.st.outbox[e.ID] = e.Clone()
	return nil
}

func (r *memRepo) ClaimDueOutbox(_ context.Context, now time.Time, limit, maxAttempts int) ([]models.OutboxEntry, error) {
	seq := r.st.outboxSeq
	before := func(a, b models.OutboxEntry) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return seq[a.ID] < seq[b.ID]
	}
	var waiting []models.OutboxEntry
	for _, e := range r.st.outbox {
		if e.AggregateID != "" && backingOff(e, now, maxAttempts) {
			waiting = append(waiting, e)
		}
	}
	var out []models.OutboxEntry
	for _, e := range r.st.outbox {
		if !due(e, now, maxAttempts) {
			continue
		}
		held := false
		for _, w := range waiting {
			if w.AggregateID == e.AggregateID && before(w, e) {
				held = true
				break
			}
		}
		if !held {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func due(e models.OutboxEntry, now time.Time, maxAttempts int) bool {
	switch e.Status {
	case models.OutboxStatusPending:
		return true
	case models.OutboxStatusFailed:
		if maxAttempts > 0 && e.Attempts >= maxAttempts {
			return false
		}
		return e.NextAttemptAt == nil || !e.NextAttemptAt.After(now)
	}
	return false
}

// backingOff reports a failed row still waiting for its retry. Later rows of
// the same aggregate stay queued behind it.
func backingOff(e models.OutboxEntry, now time.Time, maxAttempts int) bool {
	if e.Status != models.OutboxStatusFailed || e.NextAttemptAt == nil || !e.NextAttemptAt.After(now) {
		return false
	}
	return maxAttempts == 0 || e.Attempts < maxAttempts
}

func (r *memRepo) MarkOutboxSent(_ context.Context, id string, at time.Time) error {
	e, ok := r.st.outbox[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = models.OutboxStatusSent
	e.SentAt = &at
	e.FailReason = nil
	e.NextAttemptAt = nil
	r.st.outbox[id] = e
	return nil
}

func (r *memRepo) MarkOutboxFailed(_ context.Context, id, reason string, next *time.Time) error {
	e, ok := r.st.outbox[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = models.OutboxStatusFailed
	e.Attempts++
	e.FailReason = &reason
	if next != nil {
		v := *next
		e.NextAttemptAt = &v
	} else {
		e.NextAttemptAt = nil
	}
	r.st.outbox[id] = e
	return nil
}

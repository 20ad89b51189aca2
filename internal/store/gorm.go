package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

// GormStore persists to postgres through gorm. The database must be opened
// with TranslateError so unique violations surface as gorm.ErrDuplicatedKey.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Transact(ctx context.Context, fn func(Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) GetTrip(ctx context.Context, id string) (models.Trip, error) {
	var t models.Trip
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return models.Trip{}, translate(err)
	}
	return t, nil
}

func (s *GormStore) CreateTrip(ctx context.Context, t *models.Trip) error {
	return translate(s.db.WithContext(ctx).Create(t).Error)
}

func (s *GormStore) UpdateTrip(ctx context.Context, t models.Trip, from models.TripStatus) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Trip{ID: t.ID}).
		Where("current_status = ?", from).
		Select("*").
		Omit("ID", "RequestedAt").
		Updates(&t)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) GetAssignment(ctx context.Context, id string) (models.Assignment, error) {
	var a models.Assignment
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return models.Assignment{}, translate(err)
	}
	return a, nil
}

func (s *GormStore) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	err := s.db.WithContext(ctx).Create(a).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) && a.Status == models.AssignmentStatusOffered {
		return ErrDuplicateOffer
	}
	return translate(err)
}

func (s *GormStore) UpdateAssignment(ctx context.Context, a models.Assignment, from models.AssignmentStatus) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Assignment{ID: a.ID}).
		Where("status = ?", from).
		Select("Status", "RespondedAt", "RejectReason").
		Updates(&a)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) FindOfferedAssignment(ctx context.Context, tripID string) (models.Assignment, error) {
	var a models.Assignment
	err := s.db.WithContext(ctx).
		Where("trip_id = ? AND status = ?", tripID, models.AssignmentStatusOffered).
		First(&a).Error
	if err != nil {
		return models.Assignment{}, translate(err)
	}
	return a, nil
}

func (s *GormStore) ListStaleOffers(ctx context.Context, now time.Time, limit int) ([]models.Assignment, error) {
	var out []models.Assignment
	q := s.db.WithContext(ctx).
		Where("status = ? AND ttl_expires_at <= ?", models.AssignmentStatusOffered, now).
		Order("ttl_expires_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) AppendOutbox(ctx context.Context, e *models.OutboxEntry) error {
	if e.Status == "" {
		e.Status = models.OutboxStatusPending
	}
	return translate(s.db.WithContext(ctx).Create(e).Error)
}

func (s *GormStore) ClaimDueOutbox(ctx context.Context, now time.Time, limit, maxAttempts int) ([]models.OutboxEntry, error) {
	var out []models.OutboxEntry
	q := s.db.WithContext(ctx).
		Where("(status = ? OR (status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)))",
			models.OutboxStatusPending, models.OutboxStatusFailed, now)
	if maxAttempts > 0 {
		q = q.Where("(status = ? OR attempts < ?)", models.OutboxStatusPending, maxAttempts)
	}
	// Rows queue behind an older row of the same trip that is waiting to retry.
	held := s.db.Table("event_outbox AS w").
		Select("1").
		Where("w.aggregate_id = event_outbox.aggregate_id").
		Where("w.id <> event_outbox.id").
		Where("(w.created_at < event_outbox.created_at OR (w.created_at = event_outbox.created_at AND w.id < event_outbox.id))").
		Where("w.status = ? AND w.next_attempt_at > ?", models.OutboxStatusFailed, now)
	if maxAttempts > 0 {
		held = held.Where("w.attempts < ?", maxAttempts)
	}
	q = q.Where("(event_outbox.aggregate_id = '' OR NOT EXISTS (?))", held)
	q = q.Order("created_at, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) MarkOutboxSent(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.OutboxEntry{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          models.OutboxStatusSent,
			"sent_at":         at,
			"fail_reason":     nil,
			"next_attempt_at": nil,
		})
	return affected(res)
}

func (s *GormStore) MarkOutboxFailed(ctx context.Context, id, reason string, next *time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.OutboxEntry{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          models.OutboxStatusFailed,
			"attempts":        gorm.Expr("attempts + 1"),
			"fail_reason":     reason,
			"next_attempt_at": next,
		})
	return affected(res)
}

func affected(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	}
	return err
}

package models

import (
	"encoding/json"
	"time"
)

type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// OutboxEntry is a durable record of an emitted domain event. It is written
// in the same transaction as the state change it describes.
type OutboxEntry struct {
	ID            string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Type          string          `json:"type" gorm:"size:64;not null"`
	AggregateID   string          `json:"aggregateId" gorm:"size:36;index"`
	Payload       json.RawMessage `json:"payload" gorm:"type:jsonb;not null"`
	Status        OutboxStatus    `json:"status" gorm:"size:16;not null;default:'pending';index:idx_outbox_due,priority:1"`
	Attempts      int             `json:"attempts" gorm:"not null;default:0"`
	NextAttemptAt *time.Time      `json:"nextAttemptAt,omitempty" gorm:"index:idx_outbox_due,priority:2"`
	CreatedAt     time.Time       `json:"createdAt" gorm:"not null;index"`
	SentAt        *time.Time      `json:"sentAt,omitempty"`
	FailReason    *string         `json:"failReason,omitempty"`
}

// TableName specifies the table name
func (OutboxEntry) TableName() string {
	return "event_outbox"
}

func (o OutboxEntry) Clone() OutboxEntry {
	c := o
	c.Payload = append(json.RawMessage(nil), o.Payload...)
	c.NextAttemptAt = cloneTime(o.NextAttemptAt)
	c.SentAt = cloneTime(o.SentAt)
	c.FailReason = cloneString(o.FailReason)
	return c
}

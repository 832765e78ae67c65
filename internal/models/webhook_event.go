package models

import (
	"errors"
	"time"

	"github.com/gary-ai/backend/pkg/database"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookEvent stores processed provider webhook ids for idempotent
// processing. A replayed delivery matches the unique (provider, event_id)
// index and is skipped. The raw payload is kept so failed events can be
// replayed by hand.
type WebhookEvent struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Provider        string         `gorm:"size:20;not null;uniqueIndex:idx_webhook_events_provider_event" json:"provider"`
	EventID         string         `gorm:"size:191;not null;uniqueIndex:idx_webhook_events_provider_event" json:"event_id"`
	EventType       string         `gorm:"size:100;not null;index" json:"event_type"`
	SignatureValid  bool           `gorm:"default:false" json:"signature_valid"`
	Payload         datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
	ProcessingError string         `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// HasProcessedWebhookEvent reports whether an event id has already been seen.
func HasProcessedWebhookEvent(db *database.DB, provider, eventID string) (bool, error) {
	var event WebhookEvent
	err := db.Where("provider = ? AND event_id = ?", provider, eventID).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return event.ProcessedAt != nil, nil
}

// RecordWebhookEvent persists the processing record for an event.
func RecordWebhookEvent(db *database.DB, event *WebhookEvent) error {
	return db.Create(event).Error
}

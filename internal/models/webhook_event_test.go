package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHasProcessedWebhookEvent covers the idempotency lookup: only an event
// recorded with a processed timestamp counts as handled, so a delivery that
// failed mid-processing can be retried.
func TestHasProcessedWebhookEvent(t *testing.T) {
	db := newTestDB(t)

	processed, err := HasProcessedWebhookEvent(db, "stripe", "evt_unseen")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, RecordWebhookEvent(db, &WebhookEvent{
		Provider:        "stripe",
		EventID:         "evt_failed",
		EventType:       "checkout.session.completed",
		SignatureValid:  true,
		ProcessingError: "user lookup failed",
	}))

	processed, err = HasProcessedWebhookEvent(db, "stripe", "evt_failed")
	require.NoError(t, err)
	assert.False(t, processed, "failed events stay retryable")

	now := time.Now().UTC()
	require.NoError(t, RecordWebhookEvent(db, &WebhookEvent{
		Provider:       "stripe",
		EventID:        "evt_done",
		EventType:      "checkout.session.completed",
		SignatureValid: true,
		ProcessedAt:    &now,
	}))

	processed, err = HasProcessedWebhookEvent(db, "stripe", "evt_done")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestRecordWebhookEventRejectsDuplicateID(t *testing.T) {
	db := newTestDB(t)

	first := &WebhookEvent{Provider: "stripe", EventID: "evt_dup", EventType: "invoice.paid"}
	require.NoError(t, RecordWebhookEvent(db, first))

	second := &WebhookEvent{Provider: "stripe", EventID: "evt_dup", EventType: "invoice.paid"}
	assert.Error(t, RecordWebhookEvent(db, second))
}

package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical event envelope.
// All messages published to or consumed from NATS follow this format.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	AccountID     int64           `json:"account_id"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// RecordEvent is the payload of evt.expense.record.v1.* messages emitted by
// the ingestion/categorization pipeline when a record is created or updated.
type RecordEvent struct {
	AccountID       int64     `json:"account_id"`
	RecordID        string    `json:"record_id"`
	TransactionDate time.Time `json:"transaction_date"`
	Action          string    `json:"action"` // created | updated
}

// RefreshedEvent is emitted after a successful metrics refresh run.
type RefreshedEvent struct {
	AccountID  int64     `json:"account_id"`
	Pairs      int       `json:"pairs"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

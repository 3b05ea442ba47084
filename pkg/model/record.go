package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record statuses as ingested from the expense pipeline.
const (
	StatusPending  = "pending"
	StatusCleared  = "cleared"
	StatusRefunded = "refunded"
)

// Uncategorized is the sentinel bucket for records without a category.
const Uncategorized = "Uncategorized"

// FinancialRecord is a single expense transaction. It is produced by the
// ingestion pipeline and read-only inside this service.
type FinancialRecord struct {
	ID              string          `json:"id"`
	AccountID       int64           `json:"account_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	Category        string          `json:"category,omitempty"` // empty = uncategorized
	Merchant        string          `json:"merchant"`
	TransactionDate time.Time       `json:"transaction_date"`
}

// CategoryOrDefault returns the record's category, or the Uncategorized
// sentinel when none is set.
func (r FinancialRecord) CategoryOrDefault() string {
	if r.Category == "" {
		return Uncategorized
	}
	return r.Category
}

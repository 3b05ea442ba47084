package records

import (
	"context"
	"time"

	"github.com/Checker-Finance/expense-metrics/pkg/model"
)

// Store is the read-only view of financial records the calculator consumes.
// Records are owned by the ingestion pipeline; this service never writes them.
type Store interface {
	// RecordsInRange returns an account's records with a transaction date in
	// the inclusive [from, to] date range.
	RecordsInRange(ctx context.Context, accountID int64, from, to time.Time) ([]model.FinancialRecord, error)

	// AccountExists reports whether the account is known to the ledger.
	AccountExists(ctx context.Context, accountID int64) (bool, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

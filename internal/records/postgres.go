package records

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/expense-metrics/pkg/model"
)

// PGPoolConfig tunes the pgx connection pool.
type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// PostgresStore reads the ledger's financial_record table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres connects a pooled Postgres record store.
func NewPostgres(ctx context.Context, pgURL string, poolCfg PGPoolConfig, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("invalid pg config: %w", err)
	}
	if poolCfg.MaxConns > 0 {
		cfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		cfg.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = poolCfg.MaxConnLifetime
	}
	if poolCfg.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = poolCfg.MaxConnIdleTime
	}
	if poolCfg.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = poolCfg.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) RecordsInRange(ctx context.Context, accountID int64, from, to time.Time) ([]model.FinancialRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, amount, currency, status, COALESCE(category, ''), merchant, transaction_date
		FROM ledger.financial_record
		WHERE account_id = $1
		  AND transaction_date >= $2
		  AND transaction_date <= $3
		ORDER BY transaction_date;
	`, accountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.FinancialRecord
	for rows.Next() {
		var r model.FinancialRecord
		var amount string
		if err := rows.Scan(&r.ID, &r.AccountID, &amount, &r.Currency,
			&r.Status, &r.Category, &r.Merchant, &r.TransactionDate); err != nil {
			return nil, err
		}
		r.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("record [%s] has invalid amount %q: %w", r.ID, amount, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PostgresStore) AccountExists(ctx context.Context, accountID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM ledger.account WHERE id = $1);
	`, accountID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("account lookup failed: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres not initialized")
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

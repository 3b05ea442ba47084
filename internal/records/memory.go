package records

import (
	"context"
	"sync"
	"time"

	"github.com/Checker-Finance/expense-metrics/pkg/model"
)

// MemoryStore is an in-process Store used by tests and local dev mode.
type MemoryStore struct {
	mu       sync.RWMutex
	records  []model.FinancialRecord
	accounts map[int64]struct{}

	// FailWith, when set, is returned by RecordsInRange (failure injection).
	FailWith error
}

func NewMemory() *MemoryStore {
	return &MemoryStore{accounts: make(map[int64]struct{})}
}

// Add registers records (and implicitly their accounts).
func (s *MemoryStore) Add(recs ...model.FinancialRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		s.records = append(s.records, r)
		s.accounts[r.AccountID] = struct{}{}
	}
}

// AddAccount registers an account with no records.
func (s *MemoryStore) AddAccount(accountID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[accountID] = struct{}{}
}

func (s *MemoryStore) RecordsInRange(_ context.Context, accountID int64, from, to time.Time) ([]model.FinancialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	var out []model.FinancialRecord
	for _, r := range s.records {
		if r.AccountID != accountID {
			continue
		}
		d := model.DateOf(r.TransactionDate)
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *MemoryStore) AccountExists(_ context.Context, accountID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[accountID]
	return ok, nil
}

func (s *MemoryStore) HealthCheck(context.Context) error { return nil }
func (s *MemoryStore) Close() error                      { return nil }

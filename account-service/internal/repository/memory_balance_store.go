package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eaglebank/eagle/shared/models"
)

type accountRecord struct {
	mu      sync.Mutex
	account models.Account
	history []models.AccountHistory
	applied map[string]struct{}
}

// MemoryBalanceStore keeps accounts in process memory. Each account has its
// own mutex; arenaMu only guards the map of records.
type MemoryBalanceStore struct {
	arenaMu  sync.RWMutex
	accounts map[string]*accountRecord
	nextID   int64
	now      func() time.Time
}

func NewMemoryBalanceStore() *MemoryBalanceStore {
	return &MemoryBalanceStore{
		accounts: make(map[string]*accountRecord),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Seed adds or replaces accounts. Versions start at whatever the caller sets.
func (s *MemoryBalanceStore) Seed(accounts ...models.Account) {
	s.arenaMu.Lock()
	defer s.arenaMu.Unlock()

	for _, a := range accounts {
		if a.Status == "" {
			a.Status = models.AccountActive
		}
		if a.Currency == "" {
			a.Currency = "GBP"
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = s.now()
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = a.CreatedAt
		}
		s.accounts[a.AccountNumber] = &accountRecord{account: a, applied: make(map[string]struct{})}
	}
}

// ReadSeedFile parses a JSON array of accounts. Either store can be seeded from it.
func ReadSeedFile(path string) ([]models.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var accounts []models.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return accounts, nil
}

func (s *MemoryBalanceStore) record(accountNumber string) (*accountRecord, error) {
	s.arenaMu.RLock()
	defer s.arenaMu.RUnlock()

	rec, ok := s.accounts[accountNumber]
	if !ok {
		return nil, accountNotFound(accountNumber)
	}
	return rec, nil
}

func (s *MemoryBalanceStore) GetAccount(_ context.Context, accountNumber string) (*models.Account, error) {
	rec, err := s.record(accountNumber)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	a := rec.account
	return &a, nil
}

func (s *MemoryBalanceStore) Debit(ctx context.Context, m models.BalanceMutation) (*models.BalanceChange, error) {
	return s.apply(ctx, models.HistoryDebited, m)
}

func (s *MemoryBalanceStore) Credit(ctx context.Context, m models.BalanceMutation) (*models.BalanceChange, error) {
	return s.apply(ctx, models.HistoryCredited, m)
}

func (s *MemoryBalanceStore) apply(ctx context.Context, action models.HistoryAction, m models.BalanceMutation) (*models.BalanceChange, error) {
	if err := validateMutation(m); err != nil {
		return nil, err
	}
	rec, err := s.record(m.AccountNumber)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := string(action) + ":" + m.TransactionID
	if _, done := rec.applied[key]; done {
		return &models.BalanceChange{
			Account:    rec.account,
			OldBalance: rec.account.Balance,
			NewBalance: rec.account.Balance,
			Replayed:   true,
		}, nil
	}

	newBalance, err := nextBalance(&rec.account, action, m.Amount)
	if err != nil {
		return nil, err
	}

	now := s.now()
	oldBalance := rec.account.Balance
	rec.account.Balance = newBalance
	rec.account.Version++
	rec.account.UpdatedAt = now

	entry := historyEntry(&rec.account, action, oldBalance, m, now)
	entry.ID = atomic.AddInt64(&s.nextID, 1)

	rec.history = append(rec.history, entry)
	rec.applied[key] = struct{}{}

	return &models.BalanceChange{
		Account:    rec.account,
		OldBalance: oldBalance,
		NewBalance: newBalance,
	}, nil
}

// History returns the account's mutations in the order they were applied.
// History listing is not served over HTTP.
func (s *MemoryBalanceStore) History(_ context.Context, accountNumber string) ([]models.AccountHistory, error) {
	rec, err := s.record(accountNumber)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	out := make([]models.AccountHistory, len(rec.history))
	copy(out, rec.history)
	return out, nil
}

var _ BalanceStore = (*MemoryBalanceStore)(nil)

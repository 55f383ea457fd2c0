package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/eaglebank/eagle/shared/models"
)

// MemoryTransactionStore keeps the ledger in process memory. All reads return
// copies so callers never alias stored records.
type MemoryTransactionStore struct {
	mu           sync.RWMutex
	transactions map[string]models.Transaction
	steps        map[string][]models.TransactionStep
}

func NewMemoryTransactionStore() *MemoryTransactionStore {
	return &MemoryTransactionStore{
		transactions: make(map[string]models.Transaction),
		steps:        make(map[string][]models.TransactionStep),
	}
}

func (s *MemoryTransactionStore) CreateTransaction(_ context.Context, tx *models.Transaction, steps []models.TransactionStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.ID]; exists {
		return duplicateTransaction(tx.ID)
	}
	s.transactions[tx.ID] = *tx

	stored := make([]models.TransactionStep, len(steps))
	copy(stored, steps)
	sort.Slice(stored, func(i, j int) bool { return stored[i].Order < stored[j].Order })
	s.steps[tx.ID] = stored
	return nil
}

func (s *MemoryTransactionStore) UpdateTransaction(_ context.Context, tx *models.Transaction, expected models.TransactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.transactions[tx.ID]
	if !exists {
		return transactionNotFound(tx.ID)
	}
	if err := checkTransition(tx.ID, current.Status, expected, tx.Status); err != nil {
		return err
	}
	s.transactions[tx.ID] = *tx
	return nil
}

func (s *MemoryTransactionStore) UpdateStep(_ context.Context, step *models.TransactionStep, expected models.StepStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.steps[step.TransactionID] {
		if existing.Order != step.Order {
			continue
		}
		if existing.Status != expected {
			return stepConflict(step, existing.Status, expected)
		}
		s.steps[step.TransactionID][i] = *step
		return nil
	}
	return transactionNotFound(step.TransactionID)
}

func (s *MemoryTransactionStore) GetTransaction(_ context.Context, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, transactionNotFound(id)
	}
	return &tx, nil
}

func (s *MemoryTransactionStore) ListSteps(_ context.Context, transactionID string) ([]models.TransactionStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps, ok := s.steps[transactionID]
	if !ok {
		return nil, transactionNotFound(transactionID)
	}
	out := make([]models.TransactionStep, len(steps))
	copy(out, steps)
	return out, nil
}

func (s *MemoryTransactionStore) filter(keep func(models.Transaction) bool) []models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Transaction
	for _, tx := range s.transactions {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	sortNewestFirst(out)
	return out
}

func (s *MemoryTransactionStore) ListByAccount(_ context.Context, accountNumber string, page, size int) ([]models.Transaction, int, error) {
	all := s.filter(func(tx models.Transaction) bool {
		return tx.FromAccount == accountNumber || tx.ToAccount == accountNumber
	})
	start, end := pageBounds(len(all), page, size)
	return all[start:end], len(all), nil
}

func (s *MemoryTransactionStore) ListByUser(_ context.Context, userID string) ([]models.Transaction, error) {
	return s.filter(func(tx models.Transaction) bool { return tx.InitiatedBy == userID }), nil
}

func (s *MemoryTransactionStore) ListByStatus(_ context.Context, status models.TransactionStatus) ([]models.Transaction, error) {
	return s.filter(func(tx models.Transaction) bool { return tx.Status == status }), nil
}

func (s *MemoryTransactionStore) ListRequiringReconciliation(_ context.Context) ([]models.Transaction, error) {
	return s.filter(func(tx models.Transaction) bool { return tx.RequiresReconciliation }), nil
}

var _ TransactionStore = (*MemoryTransactionStore)(nil)

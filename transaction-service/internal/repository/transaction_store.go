package repository

import (
	"context"
	"sort"

	"github.com/eaglebank/eagle/shared/apperrors"
	"github.com/eaglebank/eagle/shared/models"
)

// TransactionStore is the transaction ledger plus its step log. Records are
// created once and afterwards only updated; nothing is ever deleted.
type TransactionStore interface {
	// CreateTransaction persists the transaction and all of its steps atomically.
	// A transaction id that already exists yields ErrDuplicateTransaction.
	CreateTransaction(ctx context.Context, tx *models.Transaction, steps []models.TransactionStep) error
	// UpdateTransaction writes tx only while the stored status is still
	// expected, and never moves a terminal transaction to another status.
	// Otherwise it returns ErrInvalidState and leaves the record unchanged.
	UpdateTransaction(ctx context.Context, tx *models.Transaction, expected models.TransactionStatus) error
	// UpdateStep writes step only while the stored step status is still expected.
	UpdateStep(ctx context.Context, step *models.TransactionStep, expected models.StepStatus) error

	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	// ListSteps returns the steps ordered by stepOrder.
	ListSteps(ctx context.Context, transactionID string) ([]models.TransactionStep, error)

	// ListByAccount returns transactions with the account on either side,
	// newest first, plus the total count. size 0 returns everything.
	ListByAccount(ctx context.Context, accountNumber string, page, size int) ([]models.Transaction, int, error)
	ListByUser(ctx context.Context, userID string) ([]models.Transaction, error)
	ListByStatus(ctx context.Context, status models.TransactionStatus) ([]models.Transaction, error)
	ListRequiringReconciliation(ctx context.Context) ([]models.Transaction, error)
}

func transactionNotFound(id string) error {
	return apperrors.New(apperrors.ErrTransactionNotFound, "Transaction not found: %s", id)
}

func duplicateTransaction(id string) error {
	return apperrors.New(apperrors.ErrDuplicateTransaction, "Transaction already exists: %s", id)
}

func checkTransition(id string, current, expected, next models.TransactionStatus) error {
	if current != expected {
		return apperrors.New(apperrors.ErrInvalidState, "Transaction %s is %s, expected %s", id, current, expected)
	}
	if current.IsTerminal() && next != current {
		return apperrors.New(apperrors.ErrInvalidState, "Transaction %s is already %s", id, current)
	}
	return nil
}

func stepConflict(step *models.TransactionStep, current, expected models.StepStatus) error {
	return apperrors.New(apperrors.ErrInvalidState, "Step %d of transaction %s is %s, expected %s",
		step.Order, step.TransactionID, current, expected)
}

// sortNewestFirst orders by createdAt descending with the id as tie-break.
func sortNewestFirst(txs []models.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].ID > txs[j].ID
		}
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}

func pageBounds(total, page, size int) (int, int) {
	if size <= 0 {
		return 0, total
	}
	if page < 0 {
		page = 0
	}
	start := page * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return start, end
}

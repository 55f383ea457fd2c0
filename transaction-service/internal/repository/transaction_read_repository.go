package repository

import (
	"context"
	"time"

	"github.com/eaglebank/eagle/shared/models"
	sharedredis "github.com/eaglebank/eagle/shared/redis"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	transactionViewKeyPrefix = "transaction:view:"
	transactionViewTTL       = time.Hour
)

// TransactionReadRepository handles all read operations for transactions.
// Single-transaction views come from Redis when present; listings always go
// to the store. Only terminal transactions are cached so an in-flight saga is
// never served stale.
type TransactionReadRepository struct {
	store TransactionStore
	cache *sharedredis.ViewCache[models.TransactionView]
}

func NewTransactionReadRepository(store TransactionStore, redisClient *goredis.Client, logger *zap.SugaredLogger) *TransactionReadRepository {
	return &TransactionReadRepository{
		store: store,
		cache: sharedredis.NewViewCache[models.TransactionView](redisClient, transactionViewKeyPrefix, transactionViewTTL, logger),
	}
}

// GetByID returns a TransactionView with its steps, trying Redis first.
func (r *TransactionReadRepository) GetByID(ctx context.Context, id string) (*models.TransactionView, error) {
	if view, ok := r.cache.Get(ctx, id); ok {
		return view, nil
	}

	tx, err := r.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	steps, err := r.store.ListSteps(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &models.TransactionView{Transaction: *tx, Steps: steps}
	r.CacheTransactionView(ctx, view)
	return view, nil
}

// CacheTransactionView stores the read model for a terminal transaction and
// drops any cached entry for one that is still running.
func (r *TransactionReadRepository) CacheTransactionView(ctx context.Context, view *models.TransactionView) {
	if !view.Status.IsTerminal() {
		r.cache.Delete(ctx, view.ID)
		return
	}
	r.cache.Set(ctx, view.ID, view)
}

func (r *TransactionReadRepository) ListByAccount(ctx context.Context, accountNumber string, page, size int) (*models.TransactionPage, error) {
	txs, total, err := r.store.ListByAccount(ctx, accountNumber, page, size)
	if err != nil {
		return nil, err
	}
	return &models.TransactionPage{Transactions: nonNil(txs), Page: page, Size: size, Total: total}, nil
}

func (r *TransactionReadRepository) ListByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	txs, err := r.store.ListByUser(ctx, userID)
	return nonNil(txs), err
}

func (r *TransactionReadRepository) ListByStatus(ctx context.Context, status models.TransactionStatus) ([]models.Transaction, error) {
	txs, err := r.store.ListByStatus(ctx, status)
	return nonNil(txs), err
}

func (r *TransactionReadRepository) ListRequiringReconciliation(ctx context.Context) ([]models.Transaction, error) {
	txs, err := r.store.ListRequiringReconciliation(ctx)
	return nonNil(txs), err
}

func nonNil(txs []models.Transaction) []models.Transaction {
	if txs == nil {
		return []models.Transaction{}
	}
	return txs
}

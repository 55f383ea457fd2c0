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
	accountViewKeyPrefix = "account:view:"
	accountViewTTL       = 5 * time.Minute
)

// AccountReadRepository serves account reads from the Redis read model and
// falls back to the balance store, warming the cache on every cold read.
type AccountReadRepository struct {
	store BalanceStore
	cache *sharedredis.ViewCache[models.AccountView]
}

func NewAccountReadRepository(store BalanceStore, redisClient *goredis.Client, logger *zap.SugaredLogger) *AccountReadRepository {
	return &AccountReadRepository{
		store: store,
		cache: sharedredis.NewViewCache[models.AccountView](redisClient, accountViewKeyPrefix, accountViewTTL, logger),
	}
}

// GetByAccountNumber returns an AccountView, trying Redis first then the store.
func (r *AccountReadRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*models.AccountView, error) {
	if view, ok := r.cache.Get(ctx, accountNumber); ok {
		return view, nil
	}

	account, err := r.store.GetAccount(ctx, accountNumber)
	if err != nil {
		return nil, err
	}

	view := models.AccountToView(account)
	r.cache.Set(ctx, accountNumber, view)
	return view, nil
}

// CacheAccountView refreshes the read model after a mutation. A stale entry
// with a lower version never overwrites a newer one.
func (r *AccountReadRepository) CacheAccountView(ctx context.Context, view *models.AccountView) {
	if current, ok := r.cache.Get(ctx, view.AccountNumber); ok && current.Version > view.Version {
		return
	}
	r.cache.Set(ctx, view.AccountNumber, view)
}

func (r *AccountReadRepository) InvalidateAccountView(ctx context.Context, accountNumber string) {
	r.cache.Delete(ctx, accountNumber)
}

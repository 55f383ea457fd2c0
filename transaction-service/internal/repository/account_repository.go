package repository

import (
	"context"
	"time"

	"github.com/eaglebank/eagle/shared/events"
	"github.com/eaglebank/eagle/shared/models"
	sharedredis "github.com/eaglebank/eagle/shared/redis"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	accountKeyPrefix = "account:"
	accountTTL       = 5 * time.Minute
)

// AccountRepository caches account snapshots fetched from the account service.
// Entries are refreshed from balance.updated events and never move backwards
// in version.
type AccountRepository struct {
	cache  *sharedredis.ViewCache[models.AccountSnapshot]
	logger *zap.SugaredLogger
}

func NewAccountRepository(redis *redis.Client, logger *zap.SugaredLogger) *AccountRepository {
	return &AccountRepository{
		cache:  sharedredis.NewViewCache[models.AccountSnapshot](redis, accountKeyPrefix, accountTTL, logger),
		logger: logger,
	}
}

func (r *AccountRepository) GetAccount(ctx context.Context, accountNumber string) (*models.AccountSnapshot, bool) {
	return r.cache.Get(ctx, accountNumber)
}

// CacheAccount stores a snapshot unless a newer version is already cached.
func (r *AccountRepository) CacheAccount(ctx context.Context, account *models.AccountSnapshot) {
	if current, ok := r.cache.Get(ctx, account.AccountNumber); ok && current.Version > account.Version {
		return
	}
	r.cache.Set(ctx, account.AccountNumber, account)
}

// HandleAccountEvent applies balance.updated events to cached snapshots.
// Accounts that are not cached are left alone; the next read fetches them.
func (r *AccountRepository) HandleAccountEvent(ctx context.Context, event events.Event) error {
	if event.Type != events.BalanceUpdated {
		return nil
	}
	var data events.BalanceUpdatedEvent
	if err := event.Decode(&data); err != nil {
		return err
	}

	current, ok := r.cache.Get(ctx, data.AccountNumber)
	if !ok || current.Version >= data.Version {
		return nil
	}

	current.Balance = data.NewBalance
	current.Version = data.Version
	if data.Status != "" {
		current.Status = models.AccountStatus(data.Status)
	}
	r.cache.Set(ctx, data.AccountNumber, current)
	r.logger.Debugw("account snapshot refreshed", "account", data.AccountNumber, "version", data.Version)
	return nil
}

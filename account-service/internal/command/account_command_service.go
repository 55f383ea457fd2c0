package command

import (
	"context"
	"time"

	"github.com/eaglebank/eagle/account-service/internal/repository"
	"github.com/eaglebank/eagle/shared/cqrs"
	"github.com/eaglebank/eagle/shared/events"
	"github.com/eaglebank/eagle/shared/models"
	"go.uber.org/zap"
)

// AccountCommandService applies debits and credits through the balance store
// and keeps the read model and event stream in sync.
type AccountCommandService struct {
	store     repository.BalanceStore
	readRepo  *repository.AccountReadRepository
	publisher events.Publisher
	logger    *zap.SugaredLogger
}

func NewAccountCommandService(
	store repository.BalanceStore,
	readRepo *repository.AccountReadRepository,
	publisher events.Publisher,
	logger *zap.SugaredLogger,
) *AccountCommandService {
	return &AccountCommandService{
		store:     store,
		readRepo:  readRepo,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *AccountCommandService) Debit(ctx context.Context, cmd cqrs.DebitAccountCommand) (*models.AccountSnapshot, error) {
	change, err := s.store.Debit(ctx, models.BalanceMutation{
		AccountNumber: cmd.AccountNumber,
		Amount:        cmd.Amount,
		TransactionID: cmd.TransactionID,
		Description:   cmd.Description,
	})
	if err != nil {
		s.logger.Warnw("debit rejected", "account", cmd.AccountNumber, "transactionId", cmd.TransactionID, "error", err)
		return nil, err
	}
	s.afterChange(ctx, change, events.DirectionDebit, cmd.TransactionID)
	return models.AccountToSnapshot(&change.Account), nil
}

func (s *AccountCommandService) Credit(ctx context.Context, cmd cqrs.CreditAccountCommand) (*models.AccountSnapshot, error) {
	change, err := s.store.Credit(ctx, models.BalanceMutation{
		AccountNumber: cmd.AccountNumber,
		Amount:        cmd.Amount,
		TransactionID: cmd.TransactionID,
		Description:   cmd.Description,
	})
	if err != nil {
		s.logger.Warnw("credit rejected", "account", cmd.AccountNumber, "transactionId", cmd.TransactionID, "error", err)
		return nil, err
	}
	s.afterChange(ctx, change, events.DirectionCredit, cmd.TransactionID)
	return models.AccountToSnapshot(&change.Account), nil
}

// afterChange refreshes the cache and publishes balance.updated. Neither can
// fail the mutation, which is already committed.
func (s *AccountCommandService) afterChange(ctx context.Context, change *models.BalanceChange, direction, transactionID string) {
	account := change.Account
	amount := change.NewBalance.Sub(change.OldBalance).Abs()
	s.readRepo.CacheAccountView(ctx, models.AccountToView(&account))

	if change.Replayed {
		s.logger.Infow("mutation already applied, returning current state",
			"account", account.AccountNumber, "transactionId", transactionID, "direction", direction)
		return
	}

	s.logger.Infow("balance updated",
		"account", account.AccountNumber,
		"transactionId", transactionID,
		"direction", direction,
		"amount", amount.StringFixed(2),
		"oldBalance", change.OldBalance.StringFixed(2),
		"newBalance", change.NewBalance.StringFixed(2),
		"version", account.Version,
	)

	if err := s.publisher.Publish(ctx, events.AccountEventsStream, events.BalanceUpdated, events.BalanceUpdatedEvent{
		AccountNumber: account.AccountNumber,
		UserID:        account.UserID,
		OldBalance:    change.OldBalance,
		NewBalance:    change.NewBalance,
		Amount:        amount,
		Direction:     direction,
		TransactionID: transactionID,
		Version:       account.Version,
		Status:        string(account.Status),
		Timestamp:     time.Now().UTC(),
	}); err != nil {
		s.logger.Errorw("failed to publish balance.updated event", "account", account.AccountNumber, "error", err)
	}
}

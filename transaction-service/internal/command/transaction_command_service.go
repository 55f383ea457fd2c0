package command

import (
	"context"

	"github.com/eaglebank/eagle/shared/apperrors"
	"github.com/eaglebank/eagle/shared/cqrs"
	"github.com/eaglebank/eagle/shared/models"
	"go.uber.org/zap"
)

// Saga is the orchestrator as used by the command side.
type Saga interface {
	Transfer(ctx context.Context, cmd cqrs.TransferCommand) (*models.TransactionView, error)
	Deposit(ctx context.Context, cmd cqrs.SingleAccountCommand) (*models.TransactionView, error)
	Withdraw(ctx context.Context, cmd cqrs.SingleAccountCommand) (*models.TransactionView, error)
	Compensate(ctx context.Context, cmd cqrs.CompensateCommand) (*models.TransactionView, error)
}

type AccountLookup interface {
	GetAccount(ctx context.Context, accountNumber string) (*models.AccountSnapshot, error)
}

type ViewCache interface {
	CacheTransactionView(ctx context.Context, view *models.TransactionView)
}

// TransactionCommandService starts sagas. It checks that money only leaves
// accounts owned by the caller, then hands over to the orchestrator and
// refreshes the read model with the outcome.
type TransactionCommandService struct {
	saga     Saga
	accounts AccountLookup
	views    ViewCache
	logger   *zap.SugaredLogger
}

func NewTransactionCommandService(saga Saga, accounts AccountLookup, views ViewCache, logger *zap.SugaredLogger) *TransactionCommandService {
	return &TransactionCommandService{saga: saga, accounts: accounts, views: views, logger: logger}
}

func (s *TransactionCommandService) Transfer(ctx context.Context, cmd cqrs.TransferCommand) (*models.TransactionView, error) {
	if err := s.checkOwner(ctx, cmd.FromAccount, cmd.InitiatedBy); err != nil {
		return nil, err
	}
	view, err := s.saga.Transfer(ctx, cmd)
	return s.record(ctx, view, err)
}

func (s *TransactionCommandService) Deposit(ctx context.Context, cmd cqrs.SingleAccountCommand) (*models.TransactionView, error) {
	view, err := s.saga.Deposit(ctx, cmd)
	return s.record(ctx, view, err)
}

func (s *TransactionCommandService) Withdraw(ctx context.Context, cmd cqrs.SingleAccountCommand) (*models.TransactionView, error) {
	if err := s.checkOwner(ctx, cmd.AccountNumber, cmd.InitiatedBy); err != nil {
		return nil, err
	}
	view, err := s.saga.Withdraw(ctx, cmd)
	return s.record(ctx, view, err)
}

func (s *TransactionCommandService) Compensate(ctx context.Context, cmd cqrs.CompensateCommand) (*models.TransactionView, error) {
	view, err := s.saga.Compensate(ctx, cmd)
	return s.record(ctx, view, err)
}

// checkOwner only rejects when the account is known to belong to someone
// else; lookup failures are left for the orchestrator to report.
func (s *TransactionCommandService) checkOwner(ctx context.Context, accountNumber, userID string) error {
	if accountNumber == "" || accountNumber == models.SystemAccount {
		return nil
	}
	account, err := s.accounts.GetAccount(ctx, accountNumber)
	if err != nil {
		return nil
	}
	if account.UserID != userID {
		s.logger.Warnw("rejected transaction from foreign account", "account", accountNumber, "userId", userID)
		return apperrors.New(apperrors.ErrForbidden, "You can only move money out of your own accounts")
	}
	return nil
}

func (s *TransactionCommandService) record(ctx context.Context, view *models.TransactionView, err error) (*models.TransactionView, error) {
	if err != nil {
		return nil, err
	}
	s.views.CacheTransactionView(context.WithoutCancel(ctx), view)
	return view, nil
}

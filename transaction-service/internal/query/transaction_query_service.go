package query

import (
	"context"
	"errors"

	"github.com/eaglebank/eagle/shared/apperrors"
	"github.com/eaglebank/eagle/shared/cqrs"
	"github.com/eaglebank/eagle/shared/models"
	"github.com/eaglebank/eagle/transaction-service/internal/repository"
)

type AccountLookup interface {
	GetAccount(ctx context.Context, accountNumber string) (*models.AccountSnapshot, error)
}

// TransactionQueryService serves transaction reads. Operators see everything;
// other callers see transactions they initiated or that touch an account they own.
type TransactionQueryService struct {
	readRepo *repository.TransactionReadRepository
	accounts AccountLookup
}

func NewTransactionQueryService(readRepo *repository.TransactionReadRepository, accounts AccountLookup) *TransactionQueryService {
	return &TransactionQueryService{readRepo: readRepo, accounts: accounts}
}

func (s *TransactionQueryService) GetTransaction(ctx context.Context, q cqrs.GetTransactionQuery) (*models.TransactionView, error) {
	view, err := s.readRepo.GetByID(ctx, q.TransactionID)
	if err != nil {
		return nil, err
	}
	if q.Requester.Operator || view.InitiatedBy == q.Requester.UserID {
		return view, nil
	}
	for _, n := range []string{view.FromAccount, view.ToAccount} {
		if n == models.SystemAccount {
			continue
		}
		if owned, err := s.owns(ctx, n, q.Requester.UserID); err == nil && owned {
			return view, nil
		}
	}
	return nil, apperrors.New(apperrors.ErrForbidden, "You can only view your own transactions")
}

// ListByAccount returns one page of the account's transactions, newest first.
func (s *TransactionQueryService) ListByAccount(ctx context.Context, q cqrs.ListByAccountQuery) (*models.TransactionPage, error) {
	if !q.Requester.Operator {
		owned, err := s.owns(ctx, q.AccountNumber, q.Requester.UserID)
		if err != nil {
			return nil, err
		}
		if !owned {
			return nil, apperrors.New(apperrors.ErrForbidden, "You can only view transactions for your own accounts")
		}
	}
	return s.readRepo.ListByAccount(ctx, q.AccountNumber, q.Page, q.Size)
}

func (s *TransactionQueryService) ListByUser(ctx context.Context, q cqrs.ListByUserQuery) ([]models.Transaction, error) {
	if !q.Requester.Operator && q.Requester.UserID != q.UserID {
		return nil, apperrors.New(apperrors.ErrForbidden, "You can only view your own transactions")
	}
	return s.readRepo.ListByUser(ctx, q.UserID)
}

func (s *TransactionQueryService) ListByStatus(ctx context.Context, q cqrs.ListByStatusQuery) ([]models.Transaction, error) {
	if !q.Requester.Operator {
		return nil, operatorOnly()
	}
	return s.readRepo.ListByStatus(ctx, q.Status)
}

func (s *TransactionQueryService) ListRequiringReconciliation(ctx context.Context, q cqrs.ListReconciliationQuery) ([]models.Transaction, error) {
	if !q.Requester.Operator {
		return nil, operatorOnly()
	}
	return s.readRepo.ListRequiringReconciliation(ctx)
}

func (s *TransactionQueryService) owns(ctx context.Context, accountNumber, userID string) (bool, error) {
	account, err := s.accounts.GetAccount(ctx, accountNumber)
	if errors.Is(err, apperrors.ErrAccountNotFound) {
		return false, apperrors.New(apperrors.ErrAccountNotFound, "Account not found: %s", accountNumber)
	}
	if err != nil {
		return false, err
	}
	return account.UserID == userID, nil
}

func operatorOnly() error {
	return apperrors.New(apperrors.ErrForbidden, "Operator role required")
}

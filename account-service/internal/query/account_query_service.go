package query

import (
	"context"

	"github.com/eaglebank/eagle/account-service/internal/repository"
	"github.com/eaglebank/eagle/shared/cqrs"
	"github.com/eaglebank/eagle/shared/models"
)

type AccountQueryService struct {
	readRepo *repository.AccountReadRepository
}

func NewAccountQueryService(readRepo *repository.AccountReadRepository) *AccountQueryService {
	return &AccountQueryService{readRepo: readRepo}
}

func (s *AccountQueryService) GetAccount(ctx context.Context, q cqrs.GetAccountQuery) (*models.AccountView, error) {
	return s.readRepo.GetByAccountNumber(ctx, q.AccountNumber)
}

// GetBalance reports the balance and how much of it can be debited.
func (s *AccountQueryService) GetBalance(ctx context.Context, q cqrs.GetAccountQuery) (*models.BalanceView, error) {
	view, err := s.readRepo.GetByAccountNumber(ctx, q.AccountNumber)
	if err != nil {
		return nil, err
	}
	account := models.Account{Balance: view.Balance, MinimumBalance: view.MinimumBalance}
	return &models.BalanceView{
		AccountNumber:    view.AccountNumber,
		Balance:          view.Balance,
		AvailableBalance: account.AvailableBalance(),
		Currency:         view.Currency,
	}, nil
}

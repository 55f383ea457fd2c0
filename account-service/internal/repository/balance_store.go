package repository

import (
	"context"
	"time"

	"github.com/eaglebank/eagle/shared/apperrors"
	"github.com/eaglebank/eagle/shared/models"
	"github.com/shopspring/decimal"
)

// BalanceStore is the only path by which an account balance changes. Every
// Debit and Credit holds an exclusive per-account lock across the whole
// read-check-write, so the history for one account is a serial log.
//
// A mutation whose (account, transactionId, action) is already present in the
// history is not applied again; the current state is returned with Replayed set.
type BalanceStore interface {
	GetAccount(ctx context.Context, accountNumber string) (*models.Account, error)
	Debit(ctx context.Context, m models.BalanceMutation) (*models.BalanceChange, error)
	Credit(ctx context.Context, m models.BalanceMutation) (*models.BalanceChange, error)
}

func validateMutation(m models.BalanceMutation) error {
	if m.AccountNumber == "" {
		return apperrors.New(apperrors.ErrValidation, "Account number is required")
	}
	if m.TransactionID == "" {
		return apperrors.New(apperrors.ErrValidation, "Transaction id is required")
	}
	if !m.Amount.IsPositive() {
		return apperrors.New(apperrors.ErrValidation, "Amount must be greater than zero")
	}
	if !m.Amount.Equal(m.Amount.Round(2)) {
		return apperrors.New(apperrors.ErrValidation, "Amount must have at most two decimal places")
	}
	return nil
}

// nextBalance applies the balance rules for action to a locked account and
// returns the balance it would move to. The account is not modified.
func nextBalance(a *models.Account, action models.HistoryAction, amount decimal.Decimal) (decimal.Decimal, error) {
	if a.Status != models.AccountActive {
		return decimal.Zero, apperrors.New(apperrors.ErrAccountNotActive, "Account is not active. Status: %s", a.Status)
	}

	if action == models.HistoryCredited {
		return a.Balance.Add(amount), nil
	}

	newBalance := a.Balance.Sub(amount)
	if newBalance.LessThan(a.MinimumBalance) {
		return decimal.Zero, apperrors.New(apperrors.ErrInsufficientBalance,
			"Insufficient balance. Available: %s, Required: %s, Minimum: %s",
			a.Balance.StringFixed(2), amount.StringFixed(2), a.MinimumBalance.StringFixed(2))
	}
	return newBalance, nil
}

func historyEntry(a *models.Account, action models.HistoryAction, oldBalance decimal.Decimal, m models.BalanceMutation, now time.Time) models.AccountHistory {
	return models.AccountHistory{
		AccountNumber: a.AccountNumber,
		Action:        action,
		OldBalance:    oldBalance,
		NewBalance:    a.Balance,
		Amount:        m.Amount,
		TransactionID: m.TransactionID,
		Description:   m.Description,
		CreatedAt:     now,
	}
}

func accountNotFound(accountNumber string) error {
	return apperrors.New(apperrors.ErrAccountNotFound, "Account not found: %s", accountNumber)
}

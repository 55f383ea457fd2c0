package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountView is the read-optimised projection of an account kept in Redis.
type AccountView struct {
	AccountNumber  string          `json:"accountNumber"`
	UserID         string          `json:"userId"`
	Balance        decimal.Decimal `json:"balance"`
	MinimumBalance decimal.Decimal `json:"minimumBalance"`
	Currency       string          `json:"currency"`
	Status         AccountStatus   `json:"status"`
	Version        int64           `json:"version"`
	UpdatedAt      time.Time       `json:"updatedTimestamp"`
}

// BalanceView is returned by the balance endpoint.
type BalanceView struct {
	AccountNumber    string          `json:"accountNumber"`
	Balance          decimal.Decimal `json:"balance"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	Currency         string          `json:"currency"`
}

// TransactionView is the read-optimised projection of a transaction together
// with its step log.
type TransactionView struct {
	Transaction
	Steps []TransactionStep `json:"steps"`
}

// TransactionPage is one page of a listing.
type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Page         int           `json:"page"`
	Size         int           `json:"size"`
	Total        int           `json:"total"`
}

func AccountToView(a *Account) *AccountView {
	return &AccountView{
		AccountNumber:  a.AccountNumber,
		UserID:         a.UserID,
		Balance:        a.Balance,
		MinimumBalance: a.MinimumBalance,
		Currency:       a.Currency,
		Status:         a.Status,
		Version:        a.Version,
		UpdatedAt:      a.UpdatedAt,
	}
}

func AccountToSnapshot(a *Account) *AccountSnapshot {
	return &AccountSnapshot{
		AccountNumber:  a.AccountNumber,
		UserID:         a.UserID,
		Balance:        a.Balance,
		MinimumBalance: a.MinimumBalance,
		Currency:       a.Currency,
		Status:         a.Status,
		Version:        a.Version,
	}
}

package cqrs

import (
	"github.com/eaglebank/eagle/shared/models"
	"github.com/shopspring/decimal"
)

// ---------- Account service ----------

// DebitAccountCommand removes funds from one account under its lock.
type DebitAccountCommand struct {
	AccountNumber string
	Amount        decimal.Decimal
	TransactionID string
	Description   string
}

// CreditAccountCommand adds funds to one account under its lock.
type CreditAccountCommand struct {
	AccountNumber string
	Amount        decimal.Decimal
	TransactionID string
	Description   string
}

// ---------- Transaction service ----------

// TransferCommand starts a two-step transfer saga. TransactionID is optional;
// when set it is used as the idempotency key.
type TransferCommand struct {
	TransactionID string
	FromAccount   string
	ToAccount     string
	Amount        decimal.Decimal
	Description   string
	InitiatedBy   string
}

// SingleAccountCommand starts a deposit or withdrawal saga.
type SingleAccountCommand struct {
	TransactionID string
	Type          models.TransactionType
	AccountNumber string
	Amount        decimal.Decimal
	Description   string
	InitiatedBy   string
}

// CompensateCommand re-runs compensation for a failed transaction.
type CompensateCommand struct {
	TransactionID    string
	RequestingUserID string
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SystemAccount stands in for the external side of deposits and withdrawals.
const SystemAccount = "SYSTEM"

type AccountStatus string

const (
	AccountActive    AccountStatus = "ACTIVE"
	AccountInactive  AccountStatus = "INACTIVE"
	AccountSuspended AccountStatus = "SUSPENDED"
	AccountClosed    AccountStatus = "CLOSED"
)

type TransactionType string

const (
	TransactionTransfer   TransactionType = "TRANSFER"
	TransactionDeposit    TransactionType = "DEPOSIT"
	TransactionWithdrawal TransactionType = "WITHDRAWAL"
)

type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "PENDING"
	TransactionProcessing TransactionStatus = "PROCESSING"
	TransactionCompleted  TransactionStatus = "COMPLETED"
	TransactionFailed     TransactionStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionCompleted || s == TransactionFailed
}

// ParseTransactionStatus returns the status named by s and whether it is known.
func ParseTransactionStatus(s string) (TransactionStatus, bool) {
	switch st := TransactionStatus(s); st {
	case TransactionPending, TransactionProcessing, TransactionCompleted, TransactionFailed:
		return st, true
	}
	return "", false
}

type StepStatus string

const (
	StepPending     StepStatus = "PENDING"
	StepCompleted   StepStatus = "COMPLETED"
	StepFailed      StepStatus = "FAILED"
	StepCompensated StepStatus = "COMPENSATED"
)

type StepName string

const (
	StepDebitFromAccount StepName = "DEBIT_FROM_ACCOUNT"
	StepCreditToAccount  StepName = "CREDIT_TO_ACCOUNT"
)

type HistoryAction string

const (
	HistoryDebited  HistoryAction = "DEBITED"
	HistoryCredited HistoryAction = "CREDITED"
)

// Account is owned by the account service. Balance and Version are only
// changed through the balance store's locked debit/credit path.
type Account struct {
	AccountNumber  string          `json:"accountNumber"`
	UserID         string          `json:"userId"`
	Balance        decimal.Decimal `json:"balance"`
	MinimumBalance decimal.Decimal `json:"minimumBalance"`
	Currency       string          `json:"currency"`
	Status         AccountStatus   `json:"status"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"createdTimestamp"`
	UpdatedAt      time.Time       `json:"updatedTimestamp"`
}

// AvailableBalance is the amount that can be debited without breaching the minimum.
func (a *Account) AvailableBalance() decimal.Decimal {
	available := a.Balance.Sub(a.MinimumBalance)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

// AccountHistory is the append-only audit record written for every applied mutation.
type AccountHistory struct {
	ID            int64           `json:"id"`
	AccountNumber string          `json:"accountNumber"`
	Action        HistoryAction   `json:"action"`
	OldBalance    decimal.Decimal `json:"oldBalance"`
	NewBalance    decimal.Decimal `json:"newBalance"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transactionId"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     time.Time       `json:"createdTimestamp"`
}

// BalanceMutation is a single debit or credit request against one account.
type BalanceMutation struct {
	AccountNumber string
	Amount        decimal.Decimal
	TransactionID string
	Description   string
}

// BalanceChange is the result of an applied (or replayed) mutation.
type BalanceChange struct {
	Account    Account
	OldBalance decimal.Decimal
	NewBalance decimal.Decimal
	Replayed   bool
}

// AccountSnapshot is what the account service exposes to other services.
type AccountSnapshot struct {
	AccountNumber  string          `json:"accountNumber"`
	UserID         string          `json:"userId"`
	Balance        decimal.Decimal `json:"balance"`
	MinimumBalance decimal.Decimal `json:"minimumBalance"`
	Currency       string          `json:"currency"`
	Status         AccountStatus   `json:"status"`
	Version        int64           `json:"version"`
}

// Transaction is the ledger record of one transfer attempt. It is created once
// and afterwards only mutated by the saga orchestrator.
type Transaction struct {
	ID                     string            `json:"transactionId"`
	FromAccount            string            `json:"fromAccount"`
	ToAccount              string            `json:"toAccount"`
	Amount                 decimal.Decimal   `json:"amount"`
	Type                   TransactionType   `json:"type"`
	Status                 TransactionStatus `json:"status"`
	Description            string            `json:"description,omitempty"`
	InitiatedBy            string            `json:"initiatedBy"`
	ErrorMessage           string            `json:"errorMessage,omitempty"`
	RequiresReconciliation bool              `json:"requiresReconciliation"`
	CreatedAt              time.Time         `json:"createdTimestamp"`
	CompletedAt            *time.Time        `json:"completedTimestamp,omitempty"`
}

// TransactionStep is one entry of the step log. Its status is the record of
// what has actually taken effect on the remote account service.
type TransactionStep struct {
	TransactionID string     `json:"transactionId"`
	Name          StepName   `json:"stepName"`
	Order         int        `json:"stepOrder"`
	AccountNumber string     `json:"accountNumber"`
	Status        StepStatus `json:"status"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	CreatedAt     time.Time  `json:"createdTimestamp"`
	CompletedAt   *time.Time `json:"completedTimestamp,omitempty"`
	CompensatedAt *time.Time `json:"compensatedTimestamp,omitempty"`
}

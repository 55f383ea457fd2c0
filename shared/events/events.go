package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	TransactionCompleted          = "transaction.completed"
	TransactionFailed             = "transaction.failed"
	TransactionCompensationFailed = "transaction.compensation_failed"

	BalanceUpdated = "balance.updated"
)

// Stream names
const (
	AccountEventsStream     = "account.events"
	TransactionEventsStream = "transaction.events"
)

// Base event structure
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Decode re-reads the generic Data payload into out.
func (e Event) Decode(out any) error {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to re-marshal %s payload: %w", e.Type, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Keyed payloads choose their partition key on buses that support one.
type Keyed interface {
	PartitionKey() string
}

// TransactionEvent is published once a transaction reaches a terminal state,
// and again if compensation could not be completed.
type TransactionEvent struct {
	TransactionID string          `json:"transactionId"`
	FromAccount   string          `json:"fromAccount"`
	ToAccount     string          `json:"toAccount"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"transactionType"`
	Status        string          `json:"status"`
	Description   string          `json:"description,omitempty"`
	InitiatedBy   string          `json:"initiatedBy"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

func (e TransactionEvent) PartitionKey() string { return e.TransactionID }

// BalanceUpdatedEvent is published by the account service after every applied
// debit or credit.
type BalanceUpdatedEvent struct {
	AccountNumber string          `json:"accountNumber"`
	UserID        string          `json:"userId"`
	OldBalance    decimal.Decimal `json:"oldBalance"`
	NewBalance    decimal.Decimal `json:"newBalance"`
	Amount        decimal.Decimal `json:"amount"`
	Direction     string          `json:"transactionType"`
	TransactionID string          `json:"transactionId"`
	Version       int64           `json:"version"`
	Status        string          `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
}

func (e BalanceUpdatedEvent) PartitionKey() string { return e.AccountNumber }

const (
	DirectionDebit  = "DEBIT"
	DirectionCredit = "CREDIT"
)

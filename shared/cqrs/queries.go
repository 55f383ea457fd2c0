package cqrs

import "github.com/eaglebank/eagle/shared/models"

// ---------- Account queries ----------

// GetAccountQuery fetches a single account by account number.
type GetAccountQuery struct {
	AccountNumber string
}

// ---------- Transaction queries ----------

// Requester identifies who is asking. Operators may read any transaction;
// everyone else sees transactions they initiated or that touch their accounts.
type Requester struct {
	UserID   string
	Operator bool
}

// GetTransactionQuery fetches a single transaction with its steps.
type GetTransactionQuery struct {
	TransactionID string
	Requester     Requester
}

// ListByAccountQuery pages through transactions where the account is on either side.
// Size 0 means unpaged.
type ListByAccountQuery struct {
	AccountNumber string
	Page          int
	Size          int
	Requester     Requester
}

// ListByUserQuery fetches all transactions initiated by a user.
type ListByUserQuery struct {
	UserID    string
	Requester Requester
}

// ListByStatusQuery fetches all transactions currently in a status.
type ListByStatusQuery struct {
	Status    models.TransactionStatus
	Requester Requester
}

// ListReconciliationQuery fetches transactions flagged for manual reconciliation.
type ListReconciliationQuery struct {
	Requester Requester
}

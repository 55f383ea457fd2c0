package saga

import (
	"context"

	"github.com/eaglebank/eagle/shared/models"
	"github.com/eaglebank/eagle/shared/utils"
	"github.com/shopspring/decimal"
)

// AccountOperations is the remote account service as seen by the saga.
type AccountOperations interface {
	GetAccount(ctx context.Context, accountNumber string) (*models.AccountSnapshot, error)
	Debit(ctx context.Context, accountNumber string, amount decimal.Decimal, transactionID, description string) (*models.AccountSnapshot, error)
	Credit(ctx context.Context, accountNumber string, amount decimal.Decimal, transactionID, description string) (*models.AccountSnapshot, error)
}

// Ledger persists transactions and their step logs.
type Ledger interface {
	CreateTransaction(ctx context.Context, tx *models.Transaction, steps []models.TransactionStep) error
	UpdateTransaction(ctx context.Context, tx *models.Transaction, expected models.TransactionStatus) error
	UpdateStep(ctx context.Context, step *models.TransactionStep, expected models.StepStatus) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	ListSteps(ctx context.Context, transactionID string) ([]models.TransactionStep, error)
}

// StepResult is the outcome of running one step or its reverse action.
type StepResult struct {
	Step     models.StepName
	Snapshot *models.AccountSnapshot
	Err      error
}

func (r StepResult) Failed() bool { return r.Err != nil }

type direction int

const (
	debit direction = iota
	credit
)

func (d direction) opposite() direction {
	if d == debit {
		return credit
	}
	return debit
}

func forwardDirection(name models.StepName) direction {
	if name == models.StepDebitFromAccount {
		return debit
	}
	return credit
}

// planSteps lays out the step log for a transaction. Transfers get a debit then
// a credit; deposits and withdrawals get the one step that touches a real account.
func planSteps(tx *models.Transaction) []models.TransactionStep {
	newStep := func(name models.StepName, order int, account string) models.TransactionStep {
		return models.TransactionStep{
			TransactionID: tx.ID,
			Name:          name,
			Order:         order,
			AccountNumber: account,
			Status:        models.StepPending,
			CreatedAt:     tx.CreatedAt,
		}
	}

	switch tx.Type {
	case models.TransactionDeposit:
		return []models.TransactionStep{newStep(models.StepCreditToAccount, 1, tx.ToAccount)}
	case models.TransactionWithdrawal:
		return []models.TransactionStep{newStep(models.StepDebitFromAccount, 1, tx.FromAccount)}
	default:
		return []models.TransactionStep{
			newStep(models.StepDebitFromAccount, 1, tx.FromAccount),
			newStep(models.StepCreditToAccount, 2, tx.ToAccount),
		}
	}
}

func stepDescription(tx *models.Transaction, step *models.TransactionStep) string {
	switch tx.Type {
	case models.TransactionDeposit:
		return "Deposit: " + tx.Description
	case models.TransactionWithdrawal:
		return "Withdrawal: " + tx.Description
	}
	if step.Name == models.StepDebitFromAccount {
		return "Transfer to " + tx.ToAccount
	}
	return "Transfer from " + tx.FromAccount
}

func (o *Orchestrator) move(ctx context.Context, dir direction, tx *models.Transaction, step *models.TransactionStep, transactionID, description string) StepResult {
	var (
		snap *models.AccountSnapshot
		err  error
	)
	if dir == debit {
		snap, err = o.accounts.Debit(ctx, step.AccountNumber, tx.Amount, transactionID, description)
	} else {
		snap, err = o.accounts.Credit(ctx, step.AccountNumber, tx.Amount, transactionID, description)
	}
	return StepResult{Step: step.Name, Snapshot: snap, Err: err}
}

func (o *Orchestrator) execute(ctx context.Context, tx *models.Transaction, step *models.TransactionStep) StepResult {
	return o.move(ctx, forwardDirection(step.Name), tx, step, tx.ID, stepDescription(tx, step))
}

// reverse undoes a completed step under the transaction's reversal id.
func (o *Orchestrator) reverse(ctx context.Context, tx *models.Transaction, step *models.TransactionStep) StepResult {
	return o.move(ctx, forwardDirection(step.Name).opposite(), tx, step,
		utils.ReversalID(tx.ID), "Reversal: "+tx.Description)
}

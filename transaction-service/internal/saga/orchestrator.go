// Package saga runs funds movements across the account service as an ordered
// list of steps. Each step commits independently on the remote side; when a
// later step fails, completed steps are reversed in the opposite order. The
// persisted step log decides what gets reversed.
package saga

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/eaglebank/eagle/shared/apperrors"
	"github.com/eaglebank/eagle/shared/cqrs"
	"github.com/eaglebank/eagle/shared/events"
	"github.com/eaglebank/eagle/shared/models"
	"github.com/eaglebank/eagle/shared/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	publishTimeout    = 2 * time.Second
	defaultStaleAfter = 5 * time.Minute
)

type Orchestrator struct {
	ledger     Ledger
	accounts   AccountOperations
	publisher  events.Publisher
	logger     *zap.SugaredLogger
	staleAfter time.Duration
	now        func() time.Time
	newID      func() string
}

type Option func(*Orchestrator)

// WithStaleAfter sets how long a transaction may stay PENDING or PROCESSING
// before Compensate treats its saga as dead and recovers it.
func WithStaleAfter(d time.Duration) Option {
	return func(o *Orchestrator) { o.staleAfter = d }
}

func NewOrchestrator(ledger Ledger, accounts AccountOperations, publisher events.Publisher, logger *zap.SugaredLogger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		ledger:     ledger,
		accounts:   accounts,
		publisher:  publisher,
		logger:     logger,
		staleAfter: defaultStaleAfter,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      utils.GenerateTransactionID,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Transfer moves money from one account to another. Validation and account
// lookups happen before anything is recorded; after that the caller always gets
// a terminal transaction back, COMPLETED or FAILED.
func (o *Orchestrator) Transfer(ctx context.Context, cmd cqrs.TransferCommand) (*models.TransactionView, error) {
	if err := validateAmount(cmd.Amount); err != nil {
		return nil, err
	}
	if cmd.FromAccount == "" || cmd.ToAccount == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "Source and destination accounts are required")
	}
	if cmd.FromAccount == cmd.ToAccount {
		return nil, apperrors.New(apperrors.ErrValidation, "Cannot transfer to the same account")
	}
	if view, err := o.existing(ctx, cmd.TransactionID); view != nil || err != nil {
		return view, err
	}
	if err := o.requireAccount(ctx, cmd.FromAccount, "Source account"); err != nil {
		return nil, err
	}
	if err := o.requireAccount(ctx, cmd.ToAccount, "Destination account"); err != nil {
		return nil, err
	}

	tx := o.newTransaction(cmd.TransactionID, models.TransactionTransfer, cmd.Amount, cmd.Description, cmd.InitiatedBy)
	tx.FromAccount = cmd.FromAccount
	tx.ToAccount = cmd.ToAccount
	return o.run(ctx, tx)
}

// Deposit credits one account from outside the bank.
func (o *Orchestrator) Deposit(ctx context.Context, cmd cqrs.SingleAccountCommand) (*models.TransactionView, error) {
	cmd.Type = models.TransactionDeposit
	return o.singleAccount(ctx, cmd)
}

// Withdraw debits one account to outside the bank.
func (o *Orchestrator) Withdraw(ctx context.Context, cmd cqrs.SingleAccountCommand) (*models.TransactionView, error) {
	cmd.Type = models.TransactionWithdrawal
	return o.singleAccount(ctx, cmd)
}

func (o *Orchestrator) singleAccount(ctx context.Context, cmd cqrs.SingleAccountCommand) (*models.TransactionView, error) {
	if err := validateAmount(cmd.Amount); err != nil {
		return nil, err
	}
	if cmd.AccountNumber == "" || cmd.AccountNumber == models.SystemAccount {
		return nil, apperrors.New(apperrors.ErrValidation, "A valid account number is required")
	}
	if view, err := o.existing(ctx, cmd.TransactionID); view != nil || err != nil {
		return view, err
	}
	if err := o.requireAccount(ctx, cmd.AccountNumber, "Account"); err != nil {
		return nil, err
	}

	description := cmd.Description
	tx := o.newTransaction(cmd.TransactionID, cmd.Type, cmd.Amount, description, cmd.InitiatedBy)
	if cmd.Type == models.TransactionDeposit {
		if description == "" {
			tx.Description = "Deposit"
		}
		tx.FromAccount = models.SystemAccount
		tx.ToAccount = cmd.AccountNumber
	} else {
		if description == "" {
			tx.Description = "Withdrawal"
		}
		tx.FromAccount = cmd.AccountNumber
		tx.ToAccount = models.SystemAccount
	}
	return o.run(ctx, tx)
}

// Compensate re-runs compensation for a failed transaction, or settles one
// whose saga stopped before finishing. Only COMPLETED steps are reversed, so
// calling it again has no further effect. The reconciliation flag is cleared
// once no step is left COMPLETED.
func (o *Orchestrator) Compensate(ctx context.Context, cmd cqrs.CompensateCommand) (*models.TransactionView, error) {
	view, err := o.view(ctx, cmd.TransactionID)
	if err != nil {
		return nil, err
	}
	tx, steps := &view.Transaction, view.Steps
	if tx.Status == models.TransactionCompleted {
		return nil, apperrors.New(apperrors.ErrInvalidState, "Transaction %s completed successfully and cannot be compensated", tx.ID)
	}

	store := context.WithoutCancel(ctx)
	o.logger.Infow("manual compensation requested", "transactionId", tx.ID, "status", tx.Status, "requestedBy", cmd.RequestingUserID)

	if !tx.Status.IsTerminal() {
		return o.recoverStuck(store, tx)
	}

	problems := o.compensate(store, tx, steps)
	if len(problems) == 0 && !anyCompleted(steps) {
		tx.RequiresReconciliation = false
	}
	tx.ErrorMessage = joinMessages(tx.ErrorMessage, problems)
	if !o.saveTransaction(store, tx, models.TransactionFailed) {
		return o.view(store, tx.ID)
	}
	if len(problems) > 0 {
		o.publish(store, events.TransactionCompensationFailed, tx)
	}
	return &models.TransactionView{Transaction: *tx, Steps: steps}, nil
}

// recoverStuck settles a transaction left PENDING or PROCESSING. The record is
// claimed as FAILED before any step is touched, so a saga that is still
// running can no longer complete it.
func (o *Orchestrator) recoverStuck(ctx context.Context, tx *models.Transaction) (*models.TransactionView, error) {
	if age := o.now().Sub(tx.CreatedAt); age < o.staleAfter {
		return nil, apperrors.New(apperrors.ErrInvalidState,
			"Transaction %s is still in progress (started %s ago)", tx.ID, age.Truncate(time.Second))
	}

	previous := tx.Status
	completedAt := o.now()
	tx.Status = models.TransactionFailed
	tx.ErrorMessage = "Recovered by manual compensation"
	tx.RequiresReconciliation = true
	tx.CompletedAt = &completedAt
	if err := o.ledger.UpdateTransaction(ctx, tx, previous); err != nil {
		if errors.Is(err, apperrors.ErrInvalidState) {
			return nil, apperrors.New(apperrors.ErrInvalidState, "Transaction %s changed while being recovered", tx.ID)
		}
		return nil, err
	}
	o.logger.Warnw("stuck transaction claimed for recovery", "transactionId", tx.ID, "previousStatus", previous)

	// Read after the claim: the saga may have recorded steps in the meantime.
	steps, err := o.ledger.ListSteps(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	for i := range steps {
		if steps[i].Status != models.StepPending {
			continue
		}
		// A PENDING step may or may not have reached the account service.
		steps[i].Status = models.StepFailed
		steps[i].ErrorMessage = "Abandoned before completion"
		if !o.saveStep(ctx, tx, &steps[i], models.StepPending) {
			if fresh, err := o.ledger.ListSteps(ctx, tx.ID); err == nil && len(fresh) == len(steps) {
				steps[i] = fresh[i]
			}
		}
	}

	problems := o.compensate(ctx, tx, steps)
	if len(problems) > 0 {
		tx.ErrorMessage = joinMessages(tx.ErrorMessage, problems)
		o.saveTransaction(ctx, tx, models.TransactionFailed)
	}
	o.publish(ctx, events.TransactionFailed, tx)
	if len(problems) > 0 {
		o.publish(ctx, events.TransactionCompensationFailed, tx)
	}
	return &models.TransactionView{Transaction: *tx, Steps: steps}, nil
}

func (o *Orchestrator) run(ctx context.Context, tx *models.Transaction) (*models.TransactionView, error) {
	steps := planSteps(tx)
	// Ledger writes and compensation must finish even if the caller goes away.
	store := context.WithoutCancel(ctx)

	if err := o.ledger.CreateTransaction(store, tx, steps); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateTransaction) {
			return o.view(store, tx.ID)
		}
		return nil, err
	}
	o.logger.Infow("transaction created", "transactionId", tx.ID, "type", tx.Type,
		"from", tx.FromAccount, "to", tx.ToAccount, "amount", tx.Amount.String())

	tx.Status = models.TransactionProcessing
	if !o.saveTransaction(store, tx, models.TransactionPending) {
		return o.abandon(store, tx, nil)
	}

	var failure *StepResult
	for i := range steps {
		step := &steps[i]
		result := o.execute(ctx, tx, step)
		if result.Failed() {
			step.Status = models.StepFailed
			step.ErrorMessage = result.Err.Error()
			if !o.saveStep(store, tx, step, models.StepPending) {
				return o.abandon(store, tx, nil)
			}
			failure = &result
			break
		}
		completedAt := o.now()
		step.Status = models.StepCompleted
		step.CompletedAt = &completedAt
		if !o.saveStep(store, tx, step, models.StepPending) {
			return o.abandon(store, tx, step)
		}
	}

	if failure == nil {
		if !o.finish(store, tx, models.TransactionCompleted, "") {
			return o.abandon(store, tx, nil)
		}
		o.logger.Infow("transaction completed", "transactionId", tx.ID)
		return &models.TransactionView{Transaction: *tx, Steps: steps}, nil
	}

	o.logger.Warnw("saga step failed", "transactionId", tx.ID, "step", failure.Step, "error", failure.Err)
	if outcomeUnknown(failure.Err) {
		tx.RequiresReconciliation = true
	}
	problems := o.compensate(store, tx, steps)
	if !o.finish(store, tx, models.TransactionFailed, joinMessages(failureMessage(failure), problems)) {
		return o.abandon(store, tx, nil)
	}
	if len(problems) > 0 {
		o.publish(store, events.TransactionCompensationFailed, tx)
	}
	o.logger.Infow("transaction failed", "transactionId", tx.ID, "requiresReconciliation", tx.RequiresReconciliation)
	return &models.TransactionView{Transaction: *tx, Steps: steps}, nil
}

// abandon hands the transaction to whoever settled it first and returns the
// stored record. applied is a step whose remote call landed after the
// takeover; the new owner never saw it, so it is reversed here.
func (o *Orchestrator) abandon(ctx context.Context, tx *models.Transaction, applied *models.TransactionStep) (*models.TransactionView, error) {
	o.logger.Warnw("transaction settled by another writer; saga stopped", "transactionId", tx.ID)
	if applied != nil {
		if result := o.reverse(ctx, tx, applied); result.Failed() {
			o.logger.Errorw("failed to reverse step applied after takeover; transaction needs reconciliation",
				"transactionId", tx.ID, "step", applied.Name, "account", applied.AccountNumber, "error", result.Err)
			o.publish(ctx, events.TransactionCompensationFailed, tx)
		} else {
			o.logger.Infow("reversed step applied after takeover", "transactionId", tx.ID, "step", applied.Name)
		}
	}
	return o.view(ctx, tx.ID)
}

// compensate reverses COMPLETED steps from the highest stepOrder down and
// returns a message for each reversal that did not go through.
func (o *Orchestrator) compensate(ctx context.Context, tx *models.Transaction, steps []models.TransactionStep) []string {
	sort.Slice(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })

	var problems []string
	for i := len(steps) - 1; i >= 0; i-- {
		step := &steps[i]
		if step.Status != models.StepCompleted {
			continue
		}
		result := o.reverse(ctx, tx, step)
		if result.Failed() {
			err := apperrors.New(apperrors.ErrCompensationFailed, "Compensation of %s on %s failed: %v", step.Name, step.AccountNumber, result.Err)
			o.logger.Errorw("compensation failed; transaction needs reconciliation",
				"transactionId", tx.ID, "step", step.Name, "account", step.AccountNumber, "error", result.Err)
			tx.RequiresReconciliation = true
			problems = append(problems, err.Error())
			continue
		}
		compensatedAt := o.now()
		step.Status = models.StepCompensated
		step.CompensatedAt = &compensatedAt
		// A conflict means a concurrent compensation recorded it first; the
		// reversal itself is deduplicated by the account service.
		o.saveStep(ctx, tx, step, models.StepCompleted)
		o.logger.Infow("step compensated", "transactionId", tx.ID, "step", step.Name, "account", step.AccountNumber)
	}
	return problems
}

// finish records the terminal status and publishes it. It returns false when
// the transaction was already settled elsewhere.
func (o *Orchestrator) finish(ctx context.Context, tx *models.Transaction, status models.TransactionStatus, errorMessage string) bool {
	completedAt := o.now()
	tx.Status = status
	tx.ErrorMessage = errorMessage
	tx.CompletedAt = &completedAt

	err := o.ledger.UpdateTransaction(ctx, tx, models.TransactionProcessing)
	if errors.Is(err, apperrors.ErrInvalidState) {
		// The PROCESSING write may have been lost; only a terminal record
		// means someone else owns the transaction.
		if current, getErr := o.ledger.GetTransaction(ctx, tx.ID); getErr == nil && !current.Status.IsTerminal() {
			err = o.ledger.UpdateTransaction(ctx, tx, current.Status)
		}
	}
	switch {
	case errors.Is(err, apperrors.ErrInvalidState):
		return false
	case err != nil:
		tx.RequiresReconciliation = true
		o.logger.Errorw("failed to persist transaction", "transactionId", tx.ID, "status", tx.Status, "error", err)
	}

	eventType := events.TransactionCompleted
	if status == models.TransactionFailed {
		eventType = events.TransactionFailed
	}
	o.publish(ctx, eventType, tx)
	return true
}

// saveTransaction and saveStep write only over the expected stored status and
// report false when another writer changed the record first. Other write
// errors never abort the saga: a remote effect may already exist, so the
// transaction is flagged for reconciliation instead.
func (o *Orchestrator) saveTransaction(ctx context.Context, tx *models.Transaction, expected models.TransactionStatus) bool {
	err := o.ledger.UpdateTransaction(ctx, tx, expected)
	if errors.Is(err, apperrors.ErrInvalidState) {
		o.logger.Warnw("transaction changed by another writer", "transactionId", tx.ID, "error", err)
		return false
	}
	if err != nil {
		tx.RequiresReconciliation = true
		o.logger.Errorw("failed to persist transaction", "transactionId", tx.ID, "status", tx.Status, "error", err)
	}
	return true
}

func (o *Orchestrator) saveStep(ctx context.Context, tx *models.Transaction, step *models.TransactionStep, expected models.StepStatus) bool {
	err := o.ledger.UpdateStep(ctx, step, expected)
	if errors.Is(err, apperrors.ErrInvalidState) {
		o.logger.Warnw("step changed by another writer", "transactionId", tx.ID, "step", step.Name, "error", err)
		return false
	}
	if err != nil {
		tx.RequiresReconciliation = true
		o.logger.Errorw("failed to persist step", "transactionId", tx.ID, "step", step.Name, "status", step.Status, "error", err)
	}
	return true
}

func (o *Orchestrator) publish(ctx context.Context, eventType string, tx *models.Transaction) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := o.publisher.Publish(ctx, events.TransactionEventsStream, eventType, events.TransactionEvent{
		TransactionID: tx.ID,
		FromAccount:   tx.FromAccount,
		ToAccount:     tx.ToAccount,
		Amount:        tx.Amount,
		Type:          string(tx.Type),
		Status:        string(tx.Status),
		Description:   tx.Description,
		InitiatedBy:   tx.InitiatedBy,
		ErrorMessage:  tx.ErrorMessage,
		Timestamp:     o.now(),
	})
	if err != nil {
		o.logger.Errorw("failed to publish transaction event", "transactionId", tx.ID, "event", eventType, "error", err)
	}
}

// existing returns the stored transaction for a caller-supplied id, or nil
// when the id is new.
func (o *Orchestrator) existing(ctx context.Context, transactionID string) (*models.TransactionView, error) {
	if transactionID == "" {
		return nil, nil
	}
	if !utils.ValidateTransactionID(transactionID) || utils.IsReversalID(transactionID) {
		return nil, apperrors.New(apperrors.ErrValidation, "Invalid transactionId: %s", transactionID)
	}
	view, err := o.view(ctx, transactionID)
	if errors.Is(err, apperrors.ErrTransactionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.logger.Infow("transaction already exists; returning stored record", "transactionId", transactionID, "status", view.Status)
	return view, nil
}

func (o *Orchestrator) view(ctx context.Context, transactionID string) (*models.TransactionView, error) {
	tx, err := o.ledger.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	steps, err := o.ledger.ListSteps(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return &models.TransactionView{Transaction: *tx, Steps: steps}, nil
}

func (o *Orchestrator) requireAccount(ctx context.Context, accountNumber, label string) error {
	_, err := o.accounts.GetAccount(ctx, accountNumber)
	if errors.Is(err, apperrors.ErrAccountNotFound) {
		return apperrors.New(apperrors.ErrAccountNotFound, "%s not found: %s", label, accountNumber)
	}
	return err
}

func (o *Orchestrator) newTransaction(id string, txType models.TransactionType, amount decimal.Decimal, description, initiatedBy string) *models.Transaction {
	if id == "" {
		id = o.newID()
	}
	return &models.Transaction{
		ID:          id,
		Amount:      amount,
		Type:        txType,
		Status:      models.TransactionPending,
		Description: description,
		InitiatedBy: initiatedBy,
		CreatedAt:   o.now(),
	}
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.New(apperrors.ErrValidation, "Amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return apperrors.New(apperrors.ErrValidation, "Amount must have at most two decimal places")
	}
	return nil
}

func failureMessage(result *StepResult) string {
	if result.Step == models.StepDebitFromAccount {
		return "Debit failed: " + result.Err.Error()
	}
	return "Credit failed: " + result.Err.Error()
}

// outcomeUnknown reports failures where the remote call may still have been applied.
func outcomeUnknown(err error) bool {
	return errors.Is(err, apperrors.ErrRemoteUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

func anyCompleted(steps []models.TransactionStep) bool {
	for _, step := range steps {
		if step.Status == models.StepCompleted {
			return true
		}
	}
	return false
}

func joinMessages(first string, rest []string) string {
	parts := make([]string, 0, len(rest)+1)
	if first != "" {
		parts = append(parts, first)
	}
	return strings.Join(append(parts, rest...), "; ")
}

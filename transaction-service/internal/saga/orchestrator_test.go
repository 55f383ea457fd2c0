package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eaglebank/eagle/shared/apperrors"
	"github.com/eaglebank/eagle/shared/cqrs"
	"github.com/eaglebank/eagle/shared/events"
	"github.com/eaglebank/eagle/shared/logger"
	"github.com/eaglebank/eagle/shared/models"
	"github.com/eaglebank/eagle/transaction-service/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAccounts applies the same rules as the account service: debits respect
// the minimum balance, both directions require an active account, and a
// repeated (account, transactionId, direction) is not applied twice.
type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]*models.AccountSnapshot
	applied  map[string]bool
	fail     map[string]error
	block    map[string]bool
	gates    map[string]*gate
	calls    []string
}

// gate holds one remote call until released.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func (f *fakeAccounts) hold(op, account string) *gate {
	g := &gate{entered: make(chan struct{}), release: make(chan struct{})}
	f.mu.Lock()
	f.gates[op+":"+account] = g
	f.mu.Unlock()
	return g
}

func newFakeAccounts(balances map[string]string) *fakeAccounts {
	f := &fakeAccounts{
		accounts: map[string]*models.AccountSnapshot{},
		applied:  map[string]bool{},
		fail:     map[string]error{},
		block:    map[string]bool{},
		gates:    map[string]*gate{},
	}
	for n, b := range balances {
		f.accounts[n] = &models.AccountSnapshot{
			AccountNumber: n,
			UserID:        "usr-" + n,
			Balance:       decimal.RequireFromString(b),
			Currency:      "GBP",
			Status:        models.AccountActive,
		}
	}
	return f
}

func (f *fakeAccounts) balance(n string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[n].Balance
}

func (f *fakeAccounts) setFailure(op, account string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, op+":"+account)
		return
	}
	f.fail[op+":"+account] = err
}

func (f *fakeAccounts) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAccounts) GetAccount(_ context.Context, n string) (*models.AccountSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[n]
	if !ok {
		return nil, apperrors.New(apperrors.ErrAccountNotFound, "Account not found: %s", n)
	}
	snap := *acc
	return &snap, nil
}

func (f *fakeAccounts) Debit(ctx context.Context, n string, amount decimal.Decimal, txID, _ string) (*models.AccountSnapshot, error) {
	return f.apply(ctx, "debit", n, amount.Neg(), txID)
}

func (f *fakeAccounts) Credit(ctx context.Context, n string, amount decimal.Decimal, txID, _ string) (*models.AccountSnapshot, error) {
	return f.apply(ctx, "credit", n, amount, txID)
}

func (f *fakeAccounts) apply(ctx context.Context, op, n string, delta decimal.Decimal, txID string) (*models.AccountSnapshot, error) {
	f.mu.Lock()
	blocked := f.block[op+":"+n]
	g := f.gates[op+":"+n]
	delete(f.gates, op+":"+n)
	f.mu.Unlock()
	if g != nil {
		close(g.entered)
		<-g.release
	}
	if blocked {
		<-ctx.Done()
		return nil, apperrors.New(apperrors.ErrRemoteUnavailable, "Account service did not respond: %v", ctx.Err())
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s %s %s %s", op, n, delta.Abs().StringFixed(2), txID))
	if err := f.fail[op+":"+n]; err != nil {
		return nil, err
	}
	acc, ok := f.accounts[n]
	if !ok {
		return nil, apperrors.New(apperrors.ErrAccountNotFound, "Account not found: %s", n)
	}
	if acc.Status != models.AccountActive {
		return nil, apperrors.New(apperrors.ErrAccountNotActive, "Account is not active. Status: %s", acc.Status)
	}
	key := n + "|" + txID + "|" + op
	if !f.applied[key] {
		next := acc.Balance.Add(delta)
		if next.LessThan(acc.MinimumBalance) {
			return nil, apperrors.New(apperrors.ErrInsufficientBalance, "Insufficient balance. Available: %s, Required: %s",
				acc.Balance.StringFixed(2), delta.Abs().StringFixed(2))
		}
		acc.Balance = next
		acc.Version++
		f.applied[key] = true
	}
	snap := *acc
	return &snap, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TransactionEvent
	types  []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, eventType string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, eventType)
	p.events = append(p.events, data.(events.TransactionEvent))
	return p.err
}

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

type harness struct {
	orch      *Orchestrator
	store     *repository.MemoryTransactionStore
	accounts  *fakeAccounts
	publisher *recordingPublisher
}

func newHarness(balances map[string]string, opts ...Option) *harness {
	h := &harness{
		store:     repository.NewMemoryTransactionStore(),
		accounts:  newFakeAccounts(balances),
		publisher: &recordingPublisher{},
	}
	h.orch = NewOrchestrator(h.store, h.accounts, h.publisher, logger.Nop(), opts...)
	return h
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func transfer(from, to, amount string) cqrs.TransferCommand {
	return cqrs.TransferCommand{FromAccount: from, ToAccount: to, Amount: dec(amount), Description: "rent", InitiatedBy: "usr-" + from}
}

func assertBalance(t *testing.T, h *harness, account, want string) {
	t.Helper()
	got := h.accounts.balance(account)
	assert.True(t, got.Equal(dec(want)), "balance of %s: want %s, got %s", account, want, got)
}

func TestTransferCompletes(t *testing.T) {
	h := newHarness(map[string]string{"A": "500", "B": "100"})

	view, err := h.orch.Transfer(context.Background(), transfer("A", "B", "100"))
	require.NoError(t, err)

	assert.Equal(t, models.TransactionCompleted, view.Status)
	assert.NotNil(t, view.CompletedAt)
	assert.Empty(t, view.ErrorMessage)
	require.Len(t, view.Steps, 2)
	assert.Equal(t, models.StepCompleted, view.Steps[0].Status)
	assert.Equal(t, models.StepCompleted, view.Steps[1].Status)
	assertBalance(t, h, "A", "400")
	assertBalance(t, h, "B", "200")

	stored, err := h.store.GetTransaction(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionCompleted, stored.Status)

	assert.Equal(t, []string{events.TransactionCompleted}, h.publisher.eventTypes())
	assert.Equal(t, view.ID, h.publisher.events[0].TransactionID)
	assert.Equal(t, "COMPLETED", h.publisher.events[0].Status)
}

func TestTransferFirstStepFails(t *testing.T) {
	h := newHarness(map[string]string{"A": "50", "B": "0"})

	view, err := h.orch.Transfer(context.Background(), transfer("A", "B", "100"))
	require.NoError(t, err)

	assert.Equal(t, models.TransactionFailed, view.Status)
	assert.Contains(t, view.ErrorMessage, "Debit failed: Insufficient balance")
	assert.False(t, view.RequiresReconciliation)
	assert.Equal(t, models.StepFailed, view.Steps[0].Status)
	assert.Equal(t, models.StepPending, view.Steps[1].Status)
	assertBalance(t, h, "A", "50")
	assertBalance(t, h, "B", "0")
	assert.Len(t, h.accounts.callLog(), 1, "nothing to compensate")
	assert.Equal(t, []string{events.TransactionFailed}, h.publisher.eventTypes())
}

func TestTransferSecondStepFailsIsCompensated(t *testing.T) {
	h := newHarness(map[string]string{"A": "500", "B": "100"})
	h.accounts.accounts["B"].Status = models.AccountSuspended

	view, err := h.orch.Transfer(context.Background(), transfer("A", "B", "100"))
	require.NoError(t, err)

	assert.Equal(t, models.TransactionFailed, view.Status)
	assert.Contains(t, view.ErrorMessage, "Credit failed: Account is not active")
	assert.False(t, view.RequiresReconciliation)
	assert.Equal(t, models.StepCompensated, view.Steps[0].Status)
	assert.NotNil(t, view.Steps[0].CompensatedAt)
	assert.Equal(t, models.StepFailed, view.Steps[1].Status)
	assertBalance(t, h, "A", "500")
	assertBalance(t, h, "B", "100")

	calls := h.accounts.callLog()
	require.Len(t, calls, 3)
	assert.Equal(t, fmt.Sprintf("credit A 100.00 %s-REVERSAL", view.ID), calls[2])

	steps, err := h.store.ListSteps(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepCompensated, steps[0].Status)
}

func TestDepositAndWithdraw(t *testing.T) {
	h := newHarness(map[string]string{"C": "100"})
	ctx := context.Background()

	view, err := h.orch.Deposit(ctx, cqrs.SingleAccountCommand{AccountNumber: "C", Amount: dec("200"), InitiatedBy: "usr-C"})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionCompleted, view.Status)
	assert.Equal(t, models.TransactionDeposit, view.Type)
	assert.Equal(t, models.SystemAccount, view.FromAccount)
	assert.Equal(t, "Deposit", view.Description)
	require.Len(t, view.Steps, 1)
	assert.Equal(t, models.StepCreditToAccount, view.Steps[0].Name)
	assertBalance(t, h, "C", "300")

	view, err = h.orch.Withdraw(ctx, cqrs.SingleAccountCommand{AccountNumber: "C", Amount: dec("500"), InitiatedBy: "usr-C"})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionFailed, view.Status)
	assert.Equal(t, models.SystemAccount, view.ToAccount)
	assert.Equal(t, models.StepFailed, view.Steps[0].Status)
	assertBalance(t, h, "C", "300")

	view, err = h.orch.Withdraw(ctx, cqrs.SingleAccountCommand{AccountNumber: "C", Amount: dec("50.25")})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionCompleted, view.Status)
	assertBalance(t, h, "C", "249.75")
}

func TestRejectedBeforeAnyRecord(t *testing.T) {
	h := newHarness(map[string]string{"A": "100", "B": "100"})
	ctx := context.Background()

	cases := []struct {
		name    string
		run     func() (*models.TransactionView, error)
		wantErr error
		wantMsg string
	}{
		{"same account", func() (*models.TransactionView, error) { return h.orch.Transfer(ctx, transfer("A", "A", "10")) },
			apperrors.ErrValidation, "Cannot transfer to the same account"},
		{"zero amount", func() (*models.TransactionView, error) { return h.orch.Transfer(ctx, transfer("A", "B", "0")) },
			apperrors.ErrValidation, "Amount must be greater than zero"},
		{"negative amount", func() (*models.TransactionView, error) { return h.orch.Transfer(ctx, transfer("A", "B", "-5")) },
			apperrors.ErrValidation, "Amount must be greater than zero"},
		{"sub-penny amount", func() (*models.TransactionView, error) { return h.orch.Transfer(ctx, transfer("A", "B", "1.001")) },
			apperrors.ErrValidation, "two decimal places"},
		{"unknown source", func() (*models.TransactionView, error) { return h.orch.Transfer(ctx, transfer("X", "B", "10")) },
			apperrors.ErrAccountNotFound, "Source account not found: X"},
		{"unknown destination", func() (*models.TransactionView, error) { return h.orch.Transfer(ctx, transfer("A", "Y", "10")) },
			apperrors.ErrAccountNotFound, "Destination account not found: Y"},
		{"deposit to system", func() (*models.TransactionView, error) {
			return h.orch.Deposit(ctx, cqrs.SingleAccountCommand{AccountNumber: models.SystemAccount, Amount: dec("1")})
		}, apperrors.ErrValidation, "valid account number"},
		{"reversal id as key", func() (*models.TransactionView, error) {
			cmd := transfer("A", "B", "10")
			cmd.TransactionID = "TXN1-REVERSAL"
			return h.orch.Transfer(ctx, cmd)
		}, apperrors.ErrValidation, "Invalid transactionId"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			view, err := tc.run()
			assert.Nil(t, view)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}

	for _, account := range []string{"A", "B", "X", "Y", models.SystemAccount} {
		txs, total, err := h.store.ListByAccount(ctx, account, 0, 0)
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, txs)
	}
	assert.Empty(t, h.accounts.callLog())
	assert.Empty(t, h.publisher.eventTypes())
}

func TestCallerSuppliedIDIsIdempotent(t *testing.T) {
	h := newHarness(map[string]string{"A": "500", "B": "0"})
	ctx := context.Background()

	cmd := transfer("A", "B", "100")
	cmd.TransactionID = "client-key-1"

	first, err := h.orch.Transfer(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, "client-key-1", first.ID)

	second, err := h.orch.Transfer(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.TransactionCompleted, second.Status)

	assertBalance(t, h, "A", "400")
	assertBalance(t, h, "B", "100")
	assert.Len(t, h.accounts.callLog(), 2)
	assert.Len(t, h.publisher.eventTypes(), 1)
}

func TestCompensationFailureIsQuarantined(t *testing.T) {
	h := newHarness(map[string]string{"A": "500", "B": "100"})
	ctx := context.Background()
	h.accounts.setFailure("credit", "B", apperrors.New(apperrors.ErrAccountNotActive, "Account is not active. Status: CLOSED"))
	h.accounts.setFailure("credit", "A", apperrors.New(apperrors.ErrRemoteUnavailable, "Account service returned 503"))

	view, err := h.orch.Transfer(ctx, transfer("A", "B", "100"))
	require.NoError(t, err)

	assert.Equal(t, models.TransactionFailed, view.Status)
	assert.True(t, view.RequiresReconciliation)
	assert.Equal(t, models.StepCompleted, view.Steps[0].Status, "unreversed debit stays COMPLETED")
	assert.Contains(t, view.ErrorMessage, "Credit failed: Account is not active")
	assert.Contains(t, view.ErrorMessage, "Compensation of DEBIT_FROM_ACCOUNT on A failed")
	assertBalance(t, h, "A", "400")
	assert.Equal(t, []string{events.TransactionFailed, events.TransactionCompensationFailed}, h.publisher.eventTypes())

	flagged, err := h.store.ListRequiringReconciliation(ctx)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, view.ID, flagged[0].ID)

	h.accounts.setFailure("credit", "A", nil)
	fixed, err := h.orch.Compensate(ctx, cqrs.CompensateCommand{TransactionID: view.ID, RequestingUserID: "ops-1"})
	require.NoError(t, err)
	assert.Equal(t, models.StepCompensated, fixed.Steps[0].Status)
	assert.False(t, fixed.RequiresReconciliation)
	assert.Equal(t, models.TransactionFailed, fixed.Status)
	assertBalance(t, h, "A", "500")

	calls := len(h.accounts.callLog())
	again, err := h.orch.Compensate(ctx, cqrs.CompensateCommand{TransactionID: view.ID})
	require.NoError(t, err)
	assert.Equal(t, models.StepCompensated, again.Steps[0].Status)
	assert.Len(t, h.accounts.callLog(), calls, "second compensation makes no remote calls")
	assertBalance(t, h, "A", "500")

	flagged, err = h.store.ListRequiringReconciliation(ctx)
	require.NoError(t, err)
	assert.Empty(t, flagged)
}

func TestRepeatedReversalIsNotAppliedTwice(t *testing.T) {
	h := newHarness(map[string]string{"A": "500", "B": "100"})
	ctx := context.Background()
	h.accounts.setFailure("credit", "B", apperrors.New(apperrors.ErrAccountNotActive, "closed"))

	view, err := h.orch.Transfer(ctx, transfer("A", "B", "100"))
	require.NoError(t, err)
	assertBalance(t, h, "A", "500")

	// Force the step back to COMPLETED as if its compensation had not been recorded.
	steps, err := h.store.ListSteps(ctx, view.ID)
	require.NoError(t, err)
	steps[0].Status = models.StepCompleted
	steps[0].CompensatedAt = nil
	require.NoError(t, h.store.UpdateStep(ctx, &steps[0], models.StepCompensated))

	_, err = h.orch.Compensate(ctx, cqrs.CompensateCommand{TransactionID: view.ID})
	require.NoError(t, err)
	assertBalance(t, h, "A", "500")
}

func TestCompensateRejectsCompletedAndUnknown(t *testing.T) {
	h := newHarness(map[string]string{"A": "500", "B": "100"})
	ctx := context.Background()

	view, err := h.orch.Transfer(ctx, transfer("A", "B", "100"))
	require.NoError(t, err)

	_, err = h.orch.Compensate(ctx, cqrs.CompensateCommand{TransactionID: view.ID})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	assertBalance(t, h, "A", "400")

	_, err = h.orch.Compensate(ctx, cqrs.CompensateCommand{TransactionID: "nope"})
	assert.ErrorIs(t, err, apperrors.ErrTransactionNotFound)
}

func TestCompensateRecoversStuckTransaction(t *testing.T) {
	h := newHarness(map[string]string{"A": "400", "B": "100"})
	ctx := context.Background()

	now := time.Now().UTC()
	tx := &models.Transaction{
		ID: "TXN-stuck", CreatedAt: now.Add(-time.Hour), FromAccount: "A", ToAccount: "B", Amount: dec("100"), Description: "rent",
		Type: models.TransactionTransfer, Status: models.TransactionProcessing,
	}
	steps := planSteps(tx)
	steps[0].Status = models.StepCompleted
	steps[0].CompletedAt = &now
	require.NoError(t, h.store.CreateTransaction(ctx, tx, steps))

	view, err := h.orch.Compensate(ctx, cqrs.CompensateCommand{TransactionID: "TXN-stuck"})
	require.NoError(t, err)

	assert.Equal(t, models.TransactionFailed, view.Status)
	assert.Contains(t, view.ErrorMessage, "Recovered by manual compensation")
	assert.True(t, view.RequiresReconciliation, "the abandoned credit may have landed")
	assert.Equal(t, models.StepCompensated, view.Steps[0].Status)
	assert.Equal(t, models.StepFailed, view.Steps[1].Status)
	assertBalance(t, h, "A", "500")
	assert.Equal(t, []string{events.TransactionFailed}, h.publisher.eventTypes())
}

func TestCompensateRefusesRunningSaga(t *testing.T) {
	h := newHarness(map[string]string{"A": "500", "B": "100"})
	ctx := context.Background()
	g := h.accounts.hold("credit", "B")

	cmd := transfer("A", "B", "100")
	cmd.TransactionID = "TXN-race"
	done := make(chan *models.TransactionView, 1)
	go func() {
		view, err := h.orch.Transfer(ctx, cmd)
		assert.NoError(t, err)
		done <- view
	}()
	<-g.entered

	_, err := h.orch.Compensate(ctx, cqrs.CompensateCommand{TransactionID: "TXN-race", RequestingUserID: "ops-1"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	assert.Contains(t, err.Error(), "still in progress")

	close(g.release)
	view := <-done
	assert.Equal(t, models.TransactionCompleted, view.Status)
	assertBalance(t, h, "A", "400")
	assertBalance(t, h, "B", "200")
}

func TestRecoveryClaimsTransactionFromLateSaga(t *testing.T) {
	h := newHarness(map[string]string{"A": "500", "B": "100"}, WithStaleAfter(0))
	ctx := context.Background()
	g := h.accounts.hold("credit", "B")

	cmd := transfer("A", "B", "100")
	cmd.TransactionID = "TXN-race"
	done := make(chan *models.TransactionView, 1)
	go func() {
		view, err := h.orch.Transfer(ctx, cmd)
		assert.NoError(t, err)
		done <- view
	}()
	<-g.entered

	recovered, err := h.orch.Compensate(ctx, cqrs.CompensateCommand{TransactionID: "TXN-race", RequestingUserID: "ops-1"})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionFailed, recovered.Status)
	assert.True(t, recovered.RequiresReconciliation)
	assert.Equal(t, models.StepCompensated, recovered.Steps[0].Status)
	assert.Equal(t, models.StepFailed, recovered.Steps[1].Status)
	assertBalance(t, h, "A", "500")

	// The held credit lands after the claim; the saga must undo it, not complete.
	close(g.release)
	view := <-done
	assert.Equal(t, models.TransactionFailed, view.Status)

	stored, err := h.store.GetTransaction(ctx, "TXN-race")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionFailed, stored.Status)
	steps, err := h.store.ListSteps(ctx, "TXN-race")
	require.NoError(t, err)
	assert.Equal(t, models.StepCompensated, steps[0].Status)
	assert.Equal(t, models.StepFailed, steps[1].Status)

	assertBalance(t, h, "A", "500")
	assertBalance(t, h, "B", "100")
	assert.Contains(t, h.accounts.callLog(), "debit B 100.00 TXN-race-REVERSAL")
	assert.Equal(t, []string{events.TransactionFailed}, h.publisher.eventTypes())
}

func TestTimeoutIsStepFailure(t *testing.T) {
	h := newHarness(map[string]string{"A": "500", "B": "100"})
	h.accounts.block["credit:B"] = true

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	view, err := h.orch.Transfer(ctx, transfer("A", "B", "100"))
	require.NoError(t, err)

	assert.Equal(t, models.TransactionFailed, view.Status)
	assert.True(t, view.RequiresReconciliation, "a timed out credit has an unknown outcome")
	assert.Equal(t, models.StepFailed, view.Steps[1].Status)
	assert.Equal(t, models.StepCompensated, view.Steps[0].Status, "compensation runs after the caller's deadline")
	assertBalance(t, h, "A", "500")

	stored, err := h.store.GetTransaction(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionFailed, stored.Status)
}

func TestPublishFailureDoesNotChangeOutcome(t *testing.T) {
	h := newHarness(map[string]string{"A": "500", "B": "100"})
	h.publisher.err = errors.New("broker down")

	view, err := h.orch.Transfer(context.Background(), transfer("A", "B", "100"))
	require.NoError(t, err)
	assert.Equal(t, models.TransactionCompleted, view.Status)
	assert.False(t, view.RequiresReconciliation)

	stored, err := h.store.GetTransaction(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionCompleted, stored.Status)
}

type flakyLedger struct {
	*repository.MemoryTransactionStore
}

func (l flakyLedger) UpdateStep(context.Context, *models.TransactionStep, models.StepStatus) error {
	return errors.New("connection reset")
}

func TestLostLedgerWriteIsFlagged(t *testing.T) {
	h := newHarness(map[string]string{"A": "500", "B": "100"})
	h.orch = NewOrchestrator(flakyLedger{h.store}, h.accounts, h.publisher, logger.Nop())

	view, err := h.orch.Transfer(context.Background(), transfer("A", "B", "100"))
	require.NoError(t, err)
	assert.Equal(t, models.TransactionCompleted, view.Status)
	assert.True(t, view.RequiresReconciliation)

	stored, err := h.store.GetTransaction(context.Background(), view.ID)
	require.NoError(t, err)
	assert.True(t, stored.RequiresReconciliation)
}

func TestConcurrentTransfersConserveMoney(t *testing.T) {
	h := newHarness(map[string]string{"A": "300", "B": "300", "C": "300"})
	ctx := context.Background()
	pairs := [][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}, {"A", "C"}, {"B", "A"}, {"C", "B"}}

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := pairs[i%len(pairs)]
			_, err := h.orch.Transfer(ctx, transfer(p[0], p[1], fmt.Sprintf("%d", 20+i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	total := h.accounts.balance("A").Add(h.accounts.balance("B")).Add(h.accounts.balance("C"))
	assert.True(t, total.Equal(dec("900")), "total %s", total)
	for _, n := range []string{"A", "B", "C"} {
		assert.False(t, h.accounts.balance(n).IsNegative())
	}

	txs, count, err := h.store.ListByAccount(ctx, "A", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 40, count)
	for _, tx := range txs {
		assert.True(t, tx.Status.IsTerminal())
	}
}

package command

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/eaglebank/eagle/account-service/internal/repository"
	"github.com/eaglebank/eagle/shared/apperrors"
	"github.com/eaglebank/eagle/shared/cqrs"
	"github.com/eaglebank/eagle/shared/events"
	"github.com/eaglebank/eagle/shared/logger"
	"github.com/eaglebank/eagle/shared/models"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedEvent struct {
	stream    string
	eventType string
	data      any
}

type recordingPublisher struct {
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, stream, eventType string, data any) error {
	p.events = append(p.events, publishedEvent{stream, eventType, data})
	return p.err
}

func newTestService(t *testing.T, pub events.Publisher) (*AccountCommandService, *repository.MemoryBalanceStore, *repository.AccountReadRepository) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := repository.NewMemoryBalanceStore()
	store.Seed(models.Account{
		AccountNumber:  "01000001",
		UserID:         "usr-001",
		Balance:        decimal.RequireFromString("100.00"),
		MinimumBalance: decimal.RequireFromString("10.00"),
	})
	readRepo := repository.NewAccountReadRepository(store, client, logger.Nop())
	return NewAccountCommandService(store, readRepo, pub, logger.Nop()), store, readRepo
}

func TestDebitPublishesAndRefreshesView(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _, readRepo := newTestService(t, pub)
	ctx := context.Background()

	snap, err := svc.Debit(ctx, cqrs.DebitAccountCommand{
		AccountNumber: "01000001",
		Amount:        decimal.RequireFromString("25.00"),
		TransactionID: "TXN1",
		Description:   "Transfer to 01000002",
	})
	require.NoError(t, err)
	assert.True(t, snap.Balance.Equal(decimal.RequireFromString("75")))
	assert.Equal(t, int64(1), snap.Version)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.AccountEventsStream, pub.events[0].stream)
	assert.Equal(t, events.BalanceUpdated, pub.events[0].eventType)
	payload := pub.events[0].data.(events.BalanceUpdatedEvent)
	assert.Equal(t, events.DirectionDebit, payload.Direction)
	assert.True(t, payload.Amount.Equal(decimal.RequireFromString("25")))
	assert.True(t, payload.OldBalance.Equal(decimal.RequireFromString("100")))

	view, err := readRepo.GetByAccountNumber(ctx, "01000001")
	require.NoError(t, err)
	assert.True(t, view.Balance.Equal(decimal.RequireFromString("75")))
}

func TestCreditReplayDoesNotPublishAgain(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _, _ := newTestService(t, pub)
	cmd := cqrs.CreditAccountCommand{
		AccountNumber: "01000001",
		Amount:        decimal.RequireFromString("5"),
		TransactionID: "TXN9-REVERSAL",
	}

	first, err := svc.Credit(context.Background(), cmd)
	require.NoError(t, err)
	second, err := svc.Credit(context.Background(), cmd)
	require.NoError(t, err)

	assert.True(t, first.Balance.Equal(second.Balance))
	assert.Len(t, pub.events, 1)
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("stream unavailable")}
	svc, store, _ := newTestService(t, pub)

	_, err := svc.Debit(context.Background(), cqrs.DebitAccountCommand{
		AccountNumber: "01000001",
		Amount:        decimal.RequireFromString("1"),
		TransactionID: "TXN1",
	})
	require.NoError(t, err)

	a, err := store.GetAccount(context.Background(), "01000001")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(decimal.RequireFromString("99")))
}

func TestRejectedDebitPublishesNothing(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _, _ := newTestService(t, pub)

	_, err := svc.Debit(context.Background(), cqrs.DebitAccountCommand{
		AccountNumber: "01000001",
		Amount:        decimal.RequireFromString("95"),
		TransactionID: "TXN1",
	})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
	assert.Empty(t, pub.events)
}

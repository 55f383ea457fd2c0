package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/eaglebank/eagle/shared/models"
)

//go:embed schema.sql
var schemaSQL string

// PostgresBalanceStore is the source of truth for account balances. The row
// lock is taken with SELECT ... FOR UPDATE and the UPDATE is additionally
// guarded on the version that was read.
type PostgresBalanceStore struct {
	db *sql.DB
}

func NewPostgresBalanceStore(db *sql.DB) *PostgresBalanceStore {
	return &PostgresBalanceStore{db: db}
}

// EnsureSchema creates the accounts and account_history tables if missing.
func (r *PostgresBalanceStore) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply account schema: %w", err)
	}
	return nil
}

const selectAccount = `
	SELECT account_number, user_id, balance, minimum_balance, currency, status, version, created_at, updated_at
	FROM accounts
	WHERE account_number = $1`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.AccountNumber, &a.UserID, &a.Balance, &a.MinimumBalance,
		&a.Currency, &a.Status, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PostgresBalanceStore) GetAccount(ctx context.Context, accountNumber string) (*models.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, selectAccount, accountNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, accountNotFound(accountNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (r *PostgresBalanceStore) Debit(ctx context.Context, m models.BalanceMutation) (*models.BalanceChange, error) {
	return r.apply(ctx, models.HistoryDebited, m)
}

func (r *PostgresBalanceStore) Credit(ctx context.Context, m models.BalanceMutation) (*models.BalanceChange, error) {
	return r.apply(ctx, models.HistoryCredited, m)
}

func (r *PostgresBalanceStore) apply(ctx context.Context, action models.HistoryAction, m models.BalanceMutation) (*models.BalanceChange, error) {
	if err := validateMutation(m); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	account, err := scanAccount(tx.QueryRowContext(ctx, selectAccount+" FOR UPDATE", m.AccountNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, accountNotFound(m.AccountNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	var seen int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM account_history WHERE account_number = $1 AND transaction_id = $2 AND action = $3`,
		m.AccountNumber, m.TransactionID, action,
	).Scan(&seen)
	switch {
	case err == nil:
		return &models.BalanceChange{
			Account:    *account,
			OldBalance: account.Balance,
			NewBalance: account.Balance,
			Replayed:   true,
		}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to check account history: %w", err)
	}

	newBalance, err := nextBalance(account, action, m.Amount)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	readVersion := account.Version
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $2, version = version + 1, updated_at = $3
		WHERE account_number = $1 AND version = $4`,
		m.AccountNumber, newBalance, now, readVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("account %s modified concurrently at version %d", m.AccountNumber, readVersion)
	}

	oldBalance := account.Balance
	account.Balance = newBalance
	account.Version = readVersion + 1
	account.UpdatedAt = now

	entry := historyEntry(account, action, oldBalance, m, now)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO account_history (account_number, action, old_balance, new_balance, amount, transaction_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.AccountNumber, entry.Action, entry.OldBalance, entry.NewBalance,
		entry.Amount, entry.TransactionID, entry.Description, entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record account history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit balance change: %w", err)
	}

	return &models.BalanceChange{
		Account:    *account,
		OldBalance: oldBalance,
		NewBalance: newBalance,
	}, nil
}

// History returns the account's mutations in the order they were applied.
// History listing is not served over HTTP.
func (r *PostgresBalanceStore) History(ctx context.Context, accountNumber string) ([]models.AccountHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_number, action, old_balance, new_balance, amount, transaction_id, description, created_at
		FROM account_history
		WHERE account_number = $1
		ORDER BY id`, accountNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list account history: %w", err)
	}
	defer rows.Close()

	var history []models.AccountHistory
	for rows.Next() {
		var h models.AccountHistory
		if err := rows.Scan(
			&h.ID, &h.AccountNumber, &h.Action, &h.OldBalance, &h.NewBalance,
			&h.Amount, &h.TransactionID, &h.Description, &h.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// Seed inserts accounts that do not exist yet. Used for local environments.
func (r *PostgresBalanceStore) Seed(ctx context.Context, accounts ...models.Account) error {
	for _, a := range accounts {
		if a.Status == "" {
			a.Status = models.AccountActive
		}
		if a.Currency == "" {
			a.Currency = "GBP"
		}
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO accounts (account_number, user_id, balance, minimum_balance, currency, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (account_number) DO NOTHING`,
			a.AccountNumber, a.UserID, a.Balance, a.MinimumBalance, a.Currency, a.Status,
		)
		if err != nil {
			return fmt.Errorf("failed to seed account %s: %w", a.AccountNumber, err)
		}
	}
	return nil
}

var _ BalanceStore = (*PostgresBalanceStore)(nil)

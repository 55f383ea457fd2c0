package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/eaglebank/eagle/shared/apperrors"
	"github.com/eaglebank/eagle/shared/models"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// PostgresTransactionStore is the durable ledger and step log.
type PostgresTransactionStore struct {
	db *sql.DB
}

func NewPostgresTransactionStore(db *sql.DB) *PostgresTransactionStore {
	return &PostgresTransactionStore{db: db}
}

// EnsureSchema creates the transactions and transaction_steps tables if missing.
func (r *PostgresTransactionStore) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply transaction schema: %w", err)
	}
	return nil
}

func (r *PostgresTransactionStore) CreateTransaction(ctx context.Context, tx *models.Transaction, steps []models.TransactionStep) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	_, err = dbTx.ExecContext(ctx, `
		INSERT INTO transactions (id, from_account, to_account, amount, type, status, description,
			initiated_by, error_message, requires_reconciliation, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		tx.ID, tx.FromAccount, tx.ToAccount, tx.Amount, tx.Type, tx.Status, tx.Description,
		tx.InitiatedBy, tx.ErrorMessage, tx.RequiresReconciliation, tx.CreatedAt, nullTime(tx.CompletedAt),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return duplicateTransaction(tx.ID)
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	for _, step := range steps {
		_, err = dbTx.ExecContext(ctx, `
			INSERT INTO transaction_steps (transaction_id, step_order, step_name, account_number, status,
				error_message, created_at, completed_at, compensated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			step.TransactionID, step.Order, step.Name, step.AccountNumber, step.Status,
			step.ErrorMessage, step.CreatedAt, nullTime(step.CompletedAt), nullTime(step.CompensatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to create transaction step %d: %w", step.Order, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PostgresTransactionStore) UpdateTransaction(ctx context.Context, tx *models.Transaction, expected models.TransactionStatus) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, error_message = $3, requires_reconciliation = $4, completed_at = $5
		WHERE id = $1 AND status = $6
			AND (status NOT IN ($7, $8) OR status = $2)`,
		tx.ID, tx.Status, tx.ErrorMessage, tx.RequiresReconciliation, nullTime(tx.CompletedAt),
		expected, models.TransactionCompleted, models.TransactionFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	updated, err := affected(result)
	if err != nil || updated {
		return err
	}

	var current models.TransactionStatus
	err = r.db.QueryRowContext(ctx, `SELECT status FROM transactions WHERE id = $1`, tx.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return transactionNotFound(tx.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to read transaction status: %w", err)
	}
	if err := checkTransition(tx.ID, current, expected, tx.Status); err != nil {
		return err
	}
	return apperrors.New(apperrors.ErrInvalidState, "Transaction %s changed concurrently", tx.ID)
}

func (r *PostgresTransactionStore) UpdateStep(ctx context.Context, step *models.TransactionStep, expected models.StepStatus) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE transaction_steps
		SET status = $3, error_message = $4, completed_at = $5, compensated_at = $6
		WHERE transaction_id = $1 AND step_order = $2 AND status = $7`,
		step.TransactionID, step.Order, step.Status, step.ErrorMessage,
		nullTime(step.CompletedAt), nullTime(step.CompensatedAt), expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction step: %w", err)
	}
	updated, err := affected(result)
	if err != nil || updated {
		return err
	}

	var current models.StepStatus
	err = r.db.QueryRowContext(ctx,
		`SELECT status FROM transaction_steps WHERE transaction_id = $1 AND step_order = $2`,
		step.TransactionID, step.Order,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return transactionNotFound(step.TransactionID)
	}
	if err != nil {
		return fmt.Errorf("failed to read step status: %w", err)
	}
	return stepConflict(step, current, expected)
}

const selectTransaction = `
	SELECT id, from_account, to_account, amount, type, status, description, initiated_by,
		error_message, requires_reconciliation, created_at, completed_at
	FROM transactions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		tx          models.Transaction
		completedAt sql.NullTime
	)
	err := row.Scan(
		&tx.ID, &tx.FromAccount, &tx.ToAccount, &tx.Amount, &tx.Type, &tx.Status,
		&tx.Description, &tx.InitiatedBy, &tx.ErrorMessage, &tx.RequiresReconciliation,
		&tx.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.CompletedAt = timePtr(completedAt)
	return &tx, nil
}

func (r *PostgresTransactionStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRowContext(ctx, selectTransaction+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, transactionNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

func (r *PostgresTransactionStore) ListSteps(ctx context.Context, transactionID string) ([]models.TransactionStep, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT transaction_id, step_order, step_name, account_number, status, error_message,
			created_at, completed_at, compensated_at
		FROM transaction_steps
		WHERE transaction_id = $1
		ORDER BY step_order`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction steps: %w", err)
	}
	defer rows.Close()

	var steps []models.TransactionStep
	for rows.Next() {
		var (
			step                     models.TransactionStep
			completedAt, compensated sql.NullTime
		)
		if err := rows.Scan(
			&step.TransactionID, &step.Order, &step.Name, &step.AccountNumber, &step.Status,
			&step.ErrorMessage, &step.CreatedAt, &completedAt, &compensated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction step: %w", err)
		}
		step.CompletedAt = timePtr(completedAt)
		step.CompensatedAt = timePtr(compensated)
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list transaction steps: %w", err)
	}
	if len(steps) == 0 {
		return nil, transactionNotFound(transactionID)
	}
	return steps, nil
}

func (r *PostgresTransactionStore) ListByAccount(ctx context.Context, accountNumber string, page, size int) ([]models.Transaction, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE from_account = $1 OR to_account = $1`, accountNumber,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := selectTransaction + ` WHERE from_account = $1 OR to_account = $1 ORDER BY created_at DESC, id DESC`
	args := []any{accountNumber}
	if size > 0 {
		if page < 0 {
			page = 0
		}
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, size, page*size)
	}

	txs, err := r.list(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func (r *PostgresTransactionStore) ListByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	return r.list(ctx, selectTransaction+` WHERE initiated_by = $1 ORDER BY created_at DESC, id DESC`, userID)
}

func (r *PostgresTransactionStore) ListByStatus(ctx context.Context, status models.TransactionStatus) ([]models.Transaction, error) {
	return r.list(ctx, selectTransaction+` WHERE status = $1 ORDER BY created_at DESC, id DESC`, status)
}

func (r *PostgresTransactionStore) ListRequiringReconciliation(ctx context.Context) ([]models.Transaction, error) {
	return r.list(ctx, selectTransaction+` WHERE requires_reconciliation ORDER BY created_at DESC, id DESC`)
}

func (r *PostgresTransactionStore) list(ctx context.Context, query string, args ...any) ([]models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func affected(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows > 0, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

var _ TransactionStore = (*PostgresTransactionStore)(nil)

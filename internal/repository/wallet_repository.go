package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/driveline/lessons-api/internal/models"
)

// WalletRepository owns wallet accounts and the append-only transaction
// log. Every balance mutation commits together with its log entry; the
// row-level lock taken by the balance UPDATE serializes writers per
// account, so two concurrent deposits cannot read the same stale balance.
type WalletRepository struct {
	db *sqlx.DB
}

// NewWalletRepository constructs the repository.
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// CreateAccount provisions a zero-balance account. Idempotent.
func (r *WalletRepository) CreateAccount(ctx context.Context, userID string) error {
	const query = `INSERT INTO wallet_accounts (user_id, balance, created_at, updated_at)
	VALUES ($1, 0, $2, $2) ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("create wallet account: %w", err)
	}
	return nil
}

// GetAccount returns the account row for a user.
func (r *WalletRepository) GetAccount(ctx context.Context, userID string) (*models.WalletAccount, error) {
	const query = `SELECT user_id, balance, created_at, updated_at FROM wallet_accounts WHERE user_id = $1`
	var account models.WalletAccount
	if err := r.db.GetContext(ctx, &account, query, userID); err != nil {
		return nil, err
	}
	return &account, nil
}

// ApplyTransaction appends a ledger entry and moves the balance in one
// database transaction. Returns the resulting balance. sql.ErrNoRows
// signals a missing account row.
func (r *WalletRepository) ApplyTransaction(ctx context.Context, txn *models.WalletTransaction) (decimal.Decimal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin apply transaction: %w", err)
	}
	balance, err := applyInTx(ctx, tx, txn)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return decimal.Zero, err
	}
	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("commit apply transaction: %w", err)
	}
	return balance, nil
}

// SettleLessonParams describes the atomic settlement unit for one lesson.
type SettleLessonParams struct {
	LessonID         string
	PaymentID        string
	StudentID        string
	InstructorID     string
	StudentDebit     decimal.Decimal
	InstructorCredit decimal.Decimal
	StudentDesc      string
	InstructorDesc   string
}

// SettleLesson marks the lesson settled and applies the ledger entries in
// a single database transaction: the optional student debit, the
// instructor credit, and the payment_id stamp commit together or not at
// all. The stamp is guarded on payment_id IS NULL, so a repeated call
// after a committed settlement affects zero rows and returns
// sql.ErrNoRows without writing anything.
func (r *WalletRepository) SettleLesson(ctx context.Context, params SettleLessonParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settlement: %w", err)
	}

	const stamp = `UPDATE lessons SET payment_id = $1, updated_at = $2
	WHERE id = $3 AND status = $4 AND payment_id IS NULL`
	result, err := tx.ExecContext(ctx, stamp, params.PaymentID, time.Now().UTC(), params.LessonID, models.LessonStatusCompleted)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("stamp lesson payment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("check settlement stamp rows: %w", err)
	}
	if rows == 0 {
		tx.Rollback() //nolint:errcheck
		return sql.ErrNoRows
	}

	// Provision missing accounts up front so the stamp guard above stays
	// the only source of sql.ErrNoRows in this transaction.
	if err := ensureAccountInTx(ctx, tx, params.InstructorID); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if params.StudentDebit.IsPositive() {
		if err := ensureAccountInTx(ctx, tx, params.StudentID); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
		debit := &models.WalletTransaction{
			UserID:      params.StudentID,
			Amount:      params.StudentDebit,
			Type:        models.TransactionTypeWithdraw,
			Description: optionalText(params.StudentDesc),
		}
		if _, err := applyInTx(ctx, tx, debit); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
	}

	credit := &models.WalletTransaction{
		UserID:      params.InstructorID,
		Amount:      params.InstructorCredit,
		Type:        models.TransactionTypeDeposit,
		Description: optionalText(params.InstructorDesc),
	}
	if _, err := applyInTx(ctx, tx, credit); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settlement: %w", err)
	}
	return nil
}

// ListTransactions returns ledger entries for a user, newest first.
func (r *WalletRepository) ListTransactions(ctx context.Context, userID string, filter models.TransactionFilter) ([]models.WalletTransaction, error) {
	builder := strings.Builder{}
	args := []interface{}{userID}
	builder.WriteString(`SELECT id, user_id, amount, type, description, created_at
	FROM wallet_transactions WHERE user_id = $1`)

	if filter.Type != "" {
		args = append(args, filter.Type)
		builder.WriteString(fmt.Sprintf(" AND type = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		builder.WriteString(fmt.Sprintf(" AND created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		builder.WriteString(fmt.Sprintf(" AND created_at < $%d", len(args)))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var transactions []models.WalletTransaction
	if err := r.db.SelectContext(ctx, &transactions, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	return transactions, nil
}

func ensureAccountInTx(ctx context.Context, tx *sqlx.Tx, userID string) error {
	const query = `INSERT INTO wallet_accounts (user_id, balance, created_at, updated_at)
	VALUES ($1, 0, $2, $2) ON CONFLICT (user_id) DO NOTHING`
	if _, err := tx.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("ensure wallet account: %w", err)
	}
	return nil
}

// applyInTx moves the balance and appends the log entry inside an open
// transaction. The UPDATE takes the account's row lock, which is the
// per-account serialization point; the insert lands before commit so no
// other writer can interleave between the two.
func applyInTx(ctx context.Context, tx *sqlx.Tx, txn *models.WalletTransaction) (decimal.Decimal, error) {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}

	const update = `UPDATE wallet_accounts SET balance = balance + $1, updated_at = $2
	WHERE user_id = $3 RETURNING balance`
	var balance decimal.Decimal
	err := tx.QueryRowxContext(ctx, update, txn.SignedAmount(), txn.CreatedAt, txn.UserID).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, sql.ErrNoRows
		}
		return decimal.Zero, fmt.Errorf("update wallet balance: %w", err)
	}

	const insert = `INSERT INTO wallet_transactions (id, user_id, amount, type, description, created_at)
	VALUES (:id, :user_id, :amount, :type, :description, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, txn); err != nil {
		return decimal.Zero, fmt.Errorf("append wallet transaction: %w", err)
	}
	return balance, nil
}

func optionalText(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	v := strings.TrimSpace(value)
	return &v
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/repository"
)

// The ledger is one row (id = 1). Every mutation is a single
// conditional statement so two concurrent settlements can never both
// pass a balance check before either writes.
const ledgerID = 1

type ledgerRepository struct {
	BaseRepository
}

func NewLedgerRepository(base BaseRepository) repository.LedgerRepository {
	return &ledgerRepository{base}
}

func (r *ledgerRepository) Initialize(ctx context.Context, capacity int64) error {
	query := `
		INSERT INTO claims_ledger (id, total_capacity, available_balance, total_processed, updated_at)
		VALUES ($1, $2, $2, 0, NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, ledgerID, capacity); err != nil {
		return fmt.Errorf("failed to initialize claims ledger: %w", err)
	}
	return nil
}

func (r *ledgerRepository) Get(ctx context.Context) (*model.ClaimsLedger, error) {
	var ledger model.ClaimsLedger
	query := `
		SELECT id, total_capacity, available_balance, total_processed, updated_at
		FROM claims_ledger WHERE id = $1
	`
	err := r.db.GetContext(ctx, &ledger, query, ledgerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrLedgerMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load claims ledger: %w", err)
	}
	return &ledger, nil
}

func (r *ledgerRepository) Credit(ctx context.Context, amount int64) error {
	query := `
		UPDATE claims_ledger
		SET total_capacity = total_capacity + $2,
			available_balance = available_balance + $2,
			updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, ledgerID, amount)
	if err != nil {
		return fmt.Errorf("failed to credit ledger: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrLedgerMissing
	}
	return nil
}

func (r *ledgerRepository) Debit(ctx context.Context, amount int64) error {
	return debit(ctx, r.db, amount)
}

func (r *ledgerRepository) DebitTx(ctx context.Context, tx *sqlx.Tx, amount int64) error {
	return debit(ctx, tx, amount)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// debit is the atomic read-modify-write at the core of settlement: the
// balance guard sits in the WHERE clause, so an uncovered debit
// matches zero rows and leaves the ledger untouched.
func debit(ctx context.Context, e execer, amount int64) error {
	query := `
		UPDATE claims_ledger
		SET available_balance = available_balance - $2,
			total_processed = total_processed + $2,
			updated_at = NOW()
		WHERE id = $1 AND available_balance >= $2
	`
	result, err := e.ExecContext(ctx, query, ledgerID, amount)
	if err != nil {
		return fmt.Errorf("failed to debit ledger: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrInsufficientBalance
	}
	return nil
}

package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverguard/parametric-api/internal/repository"
)

func newMockRepo(t *testing.T) (repository.LedgerRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLedgerRepository(NewBaseRepository(sqlx.NewDb(db, "postgres"))), mock
}

func TestLedgerDebit(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE claims_ledger`).
		WithArgs(1, int64(100_000_000)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Debit(context.Background(), 100_000_000)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerDebitInsufficientBalance(t *testing.T) {
	repo, mock := newMockRepo(t)

	// Conditional update matches no row when the guard fails.
	mock.ExpectExec(`UPDATE claims_ledger`).
		WithArgs(1, int64(500)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Debit(context.Background(), 500)
	assert.ErrorIs(t, err, repository.ErrInsufficientBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerInitializeIdempotent(t *testing.T) {
	repo, mock := newMockRepo(t)

	// ON CONFLICT DO NOTHING: a second initialize affects zero rows
	// and still succeeds.
	mock.ExpectExec(`INSERT INTO claims_ledger`).
		WithArgs(1, int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO claims_ledger`).
		WithArgs(1, int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Initialize(context.Background(), 1000))
	require.NoError(t, repo.Initialize(context.Background(), 1000))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerCreditMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE claims_ledger`).
		WithArgs(1, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Credit(context.Background(), 42)
	assert.ErrorIs(t, err, repository.ErrLedgerMissing)
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/repository"
)

type claimRepository struct {
	BaseRepository
}

func NewClaimRepository(base BaseRepository) repository.ClaimRepository {
	return &claimRepository{base}
}

func (r *claimRepository) Get(ctx context.Context, id uuid.UUID) (*model.Claim, error) {
	var claim model.Claim
	query := `
		SELECT id, policy_id, policyholder, amount, status, triggered_at, processed_at
		FROM claims WHERE id = $1
	`
	err := r.db.GetContext(ctx, &claim, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return &claim, nil
}

func (r *claimRepository) List(ctx context.Context, limit, offset int) ([]*model.Claim, error) {
	query := `
		SELECT id, policy_id, policyholder, amount, status, triggered_at, processed_at
		FROM claims
		ORDER BY triggered_at DESC
		LIMIT $1 OFFSET $2
	`
	var claims []*model.Claim
	if err := r.db.SelectContext(ctx, &claims, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	return claims, nil
}

func (r *claimRepository) GetActiveByPolicy(ctx context.Context, policyID uuid.UUID) (*model.Claim, error) {
	var claim model.Claim
	query := `
		SELECT id, policy_id, policyholder, amount, status, triggered_at, processed_at
		FROM claims
		WHERE policy_id = $1 AND status <> 'rejected'
	`
	err := r.db.GetContext(ctx, &claim, query, policyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check active claim: %w", err)
	}
	return &claim, nil
}

// CreateTx inserts a claim inside the settlement transaction. The
// partial unique index on (policy_id) over non-rejected rows is the
// backstop against two settlements racing past the duplicate check.
func (r *claimRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, claim *model.Claim) error {
	query := `
		INSERT INTO claims (id, policy_id, policyholder, amount, status, triggered_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		claim.ID, claim.PolicyID, claim.Policyholder, claim.Amount,
		claim.Status, claim.TriggeredAt, claim.ProcessedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return repository.ErrDuplicateActiveClaim
		}
		return fmt.Errorf("failed to create claim: %w", err)
	}
	return nil
}

func (r *claimRepository) CreatePayoutTx(ctx context.Context, tx *sqlx.Tx, payout *model.Payout) error {
	query := `
		INSERT INTO payouts (id, claim_id, amount, settlement_ref, processed_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.ExecContext(ctx, query,
		payout.ID, payout.ClaimID, payout.Amount, payout.SettlementRef, payout.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payout: %w", err)
	}
	return nil
}

func (r *claimRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ClaimStatus, processedAt time.Time) error {
	query := `
		UPDATE claims SET status = $2, processed_at = $3
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, id, status, processedAt)
	if err != nil {
		return fmt.Errorf("failed to update claim status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

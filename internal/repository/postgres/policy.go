package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/repository"
)

type policyRepository struct {
	BaseRepository
}

func NewPolicyRepository(base BaseRepository) repository.PolicyRepository {
	return &policyRepository{base}
}

func (r *policyRepository) Create(ctx context.Context, policy *model.Policy) error {
	query := `
		INSERT INTO policies (id, policy_address, policyholder, coverage_amount, premium_amount, payout_triggered, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		policy.ID, policy.PolicyAddress, policy.Policyholder,
		policy.CoverageAmount, policy.PremiumAmount, policy.PayoutTriggered, policy.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create policy: %w", err)
	}
	return nil
}

func (r *policyRepository) Get(ctx context.Context, id uuid.UUID) (*model.Policy, error) {
	var policy model.Policy
	query := `
		SELECT id, policy_address, policyholder, coverage_amount, premium_amount, payout_triggered, created_at
		FROM policies WHERE id = $1
	`
	err := r.db.GetContext(ctx, &policy, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return &policy, nil
}

func (r *policyRepository) List(ctx context.Context, limit, offset int) ([]*model.Policy, error) {
	query := `
		SELECT id, policy_address, policyholder, coverage_amount, premium_amount, payout_triggered, created_at
		FROM policies
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	var policies []*model.Policy
	if err := r.db.SelectContext(ctx, &policies, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	return policies, nil
}

func (r *policyRepository) SetPayoutTriggeredTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	query := `UPDATE policies SET payout_triggered = true WHERE id = $1 AND payout_triggered = false`
	result, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to set payout flag: %w", err)
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

// Package claim implements the settlement workflow: validate, debit
// the pool, record the claim and payout, flag the policy, notify.
// Debit and record creation are one transaction; a failure anywhere
// rolls the debit back.
package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/riverguard/parametric-api/internal/chain"
	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/repository"
	"github.com/riverguard/parametric-api/internal/units"
	apperrors "github.com/riverguard/parametric-api/pkg/errors"
	"github.com/riverguard/parametric-api/pkg/logger"
	"github.com/riverguard/parametric-api/pkg/metrics"
	"github.com/riverguard/parametric-api/pkg/queue"
)

// EventClaimApproved is the trigger event emitted after settlement.
const EventClaimApproved = "claim_approved"

type Service struct {
	claims   repository.ClaimRepository
	policies repository.PolicyRepository
	ledger   repository.LedgerRepository
	tx       repository.TxRunner
	chain    chain.Client
	queue    queue.Queue
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

func NewService(
	claims repository.ClaimRepository,
	policies repository.PolicyRepository,
	ledger repository.LedgerRepository,
	tx repository.TxRunner,
	chainClient chain.Client,
	q queue.Queue,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	return &Service{
		claims:   claims,
		policies: policies,
		ledger:   ledger,
		tx:       tx,
		chain:    chainClient,
		queue:    q,
		metrics:  m,
		logger:   log,
	}
}

// SubmitClaim settles a claim against the pool. Amount is in display
// units. Returns the approved claim, or the existing claim when the
// request is a retry of an already-settled policy.
func (s *Service) SubmitClaim(ctx context.Context, policyID uuid.UUID, policyholder string, amount float64) (*model.Claim, error) {
	native, err := units.AmountToNative(amount)
	if err != nil {
		return nil, apperrors.BadRequest("invalid claim amount", err)
	}
	if native == 0 {
		return nil, apperrors.BadRequest("claim amount must be positive", nil)
	}

	// Idempotency guard: a retry of the same request returns the
	// existing claim instead of settling twice. The partial unique
	// index backs this up under races.
	if existing, err := s.claims.GetActiveByPolicy(ctx, policyID); err == nil {
		s.metrics.ClaimsRejected.WithLabelValues("duplicate").Inc()
		return existing, apperrors.DuplicateClaim(policyID.String())
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Internal(err)
	}

	pool, err := s.ledger.Get(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrLedgerMissing) {
			s.metrics.ClaimsRejected.WithLabelValues("ledger_uninitialized").Inc()
			return nil, apperrors.LedgerUninitialized()
		}
		return nil, apperrors.Internal(err)
	}

	policy, err := s.policies.Get(ctx, policyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("policy", err)
		}
		return nil, apperrors.Internal(err)
	}

	now := time.Now()
	claim := &model.Claim{
		ID:           uuid.New(),
		PolicyID:     policy.ID,
		Policyholder: policyholder,
		Amount:       native,
		Status:       model.ClaimStatusApproved,
		TriggeredAt:  now,
		ProcessedAt:  &now,
	}

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.ledger.DebitTx(ctx, tx, native); err != nil {
			return err
		}
		if err := s.claims.CreateTx(ctx, tx, claim); err != nil {
			return err
		}

		settlementRef, err := s.chain.Pay(ctx, policyholder, native)
		if err != nil {
			return fmt.Errorf("settlement payout failed: %w", err)
		}

		payout := &model.Payout{
			ID:            uuid.New(),
			ClaimID:       claim.ID,
			Amount:        native,
			SettlementRef: settlementRef,
			ProcessedAt:   now,
		}
		if err := s.claims.CreatePayoutTx(ctx, tx, payout); err != nil {
			// The chain transfer went through; the rollback undoes
			// the debit and the claim row but cannot recall funds.
			s.logger.Error(err, "payout record failed after chain transfer; manual reconciliation required",
				"claim_id", claim.ID.String(), "settlement_ref", settlementRef)
			return err
		}
		return s.policies.SetPayoutTriggeredTx(ctx, tx, policy.ID)
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInsufficientBalance):
			s.metrics.ClaimsRejected.WithLabelValues("insufficient_funds").Inc()
			return nil, apperrors.InsufficientFunds(amount, units.AmountToDisplay(pool.AvailableBalance))
		case errors.Is(err, repository.ErrDuplicateActiveClaim):
			s.metrics.ClaimsRejected.WithLabelValues("duplicate").Inc()
			if existing, lookupErr := s.claims.GetActiveByPolicy(ctx, policyID); lookupErr == nil {
				return existing, apperrors.DuplicateClaim(policyID.String())
			}
			return nil, apperrors.DuplicateClaim(policyID.String())
		default:
			return nil, apperrors.Internal(err)
		}
	}

	s.metrics.ClaimsApproved.Inc()

	// Fire-and-forget: a lost trigger never blocks or fails a settled
	// claim.
	event := model.TriggerEvent{
		EventType: EventClaimApproved,
		UserID:    policy.ID,
		Data: map[string]string{
			"claim_id":  claim.ID.String(),
			"policy_id": policy.ID.String(),
			"amount":    fmt.Sprintf("%.6f", units.AmountToDisplay(native)),
		},
		Timestamp: now,
	}
	if _, err := s.queue.Enqueue(ctx, model.JobTypeTrigger, event); err != nil {
		s.logger.Error(err, "failed to enqueue claim_approved trigger", "claim_id", claim.ID.String())
	} else {
		s.metrics.JobsEnqueued.WithLabelValues(model.JobTypeTrigger).Inc()
	}

	return claim, nil
}

// ReviewClaim lets an operator settle a pending claim's status by
// hand. The ledger is untouched: debits happen only on the automatic
// path.
func (s *Service) ReviewClaim(ctx context.Context, id uuid.UUID, status model.ClaimStatus) (*model.Claim, error) {
	if status != model.ClaimStatusApproved && status != model.ClaimStatusRejected {
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid review status %q", status), nil)
	}

	if err := s.claims.UpdateStatus(ctx, id, status, time.Now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("pending claim", err)
		}
		return nil, apperrors.Internal(err)
	}

	return s.claims.Get(ctx, id)
}

func (s *Service) GetClaim(ctx context.Context, id uuid.UUID) (*model.Claim, error) {
	claim, err := s.claims.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("claim", err)
		}
		return nil, apperrors.Internal(err)
	}
	return claim, nil
}

func (s *Service) ListClaims(ctx context.Context, limit, offset int) ([]*model.Claim, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.claims.List(ctx, limit, offset)
}

// PoolStatus reports the ledger snapshot with amounts in both native
// and display units.
type PoolStatus struct {
	TotalCapacity    float64 `json:"total_capacity"`
	AvailableBalance float64 `json:"available_balance"`
	TotalProcessed   float64 `json:"total_processed"`
	NativeCapacity   int64   `json:"native_capacity"`
	NativeAvailable  int64   `json:"native_available"`
	NativeProcessed  int64   `json:"native_processed"`
}

func (s *Service) PoolStatus(ctx context.Context) (*PoolStatus, error) {
	pool, err := s.ledger.Get(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrLedgerMissing) {
			return nil, apperrors.LedgerUninitialized()
		}
		return nil, apperrors.Internal(err)
	}

	s.metrics.LedgerBalance.Set(float64(pool.AvailableBalance))

	return &PoolStatus{
		TotalCapacity:    units.AmountToDisplay(pool.TotalCapacity),
		AvailableBalance: units.AmountToDisplay(pool.AvailableBalance),
		TotalProcessed:   units.AmountToDisplay(pool.TotalProcessed),
		NativeCapacity:   pool.TotalCapacity,
		NativeAvailable:  pool.AvailableBalance,
		NativeProcessed:  pool.TotalProcessed,
	}, nil
}

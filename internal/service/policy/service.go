// Package policy mirrors issued policies locally. Issuance itself
// happens on the settlement chain; this mirror serves lookups and the
// payout flag, with no decision logic.
package policy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/repository"
	"github.com/riverguard/parametric-api/internal/units"
	apperrors "github.com/riverguard/parametric-api/pkg/errors"
	"github.com/riverguard/parametric-api/pkg/queue"
)

// EventPolicyCreated is emitted when a policy mirror row is created.
const EventPolicyCreated = "policy_created"

type Service struct {
	repo  repository.PolicyRepository
	queue queue.Queue
}

func NewService(repo repository.PolicyRepository, q queue.Queue) *Service {
	return &Service{repo: repo, queue: q}
}

type CreateInput struct {
	PolicyAddress  string
	Policyholder   string
	CoverageAmount float64
	PremiumAmount  float64
}

func (s *Service) Create(ctx context.Context, input CreateInput) (*model.Policy, error) {
	coverage, err := units.AmountToNative(input.CoverageAmount)
	if err != nil {
		return nil, apperrors.BadRequest("invalid coverage amount", err)
	}
	premium, err := units.AmountToNative(input.PremiumAmount)
	if err != nil {
		return nil, apperrors.BadRequest("invalid premium amount", err)
	}

	policy := &model.Policy{
		ID:             uuid.New(),
		PolicyAddress:  input.PolicyAddress,
		Policyholder:   input.Policyholder,
		CoverageAmount: coverage,
		PremiumAmount:  premium,
		CreatedAt:      time.Now(),
	}
	if err := s.repo.Create(ctx, policy); err != nil {
		return nil, apperrors.Internal(err)
	}

	// Best effort; the mirror row is already committed.
	s.queue.Enqueue(ctx, model.JobTypeTrigger, model.TriggerEvent{
		EventType: EventPolicyCreated,
		UserID:    policy.ID,
		Data: map[string]string{
			"policy_id":      policy.ID.String(),
			"policy_address": input.PolicyAddress,
		},
		Timestamp: policy.CreatedAt,
	})

	return policy, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Policy, error) {
	policy, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("policy", err)
		}
		return nil, apperrors.Internal(err)
	}
	return policy, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*model.Policy, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.List(ctx, limit, offset)
}

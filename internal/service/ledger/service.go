// Package ledger owns the claimable-capital pool. The repository's
// conditional SQL is the source of truth for every balance rule; this
// service never holds the balance in memory across requests.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/repository"
	apperrors "github.com/riverguard/parametric-api/pkg/errors"
	"github.com/riverguard/parametric-api/pkg/logger"
)

type Service struct {
	repo   repository.LedgerRepository
	logger *logger.Logger
}

func NewService(repo repository.LedgerRepository, logger *logger.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Initialize creates the singleton pool if absent. Safe to call on
// every boot.
func (s *Service) Initialize(ctx context.Context, capacity int64) error {
	if capacity < 0 {
		return fmt.Errorf("capacity cannot be negative")
	}
	if err := s.repo.Initialize(ctx, capacity); err != nil {
		return fmt.Errorf("ledger initialization failed: %w", err)
	}
	return nil
}

// Credit adds funding: capacity and available balance grow together.
func (s *Service) Credit(ctx context.Context, amount int64) error {
	if amount <= 0 {
		return apperrors.BadRequest("credit amount must be positive", nil)
	}
	if err := s.repo.Credit(ctx, amount); err != nil {
		if errors.Is(err, repository.ErrLedgerMissing) {
			return apperrors.LedgerUninitialized()
		}
		return err
	}
	s.logger.Info("ledger credited", "amount", amount)
	return nil
}

// Debit reserves amount for a payout, failing without mutation when
// the balance cannot cover it.
func (s *Service) Debit(ctx context.Context, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive")
	}
	return s.repo.Debit(ctx, amount)
}

// Status returns the pool snapshot.
func (s *Service) Status(ctx context.Context) (*model.ClaimsLedger, error) {
	return s.repo.Get(ctx)
}

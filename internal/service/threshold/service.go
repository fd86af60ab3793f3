package threshold

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/riverguard/parametric-api/internal/chain"
	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/repository"
)

const cacheTTL = time.Minute

// Classify compares a level against a warning/critical pair. Pure and
// stateless; levels are in native units.
func Classify(level, warningLevel, criticalLevel int64) model.BreachLevel {
	switch {
	case level >= criticalLevel:
		return model.BreachCritical
	case level >= warningLevel:
		return model.BreachWarning
	default:
		return model.BreachNormal
	}
}

// StationStatus is the evaluator's answer for one station. PayoutLevel
// is the registry's on-chain trigger level, which is authoritative for
// payout eligibility; it is omitted when the registry is unreachable.
type StationStatus struct {
	StationID      string            `json:"station_id"`
	Level          int64             `json:"level"`
	CapturedAt     time.Time         `json:"captured_at"`
	Classification model.BreachLevel `json:"classification"`
	Threshold      *model.Threshold  `json:"threshold"`
	PayoutLevel    *int64            `json:"payout_level,omitempty"`
	PayoutEligible bool              `json:"payout_eligible"`
}

type Service struct {
	thresholds repository.ThresholdRepository
	readings   repository.ReadingRepository
	chain      chain.Client
	cache      *gocache.Cache
}

func NewService(thresholds repository.ThresholdRepository, readings repository.ReadingRepository, chainClient chain.Client) *Service {
	return &Service{
		thresholds: thresholds,
		readings:   readings,
		chain:      chainClient,
		cache:      gocache.New(cacheTTL, 5*time.Minute),
	}
}

// Get returns the station's threshold, cached briefly; admin updates
// invalidate the cache so they take effect for the next evaluation.
func (s *Service) Get(ctx context.Context, stationID string) (*model.Threshold, error) {
	if cached, ok := s.cache.Get(stationID); ok {
		return cached.(*model.Threshold), nil
	}

	threshold, err := s.thresholds.Get(ctx, stationID)
	if err != nil {
		return nil, err
	}

	s.cache.Set(stationID, threshold, cacheTTL)
	return threshold, nil
}

func (s *Service) Update(ctx context.Context, threshold *model.Threshold) error {
	if threshold.WarningLevel <= 0 || threshold.CriticalLevel <= 0 {
		return fmt.Errorf("threshold levels must be positive")
	}
	if threshold.CriticalLevel < threshold.WarningLevel {
		return fmt.Errorf("critical level cannot be below warning level")
	}

	if err := s.thresholds.Upsert(ctx, threshold); err != nil {
		return err
	}
	s.cache.Delete(threshold.StationID)
	return nil
}

// ClassifyLevel resolves the station's threshold and classifies the
// given native level against it. Reads the repository directly, not
// the cache: breach evaluation runs in the worker process, and an
// admin update through the API binary must affect the very next
// evaluation, not the one after the cache expires.
func (s *Service) ClassifyLevel(ctx context.Context, stationID string, level int64) (model.BreachLevel, error) {
	threshold, err := s.thresholds.Get(ctx, stationID)
	if err != nil {
		return "", err
	}
	return Classify(level, threshold.WarningLevel, threshold.CriticalLevel), nil
}

// StatusFor answers the API's station-status query from the latest
// local reading. Payout eligibility consults the on-chain registry
// level; a registry outage degrades the answer rather than failing it.
func (s *Service) StatusFor(ctx context.Context, stationID string) (*StationStatus, error) {
	reading, err := s.readings.Latest(ctx, stationID)
	if err != nil {
		return nil, err
	}

	threshold, err := s.Get(ctx, stationID)
	if err != nil {
		return nil, err
	}

	status := &StationStatus{
		StationID:      stationID,
		Level:          reading.Level,
		CapturedAt:     reading.CapturedAt,
		Classification: Classify(reading.Level, threshold.WarningLevel, threshold.CriticalLevel),
		Threshold:      threshold,
	}

	if payoutLevel, err := s.chain.GetThreshold(ctx); err == nil {
		status.PayoutLevel = &payoutLevel
		status.PayoutEligible = reading.Level >= payoutLevel
	}

	return status, nil
}

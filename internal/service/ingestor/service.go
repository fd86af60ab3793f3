// Package ingestor polls the external gauge network, mirrors readings
// locally, and pushes levels to the settlement registry. Failures skip
// the station until the next tick; nothing is retried mid-cycle.
package ingestor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/riverguard/parametric-api/internal/chain"
	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/repository"
	"github.com/riverguard/parametric-api/internal/service/threshold"
	"github.com/riverguard/parametric-api/internal/station"
	"github.com/riverguard/parametric-api/internal/units"
	"github.com/riverguard/parametric-api/pkg/logger"
	"github.com/riverguard/parametric-api/pkg/metrics"
	"github.com/riverguard/parametric-api/pkg/queue"
)

// EventThresholdBreach is emitted when a station's classification
// escalates between consecutive readings.
const EventThresholdBreach = "threshold_breach"

type Config struct {
	Interval time.Duration
	Stations []string
	// AlertUserID receives threshold-breach notifications.
	AlertUserID uuid.UUID
}

type Service struct {
	cfg        Config
	source     station.Source
	chain      chain.Client
	readings   repository.ReadingRepository
	thresholds *threshold.Service
	queue      queue.Queue
	metrics    *metrics.Metrics
	logger     *logger.Logger

	// running guards against overlapping ticks: a tick that finds the
	// previous one still in flight skips rather than queue.
	running atomic.Bool
}

func NewService(
	cfg Config,
	source station.Source,
	chainClient chain.Client,
	readings repository.ReadingRepository,
	thresholds *threshold.Service,
	q queue.Queue,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Service{
		cfg:        cfg,
		source:     source,
		chain:      chainClient,
		readings:   readings,
		thresholds: thresholds,
		queue:      q,
		metrics:    m,
		logger:     log,
	}
}

// Start runs the polling loop until ctx is cancelled. An in-flight
// tick finishes before Start returns.
func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("starting reading ingestor",
		"interval", s.cfg.Interval.String(), "stations", len(s.cfg.Stations))

	// Prime immediately rather than waiting a full interval.
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down reading ingestor")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one ingestion cycle across all stations. Skips entirely if
// the previous cycle is still running.
func (s *Service) Tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous ingestion cycle still running, skipping tick")
		return
	}
	defer s.running.Store(false)

	timer := prometheus.NewTimer(s.metrics.IngestLatency)
	defer timer.ObserveDuration()

	for _, stationID := range s.cfg.Stations {
		if ctx.Err() != nil {
			return
		}
		if err := s.ingest(ctx, stationID); err != nil {
			s.logger.Error(err, "station skipped this cycle", "station", stationID)
		}
	}
}

func (s *Service) ingest(ctx context.Context, stationID string) error {
	measurement, err := s.source.Latest(ctx, stationID)
	if err != nil {
		s.metrics.ReadingsFailed.WithLabelValues(stationID, "fetch").Inc()
		return err
	}

	level, err := units.LevelToNative(measurement.Level)
	if err != nil {
		s.metrics.ReadingsFailed.WithLabelValues(stationID, "normalize").Inc()
		return err
	}

	previous, err := s.readings.Latest(ctx, stationID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.metrics.ReadingsFailed.WithLabelValues(stationID, "lookup").Inc()
		return err
	}

	// The Reading row goes in before the registry push: a failed push
	// leaves the row for audit, and eligibility reads the chain, not
	// this mirror.
	reading := &model.Reading{
		ID:         uuid.New(),
		StationID:  stationID,
		Level:      level,
		CapturedAt: measurement.At,
		CreatedAt:  time.Now(),
	}
	if err := s.readings.Create(ctx, reading); err != nil {
		s.metrics.ReadingsFailed.WithLabelValues(stationID, "insert").Inc()
		return err
	}
	s.metrics.ReadingsIngested.WithLabelValues(stationID).Inc()

	if err := s.chain.UpdateLevel(ctx, stationID, level); err != nil {
		s.metrics.RegistryPushes.WithLabelValues(stationID, "error").Inc()
		return err
	}
	s.metrics.RegistryPushes.WithLabelValues(stationID, "success").Inc()

	if err := s.readings.MarkPushed(ctx, reading.ID); err != nil {
		s.logger.Error(err, "failed to mark reading pushed", "reading_id", reading.ID.String())
	}

	s.maybeAlert(ctx, stationID, previous, reading)
	return nil
}

// maybeAlert enqueues a threshold_breach trigger when the station's
// classification escalates between consecutive readings. Alerting on
// the edge, not the level, keeps a sustained flood from paging every
// five minutes.
func (s *Service) maybeAlert(ctx context.Context, stationID string, previous, current *model.Reading) {
	currentClass, err := s.thresholds.ClassifyLevel(ctx, stationID, current.Level)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error(err, "threshold lookup failed", "station", stationID)
		}
		return
	}

	previousClass := model.BreachNormal
	if previous != nil {
		if c, err := s.thresholds.ClassifyLevel(ctx, stationID, previous.Level); err == nil {
			previousClass = c
		}
	}

	if severity(currentClass) <= severity(previousClass) {
		return
	}

	event := model.TriggerEvent{
		EventType: EventThresholdBreach,
		UserID:    s.cfg.AlertUserID,
		Data: map[string]string{
			"station":        stationID,
			"level":          units.FormatLevel(current.Level),
			"classification": string(currentClass),
		},
		Timestamp: current.CapturedAt,
	}
	if _, err := s.queue.Enqueue(ctx, model.JobTypeTrigger, event); err != nil {
		s.logger.Error(err, "failed to enqueue breach trigger", "station", stationID)
		return
	}
	s.metrics.JobsEnqueued.WithLabelValues(model.JobTypeTrigger).Inc()
}

func severity(level model.BreachLevel) int {
	switch level {
	case model.BreachCritical:
		return 2
	case model.BreachWarning:
		return 1
	default:
		return 0
	}
}

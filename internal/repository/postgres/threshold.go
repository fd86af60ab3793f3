package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/repository"
)

type thresholdRepository struct {
	BaseRepository
}

func NewThresholdRepository(base BaseRepository) repository.ThresholdRepository {
	return &thresholdRepository{base}
}

func (r *thresholdRepository) Get(ctx context.Context, stationID string) (*model.Threshold, error) {
	var threshold model.Threshold
	query := `
		SELECT station_id, warning_level, critical_level, unit, updated_at
		FROM thresholds WHERE station_id = $1
	`
	err := r.db.GetContext(ctx, &threshold, query, stationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get threshold: %w", err)
	}
	return &threshold, nil
}

func (r *thresholdRepository) Upsert(ctx context.Context, threshold *model.Threshold) error {
	query := `
		INSERT INTO thresholds (station_id, warning_level, critical_level, unit, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (station_id) DO UPDATE
		SET warning_level = EXCLUDED.warning_level,
			critical_level = EXCLUDED.critical_level,
			unit = EXCLUDED.unit,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query,
		threshold.StationID, threshold.WarningLevel, threshold.CriticalLevel, threshold.Unit,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert threshold: %w", err)
	}
	return nil
}

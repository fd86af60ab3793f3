package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/repository"
)

type readingRepository struct {
	BaseRepository
}

func NewReadingRepository(base BaseRepository) repository.ReadingRepository {
	return &readingRepository{base}
}

func (r *readingRepository) Create(ctx context.Context, reading *model.Reading) error {
	query := `
		INSERT INTO readings (id, station_id, level, captured_at, pushed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		reading.ID, reading.StationID, reading.Level,
		reading.CapturedAt, reading.Pushed, reading.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

func (r *readingRepository) MarkPushed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE readings SET pushed = true WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *readingRepository) Latest(ctx context.Context, stationID string) (*model.Reading, error) {
	var reading model.Reading
	query := `
		SELECT id, station_id, level, captured_at, pushed, created_at
		FROM readings
		WHERE station_id = $1
		ORDER BY captured_at DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &reading, query, stationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reading: %w", err)
	}
	return &reading, nil
}

func (r *readingRepository) List(ctx context.Context, stationID string, limit int) ([]*model.Reading, error) {
	query := `
		SELECT id, station_id, level, captured_at, pushed, created_at
		FROM readings
		WHERE station_id = $1
		ORDER BY captured_at DESC
		LIMIT $2
	`
	var readings []*model.Reading
	if err := r.db.SelectContext(ctx, &readings, query, stationID, limit); err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	return readings, nil
}

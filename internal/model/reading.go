package model

import (
	"time"

	"github.com/google/uuid"
)

// Reading is one ingested water-level measurement. Append-only; levels
// are stored in native centimetre units (see internal/units).
type Reading struct {
	ID         uuid.UUID `db:"id" json:"id"`
	StationID  string    `db:"station_id" json:"station_id"`
	Level      int64     `db:"level" json:"level"`
	CapturedAt time.Time `db:"captured_at" json:"captured_at"`
	// Pushed records whether the registry push for this cycle
	// succeeded. Audit only; eligibility always consults the chain.
	Pushed    bool      `db:"pushed" json:"pushed"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Threshold holds the warning/critical pair for a station, in native
// level units.
type Threshold struct {
	StationID     string    `db:"station_id" json:"station_id"`
	WarningLevel  int64     `db:"warning_level" json:"warning_level"`
	CriticalLevel int64     `db:"critical_level" json:"critical_level"`
	Unit          string    `db:"unit" json:"unit"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// BreachLevel classifies a reading against a threshold pair.
type BreachLevel string

const (
	BreachNormal   BreachLevel = "normal"
	BreachWarning  BreachLevel = "warning"
	BreachCritical BreachLevel = "critical"
)

// Package station reads the external water-gauge time-series API. The
// upstream is unreliable by assumption: missing stations, empty
// series, and malformed payloads are reported as errors for the caller
// to skip, never retried here.
package station

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/riverguard/parametric-api/pkg/circuitbreaker"
)

// Measurement is the latest value for one station, in display units
// (metres).
type Measurement struct {
	StationID string
	Level     float64
	At        time.Time
}

// Source fetches the latest measurement for a station.
type Source interface {
	Latest(ctx context.Context, stationID string) (*Measurement, error)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type client struct {
	baseURL string
	http    *http.Client
	cb      *circuitbreaker.CircuitBreaker
}

func NewClient(cfg Config) Source {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		cb: circuitbreaker.New(circuitbreaker.Settings{
			Name:        "station-source",
			MaxFailures: 5,
			Timeout:     time.Minute,
		}),
	}
}

type seriesResponse struct {
	StationID string `json:"station_id"`
	Series    []struct {
		Level     *float64  `json:"level"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"series"`
}

func (c *client) Latest(ctx context.Context, stationID string) (*Measurement, error) {
	endpoint := fmt.Sprintf("%s/stations/%s/latest", c.baseURL, url.PathEscape(stationID))

	var m *Measurement
	err := c.cb.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("station fetch failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("station source returned %d", resp.StatusCode)
		}

		var body seriesResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("malformed station response: %w", err)
		}
		if len(body.Series) == 0 {
			return fmt.Errorf("station %s has no series data", stationID)
		}

		latest := body.Series[len(body.Series)-1]
		if latest.Level == nil {
			return fmt.Errorf("station %s latest point has no level", stationID)
		}

		m = &Measurement{
			StationID: stationID,
			Level:     *latest.Level,
			At:        latest.Timestamp,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/riverguard/parametric-api/internal/model"
)

type SMSConfig struct {
	GatewayURL string
	APIKey     string
	SenderID   string
	Timeout    time.Duration
}

type smsSender struct {
	cfg  SMSConfig
	http *http.Client
}

// NewSMSSender posts to an SMS gateway's JSON API.
func NewSMSSender(cfg SMSConfig) Sender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &smsSender{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

func (s *smsSender) Send(ctx context.Context, job *model.NotificationJob) error {
	payload, err := json.Marshal(map[string]string{
		"to":      job.Recipient,
		"from":    s.cfg.SenderID,
		"message": job.Body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned %d", resp.StatusCode)
	}
	return nil
}

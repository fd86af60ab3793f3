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

type PushConfig struct {
	GatewayURL string
	APIKey     string
	Timeout    time.Duration
}

type pushSender struct {
	cfg  PushConfig
	http *http.Client
}

// NewPushSender posts to a push-delivery gateway. The recipient is the
// device token from the user's preferences.
func NewPushSender(cfg PushConfig) Sender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &pushSender{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

func (s *pushSender) Send(ctx context.Context, job *model.NotificationJob) error {
	payload, err := json.Marshal(map[string]interface{}{
		"token": job.Recipient,
		"title": job.Subject,
		"body":  job.Body,
		"data":  job.Metadata,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+s.cfg.APIKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("push gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway returned %d", resp.StatusCode)
	}
	return nil
}

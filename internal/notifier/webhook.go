package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/repository"
)

type WebhookConfig struct {
	Timeout time.Duration
}

type webhookSender struct {
	repo repository.NotificationRepository
	http *http.Client
	now  func() time.Time
}

// NewWebhookSender posts signed deliveries to subscriber endpoints.
// The subscription id rides in the job metadata; the shared secret is
// loaded fresh per delivery so rotations take effect immediately.
func NewWebhookSender(repo repository.NotificationRepository, cfg WebhookConfig) Sender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &webhookSender{
		repo: repo,
		http: &http.Client{Timeout: timeout},
		now:  time.Now,
	}
}

func (s *webhookSender) Send(ctx context.Context, job *model.NotificationJob) error {
	subID, err := uuid.Parse(job.Metadata["subscription_id"])
	if err != nil {
		return fmt.Errorf("webhook job has no subscription id: %w", err)
	}

	subs, err := s.repo.ListSubscriptions(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("failed to load webhook subscriptions: %w", err)
	}
	var sub *model.WebhookSubscription
	for _, candidate := range subs {
		if candidate.ID == subID {
			sub = candidate
			break
		}
	}
	if sub == nil || !sub.Active {
		return fmt.Errorf("webhook subscription %s is gone or inactive", subID)
	}

	timestamp := s.now().Unix()
	body, err := json.Marshal(map[string]interface{}{
		"event":     job.Metadata["event_type"],
		"timestamp": timestamp,
		"data":      payloadData(job.Body),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-Webhook-Signature", Signature(sub.Secret, timestamp, body))

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook receiver returned %d", resp.StatusCode)
	}
	return nil
}

// payloadData embeds a JSON template body as-is and quotes anything
// else. A plain-text template must degrade to a string field, not make
// every delivery attempt fail at marshalling.
func payloadData(body string) json.RawMessage {
	raw := json.RawMessage(body)
	if json.Valid(raw) {
		return raw
	}
	quoted, _ := json.Marshal(body)
	return quoted
}

// Signature computes the hex HMAC-SHA256 over "{timestamp}.{body}" so
// receivers can verify authenticity and reject stale deliveries.
func Signature(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

package model

import (
	"time"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelInApp   Channel = "in_app"
	ChannelWebhook Channel = "webhook"
)

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// TriggerEvent is the queue payload for a domain occurrence that fans
// out to per-channel notification jobs. It lives only on the queue.
type TriggerEvent struct {
	EventType string            `json:"event_type"`
	UserID    uuid.UUID         `json:"user_id"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NotificationJob is the queue payload for a single channel delivery.
// Retry bookkeeping lives on the queue job row, not here: the payload
// is written once and never rewritten across requeues.
type NotificationJob struct {
	UserID    uuid.UUID         `json:"user_id"`
	Channel   Channel           `json:"channel"`
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject,omitempty"`
	Body      string            `json:"body"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NotificationLog is the persisted lineage of one delivery: created
// pending on first processing, updated on each outcome.
type NotificationLog struct {
	ID            uuid.UUID          `db:"id" json:"id"`
	UserID        uuid.UUID          `db:"user_id" json:"user_id"`
	Type          string             `db:"type" json:"type"`
	Channel       Channel            `db:"channel" json:"channel"`
	Recipient     string             `db:"recipient" json:"recipient"`
	Content       string             `db:"content" json:"content"`
	Status        NotificationStatus `db:"status" json:"status"`
	FailureReason *string            `db:"failure_reason" json:"failure_reason,omitempty"`
	RetryCount    int                `db:"retry_count" json:"retry_count"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
	DeliveredAt   *time.Time         `db:"delivered_at" json:"delivered_at,omitempty"`
}

// NotificationPreferences records which channels a user has enabled
// and where to reach them on each.
type NotificationPreferences struct {
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	EmailEnabled bool      `db:"email_enabled" json:"email_enabled"`
	SMSEnabled   bool      `db:"sms_enabled" json:"sms_enabled"`
	PushEnabled  bool      `db:"push_enabled" json:"push_enabled"`
	InAppEnabled bool      `db:"in_app_enabled" json:"in_app_enabled"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone"`
	PushToken    string    `db:"push_token" json:"push_token"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// NotificationTemplate holds the per-event, per-channel content.
// An empty body means the channel is not configured for the event.
type NotificationTemplate struct {
	EventType string  `db:"event_type" json:"event_type"`
	Channel   Channel `db:"channel" json:"channel"`
	Subject   string  `db:"subject" json:"subject"`
	Body      string  `db:"body" json:"body"`
}

// InAppNotification is the dashboard inbox row behind the in_app
// channel.
type InAppNotification struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"user_id"`
	Type      string     `db:"type" json:"type"`
	Content   string     `db:"content" json:"content"`
	Read      bool       `db:"read" json:"read"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	ReadAt    *time.Time `db:"read_at" json:"read_at,omitempty"`
}

// WebhookSubscription is a registered webhook receiver. Secret signs
// deliveries (HMAC-SHA256 over "{timestamp}.{body}").
type WebhookSubscription struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	URL       string    `db:"url" json:"url"`
	Secret    string    `db:"secret" json:"-"`
	Events    string    `db:"events" json:"events"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DeadLetterEntry captures a notification job that exhausted its retry
// budget. Resolved only by manual operator action.
type DeadLetterEntry struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	NotificationLogID *uuid.UUID `db:"notification_log_id" json:"notification_log_id,omitempty"`
	JobPayload        []byte     `db:"job_payload" json:"job_payload"`
	Error             string     `db:"error" json:"error"`
	Resolved          bool       `db:"resolved" json:"resolved"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

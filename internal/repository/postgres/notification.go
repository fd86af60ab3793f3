package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/repository"
)

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

func (r *notificationRepository) CreateLog(ctx context.Context, log *model.NotificationLog) error {
	query := `
		INSERT INTO notification_logs (id, user_id, type, channel, recipient, content, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		log.ID, log.UserID, log.Type, log.Channel, log.Recipient,
		log.Content, log.Status, log.RetryCount, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification log: %w", err)
	}
	return nil
}

func (r *notificationRepository) UpdateLogStatus(ctx context.Context, id uuid.UUID, status model.NotificationStatus, failureReason *string, retryCount int, deliveredAt *time.Time) error {
	query := `
		UPDATE notification_logs
		SET status = $2, failure_reason = $3, retry_count = $4, delivered_at = $5
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, status, failureReason, retryCount, deliveredAt)
	if err != nil {
		return fmt.Errorf("failed to update notification log: %w", err)
	}
	return nil
}

func (r *notificationRepository) ListLogs(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.NotificationLog, error) {
	query := `
		SELECT id, user_id, type, channel, recipient, content, status, failure_reason, retry_count, created_at, delivered_at
		FROM notification_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	var logs []*model.NotificationLog
	if err := r.db.SelectContext(ctx, &logs, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list notification logs: %w", err)
	}
	return logs, nil
}

func (r *notificationRepository) GetPreferences(ctx context.Context, userID uuid.UUID) (*model.NotificationPreferences, error) {
	var prefs model.NotificationPreferences
	query := `
		SELECT user_id, email_enabled, sms_enabled, push_enabled, in_app_enabled, email, phone, push_token, updated_at
		FROM notification_preferences WHERE user_id = $1
	`
	err := r.db.GetContext(ctx, &prefs, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	return &prefs, nil
}

func (r *notificationRepository) UpsertPreferences(ctx context.Context, prefs *model.NotificationPreferences) error {
	query := `
		INSERT INTO notification_preferences (user_id, email_enabled, sms_enabled, push_enabled, in_app_enabled, email, phone, push_token, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET email_enabled = EXCLUDED.email_enabled,
			sms_enabled = EXCLUDED.sms_enabled,
			push_enabled = EXCLUDED.push_enabled,
			in_app_enabled = EXCLUDED.in_app_enabled,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			push_token = EXCLUDED.push_token,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query,
		prefs.UserID, prefs.EmailEnabled, prefs.SMSEnabled, prefs.PushEnabled,
		prefs.InAppEnabled, prefs.Email, prefs.Phone, prefs.PushToken,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert preferences: %w", err)
	}
	return nil
}

func (r *notificationRepository) GetTemplates(ctx context.Context, eventType string) ([]*model.NotificationTemplate, error) {
	query := `
		SELECT event_type, channel, subject, body
		FROM notification_templates
		WHERE event_type = $1
	`
	var templates []*model.NotificationTemplate
	if err := r.db.SelectContext(ctx, &templates, query, eventType); err != nil {
		return nil, fmt.Errorf("failed to get templates: %w", err)
	}
	return templates, nil
}

func (r *notificationRepository) CreateInApp(ctx context.Context, n *model.InAppNotification) error {
	query := `
		INSERT INTO in_app_notifications (id, user_id, type, content, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, n.ID, n.UserID, n.Type, n.Content, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create in-app notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) ListInApp(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]*model.InAppNotification, error) {
	query := `
		SELECT id, user_id, type, content, read, created_at, read_at
		FROM in_app_notifications
		WHERE user_id = $1 AND ($2 = false OR read = false)
		ORDER BY created_at DESC
	`
	var notifications []*model.InAppNotification
	if err := r.db.SelectContext(ctx, &notifications, query, userID, unreadOnly); err != nil {
		return nil, fmt.Errorf("failed to list in-app notifications: %w", err)
	}
	return notifications, nil
}

func (r *notificationRepository) MarkInAppRead(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE in_app_notifications SET read = true, read_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *notificationRepository) CreateSubscription(ctx context.Context, sub *model.WebhookSubscription) error {
	query := `
		INSERT INTO webhook_subscriptions (id, user_id, url, secret, events, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		sub.ID, sub.UserID, sub.URL, sub.Secret, sub.Events, sub.Active, sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook subscription: %w", err)
	}
	return nil
}

func (r *notificationRepository) ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]*model.WebhookSubscription, error) {
	query := `
		SELECT id, user_id, url, secret, events, active, created_at
		FROM webhook_subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	var subs []*model.WebhookSubscription
	if err := r.db.SelectContext(ctx, &subs, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list webhook subscriptions: %w", err)
	}
	return subs, nil
}

// ActiveSubscriptions matches subscriptions whose comma-separated
// events list contains the event type, or subscribes to everything
// with '*'.
func (r *notificationRepository) ActiveSubscriptions(ctx context.Context, userID uuid.UUID, eventType string) ([]*model.WebhookSubscription, error) {
	query := `
		SELECT id, user_id, url, secret, events, active, created_at
		FROM webhook_subscriptions
		WHERE user_id = $1 AND active = true
		AND (events = '*' OR $2 = ANY(string_to_array(events, ',')))
	`
	var subs []*model.WebhookSubscription
	if err := r.db.SelectContext(ctx, &subs, query, userID, eventType); err != nil {
		return nil, fmt.Errorf("failed to match webhook subscriptions: %w", err)
	}
	return subs, nil
}

func (r *notificationRepository) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook subscription: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

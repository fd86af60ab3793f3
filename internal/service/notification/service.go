// Package notification fans domain trigger events out to per-channel
// delivery jobs and fronts the notification read/write APIs. Fan-out
// only enqueues; actual delivery happens in the worker.
package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/repository"
	apperrors "github.com/riverguard/parametric-api/pkg/errors"
	"github.com/riverguard/parametric-api/pkg/logger"
	"github.com/riverguard/parametric-api/pkg/metrics"
	"github.com/riverguard/parametric-api/pkg/queue"
)

type Service struct {
	repo    repository.NotificationRepository
	queue   queue.Queue
	metrics *metrics.Metrics
	logger  *logger.Logger
}

func NewService(repo repository.NotificationRepository, q queue.Queue, m *metrics.Metrics, log *logger.Logger) *Service {
	return &Service{repo: repo, queue: q, metrics: m, logger: log}
}

// HandleTrigger expands one trigger event into per-channel delivery
// jobs. A user with no preferences or an event with no templates is a
// logged no-op, not an error: triggers must never bounce back onto the
// queue because a recipient opted out.
func (s *Service) HandleTrigger(ctx context.Context, event *model.TriggerEvent) error {
	prefs, err := s.repo.GetPreferences(ctx, event.UserID)
	if err != nil {
		if err == repository.ErrNotFound {
			s.logger.Info("no notification preferences, skipping trigger",
				"user_id", event.UserID.String(), "event_type", event.EventType)
			return nil
		}
		return fmt.Errorf("loading preferences: %w", err)
	}

	templates, err := s.repo.GetTemplates(ctx, event.EventType)
	if err != nil {
		return fmt.Errorf("loading templates for %s: %w", event.EventType, err)
	}
	if len(templates) == 0 {
		s.logger.Info("no templates configured, skipping trigger", "event_type", event.EventType)
		return nil
	}

	byChannel := make(map[model.Channel]*model.NotificationTemplate, len(templates))
	for _, tmpl := range templates {
		byChannel[tmpl.Channel] = tmpl
	}

	var enqueued int
	for channel, tmpl := range byChannel {
		recipient, enabled := resolveRecipient(prefs, channel)
		if !enabled {
			continue
		}
		if channel == model.ChannelWebhook {
			n, err := s.fanOutWebhooks(ctx, event, tmpl)
			if err != nil {
				return err
			}
			enqueued += n
			continue
		}
		job := &model.NotificationJob{
			UserID:    event.UserID,
			Channel:   channel,
			Recipient: recipient,
			Subject:   render(tmpl.Subject, event.Data),
			Body:      render(tmpl.Body, event.Data),
			Metadata:  map[string]string{"event_type": event.EventType},
		}
		if err := s.enqueue(ctx, job); err != nil {
			return err
		}
		enqueued++
	}

	s.logger.Info("trigger fanned out",
		"event_type", event.EventType, "user_id", event.UserID.String(), "jobs", enqueued)
	return nil
}

// fanOutWebhooks enqueues one delivery per active subscription whose
// event filter matches. Subscriptions carry their own endpoint and
// secret, so each gets its own job.
func (s *Service) fanOutWebhooks(ctx context.Context, event *model.TriggerEvent, tmpl *model.NotificationTemplate) (int, error) {
	subs, err := s.repo.ActiveSubscriptions(ctx, event.UserID, event.EventType)
	if err != nil {
		return 0, fmt.Errorf("loading webhook subscriptions: %w", err)
	}

	for _, sub := range subs {
		job := &model.NotificationJob{
			UserID:    event.UserID,
			Channel:   model.ChannelWebhook,
			Recipient: sub.URL,
			Body:      render(tmpl.Body, event.Data),
			Metadata: map[string]string{
				"event_type":      event.EventType,
				"subscription_id": sub.ID.String(),
			},
		}
		if err := s.enqueue(ctx, job); err != nil {
			return 0, err
		}
	}
	return len(subs), nil
}

// SendInput is a direct, template-free send request.
type SendInput struct {
	UserID    uuid.UUID     `json:"user_id" binding:"required"`
	Channel   model.Channel `json:"channel" binding:"required"`
	Recipient string        `json:"recipient"`
	Subject   string        `json:"subject"`
	Body      string        `json:"body" binding:"required"`
}

// Send enqueues a single delivery bypassing templates and preferences.
// Operator-facing; used for announcements and delivery tests.
func (s *Service) Send(ctx context.Context, input *SendInput) (*model.Job, error) {
	switch input.Channel {
	case model.ChannelEmail, model.ChannelSMS, model.ChannelPush, model.ChannelInApp, model.ChannelWebhook:
	default:
		return nil, apperrors.BadRequest(fmt.Sprintf("unsupported channel: %s", input.Channel), nil)
	}

	job, err := s.queue.Enqueue(ctx, model.JobTypeNotification, &model.NotificationJob{
		UserID:    input.UserID,
		Channel:   input.Channel,
		Recipient: input.Recipient,
		Subject:   input.Subject,
		Body:      input.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueueing %s delivery: %w", input.Channel, err)
	}
	s.metrics.JobsEnqueued.WithLabelValues(model.JobTypeNotification).Inc()
	return job, nil
}

// Trigger enqueues a trigger event for asynchronous fan-out. Unlike
// internal producers, the operator endpoint rejects event types no
// template is registered for: enqueueing them would only ever no-op.
func (s *Service) Trigger(ctx context.Context, event *model.TriggerEvent) (*model.Job, error) {
	if event.EventType == "" {
		return nil, apperrors.BadRequest("event_type is required", nil)
	}
	templates, err := s.repo.GetTemplates(ctx, event.EventType)
	if err != nil {
		return nil, fmt.Errorf("loading templates for %s: %w", event.EventType, err)
	}
	if len(templates) == 0 {
		return nil, apperrors.UnknownEventType(event.EventType)
	}
	job, err := s.queue.Enqueue(ctx, model.JobTypeTrigger, event)
	if err != nil {
		return nil, fmt.Errorf("enqueueing trigger: %w", err)
	}
	s.metrics.JobsEnqueued.WithLabelValues(model.JobTypeTrigger).Inc()
	return job, nil
}

func (s *Service) enqueue(ctx context.Context, job *model.NotificationJob) error {
	if _, err := s.queue.Enqueue(ctx, model.JobTypeNotification, job); err != nil {
		return fmt.Errorf("enqueueing %s delivery: %w", job.Channel, err)
	}
	s.metrics.JobsEnqueued.WithLabelValues(model.JobTypeNotification).Inc()
	return nil
}

func (s *Service) ListLogs(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.NotificationLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListLogs(ctx, userID, limit, offset)
}

func (s *Service) ListInApp(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]*model.InAppNotification, error) {
	return s.repo.ListInApp(ctx, userID, unreadOnly)
}

func (s *Service) MarkInAppRead(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.MarkInAppRead(ctx, id); err != nil {
		if err == repository.ErrNotFound {
			return apperrors.NotFound("notification", err)
		}
		return err
	}
	return nil
}

func (s *Service) GetPreferences(ctx context.Context, userID uuid.UUID) (*model.NotificationPreferences, error) {
	prefs, err := s.repo.GetPreferences(ctx, userID)
	if err == repository.ErrNotFound {
		// Absent preferences read as everything off.
		return &model.NotificationPreferences{UserID: userID}, nil
	}
	return prefs, err
}

func (s *Service) UpdatePreferences(ctx context.Context, prefs *model.NotificationPreferences) error {
	if prefs.EmailEnabled && prefs.Email == "" {
		return apperrors.BadRequest("email address required when email channel is enabled", nil)
	}
	if prefs.SMSEnabled && prefs.Phone == "" {
		return apperrors.BadRequest("phone number required when sms channel is enabled", nil)
	}
	return s.repo.UpsertPreferences(ctx, prefs)
}

func (s *Service) CreateSubscription(ctx context.Context, sub *model.WebhookSubscription) error {
	if !strings.HasPrefix(sub.URL, "http://") && !strings.HasPrefix(sub.URL, "https://") {
		return apperrors.BadRequest("webhook url must be http(s)", nil)
	}
	if sub.Secret == "" {
		return apperrors.BadRequest("webhook secret is required", nil)
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.Active = true
	return s.repo.CreateSubscription(ctx, sub)
}

func (s *Service) ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]*model.WebhookSubscription, error) {
	return s.repo.ListSubscriptions(ctx, userID)
}

func (s *Service) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteSubscription(ctx, id); err != nil {
		if err == repository.ErrNotFound {
			return apperrors.NotFound("subscription", err)
		}
		return err
	}
	return nil
}

// resolveRecipient maps a channel to the user's configured endpoint,
// honouring the enable flag. Webhook enablement rides on having
// active subscriptions, not a preference flag.
func resolveRecipient(prefs *model.NotificationPreferences, channel model.Channel) (string, bool) {
	switch channel {
	case model.ChannelEmail:
		return prefs.Email, prefs.EmailEnabled && prefs.Email != ""
	case model.ChannelSMS:
		return prefs.Phone, prefs.SMSEnabled && prefs.Phone != ""
	case model.ChannelPush:
		return prefs.PushToken, prefs.PushEnabled && prefs.PushToken != ""
	case model.ChannelInApp:
		return prefs.UserID.String(), prefs.InAppEnabled
	case model.ChannelWebhook:
		return "", true
	default:
		return "", false
	}
}

// render substitutes {{key}} placeholders with event data.
func render(tmpl string, data map[string]string) string {
	if len(data) == 0 || !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	out := tmpl
	for key, value := range data {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out
}

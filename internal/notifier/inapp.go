package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/repository"
	"github.com/riverguard/parametric-api/pkg/messaging"
)

type inAppSender struct {
	repo   repository.NotificationRepository
	broker messaging.Broker
}

// NewInAppSender persists the inbox row and publishes it on the live
// broker so connected dashboards see it immediately. The row is the
// source of truth; a publish failure is still a delivery.
func NewInAppSender(repo repository.NotificationRepository, broker messaging.Broker) Sender {
	return &inAppSender{repo: repo, broker: broker}
}

func (s *inAppSender) Send(ctx context.Context, job *model.NotificationJob) error {
	notification := &model.InAppNotification{
		ID:        uuid.New(),
		UserID:    job.UserID,
		Type:      job.Metadata["event_type"],
		Content:   job.Body,
		CreatedAt: time.Now(),
	}

	if err := s.repo.CreateInApp(ctx, notification); err != nil {
		return fmt.Errorf("failed to store in-app notification: %w", err)
	}

	if err := s.broker.Publish(ctx, messaging.ChannelInApp, notification); err != nil {
		// Inbox row exists; the dashboard will pick it up on poll.
		return nil
	}
	return nil
}

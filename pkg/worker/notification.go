package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/notifier"
	"github.com/riverguard/parametric-api/internal/repository"
	"github.com/riverguard/parametric-api/pkg/logger"
	"github.com/riverguard/parametric-api/pkg/metrics"
	"github.com/riverguard/parametric-api/pkg/queue"
)

type NotificationProcessorConfig struct {
	Concurrency  int
	BatchSize    int
	PollInterval time.Duration
	// MaxRetries bounds re-deliveries after the first attempt; the job
	// dead-letters once they are spent. Backoff doubles per retry.
	MaxRetries int
}

// NotificationProcessor consumes notification jobs and delivers them
// through the channel registry. Every job gets a NotificationLog row
// tracking its lineage across retries.
type NotificationProcessor struct {
	queue   queue.Queue
	repo    repository.NotificationRepository
	senders *notifier.Registry
	config  NotificationProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewNotificationProcessor(
	q queue.Queue,
	repo repository.NotificationRepository,
	senders *notifier.Registry,
	config NotificationProcessorConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *NotificationProcessor {
	if config.Concurrency <= 0 {
		config.Concurrency = 10
	}
	if config.BatchSize <= 0 {
		config.BatchSize = config.Concurrency * 2
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}

	return &NotificationProcessor{
		queue:   q,
		repo:    repo,
		senders: senders,
		config:  config,
		logger:  log,
		metrics: m,
	}
}

func (p *NotificationProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("starting notification processor",
		"concurrency", p.config.Concurrency, "max_retries", p.config.MaxRetries)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("shutting down notification processor")
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

func (p *NotificationProcessor) ProcessBatch(ctx context.Context) {
	jobs, err := p.queue.Dequeue(ctx, []string{model.JobTypeNotification}, p.config.BatchSize)
	if err != nil {
		p.logger.Error(err, "failed to dequeue notification jobs")
		return
	}
	if len(jobs) == 0 {
		return
	}

	sem := make(chan struct{}, p.config.Concurrency)
	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(job *model.Job) {
			defer wg.Done()
			defer func() { <-sem }()
			p.process(ctx, job)
		}(job)
	}
	wg.Wait()
}

// logIDFor derives a stable log ID from the queue job, so retries of
// the same job keep updating one NotificationLog row without having to
// rewrite the payload.
func logIDFor(job *model.Job) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, job.ID[:])
}

func (p *NotificationProcessor) process(ctx context.Context, job *model.Job) {
	timer := prometheus.NewTimer(p.metrics.JobLatency.WithLabelValues(model.JobTypeNotification))
	defer timer.ObserveDuration()

	var delivery model.NotificationJob
	if err := json.Unmarshal(job.Payload, &delivery); err != nil {
		p.logger.Error(err, "undecodable notification payload", "job_id", job.ID.String())
		p.metrics.JobsFailed.WithLabelValues(model.JobTypeNotification).Inc()
		p.deadLetter(ctx, job, nil, fmt.Sprintf("undecodable payload: %v", err))
		return
	}

	logID := logIDFor(job)
	if job.RetryCount == 0 {
		entry := &model.NotificationLog{
			ID:        logID,
			UserID:    delivery.UserID,
			Type:      delivery.Metadata["event_type"],
			Channel:   delivery.Channel,
			Recipient: delivery.Recipient,
			Content:   delivery.Body,
			Status:    model.NotificationStatusPending,
			CreatedAt: time.Now(),
		}
		if err := p.repo.CreateLog(ctx, entry); err != nil {
			p.logger.Error(err, "failed to create notification log", "job_id", job.ID.String())
			// Delivery still proceeds; the log is lineage, not a gate.
		}
	}

	if err := p.deliver(ctx, &delivery); err != nil {
		p.metrics.JobsFailed.WithLabelValues(model.JobTypeNotification).Inc()
		p.metrics.ChannelSends.WithLabelValues(string(delivery.Channel), "failure").Inc()
		p.fail(ctx, job, logID, err)
		return
	}

	now := time.Now()
	if err := p.repo.UpdateLogStatus(ctx, logID, model.NotificationStatusSent, nil, job.RetryCount, &now); err != nil {
		p.logger.Error(err, "failed to mark notification sent", "log_id", logID.String())
	}
	if err := p.queue.Complete(ctx, job.ID); err != nil {
		p.logger.Error(err, "failed to complete notification job", "job_id", job.ID.String())
		return
	}
	p.metrics.JobsProcessed.WithLabelValues(model.JobTypeNotification).Inc()
	p.metrics.ChannelSends.WithLabelValues(string(delivery.Channel), "success").Inc()
}

func (p *NotificationProcessor) deliver(ctx context.Context, delivery *model.NotificationJob) error {
	sender, err := p.senders.For(delivery.Channel)
	if err != nil {
		return err
	}

	timer := prometheus.NewTimer(p.metrics.ChannelLatency.WithLabelValues(string(delivery.Channel)))
	defer timer.ObserveDuration()

	return sender.Send(ctx, delivery)
}

func (p *NotificationProcessor) fail(ctx context.Context, job *model.Job, logID uuid.UUID, cause error) {
	reason := cause.Error()

	if job.RetryCount >= p.config.MaxRetries {
		if err := p.repo.UpdateLogStatus(ctx, logID, model.NotificationStatusFailed, &reason, job.RetryCount, nil); err != nil {
			p.logger.Error(err, "failed to mark notification failed", "log_id", logID.String())
		}
		p.deadLetter(ctx, job, &logID, reason)
		return
	}

	delay := time.Duration(1<<job.RetryCount) * time.Second
	if err := p.repo.UpdateLogStatus(ctx, logID, model.NotificationStatusFailed, &reason, job.RetryCount+1, nil); err != nil {
		p.logger.Error(err, "failed to record delivery failure", "log_id", logID.String())
	}
	p.logger.Warn("notification delivery failed, rescheduling",
		"job_id", job.ID.String(), "retry", job.RetryCount+1, "delay", delay.String(), "error", reason)
	if err := p.queue.Retry(ctx, job, reason, delay); err != nil {
		p.logger.Error(err, "failed to reschedule notification job", "job_id", job.ID.String())
	}
}

func (p *NotificationProcessor) deadLetter(ctx context.Context, job *model.Job, logID *uuid.UUID, reason string) {
	p.logger.Error(fmt.Errorf("%s", reason), "notification job dead-lettered",
		"job_id", job.ID.String(), "attempts", job.RetryCount+1)
	if err := p.queue.DeadLetter(ctx, job, reason, logID); err != nil {
		p.logger.Error(err, "failed to dead-letter notification job", "job_id", job.ID.String())
		return
	}
	p.metrics.JobsDeadLettered.Inc()
}

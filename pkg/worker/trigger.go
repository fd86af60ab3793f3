// Package worker hosts the dispatch-queue consumers: the trigger
// processor that fans events out into channel deliveries, and the
// notification processor that performs the deliveries themselves.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/pkg/logger"
	"github.com/riverguard/parametric-api/pkg/metrics"
	"github.com/riverguard/parametric-api/pkg/queue"
)

// TriggerHandler expands one trigger event into channel jobs.
type TriggerHandler interface {
	HandleTrigger(ctx context.Context, event *model.TriggerEvent) error
}

type TriggerProcessorConfig struct {
	Concurrency  int
	BatchSize    int
	PollInterval time.Duration
	// MaxAttempts bounds retries after the first attempt; an exhausted
	// trigger is dropped, not dead-lettered, since no delivery was ever
	// owed downstream.
	MaxAttempts int
	BaseDelay   time.Duration
}

// TriggerProcessor consumes trigger jobs and hands each to the fan-out
// handler. Failed fan-outs back off exponentially (BaseDelay doubling
// per attempt) and are dropped after MaxAttempts.
type TriggerProcessor struct {
	queue   queue.Queue
	handler TriggerHandler
	config  TriggerProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewTriggerProcessor(
	q queue.Queue,
	handler TriggerHandler,
	config TriggerProcessorConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *TriggerProcessor {
	if config.Concurrency <= 0 {
		config.Concurrency = 5
	}
	if config.BatchSize <= 0 {
		config.BatchSize = config.Concurrency * 2
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}

	return &TriggerProcessor{
		queue:   q,
		handler: handler,
		config:  config,
		logger:  log,
		metrics: m,
	}
}

// Start polls until ctx is cancelled. In-flight jobs finish before
// Start returns.
func (p *TriggerProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("starting trigger processor",
		"concurrency", p.config.Concurrency, "max_attempts", p.config.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("shutting down trigger processor")
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch claims one batch and works it with the configured
// concurrency, returning once every claimed job has been settled.
func (p *TriggerProcessor) ProcessBatch(ctx context.Context) {
	jobs, err := p.queue.Dequeue(ctx, []string{model.JobTypeTrigger}, p.config.BatchSize)
	if err != nil {
		p.logger.Error(err, "failed to dequeue trigger jobs")
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

func (p *TriggerProcessor) process(ctx context.Context, job *model.Job) {
	timer := prometheus.NewTimer(p.metrics.JobLatency.WithLabelValues(model.JobTypeTrigger))
	defer timer.ObserveDuration()

	var event model.TriggerEvent
	if err := json.Unmarshal(job.Payload, &event); err != nil {
		// A payload that never parsed will never parse; drop now.
		p.logger.Error(err, "undecodable trigger payload", "job_id", job.ID.String())
		p.metrics.JobsFailed.WithLabelValues(model.JobTypeTrigger).Inc()
		if err := p.queue.Drop(ctx, job, fmt.Sprintf("undecodable payload: %v", err)); err != nil {
			p.logger.Error(err, "failed to drop trigger job", "job_id", job.ID.String())
		}
		return
	}

	if err := p.handler.HandleTrigger(ctx, &event); err != nil {
		p.metrics.JobsFailed.WithLabelValues(model.JobTypeTrigger).Inc()
		p.fail(ctx, job, err)
		return
	}

	if err := p.queue.Complete(ctx, job.ID); err != nil {
		p.logger.Error(err, "failed to complete trigger job", "job_id", job.ID.String())
		return
	}
	p.metrics.JobsProcessed.WithLabelValues(model.JobTypeTrigger).Inc()
}

func (p *TriggerProcessor) fail(ctx context.Context, job *model.Job, cause error) {
	if job.RetryCount >= p.config.MaxAttempts {
		p.logger.Error(cause, "trigger job exhausted retries, dropping",
			"job_id", job.ID.String(), "attempts", job.RetryCount+1)
		if err := p.queue.Drop(ctx, job, cause.Error()); err != nil {
			p.logger.Error(err, "failed to drop trigger job", "job_id", job.ID.String())
		}
		return
	}

	delay := p.config.BaseDelay << job.RetryCount
	p.logger.Warn("trigger job failed, rescheduling",
		"job_id", job.ID.String(), "attempt", job.RetryCount+1, "delay", delay.String(), "error", cause.Error())
	if err := p.queue.Retry(ctx, job, cause.Error(), delay); err != nil {
		p.logger.Error(err, "failed to reschedule trigger job", "job_id", job.ID.String())
	}
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/notifier"
	"github.com/riverguard/parametric-api/internal/repository"
	"github.com/riverguard/parametric-api/pkg/logger"
	"github.com/riverguard/parametric-api/pkg/metrics"
)

// memQueue mimics the postgres queue's visibility rules in memory:
// dequeue only claims pending jobs whose run_at has passed.
type memQueue struct {
	mu          sync.Mutex
	jobs        map[uuid.UUID]*model.Job
	deadLetters []*model.DeadLetterEntry
	retryDelays []time.Duration
}

func newMemQueue() *memQueue {
	return &memQueue{jobs: make(map[uuid.UUID]*model.Job)}
}

func (q *memQueue) Enqueue(ctx context.Context, jobType string, payload interface{}) (*model.Job, error) {
	return q.EnqueueAt(ctx, jobType, payload, time.Now())
}

func (q *memQueue) EnqueueAt(_ context.Context, jobType string, payload interface{}, runAt time.Time) (*model.Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	job := &model.Job{
		ID:      uuid.New(),
		JobType: jobType,
		Payload: raw,
		Status:  model.JobStatusPending,
		RunAt:   runAt,
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.ID] = job
	return job, nil
}

func (q *memQueue) Dequeue(_ context.Context, jobTypes []string, limit int) ([]*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	var out []*model.Job
	for _, job := range q.jobs {
		if len(out) >= limit {
			break
		}
		if job.Status != model.JobStatusPending || job.RunAt.After(now) {
			continue
		}
		for _, jt := range jobTypes {
			if job.JobType == jt {
				job.Status = model.JobStatusProcessing
				copied := *job
				out = append(out, &copied)
				break
			}
		}
	}
	return out, nil
}

func (q *memQueue) Complete(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[id].Status = model.JobStatusDone
	return nil
}

func (q *memQueue) Retry(_ context.Context, job *model.Job, errMsg string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	stored := q.jobs[job.ID]
	stored.Status = model.JobStatusPending
	stored.RetryCount++
	stored.LastError = &errMsg
	stored.RunAt = time.Now().Add(delay)
	q.retryDelays = append(q.retryDelays, delay)
	job.RetryCount = stored.RetryCount
	return nil
}

func (q *memQueue) Drop(_ context.Context, job *model.Job, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	stored := q.jobs[job.ID]
	stored.Status = model.JobStatusDone
	stored.LastError = &errMsg
	return nil
}

func (q *memQueue) DeadLetter(_ context.Context, job *model.Job, errMsg string, logID *uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	stored := q.jobs[job.ID]
	stored.Status = model.JobStatusDead
	stored.LastError = &errMsg
	q.deadLetters = append(q.deadLetters, &model.DeadLetterEntry{
		ID:                uuid.New(),
		NotificationLogID: logID,
		JobPayload:        []byte(job.Payload),
		Error:             errMsg,
	})
	return nil
}

func (q *memQueue) PendingCount(context.Context) (int64, error) { return 0, nil }

func (q *memQueue) PurgeDone(context.Context, time.Time) (int64, error) { return 0, nil }

// drain repeatedly processes due jobs, advancing run_at so backoff
// does not stall the test clock.
func (q *memQueue) makeAllDue() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range q.jobs {
		if job.Status == model.JobStatusPending {
			job.RunAt = time.Now().Add(-time.Millisecond)
		}
	}
}

func (q *memQueue) status(id uuid.UUID) model.JobStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs[id].Status
}

type fakeHandler struct {
	mu    sync.Mutex
	fail  int
	calls int
}

func (h *fakeHandler) HandleTrigger(_ context.Context, _ *model.TriggerEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.calls <= h.fail {
		return fmt.Errorf("downstream unavailable")
	}
	return nil
}

type fakeLogRepo struct {
	mu   sync.Mutex
	logs map[uuid.UUID]*model.NotificationLog
}

func newFakeLogRepo() *fakeLogRepo {
	return &fakeLogRepo{logs: make(map[uuid.UUID]*model.NotificationLog)}
}

func (f *fakeLogRepo) CreateLog(_ context.Context, log *model.NotificationLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[log.ID] = log
	return nil
}

func (f *fakeLogRepo) UpdateLogStatus(_ context.Context, id uuid.UUID, status model.NotificationStatus, failureReason *string, retryCount int, deliveredAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	log, ok := f.logs[id]
	if !ok {
		return repository.ErrNotFound
	}
	log.Status = status
	log.FailureReason = failureReason
	log.RetryCount = retryCount
	log.DeliveredAt = deliveredAt
	return nil
}

func (f *fakeLogRepo) ListLogs(context.Context, uuid.UUID, int, int) ([]*model.NotificationLog, error) {
	return nil, nil
}
func (f *fakeLogRepo) GetPreferences(context.Context, uuid.UUID) (*model.NotificationPreferences, error) {
	return nil, repository.ErrNotFound
}
func (f *fakeLogRepo) UpsertPreferences(context.Context, *model.NotificationPreferences) error {
	return nil
}
func (f *fakeLogRepo) GetTemplates(context.Context, string) ([]*model.NotificationTemplate, error) {
	return nil, nil
}
func (f *fakeLogRepo) CreateInApp(context.Context, *model.InAppNotification) error { return nil }
func (f *fakeLogRepo) ListInApp(context.Context, uuid.UUID, bool) ([]*model.InAppNotification, error) {
	return nil, nil
}
func (f *fakeLogRepo) MarkInAppRead(context.Context, uuid.UUID) error { return nil }
func (f *fakeLogRepo) CreateSubscription(context.Context, *model.WebhookSubscription) error {
	return nil
}
func (f *fakeLogRepo) ListSubscriptions(context.Context, uuid.UUID) ([]*model.WebhookSubscription, error) {
	return nil, nil
}
func (f *fakeLogRepo) ActiveSubscriptions(context.Context, uuid.UUID, string) ([]*model.WebhookSubscription, error) {
	return nil, nil
}
func (f *fakeLogRepo) DeleteSubscription(context.Context, uuid.UUID) error { return nil }

type fakeSender struct {
	mu    sync.Mutex
	fail  int
	calls int
}

func (s *fakeSender) Send(_ context.Context, _ *model.NotificationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fail {
		return fmt.Errorf("smtp connect timeout")
	}
	return nil
}

var (
	testMetrics     *metrics.Metrics
	testMetricsOnce sync.Once
)

func sharedMetrics() *metrics.Metrics {
	testMetricsOnce.Do(func() { testMetrics = metrics.New("worker_test") })
	return testMetrics
}

func newTriggerProcessor(q *memQueue, h TriggerHandler) *TriggerProcessor {
	return NewTriggerProcessor(q, h, TriggerProcessorConfig{
		Concurrency: 2, BatchSize: 10, MaxAttempts: 3, BaseDelay: time.Second,
	}, logger.NewLogger(nil), sharedMetrics())
}

func TestTriggerProcessorCompletesOnSuccess(t *testing.T) {
	q := newMemQueue()
	job, err := q.Enqueue(context.Background(), model.JobTypeTrigger, &model.TriggerEvent{
		EventType: "claim_approved", UserID: uuid.New(),
	})
	require.NoError(t, err)

	p := newTriggerProcessor(q, &fakeHandler{})
	p.ProcessBatch(context.Background())

	assert.Equal(t, model.JobStatusDone, q.status(job.ID))
}

func TestTriggerProcessorRetriesWithExponentialBackoff(t *testing.T) {
	q := newMemQueue()
	job, err := q.Enqueue(context.Background(), model.JobTypeTrigger, &model.TriggerEvent{
		EventType: "claim_approved", UserID: uuid.New(),
	})
	require.NoError(t, err)

	handler := &fakeHandler{fail: 3}
	p := newTriggerProcessor(q, handler)

	for i := 0; i < 4; i++ {
		p.ProcessBatch(context.Background())
		q.makeAllDue()
	}

	assert.Equal(t, model.JobStatusDone, q.status(job.ID))
	assert.Equal(t, 4, handler.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, q.retryDelays)
}

func TestTriggerProcessorDropsAfterMaxAttempts(t *testing.T) {
	q := newMemQueue()
	job, err := q.Enqueue(context.Background(), model.JobTypeTrigger, &model.TriggerEvent{
		EventType: "claim_approved", UserID: uuid.New(),
	})
	require.NoError(t, err)

	handler := &fakeHandler{fail: 100}
	p := newTriggerProcessor(q, handler)

	for i := 0; i < 6; i++ {
		p.ProcessBatch(context.Background())
		q.makeAllDue()
	}

	assert.Equal(t, model.JobStatusDone, q.status(job.ID), "dropped, not dead-lettered")
	assert.Equal(t, 4, handler.calls, "initial attempt plus three retries, then stop")
	assert.Empty(t, q.deadLetters)
}

func TestTriggerProcessorDropsUndecodablePayload(t *testing.T) {
	q := newMemQueue()
	job, err := q.Enqueue(context.Background(), model.JobTypeTrigger, "not an event object")
	require.NoError(t, err)

	handler := &fakeHandler{}
	p := newTriggerProcessor(q, handler)
	p.ProcessBatch(context.Background())

	assert.Equal(t, model.JobStatusDone, q.status(job.ID))
	assert.Zero(t, handler.calls)
}

func newNotificationProcessor(q *memQueue, repo *fakeLogRepo, sender notifier.Sender) *NotificationProcessor {
	registry := notifier.NewRegistry()
	registry.Register(model.ChannelEmail, sender)
	return NewNotificationProcessor(q, repo, registry, NotificationProcessorConfig{
		Concurrency: 2, BatchSize: 10, MaxRetries: 3,
	}, logger.NewLogger(nil), sharedMetrics())
}

func enqueueDelivery(t *testing.T, q *memQueue) *model.Job {
	t.Helper()
	job, err := q.Enqueue(context.Background(), model.JobTypeNotification, &model.NotificationJob{
		UserID:    uuid.New(),
		Channel:   model.ChannelEmail,
		Recipient: "holder@example.com",
		Subject:   "Claim approved",
		Body:      "Your payout is on its way.",
		Metadata:  map[string]string{"event_type": "claim_approved"},
	})
	require.NoError(t, err)
	return job
}

func TestNotificationProcessorDeliversAndLogs(t *testing.T) {
	q := newMemQueue()
	repo := newFakeLogRepo()
	job := enqueueDelivery(t, q)

	p := newNotificationProcessor(q, repo, &fakeSender{})
	p.ProcessBatch(context.Background())

	assert.Equal(t, model.JobStatusDone, q.status(job.ID))

	log := repo.logs[logIDFor(job)]
	require.NotNil(t, log, "delivery leaves a log row")
	assert.Equal(t, model.NotificationStatusSent, log.Status)
	assert.NotNil(t, log.DeliveredAt)
	assert.Equal(t, "claim_approved", log.Type)
}

func TestNotificationProcessorRetriesThenSucceeds(t *testing.T) {
	q := newMemQueue()
	repo := newFakeLogRepo()
	job := enqueueDelivery(t, q)

	sender := &fakeSender{fail: 2}
	p := newNotificationProcessor(q, repo, sender)

	p.ProcessBatch(context.Background())
	q.makeAllDue()
	p.ProcessBatch(context.Background())
	q.makeAllDue()
	p.ProcessBatch(context.Background())

	assert.Equal(t, model.JobStatusDone, q.status(job.ID))
	assert.Equal(t, 3, sender.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, q.retryDelays)

	log := repo.logs[logIDFor(job)]
	require.NotNil(t, log)
	assert.Equal(t, model.NotificationStatusSent, log.Status, "one log row across retries")
}

func TestNotificationProcessorDeadLettersAfterRetries(t *testing.T) {
	q := newMemQueue()
	repo := newFakeLogRepo()
	job := enqueueDelivery(t, q)

	sender := &fakeSender{fail: 100}
	p := newNotificationProcessor(q, repo, sender)

	for i := 0; i < 6; i++ {
		p.ProcessBatch(context.Background())
		q.makeAllDue()
	}

	assert.Equal(t, model.JobStatusDead, q.status(job.ID))
	assert.Equal(t, 4, sender.calls, "initial attempt plus three retries")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, q.retryDelays)

	require.Len(t, q.deadLetters, 1)
	entry := q.deadLetters[0]
	logID := logIDFor(job)
	require.NotNil(t, entry.NotificationLogID)
	assert.Equal(t, logID, *entry.NotificationLogID)

	log := repo.logs[logID]
	require.NotNil(t, log)
	assert.Equal(t, model.NotificationStatusFailed, log.Status)
	require.NotNil(t, log.FailureReason)
	assert.Contains(t, *log.FailureReason, "smtp connect timeout")
}

func TestNotificationProcessorUnknownChannelRetriesThenDeadLetters(t *testing.T) {
	q := newMemQueue()
	repo := newFakeLogRepo()
	_, err := q.Enqueue(context.Background(), model.JobTypeNotification, &model.NotificationJob{
		UserID:  uuid.New(),
		Channel: model.Channel("telegraph"),
		Body:    "stop",
	})
	require.NoError(t, err)

	p := newNotificationProcessor(q, repo, &fakeSender{})
	for i := 0; i < 6; i++ {
		p.ProcessBatch(context.Background())
		q.makeAllDue()
	}

	require.Len(t, q.deadLetters, 1)
	assert.Contains(t, q.deadLetters[0].Error, "unsupported channel")
}

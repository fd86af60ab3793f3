package claim

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/repository"
	apperrors "github.com/riverguard/parametric-api/pkg/errors"
	"github.com/riverguard/parametric-api/pkg/logger"
	"github.com/riverguard/parametric-api/pkg/metrics"
)

// In-memory fakes mirroring the repository contracts, including the
// ledger's compare-and-swap debit.

type fakeLedger struct {
	mu          sync.Mutex
	initialized bool
	capacity    int64
	available   int64
	processed   int64
}

func (f *fakeLedger) Initialize(_ context.Context, capacity int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.initialized {
		f.initialized = true
		f.capacity = capacity
		f.available = capacity
	}
	return nil
}

func (f *fakeLedger) Get(_ context.Context) (*model.ClaimsLedger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.initialized {
		return nil, repository.ErrLedgerMissing
	}
	return &model.ClaimsLedger{
		TotalCapacity:    f.capacity,
		AvailableBalance: f.available,
		TotalProcessed:   f.processed,
	}, nil
}

func (f *fakeLedger) Credit(_ context.Context, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capacity += amount
	f.available += amount
	return nil
}

func (f *fakeLedger) Debit(ctx context.Context, amount int64) error {
	return f.DebitTx(ctx, nil, amount)
}

func (f *fakeLedger) DebitTx(_ context.Context, _ *sqlx.Tx, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.available < amount {
		return repository.ErrInsufficientBalance
	}
	f.available -= amount
	f.processed += amount
	return nil
}

type fakeClaims struct {
	mu      sync.Mutex
	claims  map[uuid.UUID]*model.Claim
	payouts []*model.Payout
}

func newFakeClaims() *fakeClaims {
	return &fakeClaims{claims: make(map[uuid.UUID]*model.Claim)}
}

func (f *fakeClaims) Get(_ context.Context, id uuid.UUID) (*model.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.claims[id]; ok {
		return c, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeClaims) List(_ context.Context, _, _ int) ([]*model.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Claim, 0, len(f.claims))
	for _, c := range f.claims {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeClaims) GetActiveByPolicy(_ context.Context, policyID uuid.UUID) (*model.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.claims {
		if c.PolicyID == policyID && c.Status != model.ClaimStatusRejected {
			return c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeClaims) CreateTx(_ context.Context, _ *sqlx.Tx, claim *model.Claim) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.claims {
		if c.PolicyID == claim.PolicyID && c.Status != model.ClaimStatusRejected {
			return repository.ErrDuplicateActiveClaim
		}
	}
	f.claims[claim.ID] = claim
	return nil
}

func (f *fakeClaims) CreatePayoutTx(_ context.Context, _ *sqlx.Tx, payout *model.Payout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payouts = append(f.payouts, payout)
	return nil
}

func (f *fakeClaims) UpdateStatus(_ context.Context, id uuid.UUID, status model.ClaimStatus, processedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.claims[id]
	if !ok || c.Status != model.ClaimStatusPending {
		return repository.ErrNotFound
	}
	c.Status = status
	c.ProcessedAt = &processedAt
	return nil
}

type fakePolicies struct {
	mu       sync.Mutex
	policies map[uuid.UUID]*model.Policy
}

func newFakePolicies() *fakePolicies {
	return &fakePolicies{policies: make(map[uuid.UUID]*model.Policy)}
}

func (f *fakePolicies) Create(_ context.Context, p *model.Policy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policies[p.ID] = p
	return nil
}

func (f *fakePolicies) Get(_ context.Context, id uuid.UUID) (*model.Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.policies[id]; ok {
		return p, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakePolicies) List(_ context.Context, _, _ int) ([]*model.Policy, error) {
	return nil, nil
}

func (f *fakePolicies) SetPayoutTriggeredTx(_ context.Context, _ *sqlx.Tx, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.policies[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.PayoutTriggered = true
	return nil
}

// fakeTx runs the function directly; fakes ignore the tx handle. It
// cannot roll back, which the tests account for.
type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return fn(nil)
}

type fakeChain struct {
	payErr error
	calls  int32
	mu     sync.Mutex
}

func (f *fakeChain) UpdateLevel(context.Context, string, int64) error { return nil }
func (f *fakeChain) GetThreshold(context.Context) (int64, error)      { return 0, nil }
func (f *fakeChain) Pay(_ context.Context, _ string, _ int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.payErr != nil {
		return "", f.payErr
	}
	return fmt.Sprintf("0xtx%04d", f.calls), nil
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []*model.Job
}

func (f *fakeQueue) Enqueue(ctx context.Context, jobType string, payload interface{}) (*model.Job, error) {
	return f.EnqueueAt(ctx, jobType, payload, time.Now())
}

func (f *fakeQueue) EnqueueAt(_ context.Context, jobType string, _ interface{}, runAt time.Time) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := &model.Job{ID: uuid.New(), JobType: jobType, RunAt: runAt}
	f.jobs = append(f.jobs, job)
	return job, nil
}

func (f *fakeQueue) Dequeue(context.Context, []string, int) ([]*model.Job, error) { return nil, nil }
func (f *fakeQueue) Complete(context.Context, uuid.UUID) error                    { return nil }
func (f *fakeQueue) Retry(context.Context, *model.Job, string, time.Duration) error {
	return nil
}
func (f *fakeQueue) Drop(context.Context, *model.Job, string) error { return nil }
func (f *fakeQueue) DeadLetter(context.Context, *model.Job, string, *uuid.UUID) error {
	return nil
}
func (f *fakeQueue) PendingCount(context.Context) (int64, error)            { return 0, nil }
func (f *fakeQueue) PurgeDone(context.Context, time.Time) (int64, error)    { return 0, nil }

var (
	testMetrics     *metrics.Metrics
	testMetricsOnce sync.Once
)

// promauto registers into the global registry; share one instance
// across the package's tests.
func sharedMetrics() *metrics.Metrics {
	testMetricsOnce.Do(func() { testMetrics = metrics.New("claim_test") })
	return testMetrics
}

type harness struct {
	svc      *Service
	ledger   *fakeLedger
	claims   *fakeClaims
	policies *fakePolicies
	chain    *fakeChain
	queue    *fakeQueue
}

func newHarness(t *testing.T, capacityDisplay int64) *harness {
	t.Helper()
	h := &harness{
		ledger:   &fakeLedger{},
		claims:   newFakeClaims(),
		policies: newFakePolicies(),
		chain:    &fakeChain{},
		queue:    &fakeQueue{},
	}
	if capacityDisplay > 0 {
		require.NoError(t, h.ledger.Initialize(context.Background(), capacityDisplay*1_000_000))
	}
	h.svc = NewService(h.claims, h.policies, h.ledger, fakeTx{}, h.chain, h.queue,
		sharedMetrics(), logger.NewLogger(nil))
	return h
}

func (h *harness) addPolicy(t *testing.T) *model.Policy {
	t.Helper()
	p := &model.Policy{
		ID:             uuid.New(),
		PolicyAddress:  "0xpolicy",
		Policyholder:   "0xholder",
		CoverageAmount: 100_000_000,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, h.policies.Create(context.Background(), p))
	return p
}

func TestSubmitClaimNormalPayout(t *testing.T) {
	h := newHarness(t, 1000)
	policy := h.addPolicy(t)

	claim, err := h.svc.SubmitClaim(context.Background(), policy.ID, policy.Policyholder, 100)
	require.NoError(t, err)
	require.NotNil(t, claim)

	assert.Equal(t, model.ClaimStatusApproved, claim.Status)
	assert.NotNil(t, claim.ProcessedAt)
	assert.Equal(t, int64(100_000_000), claim.Amount)

	pool, err := h.ledger.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(900_000_000), pool.AvailableBalance)
	assert.Equal(t, int64(100_000_000), pool.TotalProcessed)

	assert.True(t, h.policies.policies[policy.ID].PayoutTriggered)

	require.Len(t, h.claims.payouts, 1)
	assert.Equal(t, claim.ID, h.claims.payouts[0].ClaimID)
	assert.NotEmpty(t, h.claims.payouts[0].SettlementRef)

	require.Len(t, h.queue.jobs, 1)
	assert.Equal(t, model.JobTypeTrigger, h.queue.jobs[0].JobType)
}

func TestSubmitClaimDuplicate(t *testing.T) {
	h := newHarness(t, 1000)
	policy := h.addPolicy(t)

	first, err := h.svc.SubmitClaim(context.Background(), policy.ID, policy.Policyholder, 100)
	require.NoError(t, err)

	second, err := h.svc.SubmitClaim(context.Background(), policy.ID, policy.Policyholder, 100)
	assert.True(t, apperrors.Is(err, apperrors.ErrDuplicateClaim))
	// A legitimate retry gets the existing claim back.
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)

	pool, _ := h.ledger.Get(context.Background())
	assert.Equal(t, int64(900_000_000), pool.AvailableBalance, "ledger debited exactly once")
}

func TestSubmitClaimInsufficientFunds(t *testing.T) {
	h := newHarness(t, 50)
	policy := h.addPolicy(t)

	claim, err := h.svc.SubmitClaim(context.Background(), policy.ID, policy.Policyholder, 100)
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientFunds))
	assert.Nil(t, claim)

	pool, _ := h.ledger.Get(context.Background())
	assert.Equal(t, int64(50_000_000), pool.AvailableBalance, "ledger unchanged")
	assert.Empty(t, h.claims.claims, "no claim row created")
	assert.Empty(t, h.queue.jobs, "no trigger emitted")
}

func TestSubmitClaimLedgerUninitialized(t *testing.T) {
	h := newHarness(t, 0)
	policy := h.addPolicy(t)

	_, err := h.svc.SubmitClaim(context.Background(), policy.ID, policy.Policyholder, 100)
	assert.True(t, apperrors.Is(err, apperrors.ErrLedgerUninitialized))
}

func TestSubmitClaimUnknownPolicy(t *testing.T) {
	h := newHarness(t, 1000)

	_, err := h.svc.SubmitClaim(context.Background(), uuid.New(), "0xholder", 100)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestSubmitClaimRejectsBadAmounts(t *testing.T) {
	h := newHarness(t, 1000)
	policy := h.addPolicy(t)

	for _, amount := range []float64{0, -5} {
		_, err := h.svc.SubmitClaim(context.Background(), policy.ID, policy.Policyholder, amount)
		assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest), "amount %f", amount)
	}
}

func TestConcurrentDebitAtomicity(t *testing.T) {
	// Pool of 100, two concurrent claims of 60 against different
	// policies: exactly one succeeds.
	h := newHarness(t, 100)
	p1 := h.addPolicy(t)
	p2 := h.addPolicy(t)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, p := range []*model.Policy{p1, p2} {
		wg.Add(1)
		go func(i int, policyID uuid.UUID) {
			defer wg.Done()
			_, results[i] = h.svc.SubmitClaim(context.Background(), policyID, "0xholder", 60)
		}(i, p.ID)
	}
	wg.Wait()

	var successes, insufficient int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case apperrors.Is(err, apperrors.ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, insufficient)

	pool, _ := h.ledger.Get(context.Background())
	assert.Equal(t, int64(40_000_000), pool.AvailableBalance)
	assert.GreaterOrEqual(t, pool.AvailableBalance, int64(0))
}

func TestConcurrentSamePolicyAtMostOneClaim(t *testing.T) {
	h := newHarness(t, 1000)
	policy := h.addPolicy(t)

	const n = 8
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = h.svc.SubmitClaim(context.Background(), policy.ID, policy.Policyholder, 10)
		}(i)
	}
	wg.Wait()

	var approved int
	for _, c := range h.claims.claims {
		if c.Status == model.ClaimStatusApproved {
			approved++
		}
	}
	assert.Equal(t, 1, approved, "at most one approved claim per policy")

	var failures int
	for _, err := range results {
		if err != nil {
			assert.True(t, apperrors.Is(err, apperrors.ErrDuplicateClaim), "got %v", err)
			failures++
		}
	}
	assert.Equal(t, n-1, failures)
}

func TestReviewClaim(t *testing.T) {
	h := newHarness(t, 1000)
	policy := h.addPolicy(t)

	pending := &model.Claim{
		ID:          uuid.New(),
		PolicyID:    policy.ID,
		Amount:      5_000_000,
		Status:      model.ClaimStatusPending,
		TriggeredAt: time.Now(),
	}
	require.NoError(t, h.claims.CreateTx(context.Background(), nil, pending))

	before, _ := h.ledger.Get(context.Background())

	reviewed, err := h.svc.ReviewClaim(context.Background(), pending.ID, model.ClaimStatusRejected)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusRejected, reviewed.Status)
	assert.NotNil(t, reviewed.ProcessedAt)

	after, _ := h.ledger.Get(context.Background())
	assert.Equal(t, before.AvailableBalance, after.AvailableBalance, "review never touches the ledger")

	// Terminal: reviewing again finds no pending claim.
	_, err = h.svc.ReviewClaim(context.Background(), pending.ID, model.ClaimStatusApproved)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestReviewClaimInvalidStatus(t *testing.T) {
	h := newHarness(t, 1000)
	_, err := h.svc.ReviewClaim(context.Background(), uuid.New(), model.ClaimStatus("escalated"))
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestPoolStatus(t *testing.T) {
	h := newHarness(t, 1000)
	policy := h.addPolicy(t)

	_, err := h.svc.SubmitClaim(context.Background(), policy.ID, policy.Policyholder, 250)
	require.NoError(t, err)

	status, err := h.svc.PoolStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1000.0, status.TotalCapacity)
	assert.Equal(t, 750.0, status.AvailableBalance)
	assert.Equal(t, 250.0, status.TotalProcessed)
}

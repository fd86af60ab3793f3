package threshold

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/repository"
)

func TestClassify(t *testing.T) {
	const (
		warning  = 400 // 4m
		critical = 550 // 5.5m
	)

	tests := []struct {
		name  string
		level int64
		want  model.BreachLevel
	}{
		{name: "well below warning", level: 120, want: model.BreachNormal},
		{name: "just below warning", level: 399, want: model.BreachNormal},
		{name: "at warning", level: 400, want: model.BreachWarning},
		{name: "between warning and critical", level: 480, want: model.BreachWarning},
		{name: "just below critical", level: 549, want: model.BreachWarning},
		{name: "at critical", level: 550, want: model.BreachCritical},
		{name: "above critical", level: 900, want: model.BreachCritical},
		{name: "zero level", level: 0, want: model.BreachNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.level, warning, critical))
		})
	}
}

func TestClassifyEqualThresholds(t *testing.T) {
	// When warning == critical, meeting the level is critical.
	assert.Equal(t, model.BreachCritical, Classify(500, 500, 500))
	assert.Equal(t, model.BreachNormal, Classify(499, 500, 500))
}

type fakeThresholds struct {
	thresholds map[string]*model.Threshold
}

func (f *fakeThresholds) Get(_ context.Context, stationID string) (*model.Threshold, error) {
	if t, ok := f.thresholds[stationID]; ok {
		return t, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeThresholds) Upsert(_ context.Context, t *model.Threshold) error {
	f.thresholds[t.StationID] = t
	return nil
}

type fakeReadings struct {
	latest *model.Reading
}

func (f *fakeReadings) Create(context.Context, *model.Reading) error    { return nil }
func (f *fakeReadings) MarkPushed(context.Context, uuid.UUID) error     { return nil }
func (f *fakeReadings) List(context.Context, string, int) ([]*model.Reading, error) {
	return nil, nil
}

func (f *fakeReadings) Latest(context.Context, string) (*model.Reading, error) {
	if f.latest == nil {
		return nil, repository.ErrNotFound
	}
	return f.latest, nil
}

type fakeChain struct {
	payoutLevel int64
	err         error
}

func (f *fakeChain) UpdateLevel(context.Context, string, int64) error { return nil }
func (f *fakeChain) Pay(context.Context, string, int64) (string, error) {
	return "", nil
}

func (f *fakeChain) GetThreshold(context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.payoutLevel, nil
}

func newFixture(warning, critical int64) (*Service, *fakeThresholds, *fakeReadings, *fakeChain) {
	thresholds := &fakeThresholds{thresholds: map[string]*model.Threshold{
		"thames-01": {StationID: "thames-01", WarningLevel: warning, CriticalLevel: critical, Unit: "cm"},
	}}
	readings := &fakeReadings{}
	registry := &fakeChain{}
	return NewService(thresholds, readings, registry), thresholds, readings, registry
}

func TestClassifyLevelSeesAdminUpdateImmediately(t *testing.T) {
	svc, thresholds, _, _ := newFixture(400, 550)
	ctx := context.Background()

	// Warm the cache through the API read path.
	_, err := svc.Get(ctx, "thames-01")
	require.NoError(t, err)

	// An admin raises the bar out-of-process; only the repository row
	// changes.
	thresholds.thresholds["thames-01"] = &model.Threshold{
		StationID: "thames-01", WarningLevel: 600, CriticalLevel: 700, Unit: "cm",
	}

	class, err := svc.ClassifyLevel(ctx, "thames-01", 550)
	require.NoError(t, err)
	assert.Equal(t, model.BreachNormal, class, "evaluation must use the stored threshold, not the cached one")
}

func TestStatusForIncludesRegistryPayoutLevel(t *testing.T) {
	svc, _, readings, registry := newFixture(400, 550)
	readings.latest = &model.Reading{
		StationID: "thames-01", Level: 560, CapturedAt: time.Now(),
	}
	registry.payoutLevel = 540

	status, err := svc.StatusFor(context.Background(), "thames-01")
	require.NoError(t, err)
	assert.Equal(t, model.BreachCritical, status.Classification)
	require.NotNil(t, status.PayoutLevel)
	assert.Equal(t, int64(540), *status.PayoutLevel)
	assert.True(t, status.PayoutEligible)
}

func TestStatusForDegradesWhenRegistryDown(t *testing.T) {
	svc, _, readings, registry := newFixture(400, 550)
	readings.latest = &model.Reading{
		StationID: "thames-01", Level: 560, CapturedAt: time.Now(),
	}
	registry.err = fmt.Errorf("chain rpc returned 502")

	status, err := svc.StatusFor(context.Background(), "thames-01")
	require.NoError(t, err)
	assert.Nil(t, status.PayoutLevel)
	assert.False(t, status.PayoutEligible)
}

package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialpulse/followwatch/internal/models"
	"github.com/socialpulse/followwatch/internal/storage"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  *storage.MemoryStore
	repos  *storage.Repositories
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	store.Now = func() time.Time { return fixedNow }
	repos := store.Repositories()
	require.NoError(t, repos.Users.Create(context.Background(), &models.User{ID: "user-1", Email: "owner@example.com"}))
	return &fixture{
		store:  store,
		repos:  repos,
		engine: NewEngine(repos).WithClock(func() time.Time { return fixedNow }),
	}
}

func (f *fixture) profile(t *testing.T, handle string, enabled bool) *models.Profile {
	t.Helper()
	p := &models.Profile{UserID: "user-1", Handle: handle, Enabled: enabled}
	require.NoError(t, f.repos.Profiles.Create(context.Background(), p))
	return p
}

func (f *fixture) sample(t *testing.T, profileID string, count int64, ago time.Duration) {
	t.Helper()
	s := &models.Sample{ProfileID: profileID, Count: count, RecordedAt: fixedNow.Add(-ago)}
	require.NoError(t, f.repos.Samples.Create(context.Background(), s))
}

func TestPercentageChange(t *testing.T) {
	tests := []struct {
		name     string
		from, to int64
		want     float64
	}{
		{"growth", 100, 150, 50.0},
		{"decline", 200, 150, -25.0},
		{"unchanged", 80, 80, 0.0},
		{"from zero with growth", 0, 5, 100.0},
		{"from zero to zero", 0, 0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PercentageChange(tt.from, tt.to), 1e-9)
		})
	}
}

func TestComputeGrowth(t *testing.T) {
	t.Run("empty series", func(t *testing.T) {
		assert.Equal(t, GrowthMetrics{}, ComputeGrowth(nil))
	})

	t.Run("single sample", func(t *testing.T) {
		m := ComputeGrowth([]*models.Sample{{Count: 42, RecordedAt: fixedNow}})
		assert.Equal(t, 0.0, m.AverageDailyGrowth)
		assert.Equal(t, int64(42), m.PeakFollowers)
		assert.Equal(t, int64(42), m.TroughFollowers)
		assert.Equal(t, 1, m.DataPoints)
	})

	t.Run("span under a day divides by one", func(t *testing.T) {
		m := ComputeGrowth([]*models.Sample{
			{Count: 130, RecordedAt: fixedNow},
			{Count: 100, RecordedAt: fixedNow.Add(-6 * time.Hour)},
		})
		assert.Equal(t, 30.0, m.AverageDailyGrowth)
	})

	t.Run("peak prefers newest and trough prefers oldest", func(t *testing.T) {
		m := ComputeGrowth([]*models.Sample{
			{Count: 300, RecordedAt: fixedNow},
			{Count: 100, RecordedAt: fixedNow.Add(-24 * time.Hour)},
			{Count: 300, RecordedAt: fixedNow.Add(-48 * time.Hour)},
			{Count: 100, RecordedAt: fixedNow.Add(-72 * time.Hour)},
		})
		assert.Equal(t, fixedNow, m.PeakAt)
		assert.Equal(t, fixedNow.Add(-72*time.Hour), m.TroughAt)
	})
}

func TestGrowthAnalysis(t *testing.T) {
	f := newFixture(t)
	acme := f.profile(t, "acme", true)
	f.sample(t, acme.ID, 100, 48*time.Hour)
	f.sample(t, acme.ID, 100, 24*time.Hour)
	f.sample(t, acme.ID, 150, 0)

	analysis, err := f.engine.GrowthAnalysis(context.Background(), "user-1", "@Acme", 2)
	require.NoError(t, err)

	assert.Equal(t, "acme", analysis.Handle)
	assert.Equal(t, int64(150), analysis.CurrentFollowers)
	assert.Equal(t, int64(100), analysis.PeriodStartFollowers)
	assert.Equal(t, int64(50), analysis.TotalChange)
	assert.InDelta(t, 50.0, analysis.PercentageChange, 1e-9)
	assert.InDelta(t, 25.0, analysis.AverageDailyGrowth, 1e-9)
	assert.Equal(t, int64(150), analysis.PeakFollowers)
	assert.Equal(t, fixedNow, analysis.PeakAt)
	assert.Equal(t, int64(100), analysis.TroughFollowers)
	assert.Equal(t, fixedNow.Add(-48*time.Hour), analysis.TroughAt)
	assert.Equal(t, 3, analysis.DataPoints)
}

func TestGrowthAnalysisErrors(t *testing.T) {
	f := newFixture(t)
	f.profile(t, "acme", true)

	_, err := f.engine.GrowthAnalysis(context.Background(), "user-2", "acme", 7)
	assert.ErrorIs(t, err, models.ErrProfileNotFound)

	_, err = f.engine.GrowthAnalysis(context.Background(), "user-1", "acme", 0)
	assert.True(t, models.IsValidationError(err))

	_, err = f.engine.GrowthAnalysis(context.Background(), "user-1", "acme", 366)
	assert.True(t, models.IsValidationError(err))

	empty, err := f.engine.GrowthAnalysis(context.Background(), "user-1", "acme", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.CurrentFollowers)
	assert.Equal(t, 0, empty.DataPoints)
}

func TestComparePeriod(t *testing.T) {
	f := newFixture(t)
	p := f.profile(t, "acme", true)

	t.Run("no samples", func(t *testing.T) {
		c, err := f.engine.ComparePeriod(context.Background(), p.ID, 24)
		require.NoError(t, err)
		assert.False(t, c.HasCurrent)
		assert.False(t, c.HasPrevious)
	})

	f.sample(t, p.ID, 200, 2*time.Hour)

	t.Run("nothing old enough", func(t *testing.T) {
		c, err := f.engine.ComparePeriod(context.Background(), p.ID, 24)
		require.NoError(t, err)
		assert.True(t, c.HasCurrent)
		assert.False(t, c.HasPrevious)
		assert.Equal(t, int64(200), c.Previous)
		assert.Equal(t, 0.0, c.PercentageChange)
	})

	f.sample(t, p.ID, 150, 30*time.Hour)
	f.sample(t, p.ID, 100, 40*time.Hour)

	t.Run("newest sample at least hours old", func(t *testing.T) {
		c, err := f.engine.ComparePeriod(context.Background(), p.ID, 24)
		require.NoError(t, err)
		assert.True(t, c.HasPrevious)
		assert.Equal(t, int64(150), c.Previous)
		assert.Equal(t, int64(50), c.AbsoluteChange)
	})

	t.Run("hours out of range", func(t *testing.T) {
		_, err := f.engine.ComparePeriod(context.Background(), p.ID, 0)
		assert.True(t, models.IsValidationError(err))
		_, err = f.engine.ComparePeriod(context.Background(), p.ID, 8761)
		assert.True(t, models.IsValidationError(err))
	})
}

func seedPortfolio(t *testing.T, f *fixture) map[string]*models.Profile {
	t.Helper()
	profiles := map[string]*models.Profile{
		"alpha": f.profile(t, "alpha", true),
		"beta":  f.profile(t, "beta", true),
		"gamma": f.profile(t, "gamma", true),
		"delta": f.profile(t, "delta", false),
		"empty": f.profile(t, "empty", true),
		"zeta":  f.profile(t, "zeta", true),
	}
	f.sample(t, profiles["alpha"].ID, 100, 30*time.Hour)
	f.sample(t, profiles["alpha"].ID, 150, 0)
	f.sample(t, profiles["beta"].ID, 200, 25*time.Hour)
	f.sample(t, profiles["beta"].ID, 170, 0)
	f.sample(t, profiles["gamma"].ID, 80, 26*time.Hour)
	f.sample(t, profiles["delta"].ID, 10, 30*time.Hour)
	f.sample(t, profiles["delta"].ID, 900, 0)
	f.sample(t, profiles["zeta"].ID, 10, 30*time.Hour)
	f.sample(t, profiles["zeta"].ID, 20, 0)
	return profiles
}

func handles(changes []ProfileChange) []string {
	out := make([]string, 0, len(changes))
	for _, c := range changes {
		out = append(out, c.Handle)
	}
	return out
}

func TestTopChanges(t *testing.T) {
	f := newFixture(t)
	seedPortfolio(t, f)

	result, err := f.engine.TopChanges(context.Background(), "user-1", 24)
	require.NoError(t, err)

	assert.Equal(t, "24h", result.Period)
	assert.Equal(t, 6, result.TotalProfiles)
	assert.Equal(t, []string{"alpha", "zeta"}, handles(result.Increases))
	assert.Equal(t, []string{"beta"}, handles(result.Decreases))
	assert.Equal(t, []string{"gamma"}, handles(result.NoChanges))
	assert.Equal(t, ChangeIncrease, result.Increases[0].ChangeType)
	assert.InDelta(t, -15.0, result.Decreases[0].PercentageChange, 1e-9)
}

func TestTopChangesOrdersDecreasesByMagnitude(t *testing.T) {
	f := newFixture(t)
	small := f.profile(t, "small", true)
	large := f.profile(t, "large", true)
	f.sample(t, small.ID, 100, 30*time.Hour)
	f.sample(t, small.ID, 95, 0)
	f.sample(t, large.ID, 100, 30*time.Hour)
	f.sample(t, large.ID, 40, 0)

	result, err := f.engine.TopChanges(context.Background(), "user-1", 24)
	require.NoError(t, err)
	assert.Equal(t, []string{"large", "small"}, handles(result.Decreases))
}

func TestPeriodLabel(t *testing.T) {
	assert.Equal(t, "1h", PeriodLabel(1))
	assert.Equal(t, "167h", PeriodLabel(167))
	assert.Equal(t, "7d", PeriodLabel(168))
	assert.Equal(t, "30d", PeriodLabel(720))
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	seedPortfolio(t, f)

	dashboard, err := f.engine.Dashboard(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, 5, dashboard.TotalProfiles)
	assert.Equal(t, int64(420), dashboard.TotalFollowers)
	assert.Equal(t, int64(30), dashboard.TotalGrowth24h)
	assert.Equal(t, int64(0), dashboard.TotalGrowth7d)
	require.NotNil(t, dashboard.BestPerformer)
	assert.Equal(t, "alpha", dashboard.BestPerformer.Handle)
	require.NotNil(t, dashboard.WorstPerformer)
	assert.Equal(t, "beta", dashboard.WorstPerformer.Handle)
	assert.Equal(t, fixedNow, dashboard.LastUpdated)
}

func TestDashboardOmitsWorstWithoutDecline(t *testing.T) {
	f := newFixture(t)
	p := f.profile(t, "alpha", true)
	f.sample(t, p.ID, 100, 30*time.Hour)
	f.sample(t, p.ID, 120, 0)

	dashboard, err := f.engine.Dashboard(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, dashboard.BestPerformer)
	assert.Nil(t, dashboard.WorstPerformer)
}

func TestDashboardWithoutProfiles(t *testing.T) {
	f := newFixture(t)

	dashboard, err := f.engine.Dashboard(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, dashboard.TotalProfiles)
	assert.Equal(t, int64(0), dashboard.TotalFollowers)
	assert.Nil(t, dashboard.BestPerformer)
	assert.Nil(t, dashboard.WorstPerformer)
}

func TestInsights(t *testing.T) {
	f := newFixture(t)
	acme := f.profile(t, "acme", true)
	f.sample(t, acme.ID, 100, 48*time.Hour)
	f.sample(t, acme.ID, 100, 24*time.Hour)
	f.sample(t, acme.ID, 150, 0)

	insights, err := f.engine.Insights(context.Background(), "user-1", "acme", 2)
	require.NoError(t, err)

	assert.Equal(t, int64(150), insights.CurrentFollowers)
	assert.Equal(t, int64(50), insights.TotalChange)
	require.Len(t, insights.Data, 3)
	require.NotNil(t, insights.Data[0].DailyChange)
	assert.Equal(t, int64(50), *insights.Data[0].DailyChange)
	require.NotNil(t, insights.Data[1].DailyChange)
	assert.Equal(t, int64(0), *insights.Data[1].DailyChange)
	assert.Nil(t, insights.Data[2].DailyChange)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/socialpulse/followwatch/internal/analytics"
	"github.com/socialpulse/followwatch/internal/models"
	"github.com/socialpulse/followwatch/internal/storage"
)

// MockMonitor is a mock Monitor
type MockMonitor struct {
	mock.Mock
}

func (m *MockMonitor) RunCycle(ctx context.Context) *models.CycleReport {
	args := m.Called(ctx)
	return args.Get(0).(*models.CycleReport)
}

func (m *MockMonitor) CheckProfile(ctx context.Context, profileID string) (*models.ProfileOutcome, error) {
	args := m.Called(ctx, profileID)
	outcome, _ := args.Get(0).(*models.ProfileOutcome)
	return outcome, args.Error(1)
}

func (m *MockMonitor) ProfileStatus(ctx context.Context, profileID string) (*models.ProfileStatus, error) {
	args := m.Called(ctx, profileID)
	status, _ := args.Get(0).(*models.ProfileStatus)
	return status, args.Error(1)
}

func (m *MockMonitor) LastReport() *models.CycleReport {
	args := m.Called()
	report, _ := args.Get(0).(*models.CycleReport)
	return report
}

func newTestServer(t *testing.T, monitor Monitor) (*Server, *storage.Repositories) {
	t.Helper()
	repos := storage.NewMemoryStore().Repositories()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("followwatch_cycles_total 1\n"))
	})
	return New(monitor, analytics.NewEngine(repos), metrics), repos
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &MockMonitor{})

	rec := do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestHealth_FailingCheck(t *testing.T) {
	s, _ := newTestServer(t, &MockMonitor{})
	s.AddHealthCheck("database", func(ctx context.Context) error {
		return errors.New("connection refused")
	})

	rec := do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t, &MockMonitor{})

	rec := do(t, s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "followwatch_cycles_total")
}

func TestStatus(t *testing.T) {
	monitor := &MockMonitor{}
	monitor.On("LastReport").Return(nil).Once()
	monitor.On("LastReport").Return(&models.CycleReport{Checked: 3, Updated: 1}).Once()
	s, _ := newTestServer(t, monitor)

	rec := do(t, s, http.MethodGet, "/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No monitoring cycle has run yet")

	rec = do(t, s, http.MethodGet, "/status")
	var body struct {
		LastCycle models.CycleReport `json:"last_cycle"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.LastCycle.Checked)
	assert.Equal(t, 1, body.LastCycle.Updated)
}

func TestTrigger(t *testing.T) {
	monitor := &MockMonitor{}
	release := make(chan struct{})
	done := make(chan struct{})
	monitor.On("RunCycle", mock.Anything).Run(func(mock.Arguments) {
		<-release
		close(done)
	}).Return(&models.CycleReport{}).Once()
	s, _ := newTestServer(t, monitor)

	rec := do(t, s, http.MethodPost, "/trigger")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, s, http.MethodPost, "/trigger")
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not run")
	}
	assert.Eventually(t, func() bool { return !s.cycleRunning.Load() }, time.Second, 10*time.Millisecond)
	monitor.AssertExpectations(t)
}

func TestCheckProfile(t *testing.T) {
	previous := int64(950)
	monitor := &MockMonitor{}
	monitor.On("CheckProfile", mock.Anything, "p-1").Return(&models.ProfileOutcome{
		ProfileID: "p-1", Handle: "acme", Status: models.StatusUpdated, FollowerCount: 1050, PreviousCount: &previous,
	}, nil)
	monitor.On("CheckProfile", mock.Anything, "p-2").Return(&models.ProfileOutcome{
		ProfileID: "p-2", Handle: "down", Status: models.StatusError, Error: "source unavailable",
	}, errors.New("source unavailable"))
	monitor.On("CheckProfile", mock.Anything, "missing").Return(nil, models.ErrProfileNotFound)
	s, _ := newTestServer(t, monitor)

	rec := do(t, s, http.MethodPost, "/profiles/p-1/check")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"updated"`)

	rec = do(t, s, http.MethodPost, "/profiles/p-2/check")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"error"`)

	rec = do(t, s, http.MethodPost, "/profiles/missing/check")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/profiles/p-1/check")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestProfileStatus(t *testing.T) {
	monitor := &MockMonitor{}
	monitor.On("ProfileStatus", mock.Anything, "p-1").Return(&models.ProfileStatus{
		ProfileID: "p-1", Handle: "acme", Enabled: true, ActiveAlerts: 2, AlertThresholds: []int64{1000, 2000},
	}, nil)
	s, _ := newTestServer(t, monitor)

	rec := do(t, s, http.MethodGet, "/profiles/p-1/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"handle":"acme"`)
}

func TestAnalyticsRoutes(t *testing.T) {
	s, repos := newTestServer(t, &MockMonitor{})
	ctx := context.Background()

	require.NoError(t, repos.Users.Create(ctx, &models.User{ID: "u-1", Email: "owner@example.com"}))
	profile := &models.Profile{UserID: "u-1", Handle: "acme", Enabled: true}
	require.NoError(t, repos.Profiles.Create(ctx, profile))
	now := time.Now().UTC()
	require.NoError(t, repos.Samples.Create(ctx, &models.Sample{ProfileID: profile.ID, Count: 100, RecordedAt: now.Add(-30 * time.Hour)}))
	require.NoError(t, repos.Samples.Create(ctx, &models.Sample{ProfileID: profile.ID, Count: 150, RecordedAt: now.Add(-time.Minute)}))

	tests := []struct {
		name     string
		path     string
		status   int
		contains string
	}{
		{"dashboard", "/users/u-1/dashboard", http.StatusOK, `"total_followers":150`},
		{"top changes default period", "/users/u-1/top-changes", http.StatusOK, `"period":"24h"`},
		{"top changes weekly", "/users/u-1/top-changes?hours=168", http.StatusOK, `"period":"7d"`},
		{"top changes bad hours", "/users/u-1/top-changes?hours=abc", http.StatusBadRequest, "hours"},
		{"top changes out of range", "/users/u-1/top-changes?hours=9000", http.StatusBadRequest, "hours"},
		{"growth", "/users/u-1/profiles/acme/growth?days=7", http.StatusOK, `"total_change":50`},
		{"growth of other user", "/users/u-2/profiles/acme/growth", http.StatusNotFound, "profile not found"},
		{"growth bad days", "/users/u-1/profiles/acme/growth?days=0", http.StatusBadRequest, "days"},
		{"insights", "/users/u-1/profiles/acme/insights?days=7", http.StatusOK, `"daily_change":50`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, tt.path)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/socialpulse/followwatch/internal/config"
	"github.com/socialpulse/followwatch/internal/models"
)

// MockMonitor is a mock Monitor
type MockMonitor struct {
	mock.Mock
}

func (m *MockMonitor) RunCycle(ctx context.Context) *models.CycleReport {
	args := m.Called(ctx)
	return args.Get(0).(*models.CycleReport)
}

func (m *MockMonitor) PruneSamples(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func TestCycleSchedule(t *testing.T) {
	cfg := config.Defaults()
	cfg.MonitoringIntervalMinutes = 15

	s := NewService(cfg, &MockMonitor{})
	assert.Equal(t, "@every 15m", s.CycleSchedule())
}

func TestStartRegistersJobs(t *testing.T) {
	cfg := config.Defaults()
	s := NewService(cfg, &MockMonitor{})

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Len(t, s.cron.Entries(), 2)
}

func TestJobsCallMonitor(t *testing.T) {
	monitor := &MockMonitor{}
	monitor.On("RunCycle", mock.Anything).Return(&models.CycleReport{Error: "failed to load profiles"}).Once()
	monitor.On("PruneSamples", mock.Anything).Return(int64(0), errors.New("db down")).Once()

	s := NewService(config.Defaults(), monitor)
	s.runCycle()
	s.runPrune()

	monitor.AssertExpectations(t)
}

func TestStopCancelsJobContext(t *testing.T) {
	s := NewService(config.Defaults(), &MockMonitor{})
	require.NoError(t, s.Start())

	s.Stop()
	assert.ErrorIs(t, s.ctx.Err(), context.Canceled)
}

func TestSchedulesRunInUTC(t *testing.T) {
	s := NewService(config.Defaults(), &MockMonitor{})
	assert.Equal(t, time.UTC, s.cron.Location())
}

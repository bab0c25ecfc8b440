package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/socialpulse/followwatch/internal/config"
	"github.com/socialpulse/followwatch/internal/models"
)

// PruneSchedule runs the retention prune daily at 03:30 UTC
const PruneSchedule = "0 30 3 * * *"

// Monitor is the part of the monitoring service the scheduler drives
type Monitor interface {
	RunCycle(ctx context.Context) *models.CycleReport
	PruneSamples(ctx context.Context) (int64, error)
}

// Service handles scheduling of monitoring tasks
type Service struct {
	config  *config.Config
	monitor Monitor
	cron    *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, monitor Monitor) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		config:  cfg,
		monitor: monitor,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// CycleSchedule is the cron spec for the monitoring cycle
func (s *Service) CycleSchedule() string {
	return fmt.Sprintf("@every %dm", s.config.MonitoringIntervalMinutes)
}

// Start begins the scheduled monitoring
func (s *Service) Start() error {
	_, err := s.cron.AddFunc(s.CycleSchedule(), s.runCycle)
	if err != nil {
		return fmt.Errorf("failed to schedule monitoring cycle: %w", err)
	}

	_, err = s.cron.AddFunc(PruneSchedule, s.runPrune)
	if err != nil {
		return fmt.Errorf("failed to schedule sample pruning: %w", err)
	}

	s.cron.Start()
	logrus.Infof("Scheduler started: monitoring every %d minutes, pruning daily", s.config.MonitoringIntervalMinutes)
	return nil
}

func (s *Service) runCycle() {
	logrus.Info("Starting scheduled monitoring cycle")
	report := s.monitor.RunCycle(s.ctx)
	if report.Error != "" {
		logrus.Errorf("Scheduled monitoring cycle failed: %s", report.Error)
	}
}

func (s *Service) runPrune() {
	logrus.Info("Starting scheduled sample pruning")
	if _, err := s.monitor.PruneSamples(s.ctx); err != nil {
		logrus.Errorf("Scheduled sample pruning failed: %v", err)
	}
}

// Stop stops the scheduler, cancels running jobs and waits for them to return
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	logrus.Info("Scheduler stopped")
}

package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/socialpulse/followwatch/internal/config"
	"github.com/socialpulse/followwatch/internal/models"
	"github.com/socialpulse/followwatch/internal/notifications"
	"github.com/socialpulse/followwatch/internal/sources"
	"github.com/socialpulse/followwatch/internal/storage"
)

// Service runs monitoring cycles over all enabled profiles
type Service struct {
	config    *config.Config
	repos     *storage.Repositories
	source    sources.FollowerSource
	detector  *ChangeDetector
	alerts    *AlertEngine
	locker    Locker
	metrics   *Metrics
	archive   storage.BlobStore
	publisher notifications.ReportPublisher
	now       func() time.Time

	mu         sync.RWMutex
	lastReport *models.CycleReport
}

// Option customises a Service
type Option func(*Service)

// WithLocker replaces the in-process profile lock
func WithLocker(locker Locker) Option {
	return func(s *Service) { s.locker = locker }
}

// WithMetrics records cycle metrics
func WithMetrics(metrics *Metrics) Option {
	return func(s *Service) {
		s.metrics = metrics
		s.alerts.metrics = metrics
	}
}

// WithArchive stores every cycle report in the blob store
func WithArchive(store storage.BlobStore) Option {
	return func(s *Service) { s.archive = store }
}

// WithPublisher posts every cycle report to an operator channel
func WithPublisher(publisher notifications.ReportPublisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.alerts.now = now
	}
}

// NewService creates a new monitoring service
func NewService(cfg *config.Config, repos *storage.Repositories, source sources.FollowerSource, notifier notifications.Notifier, opts ...Option) *Service {
	s := &Service{
		config:   cfg,
		repos:    repos,
		source:   source,
		detector: NewChangeDetector(repos.Samples),
		alerts:   NewAlertEngine(repos, notifier, cfg.NotifyTimeout()),
		locker:   NewKeyedMutex(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunCycle checks every enabled profile once. A failing profile never
// aborts the cycle; its error is attached to its outcome.
func (s *Service) RunCycle(ctx context.Context) *models.CycleReport {
	start := s.now()
	report := &models.CycleReport{StartedAt: start.UTC()}
	logrus.Info("Starting monitoring cycle")

	profiles, err := s.repos.Profiles.ListEnabled(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to load enabled profiles")
		report.Error = fmt.Sprintf("failed to load profiles: %v", err)
		s.finish(ctx, report, start)
		return report
	}

	outcomes := make([]models.ProfileOutcome, len(profiles))
	var g errgroup.Group
	g.SetLimit(s.config.MonitoringWorkers)

	for i, profile := range profiles {
		if !profile.CanBeMonitored() {
			continue
		}
		i, profile := i, profile
		g.Go(func() error {
			outcome, err := s.checkProfile(ctx, profile)
			if err != nil {
				logrus.WithError(err).WithField("handle", profile.Handle).Error("Profile check failed")
			}
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	for _, outcome := range outcomes {
		if outcome.ProfileID == "" {
			continue
		}
		report.Profiles = append(report.Profiles, outcome)
		switch outcome.Status {
		case models.StatusError:
			report.Errored++
			continue
		case models.StatusUpdated:
			report.Updated++
		case models.StatusNotFound:
			report.NotFound++
		}
		report.Checked++
		report.AlertsTriggered += outcome.AlertsTriggered
	}
	sort.Slice(report.Profiles, func(i, j int) bool {
		return report.Profiles[i].Handle < report.Profiles[j].Handle
	})

	s.finish(ctx, report, start)

	logrus.WithFields(logrus.Fields{
		"checked":          report.Checked,
		"updated":          report.Updated,
		"errors":           report.Errored,
		"not_found":        report.NotFound,
		"alerts_triggered": report.AlertsTriggered,
		"duration":         report.Duration,
	}).Info("Monitoring cycle completed")
	return report
}

func (s *Service) finish(ctx context.Context, report *models.CycleReport, start time.Time) {
	finished := s.now()
	report.FinishedAt = finished.UTC()
	elapsed := finished.Sub(start)
	report.Duration = elapsed.Round(time.Millisecond).String()
	report.DurationSeconds = elapsed.Seconds()

	s.metrics.observeCycle(report)

	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()

	s.archiveReport(ctx, report)

	if s.publisher != nil {
		if err := s.publisher.PublishCycleReport(ctx, report); err != nil {
			logrus.WithError(err).Warn("Failed to publish cycle report")
		}
	}
}

func (s *Service) archiveReport(ctx context.Context, report *models.CycleReport) {
	if s.archive == nil {
		return
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logrus.WithError(err).Warn("Failed to encode cycle report")
		return
	}
	name := fmt.Sprintf("reports/%s.json", report.StartedAt.Format("2006/01/02/150405"))
	if err := s.archive.Store(ctx, name, data); err != nil {
		logrus.WithError(err).Warn("Failed to archive cycle report")
	}
}

// CheckProfile runs the monitoring pipeline for one profile now
func (s *Service) CheckProfile(ctx context.Context, profileID string) (*models.ProfileOutcome, error) {
	profile, err := s.repos.Profiles.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}

	outcome, err := s.checkProfile(ctx, profile)
	if err != nil {
		return &outcome, err
	}
	return &outcome, nil
}

// checkProfile always returns a filled outcome; err is set when the status is error
func (s *Service) checkProfile(ctx context.Context, profile *models.Profile) (models.ProfileOutcome, error) {
	outcome := models.ProfileOutcome{
		ProfileID: profile.ID,
		Handle:    profile.Handle,
		CheckedAt: s.now().UTC(),
	}
	logger := logrus.WithFields(logrus.Fields{
		"profile_id": profile.ID,
		"handle":     profile.Handle,
	})

	fail := func(err error) (models.ProfileOutcome, error) {
		outcome.Status = models.StatusError
		outcome.Error = err.Error()
		return outcome, err
	}

	unlock, err := s.locker.Lock(ctx, profile.ID)
	if err != nil {
		return fail(err)
	}
	defer unlock()

	count, err := s.source.FetchFollowerCount(ctx, profile.Handle)
	if errors.Is(err, sources.ErrNotFound) {
		logger.Warn("Handle not found at source")
		outcome.Status = models.StatusNotFound
		if err := s.touch(ctx, profile.ID); err != nil {
			return fail(err)
		}
		return outcome, nil
	}
	if err != nil {
		// Fetch failures leave last-checked unchanged
		return fail(fmt.Errorf("fetch follower count: %w", err))
	}
	outcome.FollowerCount = count

	stepErr := s.record(ctx, profile, count, &outcome)
	if err := s.touch(ctx, profile.ID); err != nil && stepErr == nil {
		stepErr = err
	}
	if stepErr != nil {
		return fail(stepErr)
	}

	logger.WithFields(logrus.Fields{
		"followers": count,
		"status":    outcome.Status,
	}).Debug("Profile checked")
	return outcome, nil
}

// record stores the sample and evaluates alerts against the fresh count
func (s *Service) record(ctx context.Context, profile *models.Profile, count int64, outcome *models.ProfileOutcome) error {
	result, err := s.detector.Detect(ctx, profile.ID, count)
	if err != nil {
		return err
	}

	outcome.Status = models.StatusUnchanged
	if result.Written {
		outcome.Status = models.StatusUpdated
	}
	if result.Previous != nil {
		previous := result.Previous.Count
		outcome.PreviousCount = &previous
	}

	triggered, err := s.alerts.Evaluate(ctx, profile.ID, count)
	outcome.AlertsTriggered = len(triggered)
	return err
}

func (s *Service) touch(ctx context.Context, profileID string) error {
	if err := s.repos.Profiles.UpdateLastChecked(ctx, profileID, s.now()); err != nil {
		return fmt.Errorf("update last checked: %w", err)
	}
	return nil
}

// ProfileStatus describes the monitoring state of one profile
func (s *Service) ProfileStatus(ctx context.Context, profileID string) (*models.ProfileStatus, error) {
	profile, err := s.repos.Profiles.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}

	status := &models.ProfileStatus{
		ProfileID:       profile.ID,
		Handle:          profile.Handle,
		Enabled:         profile.Enabled,
		LastCheckedAt:   profile.LastCheckedAt,
		AlertThresholds: []int64{},
	}

	latest, err := s.repos.Samples.GetLatest(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest sample: %w", err)
	}
	if latest != nil {
		count := latest.Count
		recorded := latest.RecordedAt
		status.CurrentCount = &count
		status.LastUpdatedAt = &recorded
	}

	active, err := s.repos.Alerts.GetActive(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active alerts: %w", err)
	}
	status.ActiveAlerts = len(active)
	for _, alert := range active {
		status.AlertThresholds = append(status.AlertThresholds, alert.Threshold)
	}

	return status, nil
}

// PruneSamples removes samples older than the retention window
func (s *Service) PruneSamples(ctx context.Context) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	removed, err := s.repos.Samples.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune samples: %w", err)
	}
	s.metrics.observePruned(removed)
	logrus.WithFields(logrus.Fields{
		"removed": removed,
		"cutoff":  cutoff.UTC().Format(time.RFC3339),
	}).Info("Pruned old follower samples")
	return removed, nil
}

// LastReport returns the most recent cycle report, or nil before the first cycle
func (s *Service) LastReport() *models.CycleReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

// Wait blocks until in-flight notifications finish
func (s *Service) Wait() {
	s.alerts.Wait()
}

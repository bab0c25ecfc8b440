// Package app wires configuration into the concrete services shared by the
// long-running bot and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/socialpulse/followwatch/internal/analytics"
	"github.com/socialpulse/followwatch/internal/config"
	"github.com/socialpulse/followwatch/internal/monitoring"
	"github.com/socialpulse/followwatch/internal/notifications"
	"github.com/socialpulse/followwatch/internal/sources"
	"github.com/socialpulse/followwatch/internal/storage"
	"github.com/socialpulse/followwatch/internal/tracking"
)

// profileLockTTL bounds how long a crashed replica blocks a profile; live holders refresh it
const profileLockTTL = 2 * time.Minute

// App holds every wired service
type App struct {
	Config    *config.Config
	Repos     *storage.Repositories
	Blobs     storage.BlobStore
	Sessions  *sources.SessionManager
	Source    *sources.InstagramClient
	Metrics   *monitoring.Metrics
	Monitor   *monitoring.Service
	Analytics *analytics.Engine
	Profiles  *tracking.ProfileService
	Alerts    *tracking.AlertService

	// HealthChecks probe external dependencies, keyed by name
	HealthChecks map[string]func(ctx context.Context) error

	closers []func()
}

// New builds the application from cfg. A missing source session is logged,
// not fatal: cycles fail fast until an operator logs in.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, HealthChecks: make(map[string]func(ctx context.Context) error)}

	if err := a.initStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Sessions = sources.NewSessionManager(a.Blobs, cfg.InstagramSessionPath, cfg.InstagramUsername, cfg.InstagramPassword)
	if err := a.Sessions.Load(ctx); err != nil {
		if !errors.Is(err, sources.ErrNoSession) {
			a.Close()
			return nil, err
		}
		logrus.Warn("No source session saved; run 'followwatch session login' before monitoring")
	}

	a.Source = sources.NewInstagramClient(sources.InstagramConfig{
		BaseURL:           cfg.InstagramAPIURL,
		FetchTimeout:      cfg.FetchTimeout(),
		RequestsPerMinute: cfg.SourceRequestsPerMinute,
	}, a.Sessions)

	locker, err := a.initLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Metrics = monitoring.NewMetrics()

	opts := []monitoring.Option{
		monitoring.WithLocker(locker),
		monitoring.WithMetrics(a.Metrics),
	}
	if cfg.ArchiveReports {
		opts = append(opts, monitoring.WithArchive(a.Blobs))
	}
	if cfg.TeamsWebhookURL != "" {
		opts = append(opts, monitoring.WithPublisher(notifications.NewTeamsPublisher(cfg.TeamsWebhookURL)))
	}

	a.Monitor = monitoring.NewService(cfg, a.Repos, a.Source, NewNotifier(cfg), opts...)
	a.Analytics = analytics.NewEngine(a.Repos)
	a.Profiles = tracking.NewProfileService(a.Repos)
	a.Alerts = tracking.NewAlertService(a.Repos, tracking.WithAlertLocker(locker))

	return a, nil
}

func (a *App) initStorage(ctx context.Context) error {
	cfg := a.Config

	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		a.Repos = pg.Repositories()
		a.HealthChecks["database"] = pg.HealthCheck
		logrus.Info("Using PostgreSQL storage")
	} else {
		a.Repos = storage.NewMemoryStore().Repositories()
		logrus.Warn("DATABASE_URL not set, using in-memory storage")
	}

	switch cfg.BlobBackend {
	case "azure":
		blobs, err := storage.NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			return fmt.Errorf("failed to initialize blob storage: %w", err)
		}
		a.Blobs = blobs
	default:
		blobs, err := storage.NewFileStorage(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to initialize blob storage: %w", err)
		}
		a.Blobs = blobs
	}
	return nil
}

func (a *App) initLocker(ctx context.Context) (monitoring.Locker, error) {
	if a.Config.RedisURL == "" {
		return monitoring.NewKeyedMutex(), nil
	}
	locker, err := monitoring.NewRedisLocker(ctx, a.Config.RedisURL, profileLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = locker.Close() })
	a.HealthChecks["redis"] = locker.Ping
	logrus.Info("Using Redis profile locks")
	return locker, nil
}

// NewNotifier routes to the configured channels, or returns nil when none is configured
func NewNotifier(cfg *config.Config) notifications.Notifier {
	var telegram, email notifications.Notifier
	if cfg.TelegramBotToken != "" {
		telegram = notifications.NewTelegramNotifier(cfg.TelegramBotToken)
	}
	if cfg.EmailEnabled() {
		email = notifications.NewEmailNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	}
	if telegram == nil && email == nil {
		logrus.Warn("No notification channel configured; milestones will only be recorded")
		return nil
	}
	return notifications.NewRouter(telegram, email)
}

// Close waits for in-flight notifications and releases connections
func (a *App) Close() {
	if a.Monitor != nil {
		a.Monitor.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

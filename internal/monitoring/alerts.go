package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/socialpulse/followwatch/internal/models"
	"github.com/socialpulse/followwatch/internal/notifications"
	"github.com/socialpulse/followwatch/internal/storage"
)

// AlertEngine triggers threshold alerts at most once and notifies owners
type AlertEngine struct {
	alerts        storage.AlertRepository
	profiles      storage.ProfileRepository
	users         storage.UserRepository
	notifier      notifications.Notifier
	notifyTimeout time.Duration
	metrics       *Metrics
	now           func() time.Time

	wg sync.WaitGroup
}

// NewAlertEngine creates an alert engine; notifier may be nil to disable delivery
func NewAlertEngine(repos *storage.Repositories, notifier notifications.Notifier, notifyTimeout time.Duration) *AlertEngine {
	if notifyTimeout <= 0 {
		notifyTimeout = 15 * time.Second
	}
	return &AlertEngine{
		alerts:        repos.Alerts,
		profiles:      repos.Profiles,
		users:         repos.Users,
		notifier:      notifier,
		notifyTimeout: notifyTimeout,
		now:           time.Now,
	}
}

// Evaluate triggers every armed alert of the profile that count reaches.
// Only alerts this call transitioned are returned and notified. Errors on
// individual alerts do not stop the others; the first one is returned.
func (e *AlertEngine) Evaluate(ctx context.Context, profileID string, count int64) ([]models.Alert, error) {
	active, err := e.alerts.GetActive(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active alerts: %w", err)
	}

	var triggered []models.Alert
	var firstErr error
	for _, alert := range active {
		if !alert.ShouldTrigger(count) {
			continue
		}

		at := e.now().UTC()
		ok, err := e.alerts.MarkTriggered(ctx, alert.ID, at)
		if err != nil {
			logrus.WithError(err).WithField("alert_id", alert.ID).Error("Failed to mark alert triggered")
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to trigger alert %s: %w", alert.ID, err)
			}
			continue
		}
		if !ok {
			// Another evaluation won the transition
			continue
		}

		alert.TriggeredAt = &at
		triggered = append(triggered, *alert)
	}

	if len(triggered) > 0 {
		e.metrics.observeTriggered(len(triggered))
		e.dispatch(ctx, profileID, count, triggered)
	}

	return triggered, firstErr
}

// dispatch sends notifications in the background. Triggers are already
// persisted, so a failed send is logged and counted only.
func (e *AlertEngine) dispatch(ctx context.Context, profileID string, count int64, triggered []models.Alert) {
	if e.notifier == nil {
		return
	}

	profile, err := e.profiles.GetByID(ctx, profileID)
	if err != nil {
		logrus.WithError(err).WithField("profile_id", profileID).Error("Cannot notify: profile lookup failed")
		return
	}
	user, err := e.users.GetByID(ctx, profile.UserID)
	if err != nil && !errors.Is(err, models.ErrUserNotFound) {
		logrus.WithError(err).WithField("user_id", profile.UserID).Error("Cannot notify: user lookup failed")
		return
	}
	if !user.CanReceiveNotifications() {
		logrus.WithField("handle", profile.Handle).Debug("Owner has no notification address, skipping")
		return
	}

	for _, alert := range triggered {
		e.wg.Add(1)
		go func(threshold int64) {
			defer e.wg.Done()

			notifyCtx, cancel := context.WithTimeout(context.Background(), e.notifyTimeout)
			defer cancel()

			sent := e.notifier.Notify(notifyCtx, user.NotificationAddress, profile.Handle, threshold, count)
			e.metrics.observeNotification(sent)
			if !sent {
				logrus.WithFields(logrus.Fields{
					"handle":    profile.Handle,
					"threshold": threshold,
				}).Warn("Milestone notification was not delivered")
			}
		}(alert.Threshold)
	}
}

// Wait blocks until in-flight notifications finish
func (e *AlertEngine) Wait() {
	e.wg.Wait()
}

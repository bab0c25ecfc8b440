package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/socialpulse/followwatch/internal/models"
	"github.com/socialpulse/followwatch/internal/monitoring"
	"github.com/socialpulse/followwatch/internal/storage"
)

// CreateAlertRequest arms a milestone alert
type CreateAlertRequest struct {
	Threshold int64 `json:"threshold" validate:"min=10,max=10000000"`
}

// UpdateAlertRequest changes an alert. Rearm clears a previous trigger.
type UpdateAlertRequest struct {
	Threshold *int64 `json:"threshold" validate:"omitempty,min=10,max=10000000"`
	Enabled   *bool  `json:"enabled"`
	Rearm     bool   `json:"rearm"`
}

// AlertService is validated CRUD over milestone alerts
type AlertService struct {
	profiles storage.ProfileRepository
	alerts   storage.AlertRepository
	locker   monitoring.Locker
	validate *validator.Validate
}

// AlertOption customises an AlertService
type AlertOption func(*AlertService)

// WithAlertLocker shares the armed-alert limit lock across replicas
func WithAlertLocker(locker monitoring.Locker) AlertOption {
	return func(s *AlertService) { s.locker = locker }
}

// NewAlertService creates a new alert service
func NewAlertService(repos *storage.Repositories, opts ...AlertOption) *AlertService {
	s := &AlertService{
		profiles: repos.Profiles,
		alerts:   repos.Alerts,
		locker:   monitoring.NewKeyedMutex(),
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lockAlerts serialises the limit check and write for one profile
func (s *AlertService) lockAlerts(ctx context.Context, profileID string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, "alerts:"+profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock alerts: %w", err)
	}
	return unlock, nil
}

func (s *AlertService) ownedProfile(ctx context.Context, userID, profileID string) (*models.Profile, error) {
	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if profile.UserID != userID {
		return nil, models.ErrProfileNotFound
	}
	return profile, nil
}

func (s *AlertService) ownedAlert(ctx context.Context, userID, alertID string) (*models.Alert, error) {
	alert, err := s.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedProfile(ctx, userID, alert.ProfileID); err != nil {
		if errors.Is(err, models.ErrProfileNotFound) {
			return nil, models.ErrAlertNotFound
		}
		return nil, err
	}
	return alert, nil
}

func (s *AlertService) checkArmedLimit(ctx context.Context, profileID string) error {
	active, err := s.alerts.GetActive(ctx, profileID)
	if err != nil {
		return fmt.Errorf("failed to load active alerts: %w", err)
	}
	if len(active) >= models.MaxActiveAlertsPerProfile {
		return models.NewValidationError("threshold",
			fmt.Sprintf("a profile can have at most %d active alerts", models.MaxActiveAlertsPerProfile))
	}
	return nil
}

// CreateAlert arms a new alert on one of the user's profiles
func (s *AlertService) CreateAlert(ctx context.Context, userID, profileID string, req CreateAlertRequest) (*models.Alert, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, toValidationError(err)
	}
	if _, err := s.ownedProfile(ctx, userID, profileID); err != nil {
		return nil, err
	}

	unlock, err := s.lockAlerts(ctx, profileID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.checkArmedLimit(ctx, profileID); err != nil {
		return nil, err
	}

	alert := &models.Alert{
		ProfileID: profileID,
		Threshold: req.Threshold,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"profile_id": profileID,
		"threshold":  alert.Threshold,
	}).Info("Alert created")
	return alert, nil
}

// ListAlerts returns every alert of one of the user's profiles
func (s *AlertService) ListAlerts(ctx context.Context, userID, profileID string) ([]*models.Alert, error) {
	if _, err := s.ownedProfile(ctx, userID, profileID); err != nil {
		return nil, err
	}
	return s.alerts.GetAll(ctx, profileID)
}

// UpdateAlert applies req. An alert that becomes armed counts against the
// active limit. The trigger state is only cleared by Rearm, so a trigger
// recorded by a concurrent cycle survives any other edit.
func (s *AlertService) UpdateAlert(ctx context.Context, userID, alertID string, req UpdateAlertRequest) (*models.Alert, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, toValidationError(err)
	}

	alert, err := s.ownedAlert(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockAlerts(ctx, alert.ProfileID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	wasArmed := alert.IsArmed()

	if req.Threshold != nil {
		alert.Threshold = *req.Threshold
	}
	if req.Enabled != nil {
		alert.Enabled = *req.Enabled
	}
	if req.Rearm {
		alert.TriggeredAt = nil
	}

	if alert.IsArmed() && !wasArmed {
		if err := s.checkArmedLimit(ctx, alert.ProfileID); err != nil {
			return nil, err
		}
	}

	if err := s.alerts.Update(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}
	if req.Rearm {
		if err := s.alerts.Rearm(ctx, alert.ID); err != nil {
			return nil, fmt.Errorf("failed to rearm alert: %w", err)
		}
		alert.TriggeredAt = nil
		logrus.WithField("alert_id", alert.ID).Info("Alert re-armed")
	}
	return alert, nil
}

// DeleteAlert removes one of the user's alerts
func (s *AlertService) DeleteAlert(ctx context.Context, userID, alertID string) error {
	if _, err := s.ownedAlert(ctx, userID, alertID); err != nil {
		return err
	}
	if err := s.alerts.Delete(ctx, alertID); err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	return nil
}

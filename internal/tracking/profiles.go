// Package tracking manages the profiles users monitor and their milestone alerts.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/socialpulse/followwatch/internal/models"
	"github.com/socialpulse/followwatch/internal/storage"
)

// CreateUserRequest registers an owner
type CreateUserRequest struct {
	Email               string `json:"email" validate:"required,email"`
	NotificationAddress string `json:"notification_address" validate:"omitempty,max=255"`
}

// CreateProfileRequest adds a handle to a user's watch list
type CreateProfileRequest struct {
	Handle      string `json:"handle" validate:"handle"`
	DisplayName string `json:"display_name" validate:"omitempty,max=100"`
}

// UpdateProfileRequest changes mutable profile fields; nil fields are kept
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=100"`
	Enabled     *bool   `json:"enabled"`
}

// ProfileService is validated CRUD over users and profiles
type ProfileService struct {
	users    storage.UserRepository
	profiles storage.ProfileRepository
	validate *validator.Validate
}

// NewProfileService creates a new profile service
func NewProfileService(repos *storage.Repositories) *ProfileService {
	return &ProfileService{
		users:    repos.Users,
		profiles: repos.Profiles,
		validate: newValidator(),
	}
}

// CreateUser registers a new owner
func (s *ProfileService) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, toValidationError(err)
	}

	user := &models.User{
		Email:               req.Email,
		NotificationAddress: req.NotificationAddress,
		CreatedAt:           time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// AddProfile starts monitoring a handle for the user
func (s *ProfileService) AddProfile(ctx context.Context, userID string, req CreateProfileRequest) (*models.Profile, error) {
	req.Handle = models.NormalizeHandle(req.Handle)
	if err := s.validate.Struct(req); err != nil {
		return nil, toValidationError(err)
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	profile := &models.Profile{
		UserID:      userID,
		Handle:      req.Handle,
		DisplayName: req.DisplayName,
		Enabled:     true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		if errors.Is(err, models.ErrProfileAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"handle":  profile.Handle,
	}).Info("Profile added")
	return profile, nil
}

// GetProfile returns the user's profile; profiles of other users are not found
func (s *ProfileService) GetProfile(ctx context.Context, userID, profileID string) (*models.Profile, error) {
	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if profile.UserID != userID {
		return nil, models.ErrProfileNotFound
	}
	return profile, nil
}

// ListProfiles returns all profiles of the user
func (s *ProfileService) ListProfiles(ctx context.Context, userID string) ([]*models.Profile, error) {
	return s.profiles.GetByOwner(ctx, userID)
}

// UpdateProfile applies the non-nil fields of req
func (s *ProfileService) UpdateProfile(ctx context.Context, userID, profileID string, req UpdateProfileRequest) (*models.Profile, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, toValidationError(err)
	}

	profile, err := s.GetProfile(ctx, userID, profileID)
	if err != nil {
		return nil, err
	}
	if req.DisplayName != nil {
		profile.DisplayName = *req.DisplayName
	}
	if req.Enabled != nil {
		profile.Enabled = *req.Enabled
	}

	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return profile, nil
}

// DeleteProfile removes the profile with its samples and alerts
func (s *ProfileService) DeleteProfile(ctx context.Context, userID, profileID string) error {
	if _, err := s.GetProfile(ctx, userID, profileID); err != nil {
		return err
	}
	if err := s.profiles.Delete(ctx, profileID); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	logrus.WithField("profile_id", profileID).Info("Profile deleted")
	return nil
}

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/socialpulse/followwatch/internal/models"
)

// ErrBlobNotFound is returned by BlobStore.Retrieve for a missing blob
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore defines the contract for opaque blob persistence
// (session state, archived cycle reports)
type BlobStore interface {
	Store(ctx context.Context, name string, data []byte) error
	Retrieve(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// UserRepository persists users
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// ProfileRepository persists monitored profiles.
// Delete cascades to the profile's samples and alerts.
type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	GetByOwner(ctx context.Context, userID string) ([]*models.Profile, error)
	GetByHandle(ctx context.Context, userID, handle string) (*models.Profile, error)
	ListEnabled(ctx context.Context) ([]*models.Profile, error)
	Update(ctx context.Context, profile *models.Profile) error
	Delete(ctx context.Context, id string) error
	UpdateLastChecked(ctx context.Context, id string, at time.Time) error
}

// SampleRepository is the append-only follower count time series.
// GetLatest returns nil, nil when the profile has no samples.
// GetHistory returns samples newer than now-days, newest first.
type SampleRepository interface {
	Create(ctx context.Context, sample *models.Sample) error
	GetLatest(ctx context.Context, profileID string) (*models.Sample, error)
	GetHistory(ctx context.Context, profileID string, days int) ([]*models.Sample, error)
	PruneBefore(ctx context.Context, before time.Time) (int64, error)
}

// AlertRepository persists threshold alerts.
// Update writes Threshold and Enabled only; TriggeredAt changes solely through
// MarkTriggered and Rearm. MarkTriggered sets TriggeredAt only if it is unset
// and reports whether this call performed the transition.
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	GetActive(ctx context.Context, profileID string) ([]*models.Alert, error)
	GetAll(ctx context.Context, profileID string) ([]*models.Alert, error)
	Update(ctx context.Context, alert *models.Alert) error
	Delete(ctx context.Context, id string) error
	Rearm(ctx context.Context, id string) error
	MarkTriggered(ctx context.Context, id string, at time.Time) (bool, error)
}

// Repositories bundles the repository set used by the services
type Repositories struct {
	Users    UserRepository
	Profiles ProfileRepository
	Samples  SampleRepository
	Alerts   AlertRepository
}

package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/socialpulse/followwatch/internal/models"
)

// MemoryStore is an in-process implementation of every repository.
// It backs tests and single-node deployments without DATABASE_URL.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]models.User
	profiles map[string]models.Profile
	samples  map[string][]models.Sample // by profile ID, append order
	alerts   map[string]models.Alert

	// Now is used for history windows; defaults to time.Now
	Now func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]models.User),
		profiles: make(map[string]models.Profile),
		samples:  make(map[string][]models.Sample),
		alerts:   make(map[string]models.Alert),
		Now:      time.Now,
	}
}

// Repositories returns the repository set backed by this store
func (m *MemoryStore) Repositories() *Repositories {
	return &Repositories{
		Users:    &memoryUsers{m},
		Profiles: &memoryProfiles{m},
		Samples:  &memorySamples{m},
		Alerts:   &memoryAlerts{m},
	}
}

type memoryUsers struct{ m *MemoryStore }

type memoryProfiles struct{ m *MemoryStore }

type memorySamples struct{ m *MemoryStore }

type memoryAlerts struct{ m *MemoryStore }

var (
	_ UserRepository    = (*memoryUsers)(nil)
	_ ProfileRepository = (*memoryProfiles)(nil)
	_ SampleRepository  = (*memorySamples)(nil)
	_ AlertRepository   = (*memoryAlerts)(nil)
)

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func ensureTime(t *time.Time) {
	if t.IsZero() {
		*t = time.Now().UTC()
	}
}

// Users

func (r *memoryUsers) Create(_ context.Context, user *models.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	ensureID(&user.ID)
	ensureTime(&user.CreatedAt)
	r.m.users[user.ID] = *user
	return nil
}

func (r *memoryUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return &u, nil
}

// Profiles

func (r *memoryProfiles) Create(_ context.Context, profile *models.Profile) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, p := range r.m.profiles {
		if p.UserID == profile.UserID && p.Handle == profile.Handle {
			return models.ErrProfileAlreadyExists
		}
	}
	ensureID(&profile.ID)
	ensureTime(&profile.CreatedAt)
	r.m.profiles[profile.ID] = *profile
	return nil
}

func (r *memoryProfiles) GetByID(_ context.Context, id string) (*models.Profile, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	p, ok := r.m.profiles[id]
	if !ok {
		return nil, models.ErrProfileNotFound
	}
	return &p, nil
}

func (r *memoryProfiles) GetByOwner(_ context.Context, userID string) ([]*models.Profile, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return r.collect(func(p models.Profile) bool { return p.UserID == userID }), nil
}

func (r *memoryProfiles) GetByHandle(_ context.Context, userID, handle string) (*models.Profile, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, p := range r.m.profiles {
		if p.UserID == userID && p.Handle == handle {
			p := p
			return &p, nil
		}
	}
	return nil, models.ErrProfileNotFound
}

func (r *memoryProfiles) ListEnabled(_ context.Context) ([]*models.Profile, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return r.collect(func(p models.Profile) bool { return p.Enabled }), nil
}

// collect must be called with the lock held
func (r *memoryProfiles) collect(keep func(models.Profile) bool) []*models.Profile {
	var out []*models.Profile
	for _, p := range r.m.profiles {
		if keep(p) {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

func (r *memoryProfiles) Update(_ context.Context, profile *models.Profile) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.profiles[profile.ID]; !ok {
		return models.ErrProfileNotFound
	}
	r.m.profiles[profile.ID] = *profile
	return nil
}

func (r *memoryProfiles) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.profiles[id]; !ok {
		return models.ErrProfileNotFound
	}
	delete(r.m.profiles, id)
	delete(r.m.samples, id)
	for alertID, a := range r.m.alerts {
		if a.ProfileID == id {
			delete(r.m.alerts, alertID)
		}
	}
	return nil
}

func (r *memoryProfiles) UpdateLastChecked(_ context.Context, id string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.profiles[id]
	if !ok {
		return models.ErrProfileNotFound
	}
	at = at.UTC()
	p.LastCheckedAt = &at
	r.m.profiles[id] = p
	return nil
}

// Samples

func (r *memorySamples) Create(_ context.Context, sample *models.Sample) error {
	if sample.Count < 0 {
		return models.NewValidationError("count", "follower count cannot be negative")
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	ensureID(&sample.ID)
	ensureTime(&sample.RecordedAt)
	r.m.samples[sample.ProfileID] = append(r.m.samples[sample.ProfileID], *sample)
	return nil
}

func (r *memorySamples) GetLatest(_ context.Context, profileID string) (*models.Sample, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var latest *models.Sample
	for i := range r.m.samples[profileID] {
		s := r.m.samples[profileID][i]
		if latest == nil || !s.RecordedAt.Before(latest.RecordedAt) {
			latest = &s
		}
	}
	return latest, nil
}

func (r *memorySamples) GetHistory(_ context.Context, profileID string, days int) ([]*models.Sample, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	since := r.m.Now().Add(-time.Duration(days) * 24 * time.Hour)

	var out []*models.Sample
	for _, s := range r.m.samples[profileID] {
		if s.RecordedAt.Before(since) {
			continue
		}
		s := s
		out = append(out, &s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	return out, nil
}

func (r *memorySamples) PruneBefore(_ context.Context, before time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var removed int64
	for profileID, list := range r.m.samples {
		kept := list[:0]
		for _, s := range list {
			if s.RecordedAt.Before(before) {
				removed++
				continue
			}
			kept = append(kept, s)
		}
		r.m.samples[profileID] = kept
	}
	return removed, nil
}

// Alerts

func (r *memoryAlerts) Create(_ context.Context, alert *models.Alert) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.profiles[alert.ProfileID]; !ok {
		return models.ErrProfileNotFound
	}
	ensureID(&alert.ID)
	ensureTime(&alert.CreatedAt)
	r.m.alerts[alert.ID] = *alert
	return nil
}

func (r *memoryAlerts) GetByID(_ context.Context, id string) (*models.Alert, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	a, ok := r.m.alerts[id]
	if !ok {
		return nil, models.ErrAlertNotFound
	}
	return &a, nil
}

func (r *memoryAlerts) GetActive(_ context.Context, profileID string) ([]*models.Alert, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return r.collect(func(a models.Alert) bool { return a.ProfileID == profileID && a.IsArmed() }), nil
}

func (r *memoryAlerts) GetAll(_ context.Context, profileID string) ([]*models.Alert, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return r.collect(func(a models.Alert) bool { return a.ProfileID == profileID }), nil
}

// collect must be called with the lock held
func (r *memoryAlerts) collect(keep func(models.Alert) bool) []*models.Alert {
	var out []*models.Alert
	for _, a := range r.m.alerts {
		if keep(a) {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Threshold < out[j].Threshold })
	return out
}

func (r *memoryAlerts) Update(_ context.Context, alert *models.Alert) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stored, ok := r.m.alerts[alert.ID]
	if !ok {
		return models.ErrAlertNotFound
	}
	stored.Threshold = alert.Threshold
	stored.Enabled = alert.Enabled
	r.m.alerts[alert.ID] = stored
	alert.TriggeredAt = stored.TriggeredAt
	return nil
}

func (r *memoryAlerts) Rearm(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.alerts[id]
	if !ok {
		return models.ErrAlertNotFound
	}
	a.TriggeredAt = nil
	r.m.alerts[id] = a
	return nil
}

func (r *memoryAlerts) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.alerts[id]; !ok {
		return models.ErrAlertNotFound
	}
	delete(r.m.alerts, id)
	return nil
}

func (r *memoryAlerts) MarkTriggered(_ context.Context, id string, at time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.alerts[id]
	if !ok {
		return false, models.ErrAlertNotFound
	}
	if a.TriggeredAt != nil {
		return false, nil
	}
	at = at.UTC()
	a.TriggeredAt = &at
	r.m.alerts[id] = a
	return true, nil
}

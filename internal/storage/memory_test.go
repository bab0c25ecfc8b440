package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialpulse/followwatch/internal/models"
)

func seedProfile(t *testing.T, repos *Repositories, handle string) *models.Profile {
	t.Helper()
	ctx := context.Background()
	user := &models.User{Email: "owner@example.com"}
	require.NoError(t, repos.Users.Create(ctx, user))
	profile := &models.Profile{UserID: user.ID, Handle: handle, Enabled: true}
	require.NoError(t, repos.Profiles.Create(ctx, profile))
	return profile
}

func TestMemoryProfiles_DuplicateHandle(t *testing.T) {
	repos := NewMemoryStore().Repositories()
	ctx := context.Background()
	profile := seedProfile(t, repos, "acme")

	err := repos.Profiles.Create(ctx, &models.Profile{UserID: profile.UserID, Handle: "acme"})
	assert.ErrorIs(t, err, models.ErrProfileAlreadyExists)

	// Same handle for another owner is fine
	err = repos.Profiles.Create(ctx, &models.Profile{UserID: "someone-else", Handle: "acme"})
	assert.NoError(t, err)
}

func TestMemorySamples_LatestAndHistory(t *testing.T) {
	store := NewMemoryStore()
	repos := store.Repositories()
	ctx := context.Background()
	profile := seedProfile(t, repos, "acme")

	latest, err := repos.Samples.GetLatest(ctx, profile.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	now := time.Now().UTC()
	for i, count := range []int64{100, 150, 120} {
		require.NoError(t, repos.Samples.Create(ctx, &models.Sample{
			ProfileID:  profile.ID,
			Count:      count,
			RecordedAt: now.Add(time.Duration(i-2) * 24 * time.Hour),
		}))
	}
	require.NoError(t, repos.Samples.Create(ctx, &models.Sample{
		ProfileID:  profile.ID,
		Count:      10,
		RecordedAt: now.Add(-40 * 24 * time.Hour),
	}))

	latest, err = repos.Samples.GetLatest(ctx, profile.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(120), latest.Count)

	history, err := repos.Samples.GetHistory(ctx, profile.ID, 30)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, int64(120), history[0].Count)
	assert.Equal(t, int64(150), history[1].Count)
	assert.Equal(t, int64(100), history[2].Count)

	removed, err := repos.Samples.PruneBefore(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestMemorySamples_RejectsNegativeCount(t *testing.T) {
	repos := NewMemoryStore().Repositories()
	err := repos.Samples.Create(context.Background(), &models.Sample{ProfileID: "p", Count: -5})
	assert.True(t, models.IsValidationError(err))
}

func TestMemoryAlerts_MarkTriggeredOnce(t *testing.T) {
	repos := NewMemoryStore().Repositories()
	ctx := context.Background()
	profile := seedProfile(t, repos, "acme")

	alert := &models.Alert{ProfileID: profile.ID, Threshold: 1000, Enabled: true}
	require.NoError(t, repos.Alerts.Create(ctx, alert))

	var transitions int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repos.Alerts.MarkTriggered(ctx, alert.ID, time.Now())
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&transitions, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), transitions)

	active, err := repos.Alerts.GetActive(ctx, profile.ID)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = repos.Alerts.MarkTriggered(ctx, "missing", time.Now())
	assert.ErrorIs(t, err, models.ErrAlertNotFound)
}

func TestMemoryAlerts_UpdateKeepsTriggerUntilRearm(t *testing.T) {
	repos := NewMemoryStore().Repositories()
	ctx := context.Background()
	profile := seedProfile(t, repos, "acme")

	alert := &models.Alert{ProfileID: profile.ID, Threshold: 1000, Enabled: true}
	require.NoError(t, repos.Alerts.Create(ctx, alert))
	stale := *alert

	ok, err := repos.Alerts.MarkTriggered(ctx, alert.ID, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	stale.Threshold = 2000
	require.NoError(t, repos.Alerts.Update(ctx, &stale))
	assert.NotNil(t, stale.TriggeredAt)

	stored, err := repos.Alerts.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), stored.Threshold)
	assert.NotNil(t, stored.TriggeredAt)

	require.NoError(t, repos.Alerts.Rearm(ctx, alert.ID))
	stored, err = repos.Alerts.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsArmed())

	assert.ErrorIs(t, repos.Alerts.Rearm(ctx, "missing"), models.ErrAlertNotFound)
}

func TestMemoryProfiles_DeleteCascades(t *testing.T) {
	repos := NewMemoryStore().Repositories()
	ctx := context.Background()
	profile := seedProfile(t, repos, "acme")

	require.NoError(t, repos.Samples.Create(ctx, &models.Sample{ProfileID: profile.ID, Count: 5}))
	alert := &models.Alert{ProfileID: profile.ID, Threshold: 50, Enabled: true}
	require.NoError(t, repos.Alerts.Create(ctx, alert))

	require.NoError(t, repos.Profiles.Delete(ctx, profile.ID))

	_, err := repos.Alerts.GetByID(ctx, alert.ID)
	assert.ErrorIs(t, err, models.ErrAlertNotFound)

	latest, err := repos.Samples.GetLatest(ctx, profile.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	assert.ErrorIs(t, repos.Profiles.Delete(ctx, profile.ID), models.ErrProfileNotFound)
}

func TestMemoryProfiles_ListEnabledAndLastChecked(t *testing.T) {
	repos := NewMemoryStore().Repositories()
	ctx := context.Background()
	enabled := seedProfile(t, repos, "beta")
	disabled := &models.Profile{UserID: enabled.UserID, Handle: "alpha", Enabled: false}
	require.NoError(t, repos.Profiles.Create(ctx, disabled))

	list, err := repos.Profiles.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "beta", list[0].Handle)

	at := time.Now()
	require.NoError(t, repos.Profiles.UpdateLastChecked(ctx, enabled.ID, at))
	got, err := repos.Profiles.GetByID(ctx, enabled.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastCheckedAt)
	assert.WithinDuration(t, at, *got.LastCheckedAt, time.Millisecond)

	owned, err := repos.Profiles.GetByOwner(ctx, enabled.UserID)
	require.NoError(t, err)
	assert.Len(t, owned, 2)
}

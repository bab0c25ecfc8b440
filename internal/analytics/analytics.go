// Package analytics derives growth figures from the follower time series.
// All sample lists are ordered newest first.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/socialpulse/followwatch/internal/models"
	"github.com/socialpulse/followwatch/internal/storage"
)

const (
	MinLookbackDays = 1
	MaxLookbackDays = 365
	MinPeriodHours  = 1
	MaxPeriodHours  = 8760
)

// Change classifications
const (
	ChangeIncrease = "increase"
	ChangeDecrease = "decrease"
	ChangeNone     = "no_change"
)

// Comparison is the current count against the count at least Hours ago
type Comparison struct {
	ProfileID        string  `json:"profile_id"`
	Hours            int     `json:"hours"`
	HasCurrent       bool    `json:"has_current"`
	HasPrevious      bool    `json:"has_previous"`
	Current          int64   `json:"current"`
	Previous         int64   `json:"previous"`
	AbsoluteChange   int64   `json:"absolute_change"`
	PercentageChange float64 `json:"percentage_change"`
}

// GrowthMetrics summarises a sample series
type GrowthMetrics struct {
	AverageDailyGrowth float64   `json:"average_daily_growth"`
	PeakFollowers      int64     `json:"peak_followers"`
	PeakAt             time.Time `json:"peak_at"`
	TroughFollowers    int64     `json:"trough_followers"`
	TroughAt           time.Time `json:"trough_at"`
	DataPoints         int       `json:"data_points"`
}

// GrowthAnalysis is the growth of one profile over a lookback window
type GrowthAnalysis struct {
	Handle               string  `json:"handle"`
	Days                 int     `json:"days"`
	CurrentFollowers     int64   `json:"current_followers"`
	PeriodStartFollowers int64   `json:"period_start_followers"`
	TotalChange          int64   `json:"total_change"`
	PercentageChange     float64 `json:"percentage_change"`
	GrowthMetrics
}

// ProfileChange is one profile's movement over a period
type ProfileChange struct {
	ProfileID         string  `json:"profile_id"`
	Handle            string  `json:"handle"`
	CurrentFollowers  int64   `json:"current_followers"`
	PreviousFollowers int64   `json:"previous_followers"`
	AbsoluteChange    int64   `json:"absolute_change"`
	PercentageChange  float64 `json:"percentage_change"`
	ChangeType        string  `json:"change_type"`
}

// TopChanges ranks a user's profiles by movement over a period
type TopChanges struct {
	Period        string          `json:"period"`
	TotalProfiles int             `json:"total_profiles"`
	Increases     []ProfileChange `json:"increases"`
	Decreases     []ProfileChange `json:"decreases"`
	NoChanges     []ProfileChange `json:"no_changes"`
}

// Dashboard aggregates a user's enabled profiles
type Dashboard struct {
	TotalProfiles  int            `json:"total_profiles"`
	TotalFollowers int64          `json:"total_followers"`
	TotalGrowth24h int64          `json:"total_growth_24h"`
	TotalGrowth7d  int64          `json:"total_growth_7d"`
	BestPerformer  *ProfileChange `json:"best_performer"`
	WorstPerformer *ProfileChange `json:"worst_performer"`
	LastUpdated    time.Time      `json:"last_updated"`
}

// InsightPoint is one sample with its change against the next older sample
type InsightPoint struct {
	RecordedAt  time.Time `json:"recorded_at"`
	Followers   int64     `json:"followers"`
	DailyChange *int64    `json:"daily_change"`
}

// Insights is the per-sample history of one profile
type Insights struct {
	Handle           string         `json:"handle"`
	PeriodDays       int            `json:"period_days"`
	CurrentFollowers int64          `json:"current_followers"`
	TotalChange      int64          `json:"total_change"`
	Data             []InsightPoint `json:"data"`
}

// Engine answers analytics queries from the sample store
type Engine struct {
	profiles storage.ProfileRepository
	samples  storage.SampleRepository
	now      func() time.Time
}

// NewEngine creates an analytics engine
func NewEngine(repos *storage.Repositories) *Engine {
	return &Engine{
		profiles: repos.Profiles,
		samples:  repos.Samples,
		now:      time.Now,
	}
}

// WithClock overrides the time source
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// PercentageChange is ((new-old)/old)*100; from zero it is 100 for growth and 0 otherwise
func PercentageChange(oldValue, newValue int64) float64 {
	if oldValue == 0 {
		if newValue > 0 {
			return 100.0
		}
		return 0.0
	}
	return float64(newValue-oldValue) / float64(oldValue) * 100.0
}

// ComputeGrowth derives peak, trough and average daily growth.
// Peak is the first maximum in newest-first order; trough is the oldest minimum.
func ComputeGrowth(samples []*models.Sample) GrowthMetrics {
	if len(samples) == 0 {
		return GrowthMetrics{}
	}

	peak, trough := samples[0], samples[0]
	for _, s := range samples[1:] {
		if s.Count > peak.Count {
			peak = s
		}
		if s.Count <= trough.Count {
			trough = s
		}
	}

	metrics := GrowthMetrics{
		PeakFollowers:   peak.Count,
		PeakAt:          peak.RecordedAt,
		TroughFollowers: trough.Count,
		TroughAt:        trough.RecordedAt,
		DataPoints:      len(samples),
	}

	if len(samples) > 1 {
		newest, oldest := samples[0], samples[len(samples)-1]
		days := int(newest.RecordedAt.Sub(oldest.RecordedAt).Hours() / 24)
		metrics.AverageDailyGrowth = float64(newest.Count-oldest.Count) / float64(max(days, 1))
	}
	return metrics
}

func validateDays(days int) error {
	if days < MinLookbackDays || days > MaxLookbackDays {
		return models.NewValidationError("days", fmt.Sprintf("must be between %d and %d", MinLookbackDays, MaxLookbackDays))
	}
	return nil
}

func validateHours(hours int) error {
	if hours < MinPeriodHours || hours > MaxPeriodHours {
		return models.NewValidationError("hours", fmt.Sprintf("must be between %d and %d", MinPeriodHours, MaxPeriodHours))
	}
	return nil
}

// ComparePeriod compares the latest sample with the newest sample at least hours old
func (e *Engine) ComparePeriod(ctx context.Context, profileID string, hours int) (*Comparison, error) {
	if err := validateHours(hours); err != nil {
		return nil, err
	}

	comparison := &Comparison{ProfileID: profileID, Hours: hours}

	latest, err := e.samples.GetLatest(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest sample: %w", err)
	}
	if latest == nil {
		return comparison, nil
	}
	comparison.HasCurrent = true
	comparison.Current = latest.Count
	comparison.Previous = latest.Count

	lookbackDays := max(1, hours/24+1)
	history, err := e.samples.GetHistory(ctx, profileID, lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	target := e.now().Add(-time.Duration(hours) * time.Hour)
	for _, s := range history {
		if !s.RecordedAt.After(target) {
			comparison.HasPrevious = true
			comparison.Previous = s.Count
			break
		}
	}

	comparison.AbsoluteChange = comparison.Current - comparison.Previous
	comparison.PercentageChange = PercentageChange(comparison.Previous, comparison.Current)
	return comparison, nil
}

func (e *Engine) ownedProfile(ctx context.Context, userID, handle string) (*models.Profile, error) {
	profile, err := e.profiles.GetByHandle(ctx, userID, models.NormalizeHandle(handle))
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// GrowthAnalysis reports growth of one of the user's profiles over days
func (e *Engine) GrowthAnalysis(ctx context.Context, userID, handle string, days int) (*GrowthAnalysis, error) {
	if err := validateDays(days); err != nil {
		return nil, err
	}
	profile, err := e.ownedProfile(ctx, userID, handle)
	if err != nil {
		return nil, err
	}

	history, err := e.samples.GetHistory(ctx, profile.ID, days)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	analysis := &GrowthAnalysis{Handle: profile.Handle, Days: days}
	if len(history) == 0 {
		return analysis, nil
	}

	newest, oldest := history[0], history[len(history)-1]
	analysis.CurrentFollowers = newest.Count
	analysis.PeriodStartFollowers = oldest.Count
	analysis.TotalChange = newest.Count - oldest.Count
	analysis.PercentageChange = PercentageChange(oldest.Count, newest.Count)
	analysis.GrowthMetrics = ComputeGrowth(history)
	return analysis, nil
}

// Insights lists the profile history with each point's change against the next older one
func (e *Engine) Insights(ctx context.Context, userID, handle string, days int) (*Insights, error) {
	if err := validateDays(days); err != nil {
		return nil, err
	}
	profile, err := e.ownedProfile(ctx, userID, handle)
	if err != nil {
		return nil, err
	}

	history, err := e.samples.GetHistory(ctx, profile.ID, days)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	insights := &Insights{Handle: profile.Handle, PeriodDays: days, Data: []InsightPoint{}}
	if len(history) == 0 {
		return insights, nil
	}

	insights.CurrentFollowers = history[0].Count
	insights.TotalChange = history[0].Count - history[len(history)-1].Count
	for i, s := range history {
		point := InsightPoint{RecordedAt: s.RecordedAt, Followers: s.Count}
		if i < len(history)-1 {
			change := s.Count - history[i+1].Count
			point.DailyChange = &change
		}
		insights.Data = append(insights.Data, point)
	}
	return insights, nil
}

func changeFor(profile *models.Profile, c *Comparison) ProfileChange {
	change := ProfileChange{
		ProfileID:         profile.ID,
		Handle:            profile.Handle,
		CurrentFollowers:  c.Current,
		PreviousFollowers: c.Previous,
		AbsoluteChange:    c.AbsoluteChange,
		PercentageChange:  c.PercentageChange,
		ChangeType:        ChangeNone,
	}
	switch {
	case c.AbsoluteChange > 0:
		change.ChangeType = ChangeIncrease
	case c.AbsoluteChange < 0:
		change.ChangeType = ChangeDecrease
	}
	return change
}

// PeriodLabel renders hours as "<h>h" below a week and "<d>d" from a week on
func PeriodLabel(hours int) string {
	if hours < 168 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dd", hours/24)
}

// TopChanges ranks the user's enabled profiles by movement over hours.
// Profiles that fail analysis are skipped.
func (e *Engine) TopChanges(ctx context.Context, userID string, hours int) (*TopChanges, error) {
	if err := validateHours(hours); err != nil {
		return nil, err
	}
	profiles, err := e.profiles.GetByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	result := &TopChanges{
		Period:        PeriodLabel(hours),
		TotalProfiles: len(profiles),
		Increases:     []ProfileChange{},
		Decreases:     []ProfileChange{},
		NoChanges:     []ProfileChange{},
	}

	for _, profile := range profiles {
		if !profile.Enabled {
			continue
		}
		comparison, err := e.ComparePeriod(ctx, profile.ID, hours)
		if err != nil {
			logrus.WithError(err).WithField("handle", profile.Handle).Warn("Skipping profile in top changes")
			continue
		}
		if !comparison.HasCurrent {
			continue
		}

		change := changeFor(profile, comparison)
		switch change.ChangeType {
		case ChangeIncrease:
			result.Increases = append(result.Increases, change)
		case ChangeDecrease:
			result.Decreases = append(result.Decreases, change)
		default:
			result.NoChanges = append(result.NoChanges, change)
		}
	}

	sort.SliceStable(result.Increases, func(i, j int) bool {
		return result.Increases[i].AbsoluteChange > result.Increases[j].AbsoluteChange
	})
	sort.SliceStable(result.Decreases, func(i, j int) bool {
		return result.Decreases[i].AbsoluteChange < result.Decreases[j].AbsoluteChange
	})
	return result, nil
}

// Dashboard aggregates totals and performers over the user's enabled profiles.
// Deltas only count profiles that have a sample old enough to compare with.
func (e *Engine) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	profiles, err := e.profiles.GetByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	dashboard := &Dashboard{LastUpdated: e.now().UTC()}

	var changes []ProfileChange
	for _, profile := range profiles {
		if !profile.Enabled {
			continue
		}
		dashboard.TotalProfiles++

		day, err := e.ComparePeriod(ctx, profile.ID, 24)
		if err != nil {
			logrus.WithError(err).WithField("handle", profile.Handle).Warn("Skipping profile in dashboard")
			continue
		}
		week, err := e.ComparePeriod(ctx, profile.ID, 168)
		if err != nil {
			logrus.WithError(err).WithField("handle", profile.Handle).Warn("Skipping profile in dashboard")
			continue
		}

		if day.HasCurrent {
			dashboard.TotalFollowers += day.Current
		}
		if day.HasCurrent && day.HasPrevious {
			dashboard.TotalGrowth24h += day.AbsoluteChange
			changes = append(changes, changeFor(profile, day))
		}
		if week.HasCurrent && week.HasPrevious {
			dashboard.TotalGrowth7d += week.AbsoluteChange
		}
	}

	if len(changes) > 0 {
		best, worst := changes[0], changes[0]
		for _, c := range changes[1:] {
			if c.AbsoluteChange > best.AbsoluteChange {
				best = c
			}
			if c.AbsoluteChange < worst.AbsoluteChange {
				worst = c
			}
		}
		dashboard.BestPerformer = &best
		if worst.AbsoluteChange < 0 {
			dashboard.WorstPerformer = &worst
		}
	}

	return dashboard, nil
}

package models

import "time"

// Outcome statuses for a single profile check
const (
	StatusUpdated   = "updated"
	StatusUnchanged = "unchanged"
	StatusNotFound  = "not_found"
	StatusError     = "error"
)

// ProfileOutcome is the result of checking one profile
type ProfileOutcome struct {
	ProfileID       string    `json:"profile_id"`
	Handle          string    `json:"handle"`
	Status          string    `json:"status"`
	FollowerCount   int64     `json:"follower_count,omitempty"`
	PreviousCount   *int64    `json:"previous_count,omitempty"`
	AlertsTriggered int       `json:"alerts_triggered,omitempty"`
	Error           string    `json:"error,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
}

// CycleReport summarises one pass over all enabled profiles
type CycleReport struct {
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
	Duration        string           `json:"duration"`
	DurationSeconds float64          `json:"duration_seconds"`
	Checked         int              `json:"checked"`
	Updated         int              `json:"updated"`
	Errored         int              `json:"errored"`
	NotFound        int              `json:"not_found"`
	AlertsTriggered int              `json:"alerts_triggered"`
	Profiles        []ProfileOutcome `json:"profiles"`
	Error           string           `json:"error,omitempty"`
}

// ProfileStatus is the monitoring view of one profile
type ProfileStatus struct {
	ProfileID       string     `json:"profile_id"`
	Handle          string     `json:"handle"`
	Enabled         bool       `json:"enabled"`
	LastCheckedAt   *time.Time `json:"last_checked_at,omitempty"`
	CurrentCount    *int64     `json:"current_count,omitempty"`
	LastUpdatedAt   *time.Time `json:"last_updated_at,omitempty"`
	ActiveAlerts    int        `json:"active_alerts"`
	AlertThresholds []int64    `json:"alert_thresholds"`
}

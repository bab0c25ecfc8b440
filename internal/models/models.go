package models

import (
	"regexp"
	"strings"
	"time"
)

const (
	// MaxHandleLength is the longest handle the platform accepts
	MaxHandleLength = 30

	MinAlertThreshold = 10
	MaxAlertThreshold = 10_000_000

	// MaxActiveAlertsPerProfile caps armed alerts on one profile
	MaxActiveAlertsPerProfile = 5
)

var handlePattern = regexp.MustCompile(`^[a-zA-Z0-9._]+$`)

// User owns profiles and holds the address milestone notifications go to
type User struct {
	ID                  string    `json:"id"`
	Email               string    `json:"email"`
	NotificationAddress string    `json:"notification_address,omitempty"` // telegram chat id or e-mail address
	CreatedAt           time.Time `json:"created_at"`
}

// CanReceiveNotifications reports whether the user configured an address
func (u *User) CanReceiveNotifications() bool {
	return u != nil && strings.TrimSpace(u.NotificationAddress) != ""
}

// Profile is a monitored external account
type Profile struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Handle        string     `json:"handle"`
	DisplayName   string     `json:"display_name,omitempty"`
	Enabled       bool       `json:"enabled"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// CanBeMonitored reports whether the profile takes part in cycles
func (p *Profile) CanBeMonitored() bool {
	return p.Enabled && p.Handle != ""
}

// Sample is one observation of a follower count
type Sample struct {
	ID         string    `json:"id"`
	ProfileID  string    `json:"profile_id"`
	Count      int64     `json:"count"`
	RecordedAt time.Time `json:"recorded_at"`
}

// NewSample builds a sample stamped with the current time
func NewSample(profileID string, count int64) (*Sample, error) {
	if count < 0 {
		return nil, NewValidationError("count", "follower count cannot be negative")
	}
	return &Sample{
		ProfileID:  profileID,
		Count:      count,
		RecordedAt: time.Now().UTC(),
	}, nil
}

// Alert fires once when a profile reaches Threshold followers.
// TriggeredAt == nil means the alert is armed.
type Alert struct {
	ID          string     `json:"id"`
	ProfileID   string     `json:"profile_id"`
	Threshold   int64      `json:"threshold"`
	Enabled     bool       `json:"enabled"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsArmed reports whether the alert can still fire
func (a *Alert) IsArmed() bool {
	return a.Enabled && a.TriggeredAt == nil
}

// ShouldTrigger reports whether count crosses an armed alert
func (a *Alert) ShouldTrigger(count int64) bool {
	return a.IsArmed() && count >= a.Threshold
}

// NormalizeHandle trims whitespace, a leading "@" and lowercases the handle
func NormalizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	handle = strings.TrimPrefix(handle, "@")
	return strings.ToLower(handle)
}

// ValidateHandle checks length and the allowed character set
func ValidateHandle(handle string) error {
	if handle == "" {
		return NewValidationError("handle", "handle is required")
	}
	if len(handle) > MaxHandleLength {
		return NewValidationError("handle", "handle must be at most 30 characters")
	}
	if !handlePattern.MatchString(handle) {
		return NewValidationError("handle", "handle may only contain letters, digits, '.' and '_'")
	}
	return nil
}

// ValidateThreshold checks the allowed alert threshold range
func ValidateThreshold(threshold int64) error {
	if threshold < MinAlertThreshold {
		return NewValidationError("threshold", "threshold must be at least 10")
	}
	if threshold > MaxAlertThreshold {
		return NewValidationError("threshold", "threshold must be at most 10000000")
	}
	return nil
}

package sources

import (
	"context"
	"errors"
)

var (
	// ErrSourceUnavailable covers authentication failures, a missing session
	// and exhausted rate-limit retries
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrRateLimited is returned by a single attempt the source throttled
	ErrRateLimited = errors.New("rate limited by source")
	// ErrNotFound means the handle does not resolve to an account
	ErrNotFound = errors.New("account not found")
	// ErrAuthRequired means the session was rejected and a fresh login is needed
	ErrAuthRequired = errors.New("authentication required")
)

// FollowerSource defines the contract for reading follower counts
type FollowerSource interface {
	FetchFollowerCount(ctx context.Context, handle string) (int64, error)
}

// Authenticator performs a credential login against the source
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*Session, error)
}

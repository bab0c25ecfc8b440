package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const instagramAppID = "936619743392459"

// InstagramConfig configures the Instagram client
type InstagramConfig struct {
	BaseURL           string
	FetchTimeout      time.Duration
	RequestsPerMinute int
	Retry             RetryPolicy
}

// InstagramClient reads follower counts from the Instagram API
type InstagramClient struct {
	client   *resty.Client
	sessions *SessionManager
	limiter  *rate.Limiter
	timeout  time.Duration
	retry    RetryPolicy
}

var (
	_ FollowerSource = (*InstagramClient)(nil)
	_ Authenticator  = (*InstagramClient)(nil)
)

type profileInfoResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		User *struct {
			Username       string `json:"username"`
			FullName       string `json:"full_name"`
			EdgeFollowedBy struct {
				Count int64 `json:"count"`
			} `json:"edge_followed_by"`
		} `json:"user"`
	} `json:"data"`
}

type loginResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"userId"`
}

// NewInstagramClient creates a new Instagram source
func NewInstagramClient(cfg InstagramConfig, sessions *SessionManager) *InstagramClient {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &InstagramClient{
		client: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(cfg.FetchTimeout).
			SetHeader("User-Agent", "Instagram 219.0.0.12.117 Android").
			SetHeader("X-IG-App-ID", instagramAppID),
		sessions: sessions,
		limiter:  rate.NewLimiter(limit, 1),
		timeout:  cfg.FetchTimeout,
		retry:    cfg.Retry,
	}
}

// FetchFollowerCount returns the current follower count for handle.
// Rate limits are retried with backoff; a rejected session triggers at most
// one re-authentication followed by one retry of the request.
func (c *InstagramClient) FetchFollowerCount(ctx context.Context, handle string) (int64, error) {
	session, generation := c.sessions.Current()
	if !session.Valid() {
		return 0, fmt.Errorf("%w: no session loaded, run 'followwatch session login'", ErrSourceUnavailable)
	}

	count, err := c.fetchWithRetry(ctx, handle, session)
	if !errors.Is(err, ErrAuthRequired) {
		return count, err
	}

	logrus.WithField("handle", handle).Warn("Source session rejected, re-authenticating")
	if err := c.sessions.Reauthenticate(ctx, generation, c); err != nil {
		return 0, fmt.Errorf("%w: re-authentication failed: %w", ErrSourceUnavailable, err)
	}

	session, _ = c.sessions.Current()
	count, err = c.fetchWithRetry(ctx, handle, session)
	if errors.Is(err, ErrAuthRequired) {
		return 0, fmt.Errorf("%w: session rejected after re-authentication", ErrSourceUnavailable)
	}
	return count, err
}

func (c *InstagramClient) fetchWithRetry(ctx context.Context, handle string, session *Session) (int64, error) {
	var count int64
	err := Retry(ctx, c.retry, func(ctx context.Context) error {
		var err error
		count, err = c.fetchOnce(ctx, handle, session)
		return err
	})
	if err == nil {
		return count, nil
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAuthRequired), errors.Is(err, ErrSourceUnavailable):
		return 0, err
	case errors.Is(err, ErrRateLimited):
		logrus.WithField("handle", handle).Warn("Rate limit retries exhausted")
		return 0, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	default:
		return 0, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
}

func (c *InstagramClient) fetchOnce(ctx context.Context, handle string, session *Session) (int64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var result profileInfoResponse
	resp, err := c.client.R().
		SetContext(attemptCtx).
		SetQueryParam("username", handle).
		SetCookies(sessionCookies(session)).
		SetResult(&result).
		SetError(&result).
		Get("/users/web_profile_info/")
	if err != nil {
		return 0, fmt.Errorf("request failed for %s: %w", handle, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusNotFound:
		return 0, fmt.Errorf("%s: %w", handle, ErrNotFound)
	case http.StatusTooManyRequests:
		return 0, &RetryableError{Err: ErrRateLimited, RetryAfter: parseRetryAfter(resp.Header().Get("Retry-After"))}
	case http.StatusUnauthorized, http.StatusForbidden:
		return 0, ErrAuthRequired
	default:
		if isLoginRequired(result.Message) {
			return 0, ErrAuthRequired
		}
		return 0, fmt.Errorf("unexpected status %d for %s", resp.StatusCode(), handle)
	}

	if isLoginRequired(result.Message) {
		return 0, ErrAuthRequired
	}
	if result.Data.User == nil {
		return 0, fmt.Errorf("%s: %w", handle, ErrNotFound)
	}

	count := result.Data.User.EdgeFollowedBy.Count
	logrus.WithFields(logrus.Fields{
		"handle":    handle,
		"followers": count,
	}).Debug("Fetched follower count")
	return count, nil
}

// Login performs a credential login and returns the new session
func (c *InstagramClient) Login(ctx context.Context, username, password string) (*Session, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var result loginResponse
	resp, err := c.client.R().
		SetContext(attemptCtx).
		SetFormData(map[string]string{
			"username": username,
			"password": password,
		}).
		SetResult(&result).
		SetError(&result).
		Post("/accounts/login/")
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.IsError() || result.Status != "ok" || !result.Authenticated {
		msg := result.Message
		if msg == "" {
			msg = resp.Status()
		}
		return nil, fmt.Errorf("login rejected: %s", msg)
	}

	session := &Session{
		Username: username,
		UserID:   result.UserID,
		Cookies:  make(map[string]string),
	}
	for _, cookie := range resp.Cookies() {
		session.Cookies[cookie.Name] = cookie.Value
	}
	if !session.Valid() {
		return nil, fmt.Errorf("login response carried no session cookie")
	}
	return session, nil
}

// TestSession performs one lightweight request with the current session
func (c *InstagramClient) TestSession(ctx context.Context, probeHandle string) error {
	_, err := c.FetchFollowerCount(ctx, probeHandle)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func sessionCookies(session *Session) []*http.Cookie {
	cookies := make([]*http.Cookie, 0, len(session.Cookies))
	for name, value := range session.Cookies {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value})
	}
	return cookies
}

func isLoginRequired(message string) bool {
	m := strings.ToLower(message)
	return strings.Contains(m, "login_required") || strings.Contains(m, "challenge_required")
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

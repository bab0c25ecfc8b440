package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/socialpulse/followwatch/internal/storage"
)

// ErrNoSession is returned by Load when nothing has been persisted yet
var ErrNoSession = errors.New("no saved session")

// Session is the persisted authentication state for the source
type Session struct {
	Username  string            `json:"username"`
	UserID    string            `json:"user_id,omitempty"`
	Cookies   map[string]string `json:"cookies"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Valid reports whether the session carries a session cookie
func (s *Session) Valid() bool {
	return s != nil && s.Cookies["sessionid"] != ""
}

// SessionInfo describes the persisted session for operators
type SessionInfo struct {
	Name      string    `json:"name"`
	Loaded    bool      `json:"loaded"`
	Size      int       `json:"size"`
	Username  string    `json:"username,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// SessionManager shares one session across all concurrent fetches.
// A re-authentication is visible to every later fetch, and concurrent
// re-authentications of the same stale session collapse into one login.
type SessionManager struct {
	store    storage.BlobStore
	name     string
	username string
	password string

	mu         sync.RWMutex
	session    *Session
	generation uint64

	loginMu sync.Mutex
}

// NewSessionManager creates a manager persisting the session under name in store
func NewSessionManager(store storage.BlobStore, name, username, password string) *SessionManager {
	return &SessionManager{
		store:    store,
		name:     name,
		username: username,
		password: password,
	}
}

// HasCredentials reports whether a username and password are configured
func (m *SessionManager) HasCredentials() bool {
	return m.username != "" && m.password != ""
}

// Current returns the active session and its generation.
// The generation identifies the session for Reauthenticate.
func (m *SessionManager) Current() (*Session, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session, m.generation
}

// Load reads the persisted session into memory
func (m *SessionManager) Load(ctx context.Context) error {
	data, err := m.store.Retrieve(ctx, m.name)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return ErrNoSession
		}
		return fmt.Errorf("failed to read session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return fmt.Errorf("failed to decode session: %w", err)
	}
	if !session.Valid() {
		return fmt.Errorf("saved session has no session cookie: %w", ErrNoSession)
	}

	m.set(&session)
	logrus.WithFields(logrus.Fields{
		"session":  m.name,
		"username": session.Username,
	}).Info("Loaded source session")
	return nil
}

// Save persists the active session
func (m *SessionManager) Save(ctx context.Context) error {
	session, _ := m.Current()
	if session == nil {
		return ErrNoSession
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := m.store.Store(ctx, m.name, data); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Login performs a credential login and persists the resulting session
func (m *SessionManager) Login(ctx context.Context, auth Authenticator) error {
	m.loginMu.Lock()
	defer m.loginMu.Unlock()
	return m.login(ctx, auth)
}

// Reauthenticate replaces the session identified by stale with a fresh login.
// If another caller already replaced it, this returns immediately.
func (m *SessionManager) Reauthenticate(ctx context.Context, stale uint64, auth Authenticator) error {
	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	if _, current := m.Current(); current != stale {
		logrus.Debug("Session already refreshed by a concurrent request")
		return nil
	}
	return m.login(ctx, auth)
}

func (m *SessionManager) login(ctx context.Context, auth Authenticator) error {
	if !m.HasCredentials() {
		return fmt.Errorf("no source credentials configured: %w", ErrAuthRequired)
	}

	session, err := auth.Login(ctx, m.username, m.password)
	if err != nil {
		return fmt.Errorf("login as %s failed: %w", m.username, err)
	}

	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.Username == "" {
		session.Username = m.username
	}

	m.set(session)
	if err := m.Save(ctx); err != nil {
		// The in-memory session is still usable for this process
		logrus.WithError(err).Warn("Logged in but failed to persist session")
	}

	logrus.WithField("username", session.Username).Info("Source login successful")
	return nil
}

func (m *SessionManager) set(session *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
	m.generation++
}

// Info describes the persisted session without loading it
func (m *SessionManager) Info(ctx context.Context) (*SessionInfo, error) {
	info := &SessionInfo{Name: m.name}
	current, _ := m.Current()
	info.Loaded = current != nil

	data, err := m.store.Retrieve(ctx, m.name)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return info, ErrNoSession
		}
		return info, fmt.Errorf("failed to read session: %w", err)
	}
	info.Size = len(data)

	var session Session
	if err := json.Unmarshal(data, &session); err == nil {
		info.Username = session.Username
		info.UpdatedAt = session.UpdatedAt
	}
	return info, nil
}

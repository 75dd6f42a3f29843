package auth

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"csgate/pkg/logging"
)

// State represents the authentication state of a Manager.
type State int

const (
	// StateUnauthenticated means no usable token is held.
	StateUnauthenticated State = iota

	// StateAuthenticating means an interactive device flow is in progress.
	StateAuthenticating

	// StateAuthenticated means a usable token is held. Expiry is detected
	// lazily on the next GetAccessToken call, not by a background timer.
	StateAuthenticated
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Authorizer acquires tokens from the authorization server. Implemented by
// DeviceFlowClient; substituted by fakes in tests.
type Authorizer interface {
	Authorize(ctx context.Context) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OverrideProvider returns an externally-supplied pre-authenticated token, or
// "" when none is configured. An override bypasses all freshness logic.
type OverrideProvider func() string

// EnvOverride snapshots CS_ACCESS_TOKEN at call time and returns a provider
// serving that snapshot. The snapshot (rather than a live read) keeps the
// TokenStore's environment mirror from feeding back into the override path,
// which would pin an expired token forever.
func EnvOverride() OverrideProvider {
	tok := os.Getenv(EnvAccessToken)
	return func() string { return tok }
}

// Manager resolves "a currently valid access token" from, in order: an
// external override, the in-memory copy, the persisted store, a
// refresh-token grant, and finally a full interactive device flow.
//
// GetAccessToken may block for the whole interactive window when it reaches
// the device flow; concurrent callers that reach that step are merged into a
// single in-flight flow.
type Manager struct {
	mu       sync.Mutex
	store    *TokenStore
	flow     Authorizer
	override OverrideProvider
	current  *Record
	state    State

	renewGroup singleflight.Group
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithOverrideProvider replaces the default CS_ACCESS_TOKEN snapshot provider.
func WithOverrideProvider(p OverrideProvider) ManagerOption {
	return func(m *Manager) {
		m.override = p
	}
}

// NewManager creates a Manager with injected store and authorizer.
func NewManager(store *TokenStore, flow Authorizer, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		flow:     flow,
		override: EnvOverride(),
		state:    StateUnauthenticated,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetAccessToken returns a currently valid access token, triggering a
// refresh or a blocking interactive device flow when necessary.
func (m *Manager) GetAccessToken(ctx context.Context) (string, error) {
	if tok := m.override(); tok != "" {
		return tok, nil
	}

	now := time.Now()

	m.mu.Lock()
	if m.current != nil && m.current.Usable(now) {
		tok := m.current.AccessToken
		m.mu.Unlock()
		return tok, nil
	}

	// Fall through to the store; even an expired record may carry a usable
	// refresh token.
	refreshToken := ""
	if m.current != nil {
		refreshToken = m.current.RefreshToken
	}
	if rec, ok := m.store.Load(); ok {
		if rec.Usable(now) {
			m.current = &rec
			m.state = StateAuthenticated
			m.mu.Unlock()
			return rec.AccessToken, nil
		}
		if rec.RefreshToken != "" {
			refreshToken = rec.RefreshToken
		}
	}
	m.mu.Unlock()

	// Renewal is merged: concurrent callers share one refresh/device flow.
	v, err, _ := m.renewGroup.Do("renew", func() (interface{}, error) {
		return m.renew(ctx, refreshToken)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// renew obtains a fresh token via refresh grant when possible, otherwise via
// the full interactive device flow, then persists and caches it.
func (m *Manager) renew(ctx context.Context, refreshToken string) (string, error) {
	// Another caller may have completed renewal while we waited on the group.
	m.mu.Lock()
	if m.current != nil && m.current.Usable(time.Now()) {
		tok := m.current.AccessToken
		m.mu.Unlock()
		return tok, nil
	}
	m.state = StateAuthenticating
	m.mu.Unlock()

	var tok *oauth2.Token
	var err error

	if refreshToken != "" {
		tok, err = m.flow.Refresh(ctx, refreshToken)
		if err != nil {
			logging.Warn("Auth", "Token refresh failed, falling back to device flow: %v", err)
			tok = nil
		}
	}

	if tok == nil {
		logging.Info("Auth", "No usable token, starting device flow authentication")
		tok, err = m.flow.Authorize(ctx)
		if err != nil {
			m.mu.Lock()
			m.state = StateUnauthenticated
			m.mu.Unlock()
			return "", err
		}
	}

	rec := NewRecord(tok)
	if err := m.store.Save(rec); err != nil {
		// Persistence is best-effort; the in-memory token still works.
		logging.Warn("Auth", "Token obtained but not persisted: %v", err)
	}

	m.mu.Lock()
	m.current = &rec
	m.state = StateAuthenticated
	m.mu.Unlock()

	return rec.AccessToken, nil
}

// AuthHeaders returns the headers for an authenticated upstream call. It
// fails fast when no token is obtainable rather than returning empty headers.
func (m *Manager) AuthHeaders(ctx context.Context) (map[string]string, error) {
	tok, err := m.GetAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoToken, err)
	}
	return map[string]string{
		"Authorization": "Bearer " + tok,
		"Content-Type":  "application/json",
	}, nil
}

// HasValidToken reports whether a usable token is currently on hand, without
// ever triggering an interactive flow.
func (m *Manager) HasValidToken() bool {
	if tok := m.override(); tok != "" {
		return true
	}

	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.Usable(now) {
		return true
	}
	if rec, ok := m.store.Load(); ok && rec.Usable(now) {
		m.current = &rec
		m.state = StateAuthenticated
		return true
	}
	return false
}

// IsAuthenticated probes by resolving a token, which may trigger the full
// interactive flow. Use HasValidToken for a non-blocking check.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	_, err := m.GetAccessToken(ctx)
	return err == nil
}

// Invalidate drops the cached and persisted copies of the given access token.
// Called when upstream rejects the token (401) before it reaches its local
// expiry. A no-op when the current token differs.
func (m *Manager) Invalidate(accessToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.AccessToken == accessToken {
		m.current = nil
		m.state = StateUnauthenticated
	}
	if rec, ok := m.store.Load(); ok && rec.AccessToken == accessToken {
		if err := m.store.Clear(); err != nil {
			logging.Warn("Auth", "Failed to clear rejected token: %v", err)
		}
	}
}

// Reload drops the in-memory copy so the next resolution re-reads the store.
// Used when the token file changed on disk (another process logged in or out).
func (m *Manager) Reload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
}

// State returns the current authentication state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentRecord returns a copy of the in-memory or persisted record, if any.
// It never triggers a flow; expired records are returned as-is for display.
func (m *Manager) CurrentRecord() (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return *m.current, true
	}
	return m.store.Load()
}

// Logout clears the persisted token and resets in-memory state. Idempotent.
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = nil
	m.state = StateUnauthenticated
	return m.store.Clear()
}

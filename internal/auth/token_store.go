package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"csgate/pkg/logging"
)

// EnvAccessToken is the process environment variable that mirrors the current
// access token. It doubles as the override channel: when set externally it
// wins over any cached token, and TokenStore keeps it updated so co-located
// child processes inherit the credential.
const EnvAccessToken = "CS_ACCESS_TOKEN"

// DefaultTokenFile is the token cache path relative to the home directory.
const DefaultTokenFile = ".cybershuttle/token.json"

// TokenStore persists a single token record to a JSON file and mirrors the
// access token into the process environment.
//
// Persistence is a convenience cache, not a correctness requirement: Save
// failures are logged and reported, but the in-memory token remains usable
// for the current process. Files are written 0600 inside a 0700 directory.
type TokenStore struct {
	mu   sync.Mutex
	path string
}

// NewTokenStore creates a token store backed by the given file path.
// An empty path resolves to ~/.cybershuttle/token.json.
func NewTokenStore(path string) (*TokenStore, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, DefaultTokenFile)
	}
	return &TokenStore{path: path}, nil
}

// Path returns the backing file path.
func (s *TokenStore) Path() string {
	return s.path
}

// Save writes the record to disk and mirrors the access token into the
// environment. The environment mirror is updated even when the file write
// fails, so the current process keeps working without persistence.
func (s *TokenStore) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	os.Setenv(EnvAccessToken, rec.AccessToken)

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		logging.Error("Auth", err, "Failed to create token directory")
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		logging.Error("Auth", err, "Failed to persist token to %s", s.path)
		return fmt.Errorf("failed to write token file: %w", err)
	}

	logging.Debug("Auth", "Token saved to %s (expires: %v)", s.path, rec.Expiry())
	return nil
}

// Load reads the persisted record. A missing, unreadable, or corrupt file is
// reported as absent, never as an error: callers treat all three the same as
// "never authenticated".
func (s *TokenStore) Load() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn("Auth", "Token file %s unreadable: %v", s.path, err)
		}
		return Record{}, false
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		logging.Warn("Auth", "Token file %s corrupt: %v", s.path, err)
		return Record{}, false
	}

	return rec, true
}

// Clear removes the persisted file and the environment mirror. Clearing an
// already-empty store is a no-op.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	os.Unsetenv(EnvAccessToken)

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		logging.Error("Auth", err, "Failed to remove token file %s", s.path)
		return fmt.Errorf("failed to remove token file: %w", err)
	}

	logging.Debug("Auth", "Token store cleared")
	return nil
}

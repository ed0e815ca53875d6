// Package credential issues and rotates the daemon's access/refresh token
// pair and keeps it on disk across restarts.
package credential

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/wppbridge/internal/clock"
)

// DefaultTTL is how long an issued access token stays valid.
const DefaultTTL = time.Hour

const tokenBytes = 32

// Credentials is the token pair plus its metadata.
type Credentials struct {
	AuthToken    string    `json:"authToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"tokenExpiry"`
	CreatedAt    time.Time `json:"createdAt"`
	SessionID    string    `json:"sessionId"`
}

func (c Credentials) empty() bool { return c.AuthToken == "" }

// Store owns the credential record. All methods are safe for concurrent use
// and every mutation is persisted before it returns.
type Store struct {
	path   string
	ttl    time.Duration
	clock  clock.Clock
	logger *zap.Logger

	mu       sync.Mutex
	creds    Credentials
	onChange func(Credentials)
}

// Open loads the record at path. A missing, unreadable, malformed or
// already expired record leaves the store empty; it is never an error.
func Open(path string, ttl time.Duration, clk clock.Clock, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{path: path, ttl: ttl, clock: clk, logger: logger}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s
	case err != nil:
		logger.Warn("read credentials, starting clean", zap.String("path", path), zap.Error(err))
		return s
	}

	var loaded Credentials
	if err := json.Unmarshal(data, &loaded); err != nil {
		logger.Warn("malformed credentials, starting clean", zap.String("path", path), zap.Error(err))
		return s
	}
	if loaded.empty() || !clk.Now().Before(loaded.ExpiresAt) {
		logger.Info("stored credentials expired, discarding", zap.Time("expires_at", loaded.ExpiresAt))
		_ = os.Remove(path)
		return s
	}
	s.creds = loaded
	return s
}

// OnChange registers fn to receive the record after every persisted
// mutation. fn runs under the store's lock and must not call back into it.
func (s *Store) OnChange(fn func(Credentials)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

func (s *Store) notifyLocked() {
	if s.onChange != nil {
		s.onChange(s.creds)
	}
}

// Issue generates a fresh token pair, persists it and returns it.
func (s *Store) Issue() (Credentials, error) {
	auth, err := newToken()
	if err != nil {
		return Credentials{}, err
	}
	refresh, err := newToken()
	if err != nil {
		return Credentials{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.creds = Credentials{
		AuthToken:    auth,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(s.ttl),
		CreatedAt:    now,
		SessionID:    uuid.NewString(),
	}
	if err := s.persistLocked(); err != nil {
		return s.creds, err
	}
	s.logger.Info("tokens issued", zap.String("session_id", s.creds.SessionID), zap.Time("expires_at", s.creds.ExpiresAt))
	return s.creds, nil
}

// Refresh rotates the access token, keeping the refresh token. It reports
// false and changes nothing when no refresh token is held.
func (s *Store) Refresh() (Credentials, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds.RefreshToken == "" {
		return Credentials{}, false, nil
	}
	auth, err := newToken()
	if err != nil {
		return s.creds, false, err
	}
	s.creds.AuthToken = auth
	s.creds.ExpiresAt = s.clock.Now().Add(s.ttl)
	if err := s.persistLocked(); err != nil {
		return s.creds, true, err
	}
	s.logger.Info("tokens refreshed", zap.Time("expires_at", s.creds.ExpiresAt))
	return s.creds, true, nil
}

// IsValid reports whether an access token is held and has not expired.
func (s *Store) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validLocked()
}

func (s *Store) validLocked() bool {
	return !s.creds.empty() && s.clock.Now().Before(s.creds.ExpiresAt)
}

// HasRefreshToken reports whether Refresh can rotate.
func (s *Store) HasRefreshToken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds.RefreshToken != ""
}

// Snapshot returns a copy of the current record.
func (s *Store) Snapshot() Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

// Clear drops every field and deletes the persisted record.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	s.notifyLocked()
	return nil
}

// RunAutoRefresh rotates the access token every interval while
// authenticated reports true and the current token is still valid. It
// returns when ctx is done.
func (s *Store) RunAutoRefresh(ctx context.Context, interval time.Duration, authenticated func() bool) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !authenticated() || !s.IsValid() {
				continue
			}
			if _, _, err := s.Refresh(); err != nil {
				s.logger.Error("auto refresh", zap.Error(err))
			}
		}
	}
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tokens-*.json")
	if err != nil {
		return fmt.Errorf("create temp credentials: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close credentials: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace credentials: %w", err)
	}
	s.notifyLocked()
	return nil
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

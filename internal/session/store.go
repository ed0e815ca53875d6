package session

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Store tracks the on-disk authentication session of one client id. The
// directory's contents belong to the messaging client; the store only
// checks that something is there and wipes it.
type Store struct {
	root     string
	clientID string
	logger   *zap.Logger
}

// NewStore creates a Store rooted at root for the given client id.
func NewStore(root, clientID string, logger *zap.Logger) (*Store, error) {
	if err := ValidateClientID(clientID); err != nil {
		return nil, err
	}
	return &Store{root: root, clientID: clientID, logger: logger}, nil
}

// Dir returns the session directory the client must be bound to.
func (s *Store) Dir() string {
	return filepath.Join(s.root, "session-"+s.clientID)
}

// EnsureDirectory creates the root. Failures are logged, not returned.
func (s *Store) EnsureDirectory() {
	if err := os.MkdirAll(s.root, 0700); err != nil {
		s.logger.Error("create session root", zap.String("path", s.root), zap.Error(err))
	}
}

// HasValidSession reports whether the session directory exists and holds
// at least one entry. Any error reads as "no session".
func (s *Store) HasValidSession() bool {
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("inspect session dir", zap.String("path", s.Dir()), zap.Error(err))
		}
		return false
	}
	return len(entries) > 0
}

// Clear removes the whole root tree and recreates it empty.
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("remove session root: %w", err)
	}
	if err := os.MkdirAll(s.root, 0700); err != nil {
		return fmt.Errorf("recreate session root: %w", err)
	}
	s.logger.Info("session cleared", zap.String("path", s.root))
	return nil
}

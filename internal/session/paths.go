package session

import (
	"os"
	"path/filepath"
)

// Layout names every file the daemon keeps under its data directory.
type Layout struct {
	DataDir string
}

// AuthDir holds one session subdirectory per client id.
func (l Layout) AuthDir() string {
	return filepath.Join(l.DataDir, "auth")
}

// TokensPath returns the persisted credential record.
func (l Layout) TokensPath() string {
	return filepath.Join(l.DataDir, "tokens.json")
}

// AppDBPath returns the app-owned SQLite database (cache and journal).
func (l Layout) AppDBPath() string {
	return filepath.Join(l.DataDir, "app.db")
}

// LogDir returns the log directory.
func (l Layout) LogDir() string {
	return filepath.Join(l.DataDir, "logs")
}

// LogPath returns the daemon log file path.
func (l Layout) LogPath() string {
	return filepath.Join(l.LogDir(), "wppd.log")
}

// ConfigPath returns the default config file path.
func (l Layout) ConfigPath() string {
	return filepath.Join(l.DataDir, "config.toml")
}

// Ensure creates the data directory tree with owner-only permissions.
func (l Layout) Ensure() error {
	for _, d := range []string{l.DataDir, l.AuthDir(), l.LogDir()} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

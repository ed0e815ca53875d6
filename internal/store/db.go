package store

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DB wraps the app-owned app.db: the sync cache and the message journal.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}

// OpenMigrated opens path and brings its schema up to date. A database
// that cannot be opened or migrated is renamed to <path>.corrupt-<unix>
// and a fresh one is created in its place.
func OpenMigrated(path string, logger *zap.Logger) (*DB, error) {
	db, err := openAndMigrate(path, logger)
	if err == nil {
		return db, nil
	}

	aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	logger.Error("app db unusable, starting fresh",
		zap.String("path", path),
		zap.String("moved_to", aside),
		zap.Error(err),
	)
	if rerr := os.Rename(path, aside); rerr != nil && !os.IsNotExist(rerr) {
		return nil, fmt.Errorf("move corrupt db aside: %w", rerr)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
	return openAndMigrate(path, logger)
}

func openAndMigrate(path string, logger *zap.Logger) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	res, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if res.Dirty {
		_ = db.Close()
		return nil, fmt.Errorf("schema version %d is dirty", res.Version)
	}
	if res.Changed {
		logger.Info("app db migrated", zap.Uint("version", res.Version))
	}
	return db, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrCacheVersion is returned by LoadCache when the stored snapshot was
// written under a different CacheVersion.
var ErrCacheVersion = errors.New("cache version mismatch")

const (
	stateVersion  = "cache_version"
	stateLastSync = "last_sync"
	stateSavedAt  = "saved_at"
)

// SaveCache replaces the persisted snapshot with snap in one transaction.
// List order is preserved.
func (db *DB) SaveCache(ctx context.Context, snap Snapshot) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cached_contacts`); err != nil {
		return fmt.Errorf("clear cached contacts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cached_chats`); err != nil {
		return fmt.Errorf("clear cached chats: %w", err)
	}

	for i, c := range snap.Contacts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cached_contacts (position, id, name, number) VALUES (?, ?, ?, ?)`,
			i, c.ID, c.Name, c.Number); err != nil {
			return fmt.Errorf("insert cached contact %q: %w", c.ID, err)
		}
	}
	for i, c := range snap.Chats {
		var (
			hasLast  bool
			lastBody string
			lastTs   int64
			lastFrom string
		)
		if c.LastMessage != nil {
			hasLast = true
			lastBody, lastTs, lastFrom = c.LastMessage.Body, c.LastMessage.Timestamp, c.LastMessage.From
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cached_chats (position, id, name, is_group, unread_count, has_last, last_body, last_timestamp, last_from)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			i, c.ID, c.Name, c.IsGroup, c.UnreadCount, hasLast, lastBody, lastTs, lastFrom); err != nil {
			return fmt.Errorf("insert cached chat %q: %w", c.ID, err)
		}
	}

	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	state := map[string]string{
		stateVersion:  CacheVersion,
		stateLastSync: formatTime(snap.LastSync),
		stateSavedAt:  formatTime(savedAt),
	}
	for k, v := range state {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sync_state (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// LoadCache reads the persisted snapshot. A database that never saved one
// yields an empty snapshot.
func (db *DB) LoadCache(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	version, err := db.syncState(ctx, stateVersion)
	if err != nil {
		return snap, err
	}
	if version == "" {
		return snap, nil
	}
	if version != CacheVersion {
		return snap, fmt.Errorf("%w: stored %q, current %q", ErrCacheVersion, version, CacheVersion)
	}
	snap.Version = version

	lastSync, err := db.syncState(ctx, stateLastSync)
	if err != nil {
		return snap, err
	}
	snap.LastSync = parseTime(lastSync)
	savedAt, err := db.syncState(ctx, stateSavedAt)
	if err != nil {
		return snap, err
	}
	snap.SavedAt = parseTime(savedAt)

	if snap.Contacts, err = db.cachedContacts(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Chats, err = db.cachedChats(ctx); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (db *DB) cachedContacts(ctx context.Context) ([]Contact, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, number FROM cached_contacts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query cached contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	contacts := []Contact{}
	for rows.Next() {
		c := Contact{IsMyContact: true}
		if err := rows.Scan(&c.ID, &c.Name, &c.Number); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (db *DB) cachedChats(ctx context.Context) ([]Chat, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, is_group, unread_count, has_last, last_body, last_timestamp, last_from
		FROM cached_chats ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query cached chats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	chats := []Chat{}
	for rows.Next() {
		var (
			c       Chat
			hasLast bool
			last    LastMessage
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.IsGroup, &c.UnreadCount, &hasLast, &last.Body, &last.Timestamp, &last.From); err != nil {
			return nil, err
		}
		if hasLast {
			c.LastMessage = &last
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

func (db *DB) syncState(ctx context.Context, key string) (string, error) {
	var v string
	err := db.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

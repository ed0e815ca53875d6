package store

import (
	"context"
	"database/sql"
	"errors"
)

const upsertChatSQL = `
	INSERT INTO chats (jid, name, is_group, unread_count, last_message_at, last_message_preview, last_message_from, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(jid) DO UPDATE SET
		name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chats.name END,
		is_group = excluded.is_group,
		unread_count = excluded.unread_count,
		last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
		last_message_preview = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_preview ELSE chats.last_message_preview END,
		last_message_from = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_from ELSE chats.last_message_from END,
		updated_at = excluded.updated_at`

// touchChatSQL records a new message on a chat without overwriting its
// name with an empty value or moving its last message backwards.
const touchChatSQL = `
	INSERT INTO chats (jid, name, is_group, unread_count, last_message_at, last_message_preview, last_message_from, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(jid) DO UPDATE SET
		name = CASE WHEN chats.name = '' THEN excluded.name ELSE chats.name END,
		unread_count = chats.unread_count + excluded.unread_count,
		last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
		last_message_preview = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_preview ELSE chats.last_message_preview END,
		last_message_from = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_from ELSE chats.last_message_from END,
		updated_at = excluded.updated_at`

// ListChats returns chats ordered by most recent activity.
func (db *DB) ListChats(ctx context.Context, limit int) ([]ChatRow, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.QueryContext(ctx, `
		SELECT jid, name, is_group, unread_count, last_message_at, last_message_preview, last_message_from
		FROM chats
		WHERE jid NOT LIKE '%@lid'
		ORDER BY last_message_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []ChatRow
	for rows.Next() {
		var c ChatRow
		if err := rows.Scan(&c.JID, &c.Name, &c.IsGroup, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview, &c.LastMessageFrom); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by JID, or nil if it was never journaled.
func (db *DB) GetChat(ctx context.Context, jid string) (*ChatRow, error) {
	var c ChatRow
	err := db.QueryRowContext(ctx, `
		SELECT jid, name, is_group, unread_count, last_message_at, last_message_preview, last_message_from
		FROM chats WHERE jid = ?`, jid).
		Scan(&c.JID, &c.Name, &c.IsGroup, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview, &c.LastMessageFrom)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ChatCount returns the number of journaled chats.
func (db *DB) ChatCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}

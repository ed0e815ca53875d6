package store

import (
	"context"
	"fmt"
	"time"
)

const upsertMessageSQL = `
	INSERT INTO messages (chat_jid, msg_id, sender_jid, sender_name, body, message_type, from_me, is_forwarded, has_media, timestamp, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(chat_jid, msg_id) DO UPDATE SET
		sender_name = CASE WHEN excluded.sender_name != '' THEN excluded.sender_name ELSE messages.sender_name END,
		body = excluded.body`

// RecordMessage journals m and moves its chat's last-message summary
// forward in one transaction. A first delivery of a message not sent by us
// bumps the unread count.
func (db *DB) RecordMessage(ctx context.Context, m *Message, chatName string, isGroup bool) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seen int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE chat_jid = ? AND msg_id = ?`, m.ChatJID, m.MsgID).Scan(&seen); err != nil {
		return fmt.Errorf("lookup message %q: %w", m.MsgID, err)
	}

	now := time.Now().UnixMilli()
	unread := 1
	if m.FromMe || seen > 0 {
		unread = 0
	}
	if _, err := tx.ExecContext(ctx, touchChatSQL,
		m.ChatJID, chatName, isGroup, unread, m.Timestamp, m.Body, m.SenderJID, now); err != nil {
		return fmt.Errorf("touch chat %q: %w", m.ChatJID, err)
	}
	if _, err := tx.ExecContext(ctx, upsertMessageSQL,
		m.ChatJID, m.MsgID, m.SenderJID, m.SenderName, m.Body, m.MessageType,
		m.FromMe, m.IsForwarded, m.HasMedia, m.Timestamp, now); err != nil {
		return fmt.Errorf("upsert message %q: %w", m.MsgID, err)
	}
	return tx.Commit()
}

// RecordHistory journals a history-sync batch atomically.
func (db *DB) RecordHistory(ctx context.Context, batch HistoryBatch) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, c := range batch.Chats {
		if _, err := tx.ExecContext(ctx, upsertChatSQL,
			c.JID, c.Name, c.IsGroup, c.UnreadCount, c.LastMessageAt, c.LastMessagePreview, c.LastMessageFrom, now); err != nil {
			return fmt.Errorf("upsert chat %q: %w", c.JID, err)
		}
	}
	for _, m := range batch.Messages {
		if _, err := tx.ExecContext(ctx, upsertMessageSQL,
			m.ChatJID, m.MsgID, m.SenderJID, m.SenderName, m.Body, m.MessageType,
			m.FromMe, m.IsForwarded, m.HasMedia, m.Timestamp, now); err != nil {
			return fmt.Errorf("upsert message %q: %w", m.MsgID, err)
		}
	}
	return tx.Commit()
}

// ListMessages returns up to limit messages of a chat older than beforeTs,
// newest first. beforeTs <= 0 means "now".
func (db *DB) ListMessages(ctx context.Context, chatJID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, chat_jid, msg_id, sender_jid, sender_name, body, message_type, from_me, is_forwarded, has_media, timestamp
		FROM messages
		WHERE chat_jid = ? AND timestamp < ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, chatJID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatJID, &m.MsgID, &m.SenderJID, &m.SenderName, &m.Body,
			&m.MessageType, &m.FromMe, &m.IsForwarded, &m.HasMedia, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageCount returns the number of journaled messages.
func (db *DB) MessageCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

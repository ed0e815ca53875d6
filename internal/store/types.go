package store

import "time"

// CacheVersion tags persisted snapshots. A snapshot written under another
// version is ignored on load.
const CacheVersion = "1.2.1"

// Contact is one entry of the synced contact list.
type Contact struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Number      string `json:"number"`
	IsGroup     bool   `json:"isGroup"`
	IsMyContact bool   `json:"isMyContact"`
}

// LastMessage summarizes the most recent message of a chat. Timestamp is
// in Unix seconds.
type LastMessage struct {
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	From      string `json:"from"`
}

// Chat is one entry of the synced chat list.
type Chat struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	IsGroup     bool         `json:"isGroup"`
	UnreadCount int          `json:"unreadCount"`
	LastMessage *LastMessage `json:"lastMessage"`
}

// Snapshot is the persisted sync cache.
type Snapshot struct {
	Contacts []Contact
	Chats    []Chat
	LastSync time.Time
	SavedAt  time.Time
	Version  string
}

// ChatRow is a journaled chat summary. Timestamps are Unix milliseconds.
type ChatRow struct {
	JID                string
	Name               string
	IsGroup            bool
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
	LastMessageFrom    string
}

// Message is a journaled message. Timestamp is Unix milliseconds.
type Message struct {
	ID          int64
	ChatJID     string
	MsgID       string
	SenderJID   string
	SenderName  string
	Body        string
	MessageType string
	FromMe      bool
	IsForwarded bool
	HasMedia    bool
	Timestamp   int64
}

// HistoryBatch is one history-sync delivery: chat summaries and the
// messages that came with them.
type HistoryBatch struct {
	Chats    []ChatRow
	Messages []Message
}

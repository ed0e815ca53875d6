package bus

import "time"

// Event kinds published inside the daemon. Subscribers filter by prefix,
// so "session." receives every connection event.
const (
	KindStatusChanged = "session.status_changed"
	KindQR            = "session.qr"
	KindSyncCompleted = "session.sync_completed"
	KindTokens        = "session.tokens"

	KindMessage     = "wa.message"
	KindHistorySync = "wa.history_sync"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"ts"`
	Payload   any       `json:"payload,omitempty"`
}

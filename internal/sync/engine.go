package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/clock"
	"github.com/matheus3301/wppbridge/internal/store"
	"github.com/matheus3301/wppbridge/internal/wa"
)

// ErrNotReady is returned by syncs attempted while the connection is not
// READY. The cached data is returned alongside it.
var ErrNotReady = errors.New("whatsapp not ready")

// Gate hands out the live client only while the connection is READY.
type Gate interface {
	ReadyClient() (wa.Client, bool)
}

// Persister stores the cache across restarts.
type Persister interface {
	SaveCache(ctx context.Context, snap store.Snapshot) error
	LoadCache(ctx context.Context) (store.Snapshot, error)
}

// Result summarizes a completed SyncAll.
type Result struct {
	Contacts int       `json:"contacts"`
	Chats    int       `json:"chats"`
	LastSync time.Time `json:"lastSync"`
}

// Engine pulls contacts and chats from the connected client and keeps the
// filtered result as the daemon's cache.
type Engine struct {
	gate    Gate
	persist Persister
	bus     *bus.Bus
	clock   clock.Clock
	locale  language.Tag
	logger  *zap.Logger

	// syncMu serializes whole sync operations; mu guards the cache.
	syncMu   gosync.Mutex
	mu       gosync.RWMutex
	contacts []store.Contact
	chats    []store.Chat
	lastSync time.Time
}

// NewEngine creates an engine with an empty cache. locale is a BCP 47 tag
// used to order contacts; an unparsable tag falls back to language.Und.
func NewEngine(gate Gate, persist Persister, b *bus.Bus, clk clock.Clock, locale string, logger *zap.Logger) *Engine {
	tag, err := language.Parse(locale)
	if err != nil {
		logger.Warn("invalid sync locale, using root collation", zap.String("locale", locale), zap.Error(err))
		tag = language.Und
	}
	return &Engine{
		gate:    gate,
		persist: persist,
		bus:     b,
		clock:   clk,
		locale:  tag,
		logger:  logger,
	}
}

// Load restores the persisted cache. Any failure leaves the cache empty.
func (e *Engine) Load(ctx context.Context) {
	snap, err := e.persist.LoadCache(ctx)
	if err != nil {
		if errors.Is(err, store.ErrCacheVersion) {
			e.logger.Info("discarding cache from another version", zap.Error(err))
		} else {
			e.logger.Warn("failed to load cache", zap.Error(err))
		}
		return
	}

	e.mu.Lock()
	e.contacts = snap.Contacts
	e.chats = snap.Chats
	e.lastSync = snap.LastSync
	e.mu.Unlock()

	e.logger.Info("cache loaded",
		zap.Int("contacts", len(snap.Contacts)),
		zap.Int("chats", len(snap.Chats)),
		zap.Time("last_sync", snap.LastSync),
	)
}

// SyncContacts refreshes the contact list from the live client. When the
// connection is not READY or the fetch fails the cached list is returned
// unchanged together with the error.
func (e *Engine) SyncContacts(ctx context.Context) ([]store.Contact, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	return e.syncContactsLocked(ctx)
}

func (e *Engine) syncContactsLocked(ctx context.Context) ([]store.Contact, error) {
	client, ok := e.gate.ReadyClient()
	if !ok {
		return e.Contacts(), ErrNotReady
	}

	raw, err := client.Contacts(ctx)
	if err != nil {
		e.logger.Error("contact sync failed", zap.Error(err))
		return e.Contacts(), fmt.Errorf("fetch contacts: %w", err)
	}

	contacts := FilterContacts(raw, e.locale, e.logger)

	e.mu.Lock()
	e.contacts = contacts
	e.mu.Unlock()
	e.save(ctx)

	e.logger.Info("contacts synced", zap.Int("raw", len(raw)), zap.Int("kept", len(contacts)))
	return contacts, nil
}

// SyncChats refreshes the chat list from the live client and records the
// sync time. Failure handling matches SyncContacts.
func (e *Engine) SyncChats(ctx context.Context) ([]store.Chat, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	return e.syncChatsLocked(ctx)
}

func (e *Engine) syncChatsLocked(ctx context.Context) ([]store.Chat, error) {
	client, ok := e.gate.ReadyClient()
	if !ok {
		return e.Chats(), ErrNotReady
	}

	raw, err := client.Chats(ctx)
	if err != nil {
		e.logger.Error("chat sync failed", zap.Error(err))
		return e.Chats(), fmt.Errorf("fetch chats: %w", err)
	}

	chats := mapChats(raw, e.logger)

	e.mu.Lock()
	e.chats = chats
	e.lastSync = e.clock.Now()
	e.mu.Unlock()
	e.save(ctx)

	e.logger.Info("chats synced", zap.Int("chats", len(chats)))
	return chats, nil
}

// SyncAll syncs contacts and then chats. The chat sync is skipped when
// the contact sync fails.
func (e *Engine) SyncAll(ctx context.Context) (Result, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	contacts, err := e.syncContactsLocked(ctx)
	if err != nil {
		return Result{}, err
	}
	chats, err := e.syncChatsLocked(ctx)
	if err != nil {
		return Result{}, err
	}

	res := Result{Contacts: len(contacts), Chats: len(chats), LastSync: e.LastSync()}
	e.bus.Emit(bus.KindSyncCompleted, res)
	return res, nil
}

// Reset empties the cache and persists the empty state.
func (e *Engine) Reset(ctx context.Context) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	e.mu.Lock()
	e.contacts = nil
	e.chats = nil
	e.lastSync = time.Time{}
	e.mu.Unlock()
	e.save(ctx)
}

// Contacts returns the cached contact list.
func (e *Engine) Contacts() []store.Contact {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.contacts
}

// Chats returns the cached chat list.
func (e *Engine) Chats() []store.Chat {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.chats
}

// LastSync returns the time of the last successful chat sync, or the
// zero time.
func (e *Engine) LastSync() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSync
}

// Snapshot returns a copy of the cache.
func (e *Engine) Snapshot() store.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return store.Snapshot{
		Contacts: e.contacts,
		Chats:    e.chats,
		LastSync: e.lastSync,
	}
}

// save persists the cache. Failures are logged; the in-memory cache stays
// authoritative.
func (e *Engine) save(ctx context.Context) {
	snap := e.Snapshot()
	snap.SavedAt = e.clock.Now()
	snap.Version = store.CacheVersion
	if err := e.persist.SaveCache(ctx, snap); err != nil {
		e.logger.Error("failed to persist cache", zap.Error(err))
	}
}

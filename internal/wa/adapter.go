package wa

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/store"
)

// DeviceDBName is the whatsmeow device store inside the session dir.
const DeviceDBName = "device.db"

// Journal is the read side of the message journal. whatsmeow keeps no
// server-side chat list, so chats and message history come from here.
type Journal interface {
	ListChats(ctx context.Context, limit int) ([]store.ChatRow, error)
	GetChat(ctx context.Context, jid string) (*store.ChatRow, error)
	ListMessages(ctx context.Context, chatJID string, beforeTs int64, limit int) ([]store.Message, error)
}

// LiveMessage is published on the bus for every message seen or sent.
type LiveMessage struct {
	Message  *store.Message
	ChatName string
	IsGroup  bool
}

// Adapter is the whatsmeow-backed Client.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	journal   Journal
	bus       *bus.Bus
	logger    *zap.Logger

	mu        sync.Mutex
	handler   EventHandler
	paired    bool // authenticated already reported for this connection
	stopQR    context.CancelFunc
	destroyed bool
}

var _ Client = (*Adapter)(nil)

// NewFactory returns a Factory producing Adapters that share journal and bus.
func NewFactory(journal Journal, b *bus.Bus, logger *zap.Logger) Factory {
	return func(ctx context.Context, opts Options) (Client, error) {
		return NewAdapter(ctx, opts, journal, b, logger)
	}
}

// NewAdapter opens the device store under opts.SessionDir and builds a
// client on it. Nothing touches the network until Connect.
func NewAdapter(ctx context.Context, opts Options, journal Journal, b *bus.Bus, logger *zap.Logger) (*Adapter, error) {
	if opts.DeviceName != "" {
		wastore.SetOSInfo(opts.DeviceName, [3]uint32{1, 0, 0})
	}
	if err := os.MkdirAll(opts.SessionDir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	waLogger := NewLogger(logger.Named("whatsmeow"))
	dbPath := filepath.Join(opts.SessionDir, DeviceDBName)
	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
		waLogger.Sub("Database"),
	)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("get device store: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, waLogger.Sub("Client"))
	// Reconnects are the supervisor's decision.
	client.EnableAutoReconnect = false

	a := &Adapter{
		client:    client,
		container: container,
		journal:   journal,
		bus:       b,
		logger:    logger,
	}
	client.AddEventHandler(a.handle)
	return a, nil
}

// SetEventHandler installs h as the receiver of lifecycle events.
func (a *Adapter) SetEventHandler(h EventHandler) {
	a.mu.Lock()
	a.handler = h
	a.mu.Unlock()
}

// Connect opens the websocket. An unpaired device first starts a QR
// pairing flow whose codes arrive as EventQR.
func (a *Adapter) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return errors.New("client destroyed")
	}
	a.paired = false
	a.mu.Unlock()

	if a.client.Store.ID == nil {
		qrCtx, cancel := context.WithCancel(context.Background())
		qrChan, err := a.client.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			return fmt.Errorf("get QR channel: %w", err)
		}
		a.mu.Lock()
		a.stopQR = cancel
		a.mu.Unlock()
		go a.watchQR(qrChan)
	}

	a.logger.Info("connecting to WhatsApp", zap.Bool("paired", a.client.Store.ID != nil))
	if err := a.client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (a *Adapter) watchQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			a.emit(Event{Kind: EventQR, QRCode: item.Code})
		case "success":
			// PairSuccess carries the authentication.
		case "timeout":
			a.emit(Event{Kind: EventDisconnected, Reason: ReasonQRTimeout})
		default:
			reason := item.Event
			if item.Error != nil {
				reason = item.Error.Error()
			}
			a.emit(Event{Kind: EventAuthFailure, Reason: reason})
		}
	}
}

// Destroy disconnects and releases the device store. Events stop
// immediately.
func (a *Adapter) Destroy(ctx context.Context) error {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return nil
	}
	a.destroyed = true
	a.handler = nil
	stop := a.stopQR
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
	a.client.RemoveEventHandlers()
	a.client.Disconnect()
	if err := a.container.Close(); err != nil {
		return fmt.Errorf("close session store: %w", err)
	}
	return nil
}

// Logout unlinks this device from the account.
func (a *Adapter) Logout(ctx context.Context) error {
	if err := a.client.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	a.emit(Event{Kind: EventDisconnected, Reason: ReasonLogout})
	return nil
}

// Contacts returns every contact of the device store, ordered by id.
func (a *Adapter) Contacts(ctx context.Context) ([]RawContact, error) {
	all, err := a.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("get contacts: %w", err)
	}
	out := make([]RawContact, 0, len(all))
	for jid, info := range all {
		pn := a.ResolveLID(ctx, jid.ToNonAD())
		name := firstNonEmpty(info.FullName, info.FirstName, info.BusinessName)
		out = append(out, RawContact{
			ID:          pn.String(),
			Number:      pn.User,
			Name:        name,
			PushName:    info.PushName,
			IsGroup:     pn.Server == types.GroupServer,
			IsMyContact: info.FullName != "" || info.FirstName != "",
		})
	}
	slices.SortFunc(out, func(x, y RawContact) int { return strings.Compare(x.ID, y.ID) })
	return out, nil
}

// Chats returns journaled chats plus joined groups that have no
// journaled activity yet.
func (a *Adapter) Chats(ctx context.Context) ([]RawChat, error) {
	rows, err := a.journal.ListChats(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	chats := make([]RawChat, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, r := range rows {
		index[r.JID] = len(chats)
		chats = append(chats, a.chatFromRow(ctx, r))
	}

	groups, err := a.client.GetJoinedGroups(ctx)
	if err != nil {
		a.logger.Warn("list joined groups", zap.Error(err))
		return chats, nil
	}
	for _, g := range groups {
		id := g.JID.String()
		if i, ok := index[id]; ok {
			if chats[i].Name == "" {
				chats[i].Name = g.Name
			}
			continue
		}
		chats = append(chats, RawChat{ID: id, Name: g.Name, IsGroup: true})
	}
	return chats, nil
}

// ChatByID returns one chat. Contacts without journaled activity are
// still reported, without a last message.
func (a *Adapter) ChatByID(ctx context.Context, id string) (RawChat, error) {
	jid, err := ParseRecipient(id)
	if err != nil {
		return RawChat{}, fmt.Errorf("%w: %v", ErrChatNotFound, err)
	}
	jid = a.ResolveLID(ctx, jid)
	row, err := a.journal.GetChat(ctx, jid.String())
	if err != nil {
		return RawChat{}, fmt.Errorf("get chat: %w", err)
	}
	if row != nil {
		return a.chatFromRow(ctx, *row), nil
	}
	if name := a.contactName(ctx, jid); name != "" {
		return RawChat{ID: jid.String(), Name: name, IsGroup: jid.Server == types.GroupServer}, nil
	}
	return RawChat{}, fmt.Errorf("%w: %s", ErrChatNotFound, jid)
}

// FetchMessages returns up to limit of the most recent messages of a chat
// in chronological order.
func (a *Adapter) FetchMessages(ctx context.Context, chatID string, limit int) ([]RawMessage, error) {
	jid, err := ParseRecipient(chatID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChatNotFound, err)
	}
	jid = a.ResolveLID(ctx, jid)
	rows, err := a.journal.ListMessages(ctx, jid.String(), 0, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	self := a.selfJID()
	out := make([]RawMessage, len(rows))
	for i, m := range rows {
		// Rows come newest first.
		out[len(rows)-1-i] = rawFromStore(m, self)
	}
	return out, nil
}

// SendText sends a text message and returns the server message id.
func (a *Adapter) SendText(ctx context.Context, to, body string) (string, error) {
	jid, err := ParseRecipient(to)
	if err != nil {
		return "", err
	}
	resp, err := a.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}

	if a.bus != nil {
		a.bus.Emit(bus.KindMessage, LiveMessage{
			Message: &store.Message{
				ChatJID:     jid.String(),
				MsgID:       resp.ID,
				SenderJID:   a.selfJID(),
				Body:        body,
				MessageType: "text",
				FromMe:      true,
				Timestamp:   resp.Timestamp.UnixMilli(),
			},
			IsGroup: jid.Server == types.GroupServer,
		})
	}
	return resp.ID, nil
}

func (a *Adapter) chatFromRow(ctx context.Context, r store.ChatRow) RawChat {
	chat := RawChat{
		ID:          r.JID,
		Name:        r.Name,
		IsGroup:     r.IsGroup || IsGroupJID(r.JID),
		UnreadCount: r.UnreadCount,
	}
	if chat.Name == "" && !chat.IsGroup {
		if jid, err := types.ParseJID(r.JID); err == nil {
			chat.Name = a.contactName(ctx, jid)
		}
	}
	if r.LastMessageAt > 0 {
		last := rawFromStore(store.Message{
			ChatJID:   r.JID,
			Body:      r.LastMessagePreview,
			SenderJID: r.LastMessageFrom,
			Timestamp: r.LastMessageAt,
		}, a.selfJID())
		if r.LastMessageFrom != "" {
			last.From = r.LastMessageFrom
		}
		chat.LastMessage = &last
	}
	return chat
}

func (a *Adapter) contactName(ctx context.Context, jid types.JID) string {
	if a.client == nil || a.client.Store == nil || a.client.Store.Contacts == nil {
		return ""
	}
	info, err := a.client.Store.Contacts.GetContact(ctx, jid)
	if err != nil || !info.Found {
		return ""
	}
	return firstNonEmpty(info.FullName, info.FirstName, info.PushName, info.BusinessName)
}

func (a *Adapter) selfJID() string {
	if a.client == nil || a.client.Store == nil || a.client.Store.ID == nil {
		return ""
	}
	return a.client.Store.ID.ToNonAD().String()
}

// ResolveLID maps a LID JID to its phone-number JID using the device
// store. Other JIDs, and LIDs without a known mapping, pass through.
func (a *Adapter) ResolveLID(ctx context.Context, jid types.JID) types.JID {
	if jid.Server != types.HiddenUserServer && jid.Server != types.HostedLIDServer {
		return jid
	}
	if a.client == nil || a.client.Store == nil || a.client.Store.LIDs == nil {
		return jid
	}
	pn, err := a.client.Store.LIDs.GetPNForLID(ctx, jid)
	if err != nil || pn.IsEmpty() {
		return jid
	}
	return pn
}

// resolveJID normalizes a JID string and resolves LIDs where possible.
func (a *Adapter) resolveJID(jidStr string) string {
	normalized := NormalizeJID(jidStr)
	jid, err := types.ParseJID(normalized)
	if err != nil {
		return normalized
	}
	return a.ResolveLID(context.Background(), jid).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

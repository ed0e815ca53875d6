// Package tui is a terminal client for the daemon's HTTP API.
package tui

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/wppbridge/internal/store"
	"github.com/matheus3301/wppbridge/internal/tui/keys"
	"github.com/matheus3301/wppbridge/internal/tui/model"
	"github.com/matheus3301/wppbridge/internal/tui/views"
)

const (
	pageChats   = "chats"
	pageChat    = "chat"
	pageSearch  = "search"
	pageAuth    = "auth"
	pageHelp    = "help"
	pageConfirm = "confirm"

	flashShort = 3 * time.Second
	flashLong  = 8 * time.Second
)

// Options tunes the refresh loops.
type Options struct {
	// Addr is shown in the status bar when the daemon is unreachable.
	Addr string
	// Refresh is how often the connection status is fetched.
	Refresh time.Duration
	// Poll is how often the open conversation is refetched.
	Poll time.Duration
}

// App is the terminal UI. Widgets are only touched on the tview event
// goroutine; daemon calls run in background goroutines that hand their
// results back through QueueUpdateDraw.
type App struct {
	app   *tview.Application
	pages *tview.Pages
	keys  *keys.Registry
	vm    *model.ViewModel
	opts  Options

	chatList  *views.ChatList
	msgView   *views.MessageView
	composer  *views.Composer
	search    *views.ContactSearch
	auth      *views.AuthView
	help      *views.HelpView
	statusBar *views.StatusBar

	ctx      context.Context
	cancel   context.CancelFunc
	syncing  atomic.Bool
	lastPage string
}

func NewApp(vm *model.ViewModel, opts Options) *App {
	if opts.Refresh <= 0 {
		opts.Refresh = 5 * time.Second
	}
	if opts.Poll <= 0 {
		opts.Poll = time.Second
	}
	theme := views.DefaultTheme()
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		keys:      keys.NewRegistry(),
		vm:        vm,
		opts:      opts,
		chatList:  views.NewChatList(theme),
		msgView:   views.NewMessageView(theme),
		auth:      views.NewAuthView(theme),
		help:      views.NewHelpView(theme),
		statusBar: views.NewStatusBar(theme, opts.Addr),
		ctx:       ctx,
		cancel:    cancel,
		lastPage:  pageChats,
	}
	a.composer = views.NewComposer(theme, a.send)
	a.search = views.NewContactSearch(theme, vm.SearchContacts, a.startChat)

	a.auth.ShowMessage("Connecting to the daemon...")
	a.setupBindings()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.keys.Bind(keys.Global,
		keys.Rune('q', "q quit", a.Stop),
		keys.Rune('?', "? help", a.showHelp),
		keys.Rune('s', "s sync", a.smartSync),
		keys.Rune('n', "n new chat", a.showSearch),
		keys.Rune('c', "c connect", a.connect),
		keys.Rune('R', "R reset account", a.confirmReset),
		keys.Key(tcell.KeyCtrlR, "", a.smartSync),
	)
	a.keys.Bind(pageChats,
		keys.Key(tcell.KeyEnter, "Enter open", a.openSelected),
		keys.Rune('r', "r refresh", a.smartSync),
	)
	a.keys.Bind(pageChat,
		keys.Rune('i', "i write", func() { a.app.SetFocus(a.composer.InputField) }),
		keys.Key(tcell.KeyTab, "Tab scroll/write", a.toggleChatFocus),
		keys.Key(tcell.KeyEscape, "Esc back", a.back),
	)
	a.keys.Bind(pageSearch,
		keys.Rune('/', "/ edit query", func() { a.app.SetFocus(a.search.Input) }),
		keys.Key(tcell.KeyEscape, "Esc back", a.back),
	)
	a.keys.Bind(pageAuth, keys.Key(tcell.KeyEscape, "Esc back", a.back))
	a.keys.Bind(pageHelp, keys.Key(tcell.KeyEscape, "Esc back", a.back))
}

func (a *App) setupLayout() {
	chat := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer.InputField, 1, 0, true)

	a.search.Input.SetDoneFunc(func(key tcell.Key) {
		if a.search.InputDone(key) {
			a.app.SetFocus(a.search.Results)
		}
	})

	a.pages.AddPage(pageChats, a.chatList, true, true)
	a.pages.AddPage(pageChat, chat, true, false)
	a.pages.AddPage(pageSearch, a.search, true, false)
	a.pages.AddPage(pageAuth, a.auth, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)
	a.app.SetRoot(root, true)
	a.app.SetInputCapture(a.capture)
}

func (a *App) capture(ev *tcell.EventKey) *tcell.EventKey {
	page := a.page()
	if page == pageConfirm {
		return ev
	}
	if ev.Key() == tcell.KeyEscape {
		a.back()
		return nil
	}
	if page == pageChat && ev.Key() == tcell.KeyTab {
		a.toggleChatFocus()
		return nil
	}
	// Text fields get every other key.
	if _, ok := a.app.GetFocus().(*tview.InputField); ok {
		return ev
	}
	if a.keys.Handle(page, ev) {
		return nil
	}
	return ev
}

// Run starts the UI and blocks until it quits.
func (a *App) Run() error {
	a.renderStatus()
	go a.start()
	go a.loop()
	defer a.cancel()
	return a.app.Run()
}

func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

func (a *App) start() {
	err := a.vm.LoadStatus(a.ctx)
	a.app.QueueUpdateDraw(a.applyStatus)
	if err != nil {
		a.vm.Flash.Error("daemon unreachable: "+err.Error(), flashLong)
		return
	}
	if !a.vm.NeedsPairing() {
		a.smartSync()
	}
}

// loop refetches the status every Refresh and the open conversation every
// Poll until the app stops.
func (a *App) loop() {
	status := time.NewTicker(a.opts.Refresh)
	defer status.Stop()
	poll := time.NewTicker(a.opts.Poll)
	defer poll.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-status.C:
			_ = a.vm.LoadStatus(a.ctx)
			a.app.QueueUpdateDraw(a.applyStatus)
		case <-poll.C:
			changed, err := a.vm.PollActive(a.ctx)
			if err != nil && a.ctx.Err() == nil {
				a.vm.Flash.Warn("refresh failed: "+err.Error(), flashShort)
			}
			a.app.QueueUpdateDraw(func() {
				if changed {
					a.msgView.Show(a.vm.Active())
				}
				a.renderStatus()
			})
		}
	}
}

// applyStatus moves to the QR screen while the daemon waits for a scan
// and back to the chat list once pairing completes.
func (a *App) applyStatus() {
	st, _ := a.vm.Status()
	page := a.page()
	switch {
	case a.vm.NeedsPairing():
		if st.QR != "" {
			a.auth.ShowQR(st.QR)
		} else {
			a.auth.ShowMessage("Waiting for a QR code...")
		}
		if page != pageAuth && page != pageConfirm {
			a.switchTo(pageAuth, a.auth)
		}
	case page == pageAuth && a.vm.Ready():
		a.vm.Flash.Info("Device linked", flashShort)
		a.switchTo(pageChats, a.chatList)
		a.smartSync()
	case page == pageAuth:
		a.auth.ShowMessage(fmt.Sprintf("Connection is %s. Press c to connect.", st.Status))
	}
	a.renderStatus()
}

// smartSync refreshes the lists in the background. Only one runs at a
// time.
func (a *App) smartSync() {
	if !a.syncing.CompareAndSwap(false, true) {
		return
	}
	a.vm.Flash.Info("Syncing...", flashLong)
	a.renderStatusAsync()
	go func() {
		defer a.syncing.Store(false)
		sum, err := a.vm.SmartSync(a.ctx)
		switch {
		case err != nil:
			a.vm.Flash.Error("sync failed: "+err.Error(), flashLong)
		case sum.Offline:
			a.vm.Flash.Warn(fmt.Sprintf("Offline: %d cached chats", sum.Chats), flashLong)
		default:
			a.vm.Flash.Info(fmt.Sprintf("Synced %d chats and %d contacts", sum.Chats, sum.Contacts), flashShort)
		}
		a.app.QueueUpdateDraw(func() {
			a.chatList.Update(a.vm.Chats())
			a.renderStatus()
		})
	}()
}

func (a *App) openSelected() {
	chat, ok := a.chatList.SelectedChat()
	if !ok {
		return
	}
	a.openChat(func(ctx context.Context) error {
		return a.vm.OpenChat(ctx, chat.ID, chat.Name)
	})
}

func (a *App) startChat(contact store.Contact) {
	a.openChat(func(ctx context.Context) error {
		return a.vm.StartChatWithContact(ctx, contact)
	})
}

func (a *App) openChat(load func(context.Context) error) {
	go func() {
		if err := load(a.ctx); err != nil {
			a.vm.Flash.Error("cannot open chat: "+err.Error(), flashLong)
			a.renderStatusAsync()
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.msgView.Show(a.vm.Active())
			a.composer.SetText("")
			a.switchTo(pageChat, a.composer.InputField)
		})
	}()
}

func (a *App) send(text string) {
	go func() {
		err := a.vm.Send(a.ctx, text)
		if err != nil {
			a.vm.Flash.Error("send failed: "+err.Error(), flashLong)
		}
		a.app.QueueUpdateDraw(func() {
			if err == nil {
				a.msgView.Show(a.vm.Active())
			}
			a.renderStatus()
		})
	}()
}

func (a *App) connect() {
	go func() {
		msg, err := a.vm.Connect(a.ctx)
		if err != nil {
			a.vm.Flash.Warn(err.Error(), flashLong)
		} else {
			a.vm.Flash.Info(msg, flashShort)
		}
		a.renderStatusAsync()
	}()
}

func (a *App) confirmReset() {
	modal := tview.NewModal().
		SetText("Reset the account? The session and all cached data are wiped and a new QR code is needed.").
		AddButtons([]string{"Cancel", "Reset"}).
		SetDoneFunc(func(_ int, label string) {
			a.pages.RemovePage(pageConfirm)
			a.app.SetFocus(a.pages)
			if label == "Reset" {
				a.reset()
			}
		})
	a.pages.AddPage(pageConfirm, modal, false, true)
	a.app.SetFocus(modal)
}

func (a *App) reset() {
	go func() {
		msg, err := a.vm.Reset(a.ctx)
		if err != nil {
			a.vm.Flash.Error("reset failed: "+err.Error(), flashLong)
		} else {
			a.vm.Flash.Info(msg, flashShort)
		}
		_ = a.vm.LoadStatus(a.ctx)
		a.app.QueueUpdateDraw(func() {
			a.chatList.Update(a.vm.Chats())
			a.search.Reset()
			a.applyStatus()
		})
	}()
}

// toggleChatFocus moves between the composer and the message history,
// which scrolls with the arrow keys.
func (a *App) toggleChatFocus() {
	if a.composer.HasFocus() {
		a.app.SetFocus(a.msgView)
		return
	}
	a.app.SetFocus(a.composer.InputField)
}

func (a *App) showSearch() {
	a.search.Reset()
	a.switchTo(pageSearch, a.search.Input)
}

func (a *App) showHelp() {
	sections := make([]views.HelpSection, 0, 5)
	for _, s := range []struct{ title, page string }{
		{"Everywhere", keys.Global},
		{"Chat list", pageChats},
		{"Conversation", pageChat},
		{"New chat", pageSearch},
		{"Link device", pageAuth},
	} {
		sections = append(sections, views.HelpSection{Title: s.title, Hints: a.keys.Hints(s.page)})
	}
	a.help.Show(sections)
	a.switchTo(pageHelp, a.help)
}

// back leaves the current page. The conversation is closed so it stops
// being polled.
func (a *App) back() {
	switch a.page() {
	case pageChat:
		a.vm.CloseChat()
		a.switchTo(pageChats, a.chatList)
	case pageHelp:
		a.switchTo(a.lastPage, nil)
	case pageSearch, pageAuth:
		a.switchTo(pageChats, a.chatList)
	}
}

// switchTo shows page and focuses focus, or the page itself when focus
// is nil.
func (a *App) switchTo(page string, focus tview.Primitive) {
	if cur := a.page(); cur != pageHelp && cur != page {
		a.lastPage = cur
	}
	a.pages.SwitchToPage(page)
	if focus == nil {
		_, focus = a.pages.GetFrontPage()
	}
	a.app.SetFocus(focus)
	a.renderStatus()
}

func (a *App) page() string {
	name, _ := a.pages.GetFrontPage()
	return name
}

func (a *App) renderStatus() {
	st, reachable := a.vm.Status()
	msg, level := a.vm.Flash.Get()
	a.statusBar.Render(st, reachable, msg, level, a.keys.Hints(a.page()))
}

func (a *App) renderStatusAsync() {
	a.app.QueueUpdateDraw(a.renderStatus)
}

package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/tui/model"
)

// StatusBar is the one line footer: connection state, cache counts, the
// current flash message and key hints.
type StatusBar struct {
	*tview.TextView
	theme *Theme
	addr  string
}

func NewStatusBar(theme *Theme, addr string) *StatusBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.StatusBarBg)
	tv.SetTextColor(theme.Fg)
	return &StatusBar{TextView: tv, theme: theme, addr: addr}
}

// Render redraws the bar.
func (sb *StatusBar) Render(st api.StatusResponse, reachable bool, flash string, level model.Level, hints []string) {
	sb.SetText(renderStatus(sb.theme, sb.addr, st, reachable, flash, level, hints))
}

func renderStatus(theme *Theme, addr string, st api.StatusResponse, reachable bool, flash string, level model.Level, hints []string) string {
	var sb strings.Builder
	switch {
	case !reachable:
		fmt.Fprintf(&sb, " [%s::b]daemon down[-::-] %s", tag(theme.FlashError), tview.Escape(addr))
	case st.Ready:
		fmt.Fprintf(&sb, " [%s::b]%s[-::-] %d chats %d contacts", tag(theme.Accent), st.Status, st.ChatsCount, st.ContactsCount)
	default:
		fmt.Fprintf(&sb, " [%s::b]%s[-::-] offline, %d chats cached", tag(theme.FlashWarn), st.Status, st.ChatsCount)
	}

	if flash != "" {
		color := theme.FlashInfo
		switch level {
		case model.LevelWarn:
			color = theme.FlashWarn
		case model.LevelError:
			color = theme.FlashError
		}
		fmt.Fprintf(&sb, " | [%s]%s[-]", tag(color), tview.Escape(flash))
	}
	if len(hints) > 0 {
		fmt.Fprintf(&sb, " | [%s]%s[-]", tag(theme.Muted), tview.Escape(strings.Join(hints, "  ")))
	}
	return sb.String()
}

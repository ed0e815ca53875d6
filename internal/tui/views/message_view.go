package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/store"
)

// MessageView renders the open conversation, oldest message at the top.
type MessageView struct {
	*tview.TextView
	theme *Theme
	now   func() time.Time
}

func NewMessageView(theme *Theme) *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true).
		SetScrollable(true)
	tv.SetBorder(true).
		SetTitleColor(theme.Title).
		SetBorderColor(theme.Border)
	tv.SetBackgroundColor(theme.Bg)
	tv.SetTextColor(theme.Fg)
	return &MessageView{TextView: tv, theme: theme, now: time.Now}
}

// Show replaces the conversation and scrolls to the newest message.
func (mv *MessageView) Show(chat store.Chat, msgs []api.MessageView) {
	mv.SetTitle(" " + tview.Escape(oneLine(chat.Name, 60)) + " ")
	mv.Clear()
	_, _ = mv.Write([]byte(renderConversation(mv.theme, chat, msgs, mv.now())))
	mv.ScrollToEnd()
}

func renderConversation(theme *Theme, chat store.Chat, msgs []api.MessageView, now time.Time) string {
	if len(msgs) == 0 {
		return fmt.Sprintf("[%s]No messages yet. Press i to write.[-]", tag(theme.Muted))
	}
	var sb strings.Builder
	for _, m := range msgs {
		sender, color := chat.Name, theme.Accent
		switch {
		case m.FromMe:
			sender, color = "You", theme.Title
		case chat.IsGroup && m.Author != "":
			sender = m.Author
		}
		fmt.Fprintf(&sb, "[%s]%s[-] [%s::b]%s[-::-]\n", tag(theme.Muted), formatTime(m.Timestamp, now), tag(color), display(sender))
		body := display(m.Body)
		if m.IsForwarded {
			body = fmt.Sprintf("[%s::i]forwarded[-::-] %s", tag(theme.Muted), body)
		}
		sb.WriteString(body)
		sb.WriteString("\n\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

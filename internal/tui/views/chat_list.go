package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/wppbridge/internal/store"
)

// ChatList is the table of synced chats, most recent first as the daemon
// orders them.
type ChatList struct {
	*tview.Table
	theme *Theme
	chats []store.Chat
	now   func() time.Time
}

func NewChatList(theme *Theme) *ChatList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true).
		SetTitle(" Chats ").
		SetTitleColor(theme.Title).
		SetBorderColor(theme.Border)
	table.SetBackgroundColor(theme.Bg)
	table.SetSelectedStyle(theme.selected())
	return &ChatList{Table: table, theme: theme, now: time.Now}
}

// Update replaces the rows, keeping the selection on the same chat when it
// is still listed. cached marks the list as served from the local cache.
func (cl *ChatList) Update(chats []store.Chat, cached bool) {
	selected, _ := cl.SelectedChat()
	cl.chats = chats
	cl.Clear()

	title := fmt.Sprintf(" Chats (%d) ", len(chats))
	if cached {
		title = fmt.Sprintf(" Chats (%d, offline) ", len(chats))
	}
	cl.SetTitle(title)

	for col, h := range []string{"Name", "Last message", "Time"} {
		cl.SetCell(0, col, tview.NewTableCell(" "+h).
			SetSelectable(false).
			SetTextColor(cl.theme.HeaderFg).
			SetAttributes(tcell.AttrBold))
	}

	now := cl.now()
	row := 1
	for i, chat := range chats {
		name := oneLine(chat.Name, 30)
		if chat.IsGroup {
			name = "# " + name
		}
		if chat.UnreadCount > 0 {
			name = fmt.Sprintf("%s (%d)", name, chat.UnreadCount)
		}
		var last string
		var at int64
		if chat.LastMessage != nil {
			last, at = oneLine(chat.LastMessage.Body, 50), chat.LastMessage.Timestamp
		}

		nameCell := tview.NewTableCell(" " + name).SetExpansion(1).SetTextColor(cl.theme.Fg)
		if chat.UnreadCount > 0 {
			nameCell.SetTextColor(cl.theme.Accent)
		}
		cl.SetCell(i+1, 0, nameCell)
		cl.SetCell(i+1, 1, tview.NewTableCell(" "+last).SetExpansion(2).SetTextColor(cl.theme.Muted))
		cl.SetCell(i+1, 2, tview.NewTableCell(" "+formatTime(at, now)).SetTextColor(cl.theme.Muted))
		if chat.ID == selected.ID {
			row = i + 1
		}
	}
	if len(chats) > 0 {
		cl.Select(row, 0)
	}
}

// SelectedChat returns the chat under the cursor.
func (cl *ChatList) SelectedChat() (store.Chat, bool) {
	row, _ := cl.GetSelection()
	if row < 1 || row > len(cl.chats) {
		return store.Chat{}, false
	}
	return cl.chats[row-1], true
}

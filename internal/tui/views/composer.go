package views

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Composer is the single line message input under the conversation.
type Composer struct {
	*tview.InputField
	onSend func(string)
}

func NewComposer(theme *Theme, onSend func(string)) *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetPlaceholder("Type a message, Enter to send, Esc to leave").
		SetFieldBackgroundColor(theme.Bg).
		SetFieldTextColor(theme.Fg).
		SetLabelColor(theme.Accent).
		SetPlaceholderTextColor(theme.Muted)
	input.SetBackgroundColor(theme.Bg)

	c := &Composer{InputField: input, onSend: onSend}
	input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := strings.TrimSpace(input.GetText())
		if text == "" {
			return
		}
		input.SetText("")
		c.onSend(text)
	})
	return c
}

// Package views holds the tview widgets of the terminal UI.
package views

import "github.com/gdamore/tcell/v2"

// Theme holds the colors every view draws with.
type Theme struct {
	Bg          tcell.Color
	Fg          tcell.Color
	Border      tcell.Color
	Title       tcell.Color
	HeaderFg    tcell.Color
	CursorFg    tcell.Color
	CursorBg    tcell.Color
	Accent      tcell.Color
	Muted       tcell.Color
	FlashInfo   tcell.Color
	FlashWarn   tcell.Color
	FlashError  tcell.Color
	StatusBarBg tcell.Color
}

// DefaultTheme is a dark theme with WhatsApp green accents.
func DefaultTheme() *Theme {
	return &Theme{
		Bg:          tcell.ColorBlack,
		Fg:          tcell.ColorWhiteSmoke,
		Border:      tcell.ColorSeaGreen,
		Title:       tcell.ColorLimeGreen,
		HeaderFg:    tcell.ColorWhite,
		CursorFg:    tcell.ColorBlack,
		CursorBg:    tcell.ColorMediumSeaGreen,
		Accent:      tcell.ColorLimeGreen,
		Muted:       tcell.ColorGray,
		FlashInfo:   tcell.ColorNavajoWhite,
		FlashWarn:   tcell.ColorOrange,
		FlashError:  tcell.ColorOrangeRed,
		StatusBarBg: tcell.ColorDarkGreen,
	}
}

// tag renders c as a tview color tag name.
func tag(c tcell.Color) string {
	return c.CSS()
}

// selected is the style of the row under the cursor.
func (t *Theme) selected() tcell.Style {
	return tcell.StyleDefault.Foreground(t.CursorFg).Background(t.CursorBg)
}

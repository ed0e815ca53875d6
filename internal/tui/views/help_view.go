package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// HelpSection is one titled block of key hints.
type HelpSection struct {
	Title string
	Hints []string
}

// HelpView lists the key bindings of every screen.
type HelpView struct {
	*tview.TextView
	theme *Theme
}

func NewHelpView(theme *Theme) *HelpView {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBorder(true).
		SetTitle(" Help ").
		SetTitleColor(theme.Title).
		SetBorderColor(theme.Border)
	tv.SetBackgroundColor(theme.Bg)
	tv.SetTextColor(theme.Fg)
	return &HelpView{TextView: tv, theme: theme}
}

func (hv *HelpView) Show(sections []HelpSection) {
	var sb strings.Builder
	for _, s := range sections {
		fmt.Fprintf(&sb, "\n [%s::b]%s[-::-]\n", tag(hv.theme.Accent), tview.Escape(s.Title))
		for _, h := range s.Hints {
			fmt.Fprintf(&sb, "   %s\n", tview.Escape(h))
		}
	}
	fmt.Fprintf(&sb, "\n [%s]Esc to go back[-]", tag(hv.theme.Muted))
	hv.SetText(sb.String())
	hv.ScrollToBeginning()
}

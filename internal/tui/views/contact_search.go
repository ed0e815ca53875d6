package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/wppbridge/internal/store"
)

// ContactSearch is a query field over a result table. Typing filters,
// Enter or Tab moves to the results, Enter on a result picks it.
type ContactSearch struct {
	*tview.Flex
	Input   *tview.InputField
	Results *tview.Table

	theme    *Theme
	contacts []store.Contact
	search   func(query string) []store.Contact
	onPick   func(store.Contact)
}

// NewContactSearch creates the view. search runs on every keystroke.
func NewContactSearch(theme *Theme, search func(string) []store.Contact, onPick func(store.Contact)) *ContactSearch {
	cs := &ContactSearch{
		Input:   tview.NewInputField().SetLabel(" Name: "),
		Results: tview.NewTable().SetSelectable(true, false),
		theme:   theme,
		search:  search,
		onPick:  onPick,
	}
	cs.Input.SetFieldBackgroundColor(theme.Bg).
		SetFieldTextColor(theme.Fg).
		SetLabelColor(theme.Accent)
	cs.Input.SetBackgroundColor(theme.Bg)
	cs.Input.SetChangedFunc(cs.Query)

	cs.Results.SetBackgroundColor(theme.Bg)
	cs.Results.SetSelectedStyle(theme.selected())
	cs.Results.SetSelectedFunc(func(row, _ int) {
		if c, ok := cs.Selected(); ok && cs.onPick != nil {
			cs.onPick(c)
		}
	})

	cs.Flex = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(cs.Input, 1, 0, true).
		AddItem(cs.Results, 0, 1, false)
	cs.Flex.SetBorder(true).
		SetTitle(" New chat ").
		SetTitleColor(theme.Title).
		SetBorderColor(theme.Border)
	cs.Flex.SetBackgroundColor(theme.Bg)
	return cs
}

// Reset clears the query and the results.
func (cs *ContactSearch) Reset() {
	cs.Input.SetText("")
	cs.show(nil, "")
}

// Query replaces the results with the contacts matching query.
func (cs *ContactSearch) Query(query string) {
	cs.show(cs.search(query), query)
}

func (cs *ContactSearch) show(contacts []store.Contact, query string) {
	cs.contacts = contacts
	cs.Results.Clear()
	if len(contacts) == 0 {
		msg := " Type part of a contact name"
		if query != "" {
			msg = " No contacts match"
		}
		cs.Results.SetCell(0, 0, tview.NewTableCell(msg).SetSelectable(false).SetTextColor(cs.theme.Muted))
		return
	}
	for i, c := range contacts {
		cs.Results.SetCell(i, 0, tview.NewTableCell(" "+oneLine(c.Name, 40)).SetExpansion(1).SetTextColor(cs.theme.Fg))
		cs.Results.SetCell(i, 1, tview.NewTableCell(" "+c.Number).SetTextColor(cs.theme.Muted))
	}
	cs.Results.Select(0, 0)
}

// Selected returns the contact under the result cursor.
func (cs *ContactSearch) Selected() (store.Contact, bool) {
	row, _ := cs.Results.GetSelection()
	if row < 0 || row >= len(cs.contacts) {
		return store.Contact{}, false
	}
	return cs.contacts[row], true
}

// InputDone reports whether key should move focus from the query to the
// results.
func (cs *ContactSearch) InputDone(key tcell.Key) bool {
	return (key == tcell.KeyEnter || key == tcell.KeyTab) && len(cs.contacts) > 0
}

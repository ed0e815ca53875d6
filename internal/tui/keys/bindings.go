// Package keys maps key presses to UI actions per page.
package keys

import "github.com/gdamore/tcell/v2"

// Global is the scope whose bindings apply on every page.
const Global = ""

// Binding is one key and what it does.
type Binding struct {
	Key     tcell.Key
	Rune    rune
	Hint    string
	Handler func()
}

// Matches reports whether ev triggers b.
func (b Binding) Matches(ev *tcell.EventKey) bool {
	if b.Key != tcell.KeyRune {
		return ev.Key() == b.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == b.Rune
}

// Rune binds the printable key r.
func Rune(r rune, hint string, fn func()) Binding {
	return Binding{Key: tcell.KeyRune, Rune: r, Hint: hint, Handler: fn}
}

// Key binds the special key k.
func Key(k tcell.Key, hint string, fn func()) Binding {
	return Binding{Key: k, Hint: hint, Handler: fn}
}

// Registry holds bindings in registration order, per page.
type Registry struct {
	scopes map[string][]Binding
}

func NewRegistry() *Registry {
	return &Registry{scopes: make(map[string][]Binding)}
}

// Bind adds bindings to page. Use Global for keys valid everywhere.
func (r *Registry) Bind(page string, bindings ...Binding) {
	r.scopes[page] = append(r.scopes[page], bindings...)
}

// Hints lists the hints shown on page, page bindings first. Bindings with
// an empty hint are hidden.
func (r *Registry) Hints(page string) []string {
	var hints []string
	for _, scope := range []string{page, Global} {
		for _, b := range r.scopes[scope] {
			if b.Hint != "" {
				hints = append(hints, b.Hint)
			}
		}
		if page == Global {
			break
		}
	}
	return hints
}

// Handle runs the first binding of page, then of Global, that matches ev.
// It reports whether one did.
func (r *Registry) Handle(page string, ev *tcell.EventKey) bool {
	for _, scope := range []string{page, Global} {
		for _, b := range r.scopes[scope] {
			if b.Matches(ev) {
				b.Handler()
				return true
			}
		}
		if page == Global {
			break
		}
	}
	return false
}

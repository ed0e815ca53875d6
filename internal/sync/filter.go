package sync

import (
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/matheus3301/wppbridge/internal/store"
	"github.com/matheus3301/wppbridge/internal/wa"
)

var (
	// A usable name has at least one Latin letter, accented ones included.
	letterRegexp = regexp.MustCompile(`[a-zA-ZÀ-ÿ\x{0100}-\x{017F}\x{0180}-\x{024F}\x{1E00}-\x{1EFF}]`)
	// Names that are nothing but a formatted phone number.
	phoneRegexp = regexp.MustCompile(`^[+\-\s()\d]+$`)
)

// displayName is the name a contact is listed under.
func displayName(c wa.RawContact) string {
	if c.Name != "" {
		return c.Name
	}
	return c.PushName
}

// keepContact reports whether a raw contact belongs in the contact list.
func keepContact(c wa.RawContact) bool {
	if c.IsGroup || !c.IsMyContact {
		return false
	}
	name := displayName(c)
	if utf8.RuneCountInString(name) < 2 {
		return false
	}
	if !letterRegexp.MatchString(name) {
		return false
	}
	return !phoneRegexp.MatchString(strings.TrimSpace(name))
}

// FilterContacts keeps the real, named, non-group contacts of raw,
// collapses entries sharing a number (or id, when the number is unknown)
// keeping the first one seen, and sorts by name under locale.
func FilterContacts(raw []wa.RawContact, locale language.Tag, logger *zap.Logger) []store.Contact {
	seen := make(map[string]struct{}, len(raw))
	out := make([]store.Contact, 0, len(raw))
	for _, c := range raw {
		if c.ID == "" && c.Number == "" {
			logger.Warn("skipping contact without id or number", zap.String("name", displayName(c)))
			continue
		}
		if !keepContact(c) {
			continue
		}
		key := c.Number
		if key == "" {
			key = c.ID
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, store.Contact{
			ID:          c.ID,
			Name:        displayName(c),
			Number:      c.Number,
			IsGroup:     false,
			IsMyContact: true,
		})
	}
	sortContacts(out, locale)
	return out
}

// sortContacts orders contacts by name with locale-aware collation. Equal
// names keep their relative order.
func sortContacts(contacts []store.Contact, locale language.Tag) {
	// Collators are not safe for concurrent use.
	col := collate.New(locale)
	slices.SortStableFunc(contacts, func(a, b store.Contact) int {
		return col.CompareString(a.Name, b.Name)
	})
}

// mapChats converts raw chats, skipping entries without an id.
func mapChats(raw []wa.RawChat, logger *zap.Logger) []store.Chat {
	out := make([]store.Chat, 0, len(raw))
	for _, c := range raw {
		if c.ID == "" {
			logger.Warn("skipping chat without id", zap.String("name", c.Name))
			continue
		}
		chat := store.Chat{
			ID:          c.ID,
			Name:        c.Name,
			IsGroup:     c.IsGroup,
			UnreadCount: c.UnreadCount,
		}
		if m := c.LastMessage; m != nil {
			chat.LastMessage = &store.LastMessage{
				Body:      m.Body,
				Timestamp: m.Timestamp.Unix(),
				From:      m.From,
			}
		}
		out = append(out, chat)
	}
	return out
}

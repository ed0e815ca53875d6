package wa

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// NormalizeJID strips device and agent suffixes from a JID string so the
// same user always maps to one chat. Unparseable input is returned as-is.
func NormalizeJID(jidStr string) string {
	if jidStr == "" {
		return ""
	}
	jid, err := types.ParseJID(jidStr)
	if err != nil {
		return jidStr
	}
	return jid.ToNonAD().String()
}

// ParseRecipient accepts a bare phone number ("+55 85 9999-0000"), a
// legacy "<number>@c.us" id or a full JID and returns the target JID.
func ParseRecipient(to string) (types.JID, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return types.EmptyJID, fmt.Errorf("empty recipient")
	}
	if user, ok := strings.CutSuffix(to, "@c.us"); ok {
		to = user + "@" + types.DefaultUserServer
	}
	if !strings.Contains(to, "@") {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, to)
		if digits == "" {
			return types.EmptyJID, fmt.Errorf("recipient %q has no digits", to)
		}
		return types.NewJID(digits, types.DefaultUserServer), nil
	}
	jid, err := types.ParseJID(to)
	if err != nil {
		return types.EmptyJID, fmt.Errorf("parse recipient %q: %w", to, err)
	}
	return jid.ToNonAD(), nil
}

// IsGroupJID reports whether id names a group chat.
func IsGroupJID(id string) bool {
	return strings.HasSuffix(id, "@"+types.GroupServer)
}

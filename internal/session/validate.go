package session

import (
	"fmt"
	"regexp"
)

var clientIDRegexp = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidateClientID checks that id is safe to embed in a directory name.
func ValidateClientID(id string) error {
	if !clientIDRegexp.MatchString(id) {
		return fmt.Errorf("invalid client id %q: must match ^[a-zA-Z0-9_-]{1,64}$", id)
	}
	return nil
}

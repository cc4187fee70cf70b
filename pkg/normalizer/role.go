package normalizer

import (
	"errors"
	"fmt"
)

// Role identifies the author of a chat turn.
type Role string

const (
	System    Role = "system"
	User      Role = "user"
	Assistant Role = "assistant"
)

// ErrUnknownRole is returned for any role outside system, user and assistant.
var ErrUnknownRole = errors.New("unknown role")

func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the roles the normalizer understands.
func (r Role) Valid() bool {
	switch r {
	case System, User, Assistant:
		return true
	default:
		return false
	}
}

// ParseRole converts a wire value into a Role. Matching is exact.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

package presence

import (
	"strings"

	"github.com/dreamware/designsync/internal/apperr"
)

// Status is a user's availability inside one room.
type Status string

const (
	StatusActive  Status = "active"
	StatusIdle    Status = "idle"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

// ParseStatus validates a client-supplied status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusIdle, StatusAway, StatusOffline:
		return st, nil
	}
	return "", apperr.Validation("user-status", "unknown status "+quote(s))
}

func quote(s string) string {
	if len(s) > 32 {
		s = s[:32]
	}
	return "\"" + s + "\""
}

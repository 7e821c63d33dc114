// Package booking holds the client-side booking core: the availability
// resolver, the booking writer with its cancellation rule, and the booking
// flow state machine. Identity is always passed in as a Session.
package booking

import (
	"errors"
	"strings"

	"github.com/docbook/docbook/internal/platform/auth"
)

var (
	// ErrNoIdentity means the caller has to sign in first.
	ErrNoIdentity     = errors.New("no signed-in user")
	ErrSlotTaken      = errors.New("slot just taken")
	ErrInvalidRequest = errors.New("invalid booking request")
	ErrNotOwner       = errors.New("appointment belongs to another user")
)

// Session is the current actor.
type Session struct {
	UserID string
	Role   string
	Token  string
}

func (s Session) Authenticated() bool { return strings.TrimSpace(s.UserID) != "" }

func (s Session) IsAdmin() bool { return s.Role == auth.RoleAdmin }

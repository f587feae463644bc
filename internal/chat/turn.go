// Package chat holds the conversation model and the controller that runs one
// prompt/response cycle at a time for a session.
package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role tags who produced a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrInvalidTurn is returned by stores for turns that fail validation.
var ErrInvalidTurn = errors.New("invalid turn")

// Turn is one message in a conversation. Turns are never modified once appended.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Diagnostic marks the assistant turn recorded in place of a failed completion.
	Diagnostic bool      `json:"diagnostic,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the role and that user and system turns carry content.
func (t Turn) Validate() error {
	switch t.Role {
	case RoleUser, RoleSystem:
		if strings.TrimSpace(t.Content) == "" {
			return fmt.Errorf("%w: %s turn has no content", ErrInvalidTurn, t.Role)
		}
	case RoleAssistant:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidTurn, t.Role)
	}
	return nil
}

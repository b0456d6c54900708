package types

import (
	"time"

	"github.com/google/uuid"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ConversationTurn is one utterance in the planning conversation. The history
// is append-only and owned by the dialogue controller for the session.
type ConversationTurn struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// DialogueState is the full state of one slot-filling conversation. It is
// passed to and returned from every controller step; there is no hidden
// session-global state.
type DialogueState struct {
	SessionID    uuid.UUID          `json:"session_id"`
	Schema       TripSchema         `json:"-"`
	Pending      TripAttribute      `json:"pending"`
	LastQuestion string             `json:"last_question"`
	History      []ConversationTurn `json:"history"`
	Turns        int                `json:"turns"`
	Finished     bool               `json:"finished"`
}

// Clone deep-copies the state so controller steps stay value-in/value-out.
func (d DialogueState) Clone() DialogueState {
	c := d
	c.Schema = d.Schema.Clone()
	c.History = make([]ConversationTurn, len(d.History))
	copy(c.History, d.History)
	return c
}

// StepResponse is what one dialogue step hands back to the HTTP layer.
type StepResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	Message   string    `json:"message"`
	Finished  bool      `json:"finished"`
	Request   string    `json:"request,omitempty"` // schema snapshot as JSON
}

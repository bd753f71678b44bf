package models

import "time"

// Role of a conversation participant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one prior exchange in a session.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	SQL       string    `json:"sql,omitempty"` // assistant turns only
	CreatedAt time.Time `json:"created_at"`
}

// Render returns the text passed to the completion backend for this turn.
// Assistant turns carry the SQL they produced so follow-up questions can
// refine it.
func (t ConversationTurn) Render() string {
	if t.Role == RoleAssistant && t.SQL != "" {
		return t.Content + "\n(SQL: " + t.SQL + ")"
	}
	return t.Content
}

// History is an immutable, chronologically ordered window of turns.
type History struct {
	turns []ConversationTurn
}

// NewHistory copies turns (oldest first) and keeps at most the newest limit.
// limit <= 0 keeps everything.
func NewHistory(turns []ConversationTurn, limit int) History {
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	cp := make([]ConversationTurn, len(turns))
	copy(cp, turns)
	return History{turns: cp}
}

// Len returns the number of turns in the window.
func (h History) Len() int {
	return len(h.turns)
}

// Turns returns a copy of the turns, oldest first.
func (h History) Turns() []ConversationTurn {
	cp := make([]ConversationTurn, len(h.turns))
	copy(cp, h.turns)
	return cp
}

package domain

import "time"

// Turn is a single persisted conversation message for one user. Turns are
// written once and never updated.
type Turn struct {
	UserID    string
	Role      string
	Message   string
	Timestamp time.Time
}

// ChatMessage projects the turn down to what history readers consume.
func (t Turn) ChatMessage() ChatMessage {
	return ChatMessage{Role: t.Role, Content: t.Message}
}

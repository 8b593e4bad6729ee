package models

import "time"

// Message represents a single conversation message held in memory.
// A positive ID is server-issued; a negative ID is provisional, assigned
// locally when the message was sent optimistically and not yet confirmed.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	SenderName     string    `json:"senderDisplayName,omitempty"`
	Text           string    `json:"text"`
	SentAt         time.Time `json:"sentAt"`
	Read           bool      `json:"isRead"`

	// Token is the client-generated correlation token attached to
	// locally-originated messages so the transport echo can be matched
	// without the time/content heuristic. Empty on remote messages.
	Token string `json:"token,omitempty"`

	// Pending is true while a locally-sent message has not been echoed
	// back by the transport. Remote messages are never pending.
	Pending bool `json:"pending,omitempty"`
}

// Provisional reports whether the message carries a locally-assigned id.
func (m Message) Provisional() bool {
	return m.ID < 0
}

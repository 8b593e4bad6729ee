package models

import (
	"errors"
	"time"
)

// ErrMalformedEvent is returned by Validate for events missing a required
// field. Such events are dropped at the transport boundary, never surfaced.
var ErrMalformedEvent = errors.New("malformed chat event")

// ChatEvent is the wire shape shared by inbound and outbound transmissions
// on the push channel. SentAt is an ISO-8601 timestamp string.
type ChatEvent struct {
	ConversationID int64  `json:"conversationId"`
	Text           string `json:"text"`
	SenderID       int64  `json:"senderId"`
	SenderName     string `json:"senderDisplayName,omitempty"`
	SentAt         string `json:"sentAt,omitempty"`

	// Token is the client correlation token carried on outbound
	// transmissions and echoed back by the transport.
	Token string `json:"token,omitempty"`
}

// Validate checks the required fields. Events failing validation must be
// rejected before they reach the dedup matcher.
func (e ChatEvent) Validate() error {
	if e.ConversationID == 0 || e.SenderID == 0 || e.Text == "" {
		return ErrMalformedEvent
	}
	return nil
}

// SentAtTime parses the event timestamp, falling back to now for events
// whose sender supplied no usable timestamp.
func (e ChatEvent) SentAtTime(now time.Time) time.Time {
	if e.SentAt == "" {
		return now
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, e.SentAt); err == nil {
			return t
		}
	}
	return now
}

// EventFromMessage builds the outbound transmission for a locally-sent message.
func EventFromMessage(m Message) ChatEvent {
	return ChatEvent{
		ConversationID: m.ConversationID,
		Text:           m.Text,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		SentAt:         m.SentAt.UTC().Format(time.RFC3339Nano),
		Token:          m.Token,
	}
}

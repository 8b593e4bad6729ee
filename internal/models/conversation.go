package models

// UserRef is an opaque reference to a marketplace user as it appears in
// conversation payloads. Only the display name travels with it.
type UserRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

// Conversation is a bounded exchange between exactly two participants.
// Messages are append-order and are never reordered after insertion.
type Conversation struct {
	ID           int64     `json:"id"`
	ParticipantA UserRef   `json:"participantA"`
	ParticipantB UserRef   `json:"participantB"`
	Messages     []Message `json:"messages,omitempty"`
}

// Other returns the participant that is not the given user. If neither
// participant matches, ParticipantB is returned.
func (c Conversation) Other(userID int64) UserRef {
	if c.ParticipantB.ID == userID {
		return c.ParticipantA
	}
	return c.ParticipantB
}

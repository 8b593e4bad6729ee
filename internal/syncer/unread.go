package syncer

import "github.com/eldtechnologies/convosync/internal/store"

// Tracker derives unread counts from the store's read flags and message
// authorship. It holds no state of its own and never mutates messages.
type Tracker struct {
	store  *store.Store
	userID int64
}

// NewTracker creates a tracker deriving counts for the given local user.
func NewTracker(s *store.Store, userID int64) *Tracker {
	return &Tracker{store: s, userID: userID}
}

// UnreadFor returns the number of unread messages authored by the other
// participant in the conversation. Unknown conversations count zero.
func (t *Tracker) UnreadFor(conversationID int64) int {
	msgs, ok := t.store.Messages(conversationID)
	if !ok {
		return 0
	}
	count := 0
	for i := range msgs {
		if !msgs[i].Read && msgs[i].SenderID != t.userID {
			count++
		}
	}
	return count
}

// TotalUnread returns the unread count summed across all conversations.
func (t *Tracker) TotalUnread() int {
	total := 0
	for _, id := range t.store.ConversationIDs() {
		total += t.UnreadFor(id)
	}
	return total
}

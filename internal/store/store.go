// Package store owns the in-memory conversation state for one authenticated
// session. The remote service is the authoritative message store; this package
// only mirrors it for the lifetime of the session and is reset on logout.
package store

import (
	"errors"
	"fmt"

	"github.com/eldtechnologies/convosync/internal/models"
)

var (
	// ErrInvalidSnapshot indicates a malformed initial load. Fatal to the
	// session; the caller must re-authenticate or retry the load.
	ErrInvalidSnapshot = errors.New("invalid conversation snapshot")

	// ErrUnknownConversation indicates a conversation id not present in the
	// store. Recoverable; the caller should refresh its conversation list.
	ErrUnknownConversation = errors.New("unknown conversation")
)

// Store holds all Conversations and their Messages. It is not safe for
// concurrent use: the sync coordinator is its sole writer and serializes
// every access, so the store itself carries no locking.
type Store struct {
	conversations map[int64]*models.Conversation
	order         []int64 // load order, stable across snapshots
}

// New creates an empty Store.
func New() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset discards all state. Used on logout before the next session reseeds.
func (s *Store) Reset() {
	s.conversations = make(map[int64]*models.Conversation)
	s.order = nil
}

// Load replaces all state with the given snapshot. Loading the same snapshot
// twice yields an identical store. A conversation without an id or without
// both participants fails the whole load with ErrInvalidSnapshot and leaves
// the previous state untouched.
func (s *Store) Load(conversations []models.Conversation) error {
	next := make(map[int64]*models.Conversation, len(conversations))
	order := make([]int64, 0, len(conversations))

	for _, conv := range conversations {
		if conv.ID == 0 || conv.ParticipantA.ID == 0 || conv.ParticipantB.ID == 0 {
			return fmt.Errorf("%w: conversation %d lacks id or participants", ErrInvalidSnapshot, conv.ID)
		}
		if _, ok := next[conv.ID]; ok {
			return fmt.Errorf("%w: duplicate conversation %d", ErrInvalidSnapshot, conv.ID)
		}
		cp := conv
		cp.Messages = append([]models.Message(nil), conv.Messages...)
		next[conv.ID] = &cp
		order = append(order, conv.ID)
	}

	s.conversations = next
	s.order = order
	return nil
}

// Append inserts the message at the end of the conversation's sequence.
// Dedup runs before this call; Append itself only enforces conversation
// existence.
func (s *Store) Append(conversationID int64, msg models.Message) error {
	conv, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownConversation, conversationID)
	}
	msg.ConversationID = conversationID
	conv.Messages = append(conv.Messages, msg)
	return nil
}

// MarkRead flips Read on the given message ids within the conversation.
// Ids not found are ignored; a message may have been superseded.
func (s *Store) MarkRead(conversationID int64, messageIDs []int64) error {
	conv, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownConversation, conversationID)
	}
	want := make(map[int64]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		want[id] = struct{}{}
	}
	for i := range conv.Messages {
		if _, ok := want[conv.Messages[i].ID]; ok {
			conv.Messages[i].Read = true
		}
	}
	return nil
}

// Confirm marks the pending message carrying the given correlation token as
// delivered. Returns false if no pending message in the conversation matches.
func (s *Store) Confirm(conversationID int64, token string) bool {
	conv, ok := s.conversations[conversationID]
	if !ok || token == "" {
		return false
	}
	for i := range conv.Messages {
		if conv.Messages[i].Pending && conv.Messages[i].Token == token {
			conv.Messages[i].Pending = false
			return true
		}
	}
	return false
}

// Messages returns a copy of the conversation's message sequence in append
// order. The second return reports whether the conversation exists.
func (s *Store) Messages(conversationID int64) ([]models.Message, bool) {
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, false
	}
	return append([]models.Message(nil), conv.Messages...), true
}

// Has reports whether the conversation exists.
func (s *Store) Has(conversationID int64) bool {
	_, ok := s.conversations[conversationID]
	return ok
}

// HasMessage reports whether a message with the given server id already
// exists in the conversation. Used by the reconnect resync path.
func (s *Store) HasMessage(conversationID, messageID int64) bool {
	conv, ok := s.conversations[conversationID]
	if !ok {
		return false
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == messageID {
			return true
		}
	}
	return false
}

// ConversationIDs returns the ids of all conversations in load order.
func (s *Store) ConversationIDs() []int64 {
	return append([]int64(nil), s.order...)
}

// ConversationView is an immutable observer view of one conversation.
// Peer, LastMessage and Unread are derived at snapshot time.
type ConversationView struct {
	ID           int64
	ParticipantA models.UserRef
	ParticipantB models.UserRef
	Peer         models.UserRef // the participant that is not the local user
	Messages     []models.Message
	LastMessage  *models.Message
	Unread       int
}

// Snapshot returns deep copies of every conversation in load order, with the
// per-conversation Unread derived for the given local user. Mutating the
// returned views never affects store state.
func (s *Store) Snapshot(currentUserID int64) []ConversationView {
	views := make([]ConversationView, 0, len(s.order))
	for _, id := range s.order {
		conv := s.conversations[id]
		view := ConversationView{
			ID:           conv.ID,
			ParticipantA: conv.ParticipantA,
			ParticipantB: conv.ParticipantB,
			Peer:         conv.Other(currentUserID),
			Messages:     append([]models.Message(nil), conv.Messages...),
		}
		if n := len(view.Messages); n > 0 {
			last := view.Messages[n-1]
			view.LastMessage = &last
		}
		for _, m := range conv.Messages {
			if !m.Read && m.SenderID != currentUserID {
				view.Unread++
			}
		}
		views = append(views, view)
	}
	return views
}

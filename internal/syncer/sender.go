package syncer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/eldtechnologies/convosync/internal/metrics"
	"github.com/eldtechnologies/convosync/internal/models"
	"github.com/eldtechnologies/convosync/internal/store"
	"github.com/eldtechnologies/convosync/internal/transport"
)

var (
	// ErrEmptyMessage indicates the text was empty after trimming. No side
	// effect occurred.
	ErrEmptyMessage = errors.New("empty message")

	// ErrTransmissionFailed indicates the push channel could not send. The
	// optimistic local echo is kept; the message stays visible as sent.
	ErrTransmissionFailed = errors.New("transmission failed")
)

// provisionalIDs allocates session-unique negative message ids. Server ids
// are positive, so the two ranges never collide.
type provisionalIDs struct {
	next int64
}

func newProvisionalIDs() *provisionalIDs {
	return &provisionalIDs{next: -1}
}

func (p *provisionalIDs) allocate() int64 {
	id := p.next
	p.next--
	return id
}

// Sender appends the optimistic local echo for an outbound message and
// forwards it to the push channel. The append always completes before the
// transmission starts, so local state is never behind the wire.
type Sender struct {
	store   *store.Store
	channel transport.PushChannel
	user    models.UserRef
	ids     *provisionalIDs
	now     func() time.Time
}

// NewSender wires a sender for the given local user.
func NewSender(s *store.Store, ch transport.PushChannel, user models.UserRef, ids *provisionalIDs, now func() time.Time) *Sender {
	return &Sender{store: s, channel: ch, user: user, ids: ids, now: now}
}

// Send validates, appends and transmits. On ErrTransmissionFailed the
// returned message was still appended and remains in the store.
func (s *Sender) Send(conversationID int64, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}
	if !s.store.Has(conversationID) {
		return models.Message{}, fmt.Errorf("%w: %d", store.ErrUnknownConversation, conversationID)
	}

	msg := models.Message{
		ID:             s.ids.allocate(),
		ConversationID: conversationID,
		SenderID:       s.user.ID,
		SenderName:     s.user.Name,
		Text:           text,
		SentAt:         s.now(),
		Read:           true,
		Token:          ulid.Make().String(),
		Pending:        true,
	}

	if err := s.store.Append(conversationID, msg); err != nil {
		return models.Message{}, err
	}
	metrics.MessagesSent.Inc()

	if err := s.channel.Transmit(models.EventFromMessage(msg)); err != nil {
		metrics.TransmitFailures.Inc()
		return msg, fmt.Errorf("%w: %w", ErrTransmissionFailed, err)
	}
	return msg, nil
}

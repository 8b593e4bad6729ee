// Package syncer implements the real-time conversation synchronization core:
// it merges the inbound event stream from the push channel with locally-sent
// optimistic messages while keeping per-conversation ordering, duplicate
// suppression and unread accounting intact.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/convosync/internal/metrics"
	"github.com/eldtechnologies/convosync/internal/models"
	"github.com/eldtechnologies/convosync/internal/store"
	"github.com/eldtechnologies/convosync/internal/transport"
)

// HistoryLoader is the external boundary that seeds the store and fills
// gaps after reconnection. The remote service remains authoritative.
type HistoryLoader interface {
	Conversations(ctx context.Context) ([]models.Conversation, error)
	Messages(ctx context.Context, conversationID int64) ([]models.Message, error)
}

// Options configures a Coordinator.
type Options struct {
	Logger  zerolog.Logger
	Channel transport.PushChannel
	History HistoryLoader // optional; disables seeding and resync when nil
	User    models.UserRef
	Now     func() time.Time // test hook, defaults to time.Now
}

// Coordinator is the single integration point callers interact with. It is
// the sole writer of the conversation store; every entry point runs to
// completion under one mutex, which stands in for the cooperative
// single-threaded model of the surrounding application.
type Coordinator struct {
	log     zerolog.Logger
	channel transport.PushChannel
	history HistoryLoader
	user    models.UserRef
	now     func() time.Time

	mu       sync.Mutex
	store    *store.Store
	sender   *Sender
	tracker  *Tracker
	match    matcher
	ids      *provisionalIDs
	selected int64 // 0 = no conversation selected

	connState     transport.State
	stateObserver transport.StateHandler
}

// New wires a coordinator to the given push channel. The channel's event and
// state handlers are registered here; callers only Connect/Disconnect through
// the coordinator.
func New(opts Options) *Coordinator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	st := store.New()
	ids := newProvisionalIDs()

	c := &Coordinator{
		log:     opts.Logger.With().Str("component", "coordinator").Logger(),
		channel: opts.Channel,
		history: opts.History,
		user:    opts.User,
		now:     opts.Now,
		store:   st,
		sender:  NewSender(st, opts.Channel, opts.User, ids, opts.Now),
		tracker: NewTracker(st, opts.User.ID),
		match:   matcher{currentUserID: opts.User.ID},
		ids:     ids,
	}

	opts.Channel.OnEvent(c.OnInboundEvent)
	opts.Channel.OnStateChange(c.onConnectionState)
	return c
}

// Load seeds the store from the history boundary: the conversation list
// first, then each conversation's messages. Called once per session before
// Connect; a failed load leaves the previous state untouched.
func (c *Coordinator) Load(ctx context.Context) error {
	if c.history == nil {
		return fmt.Errorf("no history loader configured")
	}

	conversations, err := c.history.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	for i := range conversations {
		msgs, err := c.history.Messages(ctx, conversations[i].ID)
		if err != nil {
			return fmt.Errorf("load messages for conversation %d: %w", conversations[i].ID, err)
		}
		conversations[i].Messages = msgs
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Load(conversations); err != nil {
		return err
	}
	c.updateUnreadGauge()
	c.log.Info().Int("conversations", len(conversations)).Msg("store seeded")
	return nil
}

// Connect opens the push channel. endpoint and credential are derived from
// the current session by the caller; refreshing a stale credential is the
// caller's responsibility.
func (c *Coordinator) Connect(endpoint, credential string) error {
	return c.channel.Connect(endpoint, credential)
}

// Logout disconnects the channel synchronously and then discards all local
// state. Partial teardown is not a legal intermediate state: no event can
// arrive once the store is reset.
func (c *Coordinator) Logout() error {
	err := c.channel.Disconnect()

	c.mu.Lock()
	c.store.Reset()
	c.selected = 0
	c.updateUnreadGauge()
	c.mu.Unlock()

	c.log.Info().Msg("logged out, local state discarded")
	return err
}

// OnInboundEvent routes one inbound event: boundary validation, then the
// dedup rules, then the store append. Events are processed strictly in
// delivery order.
func (c *Coordinator) OnInboundEvent(ev models.ChatEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	metrics.EventsReceived.Inc()

	if err := ev.Validate(); err != nil {
		// Best-effort transport; malformed events are logged, never surfaced.
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		c.log.Warn().Int64("conversation_id", ev.ConversationID).
			Int64("sender_id", ev.SenderID).Msg("dropping malformed event")
		return
	}

	existing, ok := c.store.Messages(ev.ConversationID)
	if !ok {
		metrics.EventsDropped.WithLabelValues("unknown_conversation").Inc()
		c.log.Warn().Int64("conversation_id", ev.ConversationID).
			Msg("dropping event for unknown conversation")
		return
	}

	sentAt := ev.SentAtTime(c.now())
	if rule := c.match.match(existing, ev, sentAt); rule != ruleNone {
		if rule == ruleToken || rule == ruleSelfEcho {
			if c.store.Confirm(ev.ConversationID, ev.Token) {
				c.log.Debug().Int64("conversation_id", ev.ConversationID).
					Str("token", ev.Token).Msg("pending message confirmed")
			}
		}
		metrics.EventsDeduplicated.WithLabelValues(string(rule)).Inc()
		return
	}

	msg := models.Message{
		ID:             c.ids.allocate(),
		ConversationID: ev.ConversationID,
		SenderID:       ev.SenderID,
		SenderName:     ev.SenderName,
		Text:           ev.Text,
		SentAt:         sentAt,
		Read:           ev.ConversationID == c.selected,
	}
	if err := c.store.Append(ev.ConversationID, msg); err != nil {
		metrics.EventsDropped.WithLabelValues("unknown_conversation").Inc()
		return
	}
	metrics.MessagesAccepted.Inc()
	c.updateUnreadGauge()

	c.log.Debug().Int64("conversation_id", ev.ConversationID).
		Int64("sender_id", ev.SenderID).Bool("read", msg.Read).
		Msg("inbound message accepted")
}

// Send delegates to the outbound sender. When the returned error is
// ErrTransmissionFailed the message was still appended locally; by design
// a visible-but-possibly-undelivered message beats silently reverting
// user input.
func (c *Coordinator) Send(conversationID int64, text string) (models.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, err := c.sender.Send(conversationID, text)
	if err != nil && msg.ID != 0 {
		c.log.Warn().Err(err).Int64("conversation_id", conversationID).
			Int64("message_id", msg.ID).Msg("transmit failed, echo kept")
	}
	return msg, err
}

// SelectConversation makes the conversation the active one and marks its
// unread inbound messages read locally. The returned ids are the messages
// that were flipped, for the caller to forward to the remote read-receipt
// boundary if it wants server-side durability.
func (c *Coordinator) SelectConversation(conversationID int64) ([]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs, ok := c.store.Messages(conversationID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", store.ErrUnknownConversation, conversationID)
	}
	c.selected = conversationID

	var flipped []int64
	for i := range msgs {
		if !msgs[i].Read && msgs[i].SenderID != c.user.ID {
			flipped = append(flipped, msgs[i].ID)
		}
	}
	if len(flipped) > 0 {
		if err := c.store.MarkRead(conversationID, flipped); err != nil {
			return nil, err
		}
		c.updateUnreadGauge()
	}
	return flipped, nil
}

// ClearSelection drops the active conversation; subsequent inbound messages
// arrive unread.
func (c *Coordinator) ClearSelection() {
	c.mu.Lock()
	c.selected = 0
	c.mu.Unlock()
}

// MarkRead flips the read flag on the given messages without changing the
// selection.
func (c *Coordinator) MarkRead(conversationID int64, messageIDs []int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.MarkRead(conversationID, messageIDs); err != nil {
		return err
	}
	c.updateUnreadGauge()
	return nil
}

// Snapshot returns an immutable observer view of every conversation.
func (c *Coordinator) Snapshot() []store.ConversationView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Snapshot(c.user.ID)
}

// UnreadFor returns the unread count for one conversation.
func (c *Coordinator) UnreadFor(conversationID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.UnreadFor(conversationID)
}

// TotalUnread returns the unread count across all conversations.
func (c *Coordinator) TotalUnread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.TotalUnread()
}

// ConnectionState returns the last observed push channel state.
func (c *Coordinator) ConnectionState() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connState
}

// OnConnectionState registers an observer for channel state transitions,
// e.g. for the UI to render presence.
func (c *Coordinator) OnConnectionState(h transport.StateHandler) {
	c.mu.Lock()
	c.stateObserver = h
	c.mu.Unlock()
}

func (c *Coordinator) onConnectionState(s transport.State) {
	c.mu.Lock()
	previous := c.connState
	c.connState = s
	observer := c.stateObserver
	c.mu.Unlock()

	c.log.Info().Str("state", s.String()).Msg("push channel state changed")
	if observer != nil {
		observer(s)
	}

	// The adapter does not replay events missed while disconnected, so each
	// reconnection re-fetches recent history and routes it through the
	// normal dedup path.
	if s == transport.StateConnected && previous != transport.StateConnected {
		go c.resync(context.Background())
	}
}

// resync fills gaps after a reconnect. Messages already known (by server id
// or by the dedup rules) are skipped; everything else is appended in the
// order the history boundary returns it.
func (c *Coordinator) resync(ctx context.Context) {
	if c.history == nil {
		return
	}
	metrics.ResyncRuns.Inc()

	c.mu.Lock()
	ids := c.store.ConversationIDs()
	c.mu.Unlock()

	for _, conversationID := range ids {
		msgs, err := c.history.Messages(ctx, conversationID)
		if err != nil {
			c.log.Warn().Err(err).Int64("conversation_id", conversationID).
				Msg("resync fetch failed")
			continue
		}

		c.mu.Lock()
		for _, m := range msgs {
			if !m.Provisional() && c.store.HasMessage(conversationID, m.ID) {
				continue
			}
			existing, ok := c.store.Messages(conversationID)
			if !ok {
				break // store was reset mid-resync
			}
			ev := models.ChatEvent{
				ConversationID: conversationID,
				SenderID:       m.SenderID,
				SenderName:     m.SenderName,
				Text:           m.Text,
				Token:          m.Token,
			}
			if c.match.match(existing, ev, m.SentAt) != ruleNone {
				continue
			}
			msg := m
			msg.Read = m.Read || conversationID == c.selected
			if err := c.store.Append(conversationID, msg); err != nil {
				break
			}
			metrics.MessagesAccepted.Inc()
		}
		c.updateUnreadGauge()
		c.mu.Unlock()
	}
}

// updateUnreadGauge refreshes the exported unread total. Callers hold c.mu.
func (c *Coordinator) updateUnreadGauge() {
	metrics.UnreadTotal.Set(float64(c.tracker.TotalUnread()))
}

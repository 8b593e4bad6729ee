package syncer

import (
	"time"

	"github.com/eldtechnologies/convosync/internal/models"
)

// dedupWindow is the tolerance used to match an inbound event against an
// already-stored message. Wide enough to absorb clock skew and transport
// redelivery, narrow enough that two distinct messages with identical text
// rarely coalesce.
const dedupWindow = 30 * time.Second

// dedupRule names the rule under which an event was suppressed. The values
// double as metric labels.
type dedupRule string

const (
	ruleNone     dedupRule = ""
	ruleToken    dedupRule = "token"
	ruleSelfEcho dedupRule = "self_echo"
	ruleWindow   dedupRule = "window"
)

// matcher decides whether an inbound event is already represented in a
// conversation's message sequence.
type matcher struct {
	currentUserID int64
}

// match returns the rule that makes the event a duplicate of an existing
// message, or ruleNone if the event should be appended.
//
// The correlation token is authoritative and checked first. The self-echo
// rule follows: any event authored by the local user is the transport echo
// of a message the outbound sender already appended, token or not. The
// time/content heuristic only decides for foreign, token-less events.
func (m matcher) match(existing []models.Message, ev models.ChatEvent, sentAt time.Time) dedupRule {
	if ev.Token != "" {
		for i := range existing {
			if existing[i].Token == ev.Token {
				return ruleToken
			}
		}
	}

	if ev.SenderID == m.currentUserID {
		return ruleSelfEcho
	}

	for i := range existing {
		if existing[i].SenderID != ev.SenderID || existing[i].Text != ev.Text {
			continue
		}
		delta := existing[i].SentAt.Sub(sentAt)
		if delta < 0 {
			delta = -delta
		}
		if delta < dedupWindow {
			return ruleWindow
		}
	}

	return ruleNone
}

// Package transport abstracts the push channel that delivers inbound
// conversation events and carries outbound transmissions. The core only
// depends on the PushChannel interface; the websocket implementation lives
// alongside it.
package transport

import (
	"errors"
	"time"

	"github.com/eldtechnologies/convosync/internal/models"
)

// ErrNotConnected is returned by Transmit when the channel has no live
// connection. The caller's optimistic local echo is never rolled back.
var ErrNotConnected = errors.New("push channel not connected")

// State is the connection state of the push channel.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// EventHandler receives decoded inbound events in delivery order.
type EventHandler func(models.ChatEvent)

// StateHandler receives connection state transitions.
type StateHandler func(State)

// PushChannel is the boundary over the inbound event source. The adapter
// owns the connection lifecycle; it does not replay events missed while
// disconnected.
type PushChannel interface {
	Connect(endpoint, credential string) error
	Disconnect() error
	OnEvent(EventHandler)
	OnStateChange(StateHandler)
	Transmit(models.ChatEvent) error
}

// ReconnectPolicy controls the backoff between reconnection attempts.
// It is passed into the adapter rather than hidden inside it.
type ReconnectPolicy struct {
	Initial    time.Duration // delay after the first failure
	Max        time.Duration // backoff ceiling
	Multiplier float64       // growth factor between attempts
	ResetAfter time.Duration // connection uptime that resets the backoff
}

// DefaultReconnectPolicy returns the policy used when the caller supplies none.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Initial:    2 * time.Second,
		Max:        30 * time.Second,
		Multiplier: 2,
		ResetAfter: time.Minute,
	}
}

// Next returns the delay before the following attempt, given the previous
// delay and how long the last connection survived. A connection stable for
// ResetAfter starts the progression over.
func (p ReconnectPolicy) Next(previous, connectedFor time.Duration) time.Duration {
	if previous <= 0 || (p.ResetAfter > 0 && connectedFor >= p.ResetAfter) {
		return p.Initial
	}
	next := time.Duration(float64(previous) * p.Multiplier)
	if next > p.Max {
		next = p.Max
	}
	return next
}

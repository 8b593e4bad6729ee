package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Inbound event metrics
	EventsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "convosync_events_received_total",
			Help: "Total inbound events delivered by the push channel",
		},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convosync_events_dropped_total",
			Help: "Total inbound events dropped before reaching the store",
		},
		[]string{"reason"}, // "malformed" or "unknown_conversation"
	)

	EventsDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convosync_events_deduplicated_total",
			Help: "Total inbound events suppressed as duplicates",
		},
		[]string{"rule"}, // "self_echo", "token" or "window"
	)

	MessagesAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "convosync_messages_accepted_total",
			Help: "Total inbound events appended to the store",
		},
	)

	// Outbound metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "convosync_messages_sent_total",
			Help: "Total messages sent by the local user",
		},
	)

	TransmitFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "convosync_transmit_failures_total",
			Help: "Total transmissions the push channel could not send",
		},
	)

	// Connection metrics
	Reconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "convosync_reconnects_total",
			Help: "Total push channel reconnection attempts",
		},
	)

	ResyncRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "convosync_resync_runs_total",
			Help: "Total history resyncs triggered by reconnection",
		},
	)

	// State metrics
	UnreadTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "convosync_unread_total",
			Help: "Current global unread message count",
		},
	)
)

package models

import (
	"errors"
	"testing"
	"time"
)

func TestChatEventValidate(t *testing.T) {
	valid := ChatEvent{ConversationID: 10, SenderID: 2, Text: "hola"}
	if err := valid.Validate(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		ev   ChatEvent
	}{
		{"missing conversation", ChatEvent{SenderID: 2, Text: "hola"}},
		{"missing sender", ChatEvent{ConversationID: 10, Text: "hola"}},
		{"missing text", ChatEvent{ConversationID: 10, SenderID: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.ev.Validate(); !errors.Is(err, ErrMalformedEvent) {
				t.Fatalf("expected ErrMalformedEvent, got %v", err)
			}
		})
	}
}

func TestChatEventSentAtTime(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	ev := ChatEvent{SentAt: "2025-03-14T10:00:00Z"}
	want := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	if got := ev.SentAtTime(now); !got.Equal(want) {
		t.Fatalf("SentAtTime() = %v, want %v", got, want)
	}

	// Fractional seconds are accepted too.
	ev = ChatEvent{SentAt: "2025-03-14T10:00:00.250Z"}
	if got := ev.SentAtTime(now); got.Nanosecond() != 250_000_000 {
		t.Fatalf("nanos not parsed: %v", got)
	}

	// Missing or unparseable timestamps fall back to now.
	for _, raw := range []string{"", "yesterday"} {
		ev = ChatEvent{SentAt: raw}
		if got := ev.SentAtTime(now); !got.Equal(now) {
			t.Fatalf("SentAtTime(%q) = %v, want fallback %v", raw, got, now)
		}
	}
}

func TestEventFromMessage(t *testing.T) {
	m := Message{
		ID:             -3,
		ConversationID: 10,
		SenderID:       1,
		SenderName:     "Ana",
		Text:           "Hola",
		SentAt:         time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
		Token:          "tok-1",
	}
	ev := EventFromMessage(m)
	if ev.ConversationID != 10 || ev.SenderID != 1 || ev.Text != "Hola" || ev.Token != "tok-1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.SentAt != "2025-03-14T10:00:00Z" {
		t.Fatalf("sentAt not ISO-8601: %q", ev.SentAt)
	}
	if err := ev.Validate(); err != nil {
		t.Fatal(err)
	}
}

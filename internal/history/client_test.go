package history

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var readBodies []string

	mux := http.NewServeMux()
	mux.HandleFunc("GET /conversations", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tkn" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "missing credential"})
			return
		}
		w.Write([]byte(`[
			{"id":10,"participantA":{"id":1,"name":"Ana"},"participantB":{"id":2,"name":"Berto"}},
			{"id":11,"participantA":{"id":1,"name":"Ana"},"participantB":{"id":3,"name":"Carla"}}
		]`))
	})
	mux.HandleFunc("GET /conversations/10/messages", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":100,"conversationId":10,"senderId":2,"senderDisplayName":"Berto","text":"Hola","sentAt":"2025-03-14T10:00:00Z","isRead":false},
			{"id":101,"conversationId":10,"senderId":1,"senderDisplayName":"Ana","text":"Buenas","sentAt":"not-a-timestamp","isRead":true}
		]`))
	})
	mux.HandleFunc("POST /messages/read", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err == nil {
			readBodies = append(readBodies, string(body))
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return httptest.NewServer(mux), &readBodies
}

func TestConversations(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	c := NewClient(srv.URL, "tkn")
	conversations, err := c.Conversations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(conversations) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(conversations))
	}
	if conversations[0].ID != 10 || conversations[0].ParticipantB.Name != "Berto" {
		t.Fatalf("unexpected conversation: %+v", conversations[0])
	}
}

func TestConversationsAuthError(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	c := NewClient(srv.URL, "wrong")
	_, err := c.Conversations(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing credential") {
		t.Fatalf("expected error envelope to surface, got %v", err)
	}
}

func TestMessages(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	c := NewClient(srv.URL, "tkn")
	msgs, err := c.Messages(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}

	want := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	if !msgs[0].SentAt.Equal(want) {
		t.Fatalf("sentAt = %v, want %v", msgs[0].SentAt, want)
	}
	if msgs[0].Read || !msgs[1].Read {
		t.Fatal("read flags not mapped")
	}
	// Unparseable timestamps keep the message with a zero time.
	if !msgs[1].SentAt.IsZero() {
		t.Fatalf("expected zero time for bad timestamp, got %v", msgs[1].SentAt)
	}
}

func TestPersistRead(t *testing.T) {
	srv, bodies := newTestServer(t)
	defer srv.Close()

	c := NewClient(srv.URL, "tkn")
	if err := c.PersistRead(context.Background(), []int64{100, -5, 101}); err != nil {
		t.Fatal(err)
	}
	if len(*bodies) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*bodies))
	}
	if got := (*bodies)[0]; !strings.Contains(got, "100") || strings.Contains(got, "-5") {
		t.Fatalf("provisional ids must be filtered out: %s", got)
	}

	// Only provisional ids: nothing to persist, no request made.
	if err := c.PersistRead(context.Background(), []int64{-1, -2}); err != nil {
		t.Fatal(err)
	}
	if len(*bodies) != 1 {
		t.Fatal("request made for provisional-only ids")
	}
}

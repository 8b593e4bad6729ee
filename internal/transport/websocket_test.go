package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/convosync/internal/models"
)

// wsTestServer upgrades one connection, pushes a canned sequence of frames
// and forwards whatever the client transmits.
func wsTestServer(t *testing.T, frames [][]byte, got chan<- models.ChatEvent, auth chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case auth <- r.Header.Get("Authorization"):
		default:
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
		for {
			var ev models.ChatEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			got <- ev
		}
	}))
}

func TestWSChannelRoundTrip(t *testing.T) {
	frames := [][]byte{
		[]byte("this is not json"), // undecodable frames are skipped
		[]byte(`{"conversationId":10,"senderId":2,"senderDisplayName":"Berto","text":"hola","sentAt":"2025-03-14T10:00:00Z"}`),
	}
	serverGot := make(chan models.ChatEvent, 1)
	auth := make(chan string, 1)
	srv := wsTestServer(t, frames, serverGot, auth)
	defer srv.Close()

	received := make(chan models.ChatEvent, 4)
	states := make(chan State, 8)

	ch := NewWSChannel(zerolog.Nop(), DefaultReconnectPolicy())
	ch.OnEvent(func(ev models.ChatEvent) { received <- ev })
	ch.OnStateChange(func(s State) { states <- s })

	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
	if err := ch.Connect(endpoint, "secret-token"); err != nil {
		t.Fatal(err)
	}
	defer ch.Disconnect()

	// Connecting then connected, in that order.
	for _, want := range []State{StateConnecting, StateConnected} {
		select {
		case s := <-states:
			if s != want {
				t.Fatalf("state = %v, want %v", s, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for state %v", want)
		}
	}

	select {
	case got := <-auth:
		if got != "Bearer secret-token" {
			t.Fatalf("credential not forwarded: %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the handshake")
	}

	select {
	case ev := <-received:
		if ev.ConversationID != 10 || ev.SenderID != 2 || ev.Text != "hola" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("inbound event never delivered")
	}

	out := models.ChatEvent{ConversationID: 10, SenderID: 1, Text: "buenas", Token: "tok-1"}
	if err := ch.Transmit(out); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-serverGot:
		if ev.Text != "buenas" || ev.Token != "tok-1" {
			t.Fatalf("server received %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("transmission never reached the server")
	}
}

func TestWSChannelTransmitWhileDisconnected(t *testing.T) {
	ch := NewWSChannel(zerolog.Nop(), DefaultReconnectPolicy())
	if err := ch.Transmit(models.ChatEvent{ConversationID: 1, SenderID: 1, Text: "x"}); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestWSChannelDisconnectIsSynchronous(t *testing.T) {
	serverGot := make(chan models.ChatEvent, 1)
	auth := make(chan string, 1)
	srv := wsTestServer(t, nil, serverGot, auth)
	defer srv.Close()

	states := make(chan State, 8)
	ch := NewWSChannel(zerolog.Nop(), DefaultReconnectPolicy())
	ch.OnStateChange(func(s State) { states <- s })

	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
	if err := ch.Connect(endpoint, ""); err != nil {
		t.Fatal(err)
	}

	// Wait for the connection before tearing down.
	deadline := time.After(2 * time.Second)
	for ch.State() != StateConnected {
		select {
		case <-deadline:
			t.Fatal("never connected")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := ch.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if got := ch.State(); got != StateDisconnected {
		t.Fatalf("state after Disconnect = %v, want disconnected", got)
	}

	// A second disconnect is a no-op.
	if err := ch.Disconnect(); err != nil {
		t.Fatal(err)
	}

	// The channel can be reused for a new session.
	if err := ch.Connect(endpoint, ""); err != nil {
		t.Fatal(err)
	}
	defer ch.Disconnect()
}

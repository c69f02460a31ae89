package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/goleak"

	"github.com/wricardo/mcp-training/storageyard/game/engine"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestClient(hub *Hub, sessionID string) *Client {
	return &Client{
		hub:       hub,
		sessionID: sessionID,
		send:      make(chan []byte, 256),
	}
}

// startHub runs the hub until the test ends and waits for it to stop
func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.done
	})
	return hub
}

func dial(t *testing.T, hub *Hub, sessionID string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("session"))
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?session=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestHubRegisterClient(t *testing.T) {
	hub := NewHub(nil)
	client := newTestClient(hub, "test-session")

	hub.registerClient(client)

	if !hub.sessions["test-session"][client] {
		t.Error("Client was not registered in session")
	}
	if hub.ClientCount("test-session") != 1 {
		t.Errorf("Expected 1 client in session, got %d", hub.ClientCount("test-session"))
	}
}

func TestHubUnregisterClient(t *testing.T) {
	hub := NewHub(nil)
	client := newTestClient(hub, "test-session")

	hub.registerClient(client)
	hub.unregisterClient(client)

	if _, exists := hub.sessions["test-session"]; exists {
		t.Error("Empty session should have been cleaned up")
	}
	if _, ok := <-client.send; ok {
		t.Error("Expected send channel to be closed")
	}

	// Unregistering twice must not panic on a closed channel
	hub.unregisterClient(client)
}

func TestHubMultipleClientsInSession(t *testing.T) {
	hub := NewHub(nil)
	a := newTestClient(hub, "shared")
	b := newTestClient(hub, "shared")
	other := newTestClient(hub, "other")

	hub.registerClient(a)
	hub.registerClient(b)
	hub.registerClient(other)

	hub.broadcastMessage(&Message{SessionID: "shared", Event: EventReset})

	for _, c := range []*Client{a, b} {
		select {
		case <-c.send:
		default:
			t.Error("Expected every session client to receive the message")
		}
	}
	select {
	case <-other.send:
		t.Error("Client of another session received the message")
	default:
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(nil)
	slow := &Client{hub: hub, sessionID: "slow", send: make(chan []byte)}
	hub.registerClient(slow)

	hub.broadcastMessage(&Message{SessionID: "slow", Event: EventReset})

	if hub.ClientCount("slow") != 0 {
		t.Error("Expected a client with a full send buffer to be dropped")
	}
}

func TestHubBroadcastObservation(t *testing.T) {
	hub := startHub(t)
	client := newTestClient(hub, "obs")
	hub.register <- client

	obs := engine.Observation{Rows: 2, Cols: 2, Grid: []float64{0.25, 0, 0, 0}, Stocks: 1}
	hub.BroadcastObservation("obs", obs)

	select {
	case data := <-client.send:
		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		if message.Event != EventObservation {
			t.Errorf("Expected event %q, got %q", EventObservation, message.Event)
		}
		if message.Observation == nil || message.Observation.Stocks != 1 {
			t.Errorf("Observation not transmitted: %+v", message.Observation)
		}
	case <-time.After(time.Second):
		t.Fatal("No message received within timeout")
	}
}

func TestHubBroadcastAfterStopDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	finished := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer*2; i++ {
			hub.BroadcastEvent("gone", EventEpisodeEnd, i)
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("BroadcastEvent blocked on a stopped hub")
	}
}

func TestWebSocketLifecycle(t *testing.T) {
	hub := startHub(t)
	conn := dial(t, hub, "ws-test")

	waitFor(t, func() bool { return hub.ClientCount("ws-test") == 1 })

	hub.BroadcastEvent("ws-test", EventEpisodeEnd, map[string]int{"steps": 12})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read WebSocket message: %v", err)
	}

	var message struct {
		SessionID string         `json:"session_id"`
		Event     string         `json:"event"`
		Data      map[string]int `json:"data"`
	}
	if err := json.Unmarshal(data, &message); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if message.SessionID != "ws-test" || message.Event != EventEpisodeEnd || message.Data["steps"] != 12 {
		t.Errorf("Unexpected message %+v", message)
	}

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount("ws-test") == 0 })
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	conn := dial(t, hub, "bye")
	waitFor(t, func() bool { return hub.ClientCount("bye") == 1 })

	cancel()
	<-hub.done

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Expected the connection to close on hub shutdown")
	}
}

package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"huddle/pkg/interfaces"
	"huddle/pkg/types"
)

// Test WebSocket upgrader for creating test connections
var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// createTestWebSocketConnection dials a throwaway server and returns the
// client side plus a channel of the messages the server read.
func createTestWebSocketConnection(t *testing.T) (*websocket.Conn, <-chan []byte) {
	t.Helper()
	received := make(chan []byte, 256)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		defer conn.Close()

		// Keep connection alive for testing
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			received <- data
		}
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to create test WebSocket connection: %v", err)
	}
	return conn, received
}

func newTestConnection(t *testing.T) (*Connection, <-chan []byte) {
	t.Helper()
	wsConn, received := createTestWebSocketConnection(t)
	conn := NewConnection(wsConn, types.Identity{UserID: "u-1", Email: "ada@example.com"}, "64b7f0c2a1b2c3d4e5f60718", Options{})
	t.Cleanup(func() { _ = conn.Close() })
	return conn, received
}

func TestConnection_InterfaceCompliance(t *testing.T) {
	var _ interfaces.Connection = &Connection{}
}

func TestConnection_NewConnectionInitialization(t *testing.T) {
	conn, _ := newTestConnection(t)

	if conn.ID() == "" {
		t.Error("Connection id should be assigned")
	}
	if cap(conn.writeCh) != DefaultSendBuffer {
		t.Errorf("Expected write channel buffer of %d, got %d", DefaultSendBuffer, cap(conn.writeCh))
	}
	if conn.State() != StateAdmitted {
		t.Errorf("New connection should be admitted, got state %d", conn.State())
	}
	if conn.IsActive() {
		t.Error("New connection should not be active")
	}
	if conn.Identity().Email != "ada@example.com" || conn.RoomID() != "64b7f0c2a1b2c3d4e5f60718" {
		t.Error("Identity and room should be fixed at construction")
	}
}

func TestConnection_UniqueIDs(t *testing.T) {
	a, _ := newTestConnection(t)
	b, _ := newTestConnection(t)
	if a.ID() == b.ID() {
		t.Error("Connections should not share ids")
	}
}

func TestConnection_StateTransitions(t *testing.T) {
	conn, _ := newTestConnection(t)

	if !conn.Activate() {
		t.Fatal("Admitted connection should activate")
	}
	if conn.Activate() {
		t.Error("Second activation should report false")
	}
	if !conn.IsActive() {
		t.Error("Connection should be active")
	}

	if !conn.MarkClosed() {
		t.Error("First close should report true")
	}
	if conn.MarkClosed() {
		t.Error("Second close should report false")
	}
	if conn.Activate() {
		t.Error("Closed connection must not reactivate")
	}
	if conn.State() != StateClosed {
		t.Errorf("Expected closed state, got %d", conn.State())
	}
}

func TestConnection_SendDeliversInOrder(t *testing.T) {
	conn, received := newTestConnection(t)

	for i := 0; i < 10; i++ {
		if err := conn.WriteJSON(map[string]int{"seq": i}); err != nil {
			t.Fatalf("WriteJSON failed: %v", err)
		}
	}

	for i := 0; i < 10; i++ {
		select {
		case data := <-received:
			var msg map[string]int
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("Invalid JSON on the wire: %v", err)
			}
			if msg["seq"] != i {
				t.Errorf("Expected seq %d, got %d", i, msg["seq"])
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Message %d was not delivered", i)
		}
	}
}

func TestConnection_ConcurrentSends(t *testing.T) {
	conn, received := newTestConnection(t)

	const senders, perSender = 10, 10
	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				if err := conn.Send([]byte(`{"message":"hi"}`)); err != nil {
					t.Errorf("Send failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	for i := 0; i < senders*perSender; i++ {
		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatalf("Only %d of %d messages delivered", i, senders*perSender)
		}
	}
}

func TestConnection_WriteJSONRejectsUnencodable(t *testing.T) {
	conn, _ := newTestConnection(t)

	if err := conn.WriteJSON(make(chan int)); err != ErrInvalidJSON {
		t.Errorf("Expected ErrInvalidJSON, got %v", err)
	}
}

func TestConnection_SendAfterClose(t *testing.T) {
	conn, _ := newTestConnection(t)

	if err := conn.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}

	if err := conn.Send([]byte("late")); err != ErrConnectionClosed {
		t.Errorf("Expected ErrConnectionClosed, got %v", err)
	}

	select {
	case <-conn.Done():
	default:
		t.Error("Done should be closed after Close")
	}
}

// stalledPeer returns a client socket whose server side never reads.
func stalledPeer(t *testing.T) *websocket.Conn {
	t.Helper()
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial stalled peer: %v", err)
	}
	return conn
}

func TestConnection_SlowConsumerIsDroppedWithoutBlocking(t *testing.T) {
	conn := NewConnection(stalledPeer(t), types.Identity{UserID: "u-2"}, "64b7f0c2a1b2c3d4e5f60718",
		Options{SendBuffer: 1, WriteTimeout: 30 * time.Second})
	t.Cleanup(func() { _ = conn.Close() })

	payload := make([]byte, 1<<20)
	var err error
	for i := 0; i < 512 && err == nil; i++ {
		start := time.Now()
		err = conn.Send(payload)
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Fatalf("Send blocked for %v", elapsed)
		}
	}

	if err != ErrSlowConsumer {
		t.Fatalf("Expected ErrSlowConsumer once the socket backs up, got %v", err)
	}
	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Slow consumer should be closed")
	}
	if err := conn.Send([]byte("late")); err != ErrConnectionClosed {
		t.Errorf("Expected ErrConnectionClosed after drop, got %v", err)
	}
}

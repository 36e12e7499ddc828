package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsPair upgrades a loopback websocket and returns both ends.
func wsPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		accepted <- ws
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case server = <-accepted:
	case <-time.After(time.Second):
		t.Fatalf("server side never accepted")
	}
	t.Cleanup(func() { _ = server.Close() })
	return server, client
}

func TestSendOverflowClosesWithoutBlocking(t *testing.T) {
	server, _ := wsPair(t)
	conn := NewConnection("u1", server)
	// No write loop running, so the buffer fills and the overflow path
	// triggers.

	start := time.Now()
	var overflowErr error
	for i := 0; i <= sendBufferSize; i++ {
		if err := conn.Send([]byte("payload")); err != nil {
			overflowErr = err
			break
		}
	}
	if overflowErr == nil {
		t.Fatalf("expected overflow to close the connection")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("overflow close blocked for %v", elapsed)
	}
	if err := conn.Send([]byte("late")); err == nil {
		t.Fatalf("send after close must fail")
	}
}

func TestCloseDeliversCloseFrame(t *testing.T) {
	server, client := wsPair(t)
	conn := NewConnection("u1", server)
	conn.Start()

	conn.Close(websocket.CloseGoingAway, "bye")

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected a close frame, got %v", err)
	}
	if closeErr.Code != websocket.CloseGoingAway {
		t.Fatalf("unexpected close code %d", closeErr.Code)
	}
}

func TestStartedConnectionDeliversInOrder(t *testing.T) {
	server, client := wsPair(t)
	conn := NewConnection("u1", server)
	conn.Start()
	defer conn.Close(websocket.CloseNormalClosure, "")

	for _, msg := range []string{"one", "two", "three"} {
		if err := conn.Send([]byte(msg)); err != nil {
			t.Fatalf("send %q: %v", msg, err)
		}
	}
	for _, want := range []string{"one", "two", "three"} {
		_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(data) != want {
			t.Fatalf("out of order: got %q want %q", data, want)
		}
	}
}

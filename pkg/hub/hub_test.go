package hub

import (
	"context"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/gorilla/websocket"
)

// serve starts a fiber app exposing h at /ws and returns its websocket URL.
func serve(t *testing.T, h *Hub) string {
	t.Helper()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", fiberws.New(h.Serve))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })

	return "ws://" + ln.Addr().String() + "/ws"
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBroadcastReachesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var count atomic.Int32
	h := New("test", WithClientCount(func(n int) { count.Store(int32(n)) }))
	go h.Run(ctx)
	url := serve(t, h)

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	waitFor(t, func() bool { return h.ClientCount() == 1 })
	if count.Load() != 1 {
		t.Errorf("count callback = %d, want 1", count.Load())
	}

	if err := h.BroadcastJSON(map[string]string{"shape": "heart"}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"heart"`) {
		t.Errorf("message = %s", data)
	}

	ws.Close()
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}

func TestLateClientGetsLastMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test")
	go h.Run(ctx)
	url := serve(t, h)

	h.Broadcast(Message{Data: []byte(`{"n":1}`)})
	h.Broadcast(Message{Data: []byte(`{"n":2}`)})
	time.Sleep(50 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"n":2}` {
		t.Errorf("replayed %s, want the last message", data)
	}
}

func TestRunStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("test")
	go h.Run(ctx)

	cancel()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	if h.ClientCount() != 0 {
		t.Error("clients left after stop")
	}
}

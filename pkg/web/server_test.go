package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-gesture/pkg/live"
	"github.com/teslashibe/go-gesture/pkg/metrics"
	"github.com/teslashibe/go-gesture/pkg/particles"
	"github.com/teslashibe/go-gesture/pkg/sink"
)

type fakeController struct {
	connectErr  error
	connects    int
	disconnects int
	sink        *sink.Sink
}

func (f *fakeController) Connect(ctx context.Context) error {
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.sink.HandleConnected("sess-1")
	return nil
}

func (f *fakeController) Disconnect() error {
	f.disconnects++
	f.sink.HandleClosed()
	return nil
}

func newTestServer() (*Server, *sink.Sink, *fakeController) {
	st := sink.New(particles.DefaultState())
	ctl := &fakeController{sink: st}
	return NewServer("127.0.0.1:0", st, ctl, metrics.New()), st, ctl
}

func TestGetParticles(t *testing.T) {
	s, st, _ := newTestServer()
	st.HandleStateUpdate(particles.Update{Shape: particles.Ptr(particles.ShapeHeart)})

	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/particles", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got particles.State
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Shape != particles.ShapeHeart || got.ColorPalette != particles.PaletteCosmic {
		t.Errorf("unexpected state %+v", got)
	}
}

func TestGetState(t *testing.T) {
	s, _, _ := newTestServer()

	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/state", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	var got sink.Snapshot
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Connection.IsConnected {
		t.Error("should not be connected")
	}
	if got.Particles != particles.DefaultState() {
		t.Errorf("particles = %+v, want defaults", got.Particles)
	}
}

func TestSessionRoutes(t *testing.T) {
	s, _, ctl := newTestServer()

	resp, err := s.app.Test(httptest.NewRequest("POST", "/api/session/connect", nil))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	var conn sink.ConnectionState
	json.NewDecoder(resp.Body).Decode(&conn)
	if resp.StatusCode != 200 || !conn.IsConnected {
		t.Errorf("connect: status %d, state %+v", resp.StatusCode, conn)
	}

	resp, err = s.app.Test(httptest.NewRequest("POST", "/api/session/disconnect", nil))
	if err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	json.NewDecoder(resp.Body).Decode(&conn)
	if resp.StatusCode != 200 || conn.IsConnected {
		t.Errorf("disconnect: status %d, state %+v", resp.StatusCode, conn)
	}

	if ctl.connects != 1 || ctl.disconnects != 1 {
		t.Errorf("controller calls = %d/%d, want 1/1", ctl.connects, ctl.disconnects)
	}
}

func TestConnectErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"already connected", live.ErrAlreadyConnected, 409},
		{"camera", live.Errorf(live.KindAcquisition, "camera", "permission denied"), 503},
		{"transport", live.Errorf(live.KindTransport, "connect", "handshake failed"), 502},
		{"other", errors.New("boom"), 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, ctl := newTestServer()
			ctl.connectErr = tt.err

			resp, err := s.app.Test(httptest.NewRequest("POST", "/api/session/connect", nil))
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			body, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(body), live.Reason(tt.err)) {
				t.Errorf("body %s missing reason", body)
			}
		})
	}
}

func TestNoController(t *testing.T) {
	st := sink.New(particles.DefaultState())
	s := NewServer("127.0.0.1:0", st, nil, nil)

	resp, err := s.app.Test(httptest.NewRequest("POST", "/api/session/connect", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 501 {
		t.Errorf("status = %d, want 501", resp.StatusCode)
	}
}

func TestMetricsAndHealth(t *testing.T) {
	s, _, _ := newTestServer()

	resp, err := s.app.Test(httptest.NewRequest("GET", "/healthz", nil))
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("healthz: %v %v", err, resp)
	}

	resp, err = s.app.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "gesture_feed_clients") {
		t.Errorf("metrics output missing feed gauge:\n%s", body)
	}
}

func TestStateFeedPushesChanges(t *testing.T) {
	s, st, _ := newTestServer()
	st.OnChange(s.Publish)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-done
	}()

	var ws *websocket.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		ws, _, err = websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/state", nil)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	for s.feed.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	st.HandleStateUpdate(particles.Update{Shape: particles.Ptr(particles.ShapeGalaxy)})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var snap sink.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Particles.Shape != particles.ShapeGalaxy {
		t.Errorf("pushed shape = %s, want galaxy", snap.Particles.Shape)
	}
}

func TestUpgradeRequired(t *testing.T) {
	s, _, _ := newTestServer()

	resp, err := s.app.Test(httptest.NewRequest("GET", "/ws/state", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 426 {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}

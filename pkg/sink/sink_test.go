package sink

import (
	"errors"
	"sync"
	"testing"

	"github.com/teslashibe/go-gesture/pkg/live"
	"github.com/teslashibe/go-gesture/pkg/particles"
)

func TestConnectLifecycle(t *testing.T) {
	s := New(particles.DefaultState())

	if s.Connection().IsConnected {
		t.Fatal("new sink should not be connected")
	}

	s.HandleConnected("sess-1")
	s.SetStreaming(true)
	c := s.Connection()
	if !c.IsConnected || !c.IsStreaming || c.SessionID != "sess-1" {
		t.Errorf("unexpected state after connect: %+v", c)
	}

	s.HandleClosed()
	c = s.Connection()
	if c.IsConnected || c.IsStreaming {
		t.Errorf("still connected after close: %+v", c)
	}
}

func TestErrorForcesDisconnected(t *testing.T) {
	s := New(particles.DefaultState())
	s.HandleConnected("sess-1")
	s.SetStreaming(true)

	s.HandleError(&live.Error{Kind: live.KindTransport, Op: "remote", Reason: "rate limited"})

	c := s.Connection()
	if c.IsConnected || c.IsStreaming {
		t.Errorf("connected after error: %+v", c)
	}
	if c.Error != "rate limited" || c.ErrorKind != "transport" {
		t.Errorf("error = %q (%s), want rate limited (transport)", c.Error, c.ErrorKind)
	}

	s.HandleConnected("sess-2")
	if s.Connection().Error != "" {
		t.Error("reconnect should clear the previous error")
	}
}

func TestConnectFailureKeepsDisconnected(t *testing.T) {
	s := New(particles.DefaultState())

	s.HandleError(errors.New("permission denied"))

	c := s.Connection()
	if c.IsConnected {
		t.Error("connected after a failed connect")
	}
	if c.Error != "permission denied" {
		t.Errorf("error = %q, want permission denied", c.Error)
	}
}

func TestStreamingRequiresConnection(t *testing.T) {
	s := New(particles.DefaultState())
	s.SetStreaming(true)
	if s.Connection().IsStreaming {
		t.Error("streaming without a connection")
	}
}

func TestStateUpdateIsSticky(t *testing.T) {
	s := New(particles.DefaultState())
	before := s.Particles()

	s.HandleStateUpdate(particles.Update{Shape: particles.Ptr(particles.ShapeHeart)})
	s.HandleStateUpdate(particles.Update{Speed: particles.Ptr(2.0)})

	after := s.Particles()
	if after.Shape != particles.ShapeHeart || after.Speed != 2.0 {
		t.Errorf("unexpected state %+v", after)
	}
	after.Shape, after.Speed = before.Shape, before.Speed
	if after != before {
		t.Errorf("untouched fields changed: %+v -> %+v", before, after)
	}
}

func TestOnChangeSeesLatestSnapshot(t *testing.T) {
	s := New(particles.DefaultState())

	var (
		mu   sync.Mutex
		last Snapshot
		n    int
	)
	s.OnChange(func(snap Snapshot) {
		mu.Lock()
		last = snap
		n++
		mu.Unlock()
	})

	s.HandleConnected("sess-1")
	s.HandleStateUpdate(particles.Update{ColorPalette: particles.Ptr(particles.PaletteOcean)})

	mu.Lock()
	defer mu.Unlock()
	if n != 2 {
		t.Errorf("notifications = %d, want 2", n)
	}
	if !last.Connection.IsConnected || last.Particles.ColorPalette != particles.PaletteOcean {
		t.Errorf("last snapshot = %+v", last)
	}
}

// Package sink holds the connection and particle state observed by the
// renderer and HUD. It is the receiving end of the live client's callbacks.
package sink

import (
	"sync"
	"time"

	"github.com/teslashibe/go-gesture/pkg/live"
	"github.com/teslashibe/go-gesture/pkg/particles"
)

// ConnectionState is the session status shown to the user.
// IsConnected is true only while a session is Active.
type ConnectionState struct {
	IsConnected bool   `json:"is_connected"`
	IsStreaming bool   `json:"is_streaming"`
	Error       string `json:"error,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

// Snapshot is the full observable state at one instant.
type Snapshot struct {
	Connection ConnectionState `json:"connection"`
	Particles  particles.State `json:"particles"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Sink stores connection and particle state. Particle reads never block.
type Sink struct {
	store *particles.Store

	mu        sync.RWMutex
	conn      ConnectionState
	updatedAt time.Time
	listeners []func(Snapshot)

	// notifyMu keeps listeners seeing snapshots in change order.
	notifyMu sync.Mutex
}

// New creates a sink with particles at initial and no session.
func New(initial particles.State) *Sink {
	return &Sink{
		store:     particles.NewStore(initial),
		updatedAt: time.Now(),
	}
}

// OnChange registers fn to receive a snapshot after every change.
// fn runs synchronously on the goroutine that made the change.
func (s *Sink) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// HandleConnected marks the session Active and clears any previous error.
func (s *Sink) HandleConnected(sessionID string) {
	s.updateConnection(func(c *ConnectionState) {
		*c = ConnectionState{IsConnected: true, SessionID: sessionID}
	})
}

// HandleStateUpdate merges a partial update into the particle state.
func (s *Sink) HandleStateUpdate(u particles.Update) {
	s.store.Apply(u)
	s.touch()
	s.notify()
}

// HandleError records a user-visible failure. The session is no longer connected.
func (s *Sink) HandleError(err error) {
	s.updateConnection(func(c *ConnectionState) {
		c.IsConnected = false
		c.IsStreaming = false
		c.Error = live.Reason(err)
		c.ErrorKind = string(live.KindOf(err))
	})
}

// HandleClosed records an explicit disconnect.
func (s *Sink) HandleClosed() {
	s.updateConnection(func(c *ConnectionState) {
		c.IsConnected = false
		c.IsStreaming = false
	})
}

// SetStreaming records whether frames are flowing. Streaming requires a connection.
func (s *Sink) SetStreaming(streaming bool) {
	s.updateConnection(func(c *ConnectionState) {
		c.IsStreaming = streaming && c.IsConnected
	})
}

// Connection returns the connection state.
func (s *Sink) Connection() ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// Particles returns the last fully merged particle state.
func (s *Sink) Particles() particles.State {
	return s.store.Load()
}

// Snapshot returns connection and particle state together.
func (s *Sink) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Connection: s.conn,
		Particles:  s.store.Load(),
		UpdatedAt:  s.updatedAt,
	}
}

func (s *Sink) updateConnection(fn func(*ConnectionState)) {
	s.mu.Lock()
	fn(&s.conn)
	s.updatedAt = time.Now()
	s.mu.Unlock()
	s.notify()
}

func (s *Sink) touch() {
	s.mu.Lock()
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

func (s *Sink) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	snap := s.Snapshot()
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

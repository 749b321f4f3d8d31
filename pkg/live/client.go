package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/metrics"
	"github.com/teslashibe/go-gesture/pkg/particles"
)

// State is the lifecycle state of the client's current session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Send budget defaults. Frames over budget are dropped, not delayed.
const (
	MaxFramePayload    = 256 << 10
	DefaultSendRate    = rate.Limit(4)
	DefaultSendBurst   = 2
	DefaultSendTimeout = 5 * time.Second

	eventBuffer = 64
)

// EventType identifies an Event.
type EventType string

const (
	EventConnected   EventType = "connected"
	EventStateUpdate EventType = "state-update"
	EventError       EventType = "error"
)

// Event mirrors a callback invocation on the per-session event stream.
type Event struct {
	Type      EventType
	SessionID string
	Update    particles.Update
	Err       error
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics records session activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithSendBudget overrides the outbound frame rate limit.
func WithSendBudget(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		c.sendRate = limit
		c.sendBurst = burst
	}
}

// WithMaxPayload overrides the largest accepted frame payload, in bytes.
func WithMaxPayload(n int) Option {
	return func(c *Client) { c.maxPayload = n }
}

// WithSendTimeout bounds a single transport write.
func WithSendTimeout(d time.Duration) Option {
	return func(c *Client) { c.sendTimeout = d }
}

type callbacks struct {
	onConnected   func(sessionID string)
	onStateUpdate func(u particles.Update)
	onError       func(err error)
}

// Client manages one streaming session at a time against a Transport.
// Set callbacks before Connect; a session keeps the callbacks it started with.
//
// Callbacks run on the session's goroutines, one at a time, and must not call
// Disconnect or Close. OnError is the exception: the session has already
// closed itself by then, so Disconnect returns immediately.
type Client struct {
	transport   Transport
	log         *slog.Logger
	metrics     *metrics.Metrics
	sendRate    rate.Limit
	sendBurst   int
	maxPayload  int
	sendTimeout time.Duration

	mu     sync.Mutex
	hooks  callbacks
	state  State
	sess   *session
	closed bool
}

// NewClient creates a client in the Idle state.
func NewClient(t Transport, opts ...Option) *Client {
	c := &Client{
		transport:   t,
		log:         log.Component("live"),
		sendRate:    DefaultSendRate,
		sendBurst:   DefaultSendBurst,
		maxPayload:  MaxFramePayload,
		sendTimeout: DefaultSendTimeout,
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnConnected sets the callback fired once when a session becomes Active.
func (c *Client) OnConnected(fn func(sessionID string)) {
	c.mu.Lock()
	c.hooks.onConnected = fn
	c.mu.Unlock()
}

// OnStateUpdate sets the callback for inbound partial updates.
func (c *Client) OnStateUpdate(fn func(u particles.Update)) {
	c.mu.Lock()
	c.hooks.onStateUpdate = fn
	c.mu.Unlock()
}

// OnError sets the callback for errors that close the session.
// Use Reason(err) for the user-facing text. fn runs on a session goroutine
// and must not call Disconnect.
func (c *Client) OnError(fn func(err error)) {
	c.mu.Lock()
	c.hooks.onError = fn
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the id of the current or last session, or "".
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.id
}

// Events returns the event stream of the current or last session, or nil
// before the first Connect. The channel is closed when the session ends.
// Delivery is best effort: events are dropped when the buffer is full.
func (c *Client) Events() <-chan Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	return c.sess.events
}

// Connect opens a new session and blocks until it is Active or has failed.
// A second Connect while Connecting or Active returns ErrAlreadyConnected and
// changes nothing. Connect failures fire OnError and are not retried.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.state == StateConnecting || c.state == StateActive {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	s := c.newSession()
	c.sess = s
	c.state = StateConnecting
	c.mu.Unlock()

	c.log.Info("connecting", "session", s.id)

	openCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	conn, err := c.transport.Open(openCtx, SessionInfo{ID: s.id})
	stop()
	cancel()

	c.mu.Lock()
	if c.sess != s || c.state != StateConnecting {
		// Disconnect won the race.
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		s.finish()
		return ErrDisconnected
	}
	if err != nil {
		c.state = StateClosed
		c.mu.Unlock()
		s.cancel()

		lerr := NewError(KindTransport, "connect", err)
		c.log.Warn("connect failed", "session", s.id, "error", lerr.Reason)
		c.metrics.SessionError(string(lerr.Kind))
		s.emitError(lerr)
		s.finish()
		return lerr
	}
	s.conn = conn
	c.state = StateActive
	s.wg.Add(2)
	c.mu.Unlock()

	c.metrics.SessionStarted()
	c.log.Info("session active", "session", s.id)

	s.emitConnected()
	go c.readLoop(s)
	go c.writeLoop(s)
	go func() {
		s.wg.Wait()
		s.finish()
	}()
	return nil
}

// SendFrame hands f to the active session's writer and reports whether it
// was accepted. It never blocks. Outside an Active session, over budget, or
// while the previous frame is still being written, the frame is dropped.
func (c *Client) SendFrame(f Frame) bool {
	c.mu.Lock()
	s := c.sess
	active := c.state == StateActive
	c.mu.Unlock()

	if !active {
		c.metrics.FrameDropped(metrics.DropInactive)
		return false
	}
	if f.Data == "" {
		c.metrics.FrameDropped(metrics.DropEmpty)
		return false
	}
	if len(f.Data) > c.maxPayload {
		c.log.Debug("frame over payload budget", "bytes", len(f.Data), "max", c.maxPayload)
		c.metrics.FrameDropped(metrics.DropOversize)
		return false
	}
	if !s.limiter.Allow() {
		c.metrics.FrameDropped(metrics.DropRate)
		return false
	}

	f.SessionID = s.id
	f.Seq = s.seq.Add(1)

	select {
	case s.out <- f:
		return true
	default:
		c.metrics.FrameDropped(metrics.DropBusy)
		return false
	}
}

// Disconnect closes the current session. It is idempotent and a no-op when
// Idle. When it returns the connection is released, the session's goroutines
// have exited and no further callbacks fire. A session that already closed
// itself finishes reporting its error before Disconnect returns, so OnError
// must not call Disconnect.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	s := c.sess
	if s == nil {
		c.mu.Unlock()
		return nil
	}
	if c.state != StateConnecting && c.state != StateActive {
		c.mu.Unlock()
		s.wg.Wait()
		s.cbMu.Lock()
		s.stopped.Store(true)
		s.cbMu.Unlock()
		return nil
	}
	wasActive := c.state == StateActive
	c.state = StateClosed
	c.mu.Unlock()

	s.stopped.Store(true)
	s.cancel()
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			c.log.Debug("close connection", "session", s.id, "error", err)
		}
	}

	// Wait out a callback that was already running.
	s.cbMu.Lock()
	s.cbMu.Unlock()

	s.wg.Wait()
	s.finish()

	if wasActive {
		c.metrics.SessionEnded()
	}
	c.log.Info("disconnected", "session", s.id)
	return nil
}

// Close disconnects and refuses further sessions.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.Disconnect()
}

// fail closes an Active session because of err and reports it once.
func (c *Client) fail(s *session, err *Error) {
	c.mu.Lock()
	if c.sess != s || c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.mu.Unlock()

	s.cancel()
	if cerr := s.conn.Close(); cerr != nil {
		c.log.Debug("close connection", "session", s.id, "error", cerr)
	}

	c.log.Warn("session closed", "session", s.id, "kind", err.Kind, "reason", err.Reason)
	c.metrics.SessionEnded()
	c.metrics.SessionError(string(err.Kind))
	s.emitError(err)
}

func (c *Client) readLoop(s *session) {
	defer s.wg.Done()

	for {
		msg, err := s.conn.Receive(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			c.fail(s, NewError(KindTransport, "receive", err))
			return
		}

		switch msg.Type {
		case MessageStateUpdate:
			c.metrics.StateUpdate()
			s.emitStateUpdate(msg.Fields)
		case MessageError:
			reason := msg.Reason
			if reason == "" {
				reason = "remote error"
			}
			c.fail(s, &Error{Kind: KindTransport, Op: "remote", Reason: reason})
			return
		default:
			c.fail(s, Errorf(KindProtocol, "receive", "unrecognized message type %q", msg.Type))
			return
		}
	}
}

func (c *Client) writeLoop(s *session) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case f := <-s.out:
			if s.ctx.Err() != nil {
				return
			}
			ctx, cancel := context.WithTimeout(s.ctx, c.sendTimeout)
			err := s.conn.Send(ctx, f)
			cancel()
			if err != nil {
				if s.ctx.Err() != nil {
					return
				}
				c.fail(s, NewError(KindTransport, "send", err))
				return
			}
			c.metrics.FrameSent(len(f.Data))
		}
	}
}

type session struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	conn    Conn
	out     chan Frame
	limiter *rate.Limiter
	seq     atomic.Uint64
	cb      callbacks
	wg      sync.WaitGroup

	// cbMu serializes callbacks against Disconnect and finish.
	cbMu     sync.Mutex
	stopped  atomic.Bool
	finished bool
	events   chan Event
}

func (c *Client) newSession() *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		id:      uuid.NewString(),
		ctx:     ctx,
		cancel:  cancel,
		out:     make(chan Frame, 1),
		limiter: rate.NewLimiter(c.sendRate, c.sendBurst),
		cb:      c.hooks,
		events:  make(chan Event, eventBuffer),
	}
}

func (s *session) deliver(ev Event, fn func()) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	if s.stopped.Load() || s.finished {
		return
	}
	if fn != nil {
		fn()
	}
	ev.SessionID = s.id
	select {
	case s.events <- ev:
	default:
	}
}

func (s *session) emitConnected() {
	var fn func()
	if s.cb.onConnected != nil {
		fn = func() { s.cb.onConnected(s.id) }
	}
	s.deliver(Event{Type: EventConnected}, fn)
}

func (s *session) emitStateUpdate(u particles.Update) {
	var fn func()
	if s.cb.onStateUpdate != nil {
		fn = func() { s.cb.onStateUpdate(u) }
	}
	s.deliver(Event{Type: EventStateUpdate, Update: u}, fn)
}

func (s *session) emitError(err error) {
	var fn func()
	if s.cb.onError != nil {
		fn = func() { s.cb.onError(err) }
	}
	s.deliver(Event{Type: EventError, Err: err}, fn)
}

// finish ends the event stream. Safe to call more than once.
func (s *session) finish() {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if !s.finished {
		s.finished = true
		close(s.events)
	}
}

// IsClosedErr reports whether err came from a session that was shut down on purpose.
func IsClosedErr(err error) bool {
	return errors.Is(err, ErrDisconnected) || errors.Is(err, ErrClientClosed) || errors.Is(err, context.Canceled)
}

package live

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-gesture/pkg/particles"
)

// Frame is one encoded camera frame ready for the wire.
// Data is already in text-safe form (base64 of the compressed image).
type Frame struct {
	Data       string
	MIMEType   string
	CapturedAt time.Time

	// Stamped by the Client.
	SessionID string
	Seq       uint64
}

// MessageType distinguishes inbound messages.
type MessageType string

const (
	MessageStateUpdate MessageType = "state-update"
	MessageError       MessageType = "error"
)

// Message is one decoded inbound message.
type Message struct {
	Type   MessageType
	Fields particles.Update
	Reason string
}

// SessionInfo describes the session a Conn is opened for.
type SessionInfo struct {
	ID string
}

// Transport opens connections to the remote inference service.
type Transport interface {
	// Open establishes a connection. It blocks until the remote side is ready
	// to accept frames or ctx is done.
	Open(ctx context.Context, info SessionInfo) (Conn, error)
}

// Conn is an open connection. Send and Receive may be called concurrently
// with each other but not with themselves.
type Conn interface {
	Send(ctx context.Context, f Frame) error

	// Receive blocks for the next inbound message. Malformed payloads are
	// reported as KindProtocol errors.
	Receive(ctx context.Context) (Message, error)

	// Close releases the connection and unblocks pending calls.
	Close() error
}

// TransportFactory creates a Transport from config.
type TransportFactory func(cfg Config) (Transport, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[Provider]TransportFactory{}
)

// Register makes a transport available under provider.
// Called from bundled transports' init functions.
func Register(p Provider, f TransportFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[p] = f
}

// Providers lists the registered providers.
func Providers() []Provider {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	out := make([]Provider, 0, len(factories))
	for p := range factories {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NewTransport creates a Transport for cfg.Provider.
// Returns an error if the config is invalid or the provider is not registered.
func NewTransport(cfg Config) (Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	factoriesMu.RLock()
	f, ok := factories[cfg.Provider]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (import pkg/live/bundled)", ErrUnknownProvider, cfg.Provider)
	}
	return f(cfg)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, info SessionInfo) (Conn, error)

// Open calls f.
func (f TransportFunc) Open(ctx context.Context, info SessionInfo) (Conn, error) {
	return f(ctx, info)
}

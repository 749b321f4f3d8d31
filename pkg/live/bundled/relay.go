package bundled

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/teslashibe/go-gesture/pkg/live"
	"github.com/teslashibe/go-gesture/pkg/particles"
)

// Relay talks to a websocket relay that speaks the compact protocol:
// frames out, state-update and error messages in.
type Relay struct {
	config live.Config
}

// NewRelay creates a relay transport.
func NewRelay(cfg live.Config) (*Relay, error) {
	if cfg.RelayURL == "" {
		return nil, live.Errorf(live.KindTransport, "config", "relay URL required")
	}
	return &Relay{config: cfg}, nil
}

// Open dials the relay. The relay is ready as soon as the upgrade completes.
func (r *Relay) Open(ctx context.Context, info live.SessionInfo) (live.Conn, error) {
	header := make(http.Header)
	header.Set("X-Session-ID", info.ID)

	ws, err := dial(ctx, r.config.HandshakeTimeout, r.config.RelayURL, header)
	if err != nil {
		return nil, err
	}
	return &relayConn{wsConn: newWSConn(ws)}, nil
}

type relayFrame struct {
	Type         string `json:"type"`
	SessionID    string `json:"session_id"`
	Seq          uint64 `json:"seq"`
	TurnComplete bool   `json:"turn_complete"`
	MIMEType     string `json:"mime_type"`
	Data         string `json:"data"`
	CapturedAt   int64  `json:"captured_at"`
}

type relayMessage struct {
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields"`
	Reason string         `json:"reason"`
}

type relayConn struct {
	*wsConn
}

func (c *relayConn) Send(ctx context.Context, f live.Frame) error {
	return c.writeJSON(ctx, relayFrame{
		Type:         "frame",
		SessionID:    f.SessionID,
		Seq:          f.Seq,
		TurnComplete: true,
		MIMEType:     f.MIMEType,
		Data:         f.Data,
		CapturedAt:   f.CapturedAt.UnixMilli(),
	})
}

func (c *relayConn) Receive(ctx context.Context) (live.Message, error) {
	data, err := c.read(ctx)
	if err != nil {
		return live.Message{}, err
	}
	return decodeRelayMessage(data)
}

func decodeRelayMessage(data []byte) (live.Message, error) {
	var msg relayMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return live.Message{}, live.NewError(live.KindProtocol, "decode", err)
	}

	switch live.MessageType(msg.Type) {
	case live.MessageStateUpdate:
		u, err := particles.DecodeUpdate(msg.Fields)
		if err != nil {
			return live.Message{}, live.NewError(live.KindProtocol, "decode", err)
		}
		return live.Message{Type: live.MessageStateUpdate, Fields: u}, nil
	case live.MessageError:
		return live.Message{Type: live.MessageError, Reason: msg.Reason}, nil
	}
	return live.Message{}, live.Errorf(live.KindProtocol, "decode", "unrecognized message type %q", msg.Type)
}

func init() {
	live.Register(live.ProviderRelay, func(cfg live.Config) (live.Transport, error) {
		return NewRelay(cfg)
	})
}

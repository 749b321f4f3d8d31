// Package bundled registers the built-in live transports.
//
// Import it for its side effects:
//
//	import _ "github.com/teslashibe/go-gesture/pkg/live/bundled"
package bundled

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-gesture/pkg/live"
)

const defaultWriteTimeout = 10 * time.Second

// dial opens a websocket, folding the HTTP status of a failed handshake into the error.
func dial(ctx context.Context, timeout time.Duration, url string, header http.Header) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake failed: %s: %w", resp.Status, err)
		}
		return nil, err
	}
	return ws, nil
}

// wsConn wraps a websocket for one reader and any number of writers.
type wsConn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}
	c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// read returns the next data message. Cancelling ctx unblocks it.
func (c *wsConn) read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, readError(err)
	}
	return data, nil
}

// readError turns a close frame into a transport error carrying the peer's reason.
func readError(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		reason := ce.Text
		if reason == "" {
			reason = fmt.Sprintf("connection closed (code %d)", ce.Code)
		}
		return &live.Error{Kind: live.KindTransport, Op: "receive", Reason: reason, Err: err}
	}
	return err
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

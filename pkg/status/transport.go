package status

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ErrClosed marks a read that ended because the peer closed the connection
// cleanly
var ErrClosed = errors.New("status connection closed")

// Conn is a live, receive-only status transport
type Conn interface {
	// ReadMessage blocks until the next text message arrives
	ReadMessage() (string, error)
	Close() error
}

// Dialer opens status transports
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial calls f
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// WebSocketDialer dials the backend status endpoint over WebSocket
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	// ReadLimit caps a single inbound message in bytes
	ReadLimit int64
	Header    http.Header
}

// NewWebSocketDialer creates a WebSocket dialer
func NewWebSocketDialer(timeout time.Duration) *WebSocketDialer {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebSocketDialer{
		HandshakeTimeout: timeout,
		ReadLimit:        64 << 10,
	}
}

// Dial establishes a WebSocket connection to endpoint
func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	wsURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid WebSocket URL %s: %w", endpoint, err)
	}
	if wsURL.Scheme != "ws" && wsURL.Scheme != "wss" {
		return nil, fmt.Errorf("invalid WebSocket scheme %s (expected ws:// or wss://)", wsURL.Scheme)
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL.String(), d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to status endpoint at %s (HTTP %d): %w", wsURL.String(), resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to status endpoint at %s: %w", wsURL.String(), err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}

	log.Debug().
		Str("transport", "websocket").
		Str("url", wsURL.String()).
		Msg("Status WebSocket connected")

	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

// ReadMessage returns the next text or binary payload as a string. Control
// frames are handled by gorilla; pings get the default pong reply.
func (c *wsConn) ReadMessage() (string, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", fmt.Errorf("%w: %v", ErrClosed, err)
			}
			return "", err
		}
		if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
			return string(data), nil
		}
	}
}

// Close sends a close frame and closes the socket
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

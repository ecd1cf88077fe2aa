// internal/online/websocket.go
//
// gorilla/websocket implementation of Dialer and Conn.

package online

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 90 * time.Second
	maxMessageSize = 64 * 1024
)

// WebsocketDialer dials the relay at URL (ws:// or wss://).
type WebsocketDialer struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer // nil means websocket.DefaultDialer
}

// Dial implements Dialer.
func (d WebsocketDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	c, _, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", d.URL, err)
	}
	c.SetReadLimit(maxMessageSize)
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.c.ReadMessage()
	if err != nil {
		return nil, err
	}
	_ = w.c.SetReadDeadline(time.Now().Add(pongWait))
	return data, nil
}

func (w *wsConn) WriteMessage(data []byte) error {
	_ = w.c.SetWriteDeadline(time.Now().Add(writeWait))
	return w.c.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Ping() error {
	return w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (w *wsConn) Close() error {
	_ = w.c.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return w.c.Close()
}

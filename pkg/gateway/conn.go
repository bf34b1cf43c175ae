package gateway

import (
	"context"

	"github.com/coder/websocket"
)

// readLimit bounds a single frame. Ready frames carry every server and member
// the bot can see, so the library default is far too small.
const readLimit = 32 << 20

// Conn is one realtime stream connection.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	// Close performs a normal closing handshake.
	Close(reason string) error
	// CloseNow drops the connection without a handshake.
	CloseNow() error
}

// Dialer opens a stream connection.
type Dialer func(ctx context.Context, url string) (Conn, error)

type wsConn struct {
	c *websocket.Conn
}

// DialWebsocket is the default Dialer.
func DialWebsocket(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c.SetReadLimit(readLimit)
	return &wsConn{c: c}, nil
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close(reason string) error {
	return w.c.Close(websocket.StatusNormalClosure, reason)
}

func (w *wsConn) CloseNow() error {
	return w.c.CloseNow()
}

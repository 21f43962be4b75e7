package session

import (
	"context"
	"fmt"
	"net/url"
	"path"

	"github.com/coder/websocket"

	"github.com/1Yie/infinite-brain-sub001/internal/protocol"
)

// Transport is one live full-duplex connection.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// WebsocketDialer opens text-frame websocket transports.
type WebsocketDialer struct {
	Options   *websocket.DialOptions
	ReadLimit int64
}

func (d WebsocketDialer) Dial(ctx context.Context, u string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, u, d.Options)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	return data, err
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "bye")
}

// SubscriptionURL builds <base>/ws/<mode>?roomId=<roomID>, plus any extra
// query parameters.
func SubscriptionURL(base string, mode protocol.Mode, roomID string, extra url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = path.Join("/", u.Path, "ws", string(mode))
	q := u.Query()
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("roomId", roomID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

package session

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/1Yie/infinite-brain-sub001/internal/protocol"
)

// Manager owns the session of one mounted room view. It never holds more
// than one session: connecting to another room closes the previous one.
type Manager[Out, In protocol.Message] struct {
	codec  *protocol.Codec[In]
	dialer Dialer
	opts   Options[Out]
	log    *zap.Logger

	mu      sync.Mutex
	current *Session[Out, In]
}

func NewManager[Out, In protocol.Message](codec *protocol.Codec[In], dialer Dialer, opts Options[Out]) *Manager[Out, In] {
	opts = opts.withDefaults()
	if dialer == nil {
		dialer = WebsocketDialer{}
	}
	return &Manager[Out, In]{
		codec:  codec,
		dialer: dialer,
		opts:   opts,
		log:    opts.Logger,
	}
}

func (m *Manager[Out, In]) Mode() protocol.Mode { return m.codec.Mode() }

// Connect returns the live session for roomID, opening one if needed. A
// still-open session for the same room is returned as is, so repeated calls
// never start a second connection or retry timer. Canceling ctx tears the
// session down.
func (m *Manager[Out, In]) Connect(ctx context.Context, roomID string) (*Session[Out, In], error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, ErrMissingRoom
	}
	u, err := SubscriptionURL(m.opts.BaseURL, m.codec.Mode(), roomID, m.opts.Query)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.current; cur != nil {
		if cur.RoomID() == roomID && cur.Status() != StatusClosed {
			return cur, nil
		}
		if cur.RoomID() != roomID {
			m.log.Info("room changed", zap.String("from", cur.RoomID()), zap.String("to", roomID))
		}
		cur.Close()
		m.current = nil
	}

	m.current = newSession(ctx, roomID, u, m.dialer, m.codec, m.opts)
	return m.current, nil
}

// Current returns the session opened last, or nil.
func (m *Manager[Out, In]) Current() *Session[Out, In] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close tears down the current session, if any.
func (m *Manager[Out, In]) Close() {
	m.mu.Lock()
	cur := m.current
	m.current = nil
	m.mu.Unlock()

	if cur != nil {
		cur.Close()
	}
}

// Package client composes the room gate, the session manager and the
// stroke board into one mountable room view per game mode.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/1Yie/infinite-brain-sub001/internal/canvas"
	"github.com/1Yie/infinite-brain-sub001/internal/listener"
	"github.com/1Yie/infinite-brain-sub001/internal/protocol"
	"github.com/1Yie/infinite-brain-sub001/internal/roomapi"
	"github.com/1Yie/infinite-brain-sub001/internal/roomgate"
	"github.com/1Yie/infinite-brain-sub001/internal/session"
)

const (
	DefaultHeartbeat    = 25 * time.Second
	DefaultCheckTimeout = 5 * time.Second
)

var (
	ErrRoomInvalid = errors.New("room is not valid")
	ErrNoChat      = errors.New("mode has no chat")
)

type Options struct {
	// BaseURL is the http(s) address of the room server. The websocket
	// address is derived from it.
	BaseURL  string
	UserID   string
	Username string

	// Gate defaults to one backed by the room server's existence endpoints.
	Gate *roomgate.Gate
	// Redirect is called when a mounted room turns out to be invalid.
	Redirect   func(roomgate.Result)
	HTTPClient *http.Client
	Dialer     session.Dialer

	RetryDelay  time.Duration
	Backoff     func() backoff.BackOff
	MaxAttempts int
	// HeartbeatInterval applies to modes with a ping message. Zero uses
	// DefaultHeartbeat; negative disables it.
	HeartbeatInterval time.Duration
	CheckTimeout      time.Duration
	OnStatus          func(roomID string, status session.Status)

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.CheckTimeout <= 0 {
		o.CheckTimeout = DefaultCheckTimeout
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = DefaultHeartbeat
	}
	if o.Gate == nil {
		api := roomapi.New(o.BaseURL, o.HTTPClient)
		o.Gate = roomgate.New(roomgate.APICheckers(api), o.Logger.Named("gate"))
	}
	return o
}

func (o Options) query() url.Values {
	q := url.Values{}
	if o.UserID != "" {
		q.Set("userId", o.UserID)
	}
	if o.Username != "" {
		q.Set("username", o.Username)
	}
	return q
}

func sessionOptions[Out protocol.Message](o Options) session.Options[Out] {
	return session.Options[Out]{
		BaseURL:     o.BaseURL,
		Query:       o.query(),
		RetryDelay:  o.RetryDelay,
		Backoff:     o.Backoff,
		MaxAttempts: o.MaxAttempts,
		OnStatus:    o.OnStatus,
		Logger:      o.Logger.Named("session"),
	}
}

// Room is one mounted room view: at most one live session, gated by a room
// existence check, with a stroke board kept in sync for drawing modes.
type Room[Out, In protocol.Message] struct {
	mode    protocol.Mode
	opts    Options
	log     *zap.Logger
	manager *session.Manager[Out, In]
	mount   *roomgate.Mount
	drawing bool
	chat    func(text string) (Out, bool)

	mu    sync.Mutex
	sess  *session.Session[Out, In]
	board *canvas.Board
	unsub func()
}

func newRoom[Out, In protocol.Message](codec *protocol.Codec[In], opts Options, sopts session.Options[Out], drawing bool, chat func(string) (Out, bool)) *Room[Out, In] {
	return &Room[Out, In]{
		mode:    codec.Mode(),
		opts:    opts,
		log:     opts.Logger.With(zap.String("mode", string(codec.Mode()))),
		manager: session.NewManager(codec, opts.Dialer, sopts),
		mount:   roomgate.NewMount(opts.Gate, opts.Redirect),
		drawing: drawing,
		chat:    chat,
	}
}

func NewGuessDrawRoom(opts Options) *Room[protocol.GuessDrawClient, protocol.GuessDrawServer] {
	opts = opts.withDefaults()
	return newRoom(protocol.GuessDrawServerCodec(), opts,
		sessionOptions[protocol.GuessDrawClient](opts), true,
		func(text string) (protocol.GuessDrawClient, bool) {
			return protocol.GuessDrawChat{Message: text}, true
		})
}

func NewColorClashRoom(opts Options) *Room[protocol.ColorClashClient, protocol.ColorClashServer] {
	opts = opts.withDefaults()
	sopts := sessionOptions[protocol.ColorClashClient](opts)
	if opts.HeartbeatInterval > 0 {
		sopts.Heartbeat = protocol.Ping{}
		sopts.HeartbeatInterval = opts.HeartbeatInterval
	}
	return newRoom(protocol.ColorClashServerCodec(), opts, sopts, false,
		func(text string) (protocol.ColorClashClient, bool) {
			return protocol.ColorClashChat{Message: text, Username: opts.Username, ID: opts.UserID}, true
		})
}

func NewWhiteboardRoom(opts Options) *Room[protocol.WhiteboardClient, protocol.WhiteboardServer] {
	opts = opts.withDefaults()
	return newRoom(protocol.WhiteboardServerCodec(), opts,
		sessionOptions[protocol.WhiteboardClient](opts), true,
		func(string) (protocol.WhiteboardClient, bool) {
			return nil, false
		})
}

func (r *Room[Out, In]) Mode() protocol.Mode { return r.mode }

// Mount validates roomID once and, if the room exists, returns the live
// session for it. Mounting the same room again returns the same session.
// Switching rooms closes the previous session and board.
func (r *Room[Out, In]) Mount(ctx context.Context, roomID string) (*session.Session[Out, In], error) {
	checkCtx, cancel := context.WithTimeout(ctx, r.opts.CheckTimeout)
	res := r.mount.Check(checkCtx, r.mode, roomID)
	cancel()
	if !res.Valid {
		r.log.Info("room rejected", zap.String("room", roomID), zap.String("reason", res.Message))
		r.mu.Lock()
		r.detach()
		r.sess = nil
		r.mu.Unlock()
		r.manager.Close()
		return nil, fmt.Errorf("%w: %s", ErrRoomInvalid, res.Message)
	}

	sess, err := r.manager.Connect(ctx, roomID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sess == r.sess {
		return sess, nil
	}
	r.detach()
	r.sess = sess
	if r.drawing {
		r.board = canvas.NewBoard(r.opts.UserID, func(m protocol.Message) {
			if out, ok := m.(Out); ok {
				sess.Send(out)
			}
		}, r.log.Named("board"))
		board := r.board
		r.unsub = sess.Subscribe(listener.Func(func(m In) {
			board.Apply(m)
		}))
	}
	return sess, nil
}

// Unmount closes the session and forgets the gate result, so mounting the
// same room later checks it again.
func (r *Room[Out, In]) Unmount() {
	r.mu.Lock()
	r.detach()
	r.sess = nil
	r.mu.Unlock()

	r.manager.Close()
	r.mount.Reset()
}

func (r *Room[Out, In]) detach() {
	if r.unsub != nil {
		r.unsub()
		r.unsub = nil
	}
	r.board = nil
}

// Session returns the mounted session, or nil.
func (r *Room[Out, In]) Session() *session.Session[Out, In] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess
}

// Board returns the stroke board of the mounted room. It is nil before
// Mount and for modes without a canvas.
func (r *Room[Out, In]) Board() *canvas.Board {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.board
}

// SendChat sends one chat line in the mode's chat message.
func (r *Room[Out, In]) SendChat(text string) error {
	msg, ok := r.chat(text)
	if !ok {
		return ErrNoChat
	}
	sess := r.Session()
	if sess == nil {
		return session.ErrConnectionLost
	}
	return sess.SendChat(msg)
}

// Package session keeps one live connection per mounted room subscription,
// retrying failed or dropped connections until the subscription is torn down.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/1Yie/infinite-brain-sub001/internal/listener"
	"github.com/1Yie/infinite-brain-sub001/internal/protocol"
)

var (
	ErrConnectionLost = errors.New("connection lost, please reconnect")
	ErrMissingRoom    = errors.New("missing room id")
)

type Status int32

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusConnected
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusClosed:
		return "closed"
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// Snapshot is a consistent view of a session's lifecycle state.
type Snapshot struct {
	RoomID       string
	Status       Status
	Attempts     int // dials started over the session's life
	Failures     int // consecutive failed attempts or drops
	Dialing      bool
	RetryPending bool
}

type sessionMsg interface{ isSessionMsg() }

type dialResult struct {
	conn Transport
	err  error
}

type retryDue struct{ gen uint64 }

type connLost struct {
	conn Transport
	err  error
}

type outbound struct {
	data  []byte
	chat  bool
	reply chan error
}

type snapshotReq struct{ reply chan Snapshot }

type reconnectReq struct{}

func (dialResult) isSessionMsg()   {}
func (retryDue) isSessionMsg()     {}
func (connLost) isSessionMsg()     {}
func (outbound) isSessionMsg()     {}
func (snapshotReq) isSessionMsg()  {}
func (reconnectReq) isSessionMsg() {}

// Session is the handle of one room subscription. All lifecycle state is
// owned by a single goroutine; public methods talk to it through inbox.
type Session[Out, In protocol.Message] struct {
	room      string
	url       string
	dialer    Dialer
	codec     *protocol.Codec[In]
	opts      Options[Out]
	log       *zap.Logger
	listeners *listener.Registry[In]

	inbox  chan sessionMsg
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	status atomic.Int32

	// owned by run
	conn      Transport
	dialing   bool
	retry     *time.Timer
	retryGen  uint64
	attempts  int
	failures  int
	policy    backoff.BackOff
	heartbeat *time.Ticker
}

func newSession[Out, In protocol.Message](parent context.Context, roomID, url string, dialer Dialer, codec *protocol.Codec[In], opts Options[Out]) *Session[Out, In] {
	ctx, cancel := context.WithCancel(parent)
	log := opts.Logger.With(zap.String("room", roomID), zap.String("mode", string(codec.Mode())))

	s := &Session[Out, In]{
		room:      roomID,
		url:       url,
		dialer:    dialer,
		codec:     codec,
		opts:      opts,
		log:       log,
		listeners: listener.NewRegistry[In](log),
		inbox:     make(chan sessionMsg),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		policy:    opts.newBackOff(),
	}
	s.status.Store(int32(StatusIdle))

	go s.run()
	return s
}

func (s *Session[Out, In]) RoomID() string { return s.room }

func (s *Session[Out, In]) Status() Status { return Status(s.status.Load()) }

// Done is closed once the session has been torn down.
func (s *Session[Out, In]) Done() <-chan struct{} { return s.done }

// Subscribe registers l for decoded inbound messages.
func (s *Session[Out, In]) Subscribe(l listener.Listener[In]) (unsubscribe func()) {
	return s.listeners.Subscribe(l)
}

// Send delivers m if the session is connected and silently drops it
// otherwise.
func (s *Session[Out, In]) Send(m Out) {
	_ = s.send(m, false)
}

// SendChat is Send for chat lines: when the session is not connected it
// fails with ErrConnectionLost instead of dropping the message.
func (s *Session[Out, In]) SendChat(m Out) error {
	return s.send(m, true)
}

func (s *Session[Out, In]) send(m Out, chat bool) error {
	data, err := protocol.Encode(m)
	if err != nil {
		s.log.Error("encode outbound message", zap.Error(err))
		return err
	}

	reply := make(chan error, 1)
	select {
	case s.inbox <- outbound{data: data, chat: chat, reply: reply}:
		return <-reply
	case <-s.ctx.Done():
		if chat {
			return ErrConnectionLost
		}
		return nil
	}
}

// Reconnect starts a new attempt right away unless one is already dialing,
// waiting on the retry timer, or connected.
func (s *Session[Out, In]) Reconnect() {
	select {
	case s.inbox <- reconnectReq{}:
	case <-s.ctx.Done():
	}
}

func (s *Session[Out, In]) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case s.inbox <- snapshotReq{reply: reply}:
		return <-reply
	case <-s.done:
		return Snapshot{RoomID: s.room, Status: StatusClosed}
	}
}

// Close tears the session down and waits until no timer, dial or
// connection of it remains. It is safe to call more than once and from a
// listener.
func (s *Session[Out, In]) Close() {
	s.cancel()
	<-s.done
}

func (s *Session[Out, In]) run() {
	defer close(s.done)
	defer s.teardown()

	s.dial()
	for {
		var tick <-chan time.Time
		if s.heartbeat != nil {
			tick = s.heartbeat.C
		}

		select {
		case <-s.ctx.Done():
			return

		case <-tick:
			s.beat()

		case m := <-s.inbox:
			switch msg := m.(type) {
			case dialResult:
				s.onDialResult(msg)
			case retryDue:
				if s.retry == nil || msg.gen != s.retryGen {
					break // stale fire
				}
				s.retry = nil
				s.dial()
			case connLost:
				s.onConnLost(msg)
			case outbound:
				msg.reply <- s.write(msg)
			case snapshotReq:
				msg.reply <- s.snapshot()
			case reconnectReq:
				if s.conn == nil && !s.dialing && s.retry == nil {
					s.dial()
				}
			}
			if s.Status() == StatusClosed {
				return
			}
		}
	}
}

func (s *Session[Out, In]) dial() {
	s.attempts++
	s.dialing = true
	s.setStatus(StatusConnecting)
	s.log.Debug("connecting", zap.Int("attempt", s.attempts))

	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.DialTimeout)
		conn, err := s.dialer.Dial(ctx, s.url)
		cancel()
		if err == nil && conn == nil {
			err = errors.New("dialer returned no transport")
		}

		select {
		case s.inbox <- dialResult{conn: conn, err: err}:
		case <-s.ctx.Done():
			if conn != nil {
				_ = conn.Close()
			}
		}
	}()
}

func (s *Session[Out, In]) onDialResult(msg dialResult) {
	s.dialing = false
	if msg.err != nil {
		s.log.Warn("connect failed", zap.Int("attempt", s.attempts), zap.Error(msg.err))
		s.scheduleRetry()
		return
	}

	s.stopRetry()
	s.conn = msg.conn
	s.failures = 0
	s.policy.Reset()
	s.setStatus(StatusConnected)
	s.log.Info("connected", zap.Int("attempts", s.attempts))

	if s.opts.heartbeatEnabled() {
		s.heartbeat = time.NewTicker(s.opts.HeartbeatInterval)
	}
	go s.read(msg.conn)
}

func (s *Session[Out, In]) onConnLost(msg connLost) {
	if msg.conn != s.conn {
		return
	}
	s.log.Warn("connection dropped", zap.Error(msg.err))
	_ = s.conn.Close()
	s.conn = nil
	s.stopHeartbeat()
	s.setStatus(StatusConnecting)
	s.scheduleRetry()
}

// scheduleRetry arms the retry timer. At most one timer is outstanding.
func (s *Session[Out, In]) scheduleRetry() {
	if s.retry != nil {
		return
	}
	s.failures++
	if s.opts.MaxAttempts > 0 && s.failures >= s.opts.MaxAttempts {
		s.log.Error("giving up", zap.Int("failures", s.failures))
		s.setStatus(StatusClosed)
		return
	}
	delay := s.policy.NextBackOff()
	if delay == backoff.Stop {
		s.log.Error("retry policy stopped", zap.Int("failures", s.failures))
		s.setStatus(StatusClosed)
		return
	}

	s.retryGen++
	gen := s.retryGen
	s.retry = time.AfterFunc(delay, func() {
		select {
		case s.inbox <- retryDue{gen: gen}:
		case <-s.ctx.Done():
		}
	})
	s.log.Debug("retry scheduled", zap.Duration("delay", delay), zap.Int("failures", s.failures))
}

func (s *Session[Out, In]) stopRetry() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}

func (s *Session[Out, In]) stopHeartbeat() {
	if s.heartbeat != nil {
		s.heartbeat.Stop()
		s.heartbeat = nil
	}
}

func (s *Session[Out, In]) write(msg outbound) error {
	if s.Status() != StatusConnected || s.conn == nil {
		if msg.chat {
			return ErrConnectionLost
		}
		s.log.Debug("dropping outbound message while disconnected", zap.String("status", s.Status().String()))
		return nil
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.WriteTimeout)
	defer cancel()
	if err := s.conn.Write(ctx, msg.data); err != nil {
		s.log.Warn("write failed", zap.Error(err))
		if msg.chat {
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
	}
	return nil
}

func (s *Session[Out, In]) beat() {
	data, err := protocol.Encode(s.opts.Heartbeat)
	if err != nil {
		s.log.Error("encode heartbeat", zap.Error(err))
		return
	}
	_ = s.write(outbound{data: data})
}

// read pumps frames from one transport into the listeners, in arrival order.
func (s *Session[Out, In]) read(conn Transport) {
	for {
		data, err := conn.Read(s.ctx)
		if err != nil {
			select {
			case s.inbox <- connLost{conn: conn, err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		if s.ctx.Err() != nil {
			return
		}

		msg, err := s.codec.Decode(data)
		if err != nil {
			s.log.Warn("dropping inbound frame", zap.Error(err))
			continue
		}
		s.listeners.Dispatch(msg)
	}
}

func (s *Session[Out, In]) setStatus(st Status) {
	if Status(s.status.Swap(int32(st))) == st {
		return
	}
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(s.room, st)
	}
}

func (s *Session[Out, In]) snapshot() Snapshot {
	return Snapshot{
		RoomID:       s.room,
		Status:       s.Status(),
		Attempts:     s.attempts,
		Failures:     s.failures,
		Dialing:      s.dialing,
		RetryPending: s.retry != nil,
	}
}

func (s *Session[Out, In]) teardown() {
	s.cancel()
	s.stopRetry()
	s.stopHeartbeat()
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.log.Debug("close transport", zap.Error(err))
		}
		s.conn = nil
	}
	s.setStatus(StatusClosed)
	s.log.Info("session closed")
}

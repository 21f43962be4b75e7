// Package hub keeps the live relays of the development server, one per
// (mode, room) pair.
package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/1Yie/infinite-brain-sub001/internal/protocol"
	"github.com/1Yie/infinite-brain-sub001/internal/relay"
)

type HubMsg interface{ isHubMsg() }

type Key struct {
	Mode   protocol.Mode
	RoomID string
}

type GetRelay struct {
	Key   Key
	Reply chan *relay.Relay
}

// EnsureRelay returns the relay for Key, starting one if needed.
type EnsureRelay struct {
	Key   Key
	Reply chan *relay.Relay
}

type RemoveRelay struct {
	Key Key
}

type CountRelays struct {
	Reply chan int
}

type ShutdownHub struct{}

func (GetRelay) isHubMsg()    {}
func (EnsureRelay) isHubMsg() {}
func (RemoveRelay) isHubMsg() {}
func (CountRelays) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox  chan HubMsg
	relays map[Key]*relay.Relay
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		relays: make(map[Key]*relay.Relay),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.done }

// Get returns the running relay for k, or nil.
func (h *Hub) Get(k Key) *relay.Relay {
	reply := make(chan *relay.Relay, 1)
	return h.ask(GetRelay{Key: k, Reply: reply}, reply)
}

// Ensure returns the relay for k, starting it if needed. It returns nil
// once the hub has shut down.
func (h *Hub) Ensure(k Key) *relay.Relay {
	reply := make(chan *relay.Relay, 1)
	return h.ask(EnsureRelay{Key: k, Reply: reply}, reply)
}

// Remove stops the relay for k, disconnecting its members.
func (h *Hub) Remove(k Key) {
	select {
	case h.inbox <- RemoveRelay{Key: k}:
	case <-h.done:
	}
}

func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.done:
	}
	<-h.done
}

func (h *Hub) ask(m HubMsg, reply chan *relay.Relay) *relay.Relay {
	select {
	case h.inbox <- m:
	case <-h.done:
		return nil
	}
	select {
	case r := <-reply:
		return r
	case <-h.done:
		return nil
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetRelay:
				msg.Reply <- h.live(msg.Key) // may be nil

			case EnsureRelay:
				if r := h.live(msg.Key); r != nil {
					msg.Reply <- r
					break
				}
				r := relay.New(h.ctx, msg.Key.Mode, msg.Key.RoomID, h.log)
				h.relays[msg.Key] = r
				h.log.Info("relay started", zap.String("mode", string(msg.Key.Mode)), zap.String("room", msg.Key.RoomID))
				msg.Reply <- r

			case RemoveRelay:
				if r := h.relays[msg.Key]; r != nil {
					r.Send(relay.Shutdown{})
					delete(h.relays, msg.Key)
				}

			case CountRelays:
				n := 0
				for k := range h.relays {
					if h.live(k) != nil {
						n++
					}
				}
				msg.Reply <- n

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// live returns the relay for k unless it has stopped, forgetting stopped
// ones.
func (h *Hub) live(k Key) *relay.Relay {
	r := h.relays[k]
	if r == nil {
		return nil
	}
	select {
	case <-r.Done():
		delete(h.relays, k)
		return nil
	default:
		return r
	}
}

func (h *Hub) shutdown() {
	for k, r := range h.relays {
		r.Send(relay.Shutdown{})
		delete(h.relays, k)
	}
	h.cancel()
}

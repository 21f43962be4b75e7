// Package relay runs one room of the development server: every member's
// frames are applied to the room's state and broadcast to all members.
package relay

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/1Yie/infinite-brain-sub001/internal/canvas"
	"github.com/1Yie/infinite-brain-sub001/internal/protocol"
)

type Msg interface{ isRelayMsg() }

type Member struct {
	ClientID string
	UserID   string
	Username string
}

type Join struct {
	Member Member
	Outbox chan []byte // encoded frames for this member
}

type Leave struct{ ClientID string }

type FromClient struct {
	ClientID string
	Msg      protocol.Message
}

type GetState struct {
	Reply chan View
}

type Shutdown struct{}

func (Join) isRelayMsg()       {}
func (Leave) isRelayMsg()      {}
func (FromClient) isRelayMsg() {}
func (GetState) isRelayMsg()   {}
func (Shutdown) isRelayMsg()   {}

type View struct {
	Mode    protocol.Mode `json:"mode"`
	RoomID  string        `json:"roomId"`
	Members int           `json:"members"`
	Strokes int           `json:"strokes"`
	Started bool          `json:"started"`
	Rounds  int           `json:"totalRounds,omitempty"`
}

type client struct {
	Member
	out chan []byte
}

type Relay struct {
	mode   protocol.Mode
	room   string
	inbox  chan Msg
	log    *zap.Logger
	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	clients map[string]*client
	board   *canvas.Board // nil for color-clash
	started bool
	rounds  int
}

func New(parent context.Context, mode protocol.Mode, roomID string, log *zap.Logger) *Relay {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}

	r := &Relay{
		mode:    mode,
		room:    roomID,
		inbox:   make(chan Msg, 64),
		log:     log.With(zap.String("mode", string(mode)), zap.String("room", roomID)),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		clients: make(map[string]*client),
	}
	if mode != protocol.ModeColorClash {
		// Board calls emit synchronously from inside loop.
		r.board = canvas.NewBoard("", r.broadcast, r.log)
	}

	go r.loop()
	return r
}

func (r *Relay) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the relay has stopped.
func (r *Relay) Done() <-chan struct{} { return r.done }

// Send posts m unless the relay has stopped.
func (r *Relay) Send(m Msg) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.inbox <- m:
		return true
	case <-r.done:
		return false
	}
}

// State returns the relay's view, or false once it has stopped.
func (r *Relay) State() (View, bool) {
	reply := make(chan View, 1)
	if !r.Send(GetState{Reply: reply}) {
		return View{}, false
	}
	select {
	case v := <-reply:
		return v, true
	case <-r.done:
		return View{}, false
	}
}

func (r *Relay) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.clients[msg.Member.ClientID] = &client{Member: msg.Member, out: msg.Outbox}
				if r.board != nil {
					r.sendTo(msg.Member.ClientID, protocol.CanvasSync{Strokes: r.board.Strokes()})
				}
				r.log.Debug("member joined", zap.String("client", msg.Member.ClientID), zap.Int("members", len(r.clients)))

			case Leave:
				if c, ok := r.clients[msg.ClientID]; ok {
					close(c.out)
					delete(r.clients, msg.ClientID)
				}

			case FromClient:
				c, ok := r.clients[msg.ClientID]
				if !ok {
					break
				}
				r.apply(c, msg.Msg)

			case GetState:
				v := View{
					Mode:    r.mode,
					RoomID:  r.room,
					Members: len(r.clients),
					Started: r.started,
					Rounds:  r.rounds,
				}
				if r.board != nil {
					v.Strokes = len(r.board.Strokes())
				}
				msg.Reply <- v

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Relay) apply(from *client, msg protocol.Message) {
	if r.board == nil {
		switch msg.(type) {
		case protocol.Draw, protocol.StrokeFinish, protocol.Clear, protocol.Undo, protocol.Redo:
			r.sendTo(from.ClientID, protocol.Error{Message: "room has no canvas"})
			return
		}
	}

	switch m := msg.(type) {
	case protocol.Draw:
		r.applyStroke(m, m.Data.ID)
	case protocol.StrokeFinish:
		r.applyStroke(m, m.Data.ID)
	case protocol.Clear:
		r.board.Clear()
	case protocol.Undo:
		// The room decides which stroke goes: the latest one it holds for
		// the requester, which may differ from what the client assumed.
		if _, ok := r.board.Undo(m.UserID); !ok {
			r.sendTo(from.ClientID, protocol.Error{Message: "nothing to undo"})
		}
	case protocol.Redo:
		r.board.Redo(m.UserID)

	case protocol.GuessAttempt:
		r.broadcast(r.chat(from, m.Guess))
	case protocol.GuessDrawChat:
		r.broadcast(r.chat(from, m.Message))
	case protocol.GuessDrawGameStart:
		r.rounds = m.TotalRounds
		if r.rounds <= 0 {
			r.rounds = protocol.DefaultTotalRounds
		}
		r.start()

	case protocol.ColorClashDraw:
		r.broadcast(m)
	case protocol.ColorClashChat:
		line := r.chat(from, m.Message)
		if m.Username != "" {
			line.Username = m.Username
		}
		if m.ID != "" {
			line.UserID = m.ID
		}
		r.broadcast(line)
	case protocol.ColorClashGameStart:
		r.start()
	case protocol.Ping:
		r.sendTo(from.ClientID, protocol.Pong{})

	default:
		r.log.Warn("unhandled message", zap.String("type", msg.Type()))
	}
}

func (r *Relay) chat(from *client, text string) protocol.ChatBroadcast {
	return protocol.ChatBroadcast{
		Message:   text,
		Username:  from.Username,
		UserID:    from.UserID,
		Timestamp: r.now().UnixMilli(),
	}
}

func (r *Relay) start() {
	r.started = true
	state, _ := json.Marshal(map[string]any{
		"status":      "playing",
		"totalRounds": r.rounds,
	})
	r.broadcast(protocol.GameState{State: state})
}

func (r *Relay) shutdown() {
	for id, c := range r.clients {
		close(c.out)
		delete(r.clients, id)
	}
	r.cancel()
}

func (r *Relay) broadcast(m protocol.Message) {
	data, err := protocol.Encode(m)
	if err != nil {
		r.log.Error("encode broadcast", zap.Error(err))
		return
	}
	for id, c := range r.clients {
		select {
		case c.out <- data:
		default:
			// Member is slow/full - drop them.
			r.log.Warn("dropping slow member", zap.String("client", id))
			close(c.out)
			delete(r.clients, id)
		}
	}
}

func (r *Relay) sendTo(clientID string, m protocol.Message) {
	c, ok := r.clients[clientID]
	if !ok {
		return
	}
	data, err := protocol.Encode(m)
	if err != nil {
		r.log.Error("encode reply", zap.Error(err))
		return
	}
	select {
	case c.out <- data:
	default:
		r.log.Warn("dropping slow member", zap.String("client", clientID))
		close(c.out)
		delete(r.clients, clientID)
	}
}

// applyStroke folds a draw frame into the room. Frames for a stroke the
// room has undone are absorbed so members never see it come back.
func (r *Relay) applyStroke(m protocol.Message, id string) {
	r.board.Apply(m)
	if r.board.Retracted(id) {
		r.log.Debug("absorbing frame for retracted stroke", zap.String("stroke", id))
		return
	}
	r.broadcast(m)
}

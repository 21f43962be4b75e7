package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/1Yie/infinite-brain-sub001/internal/hub"
	"github.com/1Yie/infinite-brain-sub001/internal/protocol"
	"github.com/1Yie/infinite-brain-sub001/internal/relay"
	"github.com/1Yie/infinite-brain-sub001/internal/store"
)

type Options struct {
	ReadTimeout  time.Duration // idle limit between client frames; 0 disables it
	WriteTimeout time.Duration
	ClientBuffer int
	ReadLimit    int64
	// OriginPatterns is passed to websocket.Accept.
	OriginPatterns []string
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	if o.ClientBuffer <= 0 {
		o.ClientBuffer = 32
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	return o
}

// Handler serves GET /ws/{mode}?roomId=. The room must exist in rooms.
func Handler(h *hub.Hub, rooms store.RoomStore, opts Options, log *zap.Logger) http.HandlerFunc {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		mode := protocol.Mode(chi.URLParam(r, "mode"))
		if !mode.Valid() {
			http.Error(w, "unknown mode", http.StatusNotFound)
			return
		}
		roomID := r.URL.Query().Get("roomId")
		if roomID == "" {
			http.Error(w, "missing roomId", http.StatusBadRequest)
			return
		}

		if _, err := rooms.Get(r.Context(), mode, roomID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "room not found", http.StatusNotFound)
				return
			}
			log.Error("room lookup", zap.Error(err))
			http.Error(w, "room lookup failed", http.StatusInternalServerError)
			return
		}

		rl := h.Ensure(hub.Key{Mode: mode, RoomID: roomID})
		if rl == nil {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(opts.ReadLimit)

		clientID := uuid.NewString()
		member := relay.Member{
			ClientID: clientID,
			UserID:   r.URL.Query().Get("userId"),
			Username: r.URL.Query().Get("username"),
		}
		if member.Username == "" {
			member.Username = "guest-" + clientID[:4]
		}
		clog := log.With(zap.String("mode", string(mode)), zap.String("room", roomID), zap.String("client", clientID))

		out := make(chan []byte, opts.ClientBuffer)
		if !rl.Send(relay.Join{Member: member, Outbox: out}) {
			conn.Close(websocket.StatusGoingAway, "room closed")
			return
		}
		defer rl.Send(relay.Leave{ClientID: clientID})
		clog.Debug("client connected")

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for data := range out {
				ctx, cancel := context.WithTimeout(writeCtx, opts.WriteTimeout)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					clog.Debug("write failed", zap.Error(err))
					break
				}
			}
			// The relay dropped us or shut down.
			conn.Close(websocket.StatusGoingAway, "room closed")
		}()

		// Reader loop
		for {
			ctx, cancel := readContext(r.Context(), opts.ReadTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					clog.Debug("read ended", zap.Error(err))
				}
				return
			}

			msg, err := protocol.DecodeClient(mode, data)
			if err != nil {
				writeError(r.Context(), conn, err, opts.WriteTimeout)
				continue
			}
			if !rl.Send(relay.FromClient{ClientID: clientID, Msg: msg}) {
				return
			}
		}
	}
}

func readContext(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}

func writeError(ctx context.Context, conn *websocket.Conn, cause error, timeout time.Duration) {
	data, err := protocol.Encode(protocol.Error{Message: cause.Error()})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, data)
}

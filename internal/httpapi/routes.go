package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/1Yie/infinite-brain-sub001/internal/hub"
	"github.com/1Yie/infinite-brain-sub001/internal/protocol"
	"github.com/1Yie/infinite-brain-sub001/internal/store"
	"github.com/1Yie/infinite-brain-sub001/internal/ws"
)

func SetupRoutes(h *hub.Hub, rooms store.RoomStore, wsOpts ws.Options, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return (&api{hub: h, rooms: rooms, log: log, code: GenerateCode}).routes(wsOpts)
}

func (a *api) routes(wsOpts ws.Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws/{mode}", ws.Handler(a.hub, a.rooms, wsOpts, a.log))

	r.Route("/api", func(r chi.Router) {
		r.Get("/guess-draw/rooms/{id}/state", a.guessDrawState)
		r.Get("/color-clash/rooms/{id}", a.colorClashRoom)
		r.Get("/whiteboard/rooms/{id}", a.whiteboardRoom)

		for _, mode := range []protocol.Mode{protocol.ModeGuessDraw, protocol.ModeColorClash, protocol.ModeWhiteboard} {
			r.Post("/"+string(mode)+"/rooms", a.createRoom(mode))
			r.Delete("/"+string(mode)+"/rooms/{id}", a.deleteRoom(mode))
		}
	})
	return r
}

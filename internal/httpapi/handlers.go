package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/1Yie/infinite-brain-sub001/internal/hub"
	"github.com/1Yie/infinite-brain-sub001/internal/protocol"
	"github.com/1Yie/infinite-brain-sub001/internal/store"
)

const maxCodeAttempts = 10

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type api struct {
	hub   *hub.Hub
	rooms store.RoomStore
	log   *zap.Logger
	// code is swapped in tests.
	code func() (string, error)
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Room    any    `json:"room,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// createRoom serves POST /api/{mode}/rooms with an optional {"name"} body.
func (a *api) createRoom(mode protocol.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.create(w, r, mode)
	}
}

func (a *api) create(w http.ResponseWriter, r *http.Request, mode protocol.Mode) {
	var body struct {
		Name string `json:"name"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, envelope{Message: "bad json"})
			return
		}
	}

	for range maxCodeAttempts {
		code, err := a.code()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, envelope{Message: "failed to generate code"})
			return
		}
		room := store.Room{ID: code, Mode: mode, Name: body.Name}
		err = a.rooms.Create(r.Context(), room)
		if errors.Is(err, store.ErrExists) {
			a.log.Debug("collision on code, regenerating", zap.String("code", code))
			continue
		}
		if err != nil {
			a.log.Error("create room", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, envelope{Message: "failed to create room"})
			return
		}
		created, err := a.rooms.Get(r.Context(), mode, code)
		if err != nil {
			created = room
		}
		writeJSON(w, http.StatusCreated, envelope{Success: true, Room: created})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, envelope{Message: "no free room code"})
}

// deleteRoom serves DELETE /api/{mode}/rooms/{id} and disconnects members.
func (a *api) deleteRoom(mode protocol.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.remove(w, r, mode, chi.URLParam(r, "id"))
	}
}

func (a *api) remove(w http.ResponseWriter, r *http.Request, mode protocol.Mode, id string) {
	if err := a.rooms.Delete(r.Context(), mode, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, envelope{Message: "room not found"})
			return
		}
		a.log.Error("delete room", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, envelope{Message: "failed to delete room"})
		return
	}
	a.hub.Remove(hub.Key{Mode: mode, RoomID: id})
	w.WriteHeader(http.StatusNoContent)
}

// guessDrawState serves GET /api/guess-draw/rooms/{id}/state.
func (a *api) guessDrawState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	room, ok := a.lookup(w, r, protocol.ModeGuessDraw, id, true)
	if !ok {
		return
	}
	data := map[string]any{"room": room}
	if rl := a.hub.Get(hub.Key{Mode: protocol.ModeGuessDraw, RoomID: id}); rl != nil {
		if v, ok := rl.State(); ok {
			data["state"] = v
		}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// colorClashRoom serves GET /api/color-clash/rooms/{id}.
func (a *api) colorClashRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := a.lookup(w, r, protocol.ModeColorClash, chi.URLParam(r, "id"), true)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Room: room})
}

// whiteboardRoom serves GET /api/whiteboard/rooms/{id}: the bare room, or 404.
func (a *api) whiteboardRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := a.lookup(w, r, protocol.ModeWhiteboard, chi.URLParam(r, "id"), false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (a *api) lookup(w http.ResponseWriter, r *http.Request, mode protocol.Mode, id string, enveloped bool) (store.Room, bool) {
	room, err := a.rooms.Get(r.Context(), mode, id)
	if err == nil {
		return room, true
	}

	status, msg := http.StatusInternalServerError, "room lookup failed"
	if errors.Is(err, store.ErrNotFound) {
		status, msg = http.StatusNotFound, "room not found"
	} else {
		a.log.Error("room lookup", zap.Error(err))
	}
	if enveloped {
		writeJSON(w, status, envelope{Message: msg})
	} else {
		http.Error(w, msg, status)
	}
	return store.Room{}, false
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/1Yie/infinite-brain-sub001/internal/hub"
	"github.com/1Yie/infinite-brain-sub001/internal/protocol"
	"github.com/1Yie/infinite-brain-sub001/internal/store"
	"github.com/1Yie/infinite-brain-sub001/internal/ws"
)

type testServer struct {
	*httptest.Server
	rooms *store.Memory
	hub   *hub.Hub
}

func newTestServer(t *testing.T, codes ...string) *testServer {
	t.Helper()
	rooms := store.NewMemory()
	h := hub.NewHub(context.Background(), zaptest.NewLogger(t))
	a := &api{hub: h, rooms: rooms, log: zaptest.NewLogger(t), code: GenerateCode}
	if len(codes) > 0 {
		a.code = func() (string, error) {
			c := codes[0]
			if len(codes) > 1 {
				codes = codes[1:]
			}
			return c, nil
		}
	}
	srv := httptest.NewServer(a.routes(ws.Options{WriteTimeout: time.Second, ClientBuffer: 8}))
	t.Cleanup(func() {
		srv.Close()
		h.Shutdown()
	})
	return &testServer{Server: srv, rooms: rooms, hub: h}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode()
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Equal(t, strings.ToUpper(code), code)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	resp, _ := s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateRoom(t *testing.T) {
	s := newTestServer(t, "TAKEN1", "TAKEN1", "FREE22")
	require.NoError(t, s.rooms.Create(context.Background(), store.Room{ID: "TAKEN1", Mode: protocol.ModeColorClash}))

	resp, body := s.do(t, http.MethodPost, "/api/color-clash/rooms", `{"name":"friday"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	room, ok := body["room"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "FREE22", room["id"], "collisions regenerate the code")
	assert.Equal(t, "friday", room["name"])
	assert.Equal(t, "color-clash", room["mode"])

	resp, _ = s.do(t, http.MethodPost, "/api/color-clash/rooms", `{nope`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/api/chess/rooms", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoomEndpoints(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.rooms.Create(ctx, store.Room{ID: "R1", Mode: protocol.ModeGuessDraw}))
	require.NoError(t, s.rooms.Create(ctx, store.Room{ID: "C1", Mode: protocol.ModeColorClash}))
	require.NoError(t, s.rooms.Create(ctx, store.Room{ID: "W1", Mode: protocol.ModeWhiteboard}))

	resp, body := s.do(t, http.MethodGet, "/api/guess-draw/rooms/R1/state", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.NotNil(t, body["data"])

	resp, body = s.do(t, http.MethodGet, "/api/guess-draw/rooms/ABC/state", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "room not found", body["message"])

	resp, body = s.do(t, http.MethodGet, "/api/color-clash/rooms/C1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	resp, body = s.do(t, http.MethodGet, "/api/color-clash/rooms/R1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "rooms are scoped by mode")
	assert.Equal(t, false, body["success"])

	resp, body = s.do(t, http.MethodGet, "/api/whiteboard/rooms/W1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "W1", body["id"])

	resp, _ = s.do(t, http.MethodGet, "/api/whiteboard/rooms/W2", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func dialRoom(t *testing.T, s *testServer, mode protocol.Mode, room string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/" + string(mode) + "?roomId=" + room
	conn, _, err := websocket.Dial(ctx, u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "bye") })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(frame)))
}

func TestWebsocket_RejectsUnknownRoom(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(s.URL, "http")+"/ws/guess-draw?roomId=ABC", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebsocket_RelaysBetweenMembers(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.rooms.Create(context.Background(), store.Room{ID: "W1", Mode: protocol.ModeWhiteboard}))

	a := dialRoom(t, s, protocol.ModeWhiteboard, "W1")
	assert.Equal(t, "canvas-sync", readFrame(t, a)["type"])
	b := dialRoom(t, s, protocol.ModeWhiteboard, "W1")
	assert.Equal(t, "canvas-sync", readFrame(t, b)["type"])

	writeFrame(t, a, `{"type":"stroke-finish","data":{"id":"s1","userId":"u1","points":[],"color":"#000","width":1,"isComplete":true}}`)
	assert.Equal(t, "stroke-finish", readFrame(t, a)["type"])
	assert.Equal(t, "stroke-finish", readFrame(t, b)["type"])

	writeFrame(t, b, `{"type":"guess-attempt","guess":"cat"}`)
	got := readFrame(t, b)
	assert.Equal(t, "error", got["type"], "frames outside the mode are answered with an error")

	writeFrame(t, b, `{"type":"undo","userId":"u1","strokeId":"s1"}`)
	assert.Equal(t, "s1", readFrame(t, a)["strokeId"])
	assert.Equal(t, "s1", readFrame(t, b)["strokeId"])
}

func TestWebsocket_DeleteRoomDisconnects(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.rooms.Create(context.Background(), store.Room{ID: "C1", Mode: protocol.ModeColorClash}))

	conn := dialRoom(t, s, protocol.ModeColorClash, "C1")
	writeFrame(t, conn, `{"type":"ping"}`)
	assert.Equal(t, "pong", readFrame(t, conn)["type"])

	resp, _ := s.do(t, http.MethodDelete, "/api/color-clash/rooms/C1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))

	resp, _ = s.do(t, http.MethodDelete, "/api/color-clash/rooms/C1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

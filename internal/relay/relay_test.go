package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/1Yie/infinite-brain-sub001/internal/protocol"
)

// helper: receive one frame with a timeout so tests never hang
func recvFrame(t *testing.T, ch <-chan []byte, within time.Duration) map[string]any {
	t.Helper()
	select {
	case data, ok := <-ch:
		if !ok {
			t.Fatalf("member outbox closed unexpectedly")
		}
		var out map[string]any
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	case <-time.After(within):
		t.Fatalf("timed out waiting for frame")
		return nil
	}
}

func recvNoFrame(t *testing.T, ch <-chan []byte, within time.Duration) {
	t.Helper()
	select {
	case data, ok := <-ch:
		if !ok {
			return
		}
		t.Fatalf("expected no frame within %v, got %s", within, data)
	case <-time.After(within):
	}
}

func recvView(t *testing.T, r *Relay) View {
	t.Helper()
	v, ok := r.State()
	require.True(t, ok, "relay stopped")
	return v
}

func newRelay(t *testing.T, mode protocol.Mode) *Relay {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r := New(ctx, mode, "R1", zaptest.NewLogger(t))
	r.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return r
}

func join(t *testing.T, r *Relay, id, user string) chan []byte {
	t.Helper()
	out := make(chan []byte, 8)
	r.Inbox() <- Join{Member: Member{ClientID: id, UserID: user, Username: "name-" + id}, Outbox: out}
	return out
}

const wait = 200 * time.Millisecond

func stroke(id, user string) protocol.StrokeData {
	return protocol.StrokeData{ID: id, UserID: user, Points: []protocol.Point{{X: 1, Y: 1}}, Color: "#000", Width: 1, IsComplete: true}
}

func TestRelay_JoinSendsCanvasSync(t *testing.T) {
	r := newRelay(t, protocol.ModeWhiteboard)
	a := join(t, r, "a", "u1")
	assert.Equal(t, "canvas-sync", recvFrame(t, a, wait)["type"])

	r.Inbox() <- FromClient{ClientID: "a", Msg: protocol.StrokeFinish{Data: stroke("s1", "u1")}}
	assert.Equal(t, "stroke-finish", recvFrame(t, a, wait)["type"])

	b := join(t, r, "b", "u2")
	sync := recvFrame(t, b, wait)
	assert.Equal(t, "canvas-sync", sync["type"])
	strokes, ok := sync["strokes"].([]any)
	require.True(t, ok)
	assert.Len(t, strokes, 1)

	v := recvView(t, r)
	assert.Equal(t, 2, v.Members)
	assert.Equal(t, 1, v.Strokes)
}

func TestRelay_BroadcastIncludesSender(t *testing.T) {
	r := newRelay(t, protocol.ModeGuessDraw)
	a := join(t, r, "a", "u1")
	b := join(t, r, "b", "u2")
	recvFrame(t, a, wait)
	recvFrame(t, b, wait)

	r.Inbox() <- FromClient{ClientID: "a", Msg: protocol.GuessDrawChat{Message: "hi"}}
	for _, ch := range []chan []byte{a, b} {
		got := recvFrame(t, ch, wait)
		assert.Equal(t, "game-chat", got["type"])
		assert.Equal(t, "hi", got["message"])
		assert.Equal(t, "name-a", got["username"])
		assert.Equal(t, "u1", got["userId"])
		assert.Equal(t, float64(1700000000000), got["timestamp"])
	}
}

func TestRelay_UndoPicksRequestersLatest(t *testing.T) {
	r := newRelay(t, protocol.ModeGuessDraw)
	a := join(t, r, "a", "u1")
	recvFrame(t, a, wait)

	for _, s := range []protocol.StrokeData{stroke("s1", "u1"), stroke("s2", "u1"), stroke("s3", "u2")} {
		r.Inbox() <- FromClient{ClientID: "a", Msg: protocol.StrokeFinish{Data: s}}
		recvFrame(t, a, wait)
	}

	r.Inbox() <- FromClient{ClientID: "a", Msg: protocol.Undo{UserID: "u1", StrokeID: "s1"}}
	got := recvFrame(t, a, wait)
	assert.Equal(t, "undo", got["type"])
	assert.Equal(t, "s2", got["strokeId"], "the room retracts its own latest u1 stroke")
	assert.Equal(t, "u1", got["userId"])

	r.Inbox() <- FromClient{ClientID: "a", Msg: protocol.Redo{UserID: "u1"}}
	got = recvFrame(t, a, wait)
	assert.Equal(t, "redo", got["type"])
	data, ok := got["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "s2", data["id"])

	r.Inbox() <- FromClient{ClientID: "a", Msg: protocol.Redo{UserID: "u1"}}
	recvNoFrame(t, a, 50*time.Millisecond)
}

func TestRelay_DrawAfterUndoIsAbsorbed(t *testing.T) {
	r := newRelay(t, protocol.ModeWhiteboard)
	a := join(t, r, "a", "u1")
	c := join(t, r, "c", "u2")
	recvFrame(t, a, wait)
	recvFrame(t, c, wait)

	open := protocol.StrokeData{ID: "s", UserID: "u1", Points: []protocol.Point{{X: 1, Y: 1}}, Color: "#000", Width: 1}
	r.Inbox() <- FromClient{ClientID: "a", Msg: protocol.Draw{Data: open}}
	recvFrame(t, a, wait)
	assert.Equal(t, "draw", recvFrame(t, c, wait)["type"])

	r.Inbox() <- FromClient{ClientID: "c", Msg: protocol.Undo{}}
	recvFrame(t, a, wait)
	assert.Equal(t, "undo", recvFrame(t, c, wait)["type"])

	open.Points = append(open.Points, protocol.Point{X: 2, Y: 2})
	r.Inbox() <- FromClient{ClientID: "a", Msg: protocol.Draw{Data: open}}
	r.Inbox() <- FromClient{ClientID: "a", Msg: protocol.StrokeFinish{Data: open}}
	recvNoFrame(t, c, 50*time.Millisecond)
	recvNoFrame(t, a, 10*time.Millisecond)
	assert.Equal(t, 0, recvView(t, r).Strokes)

	r.Inbox() <- FromClient{ClientID: "c", Msg: protocol.Redo{}}
	got := recvFrame(t, c, wait)
	assert.Equal(t, "redo", got["type"])
	data, ok := got["data"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, data["points"], 2, "the redo carries the frames absorbed meanwhile")
	assert.Equal(t, 1, recvView(t, r).Strokes)
}

func TestRelay_UndoWithNothingToUndoRepliesToSenderOnly(t *testing.T) {
	r := newRelay(t, protocol.ModeWhiteboard)
	a := join(t, r, "a", "u1")
	b := join(t, r, "b", "u2")
	recvFrame(t, a, wait)
	recvFrame(t, b, wait)

	r.Inbox() <- FromClient{ClientID: "a", Msg: protocol.Undo{UserID: "u1"}}
	assert.Equal(t, "error", recvFrame(t, a, wait)["type"])
	recvNoFrame(t, b, 50*time.Millisecond)
}

func TestRelay_PingAnsweredToSender(t *testing.T) {
	r := newRelay(t, protocol.ModeColorClash)
	a := join(t, r, "a", "")
	b := join(t, r, "b", "")

	r.Inbox() <- FromClient{ClientID: "a", Msg: protocol.Ping{}}
	assert.Equal(t, "pong", recvFrame(t, a, wait)["type"])
	recvNoFrame(t, b, 50*time.Millisecond)
}

func TestRelay_ColorClash(t *testing.T) {
	r := newRelay(t, protocol.ModeColorClash)
	a := join(t, r, "a", "")

	r.Inbox() <- FromClient{ClientID: "a", Msg: protocol.ColorClashDraw{Data: protocol.CellPaint{X: 1, Y: 2, Color: "red"}}}
	got := recvFrame(t, a, wait)
	assert.Equal(t, "draw", got["type"])

	r.Inbox() <- FromClient{ClientID: "a", Msg: protocol.ColorClashChat{Message: "gg", Username: "ann", ID: "p1"}}
	got = recvFrame(t, a, wait)
	assert.Equal(t, "ann", got["username"])
	assert.Equal(t, "p1", got["userId"])

	r.Inbox() <- FromClient{ClientID: "a", Msg: protocol.Clear{}}
	assert.Equal(t, "error", recvFrame(t, a, wait)["type"])

	r.Inbox() <- FromClient{ClientID: "a", Msg: protocol.ColorClashGameStart{}}
	assert.Equal(t, "game-state", recvFrame(t, a, wait)["type"])
	assert.True(t, recvView(t, r).Started)
}

func TestRelay_GameStartDefaultsRounds(t *testing.T) {
	r := newRelay(t, protocol.ModeGuessDraw)
	a := join(t, r, "a", "u1")
	recvFrame(t, a, wait)

	r.Inbox() <- FromClient{ClientID: "a", Msg: protocol.GuessDrawGameStart{}}
	got := recvFrame(t, a, wait)
	require.Equal(t, "game-state", got["type"])
	state, ok := got["state"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), state["totalRounds"])
	assert.Equal(t, 3, recvView(t, r).Rounds)
}

func TestRelay_SlowMemberIsDropped(t *testing.T) {
	r := newRelay(t, protocol.ModeColorClash)
	slow := make(chan []byte) // unbuffered and never read
	r.Inbox() <- Join{Member: Member{ClientID: "slow"}, Outbox: slow}
	fast := join(t, r, "fast", "")

	r.Inbox() <- FromClient{ClientID: "fast", Msg: protocol.ColorClashGameStart{}}
	recvFrame(t, fast, wait)

	_, ok := <-slow
	assert.False(t, ok, "slow member's outbox should be closed")
	assert.Equal(t, 1, recvView(t, r).Members)
}

func TestRelay_LeaveAndShutdown(t *testing.T) {
	r := newRelay(t, protocol.ModeWhiteboard)
	a := join(t, r, "a", "")
	b := join(t, r, "b", "")
	recvFrame(t, a, wait)
	recvFrame(t, b, wait)

	r.Inbox() <- Leave{ClientID: "a"}
	_, ok := <-a
	assert.False(t, ok)

	r.Inbox() <- FromClient{ClientID: "a", Msg: protocol.Clear{}}
	recvNoFrame(t, b, 50*time.Millisecond)
	assert.Equal(t, 1, recvView(t, r).Members)

	r.Inbox() <- Shutdown{}
	_, ok = <-b
	assert.False(t, ok)
	<-r.Done()
	_, alive := r.State()
	assert.False(t, alive)
	assert.False(t, r.Send(Leave{ClientID: "b"}))
}

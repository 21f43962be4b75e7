package protocol

import "encoding/json"

const (
	TypeDraw         = "draw"
	TypeStrokeFinish = "stroke-finish"
	TypeClear        = "clear"
	TypeUndo         = "undo"
	TypeRedo         = "redo"
	TypeCanvasSync   = "canvas-sync"
	TypeGameState    = "game-state"
	TypeGameChat     = "game-chat"
	TypeGameStart    = "game-start"
	TypeGuessAttempt = "guess-attempt"
	TypeGuessResult  = "guess-result"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeError        = "error"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StrokeData is the wire form of a stroke. UserID is empty for anonymous
// authors.
type StrokeData struct {
	ID         string  `json:"id"`
	UserID     string  `json:"userId,omitempty"`
	Points     []Point `json:"points"`
	Color      string  `json:"color"`
	Width      float64 `json:"width"`
	IsComplete bool    `json:"isComplete"`
}

// Draw carries a stroke in progress.
type Draw struct {
	Data StrokeData `json:"data"`
}

// StrokeFinish carries a completed stroke.
type StrokeFinish struct {
	Data StrokeData `json:"data"`
}

type Clear struct{}

// Undo asks for, or announces, the retraction of StrokeID. UserID scopes the
// request to one author; empty means any author.
type Undo struct {
	UserID   string `json:"userId,omitempty"`
	StrokeID string `json:"strokeId"`
}

// Redo asks for, or announces, the restoration of a retracted stroke.
type Redo struct {
	UserID string     `json:"userId,omitempty"`
	Data   StrokeData `json:"data"`
}

// CanvasSync replaces the whole canvas with the server's view.
type CanvasSync struct {
	Strokes []StrokeData `json:"strokes"`
}

// GameState is opaque to this layer; consumers decode State themselves.
type GameState struct {
	State json.RawMessage `json:"state"`
}

// ChatBroadcast is a chat line relayed by the server.
type ChatBroadcast struct {
	Message   string `json:"message"`
	Username  string `json:"username"`
	UserID    string `json:"userId,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type Error struct {
	Message string `json:"message"`
}

func (Draw) Type() string          { return TypeDraw }
func (StrokeFinish) Type() string  { return TypeStrokeFinish }
func (Clear) Type() string         { return TypeClear }
func (Undo) Type() string          { return TypeUndo }
func (Redo) Type() string          { return TypeRedo }
func (CanvasSync) Type() string    { return TypeCanvasSync }
func (GameState) Type() string     { return TypeGameState }
func (ChatBroadcast) Type() string { return TypeGameChat }
func (Error) Type() string         { return TypeError }

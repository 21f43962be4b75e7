package protocol

import "encoding/json"

const DefaultTotalRounds = 3

// GuessDrawClient is the closed set of guess-draw messages sent to the server.
type GuessDrawClient interface {
	Message
	isGuessDrawClient()
}

// GuessDrawServer is the closed set of guess-draw messages sent by the server.
type GuessDrawServer interface {
	Message
	isGuessDrawServer()
}

type GuessAttempt struct {
	Guess string `json:"guess"`
}

// GuessDrawGameStart starts a game. A zero TotalRounds is sent as
// DefaultTotalRounds; RoundTimeLimit is in seconds and optional.
type GuessDrawGameStart struct {
	TotalRounds    int  `json:"totalRounds"`
	RoundTimeLimit *int `json:"roundTimeLimit,omitempty"`
}

func (m GuessDrawGameStart) MarshalJSON() ([]byte, error) {
	type wire GuessDrawGameStart
	if m.TotalRounds <= 0 {
		m.TotalRounds = DefaultTotalRounds
	}
	return json.Marshal(wire(m))
}

type GuessDrawChat struct {
	Message string `json:"message"`
}

// GuessResult tells players whether a guess hit. Word is only revealed on
// a correct guess.
type GuessResult struct {
	Correct  bool   `json:"correct"`
	Username string `json:"username"`
	Word     string `json:"word,omitempty"`
}

func (GuessAttempt) Type() string       { return TypeGuessAttempt }
func (GuessDrawGameStart) Type() string { return TypeGameStart }
func (GuessDrawChat) Type() string      { return TypeGameChat }
func (GuessResult) Type() string        { return TypeGuessResult }

func (Draw) isGuessDrawClient()               {}
func (StrokeFinish) isGuessDrawClient()       {}
func (Clear) isGuessDrawClient()              {}
func (Undo) isGuessDrawClient()               {}
func (Redo) isGuessDrawClient()               {}
func (GuessAttempt) isGuessDrawClient()       {}
func (GuessDrawGameStart) isGuessDrawClient() {}
func (GuessDrawChat) isGuessDrawClient()      {}

func (Draw) isGuessDrawServer()          {}
func (StrokeFinish) isGuessDrawServer()  {}
func (Clear) isGuessDrawServer()         {}
func (Undo) isGuessDrawServer()          {}
func (Redo) isGuessDrawServer()          {}
func (CanvasSync) isGuessDrawServer()    {}
func (GameState) isGuessDrawServer()     {}
func (ChatBroadcast) isGuessDrawServer() {}
func (GuessResult) isGuessDrawServer()   {}
func (Error) isGuessDrawServer()         {}

func GuessDrawClientCodec() *Codec[GuessDrawClient] {
	return newCodec(ModeGuessDraw, map[string]decodeFunc[GuessDrawClient]{
		TypeDraw:         decodeAs[GuessDrawClient, Draw],
		TypeStrokeFinish: decodeAs[GuessDrawClient, StrokeFinish],
		TypeClear:        decodeAs[GuessDrawClient, Clear],
		TypeUndo:         decodeAs[GuessDrawClient, Undo],
		TypeRedo:         decodeAs[GuessDrawClient, Redo],
		TypeGuessAttempt: decodeAs[GuessDrawClient, GuessAttempt],
		TypeGameStart:    decodeAs[GuessDrawClient, GuessDrawGameStart],
		TypeGameChat:     decodeAs[GuessDrawClient, GuessDrawChat],
	})
}

func GuessDrawServerCodec() *Codec[GuessDrawServer] {
	return newCodec(ModeGuessDraw, map[string]decodeFunc[GuessDrawServer]{
		TypeDraw:         decodeAs[GuessDrawServer, Draw],
		TypeStrokeFinish: decodeAs[GuessDrawServer, StrokeFinish],
		TypeClear:        decodeAs[GuessDrawServer, Clear],
		TypeUndo:         decodeAs[GuessDrawServer, Undo],
		TypeRedo:         decodeAs[GuessDrawServer, Redo],
		TypeCanvasSync:   decodeAs[GuessDrawServer, CanvasSync],
		TypeGameState:    decodeAs[GuessDrawServer, GameState],
		TypeGameChat:     decodeAs[GuessDrawServer, ChatBroadcast],
		TypeGuessResult:  decodeAs[GuessDrawServer, GuessResult],
		TypeError:        decodeAs[GuessDrawServer, Error],
	})
}

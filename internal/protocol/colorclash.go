package protocol

// ColorClashClient is the closed set of color-clash messages sent to the
// server.
type ColorClashClient interface {
	Message
	isColorClashClient()
}

// ColorClashServer is the closed set of color-clash messages sent by the
// server.
type ColorClashServer interface {
	Message
	isColorClashServer()
}

// CellPaint colors one board cell.
type CellPaint struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color string `json:"color"`
}

type ColorClashDraw struct {
	Data CellPaint `json:"data"`
}

type ColorClashGameStart struct{}

type ColorClashChat struct {
	Message  string `json:"message"`
	Username string `json:"username"`
	ID       string `json:"id,omitempty"`
}

type Ping struct{}

type Pong struct{}

func (ColorClashDraw) Type() string      { return TypeDraw }
func (ColorClashGameStart) Type() string { return TypeGameStart }
func (ColorClashChat) Type() string      { return TypeGameChat }
func (Ping) Type() string                { return TypePing }
func (Pong) Type() string                { return TypePong }

func (ColorClashDraw) isColorClashClient()      {}
func (ColorClashGameStart) isColorClashClient() {}
func (ColorClashChat) isColorClashClient()      {}
func (Ping) isColorClashClient()                {}

func (ColorClashDraw) isColorClashServer() {}
func (GameState) isColorClashServer()      {}
func (ChatBroadcast) isColorClashServer()  {}
func (Pong) isColorClashServer()           {}
func (Error) isColorClashServer()          {}

func ColorClashClientCodec() *Codec[ColorClashClient] {
	return newCodec(ModeColorClash, map[string]decodeFunc[ColorClashClient]{
		TypeDraw:      decodeAs[ColorClashClient, ColorClashDraw],
		TypeGameStart: decodeAs[ColorClashClient, ColorClashGameStart],
		TypeGameChat:  decodeAs[ColorClashClient, ColorClashChat],
		TypePing:      decodeAs[ColorClashClient, Ping],
	})
}

func ColorClashServerCodec() *Codec[ColorClashServer] {
	return newCodec(ModeColorClash, map[string]decodeFunc[ColorClashServer]{
		TypeDraw:      decodeAs[ColorClashServer, ColorClashDraw],
		TypeGameState: decodeAs[ColorClashServer, GameState],
		TypeGameChat:  decodeAs[ColorClashServer, ChatBroadcast],
		TypePong:      decodeAs[ColorClashServer, Pong],
		TypeError:     decodeAs[ColorClashServer, Error],
	})
}

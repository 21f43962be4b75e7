package protocol

// WhiteboardClient is the closed set of free-draw messages sent to the server.
type WhiteboardClient interface {
	Message
	isWhiteboardClient()
}

// WhiteboardServer is the closed set of free-draw messages sent by the server.
type WhiteboardServer interface {
	Message
	isWhiteboardServer()
}

func (Draw) isWhiteboardClient()         {}
func (StrokeFinish) isWhiteboardClient() {}
func (Clear) isWhiteboardClient()        {}
func (Undo) isWhiteboardClient()         {}
func (Redo) isWhiteboardClient()         {}

func (Draw) isWhiteboardServer()         {}
func (StrokeFinish) isWhiteboardServer() {}
func (Clear) isWhiteboardServer()        {}
func (Undo) isWhiteboardServer()         {}
func (Redo) isWhiteboardServer()         {}
func (CanvasSync) isWhiteboardServer()   {}
func (Error) isWhiteboardServer()        {}

func WhiteboardClientCodec() *Codec[WhiteboardClient] {
	return newCodec(ModeWhiteboard, map[string]decodeFunc[WhiteboardClient]{
		TypeDraw:         decodeAs[WhiteboardClient, Draw],
		TypeStrokeFinish: decodeAs[WhiteboardClient, StrokeFinish],
		TypeClear:        decodeAs[WhiteboardClient, Clear],
		TypeUndo:         decodeAs[WhiteboardClient, Undo],
		TypeRedo:         decodeAs[WhiteboardClient, Redo],
	})
}

func WhiteboardServerCodec() *Codec[WhiteboardServer] {
	return newCodec(ModeWhiteboard, map[string]decodeFunc[WhiteboardServer]{
		TypeDraw:         decodeAs[WhiteboardServer, Draw],
		TypeStrokeFinish: decodeAs[WhiteboardServer, StrokeFinish],
		TypeClear:        decodeAs[WhiteboardServer, Clear],
		TypeUndo:         decodeAs[WhiteboardServer, Undo],
		TypeRedo:         decodeAs[WhiteboardServer, Redo],
		TypeCanvasSync:   decodeAs[WhiteboardServer, CanvasSync],
		TypeError:        decodeAs[WhiteboardServer, Error],
	})
}


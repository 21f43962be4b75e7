// Package canvas keeps the local view of a shared drawing surface.
//
// The board is a cache of the server's canvas. Local undo and redo answer
// immediately and emit a request; the server's broadcast is then folded back
// in with Apply and wins whenever it disagrees with what was assumed locally.
package canvas

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/1Yie/infinite-brain-sub001/internal/protocol"
)

const maxPending = 64

type record struct {
	data protocol.StrokeData
	seq  uint64
	// retracted holds from an undo until a redo, clear or sync. Late draw
	// frames update the data of a retracted stroke but never show it.
	retracted bool
}

// retraction is a stroke taken off the canvas by an undo, kept so it can be
// redone. by is the author filter the undo ran with.
type retraction struct {
	rec *record
	by  string
}

type opKind int

const (
	opUndo opKind = iota
	opRedo
)

// pendingOp is a local undo or redo still waiting for its broadcast.
type pendingOp struct {
	kind   opKind
	by     string
	stroke string
}

// Board is safe for concurrent use. emit is never called with the board
// locked, so it may send on a session directly.
type Board struct {
	author string
	emit   func(protocol.Message)
	log    *zap.Logger
	newID  func() string

	mu      sync.Mutex
	seq     uint64
	strokes map[string]*record // every known stroke, visible or retracted
	visible []*record          // by seq
	redo    []retraction       // most recent last
	pending []pendingOp
}

// NewBoard returns an empty board drawing as author ("" for a guest). emit
// receives every request the board makes of the server; it may be nil.
func NewBoard(author string, emit func(protocol.Message), log *zap.Logger) *Board {
	if emit == nil {
		emit = func(protocol.Message) {}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Board{
		author:  author,
		emit:    emit,
		log:     log,
		newID:   uuid.NewString,
		strokes: make(map[string]*record),
	}
}

func (b *Board) Author() string { return b.author }

// BeginStroke starts a stroke by the board's author and returns its id.
func (b *Board) BeginStroke(color string, width float64, start protocol.Point) string {
	b.mu.Lock()
	rec := b.insert(protocol.StrokeData{
		ID:     b.newID(),
		UserID: b.author,
		Points: []protocol.Point{start},
		Color:  color,
		Width:  width,
	})
	data := cloneStroke(rec.data)
	b.mu.Unlock()

	b.emit(protocol.Draw{Data: data})
	return data.ID
}

// AddPoint extends an unfinished stroke of the board's author.
func (b *Board) AddPoint(id string, p protocol.Point) bool {
	b.mu.Lock()
	rec, ok := b.ownOpen(id)
	if !ok {
		b.mu.Unlock()
		return false
	}
	rec.data.Points = append(rec.data.Points, p)
	data := cloneStroke(rec.data)
	b.mu.Unlock()

	b.emit(protocol.Draw{Data: data})
	return true
}

// FinishStroke completes a stroke of the board's author. A finished stroke
// invalidates everything its author could still redo.
func (b *Board) FinishStroke(id string) bool {
	b.mu.Lock()
	rec, ok := b.ownOpen(id)
	if !ok {
		b.mu.Unlock()
		return false
	}
	rec.data.IsComplete = true
	b.dropRedo(b.author)
	data := cloneStroke(rec.data)
	b.mu.Unlock()

	b.emit(protocol.StrokeFinish{Data: data})
	return true
}

// Clear wipes the board and asks the server to do the same.
func (b *Board) Clear() {
	b.mu.Lock()
	b.reset()
	b.mu.Unlock()

	b.emit(protocol.Clear{})
}

// Undo retracts the most recent stroke drawn by author, or the most recent
// stroke of anyone when author is empty, and requests the same retraction
// from the server. It reports false when there is nothing to retract.
func (b *Board) Undo(author string) (string, bool) {
	b.mu.Lock()
	i := b.latest(author)
	if i < 0 {
		b.mu.Unlock()
		return "", false
	}
	rec := b.visible[i]
	b.hide(rec)
	b.redo = append(b.redo, retraction{rec: rec, by: author})
	b.track(pendingOp{kind: opUndo, by: author, stroke: rec.data.ID})
	id := rec.data.ID
	b.mu.Unlock()

	b.emit(protocol.Undo{UserID: author, StrokeID: id})
	return id, true
}

// Redo restores the stroke most recently retracted by Undo(author). With
// nothing to redo it changes nothing and sends nothing.
func (b *Board) Redo(author string) bool {
	b.mu.Lock()
	i := b.lastRedo(author)
	if i < 0 {
		b.mu.Unlock()
		return false
	}
	r := b.redo[i]
	b.redo = slices.Delete(b.redo, i, i+1)
	b.show(r.rec)
	b.track(pendingOp{kind: opRedo, by: author, stroke: r.rec.data.ID})
	data := cloneStroke(r.rec.data)
	b.mu.Unlock()

	b.emit(protocol.Redo{UserID: author, Data: data})
	return true
}

// Apply folds an authoritative broadcast into the board. Messages that do
// not concern the canvas are ignored.
func (b *Board) Apply(msg protocol.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch m := msg.(type) {
	case protocol.Draw:
		b.upsert(m.Data)
	case protocol.StrokeFinish:
		b.upsert(m.Data)
	case protocol.Clear:
		b.reset()
	case protocol.Undo:
		b.applyUndo(m)
	case protocol.Redo:
		b.applyRedo(m)
	case protocol.CanvasSync:
		b.reset()
		for _, s := range m.Strokes {
			b.upsert(s)
		}
	}
}

func (b *Board) applyUndo(m protocol.Undo) {
	if i := b.findPending(opUndo, m.UserID); i >= 0 {
		op := b.pending[i]
		b.pending = slices.Delete(b.pending, i, i+1)
		if op.stroke == m.StrokeID {
			return
		}
		b.log.Info("undo overridden by server",
			zap.String("assumed", op.stroke), zap.String("actual", m.StrokeID))
		if j := b.redoIndex(op.stroke); j >= 0 {
			b.show(b.redo[j].rec)
			b.redo = slices.Delete(b.redo, j, j+1)
		}
		if rec, ok := b.strokes[m.StrokeID]; ok {
			b.hide(rec)
			b.redo = append(b.redo, retraction{rec: rec, by: op.by})
		}
		return
	}

	if rec, ok := b.strokes[m.StrokeID]; ok {
		b.hide(rec)
	}
}

func (b *Board) applyRedo(m protocol.Redo) {
	if i := b.findPending(opRedo, m.UserID); i >= 0 {
		op := b.pending[i]
		b.pending = slices.Delete(b.pending, i, i+1)
		if op.stroke != m.Data.ID {
			b.log.Info("redo overridden by server",
				zap.String("assumed", op.stroke), zap.String("actual", m.Data.ID))
			if rec, ok := b.strokes[op.stroke]; ok {
				b.hide(rec)
				b.redo = append(b.redo, retraction{rec: rec, by: op.by})
			}
		}
	}

	if j := b.redoIndex(m.Data.ID); j >= 0 {
		b.redo = slices.Delete(b.redo, j, j+1)
	}
	if rec, ok := b.strokes[m.Data.ID]; ok {
		b.show(rec)
	}
	b.upsert(m.Data)
}

// upsert records a stroke seen on the wire and makes it visible. The author
// of a known stroke is never rewritten.
func (b *Board) upsert(s protocol.StrokeData) {
	if s.ID == "" {
		b.log.Warn("dropping stroke without id")
		return
	}
	rec, ok := b.strokes[s.ID]
	if !ok {
		b.insert(s)
		return
	}
	if rec.data.UserID != "" && s.UserID != rec.data.UserID {
		b.log.Warn("ignoring author change",
			zap.String("stroke", s.ID), zap.String("author", rec.data.UserID), zap.String("got", s.UserID))
		s.UserID = rec.data.UserID
	}
	if !rec.data.IsComplete && !s.IsComplete && len(s.Points) < len(rec.data.Points) {
		return // stale echo of a stroke still being drawn
	}
	rec.data = cloneStroke(s)
	if !rec.retracted {
		b.show(rec)
	}
}

func (b *Board) insert(s protocol.StrokeData) *record {
	b.seq++
	rec := &record{data: cloneStroke(s), seq: b.seq}
	b.strokes[s.ID] = rec
	b.visible = append(b.visible, rec)
	return rec
}

func (b *Board) show(rec *record) {
	rec.retracted = false
	i, found := slices.BinarySearchFunc(b.visible, rec.seq, func(r *record, seq uint64) int {
		switch {
		case r.seq < seq:
			return -1
		case r.seq > seq:
			return 1
		}
		return 0
	})
	if !found {
		b.visible = slices.Insert(b.visible, i, rec)
	}
}

func (b *Board) hide(rec *record) {
	rec.retracted = true
	if i := slices.Index(b.visible, rec); i >= 0 {
		b.visible = slices.Delete(b.visible, i, i+1)
	}
}

func (b *Board) reset() {
	b.strokes = make(map[string]*record)
	b.visible = nil
	b.redo = nil
	b.pending = nil
}

func (b *Board) latest(author string) int {
	for i := len(b.visible) - 1; i >= 0; i-- {
		if author == "" || b.visible[i].data.UserID == author {
			return i
		}
	}
	return -1
}

func (b *Board) lastRedo(author string) int {
	for i := len(b.redo) - 1; i >= 0; i-- {
		if b.redo[i].by == author {
			return i
		}
	}
	return -1
}

func (b *Board) redoIndex(id string) int {
	return slices.IndexFunc(b.redo, func(r retraction) bool { return r.rec.data.ID == id })
}

func (b *Board) dropRedo(by string) {
	b.redo = slices.DeleteFunc(b.redo, func(r retraction) bool { return r.by == by })
}

func (b *Board) findPending(kind opKind, by string) int {
	return slices.IndexFunc(b.pending, func(op pendingOp) bool { return op.kind == kind && op.by == by })
}

func (b *Board) track(op pendingOp) {
	b.pending = append(b.pending, op)
	if len(b.pending) > maxPending {
		b.pending = slices.Delete(b.pending, 0, len(b.pending)-maxPending)
	}
}

func (b *Board) ownOpen(id string) (*record, bool) {
	rec, ok := b.strokes[id]
	if !ok || rec.data.IsComplete || rec.data.UserID != b.author {
		return nil, false
	}
	if slices.Index(b.visible, rec) < 0 {
		return nil, false
	}
	return rec, true
}

// Strokes returns the visible strokes, oldest first.
func (b *Board) Strokes() []protocol.StrokeData {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]protocol.StrokeData, len(b.visible))
	for i, rec := range b.visible {
		out[i] = cloneStroke(rec.data)
	}
	return out
}

// Lookup returns a visible stroke by id.
func (b *Board) Lookup(id string) (protocol.StrokeData, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.strokes[id]
	if !ok || slices.Index(b.visible, rec) < 0 {
		return protocol.StrokeData{}, false
	}
	return cloneStroke(rec.data), true
}

// Retracted reports whether id is known and currently undone.
func (b *Board) Retracted(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.strokes[id]
	return ok && rec.retracted
}

// CanRedo reports whether Redo(author) would do anything.
func (b *Board) CanRedo(author string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRedo(author) >= 0
}

func cloneStroke(s protocol.StrokeData) protocol.StrokeData {
	s.Points = slices.Clone(s.Points)
	return s
}

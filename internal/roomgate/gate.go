// Package roomgate decides whether a room view may open before anything
// connects to the room.
package roomgate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/1Yie/infinite-brain-sub001/internal/protocol"
)

// Result of one room check. Message is a diagnostic; callers redirect the
// same way whatever it says.
type Result struct {
	Valid   bool
	Message string
}

// Checker confirms that a room of one type exists.
type Checker interface {
	Check(ctx context.Context, roomID string) (Result, error)
}

type CheckerFunc func(ctx context.Context, roomID string) (Result, error)

func (f CheckerFunc) Check(ctx context.Context, roomID string) (Result, error) { return f(ctx, roomID) }

type Gate struct {
	checkers map[protocol.Mode]Checker
	group    singleflight.Group
	log      *zap.Logger
}

func New(checkers map[protocol.Mode]Checker, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{checkers: checkers, log: log}
}

// Validate runs the checker registered for roomType. A missing checker, an
// error or a panic all yield an invalid result. Concurrent calls for the
// same room share one check.
func (g *Gate) Validate(ctx context.Context, roomType protocol.Mode, roomID string) Result {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return Result{Message: "missing room id"}
	}
	checker, ok := g.checkers[roomType]
	if !ok {
		return Result{Message: fmt.Sprintf("unknown room type %q", roomType)}
	}

	v, _, _ := g.group.Do(string(roomType)+"/"+roomID, func() (any, error) {
		return g.run(ctx, checker, roomType, roomID), nil
	})
	return v.(Result)
}

func (g *Gate) run(ctx context.Context, c Checker, roomType protocol.Mode, roomID string) (res Result) {
	log := g.log.With(zap.String("mode", string(roomType)), zap.String("room", roomID))
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("room check panicked", zap.Any("panic", rec))
			res = Result{Message: "room check failed"}
		}
	}()

	res, err := c.Check(ctx, roomID)
	if err != nil {
		log.Warn("room check failed", zap.Error(err))
		return Result{Message: "room check failed"}
	}
	if !res.Valid {
		log.Info("room rejected", zap.String("reason", res.Message))
	}
	return res
}

// Mount gates one room view. Check runs the gate at most once per
// (room type, room id) pair; asking again for the same pair returns the
// remembered result without checking or redirecting a second time.
type Mount struct {
	gate *Gate
	// Redirect is called whenever a check ends invalid.
	Redirect func(Result)

	mu   sync.Mutex
	key  string
	last Result
	seen bool
}

func NewMount(g *Gate, redirect func(Result)) *Mount {
	return &Mount{gate: g, Redirect: redirect}
}

func (m *Mount) Check(ctx context.Context, roomType protocol.Mode, roomID string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := string(roomType) + "/" + strings.TrimSpace(roomID)
	if m.seen && m.key == key {
		return m.last
	}

	var res Result
	if strings.TrimSpace(roomID) == "" {
		res = Result{Message: "missing room id"}
	} else {
		res = m.gate.Validate(ctx, roomType, roomID)
	}
	m.key, m.last, m.seen = key, res, true

	if !res.Valid && m.Redirect != nil {
		m.Redirect(res)
	}
	return res
}

// Reset forgets the remembered check, as when the view is unmounted.
func (m *Mount) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key, m.last, m.seen = "", Result{}, false
}

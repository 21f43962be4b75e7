// Package listener fans one inbound message stream out to independent
// consumers.
package listener

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Listener receives dispatched messages. Implementations are registered by
// identity, so their dynamic type must be comparable: a struct value holding
// a slice, map or func is rejected by Subscribe. Pointer receivers are the
// norm.
type Listener[M any] interface {
	OnMessage(M)
}

type funcListener[M any] struct {
	fn func(M)
}

func (f *funcListener[M]) OnMessage(m M) { f.fn(m) }

// Func wraps fn in a new listener identity. Use it for closures, which are
// not comparable themselves. Two calls with the same function
// produce two distinct listeners; keep the returned value to register it
// again or to compare it.
func Func[M any](fn func(M)) Listener[M] {
	return &funcListener[M]{fn: fn}
}

// Registry is a set of listeners kept in addition order.
type Registry[M any] struct {
	mu        sync.RWMutex
	listeners []Listener[M]
	index     map[Listener[M]]struct{}
	log       *zap.Logger
}

func NewRegistry[M any](log *zap.Logger) *Registry[M] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry[M]{
		index: make(map[Listener[M]]struct{}),
		log:   log,
	}
}

// Subscribe adds l and returns a function removing it. Subscribing a
// listener that is already registered changes nothing. It panics if l is nil
// or its type is not comparable.
func (r *Registry[M]) Subscribe(l Listener[M]) (unsubscribe func()) {
	if l == nil {
		panic("listener: Subscribe with nil listener")
	}
	if t := reflect.TypeOf(l); !t.Comparable() {
		panic(fmt.Sprintf("listener: %s is not comparable; subscribe a pointer or wrap it with Func", t))
	}
	r.mu.Lock()
	if _, ok := r.index[l]; !ok {
		r.index[l] = struct{}{}
		r.listeners = append(r.listeners, l)
	}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(l) })
	}
}

func (r *Registry[M]) remove(l Listener[M]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[l]; !ok {
		return
	}
	delete(r.index, l)
	for i, cur := range r.listeners {
		if cur == l {
			r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
			break
		}
	}
}

// Dispatch delivers m to every listener registered when the call starts, in
// addition order. A panicking listener is logged and skipped.
func (r *Registry[M]) Dispatch(m M) {
	r.mu.RLock()
	snapshot := make([]Listener[M], len(r.listeners))
	copy(snapshot, r.listeners)
	r.mu.RUnlock()

	for _, l := range snapshot {
		r.deliver(l, m)
	}
}

func (r *Registry[M]) deliver(l Listener[M], m M) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("listener panicked",
				zap.String("listener", fmt.Sprintf("%T", l)),
				zap.Any("panic", rec),
			)
		}
	}()
	l.OnMessage(m)
}

func (r *Registry[M]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

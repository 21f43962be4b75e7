package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errRefused = errors.New("connection refused")

// fakeDialer fails its first failFirst dials and hands out fakeTransports
// afterwards. It records enough bookkeeping to check the one-connection and
// one-attempt-at-a-time properties.
type fakeDialer struct {
	mu          sync.Mutex
	failFirst   int
	hold        chan struct{}
	ignoreCtx   bool
	dials       int
	inflight    int
	maxInflight int
	active      int
	maxActive   int
	times       []time.Time
	urls        []string
	conns       []*fakeTransport
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Transport, error) {
	d.mu.Lock()
	d.dials++
	n := d.dials
	d.inflight++
	if d.inflight > d.maxInflight {
		d.maxInflight = d.inflight
	}
	d.times = append(d.times, time.Now())
	d.urls = append(d.urls, url)
	hold := d.hold
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.inflight--
		d.mu.Unlock()
	}()

	if hold != nil {
		if d.ignoreCtx {
			<-hold
		} else {
			select {
			case <-hold:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if n <= d.failFirst {
		return nil, errRefused
	}

	t := &fakeTransport{dialer: d, inbound: make(chan []byte, 16), dropped: make(chan struct{}), closed: make(chan struct{})}
	d.mu.Lock()
	d.conns = append(d.conns, t)
	d.mu.Unlock()
	return t, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) stats() (maxInflight, active, maxActive int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxInflight, d.active, d.maxActive
}

func (d *fakeDialer) dialTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.times...)
}

func (d *fakeDialer) lastConn() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) allConns() []*fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeTransport(nil), d.conns...)
}

// fakeTransport counts as active from its first Read until Close, which is
// exactly the window in which a session owns it.
type fakeTransport struct {
	dialer  *fakeDialer
	inbound chan []byte
	dropped chan struct{}
	closed  chan struct{}

	mu        sync.Mutex
	activated bool
	isClosed  bool
	dropOnce  sync.Once
	written   [][]byte
}

func (t *fakeTransport) Read(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	if !t.activated && !t.isClosed {
		t.activated = true
		t.dialer.mu.Lock()
		t.dialer.active++
		if t.dialer.active > t.dialer.maxActive {
			t.dialer.maxActive = t.dialer.active
		}
		t.dialer.mu.Unlock()
	}
	t.mu.Unlock()

	select {
	case data := <-t.inbound:
		return data, nil
	case <-t.dropped:
		return nil, errors.New("connection reset by peer")
	case <-t.closed:
		return nil, errors.New("use of closed connection")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *fakeTransport) Write(_ context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isClosed {
		return errors.New("use of closed connection")
	}
	t.written = append(t.written, data)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isClosed {
		return nil
	}
	t.isClosed = true
	close(t.closed)
	if t.activated {
		t.dialer.mu.Lock()
		t.dialer.active--
		t.dialer.mu.Unlock()
	}
	return nil
}

func (t *fakeTransport) drop() {
	t.dropOnce.Do(func() { close(t.dropped) })
}

func (t *fakeTransport) push(frame string) {
	t.inbound <- []byte(frame)
}

func (t *fakeTransport) frames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.written))
	for i, w := range t.written {
		out[i] = string(w)
	}
	return out
}

func (t *fakeTransport) wasClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isClosed
}

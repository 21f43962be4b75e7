package session

import (
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/1Yie/infinite-brain-sub001/internal/protocol"
)

const (
	DefaultRetryDelay   = 3 * time.Second
	DefaultDialTimeout  = 10 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// Options configure every session a Manager opens.
type Options[Out protocol.Message] struct {
	// BaseURL is the server address, e.g. ws://localhost:8080.
	BaseURL string
	// Query is added to every subscription address.
	Query url.Values

	// RetryDelay is the fixed pause between connection attempts.
	RetryDelay time.Duration
	// Backoff, when set, replaces the fixed RetryDelay policy. It is called
	// once per session.
	Backoff func() backoff.BackOff
	// MaxAttempts caps consecutive failed attempts; 0 retries forever.
	MaxAttempts int

	DialTimeout  time.Duration
	WriteTimeout time.Duration

	// Heartbeat is sent every HeartbeatInterval while connected.
	Heartbeat         Out
	HeartbeatInterval time.Duration

	// OnStatus runs on the session goroutine for every status change. It
	// must not call back into the session.
	OnStatus func(roomID string, status Status)

	Logger *zap.Logger
}

func (o Options[Out]) withDefaults() Options[Out] {
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o Options[Out]) newBackOff() backoff.BackOff {
	if o.Backoff != nil {
		return o.Backoff()
	}
	return backoff.NewConstantBackOff(o.RetryDelay)
}

func (o Options[Out]) heartbeatEnabled() bool {
	return o.HeartbeatInterval > 0 && any(o.Heartbeat) != nil
}

// ExponentialBackoff returns a policy growing from initial to maxInterval between
// attempts, for use as Options.Backoff.
func ExponentialBackoff(initial, maxInterval time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxInterval = maxInterval
		b.Multiplier = 2
		b.RandomizationFactor = 0.2
		return b
	}
}

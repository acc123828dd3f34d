package usecase

import (
	"reflect"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type subscribeOptions struct {
	onError       func(error)
	detectTimeout time.Duration
}

type SubscribeOption func(*subscribeOptions)

// WithErrorHandler receives asynchronous failures of a subscription.
func WithErrorHandler(fn func(error)) SubscribeOption {
	return func(o *subscribeOptions) {
		o.onError = fn
	}
}

// WithDetectTimeout bounds how long message shape detection may take.
func WithDetectTimeout(d time.Duration) SubscribeOption {
	return func(o *subscribeOptions) {
		o.detectTimeout = d
	}
}

// Subscription is the handle of a live feed. Close releases every listener
// and side effect the feed acquired.
type Subscription struct {
	kind    string
	onError func(error)
	gauge   prometheus.Gauge

	mu        sync.Mutex
	closed    bool
	disposers []func()
	done      chan struct{}

	// emitMu serializes callbacks and guards the last delivered value.
	emitMu    sync.Mutex
	delivered bool
	last      any
}

func newSubscription(kind string, onError func(error), gauge prometheus.Gauge) *Subscription {
	if gauge != nil {
		gauge.Inc()
	}
	return &Subscription{
		kind:    kind,
		onError: onError,
		gauge:   gauge,
		done:    make(chan struct{}),
	}
}

// add registers a disposer. On a closed subscription fn runs immediately
// and add reports false.
func (s *Subscription) add(fn func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return false
	}
	s.disposers = append(s.disposers, fn)
	s.mu.Unlock()
	return true
}

// Close runs every disposer once, newest first. It is safe to call more
// than once and from within a callback.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	disposers := s.disposers
	s.disposers = nil
	close(s.done)
	s.mu.Unlock()

	for i := len(disposers) - 1; i >= 0; i-- {
		disposers[i]()
	}
	if s.gauge != nil {
		s.gauge.Dec()
	}
}

func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Done is closed once Close has been called.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) report(err error) {
	if err == nil || s.Closed() {
		return
	}
	s.onError(err)
}

// emit hands value to fn unless the subscription is closed or value equals
// the previous delivery.
func emit[T any](s *Subscription, value T, fn func(T)) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.Closed() {
		return
	}
	if s.delivered && reflect.DeepEqual(s.last, value) {
		return
	}
	s.delivered = true
	s.last = value
	fn(value)
}

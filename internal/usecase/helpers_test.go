package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/repo/realtime"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/repo/realtime/memory"
)

type updateCall struct {
	path   string
	fields map[string]any
}

// countingChannel records writes and can inject failures.
type countingChannel struct {
	realtime.Channel

	mu        sync.Mutex
	updates   []updateCall
	getErrs   map[string]error
	updateErr error
	getGate   chan struct{}
}

func (c *countingChannel) Get(ctx context.Context, path string) (realtime.Snapshot, error) {
	c.mu.Lock()
	err := c.getErrs[path]
	gate := c.getGate
	c.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return realtime.Snapshot{}, ctx.Err()
		}
	}
	if err != nil {
		return realtime.Snapshot{}, err
	}
	return c.Channel.Get(ctx, path)
}

func (c *countingChannel) Update(ctx context.Context, path string, fields map[string]any) error {
	c.mu.Lock()
	err := c.updateErr
	if err == nil {
		c.updates = append(c.updates, updateCall{path: path, fields: fields})
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.Channel.Update(ctx, path, fields)
}

func (c *countingChannel) Updates() []updateCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]updateCall(nil), c.updates...)
}

func (c *countingChannel) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.ChatEvent
}

func (p *fakePublisher) Publish(_ context.Context, event models.ChatEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	store  *memory.Store
	ch     *countingChannel
	events *fakePublisher
	uc     *ChatUseCase
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	t.Cleanup(store.Close)

	ch := &countingChannel{Channel: store, getErrs: map[string]error{}}
	events := &fakePublisher{}
	uc := NewChatUseCase(ch, events, ChatOptions{DetectTimeout: time.Second})
	uc.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	t.Cleanup(uc.Wait)
	return &testEnv{store: store, ch: ch, events: events, uc: uc}
}

func (e *testEnv) set(t *testing.T, path string, value any) {
	t.Helper()
	require.NoError(t, e.store.Set(context.Background(), path, value))
}

func (e *testEnv) get(t *testing.T, path string) any {
	t.Helper()
	snap, err := e.store.Get(context.Background(), path)
	require.NoError(t, err)
	return snap.Value
}

// latest collects deliveries and exposes the most recent one.
type latest[T any] struct {
	mu    sync.Mutex
	calls int
	value T
	ch    chan struct{}
}

func newLatest[T any]() *latest[T] {
	return &latest[T]{ch: make(chan struct{}, 64)}
}

func (l *latest[T]) on(v T) {
	l.mu.Lock()
	l.calls++
	l.value = v
	l.mu.Unlock()
	select {
	case l.ch <- struct{}{}:
	default:
	}
}

func (l *latest[T]) get() (T, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.calls
}

// waitFor blocks until the latest delivery satisfies cond.
func (l *latest[T]) waitFor(t *testing.T, cond func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if v, n := l.get(); n > 0 && cond(v) {
			return v
		}
		select {
		case <-l.ch:
		case <-deadline:
			v, n := l.get()
			t.Fatalf("condition not met after %d deliveries, last: %+v", n, v)
		}
	}
}

// settle waits until every queued store delivery has run.
func (e *testEnv) settle(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	unsub, err := e.store.Subscribe(context.Background(), "__settle", func(realtime.Snapshot) { close(done) }, nil)
	require.NoError(t, err)
	defer unsub()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("store did not settle")
	}
}

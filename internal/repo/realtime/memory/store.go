// Package memory implements realtime.Channel on a process-local tree.
// Listener callbacks run on a single dispatcher goroutine in write order.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/repo/realtime"
)

var _ realtime.Channel = (*Store)(nil)

type listener struct {
	id      uint64
	path    string
	parts   []string
	onValue func(realtime.Snapshot)
	onError func(error)
	last    any
	closed  atomic.Bool
}

type delivery struct {
	l    *listener
	snap realtime.Snapshot
}

// Stats counts the writes applied to the store and the attached listeners.
type Stats struct {
	Sets      int64
	Updates   int64
	Pushes    int64
	Listeners int
}

type Store struct {
	mu        sync.Mutex
	root      any
	listeners map[uint64]*listener
	nextID    uint64
	stats     Stats
	closed    bool

	qmu     sync.Mutex
	qcond   *sync.Cond
	queue   []delivery
	stopped bool
	done    chan struct{}
}

// New starts a store with an empty tree.
func New() *Store {
	s := &Store{
		listeners: make(map[uint64]*listener),
		done:      make(chan struct{}),
	}
	s.qcond = sync.NewCond(&s.qmu)
	go s.dispatch()
	return s
}

// Close stops the dispatcher. Pending deliveries are dropped.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.listeners = map[uint64]*listener{}
	s.mu.Unlock()

	s.qmu.Lock()
	s.queue = nil
	s.stopped = true
	s.qmu.Unlock()
	s.qcond.Broadcast()
	<-s.done
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Listeners = len(s.listeners)
	return st
}

func (s *Store) Subscribe(ctx context.Context, path string, onValue func(realtime.Snapshot), onError func(error)) (realtime.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parts, err := realtime.SplitPath(path)
	if err != nil {
		return nil, err
	}
	if onError == nil {
		onError = func(error) {}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, models.ErrChannelUnavailable
	}
	s.nextID++
	l := &listener{
		id:      s.nextID,
		path:    realtime.Join(parts...),
		parts:   parts,
		onValue: onValue,
		onError: onError,
		last:    realtime.Lookup(s.root, parts),
	}
	s.listeners[l.id] = l
	s.enqueue(delivery{l: l, snap: realtime.Snapshot{Path: l.path, Value: l.last}})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.closed.Store(true)
			s.mu.Lock()
			delete(s.listeners, l.id)
			s.mu.Unlock()
		})
	}, nil
}

func (s *Store) Get(ctx context.Context, path string) (realtime.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return realtime.Snapshot{}, err
	}
	parts, err := realtime.SplitPath(path)
	if err != nil {
		return realtime.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return realtime.Snapshot{}, models.ErrChannelUnavailable
	}
	return realtime.Snapshot{Path: realtime.Join(parts...), Value: realtime.Lookup(s.root, parts)}, nil
}

func (s *Store) Set(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	parts, err := realtime.SplitPath(path)
	if err != nil {
		return err
	}
	v, err := realtime.Normalize(value)
	if err != nil {
		return fmt.Errorf("normalize value: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.ErrChannelUnavailable
	}
	s.root = realtime.Assign(s.root, parts, v)
	s.stats.Sets++
	s.notify([][]string{parts})
	return nil
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	base, err := realtime.SplitPath(path)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	type write struct {
		parts []string
		value any
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	writes := make([]write, 0, len(keys))
	for _, k := range keys {
		rel, err := realtime.SplitPath(k)
		if err != nil {
			return err
		}
		if len(rel) == 0 {
			return fmt.Errorf("%w: empty update key", realtime.ErrInvalidPath)
		}
		v, err := realtime.Normalize(fields[k])
		if err != nil {
			return fmt.Errorf("normalize %s: %w", k, err)
		}
		parts := append(append([]string{}, base...), rel...)
		for _, w := range writes {
			if realtime.Related(w.parts, parts) {
				return fmt.Errorf("%w: overlapping update paths %q and %q", realtime.ErrInvalidPath, realtime.Join(w.parts...), realtime.Join(parts...))
			}
		}
		writes = append(writes, write{parts: parts, value: v})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.ErrChannelUnavailable
	}
	changed := make([][]string, 0, len(writes))
	for _, w := range writes {
		s.root = realtime.Assign(s.root, w.parts, w.value)
		changed = append(changed, w.parts)
	}
	s.stats.Updates++
	s.notify(changed)
	return nil
}

func (s *Store) Push(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	parts, err := realtime.SplitPath(path)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", models.ErrChannelUnavailable
	}
	s.stats.Pushes++
	return realtime.Join(append(parts, realtime.NewPushKey())...), nil
}

// notify queues a delivery for every listener whose value changed. Must be
// called with s.mu held.
func (s *Store) notify(changed [][]string) {
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		l := s.listeners[id]
		if !touches(l.parts, changed) {
			continue
		}
		v := realtime.Lookup(s.root, l.parts)
		if realtime.Equal(v, l.last) {
			continue
		}
		l.last = v
		s.enqueue(delivery{l: l, snap: realtime.Snapshot{Path: l.path, Value: v}})
	}
}

func touches(parts []string, changed [][]string) bool {
	for _, c := range changed {
		if realtime.Related(parts, c) {
			return true
		}
	}
	return false
}

func (s *Store) enqueue(d delivery) {
	s.qmu.Lock()
	s.queue = append(s.queue, d)
	s.qmu.Unlock()
	s.qcond.Signal()
}

func (s *Store) dispatch() {
	defer close(s.done)
	for {
		s.qmu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.qcond.Wait()
		}
		if s.stopped {
			s.qmu.Unlock()
			return
		}
		d := s.queue[0]
		s.queue[0] = delivery{}
		s.queue = s.queue[1:]
		s.qmu.Unlock()

		if d.l.closed.Load() || d.l.onValue == nil {
			continue
		}
		s.deliver(d)
	}
}

func (s *Store) deliver(d delivery) {
	defer func() {
		if r := recover(); r != nil {
			d.l.onError(fmt.Errorf("listener %s panicked: %v", d.l.path, r))
		}
	}()
	d.l.onValue(d.snap)
}

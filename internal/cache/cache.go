// Package cache is the process-wide query cache shared by every view.
// Each logical key holds at most one in-flight or settled value; writes
// notify subscribers synchronously so one view's socket event is visible
// to every other view on its next read.
package cache

import (
	"context"
	"errors"
	"sync"

	"campus-client/internal/observability"
)

// Status of a cache entry.
type Status int

const (
	StatusPending Status = iota
	StatusResolved
	StatusErrored
)

// Entry is a point-in-time snapshot of a cached value.
type Entry struct {
	Status Status
	Value  any
	Err    error
}

// FetchFunc loads the value for a key from the backend.
type FetchFunc func(ctx context.Context) (any, error)

// UpdateFunc transforms the current cached value in place.
type UpdateFunc func(current any) any

// Subscriber observes settled entries for one key.
type Subscriber func(Entry)

type entry struct {
	status Status
	value  any
	err    error
	stale  bool
	flight chan struct{}
	subs   map[int]Subscriber
}

// Store is the keyed cache. The zero value is not usable; use NewStore.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	nextSub int
}

// NewStore creates an empty cache.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Read returns the entry for key, starting fetch when there is no fresh
// value. Only one fetch is ever in flight per key: a concurrent Read for
// a pending key attaches to the same flight instead of issuing a second
// request, and re-evaluates freshness once that flight settles. Read
// blocks until the entry settles or ctx is done; a done ctx yields an
// errored snapshot without disturbing the stored entry. A fetch that
// fails because its own ctx was canceled settles stale, so the next
// read retries instead of serving the abandoned reader's error.
func (s *Store) Read(ctx context.Context, key string, fetch FetchFunc) Entry {
	for {
		s.mu.Lock()
		e := s.ensure(key)

		if e.flight == nil && e.status != StatusPending && !e.stale {
			snapshot := snapshotOf(e)
			s.mu.Unlock()
			observability.IncCacheEvent("hit")
			return snapshot
		}

		if e.flight != nil {
			flight := e.flight
			s.mu.Unlock()
			observability.IncCacheEvent("attach")
			select {
			case <-flight:
				// The settled entry may already be stale again.
				continue
			case <-ctx.Done():
				return Entry{Status: StatusErrored, Err: ctx.Err()}
			}
		}

		// No flight and no fresh value: this reader runs the fetch.
		// stale clears here so an Invalidate during the flight is
		// still visible at settle time.
		flight := make(chan struct{})
		e.status = StatusPending
		e.stale = false
		e.flight = flight
		s.mu.Unlock()
		observability.IncCacheEvent("miss")

		value, err := fetch(ctx)

		s.mu.Lock()
		if err != nil {
			e.status = StatusErrored
			e.err = err
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				e.stale = true
			}
		} else {
			e.status = StatusResolved
			e.value = value
			e.err = nil
		}
		e.flight = nil
		close(flight)
		snapshot := snapshotOf(e)
		subs := subscribersOf(e)
		s.mu.Unlock()

		for _, fn := range subs {
			fn(snapshot)
		}
		return snapshot
	}
}

// Write applies update to the current value (or def when the key holds
// none), marks the entry resolved, and notifies subscribers before
// returning. Used to fold a live socket event into a cached value
// without a network round trip.
func (s *Store) Write(key string, def any, update UpdateFunc) {
	s.mu.Lock()
	e := s.ensure(key)
	current := e.value
	if e.status != StatusResolved {
		current = def
	}
	e.value = update(current)
	e.status = StatusResolved
	e.err = nil
	e.stale = false
	snapshot := snapshotOf(e)
	subs := subscribersOf(e)
	s.mu.Unlock()
	observability.IncCacheEvent("write")

	for _, fn := range subs {
		fn(snapshot)
	}
}

// Invalidate marks the entry stale so the next Read refetches. A flight
// already in progress settles normally; only reads after it refetch.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		e.stale = true
	}
	s.mu.Unlock()
	observability.IncCacheEvent("invalidate")
}

// Peek returns the current snapshot without fetching. ok is false when
// the key holds no entry.
func (s *Store) Peek(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return snapshotOf(e), true
}

// Subscribe registers fn for settled entries of key and returns a cancel
// func. Notification is synchronous with the settling Write or Read.
func (s *Store) Subscribe(key string, fn Subscriber) func() {
	s.mu.Lock()
	e := s.ensure(key)
	id := s.nextSub
	s.nextSub++
	e.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(e.subs, id)
		s.mu.Unlock()
	}
}

// ensure returns the entry for key, creating it; callers hold the lock.
func (s *Store) ensure(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{status: StatusPending, subs: make(map[int]Subscriber), stale: true}
		s.entries[key] = e
	}
	return e
}

func snapshotOf(e *entry) Entry {
	return Entry{Status: e.status, Value: e.value, Err: e.err}
}

func subscribersOf(e *entry) []Subscriber {
	subs := make([]Subscriber, 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	return subs
}

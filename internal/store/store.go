// Package store is an in-memory reactive key/value store. Every Set publishes a
// ChangeEvent to the listeners registered for that key and to the wildcard
// listeners; OnChange listeners only see events whose value actually changed.
//
// The store is meant for observability. Session code writes its status here so
// transports can forward it, but nothing should read the store to decide what
// to do next.
package store

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Wildcard is the reserved key whose listeners receive every publish.
const Wildcard = "*"

// ChangeEvent is the payload published by Set.
type ChangeEvent struct {
	Key      string
	Value    any
	Previous any
	Changed  bool
}

// Listener receives the key and payload of a publish.
type Listener func(key string, payload any)

// Subscription identifies one registered listener. It is the handle used to
// unsubscribe, since Go funcs are not comparable.
type Subscription struct {
	key string
	fn  Listener
}

// Key returns the key the subscription was registered for.
func (s *Subscription) Key() string { return s.key }

// Store holds values and listeners. The zero value is not usable; use New.
type Store struct {
	mu        sync.Mutex
	data      map[string]any
	listeners map[string][]*Subscription

	failures atomic.Uint64
	log      zerolog.Logger
}

// New returns a store seeded with initial. Seeding does not publish.
func New(initial map[string]any) *Store {
	s := &Store{
		data:      make(map[string]any, len(initial)),
		listeners: make(map[string][]*Subscription),
		log:       zerolog.Nop(),
	}
	for k, v := range initial {
		s.data[k] = v
	}
	return s
}

// SetLogger installs the logger used to report listener failures.
func (s *Store) SetLogger(l zerolog.Logger) {
	s.mu.Lock()
	s.log = l
	s.mu.Unlock()
}

// Set stores value under key and publishes a ChangeEvent. A missing key counts
// as a previous value of nil.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	prev := s.data[key]
	s.data[key] = value
	s.mu.Unlock()
	s.Publish(key, ChangeEvent{
		Key:      key,
		Value:    value,
		Previous: prev,
		Changed:  !reflect.DeepEqual(value, prev),
	})
}

// Get returns the value for key. It never publishes.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

// Snapshot returns a shallow copy of all values.
func (s *Store) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Subscribe registers fn for key. Use Wildcard to receive every publish.
func (s *Store) Subscribe(key string, fn Listener) *Subscription {
	sub := &Subscription{key: key, fn: fn}
	s.mu.Lock()
	s.listeners[key] = append(s.listeners[key], sub)
	s.mu.Unlock()
	return sub
}

// Unsubscribe removes sub. Removing an unknown or already removed subscription
// is a no-op.
func (s *Store) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.listeners[sub.key]
	for i, cur := range list {
		if cur == sub {
			// copy so snapshots held by in-flight publishes stay intact
			next := make([]*Subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			s.listeners[sub.key] = next
			return
		}
	}
}

// OnChange registers fn for key, forwarding only ChangeEvents with Changed set.
// The returned func removes the listener and may be called more than once.
func (s *Store) OnChange(key string, fn func(ChangeEvent)) (unsubscribe func()) {
	sub := s.Subscribe(key, func(_ string, payload any) {
		ev, ok := payload.(ChangeEvent)
		if !ok || !ev.Changed {
			return
		}
		fn(ev)
	})
	return func() { s.Unsubscribe(sub) }
}

// Publish delivers payload to the listeners for key followed by the wildcard
// listeners, in registration order, on the caller's goroutine. Listeners may
// publish or (un)subscribe re-entrantly. A panicking listener is logged and
// skipped; the remaining listeners still run.
func (s *Store) Publish(key string, payload any) {
	s.mu.Lock()
	direct := s.listeners[key]
	var wild []*Subscription
	if key != Wildcard {
		wild = s.listeners[Wildcard]
	}
	log := s.log
	s.mu.Unlock()

	for _, sub := range direct {
		s.invoke(log, sub, key, payload)
	}
	for _, sub := range wild {
		s.invoke(log, sub, key, payload)
	}
}

func (s *Store) invoke(log zerolog.Logger, sub *Subscription, key string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			s.failures.Add(1)
			log.Error().
				Str("key", key).
				Str("listener_key", sub.key).
				Str("panic", fmt.Sprint(r)).
				Msg("store listener failed")
		}
	}()
	sub.fn(key, payload)
}

// ClearListeners drops every listener registered for key.
func (s *Store) ClearListeners(key string) {
	s.mu.Lock()
	delete(s.listeners, key)
	s.mu.Unlock()
}

// ClearAllListeners drops every listener, including wildcard ones.
func (s *Store) ClearAllListeners() {
	s.mu.Lock()
	s.listeners = make(map[string][]*Subscription)
	s.mu.Unlock()
}

// Failures reports how many listener invocations have panicked.
func (s *Store) Failures() uint64 { return s.failures.Load() }

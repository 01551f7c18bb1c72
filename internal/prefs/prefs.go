// Package prefs is an observable key/value preference store with a readiness
// signal. Values live in memory and are persisted through a Backend.
package prefs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
)

const (
	KeyShowStatsInIcon = "show_statsinicon"
	KeyBlockedTotal    = "blocked_total"
)

// Defaults are the values used until a backend supplies others.
func Defaults() map[string]string {
	return map[string]string{
		KeyShowStatsInIcon: "true",
		KeyBlockedTotal:    "0",
	}
}

// Backend persists preference values.
type Backend interface {
	Load(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
	Incr(ctx context.Context, key string) (int64, error)
}

type listener struct {
	id int64
	fn func()
}

// Store holds preference values. Reads are served from memory; writes go to
// the backend first.
type Store struct {
	backend Backend

	mu        sync.RWMutex
	values    map[string]string
	listeners map[string][]listener
	nextID    int64
	loaded    bool
	waiting   []func()
	ready     chan struct{}
}

func NewStore(backend Backend, defaults map[string]string) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	values := make(map[string]string, len(defaults))
	for k, v := range defaults {
		values[k] = v
	}
	return &Store{
		backend:   backend,
		values:    values,
		listeners: make(map[string][]listener),
		ready:     make(chan struct{}),
	}
}

// Load reads the backend, applies its values over the defaults and marks the
// store loaded. Continuations queued by WhenLoaded run afterwards, in order.
// A failed load leaves the store unloaded so the caller can retry.
func (s *Store) Load(ctx context.Context) error {
	stored, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("prefs: load: %w", err)
	}

	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		return nil
	}
	var changed []string
	for k, v := range stored {
		if s.values[k] != v {
			changed = append(changed, k)
		}
		s.values[k] = v
	}
	s.loaded = true
	waiting := s.waiting
	s.waiting = nil
	close(s.ready)
	s.mu.Unlock()

	slog.Info("prefs loaded", "keys", len(stored))
	for _, key := range changed {
		s.notify(key)
	}
	for _, fn := range waiting {
		fn()
	}
	return nil
}

// Loaded is closed once the store has finished loading.
func (s *Store) Loaded() <-chan struct{} {
	return s.ready
}

// WhenLoaded runs fn right away when the store is loaded, otherwise after
// Load succeeds. If the store never loads, fn never runs.
func (s *Store) WhenLoaded(fn func()) {
	s.mu.Lock()
	if !s.loaded {
		s.waiting = append(s.waiting, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn()
}

// On registers fn to run after key changes value. The returned function
// removes the registration.
func (s *Store) On(key string, fn func()) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[key] = append(s.listeners[key], listener{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		ls := s.listeners[key]
		for i, l := range ls {
			if l.id == id {
				s.listeners[key] = append(ls[:i:i], ls[i+1:]...)
				break
			}
		}
	}
}

func (s *Store) notify(key string) {
	s.mu.RLock()
	ls := make([]listener, len(s.listeners[key]))
	copy(ls, s.listeners[key])
	s.mu.RUnlock()
	for _, l := range ls {
		l.fn()
	}
}

// String returns the raw value of key.
func (s *Store) String(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Bool parses key as a boolean; unparsable values read as false.
func (s *Store) Bool(key string) bool {
	b, err := strconv.ParseBool(s.String(key))
	return err == nil && b
}

// Int parses key as an integer; unparsable values read as 0.
func (s *Store) Int(key string) int64 {
	i, err := strconv.ParseInt(s.String(key), 10, 64)
	if err != nil {
		return 0
	}
	return i
}

// Set persists value under key and notifies listeners when it changed.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.backend.Set(ctx, key, value); err != nil {
		return fmt.Errorf("prefs: set %s: %w", key, err)
	}
	s.Apply(key, value)
	return nil
}

// SetBool is Set for booleans.
func (s *Store) SetBool(ctx context.Context, key string, v bool) error {
	return s.Set(ctx, key, strconv.FormatBool(v))
}

// Apply records a value already persisted elsewhere (another process sharing
// the backend) and notifies listeners when it changed.
func (s *Store) Apply(key, value string) {
	s.mu.Lock()
	old, had := s.values[key]
	s.values[key] = value
	s.mu.Unlock()

	if !had || old != value {
		slog.Debug("prefs changed", "key", key, "value", value)
		s.notify(key)
	}
}

// Increment atomically adds one to key on the backend and returns the result.
func (s *Store) Increment(ctx context.Context, key string) (int64, error) {
	n, err := s.backend.Incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("prefs: increment %s: %w", key, err)
	}
	s.applyCounter(key, n)
	return n, nil
}

// applyCounter records n unless a larger value is already held. Concurrent
// increments can return out of order and the counter never goes backwards.
func (s *Store) applyCounter(key string, n int64) {
	s.mu.Lock()
	if cur, err := strconv.ParseInt(s.values[key], 10, 64); err == nil && cur >= n {
		s.mu.Unlock()
		return
	}
	value := strconv.FormatInt(n, 10)
	s.values[key] = value
	s.mu.Unlock()

	slog.Debug("prefs changed", "key", key, "value", value)
	s.notify(key)
}

// ShowStatsInIcon reports whether blocked counts are drawn on the badge.
func (s *Store) ShowStatsInIcon() bool {
	return s.Bool(KeyShowStatsInIcon)
}

// OnShowStatsInIcon registers fn for changes of the badge preference.
func (s *Store) OnShowStatsInIcon(fn func()) func() {
	return s.On(KeyShowStatsInIcon, fn)
}

// BlockedTotal is the lifetime number of blocked requests.
func (s *Store) BlockedTotal() int64 {
	return s.Int(KeyBlockedTotal)
}

// IncrementBlockedTotal adds one blocked request to the lifetime total.
func (s *Store) IncrementBlockedTotal(ctx context.Context) error {
	_, err := s.Increment(ctx, KeyBlockedTotal)
	return err
}

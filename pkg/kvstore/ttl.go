package kvstore

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPurgeInterval is used by StartPurge when no interval is given.
const DefaultPurgeInterval = time.Minute

// Entry is the stored envelope of a TTL value. Expiry is unix milliseconds.
type Entry[T any] struct {
	Value  T     `json:"value"`
	Expiry int64 `json:"expiry"`
}

// TTL stores values that expire. Reads after expiry behave as if the key was never set.
type TTL[T any] struct {
	backend  Backend
	initial  T
	ttl      time.Duration
	logger   *zap.Logger
	onChange func(key string, value T)
	now      func() time.Time

	mu      sync.Mutex
	handles map[string]*Keyed[Entry[T]]
}

// TTLOption customises a TTL store.
type TTLOption[T any] func(*TTL[T])

// WithTTLLogger sets the logger handed to every key handle.
func WithTTLLogger[T any](l *zap.Logger) TTLOption[T] {
	return func(t *TTL[T]) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithTTLOnChange registers a callback for external writes observed by Watch.
func WithTTLOnChange[T any](fn func(key string, value T)) TTLOption[T] {
	return func(t *TTL[T]) { t.onChange = fn }
}

// NewTTL creates a store whose values live for ttl after each write.
func NewTTL[T any](backend Backend, initial T, ttl time.Duration, opts ...TTLOption[T]) *TTL[T] {
	t := &TTL[T]{
		backend: backend,
		initial: initial,
		ttl:     ttl,
		logger:  zap.NewNop(),
		now:     time.Now,
		handles: make(map[string]*Keyed[Entry[T]]),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TTL[T]) handle(key string) *Keyed[Entry[T]] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.handles[key]; ok {
		return h
	}
	opts := []Option[Entry[T]]{WithLogger[Entry[T]](t.logger)}
	if t.onChange != nil {
		opts = append(opts, WithOnChange(func(e Entry[T]) {
			if t.expired(e) {
				t.onChange(key, t.initial)
				return
			}
			t.onChange(key, e.Value)
		}))
	}
	h := NewKeyed(t.backend, key, Entry[T]{Value: t.initial}, opts...)
	t.handles[key] = h
	return h
}

func (t *TTL[T]) expired(e Entry[T]) bool {
	return e.Expiry == 0 || t.now().UnixMilli() > e.Expiry
}

// Get returns the live value of key or the initial value when absent or expired.
func (t *TTL[T]) Get(ctx context.Context, key string) (T, error) {
	h := t.handle(key)
	e, err := h.Get(ctx)
	if err != nil {
		return t.initial, err
	}
	if e.Expiry == 0 {
		return t.initial, nil
	}
	if t.expired(e) {
		if err := h.Remove(ctx); err != nil {
			t.logger.Warn("remove expired entry", zap.String("key", key), zap.Error(err))
		}
		return t.initial, nil
	}
	return e.Value, nil
}

// Set stores value under key for the store's ttl.
func (t *TTL[T]) Set(ctx context.Context, key string, value T) error {
	return t.SetFor(ctx, key, value, t.ttl)
}

// SetFor stores value under key for ttl.
func (t *TTL[T]) SetFor(ctx context.Context, key string, value T, ttl time.Duration) error {
	return t.handle(key).Set(ctx, Entry[T]{Value: value, Expiry: t.now().Add(ttl).UnixMilli()})
}

// Remove deletes key.
func (t *TTL[T]) Remove(ctx context.Context, key string) error {
	return t.handle(key).Remove(ctx)
}

// Purge deletes every tracked key that has expired and returns how many were removed.
func (t *TTL[T]) Purge(ctx context.Context) (int, error) {
	t.mu.Lock()
	keys := make([]string, 0, len(t.handles))
	for key := range t.handles {
		keys = append(keys, key)
	}
	t.mu.Unlock()

	removed := 0
	for _, key := range keys {
		h := t.handle(key)
		e, err := h.Get(ctx)
		if err != nil {
			return removed, err
		}
		if e.Expiry != 0 && t.expired(e) {
			if err := h.Remove(ctx); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// StartPurge runs Purge every interval until ctx ends.
func (t *TTL[T]) StartPurge(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPurgeInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := t.Purge(ctx); err != nil {
					t.logger.Warn("purge expired entries", zap.Error(err))
				} else if n > 0 {
					t.logger.Debug("purged expired entries", zap.Int("count", n))
				}
			}
		}
	}()
}

// Watch dispatches external writes to the handles of tracked keys until ctx ends.
func (t *TTL[T]) Watch(ctx context.Context) error {
	changes, err := t.backend.Subscribe(ctx)
	if err != nil {
		return err
	}
	go func() {
		for change := range changes {
			t.mu.Lock()
			h, ok := t.handles[change.Key]
			t.mu.Unlock()
			if ok {
				h.apply(change.NewValue)
			}
		}
	}()
	return nil
}

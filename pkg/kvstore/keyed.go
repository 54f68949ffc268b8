package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Serializer converts values to and from their stored string form.
type Serializer[T any] interface {
	Marshal(value T) (string, error)
	Unmarshal(raw string) (T, error)
}

// JSONSerializer is the default Serializer.
type JSONSerializer[T any] struct{}

func (JSONSerializer[T]) Marshal(value T) (string, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (JSONSerializer[T]) Unmarshal(raw string) (T, error) {
	var v T
	err := json.Unmarshal([]byte(raw), &v)
	return v, err
}

// Option customises a Keyed handle.
type Option[T any] func(*Keyed[T])

// WithSerializer replaces the JSON serializer.
func WithSerializer[T any](s Serializer[T]) Option[T] {
	return func(k *Keyed[T]) { k.serializer = s }
}

// WithStrict makes malformed stored values an error instead of a fallback to the initial value.
func WithStrict[T any]() Option[T] {
	return func(k *Keyed[T]) { k.strict = true }
}

// WithLogger sets the logger used for malformed-value warnings.
func WithLogger[T any](l *zap.Logger) Option[T] {
	return func(k *Keyed[T]) {
		if l != nil {
			k.logger = l
		}
	}
}

// WithOnChange registers a callback invoked when Watch applies an external write.
func WithOnChange[T any](fn func(T)) Option[T] {
	return func(k *Keyed[T]) { k.onChange = fn }
}

// Keyed is a typed handle over one key of a Backend. It caches the last value
// it read or wrote together with its serialized form.
type Keyed[T any] struct {
	backend    Backend
	key        string
	initial    T
	serializer Serializer[T]
	strict     bool
	logger     *zap.Logger
	onChange   func(T)

	mu    sync.Mutex
	value T
	raw   string
	has   bool
}

// NewKeyed creates a handle for key whose absent value reads as initial.
func NewKeyed[T any](backend Backend, key string, initial T, opts ...Option[T]) *Keyed[T] {
	k := &Keyed[T]{
		backend:    backend,
		key:        key,
		initial:    initial,
		serializer: JSONSerializer[T]{},
		logger:     zap.NewNop(),
		value:      initial,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Key returns the storage key.
func (k *Keyed[T]) Key() string { return k.key }

// Get reads the stored value, falling back to the initial value when absent or malformed.
func (k *Keyed[T]) Get(ctx context.Context) (T, error) {
	raw, ok, err := k.backend.Get(ctx, k.key)
	if err != nil {
		return k.initial, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if !ok {
		k.value, k.raw, k.has = k.initial, "", false
		return k.initial, nil
	}
	value, err := k.decode(raw)
	if err != nil {
		return k.initial, err
	}
	k.value, k.raw, k.has = value, raw, true
	return value, nil
}

// Value returns the cached value without touching the backend.
func (k *Keyed[T]) Value() T {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.value
}

// Set stores value. The cache is updated before the write so that the
// backend's own notification of it is recognised as known.
func (k *Keyed[T]) Set(ctx context.Context, value T) error {
	raw, err := k.serializer.Marshal(value)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", k.key, err)
	}
	prev := k.swap(value, raw, true)
	if err := k.backend.Set(ctx, k.key, raw); err != nil {
		k.restore(prev)
		return err
	}
	return nil
}

// Update stores fn applied to the current stored value and returns the result.
func (k *Keyed[T]) Update(ctx context.Context, fn func(T) T) (T, error) {
	current, err := k.Get(ctx)
	if err != nil {
		return current, err
	}
	next := fn(current)
	if err := k.Set(ctx, next); err != nil {
		return current, err
	}
	return next, nil
}

// Remove deletes the key; subsequent reads return the initial value.
func (k *Keyed[T]) Remove(ctx context.Context) error {
	prev := k.swap(k.initial, "", false)
	if err := k.backend.Delete(ctx, k.key); err != nil {
		k.restore(prev)
		return err
	}
	return nil
}

type cached[T any] struct {
	value T
	raw   string
	has   bool
}

func (k *Keyed[T]) swap(value T, raw string, has bool) cached[T] {
	k.mu.Lock()
	defer k.mu.Unlock()
	prev := cached[T]{value: k.value, raw: k.raw, has: k.has}
	k.value, k.raw, k.has = value, raw, has
	return prev
}

func (k *Keyed[T]) restore(prev cached[T]) {
	k.mu.Lock()
	k.value, k.raw, k.has = prev.value, prev.raw, prev.has
	k.mu.Unlock()
}

// Watch applies external writes of the key to the cached value until ctx ends.
func (k *Keyed[T]) Watch(ctx context.Context) error {
	changes, err := k.backend.Subscribe(ctx)
	if err != nil {
		return err
	}
	go func() {
		for change := range changes {
			if change.Key == k.key {
				k.apply(change.NewValue)
			}
		}
	}()
	return nil
}

// apply refreshes the cached value when raw differs from the last known serialized form.
func (k *Keyed[T]) apply(raw *string) {
	k.mu.Lock()
	switch {
	case raw == nil && !k.has:
		k.mu.Unlock()
		return
	case raw == nil:
		k.value, k.raw, k.has = k.initial, "", false
	case k.has && *raw == k.raw:
		k.mu.Unlock()
		return
	default:
		value, err := k.decode(*raw)
		if err != nil {
			value = k.initial
		}
		k.value, k.raw, k.has = value, *raw, true
	}
	value, cb := k.value, k.onChange
	k.mu.Unlock()
	if cb != nil {
		cb(value)
	}
}

func (k *Keyed[T]) decode(raw string) (T, error) {
	value, err := k.serializer.Unmarshal(raw)
	if err == nil {
		return value, nil
	}
	if k.strict {
		return k.initial, fmt.Errorf("malformed value for %s: %w", k.key, err)
	}
	k.logger.Warn("malformed stored value, using initial", zap.String("key", k.key), zap.Error(err))
	return k.initial, nil
}

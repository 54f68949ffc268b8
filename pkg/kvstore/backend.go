// Package kvstore provides typed keyed storage over pluggable durable backends
// with change notification between processes sharing a backend.
package kvstore

import (
	"context"
	"sync"
)

// Change describes a write observed on a backend. NewValue is nil for deletions.
type Change struct {
	Key      string  `json:"key"`
	NewValue *string `json:"new_value"`
}

// Backend is a string keyed durable store.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Subscribe streams changes until ctx is cancelled; the channel is closed afterwards.
	Subscribe(ctx context.Context) (<-chan Change, error)
}

const subscriberBuffer = 64

// hub fans changes out to in-process subscribers. Slow subscribers miss changes.
type hub struct {
	mu   sync.Mutex
	subs map[chan Change]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan Change]struct{})}
}

func (h *hub) subscribe(ctx context.Context) <-chan Change {
	ch := make(chan Change, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}()
	return ch
}

func (h *hub) publish(change Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

func strPtr(s string) *string { return &s }

package listing

import (
	"sync"
	"time"
)

// LiveConfig configures a Live view.
type LiveConfig[T Filterable] struct {
	// Delay debounces recomputation after search or filter edits. Zero recomputes immediately.
	Delay time.Duration
	// OnChange receives every recomputed result.
	OnChange func(result []T)
}

// Live keeps a filtered projection of a list up to date as the list, search
// term or filters change. It is safe for concurrent use.
//
// Loads are guarded by a generation token: a load started before a newer one
// can never overwrite the newer result.
type Live[T Filterable] struct {
	mu        sync.Mutex
	engine    *Engine
	items     []T
	spec      Spec
	result    []T
	fetchGen  uint64
	appliedAt uint64
	computed  uint64
	committed uint64
	debounce  *Debouncer
	onChange  func([]T)
}

// NewLive creates a live view over an initially empty list.
func NewLive[T Filterable](engine *Engine, cfg LiveConfig[T]) *Live[T] {
	return &Live[T]{
		engine:   engine,
		spec:     Spec{Fields: map[string]string{}},
		result:   []T{},
		debounce: NewDebouncer(cfg.Delay),
		onChange: cfg.OnChange,
	}
}

// SetItems replaces the list and recomputes immediately.
func (l *Live[T]) SetItems(items []T) {
	l.mu.Lock()
	l.fetchGen++
	l.appliedAt = l.fetchGen
	l.items = items
	l.mu.Unlock()
	l.recompute()
}

// BeginLoad reserves a generation token for an asynchronous list load.
func (l *Live[T]) BeginLoad() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fetchGen++
	return l.fetchGen
}

// CompleteLoad applies items loaded under token unless a newer load was
// started or applied since. It reports whether the items were applied.
func (l *Live[T]) CompleteLoad(token uint64, items []T) bool {
	l.mu.Lock()
	if token != l.fetchGen || token <= l.appliedAt {
		l.mu.Unlock()
		return false
	}
	l.appliedAt = token
	l.items = items
	l.mu.Unlock()
	l.recompute()
	return true
}

// SetSearch updates the free-text term.
func (l *Live[T]) SetSearch(term string) {
	l.mu.Lock()
	l.spec = Spec{Search: term, Fields: l.spec.Fields}
	l.mu.Unlock()
	l.debounce.Trigger(l.recompute)
}

// SetFilter sets or, with an empty value, removes one field filter.
func (l *Live[T]) SetFilter(field, value string) {
	l.mu.Lock()
	l.spec = l.spec.With(field, value)
	l.mu.Unlock()
	l.debounce.Trigger(l.recompute)
}

// ClearFilters removes the search term and every field filter.
func (l *Live[T]) ClearFilters() {
	l.debounce.Stop()
	l.mu.Lock()
	l.spec = Spec{Fields: map[string]string{}}
	l.mu.Unlock()
	l.recompute()
}

// Flush forces any debounced recomputation to happen now.
func (l *Live[T]) Flush() {
	l.debounce.Flush()
}

// Close discards pending recomputation.
func (l *Live[T]) Close() {
	l.debounce.Stop()
}

// Spec returns the current filter state.
func (l *Live[T]) Spec() Spec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spec
}

// HasActiveFilters reports whether any filter is set.
func (l *Live[T]) HasActiveFilters() bool {
	return l.Spec().HasActiveFilters()
}

// Result returns the latest filtered list.
func (l *Live[T]) Result() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.result
}

func (l *Live[T]) recompute() {
	l.mu.Lock()
	l.computed++
	seq := l.computed
	items, spec := l.items, l.spec
	l.mu.Unlock()

	result := Apply(l.engine, items, spec)

	l.mu.Lock()
	if seq < l.committed {
		l.mu.Unlock()
		return
	}
	l.committed = seq
	l.result = result
	cb := l.onChange
	l.mu.Unlock()
	if cb != nil {
		cb(result)
	}
}

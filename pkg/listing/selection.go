package listing

import "sort"

// Identifiable is implemented by rows that expose a stable identifier.
type Identifiable interface {
	Identifier() string
}

// ByIdentifier returns an id function for Identifiable items.
func ByIdentifier[T Identifiable]() func(T) string {
	return func(item T) string { return item.Identifier() }
}

// SelectionOption customises a Selection.
type SelectionOption func(*selectionOptions)

type selectionOptions struct {
	max int
}

// WithMaxSelections caps how many ids may be selected at once. Zero means unlimited.
func WithMaxSelections(max int) SelectionOption {
	return func(o *selectionOptions) {
		if max > 0 {
			o.max = max
		}
	}
}

// Selection tracks the checked rows of a list view. It is not safe for concurrent use.
//
// The selection is id based; it survives list changes until Sync is called.
type Selection[T any] struct {
	idOf     func(T) string
	items    []T
	position map[string]int
	selected map[string]struct{}
	max      int
}

// NewSelection creates an empty selection over items.
func NewSelection[T any](items []T, idOf func(T) string, opts ...SelectionOption) *Selection[T] {
	o := selectionOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Selection[T]{
		idOf:     idOf,
		selected: make(map[string]struct{}),
		max:      o.max,
	}
	s.SetItems(items)
	return s
}

// SetItems replaces the underlying list. Selected ids are kept; call Sync to prune them.
func (s *Selection[T]) SetItems(items []T) {
	s.items = items
	s.position = make(map[string]int, len(items))
	for i, item := range items {
		id := s.idOf(item)
		if _, dup := s.position[id]; !dup {
			s.position[id] = i
		}
	}
}

// Items returns the current list.
func (s *Selection[T]) Items() []T {
	return s.items
}

// IsSelected reports whether item is selected.
func (s *Selection[T]) IsSelected(item T) bool {
	return s.isSelectedID(s.idOf(item))
}

func (s *Selection[T]) isSelectedID(id string) bool {
	_, ok := s.selected[id]
	return ok
}

// Select adds item unless the cap is reached. It reports whether item is selected afterwards.
func (s *Selection[T]) Select(item T) bool {
	return s.selectID(s.idOf(item))
}

func (s *Selection[T]) selectID(id string) bool {
	if s.isSelectedID(id) {
		return true
	}
	if !s.CanSelectMore() {
		return false
	}
	s.selected[id] = struct{}{}
	return true
}

// Deselect removes item.
func (s *Selection[T]) Deselect(item T) {
	delete(s.selected, s.idOf(item))
}

// Toggle flips the state of item.
func (s *Selection[T]) Toggle(item T) {
	id := s.idOf(item)
	if s.isSelectedID(id) {
		delete(s.selected, id)
		return
	}
	s.selectID(id)
}

// SelectMany selects items in order until the cap is reached.
func (s *Selection[T]) SelectMany(items []T) {
	for _, item := range items {
		if !s.Select(item) {
			return
		}
	}
}

// DeselectMany removes every item given.
func (s *Selection[T]) DeselectMany(items []T) {
	for _, item := range items {
		s.Deselect(item)
	}
}

// SelectIDs selects the listed ids that exist in the current list and returns how many were applied.
func (s *Selection[T]) SelectIDs(ids []string) int {
	applied := 0
	for _, id := range ids {
		if _, ok := s.position[id]; !ok {
			continue
		}
		if !s.selectID(id) {
			break
		}
		applied++
	}
	return applied
}

// SelectAll selects the whole list, honouring the cap in list order.
func (s *Selection[T]) SelectAll() {
	s.SelectMany(s.items)
}

// Clear empties the selection.
func (s *Selection[T]) Clear() {
	s.selected = make(map[string]struct{})
}

// ToggleAll clears a fully selected list and otherwise selects everything.
func (s *Selection[T]) ToggleAll() {
	if s.IsAllSelected() {
		s.Clear()
		return
	}
	s.SelectAll()
}

// SelectRange selects the contiguous run between a and b inclusive, in either order.
// Nothing happens when either endpoint is missing from the list.
func (s *Selection[T]) SelectRange(a, b T) {
	start, okA := s.position[s.idOf(a)]
	end, okB := s.position[s.idOf(b)]
	if !okA || !okB {
		return
	}
	if start > end {
		start, end = end, start
	}
	s.SelectMany(s.items[start : end+1])
}

// Sync drops selected ids that are no longer in the list and returns how many were removed.
func (s *Selection[T]) Sync() int {
	removed := 0
	for id := range s.selected {
		if _, ok := s.position[id]; !ok {
			delete(s.selected, id)
			removed++
		}
	}
	return removed
}

// Count is the number of selected ids.
func (s *Selection[T]) Count() int {
	return len(s.selected)
}

// Total is the size of the current list.
func (s *Selection[T]) Total() int {
	return len(s.items)
}

// HasAny reports whether anything is selected.
func (s *Selection[T]) HasAny() bool {
	return len(s.selected) > 0
}

// IsAllSelected is true when every row is selected and the list is not empty.
func (s *Selection[T]) IsAllSelected() bool {
	total := len(s.items)
	return total > 0 && len(s.selected) == total
}

// IsPartial is true when some but not all rows are selected.
func (s *Selection[T]) IsPartial() bool {
	count := len(s.selected)
	return count > 0 && count < len(s.items)
}

// CanSelectMore reports whether the cap still allows another selection.
func (s *Selection[T]) CanSelectMore() bool {
	return s.max <= 0 || len(s.selected) < s.max
}

// SelectedIDs returns selected ids in list order followed by stale ids sorted lexically.
func (s *Selection[T]) SelectedIDs() []string {
	ids := make([]string, 0, len(s.selected))
	for i, item := range s.items {
		id := s.idOf(item)
		if s.isSelectedID(id) && s.position[id] == i {
			ids = append(ids, id)
		}
	}
	if len(ids) == len(s.selected) {
		return ids
	}
	stale := make([]string, 0, len(s.selected)-len(ids))
	for id := range s.selected {
		if _, ok := s.position[id]; !ok {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	return append(ids, stale...)
}

// SelectedItems returns the selected rows present in the list, in list order.
func (s *Selection[T]) SelectedItems() []T {
	out := make([]T, 0, len(s.selected))
	for i, item := range s.items {
		id := s.idOf(item)
		if s.isSelectedID(id) && s.position[id] == i {
			out = append(out, item)
		}
	}
	return out
}

package listing

import (
	"math"
	"strconv"
	"strings"
)

// NullValue is the filter value matching rows whose field is empty or absent.
const NullValue = "null"

// Filterable exposes named field values as strings for filtering and sorting.
// ok is false when the field is absent for the row.
type Filterable interface {
	FieldValue(field string) (value string, ok bool)
}

// Spec is the active filter state of a list view.
type Spec struct {
	Search string            `json:"search,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// HasActiveFilters reports whether the search term or any field filter is set.
func (s Spec) HasActiveFilters() bool {
	if strings.TrimSpace(s.Search) != "" {
		return true
	}
	for _, v := range s.Fields {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// With returns a copy of s with field set to value. An empty value removes the filter.
func (s Spec) With(field, value string) Spec {
	fields := make(map[string]string, len(s.Fields)+1)
	for k, v := range s.Fields {
		fields[k] = v
	}
	if strings.TrimSpace(value) == "" {
		delete(fields, field)
	} else {
		fields[field] = value
	}
	return Spec{Search: s.Search, Fields: fields}
}

// Engine evaluates a Spec against rows.
type Engine struct {
	searchFields []string
	rangeFields  map[string]struct{}
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSearchFields sets the fields the free-text term is matched against.
func WithSearchFields(fields ...string) EngineOption {
	return func(e *Engine) { e.searchFields = append(e.searchFields, fields...) }
}

// WithRangeFields marks fields whose filter values are "min-max" numeric ranges.
func WithRangeFields(fields ...string) EngineOption {
	return func(e *Engine) {
		for _, f := range fields {
			e.rangeFields[f] = struct{}{}
		}
	}
}

// NewEngine builds a filter engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{rangeFields: make(map[string]struct{})}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SearchFields returns the configured search fields.
func (e *Engine) SearchFields() []string {
	return e.searchFields
}

// Match reports whether item satisfies every predicate of spec.
func (e *Engine) Match(item Filterable, spec Spec) bool {
	if term := strings.ToLower(strings.TrimSpace(spec.Search)); term != "" && !e.matchSearch(item, term) {
		return false
	}
	for field, expected := range spec.Fields {
		expected = strings.TrimSpace(expected)
		if expected == "" {
			continue
		}
		if !e.matchField(item, field, expected) {
			return false
		}
	}
	return true
}

func (e *Engine) matchSearch(item Filterable, term string) bool {
	for _, field := range e.searchFields {
		if v, ok := item.FieldValue(field); ok && strings.Contains(strings.ToLower(v), term) {
			return true
		}
	}
	return false
}

func (e *Engine) matchField(item Filterable, field, expected string) bool {
	value, ok := item.FieldValue(field)
	if strings.EqualFold(expected, NullValue) {
		return !ok || strings.TrimSpace(value) == ""
	}
	if !ok {
		return false
	}
	if _, isRange := e.rangeFields[field]; isRange {
		if lo, hi, parsed := parseRange(expected); parsed {
			n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			return err == nil && n >= lo && n <= hi
		}
	}
	return strings.EqualFold(strings.TrimSpace(value), expected)
}

// parseRange reads "min-max", "min-" or "-max". Missing ends are unbounded.
func parseRange(raw string) (lo, hi float64, ok bool) {
	left, right, found := strings.Cut(raw, "-")
	if !found {
		return 0, 0, false
	}
	lo, hi = math.Inf(-1), math.Inf(1)
	if left = strings.TrimSpace(left); left != "" {
		v, err := strconv.ParseFloat(left, 64)
		if err != nil {
			return 0, 0, false
		}
		lo = v
	}
	if right = strings.TrimSpace(right); right != "" {
		v, err := strconv.ParseFloat(right, 64)
		if err != nil {
			return 0, 0, false
		}
		hi = v
	}
	if left == "" && right == "" {
		return 0, 0, false
	}
	return lo, hi, true
}

// Apply returns the rows of items matching spec, in their original order.
// With no active filter the input slice is returned unchanged.
func Apply[T Filterable](e *Engine, items []T, spec Spec) []T {
	if !spec.HasActiveFilters() {
		return items
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if e.Match(item, spec) {
			out = append(out, item)
		}
	}
	return out
}

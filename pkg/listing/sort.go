package listing

import (
	"sort"
	"strconv"
	"strings"
)

// SortBy stably orders items by field. Numeric values compare numerically,
// everything else case-insensitively; rows missing the field sort last.
func SortBy[T Filterable](items []T, field string, desc bool) []T {
	out := make([]T, len(items))
	copy(out, items)
	if field == "" {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, okA := out[i].FieldValue(field)
		b, okB := out[j].FieldValue(field)
		if okA != okB {
			return okA
		}
		cmp := compareValues(a, b)
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
	return out
}

func compareValues(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginationTotalPagesAndConcatenation(t *testing.T) {
	for _, n := range []int{0, 1, 9, 10, 11, 23, 100} {
		for _, size := range []int{1, 3, 5, 10, 25} {
			items := rows(n)
			p := NewPagination(n, size)
			expected := (n + size - 1) / size
			if expected < 1 {
				expected = 1
			}
			require.Equal(t, expected, p.TotalPages(), "n=%d size=%d", n, size)

			var all []row
			for page := 1; page <= p.TotalPages(); page++ {
				p.GoTo(page)
				all = append(all, Slice(items, p)...)
			}
			if n == 0 {
				assert.Empty(t, all)
				continue
			}
			assert.Equal(t, items, all, "n=%d size=%d", n, size)
		}
	}
}

func TestPaginationTwentyThreeItems(t *testing.T) {
	items := rows(23)
	p := NewPagination(len(items), 10)

	assert.Equal(t, 3, p.GoTo(3))
	assert.Len(t, Slice(items, p), 3)
	assert.Equal(t, 3, p.TotalPages())

	p.SetPageSize(5)
	assert.Equal(t, 5, p.TotalPages())
	assert.Equal(t, 3, p.Page())
}

func TestPaginationClampOnPageSizeChange(t *testing.T) {
	p := NewPagination(11, 5)
	p.GoTo(3)
	assert.Equal(t, 3, p.TotalPages())
	assert.Equal(t, 3, p.Page())

	p.SetPageSize(10)
	assert.Equal(t, 2, p.TotalPages())
	assert.Equal(t, 2, p.Page())
}

func TestPaginationNavigationClamps(t *testing.T) {
	p := NewPagination(30, 10)
	assert.Equal(t, 1, p.GoTo(-4))
	assert.Equal(t, 3, p.GoTo(99))
	assert.Equal(t, 3, p.Next())
	assert.False(t, p.HasNext())
	assert.Equal(t, 2, p.Previous())
	assert.Equal(t, 1, p.First())
	assert.Equal(t, 1, p.Previous())
	assert.False(t, p.HasPrevious())
	assert.Equal(t, 3, p.Last())
}

func TestPaginationShrinkingListClampsPage(t *testing.T) {
	items := rows(50)
	p := NewPagination(len(items), 10)
	p.GoTo(5)

	page := Slice(items[:12], p)
	assert.Equal(t, 2, p.Page())
	assert.Len(t, page, 2)
}

func TestPaginationVisiblePages(t *testing.T) {
	p := NewPagination(100, 10)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, p.VisiblePages(5))
	p.GoTo(5)
	assert.Equal(t, []int{3, 4, 5, 6, 7}, p.VisiblePages(5))
	p.GoTo(10)
	assert.Equal(t, []int{6, 7, 8, 9, 10}, p.VisiblePages(5))
	p.GoTo(9)
	assert.Equal(t, []int{6, 7, 8, 9, 10}, p.VisiblePages(5))

	small := NewPagination(12, 5)
	assert.Equal(t, []int{1, 2, 3}, small.VisiblePages(5))

	empty := NewPagination(0, 5)
	assert.Equal(t, []int{1}, empty.VisiblePages(0))
}

func TestPaginateHelper(t *testing.T) {
	page, p := Paginate(rows(7), 2, 0)
	assert.Equal(t, DefaultPageSize, p.PageSize())
	assert.Equal(t, 1, p.Page())
	assert.Len(t, page, 7)

	meta := p.Meta(3)
	assert.Equal(t, 7, meta.TotalItems)
	assert.Equal(t, []int{1}, meta.Window)
}

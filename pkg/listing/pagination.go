package listing

// DefaultPageSize applies when a non-positive page size is requested.
const DefaultPageSize = 10

// DefaultWindow is the number of page links shown around the current page.
const DefaultWindow = 5

// Pagination derives a page window over a list of known length.
// The current page always lies in [1, TotalPages].
type Pagination struct {
	page     int
	pageSize int
	total    int
}

// PageMeta is the serialisable view of a Pagination.
type PageMeta struct {
	Page        int   `json:"page"`
	PageSize    int   `json:"page_size"`
	TotalItems  int   `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
	Window      []int `json:"window,omitempty"`
}

// NewPagination starts on page 1.
func NewPagination(total, pageSize int) *Pagination {
	p := &Pagination{page: 1}
	p.pageSize = normalizeSize(pageSize)
	p.SetTotal(total)
	return p
}

func normalizeSize(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	return size
}

// Page returns the current page number.
func (p *Pagination) Page() int { return p.page }

// PageSize returns the number of rows per page.
func (p *Pagination) PageSize() int { return p.pageSize }

// Total returns the list length.
func (p *Pagination) Total() int { return p.total }

// TotalPages is ceil(total/pageSize), never less than 1.
func (p *Pagination) TotalPages() int {
	if p.total <= 0 {
		return 1
	}
	return (p.total + p.pageSize - 1) / p.pageSize
}

// GoTo moves to page n clamped into range and returns the resulting page.
func (p *Pagination) GoTo(n int) int {
	switch last := p.TotalPages(); {
	case n < 1:
		p.page = 1
	case n > last:
		p.page = last
	default:
		p.page = n
	}
	return p.page
}

func (p *Pagination) Next() int     { return p.GoTo(p.page + 1) }
func (p *Pagination) Previous() int { return p.GoTo(p.page - 1) }
func (p *Pagination) First() int    { return p.GoTo(1) }
func (p *Pagination) Last() int     { return p.GoTo(p.TotalPages()) }

// HasNext reports whether a following page exists.
func (p *Pagination) HasNext() bool { return p.page < p.TotalPages() }

// HasPrevious reports whether a preceding page exists.
func (p *Pagination) HasPrevious() bool { return p.page > 1 }

// SetPageSize changes the page size and clamps the current page down if needed.
func (p *Pagination) SetPageSize(size int) {
	p.pageSize = normalizeSize(size)
	p.GoTo(p.page)
}

// SetTotal records a new list length and clamps the current page.
func (p *Pagination) SetTotal(total int) {
	if total < 0 {
		total = 0
	}
	p.total = total
	p.GoTo(p.page)
}

// StartIndex is the offset of the first row of the current page.
func (p *Pagination) StartIndex() int {
	return (p.page - 1) * p.pageSize
}

// EndIndex is the exclusive end offset of the current page.
func (p *Pagination) EndIndex() int {
	end := p.StartIndex() + p.pageSize
	if end > p.total {
		end = p.total
	}
	return end
}

// VisiblePages returns up to size page numbers centred on the current page,
// shifted near the edges so they stay within [1, TotalPages].
func (p *Pagination) VisiblePages(size int) []int {
	if size <= 0 {
		size = DefaultWindow
	}
	last := p.TotalPages()
	if size > last {
		size = last
	}
	start := p.page - size/2
	if start < 1 {
		start = 1
	}
	end := start + size - 1
	if end > last {
		end = last
		start = end - size + 1
	}
	pages := make([]int, 0, size)
	for i := start; i <= end; i++ {
		pages = append(pages, i)
	}
	return pages
}

// Meta snapshots the pagination state with a page window of the given size.
func (p *Pagination) Meta(window int) PageMeta {
	return PageMeta{
		Page:        p.page,
		PageSize:    p.pageSize,
		TotalItems:  p.total,
		TotalPages:  p.TotalPages(),
		HasNext:     p.HasNext(),
		HasPrevious: p.HasPrevious(),
		Window:      p.VisiblePages(window),
	}
}

// Slice returns the rows of the current page. The list length is synced first.
func Slice[T any](items []T, p *Pagination) []T {
	if len(items) != p.total {
		p.SetTotal(len(items))
	}
	start, end := p.StartIndex(), p.EndIndex()
	if start >= end {
		return []T{}
	}
	return items[start:end]
}

// Paginate is a one-shot helper returning the requested page and its pagination.
func Paginate[T any](items []T, page, pageSize int) ([]T, *Pagination) {
	p := NewPagination(len(items), pageSize)
	p.GoTo(page)
	return Slice(items, p), p
}

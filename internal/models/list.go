package models

// ListQuery carries list parameters from the HTTP layer.
type ListQuery struct {
	Search   string            `json:"search,omitempty"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Sort     string            `json:"sort,omitempty"`
	Order    string            `json:"order,omitempty"`
	Window   int               `json:"window,omitempty"`
	Filters  map[string]string `json:"filters,omitempty"`
}

// Descending reports whether Order asks for descending sort.
func (q ListQuery) Descending() bool {
	return q.Order == "desc" || q.Order == "DESC"
}

package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/psicometria/bat7-api/internal/models"
	"github.com/psicometria/bat7-api/internal/repository"
	"github.com/psicometria/bat7-api/pkg/listing"
)

type snapshotSource[T any] interface {
	List(ctx context.Context, q repository.Query) ([]T, int, error)
}

// ListingConfig tunes a ListingService.
type ListingConfig struct {
	Name            string
	CacheTTL        time.Duration
	SnapshotLimit   int
	DefaultPageSize int
	Window          int
	DefaultSort     string
	DefaultDesc     bool
}

// Page is one page of a filtered, sorted list.
type Page[T any] struct {
	Items    []T              `json:"items"`
	Meta     listing.PageMeta `json:"meta"`
	Filters  listing.Spec     `json:"filters"`
	CacheHit bool             `json:"-"`
}

// ListingService serves list pages from a cached snapshot of an entity. Each
// request runs search and field filters, sorts, then slices one page.
type ListingService[T listing.Filterable] struct {
	source snapshotSource[T]
	engine *listing.Engine
	cache  *CacheService
	cfg    ListingConfig
	logger *zap.Logger
}

// NewListingService constructs a ListingService.
func NewListingService[T listing.Filterable](source snapshotSource[T], engine *listing.Engine, cache *CacheService, cfg ListingConfig, logger *zap.Logger) *ListingService[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = listing.NewEngine()
	}
	if cfg.SnapshotLimit <= 0 {
		cfg.SnapshotLimit = 5000
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = listing.DefaultPageSize
	}
	if cfg.Window <= 0 {
		cfg.Window = listing.DefaultWindow
	}
	return &ListingService[T]{source: source, engine: engine, cache: cache, cfg: cfg, logger: logger}
}

// Snapshot returns the full list, from cache when possible.
func (s *ListingService[T]) Snapshot(ctx context.Context) ([]T, bool, error) {
	var items []T
	if s.cache.LoadSnapshot(ctx, s.cfg.Name, &items) {
		return items, true, nil
	}

	items, total, err := s.source.List(ctx, repository.Query{Limit: s.cfg.SnapshotLimit})
	if err != nil {
		return nil, false, err
	}
	if total > len(items) {
		s.logger.Warn("list snapshot truncated",
			zap.String("entity", s.cfg.Name),
			zap.Int("total", total),
			zap.Int("limit", s.cfg.SnapshotLimit))
	}
	s.cache.StoreSnapshot(ctx, s.cfg.Name, items, s.cfg.CacheTTL)
	return items, false, nil
}

// Spec converts a list query into filter state.
func (s *ListingService[T]) Spec(q models.ListQuery) listing.Spec {
	spec := listing.Spec{Search: strings.TrimSpace(q.Search), Fields: map[string]string{}}
	for field, value := range q.Filters {
		spec = spec.With(field, value)
	}
	return spec
}

// Filtered returns every row matching q, sorted.
func (s *ListingService[T]) Filtered(ctx context.Context, q models.ListQuery) ([]T, bool, error) {
	items, hit, err := s.Snapshot(ctx)
	if err != nil {
		return nil, false, err
	}
	filtered := listing.Apply(s.engine, items, s.Spec(q))

	field, desc := q.Sort, q.Descending()
	if field == "" {
		field, desc = s.cfg.DefaultSort, s.cfg.DefaultDesc
	}
	return listing.SortBy(filtered, field, desc), hit, nil
}

// Page returns the requested page of the filtered list. Out-of-range pages
// are clamped.
func (s *ListingService[T]) Page(ctx context.Context, q models.ListQuery) (*Page[T], error) {
	filtered, hit, err := s.Filtered(ctx, q)
	if err != nil {
		return nil, err
	}
	size := q.PageSize
	if size <= 0 {
		size = s.cfg.DefaultPageSize
	}
	window := q.Window
	if window <= 0 {
		window = s.cfg.Window
	}
	items, pagination := listing.Paginate(filtered, q.Page, size)
	return &Page[T]{
		Items:    items,
		Meta:     pagination.Meta(window),
		Filters:  s.Spec(q),
		CacheHit: hit,
	}, nil
}

// Invalidate drops the cached snapshot.
func (s *ListingService[T]) Invalidate(ctx context.Context) {
	if err := s.cache.DropSnapshots(ctx, s.cfg.Name); err != nil {
		s.logger.Warn("listing cache invalidation failed", zap.String("entity", s.cfg.Name), zap.Error(err))
	}
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/psicometria/bat7-api/pkg/listing"
)

// Join adds a relation to the select list of an entity.
type Join struct {
	Clause string
	Select []string
}

// EntityConfig describes how a table maps onto a listable entity.
type EntityConfig struct {
	Name string
	// Singular names one row in messages.
	Singular string
	Table    string
	Alias    string
	// Columns are the own columns selected for every row.
	Columns []string
	Joins   []Join
	// SearchColumns are matched with ILIKE by the free-text term.
	SearchColumns []string
	// FilterColumns maps query filter names to qualified columns.
	FilterColumns map[string]string
	SortColumns   map[string]string
	DefaultSort   string
	// Writable lists the columns accepted by Create and Update.
	Writable       []string
	RequiredFields []string
	UniqueField    string
	EmailFields    []string
	SoftDelete     bool
	Timestamps     bool
}

// Query narrows a list call.
type Query struct {
	Search  string
	Filters map[string]string
	Sort    string
	Desc    bool
	Limit   int
	Offset  int
}

func (c EntityConfig) qualified(col string) string {
	return c.Alias + "." + col
}

func (c EntityConfig) selectList() string {
	cols := make([]string, 0, len(c.Columns))
	for _, col := range c.Columns {
		cols = append(cols, c.qualified(col))
	}
	for _, j := range c.Joins {
		cols = append(cols, j.Select...)
	}
	return strings.Join(cols, ", ")
}

func (c EntityConfig) from() string {
	parts := []string{fmt.Sprintf("FROM %s %s", c.Table, c.Alias)}
	for _, j := range c.Joins {
		parts = append(parts, j.Clause)
	}
	return strings.Join(parts, " ")
}

// IsWritable reports whether col may be set through Create or Update.
func (c EntityConfig) IsWritable(col string) bool {
	for _, w := range c.Writable {
		if w == col {
			return true
		}
	}
	return false
}

func (c EntityConfig) hasColumn(col string) bool {
	for _, own := range c.Columns {
		if own == col {
			return true
		}
	}
	return false
}

// EntityRepository implements list and CRUD access for one configured table.
type EntityRepository[T listing.Filterable] struct {
	db      *sqlx.DB
	cfg     EntityConfig
	timeout time.Duration
	observe func(label string, d time.Duration)
}

// EntityOption configures an EntityRepository.
type EntityOption func(*entityOptions)

type entityOptions struct {
	timeout time.Duration
	observe func(string, time.Duration)
}

// WithQueryTimeout bounds every statement issued by the repository.
func WithQueryTimeout(d time.Duration) EntityOption {
	return func(o *entityOptions) { o.timeout = d }
}

// WithQueryObserver receives the duration of every list and lookup query.
func WithQueryObserver(fn func(label string, d time.Duration)) EntityOption {
	return func(o *entityOptions) { o.observe = fn }
}

// NewEntityRepository constructs an EntityRepository.
func NewEntityRepository[T listing.Filterable](db *sqlx.DB, cfg EntityConfig, opts ...EntityOption) *EntityRepository[T] {
	var o entityOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &EntityRepository[T]{db: db, cfg: cfg, timeout: o.timeout, observe: o.observe}
}

// Config returns the entity configuration.
func (r *EntityRepository[T]) Config() EntityConfig { return r.cfg }

func (r *EntityRepository[T]) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *EntityRepository[T]) track(op string, start time.Time) {
	if r.observe != nil {
		r.observe(r.cfg.Name+"_"+op, time.Since(start))
	}
}

func (r *EntityRepository[T]) where(q Query) (string, []interface{}) {
	conditions := []string{"1=1"}
	var args []interface{}
	if r.cfg.SoftDelete {
		conditions = append(conditions, r.cfg.qualified("deleted_at")+" IS NULL")
	}

	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		column, ok := r.cfg.FilterColumns[key]
		value := strings.TrimSpace(q.Filters[key])
		if !ok || value == "" {
			continue
		}
		if strings.EqualFold(value, listing.NullValue) {
			conditions = append(conditions, column+" IS NULL")
			continue
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if term := strings.TrimSpace(q.Search); term != "" && len(r.cfg.SearchColumns) > 0 {
		args = append(args, "%"+term+"%")
		ors := make([]string, 0, len(r.cfg.SearchColumns))
		for _, col := range r.cfg.SearchColumns {
			ors = append(ors, fmt.Sprintf("%s ILIKE $%d", col, len(args)))
		}
		conditions = append(conditions, "("+strings.Join(ors, " OR ")+")")
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// List returns rows matching q together with the total match count.
func (r *EntityRepository[T]) List(ctx context.Context, q Query) ([]T, int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	defer r.track("list", time.Now())

	where, args := r.where(q)

	column, ok := r.cfg.SortColumns[q.Sort]
	if !ok {
		column = r.cfg.SortColumns[r.cfg.DefaultSort]
	}
	if column == "" {
		column = r.cfg.qualified("id")
	}
	order := "ASC"
	if q.Desc {
		order = "DESC"
	}

	query := fmt.Sprintf("SELECT %s %s %s ORDER BY %s %s", r.cfg.selectList(), r.cfg.from(), where, column, order)
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", q.Limit, q.Offset)
	}

	items := []T{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", r.cfg.Name, err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s %s", r.cfg.from(), where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", r.cfg.Name, err)
	}
	return items, total, nil
}

// FindByID returns a live row by id or sql.ErrNoRows.
func (r *EntityRepository[T]) FindByID(ctx context.Context, id string) (*T, error) {
	return r.find(ctx, id, false)
}

func (r *EntityRepository[T]) find(ctx context.Context, id string, includeDeleted bool) (*T, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	defer r.track("find", time.Now())

	query := fmt.Sprintf("SELECT %s %s WHERE %s = $1", r.cfg.selectList(), r.cfg.from(), r.cfg.qualified("id"))
	if r.cfg.SoftDelete && !includeDeleted {
		query += " AND " + r.cfg.qualified("deleted_at") + " IS NULL"
	}
	var item T
	if err := r.db.GetContext(ctx, &item, query+" LIMIT 1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find %s: %w", r.cfg.Name, err)
	}
	return &item, nil
}

func (r *EntityRepository[T]) columns(fields map[string]interface{}) []string {
	cols := make([]string, 0, len(fields))
	for col := range fields {
		if r.cfg.IsWritable(col) {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)
	return cols
}

// Create inserts a row built from the writable entries of fields and returns it.
func (r *EntityRepository[T]) Create(ctx context.Context, fields map[string]interface{}) (*T, error) {
	id := uuid.NewString()
	cols := append([]string{"id"}, r.columns(fields)...)
	args := []interface{}{id}
	for _, col := range cols[1:] {
		args = append(args, fields[col])
	}
	if r.cfg.Timestamps {
		now := time.Now().UTC()
		cols = append(cols, "created_at", "updated_at")
		args = append(args, now, now)
	}
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", r.cfg.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	execCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	if _, err := r.db.ExecContext(execCtx, query, args...); err != nil {
		return nil, fmt.Errorf("create %s: %w", r.cfg.Name, err)
	}
	return r.find(ctx, id, true)
}

// Update applies the writable entries of partial to the row and returns it.
func (r *EntityRepository[T]) Update(ctx context.Context, id string, partial map[string]interface{}) (*T, error) {
	cols := r.columns(partial)
	if len(cols) == 0 && !r.cfg.Timestamps {
		return r.FindByID(ctx, id)
	}
	args := []interface{}{id}
	sets := make([]string, 0, len(cols)+1)
	for _, col := range cols {
		args = append(args, partial[col])
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if r.cfg.Timestamps {
		args = append(args, time.Now().UTC())
		sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1", r.cfg.Table, strings.Join(sets, ", "))
	if r.cfg.SoftDelete {
		query += " AND deleted_at IS NULL"
	}

	execCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	res, err := r.db.ExecContext(execCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", r.cfg.Name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, sql.ErrNoRows
	}
	return r.FindByID(ctx, id)
}

// Delete removes a row and returns its last state. Soft-deletable entities are
// deactivated and stamped with deleted_at instead.
func (r *EntityRepository[T]) Delete(ctx context.Context, id string) (*T, error) {
	execCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	if !r.cfg.SoftDelete {
		item, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if _, err := r.db.ExecContext(execCtx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", r.cfg.Table), id); err != nil {
			return nil, fmt.Errorf("delete %s: %w", r.cfg.Name, err)
		}
		return item, nil
	}

	now := time.Now().UTC()
	query := fmt.Sprintf("UPDATE %s SET activo = FALSE, deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL", r.cfg.Table)
	res, err := r.db.ExecContext(execCtx, query, id, now)
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", r.cfg.Name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, sql.ErrNoRows
	}
	return r.find(ctx, id, true)
}

// ExistsBy reports whether a live row other than excludeID has column = value.
func (r *EntityRepository[T]) ExistsBy(ctx context.Context, column string, value interface{}, excludeID string) (bool, error) {
	if !r.cfg.hasColumn(column) {
		return false, fmt.Errorf("exists %s: unknown column %q", r.cfg.Name, column)
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = $1", r.cfg.Table, column)
	args := []interface{}{value}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	// Unique indexes only cover live rows.
	if r.cfg.SoftDelete {
		query += " AND deleted_at IS NULL"
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check %s %s: %w", r.cfg.Name, column, err)
	}
	return true, nil
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/psicometria/bat7-api/internal/repository"
	"github.com/psicometria/bat7-api/pkg/database"
	appErrors "github.com/psicometria/bat7-api/pkg/errors"
	"github.com/psicometria/bat7-api/pkg/listing"
)

type entityStore[T any] interface {
	Config() repository.EntityConfig
	List(ctx context.Context, q repository.Query) ([]T, int, error)
	FindByID(ctx context.Context, id string) (*T, error)
	Create(ctx context.Context, fields map[string]interface{}) (*T, error)
	Update(ctx context.Context, id string, partial map[string]interface{}) (*T, error)
	Delete(ctx context.Context, id string) (*T, error)
	ExistsBy(ctx context.Context, column string, value interface{}, excludeID string) (bool, error)
}

// PrepareFunc normalises or enriches fields before they reach the store.
// creating is false for partial updates.
type PrepareFunc func(ctx context.Context, fields map[string]interface{}, creating bool) error

// EntityHooks customise an EntityService.
type EntityHooks struct {
	Prepare PrepareFunc
	// OnChange runs after every successful mutation.
	OnChange func(ctx context.Context)
}

// EntityService validates and persists one configured entity.
type EntityService[T listing.Filterable] struct {
	store     entityStore[T]
	cfg       repository.EntityConfig
	validator *validator.Validate
	logger    *zap.Logger
	hooks     EntityHooks
}

// NewEntityService constructs an EntityService over store.
func NewEntityService[T listing.Filterable](store entityStore[T], validate *validator.Validate, logger *zap.Logger, hooks EntityHooks) *EntityService[T] {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntityService[T]{store: store, cfg: store.Config(), validator: validate, logger: logger, hooks: hooks}
}

// Name returns the entity name.
func (s *EntityService[T]) Name() string { return s.cfg.Name }

// List returns rows matching q.
func (s *EntityService[T]) List(ctx context.Context, q repository.Query) ([]T, int, error) {
	items, total, err := s.store.List(ctx, q)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to list %s", s.cfg.Name))
	}
	return items, total, nil
}

// Get returns one row.
func (s *EntityService[T]) Get(ctx context.Context, id string) (*T, error) {
	item, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.lookupError(err, "load")
	}
	return item, nil
}

// Create validates fields and inserts a row.
func (s *EntityService[T]) Create(ctx context.Context, fields map[string]interface{}) (*T, error) {
	fields = normalizeFields(fields)
	if err := s.validate(ctx, fields, true); err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, fields, ""); err != nil {
		return nil, err
	}
	item, err := s.store.Create(ctx, fields)
	if err != nil {
		return nil, s.writeError(err, "create")
	}
	s.changed(ctx)
	return item, nil
}

// Update validates partial and applies it to row id.
func (s *EntityService[T]) Update(ctx context.Context, id string, partial map[string]interface{}) (*T, error) {
	partial = normalizeFields(partial)
	if err := s.validate(ctx, partial, false); err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, partial, id); err != nil {
		return nil, err
	}
	item, err := s.store.Update(ctx, id, partial)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.lookupError(err, "update")
		}
		return nil, s.writeError(err, "update")
	}
	s.changed(ctx)
	return item, nil
}

// Delete removes row id and returns its last state.
func (s *EntityService[T]) Delete(ctx context.Context, id string) (*T, error) {
	item, err := s.store.Delete(ctx, id)
	if err != nil {
		return nil, s.lookupError(err, "delete")
	}
	s.changed(ctx)
	return item, nil
}

func (s *EntityService[T]) changed(ctx context.Context) {
	if s.hooks.OnChange != nil {
		s.hooks.OnChange(ctx)
	}
}

func (s *EntityService[T]) lookupError(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s not found", s.cfg.Singular))
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to %s %s", op, s.cfg.Singular))
}

func (s *EntityService[T]) writeError(err error, op string) error {
	if database.IsUniqueViolation(err) {
		s.logger.Info("unique constraint rejected write",
			zap.String("entity", s.cfg.Name),
			zap.String("constraint", database.ConstraintName(err)))
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, fmt.Sprintf("%s already exists", s.cfg.Singular))
	}
	s.logger.Error("entity write failed", zap.String("entity", s.cfg.Name), zap.String("op", op), zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to %s %s", op, s.cfg.Singular))
}

func (s *EntityService[T]) validate(ctx context.Context, fields map[string]interface{}, creating bool) error {
	var missing []string
	for _, name := range s.cfg.RequiredFields {
		value, present := fields[name]
		if !present && !creating {
			continue
		}
		if isBlank(value) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return appErrors.Clone(appErrors.ErrValidation, "missing required fields: "+strings.Join(missing, ", "))
	}

	for _, name := range s.cfg.EmailFields {
		value, ok := fields[name].(string)
		if !ok || value == "" {
			continue
		}
		if err := s.validator.Var(value, "email"); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid %s", name))
		}
	}

	if s.hooks.Prepare != nil {
		if err := s.hooks.Prepare(ctx, fields, creating); err != nil {
			return err
		}
	}

	var unknown []string
	for _, name := range sortedKeys(fields) {
		if !s.cfg.IsWritable(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return appErrors.Clone(appErrors.ErrValidation, "unknown fields: "+strings.Join(unknown, ", "))
	}
	if !creating && len(fields) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "no updatable fields provided")
	}
	return nil
}

// checkUnique gives a friendly conflict before the write. The unique index stays authoritative.
func (s *EntityService[T]) checkUnique(ctx context.Context, fields map[string]interface{}, excludeID string) error {
	if s.cfg.UniqueField == "" {
		return nil
	}
	value, ok := fields[s.cfg.UniqueField]
	if !ok || isBlank(value) {
		return nil
	}
	exists, err := s.store.ExistsBy(ctx, s.cfg.UniqueField, value, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to validate %s", s.cfg.UniqueField))
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("%s with this %s already exists", s.cfg.Singular, s.cfg.UniqueField))
	}
	return nil
}

// normalizeFields trims strings and turns empty optional strings into NULL.
func normalizeFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if str, ok := v.(string); ok {
			str = strings.TrimSpace(str)
			if str == "" {
				out[k] = nil
				continue
			}
			v = str
		}
		out[k] = v
	}
	return out
}

func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	if str, ok := v.(string); ok {
		return strings.TrimSpace(str) == ""
	}
	return false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

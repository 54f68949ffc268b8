package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/psicometria/bat7-api/internal/models"
	appErrors "github.com/psicometria/bat7-api/pkg/errors"
	"github.com/psicometria/bat7-api/pkg/listing"
)

// Bulk actions.
const (
	BulkActionDelete = "delete"
	BulkActionStatus = "status"
)

// BulkRequest selects rows either by id or by the current filters.
type BulkRequest struct {
	Action    string            `json:"action" validate:"required,oneof=delete status"`
	IDs       []string          `json:"ids"`
	SelectAll bool              `json:"select_all"`
	Search    string            `json:"search"`
	Filters   map[string]string `json:"filters"`
	Status    string            `json:"status"`
}

// BulkResult reports per-item outcomes. Successful items are never rolled back.
type BulkResult struct {
	Action    string   `json:"action"`
	Requested int      `json:"requested"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failed_ids,omitempty"`
}

type bulkRow interface {
	listing.Filterable
	listing.Identifiable
}

// BulkConfig bounds a bulk run.
type BulkConfig struct {
	Concurrency int
	MaxItems    int
}

// BulkService applies one action to a selection of rows with bounded fan-out.
type BulkService[T bulkRow] struct {
	entities  *EntityService[T]
	listing   *ListingService[T]
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       BulkConfig
}

// NewBulkService constructs a BulkService.
func NewBulkService[T bulkRow](entities *EntityService[T], listings *ListingService[T], metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg BulkConfig) *BulkService[T] {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &BulkService[T]{entities: entities, listing: listings, metrics: metrics, validator: validate, logger: logger, cfg: cfg}
}

// Select resolves the rows a request targets, honouring the item cap.
func (s *BulkService[T]) Select(ctx context.Context, req BulkRequest) (*listing.Selection[T], error) {
	items, _, err := s.listing.Filtered(ctx, models.ListQuery{Search: req.Search, Filters: req.Filters})
	if err != nil {
		return nil, err
	}
	selection := listing.NewSelection(items, listing.ByIdentifier[T](), listing.WithMaxSelections(s.cfg.MaxItems))
	if req.SelectAll {
		selection.SelectAll()
	} else {
		selection.SelectIDs(req.IDs)
	}
	return selection, nil
}

// Execute runs req. When some items fail the result is returned together with
// a BULK_PARTIAL_FAILURE error aggregating every failure.
func (s *BulkService[T]) Execute(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	if !req.SelectAll && len(req.IDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "ids or select_all is required")
	}
	if req.Action == BulkActionStatus && !models.SubjectStatus(req.Status).Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be activo, inactivo or pendiente")
	}

	selection, err := s.Select(ctx, req)
	if err != nil {
		return nil, err
	}
	ids := selection.SelectedIDs()
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no matching rows selected")
	}

	result := &BulkResult{Action: req.Action, Requested: len(ids)}
	var (
		mu   sync.Mutex
		errs error
		wg   sync.WaitGroup
		sem  = make(chan struct{}, s.cfg.Concurrency)
	)
	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			opErr := s.apply(ctx, req, id)
			mu.Lock()
			defer mu.Unlock()
			if opErr != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", id, opErr))
				result.FailedIDs = append(result.FailedIDs, id)
				result.Failed++
				return
			}
			result.Succeeded++
		}(id)
	}
	wg.Wait()

	s.metrics.RecordBulk(req.Action, result.Succeeded, result.Failed)
	if errs != nil {
		s.logger.Warn("bulk action partially failed",
			zap.String("entity", s.entities.Name()),
			zap.String("action", req.Action),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed),
			zap.Error(errs))
		msg := fmt.Sprintf("%d of %d %s operations failed", result.Failed, result.Requested, req.Action)
		return result, appErrors.Wrap(errs, appErrors.ErrBulkPartial.Code, appErrors.ErrBulkPartial.Status, msg)
	}
	return result, nil
}

func (s *BulkService[T]) apply(ctx context.Context, req BulkRequest, id string) error {
	switch req.Action {
	case BulkActionDelete:
		_, err := s.entities.Delete(ctx, id)
		return err
	case BulkActionStatus:
		_, err := s.entities.Update(ctx, id, map[string]interface{}{
			"estado": req.Status,
			"activo": req.Status == string(models.SubjectStatusActive),
		})
		return err
	}
	return appErrors.Clone(appErrors.ErrValidation, "unsupported action")
}

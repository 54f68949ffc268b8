package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/psicometria/bat7-api/internal/models"
	"github.com/psicometria/bat7-api/pkg/listing"
)

// DefaultRefreshInterval bounds how often Refresh may query the database again.
const DefaultRefreshInterval = 30 * time.Second

type relationChecker interface {
	RelationExists(ctx context.Context, relation string) (bool, error)
}

// OptionalRelations lists the relations whose absence degrades features instead of failing startup.
var OptionalRelations = []string{models.FeatureTestSessions, models.FeatureResults, models.FeatureAuditLogs}

// FeatureService records which optional relations exist. The snapshot is taken
// once at startup and consulted on every soft-failure path.
type FeatureService struct {
	repo      relationChecker
	relations []string
	logger    *zap.Logger
	throttle  *listing.Throttler

	mu       sync.RWMutex
	snapshot models.FeatureSet
}

// NewFeatureService constructs a FeatureService probing relations.
func NewFeatureService(repo relationChecker, logger *zap.Logger, relations ...string) *FeatureService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(relations) == 0 {
		relations = OptionalRelations
	}
	return &FeatureService{
		repo:      repo,
		relations: relations,
		logger:    logger,
		throttle:  listing.NewThrottler(DefaultRefreshInterval),
		snapshot:  models.FeatureSet{Relations: map[string]bool{}},
	}
}

// Detect checks every relation and replaces the snapshot. A failed check marks
// the relation unavailable.
func (s *FeatureService) Detect(ctx context.Context) models.FeatureSet {
	set := models.FeatureSet{Relations: make(map[string]bool, len(s.relations)), CheckedAt: time.Now().UTC()}
	for _, relation := range s.relations {
		ok, err := s.repo.RelationExists(ctx, relation)
		if err != nil {
			s.logger.Warn("feature check failed", zap.String("relation", relation), zap.Error(err))
		}
		if !ok {
			s.logger.Info("optional relation unavailable", zap.String("relation", relation))
		}
		set.Relations[relation] = ok
	}
	s.mu.Lock()
	s.snapshot = set
	s.mu.Unlock()
	return set
}

// Refresh re-runs Detect at most once per refresh interval. It reports whether
// a check ran; otherwise the current snapshot is returned.
func (s *FeatureService) Refresh(ctx context.Context) (models.FeatureSet, bool) {
	var set models.FeatureSet
	if s.throttle.Do(func() { set = s.Detect(ctx) }) {
		return set, true
	}
	return s.Snapshot(), false
}

// Available reports whether relation was present at the last detection.
func (s *FeatureService) Available(relation string) bool {
	if s == nil {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Available(relation)
}

// MarkUnavailable records that relation disappeared after startup.
func (s *FeatureService) MarkUnavailable(relation string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot.Relations[relation] {
		s.logger.Warn("optional relation went missing", zap.String("relation", relation))
	}
	s.snapshot.Relations[relation] = false
}

// Snapshot returns a copy of the current feature set.
func (s *FeatureService) Snapshot() models.FeatureSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := models.FeatureSet{Relations: make(map[string]bool, len(s.snapshot.Relations)), CheckedAt: s.snapshot.CheckedAt}
	for k, v := range s.snapshot.Relations {
		out.Relations[k] = v
	}
	return out
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/psicometria/bat7-api/internal/models"
	appErrors "github.com/psicometria/bat7-api/pkg/errors"
	"github.com/psicometria/bat7-api/pkg/events"
)

type subjectLoader interface {
	Get(ctx context.Context, id string) (*models.Subject, error)
}

// StartRequest opens a session for a subject.
type StartRequest struct {
	SubjectID  string `json:"subject_id" validate:"required"`
	Level      string `json:"nivel" validate:"required"`
	ConsumePin bool   `json:"consume_pin"`
}

// CancelRequest closes a session as cancelled.
type CancelRequest struct {
	Reason string `json:"motivo" validate:"required,max=500"`
}

// CompleteRequest marks one test of the battery as done.
type CompleteRequest struct {
	TestID string `json:"test_id" validate:"required"`
}

// SessionManager owns one SessionTracker per acting user.
type SessionManager struct {
	deps     *trackerDeps
	subjects subjectLoader

	mu       sync.Mutex
	trackers map[string]*SessionTracker
}

// SessionManagerOption customises a SessionManager.
type SessionManagerOption func(*SessionManager)

// WithSessionClock overrides the clock used for timestamps and durations.
func WithSessionClock(now func() time.Time) SessionManagerOption {
	return func(m *SessionManager) {
		if now != nil {
			m.deps.now = now
		}
	}
}

// WithSessionPublisher sets the lifecycle event publisher.
func WithSessionPublisher(p events.Publisher) SessionManagerOption {
	return func(m *SessionManager) {
		if p != nil {
			m.deps.publisher = p
		}
	}
}

// WithSessionMetrics sets the metrics sink.
func WithSessionMetrics(metrics *MetricsService) SessionManagerOption {
	return func(m *SessionManager) { m.deps.metrics = metrics }
}

// NewSessionManager constructs a SessionManager. snapshots persists tracker
// state per actor so a restart restores in-progress sessions.
func NewSessionManager(sessions sessionStore, results completedSource, subjects subjectLoader, snapshots snapshotStore, features featureChecker, logger *zap.Logger, opts ...SessionManagerOption) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &SessionManager{
		deps: &trackerDeps{
			sessions:  sessions,
			results:   results,
			snapshots: snapshots,
			features:  features,
			publisher: events.Noop{},
			logger:    logger,
			now:       time.Now,
		},
		subjects: subjects,
		trackers: make(map[string]*SessionTracker),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tracker returns the tracker of actorID, restoring persisted state on first use.
func (m *SessionManager) Tracker(ctx context.Context, actorID string) (*SessionTracker, error) {
	if actorID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing actor")
	}
	m.mu.Lock()
	tracker, ok := m.trackers[actorID]
	if !ok {
		tracker = newSessionTracker(actorID, m.deps)
		m.trackers[actorID] = tracker
	}
	m.mu.Unlock()

	if err := tracker.ensureRestored(ctx); err != nil {
		return nil, err
	}
	return tracker, nil
}

// Invalidate forgets the in-memory tracker of the actor owning key so the next
// access restores it from storage. It is wired to snapshot change notifications.
func (m *SessionManager) Invalidate(key string, _ Snapshot) {
	const prefix = "session:"
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		return
	}
	actorID := key[len(prefix):]
	m.mu.Lock()
	delete(m.trackers, actorID)
	m.mu.Unlock()
}

// Start opens a session for the subject in req.
func (m *SessionManager) Start(ctx context.Context, actorID string, req StartRequest) (*models.TestSession, error) {
	tracker, err := m.Tracker(ctx, actorID)
	if err != nil {
		return nil, err
	}
	subject, err := m.subjects.Get(ctx, req.SubjectID)
	if err != nil {
		return nil, err
	}
	if !subject.Activo {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject is inactive")
	}
	return tracker.StartSession(ctx, *subject, models.EvaluationLevel(req.Level), req.ConsumePin)
}

// Current returns the tracker view of actorID.
func (m *SessionManager) Current(ctx context.Context, actorID string) (SessionView, error) {
	tracker, err := m.Tracker(ctx, actorID)
	if err != nil {
		return SessionView{}, err
	}
	return tracker.View(), nil
}

// Complete marks testID as done for the actor's active session.
func (m *SessionManager) Complete(ctx context.Context, actorID, testID string) (SessionView, error) {
	tracker, err := m.Tracker(ctx, actorID)
	if err != nil {
		return SessionView{}, err
	}
	return tracker.MarkTestCompleted(ctx, testID)
}

// Sync merges completed tests recorded in results.
func (m *SessionManager) Sync(ctx context.Context, actorID string) (SessionView, error) {
	tracker, err := m.Tracker(ctx, actorID)
	if err != nil {
		return SessionView{}, err
	}
	return tracker.SyncCompletedTests(ctx)
}

// Finish closes the actor's active session as finished.
func (m *SessionManager) Finish(ctx context.Context, actorID string) (*models.TestSession, error) {
	tracker, err := m.Tracker(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return tracker.FinishSession(ctx)
}

// Cancel closes the actor's active session as cancelled.
func (m *SessionManager) Cancel(ctx context.Context, actorID, reason string) (*models.TestSession, error) {
	tracker, err := m.Tracker(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return tracker.CancelSession(ctx, reason)
}

// GetActiveSession returns the most recent started session of subjectID or nil.
// Lookup failures are logged and reported as no active session.
func (m *SessionManager) GetActiveSession(ctx context.Context, subjectID string) *models.TestSession {
	if !m.deps.features.Available(models.FeatureTestSessions) {
		return nil
	}
	session, err := m.deps.sessions.GetActive(ctx, subjectID)
	if err != nil {
		m.deps.logger.Debug("active session lookup failed", zap.String("subject_id", subjectID), zap.Error(err))
		return nil
	}
	return session
}

// GetSession loads one session row.
func (m *SessionManager) GetSession(ctx context.Context, id string) (*models.TestSession, error) {
	if !m.deps.features.Available(models.FeatureTestSessions) {
		return nil, appErrors.Clone(appErrors.ErrFeatureUnavailable, "test sessions are not available")
	}
	session, err := m.deps.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "test session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load test session")
	}
	return session, nil
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/psicometria/bat7-api/internal/models"
	"github.com/psicometria/bat7-api/pkg/database"
	appErrors "github.com/psicometria/bat7-api/pkg/errors"
	"github.com/psicometria/bat7-api/pkg/events"
)

// TrackerState is the position of a tracker in the session lifecycle.
type TrackerState string

const (
	StateNoSession TrackerState = "none"
	StateActive    TrackerState = "active"
	StateFinished  TrackerState = "finished"
	StateCancelled TrackerState = "cancelled"
)

// Snapshot is the persisted form of a tracker.
type Snapshot struct {
	State          TrackerState           `json:"state"`
	SessionID      string                 `json:"session_id,omitempty"`
	Subject        *models.Subject        `json:"subject,omitempty"`
	Level          models.EvaluationLevel `json:"level,omitempty"`
	StartedAt      *time.Time             `json:"started_at,omitempty"`
	CompletedTests []string               `json:"completed_tests"`
	Synthetic      bool                   `json:"synthetic,omitempty"`
	PinConsumed    bool                   `json:"pin_consumed,omitempty"`
}

// EmptySnapshot is the state of a user without a session.
func EmptySnapshot() Snapshot {
	return Snapshot{State: StateNoSession, CompletedTests: []string{}}
}

// SessionView is the API representation of a tracker.
type SessionView struct {
	Snapshot
	HasActiveSession bool    `json:"has_active_session"`
	DurationMinutes  int     `json:"duration_minutes"`
	Progress         float64 `json:"progress"`
	TotalTests       int     `json:"total_tests"`
}

type sessionStore interface {
	CreateIfNoneActive(ctx context.Context, session *models.TestSession) (bool, error)
	Finish(ctx context.Context, id string, at time.Time) (*models.TestSession, error)
	Cancel(ctx context.Context, id, reason string, at time.Time) (*models.TestSession, error)
	FindByID(ctx context.Context, id string) (*models.TestSession, error)
	GetActive(ctx context.Context, subjectID string) (*models.TestSession, error)
	ConsumePin(ctx context.Context, userID string) (bool, error)
}

type completedSource interface {
	CompletedCodes(ctx context.Context, subjectID string) ([]string, error)
}

type snapshotStore interface {
	Get(ctx context.Context, key string) (Snapshot, error)
	Set(ctx context.Context, key string, value Snapshot) error
	Remove(ctx context.Context, key string) error
}

type featureChecker interface {
	Available(relation string) bool
	MarkUnavailable(relation string)
}

// trackerDeps are shared by every tracker of a manager.
type trackerDeps struct {
	sessions  sessionStore
	results   completedSource
	snapshots snapshotStore
	features  featureChecker
	publisher events.Publisher
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// SessionTracker follows the evaluation session of one acting user.
// States: none -> active -> finished | cancelled; a terminal state may start
// a new cycle.
type SessionTracker struct {
	mu       sync.Mutex
	actorID  string
	deps     *trackerDeps
	snap     Snapshot
	restored bool
}

func newSessionTracker(actorID string, deps *trackerDeps) *SessionTracker {
	return &SessionTracker{actorID: actorID, deps: deps, snap: EmptySnapshot()}
}

func snapshotKey(actorID string) string { return "session:" + actorID }

// View returns the current state with derived values.
func (t *SessionTracker) View() SessionView {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewLocked()
}

func (t *SessionTracker) viewLocked() SessionView {
	snap := t.snap
	snap.CompletedTests = append([]string{}, t.snap.CompletedTests...)
	return SessionView{
		Snapshot:         snap,
		HasActiveSession: t.hasActiveLocked(),
		DurationMinutes:  t.durationLocked(t.deps.now()),
		Progress:         float64(len(t.snap.CompletedTests)) / float64(models.TotalTests),
		TotalTests:       models.TotalTests,
	}
}

// HasActiveSession reports whether a session is running with a subject.
func (t *SessionTracker) HasActiveSession() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasActiveLocked()
}

func (t *SessionTracker) hasActiveLocked() bool {
	return t.snap.State == StateActive && t.snap.Subject != nil
}

// SessionDurationMinutes returns whole minutes elapsed since the start.
func (t *SessionTracker) SessionDurationMinutes(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.durationLocked(now)
}

func (t *SessionTracker) durationLocked(now time.Time) int {
	if t.snap.State != StateActive || t.snap.StartedAt == nil {
		return 0
	}
	elapsed := now.Sub(*t.snap.StartedAt)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / time.Minute)
}

func (t *SessionTracker) persist(ctx context.Context) {
	if err := t.deps.snapshots.Set(ctx, snapshotKey(t.actorID), t.snap); err != nil {
		t.deps.logger.Warn("persist session snapshot failed", zap.String("actor_id", t.actorID), zap.Error(err))
	}
}

func (t *SessionTracker) clearPersisted(ctx context.Context) {
	if err := t.deps.snapshots.Remove(ctx, snapshotKey(t.actorID)); err != nil {
		t.deps.logger.Warn("clear session snapshot failed", zap.String("actor_id", t.actorID), zap.Error(err))
	}
}

func (t *SessionTracker) publish(ctx context.Context, eventType string, extra func(*events.Event)) {
	event := events.Event{
		Type:      eventType,
		SessionID: t.snap.SessionID,
		ActorID:   t.actorID,
		Level:     string(t.snap.Level),
		At:        t.deps.now().UTC(),
	}
	if t.snap.Subject != nil {
		event.SubjectID = t.snap.Subject.ID
	}
	if extra != nil {
		extra(&event)
	}
	if err := t.deps.publisher.Publish(ctx, event); err != nil {
		t.deps.logger.Warn("publish session event failed", zap.String("type", eventType), zap.Error(err))
	}
}

// softUnavailable reports whether err means relation is missing and records it.
func (t *SessionTracker) softUnavailable(err error, relation string) bool {
	if !database.IsUndefinedTable(err) {
		return false
	}
	t.deps.features.MarkUnavailable(relation)
	t.deps.logger.Warn("relation missing, continuing without it", zap.String("relation", relation), zap.Error(err))
	return true
}

// StartSession begins a session for subject. It fails with
// ErrInvalidTransition while a session is active and with ErrConflict when the
// subject already has a started session of another user. A started row of this
// user whose local state was lost is resumed instead.
func (t *SessionTracker) StartSession(ctx context.Context, subject models.Subject, level models.EvaluationLevel, consumePin bool) (*models.TestSession, error) {
	if !level.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nivel must be E, M or S")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.State == StateActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "a session is already active")
	}

	now := t.deps.now().UTC()
	actor := t.actorID
	session := &models.TestSession{
		ID:           uuid.NewString(),
		SubjectID:    subject.ID,
		UsuarioID:    &actor,
		Nivel:        level,
		FechaInicio:  now,
		Estado:       models.SessionStatusStarted,
		PinConsumido: consumePin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	synthetic := !t.deps.features.Available(models.FeatureTestSessions)
	if !synthetic {
		created, err := t.deps.sessions.CreateIfNoneActive(ctx, session)
		switch {
		case err != nil && t.softUnavailable(err, models.FeatureTestSessions):
			synthetic = true
		case err != nil && database.IsUniqueViolation(err):
			if open := t.ownOpenSession(ctx, subject.ID); open != nil {
				return t.resumeLocked(ctx, subject, open), nil
			}
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "subject already has an active session")
		case err != nil:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open test session")
		case !created:
			if open := t.ownOpenSession(ctx, subject.ID); open != nil {
				return t.resumeLocked(ctx, subject, open), nil
			}
			return nil, appErrors.Clone(appErrors.ErrConflict, "subject already has an active session")
		}
	}
	session.Synthetic = synthetic

	subjectCopy := subject
	t.snap = Snapshot{
		State:          StateActive,
		SessionID:      session.ID,
		Subject:        &subjectCopy,
		Level:          level,
		StartedAt:      &now,
		CompletedTests: []string{},
		Synthetic:      synthetic,
		PinConsumed:    consumePin,
	}
	t.restored = true
	t.persist(ctx)
	t.deps.metrics.RecordSessionTransition("started")
	t.publish(ctx, events.TypeSessionStarted, func(e *events.Event) { e.Status = string(models.SessionStatusStarted) })
	return session, nil
}

// ownOpenSession returns the started row of subjectID when this user opened it.
func (t *SessionTracker) ownOpenSession(ctx context.Context, subjectID string) *models.TestSession {
	row, err := t.deps.sessions.GetActive(ctx, subjectID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			t.deps.logger.Warn("lookup open session failed", zap.String("subject_id", subjectID), zap.Error(err))
		}
		return nil
	}
	if row.UsuarioID == nil || *row.UsuarioID != t.actorID {
		return nil
	}
	return row
}

// resumeLocked rebuilds the tracker around an existing started row.
func (t *SessionTracker) resumeLocked(ctx context.Context, subject models.Subject, row *models.TestSession) *models.TestSession {
	started := row.FechaInicio
	subjectCopy := subject
	t.snap = Snapshot{
		State:          StateActive,
		SessionID:      row.ID,
		Subject:        &subjectCopy,
		Level:          row.Nivel,
		StartedAt:      &started,
		CompletedTests: []string{},
		PinConsumed:    row.PinConsumido,
	}
	t.restored = true
	t.persist(ctx)
	t.deps.metrics.RecordSessionTransition("resumed")
	t.deps.logger.Info("resumed open test session", zap.String("session_id", row.ID), zap.String("actor_id", t.actorID))
	return row
}

// MarkTestCompleted records testID as done. Repeated calls are no-ops.
func (t *SessionTracker) MarkTestCompleted(ctx context.Context, testID string) (SessionView, error) {
	if _, ok := models.AptitudeByTestID(testID); !ok {
		return SessionView{}, appErrors.Clone(appErrors.ErrValidation, "unknown test id")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.State != StateActive {
		return SessionView{}, appErrors.Clone(appErrors.ErrInvalidTransition, "no active session")
	}
	for _, done := range t.snap.CompletedTests {
		if done == testID {
			return t.viewLocked(), nil
		}
	}
	t.snap.CompletedTests = append(t.snap.CompletedTests, testID)
	t.persist(ctx)
	t.publish(ctx, events.TypeTestCompleted, func(e *events.Event) { e.TestID = testID })
	return t.viewLocked(), nil
}

// FinishSession closes the active session as finished.
func (t *SessionTracker) FinishSession(ctx context.Context) (*models.TestSession, error) {
	return t.close(ctx, StateFinished, "")
}

// CancelSession closes the active session as cancelled with reason.
func (t *SessionTracker) CancelSession(ctx context.Context, reason string) (*models.TestSession, error) {
	return t.close(ctx, StateCancelled, reason)
}

func (t *SessionTracker) close(ctx context.Context, target TrackerState, reason string) (*models.TestSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.State != StateActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "no active session")
	}

	now := t.deps.now().UTC()
	status := models.SessionStatusFinished
	if target == StateCancelled {
		status = models.SessionStatusCancelled
	}

	var (
		row *models.TestSession
		err error
	)
	if !t.snap.Synthetic && t.deps.features.Available(models.FeatureTestSessions) {
		if target == StateCancelled {
			row, err = t.deps.sessions.Cancel(ctx, t.snap.SessionID, reason, now)
		} else {
			row, err = t.deps.sessions.Finish(ctx, t.snap.SessionID, now)
		}
		switch {
		case err == nil:
		case errors.Is(err, sql.ErrNoRows):
			t.deps.logger.Warn("test session no longer started, closing locally", zap.String("session_id", t.snap.SessionID))
			row = nil
		case t.softUnavailable(err, models.FeatureTestSessions):
			row = nil
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close test session")
		}
	}
	if row == nil {
		row = t.syntheticRow(status, now, reason)
	}

	if target == StateFinished && row.PinConsumido {
		t.consumePin(ctx)
	}

	t.snap.State = target
	t.clearPersisted(ctx)
	t.deps.metrics.RecordSessionTransition(string(target))
	eventType := events.TypeSessionFinished
	if target == StateCancelled {
		eventType = events.TypeSessionCancelled
	}
	t.publish(ctx, eventType, func(e *events.Event) { e.Status = string(status) })
	return row, nil
}

func (t *SessionTracker) syntheticRow(status models.SessionStatus, at time.Time, reason string) *models.TestSession {
	actor := t.actorID
	row := &models.TestSession{
		ID:           t.snap.SessionID,
		UsuarioID:    &actor,
		Nivel:        t.snap.Level,
		Estado:       status,
		FechaFin:     &at,
		PinConsumido: t.snap.PinConsumed,
		UpdatedAt:    at,
		Synthetic:    true,
	}
	if t.snap.Subject != nil {
		row.SubjectID = t.snap.Subject.ID
	}
	if t.snap.StartedAt != nil {
		row.FechaInicio = *t.snap.StartedAt
		row.CreatedAt = *t.snap.StartedAt
	}
	if reason != "" {
		row.MotivoCancelacion = &reason
	}
	return row
}

func (t *SessionTracker) consumePin(ctx context.Context) {
	ok, err := t.deps.sessions.ConsumePin(ctx, t.actorID)
	if err != nil {
		t.deps.logger.Warn("consume pin failed", zap.String("actor_id", t.actorID), zap.Error(err))
		return
	}
	if !ok {
		t.deps.logger.Info("no pin available to consume", zap.String("actor_id", t.actorID))
	}
}

// Restore reloads the persisted snapshot and reconciles it with the backend.
// A session that is no longer started in the database is cleared locally.
func (t *SessionTracker) Restore(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.restoreLocked(ctx)
}

func (t *SessionTracker) restoreLocked(ctx context.Context) error {
	snap, err := t.deps.snapshots.Get(ctx, snapshotKey(t.actorID))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session snapshot")
	}
	if snap.State == "" {
		snap = EmptySnapshot()
	}
	if snap.CompletedTests == nil {
		snap.CompletedTests = []string{}
	}
	t.snap = snap
	t.restored = true

	if snap.State != StateActive || snap.Synthetic || snap.SessionID == "" || !t.deps.features.Available(models.FeatureTestSessions) {
		return nil
	}
	row, err := t.deps.sessions.FindByID(ctx, snap.SessionID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		t.deps.logger.Info("persisted session vanished from backend", zap.String("session_id", snap.SessionID))
		t.reset(ctx)
	case err != nil && t.softUnavailable(err, models.FeatureTestSessions):
	case err != nil:
		t.deps.logger.Warn("reconcile session failed, keeping local state", zap.String("session_id", snap.SessionID), zap.Error(err))
	case row.Estado != models.SessionStatusStarted:
		t.deps.logger.Info("persisted session closed elsewhere", zap.String("session_id", snap.SessionID), zap.String("estado", string(row.Estado)))
		t.reset(ctx)
	}
	return nil
}

func (t *SessionTracker) reset(ctx context.Context) {
	t.snap = EmptySnapshot()
	t.clearPersisted(ctx)
}

func (t *SessionTracker) ensureRestored(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.restored {
		return nil
	}
	return t.restoreLocked(ctx)
}

// SyncCompletedTests merges the tests the subject already has results for.
func (t *SessionTracker) SyncCompletedTests(ctx context.Context) (SessionView, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Subject == nil || t.snap.State != StateActive {
		return t.viewLocked(), nil
	}
	if !t.deps.features.Available(models.FeatureResults) {
		return t.viewLocked(), nil
	}
	codes, err := t.deps.results.CompletedCodes(ctx, t.snap.Subject.ID)
	if err != nil {
		if t.softUnavailable(err, models.FeatureResults) {
			return t.viewLocked(), nil
		}
		return SessionView{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed tests")
	}
	known := make(map[string]struct{}, len(t.snap.CompletedTests))
	for _, id := range t.snap.CompletedTests {
		known[id] = struct{}{}
	}
	changed := false
	for _, code := range codes {
		apt, ok := models.AptitudeByCode(code)
		if !ok {
			continue
		}
		if _, done := known[apt.TestID]; done {
			continue
		}
		known[apt.TestID] = struct{}{}
		t.snap.CompletedTests = append(t.snap.CompletedTests, apt.TestID)
		changed = true
	}
	if changed {
		t.persist(ctx)
	}
	return t.viewLocked(), nil
}

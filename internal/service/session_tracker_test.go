package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psicometria/bat7-api/internal/models"
	appErrors "github.com/psicometria/bat7-api/pkg/errors"
	"github.com/psicometria/bat7-api/pkg/events"
	"github.com/psicometria/bat7-api/pkg/kvstore"
)

type mockSessionStore struct {
	mu        sync.Mutex
	rows      map[string]*models.TestSession
	createErr error
	closeErr  error
	activeErr error
	conflict  bool
	pins      int
	pinCalls  int
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{rows: map[string]*models.TestSession{}}
}

func (m *mockSessionStore) CreateIfNoneActive(_ context.Context, session *models.TestSession) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return false, m.createErr
	}
	if m.conflict {
		return false, nil
	}
	for _, row := range m.rows {
		if row.SubjectID == session.SubjectID && row.Estado == models.SessionStatusStarted {
			return false, nil
		}
	}
	copyRow := *session
	m.rows[session.ID] = &copyRow
	return true, nil
}

func (m *mockSessionStore) close(id string, status models.SessionStatus, reason string, at time.Time) (*models.TestSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closeErr != nil {
		return nil, m.closeErr
	}
	row, ok := m.rows[id]
	if !ok || row.Estado != models.SessionStatusStarted {
		return nil, sql.ErrNoRows
	}
	row.Estado = status
	row.FechaFin = &at
	if reason != "" {
		row.MotivoCancelacion = &reason
	}
	copyRow := *row
	return &copyRow, nil
}

func (m *mockSessionStore) Finish(_ context.Context, id string, at time.Time) (*models.TestSession, error) {
	return m.close(id, models.SessionStatusFinished, "", at)
}

func (m *mockSessionStore) Cancel(_ context.Context, id, reason string, at time.Time) (*models.TestSession, error) {
	return m.close(id, models.SessionStatusCancelled, reason, at)
}

func (m *mockSessionStore) FindByID(_ context.Context, id string) (*models.TestSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copyRow := *row
	return &copyRow, nil
}

func (m *mockSessionStore) GetActive(_ context.Context, subjectID string) (*models.TestSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeErr != nil {
		return nil, m.activeErr
	}
	for _, row := range m.rows {
		if row.SubjectID == subjectID && row.Estado == models.SessionStatusStarted {
			copyRow := *row
			return &copyRow, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionStore) ConsumePin(_ context.Context, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinCalls++
	if m.pins <= 0 {
		return false, nil
	}
	m.pins--
	return true, nil
}

type mockCompleted struct {
	codes []string
	err   error
}

func (m *mockCompleted) CompletedCodes(context.Context, string) ([]string, error) {
	return m.codes, m.err
}

type mockSubjects struct {
	subjects map[string]*models.Subject
}

func (m *mockSubjects) Get(_ context.Context, id string) (*models.Subject, error) {
	if s, ok := m.subjects[id]; ok {
		return s, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
}

type stubFeatures struct {
	mu      sync.Mutex
	missing map[string]bool
}

func (f *stubFeatures) Available(relation string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.missing[relation]
}

func (f *stubFeatures) MarkUnavailable(relation string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing == nil {
		f.missing = map[string]bool{}
	}
	f.missing[relation] = true
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type sessionFixture struct {
	store     *mockSessionStore
	results   *mockCompleted
	features  *stubFeatures
	publisher *capturePublisher
	backend   *kvstore.MemoryBackend
	now       time.Time
	manager   *SessionManager
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		store:     newMockSessionStore(),
		results:   &mockCompleted{},
		features:  &stubFeatures{},
		publisher: &capturePublisher{},
		backend:   kvstore.NewMemoryBackend(),
		now:       time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
	}
	f.manager = f.newManager()
	return f
}

// newManager builds a manager over the fixture's backend, as after a restart.
func (f *sessionFixture) newManager() *SessionManager {
	snapshots := kvstore.NewTTL(f.backend, EmptySnapshot(), time.Hour)
	subjects := &mockSubjects{subjects: map[string]*models.Subject{
		"p1": {ID: "p1", Nombre: "Ana", Apellido: "Rojas", Activo: true},
		"p2": {ID: "p2", Nombre: "Luis", Apellido: "Mora", Activo: false},
	}}
	return NewSessionManager(f.store, f.results, subjects, snapshots, f.features, nil,
		WithSessionClock(func() time.Time { return f.now }),
		WithSessionPublisher(f.publisher),
		WithSessionMetrics(NewMetricsService()))
}

func TestSessionPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	session, err := f.manager.Start(ctx, "u1", StartRequest{SubjectID: "p1", Level: "E"})
	require.NoError(t, err)
	assert.False(t, session.Synthetic)

	_, err = f.manager.Complete(ctx, "u1", "verbal")
	require.NoError(t, err)

	restarted := f.newManager()
	view, err := restarted.Current(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StateActive, view.State)
	assert.Equal(t, []string{"verbal"}, view.CompletedTests)
	assert.True(t, view.HasActiveSession)
	assert.Equal(t, session.ID, view.SessionID)
	require.NotNil(t, view.Subject)
	assert.Equal(t, "p1", view.Subject.ID)
}

func TestFinishSessionClearsActive(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	_, err := f.manager.Start(ctx, "u1", StartRequest{SubjectID: "p1", Level: "M"})
	require.NoError(t, err)
	require.NotNil(t, f.manager.GetActiveSession(ctx, "p1"))

	f.now = f.now.Add(42 * time.Minute)
	view, err := f.manager.Current(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 42, view.DurationMinutes)

	row, err := f.manager.Finish(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFinished, row.Estado)
	require.NotNil(t, row.FechaFin)

	assert.Nil(t, f.manager.GetActiveSession(ctx, "p1"))
	view, err = f.manager.Current(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StateFinished, view.State)
	assert.False(t, view.HasActiveSession)
	assert.Equal(t, 0, view.DurationMinutes)

	_, ok, err := f.backend.Get(ctx, snapshotKey("u1"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{events.TypeSessionStarted, events.TypeSessionFinished}, f.publisher.types())
}

func TestStartSessionTransitions(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	_, err := f.manager.Start(ctx, "u1", StartRequest{SubjectID: "p1", Level: "X"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	_, err = f.manager.Start(ctx, "u1", StartRequest{SubjectID: "p2", Level: "E"})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	_, err = f.manager.Start(ctx, "u1", StartRequest{SubjectID: "p1", Level: "E"})
	require.NoError(t, err)

	_, err = f.manager.Start(ctx, "u1", StartRequest{SubjectID: "p1", Level: "E"})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)

	_, err = f.manager.Start(ctx, "u2", StartRequest{SubjectID: "p1", Level: "E"})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)

	_, err = f.manager.Cancel(ctx, "u2", "no session")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}

func TestStartSessionUniqueViolationIsConflict(t *testing.T) {
	f := newSessionFixture(t)
	f.store.createErr = &pq.Error{Code: "23505", Constraint: "ux_test_sessions_active"}

	_, err := f.manager.Start(context.Background(), "u1", StartRequest{SubjectID: "p1", Level: "S"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestMarkTestCompletedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	_, err := f.manager.Complete(ctx, "u1", "verbal")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)

	_, err = f.manager.Start(ctx, "u1", StartRequest{SubjectID: "p1", Level: "E"})
	require.NoError(t, err)

	_, err = f.manager.Complete(ctx, "u1", "verbal")
	require.NoError(t, err)
	view, err := f.manager.Complete(ctx, "u1", "verbal")
	require.NoError(t, err)
	assert.Equal(t, []string{"verbal"}, view.CompletedTests)
	assert.InDelta(t, 1.0/7.0, view.Progress, 0.0001)

	_, err = f.manager.Complete(ctx, "u1", "quimica")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestMissingSessionsTableFallsBackToSynthetic(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	f.store.createErr = &pq.Error{Code: "42P01", Message: `relation "test_sessions" does not exist`}

	session, err := f.manager.Start(ctx, "u1", StartRequest{SubjectID: "p1", Level: "E"})
	require.NoError(t, err)
	assert.True(t, session.Synthetic)
	assert.False(t, f.features.Available(models.FeatureTestSessions))

	row, err := f.manager.Cancel(ctx, "u1", "interrumpida")
	require.NoError(t, err)
	assert.True(t, row.Synthetic)
	assert.Equal(t, models.SessionStatusCancelled, row.Estado)
	require.NotNil(t, row.MotivoCancelacion)
	assert.Equal(t, "interrumpida", *row.MotivoCancelacion)
	assert.Equal(t, session.ID, row.ID)
}

func TestFinishWithoutBackendRowReturnsSynthetic(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	session, err := f.manager.Start(ctx, "u1", StartRequest{SubjectID: "p1", Level: "E", ConsumePin: true})
	require.NoError(t, err)

	f.store.mu.Lock()
	delete(f.store.rows, session.ID)
	f.store.mu.Unlock()

	row, err := f.manager.Finish(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, row.Synthetic)
	assert.Equal(t, models.SessionStatusFinished, row.Estado)
	assert.Equal(t, 1, f.store.pinCalls)
}

func TestFinishBackendFailureKeepsSessionActive(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	_, err := f.manager.Start(ctx, "u1", StartRequest{SubjectID: "p1", Level: "E"})
	require.NoError(t, err)
	f.store.closeErr = errors.New("connection reset")

	_, err = f.manager.Finish(ctx, "u1")
	require.Error(t, err)
	view, err := f.manager.Current(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StateActive, view.State)
}

func TestRestoreDropsSessionClosedElsewhere(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	session, err := f.manager.Start(ctx, "u1", StartRequest{SubjectID: "p1", Level: "E"})
	require.NoError(t, err)
	_, err = f.store.Finish(ctx, session.ID, f.now)
	require.NoError(t, err)

	view, err := f.newManager().Current(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StateNoSession, view.State)
	assert.Empty(t, view.CompletedTests)
}

func TestStartResumesOwnSessionAfterStateLoss(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	session, err := f.manager.Start(ctx, "u1", StartRequest{SubjectID: "p1", Level: "M"})
	require.NoError(t, err)
	require.NoError(t, f.backend.Delete(ctx, snapshotKey("u1")))

	restarted := f.newManager()
	view, err := restarted.Current(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StateNoSession, view.State)

	_, err = restarted.Start(ctx, "u2", StartRequest{SubjectID: "p1", Level: "M"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)

	resumed, err := restarted.Start(ctx, "u1", StartRequest{SubjectID: "p1", Level: "E"})
	require.NoError(t, err)
	assert.Equal(t, session.ID, resumed.ID)

	view, err = restarted.Current(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StateActive, view.State)
	assert.Equal(t, models.EvaluationLevel("M"), view.Level)

	row, err := restarted.Finish(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, row.Synthetic)
	assert.Equal(t, models.SessionStatusFinished, row.Estado)
	assert.Nil(t, restarted.GetActiveSession(ctx, "p1"))
}

func TestSyncCompletedTestsMissingResultsTable(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	f.results.err = &pq.Error{Code: "42P01", Message: `relation "resultados" does not exist`}

	_, err := f.manager.Start(ctx, "u1", StartRequest{SubjectID: "p1", Level: "E"})
	require.NoError(t, err)
	_, err = f.manager.Complete(ctx, "u1", "verbal")
	require.NoError(t, err)

	view, err := f.manager.Sync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"verbal"}, view.CompletedTests)
	assert.False(t, f.features.Available(models.FeatureResults))
	assert.True(t, f.features.Available(models.FeatureTestSessions))
}

func TestSyncCompletedTestsBackendFailure(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	f.results.err = errors.New("connection reset")

	_, err := f.manager.Start(ctx, "u1", StartRequest{SubjectID: "p1", Level: "E"})
	require.NoError(t, err)

	_, err = f.manager.Sync(ctx, "u1")
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.True(t, f.features.Available(models.FeatureResults))
}

func TestSyncCompletedTestsMergesResults(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	f.results.codes = []string{"N", "V", "Z"}

	_, err := f.manager.Start(ctx, "u1", StartRequest{SubjectID: "p1", Level: "E"})
	require.NoError(t, err)
	_, err = f.manager.Complete(ctx, "u1", "verbal")
	require.NoError(t, err)

	view, err := f.manager.Sync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"verbal", "numerico"}, view.CompletedTests)
}

func TestGetActiveSessionIsLenient(t *testing.T) {
	f := newSessionFixture(t)
	f.store.activeErr = errors.New("permission denied")
	assert.Nil(t, f.manager.GetActiveSession(context.Background(), "p1"))

	f.store.activeErr = nil
	f.features.MarkUnavailable(models.FeatureTestSessions)
	assert.Nil(t, f.manager.GetActiveSession(context.Background(), "p1"))
}

func TestInvalidateForgetsTracker(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	first, err := f.manager.Tracker(ctx, "u1")
	require.NoError(t, err)
	f.manager.Invalidate("session:u1", Snapshot{})
	second, err := f.manager.Tracker(ctx, "u1")
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	f.manager.Invalidate("other:u1", Snapshot{})
	third, err := f.manager.Tracker(ctx, "u1")
	require.NoError(t, err)
	assert.Same(t, second, third)
}

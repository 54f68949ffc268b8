package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/psicometria/bat7-api/internal/models"
	"github.com/psicometria/bat7-api/internal/repository"
	appErrors "github.com/psicometria/bat7-api/pkg/errors"
)

type mockSubjectStore struct {
	mu        sync.Mutex
	rows      map[string]models.Subject
	seq       int
	listCalls int
	createErr error
	failIDs   map[string]bool
	lastWrite map[string]interface{}
}

func newMockSubjectStore(rows ...models.Subject) *mockSubjectStore {
	m := &mockSubjectStore{rows: map[string]models.Subject{}, failIDs: map[string]bool{}}
	for _, r := range rows {
		m.rows[r.ID] = r
	}
	return m
}

func (m *mockSubjectStore) Config() repository.EntityConfig { return repository.SubjectEntity }

func (m *mockSubjectStore) List(_ context.Context, q repository.Query) ([]models.Subject, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	out := make([]models.Subject, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, total, nil
}

func (m *mockSubjectStore) FindByID(_ context.Context, id string) (*models.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (m *mockSubjectStore) Create(_ context.Context, fields map[string]interface{}) (*models.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastWrite = fields
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.seq++
	r := models.Subject{ID: "new-" + strconv.Itoa(m.seq)}
	r.Nombre, _ = fields["nombre"].(string)
	r.Apellido, _ = fields["apellido"].(string)
	r.Documento, _ = fields["documento"].(string)
	if v, ok := fields["estado"].(string); ok {
		r.Estado = models.SubjectStatus(v)
	}
	r.Activo, _ = fields["activo"].(bool)
	m.rows[r.ID] = r
	return &r, nil
}

func (m *mockSubjectStore) Update(_ context.Context, id string, partial map[string]interface{}) (*models.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastWrite = partial
	if m.failIDs[id] {
		return nil, errors.New("write timeout")
	}
	r, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if v, ok := partial["estado"].(string); ok {
		r.Estado = models.SubjectStatus(v)
	}
	if v, ok := partial["activo"].(bool); ok {
		r.Activo = v
	}
	if v, ok := partial["nombre"].(string); ok {
		r.Nombre = v
	}
	m.rows[id] = r
	return &r, nil
}

func (m *mockSubjectStore) Delete(_ context.Context, id string) (*models.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIDs[id] {
		return nil, errors.New("write timeout")
	}
	r, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	delete(m.rows, id)
	return &r, nil
}

func (m *mockSubjectStore) ExistsBy(_ context.Context, column string, value interface{}, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == excludeID {
			continue
		}
		if v, ok := r.FieldValue(column); ok && v == value {
			return true, nil
		}
	}
	return false, nil
}

func subjectFixtures() []models.Subject {
	return []models.Subject{
		{ID: "s1", Nombre: "Ana", Apellido: "Rojas", Documento: "100", InstitucionID: "i1", Estado: models.SubjectStatusActive, Activo: true, Tipo: models.SubjectTypePatient},
		{ID: "s2", Nombre: "Bruno", Apellido: "Diaz", Documento: "200", InstitucionID: "i1", Estado: models.SubjectStatusPending, Activo: true, Tipo: models.SubjectTypeCandidate},
		{ID: "s3", Nombre: "Carla", Apellido: "Mendez", Documento: "300", InstitucionID: "i2", Estado: models.SubjectStatusInactive, Tipo: models.SubjectTypePatient},
	}
}

func validSubjectFields() map[string]interface{} {
	return map[string]interface{}{
		"nombre":         "  Diego ",
		"apellido":       "Suarez",
		"documento":      "400",
		"institucion_id": "i1",
		"email":          "diego@example.com",
	}
}

func TestEntityServiceCreate(t *testing.T) {
	store := newMockSubjectStore(subjectFixtures()...)
	changes := 0
	svc := NewEntityService[models.Subject](store, nil, nil, EntityHooks{
		Prepare:  PrepareSubject,
		OnChange: func(context.Context) { changes++ },
	})

	created, err := svc.Create(context.Background(), validSubjectFields())
	require.NoError(t, err)
	assert.Equal(t, "Diego", created.Nombre)
	assert.Equal(t, models.SubjectStatusActive, created.Estado)
	assert.True(t, created.Activo)
	assert.Equal(t, string(models.SubjectTypePatient), store.lastWrite["tipo"])
	assert.Equal(t, 1, changes)
}

func TestEntityServiceCreateValidation(t *testing.T) {
	store := newMockSubjectStore(subjectFixtures()...)
	svc := NewEntityService[models.Subject](store, nil, nil, EntityHooks{Prepare: PrepareSubject})

	cases := []struct {
		name   string
		mutate func(map[string]interface{})
		code   string
	}{
		{"missing required", func(f map[string]interface{}) { delete(f, "apellido") }, appErrors.ErrValidation.Code},
		{"blank required", func(f map[string]interface{}) { f["nombre"] = "   " }, appErrors.ErrValidation.Code},
		{"bad email", func(f map[string]interface{}) { f["email"] = "not-an-email" }, appErrors.ErrValidation.Code},
		{"bad estado", func(f map[string]interface{}) { f["estado"] = "archivado" }, appErrors.ErrValidation.Code},
		{"future birth date", func(f map[string]interface{}) { f["fecha_nacimiento"] = "2999-01-01" }, appErrors.ErrValidation.Code},
		{"malformed birth date", func(f map[string]interface{}) { f["fecha_nacimiento"] = "01/02/2000" }, appErrors.ErrValidation.Code},
		{"unknown field", func(f map[string]interface{}) { f["salario"] = 10 }, appErrors.ErrValidation.Code},
		{"duplicate documento", func(f map[string]interface{}) { f["documento"] = "100" }, appErrors.ErrConflict.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fields := validSubjectFields()
			tc.mutate(fields)
			_, err := svc.Create(context.Background(), fields)
			var appErr *appErrors.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.code, appErr.Code)
		})
	}
}

func TestEntityServiceUniqueViolationMapsToConflict(t *testing.T) {
	store := newMockSubjectStore()
	store.createErr = &pq.Error{Code: "23505", Constraint: "subjects_documento_key"}
	svc := NewEntityService[models.Subject](store, nil, nil, EntityHooks{Prepare: PrepareSubject})

	_, err := svc.Create(context.Background(), validSubjectFields())
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestEntityServiceUpdateAndDelete(t *testing.T) {
	store := newMockSubjectStore(subjectFixtures()...)
	svc := NewEntityService[models.Subject](store, nil, nil, EntityHooks{Prepare: PrepareSubject})
	ctx := context.Background()

	updated, err := svc.Update(ctx, "s1", map[string]interface{}{"nombre": "Anabel"})
	require.NoError(t, err)
	assert.Equal(t, "Anabel", updated.Nombre)
	_, hasTipo := store.lastWrite["tipo"]
	assert.False(t, hasTipo)

	_, err = svc.Update(ctx, "s1", map[string]interface{}{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Update(ctx, "s1", map[string]interface{}{"documento": "200"})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = svc.Update(ctx, "s1", map[string]interface{}{"documento": "100"})
	assert.NoError(t, err)

	_, err = svc.Update(ctx, "missing", map[string]interface{}{"nombre": "X"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	deleted, err := svc.Delete(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, "s2", deleted.ID)
	_, err = svc.Get(ctx, "s2")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestUserPreparerHashesPassword(t *testing.T) {
	prepare := UserPreparer(bcrypt.MinCost)
	fields := map[string]interface{}{"email": "a@b.co", "password": "supersecret"}
	require.NoError(t, prepare(context.Background(), fields, true))

	_, hasPlain := fields["password"]
	assert.False(t, hasPlain)
	hash, _ := fields["password_hash"].(string)
	require.NotEmpty(t, hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("supersecret")))
	assert.Equal(t, string(models.RolePsychologist), fields["rol"])

	err := prepare(context.Background(), map[string]interface{}{"password": "short"}, true)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	err = prepare(context.Background(), map[string]interface{}{"email": "a@b.co"}, true)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	err = prepare(context.Background(), map[string]interface{}{"password_hash": "x"}, false)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	err = prepare(context.Background(), map[string]interface{}{"rol": "root"}, false)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.NoError(t, prepare(context.Background(), map[string]interface{}{"nombre": "Eva"}, false))
}

func TestPreparePsychologistPins(t *testing.T) {
	fields := map[string]interface{}{"pines_disponibles": float64(3)}
	require.NoError(t, PreparePsychologist(context.Background(), fields, false))
	assert.Equal(t, 3, fields["pines_disponibles"])

	assert.Error(t, PreparePsychologist(context.Background(), map[string]interface{}{"pines_disponibles": -1}, false))
	assert.Error(t, PreparePsychologist(context.Background(), map[string]interface{}{"pines_disponibles": 1.5}, false))
	assert.Error(t, PreparePsychologist(context.Background(), map[string]interface{}{"activo": "yes"}, false))
}

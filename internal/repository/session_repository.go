package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/psicometria/bat7-api/internal/models"
)

const sessionColumns = `id, subject_id, aptitud_id, usuario_id, nivel, fecha_inicio, fecha_fin, estado, motivo_cancelacion, pin_consumido, created_at, updated_at`

// SessionRepository persists test session rows.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateIfNoneActive inserts session unless the subject already has a started
// session. It reports whether the row was inserted.
func (r *SessionRepository) CreateIfNoneActive(ctx context.Context, session *models.TestSession) (bool, error) {
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	const query = `INSERT INTO test_sessions (id, subject_id, aptitud_id, usuario_id, nivel, fecha_inicio, estado, pin_consumido, created_at, updated_at)
        SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
        WHERE NOT EXISTS (SELECT 1 FROM test_sessions WHERE subject_id = $2 AND estado = $7)`
	res, err := r.db.ExecContext(ctx, query,
		session.ID, session.SubjectID, session.AptitudID, session.UsuarioID, session.Nivel,
		session.FechaInicio, models.SessionStatusStarted, session.PinConsumido, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("create test session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create test session: %w", err)
	}
	return n == 1, nil
}

// Finish marks a started session as finished.
func (r *SessionRepository) Finish(ctx context.Context, id string, at time.Time) (*models.TestSession, error) {
	const query = `UPDATE test_sessions SET estado = $2, fecha_fin = $3, updated_at = $3 WHERE id = $1 AND estado = $4
        RETURNING ` + sessionColumns
	var session models.TestSession
	if err := r.db.GetContext(ctx, &session, query, id, models.SessionStatusFinished, at, models.SessionStatusStarted); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("finish test session: %w", err)
	}
	return &session, nil
}

// Cancel marks a started session as cancelled with a reason.
func (r *SessionRepository) Cancel(ctx context.Context, id, reason string, at time.Time) (*models.TestSession, error) {
	const query = `UPDATE test_sessions SET estado = $2, fecha_fin = $3, motivo_cancelacion = $4, updated_at = $3 WHERE id = $1 AND estado = $5
        RETURNING ` + sessionColumns
	var session models.TestSession
	if err := r.db.GetContext(ctx, &session, query, id, models.SessionStatusCancelled, at, reason, models.SessionStatusStarted); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("cancel test session: %w", err)
	}
	return &session, nil
}

// FindByID fetches a session row.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.TestSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM test_sessions WHERE id = $1 LIMIT 1`
	var session models.TestSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find test session: %w", err)
	}
	return &session, nil
}

// GetActive returns the most recent started session of a subject.
func (r *SessionRepository) GetActive(ctx context.Context, subjectID string) (*models.TestSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM test_sessions WHERE subject_id = $1 AND estado = $2 ORDER BY fecha_inicio DESC LIMIT 1`
	var session models.TestSession
	if err := r.db.GetContext(ctx, &session, query, subjectID, models.SessionStatusStarted); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get active test session: %w", err)
	}
	return &session, nil
}

// DeleteCancelledBefore physically removes cancelled sessions that ended before cutoff.
func (r *SessionRepository) DeleteCancelledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM test_sessions WHERE estado = $1 AND COALESCE(fecha_fin, updated_at) < $2`
	res, err := r.db.ExecContext(ctx, query, models.SessionStatusCancelled, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep cancelled sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep cancelled sessions: %w", err)
	}
	return n, nil
}

// CancelStartedBefore cancels started sessions opened before cutoff with reason.
func (r *SessionRepository) CancelStartedBefore(ctx context.Context, cutoff time.Time, reason string, at time.Time) (int64, error) {
	const query = `UPDATE test_sessions SET estado = $1, motivo_cancelacion = $2, fecha_fin = $3, updated_at = $3
        WHERE estado = $4 AND fecha_inicio < $5`
	res, err := r.db.ExecContext(ctx, query, models.SessionStatusCancelled, reason, at, models.SessionStatusStarted, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire started sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire started sessions: %w", err)
	}
	return n, nil
}

// ConsumePin decrements the pin balance of the psychologist linked to userID.
// It reports whether a pin was available.
func (r *SessionRepository) ConsumePin(ctx context.Context, userID string) (bool, error) {
	const query = `UPDATE psicologos SET pines_disponibles = pines_disponibles - 1, updated_at = $2
        WHERE usuario_id = $1 AND pines_disponibles > 0 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("consume pin: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume pin: %w", err)
	}
	return n > 0, nil
}

package models

import (
	"strconv"
	"time"
)

// SessionStatus is the backend state of a test session row.
type SessionStatus string

const (
	SessionStatusStarted   SessionStatus = "iniciado"
	SessionStatusFinished  SessionStatus = "finalizado"
	SessionStatusCancelled SessionStatus = "cancelado"
)

// EvaluationLevel selects the BAT-7 battery: elementary, middle or superior.
type EvaluationLevel string

const (
	LevelElementary EvaluationLevel = "E"
	LevelMiddle     EvaluationLevel = "M"
	LevelSuperior   EvaluationLevel = "S"
)

// Valid reports whether l is a known level.
func (l EvaluationLevel) Valid() bool {
	switch l {
	case LevelElementary, LevelMiddle, LevelSuperior:
		return true
	}
	return false
}

// TestSession is one evaluation attempt of a subject.
type TestSession struct {
	ID                string          `db:"id" json:"id"`
	SubjectID         string          `db:"subject_id" json:"subject_id"`
	SubjectNombre     *string         `db:"subject_nombre" json:"subject_nombre,omitempty"`
	AptitudID         *string         `db:"aptitud_id" json:"aptitud_id,omitempty"`
	UsuarioID         *string         `db:"usuario_id" json:"usuario_id,omitempty"`
	Nivel             EvaluationLevel `db:"nivel" json:"nivel"`
	FechaInicio       time.Time       `db:"fecha_inicio" json:"fecha_inicio"`
	FechaFin          *time.Time      `db:"fecha_fin" json:"fecha_fin,omitempty"`
	Estado            SessionStatus   `db:"estado" json:"estado"`
	MotivoCancelacion *string         `db:"motivo_cancelacion" json:"motivo_cancelacion,omitempty"`
	PinConsumido      bool            `db:"pin_consumido" json:"pin_consumido"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
	// Synthetic marks a session object produced without a backing row.
	Synthetic bool `db:"-" json:"synthetic,omitempty"`
}

func (s TestSession) Identifier() string { return s.ID }

func (s TestSession) FieldValue(field string) (string, bool) {
	switch field {
	case "id":
		return s.ID, true
	case "subject_id":
		return s.SubjectID, true
	case "subject":
		return deref(s.SubjectNombre)
	case "usuario_id":
		return deref(s.UsuarioID)
	case "nivel":
		return string(s.Nivel), true
	case "estado":
		return string(s.Estado), true
	case "pin_consumido":
		return strconv.FormatBool(s.PinConsumido), true
	case "fecha_inicio":
		return s.FechaInicio.UTC().Format(time.RFC3339), true
	case "fecha_fin":
		if s.FechaFin == nil {
			return "", false
		}
		return s.FechaFin.UTC().Format(time.RFC3339), true
	}
	return "", false
}

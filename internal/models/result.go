package models

import (
	"strconv"
	"time"
)

// Result is the scored outcome of one aptitude test.
type Result struct {
	ID             string     `db:"id" json:"id"`
	SubjectID      string     `db:"subject_id" json:"subject_id"`
	AptitudCode    string     `db:"aptitud_code" json:"aptitud_code"`
	PuntajeDirecto int        `db:"puntaje_directo" json:"puntaje_directo"`
	Percentil      *int       `db:"percentil" json:"percentil,omitempty"`
	Errores        int        `db:"errores" json:"errores"`
	Concentracion  *float64   `db:"concentracion" json:"concentracion,omitempty"`
	TiempoSegundos int        `db:"tiempo_segundos" json:"tiempo_segundos"`
	SessionID      *string    `db:"session_id" json:"session_id,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

func (r Result) Identifier() string { return r.ID }

func (r Result) FieldValue(field string) (string, bool) {
	switch field {
	case "id":
		return r.ID, true
	case "subject_id":
		return r.SubjectID, true
	case "aptitud_code":
		return r.AptitudCode, true
	case "puntaje_directo":
		return strconv.Itoa(r.PuntajeDirecto), true
	case "percentil":
		if r.Percentil == nil {
			return "", false
		}
		return strconv.Itoa(*r.Percentil), true
	case "errores":
		return strconv.Itoa(r.Errores), true
	case "session_id":
		return deref(r.SessionID)
	case "created_at":
		return r.CreatedAt.UTC().Format(time.RFC3339), true
	}
	return "", false
}

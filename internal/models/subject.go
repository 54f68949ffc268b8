package models

import (
	"strconv"
	"strings"
	"time"
)

// SubjectType distinguishes clinical patients from job candidates.
type SubjectType string

const (
	SubjectTypePatient   SubjectType = "paciente"
	SubjectTypeCandidate SubjectType = "candidato"
)

// SubjectStatus is the lifecycle state of a subject record.
type SubjectStatus string

const (
	SubjectStatusActive   SubjectStatus = "activo"
	SubjectStatusInactive SubjectStatus = "inactivo"
	SubjectStatusPending  SubjectStatus = "pendiente"
)

// Valid reports whether s is a known status.
func (s SubjectStatus) Valid() bool {
	switch s {
	case SubjectStatusActive, SubjectStatusInactive, SubjectStatusPending:
		return true
	}
	return false
}

// Subject is a person being evaluated.
type Subject struct {
	ID                string        `db:"id" json:"id"`
	Tipo              SubjectType   `db:"tipo" json:"tipo"`
	Nombre            string        `db:"nombre" json:"nombre"`
	Apellido          string        `db:"apellido" json:"apellido"`
	Documento         string        `db:"documento" json:"documento"`
	Email             *string       `db:"email" json:"email,omitempty"`
	FechaNacimiento   *time.Time    `db:"fecha_nacimiento" json:"fecha_nacimiento,omitempty"`
	Genero            *string       `db:"genero" json:"genero,omitempty"`
	InstitucionID     string        `db:"institucion_id" json:"institucion_id"`
	InstitucionNombre *string       `db:"institucion_nombre" json:"institucion_nombre,omitempty"`
	PsicologoID       *string       `db:"psicologo_id" json:"psicologo_id,omitempty"`
	PsicologoNombre   *string       `db:"psicologo_nombre" json:"psicologo_nombre,omitempty"`
	NivelEducativo    *string       `db:"nivel_educativo" json:"nivel_educativo,omitempty"`
	Ocupacion         *string       `db:"ocupacion" json:"ocupacion,omitempty"`
	Telefono          *string       `db:"telefono" json:"telefono,omitempty"`
	Estado            SubjectStatus `db:"estado" json:"estado"`
	Activo            bool          `db:"activo" json:"activo"`
	DeletedAt         *time.Time    `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// Identifier implements listing.Identifiable.
func (s Subject) Identifier() string { return s.ID }

// FullName joins first and last name.
func (s Subject) FullName() string {
	return strings.TrimSpace(s.Nombre + " " + s.Apellido)
}

// Age returns completed years at now, or -1 without a birth date.
func (s Subject) Age(now time.Time) int {
	if s.FechaNacimiento == nil {
		return -1
	}
	birth := *s.FechaNacimiento
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	return years
}

// FieldValue implements listing.Filterable.
func (s Subject) FieldValue(field string) (string, bool) {
	switch field {
	case "id":
		return s.ID, true
	case "tipo":
		return string(s.Tipo), true
	case "nombre":
		return s.Nombre, true
	case "apellido":
		return s.Apellido, true
	case "nombre_completo":
		return s.FullName(), true
	case "documento":
		return s.Documento, true
	case "email":
		return deref(s.Email)
	case "genero":
		return deref(s.Genero)
	case "institucion_id":
		return s.InstitucionID, s.InstitucionID != ""
	case "institucion":
		return deref(s.InstitucionNombre)
	case "psicologo_id":
		return deref(s.PsicologoID)
	case "psicologo":
		return deref(s.PsicologoNombre)
	case "nivel_educativo":
		return deref(s.NivelEducativo)
	case "estado":
		return string(s.Estado), true
	case "activo":
		return strconv.FormatBool(s.Activo), true
	case "edad":
		if age := s.Age(time.Now()); age >= 0 {
			return strconv.Itoa(age), true
		}
		return "", false
	case "fecha_nacimiento":
		return dateValue(s.FechaNacimiento)
	case "created_at":
		return s.CreatedAt.UTC().Format(time.RFC3339), true
	}
	return "", false
}

func deref(v *string) (string, bool) {
	if v == nil {
		return "", false
	}
	return *v, true
}

func dateValue(t *time.Time) (string, bool) {
	if t == nil {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

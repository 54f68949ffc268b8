package models

import (
	"strconv"
	"strings"
	"time"
)

// Psychologist administers evaluations and owns a pin balance.
type Psychologist struct {
	ID                string     `db:"id" json:"id"`
	UsuarioID         *string    `db:"usuario_id" json:"usuario_id,omitempty"`
	Nombre            string     `db:"nombre" json:"nombre"`
	Apellido          string     `db:"apellido" json:"apellido"`
	Documento         string     `db:"documento" json:"documento"`
	Email             string     `db:"email" json:"email"`
	Telefono          *string    `db:"telefono" json:"telefono,omitempty"`
	Especialidad      *string    `db:"especialidad" json:"especialidad,omitempty"`
	InstitucionID     *string    `db:"institucion_id" json:"institucion_id,omitempty"`
	InstitucionNombre *string    `db:"institucion_nombre" json:"institucion_nombre,omitempty"`
	PinesDisponibles  int        `db:"pines_disponibles" json:"pines_disponibles"`
	Activo            bool       `db:"activo" json:"activo"`
	DeletedAt         *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

func (p Psychologist) Identifier() string { return p.ID }

func (p Psychologist) FieldValue(field string) (string, bool) {
	switch field {
	case "id":
		return p.ID, true
	case "nombre":
		return p.Nombre, true
	case "apellido":
		return p.Apellido, true
	case "nombre_completo":
		return strings.TrimSpace(p.Nombre + " " + p.Apellido), true
	case "documento":
		return p.Documento, true
	case "email":
		return p.Email, true
	case "especialidad":
		return deref(p.Especialidad)
	case "institucion_id":
		return deref(p.InstitucionID)
	case "institucion":
		return deref(p.InstitucionNombre)
	case "usuario_id":
		return deref(p.UsuarioID)
	case "pines_disponibles":
		return strconv.Itoa(p.PinesDisponibles), true
	case "activo":
		return strconv.FormatBool(p.Activo), true
	case "created_at":
		return p.CreatedAt.UTC().Format(time.RFC3339), true
	}
	return "", false
}

package models

import (
	"strconv"
	"time"
)

// Institution groups subjects and psychologists.
type Institution struct {
	ID        string     `db:"id" json:"id"`
	Nombre    string     `db:"nombre" json:"nombre"`
	Tipo      *string    `db:"tipo" json:"tipo,omitempty"`
	Direccion *string    `db:"direccion" json:"direccion,omitempty"`
	Telefono  *string    `db:"telefono" json:"telefono,omitempty"`
	Email     *string    `db:"email" json:"email,omitempty"`
	Activo    bool       `db:"activo" json:"activo"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

func (i Institution) Identifier() string { return i.ID }

func (i Institution) FieldValue(field string) (string, bool) {
	switch field {
	case "id":
		return i.ID, true
	case "nombre":
		return i.Nombre, true
	case "tipo":
		return deref(i.Tipo)
	case "direccion":
		return deref(i.Direccion)
	case "email":
		return deref(i.Email)
	case "activo":
		return strconv.FormatBool(i.Activo), true
	case "created_at":
		return i.CreatedAt.UTC().Format(time.RFC3339), true
	}
	return "", false
}

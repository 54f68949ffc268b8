package models

import (
	"strconv"
	"strings"
	"time"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin        UserRole = "administrador"
	RolePsychologist UserRole = "psicologo"
	RoleCandidate    UserRole = "candidato"
)

// User represents an application account stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Nombre       string     `db:"nombre" json:"nombre"`
	Apellido     string     `db:"apellido" json:"apellido"`
	Documento    *string    `db:"documento" json:"documento,omitempty"`
	Rol          UserRole   `db:"rol" json:"rol"`
	Activo       bool       `db:"activo" json:"activo"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.Nombre + " " + u.Apellido)
}

func (u User) Identifier() string { return u.ID }

func (u User) FieldValue(field string) (string, bool) {
	switch field {
	case "id":
		return u.ID, true
	case "email":
		return u.Email, true
	case "nombre":
		return u.Nombre, true
	case "apellido":
		return u.Apellido, true
	case "nombre_completo":
		return u.FullName(), true
	case "documento":
		return deref(u.Documento)
	case "rol":
		return string(u.Rol), true
	case "activo":
		return strconv.FormatBool(u.Activo), true
	case "created_at":
		return u.CreatedAt.UTC().Format(time.RFC3339), true
	}
	return "", false
}

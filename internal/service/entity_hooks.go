package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/psicometria/bat7-api/internal/models"
	appErrors "github.com/psicometria/bat7-api/pkg/errors"
)

const minPasswordLength = 8

var genders = map[string]bool{"masculino": true, "femenino": true, "otro": true}

// PrepareSubject validates enums and dates of subject payloads.
func PrepareSubject(_ context.Context, fields map[string]interface{}, creating bool) error {
	if creating {
		setDefault(fields, "tipo", string(models.SubjectTypePatient))
		setDefault(fields, "estado", string(models.SubjectStatusActive))
		setDefault(fields, "activo", true)
	}
	if v, ok := fields["tipo"]; ok {
		tipo, _ := v.(string)
		if tipo != string(models.SubjectTypePatient) && tipo != string(models.SubjectTypeCandidate) {
			return appErrors.Clone(appErrors.ErrValidation, "tipo must be paciente or candidato")
		}
	}
	if v, ok := fields["estado"]; ok {
		estado, _ := v.(string)
		if !models.SubjectStatus(estado).Valid() {
			return appErrors.Clone(appErrors.ErrValidation, "estado must be activo, inactivo or pendiente")
		}
	}
	if v, ok := fields["genero"]; ok && v != nil {
		genero, _ := v.(string)
		if !genders[genero] {
			return appErrors.Clone(appErrors.ErrValidation, "genero must be masculino, femenino or otro")
		}
	}
	if v, ok := fields["fecha_nacimiento"]; ok && v != nil {
		raw, _ := v.(string)
		birth, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "fecha_nacimiento must be YYYY-MM-DD")
		}
		if birth.After(time.Now()) {
			return appErrors.Clone(appErrors.ErrValidation, "fecha_nacimiento cannot be in the future")
		}
		fields["fecha_nacimiento"] = birth
	}
	return checkBool(fields, "activo")
}

// PrepareInstitution defaults the active flag.
func PrepareInstitution(_ context.Context, fields map[string]interface{}, creating bool) error {
	if creating {
		setDefault(fields, "activo", true)
	}
	return checkBool(fields, "activo")
}

// PreparePsychologist validates the pin balance.
func PreparePsychologist(_ context.Context, fields map[string]interface{}, creating bool) error {
	if creating {
		setDefault(fields, "activo", true)
		setDefault(fields, "pines_disponibles", 0)
	}
	if v, ok := fields["pines_disponibles"]; ok {
		pins, err := toInt(v)
		if err != nil || pins < 0 {
			return appErrors.Clone(appErrors.ErrValidation, "pines_disponibles must be a non-negative integer")
		}
		fields["pines_disponibles"] = pins
	}
	return checkBool(fields, "activo")
}

// UserPreparer hashes plain passwords into password_hash.
func UserPreparer(cost int) PrepareFunc {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return func(_ context.Context, fields map[string]interface{}, creating bool) error {
		if _, ok := fields["password_hash"]; ok {
			return appErrors.Clone(appErrors.ErrValidation, "password_hash cannot be set directly")
		}
		if creating {
			setDefault(fields, "rol", string(models.RolePsychologist))
			setDefault(fields, "activo", true)
		}
		if v, ok := fields["rol"]; ok {
			rol, _ := v.(string)
			switch models.UserRole(rol) {
			case models.RoleAdmin, models.RolePsychologist, models.RoleCandidate:
			default:
				return appErrors.Clone(appErrors.ErrValidation, "rol must be administrador, psicologo or candidato")
			}
		}
		raw, present := fields["password"]
		delete(fields, "password")
		if !present {
			if creating {
				return appErrors.Clone(appErrors.ErrValidation, "password is required")
			}
			return checkBool(fields, "activo")
		}
		password, _ := raw.(string)
		if len(password) < minPasswordLength {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("password must have at least %d characters", minPasswordLength))
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		fields["password_hash"] = string(hash)
		return checkBool(fields, "activo")
	}
}

func setDefault(fields map[string]interface{}, key string, value interface{}) {
	if v, ok := fields[key]; !ok || v == nil {
		fields[key] = value
	}
}

func checkBool(fields map[string]interface{}, key string) error {
	v, ok := fields[key]
	if !ok {
		return nil
	}
	if _, isBool := v.(bool); !isBool {
		return appErrors.Clone(appErrors.ErrValidation, key+" must be a boolean")
	}
	return nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("%v is not a number", v)
}

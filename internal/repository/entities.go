package repository

// SubjectEntity maps the subjects table.
var SubjectEntity = EntityConfig{
	Name:     "subjects",
	Singular: "subject",
	Table:    "subjects",
	Alias:    "s",
	Columns: []string{
		"id", "tipo", "nombre", "apellido", "documento", "email", "fecha_nacimiento", "genero",
		"institucion_id", "psicologo_id", "nivel_educativo", "ocupacion", "telefono",
		"estado", "activo", "deleted_at", "created_at", "updated_at",
	},
	Joins: []Join{
		{Clause: "LEFT JOIN instituciones i ON i.id = s.institucion_id", Select: []string{"i.nombre AS institucion_nombre"}},
		{Clause: "LEFT JOIN psicologos p ON p.id = s.psicologo_id", Select: []string{"NULLIF(TRIM(CONCAT(p.nombre, ' ', p.apellido)), '') AS psicologo_nombre"}},
	},
	SearchColumns: []string{"s.nombre", "s.apellido", "s.documento", "s.email"},
	FilterColumns: map[string]string{
		"tipo":            "s.tipo",
		"estado":          "s.estado",
		"genero":          "s.genero",
		"institucion_id":  "s.institucion_id",
		"psicologo_id":    "s.psicologo_id",
		"nivel_educativo": "s.nivel_educativo",
	},
	SortColumns: map[string]string{
		"nombre":           "s.nombre",
		"apellido":         "s.apellido",
		"documento":        "s.documento",
		"fecha_nacimiento": "s.fecha_nacimiento",
		"created_at":       "s.created_at",
	},
	DefaultSort: "apellido",
	Writable: []string{
		"tipo", "nombre", "apellido", "documento", "email", "fecha_nacimiento", "genero",
		"institucion_id", "psicologo_id", "nivel_educativo", "ocupacion", "telefono", "estado", "activo",
	},
	RequiredFields: []string{"nombre", "apellido", "documento", "institucion_id"},
	UniqueField:    "documento",
	EmailFields:    []string{"email"},
	SoftDelete:     true,
	Timestamps:     true,
}

// InstitutionEntity maps the instituciones table.
var InstitutionEntity = EntityConfig{
	Name:           "institutions",
	Singular:       "institution",
	Table:          "instituciones",
	Alias:          "i",
	Columns:        []string{"id", "nombre", "tipo", "direccion", "telefono", "email", "activo", "deleted_at", "created_at", "updated_at"},
	SearchColumns:  []string{"i.nombre", "i.direccion"},
	FilterColumns:  map[string]string{"tipo": "i.tipo", "activo": "i.activo"},
	SortColumns:    map[string]string{"nombre": "i.nombre", "created_at": "i.created_at"},
	DefaultSort:    "nombre",
	Writable:       []string{"nombre", "tipo", "direccion", "telefono", "email", "activo"},
	RequiredFields: []string{"nombre"},
	UniqueField:    "nombre",
	EmailFields:    []string{"email"},
	SoftDelete:     true,
	Timestamps:     true,
}

// PsychologistEntity maps the psicologos table.
var PsychologistEntity = EntityConfig{
	Name:     "psychologists",
	Singular: "psychologist",
	Table:    "psicologos",
	Alias:    "p",
	Columns: []string{
		"id", "usuario_id", "nombre", "apellido", "documento", "email", "telefono", "especialidad",
		"institucion_id", "pines_disponibles", "activo", "deleted_at", "created_at", "updated_at",
	},
	Joins: []Join{
		{Clause: "LEFT JOIN instituciones i ON i.id = p.institucion_id", Select: []string{"i.nombre AS institucion_nombre"}},
	},
	SearchColumns: []string{"p.nombre", "p.apellido", "p.documento", "p.email"},
	FilterColumns: map[string]string{
		"institucion_id": "p.institucion_id",
		"especialidad":   "p.especialidad",
		"usuario_id":     "p.usuario_id",
	},
	SortColumns: map[string]string{
		"nombre":            "p.nombre",
		"apellido":          "p.apellido",
		"pines_disponibles": "p.pines_disponibles",
		"created_at":        "p.created_at",
	},
	DefaultSort:    "apellido",
	Writable:       []string{"usuario_id", "nombre", "apellido", "documento", "email", "telefono", "especialidad", "institucion_id", "pines_disponibles", "activo"},
	RequiredFields: []string{"nombre", "apellido", "documento", "email"},
	UniqueField:    "documento",
	EmailFields:    []string{"email"},
	SoftDelete:     true,
	Timestamps:     true,
}

// UserEntity maps the users table.
var UserEntity = EntityConfig{
	Name:           "users",
	Singular:       "user",
	Table:          "users",
	Alias:          "u",
	Columns:        []string{"id", "email", "password_hash", "nombre", "apellido", "documento", "rol", "activo", "last_login", "deleted_at", "created_at", "updated_at"},
	SearchColumns:  []string{"u.email", "u.nombre", "u.apellido"},
	FilterColumns:  map[string]string{"rol": "u.rol", "activo": "u.activo"},
	SortColumns:    map[string]string{"email": "u.email", "nombre": "u.nombre", "apellido": "u.apellido", "created_at": "u.created_at"},
	DefaultSort:    "email",
	Writable:       []string{"email", "password_hash", "nombre", "apellido", "documento", "rol", "activo"},
	RequiredFields: []string{"email", "nombre", "apellido"},
	UniqueField:    "email",
	EmailFields:    []string{"email"},
	SoftDelete:     true,
	Timestamps:     true,
}

// TestSessionEntity maps test_sessions for read-only listing.
var TestSessionEntity = EntityConfig{
	Name:     "test_sessions",
	Singular: "test session",
	Table:    "test_sessions",
	Alias:    "ts",
	Columns: []string{
		"id", "subject_id", "aptitud_id", "usuario_id", "nivel", "fecha_inicio", "fecha_fin",
		"estado", "motivo_cancelacion", "pin_consumido", "created_at", "updated_at",
	},
	Joins: []Join{
		{Clause: "LEFT JOIN subjects s ON s.id = ts.subject_id", Select: []string{"NULLIF(TRIM(CONCAT(s.nombre, ' ', s.apellido)), '') AS subject_nombre"}},
	},
	SearchColumns: []string{"s.nombre", "s.apellido", "s.documento"},
	FilterColumns: map[string]string{
		"subject_id": "ts.subject_id",
		"usuario_id": "ts.usuario_id",
		"estado":     "ts.estado",
		"nivel":      "ts.nivel",
	},
	SortColumns: map[string]string{"fecha_inicio": "ts.fecha_inicio", "estado": "ts.estado"},
	DefaultSort: "fecha_inicio",
}

// ResultEntity maps resultados for read-only listing.
var ResultEntity = EntityConfig{
	Name:          "results",
	Singular:      "result",
	Table:         "resultados",
	Alias:         "r",
	Columns:       []string{"id", "subject_id", "aptitud_code", "puntaje_directo", "percentil", "errores", "concentracion", "tiempo_segundos", "session_id", "created_at"},
	FilterColumns: map[string]string{"subject_id": "r.subject_id", "aptitud_code": "r.aptitud_code", "session_id": "r.session_id"},
	SortColumns:   map[string]string{"created_at": "r.created_at", "aptitud_code": "r.aptitud_code", "percentil": "r.percentil"},
	DefaultSort:   "created_at",
}

package listing

import (
	"strconv"
)

type row struct {
	id        string
	name      string
	estado    string
	edad      int
	psicologo string
}

func (r row) Identifier() string { return r.id }

func (r row) FieldValue(field string) (string, bool) {
	switch field {
	case "id":
		return r.id, true
	case "nombre":
		return r.name, true
	case "estado":
		return r.estado, true
	case "edad":
		return strconv.Itoa(r.edad), true
	case "psicologo_id":
		return r.psicologo, r.psicologo != ""
	}
	return "", false
}

func rows(n int) []row {
	out := make([]row, n)
	for i := range out {
		out[i] = row{id: strconv.Itoa(i + 1), name: "Sujeto " + strconv.Itoa(i+1), estado: "activo", edad: 18 + i}
	}
	return out
}

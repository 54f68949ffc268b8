package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newRowEngine() *Engine {
	return NewEngine(WithSearchFields("nombre", "id"), WithRangeFields("edad"))
}

func TestFilterSearchIsCaseInsensitiveSubstring(t *testing.T) {
	items := []row{{id: "1", name: "Ana García"}, {id: "2", name: "Luis Pérez"}, {id: "3", name: "ANAbel Ruiz"}}
	out := Apply(newRowEngine(), items, Spec{Search: "ana"})
	assert.Equal(t, []row{items[0], items[2]}, out)
}

func TestFilterZeroMatchesAndRoundTrip(t *testing.T) {
	items := rows(10)
	e := newRowEngine()
	spec := Spec{Search: "zzz-no-match"}

	assert.Empty(t, Apply(e, items, spec))
	assert.True(t, spec.HasActiveFilters())

	cleared := Spec{}
	assert.False(t, cleared.HasActiveFilters())
	assert.Equal(t, items, Apply(e, items, cleared))
}

func TestFilterFieldsCombineWithAnd(t *testing.T) {
	items := []row{
		{id: "1", name: "A", estado: "activo", edad: 20},
		{id: "2", name: "B", estado: "inactivo", edad: 20},
		{id: "3", name: "C", estado: "activo", edad: 40},
	}
	out := Apply(newRowEngine(), items, Spec{Fields: map[string]string{"estado": "ACTIVO", "edad": "18-30"}})
	assert.Equal(t, []row{items[0]}, out)
}

func TestFilterRanges(t *testing.T) {
	items := rows(10) // edad 18..27
	e := newRowEngine()

	assert.Len(t, Apply(e, items, Spec{Fields: map[string]string{"edad": "20-22"}}), 3)
	assert.Len(t, Apply(e, items, Spec{Fields: map[string]string{"edad": "25-"}}), 3)
	assert.Len(t, Apply(e, items, Spec{Fields: map[string]string{"edad": "-18"}}), 1)
	// not a range: falls back to exact comparison
	assert.Len(t, Apply(e, items, Spec{Fields: map[string]string{"edad": "21"}}), 1)
}

func TestFilterNullSentinel(t *testing.T) {
	items := []row{{id: "1", psicologo: "p1"}, {id: "2"}, {id: "3", psicologo: "p2"}}
	e := newRowEngine()

	assert.Equal(t, []row{items[1]}, Apply(e, items, Spec{Fields: map[string]string{"psicologo_id": "null"}}))
	assert.Equal(t, []row{items[0]}, Apply(e, items, Spec{Fields: map[string]string{"psicologo_id": "p1"}}))
}

func TestFilterEmptyValuesIgnored(t *testing.T) {
	items := rows(3)
	spec := Spec{Fields: map[string]string{"estado": "  "}}
	assert.False(t, spec.HasActiveFilters())
	assert.Equal(t, items, Apply(newRowEngine(), items, spec))
}

func TestSpecWith(t *testing.T) {
	base := Spec{Search: "x", Fields: map[string]string{"estado": "activo"}}
	next := base.With("genero", "femenino").With("estado", "")
	assert.Equal(t, map[string]string{"genero": "femenino"}, next.Fields)
	assert.Equal(t, "activo", base.Fields["estado"])
}

func TestSortBy(t *testing.T) {
	items := []row{{id: "b", edad: 30}, {id: "a", edad: 9}, {id: "c", edad: 100}}
	asc := SortBy(items, "edad", false)
	assert.Equal(t, []string{"a", "b", "c"}, []string{asc[0].id, asc[1].id, asc[2].id})
	desc := SortBy(items, "id", true)
	assert.Equal(t, []string{"c", "b", "a"}, []string{desc[0].id, desc[1].id, desc[2].id})
	assert.Equal(t, "b", items[0].id)
}

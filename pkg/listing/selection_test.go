package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newRowSelection(items []row, opts ...SelectionOption) *Selection[row] {
	return NewSelection(items, ByIdentifier[row](), opts...)
}

func TestSelectionToggleIsInvolution(t *testing.T) {
	items := rows(6)
	s := newRowSelection(items)

	s.Toggle(items[4])
	assert.Equal(t, []string{"5"}, s.SelectedIDs())
	s.Toggle(items[4])
	assert.Empty(t, s.SelectedIDs())
	assert.False(t, s.HasAny())
}

func TestSelectionSelectAllThenClear(t *testing.T) {
	items := rows(4)
	s := newRowSelection(items)

	s.SelectAll()
	assert.True(t, s.IsAllSelected())
	assert.False(t, s.IsPartial())
	assert.Equal(t, 4, s.Count())

	s.Clear()
	assert.Zero(t, s.Count())
	assert.False(t, s.IsAllSelected())
}

func TestSelectionIsAllSelectedRequiresItems(t *testing.T) {
	s := newRowSelection(nil)
	s.SelectAll()
	assert.False(t, s.IsAllSelected())
}

func TestSelectionRangeIsOrderIndependent(t *testing.T) {
	items := []row{{id: "1"}, {id: "2"}, {id: "3"}}

	forward := newRowSelection(items)
	forward.SelectRange(items[0], items[2])
	backward := newRowSelection(items)
	backward.SelectRange(items[2], items[0])

	assert.Equal(t, []string{"1", "2", "3"}, forward.SelectedIDs())
	assert.Equal(t, forward.SelectedIDs(), backward.SelectedIDs())
}

func TestSelectionRangeMissingEndpointIsNoop(t *testing.T) {
	items := rows(3)
	s := newRowSelection(items)
	s.SelectRange(items[0], row{id: "ghost"})
	assert.Zero(t, s.Count())
}

func TestSelectionMaxCap(t *testing.T) {
	items := rows(5)
	s := newRowSelection(items, WithMaxSelections(2))

	s.Select(items[0])
	s.Select(items[1])
	assert.False(t, s.CanSelectMore())
	assert.False(t, s.Select(items[2]))
	s.Toggle(items[3])
	assert.Equal(t, []string{"1", "2"}, s.SelectedIDs())

	s.Clear()
	s.SelectAll()
	assert.Equal(t, []string{"1", "2"}, s.SelectedIDs())
	assert.True(t, s.IsPartial())
}

func TestSelectionToggleAll(t *testing.T) {
	items := rows(3)
	s := newRowSelection(items)
	s.Select(items[1])

	s.ToggleAll()
	assert.True(t, s.IsAllSelected())
	s.ToggleAll()
	assert.False(t, s.HasAny())
}

func TestSelectionSyncIsExplicit(t *testing.T) {
	items := rows(5)
	s := newRowSelection(items)
	s.SelectMany(items[:3])

	s.SetItems(items[2:])
	assert.Equal(t, 3, s.Count())
	assert.Equal(t, []string{"3", "1", "2"}, s.SelectedIDs())

	removed := s.Sync()
	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"3"}, s.SelectedIDs())
	assert.Equal(t, []row{items[2]}, s.SelectedItems())
}

func TestSelectionSelectIDsIgnoresUnknown(t *testing.T) {
	items := rows(4)
	s := newRowSelection(items)

	applied := s.SelectIDs([]string{"4", "nope", "2"})
	assert.Equal(t, 2, applied)
	assert.Equal(t, []string{"2", "4"}, s.SelectedIDs())

	s.DeselectMany(items[1:2])
	assert.Equal(t, []string{"4"}, s.SelectedIDs())
}

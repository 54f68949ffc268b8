package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("create subject: %w", &pq.Error{Code: CodeUniqueViolation, Constraint: "ux_subjects_documento"})
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUndefinedTable(err))
	assert.Equal(t, "ux_subjects_documento", ConstraintName(err))
}

func TestIsUndefinedTable(t *testing.T) {
	assert.True(t, IsUndefinedTable(&pq.Error{Code: CodeUndefinedTable}))
	assert.False(t, IsUndefinedTable(errors.New("boom")))
	assert.Empty(t, ConstraintName(errors.New("boom")))
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// FeatureRepository inspects the connected schema.
type FeatureRepository struct {
	db *sqlx.DB
}

// NewFeatureRepository constructs a FeatureRepository.
func NewFeatureRepository(db *sqlx.DB) *FeatureRepository {
	return &FeatureRepository{db: db}
}

// RelationExists reports whether a table or view named relation is visible.
func (r *FeatureRepository) RelationExists(ctx context.Context, relation string) (bool, error) {
	var name sql.NullString
	if err := r.db.GetContext(ctx, &name, `SELECT to_regclass($1)::text`, relation); err != nil {
		return false, fmt.Errorf("check relation %s: %w", relation, err)
	}
	return name.Valid, nil
}

// Ping checks database connectivity.
func (r *FeatureRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS entity_states (
		entity_key  TEXT PRIMARY KEY,
		service_id  TEXT NOT NULL,
		state       DOUBLE PRECISION,
		available   BOOLEAN NOT NULL DEFAULT FALSE,
		attributes  JSONB NOT NULL DEFAULT '{}'::jsonb,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS entity_samples (
		entity_key  TEXT NOT NULL,
		sampled_at  TIMESTAMPTZ NOT NULL,
		value       DOUBLE PRECISION NOT NULL,
		attributes  JSONB NOT NULL DEFAULT '{}'::jsonb,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (entity_key, sampled_at)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entity_states_service ON entity_states (service_id)`,
}

// Migrate creates the entity tables if they do not exist
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("[DATABASE] migration %d failed: %w", i, err)
		}
	}
	return nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/youtilitics-worker/internal/db"
)

// Repository handles database operations for sensor entities
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetEntityState returns the stored snapshot for an entity, nil if none exists
func (r *Repository) GetEntityState(ctx context.Context, entityKey string) (*db.EntityState, error) {
	query := `
		SELECT entity_key, service_id, state, available, attributes, updated_at
		FROM entity_states
		WHERE entity_key = $1
	`

	var (
		state db.EntityState
		raw   []byte
	)
	err := r.pool.QueryRow(ctx, query, entityKey).Scan(
		&state.EntityKey,
		&state.ServiceID,
		&state.State,
		&state.Available,
		&raw,
		&state.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entity state: %w", err)
	}

	if err := json.Unmarshal(raw, &state.Attributes); err != nil {
		return nil, fmt.Errorf("failed to decode attributes of %s: %w", entityKey, err)
	}
	return &state, nil
}

// UpsertEntityState writes the snapshot for an entity. A nil state keeps the
// stored value, so a restarted entity with nothing new to report stays known.
func (r *Repository) UpsertEntityState(ctx context.Context, state *db.EntityState) error {
	attrs, err := json.Marshal(state.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}

	query := `
		INSERT INTO entity_states (entity_key, service_id, state, available, attributes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (entity_key) DO UPDATE
		SET service_id = EXCLUDED.service_id,
			state = COALESCE(EXCLUDED.state, entity_states.state),
			available = EXCLUDED.available,
			attributes = EXCLUDED.attributes,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.pool.Exec(ctx, query,
		state.EntityKey,
		state.ServiceID,
		state.State,
		state.Available,
		attrs,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert entity state: %w", err)
	}
	return nil
}

// UpsertSample stores a sample, overwriting any sample at the same timestamp
func (r *Repository) UpsertSample(ctx context.Context, sample *db.EntitySample) error {
	attrs, err := json.Marshal(sample.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}

	query := `
		INSERT INTO entity_samples (entity_key, sampled_at, value, attributes, recorded_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (entity_key, sampled_at) DO UPDATE
		SET value = EXCLUDED.value,
			attributes = EXCLUDED.attributes,
			recorded_at = EXCLUDED.recorded_at
	`

	_, err = r.pool.Exec(ctx, query,
		sample.EntityKey,
		sample.SampledAt,
		sample.Value,
		attrs,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sample: %w", err)
	}
	return nil
}

// GetSamples returns an entity's samples in [from, to), oldest first
func (r *Repository) GetSamples(ctx context.Context, entityKey string, from, to time.Time) ([]db.EntitySample, error) {
	query := `
		SELECT entity_key, sampled_at, value, attributes
		FROM entity_samples
		WHERE entity_key = $1 AND sampled_at >= $2 AND sampled_at < $3
		ORDER BY sampled_at ASC
	`

	rows, err := r.pool.Query(ctx, query, entityKey, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []db.EntitySample
	for rows.Next() {
		var (
			s   db.EntitySample
			raw []byte
		)
		if err := rows.Scan(&s.EntityKey, &s.SampledAt, &s.Value, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if err := json.Unmarshal(raw, &s.Attributes); err != nil {
			return nil, fmt.Errorf("failed to decode sample attributes: %w", err)
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return samples, nil
}

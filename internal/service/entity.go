package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/septivank/youtilitics-worker/internal/db"
	"github.com/septivank/youtilitics-worker/internal/mq"
	"github.com/septivank/youtilitics-worker/internal/reconciler"
)

// StateStore persists entity snapshots and samples
type StateStore interface {
	GetEntityState(ctx context.Context, entityKey string) (*db.EntityState, error)
	UpsertEntityState(ctx context.Context, state *db.EntityState) error
	UpsertSample(ctx context.Context, sample *db.EntitySample) error
}

// SamplePublisher fans emitted samples out to subscribers
type SamplePublisher interface {
	PublishSampleEvent(ctx context.Context, event mq.SampleEvent, routingKey string) error
}

// entityHost connects one reconciler to the database and the broker
type entityHost struct {
	key        string
	store      StateStore
	publisher  SamplePublisher
	routingKey string
	logger     *zap.Logger
}

func (h *entityHost) LoadState(ctx context.Context) (reconciler.Attributes, error) {
	state, err := h.store.GetEntityState(ctx, h.key)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return reconciler.Attributes{}, nil
	}
	return reconciler.Attributes(state.Attributes), nil
}

func (h *entityHost) StoreState(ctx context.Context, snapshot reconciler.Snapshot) error {
	return h.store.UpsertEntityState(ctx, &db.EntityState{
		EntityKey:  snapshot.EntityKey,
		ServiceID:  snapshot.ServiceID,
		State:      snapshot.State,
		Available:  snapshot.Available,
		Attributes: snapshot.Attributes,
	})
}

// EmitSample stores the sample, then publishes it. A failed publish is
// logged and does not fail the emission.
func (h *entityHost) EmitSample(ctx context.Context, sample reconciler.Sample) error {
	err := h.store.UpsertSample(ctx, &db.EntitySample{
		EntityKey:  sample.EntityKey,
		SampledAt:  sample.Timestamp,
		Value:      sample.Value,
		Attributes: sample.Attributes,
	})
	if err != nil {
		return fmt.Errorf("failed to store sample: %w", err)
	}

	if h.publisher == nil {
		return nil
	}

	event := mq.SampleEvent{
		EventID:    uuid.NewString(),
		EntityKey:  sample.EntityKey,
		Value:      sample.Value,
		Timestamp:  sample.Timestamp.Format(time.RFC3339),
		Attributes: sample.Attributes,
	}
	if err := h.publisher.PublishSampleEvent(ctx, event, h.routingKey); err != nil {
		h.logger.Error("failed to publish sample event",
			zap.Error(err),
			zap.String("entity", sample.EntityKey),
		)
	}
	return nil
}

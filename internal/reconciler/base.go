package reconciler

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/septivank/youtilitics-worker/internal/anomaly"
	"github.com/septivank/youtilitics-worker/internal/validator"
	"github.com/septivank/youtilitics-worker/internal/youtilitics"
	"github.com/septivank/youtilitics-worker/tools/timeparser"
)

// base holds what both variants share: identity, collaborators and the
// persisted state. mu guards state; backfillMu serializes backfill runs.
type base struct {
	sensor    Sensor
	source    Source
	host      Host
	validator *validator.Validator
	detector  *anomaly.Detector
	stride    int
	logger    *zap.Logger

	mu         sync.Mutex
	backfillMu sync.Mutex
	state      State
	everCached bool
}

func (b *base) init(sensor Sensor, source Source, host Host, opts Options) {
	stride := opts.Stride
	if stride < 1 {
		stride = DefaultStride
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	b.sensor = sensor
	b.source = source
	b.host = host
	b.validator = validator.NewValidator(sensor.Unit)
	b.detector = opts.Detector
	b.stride = stride
	b.logger = logger.With(zap.String("entity", sensor.Key), zap.String("kind", string(sensor.Kind)))
}

func (b *base) Sensor() Sensor {
	return b.sensor
}

// State returns a copy of the current state
func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.state
	if s.LastReadingID != nil {
		id := *s.LastReadingID
		s.LastReadingID = &id
	}
	return s
}

// Available reports whether readings were ever cached for the service
func (b *base) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.everCached && len(b.source.CachedReadings(b.sensor.ServiceID)) > 0 {
		b.everCached = true
	}
	return b.everCached
}

func (b *base) sinceMark() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.LastTimestamp
}

func (b *base) isBackfilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Backfilled
}

// restoreCommon applies the attributes shared by both variants
func (b *base) restoreCommon(attrs Attributes) {
	if ts, ok := attrs[AttrLastTimestamp]; ok && ts != "" {
		at, err := timeparser.ParseAPITimestamp(ts)
		if err != nil {
			b.logger.Warn("ignoring unparsable restored timestamp for ordering",
				zap.String("last_timestamp", ts),
				zap.Error(err),
			)
		}
		b.state.LastTimestamp = ts
		b.state.lastAt = at
	}
	if v, ok := attrs[AttrBackfilled]; ok {
		backfilled, err := strconv.ParseBool(v)
		if err != nil {
			b.logger.Warn("ignoring invalid restored backfill flag", zap.String("value", v))
		} else {
			b.state.Backfilled = backfilled
		}
	}
}

// acceptUnit reports whether r matches the sensor unit, logging mismatches
func (b *base) acceptUnit(r youtilitics.Reading) bool {
	result := b.validator.ValidateReading(r)
	if !result.IsValid {
		b.logger.Warn("skipping reading", zap.Error(result.Err()))
		return false
	}
	return true
}

func (b *base) filterUnits(sorted []youtilitics.Reading) []youtilitics.Reading {
	return lo.Filter(sorted, func(r youtilitics.Reading, _ int) bool {
		return b.acceptUnit(r)
	})
}

func (b *base) fetchHistory(ctx context.Context) ([]youtilitics.Reading, error) {
	history, err := b.source.FetchReadings(ctx, b.sensor.ServiceID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", b.sensor.Key, err)
	}
	return sortReadings(history), nil
}

// attributes must be called with mu held
func (b *base) attributes() Attributes {
	return describe(b.sensor, b.state.encode(b.sensor.Kind))
}

// emit must be called with mu held
func (b *base) emit(ctx context.Context, value float64, r youtilitics.Reading) error {
	sample := Sample{
		EntityKey:  b.sensor.Key,
		Value:      value,
		Attributes: b.attributes(),
		Timestamp:  r.Timestamp,
	}
	if err := b.host.EmitSample(ctx, sample); err != nil {
		return fmt.Errorf("failed to emit sample for %s: %w", b.sensor.Key, err)
	}
	return nil
}

// persist must be called with mu held
func (b *base) persist(ctx context.Context, state *float64) error {
	if !b.everCached && len(b.source.CachedReadings(b.sensor.ServiceID)) > 0 {
		b.everCached = true
	}
	snapshot := Snapshot{
		EntityKey:  b.sensor.Key,
		ServiceID:  b.sensor.ServiceID,
		State:      state,
		Available:  b.everCached,
		Attributes: b.attributes(),
	}
	if err := b.host.StoreState(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to store state for %s: %w", b.sensor.Key, err)
	}
	return nil
}

package reconciler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/septivank/youtilitics-worker/internal/youtilitics"
)

// Interval reports the most recent reading of a service as a point-in-time value
type Interval struct {
	base
	latest *youtilitics.Reading
}

// NewInterval creates an interval reconciler
func NewInterval(sensor Sensor, source Source, host Host, opts Options) *Interval {
	sensor.Kind = KindInterval
	r := &Interval{}
	r.init(sensor, source, host, opts)
	return r
}

// Latest returns the last applied reading
func (r *Interval) Latest() (youtilitics.Reading, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return youtilitics.Reading{}, false
	}
	return *r.latest, true
}

func (r *Interval) Start(ctx context.Context) (Task, error) {
	attrs, err := r.host.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load state for %s: %w", r.sensor.Key, err)
	}

	r.mu.Lock()
	r.restoreCommon(attrs)
	r.mu.Unlock()

	r.logger.Info("restored interval state",
		zap.String("last_timestamp", r.sinceMark()),
		zap.Bool("backfilled", r.isBackfilled()),
	)

	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	return r.Backfill, nil
}

func (r *Interval) Refresh(ctx context.Context) error {
	readings, err := r.source.FetchReadings(ctx, r.sensor.ServiceID, r.sinceMark())
	if err != nil {
		return fmt.Errorf("failed to fetch readings for %s: %w", r.sensor.Key, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.apply(ctx, readings); err != nil {
		return err
	}
	return r.persist(ctx, r.value())
}

func (r *Interval) Apply(ctx context.Context, readings []youtilitics.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	emitted, err := r.apply(ctx, readings)
	if err != nil || !emitted {
		return err
	}
	return r.persist(ctx, r.value())
}

// apply must be called with mu held
func (r *Interval) apply(ctx context.Context, readings []youtilitics.Reading) (bool, error) {
	if len(readings) == 0 {
		return false, nil
	}

	var last *youtilitics.Reading
	for _, reading := range sortReadings(readings) {
		if !r.acceptUnit(reading) {
			continue
		}
		reading := reading
		r.latest = &reading
		r.state.LastTimestamp = reading.RawTimestamp
		r.state.lastAt = reading.Timestamp
		last = &reading
	}
	if last == nil {
		return false, nil
	}

	if err := r.emit(ctx, last.Reading, *last); err != nil {
		return false, err
	}
	r.logger.Debug("applied readings",
		zap.Int("count", len(readings)),
		zap.String("last_timestamp", r.state.LastTimestamp),
		zap.Float64("value", last.Reading),
	)
	return true, nil
}

// Backfill replays the full history once, one sample per stride readings of each day
func (r *Interval) Backfill(ctx context.Context) error {
	r.backfillMu.Lock()
	defer r.backfillMu.Unlock()

	if r.isBackfilled() {
		return nil
	}

	history, err := r.fetchHistory(ctx)
	if err != nil {
		return err
	}
	accepted := r.filterUnits(history)

	emitted := 0
	for _, day := range groupByDay(accepted) {
		n, err := r.replayDay(ctx, day)
		emitted += n
		if err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Backfilled = true
	r.logger.Info("history backfilled",
		zap.Int("readings", len(accepted)),
		zap.Int("samples", emitted),
	)
	return r.persist(ctx, r.value())
}

func (r *Interval) replayDay(ctx context.Context, day []youtilitics.Reading) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	emitted := 0
	for i, reading := range day {
		if !sampled(i, r.stride) {
			continue
		}
		if err := r.emit(ctx, reading.Reading, reading); err != nil {
			return emitted, err
		}
		emitted++
	}

	// Live updates may already have moved past this day
	last := day[len(day)-1]
	if r.state.advance(last.RawTimestamp, last.Timestamp) {
		r.latest = &last
	}
	return emitted, nil
}

// value must be called with mu held
func (r *Interval) value() *float64 {
	if r.latest == nil {
		return nil
	}
	v := r.latest.Reading
	return &v
}

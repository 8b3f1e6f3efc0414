package reconciler

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/septivank/youtilitics-worker/internal/anomaly"
	"github.com/septivank/youtilitics-worker/internal/youtilitics"
)

const spikeWindowSize = 96

// Meter reports a monotonically increasing running total of a service's readings.
// Readings are deduplicated by id, so overlapping fetch windows are harmless.
type Meter struct {
	base
	window *anomaly.Window
}

// NewMeter creates a cumulative meter reconciler
func NewMeter(sensor Sensor, source Source, host Host, opts Options) *Meter {
	sensor.Kind = KindMeter
	m := &Meter{window: anomaly.NewWindow(spikeWindowSize)}
	m.init(sensor, source, host, opts)
	return m
}

func (m *Meter) Start(ctx context.Context) (Task, error) {
	attrs, err := m.host.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load state for %s: %w", m.sensor.Key, err)
	}

	m.mu.Lock()
	m.restore(attrs)
	total := m.state.Total
	m.mu.Unlock()

	m.logger.Info("restored meter state",
		zap.String("last_timestamp", m.sinceMark()),
		zap.Float64("cumulative_total", total),
		zap.Bool("backfilled", m.isBackfilled()),
	)

	if err := m.Refresh(ctx); err != nil {
		return nil, err
	}
	return m.Backfill, nil
}

// restore must be called with mu held. The restored total only replaces the
// in-memory one when it is strictly greater.
func (m *Meter) restore(attrs Attributes) {
	m.restoreCommon(attrs)

	if v, ok := attrs[AttrCumulativeTotal]; ok {
		total, err := strconv.ParseFloat(v, 64)
		switch {
		case err != nil:
			m.logger.Warn("ignoring invalid restored cumulative total",
				zap.String("value", v),
				zap.Error(err),
			)
		case total > m.state.Total:
			m.state.Total = total
		}
	}

	if v, ok := attrs[AttrLastReadingID]; ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			m.logger.Warn("ignoring invalid restored reading id", zap.String("value", v))
		} else {
			m.state.LastReadingID = &id
		}
	}
}

func (m *Meter) Refresh(ctx context.Context) error {
	readings, err := m.source.FetchReadings(ctx, m.sensor.ServiceID, m.sinceMark())
	if err != nil {
		return fmt.Errorf("failed to fetch readings for %s: %w", m.sensor.Key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.apply(ctx, readings); err != nil {
		return err
	}
	return m.persist(ctx, m.value())
}

func (m *Meter) Apply(ctx context.Context, readings []youtilitics.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	emitted, err := m.apply(ctx, readings)
	if err != nil || !emitted {
		return err
	}
	return m.persist(ctx, m.value())
}

// apply must be called with mu held
func (m *Meter) apply(ctx context.Context, readings []youtilitics.Reading) (bool, error) {
	if len(readings) == 0 {
		return false, nil
	}

	var last *youtilitics.Reading
	for _, reading := range sortReadings(readings) {
		if m.processed(reading.ID) {
			continue
		}
		if !m.accept(reading) {
			continue
		}
		reading := reading
		m.state.Total += reading.Reading
		m.state.LastTimestamp = reading.RawTimestamp
		m.state.lastAt = reading.Timestamp
		m.state.LastReadingID = &reading.ID
		last = &reading
	}
	if last == nil {
		return false, nil
	}

	if err := m.emit(ctx, m.state.Total, *last); err != nil {
		return false, err
	}
	m.logger.Debug("applied readings",
		zap.Int("count", len(readings)),
		zap.Int64("last_reading_id", last.ID),
		zap.Float64("cumulative_total", m.state.Total),
	)
	return true, nil
}

// processed must be called with mu held
func (m *Meter) processed(id int64) bool {
	return m.state.LastReadingID != nil && id <= *m.state.LastReadingID
}

// accept checks unit and anomaly rules for a reading that would be added to the total
func (m *Meter) accept(reading youtilitics.Reading) bool {
	if !m.acceptUnit(reading) {
		return false
	}
	if m.detector == nil {
		return true
	}

	result := m.detector.Check(reading.Reading, m.window)
	switch {
	case result.Reject():
		m.logger.Warn("skipping reading",
			zap.Int64("reading_id", reading.ID),
			zap.String("reason", result.Reason),
		)
		return false
	case result.Kind == anomaly.Spike:
		m.logger.Warn("reading looks anomalous",
			zap.Int64("reading_id", reading.ID),
			zap.String("reason", result.Reason),
		)
	}
	m.window.Push(reading.Reading)
	return true
}

// Backfill replays the full history once. Each emitted sample is the running
// total as of its reading, so the replayed curve never decreases.
func (m *Meter) Backfill(ctx context.Context) error {
	m.backfillMu.Lock()
	defer m.backfillMu.Unlock()

	if m.isBackfilled() {
		return nil
	}

	history, err := m.fetchHistory(ctx)
	if err != nil {
		return err
	}
	accepted := m.acceptHistory(history)

	running := 0.0
	emitted := 0
	for _, day := range groupByDay(accepted) {
		n, err := m.replayDay(ctx, day, &running)
		emitted += n
		if err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Backfilled = true
	m.logger.Info("history backfilled",
		zap.Int("readings", len(accepted)),
		zap.Int("samples", emitted),
		zap.Float64("history_total", running),
		zap.Float64("cumulative_total", m.state.Total),
	)
	return m.persist(ctx, m.value())
}

// acceptHistory drops unit mismatches, negative values and repeated ids from sorted history
func (m *Meter) acceptHistory(history []youtilitics.Reading) []youtilitics.Reading {
	accepted := make([]youtilitics.Reading, 0, len(history))
	var maxID *int64
	for _, reading := range m.filterUnits(history) {
		if maxID != nil && reading.ID <= *maxID {
			continue
		}
		if reading.Reading < 0 {
			m.logger.Warn("skipping negative reading in history", zap.Int64("reading_id", reading.ID))
			continue
		}
		id := reading.ID
		maxID = &id
		accepted = append(accepted, reading)
	}
	return accepted
}

func (m *Meter) replayDay(ctx context.Context, day []youtilitics.Reading, running *float64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	emitted := 0
	for i, reading := range day {
		*running += reading.Reading
		if !sampled(i, m.stride) {
			continue
		}
		if err := m.emit(ctx, *running, reading); err != nil {
			return emitted, err
		}
		emitted++
	}

	// Never roll back what live updates already advanced
	last := day[len(day)-1]
	if m.state.LastReadingID == nil || last.ID > *m.state.LastReadingID {
		id := last.ID
		m.state.LastReadingID = &id
		m.state.advance(last.RawTimestamp, last.Timestamp)
	}
	if *running > m.state.Total {
		m.state.Total = *running
	}
	return emitted, nil
}

// value must be called with mu held
func (m *Meter) value() *float64 {
	if m.state.LastReadingID == nil && m.state.Total == 0 {
		return nil
	}
	v := m.state.Total
	return &v
}

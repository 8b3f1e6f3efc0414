// Package reconciler merges newly fetched readings into per-entity sensor state
// and replays reading history into a time-series sink.
//
// Two variants exist per service: Interval reports the latest reading as-is,
// Meter reports a running total deduplicated by reading id.
package reconciler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/septivank/youtilitics-worker/internal/anomaly"
	"github.com/septivank/youtilitics-worker/internal/youtilitics"
)

// Kind selects the reconciler variant
type Kind string

const (
	KindInterval Kind = "interval"
	KindMeter    Kind = "meter"
)

// Sensor describes one entity backed by a reconciler
type Sensor struct {
	Key         string
	ServiceID   string
	Name        string
	Category    string
	Unit        string
	DeviceClass string
	Icon        string
	Kind        Kind
}

// StateClass is the externally reported state kind
func (s Sensor) StateClass() string {
	if s.Kind == KindMeter {
		return "total_increasing"
	}
	return "measurement"
}

// Sample is one timestamped state value destined for the time-series sink
type Sample struct {
	EntityKey  string
	Value      float64
	Attributes Attributes
	Timestamp  time.Time
}

// Snapshot is the restorable entity state written after every emission
type Snapshot struct {
	EntityKey  string
	ServiceID  string
	State      *float64
	Available  bool
	Attributes Attributes
}

// Host persists entity state and receives emitted samples
type Host interface {
	LoadState(ctx context.Context) (Attributes, error)
	StoreState(ctx context.Context, snapshot Snapshot) error
	EmitSample(ctx context.Context, sample Sample) error
}

// Source fetches readings for a service
type Source interface {
	FetchReadings(ctx context.Context, serviceID, since string) ([]youtilitics.Reading, error)
	CachedReadings(serviceID string) []youtilitics.Reading
}

// Task is deferred work the caller schedules on its own runner
type Task func(ctx context.Context) error

// Reconciler is implemented by Interval and Meter
type Reconciler interface {
	Sensor() Sensor
	// Start restores persisted state, applies readings newer than the restored
	// high-water mark and returns the history backfill for the caller to schedule.
	Start(ctx context.Context) (Task, error)
	// Refresh fetches readings newer than the high-water mark and applies them.
	Refresh(ctx context.Context) error
	// Apply merges a batch of readings and emits at most one sample.
	Apply(ctx context.Context, readings []youtilitics.Reading) error
	// Backfill replays the full history once.
	Backfill(ctx context.Context) error
	Available() bool
	State() State
}

// Options tunes reconciler behavior
type Options struct {
	// Stride emits every Stride-th reading of a day during backfill.
	Stride   int
	Detector *anomaly.Detector
	Logger   *zap.Logger
}

// DefaultStride is the backfill downsampling factor
const DefaultStride = 4

// New builds the reconciler variant the sensor asks for
func New(sensor Sensor, source Source, host Host, opts Options) Reconciler {
	if sensor.Kind == KindMeter {
		return NewMeter(sensor, source, host, opts)
	}
	return NewInterval(sensor, source, host, opts)
}

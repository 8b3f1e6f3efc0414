package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/septivank/youtilitics-worker/internal/youtilitics"
	"github.com/septivank/youtilitics-worker/tools/timeparser"
)

type fakeHost struct {
	mu        sync.Mutex
	attrs     Attributes
	loadErr   error
	emitErr   error
	samples   []Sample
	snapshots []Snapshot
}

func (h *fakeHost) LoadState(ctx context.Context) (Attributes, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loadErr != nil {
		return nil, h.loadErr
	}
	return h.attrs, nil
}

func (h *fakeHost) StoreState(ctx context.Context, snapshot Snapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshots = append(h.snapshots, snapshot)
	return nil
}

func (h *fakeHost) EmitSample(ctx context.Context, sample Sample) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.emitErr != nil {
		return h.emitErr
	}
	h.samples = append(h.samples, sample)
	return nil
}

func (h *fakeHost) values() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]float64, len(h.samples))
	for i, s := range h.samples {
		out[i] = s.Value
	}
	return out
}

func (h *fakeHost) lastSnapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshots[len(h.snapshots)-1]
}

// fakeSource serves readings newer than since, like the API's last filter
type fakeSource struct {
	mu       sync.Mutex
	readings []youtilitics.Reading
	fetchErr error
	sinces   []string
	cache    map[string][]youtilitics.Reading
}

func (s *fakeSource) FetchReadings(ctx context.Context, serviceID, since string) ([]youtilitics.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinces = append(s.sinces, since)
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}

	var out []youtilitics.Reading
	if since == "" {
		out = append(out, s.readings...)
	} else {
		mark, err := timeparser.ParseAPITimestamp(since)
		if err != nil {
			return nil, err
		}
		for _, r := range s.readings {
			if r.Timestamp.After(mark) {
				out = append(out, r)
			}
		}
	}

	if s.cache == nil {
		s.cache = make(map[string][]youtilitics.Reading)
	}
	s.cache[serviceID] = out
	return out, nil
}

func (s *fakeSource) CachedReadings(serviceID string) []youtilitics.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache[serviceID]
}

func (s *fakeSource) historyFetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, since := range s.sinces {
		if since == "" {
			n++
		}
	}
	return n
}

func reading(t *testing.T, id int64, ts string, value float64, unit string) youtilitics.Reading {
	t.Helper()
	at, err := timeparser.ParseAPITimestamp(ts)
	require.NoError(t, err)
	return youtilitics.Reading{
		ID:           id,
		Timestamp:    at,
		RawTimestamp: ts,
		Reading:      value,
		Unit:         unit,
		RawReading:   value,
		RawUnit:      unit,
	}
}

// sameDay builds n readings of value 1 kWh, 15 minutes apart, starting at midnight
func sameDay(n int, firstID int64, day time.Time) []youtilitics.Reading {
	out := make([]youtilitics.Reading, n)
	for i := range out {
		at := day.Add(time.Duration(i) * 15 * time.Minute)
		out[i] = youtilitics.Reading{
			ID:           firstID + int64(i),
			Timestamp:    at,
			RawTimestamp: at.Format("2006-01-02T15:04:05"),
			Reading:      1,
			Unit:         youtilitics.UnitKilowattHour,
		}
	}
	return out
}

func electricity(kind Kind) Sensor {
	key := "youtilitics.svc_1"
	if kind == KindMeter {
		key += "_total"
	}
	return Sensor{
		Key:         key,
		ServiceID:   "svc-1",
		Name:        "Electricity with City Power",
		Category:    youtilitics.CategoryElectricity,
		Unit:        youtilitics.UnitKilowattHour,
		DeviceClass: "energy",
		Icon:        "mdi:flash",
		Kind:        kind,
	}
}

package reconciler

import (
	"strconv"
	"time"
)

// Persisted attribute keys
const (
	AttrLastTimestamp   = "last_timestamp"
	AttrBackfilled      = "history_backfilled"
	AttrCumulativeTotal = "cumulative_total"
	AttrLastReadingID   = "last_processed_reading_id"

	AttrUnit        = "unit_of_measurement"
	AttrDeviceClass = "device_class"
	AttrStateClass  = "state_class"
	AttrName        = "friendly_name"
	AttrIcon        = "icon"
)

// Attributes is the string key/value map persisted per entity
type Attributes map[string]string

// State is the reconciler's persisted scalar state
type State struct {
	// LastTimestamp is the high-water mark, as the API formatted it.
	LastTimestamp string
	// LastReadingID is only tracked by meters.
	LastReadingID *int64
	// Total is only tracked by meters.
	Total      float64
	Backfilled bool

	lastAt time.Time
}

// advance moves the high-water mark to ts if it is not older than the current one
func (s *State) advance(raw string, at time.Time) bool {
	if !s.lastAt.IsZero() && at.Before(s.lastAt) {
		return false
	}
	s.LastTimestamp = raw
	s.lastAt = at
	return true
}

func (s State) encode(kind Kind) Attributes {
	attrs := Attributes{
		AttrBackfilled: strconv.FormatBool(s.Backfilled),
	}
	if s.LastTimestamp != "" {
		attrs[AttrLastTimestamp] = s.LastTimestamp
	}
	if kind == KindMeter {
		attrs[AttrCumulativeTotal] = strconv.FormatFloat(s.Total, 'f', -1, 64)
		if s.LastReadingID != nil {
			attrs[AttrLastReadingID] = strconv.FormatInt(*s.LastReadingID, 10)
		}
	}
	return attrs
}

func describe(sensor Sensor, attrs Attributes) Attributes {
	attrs[AttrUnit] = sensor.Unit
	attrs[AttrStateClass] = sensor.StateClass()
	if sensor.DeviceClass != "" {
		attrs[AttrDeviceClass] = sensor.DeviceClass
	}
	if sensor.Name != "" {
		attrs[AttrName] = sensor.Name
	}
	if sensor.Icon != "" {
		attrs[AttrIcon] = sensor.Icon
	}
	return attrs
}

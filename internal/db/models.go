package db

import (
	"time"
)

// EntityState is the restorable snapshot of one sensor entity
type EntityState struct {
	EntityKey  string
	ServiceID  string
	State      *float64
	Available  bool
	Attributes map[string]string
	UpdatedAt  time.Time
}

// EntitySample is one historical state value of a sensor entity
type EntitySample struct {
	EntityKey  string
	SampledAt  time.Time
	Value      float64
	Attributes map[string]string
}

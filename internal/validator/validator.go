package validator

import (
	"errors"
	"fmt"

	"github.com/septivank/youtilitics-worker/internal/youtilitics"
)

// ErrUnitMismatch marks a reading whose unit differs from the sensor's unit
var ErrUnitMismatch = errors.New("unit mismatch")

// ValidationResult holds validation outcome
type ValidationResult struct {
	IsValid       bool
	AnomalyReason string
}

// Err returns the validation failure as an error, nil when valid
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnitMismatch, r.AnomalyReason)
}

// Validator checks readings against the unit a sensor is configured with
type Validator struct {
	unit string
}

// NewValidator creates a new validator for the given sensor unit
func NewValidator(unit string) *Validator {
	return &Validator{unit: unit}
}

// Unit returns the configured sensor unit
func (v *Validator) Unit() string {
	return v.unit
}

// ValidateReading validates a single reading
func (v *Validator) ValidateReading(reading youtilitics.Reading) ValidationResult {
	if reading.Unit != v.unit {
		return ValidationResult{
			IsValid:       false,
			AnomalyReason: fmt.Sprintf("reading %d has unit %q, sensor expects %q", reading.ID, reading.Unit, v.unit),
		}
	}
	return ValidationResult{IsValid: true}
}

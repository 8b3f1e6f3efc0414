package youtilitics

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/septivank/youtilitics-worker/tools/timeparser"
)

// Service categories the API reports type codes for
const (
	CategoryElectricity = "Electricity"
	CategoryGas         = "Gas"
	CategoryWater       = "Water"
)

// Units as normalized by Reading decoding
const (
	UnitKilowattHour = "kWh"
	UnitLiters       = "L"
	UnitCubicMeters  = "m³"
)

// ServiceType maps service categories to provider-assigned type codes
type ServiceType struct {
	Electricity *int `json:"Electricity,omitempty"`
	Gas         *int `json:"Gas,omitempty"`
	Water       *int `json:"Water,omitempty"`
}

// Category returns the category name for a type code
func (s ServiceType) Category(code int) (string, bool) {
	switch {
	case s.Electricity != nil && *s.Electricity == code:
		return CategoryElectricity, true
	case s.Gas != nil && *s.Gas == code:
		return CategoryGas, true
	case s.Water != nil && *s.Water == code:
		return CategoryWater, true
	}
	return "", false
}

// Utility represents a utility provider
type Utility struct {
	ID                  string  `json:"id"`
	Slug                string  `json:"slug"`
	Name                string  `json:"name"`
	Services            []int   `json:"services"`
	URL                 *string `json:"url,omitempty"`
	URLHelp             *string `json:"url_help,omitempty"`
	Logo                *string `json:"logo,omitempty"`
	SupportsAPISync     *bool   `json:"supports_api_sync,omitempty"`
	SupportsGreenButton *bool   `json:"supports_green_button,omitempty"`
	GBAuthorizationURL  *string `json:"gb_authorization_url,omitempty"`
}

// Service represents a single metered service, e.g. an electricity meter
type Service struct {
	ID         string     `json:"id"`
	Type       int        `json:"type"`
	RemoteID   string     `json:"remote_id"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// Account owns a utility and its services
type Account struct {
	ID        string     `json:"id"`
	Utility   Utility    `json:"utility"`
	Services  []Service  `json:"services"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Reading is one meter sample. Reading and Unit are normalized at decode time.
type Reading struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"-"`
	RawTimestamp string    `json:"timestamp"`
	Reading      float64   `json:"reading"`
	Unit         string    `json:"unit"`
	RawReading   float64   `json:"raw_reading"`
	RawUnit      string    `json:"raw_unit"`
	Cost         float64   `json:"cost"`
}

type wireService struct {
	ID         *string `json:"id"`
	Type       *int    `json:"type"`
	RemoteID   string  `json:"remote_id"`
	LastSyncAt *string `json:"last_sync_at"`
	CreatedAt  *string `json:"created_at"`
	UpdatedAt  *string `json:"updated_at"`
}

type wireAccount struct {
	ID        *string    `json:"id"`
	Utility   *Utility   `json:"utility"`
	Services  *[]Service `json:"services"`
	CreatedAt *string    `json:"created_at"`
	UpdatedAt *string    `json:"updated_at"`
}

type wireReading struct {
	ID         *int64   `json:"id"`
	Timestamp  *string  `json:"timestamp"`
	Reading    *float64 `json:"reading"`
	Unit       *string  `json:"unit"`
	RawReading float64  `json:"raw_reading"`
	RawUnit    string   `json:"raw_unit"`
	Cost       float64  `json:"cost"`
}

// UnmarshalJSON decodes a service and parses its sync timestamps
func (s *Service) UnmarshalJSON(data []byte) error {
	var w wireService
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.ID == nil {
		return missingField("service", "id")
	}
	if w.Type == nil {
		return missingField("service", "type")
	}

	var err error
	*s = Service{ID: *w.ID, Type: *w.Type, RemoteID: w.RemoteID}
	if s.LastSyncAt, err = optionalTime(w.LastSyncAt); err != nil {
		return fmt.Errorf("service %s last_sync_at: %w", s.ID, err)
	}
	if s.CreatedAt, err = optionalTime(w.CreatedAt); err != nil {
		return fmt.Errorf("service %s created_at: %w", s.ID, err)
	}
	if s.UpdatedAt, err = optionalTime(w.UpdatedAt); err != nil {
		return fmt.Errorf("service %s updated_at: %w", s.ID, err)
	}
	return nil
}

// UnmarshalJSON decodes an account with its utility and services
func (a *Account) UnmarshalJSON(data []byte) error {
	var w wireAccount
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.ID == nil {
		return missingField("account", "id")
	}
	if w.Utility == nil {
		return missingField("account", "utility")
	}
	if w.Services == nil {
		return missingField("account", "services")
	}

	var err error
	*a = Account{ID: *w.ID, Utility: *w.Utility, Services: *w.Services}
	if a.CreatedAt, err = optionalTime(w.CreatedAt); err != nil {
		return fmt.Errorf("account %s created_at: %w", a.ID, err)
	}
	if a.UpdatedAt, err = optionalTime(w.UpdatedAt); err != nil {
		return fmt.Errorf("account %s updated_at: %w", a.ID, err)
	}
	return nil
}

// UnmarshalJSON decodes a reading and applies unit normalization
func (r *Reading) UnmarshalJSON(data []byte) error {
	var w wireReading
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.ID == nil:
		return missingField("reading", "id")
	case w.Timestamp == nil:
		return missingField("reading", "timestamp")
	case w.Reading == nil:
		return missingField("reading", "reading")
	case w.Unit == nil:
		return missingField("reading", "unit")
	}

	ts, err := timeparser.ParseAPITimestamp(*w.Timestamp)
	if err != nil {
		return fmt.Errorf("reading %d: %w", *w.ID, err)
	}

	value, unit := NormalizeUnit(*w.Reading, *w.Unit, w.RawUnit)
	*r = Reading{
		ID:           *w.ID,
		Timestamp:    ts,
		RawTimestamp: *w.Timestamp,
		Reading:      value,
		Unit:         unit,
		RawReading:   w.RawReading,
		RawUnit:      w.RawUnit,
		Cost:         w.Cost,
	}
	return nil
}

// NormalizeUnit converts liter readings whose raw unit is therms into cubic meters.
// Every other combination passes through unchanged.
func NormalizeUnit(value float64, unit, rawUnit string) (float64, string) {
	if unit == UnitLiters && strings.EqualFold(rawUnit, "therm") {
		return value / 1000, UnitCubicMeters
	}
	return value, unit
}

func optionalTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := timeparser.ParseAPITimestamp(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func missingField(object, field string) error {
	return fmt.Errorf("%s: missing required field %q", object, field)
}

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/septivank/youtilitics-worker/internal/reconciler"
	"github.com/septivank/youtilitics-worker/internal/youtilitics"
)

func intPtr(v int) *int { return &v }

func TestEntityKey(t *testing.T) {
	assert.Equal(t, "youtilitics.ab_12_cd", EntityKey("ab-12-cd", reconciler.KindInterval))
	assert.Equal(t, "youtilitics.ab_12_cd_total", EntityKey("ab-12-cd", reconciler.KindMeter))
}

func TestResolveSensors(t *testing.T) {
	types := youtilitics.ServiceType{Electricity: intPtr(1), Gas: intPtr(2), Water: intPtr(3)}
	accounts := []youtilitics.Account{
		{
			ID:      "acc-1",
			Utility: youtilitics.Utility{Name: "City Power"},
			Services: []youtilitics.Service{
				{ID: "svc-e", Type: 1},
				{ID: "svc-x", Type: 42},
			},
		},
		{
			ID:       "acc-2",
			Utility:  youtilitics.Utility{Name: "Gas Co"},
			Services: []youtilitics.Service{{ID: "svc-g", Type: 2}},
		},
	}

	sensors := ResolveSensors(accounts, types, zap.NewNop())
	require.Len(t, sensors, 4)

	interval, meter := sensors[0], sensors[1]
	assert.Equal(t, "youtilitics.svc_e", interval.Key)
	assert.Equal(t, reconciler.KindInterval, interval.Kind)
	assert.Equal(t, "Electricity with City Power", interval.Name)
	assert.Equal(t, youtilitics.UnitKilowattHour, interval.Unit)
	assert.Equal(t, "energy", interval.DeviceClass)
	assert.Equal(t, "measurement", interval.StateClass())

	assert.Equal(t, "youtilitics.svc_e_total", meter.Key)
	assert.Equal(t, "total_increasing", meter.StateClass())

	gas := sensors[2]
	assert.Equal(t, "Gas with Gas Co", gas.Name)
	assert.Equal(t, youtilitics.UnitCubicMeters, gas.Unit)
	assert.Equal(t, "mdi:gas-cylinder", gas.Icon)
}

func TestResolveSensors_MissingCategory(t *testing.T) {
	accounts := []youtilitics.Account{{
		Utility:  youtilitics.Utility{Name: "Water Works"},
		Services: []youtilitics.Service{{ID: "svc-w", Type: 3}},
	}}

	assert.Empty(t, ResolveSensors(accounts, youtilitics.ServiceType{Electricity: intPtr(1)}, zap.NewNop()))
}

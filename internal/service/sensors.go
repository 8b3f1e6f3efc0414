package service

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/septivank/youtilitics-worker/internal/reconciler"
	"github.com/septivank/youtilitics-worker/internal/youtilitics"
)

// Domain prefixes every entity key
const Domain = "youtilitics"

type profile struct {
	unit        string
	deviceClass string
	icon        string
}

var profiles = map[string]profile{
	youtilitics.CategoryElectricity: {unit: youtilitics.UnitKilowattHour, deviceClass: "energy", icon: "mdi:flash"},
	youtilitics.CategoryGas:         {unit: youtilitics.UnitCubicMeters, deviceClass: "gas", icon: "mdi:gas-cylinder"},
	youtilitics.CategoryWater:       {unit: youtilitics.UnitLiters, deviceClass: "water", icon: "mdi:water"},
}

// EntityKey builds the entity key for a service and reconciler kind
func EntityKey(serviceID string, kind reconciler.Kind) string {
	key := Domain + "." + strings.ReplaceAll(serviceID, "-", "_")
	if kind == reconciler.KindMeter {
		key += "_total"
	}
	return key
}

// ResolveSensors returns an interval and a meter sensor for every service
// whose type code maps to a known category. Other services are skipped.
func ResolveSensors(accounts []youtilitics.Account, types youtilitics.ServiceType, logger *zap.Logger) []reconciler.Sensor {
	var sensors []reconciler.Sensor
	for _, account := range accounts {
		for _, svc := range account.Services {
			category, ok := types.Category(svc.Type)
			if !ok {
				logger.Debug("skipping service with unknown type",
					zap.String("service_id", svc.ID),
					zap.Int("type", svc.Type),
				)
				continue
			}
			p := profiles[category]
			name := fmt.Sprintf("%s with %s", category, account.Utility.Name)

			for _, kind := range []reconciler.Kind{reconciler.KindInterval, reconciler.KindMeter} {
				sensors = append(sensors, reconciler.Sensor{
					Key:         EntityKey(svc.ID, kind),
					ServiceID:   svc.ID,
					Name:        name,
					Category:    category,
					Unit:        p.unit,
					DeviceClass: p.deviceClass,
					Icon:        p.icon,
					Kind:        kind,
				})
			}
		}
	}
	return sensors
}

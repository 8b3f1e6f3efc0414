package logging

import (
	"go.uber.org/zap"
)

// NewLogger creates a new structured logger
func NewLogger(serviceName string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.InitialFields = map[string]interface{}{
		"service": serviceName,
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return logger, nil
}

// WithCycleID returns a logger with cycle_id field
func WithCycleID(logger *zap.Logger, cycleID string) *zap.Logger {
	return logger.With(zap.String("cycle_id", cycleID))
}

// WithEntity returns a logger scoped to one sensor entity
func WithEntity(logger *zap.Logger, entityKey, serviceID string) *zap.Logger {
	return logger.With(zap.String("entity", entityKey), zap.String("service_id", serviceID))
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	Youtilitics YoutiliticsConfig
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Polling     PollingConfig
	Anomaly     AnomalyConfig
}

// YoutiliticsConfig holds API endpoint and OAuth2 credential settings
type YoutiliticsConfig struct {
	APIURL       string
	AuthorizeURL string
	TokenURL     string
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
	Scopes       []string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds RabbitMQ connection and exchange settings
type RabbitMQConfig struct {
	URL               string
	SampleExchange    string
	SampleRoutingKey  string
	ControlExchange   string
	RefreshQueue      string
	RefreshRoutingKey string
	DLQQueue          string
	PrefetchCount     int
}

// PollingConfig holds coordinator cadence and backfill settings
type PollingConfig struct {
	Interval            time.Duration
	BackfillStride      int
	BackfillConcurrency int
}

// AnomalyConfig holds anomaly detection settings
type AnomalyConfig struct {
	SpikeThreshold            float64
	MinDataPointsForDetection int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "youtilitics-worker"),
		Youtilitics: YoutiliticsConfig{
			APIURL:       getEnv("YOUTILITICS_API_URL", "https://youtilitics.com/api/v1"),
			AuthorizeURL: getEnv("YOUTILITICS_AUTHORIZE_URL", "https://youtilitics.com/authorize"),
			TokenURL:     getEnv("YOUTILITICS_TOKEN_URL", "https://youtilitics.com/token"),
			ClientID:     getEnv("YOUTILITICS_CLIENT_ID", ""),
			ClientSecret: getEnv("YOUTILITICS_CLIENT_SECRET", ""),
			AccessToken:  getEnv("YOUTILITICS_ACCESS_TOKEN", ""),
			RefreshToken: getEnv("YOUTILITICS_REFRESH_TOKEN", ""),
			Scopes:       getEnvAsList("YOUTILITICS_SCOPES", []string{"email", "download_data"}),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:               getEnv("RABBITMQ_URL", ""),
			SampleExchange:    getEnv("RABBITMQ_SAMPLE_EXCHANGE", "youtilitics.samples.exchange"),
			SampleRoutingKey:  getEnv("RABBITMQ_SAMPLE_ROUTING_KEY", "sensor.sample.emitted"),
			ControlExchange:   getEnv("RABBITMQ_CONTROL_EXCHANGE", "youtilitics.control.exchange"),
			RefreshQueue:      getEnv("RABBITMQ_REFRESH_QUEUE", "youtilitics.refresh.queue"),
			RefreshRoutingKey: getEnv("RABBITMQ_REFRESH_ROUTING_KEY", "coordinator.refresh.requested"),
			DLQQueue:          getEnv("RABBITMQ_DLQ_QUEUE", "youtilitics.refresh.dlq"),
			PrefetchCount:     getEnvAsInt("RABBITMQ_PREFETCH", 1),
		},
		Polling: PollingConfig{
			Interval:            getEnvAsDuration("POLL_INTERVAL", 24*time.Hour),
			BackfillStride:      getEnvAsInt("BACKFILL_STRIDE", 4),
			BackfillConcurrency: getEnvAsInt("BACKFILL_CONCURRENCY", 2),
		},
		Anomaly: AnomalyConfig{
			SpikeThreshold:            getEnvAsFloat("ANOMALY_SPIKE_THRESHOLD", 10.0),
			MinDataPointsForDetection: getEnvAsInt("ANOMALY_MIN_DATA_POINTS", 8),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}
	if err := cfg.Youtilitics.Validate(); err != nil {
		return nil, err
	}
	if cfg.Polling.Interval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive, got %s", cfg.Polling.Interval)
	}
	if cfg.Polling.BackfillStride < 1 {
		return nil, fmt.Errorf("BACKFILL_STRIDE must be at least 1, got %d", cfg.Polling.BackfillStride)
	}

	return cfg, nil
}

// LoadAPI loads only the API settings, for tools that don't need the database or broker.
func LoadAPI() (*YoutiliticsConfig, error) {
	cfg, err := Load()
	if err == nil {
		return &cfg.Youtilitics, nil
	}

	api := &YoutiliticsConfig{
		APIURL:       getEnv("YOUTILITICS_API_URL", "https://youtilitics.com/api/v1"),
		AuthorizeURL: getEnv("YOUTILITICS_AUTHORIZE_URL", "https://youtilitics.com/authorize"),
		TokenURL:     getEnv("YOUTILITICS_TOKEN_URL", "https://youtilitics.com/token"),
		ClientID:     getEnv("YOUTILITICS_CLIENT_ID", ""),
		ClientSecret: getEnv("YOUTILITICS_CLIENT_SECRET", ""),
		AccessToken:  getEnv("YOUTILITICS_ACCESS_TOKEN", ""),
		RefreshToken: getEnv("YOUTILITICS_REFRESH_TOKEN", ""),
		Scopes:       getEnvAsList("YOUTILITICS_SCOPES", []string{"email", "download_data"}),
	}
	if err := api.Validate(); err != nil {
		return nil, err
	}
	return api, nil
}

// Validate checks that some usable credential is configured
func (c YoutiliticsConfig) Validate() error {
	if c.AccessToken == "" && c.RefreshToken == "" {
		return fmt.Errorf("YOUTILITICS_ACCESS_TOKEN or YOUTILITICS_REFRESH_TOKEN is required but not set in environment variables")
	}
	if c.RefreshToken != "" && c.ClientID == "" {
		return fmt.Errorf("YOUTILITICS_CLIENT_ID is required when YOUTILITICS_REFRESH_TOKEN is set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	return strings.Fields(strings.ReplaceAll(valueStr, ",", " "))
}

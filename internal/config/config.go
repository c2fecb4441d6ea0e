package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"supportbridge/internal/constants"
	"supportbridge/internal/models"
)

var (
	ErrMissingTransportURL = models.ConfigError{Message: "missing transport API URL"}
	ErrMissingDBPath       = models.ConfigError{Message: "missing database path"}
)

func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path) // #nosec G304 - Path comes from the operator's command line
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Transport.APIBaseURL == "" {
		return ErrMissingTransportURL
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.CleanupIntervalHours <= 0 {
		c.Server.CleanupIntervalHours = constants.CleanupSchedulerIntervalHours
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = constants.DefaultRetentionDays
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}
	if c.Dispatch.WorkersPerSubscription <= 0 {
		c.Dispatch.WorkersPerSubscription = constants.DefaultDispatchWorkersPerSubscription
	}
	if c.Dispatch.QueueSize <= 0 {
		c.Dispatch.QueueSize = constants.DefaultDispatchQueueSize
	}
	if c.Dispatch.DeliveryTimeoutSec <= 0 {
		c.Dispatch.DeliveryTimeoutSec = constants.DefaultDeliveryTimeoutSec
	}
	if c.Import.BatchSize <= 0 {
		c.Import.BatchSize = constants.DefaultImportBatchSize
	}
	if c.Import.RatePerSec <= 0 {
		c.Import.RatePerSec = constants.DefaultImportRatePerSec
	}
	return nil
}

// applyEnvironmentOverrides lets deployments keep secrets out of the
// config file. Environment values win over file values.
func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("TRANSPORT_API_URL"); url != "" {
		c.Transport.APIBaseURL = url
	}
	if key := os.Getenv("TRANSPORT_API_KEY"); key != "" {
		c.Transport.APIKey = key
	}
	if name := os.Getenv("TRANSPORT_SESSION_NAME"); name != "" {
		c.Transport.SessionName = name
	}
	if secret := os.Getenv("SUPPORTBRIDGE_WEBHOOK_SECRET"); secret != "" {
		c.Transport.WebhookSecret = secret
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if port := os.Getenv("PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil && parsed > 0 {
			c.Server.Port = parsed
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		c.Tracing.OTLPEndpoint = endpoint
		c.Tracing.Enabled = true
	}
}

// LoadConfigWithDefaults builds a runnable config without a file, used
// when everything arrives via environment variables.
func LoadConfigWithDefaults() (*models.Config, error) {
	config := &models.Config{}
	applyEnvironmentOverrides(config)

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("configuration from environment is incomplete: %w", err)
	}
	return config, nil
}

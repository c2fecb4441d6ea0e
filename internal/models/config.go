package models

import "time"

// Config holds the application configuration.
type Config struct {
	Server        ServerConfig    `json:"server"`
	Transport     TransportConfig `json:"transport"`
	Database      DatabaseConfig  `json:"database"`
	Retry         RetryConfig     `json:"retry"`
	Dispatch      DispatchConfig  `json:"dispatch"`
	Import        ImportConfig    `json:"import"`
	Tracing       TracingConfig   `json:"tracing"`
	LogLevel      string          `json:"log_level"`
	RetentionDays int             `json:"retentionDays"`
}

// ServerConfig holds the ingest/admin HTTP server configuration.
type ServerConfig struct {
	Port                 int `json:"port"`
	CleanupIntervalHours int `json:"cleanupIntervalHours"`
}

// TransportConfig points at the session-management layer that delivers
// decoded domain events and accepts imperative operations.
type TransportConfig struct {
	APIBaseURL    string        `json:"api_base_url"`
	APIKey        string        `json:"-"`
	SessionName   string        `json:"session_name"`
	WebhookSecret string        `json:"webhook_secret"`
	Timeout       time.Duration `json:"timeout_ms"`
}

// DatabaseConfig holds local persistence configuration.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// RetryConfig holds backoff configuration shared by webhook delivery and
// platform calls.
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// DispatchConfig bounds the webhook dispatcher.
type DispatchConfig struct {
	WorkersPerSubscription int `json:"workersPerSubscription"`
	QueueSize              int `json:"queueSize"`
	DeliveryTimeoutSec     int `json:"deliveryTimeoutSec"`
}

// ImportConfig bounds bulk import runs.
type ImportConfig struct {
	BatchSize  int `json:"batchSize"`
	RatePerSec int `json:"ratePerSec"`
}

// TracingConfig holds OpenTelemetry configuration.
type TracingConfig struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
}

package constants

// Default server configuration values
const (
	DefaultServerPort           = 8090
	DefaultServerReadTimeoutSec = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec = 60
	DefaultGracefulShutdownSec  = 30
	ServerErrorChannelSize      = 1
)

// Default retry configuration values
const (
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultMaxAttempts           = 5
	DefaultDatabaseRetryAttempts = 3
)

// Default sync configuration values
const (
	DefaultImportWindowDays   = 7
	DefaultImportBatchSize    = 100
	DefaultImportRatePerSec   = 5
	DefaultSignDelimiter      = ": "
	DefaultContactCacheHours  = 24
	DefaultPlatformTimeoutSec = 10
)

// Default webhook dispatcher values
const (
	DefaultDispatchWorkersPerSubscription = 2
	DefaultDispatchQueueSize              = 64
	DefaultDeliveryTimeoutSec             = 30
)

// Default retention values
const (
	DefaultRetentionDays          = 30
	CleanupSchedulerIntervalHours = 24
)

package config

import "time"

// Application constants
const (
	AppName     = "RetailPulse"
	AppVersion  = "1.0.0"
	ServiceName = "retailpulse"

	// Rate Limiting
	DefaultRateLimit = 100 // requests per second
	DefaultBurstSize = 50

	// Timeouts
	DefaultRequestTimeout = 60 * time.Second

	// File Paths (relative to the base directory)
	DefaultDataDir    = "data"
	DefaultReportsDir = "data/reports"
	DefaultLogsDir    = "logs"

	// Uploads
	DefaultMaxUploadBytes = 32 << 20 // 32MB
	DefaultMaxRows        = 500_000

	// Log Settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

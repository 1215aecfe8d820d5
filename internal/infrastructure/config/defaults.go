package config

import "time"

const (
	DefaultHTTPPort        = "8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultPGMaxConns      = 5
	DefaultPGMinConns      = 1
	DefaultSignedURLTTL    = 7 * 24 * time.Hour
	DefaultRefreshWindow   = 24 * time.Hour
	DefaultWorkerPoll      = time.Minute
	DefaultWorkerBatch     = 50
	DefaultMaxUploadBytes  = 32 << 20
)

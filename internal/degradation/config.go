package degradation

// DegradationConfig carries every tunable named in the resilience-core
// configuration contract. Zero-value fields are filled from DefaultConfig
// by callers that build partial configs (e.g. in tests).
type DegradationConfig struct {
	FailThresholdCount   int
	FailThresholdSeconds float64

	MinSafeModeSeconds    float64
	RecoveryStableSeconds float64

	EventBusQueueSize int

	PositionCacheStaleMS   int
	MarketDataCacheStaleMS int

	DBBufferMaxEntries int
	DBBufferMaxBytes   int64

	ZombieThresholdMinutes   int
	StuckThresholdMinutes    int
	MaxNotFoundRetries       int
}

// DefaultConfig returns the documented defaults for every tunable.
func DefaultConfig() DegradationConfig {
	return DegradationConfig{
		FailThresholdCount:     3,
		FailThresholdSeconds:   10.0,
		MinSafeModeSeconds:     60.0,
		RecoveryStableSeconds:  30.0,
		EventBusQueueSize:      10000,
		PositionCacheStaleMS:   30000,
		MarketDataCacheStaleMS: 10000,
		DBBufferMaxEntries:     10000,
		DBBufferMaxBytes:       50 * 1024 * 1024,
		ZombieThresholdMinutes: 2,
		StuckThresholdMinutes:  10,
		MaxNotFoundRetries:     3,
	}
}

// BreakerConfig extracts the breaker-relevant subset of the config.
func (c DegradationConfig) BreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailThresholdCount:   c.FailThresholdCount,
		FailThresholdSeconds: c.FailThresholdSeconds,
	}
}

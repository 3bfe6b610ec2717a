package degradation

import (
	"sync"
	"time"
)

// BreakerConfig supplies the hysteresis thresholds shared by every breaker.
type BreakerConfig struct {
	FailThresholdCount   int
	FailThresholdSeconds float64
}

// BreakerState is the mutable hysteresis state owned by one CircuitBreaker.
type BreakerState struct {
	Level              SystemLevel
	FailureCount       int
	FirstFailureMono   *time.Time
	LastSuccessMono    *time.Time
}

// CircuitBreaker watches one ComponentSource's health and emits SystemEvents
// as its level transitions. A single failure never jumps straight to
// TRIPPED: HEALTHY must pass through UNSTABLE first, and UNSTABLE only trips
// once the configured count or duration threshold is met.
type CircuitBreaker struct {
	source               ComponentSource
	config               BreakerConfig
	tripReasonCode        ReasonCode
	recoveryReasonCode     ReasonCode

	mu    sync.Mutex
	state BreakerState
}

// NewCircuitBreaker constructs a breaker for source, starting HEALTHY.
func NewCircuitBreaker(source ComponentSource, config BreakerConfig, tripReasonCode, recoveryReasonCode ReasonCode) *CircuitBreaker {
	return &CircuitBreaker{
		source:             source,
		config:             config,
		tripReasonCode:     tripReasonCode,
		recoveryReasonCode: recoveryReasonCode,
		state:              BreakerState{Level: LevelHealthy},
	}
}

// NewBrokerBreaker trips on BROKER_DISCONNECT, recovers on BROKER_RECONNECTED.
func NewBrokerBreaker(config BreakerConfig) *CircuitBreaker {
	return NewCircuitBreaker(SourceBroker, config, ReasonBrokerDisconnect, ReasonBrokerReconnected)
}

// NewMarketDataBreaker trips on MARKET_DATA_STALE, recovers on ALL_HEALTHY.
func NewMarketDataBreaker(config BreakerConfig) *CircuitBreaker {
	return NewCircuitBreaker(SourceMarketData, config, ReasonMarketDataStale, ReasonAllHealthy)
}

// NewRiskBreaker trips on RISK_TIMEOUT, recovers on ALL_HEALTHY.
func NewRiskBreaker(config BreakerConfig) *CircuitBreaker {
	return NewCircuitBreaker(SourceRisk, config, ReasonRiskTimeout, ReasonAllHealthy)
}

// NewDBBreaker trips on DB_WRITE_FAIL, recovers on ALL_HEALTHY.
func NewDBBreaker(config BreakerConfig) *CircuitBreaker {
	return NewCircuitBreaker(SourceDB, config, ReasonDBWriteFail, ReasonAllHealthy)
}

// Level returns the breaker's current hysteresis level.
func (cb *CircuitBreaker) Level() SystemLevel {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.Level
}

// RecordFailure advances the breaker's hysteresis state on a reported
// failure and returns the event to publish, or nil if no event is warranted
// (e.g. repeated TRIPPED failures emit nothing further).
func (cb *CircuitBreaker) RecordFailure(nowMono time.Time) *SystemEvent {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state.Level {
	case LevelHealthy:
		cb.state.Level = LevelUnstable
		cb.state.FailureCount = 1
		cb.state.FirstFailureMono = &nowMono
		ev := NewSystemEvent(EventQualityDegraded, cb.source, SeverityWarning, cb.tripReasonCode, nil, nil)
		return &ev

	case LevelUnstable:
		cb.state.FailureCount++
		if cb.checkTripConditions(nowMono) {
			cb.state.Level = LevelTripped
			ev := NewSystemEvent(EventFailCritical, cb.source, SeverityCritical, cb.tripReasonCode, nil, nil)
			return &ev
		}
		return nil

	case LevelTripped:
		return nil

	default:
		return nil
	}
}

// RecordSuccess always resets the breaker to HEALTHY. A RECOVERED event is
// emitted only when the breaker was previously non-HEALTHY, matching the
// "event only on observable change" convention used across this package.
func (cb *CircuitBreaker) RecordSuccess(nowMono time.Time) *SystemEvent {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasHealthy := cb.state.Level == LevelHealthy
	cb.state.Level = LevelHealthy
	cb.state.FailureCount = 0
	cb.state.FirstFailureMono = nil
	cb.state.LastSuccessMono = &nowMono

	if wasHealthy {
		return nil
	}
	ev := NewSystemEvent(EventRecovered, cb.source, SeverityInfo, cb.recoveryReasonCode, nil, nil)
	return &ev
}

// checkTripConditions reports whether the UNSTABLE breaker should trip:
// either the failure count threshold or the sustained-duration threshold is
// met. Caller must hold cb.mu.
func (cb *CircuitBreaker) checkTripConditions(nowMono time.Time) bool {
	if cb.state.FailureCount >= cb.config.FailThresholdCount {
		return true
	}
	if cb.state.FirstFailureMono != nil {
		elapsed := nowMono.Sub(*cb.state.FirstFailureMono).Seconds()
		if elapsed >= cb.config.FailThresholdSeconds {
			return true
		}
	}
	return false
}

// EffectiveLevel implements "local can only tighten": the effective level
// is always the more severe of the local breaker level and a centrally
// reported level. The gate never widens permissions below local protection.
func (cb *CircuitBreaker) EffectiveLevel(centralLevel SystemLevel) SystemLevel {
	return MaxLevelByPriority(cb.Level(), centralLevel)
}

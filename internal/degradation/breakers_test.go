package degradation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreakerConfig() BreakerConfig {
	return BreakerConfig{FailThresholdCount: 3, FailThresholdSeconds: 10.0}
}

func TestCircuitBreakerStartsHealthy(t *testing.T) {
	cb := NewBrokerBreaker(testBreakerConfig())
	assert.Equal(t, LevelHealthy, cb.Level())
}

func TestCircuitBreakerFirstFailureGoesUnstableNotTripped(t *testing.T) {
	cb := NewBrokerBreaker(testBreakerConfig())
	now := time.Now()

	ev := cb.RecordFailure(now)
	require.NotNil(t, ev)
	assert.Equal(t, EventQualityDegraded, ev.EventType)
	assert.Equal(t, ReasonBrokerDisconnect, ev.ReasonCode)
	assert.Equal(t, LevelUnstable, cb.Level())
}

func TestCircuitBreakerTripsOnCountThreshold(t *testing.T) {
	cb := NewBrokerBreaker(testBreakerConfig())
	now := time.Now()

	cb.RecordFailure(now)
	cb.RecordFailure(now.Add(time.Second))
	ev := cb.RecordFailure(now.Add(2 * time.Second))

	require.NotNil(t, ev)
	assert.Equal(t, EventFailCritical, ev.EventType)
	assert.Equal(t, SeverityCritical, ev.Severity)
	assert.Equal(t, LevelTripped, cb.Level())
}

func TestCircuitBreakerTripsOnDurationThresholdEvenBelowCount(t *testing.T) {
	cb := NewBrokerBreaker(testBreakerConfig())
	now := time.Now()

	cb.RecordFailure(now)
	ev := cb.RecordFailure(now.Add(11 * time.Second))

	require.NotNil(t, ev)
	assert.Equal(t, LevelTripped, cb.Level())
}

func TestCircuitBreakerTrippedStaysSilentOnFurtherFailures(t *testing.T) {
	cb := NewBrokerBreaker(testBreakerConfig())
	now := time.Now()
	cb.RecordFailure(now)
	cb.RecordFailure(now.Add(time.Second))
	cb.RecordFailure(now.Add(2 * time.Second))
	require.Equal(t, LevelTripped, cb.Level())

	ev := cb.RecordFailure(now.Add(3 * time.Second))
	assert.Nil(t, ev)
	assert.Equal(t, LevelTripped, cb.Level())
}

func TestCircuitBreakerRecordSuccessFromHealthyEmitsNothing(t *testing.T) {
	cb := NewBrokerBreaker(testBreakerConfig())
	ev := cb.RecordSuccess(time.Now())
	assert.Nil(t, ev)
	assert.Equal(t, LevelHealthy, cb.Level())
}

func TestCircuitBreakerRecordSuccessFromTrippedEmitsRecovered(t *testing.T) {
	cb := NewBrokerBreaker(testBreakerConfig())
	now := time.Now()
	cb.RecordFailure(now)
	cb.RecordFailure(now.Add(time.Second))
	cb.RecordFailure(now.Add(2 * time.Second))
	require.Equal(t, LevelTripped, cb.Level())

	ev := cb.RecordSuccess(now.Add(3 * time.Second))
	require.NotNil(t, ev)
	assert.Equal(t, EventRecovered, ev.EventType)
	assert.Equal(t, ReasonBrokerReconnected, ev.ReasonCode)
	assert.Equal(t, LevelHealthy, cb.Level())
}

func TestCircuitBreakerEffectiveLevelNeverWidensBelowLocal(t *testing.T) {
	cb := NewBrokerBreaker(testBreakerConfig())
	now := time.Now()
	cb.RecordFailure(now)
	require.Equal(t, LevelUnstable, cb.Level())

	assert.Equal(t, LevelUnstable, cb.EffectiveLevel(LevelHealthy))
	assert.Equal(t, LevelTripped, cb.EffectiveLevel(LevelTripped))
}

func TestBreakerFactoriesUseDistinctReasonCodes(t *testing.T) {
	config := testBreakerConfig()
	cases := []struct {
		breaker *CircuitBreaker
		source  ComponentSource
		trip    ReasonCode
	}{
		{NewBrokerBreaker(config), SourceBroker, ReasonBrokerDisconnect},
		{NewMarketDataBreaker(config), SourceMarketData, ReasonMarketDataStale},
		{NewRiskBreaker(config), SourceRisk, ReasonRiskTimeout},
		{NewDBBreaker(config), SourceDB, ReasonDBWriteFail},
	}
	for _, c := range cases {
		assert.Equal(t, c.source, c.breaker.source)
		assert.Equal(t, c.trip, c.breaker.tripReasonCode)
	}
}

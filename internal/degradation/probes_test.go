package degradation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubConnector struct {
	err error
}

func (s *stubConnector) Ping(ctx context.Context) error { return s.err }

type stubFeed struct {
	last time.Time
}

func (s *stubFeed) LastQuoteMono() time.Time { return s.last }

type stubRiskEngine struct {
	err error
}

func (s *stubRiskEngine) Ping(ctx context.Context) error { return s.err }

func TestBrokerProbeHealthCheckHealthy(t *testing.T) {
	probe := NewBrokerProbe(&stubConnector{})
	signal := probe.HealthCheck(context.Background())
	assert.True(t, signal.Healthy)
	assert.Empty(t, signal.Message)
}

func TestBrokerProbeHealthCheckUnhealthyOnPingError(t *testing.T) {
	probe := NewBrokerProbe(&stubConnector{err: errors.New("connection refused")})
	signal := probe.HealthCheck(context.Background())
	assert.False(t, signal.Healthy)
	assert.Equal(t, "connection refused", signal.Message)
}

func TestBrokerProbeEnsureReady(t *testing.T) {
	healthy := NewBrokerProbe(&stubConnector{})
	assert.True(t, healthy.EnsureReady(context.Background()))

	unhealthy := NewBrokerProbe(&stubConnector{err: errors.New("down")})
	assert.False(t, unhealthy.EnsureReady(context.Background()))
}

func TestMarketDataProbeHealthyWithinThreshold(t *testing.T) {
	feed := &stubFeed{last: time.Now()}
	probe := NewMarketDataProbe(feed, time.Second)
	signal := probe.HealthCheck(context.Background())
	assert.True(t, signal.Healthy)
}

func TestMarketDataProbeUnhealthyWhenStale(t *testing.T) {
	feed := &stubFeed{last: time.Now().Add(-time.Hour)}
	probe := NewMarketDataProbe(feed, time.Second)
	signal := probe.HealthCheck(context.Background())
	assert.False(t, signal.Healthy)
	assert.Equal(t, "market data stale", signal.Message)
}

func TestMarketDataProbeEnsureReadyMirrorsHealthCheck(t *testing.T) {
	feed := &stubFeed{last: time.Now().Add(-time.Hour)}
	probe := NewMarketDataProbe(feed, time.Second)
	assert.False(t, probe.EnsureReady(context.Background()))
}

func TestRiskProbeHealthCheck(t *testing.T) {
	healthy := NewRiskProbe(&stubRiskEngine{})
	signal := healthy.HealthCheck(context.Background())
	assert.True(t, signal.Healthy)

	unhealthy := NewRiskProbe(&stubRiskEngine{err: errors.New("timeout")})
	signal = unhealthy.HealthCheck(context.Background())
	assert.False(t, signal.Healthy)
	assert.Equal(t, "timeout", signal.Message)
}

func TestRiskProbeEnsureReady(t *testing.T) {
	probe := NewRiskProbe(&stubRiskEngine{})
	assert.True(t, probe.EnsureReady(context.Background()))
}

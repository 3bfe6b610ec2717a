package degradation

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"nhooyr.io/websocket"
)

// HealthSignal is the result of a single probe health check.
type HealthSignal struct {
	Healthy       bool
	LatencyMS     float64
	Message       string
	TimestampMono time.Time
}

// Probe is the capability set the RecoveryOrchestrator drives during
// staged recovery. Implementations exist for broker, market-data, and risk.
type Probe interface {
	HealthCheck(ctx context.Context) HealthSignal
	EnsureReady(ctx context.Context) bool
	LastUpdateMono() time.Time
}

// BrokerConnector is the minimal surface a BrokerProbe needs from a live
// broker gateway connection. The production implementation below drives it
// over a websocket heartbeat; tests supply a stub.
type BrokerConnector interface {
	// Ping performs a single round-trip liveness check against the broker
	// gateway and returns an error if the connection is unhealthy.
	Ping(ctx context.Context) error
}

// WebSocketBrokerConnector implements BrokerConnector with a websocket
// ping/pong heartbeat against the broker gateway endpoint, reusing the same
// dial/ping/reconnect idiom as the market-data websocket client elsewhere in
// this codebase, but purely for liveness rather than data streaming.
type WebSocketBrokerConnector struct {
	url  string
	log  zerolog.Logger
	conn *websocket.Conn
}

// NewWebSocketBrokerConnector constructs a connector against the broker
// gateway's websocket endpoint. Dialing is lazy: the first Ping call dials
// if no connection exists yet.
func NewWebSocketBrokerConnector(url string, log zerolog.Logger) *WebSocketBrokerConnector {
	return &WebSocketBrokerConnector{url: url, log: log.With().Str("component", "broker_connector").Logger()}
}

// Ping dials (if necessary) and sends a websocket ping frame, reconnecting
// on failure. A Ping error means the broker connection should be considered
// down for this health check.
func (c *WebSocketBrokerConnector) Ping(ctx context.Context) error {
	if c.conn == nil {
		conn, _, err := websocket.Dial(ctx, c.url, nil)
		if err != nil {
			return err
		}
		c.conn = conn
	}

	if err := c.conn.Ping(ctx); err != nil {
		c.log.Warn().Err(err).Msg("broker websocket ping failed, will redial on next check")
		_ = c.conn.Close(websocket.StatusAbnormalClosure, "ping failed")
		c.conn = nil
		return err
	}
	return nil
}

// Close releases the underlying connection, if any.
func (c *WebSocketBrokerConnector) Close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "shutdown")
		c.conn = nil
	}
}

// BrokerProbe checks broker gateway connectivity.
type BrokerProbe struct {
	connector      BrokerConnector
	lastUpdateMono time.Time
}

// NewBrokerProbe constructs a BrokerProbe over the given connector.
func NewBrokerProbe(connector BrokerConnector) *BrokerProbe {
	return &BrokerProbe{connector: connector, lastUpdateMono: time.Now()}
}

func (p *BrokerProbe) HealthCheck(ctx context.Context) HealthSignal {
	start := time.Now()
	err := p.connector.Ping(ctx)
	latency := time.Since(start)
	now := time.Now()
	p.lastUpdateMono = now

	if err != nil {
		return HealthSignal{Healthy: false, LatencyMS: msOf(latency), Message: err.Error(), TimestampMono: now}
	}
	return HealthSignal{Healthy: true, LatencyMS: msOf(latency), TimestampMono: now}
}

func (p *BrokerProbe) EnsureReady(ctx context.Context) bool {
	return p.connector.Ping(ctx) == nil
}

func (p *BrokerProbe) LastUpdateMono() time.Time { return p.lastUpdateMono }

// MarketDataFeed is the minimal surface a MarketDataProbe needs: the
// monotonic time of the most recently received quote.
type MarketDataFeed interface {
	LastQuoteMono() time.Time
}

// MarketDataProbe checks market-data freshness against a configured
// staleness threshold.
type MarketDataProbe struct {
	feed            MarketDataFeed
	staleThreshold  time.Duration
}

// NewMarketDataProbe constructs a MarketDataProbe.
func NewMarketDataProbe(feed MarketDataFeed, staleThreshold time.Duration) *MarketDataProbe {
	return &MarketDataProbe{feed: feed, staleThreshold: staleThreshold}
}

func (p *MarketDataProbe) HealthCheck(ctx context.Context) HealthSignal {
	last := p.feed.LastQuoteMono()
	now := time.Now()
	age := now.Sub(last)
	healthy := age <= p.staleThreshold
	msg := ""
	if !healthy {
		msg = "market data stale"
	}
	return HealthSignal{Healthy: healthy, LatencyMS: msOf(age), Message: msg, TimestampMono: now}
}

func (p *MarketDataProbe) EnsureReady(ctx context.Context) bool {
	return p.HealthCheck(ctx).Healthy
}

func (p *MarketDataProbe) LastUpdateMono() time.Time { return p.feed.LastQuoteMono() }

// RiskEngine is the minimal surface a RiskProbe needs to confirm the risk
// engine is responsive.
type RiskEngine interface {
	Ping(ctx context.Context) error
}

// RiskProbe checks risk-engine responsiveness.
type RiskProbe struct {
	engine         RiskEngine
	lastUpdateMono time.Time
}

// NewRiskProbe constructs a RiskProbe over the given engine.
func NewRiskProbe(engine RiskEngine) *RiskProbe {
	return &RiskProbe{engine: engine, lastUpdateMono: time.Now()}
}

func (p *RiskProbe) HealthCheck(ctx context.Context) HealthSignal {
	start := time.Now()
	err := p.engine.Ping(ctx)
	latency := time.Since(start)
	now := time.Now()
	p.lastUpdateMono = now

	if err != nil {
		return HealthSignal{Healthy: false, LatencyMS: msOf(latency), Message: err.Error(), TimestampMono: now}
	}
	return HealthSignal{Healthy: true, LatencyMS: msOf(latency), TimestampMono: now}
}

func (p *RiskProbe) EnsureReady(ctx context.Context) bool {
	return p.engine.Ping(ctx) == nil
}

func (p *RiskProbe) LastUpdateMono() time.Time { return p.lastUpdateMono }

// DiskSpaceProbe periodically checks free space on the data volume and feeds
// a CircuitBreaker for SourceDB, the same CRITICAL/WARNING byte thresholds
// the teacher's DailyMaintenanceJob.checkDiskSpace enforces, but sampled via
// gopsutil's portable disk.Usage instead of a raw syscall.Statfs call so it
// isn't tied to one platform's Statfs_t layout.
type DiskSpaceProbe struct {
	path    string
	breaker *CircuitBreaker
	publish func(SystemEvent) bool
	log     zerolog.Logger

	criticalGB float64
	warningGB  float64

	lastUpdateMono time.Time
}

// NewDiskSpaceProbe constructs a probe over path, reporting failures and
// recoveries to breaker via publish. criticalGB/warningGB are set to the
// teacher's 0.5GB/5GB thresholds; the constructor takes no threshold arguments.
func NewDiskSpaceProbe(path string, breaker *CircuitBreaker, publish func(SystemEvent) bool, log zerolog.Logger) *DiskSpaceProbe {
	return &DiskSpaceProbe{
		path:           path,
		breaker:        breaker,
		publish:        publish,
		log:            log.With().Str("component", "disk_space_probe").Logger(),
		criticalGB:     0.5,
		warningGB:      5.0,
		lastUpdateMono: time.Now(),
	}
}

// EnsureReady samples free disk space on the configured path, reports the
// result to the DB circuit breaker, and returns whether the volume is above
// the critical threshold. A stat failure is reported healthy: an unreadable
// filesystem stat is not itself evidence of a disk-space failure.
func (p *DiskSpaceProbe) EnsureReady(ctx context.Context) bool {
	now := time.Now()
	p.lastUpdateMono = now

	usage, err := disk.UsageWithContext(ctx, p.path)
	if err != nil {
		p.log.Warn().Err(err).Str("path", p.path).Msg("disk usage check failed")
		return true
	}

	availableGB := float64(usage.Free) / 1e9
	if availableGB < p.criticalGB {
		p.log.Error().Float64("available_gb", availableGB).Msg("critical: insufficient disk space")
		if ev := p.breaker.RecordFailure(now); ev != nil {
			p.publish(*ev)
		}
		return false
	}

	if availableGB < p.warningGB {
		p.log.Warn().Float64("available_gb", availableGB).Msg("disk space running low")
	}
	if ev := p.breaker.RecordSuccess(now); ev != nil {
		p.publish(*ev)
	}
	return true
}

// LastUpdateMono returns the monotonic time of the most recent check.
func (p *DiskSpaceProbe) LastUpdateMono() time.Time { return p.lastUpdateMono }

// Run samples disk space at interval until ctx is cancelled. Intended to run
// in its own goroutine, matching the quote poller's liveness-loop idiom.
func (p *DiskSpaceProbe) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.EnsureReady(ctx)
		}
	}
}

func msOf(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

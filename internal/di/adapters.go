package di

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/sentience-labs/resilience-core/internal/clients/tradernet"
	"github.com/sentience-labs/resilience-core/internal/workers"
)

// newS3Uploader builds a workers.S3Uploader from the ambient AWS
// configuration (environment variables / shared config file), matching how
// the rest of the stack resolves broker and cloud credentials.
func newS3Uploader(ctx context.Context) (workers.S3Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return manager.NewUploader(client), nil
}

// brokerOrderManager adapts the Tradernet broker client to workers.OrderManager.
// closeRequestID is accepted for interface conformance but not forwarded to
// the broker; it is recorded by the caller against the outbox event instead.
type brokerOrderManager struct {
	broker *tradernet.TradernetBrokerAdapter
}

func newBrokerOrderManager(broker *tradernet.TradernetBrokerAdapter) *brokerOrderManager {
	return &brokerOrderManager{broker: broker}
}

func (m *brokerOrderManager) SubmitOrder(ctx context.Context, symbol, side string, qty int64, closeRequestID int64) (string, error) {
	result, err := m.broker.PlaceOrder(symbol, side, float64(qty), 0)
	if err != nil {
		return "", fmt.Errorf("broker rejected close order for close request %d: %w", closeRequestID, err)
	}
	return result.OrderID, nil
}

// quotePoller implements degradation.MarketDataFeed by periodically pulling a
// quote for a reference symbol through the broker client and recording the
// time of the last successful pull. It exists because the teacher's
// websocket market-status feed depends on an event bus this core doesn't
// carry; polling a single reference quote is enough to detect staleness.
type quotePoller struct {
	broker         *tradernet.TradernetBrokerAdapter
	referenceSymbol string
	log            zerolog.Logger

	mu   sync.RWMutex
	last time.Time
}

func newQuotePoller(broker *tradernet.TradernetBrokerAdapter, referenceSymbol string, log zerolog.Logger) *quotePoller {
	return &quotePoller{
		broker:          broker,
		referenceSymbol: referenceSymbol,
		log:             log.With().Str("component", "quote_poller").Logger(),
		last:            time.Now(),
	}
}

// Run polls at the given interval until ctx is cancelled. Intended to run in
// its own goroutine.
func (p *quotePoller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.broker.GetQuote(p.referenceSymbol); err != nil {
				p.log.Warn().Err(err).Str("symbol", p.referenceSymbol).Msg("reference quote poll failed")
				continue
			}
			p.mu.Lock()
			p.last = time.Now()
			p.mu.Unlock()
		}
	}
}

func (p *quotePoller) LastQuoteMono() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// brokerOrderQuerier adapts the Tradernet broker client to
// workers.BrokerOrderQuerier. The client has no single "fetch order by id"
// endpoint, so this checks pending orders first (order still open) and
// falls back to recent executed trades (order filled) before reporting
// workers.ErrOrderNotFound.
type brokerOrderQuerier struct {
	broker *tradernet.TradernetBrokerAdapter
}

func newBrokerOrderQuerier(broker *tradernet.TradernetBrokerAdapter) *brokerOrderQuerier {
	return &brokerOrderQuerier{broker: broker}
}

func (q *brokerOrderQuerier) QueryOrder(ctx context.Context, brokerOrderID string) (string, int64, error) {
	pending, err := q.broker.GetPendingOrders()
	if err != nil {
		return "", 0, err
	}
	for _, order := range pending {
		if order.OrderID == brokerOrderID {
			return "SUBMITTED", 0, nil
		}
	}

	trades, err := q.broker.GetExecutedTrades(200)
	if err != nil {
		return "", 0, err
	}
	var filledQty float64
	found := false
	for _, trade := range trades {
		if trade.OrderID == brokerOrderID {
			filledQty += trade.Quantity
			found = true
		}
	}
	if found {
		return "FILLED", int64(filledQty), nil
	}

	return "", 0, workers.ErrOrderNotFound
}

// httpRiskEngine pings a risk engine's health endpoint over plain HTTP. No
// example repo models a standalone risk-engine client, so this is built
// directly on net/http rather than adapted from a teacher pattern.
type httpRiskEngine struct {
	url    string
	client *http.Client
}

func newHTTPRiskEngine(url string) *httpRiskEngine {
	return &httpRiskEngine{url: url, client: &http.Client{Timeout: 5 * time.Second}}
}

func (e *httpRiskEngine) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("risk engine health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

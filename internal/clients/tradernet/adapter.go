package tradernet

import (
	"github.com/sentience-labs/resilience-core/internal/domain"
	"github.com/rs/zerolog"
)

// TradernetBrokerAdapter adapts tradernet.Client to domain.BrokerClient.
// The adapter owns the Tradernet client internally and exposes only the
// broker-agnostic order-execution surface this core needs.
type TradernetBrokerAdapter struct {
	client *Client
}

// NewTradernetBrokerAdapter creates a new Tradernet broker adapter.
// The adapter owns the Tradernet client internally.
func NewTradernetBrokerAdapter(apiKey, apiSecret string, log zerolog.Logger) *TradernetBrokerAdapter {
	client := NewClient(apiKey, apiSecret, log)
	return &TradernetBrokerAdapter{
		client: client,
	}
}

// PlaceOrder implements domain.BrokerClient
func (a *TradernetBrokerAdapter) PlaceOrder(symbol, side string, quantity, limitPrice float64) (*domain.BrokerOrderResult, error) {
	tnResult, err := a.client.PlaceOrder(symbol, side, quantity, limitPrice)
	if err != nil {
		return nil, err
	}
	return transformOrderResultToDomain(tnResult), nil
}

// GetExecutedTrades implements domain.BrokerClient
func (a *TradernetBrokerAdapter) GetExecutedTrades(limit int) ([]domain.BrokerTrade, error) {
	tnTrades, err := a.client.GetExecutedTrades(limit)
	if err != nil {
		return nil, err
	}
	return transformTradesToDomain(tnTrades), nil
}

// GetPendingOrders implements domain.BrokerClient
func (a *TradernetBrokerAdapter) GetPendingOrders() ([]domain.BrokerPendingOrder, error) {
	tnOrders, err := a.client.GetPendingOrders()
	if err != nil {
		return nil, err
	}
	return transformPendingOrdersToDomain(tnOrders), nil
}

// GetQuote implements domain.BrokerClient
func (a *TradernetBrokerAdapter) GetQuote(symbol string) (*domain.BrokerQuote, error) {
	tnQuote, err := a.client.GetQuote(symbol)
	if err != nil {
		return nil, err
	}
	return transformQuoteToDomain(tnQuote), nil
}

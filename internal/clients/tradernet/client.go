// Package tradernet provides client functionality for interacting with the Tradernet API.
package tradernet

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sentience-labs/resilience-core/internal/clients/tradernet/sdk"
)

// Client for Tradernet API (using SDK directly)
type Client struct {
	sdkClient SDKClient
	log       zerolog.Logger
	apiKey    string
	apiSecret string
}

// NewClient creates a new Tradernet client using SDK
// Always creates an SDK client, even with empty credentials (SDK will validate and return errors)
func NewClient(apiKey, apiSecret string, log zerolog.Logger) *Client {
	// Always create SDK client - it will validate credentials and return errors if invalid
	sdkClient := sdk.NewClient(apiKey, apiSecret, log)

	return &Client{
		sdkClient: sdkClient,
		log:       log.With().Str("client", "tradernet").Logger(),
		apiKey:    apiKey,
		apiSecret: apiSecret,
	}
}

// NewClientWithSDK creates a new Tradernet client with a provided SDK client (for testing)
func NewClientWithSDK(sdkClient SDKClient, log zerolog.Logger) *Client {
	return &Client{
		sdkClient: sdkClient,
		log:       log.With().Str("client", "tradernet").Logger(),
	}
}

// PlaceOrderRequest is the request for placing an order
type PlaceOrderRequest struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Quantity   float64 `json:"quantity"`
	LimitPrice float64 `json:"limit_price"`
}

// OrderResult is the result of placing an order
type OrderResult struct {
	OrderID  string  `json:"order_id"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// PlaceOrder executes a trade order. limitPrice of 0 places a market order;
// any other value places a day-duration limit order at that price.
func (c *Client) PlaceOrder(symbol, side string, quantity, limitPrice float64) (*OrderResult, error) {
	if c.sdkClient == nil {
		return nil, fmt.Errorf("SDK client not initialized")
	}

	c.log.Debug().Str("symbol", symbol).Str("side", side).Float64("quantity", quantity).Float64("limit_price", limitPrice).Msg("PlaceOrder: calling SDK")

	quantityInt := int(quantity)
	var result interface{}
	var err error

	if side == "BUY" {
		result, err = c.sdkClient.Buy(symbol, quantityInt, limitPrice, "day", false, nil)
	} else if side == "SELL" {
		result, err = c.sdkClient.Sell(symbol, quantityInt, limitPrice, "day", false, nil)
	} else {
		return nil, fmt.Errorf("invalid side: %s (must be BUY or SELL)", side)
	}

	if err != nil {
		c.log.Error().Err(err).Msg("PlaceOrder: SDK Buy/Sell failed")
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	orderResult, err := transformOrderResult(result, symbol, side, quantity)
	if err != nil {
		c.log.Error().Err(err).Msg("PlaceOrder: transformOrderResult failed")
		return nil, fmt.Errorf("failed to transform order result: %w", err)
	}

	return orderResult, nil
}

// Trade represents an executed trade
type Trade struct {
	OrderID    string  `json:"order_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	ExecutedAt string  `json:"executed_at"`
}

// ExecutedTradesResponse is the response for GetExecutedTrades
type ExecutedTradesResponse struct {
	Trades []Trade `json:"trades"`
}

// GetExecutedTrades gets executed trade history
func (c *Client) GetExecutedTrades(limit int) ([]Trade, error) {
	if c.sdkClient == nil {
		return nil, fmt.Errorf("SDK client not initialized")
	}

	c.log.Debug().Int("limit", limit).Msg("GetExecutedTrades: calling SDK GetTradesHistory")

	limitPtr := &limit
	result, err := c.sdkClient.GetTradesHistory("", "", nil, limitPtr, nil, nil, nil)
	if err != nil {
		c.log.Error().Err(err).Msg("GetExecutedTrades: SDK GetTradesHistory failed")
		return nil, fmt.Errorf("failed to get executed trades: %w", err)
	}

	trades, err := transformTrades(result)
	if err != nil {
		c.log.Error().Err(err).Msg("GetExecutedTrades: transformTrades failed")
		return nil, fmt.Errorf("failed to transform trades: %w", err)
	}

	return trades, nil
}

// Quote represents a security quote
type Quote struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
	Volume    int64   `json:"volume"`
	Timestamp string  `json:"timestamp"`
}

// QuoteResponse is the response for GetQuote
type QuoteResponse struct {
	Quote Quote `json:"quote"`
}

// GetQuote gets current quote for a symbol
func (c *Client) GetQuote(symbol string) (*Quote, error) {
	if c.sdkClient == nil {
		return nil, fmt.Errorf("SDK client not initialized")
	}

	c.log.Debug().Str("symbol", symbol).Msg("GetQuote: calling SDK GetQuotes")

	result, err := c.sdkClient.GetQuotes([]string{symbol})
	if err != nil {
		c.log.Error().Err(err).Msg("GetQuote: SDK GetQuotes failed")
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	quote, err := transformQuote(result, symbol)
	if err != nil {
		c.log.Error().Err(err).Msg("GetQuote: transformQuote failed")
		return nil, fmt.Errorf("failed to transform quote: %w", err)
	}

	return quote, nil
}

// PendingOrder represents a pending order in the broker
type PendingOrder struct {
	OrderID  string  `json:"order_id"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// PendingOrdersResponse is the response for GetPendingOrders
type PendingOrdersResponse struct {
	Orders []PendingOrder `json:"orders"`
}

// GetPendingOrders retrieves all pending orders from the broker
func (c *Client) GetPendingOrders() ([]PendingOrder, error) {
	if c.sdkClient == nil {
		return nil, fmt.Errorf("SDK client not initialized")
	}

	c.log.Debug().Msg("GetPendingOrders: calling SDK GetPlaced")
	result, err := c.sdkClient.GetPlaced(true)
	if err != nil {
		c.log.Error().Err(err).Msg("GetPendingOrders: SDK GetPlaced failed")
		return nil, fmt.Errorf("failed to get pending orders: %w", err)
	}

	orders, err := transformPendingOrders(result)
	if err != nil {
		c.log.Error().Err(err).Msg("GetPendingOrders: transformPendingOrders failed")
		return nil, fmt.Errorf("failed to transform pending orders: %w", err)
	}

	return orders, nil
}

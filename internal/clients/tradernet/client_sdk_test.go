package tradernet

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// mockSDKClient is a mock implementation of SDKClient for testing
type mockSDKClient struct {
	buyResult              interface{}
	buyError               error
	sellResult             interface{}
	sellError              error
	getPlacedResult        interface{}
	getPlacedError         error
	getTradesHistoryResult interface{}
	getTradesHistoryError  error
	getQuotesResult        interface{}
	getQuotesError         error
	lastLimitPrice         float64 // Track limit price passed to Buy/Sell
}

func (m *mockSDKClient) Buy(symbol string, quantity int, price float64, duration string, useMargin bool, customOrderID *int) (interface{}, error) {
	m.lastLimitPrice = price
	return m.buyResult, m.buyError
}

func (m *mockSDKClient) Sell(symbol string, quantity int, price float64, duration string, useMargin bool, customOrderID *int) (interface{}, error) {
	m.lastLimitPrice = price
	return m.sellResult, m.sellError
}

func (m *mockSDKClient) GetPlaced(active bool) (interface{}, error) {
	return m.getPlacedResult, m.getPlacedError
}

func (m *mockSDKClient) GetTradesHistory(start, end string, tradeID, limit, reception *int, symbol, currency *string) (interface{}, error) {
	return m.getTradesHistoryResult, m.getTradesHistoryError
}

func (m *mockSDKClient) GetQuotes(symbols []string) (interface{}, error) {
	return m.getQuotesResult, m.getQuotesError
}

// TestClient_PlaceOrder_Buy tests PlaceOrder() with BUY side using SDK
func TestClient_PlaceOrder_Buy(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)

	mockSDK := &mockSDKClient{
		buyResult: map[string]interface{}{
			"id":    float64(12345),
			"price": float64(150.5),
		},
	}

	client := &Client{
		sdkClient: mockSDK,
		log:       log,
	}

	orderResult, err := client.PlaceOrder("AAPL.US", "BUY", 10.0, 0.0) // Market order

	assert.NoError(t, err)
	assert.NotNil(t, orderResult)
	assert.Equal(t, "12345", orderResult.OrderID)
	assert.Equal(t, "AAPL.US", orderResult.Symbol)
	assert.Equal(t, "BUY", orderResult.Side)
	assert.Equal(t, float64(10), orderResult.Quantity)
	assert.Equal(t, float64(150.5), orderResult.Price)
}

// TestClient_PlaceOrder_Sell tests PlaceOrder() with SELL side using SDK
func TestClient_PlaceOrder_Sell(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)

	mockSDK := &mockSDKClient{
		sellResult: map[string]interface{}{
			"id":    float64(67890),
			"price": float64(200.0),
		},
	}

	client := &Client{
		sdkClient: mockSDK,
		log:       log,
	}

	orderResult, err := client.PlaceOrder("TSLA.US", "SELL", 5.0, 0.0) // Market order

	assert.NoError(t, err)
	assert.NotNil(t, orderResult)
	assert.Equal(t, "67890", orderResult.OrderID)
	assert.Equal(t, "TSLA.US", orderResult.Symbol)
	assert.Equal(t, "SELL", orderResult.Side)
	assert.Equal(t, float64(5), orderResult.Quantity)
	assert.Equal(t, float64(200.0), orderResult.Price)
}

// TestClient_PlaceOrder_LimitPrice verifies the limit price is threaded through to the SDK call
func TestClient_PlaceOrder_LimitPrice(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)

	mockSDK := &mockSDKClient{
		buyResult: map[string]interface{}{"id": float64(1), "price": float64(155.0)},
	}

	client := &Client{
		sdkClient: mockSDK,
		log:       log,
	}

	_, err := client.PlaceOrder("AAPL.US", "BUY", 10.0, 155.0)

	assert.NoError(t, err)
	assert.Equal(t, 155.0, mockSDK.lastLimitPrice)
}

// TestClient_GetPendingOrders tests GetPendingOrders() using SDK
func TestClient_GetPendingOrders(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)

	mockSDK := &mockSDKClient{
		getPlacedResult: map[string]interface{}{
			"result": []interface{}{
				map[string]interface{}{
					"id":   float64(111),
					"i":    "AAPL.US",
					"q":    float64(10),
					"p":    float64(150.5),
					"curr": "USD",
				},
			},
		},
	}

	client := &Client{
		sdkClient: mockSDK,
		log:       log,
	}

	orders, err := client.GetPendingOrders()

	assert.NoError(t, err)
	assert.Len(t, orders, 1)
	assert.Equal(t, "111", orders[0].OrderID)
	assert.Equal(t, "AAPL.US", orders[0].Symbol)
}

// TestClient_GetExecutedTrades tests GetExecutedTrades() using SDK
func TestClient_GetExecutedTrades(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)

	mockSDK := &mockSDKClient{
		getTradesHistoryResult: map[string]interface{}{
			"trades": map[string]interface{}{
				"trade": []interface{}{
					map[string]interface{}{
						"order_id": "111",
						"instr_nm": "AAPL.US",
						"q":        float64(10),
						"p":        "150.5", // Tradernet returns price as string
						"date":     "2024-01-15T10:00:00Z",
						"type":     "1", // 1 = BUY, 2 = SELL
					},
				},
				"max_trade_id": []interface{}{
					map[string]interface{}{
						"@text": "111",
					},
				},
			},
		},
	}

	client := &Client{
		sdkClient: mockSDK,
		log:       log,
	}

	trades, err := client.GetExecutedTrades(100)

	assert.NoError(t, err)
	assert.Len(t, trades, 1)
	assert.Equal(t, "111", trades[0].OrderID)
	assert.Equal(t, "AAPL.US", trades[0].Symbol)
	assert.Equal(t, 150.5, trades[0].Price)
}

// TestClient_GetQuote tests GetQuote() using SDK
func TestClient_GetQuote(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)

	mockSDK := &mockSDKClient{
		getQuotesResult: map[string]interface{}{
			"result": map[string]interface{}{
				"AAPL.US": map[string]interface{}{
					"p":          float64(150.5),
					"change":     float64(2.5),
					"change_pct": float64(1.69),
					"volume":     float64(1000000),
					"timestamp":  "2024-01-15T10:00:00Z",
				},
			},
		},
	}

	client := &Client{
		sdkClient: mockSDK,
		log:       log,
	}

	quote, err := client.GetQuote("AAPL.US")

	assert.NoError(t, err)
	assert.NotNil(t, quote)
	assert.Equal(t, "AAPL.US", quote.Symbol)
	assert.Equal(t, float64(150.5), quote.Price)
}

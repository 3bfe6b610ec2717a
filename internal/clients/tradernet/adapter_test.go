package tradernet

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentience-labs/resilience-core/internal/domain"
)

func TestNewTradernetBrokerAdapter(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)

	adapter := NewTradernetBrokerAdapter("test-key", "test-secret", log)

	require.NotNil(t, adapter)
	assert.NotNil(t, adapter.client)
}

func TestTradernetBrokerAdapter_PlaceOrder(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)

	t.Run("buy success with limit price", func(t *testing.T) {
		mockSDK := &mockSDKClient{
			buyResult: map[string]interface{}{"id": float64(1), "price": float64(155.0)},
		}
		adapter := &TradernetBrokerAdapter{client: &Client{sdkClient: mockSDK, log: log}}

		result, err := adapter.PlaceOrder("AAPL", "BUY", 5.0, 155.0)

		require.NoError(t, err)
		assert.Equal(t, "1", result.OrderID)
		assert.Equal(t, "AAPL", result.Symbol)
		assert.Equal(t, "BUY", result.Side)
		assert.Equal(t, 155.0, mockSDK.lastLimitPrice)
	})

	t.Run("buy market order (limit price 0)", func(t *testing.T) {
		mockSDK := &mockSDKClient{
			buyResult: map[string]interface{}{"id": float64(2), "price": float64(150.0)},
		}
		adapter := &TradernetBrokerAdapter{client: &Client{sdkClient: mockSDK, log: log}}

		_, err := adapter.PlaceOrder("AAPL", "BUY", 5.0, 0.0)

		require.NoError(t, err)
		assert.Equal(t, 0.0, mockSDK.lastLimitPrice)
	})

	t.Run("sell success with limit price", func(t *testing.T) {
		mockSDK := &mockSDKClient{
			sellResult: map[string]interface{}{"id": float64(3), "price": float64(315.0)},
		}
		adapter := &TradernetBrokerAdapter{client: &Client{sdkClient: mockSDK, log: log}}

		result, err := adapter.PlaceOrder("MSFT", "SELL", 3.0, 315.0)

		require.NoError(t, err)
		assert.Equal(t, "MSFT", result.Symbol)
		assert.Equal(t, "SELL", result.Side)
		assert.Equal(t, 315.0, mockSDK.lastLimitPrice)
	})

	t.Run("sell market order (limit price 0)", func(t *testing.T) {
		mockSDK := &mockSDKClient{
			sellResult: map[string]interface{}{"id": float64(4), "price": float64(310.0)},
		}
		adapter := &TradernetBrokerAdapter{client: &Client{sdkClient: mockSDK, log: log}}

		_, err := adapter.PlaceOrder("MSFT", "SELL", 3.0, 0.0)

		require.NoError(t, err)
		assert.Equal(t, 0.0, mockSDK.lastLimitPrice)
	})

	t.Run("sdk error", func(t *testing.T) {
		mockSDK := &mockSDKClient{buyError: errors.New("SDK error")}
		adapter := &TradernetBrokerAdapter{client: &Client{sdkClient: mockSDK, log: log}}

		_, err := adapter.PlaceOrder("AAPL", "BUY", 5.0, 155.0)

		assert.Error(t, err)
	})
}

func TestTradernetBrokerAdapter_GetExecutedTrades(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)

	mockSDK := &mockSDKClient{
		getTradesHistoryResult: map[string]interface{}{
			"trades": map[string]interface{}{
				"trade": []interface{}{
					map[string]interface{}{
						"order_id": "trade-1",
						"instr_nm": "TSLA",
						"type":     "1",
						"q":        float64(10),
						"p":        "250.0",
						"date":     "2024-01-15T10:00:00Z",
					},
				},
			},
		},
	}
	adapter := &TradernetBrokerAdapter{client: &Client{sdkClient: mockSDK, log: log}}

	trades, err := adapter.GetExecutedTrades(100)

	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "trade-1", trades[0].OrderID)
	assert.Equal(t, "TSLA", trades[0].Symbol)
	assert.Equal(t, "BUY", trades[0].Side)
	assert.Equal(t, 250.0, trades[0].Price)
}

func TestTradernetBrokerAdapter_GetQuote(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)

	mockSDK := &mockSDKClient{
		getQuotesResult: map[string]interface{}{
			"result": map[string]interface{}{
				"GOOGL": map[string]interface{}{
					"p":  float64(140.50),
					"ch": float64(1.2),
					"cp": float64(0.86),
					"v":  float64(500000),
					"t":  "2024-01-15T10:00:00Z",
				},
			},
		},
	}
	adapter := &TradernetBrokerAdapter{client: &Client{sdkClient: mockSDK, log: log}}

	quote, err := adapter.GetQuote("GOOGL")

	require.NoError(t, err)
	assert.Equal(t, "GOOGL", quote.Symbol)
	assert.Equal(t, 140.50, quote.Price)
}

func TestTradernetBrokerAdapter_GetPendingOrders(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)

	mockSDK := &mockSDKClient{
		getPlacedResult: map[string]interface{}{
			"result": []interface{}{
				map[string]interface{}{
					"id":   "order-789",
					"i":    "AMZN",
					"q":    float64(2),
					"p":    float64(145.0),
					"curr": "USD",
				},
			},
		},
	}
	adapter := &TradernetBrokerAdapter{client: &Client{sdkClient: mockSDK, log: log}}

	orders, err := adapter.GetPendingOrders()

	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "order-789", orders[0].OrderID)
	assert.Equal(t, "AMZN", orders[0].Symbol)
}

var _ domain.BrokerClient = (*TradernetBrokerAdapter)(nil)

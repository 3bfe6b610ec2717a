package tradernet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestTransformOrderResult tests transformation of SDK Buy/Sell response to OrderResult
func TestTransformOrderResult(t *testing.T) {
	// Mock SDK Buy response
	sdkResult := map[string]interface{}{
		"id":    float64(12345),
		"price": float64(150.5),
		"p":     float64(150.5), // Alternative field name
	}

	orderResult, err := transformOrderResult(sdkResult, "AAPL.US", "BUY", float64(10))

	assert.NoError(t, err)
	assert.NotNil(t, orderResult)
	assert.Equal(t, "12345", orderResult.OrderID)
	assert.Equal(t, "AAPL.US", orderResult.Symbol)
	assert.Equal(t, "BUY", orderResult.Side)
	assert.Equal(t, float64(10), orderResult.Quantity)
	assert.Equal(t, float64(150.5), orderResult.Price)
}

// TestTransformOrderResult_WithOrderID tests transformation with order_id field
func TestTransformOrderResult_WithOrderID(t *testing.T) {
	sdkResult := map[string]interface{}{
		"order_id": float64(67890),
		"price":    float64(200.0),
	}

	orderResult, err := transformOrderResult(sdkResult, "TSLA.US", "SELL", float64(5))

	assert.NoError(t, err)
	assert.NotNil(t, orderResult)
	assert.Equal(t, "67890", orderResult.OrderID)
	assert.Equal(t, "TSLA.US", orderResult.Symbol)
	assert.Equal(t, "SELL", orderResult.Side)
	assert.Equal(t, float64(5), orderResult.Quantity)
	assert.Equal(t, float64(200.0), orderResult.Price)
}

// TestTransformOrderResult_StringID tests transformation with string order ID
func TestTransformOrderResult_StringID(t *testing.T) {
	sdkResult := map[string]interface{}{
		"id":    "12345",
		"price": float64(150.5),
	}

	orderResult, err := transformOrderResult(sdkResult, "AAPL.US", "BUY", float64(10))

	assert.NoError(t, err)
	assert.NotNil(t, orderResult)
	assert.Equal(t, "12345", orderResult.OrderID)
}

// TestTransformPendingOrders tests transformation of SDK GetPlaced response to []PendingOrder
func TestTransformPendingOrders(t *testing.T) {
	sdkResult := map[string]interface{}{
		"result": []interface{}{
			map[string]interface{}{
				"id":      float64(111),
				"orderId": float64(111), // Alternative field
				"i":       "AAPL.US",
				"q":       float64(10),
				"p":       float64(150.5),
				"curr":    "USD",
			},
			map[string]interface{}{
				"id":   float64(222),
				"i":    "TSLA.US",
				"q":    float64(5),
				"p":    float64(200.0),
				"curr": "USD",
			},
		},
	}

	orders, err := transformPendingOrders(sdkResult)

	assert.NoError(t, err)
	assert.Len(t, orders, 2)

	assert.Equal(t, "111", orders[0].OrderID)
	assert.Equal(t, "AAPL.US", orders[0].Symbol)
	assert.Equal(t, float64(10), orders[0].Quantity)
	assert.Equal(t, float64(150.5), orders[0].Price)
	assert.Equal(t, "USD", orders[0].Currency)

	assert.Equal(t, "222", orders[1].OrderID)
	assert.Equal(t, "TSLA.US", orders[1].Symbol)
	assert.Equal(t, float64(5), orders[1].Quantity)
	assert.Equal(t, float64(200.0), orders[1].Price)
}

// TestTransformPendingOrders_EmptyArray tests transformation with empty orders array
func TestTransformPendingOrders_EmptyArray(t *testing.T) {
	sdkResult := map[string]interface{}{
		"result": []interface{}{},
	}

	orders, err := transformPendingOrders(sdkResult)

	assert.NoError(t, err)
	assert.Len(t, orders, 0)
}

// TestTransformTrades tests transformation of SDK GetTradesHistory to []Trade
func TestTransformTrades(t *testing.T) {
	sdkResult := map[string]interface{}{
		"trades": map[string]interface{}{
			"trade": []interface{}{
				map[string]interface{}{
					"order_id": float64(111),
					"id":       float64(111),
					"instr_nm": "AAPL.US",
					"q":        float64(10),
					"p":        float64(150.5),
					"date":     "2024-01-15T10:00:00Z",
					"type":     float64(1), // 1 = Buy, 2 = Sell
				},
			},
			"max_trade_id": []interface{}{
				map[string]interface{}{
					"@text": "111",
				},
			},
		},
	}

	trades, err := transformTrades(sdkResult)

	assert.NoError(t, err)
	assert.Len(t, trades, 1)

	trade := trades[0]
	assert.Equal(t, "111", trade.OrderID)
	assert.Equal(t, "AAPL.US", trade.Symbol)
	assert.Equal(t, "BUY", trade.Side)
	assert.Equal(t, float64(10), trade.Quantity)
	assert.Equal(t, float64(150.5), trade.Price)
	assert.Equal(t, "2024-01-15T10:00:00Z", trade.ExecutedAt)
}

// TestTransformTrades_StringPrice tests that prices returned as strings (actual API format) are correctly converted
func TestTransformTrades_StringPrice(t *testing.T) {
	// This test verifies the fix for prices returned as strings by Tradernet API (e.g., "p": "141.4")
	sdkResult := map[string]interface{}{
		"trades": map[string]interface{}{
			"trade": []interface{}{
				map[string]interface{}{
					"order_id": "299998887727",
					"instr_nm": "AAPL.US",
					"q":        "20",
					"p":        "141.4", // String price - actual API format
					"date":     "2019-08-15T10:10:22",
					"type":     "1", // 1 = Buy, 2 = Sell
				},
			},
			"max_trade_id": []interface{}{
				map[string]interface{}{
					"@text": "40975888",
				},
			},
		},
	}

	trades, err := transformTrades(sdkResult)

	assert.NoError(t, err)
	assert.Len(t, trades, 1)

	trade := trades[0]
	assert.Equal(t, "299998887727", trade.OrderID)
	assert.Equal(t, "AAPL.US", trade.Symbol)
	assert.Equal(t, "BUY", trade.Side)
	assert.Equal(t, float64(20), trade.Quantity)
	assert.Equal(t, float64(141.4), trade.Price) // Should parse string to float
	assert.Equal(t, "2019-08-15T10:10:22", trade.ExecutedAt)
}

// TestTransformQuote tests transformation of SDK GetQuotes to Quote
func TestTransformQuote(t *testing.T) {
	sdkResult := map[string]interface{}{
		"result": map[string]interface{}{
			"AAPL.US": map[string]interface{}{
				"p":          float64(150.5),
				"change":     float64(2.5),
				"change_pct": float64(1.69),
				"volume":     float64(1000000),
				"timestamp":  "2024-01-15T10:00:00Z",
			},
		},
	}

	quote, err := transformQuote(sdkResult, "AAPL.US")

	assert.NoError(t, err)
	assert.NotNil(t, quote)
	assert.Equal(t, "AAPL.US", quote.Symbol)
	assert.Equal(t, float64(150.5), quote.Price)
	assert.Equal(t, float64(2.5), quote.Change)
	assert.Equal(t, float64(1.69), quote.ChangePct)
	assert.Equal(t, int64(1000000), quote.Volume)
	assert.Equal(t, "2024-01-15T10:00:00Z", quote.Timestamp)
}

// TestTransformQuote_MissingSymbol tests transformation when symbol not found
func TestTransformQuote_MissingSymbol(t *testing.T) {
	sdkResult := map[string]interface{}{
		"result": map[string]interface{}{
			"TSLA.US": map[string]interface{}{
				"p": float64(200.0),
			},
		},
	}

	quote, err := transformQuote(sdkResult, "AAPL.US")

	assert.Error(t, err)
	assert.Nil(t, quote)
}

// TestTransformQuote_ArrayFormat tests transformation when API returns array format
func TestTransformQuote_ArrayFormat(t *testing.T) {
	sdkResult := map[string]interface{}{
		"result": []interface{}{
			map[string]interface{}{
				"symbol":     "EURUSD_T0.ITS",
				"p":          float64(1.085),
				"change":     float64(0.001),
				"change_pct": float64(0.09),
				"volume":     float64(1000000),
				"timestamp":  "2024-01-15T10:00:00Z",
			},
			map[string]interface{}{
				"symbol":     "EURGBP_T0.ITS",
				"p":          float64(0.85),
				"change":     float64(0.002),
				"change_pct": float64(0.24),
				"volume":     float64(500000),
				"timestamp":  "2024-01-15T10:00:00Z",
			},
		},
	}

	quote, err := transformQuote(sdkResult, "EURUSD_T0.ITS")

	assert.NoError(t, err)
	assert.NotNil(t, quote)
	assert.Equal(t, "EURUSD_T0.ITS", quote.Symbol)
	assert.Equal(t, float64(1.085), quote.Price)
	assert.Equal(t, float64(0.001), quote.Change)
	assert.Equal(t, float64(0.09), quote.ChangePct)
	assert.Equal(t, int64(1000000), quote.Volume)
	assert.Equal(t, "2024-01-15T10:00:00Z", quote.Timestamp)
}

// TestGetString tests the getString helper function
func TestGetString(t *testing.T) {
	tests := []struct {
		name     string
		m        map[string]interface{}
		key      string
		expected string
	}{
		{
			name:     "string value",
			m:        map[string]interface{}{"key": "value"},
			key:      "key",
			expected: "value",
		},
		{
			name:     "missing key",
			m:        map[string]interface{}{"other": "value"},
			key:      "key",
			expected: "",
		},
		{
			name:     "int value converted to string",
			m:        map[string]interface{}{"key": 123},
			key:      "key",
			expected: "123",
		},
		{
			name:     "float value converted to string",
			m:        map[string]interface{}{"key": 45.67},
			key:      "key",
			expected: "45.67",
		},
		{
			name:     "bool value converted to string",
			m:        map[string]interface{}{"key": true},
			key:      "key",
			expected: "true",
		},
		{
			name:     "empty string",
			m:        map[string]interface{}{"key": ""},
			key:      "key",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getString(tt.m, tt.key)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// TestGetFloat64 tests the getFloat64 helper function
func TestGetFloat64(t *testing.T) {
	tests := []struct {
		name     string
		m        map[string]interface{}
		key      string
		expected float64
	}{
		{
			name:     "float64 value",
			m:        map[string]interface{}{"key": float64(123.45)},
			key:      "key",
			expected: 123.45,
		},
		{
			name:     "float32 value",
			m:        map[string]interface{}{"key": float32(123.45)},
			key:      "key",
			expected: 123.44999694824219, // float32 precision loss when converted to float64
		},
		{
			name:     "int value",
			m:        map[string]interface{}{"key": 123},
			key:      "key",
			expected: 123.0,
		},
		{
			name:     "int64 value",
			m:        map[string]interface{}{"key": int64(456)},
			key:      "key",
			expected: 456.0,
		},
		{
			name:     "int32 value",
			m:        map[string]interface{}{"key": int32(789)},
			key:      "key",
			expected: 789.0,
		},
		{
			name:     "missing key",
			m:        map[string]interface{}{"other": 123.0},
			key:      "key",
			expected: 0.0,
		},
		{
			name:     "unsupported type",
			m:        map[string]interface{}{"key": "not a number"},
			key:      "key",
			expected: 0.0,
		},
		{
			name:     "zero value",
			m:        map[string]interface{}{"key": float64(0)},
			key:      "key",
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getFloat64(tt.m, tt.key)
			if tt.name == "float32 value" {
				// Use InDelta for float32 due to precision loss
				assert.InDelta(t, tt.expected, result, 0.0001)
			} else {
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

// TestGetFloat64FromValue tests the getFloat64FromValue helper function
func TestGetFloat64FromValue(t *testing.T) {
	tests := []struct {
		name     string
		val      interface{}
		expected float64
	}{
		{
			name:     "float64",
			val:      float64(123.45),
			expected: 123.45,
		},
		{
			name:     "float32",
			val:      float32(123.45),
			expected: 123.44999694824219, // float32 precision loss when converted to float64
		},
		{
			name:     "int",
			val:      123,
			expected: 123.0,
		},
		{
			name:     "int64",
			val:      int64(456),
			expected: 456.0,
		},
		{
			name:     "int32",
			val:      int32(789),
			expected: 789.0,
		},
		{
			name:     "string",
			val:      "not a number",
			expected: 0.0,
		},
		{
			name:     "bool",
			val:      true,
			expected: 0.0,
		},
		{
			name:     "nil",
			val:      nil,
			expected: 0.0,
		},
		{
			name:     "zero float64",
			val:      float64(0),
			expected: 0.0,
		},
		{
			name:     "negative int",
			val:      -123,
			expected: -123.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getFloat64FromValue(tt.val)
			if tt.name == "float32" {
				// Use InDelta for float32 due to precision loss
				assert.InDelta(t, tt.expected, result, 0.0001)
			} else {
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

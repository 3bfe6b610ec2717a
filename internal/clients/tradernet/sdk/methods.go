package sdk

import (
	"fmt"
	"strconv"
	"strings"
)

// Duration constants matching Python SDK
var (
	DurationDay = 1 // The order will be valid until the end of the trading day
	DurationExt = 2 // Extended day order
	DurationGTC = 3 // Good Till Cancelled
)

// DurationMap maps duration strings to IDs
var DurationMap = map[string]int{
	"day": DurationDay,
	"ext": DurationExt,
	"gtc": DurationGTC,
}

// Trade places an order with support for all order types (1-6).
// This matches the Python SDK's trade() method with extended functionality.
//
// Order Types: 1=Market, 2=Limit, 3=Stop, 4=StopLimit, 5=StopLoss, 6=TakeProfit
// - Type 1 (Market): limitPrice=nil, stopPrice=nil
// - Type 2 (Limit): limitPrice required, stopPrice=nil
// - Type 3 (Stop): limitPrice=nil, stopPrice required
// - Type 4 (StopLimit): limitPrice required, stopPrice required
// - Type 5-6 (StopLoss/TakeProfit): stopPrice required
func (c *Client) Trade(symbol string, quantity int, orderType int, limitPrice, stopPrice *float64, duration string, useMargin bool, customOrderID *int) (interface{}, error) {
	// IOC emulation (special case)
	if strings.ToLower(duration) == "ioc" {
		// Place order with 'day' duration
		order, err := c.Trade(symbol, quantity, orderType, limitPrice, stopPrice, "day", useMargin, customOrderID)
		if err != nil {
			return nil, err
		}
		// Extract order ID and cancel immediately
		// Python SDK checks: if 'order_id' in order: self.cancel(order['order_id'])
		// We also check 'id' as fallback (matches microservice parsing)
		orderMap, ok := order.(map[string]interface{})
		if ok {
			var orderID int
			found := false

			// Check 'order_id' first (Python SDK behavior)
			if idVal, exists := orderMap["order_id"]; exists {
				switch v := idVal.(type) {
				case float64:
					orderID = int(v)
					found = true
				case int:
					orderID = v
					found = true
				case string:
					// Handle string IDs (though unlikely)
					if id, err := strconv.Atoi(v); err == nil {
						orderID = id
						found = true
					}
				}
			}

			// Fallback to 'id' if 'order_id' not found
			if !found {
				if idVal, exists := orderMap["id"]; exists {
					switch v := idVal.(type) {
					case float64:
						orderID = int(v)
						found = true
					case int:
						orderID = v
						found = true
					case string:
						if id, err := strconv.Atoi(v); err == nil {
							orderID = id
							found = true
						}
					}
				}
			}

			if found {
				_, _ = c.Cancel(orderID)
			}
		}
		return order, nil
	}

	// Duration validation
	durationLower := strings.ToLower(duration)
	durationID, ok := DurationMap[durationLower]
	if !ok {
		return nil, fmt.Errorf("unknown duration %s", duration)
	}

	// Validate order type
	if orderType < 1 || orderType > 6 {
		return nil, fmt.Errorf("invalid order type %d (must be 1-6)", orderType)
	}

	// Validate required parameters for each order type
	switch orderType {
	case 2: // Limit
		if limitPrice == nil {
			return nil, fmt.Errorf("limit_price required for limit orders (type 2)")
		}
	case 3: // Stop
		if stopPrice == nil {
			return nil, fmt.Errorf("stop_price required for stop orders (type 3)")
		}
	case 4: // StopLimit
		if limitPrice == nil || stopPrice == nil {
			return nil, fmt.Errorf("both limit_price and stop_price required for stop limit orders (type 4)")
		}
	case 5, 6: // StopLoss, TakeProfit
		if stopPrice == nil {
			return nil, fmt.Errorf("stop_price required for stop loss/take profit orders (type %d)", orderType)
		}
	}

	// Action ID calculation
	// Buy + no margin = 1, Buy + margin = 2
	// Sell + no margin = 3, Sell + margin = 4
	var actionID int
	if quantity > 0 {
		// Buy
		if useMargin {
			actionID = 2
		} else {
			actionID = 1
		}
	} else if quantity < 0 {
		// Sell
		if useMargin {
			actionID = 4
		} else {
			actionID = 3
		}
	} else {
		return nil, fmt.Errorf("zero quantity")
	}

	params := PutTradeOrderParams{
		InstrName:    symbol,
		ActionID:     actionID,
		OrderTypeID:  orderType,
		Qty:          absInt(quantity),
		LimitPrice:   limitPrice,
		StopPrice:    stopPrice,
		ExpirationID: durationID,
		UserOrderID:  customOrderID,
	}

	return c.authorizedRequest("putTradeOrder", params)
}

// Buy places a buy order (market or limit based on price parameter)
// This matches the Python SDK's buy() method exactly
func (c *Client) Buy(symbol string, quantity int, price float64, duration string, useMargin bool, customOrderID *int) (interface{}, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	// Auto-detect order type: market (price=0) or limit (price>0)
	var orderType int
	var limitPrice *float64
	if price == 0 {
		orderType = 1 // Market
	} else {
		orderType = 2 // Limit
		limitPrice = &price
	}

	return c.Trade(symbol, quantity, orderType, limitPrice, nil, duration, useMargin, customOrderID)
}

// Sell places a sell order for the specified symbol.
// This matches the Python SDK's sell() method exactly.
//
// Parameters:
//   - symbol: Tradernet symbol (e.g., "AAPL.US", "MSFT.US")
//   - quantity: Number of shares to sell (must be positive)
//   - price: Limit price (0.0 for market order)
//   - duration: Order duration - "day" (valid until end of trading day),
//     "ext" (extended day), "gtc" (good till cancelled), or "ioc" (immediate or cancel)
//   - useMargin: Whether to use margin credit
//   - customOrderID: Optional custom order ID (nil to auto-generate)
//
// API Reference: https://freedom24.com/tradernet-api/orders-place
func (c *Client) Sell(symbol string, quantity int, price float64, duration string, useMargin bool, customOrderID *int) (interface{}, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	// Auto-detect order type: market (price=0) or limit (price>0)
	var orderType int
	var limitPrice *float64
	if price == 0 {
		orderType = 1 // Market
	} else {
		orderType = 2 // Limit
		limitPrice = &price
	}

	// Negative quantity for sell
	return c.Trade(symbol, -quantity, orderType, limitPrice, nil, duration, useMargin, customOrderID)
}

// GetPlaced gets pending/active orders
// This matches the Python SDK's get_placed() method exactly
func (c *Client) GetPlaced(active bool) (interface{}, error) {
	// Convert boolean to int: True=1, False=0
	activeOnly := 0
	if active {
		activeOnly = 1
	}
	params := GetNotifyOrderJSONParams{
		ActiveOnly: activeOnly,
	}
	return c.authorizedRequest("getNotifyOrderJson", params)
}

// GetTradesHistory gets executed trades history
// This matches the Python SDK's get_trades_history() method exactly
func (c *Client) GetTradesHistory(start, end string, tradeID, limit, reception *int, symbol, currency *string) (interface{}, error) {
	params := GetTradesHistoryParams{
		BeginDate: start,
		EndDate:   end,
		TradeID:   tradeID,
		Max:       limit,
		NtTicker:  symbol,
		Curr:      currency,
		Reception: reception,
	}
	return c.authorizedRequest("getTradesHistory", params)
}

// GetQuotes gets quotes for symbols
// This matches the Python SDK's get_quotes() method exactly
func (c *Client) GetQuotes(symbols []string) (interface{}, error) {
	// Comma-separated string
	tickers := strings.Join(symbols, ",")
	params := GetStockQuotesJSONParams{
		Tickers: tickers,
	}
	return c.authorizedRequest("getStockQuotesJson", params)
}

// Cancel cancels an active order by order ID.
// This matches the Python SDK's cancel() method.
//
// Errors:
//   - Returns specific error based on error_code:
//     0: Method error (order not found, already cancelled, etc.)
//     2: Common error
//     12: No permission to cancel this order
//
// API Reference: https://freedom24.com/tradernet-api/orders-cancel
func (c *Client) Cancel(orderID int) (interface{}, error) {
	params := map[string]interface{}{
		"order_id": orderID,
	}

	result, err := c.authorizedRequest("delTradeOrder", params)
	if err != nil {
		return nil, err
	}

	// Check error_code in response
	if resultMap, ok := result.(map[string]interface{}); ok {
		if errorCode, exists := resultMap["error_code"]; exists {
			// Convert error_code to int (API may return as float64 or int)
			var code int
			switch v := errorCode.(type) {
			case float64:
				code = int(v)
			case int:
				code = v
			default:
				// Unknown type, treat as error
				return nil, fmt.Errorf("unexpected error_code type: %T", errorCode)
			}

			// Check if error occurred (non-zero error code)
			if code != 0 {
				errorMsg := "unknown error"
				if msg, exists := resultMap["error_message"]; exists {
					if msgStr, ok := msg.(string); ok {
						errorMsg = msgStr
					}
				}

				// Return specific error based on code
				switch code {
				case 2:
					return nil, fmt.Errorf("common error: %s", errorMsg)
				case 12:
					return nil, fmt.Errorf("no permission to cancel order %d: %s", orderID, errorMsg)
				default:
					return nil, fmt.Errorf("method error (code %d): %s", code, errorMsg)
				}
			}
		}
	}

	return result, nil
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

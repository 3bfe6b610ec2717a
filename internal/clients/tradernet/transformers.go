package tradernet

import (
	"fmt"
	"strconv"
	"strings"
)

// Order side/type codes as returned by the Tradernet API.
const (
	TradernetOrderTypeBuy  = "1"
	TradernetOrderTypeSell = "2"
	OrderSideBuy           = "BUY"
	OrderSideSell          = "SELL"
)

// transformOrderResult transforms SDK Buy/Sell response to OrderResult
func transformOrderResult(sdkResult interface{}, symbol, side string, quantity float64) (*OrderResult, error) {
	resultMap, ok := sdkResult.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid SDK result format: expected map[string]interface{}")
	}

	// Extract order ID - check both 'id' and 'order_id' fields
	var orderID string
	if idVal, exists := resultMap["order_id"]; exists {
		orderID = fmt.Sprintf("%v", idVal)
	} else if idVal, exists := resultMap["id"]; exists {
		orderID = fmt.Sprintf("%v", idVal)
	} else {
		return nil, fmt.Errorf("invalid SDK result format: missing 'id' or 'order_id' field")
	}

	// Extract price - check both 'price' and 'p' fields
	var price float64
	if pVal, exists := resultMap["price"]; exists {
		price = getFloat64FromValue(pVal)
	} else if pVal, exists := resultMap["p"]; exists {
		price = getFloat64FromValue(pVal)
	} else {
		price = 0.0
	}

	return &OrderResult{
		OrderID:  orderID,
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
		Price:    price,
	}, nil
}

// extractPendingOrder extracts a single pending order from a map
func extractPendingOrder(orderMap map[string]interface{}) *PendingOrder {
	// Extract order ID - check both 'id' and 'orderId' fields
	var orderID string
	if idVal, exists := orderMap["orderId"]; exists {
		orderID = fmt.Sprintf("%v", idVal)
	} else if idVal, exists := orderMap["id"]; exists {
		orderID = fmt.Sprintf("%v", idVal)
	} else {
		return nil // Skip orders without ID
	}

	order := &PendingOrder{
		OrderID:  orderID,
		Symbol:   getSymbol(orderMap),   // Use helper with fallback
		Side:     convertSide(orderMap), // Extract side (was missing)
		Quantity: getFloat64(orderMap, "q"),
		Price:    getFloat64(orderMap, "p"),
		Currency: getString(orderMap, "curr"),
	}

	return order
}

// transformPendingOrders transforms SDK GetPlaced response to []PendingOrder
// Handles both array format ({"result": [...]}) and map format ({"result": {...}})
func transformPendingOrders(sdkResult interface{}) ([]PendingOrder, error) {
	resultMap, ok := sdkResult.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid SDK result format: expected map[string]interface{}")
	}

	// Handle empty or null result
	result, ok := resultMap["result"]
	if !ok || result == nil {
		// Empty result - return empty array
		return []PendingOrder{}, nil
	}

	orders := make([]PendingOrder, 0)

	// Handle array format: {"result": [{...}, {...}]}
	if resultArray, ok := result.([]interface{}); ok {
		for _, orderItem := range resultArray {
			orderMap, ok := orderItem.(map[string]interface{})
			if !ok {
				continue
			}

			order := extractPendingOrder(orderMap)
			if order != nil {
				orders = append(orders, *order)
			}
		}
	} else if resultMapData, ok := result.(map[string]interface{}); ok {
		// Handle map format: {"result": {...}} (single order as map)
		order := extractPendingOrder(resultMapData)
		if order != nil {
			orders = append(orders, *order)
		}
	} else {
		return nil, fmt.Errorf("invalid SDK result format: 'result' must be array or map, got %T", result)
	}

	return orders, nil
}

// transformTrades transforms SDK GetTradesHistory to []Trade
func transformTrades(sdkResult interface{}) ([]Trade, error) {
	resultMap, ok := sdkResult.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid SDK result format: expected map[string]interface{}, got %T", sdkResult)
	}

	// Check if API returned an error
	if errMsg, ok := resultMap["errMsg"].(string); ok && errMsg != "" {
		return nil, fmt.Errorf("API error: %s", errMsg)
	}
	if errMsg, ok := resultMap["error"].(string); ok && errMsg != "" {
		return nil, fmt.Errorf("API error: %s", errMsg)
	}

	// Handle API response structure: {"trades": {"trade": [...], "max_trade_id": [...]}}
	tradesObj, ok := resultMap["trades"]
	if !ok || tradesObj == nil {
		// Empty result - return empty array
		return []Trade{}, nil
	}

	tradesMap, ok := tradesObj.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid SDK result format: 'trades' must be object, got %T", tradesObj)
	}

	// Extract trade array
	tradeArray, ok := tradesMap["trade"].([]interface{})
	if !ok {
		// No trades in response - return empty array
		return []Trade{}, nil
	}

	trades := make([]Trade, 0, len(tradeArray))
	for _, item := range tradeArray {
		itemMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		// Extract order ID - check both 'order_id' and 'id' fields
		var orderID string
		if idVal, exists := itemMap["order_id"]; exists {
			orderID = fmt.Sprintf("%v", idVal)
		} else if idVal, exists := itemMap["id"]; exists {
			orderID = fmt.Sprintf("%v", idVal)
		} else {
			continue // Skip trades without ID
		}

		price := getFloat64(itemMap, "p")
		symbol := getSymbol(itemMap)

		trade := Trade{
			OrderID:    orderID,
			Symbol:     symbol,
			Side:       convertSide(itemMap), // Convert type field
			Quantity:   getFloat64(itemMap, "q"),
			Price:      price,
			ExecutedAt: getExecutedAt(itemMap), // Use helper with fallback
		}

		trades = append(trades, trade)
	}

	return trades, nil
}

// transformQuote transforms SDK GetQuotes to Quote
// Handles both array and map response formats from getStockQuotesJson
func transformQuote(sdkResult interface{}, symbol string) (*Quote, error) {
	resultMap, ok := sdkResult.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid SDK result format: expected map[string]interface{}")
	}

	result, ok := resultMap["result"]
	if !ok {
		return nil, fmt.Errorf("invalid SDK result format: missing 'result' field")
	}

	var symbolData map[string]interface{}

	// Handle array format: result is an array of quote objects
	if resultArray, ok := result.([]interface{}); ok {
		// Search for the quote with matching symbol
		found := false
		for _, item := range resultArray {
			itemMap, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			// Check if this item matches the symbol
			// The symbol might be in different fields: "symbol", "i", "ticker", etc.
			itemSymbol := getString(itemMap, "symbol")
			if itemSymbol == "" {
				itemSymbol = getString(itemMap, "i")
			}
			if itemSymbol == "" {
				itemSymbol = getString(itemMap, "ticker")
			}
			if itemSymbol == symbol {
				symbolData = itemMap
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("quote not found for symbol: %s", symbol)
		}
	} else if resultMapData, ok := result.(map[string]interface{}); ok {
		// Handle map format: result is a map keyed by symbol
		var found bool
		symbolData, found = resultMapData[symbol].(map[string]interface{})
		if !found {
			return nil, fmt.Errorf("quote not found for symbol: %s", symbol)
		}
	} else {
		return nil, fmt.Errorf("invalid SDK result format: 'result' must be array or map, got %T", result)
	}

	quote := &Quote{
		Symbol:    symbol,
		Price:     getFloat64(symbolData, "p"),
		Change:    getFloat64(symbolData, "change"),
		ChangePct: getFloat64(symbolData, "change_pct"),
		Volume:    int64(getFloat64(symbolData, "volume")),
		Timestamp: getString(symbolData, "timestamp"),
	}

	// Handle alternative field names (fallback)
	if quote.Price == 0 {
		quote.Price = getFloat64(symbolData, "ltp")
	}
	if quote.Price == 0 {
		quote.Price = getFloat64(symbolData, "last_price")
	}
	if quote.Change == 0 {
		quote.Change = getFloat64(symbolData, "chg")
	}
	if quote.ChangePct == 0 {
		quote.ChangePct = getFloat64(symbolData, "chg_pc")
	}
	if quote.Volume == 0 {
		quote.Volume = int64(getFloat64(symbolData, "v"))
	}

	return quote, nil
}

// Helper functions

// getString safely extracts a string value from a map
func getString(m map[string]interface{}, key string) string {
	if val, exists := m[key]; exists {
		if str, ok := val.(string); ok {
			return str
		}
		// Try to convert other types to string
		return fmt.Sprintf("%v", val)
	}
	return ""
}

// getFloat64 safely extracts a float64 value from a map
func getFloat64(m map[string]interface{}, key string) float64 {
	if val, exists := m[key]; exists {
		return getFloat64FromValue(val)
	}
	return 0.0
}

// getFloat64FromValue safely converts a value to float64
func getFloat64FromValue(val interface{}) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case string:
		// Tradernet API returns some numeric fields as strings (e.g., "p": "141.4")
		if floatVal, err := strconv.ParseFloat(v, 64); err == nil {
			return floatVal
		}
		return 0.0
	default:
		return 0.0
	}
}

// getSymbol extracts symbol with fallback (instr_nm → instr_name → i)
func getSymbol(m map[string]interface{}) string {
	// Try instr_nm first (most trades use this)
	if val := getString(m, "instr_nm"); val != "" {
		return val
	}
	// Try instr_name (pending orders use this)
	if val := getString(m, "instr_name"); val != "" {
		return val
	}
	// Fallback to i (older format)
	return getString(m, "i")
}

// getExecutedAt extracts date with fallback (date → d → executed_at)
func getExecutedAt(m map[string]interface{}) string {
	if val := getString(m, "date"); val != "" {
		return val
	}
	if val := getString(m, "d"); val != "" {
		return val
	}
	return getString(m, "executed_at")
}

// convertSide converts API type field to BUY/SELL
// Handles: type="1" → BUY, type="2" → SELL, buy_sell="buy"/"BUY" → BUY, etc.
func convertSide(m map[string]interface{}) string {
	// Try "type" field first (trades use numeric codes)
	if typeVal := getString(m, "type"); typeVal != "" {
		switch typeVal {
		case TradernetOrderTypeBuy:
			return OrderSideBuy
		case TradernetOrderTypeSell:
			return OrderSideSell
		}
	}

	// Try "buy_sell" field (pending orders use this, can be lowercase or uppercase)
	if sideVal := getString(m, "buy_sell"); sideVal != "" {
		// Normalize to uppercase to handle "buy"/"BUY" and "sell"/"SELL"
		upper := strings.ToUpper(sideVal)
		if upper == OrderSideBuy || upper == OrderSideSell {
			return upper
		}
	}

	// Try "side" field as fallback (normalize to uppercase)
	if sideVal := getString(m, "side"); sideVal != "" {
		upper := strings.ToUpper(sideVal)
		if upper == OrderSideBuy || upper == OrderSideSell {
			return upper
		}
	}

	return ""
}

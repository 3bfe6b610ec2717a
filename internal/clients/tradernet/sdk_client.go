package tradernet

// SDKClient interface for dependency injection in tests.
// This interface matches the subset of SDK client methods the order-execution
// and market-data paths need.
type SDKClient interface {
	Buy(symbol string, quantity int, price float64, duration string, useMargin bool, customOrderID *int) (interface{}, error)
	Sell(symbol string, quantity int, price float64, duration string, useMargin bool, customOrderID *int) (interface{}, error)
	GetPlaced(active bool) (interface{}, error)
	GetTradesHistory(start, end string, tradeID, limit, reception *int, symbol, currency *string) (interface{}, error)
	GetQuotes(symbols []string) (interface{}, error)
}

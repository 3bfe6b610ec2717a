package domain

// BrokerClient defines broker-agnostic order-execution and market-data
// operations, implemented by tradernet.TradernetBrokerAdapter. The
// order-submission, quote-polling and order-query adapters in internal/di
// hold the concrete *TradernetBrokerAdapter rather than this interface.
// Portfolio, cash, and security-lookup operations are out of scope
// for this core — it manages order-execution resilience, not a full
// trading API.
type BrokerClient interface {
	// Trading operations
	PlaceOrder(symbol, side string, quantity, limitPrice float64) (*BrokerOrderResult, error)
	GetExecutedTrades(limit int) ([]BrokerTrade, error)
	GetPendingOrders() ([]BrokerPendingOrder, error)

	// Market data operations
	GetQuote(symbol string) (*BrokerQuote, error)
}

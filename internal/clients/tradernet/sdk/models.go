package sdk

// PutTradeOrderParams represents parameters for putTradeOrder command
// CRITICAL: Field order MUST match Python's dict insertion order exactly!
// Python order: 'instr_name', 'action_id', 'order_type_id', 'qty', 'limit_price', 'stop_price', 'expiration_id', 'user_order_id'
type PutTradeOrderParams struct {
	InstrName    string   `json:"instr_name"`              // Field 1
	ActionID     int      `json:"action_id"`               // Field 2
	OrderTypeID  int      `json:"order_type_id"`           // Field 3
	Qty          int      `json:"qty"`                     // Field 4
	LimitPrice   *float64 `json:"limit_price,omitempty"`   // Field 5 - Nullable for market orders
	StopPrice    *float64 `json:"stop_price,omitempty"`    // Field 6 - Required for stop orders (types 3-6)
	ExpirationID int      `json:"expiration_id"`           // Field 7
	UserOrderID  *int     `json:"user_order_id,omitempty"` // Field 8
}

// GetNotifyOrderJSONParams represents parameters for getNotifyOrderJSON command
// CRITICAL: Field order MUST match Python's dict insertion order exactly!
type GetNotifyOrderJSONParams struct {
	ActiveOnly int `json:"active_only"` // Boolean converted to int: True=1, False=0
}

// GetTradesHistoryParams represents parameters for getTradesHistory command
// CRITICAL: Field order MUST match Python's dict insertion order exactly!
// Python order: 'beginDate', 'endDate', 'tradeId', 'max', 'nt_ticker', 'curr', 'reception'
type GetTradesHistoryParams struct {
	BeginDate string  `json:"beginDate"`           // Field 1 - ISO format YYYY-MM-DD
	EndDate   string  `json:"endDate"`             // Field 2 - ISO format YYYY-MM-DD
	TradeID   *int    `json:"tradeId,omitempty"`   // Field 3 - optional
	Max       *int    `json:"max,omitempty"`       // Field 4 - optional
	NtTicker  *string `json:"nt_ticker,omitempty"` // Field 5 - optional
	Curr      *string `json:"curr,omitempty"`      // Field 6 - optional
	Reception *int    `json:"reception,omitempty"` // Field 7 - optional (office/reception filter)
}

// GetStockQuotesJSONParams represents parameters for getStockQuotesJSON command
// CRITICAL: Field order MUST match Python's dict insertion order exactly!
type GetStockQuotesJSONParams struct {
	Tickers string `json:"tickers"` // Comma-separated string: "AAPL.US,MSFT.US"
}

package tradernet

import "github.com/sentience-labs/resilience-core/internal/domain"

// Tradernet API Field Name Mappings
//
// Tradernet uses cryptic, abbreviated field names in their API responses.
// This document maps their names to our domain model for reference.
//
// Trade Fields:
//   "i"/"instr_nm"/"instr_name" → Symbol  (three variants!)
//   "type"/"buy_sell"/"side"    → Side    (BUY/SELL - three variants!)
//   "q"                         → Quantity
//   "p"/"price"                 → Price
//   "executed_at"/"date"/"d"    → ExecutedAt
//
// Order Type Codes (magic numbers):
//   "1" → BUY
//   "2" → SELL
//
// Note: Tradernet's API is inconsistent - different endpoints use different
// field names for the same concept. Transformers handle all variants with
// priority-based fallback logic (clear names preferred over cryptic ones).
//
// Constants are defined in transformers.go

// transformOrderResultToDomain converts Tradernet order result to domain broker order result
func transformOrderResultToDomain(tnResult *OrderResult) *domain.BrokerOrderResult {
	if tnResult == nil {
		return nil
	}
	return &domain.BrokerOrderResult{
		OrderID:  tnResult.OrderID,
		Symbol:   tnResult.Symbol,
		Side:     tnResult.Side,
		Quantity: tnResult.Quantity,
		Price:    tnResult.Price,
	}
}

// transformTradesToDomain converts Tradernet trades to domain broker trades
func transformTradesToDomain(tnTrades []Trade) []domain.BrokerTrade {
	result := make([]domain.BrokerTrade, len(tnTrades))
	for i, tn := range tnTrades {
		result[i] = domain.BrokerTrade{
			OrderID:    tn.OrderID,
			Symbol:     tn.Symbol,
			Side:       tn.Side,
			Quantity:   tn.Quantity,
			Price:      tn.Price,
			ExecutedAt: tn.ExecutedAt,
		}
	}
	return result
}

// transformQuoteToDomain converts Tradernet quote to domain broker quote
func transformQuoteToDomain(tnQuote *Quote) *domain.BrokerQuote {
	if tnQuote == nil {
		return nil
	}
	return &domain.BrokerQuote{
		Symbol:    tnQuote.Symbol,
		Price:     tnQuote.Price,
		Change:    tnQuote.Change,
		ChangePct: tnQuote.ChangePct,
		Volume:    tnQuote.Volume,
		Timestamp: tnQuote.Timestamp,
	}
}

// transformPendingOrdersToDomain converts Tradernet pending orders to domain broker pending orders
func transformPendingOrdersToDomain(tnOrders []PendingOrder) []domain.BrokerPendingOrder {
	result := make([]domain.BrokerPendingOrder, len(tnOrders))
	for i, tn := range tnOrders {
		result[i] = domain.BrokerPendingOrder{
			OrderID:  tn.OrderID,
			Symbol:   tn.Symbol,
			Side:     tn.Side,
			Quantity: tn.Quantity,
			Price:    tn.Price,
			Currency: tn.Currency,
		}
	}
	return result
}

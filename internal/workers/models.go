// Package workers implements the order-lifecycle and outbox/reconciliation
// flows that keep broker state, close requests, and positions consistent
// across crashes and restarts.
package workers

import (
	"encoding/json"
	"time"
)

// OrderStatus is the monotonic broker-order lifecycle state.
type OrderStatus string

const (
	OrderPending     OrderStatus = "pending"
	OrderSubmitted   OrderStatus = "submitted"
	OrderPartialFill OrderStatus = "partial"
	OrderCancelReq   OrderStatus = "cancel_req"
	OrderCancelled   OrderStatus = "cancelled"
	OrderRejected    OrderStatus = "rejected"
	OrderExpired     OrderStatus = "expired"
	OrderFilled      OrderStatus = "filled"
)

// terminalOrderStates are states from which an order does not progress
// further, except for the late-FILLED upgrade path.
var terminalOrderStates = map[OrderStatus]bool{
	OrderFilled:    true,
	OrderCancelled: true,
	OrderRejected:  true,
	OrderExpired:   true,
}

// statusOrder gives the monotonic rank of each status. FILLED is highest:
// once filled, nothing overrides it.
var statusOrder = map[OrderStatus]int{
	OrderPending:     0,
	OrderSubmitted:   1,
	OrderPartialFill: 2,
	OrderCancelReq:   2,
	OrderCancelled:   3,
	OrderRejected:    3,
	OrderExpired:     3,
	OrderFilled:      4,
}

// brokerStatusMap translates a raw broker status string into an OrderStatus.
var brokerStatusMap = map[string]OrderStatus{
	"NEW":          OrderPending,
	"SUBMITTED":    OrderSubmitted,
	"PARTIAL":      OrderPartialFill,
	"PARTIAL_FILL": OrderPartialFill,
	"FILLED":       OrderFilled,
	"CANCELLED":    OrderCancelled,
	"REJECTED":     OrderRejected,
	"EXPIRED":      OrderExpired,
}

// OrderRecord mirrors a single broker order and its fill progress.
type OrderRecord struct {
	OrderID                int64
	BrokerOrderID          string
	CloseRequestID         *int64
	Status                 OrderStatus
	FilledQty              int64
	BrokerUpdateSeq        *int64
	LastBrokerUpdateAt     *time.Time
	ReconcileNotFoundCount int
}

// CloseRequestStatus is the lifecycle state of a position-close attempt.
type CloseRequestStatus string

const (
	CloseRequestPending   CloseRequestStatus = "pending"
	CloseRequestSubmitted CloseRequestStatus = "submitted"
	CloseRequestCompleted CloseRequestStatus = "completed"
	CloseRequestFailed    CloseRequestStatus = "failed"
	CloseRequestRetryable CloseRequestStatus = "retryable"
)

// CloseRequest snapshots the side/symbol/asset_type/target_qty at creation
// time; retries must reuse these fields, never re-derive from the live
// position.
type CloseRequest struct {
	ID           int64
	PositionID   int64
	Status       CloseRequestStatus
	Symbol       string
	Side         string
	AssetType    string
	TargetQty    int64
	FilledQty    int64
	RetryCount   int
	MaxRetries   int
	CreatedAt    time.Time
	SubmittedAt  *time.Time
	CompletedAt  *time.Time
}

// PositionStatus is the lifecycle state of a held position.
type PositionStatus string

const (
	PositionOpen           PositionStatus = "open"
	PositionClosing        PositionStatus = "closing"
	PositionClosed         PositionStatus = "closed"
	PositionCloseFailed    PositionStatus = "close_failed"
	PositionCloseRetryable PositionStatus = "close_retryable"
)

// Position tracks a held instrument position. Invariant: CLOSING must carry
// a non-nil ActiveCloseRequestID.
type Position struct {
	ID                    int64
	Symbol                string
	Status                PositionStatus
	ActiveCloseRequestID  *int64
	ClosedAt              *time.Time
}

// OutboxEventStatus is the dispatch state of a transactional outbox entry.
type OutboxEventStatus string

const (
	OutboxPending  OutboxEventStatus = "pending"
	OutboxInFlight OutboxEventStatus = "in_flight"
	OutboxDone     OutboxEventStatus = "done"
	OutboxDead     OutboxEventStatus = "dead"
)

// OutboxEvent is a durable intent written in the same transaction as the
// CloseRequest/order it represents, so a crash between the two never loses
// the intent to submit.
type OutboxEvent struct {
	ID        int64
	EventType string
	Payload   json.RawMessage
	Status    OutboxEventStatus
	CreatedAt time.Time
	ClaimedAt *time.Time
	Attempts  int
}

// SubmitCloseOrderPayload is the payload shape for "SUBMIT_CLOSE_ORDER"
// outbox events.
type SubmitCloseOrderPayload struct {
	CloseRequestID int64  `json:"close_request_id"`
	PositionID     int64  `json:"position_id"`
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	Qty            int64  `json:"qty"`
	AssetType      string `json:"asset_type"`
	IsRetry        bool   `json:"is_retry"`
}

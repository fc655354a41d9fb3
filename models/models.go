package models

import "time"

// ConnectionState describes the lifecycle of a single streaming subscription.
type ConnectionState string

const (
	StateIdle       ConnectionState = "idle"
	StateConnecting ConnectionState = "connecting"
	StateOpen       ConnectionState = "open"
	StateClosed     ConnectionState = "closed"
)

// MarketSnapshot is the current top-of-book view for one instrument. It is
// replaced wholesale on every valid inbound market frame; no field-level
// merging happens anywhere. Bid/ask sides use pointers because a partially
// known book must report the absent side as unknown, not as zero.
type MarketSnapshot struct {
	Symbol    string   `json:"symbol"`
	BestBid   *float64 `json:"best_bid,omitempty"`
	BestAsk   *float64 `json:"best_ask,omitempty"`
	BidSize   *float64 `json:"bid_size,omitempty"`
	AskSize   *float64 `json:"ask_size,omitempty"`
	LastPrice float64  `json:"last_price"`
	Timestamp string   `json:"timestamp"`
}

// ExecutionEvent is an incremental order update pushed over the executions
// stream. Executed=false means a resting order was accepted or updated,
// Executed=true means a fill or removal.
type ExecutionEvent struct {
	OrderID   string  `json:"order_id"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	Executed  bool    `json:"executed"`
	Timestamp string  `json:"timestamp"`
	Status    string  `json:"status,omitempty"`
	Type      string  `json:"type,omitempty"`
}

// Position is one open position, keyed by symbol. Positions are only ever
// replaced wholesale by a snapshot fetch, never mutated field by field.
type Position struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Size          float64 `json:"size"`
	EntryPrice    float64 `json:"entry_price"`
	MarkPrice     float64 `json:"mark_price"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
	Percentage    float64 `json:"percentage"`
	Mode          string  `json:"mode"`
	LiqPrice      float64 `json:"liq_price,omitempty"`
}

// Order is one open order, keyed by OrderID.
type Order struct {
	OrderID   string  `json:"order_id"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Type      string  `json:"type"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price,omitempty"`
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	FilledQty float64 `json:"filled_qty,omitempty"`
}

// OrderRequest is the payload for submitting a new order.
type OrderRequest struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	Quantity      float64 `json:"quantity"`
	Price         float64 `json:"price,omitempty"`
	ClientOrderID string  `json:"client_order_id,omitempty"`
}

// OrderAck is the success payload returned by the order submission endpoint.
type OrderAck struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// AccountSummary is the derived account view. Balance, UsedMargin and Leverage
// are authoritative only from the summary snapshot poll; UnrealizedPnl, Equity
// and FreeMargin are rederived from the current position set.
type AccountSummary struct {
	Equity        float64 `json:"equity"`
	Balance       float64 `json:"balance"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
	UsedMargin    float64 `json:"used_margin"`
	FreeMargin    float64 `json:"free_margin"`
	Leverage      float64 `json:"leverage"`
}

// Recompute rederives the position-dependent fields. Invariants after every
// call: Equity == Balance + UnrealizedPnl, FreeMargin == Equity - UsedMargin.
// Recomputing twice with the same position set yields identical output.
func (s *AccountSummary) Recompute(positions []Position) {
	var pnl float64
	for _, p := range positions {
		pnl += p.UnrealizedPnl
	}
	s.UnrealizedPnl = pnl
	s.Equity = s.Balance + s.UnrealizedPnl
	s.FreeMargin = s.Equity - s.UsedMargin
}

// HealthLevel is the overall system status tier. Warning is reserved for
// partial-degradation signals and is a valid value even though the current
// aggregation logic never produces it.
type HealthLevel string

const (
	HealthOK      HealthLevel = "ok"
	HealthWarning HealthLevel = "warning"
	HealthError   HealthLevel = "error"
)

// SystemStatus is the single composed connectivity/health value consumed by
// the UI. Connected is the logical AND of the market and executions stream
// connection states; LatencyMs is set independently by the health probe and
// does not gate Status.
type SystemStatus struct {
	Status      HealthLevel `json:"status"`
	Message     string      `json:"message,omitempty"`
	LatencyMs   int64       `json:"latency_ms"`
	LastUpdated time.Time   `json:"last_updated"`
	Connected   bool        `json:"connected"`
}

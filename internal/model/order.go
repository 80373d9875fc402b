package model

import "time"

// OrderRequest is the order payload the relay forwards to the broker.
// The relay does no execution logic of its own — fields are validated for
// presence only and passed through.
type OrderRequest struct {
	Symbol      string  `json:"symbol"`
	Qty         int64   `json:"qty"`
	Side        string  `json:"side"` // "BUY" or "SELL"
	Type        string  `json:"type"` // "MARKET", "LIMIT", ...
	ProductType string  `json:"productType"`
	LimitPrice  float64 `json:"limitPrice,omitempty"`
	StopPrice   float64 `json:"stopPrice,omitempty"`
}

// OrderRecord is a journaled order placement: the request the relay
// forwarded plus the broker's response.
type OrderRecord struct {
	ID       int64     `json:"id"`
	OrderID  string    `json:"order_id"`
	Symbol   string    `json:"symbol"`
	Side     string    `json:"side"`
	Type     string    `json:"type"`
	Qty      int64     `json:"qty"`
	Price    float64   `json:"price"`
	Status   string    `json:"status"`
	PlacedAt time.Time `json:"placed_at"`
}

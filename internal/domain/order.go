package domain

import "time"

// OrderRequest is a single venue order built from one take-profit of a signal.
type OrderRequest struct {
	Symbol     string // venue symbol
	Side       OrderSide
	Kind       OrderKind
	Price      float64 // limit price; reference price for market orders
	Volume     float64
	StopLoss   float64
	TakeProfit float64
	Tag        string    // correlation tag "{signalId}/{firstNumericTakeProfit}"
	Marker     string    // bot identifying marker
	Expiration time.Time // zero for market orders
}

// IsPending reports whether the order rests on the book.
func (r OrderRequest) IsPending() bool {
	return r.Kind == KindLimit
}

// OrderResult is the venue acknowledgement of a submitted order.
type OrderResult struct {
	Ticket     string
	Status     string
	FillPrice  float64
	SubmitTime time.Time
}

// PlacedOrder links a venue ticket to the signal that produced it.
type PlacedOrder struct {
	Ticket          string
	Account         string
	SignalID        int64
	TakeProfitIndex int
	Tag             string
	Symbol          string
	Kind            OrderKind
	Side            OrderSide
	Price           float64
	Volume          float64
	StopLoss        float64
	TakeProfit      float64
	PlacedAt        time.Time
}

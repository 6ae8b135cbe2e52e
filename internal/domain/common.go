package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite returns the closing side for an order opened on s.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Direction is the trade direction carried by a signal.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Side returns the order side used to open a position in this direction.
func (d Direction) Side() OrderSide {
	if d == Short {
		return Sell
	}
	return Buy
}

// ExitSide returns the side whose quote is used to value an open position.
func (d Direction) ExitSide() OrderSide {
	return d.Side().Opposite()
}

// Sign is +1 for Long and -1 for Short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// OrderKind is the execution style chosen by the classifier.
type OrderKind string

const (
	KindMarket OrderKind = "MARKET"
	KindLimit  OrderKind = "LIMIT"
)

// VenueKind identifies an execution venue implementation.
type VenueKind string

const (
	VenueBinance VenueKind = "binance"
	VenueOanda   VenueKind = "oanda"
	VenuePaper   VenueKind = "paper"
)

// CommandKind is a manual position-management instruction.
type CommandKind string

const (
	CommandClose           CommandKind = "CLOSE_NOW"
	CommandBreakEven       CommandKind = "MOVE_TO_BREAKEVEN"
	CommandTakeFirstTarget CommandKind = "TAKE_FIRST_TARGET"
)

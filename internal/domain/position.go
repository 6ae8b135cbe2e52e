package domain

import "time"

// Position is an open venue position (or resting order) carrying the bot marker.
type Position struct {
	Ticket     string
	Symbol     string // venue symbol
	Direction  Direction
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Volume     float64
	Tag        string // correlation tag as stored by the venue
	OpenTime   time.Time
	Pending    bool // true while the entry order has not filled
}

// StopDistance is the absolute distance between entry and the current stop.
func (p *Position) StopDistance() float64 {
	d := p.EntryPrice - p.StopLoss
	if d < 0 {
		return -d
	}
	return d
}

// TargetReached reports whether price has reached target in the position's favour.
func (p *Position) TargetReached(price, target float64) bool {
	if p.Direction == Short {
		return price <= target
	}
	return price >= target
}

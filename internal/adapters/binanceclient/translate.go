package binanceclient

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

const (
	maxClientOrderID = 36

	roleEntry  = ":E"
	roleStop   = ":S"
	roleTarget = ":T"
	roleClose  = ":C"
)

// legTicket is the client order id prefix shared by the orders of one leg.
func legTicket(marker, tag string, target float64) string {
	return marker + ":" + tag + ":" + decimal.NewFromFloat(target).String()
}

// splitClientID separates a client order id into leg ticket and role suffix.
func splitClientID(id string) (ticket, role string, ok bool) {
	i := strings.LastIndex(id, ":")
	if i <= 0 {
		return "", "", false
	}
	role = id[i:]
	switch role {
	case roleEntry, roleStop, roleTarget:
		return id[:i], role, true
	default:
		return "", "", false
	}
}

type leg struct {
	symbol string
	tag    string
	entry  *futures.Order
	stop   *futures.Order
	target *futures.Order
}

// groupLegs assembles legs from open orders. An empty marker accepts any marker.
func groupLegs(orders []*futures.Order, marker string) map[string]*leg {
	legs := make(map[string]*leg)
	for _, o := range orders {
		ticket, role, ok := splitClientID(o.ClientOrderID)
		if !ok {
			continue
		}
		parts := strings.SplitN(ticket, ":", 3)
		if len(parts) != 3 || (marker != "" && parts[0] != marker) {
			continue
		}
		l, ok := legs[ticket]
		if !ok {
			l = &leg{symbol: o.Symbol, tag: parts[1]}
			legs[ticket] = l
		}
		switch role {
		case roleEntry:
			l.entry = o
		case roleStop:
			l.stop = o
		case roleTarget:
			l.target = o
		}
	}
	return legs
}

// exitSide is the side of the protective orders.
func (l *leg) exitSide() futures.SideType {
	for _, o := range []*futures.Order{l.stop, l.target} {
		if o != nil {
			return o.Side
		}
	}
	if l.entry != nil && l.entry.Side == futures.SideTypeBuy {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func (l *leg) volume() string {
	for _, o := range []*futures.Order{l.stop, l.target, l.entry} {
		if o != nil {
			return o.OrigQuantity
		}
	}
	return ""
}

func (l *leg) position(ticket string) domain.Position {
	pos := domain.Position{
		Ticket:    ticket,
		Symbol:    l.symbol,
		Tag:       l.tag,
		Direction: domain.Long,
		Pending:   l.entry != nil,
	}
	if l.exitSide() == futures.SideTypeBuy {
		pos.Direction = domain.Short
	}
	pos.Volume, _ = strconv.ParseFloat(l.volume(), 64)
	if l.stop != nil {
		pos.StopLoss, _ = strconv.ParseFloat(l.stop.StopPrice, 64)
	}
	if l.target != nil {
		pos.TakeProfit, _ = strconv.ParseFloat(l.target.StopPrice, 64)
	}
	if l.entry != nil {
		pos.EntryPrice, _ = strconv.ParseFloat(l.entry.Price, 64)
	}
	return pos
}

// deadline is the recorded expiry of a resting entry, else its creation time plus lifetime.
// Legs without a resting entry have no deadline.
func (l *leg) deadline(recorded time.Time, lifetime time.Duration) time.Time {
	if l.entry == nil {
		return time.Time{}
	}
	if !recorded.IsZero() {
		return recorded
	}
	if l.entry.Time <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(l.entry.Time).Add(lifetime)
}

// expired reports whether the leg is still resting at or after deadline.
func (l *leg) expired(now, deadline time.Time) bool {
	return l.entry != nil && !deadline.IsZero() && !now.Before(deadline)
}

func translateSymbol(s *futures.Symbol) (*domain.InstrumentInfo, error) {
	priceFilter := s.PriceFilter()
	lotFilter := s.LotSizeFilter()
	if priceFilter == nil || lotFilter == nil {
		return nil, fmt.Errorf("%w: %s is missing price or lot filters", ports.ErrInvalidRequest, s.Symbol)
	}
	tick, err := strconv.ParseFloat(priceFilter.TickSize, 64)
	if err != nil || tick <= 0 {
		return nil, fmt.Errorf("%w: %s has bad tick size %q", ports.ErrInvalidRequest, s.Symbol, priceFilter.TickSize)
	}
	minQty, _ := strconv.ParseFloat(lotFilter.MinQuantity, 64)
	maxQty, _ := strconv.ParseFloat(lotFilter.MaxQuantity, 64)
	step, _ := strconv.ParseFloat(lotFilter.StepSize, 64)

	return &domain.InstrumentInfo{
		Symbol:     s.Symbol,
		Digits:     s.PricePrecision,
		Point:      tick,
		TickSize:   tick,
		TickValue:  tick,
		VolumeMin:  minQty,
		VolumeMax:  maxQty,
		VolumeStep: step,
	}, nil
}

// volumeDigits is the number of decimals implied by a lot step.
func volumeDigits(step float64) int {
	if step <= 0 || step >= 1 {
		return 0
	}
	return int(math.Round(-math.Log10(step)))
}

func formatDecimal(v float64, digits int) string {
	return decimal.NewFromFloat(v).Round(int32(digits)).StringFixed(int32(digits))
}

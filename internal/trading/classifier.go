package trading

import (
	"fmt"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

// Decision is the execution style chosen for a signal at placement time.
type Decision struct {
	Kind  domain.OrderKind
	Price float64 // live price for market orders, entry for resting orders
}

// Classify decides between an immediate market order and a resting limit order
// by comparing the live quote with the signal's entry and stop.
//
// LONG:  live <= stop is declined; live < entry+tolerance is a market buy;
// otherwise a buy limit rests at entry. SHORT is the mirror image.
// A declined signal returns an error wrapping ports.ErrMarketState.
func Classify(sig *domain.Signal, livePrice, toleranceFactor float64) (Decision, error) {
	if livePrice <= 0 {
		return Decision{}, fmt.Errorf("%w: no live quote for %s", ports.ErrMarketState, sig.Symbol)
	}
	entry := sig.PrimaryEntry()
	tolerance := livePrice * toleranceFactor

	if sig.Direction == domain.Short {
		switch {
		case livePrice >= sig.StopLoss:
			return Decision{}, fmt.Errorf("%w: price %v already at or above stop %v", ports.ErrMarketState, livePrice, sig.StopLoss)
		case livePrice > entry-tolerance:
			return Decision{Kind: domain.KindMarket, Price: livePrice}, nil
		default:
			return Decision{Kind: domain.KindLimit, Price: entry}, nil
		}
	}

	switch {
	case livePrice <= sig.StopLoss:
		return Decision{}, fmt.Errorf("%w: price %v already at or below stop %v", ports.ErrMarketState, livePrice, sig.StopLoss)
	case livePrice < entry+tolerance:
		return Decision{Kind: domain.KindMarket, Price: livePrice}, nil
	default:
		return Decision{Kind: domain.KindLimit, Price: entry}, nil
	}
}

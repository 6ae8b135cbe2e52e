package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
	"signalCopyBot/internal/risk"
)

// SymbolTranslator maps canonical instrument codes to a broker's venue symbols.
type SymbolTranslator interface {
	Translate(canonical, broker string) string
}

// PlacerConfig holds configuration for order placement.
type PlacerConfig struct {
	ToleranceFactor          float64       // fraction of the live price absorbed as slippage
	DefaultExpirationMinutes int           // pending-order lifetime when the signal carries none
	ExpirationBuffer         time.Duration // added to every expiration
	ServerTimeOffset         time.Duration // venue clock minus local clock, used when server time is unavailable
	Marker                   string        // bot marker stamped on every order
}

// DefaultPlacerConfig returns the production defaults.
func DefaultPlacerConfig() PlacerConfig {
	return PlacerConfig{
		ToleranceFactor:          0.0005,
		DefaultExpirationMinutes: 30,
		ExpirationBuffer:         time.Minute,
		Marker:                   "20241211",
	}
}

// Placer turns a signal into one order per numeric take-profit on a single account.
type Placer struct {
	config  PlacerConfig
	sizer   *risk.Sizer
	symbols SymbolTranslator
	journal ports.PlacementJournal
	logger  ports.Logger
	now     func() time.Time
}

// NewPlacer creates an order placer. journal may be nil.
func NewPlacer(config PlacerConfig, sizer *risk.Sizer, symbols SymbolTranslator, journal ports.PlacementJournal, logger ports.Logger) *Placer {
	if config.ExpirationBuffer < 0 {
		config.ExpirationBuffer = 0
	}
	return &Placer{
		config:  config,
		sizer:   sizer,
		symbols: symbols,
		journal: journal,
		logger:  logger,
		now:     time.Now,
	}
}

// Place classifies, sizes and submits the orders of sig on one account.
// It returns the orders the venue accepted; an empty result is a valid outcome.
// Classification and sizing failures abort before any order is sent.
func (p *Placer) Place(ctx context.Context, venue ports.Venue, account domain.Account, sig *domain.Signal) ([]domain.PlacedOrder, error) {
	op := "Placer.Place"
	fields := map[string]interface{}{
		"account":  account.Name,
		"signalId": sig.SignalID,
		"symbol":   sig.Symbol,
	}

	firstTarget, ok := sig.FirstNumericTakeProfit()
	if !ok {
		p.logger.Info(ctx, op+": Signal has only open targets, nothing to place", fields)
		return nil, nil
	}

	symbol := p.symbols.Translate(sig.Symbol, account.Broker)
	fields["venueSymbol"] = symbol

	quote, err := venue.GetQuote(ctx, symbol, sig.Direction.Side())
	if err != nil {
		return nil, fmt.Errorf("%s: quote %s: %w", op, symbol, err)
	}
	decision, err := Classify(sig, quote, p.config.ToleranceFactor)
	if err != nil {
		return nil, err
	}

	info, err := venue.GetInstrumentInfo(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: instrument %s: %w: %w", op, symbol, ports.ErrSizing, err)
	}

	var balance float64
	if !account.UsesFixedLot() {
		balance, err = venue.GetAccountBalance(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: balance: %w: %w", op, ports.ErrSizing, err)
		}
	}

	targets := sig.NumericTakeProfits()
	volume, err := p.sizer.Size(risk.SizeRequest{
		Account:        account,
		Balance:        balance,
		StopDistance:   sig.StopDistance(),
		NumericTargets: len(targets),
		Author:         sig.Author,
		Symbol:         sig.Symbol,
		Instrument:     *info,
	})
	if err != nil {
		return nil, err
	}

	var expiration time.Time
	if decision.Kind == domain.KindLimit {
		expiration = p.expiration(ctx, venue, sig)
	}

	tag := FormatTag(sig.SignalID, firstTarget)
	fields["tag"] = tag
	fields["kind"] = decision.Kind
	fields["volume"] = volume
	p.logger.Info(ctx, op+": Placing orders", fields)

	placed := make([]domain.PlacedOrder, 0, len(targets))
	for i, target := range targets {
		req := domain.OrderRequest{
			Symbol:     symbol,
			Side:       sig.Direction.Side(),
			Kind:       decision.Kind,
			Price:      RoundPrice(decision.Price, info.Digits),
			Volume:     volume,
			StopLoss:   RoundPrice(sig.StopLoss, info.Digits),
			TakeProfit: RoundPrice(target, info.Digits),
			Tag:        tag,
			Marker:     p.config.Marker,
			Expiration: expiration,
		}
		res, err := venue.SubmitOrder(ctx, req)
		if err != nil {
			if !errors.Is(err, ports.ErrPlacement) {
				err = fmt.Errorf("%w: %w", ports.ErrPlacement, err)
			}
			p.logger.Error(ctx, err, op+": Take profit order rejected", map[string]interface{}{
				"account":    account.Name,
				"signalId":   sig.SignalID,
				"takeProfit": req.TakeProfit,
			})
			continue
		}

		order := domain.PlacedOrder{
			Ticket:          res.Ticket,
			Account:         account.Name,
			SignalID:        sig.SignalID,
			TakeProfitIndex: i + 1,
			Tag:             tag,
			Symbol:          symbol,
			Kind:            req.Kind,
			Side:            req.Side,
			Price:           req.Price,
			Volume:          req.Volume,
			StopLoss:        req.StopLoss,
			TakeProfit:      req.TakeProfit,
			PlacedAt:        p.now().UTC(),
		}
		placed = append(placed, order)

		if p.journal != nil {
			if err := p.journal.RecordPlacement(ctx, &order); err != nil {
				p.logger.Warn(ctx, op+": Failed to journal placement", map[string]interface{}{
					"ticket": order.Ticket,
					"error":  err.Error(),
				})
			}
		}
	}

	if len(placed) == 0 {
		p.logger.Warn(ctx, op+": No order accepted", fields)
	} else {
		p.logger.Info(ctx, op+": Orders placed", map[string]interface{}{
			"account":  account.Name,
			"signalId": sig.SignalID,
			"count":    len(placed),
		})
	}
	return placed, nil
}

// expiration is venue time plus the signal's window and the safety buffer.
// When the venue clock is unavailable the local clock shifted by the known offset is used.
func (p *Placer) expiration(ctx context.Context, venue ports.Venue, sig *domain.Signal) time.Time {
	minutes := sig.ExpirationMinutes
	if minutes <= 0 {
		minutes = p.config.DefaultExpirationMinutes
	}

	base, err := venue.GetServerTime(ctx)
	if err != nil || base.IsZero() {
		base = p.now().UTC().Add(p.config.ServerTimeOffset)
		p.logger.Warn(ctx, "Placer.expiration: Server time unavailable, using local clock", map[string]interface{}{
			"venue":  venue.Name(),
			"offset": p.config.ServerTimeOffset.String(),
		})
	}
	return base.Add(time.Duration(minutes)*time.Minute + p.config.ExpirationBuffer)
}

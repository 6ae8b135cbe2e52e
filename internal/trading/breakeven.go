package trading

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

// ThresholdPolicy selects how "stop already near entry" is measured.
type ThresholdPolicy string

const (
	// ThresholdFixed treats Threshold as an absolute price distance.
	ThresholdFixed ThresholdPolicy = "fixed"
	// ThresholdPercent treats Threshold as a percentage of the entry price.
	ThresholdPercent ThresholdPolicy = "percent"
)

// ParseThresholdPolicy validates a policy name.
func ParseThresholdPolicy(s string) (ThresholdPolicy, error) {
	switch ThresholdPolicy(s) {
	case ThresholdFixed, ThresholdPercent:
		return ThresholdPolicy(s), nil
	default:
		return "", fmt.Errorf("%w: unknown break-even threshold policy %q", ports.ErrConfigurationError, s)
	}
}

// BreakEvenConfig holds configuration for the break-even engine.
type BreakEvenConfig struct {
	Interval  time.Duration
	Policy    ThresholdPolicy
	Threshold float64
	Offset    float64 // locked-in profit beyond entry, in price units
	Marker    string
}

// DefaultBreakEvenConfig returns a 200ms fixed-threshold configuration.
func DefaultBreakEvenConfig() BreakEvenConfig {
	return BreakEvenConfig{
		Interval:  200 * time.Millisecond,
		Policy:    ThresholdFixed,
		Threshold: 0.5,
		Marker:    "20241211",
	}
}

// BreakEvenEngine moves stops to entry once the first target of a signal is reached.
// Decisions are taken on the master account and propagated to replicas by signal id.
type BreakEvenEngine struct {
	config   BreakEvenConfig
	master   AccountRunner
	replicas []AccountRunner
	logger   ports.Logger

	// outstanding holds, per replica, master stops not yet applied there.
	// Only Cycle reads or replaces it and the stored maps are never mutated.
	outstanding map[string]map[int64]float64
}

type movedStop struct {
	signalID int64
	stop     float64
}

type propagation struct {
	applied     int
	outstanding map[int64]float64
}

// NewBreakEvenEngine creates the engine. With one runner it works in single-account mode.
func NewBreakEvenEngine(config BreakEvenConfig, runners []AccountRunner, logger ports.Logger) (*BreakEvenEngine, error) {
	if len(runners) == 0 {
		return nil, fmt.Errorf("%w: break-even engine needs at least one account", ports.ErrConfigurationError)
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("%w: break-even interval must be positive", ports.ErrConfigurationError)
	}
	if _, err := ParseThresholdPolicy(string(config.Policy)); err != nil {
		return nil, err
	}
	master, replicas := splitMaster(runners)
	return &BreakEvenEngine{
		config:      config,
		master:      master,
		replicas:    replicas,
		logger:      logger,
		outstanding: make(map[string]map[int64]float64),
	}, nil
}

// Run evaluates positions on every tick until ctx is canceled.
func (e *BreakEvenEngine) Run(ctx context.Context) error {
	op := "BreakEvenEngine.Run"
	e.logger.Info(ctx, op+": Starting break-even loop", map[string]interface{}{
		"interval": e.config.Interval.String(),
		"policy":   string(e.config.Policy),
		"master":   e.master.Account().Name,
		"replicas": len(e.replicas),
	})

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info(ctx, op+": Break-even loop stopped")
			return nil
		case <-ticker.C:
			e.Cycle(ctx)
		}
	}
}

// Cycle runs one synchronous evaluation over the master and then the replicas.
// Replica stops that could not be applied yet are retried on later cycles.
// It returns the number of stop modifications applied. Cycle is not safe for
// concurrent use.
func (e *BreakEvenEngine) Cycle(ctx context.Context) int {
	evaluated := make(chan []movedStop, 1)
	err := e.master.Run(ctx, func(ctx context.Context, venue ports.Venue) error {
		moved, err := e.evaluateMaster(ctx, venue)
		evaluated <- moved
		return err
	})
	var moved []movedStop
	select {
	case moved = <-evaluated:
	default:
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			e.logger.Error(ctx, err, "BreakEvenEngine.Cycle: Master evaluation failed", map[string]interface{}{
				"account": e.master.Account().Name,
			})
		}
		return len(moved)
	}

	applied := len(moved)
	for _, replica := range e.replicas {
		replica := replica
		name := replica.Account().Name
		stops := make(map[int64]float64, len(e.outstanding[name])+len(moved))
		for id, stop := range e.outstanding[name] {
			stops[id] = stop
		}
		for _, m := range moved {
			stops[m.signalID] = m.stop
		}
		if len(stops) == 0 {
			continue
		}

		done := make(chan propagation, 1)
		err := replica.Run(ctx, func(ctx context.Context, venue ports.Venue) error {
			n, left, err := e.propagate(ctx, venue, replica.Account(), stops)
			done <- propagation{applied: n, outstanding: left}
			return err
		})
		e.outstanding[name] = stops
		select {
		case r := <-done:
			applied += r.applied
			e.outstanding[name] = r.outstanding
		default:
		}
		if err != nil {
			e.logger.Error(ctx, fmt.Errorf("%w: %w", ports.ErrPropagation, err), "BreakEvenEngine.Cycle: Replica propagation failed", map[string]interface{}{
				"account": name,
			})
		}
	}
	return applied
}

func (e *BreakEvenEngine) evaluateMaster(ctx context.Context, venue ports.Venue) ([]movedStop, error) {
	op := "BreakEvenEngine.evaluateMaster"
	positions, err := venue.ListOpenPositions(ctx, e.config.Marker)
	if err != nil {
		return nil, fmt.Errorf("%s: list positions: %w", op, err)
	}

	var moved []movedStop
	infos := make(map[string]*domain.InstrumentInfo)
	for i := range positions {
		pos := &positions[i]
		if pos.Pending {
			continue
		}
		tag, err := ParseTag(pos.Tag)
		if err != nil {
			e.logger.Debug(ctx, op+": Skipping position with foreign tag", map[string]interface{}{
				"ticket": pos.Ticket,
				"tag":    pos.Tag,
			})
			continue
		}

		price, err := venue.GetQuote(ctx, pos.Symbol, pos.Direction.ExitSide())
		if err != nil {
			e.logger.Warn(ctx, op+": Quote unavailable", map[string]interface{}{
				"symbol": pos.Symbol,
				"error":  err.Error(),
			})
			continue
		}
		if !pos.TargetReached(price, tag.FirstTakeProfit) {
			continue
		}
		if pos.StopDistance() <= e.threshold(pos.EntryPrice) {
			continue
		}

		info, err := instrumentInfo(ctx, venue, infos, pos.Symbol)
		if err != nil {
			e.logger.Warn(ctx, op+": Instrument info unavailable", map[string]interface{}{
				"symbol": pos.Symbol,
				"error":  err.Error(),
			})
			continue
		}
		newStop := RoundPrice(breakEvenStop(pos, e.config.Offset), info.Digits)
		if !stopImproves(pos, newStop, info.MinStopChange()) {
			continue
		}

		if err := venue.ModifyStop(ctx, pos.Ticket, newStop, pos.TakeProfit); err != nil {
			e.logger.Error(ctx, err, op+": Failed to move stop to break-even", map[string]interface{}{
				"ticket":   pos.Ticket,
				"signalId": tag.SignalID,
			})
			continue
		}
		e.logger.Info(ctx, op+": Stop moved to break-even", map[string]interface{}{
			"ticket":   pos.Ticket,
			"signalId": tag.SignalID,
			"price":    price,
			"newStop":  newStop,
		})
		moved = append(moved, movedStop{signalID: tag.SignalID, stop: newStop})
	}
	return moved, nil
}

// propagate applies master stops to a replica's positions of the same signals.
// It returns the stops that must be retried on a later cycle: legs still
// Pending on the replica and legs whose refresh or modification failed.
// Signals with no listed leg on the replica are dropped.
func (e *BreakEvenEngine) propagate(ctx context.Context, venue ports.Venue, account domain.Account, stops map[int64]float64) (int, map[int64]float64, error) {
	op := "BreakEvenEngine.propagate"
	positions, err := venue.ListOpenPositions(ctx, e.config.Marker)
	if err != nil {
		return 0, stops, fmt.Errorf("%s: list positions: %w", op, err)
	}

	applied := 0
	outstanding := make(map[int64]float64)
	infos := make(map[string]*domain.InstrumentInfo)
	for i := range positions {
		listed := &positions[i]
		tag, err := ParseTag(listed.Tag)
		if err != nil {
			continue
		}
		target, ok := stops[tag.SignalID]
		if !ok {
			continue
		}

		fields := map[string]interface{}{
			"account":  account.Name,
			"ticket":   listed.Ticket,
			"signalId": tag.SignalID,
		}
		if listed.Pending {
			e.logger.Debug(ctx, op+": Replica leg still pending, retrying next cycle", fields)
			outstanding[tag.SignalID] = target
			continue
		}

		// The position may have been closed by hand since it was listed.
		pos, err := venue.GetPosition(ctx, listed.Ticket)
		if err != nil {
			if errors.Is(err, ports.ErrPositionNotFound) {
				e.logger.Debug(ctx, op+": Replica position gone", fields)
				continue
			}
			e.logger.Error(ctx, fmt.Errorf("%w: %w", ports.ErrPropagation, err), op+": Failed to refresh replica position", fields)
			outstanding[tag.SignalID] = target
			continue
		}

		info, err := instrumentInfo(ctx, venue, infos, pos.Symbol)
		if err != nil {
			e.logger.Error(ctx, fmt.Errorf("%w: %w", ports.ErrPropagation, err), op+": Instrument info unavailable", fields)
			outstanding[tag.SignalID] = target
			continue
		}
		newStop := RoundPrice(target, info.Digits)
		if !stopImproves(pos, newStop, info.MinStopChange()) {
			continue
		}

		if err := venue.ModifyStop(ctx, pos.Ticket, newStop, pos.TakeProfit); err != nil {
			e.logger.Error(ctx, fmt.Errorf("%w: %w", ports.ErrPropagation, err), op+": Failed to modify replica stop", fields)
			outstanding[tag.SignalID] = target
			continue
		}
		fields["newStop"] = newStop
		e.logger.Info(ctx, op+": Replica stop moved to break-even", fields)
		applied++
	}
	return applied, outstanding, nil
}

func (e *BreakEvenEngine) threshold(entry float64) float64 {
	if e.config.Policy == ThresholdPercent {
		return entry * e.config.Threshold / 100
	}
	return e.config.Threshold
}

// breakEvenStop is entry plus offset in the position's favour.
func breakEvenStop(pos *domain.Position, offset float64) float64 {
	return pos.EntryPrice + pos.Direction.Sign()*offset
}

// stopImproves reports whether moving the stop to newStop tightens it by at least minChange.
func stopImproves(pos *domain.Position, newStop, minChange float64) bool {
	gain := pos.Direction.Sign() * (newStop - pos.StopLoss)
	return gain > 0 && math.Abs(newStop-pos.StopLoss) >= minChange
}

func instrumentInfo(ctx context.Context, venue ports.Venue, cache map[string]*domain.InstrumentInfo, symbol string) (*domain.InstrumentInfo, error) {
	if info, ok := cache[symbol]; ok {
		return info, nil
	}
	info, err := venue.GetInstrumentInfo(ctx, symbol)
	if err != nil {
		return nil, err
	}
	cache[symbol] = info
	return info, nil
}

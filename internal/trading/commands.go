package trading

import (
	"context"
	"errors"
	"fmt"
	"math"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

// CommandExecutor applies manual commands to every account's positions of a signal.
type CommandExecutor struct {
	master   AccountRunner
	replicas []AccountRunner
	marker   string
	offset   float64
	logger   ports.Logger
}

// NewCommandExecutor creates an executor. offset is the break-even offset in price units.
func NewCommandExecutor(runners []AccountRunner, marker string, offset float64, logger ports.Logger) *CommandExecutor {
	master, replicas := splitMaster(runners)
	return &CommandExecutor{
		master:   master,
		replicas: replicas,
		marker:   marker,
		offset:   offset,
		logger:   logger,
	}
}

// Execute runs cmd on the master first, then on each replica.
// It returns the number of positions affected and the joined per-account errors.
func (c *CommandExecutor) Execute(ctx context.Context, cmd domain.ManualCommand) (int, error) {
	op := "CommandExecutor.Execute"
	if c.master == nil {
		return 0, fmt.Errorf("%s: %w: no accounts configured", op, ports.ErrConfigurationError)
	}

	c.logger.Info(ctx, op+": Executing manual command", map[string]interface{}{
		"command":  string(cmd.Kind),
		"signalId": cmd.SignalID,
		"author":   cmd.Author,
	})

	total := 0
	var errs []error
	for _, runner := range append([]AccountRunner{c.master}, c.replicas...) {
		account := runner.Account()
		counted := make(chan int, 1)
		err := runner.Run(ctx, func(ctx context.Context, venue ports.Venue) error {
			n, err := c.apply(ctx, venue, account, cmd)
			counted <- n
			return err
		})
		select {
		case n := <-counted:
			total += n
		default:
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", account.Name, err))
		}
	}

	if total == 0 {
		c.logger.Warn(ctx, op+": No position matched the command", map[string]interface{}{
			"command":  string(cmd.Kind),
			"signalId": cmd.SignalID,
		})
	}
	return total, errors.Join(errs...)
}

func (c *CommandExecutor) apply(ctx context.Context, venue ports.Venue, account domain.Account, cmd domain.ManualCommand) (int, error) {
	op := "CommandExecutor.apply"
	positions, err := venue.ListOpenPositions(ctx, c.marker)
	if err != nil {
		return 0, fmt.Errorf("%s: list positions: %w", op, err)
	}

	affected := 0
	var errs []error
	infos := make(map[string]*domain.InstrumentInfo)
	for i := range positions {
		pos := &positions[i]
		tag, err := ParseTag(pos.Tag)
		if err != nil || tag.SignalID != cmd.SignalID {
			continue
		}
		fields := map[string]interface{}{
			"account":  account.Name,
			"ticket":   pos.Ticket,
			"signalId": tag.SignalID,
		}

		switch cmd.Kind {
		case domain.CommandClose:
			err = venue.ClosePosition(ctx, pos.Ticket)

		case domain.CommandTakeFirstTarget:
			info, ierr := instrumentInfo(ctx, venue, infos, pos.Symbol)
			tolerance := 1e-9
			if ierr == nil && info.Point > 0 {
				tolerance = info.Point / 2
			}
			if math.Abs(pos.TakeProfit-tag.FirstTakeProfit) > tolerance {
				continue
			}
			err = venue.ClosePosition(ctx, pos.Ticket)

		case domain.CommandBreakEven:
			if pos.Pending {
				continue
			}
			info, ierr := instrumentInfo(ctx, venue, infos, pos.Symbol)
			if ierr != nil {
				err = ierr
				break
			}
			newStop := RoundPrice(breakEvenStop(pos, c.offset), info.Digits)
			if !stopImproves(pos, newStop, info.MinStopChange()) {
				continue
			}
			err = venue.ModifyStop(ctx, pos.Ticket, newStop, pos.TakeProfit)
			fields["newStop"] = newStop

		default:
			return affected, fmt.Errorf("%s: %w: unknown command %q", op, ports.ErrInvalidRequest, cmd.Kind)
		}

		if err != nil {
			c.logger.Error(ctx, err, op+": Command failed on position", fields)
			errs = append(errs, err)
			continue
		}
		affected++
		c.logger.Info(ctx, op+": Command applied", fields)
	}
	return affected, errors.Join(errs...)
}

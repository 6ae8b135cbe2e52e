package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/parser"
	"signalCopyBot/internal/ports"
	"signalCopyBot/internal/trading"
)

// Runnable is a background component that runs until ctx is canceled.
type Runnable interface {
	Run(ctx context.Context) error
}

// timeSyncer is implemented by venues that keep a local clock offset to the server.
type timeSyncer interface {
	SyncTime(ctx context.Context) error
}

// ServiceConfig holds the orchestration timings.
type ServiceConfig struct {
	AccountTimeout time.Duration
	ShutdownGrace  time.Duration
	// JournalRetention prunes journal entries older than this at start; zero keeps everything.
	JournalRetention time.Duration
}

// ServiceDeps are the collaborators wired by main. BreakEven, HTTP and Journal are optional.
type ServiceDeps struct {
	Router    *parser.Router
	Placer    *trading.Placer
	Commands  *trading.CommandExecutor
	BreakEven Runnable
	HTTP      Runnable
	Journal   ports.PlacementJournal
	Sources   []ports.MessageSource
	Workers   []*AccountWorker
	Logger    ports.Logger
}

// AccountReport is the placement result on one account.
type AccountReport struct {
	Account string
	Orders  []domain.PlacedOrder
	Err     error
}

// MessageReport summarizes what happened to one inbound message.
type MessageReport struct {
	TraceID  string
	Outcome  parser.Outcome
	Signal   *domain.Signal
	Command  *domain.ManualCommand
	Affected int
	Accounts []AccountReport
	Err      error
}

// outcomes outside the parser's vocabulary
const (
	outcomeCommand   parser.Outcome = "command"
	outcomeDuplicate parser.Outcome = "duplicate"
)

// CopierService turns inbound messages into orders on every account and keeps the
// break-even loop running.
type CopierService struct {
	cfg       ServiceConfig
	logger    ports.Logger
	router    *parser.Router
	placer    *trading.Placer
	commands  *trading.CommandExecutor
	breakEven Runnable
	http      Runnable
	journal   ports.PlacementJournal
	sources   []ports.MessageSource
	master    *AccountWorker
	replicas  []*AccountWorker
	workers   []*AccountWorker
}

// NewCopierService validates dependencies and orders the workers master first.
func NewCopierService(cfg ServiceConfig, deps ServiceDeps) (*CopierService, error) {
	if deps.Logger == nil || deps.Router == nil || deps.Placer == nil || deps.Commands == nil {
		return nil, fmt.Errorf("missing required dependencies for CopierService")
	}
	if len(deps.Workers) == 0 {
		return nil, fmt.Errorf("%w: at least one account worker is required", ports.ErrConfigurationError)
	}
	if cfg.AccountTimeout <= 0 {
		cfg.AccountTimeout = 30 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}

	s := &CopierService{
		cfg:       cfg,
		logger:    deps.Logger,
		router:    deps.Router,
		placer:    deps.Placer,
		commands:  deps.Commands,
		breakEven: deps.BreakEven,
		http:      deps.HTTP,
		journal:   deps.Journal,
		sources:   deps.Sources,
		workers:   deps.Workers,
	}
	for _, w := range deps.Workers {
		if s.master == nil && w.Account().IsMaster {
			s.master = w
			continue
		}
		s.replicas = append(s.replicas, w)
	}
	if s.master == nil {
		s.master, s.replicas = s.replicas[0], s.replicas[1:]
	}
	return s, nil
}

// Start runs the message sources, the break-even loop and the HTTP API until a shutdown
// signal arrives or a component fails.
func (s *CopierService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Copier Service...", map[string]interface{}{
		"master":   s.master.Account().Name,
		"replicas": len(s.replicas),
		"sources":  len(s.sources),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	// 1. Account workers
	for _, w := range s.workers {
		w.Start()
	}
	defer s.stopWorkers()

	// 2. Venue clocks
	s.syncTime(ctx)

	// 3. Journal housekeeping
	if s.journal != nil && s.cfg.JournalRetention > 0 {
		if _, err := s.journal.Prune(ctx, time.Now().Add(-s.cfg.JournalRetention)); err != nil {
			s.logger.Warn(ctx, "Failed to prune placement journal", map[string]interface{}{"error": err.Error()})
		}
	}

	// 4. Components
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range s.sources {
		src := src
		g.Go(func() error {
			s.logger.Info(gctx, "Message source started", map[string]interface{}{"source": src.Name()})
			if err := src.Run(gctx, s.HandleMessage); err != nil {
				return fmt.Errorf("source %s: %w", src.Name(), err)
			}
			return nil
		})
	}
	if s.breakEven != nil {
		g.Go(func() error { return s.breakEven.Run(gctx) })
	}
	if s.http != nil {
		g.Go(func() error { return s.http.Run(gctx) })
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error(ctx, err, "Copier Service component failed")
		return err
	}
	s.logger.Info(ctx, "Copier Service stopped.")
	return nil
}

func (s *CopierService) syncTime(ctx context.Context) {
	for _, w := range s.workers {
		tctx, cancel := context.WithTimeout(ctx, s.cfg.AccountTimeout)
		err := w.Run(tctx, func(ctx context.Context, venue ports.Venue) error {
			if ts, ok := venue.(timeSyncer); ok {
				return ts.SyncTime(ctx)
			}
			return nil
		})
		cancel()
		if err != nil {
			s.logger.Warn(ctx, "Failed to synchronize server time, using local clock", map[string]interface{}{
				"account": w.Account().Name,
				"error":   err.Error(),
			})
		}
	}
}

func (s *CopierService) stopWorkers() {
	var wg sync.WaitGroup
	for _, w := range s.workers {
		wg.Add(1)
		go func(w *AccountWorker) {
			defer wg.Done()
			w.Stop(s.cfg.ShutdownGrace)
		}(w)
	}
	wg.Wait()
}

// HandleMessage is the ports.MessageHandler fed to every source.
func (s *CopierService) HandleMessage(ctx context.Context, msg domain.InboundMessage) {
	s.Process(ctx, msg)
}

// Process handles one message: manual commands go to the executor, everything else
// through the router and, when a signal comes out, onto every account.
func (s *CopierService) Process(ctx context.Context, msg domain.InboundMessage) MessageReport {
	op := "ProcessMessage"
	traceID := uuid.NewString()
	ctx = ports.WithTraceID(ctx, traceID)
	report := MessageReport{TraceID: traceID}
	fields := map[string]interface{}{
		"channelId": msg.ChannelID,
		"messageId": msg.MessageID,
		"author":    msg.Author,
	}
	s.logger.Debug(ctx, op+": Message received", fields)

	cmd, err := parser.ParseCommand(msg)
	if err != nil {
		s.logger.Warn(ctx, op+": Command ignored", map[string]interface{}{"messageId": msg.MessageID, "error": err.Error()})
		report.Outcome, report.Err = outcomeCommand, err
		return report
	}
	if cmd != nil {
		return s.runCommand(ctx, msg, cmd, report)
	}

	result := s.router.Route(ctx, msg)
	report.Outcome, report.Err = result.Outcome, result.Err
	if result.Outcome != parser.OutcomeParsed {
		if result.Outcome != parser.OutcomeIgnored {
			s.logger.Info(ctx, op+": No signal", map[string]interface{}{
				"messageId": msg.MessageID,
				"outcome":   string(result.Outcome),
				"route":     result.Route,
			})
		}
		return report
	}
	report.Signal = result.Signal

	if !s.markProcessed(ctx, msg, result.Outcome) {
		report.Outcome = outcomeDuplicate
		return report
	}

	sig := result.Signal
	s.logger.Info(ctx, op+": Signal accepted", map[string]interface{}{
		"signalId":    sig.SignalID,
		"symbol":      sig.Symbol,
		"direction":   string(sig.Direction),
		"entries":     sig.Entries,
		"stopLoss":    sig.StopLoss,
		"takeProfits": len(sig.TakeProfits),
		"source":      sig.Source,
	})
	report.Accounts = s.placeEverywhere(ctx, sig)
	return report
}

func (s *CopierService) runCommand(ctx context.Context, msg domain.InboundMessage, cmd *domain.ManualCommand, report MessageReport) MessageReport {
	report.Outcome, report.Command = outcomeCommand, cmd
	if !s.markProcessed(ctx, msg, outcomeCommand) {
		report.Outcome = outcomeDuplicate
		return report
	}
	tctx, cancel := context.WithTimeout(ctx, s.cfg.AccountTimeout*time.Duration(len(s.workers)))
	defer cancel()
	n, err := s.commands.Execute(tctx, *cmd)
	report.Affected, report.Err = n, err
	if err != nil {
		s.logger.Error(ctx, err, "Manual command partially failed", map[string]interface{}{
			"command":  string(cmd.Kind),
			"signalId": cmd.SignalID,
			"affected": n,
		})
	}
	return report
}

// markProcessed reports false for a message the journal has already seen.
func (s *CopierService) markProcessed(ctx context.Context, msg domain.InboundMessage, outcome parser.Outcome) bool {
	if s.journal == nil {
		return true
	}
	err := s.journal.MarkProcessed(ctx, msg.ChannelID, msg.MessageID, string(outcome))
	switch {
	case errors.Is(err, ports.ErrDuplicateEntry):
		s.logger.Info(ctx, "Message already processed, skipping", map[string]interface{}{
			"channelId": msg.ChannelID,
			"messageId": msg.MessageID,
		})
		return false
	case err != nil:
		s.logger.Warn(ctx, "Failed to journal message, continuing", map[string]interface{}{"error": err.Error()})
	}
	return true
}

// placeEverywhere places on the master first, then on all replicas concurrently. Each account
// gets its own AccountTimeout; a failure on one never blocks the others.
func (s *CopierService) placeEverywhere(ctx context.Context, sig *domain.Signal) []AccountReport {
	reports := make([]AccountReport, 1+len(s.replicas))
	reports[0] = s.placeOn(ctx, s.master, sig)

	var g errgroup.Group
	for i, w := range s.replicas {
		i, w := i, w
		g.Go(func() error {
			reports[i+1] = s.placeOn(ctx, w, sig)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

func (s *CopierService) placeOn(ctx context.Context, w *AccountWorker, sig *domain.Signal) AccountReport {
	account := w.Account()
	report := AccountReport{Account: account.Name}

	tctx, cancel := context.WithTimeout(ctx, s.cfg.AccountTimeout)
	defer cancel()

	placed := make(chan []domain.PlacedOrder, 1)
	report.Err = w.Run(tctx, func(ctx context.Context, venue ports.Venue) error {
		orders, err := s.placer.Place(ctx, venue, account, sig)
		placed <- orders
		return err
	})
	select {
	case report.Orders = <-placed:
	default:
	}
	if report.Err != nil {
		s.logger.Error(ctx, report.Err, "Placement failed on account", map[string]interface{}{
			"account":  account.Name,
			"signalId": sig.SignalID,
		})
	}
	return report
}

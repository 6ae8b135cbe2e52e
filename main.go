package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"time"

	"signalCopyBot/config"
	"signalCopyBot/internal/adapters/binanceclient"
	"signalCopyBot/internal/adapters/gemini"
	"signalCopyBot/internal/adapters/httpapi"
	"signalCopyBot/internal/adapters/imapsource"
	"signalCopyBot/internal/adapters/logger"
	"signalCopyBot/internal/adapters/oanda"
	"signalCopyBot/internal/adapters/paper"
	"signalCopyBot/internal/adapters/sqlite"
	"signalCopyBot/internal/adapters/telegram"
	"signalCopyBot/internal/app"
	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/parser"
	"signalCopyBot/internal/ports"
	"signalCopyBot/internal/risk"
	"signalCopyBot/internal/symbols"
	"signalCopyBot/internal/trading"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.NewZapLogger(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	fatal := func(err error, msg string) {
		appLogger.Error(ctx, err, "FATAL: "+msg)
		_ = appLogger.Sync()
		log.Fatalf("FATAL: %s: %v", msg, err) // Also log to stderr
	}

	// 3. Initialize Placement Journal (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		fatal(err, "Failed to initialize placement journal")
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing placement journal")
		}
	}()
	appLogger.Info(ctx, "Placement journal initialized")

	// 4. Initialize Venues and Account Workers
	var workers []*app.AccountWorker
	var runners []trading.AccountRunner
	for _, acc := range cfg.Accounts {
		venue, err := newVenue(acc, time.Duration(cfg.DefaultExpirationMinutes+1)*time.Minute, appLogger)
		if err != nil {
			fatal(err, fmt.Sprintf("Failed to initialize venue for account %s", acc.Name))
		}
		w := app.NewAccountWorker(acc.Account(), venue, 0, appLogger)
		workers = append(workers, w)
		runners = append(runners, w)
		appLogger.Info(ctx, "Account initialized", map[string]interface{}{
			"account": acc.Name,
			"venue":   string(acc.Venue),
			"broker":  acc.Broker,
			"master":  acc.Master,
		})
	}

	// 5. Initialize Sizing and Placement
	sizer := risk.NewSizer(risk.SizerConfig{
		RiskPercent:          cfg.RiskPercent,
		AuthorMultipliers:    cfg.AuthorMultipliers,
		VolumeUnitMultiplier: cfg.VolumeUnitMultiplier,
		CoarseMinimumSymbols: cfg.CoarseMinSymbols,
		CoarseMinimum:        cfg.CoarseMinVolume,
	})
	placerConfig := trading.DefaultPlacerConfig()
	placerConfig.ToleranceFactor = cfg.ToleranceFactor
	placerConfig.DefaultExpirationMinutes = cfg.DefaultExpirationMinutes
	placerConfig.ServerTimeOffset = cfg.ServerTimeOffset
	placerConfig.Marker = cfg.Marker
	placer := trading.NewPlacer(placerConfig, sizer, symbols.NewMapper(cfg.Brokers), repo, appLogger)

	// 6. Initialize Signal Router (with optional oracle fallback)
	var oracle ports.Oracle
	if cfg.GeminiAPIKey != "" {
		geminiOracle, err := gemini.New(ctx, gemini.Config{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
			Logger: appLogger,
		})
		if err != nil {
			fatal(err, "Failed to initialize Gemini oracle")
		}
		defer geminiOracle.Close()
		oracle = geminiOracle
	} else {
		appLogger.Warn(ctx, "GEMINI_API_KEY not set, oracle routes will decline their messages")
	}
	router, err := parser.NewRouter(parser.RouterConfig{
		Routes: cfg.Routes,
		Strategies: []parser.Strategy{
			parser.NewFixedOffsetStrategy(parser.DefaultFixedOffsetConfig(cfg.DefaultSymbol)),
			parser.NewRangeGatedStrategy(parser.DefaultRangeGatedConfig(cfg.DefaultSymbol, cfg.PriceBand)),
			parser.NewExplicitRangeStrategy(parser.DefaultExplicitRangeConfig()),
		},
		Oracle:        oracle,
		OracleTimeout: cfg.OracleTimeout,
		Logger:        appLogger,
	})
	if err != nil {
		fatal(err, "Failed to initialize signal router")
	}

	// 7. Initialize Break-Even Engine and Manual Commands
	breakEven, err := trading.NewBreakEvenEngine(trading.BreakEvenConfig{
		Interval:  cfg.BreakEvenInterval,
		Policy:    cfg.BreakEvenPolicy,
		Threshold: cfg.BreakEvenThreshold,
		Offset:    cfg.BreakEvenOffset,
		Marker:    cfg.Marker,
	}, runners, appLogger)
	if err != nil {
		fatal(err, "Failed to initialize break-even engine")
	}
	commands := trading.NewCommandExecutor(runners, cfg.Marker, cfg.BreakEvenOffset, appLogger)

	// 8. Initialize Message Sources
	var sources []ports.MessageSource
	if cfg.TelegramToken != "" {
		tg, err := telegram.New(telegram.Config{
			Token:    cfg.TelegramToken,
			Channels: cfg.TelegramChannels,
			Logger:   appLogger,
		})
		if err != nil {
			fatal(err, "Failed to initialize Telegram source")
		}
		sources = append(sources, tg)
	}
	if cfg.IMAPEnabled {
		mail, err := imapsource.New(imapsource.Config{
			Host:         cfg.IMAPHost,
			Port:         cfg.IMAPPort,
			User:         cfg.IMAPUser,
			Password:     cfg.IMAPPassword,
			PollInterval: cfg.IMAPPoll,
			Logger:       appLogger,
		})
		if err != nil {
			fatal(err, "Failed to initialize IMAP source")
		}
		sources = append(sources, mail)
	}

	// 9. Initialize HTTP API (optional)
	var httpServer app.Runnable
	if cfg.HTTPAddr != "" {
		srv, err := httpapi.NewServer(httpapi.Config{
			Addr:            cfg.HTTPAddr,
			Router:          router,
			Accounts:        runners,
			Marker:          cfg.Marker,
			ToleranceFactor: cfg.ToleranceFactor,
			AccountTimeout:  cfg.AccountTimeout,
			Logger:          appLogger,
		})
		if err != nil {
			fatal(err, "Failed to initialize HTTP API")
		}
		httpServer = srv
	}

	// 10. Initialize Application Service
	copier, err := app.NewCopierService(app.ServiceConfig{
		AccountTimeout:   cfg.AccountTimeout,
		ShutdownGrace:    cfg.ShutdownGrace,
		JournalRetention: cfg.JournalRetention,
	}, app.ServiceDeps{
		Router:    router,
		Placer:    placer,
		Commands:  commands,
		BreakEven: breakEven,
		HTTP:      httpServer,
		Journal:   repo,
		Sources:   sources,
		Workers:   workers,
		Logger:    appLogger,
	})
	if err != nil {
		fatal(err, "Failed to initialize copier service")
	}
	appLogger.Info(ctx, "Copier service initialized")

	// 11. Start the Service
	if err := copier.Start(ctx); err != nil {
		fatal(err, "Copier service exited with error")
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}

// newVenue builds the venue adapter for one configured account.
// pendingLifetime expires resting Binance entries found after a restart.
func newVenue(acc config.AccountConfig, pendingLifetime time.Duration, appLogger ports.Logger) (ports.Venue, error) {
	switch acc.Venue {
	case domain.VenueBinance:
		return binanceclient.New(binanceclient.Config{
			Name:       acc.Name,
			APIKey:     acc.Binance.APIKey,
			SecretKey:  acc.Binance.SecretKey,
			UseTestnet: acc.Binance.Testnet,
			Asset:      acc.Binance.Asset,
			Logger:     appLogger,

			PendingLifetime: pendingLifetime,
		})
	case domain.VenueOanda:
		return oanda.New(oanda.Config{
			Name:      acc.Name,
			AccountID: acc.Oanda.AccountID,
			Token:     acc.Oanda.Token,
			Live:      acc.Oanda.Live,
			Logger:    appLogger,
		})
	case domain.VenuePaper:
		v := paper.New(acc.Name, acc.Paper.Balance)
		for symbol, q := range acc.Paper.Quotes {
			v.AddInstrument(paper.DefaultInstrument(symbol))
			v.SetQuote(symbol, q[0], q[1])
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: unknown venue %q", ports.ErrConfigurationError, acc.Venue)
	}
}

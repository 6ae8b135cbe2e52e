// Command parse_signal routes one message through the signal parsers and, given a live
// price, shows the orders it would place on a simulated account.
//
//	echo "GOLD BUY 3650 SL TP" | parse_signal -author "Gold Room" -price 3650.2
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"signalCopyBot/internal/adapters/logger"
	"signalCopyBot/internal/adapters/paper"
	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/parser"
	"signalCopyBot/internal/risk"
	"signalCopyBot/internal/symbols"
	"signalCopyBot/internal/trading"
)

type output struct {
	Outcome  parser.Outcome       `json:"outcome"`
	Route    string               `json:"route,omitempty"`
	Error    string               `json:"error,omitempty"`
	Signal   *domain.Signal       `json:"signal,omitempty"`
	Decision *trading.Decision    `json:"decision,omitempty"`
	Orders   []domain.PlacedOrder `json:"orders,omitempty"`
}

func main() {
	text := flag.String("text", "", "message text; read from stdin when empty")
	author := flag.String("author", "", "message author or channel title")
	symbol := flag.String("symbol", "XAUUSD", "instrument of the fixed-offset and range-gated parsers")
	bandMin := flag.Float64("band-min", 3500, "lower bound of the range-gated price band")
	bandMax := flag.Float64("band-max", 3900, "upper bound of the range-gated price band")
	price := flag.Float64("price", 0, "live price; when set, the signal is placed on a paper account")
	balance := flag.Float64("balance", 10000, "paper account balance")
	broker := flag.String("broker", "VantageDemo", "broker whose symbol table is used")
	level := flag.String("log-level", "WARN", "log level")
	flag.Parse()

	ctx := context.Background()
	appLogger, err := logger.NewZapLogger(logger.Options{Level: logger.ParseLevel(*level)})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	body := *text
	if body == "" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("Error reading stdin: %v", err)
		}
		body = strings.TrimSpace(string(raw))
	}

	router, err := parser.NewRouter(parser.RouterConfig{
		Routes: parser.DefaultRoutes(),
		Strategies: []parser.Strategy{
			parser.NewFixedOffsetStrategy(parser.DefaultFixedOffsetConfig(*symbol)),
			parser.NewRangeGatedStrategy(parser.DefaultRangeGatedConfig(*symbol, parser.PriceBand{Min: *bandMin, Max: *bandMax})),
			parser.NewExplicitRangeStrategy(parser.DefaultExplicitRangeConfig()),
		},
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("Error creating router: %v", err)
	}

	msg := domain.InboundMessage{
		Text:       body,
		Author:     *author,
		MessageID:  time.Now().Unix(),
		ChannelID:  "cli",
		ReceivedAt: time.Now(),
	}
	result := router.Route(ctx, msg)
	out := output{Outcome: result.Outcome, Route: result.Route, Signal: result.Signal}
	if result.Err != nil {
		out.Error = result.Err.Error()
	}

	if result.Signal != nil && *price > 0 {
		decision, err := trading.Classify(result.Signal, *price, trading.DefaultPlacerConfig().ToleranceFactor)
		if err != nil {
			out.Error = err.Error()
		} else {
			out.Decision = &decision
			out.Orders, err = place(ctx, result.Signal, *price, *balance, *broker, appLogger)
			if err != nil {
				out.Error = err.Error()
			}
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("Error writing result: %v", err)
	}
}

func place(ctx context.Context, sig *domain.Signal, price, balance float64, broker string, appLogger *logger.ZapLogger) ([]domain.PlacedOrder, error) {
	mapper := symbols.NewMapper(symbols.DefaultTables())
	venueSymbol := mapper.Translate(sig.Symbol, broker)

	venue := paper.New("paper", balance)
	venue.AddInstrument(paper.DefaultInstrument(venueSymbol))
	venue.SetQuote(venueSymbol, price, price)

	account := domain.Account{Name: "paper", Broker: broker, Venue: domain.VenuePaper, IsMaster: true}
	placer := trading.NewPlacer(trading.DefaultPlacerConfig(), risk.NewSizer(risk.DefaultSizerConfig()), mapper, nil, appLogger)
	orders, err := placer.Place(ctx, venue, account, sig)
	if err != nil {
		return orders, fmt.Errorf("placement on %s failed: %w", venueSymbol, err)
	}
	return orders, nil
}

package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

// MatchAny is the route pattern matching every author.
const MatchAny = "*"

// Route maps a normalized-author pattern to the strategies tried for it, in order.
type Route struct {
	Pattern     string   `yaml:"pattern"`
	Strategies  []string `yaml:"strategies"`
	UseOracle   bool     `yaml:"oracle"`
	MonitorOnly bool     `yaml:"monitor_only"`
}

// Matches reports whether the normalized author falls under this route.
func (r Route) Matches(author string) bool {
	return r.Pattern == MatchAny || strings.Contains(author, NormalizeAuthor(r.Pattern))
}

// DefaultRoutes is the stock per-author policy table. Order matters: first match wins.
func DefaultRoutes() []Route {
	return []Route{
		{Pattern: "icm", Strategies: []string{StrategyRangeGated}, UseOracle: true},
		{Pattern: "fortune", UseOracle: true},
		{Pattern: "dweb", MonitorOnly: true},
		{Pattern: MatchAny, Strategies: []string{StrategyFixedOffset}},
	}
}

// Outcome classifies what the router did with a message.
type Outcome string

const (
	OutcomeParsed      Outcome = "parsed"
	OutcomeIgnored     Outcome = "ignored"      // failed the marker gate
	OutcomeMonitorOnly Outcome = "monitor_only" // author is observed, never traded
	OutcomeDeclined    Outcome = "declined"     // no strategy recognised the message
	OutcomeInvalid     Outcome = "invalid"      // oracle produced an unusable record
)

// Result is the router's verdict for one message.
type Result struct {
	Signal  *domain.Signal
	Outcome Outcome
	Route   string
	Err     error
}

// RouterConfig holds the router dependencies.
type RouterConfig struct {
	Routes        []Route
	Strategies    []Strategy
	Oracle        ports.Oracle // optional; nil means the fallback is unavailable
	OracleTimeout time.Duration
	Logger        ports.Logger
}

// Router dispatches messages to extraction strategies by author.
type Router struct {
	routes        []Route
	strategies    map[string]Strategy
	oracle        ports.Oracle
	oracleTimeout time.Duration
	logger        ports.Logger
}

// NewRouter validates the routing table against the registered strategies.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for signal router")
	}
	if len(cfg.Routes) == 0 {
		return nil, fmt.Errorf("%w: routing table is empty", ports.ErrConfigurationError)
	}
	strategies := make(map[string]Strategy, len(cfg.Strategies))
	for _, s := range cfg.Strategies {
		strategies[s.Name()] = s
	}
	for _, route := range cfg.Routes {
		if route.Pattern == "" {
			return nil, fmt.Errorf("%w: route with empty pattern", ports.ErrConfigurationError)
		}
		for _, name := range route.Strategies {
			if _, ok := strategies[name]; !ok {
				return nil, fmt.Errorf("%w: route %q references unknown strategy %q", ports.ErrConfigurationError, route.Pattern, name)
			}
		}
	}
	timeout := cfg.OracleTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Router{
		routes:        cfg.Routes,
		strategies:    strategies,
		oracle:        cfg.Oracle,
		oracleTimeout: timeout,
		logger:        cfg.Logger,
	}, nil
}

// Strategy returns a registered strategy by name.
func (r *Router) Strategy(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// Route runs the marker gate, picks the author's route and tries its strategies,
// then the oracle when the route allows it.
func (r *Router) Route(ctx context.Context, msg domain.InboundMessage) Result {
	op := "Route"
	fields := map[string]interface{}{"messageID": msg.MessageID, "author": msg.Author}

	if !HasStopMarker(msg.Text) || !HasTakeProfitMarker(msg.Text) {
		return Result{Outcome: OutcomeIgnored}
	}
	if _, ok := DetectDirection(msg.Text); !ok {
		return Result{Outcome: OutcomeIgnored}
	}

	author := NormalizeAuthor(msg.Author)
	route, ok := r.match(author)
	if !ok {
		r.logger.Debug(ctx, op+": no route for author", fields)
		return Result{Outcome: OutcomeDeclined, Err: ports.ErrParseDecline}
	}
	fields["route"] = route.Pattern

	if route.MonitorOnly {
		r.logger.Info(ctx, op+": monitor-only author, message dropped", fields)
		return Result{Outcome: OutcomeMonitorOnly, Route: route.Pattern}
	}

	for _, name := range route.Strategies {
		if sig, ok := r.strategies[name].Attempt(msg.Text, author, msg.MessageID); ok {
			r.logger.Debug(ctx, op+": strategy matched", map[string]interface{}{"messageID": msg.MessageID, "strategy": name})
			return Result{Signal: sig, Outcome: OutcomeParsed, Route: route.Pattern}
		}
	}

	if !route.UseOracle {
		return Result{Outcome: OutcomeDeclined, Route: route.Pattern, Err: ports.ErrParseDecline}
	}
	return r.consultOracle(ctx, msg, author, route)
}

func (r *Router) consultOracle(ctx context.Context, msg domain.InboundMessage, author string, route Route) Result {
	op := "consultOracle"
	fields := map[string]interface{}{"messageID": msg.MessageID, "author": author}

	if r.oracle == nil {
		r.logger.Debug(ctx, op+": oracle not configured, declining", fields)
		return Result{Outcome: OutcomeDeclined, Route: route.Pattern, Err: ports.ErrOracleUnavailable}
	}

	oracleCtx, cancel := context.WithTimeout(ctx, r.oracleTimeout)
	defer cancel()

	reply, err := r.oracle.Extract(oracleCtx, msg.Text, author)
	if err != nil {
		r.logger.Warn(ctx, op+": oracle call failed, declining", map[string]interface{}{"messageID": msg.MessageID, "error": err.Error()})
		if errors.Is(err, ports.ErrOracleUnavailable) {
			return Result{Outcome: OutcomeDeclined, Route: route.Pattern, Err: err}
		}
		return Result{Outcome: OutcomeDeclined, Route: route.Pattern, Err: fmt.Errorf("%w: %w", ports.ErrParseDecline, err)}
	}

	sig, err := DecodeOracleReply(reply, author, msg.MessageID)
	if err != nil {
		r.logger.Warn(ctx, op+": oracle reply rejected", map[string]interface{}{"messageID": msg.MessageID, "error": err.Error()})
		return Result{Outcome: OutcomeInvalid, Route: route.Pattern, Err: err}
	}
	r.logger.Info(ctx, op+": signal extracted by oracle", map[string]interface{}{"messageID": msg.MessageID, "symbol": sig.Symbol})
	return Result{Signal: sig, Outcome: OutcomeParsed, Route: route.Pattern}
}

func (r *Router) match(author string) (Route, bool) {
	for _, route := range r.routes {
		if route.Matches(author) {
			return route, true
		}
	}
	return Route{}, false
}

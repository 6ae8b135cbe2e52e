package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/parser"
	"signalCopyBot/internal/ports"
	"signalCopyBot/internal/trading"
)

// SignalRouter is the dry-run entry point of the parser.
type SignalRouter interface {
	Route(ctx context.Context, msg domain.InboundMessage) parser.Result
}

// Config holds the API dependencies.
type Config struct {
	Addr            string
	Router          SignalRouter
	Accounts        []trading.AccountRunner
	Marker          string
	ToleranceFactor float64
	AccountTimeout  time.Duration
	Logger          ports.Logger
}

// Server exposes health, account status and a dry-run parse endpoint.
type Server struct {
	cfg    Config
	engine *gin.Engine
	logger ports.Logger
}

// NewServer builds the gin engine and its routes.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Logger == nil || cfg.Router == nil {
		return nil, fmt.Errorf("missing required dependencies for HTTP API")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.AccountTimeout <= 0 {
		cfg.AccountTimeout = 5 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	s := &Server{cfg: cfg, engine: engine, logger: cfg.Logger}
	engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s, nil
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	v1 := s.engine.Group("/v1")
	{
		v1.GET("/accounts", s.handleAccounts)
		v1.POST("/parse", s.handleParse)
	}
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "HTTP API listening", map[string]interface{}{"addr": s.cfg.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http api: %w: %w", ports.ErrTransport, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "HTTP API shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug(c.Request.Context(), "HTTP request", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"accounts": len(s.cfg.Accounts),
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}

type accountStatus struct {
	Name          string  `json:"name"`
	Venue         string  `json:"venue"`
	Master        bool    `json:"master"`
	Balance       float64 `json:"balance"`
	OpenPositions int     `json:"openPositions"`
	Error         string  `json:"error,omitempty"`
}

func (s *Server) handleAccounts(c *gin.Context) {
	statuses := make([]accountStatus, len(s.cfg.Accounts))
	var wg sync.WaitGroup
	for i, runner := range s.cfg.Accounts {
		wg.Add(1)
		go func(i int, runner trading.AccountRunner) {
			defer wg.Done()
			statuses[i] = s.accountStatus(c.Request.Context(), runner)
		}(i, runner)
	}
	wg.Wait()
	c.JSON(http.StatusOK, gin.H{"accounts": statuses})
}

func (s *Server) accountStatus(ctx context.Context, runner trading.AccountRunner) accountStatus {
	account := runner.Account()
	status := accountStatus{Name: account.Name, Venue: string(account.Venue), Master: account.IsMaster}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.AccountTimeout)
	defer cancel()

	type snapshot struct {
		balance   float64
		positions int
	}
	result := make(chan snapshot, 1)
	err := runner.Run(ctx, func(ctx context.Context, venue ports.Venue) error {
		balance, err := venue.GetAccountBalance(ctx)
		if err != nil {
			return err
		}
		positions, err := venue.ListOpenPositions(ctx, s.cfg.Marker)
		if err != nil {
			return err
		}
		result <- snapshot{balance: balance, positions: len(positions)}
		return nil
	})
	if err != nil {
		status.Error = err.Error()
		return status
	}
	snap := <-result
	status.Balance, status.OpenPositions = snap.balance, snap.positions
	return status
}

type parseRequest struct {
	Text      string  `json:"text" binding:"required"`
	Author    string  `json:"author"`
	MessageID int64   `json:"messageId"`
	LivePrice float64 `json:"livePrice"`
}

type takeProfitView struct {
	Price float64 `json:"price,omitempty"`
	Open  bool    `json:"open,omitempty"`
}

type signalView struct {
	Direction   string           `json:"direction"`
	Symbol      string           `json:"symbol"`
	Entries     []float64        `json:"entries"`
	StopLoss    float64          `json:"stopLoss"`
	TakeProfits []takeProfitView `json:"takeProfits"`
	Author      string           `json:"author"`
	SignalID    int64            `json:"signalId"`
	Source      string           `json:"source"`
	Tag         string           `json:"tag,omitempty"`
}

type orderPlan struct {
	Kind  string  `json:"kind"`
	Price float64 `json:"price"`
}

type parseResponse struct {
	Outcome string      `json:"outcome"`
	Route   string      `json:"route,omitempty"`
	Error   string      `json:"error,omitempty"`
	Signal  *signalView `json:"signal,omitempty"`
	Plan    *orderPlan  `json:"plan,omitempty"`
}

func (s *Server) handleParse(c *gin.Context) {
	var req parseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := s.cfg.Router.Route(c.Request.Context(), domain.InboundMessage{
		Text:       req.Text,
		Author:     req.Author,
		MessageID:  req.MessageID,
		ChannelID:  "http",
		ReceivedAt: time.Now().UTC(),
	})
	resp := parseResponse{Outcome: string(result.Outcome), Route: result.Route}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	if result.Signal != nil {
		resp.Signal = viewSignal(result.Signal)
		if req.LivePrice > 0 {
			decision, err := trading.Classify(result.Signal, req.LivePrice, s.cfg.ToleranceFactor)
			if err != nil {
				resp.Error = err.Error()
			} else {
				resp.Plan = &orderPlan{Kind: string(decision.Kind), Price: decision.Price}
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

func viewSignal(sig *domain.Signal) *signalView {
	v := &signalView{
		Direction: string(sig.Direction),
		Symbol:    sig.Symbol,
		Entries:   sig.Entries,
		StopLoss:  sig.StopLoss,
		Author:    sig.Author,
		SignalID:  sig.SignalID,
		Source:    sig.Source,
	}
	for _, tp := range sig.TakeProfits {
		v.TakeProfits = append(v.TakeProfits, takeProfitView{Price: tp.Price, Open: tp.Open})
	}
	if first, ok := sig.FirstNumericTakeProfit(); ok {
		v.Tag = trading.FormatTag(sig.SignalID, first)
	}
	return v
}

package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/camuig/paper-trader/internal/config"
	"github.com/camuig/paper-trader/internal/logger"
	"github.com/camuig/paper-trader/internal/price"
	"github.com/camuig/paper-trader/internal/syncer"
	"github.com/camuig/paper-trader/internal/trade"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Store is the storage surface the HTTP API reads and writes.
type Store interface {
	ListTrades(ctx context.Context, statuses ...trade.Status) ([]trade.Trade, error)
	GetRecentTrades(ctx context.Context, limit int) ([]trade.Trade, error)
	CreateTrade(ctx context.Context, t *trade.Trade, strategyID string) error
	ListStrategies(ctx context.Context) ([]trade.Strategy, error)
	GetStrategy(ctx context.Context, strategyID string) (*trade.Strategy, error)
	GetStrategyByName(ctx context.Context, name string) (*trade.Strategy, error)
	GetTodayPnL(ctx context.Context) (float64, error)
	GetTotalPnL(ctx context.Context) (float64, error)
}

type Quoter interface {
	Quote(ctx context.Context) (price.Quote, error)
}

type Passer interface {
	RunPass(ctx context.Context) (*syncer.Report, error)
}

type Server struct {
	httpServer *http.Server
	store      Store
	quoter     Quoter
	syncer     Passer
	dashboard  *template.Template
	config     *config.Config
	logger     *logger.Logger
}

func NewServer(store Store, quoter Quoter, s Passer, cfg *config.Config, log *logger.Logger) *Server {
	srv := &Server{
		store:     store,
		quoter:    quoter,
		syncer:    s,
		dashboard: template.Must(template.New("dashboard.html").Funcs(templateFuncs).ParseFS(templatesFS, "templates/dashboard.html")),
		config:    cfg,
		logger:    log,
	}

	srv.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return srv
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /api/price", s.handlePrice)
	mux.HandleFunc("GET /api/trades", s.handleListTrades)
	mux.HandleFunc("POST /api/trades", s.handleCreateTrade)
	mux.HandleFunc("GET /api/trades/sync", s.handleSync)
	mux.HandleFunc("POST /api/trades/sync", s.handleSync)
	mux.HandleFunc("GET /api/strategies", s.handleStrategies)
	return mux
}

func (s *Server) Start() error {
	s.logger.Info("web server starting", "port", s.config.Web.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/alerts"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/insights"
	"github.com/opensource-finance/kestrel/internal/scanner"
	"github.com/opensource-finance/kestrel/internal/stats"
)

// Dependencies are the components the API serves.
type Dependencies struct {
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus
	Scans    *scanner.Service
	Alerts   *alerts.Manager
	Insights *insights.Service
	Stats    *stats.Service
	Logger   *slog.Logger
	Version  string

	// Async hands ingested transactions to the worker over the bus instead
	// of storing and scanning them inline.
	Async bool
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	handler := NewHandler(deps, cfg.ScanRateLimit)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware(deps.Logger))
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Group(func(r chi.Router) {
		r.Use(UserMiddleware)

		r.Route("/security", func(r chi.Router) {
			r.Post("/transactions/scan", handler.Scan)
			r.Post("/transactions/report", handler.Report)
			r.Post("/transactions/{id}/approve", handler.Approve)
			r.Post("/transactions/{id}/reject", handler.Reject)

			r.Get("/security-alerts", handler.ListAlerts)
			r.Post("/security-alerts/{alertId}/resolve", handler.ResolveAlert)
			r.Post("/security-alerts/{alertId}/notes", handler.AddAlertNote)
			r.Get("/cards/{cardId}/security-alerts", handler.ListCardAlerts)

			r.Get("/stats", handler.SecurityStats)
			r.Get("/rules", handler.ListRules)
			r.Post("/merchant-check", handler.CheckMerchant)
		})

		r.Post("/transactions", handler.CreateTransaction)
		r.Get("/transactions", handler.ListTransactions)
		r.Get("/transactions/{id}", handler.GetTransaction)

		r.Post("/cards", handler.CreateCard)
		r.Get("/cards", handler.ListCards)

		r.Get("/analytics/spending/categories", handler.SpendingCategories)
		r.Get("/analytics/spending/trends", handler.SpendingTrends)
		r.Get("/analytics/merchants", handler.TopMerchants)

		r.Get("/rewards/optimization", handler.RewardOptimization)
		r.Get("/rewards/best-card", handler.BestCard)

		r.Get("/budget/analysis", handler.BudgetAnalysis)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}

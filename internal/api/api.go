// Package api serves a small read-only operator surface: health, metrics and
// JWT-protected status and balance lookups.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"github.com/susu3304/tipbot/internal/config"
	"github.com/susu3304/tipbot/internal/metrics"
	"go.uber.org/zap"
)

// Wallet is implemented by *wallet.Gateway.
type Wallet interface {
	TotalBalance(ctx context.Context) (decimal.Decimal, error)
	GetBalance(ctx context.Context, account string, minConf int) (decimal.Decimal, error)
}

type Chat interface {
	Nick() string
}

type Verifier interface {
	Pending() int
}

type Deps struct {
	Chat     Chat
	Verifier Verifier
	Wallet   Wallet
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

type API struct {
	router    *mux.Router
	config    *config.Config
	chat      Chat
	verifier  Verifier
	wallet    Wallet
	metrics   *metrics.Metrics
	log       *zap.Logger
	jwtSecret []byte
	server    *http.Server
}

func New(cfg *config.Config, deps Deps) *API {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	api := &API{
		router:    mux.NewRouter(),
		config:    cfg,
		chat:      deps.Chat,
		verifier:  deps.Verifier,
		wallet:    deps.Wallet,
		metrics:   deps.Metrics,
		log:       logger,
		jwtSecret: []byte(cfg.Admin.JWTSecret),
	}

	api.setupRoutes()
	api.server = &http.Server{
		Addr:              cfg.Admin.Bind,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return api
}

func (a *API) setupRoutes() {
	// Public endpoints
	a.router.HandleFunc("/healthz", a.handleHealth).Methods("GET")
	if a.metrics != nil {
		a.router.Handle("/metrics", a.metrics.Handler()).Methods("GET")
	}

	// Protected endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/status", a.handleStatus).Methods("GET")
	protected.HandleFunc("/accounts/{account}/balance", a.handleAccountBalance).Methods("GET")
}

// Handler returns the router wrapped with CORS.
func (a *API) Handler() http.Handler {
	// Read-only and token-authenticated, so any origin may call it without credentials.
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}
	return cors.New(corsOptions).Handler(a.router)
}

// Start listens on admin.bind and blocks until Shutdown.
func (a *API) Start() error {
	a.log.Info("API server listening", zap.String("addr", "http://"+a.config.Admin.Bind))
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

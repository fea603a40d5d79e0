// Package server exposes the dashboardd HTTP API and live view stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lendboard/gateway/middleware"
	"lendboard/lending/catalog"
	"lendboard/observability/metrics"
	"lendboard/services/dashboardd/storage"
)

const (
	routeIngest = "ingest"
	routeRead   = "read"

	maxSnapshotBytes = 4 << 20
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress   string
	Strict          bool
	ShutdownTimeout time.Duration
	HistoryLimit    int
	Retention       time.Duration
	PruneInterval   time.Duration
	Auth            middleware.AuthConfig
	IngestScope     string
	RateLimits      map[string]middleware.RateLimit
	CORS            middleware.CORSConfig
	StreamBuffer    int
	WriteTimeout    time.Duration
}

// Server hosts the account view API.
type Server struct {
	cfg      Config
	catalog  *catalog.Catalog
	store    *storage.Storage
	logger   *slog.Logger
	hub      *hub
	metrics  *metrics.EngineMetrics
	registry *prometheus.Registry
	router   http.Handler
	now      func() time.Time
}

// New constructs the server and its router.
func New(cfg Config, cat *catalog.Catalog, store *storage.Storage, logger *slog.Logger) (*Server, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if store == nil {
		return nil, fmt.Errorf("storage required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = time.Hour
	}
	if cfg.Auth.Enabled && cfg.Auth.HMACSecret == "" {
		return nil, fmt.Errorf("auth enabled without hmac secret")
	}
	engine := metrics.Engine()
	s := &Server{
		cfg:      cfg,
		catalog:  cat,
		store:    store,
		logger:   logger.With("component", "dashboardd"),
		hub:      newHub(cfg.StreamBuffer, engine),
		metrics:  engine,
		registry: prometheus.NewRegistry(),
		now:      time.Now,
	}
	s.router = s.buildRouter()
	return s, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: "dashboardd",
		Enabled:     true,
		Registry:    s.registry,
	}, s.logger)
	auth := middleware.NewAuthenticator(s.cfg.Auth, s.logger)
	limiter := middleware.NewRateLimiter(s.cfg.RateLimits, s.logger)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(s.cfg.CORS))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(prometheus.Gatherers{prometheus.DefaultGatherer, s.registry}, promhttp.HandlerOpts{}))

	r.Route("/v1", func(api chi.Router) {
		api.With(obs.Middleware("markets"), limiter.Middleware(routeRead)).Get("/chains/{chainID}/markets", s.handleMarkets)
		api.Route("/accounts/{account}", func(acct chi.Router) {
			acct.With(obs.Middleware("ingest"), limiter.Middleware(routeIngest), auth.Middleware(s.cfg.IngestScope)).
				Post("/snapshots", s.handleIngest)
			acct.With(obs.Middleware("history"), limiter.Middleware(routeRead)).Get("/snapshots", s.handleHistory)
			acct.With(obs.Middleware("view"), limiter.Middleware(routeRead)).Get("/view", s.handleView)
			acct.With(obs.Middleware("stream")).Get("/stream", s.handleStream)
		})
	})
	return otelhttp.NewHandler(r, "dashboardd")
}

// Run starts the HTTP server and the history pruner and blocks until the
// context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{Addr: s.cfg.ListenAddress, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if s.cfg.Retention > 0 {
		go s.pruneLoop(ctx)
	}

	s.logger.Info("http server listening", slog.String("addr", s.cfg.ListenAddress))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.store.Prune(ctx, s.now().Add(-s.cfg.Retention))
			if err != nil {
				s.logger.Warn("prune snapshots", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				s.logger.Info("pruned snapshots", slog.Int64("removed", removed))
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type marketListing struct {
	Market             string `json:"market"`
	Symbol             string `json:"symbol"`
	Name               string `json:"name,omitempty"`
	Underlying         string `json:"underlying"`
	UnderlyingSymbol   string `json:"underlyingSymbol"`
	UnderlyingDecimals uint8  `json:"underlyingDecimals"`
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	chainID, err := strconv.ParseUint(chi.URLParam(r, "chainID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	listings, err := s.catalog.Markets(chainID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	out := make([]marketListing, 0, len(listings))
	for _, l := range listings {
		out = append(out, marketListing{
			Market:             l.Market.Address.Hex(),
			Symbol:             l.Market.Symbol,
			Name:               l.Market.Name,
			Underlying:         l.Underlying.Address.Hex(),
			UnderlyingSymbol:   l.Underlying.Symbol,
			UnderlyingDecimals: l.Underlying.Decimals,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"chainId": chainID, "markets": out})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driveline/auto-auction-backend/internal/infrastructure/cache"
	"github.com/driveline/auto-auction-backend/internal/infrastructure/config"
	"github.com/driveline/auto-auction-backend/internal/metrics"
)

// Server is the HTTP front door for the auction engine.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	handler    *Handler
	auth       *Authenticator
	health     *HealthService
	ws         http.Handler
}

// ServerDeps bundles the collaborators the server wires into its routes.
type ServerDeps struct {
	Handler     *Handler
	Auth        *Authenticator
	RateLimiter cache.RateLimiter
	Health      *HealthService
	Metrics     *metrics.Registry
	// WebSocket serves live price streaming when set.
	WebSocket http.Handler
}

func NewServer(cfg *config.Config, deps ServerDeps) *Server {
	s := &Server{
		cfg:     cfg,
		handler: deps.Handler,
		auth:    deps.Auth,
		health:  deps.Health,
		ws:      deps.WebSocket,
	}

	mux := s.setupRoutes(deps)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain(mux, recoveryMiddleware, loggingMiddleware, metricsMiddleware(deps.Metrics)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes(deps ServerDeps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.health.LivenessHandler())
	mux.HandleFunc("GET /health", s.health.ReadinessHandler())
	mux.HandleFunc("GET /ready", s.health.ReadinessHandler())
	mux.Handle("GET /metrics", promhttp.Handler())

	rl := newRateLimitMiddleware(deps.RateLimiter,
		s.cfg.Security.RateLimit.RequestsPerSecond,
		s.cfg.Security.RateLimit.BurstSize,
	)

	v1 := http.NewServeMux()

	// Public reads, limited per client IP.
	v1.Handle("GET /listings/{id}", rl.Middleware(http.HandlerFunc(s.handler.handleGetListing)))
	v1.Handle("GET /listings/{id}/bids", rl.Middleware(http.HandlerFunc(s.handler.handleGetBids)))

	// Authenticated writes. The limiter sits inside the auth middleware so
	// it keys on the verified user, not the source address.
	authed := func(h http.HandlerFunc) http.Handler {
		return s.auth.Middleware(rl.Middleware(h))
	}
	v1.Handle("POST /listings", authed(s.handler.handleCreateListing))
	v1.Handle("POST /listings/{id}/submit", authed(s.handler.handleSubmitListing))
	v1.Handle("POST /listings/{id}/approve", authed(s.handler.handleApproveListing))
	v1.Handle("POST /listings/{id}/cancel", authed(s.handler.handleCancelListing))
	v1.Handle("POST /listings/{id}/buy-now", authed(s.handler.handleBuyNow))

	v1.Handle("POST /bids", authed(s.handler.handlePlaceBid))

	v1.Handle("POST /autobids", authed(s.handler.handleRegisterAutobid))
	v1.Handle("DELETE /autobids/{listingID}", authed(s.handler.handleCancelAutobid))

	v1.Handle("POST /deposits", authed(s.handler.handlePlaceHold))
	v1.Handle("POST /deposits/{id}/release", authed(s.handler.handleReleaseDeposit))
	v1.Handle("POST /deposits/{id}/capture", authed(s.handler.handleCaptureDeposit))

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", v1))

	if s.ws != nil {
		mux.Handle("GET /ws/listings/{id}", s.ws)
	}

	return mux
}

// Start serves until ctx is cancelled, then drains in-flight requests
// within the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	slog.Info("starting API server", "addr", s.httpServer.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down API server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

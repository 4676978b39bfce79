package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/driveline/auto-auction-backend/internal/api/rest"
	"github.com/driveline/auto-auction-backend/internal/api/websocket"
	"github.com/driveline/auto-auction-backend/internal/infrastructure/cache"
	"github.com/driveline/auto-auction-backend/internal/infrastructure/config"
	"github.com/driveline/auto-auction-backend/internal/infrastructure/database"
	"github.com/driveline/auto-auction-backend/internal/infrastructure/events"
	"github.com/driveline/auto-auction-backend/internal/infrastructure/payment"
	"github.com/driveline/auto-auction-backend/internal/infrastructure/repository"
	"github.com/driveline/auto-auction-backend/internal/infrastructure/telemetry"
	"github.com/driveline/auto-auction-backend/internal/metrics"
	"github.com/driveline/auto-auction-backend/internal/service/bidding"
	"github.com/driveline/auto-auction-backend/internal/service/deposit"
	"github.com/driveline/auto-auction-backend/internal/service/listing"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	slog.SetDefault(telemetry.SetupLogger(cfg.LogLevel))

	zlog, err := newZapLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.Initialize(ctx, &telemetry.Config{
		ServiceName:    "auction-api",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		ExportTimeout:  cfg.Telemetry.ExportTimeout,
		BatchTimeout:   cfg.Telemetry.BatchTimeout,
	})
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			zlog.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	pool, err := database.Connect(ctx, &cfg.Database, zlog)
	if err != nil {
		zlog.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		zlog.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	registry, err := metrics.NewRegistry("auction")
	if err != nil {
		zlog.Fatal("failed to build metrics registry", zap.Error(err))
	}

	// Storage
	listingRepo := repository.NewListingRepository(pool)
	bidRepo := repository.NewBidRepository(pool)
	mandateRepo := repository.NewMandateRepository(pool)
	depositRepo := repository.NewDepositRepository(pool)

	// Eventing
	transport := events.NewRedisTransport(redisClient, zlog)
	emitter := events.NewEmitter(transport, zlog)
	emitter.Start(ctx)

	// Services
	gateway := payment.NewGateway(&cfg.Payment, zlog)
	ledger := deposit.NewService(depositRepo, listingRepo, gateway, emitter, registry, zlog)
	ledger.Start(ctx)

	engine := bidding.NewService(listingRepo, bidRepo, mandateRepo, ledger, emitter, registry, zlog, bidding.Config{
		AntiSnipeWindow:     cfg.Auction.AntiSnipeWindow,
		MaxTotalDuration:    cfg.Auction.MaxTotalDuration,
		MaxAdmissionRetries: cfg.Auction.MaxAdmissionRetries,
	})

	listingSvc := listing.NewService(listingRepo, bidRepo, emitter, zlog)
	go runSweeper(ctx, listingSvc, cfg.Auction.SweepInterval, zlog)

	// HTTP surface
	redisCache := cache.NewRedisCache(redisClient, zlog)
	listingCache := cache.NewListingCache(redisCache, zlog)

	health := rest.NewHealthService()
	health.Register("postgres", rest.PingerFunc(pool.Ping))
	health.Register("redis", rest.PingerFunc(func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}))

	srv := rest.NewServer(cfg, rest.ServerDeps{
		Handler: rest.NewHandler(rest.Services{
			Bidding:  engine,
			Deposits: ledger,
			Listings: listingSvc,
		}, listingCache),
		Auth:        rest.NewAuthenticator(cfg.Security.JWTSecret, cfg.Security.TokenExpiry),
		RateLimiter: cache.NewRedisRateLimiter(redisClient, zlog),
		Health:      health,
		Metrics:     registry,
		WebSocket:   websocket.NewStreamer(transport, zlog),
	})

	if err := srv.Start(ctx); err != nil {
		zlog.Fatal("server failed", zap.Error(err))
	}

	// Drain queued events before exiting so admitted bids are not lost
	// from the realtime channel.
	emitter.Wait()
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// runSweeper periodically finishes live listings whose end time has
// passed, assigning winners and emitting finish events.
func runSweeper(ctx context.Context, svc listing.Service, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			closed, err := svc.CloseExpired(ctx, time.Now().UTC())
			if err != nil {
				logger.Warn("close sweep failed", zap.Error(err))
				continue
			}
			if closed > 0 {
				logger.Info("closed expired listings", zap.Int("count", closed))
			}
		}
	}
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"calculator-service/internal/cache"
	"calculator-service/internal/config"
	"calculator-service/internal/coordinator"
	"calculator-service/internal/handlers"
	"calculator-service/internal/httpserver"
	"calculator-service/internal/metrics"
	"calculator-service/internal/spot"
	"calculator-service/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("calculator exited with error: %v", err)
	}
}

func run() error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", zap.Error(err))
		return err
	}

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("cache_dir", cfg.Cache.Dir),
		zap.Duration("cache_ttl", cfg.Cache.TTL),
	)

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.Cache.Backend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.Redis.Addr),
		)
	}

	// ----- Cache store -----
	store, err := cache.NewStore(cache.Config{
		Backend:         cfg.Cache.Backend,
		Dir:             cfg.Cache.Dir,
		MaxEntries:      cfg.Cache.MaxEntries,
		Prefix:          cfg.Cache.Prefix,
		JanitorInterval: 5 * time.Minute,
	}, redisClient)
	if err != nil {
		logger.Error("cache store init failed", zap.Error(err))
		return err
	}
	store = cache.NewLoggingStore(store)
	defer store.Close()

	// ----- Coordinator -----
	coord := coordinator.New(store, nil, cfg.Cache.TTL)

	// ----- Spot price service -----
	source := spot.NewHTTPSource(spot.SourceConfig{
		EnergyBaseURL:   cfg.Spot.EnergyBaseURL,
		CurrencyBaseURL: cfg.Spot.CurrencyBaseURL,
		UpstreamTimeout: cfg.Spot.UpstreamTimeout,
		MaxRetries:      cfg.Spot.MaxRetries,
	}, logger)
	spotService := spot.NewService(source, store)

	// ----- Handlers -----
	calculateHandler := handlers.NewCalculateHandler(coord)
	priceHandler := handlers.NewPriceHandler(spotService)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, calculateHandler, priceHandler)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting calculator service",
		zap.String("addr", srv.Addr),
		zap.String("cache_backend", cfg.Cache.Backend),
	)

	// Start server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

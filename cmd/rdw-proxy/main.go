package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"rdw-proxy/internal/cache"
	"rdw-proxy/internal/config"
	httphandler "rdw-proxy/internal/http"
	"rdw-proxy/internal/http/middleware"
	"rdw-proxy/internal/logger"
	"rdw-proxy/internal/metrics"
	"rdw-proxy/internal/rdw"
	"rdw-proxy/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	vehicleCache, closeCache := newCache(ctx, cfg, appLogger)
	defer closeCache()

	rdwClient := rdw.NewClient(rdw.Options{
		BaseURL:  cfg.RDW.BaseURL,
		AppToken: cfg.RDW.AppToken,
		Timeout:  cfg.RDW.Timeout,
	})
	if cfg.RDW.AppToken == "" {
		appLogger.Warn().Msg("RDW_APP_TOKEN not set, requests to RDW are subject to anonymous throttling")
	}

	vehicleService := service.NewVehicleService(
		rdwClient,
		rdw.DefaultResources(cfg.RDW.OptionalDatasets),
		vehicleCache,
		appMetrics,
		appLogger,
	)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Window, cfg.RateLimit.Max)
	limiter.StartJanitor(ctx)

	handler := httphandler.NewHandler(vehicleService, appLogger)
	router := httphandler.NewRouter(handler, httphandler.RouterOptions{
		Environment:    cfg.Environment,
		AllowOrigins:   cfg.HTTP.AllowOrigins,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		RateLimiter:    limiter,
		Metrics:        appMetrics,
		Registry:       registry,
		Log:            appLogger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	appLogger.Info().
		Str("addr", addr).
		Str("cache_backend", cfg.Cache.Backend).
		Dur("cache_ttl", cfg.Cache.TTL).
		Int("rate_limit_max", cfg.RateLimit.Max).
		Dur("rate_limit_window", cfg.RateLimit.Window).
		Msg("starting RDW proxy")

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()

	appLogger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info().Msg("server exited")
}

func newCache(ctx context.Context, cfg *config.Config, log zerolog.Logger) (cache.Cache, func()) {
	if cfg.Cache.Backend == config.CacheBackendRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis cache")
			return cache.NewRedis(rdb, cfg.Cache.TTL, log), func() { _ = rdb.Close() }
		}

		_ = rdb.Close()
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, falling back to in-memory cache")
	}

	mem := cache.NewMemory(cfg.Cache.TTL)
	mem.StartJanitor(ctx)
	return mem, func() {}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/cities"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/config"
	httphandler "github.com/kjstillabower/weather-dashboard/internal/http"
	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/service"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	if cfg.CircuitBreakerEnabled {
		cb := client.NewCircuitBreaker(client.BreakerConfig{
			Name:             "weather_api",
			MaxRequests:      cfg.CircuitBreakerMaxRequests,
			Interval:         cfg.CircuitBreakerInterval,
			Timeout:          cfg.CircuitBreakerTimeout,
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			OnStateChange: func(name string, from, to gobreaker.State) {
				observability.CircuitBreakerState.WithLabelValues(name).Set(client.StateValue(to))
				logger.Warn("circuit breaker state change", zap.String("component", name), zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		weatherClient.SetCircuitBreaker(cb)
		observability.CircuitBreakerState.WithLabelValues("weather_api").Set(0)
		logger.Info("circuit breaker enabled", zap.Uint32("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	store, err := buildCache(cfg)
	if err != nil {
		logger.Fatal("cache", zap.String("backend", cfg.CacheBackend), zap.Error(err))
	}
	logger.Info("cache backend", zap.String("backend", store.cache.Name()), zap.Duration("freshness", cfg.CacheFreshness))

	resolver := service.NewResolver(weatherClient, store.cache, service.Options{
		MaxCityLength: cfg.CityMaxLength,
		Logger:        logger,
	})

	directory := cities.Default()
	if len(cfg.Cities) > 0 {
		directory = cities.New(cfg.Cities)
	}
	observability.SetTrackedCities(directory.Names())
	observability.RegisterTrafficGauges(cfg.DegradedWindow)

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		Version:          cfg.Version,
		CachePing:        store.ping,
	}
	handler := httphandler.NewHandler(resolver, directory, healthConfig, logger)

	limiter := buildLimiter(cfg)
	if limiter == nil {
		logger.Info("rate limiting disabled")
	}
	router := httphandler.NewRouter(handler, logger, httphandler.RouterOptions{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	lifecycle.MarkStarted(time.Now())
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if store.close != nil {
		if err := store.close(); err != nil {
			logger.Error("cache close", zap.Error(err))
		}
	}
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}

// cacheBackend bundles the selected cache with its health probe and closer.
type cacheBackend struct {
	cache cache.Cache
	ping  func() error
	close func() error
}

// buildCache selects the backend named by cfg.CacheBackend. The file backend
// creates cfg.CacheDir if needed.
func buildCache(cfg *config.Config) (cacheBackend, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.CacheFreshness)
		if err != nil {
			return cacheBackend{}, err
		}
		return cacheBackend{cache: mc, ping: mc.Ping, close: mc.Close}, nil
	case config.CacheBackendInMemory:
		return cacheBackend{cache: cache.NewInMemoryCache(cfg.CacheFreshness)}, nil
	default:
		fc, err := cache.NewFileCache(cfg.CacheDir, cfg.CacheFreshness)
		if err != nil {
			return cacheBackend{}, err
		}
		return cacheBackend{cache: fc, ping: fc.Ping}, nil
	}
}

// buildLimiter returns the /api token bucket, or nil when rate limiting is disabled.
func buildLimiter(cfg *config.Config) *rate.Limiter {
	if !cfg.RateLimitEnabled {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
}

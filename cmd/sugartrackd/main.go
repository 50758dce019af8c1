package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sugarscan/sugartrack/internal/auth"
	"github.com/sugarscan/sugartrack/internal/config"
	"github.com/sugarscan/sugartrack/internal/health"
	"github.com/sugarscan/sugartrack/internal/hooks"
	"github.com/sugarscan/sugartrack/internal/httpserver"
	"github.com/sugarscan/sugartrack/internal/ledger"
	"github.com/sugarscan/sugartrack/internal/logging"
	"github.com/sugarscan/sugartrack/internal/metrics"
	"github.com/sugarscan/sugartrack/internal/ratelimit"
	"github.com/sugarscan/sugartrack/internal/storage"
	"github.com/sugarscan/sugartrack/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sugartrackd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadServiceConfig(".")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFileDaemon,
		Service: "sugartrackd",
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logCloser.Close()
	logger.Info().Str("build", version.FullInfo()).Str("environment", cfg.Environment).Str("driver", cfg.DatabaseDriver).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	stores, err := storage.Open(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	if err := stores.SeedCatalog(ctx, cfg.CatalogSeedFile, logger); err != nil {
		return err
	}

	if cfg.UsesDefaultAuthSecret() {
		logger.Warn().Str("environment", cfg.Environment).Msg("auth_secret not set, signing tokens with the built-in development secret")
	}
	gate := auth.NewGate(cfg.AuthSecret, cfg.TokenTTL)
	consumption := ledger.New(stores.Ledger, stores.Users)
	consumption.SetLogger(logger)

	collector := metrics.NewCollector()

	dispatcher, closeHooks, err := buildHooks(cfg.Hooks, logger)
	if err != nil {
		return err
	}
	defer closeHooks()

	services := map[string]health.Pinger{}
	limiter, sweeper, err := buildRateLimiter(ctx, cfg.RateLimit, logger, services)
	if err != nil {
		return err
	}
	if limiter != nil {
		defer limiter.Close()
	}
	if sweeper != nil {
		sweeper.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			sweeper.Stop(stopCtx)
		}()
	}

	checker := health.New(health.Config{Databases: stores.Databases, Services: services})

	httpSrv := httpserver.New(gate, stores.Users, consumption, stores.Catalog)
	httpSrv.SetLogger(logger.With().Str("component", "http").Logger())
	httpSrv.SetDefaultSugarLimit(cfg.DefaultSugarLimit)
	httpSrv.SetMetrics(collector)
	httpSrv.SetHealthChecker(checker)
	if dispatcher != nil {
		httpSrv.SetHooks(dispatcher)
	}
	if limiter != nil {
		httpSrv.SetRateLimiter(limiter)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           httpSrv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress).Msg("sugartrack server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	return nil
}

// buildHooks wires the configured script and Kafka sinks. The returned
// closer flushes the Kafka writer.
func buildHooks(cfg hooks.Config, logger zerolog.Logger) (*hooks.Dispatcher, func(), error) {
	noop := func() {}
	if !cfg.Enabled {
		return nil, noop, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, noop, err
	}

	dispatcher := &hooks.Dispatcher{}
	if h := cfg.BuildScriptHandler(); h != nil {
		dispatcher.Register(h)
		logger.Info().Str("script", cfg.ScriptPath).Msg("hook script enabled")
	}

	closer := noop
	if cfg.KafkaEnabled() {
		writer := hooks.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		dispatcher.Register(hooks.NewKafkaHandler(writer))
		closer = func() {
			if err := writer.Close(); err != nil {
				logger.Warn().Err(err).Msg("close kafka writer")
			}
		}
		logger.Info().Str("brokers", strings.Join(cfg.KafkaBrokers, ",")).Str("topic", cfg.KafkaTopic).Msg("kafka hook sink enabled")
	}
	return dispatcher, closer, nil
}

// buildRateLimiter returns nil when rate limiting is disabled. A Redis store
// is registered with services for health reporting; the in-memory store gets
// a sweeper.
func buildRateLimiter(ctx context.Context, cfg ratelimit.Config, logger zerolog.Logger, services map[string]health.Pinger) (*ratelimit.Limiter, *ratelimit.Sweeper, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	if cfg.RedisAddr != "" {
		store, err := ratelimit.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		services["redis"] = store
		limiter := ratelimit.NewLimiter(cfg, store)
		limiter.SetLogger(logger)
		logger.Info().Str("redis", cfg.RedisAddr).Msg("rate limiting enabled")
		return limiter, nil, nil
	}

	store := ratelimit.NewMemoryStore()
	limiter := ratelimit.NewLimiter(cfg, store)
	limiter.SetLogger(logger)
	sweeper, err := ratelimit.NewSweeper(cfg.SweepSchedule, store, cfg.IdleTTL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("ratelimit sweep schedule %q: %w", cfg.SweepSchedule, err)
	}
	logger.Info().Float64("rps", cfg.RequestsPerSecond).Int("burst", cfg.Burst).Msg("rate limiting enabled (in-memory)")
	return limiter, sweeper, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"carbontrack/internal/amqp"
	"carbontrack/internal/backend"
	"carbontrack/internal/cache"
	"carbontrack/internal/cli"
	"carbontrack/internal/config"
	apphttp "carbontrack/internal/http"
	"carbontrack/internal/log"
	"carbontrack/internal/metrics"
	"carbontrack/internal/services"
	"carbontrack/internal/store"
	"carbontrack/internal/totals"
)

const (
	shutdownTimeout      = 30 * time.Second
	cacheCleanupInterval = 10 * time.Minute
	sessionPurgeInterval = time.Hour
	summaryEntries       = 64
)

// sessionPurger is implemented by auth stores that persist sessions.
type sessionPurger interface {
	PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("carbontrack stopped", log.FieldError, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext()
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	backends, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}

	m := metrics.New()
	records := store.New(backends.Usage, cfg.UsageCacheTTL,
		store.WithObserver(m),
		store.WithLogger(logger.WithComponent(log.ComponentStore)))

	aggregator := totals.NewAggregator(records,
		totals.WithSummaryCacheSize(summaryEntries, cfg.SummaryRetention),
		totals.WithAggregatorLogger(logger.WithComponent(log.ComponentTotals)))
	caches := cache.NewManager()
	caches.Register(aggregator.SummaryCache())
	caches.StartCleanup(cacheCleanupInterval)

	auth := services.NewAuthService(backends.Auth, cfg.SessionTTL,
		services.WithAuthLogger(logger.WithComponent(log.ComponentAuth)))
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		created, err := auth.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			caches.Stop()
			return errors.Join(fmt.Errorf("ensure admin account: %w", err), backends.Cleanup())
		}
		if created {
			logger.Info("Created admin account", log.FieldEmail, cfg.AdminEmail)
		}
	}

	if _, err := records.Records(ctx); err != nil {
		logger.Warn("Initial usage fetch failed, dashboard will retry on demand", log.FieldError, err)
	}

	workers, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	if cfg.AMQPEnabled() {
		go consumeUsageEvents(workers, cfg, records, logger.WithComponent(log.ComponentAMQP))
	}
	if p, ok := backends.Auth.(sessionPurger); ok {
		go purgeSessions(workers, p, logger.WithComponent(log.ComponentAuth))
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Dependencies{
		Auth:       auth,
		Aggregator: aggregator,
		Stats:      records,
		Ready:      backends.Ready,
		Metrics:    m,
		Logger:     logger,
	}, apphttp.Options{
		SecureCookies:  cfg.SecureCookies,
		SessionTTL:     cfg.SessionTTL,
		LoginRateLimit: cfg.LoginRateLimit,
		TrustedProxies: cfg.TrustedProxies,
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting carbontrack server",
			"port", cfg.Port,
			"data_backend", cfg.DataBackend,
			"auth_backend", cfg.AuthBackend,
			"amqp", cfg.AMQPEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case err := <-serveErr:
		runErr = err
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}
	cancelWorkers()

	shutdownErr := cli.Shutdown(logger, shutdownTimeout,
		cli.ShutdownStep{Name: "http", Run: srv.Shutdown},
		cli.ShutdownStep{Name: "caches", Run: func(context.Context) error {
			caches.Stop()
			return nil
		}},
		cli.ShutdownStep{Name: "backend", Run: func(context.Context) error {
			return backends.Cleanup()
		}},
	)
	return errors.Join(runErr, shutdownErr)
}

// consumeUsageEvents drops the cached usage snapshot whenever an import
// lands, so the next dashboard request refetches.
func consumeUsageEvents(ctx context.Context, cfg *config.Config, records *store.RecordStore, logger *log.Logger) {
	client := amqp.NewConsumer(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	defer client.Close()

	err := client.ConsumeUsageEvents(ctx, func(ctx context.Context, ev *amqp.UsageEvent) error {
		records.Invalidate()
		logger.InfoContext(ctx, "Usage snapshot invalidated",
			"event", ev.Type,
			log.FieldRecords, ev.Count,
			"source", ev.Source)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Usage event consumer stopped", log.FieldError, err)
	}
}

func purgeSessions(ctx context.Context, p sessionPurger, logger *log.Logger) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := p.PurgeExpiredSessions(ctx, now)
			if err != nil {
				logger.Warn("Session purge failed", log.FieldError, err)
				continue
			}
			if n > 0 {
				logger.Info("Purged expired sessions", "count", n)
			}
		}
	}
}

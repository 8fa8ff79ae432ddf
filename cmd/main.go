// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/config"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/database"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/handler"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/i18n"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/notify"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/payment"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/repository"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/service"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/sweeper"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Storage ────────────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// ── 2. Background work and notices ───────────────────────────────────
	tr := i18n.NewTranslator(cfg.DefaultLocale, logger)
	sinks, closeSinks, err := buildSinks(cfg, tr, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	// Closed before the sinks so queued notices drain first.
	jobs := worker.NewPool(cfg.Workers, cfg.WorkerQueue, 30*time.Second, logger)
	defer jobs.Close()

	var payments payment.Gateway = payment.NewManual(logger)
	if cfg.RazorpayEnabled() {
		payments = payment.NewRazorpay(cfg.RazorpayKey, cfg.RazorpaySecret)
		logger.Info("razorpay payments enabled")
	}

	// ── 3. Wire up layers ────────────────────────────────────────────────
	svc := service.NewEventService(store,
		service.WithNotifier(notify.NewDispatcher(jobs, logger, sinks...)),
		service.WithPayments(payments),
		service.WithJobs(jobs),
		service.WithLogger(logger),
		service.WithPolicy(service.Policy{
			OfferWindow: cfg.OfferWindow,
			RequireFull: cfg.WaitlistRequireFull,
		}),
	)

	var rdb *redis.Client
	var lease sweeper.Lease
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		lease = sweeper.NewRedisLease(rdb, "activity-waitlist:sweep")
		logger.Info("connected to redis", "addr", cfg.RedisAddr)
	}

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.New(svc, cfg.SweepInterval, lease, logger).Run(ctx)
	}()

	// ── 4. Build the router ───────────────────────────────────────────────
	limit, err := handler.RateLimit(cfg.RateLimit, rdb, tr)
	if err != nil {
		return err
	}
	router := handler.NewRouter(handler.NewEventHandler(svc, tr, logger), handler.RouterConfig{
		Auth:      handler.NewAuthenticator(cfg.JWTSecret),
		Logger:    logger,
		RateLimit: limit,
	})

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Port, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	<-sweepDone
	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	}

	if err := database.RunMigrations(cfg.DatabaseURL, logger); err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	pool, err := database.NewPool(ctx, cfg.DatabaseURL, database.PoolConfig{}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	logger.Info("connected to postgres")
	return repository.NewPostgresStore(pool), pool.Close, nil
}

func buildSinks(cfg *config.Config, tr notify.Translator, logger *slog.Logger) ([]notify.Sink, func(), error) {
	sinks := []notify.Sink{notify.NewLogSink(logger)}
	closers := []func() error{}

	if cfg.SMTPEnabled() {
		sinks = append(sinks, notify.NewEmailSender(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			FromName: cfg.SMTPFromName,
			FromAddr: cfg.SMTPFromEmail,
		}, tr))
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		sinks = append(sinks, kp)
		closers = append(closers, kp.Close)
	}
	if cfg.DiscordEnabled() {
		d, err := notify.NewDiscordAnnouncer(cfg.DiscordWebhookID, cfg.DiscordWebhookToken, cfg.DefaultLocale, tr)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, d)
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	logger.Info("notice sinks ready", "sinks", names)

	return sinks, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("close notice sink", "error", err)
			}
		}
	}, nil
}

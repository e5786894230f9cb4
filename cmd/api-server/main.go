package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logger"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	"github.com/hackgods/clinic-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("api-server failed", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	log.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("store", cfg.StoreBackend),
		zap.String("lock", cfg.LockBackend),
		zap.String("timezone", cfg.ClinicTimezone),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedule := availability.Default()
	if cfg.AvailabilityFile != "" {
		loaded, err := availability.LoadFile(cfg.AvailabilityFile)
		if err != nil {
			return fmt.Errorf("load availability: %w", err)
		}
		schedule = loaded
		log.Info("loaded availability file",
			zap.String("path", cfg.AvailabilityFile),
			zap.Strings("doctors", schedule.Doctors()),
		)
	}

	return serve(rootCtx, cfg, log, schedule)
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger, schedule *availability.Schedule) error {
	var (
		repo   appointment.Repository
		checks []api.DependencyCheck
	)

	switch cfg.StoreBackend {
	case config.StorePostgres:
		pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
		pgPool, err := db.Open(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			return fmt.Errorf("postgres connection error: %w", err)
		}
		defer pgPool.Close()
		log.Info("connected to Postgres")

		repo = appointment.NewPgRepository(pgPool)
		checks = append(checks, api.DependencyCheck{Name: "postgres", Critical: true, Ping: pgPool.Ping})
	default:
		log.Warn("using in-memory store, data is lost on restart")
		repo = appointment.NewMemoryRepository()
	}

	var locker redisclient.Locker
	switch cfg.LockBackend {
	case config.LockRedis:
		rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("redis connection error: %w", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("error closing redis", zap.Error(err))
			}
		}()
		log.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))

		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		checks = append(checks, api.DependencyCheck{Name: "redis", Ping: redisclient.Ping(rdb)})
	default:
		locker = redisclient.NewLocalSlotLocker()
	}

	m := metrics.NewDefault()

	var sender notify.Sender = notify.NewLogSender(log)
	if cfg.SMTP.Enabled() {
		smtp, err := notify.NewSMTPSender(cfg.SMTP)
		if err != nil {
			return fmt.Errorf("smtp setup: %w", err)
		}
		sender = smtp
	} else {
		log.Warn("SMTP not configured, emails will only be logged")
	}
	gateway := notify.NewGateway(sender, cfg.SMTP.To, cfg.NotifyTimeout, m, log.Named("notify"))

	svc := appointment.NewService(repo, locker, schedule, gateway, cfg, log.Named("appointment"))

	router := api.NewRouter(api.RouterConfig{
		Service:   svc,
		Mailer:    gateway,
		Metrics:   m,
		Checks:    checks,
		Logger:    log.Named("http"),
		Env:       cfg.Env,
		Version:   version,
		StaticDir: cfg.StaticDir,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down api-server", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown error", zap.Error(err))
	}
	if err := gateway.Wait(shutdownCtx); err != nil {
		log.Warn("notifications still in flight at shutdown", zap.Error(err))
	}

	log.Info("api-server stopped")
	return nil
}

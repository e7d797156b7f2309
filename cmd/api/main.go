package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cuebook/internal/api"
	"cuebook/internal/config"
	"cuebook/internal/consumer"
	"cuebook/internal/database"
	"cuebook/internal/domain"
	"cuebook/internal/events"
	"cuebook/internal/google"
	"cuebook/internal/logging"
	"cuebook/internal/metrics"
	"cuebook/internal/notify"
	"cuebook/internal/repository"
	"cuebook/internal/scheduler"
	"cuebook/internal/service"
	"cuebook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, cfg.Database.BusyTimeout, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	sinks, closeSinks := initSinks(ctx, cfg, db, logger)
	defer closeSinks()

	outbox := worker.NewOutboxWorker(db, redisClient, worker.RetryPolicyFromConfig(cfg.Outbox), logging.Component(logger, "outbox"), sinks...).
		WithPolling(cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)

	loc := cfg.Location()
	bookings := service.NewBookingService(db, outbox, service.PolicyFromConfig(cfg), loc, logging.Component(logger, "bookings"))
	pending := initPendingRepository(redisClient, logger)
	payments := service.NewPaymentService(bookings, pending, cfg.Payments.StashTTL, logging.Component(logger, "payments"))

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	startMetrics(ctx, cfg, logger)
	spawn(func() { outbox.Start(ctx) })
	spawn(func() { database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup")).Start(ctx) })

	if cfg.Scheduler.Enabled {
		reconciler := scheduler.NewReconciler(db, bookings, cfg.Scheduler.Interval, cfg.Scheduler.BatchSize,
			service.IsSkippable, logging.Component(logger, "reconciler"))
		spawn(func() { reconciler.Start(ctx) })
	}

	if cfg.Broker.URL != "" {
		payConsumer := consumer.NewPaymentConsumer(cfg.Broker.URL, cfg.Broker.Exchange, cfg.Broker.PaymentQueue,
			payments, logging.Component(logger, "payment-consumer"))
		spawn(func() {
			if err := payConsumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("payment consumer stopped")
			}
		})
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config; running background services only")
		<-ctx.Done()
		wg.Wait()
		return nil
	}

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, bookings, db, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Bookings:  bookings,
		Payments:  payments,
		Wallets:   service.NewWalletService(db, logging.Component(logger, "wallet")),
		Dashboard: service.NewDashboardService(db, loc, logging.Component(logger, "dashboard")),
		Outbox:    outbox,
		Limits:    pending,
		ExportDir: cfg.Exports.Path,
	}, logger)

	err = startServers(ctx, grpcServer, httpServer, cfg, logger)
	wg.Wait()
	return err
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initPendingRepository(redisClient *redis.Client, logger *zerolog.Logger) domain.PendingRepository {
	memory := repository.NewMemoryPendingRepository()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverPendingRepository(
		repository.NewRedisPendingRepository(redisClient),
		memory,
		logging.Component(logger, "pending-store"),
	)
}

// initSinks builds every configured delivery target. Optional sinks that
// fail to initialize are logged and skipped.
func initSinks(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) ([]worker.Sink, func()) {
	bus := events.NewEventBus()
	busLog := logging.Component(logger, "events")
	bus.Subscribe("*", func(e *events.Event) error {
		busLog.Debug().Str("type", e.Type).RawJSON("payload", e.Payload).Msg("event delivered")
		return nil
	})

	sinks := []worker.Sink{bus}
	var closers []func()

	if cfg.Broker.URL != "" {
		publisher, err := events.NewAMQPPublisher(cfg.Broker.URL, cfg.Broker.Exchange)
		if err != nil {
			logger.Warn().Err(err).Msg("rabbitmq publisher init failed, continuing without broker events")
		} else {
			sinks = append(sinks, publisher)
			closers = append(closers, func() { _ = publisher.Close() })
			logger.Info().Str("exchange", cfg.Broker.Exchange).Msg("rabbitmq publisher connected")
		}
	}

	if cfg.Telegram.BotToken != "" {
		bot, err := notify.NewTelegramBot(cfg.Telegram.BotToken, cfg.Telegram.Debug)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		} else {
			sinks = append(sinks, notify.NewTelegramNotifier(bot, db, logging.Component(logger, "telegram")))
			logger.Info().Str("bot", bot.Self.UserName).Msg("telegram connected")
		}
	}

	if cfg.Google.GoogleCredentialsFile != "" && cfg.Google.SettlementSpreadSheetID != "" {
		sheet, err := google.NewSettlementSheet(ctx, cfg.Google.GoogleCredentialsFile,
			cfg.Google.SettlementSpreadSheetID, cfg.Google.SettlementSheetName, cfg.Location())
		if err == nil {
			err = sheet.EnsureHeader(ctx)
		}
		if err != nil {
			logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		} else {
			sinks = append(sinks, sheet)
			logger.Info().Msg("google sheets connected")
		}
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
		logger.Info().Str("grpc_addr", grpcServer.Addr()).Msg("gRPC API started")
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

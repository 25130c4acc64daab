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
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"hostbook/internal/api"
	"hostbook/internal/config"
	"hostbook/internal/database"
	"hostbook/internal/domain"
	"hostbook/internal/events"
	"hostbook/internal/lock"
	"hostbook/internal/logging"
	"hostbook/internal/metrics"
	"hostbook/internal/models"
	"hostbook/internal/payment"
	"hostbook/internal/service"
	"hostbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hosts, err := loadHosts(cfg, &logger)
	if err != nil {
		return err
	}

	db, err := initDatabase(ctx, cfg, hosts, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	gateway, err := initPaymentGateway(cfg, &logger)
	if err != nil {
		return err
	}
	payments := payment.NewCoordinator(gateway, cfg.Payment.Timeout(), logging.Component(&logger, "payments"))

	releaseWorker := worker.NewReleaseWorker(
		db,
		payments,
		redisClient,
		worker.RetryPolicy{
			MaxRetries:   cfg.Worker.ReleaseMaxRetries,
			InitialDelay: time.Duration(cfg.Worker.ReleaseInitialDelaySecs) * time.Second,
			MaxDelay:     time.Duration(cfg.Worker.ReleaseMaxDelaySecs) * time.Second,
		},
		time.Duration(cfg.Worker.PollIntervalSecs)*time.Second,
		logging.Component(&logger, "release-worker"),
	)

	dispatcher := events.NewDispatcher(events.NewEventBus(), logging.Component(&logger, "events"))
	if redisClient != nil {
		dispatcher.UseRedis(redisClient, "")
	}

	locker := initLocker(cfg, redisClient, &logger)
	clock := domain.SystemClock{}

	bookings := service.NewBookingService(
		db, locker, payments, releaseWorker, dispatcher, clock, cfg.Booking, logging.Component(&logger, "bookings"),
	)
	availability := service.NewAvailabilityService(
		db, locker, clock, cfg.Booking, logging.Component(&logger, "availability"),
	)

	httpServer := api.NewHTTPServer(cfg.API, bookings, availability, logging.Component(&logger, "api"))

	go releaseWorker.Start(ctx)
	go database.NewBackupService(db, cfg.Backup, logging.Component(&logger, "backup")).Start(ctx)
	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// loadHosts reads the host seed file; hosts listed in the main config are used when the file is absent.
func loadHosts(cfg *config.Config, logger *zerolog.Logger) ([]models.Host, error) {
	hostsPath := os.Getenv("HOSTS_PATH")
	if hostsPath == "" {
		hostsPath = "configs/hosts.yaml"
	}
	hostsData, err := os.ReadFile(hostsPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info().Str("hosts_path", hostsPath).Int("hosts", len(cfg.Hosts)).Msg("hosts file not found, using config hosts")
		return cfg.Hosts, nil
	}
	if err != nil {
		logger.Error().Err(err).Str("hosts_path", hostsPath).Msg("read hosts")
		return nil, err
	}

	var hostsConfig struct {
		Hosts []models.Host `yaml:"hosts"`
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(hostsData))), &hostsConfig); err != nil {
		logger.Error().Err(err).Str("hosts_path", hostsPath).Msg("parse hosts")
		return nil, err
	}

	hosts := append(append([]models.Host{}, cfg.Hosts...), hostsConfig.Hosts...)
	if err := config.ValidateHosts(hosts); err != nil {
		return nil, fmt.Errorf("validate hosts: %w", err)
	}
	return hosts, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, hosts []models.Host, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	for i := range hosts {
		if err := db.UpsertHost(ctx, &hosts[i]); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed host %s: %w", hosts[i].ID, err)
		}
	}
	logger.Info().Int("hosts", len(hosts)).Msg("hosts seeded")
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := lock.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := lock.Ping(pingCtx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initLocker prefers the shared Redis lock and falls back to the in-process registry.
func initLocker(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.Locker {
	memory := lock.NewMemoryLocker(cfg.Lock.Wait())
	if redisClient == nil {
		logger.Warn().Msg("redis unavailable, reservation lock is process-local")
		return memory
	}
	return lock.NewFailoverLocker(
		lock.NewRedisLocker(redisClient, cfg.Lock.TTL(), cfg.Lock.Wait()),
		memory,
		logging.Component(logger, "lock"),
	)
}

func initPaymentGateway(cfg *config.Config, logger *zerolog.Logger) (domain.PaymentGateway, error) {
	switch strings.ToLower(cfg.Payment.Provider) {
	case "http":
		logger.Info().Str("base_url", cfg.Payment.BaseURL).Msg("using http payment gateway")
		return payment.NewHTTPGateway(cfg.Payment.BaseURL, cfg.Payment.APIKey, cfg.Payment.Timeout()), nil
	case "sandbox":
		logger.Warn().Msg("using sandbox payment gateway")
		return payment.NewSandboxGateway(), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Payment.Provider)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

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
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

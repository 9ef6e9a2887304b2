package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dejobratic/blogcommerce/internal/auth"
	"github.com/dejobratic/blogcommerce/internal/config"
	"github.com/dejobratic/blogcommerce/internal/database"
	idemmemory "github.com/dejobratic/blogcommerce/internal/idempotency/memory"
	idempostgres "github.com/dejobratic/blogcommerce/internal/idempotency/postgres"
	"github.com/dejobratic/blogcommerce/internal/kafka"
	"github.com/dejobratic/blogcommerce/internal/middleware"
	ordersadapters "github.com/dejobratic/blogcommerce/internal/orders/adapters"
	httpadapter "github.com/dejobratic/blogcommerce/internal/orders/adapters/http"
	ordersmemory "github.com/dejobratic/blogcommerce/internal/orders/adapters/memory"
	orderspostgres "github.com/dejobratic/blogcommerce/internal/orders/adapters/postgres"
	ordersapp "github.com/dejobratic/blogcommerce/internal/orders/app"
	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	ordersmetrics "github.com/dejobratic/blogcommerce/internal/orders/metrics"
	"github.com/dejobratic/blogcommerce/internal/orders/ports"
	"github.com/dejobratic/blogcommerce/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type storage struct {
	store ordersadapters.Store
	idem  ports.IdempotencyStore
	purge ports.IdempotencyPurger
	pool  *pgxpool.Pool
}

func main() {
	if err := run(); err != nil {
		slog.Error("api exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := telemetry.ParseLevel(cfg.Telemetry.LogLevel)
	if err != nil {
		return err
	}
	logger := telemetry.NewLogger(os.Stdout, level, cfg.Service.Name)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := initTelemetry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	meter := tel.Meter(cfg.Service.Name)
	orderMetrics, err := ordersmetrics.NewMetrics(meter)
	if err != nil {
		return err
	}
	dbMetrics, err := database.NewMetrics(meter)
	if err != nil {
		return err
	}
	kafkaMetrics, err := kafka.NewMetrics(meter)
	if err != nil {
		return err
	}
	httpMetrics, err := httpadapter.NewMetrics(meter)
	if err != nil {
		return err
	}

	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if st.pool != nil {
		defer st.pool.Close()

		reg, err := database.RegisterPoolMetrics(meter, st.pool)
		if err != nil {
			return fmt.Errorf("register pool metrics: %w", err)
		}
		defer func() { _ = reg.Unregister() }()
	}

	eventBus, closeBus := newEventBus(cfg, logger)
	defer closeBus()

	tokens, err := auth.NewTokens(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TTL)
	if err != nil {
		return fmt.Errorf("configure auth: %w", err)
	}

	repo := ordersadapters.NewObservableRepository(st.store, dbMetrics)
	service := ordersapp.NewService(
		repo,
		repo,
		ordersadapters.NewObservableEventBus(eventBus, kafkaMetrics),
		st.idem,
		ordersapp.Settings{
			Shipping: domain.ShippingPolicy{
				FreeShippingThreshold: cfg.Shop.FreeShippingThreshold,
				BaseCost:              cfg.Shop.ShippingCost,
			},
			MaxAttempts:     cfg.Shop.CreateMaxAttempts,
			DefaultPageSize: cfg.Shop.DefaultPageSize,
			MaxPageSize:     cfg.Shop.MaxPageSize,
			UserMaxPageSize: cfg.Shop.UserMaxPageSize,
		},
		logger,
		orderMetrics,
	)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, auth.RateLimitKey)
	go limiter.Run(ctx, time.Minute)
	go purgeIdempotencyKeys(ctx, st.purge, cfg.Idempotency.PurgeInterval, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if st.pool != nil {
			if err := database.CheckHealth(r.Context(), st.pool); err != nil {
				middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
				return
			}
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	httpadapter.NewHandler(service, logger, httpadapter.Options{
		Prefix:        cfg.HTTP.OrdersPrefix,
		Currency:      cfg.Shop.DefaultCurrency,
		CreateLimiter: limiter,
	}).Register(mux)

	handler := middleware.Chain(
		httpadapter.WithMetrics(mux, httpMetrics),
		middleware.RequestID,
		middleware.AccessLog(logger),
		middleware.Recover(logger),
		auth.Authenticate(tokens, logger),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           otelhttp.NewHandler(handler, "http.server"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("http server starting",
			"port", cfg.HTTP.Port,
			"storage", cfg.Storage.Driver,
			"orders_prefix", cfg.HTTP.OrdersPrefix,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownGrace)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}

func initTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Telemetry, error) {
	var opts []telemetry.Option
	if cfg.Telemetry.OTelEndpoint == "" {
		opts = append(opts, telemetry.WithoutExport())
	}

	return telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTelEndpoint,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRate:     cfg.Telemetry.SampleRate,
	}, opts...)
}

func seedCatalog(repo *ordersmemory.Repository, path string, logger *slog.Logger) error {
	if path == "" {
		logger.Warn("no STORAGE_SEED_FILE set; catalog is empty")
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	n, err := repo.Seed(f)
	if err != nil {
		return fmt.Errorf("seed catalog from %s: %w", path, err)
	}
	logger.Info("seeded in-memory catalog", "path", path, "products", n)
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage, error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		logger.Warn("using in-memory storage; data is lost on restart")
		repo := ordersmemory.NewRepository()
		if err := seedCatalog(repo, cfg.Storage.SeedFile, logger); err != nil {
			return storage{}, err
		}
		idem := idemmemory.NewStore(cfg.Idempotency.TTL)
		return storage{store: repo, idem: idem, purge: idem}, nil
	}

	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return storage{}, fmt.Errorf("create database pool: %w", err)
	}

	if cfg.Database.AutoMigrate {
		logger.Info("running database migrations", "path", cfg.Database.MigrationsPath)
		if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			pool.Close()
			return storage{}, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("migrations completed successfully")
	}

	idem := idempostgres.NewStore(pool, cfg.Idempotency.TTL)
	return storage{
		store: orderspostgres.NewRepository(pool),
		idem:  idem,
		purge: idem,
		pool:  pool,
	}, nil
}

func newEventBus(cfg *config.Config, logger *slog.Logger) (ports.EventBus, func()) {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("no kafka brokers configured; order events are not published")
		return kafka.NewLogEventBus(logger), func() {}
	}

	writer := kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.OrdersTopic)
	logger.Info("publishing order events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.OrdersTopic)
	return kafka.NewPublisher(writer), func() { closeQuietly(writer, logger) }
}

func closeQuietly(c io.Closer, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn("close failed", "error", err)
	}
}

func purgeIdempotencyKeys(ctx context.Context, p ports.IdempotencyPurger, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := p.Purge(ctx)
			if err != nil {
				logger.WarnContext(ctx, "idempotency purge failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.DebugContext(ctx, "purged idempotency keys", "removed", removed)
			}
		}
	}
}

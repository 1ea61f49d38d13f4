package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/servicehomie/platform/libs/auth"
	"github.com/servicehomie/platform/libs/db"
	"github.com/servicehomie/platform/libs/httpx"
	"github.com/servicehomie/platform/libs/kafkax"
	"github.com/servicehomie/platform/libs/metrics"
	otelx "github.com/servicehomie/platform/libs/otel"
	"github.com/servicehomie/platform/libs/runtime"
	"github.com/servicehomie/platform/services/availability-service/internal/cache"
	"github.com/servicehomie/platform/services/availability-service/internal/consumer"
	"github.com/servicehomie/platform/services/availability-service/internal/handlers"
	"github.com/servicehomie/platform/services/availability-service/internal/outbox"
	"github.com/servicehomie/platform/services/availability-service/internal/payments"
	"github.com/servicehomie/platform/services/availability-service/internal/scheduling"
	"github.com/servicehomie/platform/services/availability-service/internal/storage"
	"github.com/servicehomie/platform/services/availability-service/migrations"
)

func main() {
	cfg, err := loadSettings()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := storage.Migrate(ctx, pool, migrations.FS); err != nil {
			logger.Error("migration failed", "err", err)
			panic(err)
		}
		logger.Info("schema migrated")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()

	metrics.Register()

	defaults := scheduling.DefaultSettings()
	defaults.HorizonDays = min(cfg.HorizonDays, scheduling.MaxHorizonDays)
	defaults.SlotStepMinutes = cfg.SlotStepMinutes
	planner := scheduling.NewPlanner(storage.NewStore(pool), logger, scheduling.WithDefaults(defaults))
	overlays := cache.NewManager(rdb, planner, cfg.CacheTTL, logger)
	pay := payments.New(payments.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		SuccessURL:    cfg.CheckoutSuccessURL,
		CancelURL:     cfg.CheckoutCancelURL,
		Currency:      cfg.Currency,
	}, planner, logger)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	}

	if len(cfg.KafkaBrokers) > 0 {
		writer := outbox.NewKafkaWriter(cfg.KafkaBrokers)
		defer func() { _ = writer.Close() }()
		go outbox.NewPublisher(pool, writer, logger, outbox.PublisherConfig{PollEvery: cfg.OutboxPoll}).Run(ctx)

		reader := consumer.NewReader(consumer.Config{Brokers: cfg.KafkaBrokers, GroupID: cfg.KafkaGroupID})
		go consumer.New(reader, overlays, logger).Run(ctx)

		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	} else {
		logger.Warn("KAFKA_BROKERS not set; outbox events stay unpublished")
	}

	if err := startGrpcServer(ctx, logger, cfg.GRPCPort, checks); err != nil {
		logger.Error("grpc server failed", "err", err)
		panic(err)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("GET /metrics", metrics.Handler())

	requireOwner := auth.RequireOwner(cfg.JWTSecret, func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusUnauthorized, "missing or invalid bearer token")
	})
	handlers.New(planner, overlays, pay, logger).Routes(mux, requireOwner, publicLimiter(cfg, rdb, logger))

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{AllowedOrigins: cfg.CORSOrigins}),
		httpx.WithRequestID,
		httpx.WithTimeout(cfg.RequestTimeout),
		httpx.WithAccessLog(logger, metrics.ObserveHTTP),
		httpx.WithBodyLimit(cfg.MaxBodyBytes),
	)
	handler = otelhttp.NewHandler(handler, "availability")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// publicLimiter guards public writes per client address. It returns nil, and
// so no limiting, when RATE_LIMIT_PER_MINUTE is 0.
func publicLimiter(cfg settings, rdb redis.Scripter, logger *slog.Logger) func(http.Handler) http.Handler {
	if cfg.RateLimitPerMinute <= 0 {
		logger.Info("public rate limiting disabled")
		return nil
	}
	limiter := httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "ratelimit:public").
		TrustProxyHops(cfg.TrustProxyHops)
	return limiter.Middleware(logger, true)
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/config"
	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/salonbook/libs/otel"
	"github.com/md-rashed-zaman/salonbook/libs/runtime"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	cfg := availability.DefaultConfig()
	cfg.StoreTimeout = config.Millis("STORE_TIMEOUT_MS", cfg.StoreTimeout)
	cfg.DisableEstimator = config.Bool("DISABLE_DURATION_ESTIMATE", false)
	if tz := config.String("TIMEZONE", "UTC"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			logger.Warn("invalid TIMEZONE; using UTC", "timezone", tz, "err", err)
		} else {
			cfg.Location = loc
		}
	}

	var readyChecks []runtime.ReadyCheck

	// Without a database the service still answers availability queries from
	// synthetic occupancy; booking writes answer 503.
	var (
		pool      *db.Pool
		directory availability.Directory
		live      availability.OccupancySource
		store     handlers.BookingStore
		events    handlers.EventWriter
		engineOpt []availability.Option
	)
	knownStaff := config.List("DEMO_STAFF_IDS", "")
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err = db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()

		dir := storage.NewDirectory(pool)
		directory = dir
		live = availability.NewLiveStore(dir, cfg)
		engineOpt = append(engineOpt, availability.WithCatalog(dir))
		store = storage.NewBookingRepository(pool)
		outboxRepo := outbox.NewRepository()
		events = outboxRepo

		if len(knownStaff) == 0 {
			knownStaff = loadStaffIDs(ctx, dir, cfg.StoreTimeout)
		}

		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   config.String("KAFKA_BROKERS", ""),
			PollEvery: config.Millis("OUTBOX_POLL_MS", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)

		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
		if publisher.Enabled() {
			readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))})
		}
	} else {
		logger.Warn("DATABASE_URL not set; serving synthetic availability only")
	}

	engine := availability.NewEngine(cfg, directory, live, availability.NewDeterministic(knownStaff, cfg), logger, engineOpt...)
	bookingHandler := handlers.NewBookingHandler(engine, store, events, logger)

	publicLimit, redisCheck := rateLimitMiddleware(logger)
	if redisCheck != nil {
		readyChecks = append(readyChecks, *redisCheck)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/api/v1/public/slots", httpx.Chain(http.HandlerFunc(bookingHandler.Slots), publicLimit))
	mux.Handle("/api/v1/public/book", httpx.Chain(http.HandlerFunc(bookingHandler.Create), publicLimit, httpx.WithBodyLimit(64<<10)))
	mux.HandleFunc("/api/v1/bookings", bookingHandler.List)
	mux.Handle("/api/v1/bookings/cancel", httpx.Chain(http.HandlerFunc(bookingHandler.Cancel), httpx.WithBodyLimit(16<<10)))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := startGrpcServer(ctx, logger, engine); err != nil {
		logger.Error("grpc server init failed", "err", err)
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

func loadStaffIDs(ctx context.Context, dir *storage.Directory, timeout time.Duration) []string {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ids, err := dir.ActiveStaffIDs(ctx)
	if err != nil {
		return nil
	}
	return ids
}

// rateLimitMiddleware prefers a shared Redis counter and falls back to a
// per-process limiter. A zero limit disables limiting.
func rateLimitMiddleware(logger *slog.Logger) (httpx.Middleware, *runtime.ReadyCheck) {
	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if perMinute <= 0 {
		return nil, nil
	}
	addr := strings.TrimSpace(config.String("REDIS_ADDR", ""))
	if addr == "" {
		logger.Info("rate limiter using process memory", "per_minute", perMinute)
		return httpx.NewRateLimiter(perMinute, time.Minute).Middleware(), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
	})
	limiter := httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, "salonbook:ratelimit:")
	logger.Info("rate limiter using redis", "addr", addr, "per_minute", perMinute)
	return limiter.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)),
		&runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)}
}

package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/dockslots/libs/auth"
	"github.com/md-rashed-zaman/dockslots/libs/db"
	"github.com/md-rashed-zaman/dockslots/libs/grpcx"
	"github.com/md-rashed-zaman/dockslots/libs/httpx"
	"github.com/md-rashed-zaman/dockslots/libs/kafkax"
	otelx "github.com/md-rashed-zaman/dockslots/libs/otel"
	"github.com/md-rashed-zaman/dockslots/libs/runtime"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/booking"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/cache"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/consumer"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/handlers"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/inbox"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/outbox"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/storage"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/tz"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
)

func main() {
	settings, err := loadSettings()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(settings.Service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(settings.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, settings.DatabaseURL, db.Options{MaxConns: int32(settings.DBMaxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if settings.MigrateOnStart {
		if err := storage.Migrate(ctx, pool, logger); err != nil {
			logger.Error("migration failed", "err", err)
			panic(err)
		}
	}

	zones, err := tz.NewNormalizer(256)
	if err != nil {
		panic(err)
	}
	evaluator := availability.NewEvaluator(
		storage.NewConfigRepository(pool),
		storage.NewScheduleRepository(pool),
		zones,
		settings.Policy,
		logger,
	)

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if settings.KafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(settings.KafkaBrokers)})
	}

	var slotSource handlers.Evaluator = evaluator
	var invalidator booking.Invalidator
	var rateLimit httpx.Middleware
	if settings.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     settings.RedisAddr,
			Password: settings.RedisPassword,
			DB:       settings.RedisDB,
		})
		defer rdb.Close()

		slotCache := cache.New(rdb, settings.CacheTTL, "avail")
		slotSource = cache.NewCachedEvaluator(evaluator, slotCache, logger)
		invalidator = slotCache
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(rdb)})

		if settings.RateLimit > 0 {
			rateLimit = httpx.NewRedisRateLimiter(rdb, settings.RateLimit, time.Minute, "ratelimit").Middleware(logger, settings.RateFailOK)
		}

		if settings.KafkaBrokers != "" && len(settings.InvalidationTopics) > 0 {
			changes := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
				Brokers: settings.KafkaBrokers,
				GroupID: settings.KafkaGroupID,
				Topics:  settings.InvalidationTopics,
			}, consumer.InvalidationHandler(slotCache, logger))
			go changes.Run(ctx)
		}
	} else {
		logger.Warn("redis not configured; availability cache disabled")
		if settings.RateLimit > 0 {
			rateLimit = httpx.NewRateLimiter(settings.RateLimit, time.Minute).Middleware()
		}
	}

	outboxRepo := outbox.NewRepository()
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   settings.KafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	bookingService := booking.NewService(storage.NewBookingStore(pool, outboxRepo), evaluator, invalidator, logger)

	availabilityHandler := handlers.NewAvailabilityHandler(slotSource, logger)
	appointmentHandler := handlers.NewAppointmentHandler(bookingService, logger)

	api := http.NewServeMux()
	api.HandleFunc("/api/availability", availabilityHandler.Get)
	api.HandleFunc("/api/appointments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			appointmentHandler.Create(w, r)
			return
		}
		appointmentHandler.List(w, r)
	})
	api.HandleFunc("/api/appointments/cancel", appointmentHandler.Cancel)

	tenantAuth := httpx.TenantAuth{Mode: settings.AuthMode, JWTSecret: settings.JWTSecret}
	if settings.JWKSURL != "" {
		tenantAuth.JWKS = auth.NewJWKSClient(settings.JWKSURL, settings.JWKSCache)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/openapi", serveOpenAPI)
	mux.Handle("/api/", httpx.Chain(api,
		httpx.WithTenant(tenantAuth),
		rateLimit,
		httpx.WithTimeout(settings.RequestTimeout),
		httpx.WithBodyLimit(1<<20),
	))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{AllowedOrigins: settings.CORSOrigin}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "availability")

	lis, err := net.Listen("tcp", ":"+settings.GRPCPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	grpcServer := grpcx.NewServer(grpc.ChainUnaryInterceptor(grpcx.UnaryServerLoggingInterceptor(logger)))
	grpcServer.Serve(ctx, logger, lis, "dockslots.availability")

	srv := &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, logger, srv, 10*time.Second)
}

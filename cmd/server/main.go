// Command server runs the ingestion engine: the HTTP surface, the
// processing workers, the retry scheduler, the reconciliation sweeper, and
// the transition outbox publisher, all in one process.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	analyticsapplier "shopstream/internal/analytics/applier"
	analyticsstore "shopstream/internal/analytics/store"
	authhandler "shopstream/internal/auth/handler"
	authservice "shopstream/internal/auth/service"
	authstore "shopstream/internal/auth/store"
	"shopstream/internal/auth/tokens"
	"shopstream/internal/event/audit"
	eventhandler "shopstream/internal/event/handler"
	"shopstream/internal/event/processor"
	"shopstream/internal/event/scheduler"
	eventstore "shopstream/internal/event/store"
	"shopstream/internal/event/sweeper"
	"shopstream/internal/httpapi"
	"shopstream/internal/platform/config"
	"shopstream/internal/platform/database"
	"shopstream/internal/platform/kafka/producer"
	"shopstream/internal/platform/logger"
	"shopstream/internal/platform/metrics"
	"shopstream/internal/platform/ratelimit"
	platformredis "shopstream/internal/platform/redis"
	tenanthandler "shopstream/internal/tenant/handler"
	tenantservice "shopstream/internal/tenant/service"
	tenantstore "shopstream/internal/tenant/store"
	webhookhandler "shopstream/internal/webhook/handler"
	"shopstream/pkg/secrets"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	cipher, err := secrets.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return err
	}

	// Stores: Postgres when a database is configured, in-memory otherwise.
	var (
		db         *sql.DB
		transactor database.Transactor  = database.NoopTransactor{}
		tenants    tenantstore.Store    = tenantstore.NewInMemory()
		events     eventstore.Store     = eventstore.NewInMemory()
		users      authstore.Store      = authstore.NewInMemory()
		outbox     audit.Store          = audit.NewInMemory()
		projection analyticsstore.Store = analyticsstore.NewInMemory()
	)
	if cfg.DatabaseURL != "" {
		dbCfg := database.DefaultConfig()
		dbCfg.URL = cfg.DatabaseURL
		db, err = database.Open(ctx, dbCfg)
		if err != nil {
			return err
		}
		defer db.Close()

		transactor = database.NewTransactor(db)
		tenants = tenantstore.NewPostgres(db)
		events = eventstore.NewPostgres(db)
		users = authstore.NewPostgres(db)
		outbox = audit.NewPostgres(db)
		projection = analyticsstore.NewPostgres(db)
		log.Info("using postgres stores")
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	registry := tenantservice.New(tenants, cipher, log)

	recorder := audit.NewRecorder(outbox, log)
	proc := processor.New(events, transactor,
		processor.NewAppliers(
			analyticsapplier.NewOrderApplier(projection, log),
			analyticsapplier.NewCustomerApplier(projection, log),
			analyticsapplier.NewProductApplier(projection, log),
			analyticsapplier.NewTenantApplier(registry, log),
		),
		m, log, cfg.MaxRetries, cfg.ProcessingTimeout,
		processor.WithRecorder(recorder),
	)

	worker := processor.NewWorker(proc,
		processor.WithBatchSize(cfg.ClaimBatchSize),
		processor.WithPollInterval(cfg.PollInterval),
		processor.WithLogger(log),
	)

	retries := scheduler.New(events, m, log, cfg.MaxRetries, cfg.RetryBaseDelay, cfg.RetryMaxDelay,
		scheduler.WithInterval(cfg.RetryInterval),
		scheduler.WithBatchSize(cfg.ClaimBatchSize),
		scheduler.WithRecorder(recorder),
	)

	sweep := sweeper.New(events, registry, proc, m, log, sweeper.Config{
		Interval:             cfg.SweepInterval,
		ProcessingTimeout:    cfg.ProcessingTimeout,
		MaxRetries:           cfg.MaxRetries,
		InactivityThreshold:  cfg.InactivityThreshold,
		DeadLetterAlertDepth: int64(cfg.DeadLetterAlertDepth),
		PendingLagAlertDepth: int64(cfg.PendingLagAlertDepth),
	}, sweeper.WithRecorder(recorder))

	// Transition publishing: Kafka when brokers are configured.
	var publisher audit.Publisher = producer.NoopProducer{}
	if cfg.KafkaBrokers != "" {
		pcfg := producer.DefaultConfig()
		pcfg.Brokers = cfg.KafkaBrokers
		prod, err := producer.New(pcfg, log)
		if err != nil {
			return err
		}
		defer func() { _ = prod.Close() }()
		publisher = prod
		log.Info("kafka transition publishing enabled", "topic", cfg.KafkaTopic)
	}
	outboxWorker := audit.NewWorker(outbox, publisher, log,
		audit.WithTopic(cfg.KafkaTopic),
		audit.WithMetrics(m),
	)

	// Rate limiting: shared via Redis when configured.
	var limiter ratelimit.Limiter = ratelimit.NewInMemory(cfg.RateLimitPerMinute, time.Minute)
	if cfg.RedisAddr != "" {
		rdb, err := platformredis.New(ctx, platformredis.Config{Addr: cfg.RedisAddr})
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		limiter = ratelimit.NewRedis(rdb, cfg.RateLimitPerMinute, time.Minute)
		log.Info("redis rate limiting enabled")
	}

	tokenManager := tokens.NewManager([]byte(cfg.JWTSigningKey), "shopstream")
	auth := authservice.New(users, tokenManager, log)

	health := map[string]httpapi.HealthCheck{}
	if db != nil {
		health["database"] = db.PingContext
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Webhooks: webhookhandler.New(registry, proc, limiter, m, log),
		Tenants:  tenanthandler.New(registry, log),
		Events:   eventhandler.New(events, registry, proc, log),
		Auth:     authhandler.New(auth, log),
		Tokens:   tokenManager,
		Health:   httpapi.Health(health),
		Logger:   log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	worker.Start()
	retries.Start()
	sweep.Start()
	outboxWorker.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		for _, stopFn := range []func(context.Context) error{
			worker.Stop, retries.Stop, sweep.Stop, outboxWorker.Stop,
		} {
			if stopErr := stopFn(shutdownCtx); stopErr != nil && err == nil {
				err = stopErr
			}
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

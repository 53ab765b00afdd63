package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	adminhandler "enrollment/internal/admin/handler"
	adminservice "enrollment/internal/admin/service"
	adminstore "enrollment/internal/admin/store"
	"enrollment/internal/documents"
	"enrollment/internal/followup"
	jwttoken "enrollment/internal/jwt_token"
	"enrollment/internal/notify"
	notifymetrics "enrollment/internal/notify/metrics"
	"enrollment/internal/platform/config"
	"enrollment/internal/platform/database"
	"enrollment/internal/platform/health"
	"enrollment/internal/platform/kafka/consumer"
	"enrollment/internal/platform/kafka/producer"
	"enrollment/internal/platform/redis"
	"enrollment/internal/reconcile"
	reconcilehandler "enrollment/internal/reconcile/handler"
	reconcilemetrics "enrollment/internal/reconcile/metrics"
	"enrollment/internal/search"
	searchhandler "enrollment/internal/search/handler"
	searchmetrics "enrollment/internal/search/metrics"
	"enrollment/internal/search/redisindex"
	voterhandler "enrollment/internal/voter/handler"
	votermetrics "enrollment/internal/voter/metrics"
	voterservice "enrollment/internal/voter/service"
	voterstore "enrollment/internal/voter/store"
	"enrollment/pkg/platform/audit"
	auditpostgres "enrollment/pkg/platform/audit/store/postgres"
	"enrollment/pkg/platform/circuit"
	authmw "enrollment/pkg/platform/middleware/auth"
	"enrollment/pkg/platform/middleware/metadata"
	request "enrollment/pkg/platform/middleware/request"
	"enrollment/pkg/platform/outbox"
	outboxmetrics "enrollment/pkg/platform/outbox/metrics"
	outboxpostgres "enrollment/pkg/platform/outbox/store/postgres"
	"enrollment/pkg/platform/outbox/worker"
	"enrollment/pkg/platform/tracer"
)

type application struct {
	router       chi.Router
	db           *database.Pool
	redis        *redis.Client
	outboxStore  *outboxpostgres.Store
	outboxWorker *worker.Worker
	producer     *producer.Producer
	consumer     *consumer.Consumer
	retryWorker  *notify.RetryWorker
	sweeper      *reconcile.Sweeper
	retention    time.Duration
	log          *slog.Logger
}

// build connects the platform clients and assembles every service, worker and route.
func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*application, error) {
	app := &application{log: log, retention: cfg.Outbox.Retention}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	app.db = db

	rdb, err := redis.New(ctx, cfg.Redis, redis.NewPoolMetrics())
	if err != nil {
		app.close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	app.redis = rdb

	tx := db.Tx()
	trc := tracer.NewOTel("enrollment")

	voters := voterstore.NewPostgres(db.DB())
	auditor := audit.NewWriter(auditpostgres.New(db.DB()), log)
	app.outboxStore = outboxpostgres.New(db.DB())

	index := redisindex.New(rdb.Client, redisindex.WithPrefix(cfg.Search.KeyPrefix+":"))
	projector := search.NewProjector(index, voters,
		search.WithTimeout(cfg.Search.IndexTimeout),
		search.WithBatchSize(cfg.Search.BatchSize),
		search.WithBreaker(circuit.New("search-index",
			circuit.WithFailureThreshold(cfg.Search.BreakerFailures),
			circuit.WithSuccessThreshold(cfg.Search.BreakerSuccesses),
		)),
		search.WithMetrics(searchmetrics.New()),
		search.WithTracer(trc),
		search.WithLogger(log),
	)

	voterOpts := []voterservice.Option{
		voterservice.WithProjector(projector),
		voterservice.WithMetrics(votermetrics.New()),
		voterservice.WithLogger(log),
	}
	if docs := newDocumentStore(cfg.Server, log); docs != nil {
		voterOpts = append(voterOpts, voterservice.WithDocuments(docs))
	}
	voterSvc := voterservice.New(voters, tx, auditor, app.outboxStore, voterOpts...)

	notifyMetrics := notifymetrics.New()
	dispatcher := notify.NewDispatcher(voters, tx, auditor, notify.NewChannel(cfg.Notify, log),
		notify.WithTemplate(cfg.Notify.TemplateID),
		notify.WithSendTimeout(cfg.Notify.SendTimeout),
		notify.WithTxBudget(cfg.Database.TxTimeout),
		notify.WithBackoff(cfg.Notify.RetryBackoff, cfg.Notify.RetryMaxBackoff),
		notify.WithMetrics(notifyMetrics),
		notify.WithTracer(trc),
		notify.WithLogger(log),
	)
	app.retryWorker, err = notify.NewRetryWorker(voters, dispatcher,
		notify.WithRetryInterval(cfg.Notify.RetryInterval),
		notify.WithRetryGrace(cfg.Notify.RetryGrace),
		notify.WithRetryBatchSize(cfg.Notify.RetryBatchSize),
		notify.WithRetryMaxAttempts(cfg.Notify.RetryMaxAttempts),
		notify.WithRetryMetrics(notifyMetrics),
		notify.WithRetryLogger(log),
	)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("create notification retry worker: %w", err)
	}

	sweeperOpts := []reconcile.Option{
		reconcile.WithBatchSize(cfg.Reconcile.BatchSize),
		reconcile.WithInterval(cfg.Reconcile.Interval),
		reconcile.WithLocker(reconcile.NewRedisLocker(rdb.Client), "", cfg.Reconcile.LockTTL),
		reconcile.WithMetrics(reconcilemetrics.New()),
		reconcile.WithTracer(trc),
		reconcile.WithLogger(log),
	}
	sweeper := reconcile.NewSweeper(voters, projector, sweeperOpts...)
	if cfg.Reconcile.Enabled {
		app.sweeper = sweeper
	}

	router := followup.NewRouter(projector, dispatcher)
	var sink outbox.Sink = router
	if cfg.Kafka.Enabled() {
		if err := app.connectKafka(cfg.Kafka, router); err != nil {
			app.close()
			return nil, err
		}
		sink = outbox.NewPublisherSink(app.producer, cfg.Kafka.Topic)
	}
	app.outboxWorker = worker.New(app.outboxStore, sink,
		worker.WithBatchSize(cfg.Outbox.BatchSize),
		worker.WithPollInterval(cfg.Outbox.PollInterval),
		worker.WithLease(cfg.Outbox.Lease),
		worker.WithMaxAttempts(cfg.Outbox.MaxAttempts),
		worker.WithMetrics(outboxmetrics.New()),
		worker.WithLogger(log),
	)

	admins := adminservice.New(adminstore.NewPostgres(db.DB()), adminservice.WithLogger(log))
	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TokenTTL)

	healthHandler := health.New(cfg.Environment())
	healthHandler.RegisterCheck(db.Name(), db.Health)
	healthHandler.RegisterAdvisory(rdb.Name(), rdb.Health)
	healthHandler.RegisterAdvisory("search", projector.Healthy)
	if app.producer != nil {
		healthHandler.RegisterAdvisory("kafka", app.producer.Health)
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(metadata.NewMiddleware(&metadata.Config{TrustedProxies: cfg.Server.TrustedProxies}).Handler)
	r.Use(request.Logger(log))
	r.Use(request.LatencyMiddleware(request.NewMetrics()))

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(cfg.Server.RequestTimeout))
		r.Use(request.BodyLimit(cfg.Server.MaxBodyBytes))
		r.Use(request.ContentTypeJSON)

		voterHTTP := voterhandler.New(voterSvc, log)
		voterHTTP.RegisterPublic(r)

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireAdmin(jwttoken.NewJWTServiceAdapter(jwtService), admins, log))
			voterHTTP.Register(r)
			searchhandler.New(projector, log).Register(r)
			reconcilehandler.New(sweeper, log).Register(r)
			adminhandler.New(admins, log).Register(r)
		})
	})

	app.router = r
	return app, nil
}

// newDocumentStore returns the configured object store, or nil when none is set.
func newDocumentStore(cfg config.Server, log *slog.Logger) documents.Store {
	switch cfg.DocumentsStore {
	case "memory":
		log.Warn("using in-memory document store; blobs do not survive a restart", "base_url", cfg.DocumentsURL)
		return documents.NewMemoryStore(cfg.DocumentsURL)
	default:
		log.Info("no document store configured; voter reads carry no document urls")
		return nil
	}
}

// connectKafka creates the producer the outbox publishes through and the consumer that
// feeds published jobs back into the follow-up router.
func (a *application) connectKafka(cfg config.KafkaConfig, router outbox.Sink) error {
	p, err := producer.New(producer.Config{
		Brokers:         cfg.Brokers,
		Acks:            cfg.Acks,
		Retries:         cfg.Retries,
		DeliveryTimeout: cfg.DeliveryTimeout,
	}, a.log)
	if err != nil {
		return fmt.Errorf("create kafka producer: %w", err)
	}
	a.producer = p

	c, err := consumer.New(consumer.Config{
		Brokers:    cfg.Brokers,
		GroupID:    cfg.GroupID,
		Topics:     []string{cfg.Topic},
		MaxRetries: cfg.Retries,
		RetryDelay: time.Second,
	}, followup.ConsumerHandler(router, a.log), a.log)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}
	a.consumer = c
	return nil
}

// maintain refreshes the outbox depth gauge and prunes processed entries.
func (a *application) maintain(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.outboxWorker.UpdateMetrics(ctx); err != nil {
				a.log.WarnContext(ctx, "failed to update outbox metrics", "error", err)
			}
			if a.retention <= 0 {
				continue
			}
			deleted, err := a.outboxStore.DeleteProcessedBefore(ctx, time.Now().Add(-a.retention))
			if err != nil {
				a.log.WarnContext(ctx, "failed to prune outbox", "error", err)
				continue
			}
			if deleted > 0 {
				a.log.InfoContext(ctx, "pruned processed outbox entries", "count", deleted)
			}
		}
	}
}

func (a *application) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("failed to close kafka producer", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("failed to close redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("failed to close postgres", "error", err)
		}
	}
}

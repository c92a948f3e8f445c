package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"activityhub/internal/app/capacity"
	"activityhub/internal/app/engine"
	"activityhub/internal/app/history"
	"activityhub/internal/app/middleware"
	appoutbox "activityhub/internal/app/outbox"
	"activityhub/internal/app/schedule"
	"activityhub/internal/app/uow"
	"activityhub/internal/domain/availability"
	"activityhub/internal/infra/broker/kafka"
	"activityhub/internal/infra/config"
	mongodb "activityhub/internal/infra/db/mongo"
	"activityhub/internal/infra/db/scylla"
	"activityhub/internal/infra/fixtures"
	ginserver "activityhub/internal/infra/http/gin"
	"activityhub/internal/infra/inbox"
	"activityhub/internal/infra/lock/redislock"
	"activityhub/internal/infra/obs"
	"activityhub/internal/infra/outbox"
	"activityhub/internal/infra/projection"
	"activityhub/internal/infra/storage/memory"
)

type application struct {
	cfg     config.Config
	logger  *slog.Logger
	engine  *engine.Engine
	metrics *obs.Metrics
	health  obs.HealthHandlers

	handlers ginserver.Handlers

	worker    *outbox.Worker
	consumer  *kafka.Consumer
	topics    []string
	scheduler *schedule.Scheduler

	closers []func()
	wg      sync.WaitGroup
}

// storage is the persistence selected by STORAGE.
type storage struct {
	factory     uow.UoWFactory
	counters    availability.CounterStore
	idempotency middleware.IdempotencyStore
	db          *mongodb.Client
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		cfg:     cfg,
		logger:  logger,
		metrics: obs.NewMetrics(),
		health:  obs.HealthHandlers{Checks: map[string]obs.Check{}, Timeout: 2 * time.Second},
	}
	ok := false
	defer func() {
		if !ok {
			app.close()
		}
	}()

	store, err := app.openStorage(ctx)
	if err != nil {
		return nil, err
	}
	locker, idemLocker, err := app.openLockers()
	if err != nil {
		return nil, err
	}
	historyStore, err := app.openHistory(ctx)
	if err != nil {
		return nil, err
	}
	projector := &history.Projector{Store: historyStore, Logger: logger}

	publisher, err := app.openMessaging(ctx, store, projector)
	if err != nil {
		return nil, err
	}

	var box appoutbox.Outbox
	if store.db != nil {
		queue, err := outbox.NewStore(ctx, store.db.DB)
		if err != nil {
			return nil, fmt.Errorf("outbox: %w", err)
		}
		box = queue
		app.worker = &outbox.Worker{
			Queue:     queue,
			Publisher: publisher,
			Interval:  cfg.OutboxPollInterval,
			Backoff:   cfg.RetryBackoff,
			Logger:    logger,
		}
	} else {
		mem := memory.NewOutbox(logger)
		mem.Subscribe(publisher.Publish)
		box = mem
	}

	app.engine = engine.New(engine.Deps{
		UoWFactory:        store.factory,
		Counters:          store.counters,
		Locker:            locker,
		IdempotencyLocker: idemLocker,
		Outbox:            box,
		Idempotency:       store.idempotency,
		History:           historyStore,
		Observer:          app.metrics,
		Logger:            logger,
		Location:          cfg.CalendarTZ,
		HoldTTL:           cfg.HoldTTL,
	})

	app.scheduler, err = schedule.New(app.engine.Commands, app.engine, schedule.Config{
		HoldSweepInterval:    cfg.HoldSweepInterval,
		ReconcileInterval:    cfg.ReconcileInterval,
		AutoCompleteInterval: cfg.AutoCompleteInterval,
		Logger:               logger,
	})
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	app.handlers = ginserver.Handlers{
		Catalog:      ginserver.CatalogHandler{Commands: app.engine.Commands, Queries: app.engine.Queries, Logger: logger},
		Availability: ginserver.AvailabilityHandler{Commands: app.engine.Commands, Queries: app.engine.Queries, Logger: logger},
		Booking:      ginserver.BookingHandler{Commands: app.engine.Commands, Queries: app.engine.Queries, Logger: logger},
		Limiter:      ginserver.NewClientLimiter(cfg.BookingRateLimit, cfg.BookingRateBurst),
		Metrics:      app.metrics.Handler(),
	}
	ok = true
	return app, nil
}

func (a *application) openStorage(ctx context.Context) (storage, error) {
	if a.cfg.Storage != config.StorageMongo {
		mem := memory.NewStore()
		idem := memory.NewIdempotencyStore()
		if a.cfg.IdempotencyTTL > 0 {
			idem.TTL = a.cfg.IdempotencyTTL
		}
		return storage{
			factory:     memory.Factory{Store: mem},
			counters:    memory.CounterStore{Store: mem},
			idempotency: idem,
		}, nil
	}
	client, err := mongodb.New(a.cfg.MongoURI, a.cfg.MongoDB)
	if err != nil {
		return storage{}, fmt.Errorf("mongo connect: %w", err)
	}
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(ctx)
	})
	if err := client.EnsureIndexes(ctx); err != nil {
		return storage{}, err
	}
	idem, err := mongodb.NewIdempotencyStore(ctx, client.DB, a.cfg.IdempotencyTTL)
	if err != nil {
		return storage{}, fmt.Errorf("idempotency store: %w", err)
	}
	a.health.Checks["mongo"] = client.Ping
	return storage{
		factory:     mongodb.Factory{DB: client.DB},
		counters:    mongodb.NewCounterStore(client.DB),
		idempotency: idem,
		db:          client,
	}, nil
}

// openLockers returns the window locker and the idempotency locker.
func (a *application) openLockers() (capacity.Locker, capacity.Locker, error) {
	if a.cfg.RedisURL == "" {
		return capacity.NewLocalLocker(a.cfg.ReserveLockTimeout), capacity.NewLocalLocker(a.cfg.ReserveLockTimeout), nil
	}
	locker, err := redislock.NewFromURL(a.cfg.RedisURL, a.cfg.ReserveLockTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = locker.Close() })
	a.health.Checks["redis"] = locker.Ping
	return locker, locker.Scoped(redislock.IdempotencyPrefix, a.cfg.IdempotencyLockTTL), nil
}

func (a *application) openHistory(ctx context.Context) (history.Store, error) {
	if !a.cfg.ScyllaEnabled() {
		return memory.NewHistoryStore(), nil
	}
	session, err := scylla.NewSession(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("scylla: %w", err)
	}
	a.closers = append(a.closers, session.Close)
	store := scylla.NewHistoryStore(session)
	a.health.Checks["scylla"] = store.Ping
	return store, nil
}

// openMessaging returns where committed events go: Kafka when brokers are
// configured, otherwise straight into the history projection.
func (a *application) openMessaging(ctx context.Context, store storage, projector *history.Projector) (outbox.Publisher, error) {
	if !a.cfg.KafkaEnabled() {
		return outbox.PublisherFunc(projector.Project), nil
	}
	producer, err := kafka.NewProducer(a.cfg.KafkaBrokers, kafka.NewConfig("activityhub"))
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	a.closers = append(a.closers, func() { _ = producer.Close() })

	handler := &projection.HistoryHandler{Projector: projector, Logger: a.logger}
	if store.db != nil {
		seen, err := inbox.NewStore(ctx, store.db.DB, a.cfg.KafkaGroupID)
		if err != nil {
			return nil, fmt.Errorf("inbox: %w", err)
		}
		handler.Inbox = seen
	}
	consumer, err := kafka.NewConsumer(a.cfg.KafkaBrokers, a.cfg.KafkaGroupID, kafka.NewConfig("activityhub-history"), handler, a.logger)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	a.closers = append(a.closers, func() { _ = consumer.Close() })
	a.consumer = consumer
	a.topics = projection.HistoryTopics(a.cfg.KafkaTopicPrefix)
	return outbox.BrokerPublisher{Producer: producer, TopicPrefix: a.cfg.KafkaTopicPrefix}, nil
}

func (a *application) loadFixtures(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	f, err := fixtures.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			a.logger.Info("fixtures file not found, skipping", "path", path)
			return nil
		}
		return err
	}
	_, err = fixtures.Apply(ctx, a.engine.Commands, f, a.logger)
	return err
}

// startBackground launches the outbox relay, the history consumer and the
// scheduled jobs; all stop when ctx ends.
func (a *application) startBackground(ctx context.Context) {
	if a.worker != nil {
		a.goRun(ctx, "outbox worker", a.worker.Run)
	}
	if a.consumer != nil {
		a.goRun(ctx, "history consumer", func(ctx context.Context) error {
			return a.consumer.Run(ctx, a.topics)
		})
	}
	a.scheduler.Start(ctx)
	a.closers = append(a.closers, func() {
		if err := a.scheduler.Shutdown(); err != nil {
			a.logger.Warn("scheduler shutdown failed", "error", err)
		}
	})
}

func (a *application) goRun(ctx context.Context, name string, run func(context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("background task stopped", "task", name, "error", err)
		}
	}()
}

func (a *application) wait() {
	a.wg.Wait()
}

// close releases resources in reverse order of acquisition.
func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

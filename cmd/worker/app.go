package main

import (
	"context"
	"fmt"

	"github.com/satriyop/enteraksi/config"
	"github.com/satriyop/enteraksi/internal/application/eventhandler"
	"github.com/satriyop/enteraksi/internal/application/service"
	"github.com/satriyop/enteraksi/internal/domain/enrollment"
	"github.com/satriyop/enteraksi/internal/domain/prerequisite"
	"github.com/satriyop/enteraksi/internal/domain/progress"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/uow"
	"github.com/satriyop/enteraksi/internal/infrastructure/messaging"
	"github.com/satriyop/enteraksi/internal/infrastructure/persistence/memory"
	"github.com/satriyop/enteraksi/internal/infrastructure/persistence/postgres"
	"github.com/satriyop/enteraksi/internal/infrastructure/persistence/redis"
	"github.com/satriyop/enteraksi/internal/infrastructure/scheduler"
	"github.com/satriyop/enteraksi/internal/infrastructure/scheduler/jobs"
	"github.com/satriyop/enteraksi/pkg/logger"
	"github.com/satriyop/enteraksi/pkg/timeutil"
	"github.com/satriyop/enteraksi/pkg/tracing"
)

// bus is what the worker needs from either event bus.
type bus interface {
	shared.EventBus
	DeadLetters() *messaging.DeadLetterQueue
	Close() error
}

// app is the fully wired worker.
type app struct {
	cfg *config.Config
	log *logger.Logger

	units    uow.Factory
	payments prerequisite.PaymentVerifier
	cache    *redis.Cache
	events   bus
	redisBus *messaging.RedisEventBus

	tracking *service.ProgressTracking
	paths    *service.PathProgress
	sched    *scheduler.Scheduler

	// closers run in reverse order on Close.
	closers []func()
}

// loadConfig reads the environment and builds the logger, honoring the
// --log-level flag.
func loadConfig(logLevel string) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Observability.LogLevel = logLevel
	}

	log := logger.New(logger.Options{
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    cfg.Observability.LogFormat,
		AddCaller: true,
	}).With("service", cfg.App.Name, "version", cfg.App.Version)
	return cfg, log, nil
}

// newApp connects storage, Redis and the event bus, then wires services,
// listeners and jobs. The caller must Close the app.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.Observability.TracingEnabled,
		ServiceName: cfg.App.Name,
		Version:     cfg.App.Version,
		Environment: string(cfg.App.Environment),
		Endpoint:    cfg.Observability.OTLPEndpoint,
		Insecure:    cfg.Observability.OTLPInsecure,
		SampleRatio: cfg.Observability.TraceSampleRatio,
	}, log)
	if err != nil {
		return nil, err
	}
	a.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn("tracing shutdown failed", logger.KeyError, err)
		}
	})

	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}
	if err := a.openRedis(); err != nil {
		return nil, err
	}
	if err := a.openBus(); err != nil {
		return nil, err
	}
	if err := a.wireServices(); err != nil {
		return nil, err
	}
	if err := a.registerJobs(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) onClose(fn func()) { a.closers = append(a.closers, fn) }

// Close releases everything newApp opened.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.log.Sync()
}

func (a *app) openStorage(ctx context.Context) error {
	if a.cfg.Database.Storage == config.StorageMemory {
		a.log.Warn("using in-memory storage; data is lost on exit")
		s := memory.NewStore()
		a.units, a.payments = s, s
		return nil
	}

	conn, err := connectPostgres(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.onClose(func() {
		st := conn.Stats()
		a.log.Info("closing postgres pool",
			"total_conns", st.TotalConns,
			"acquired_conns", st.AcquiredConns,
			"acquire_count", st.AcquireCount,
		)
		conn.Close()
	})

	if a.cfg.Database.AutoMigrate {
		migrator := postgres.NewMigrator(conn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		status, err := migrator.Status(ctx)
		if err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		a.log.Info("database schema is up to date", "migrations", len(status))
	}

	a.units = postgres.NewUnitOfWorkFactory(conn)
	a.payments = postgres.NewPaymentVerifier(conn)
	return nil
}

func connectPostgres(ctx context.Context, cfg *config.Config) (*postgres.Connection, error) {
	pc := postgres.DefaultConfig()
	pc.URL = cfg.Database.URL
	pc.Host = cfg.Database.Host
	pc.Port = cfg.Database.Port
	pc.Database = cfg.Database.Name
	pc.User = cfg.Database.User
	pc.Password = cfg.Database.Password
	pc.SSLMode = cfg.Database.SSLMode
	pc.MaxConns = int32(cfg.Database.MaxConns)
	pc.MinConns = int32(cfg.Database.MinConns)
	pc.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pc.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	conn, err := postgres.NewConnection(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return conn, nil
}

func (a *app) openRedis() error {
	if !a.cfg.Redis.Enabled {
		return nil
	}
	rc := redis.DefaultConfig()
	rc.Host = a.cfg.Redis.Host
	rc.Port = a.cfg.Redis.Port
	rc.Password = a.cfg.Redis.Password
	rc.DB = a.cfg.Redis.DB
	rc.PoolSize = a.cfg.Redis.PoolSize
	rc.DialTimeout = a.cfg.Redis.DialTimeout
	rc.ReadTimeout = a.cfg.Redis.ReadTimeout
	rc.WriteTimeout = a.cfg.Redis.WriteTimeout

	cache, err := redis.NewCache(rc)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	a.cache = cache
	a.onClose(func() { _ = cache.Close() })
	a.log.Info("redis connected", "addr", rc.Addr())
	return nil
}

func (a *app) openBus() error {
	busCfg := messaging.InMemoryEventBusConfig{
		AsyncMode:      a.cfg.EventBus.Async,
		WorkerPoolSize: a.cfg.EventBus.Workers,
		DeadLetterSize: a.cfg.EventBus.DeadLetterSize,
		Logger:         a.log,
		EnableMetrics:  true,
	}

	if a.cfg.EventBus.Transport == config.BusRedis {
		rb, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Transport:      redis.NewPubSub(a.cache),
			LocalBusConfig: busCfg,
			Logger:         a.log,
		})
		if err != nil {
			return fmt.Errorf("create redis event bus: %w", err)
		}
		a.redisBus, a.events = rb, rb
		a.log.Info("redis event bus ready", "instance_id", rb.InstanceID())
	} else {
		a.events = messaging.NewInMemoryEventBus(busCfg)
	}

	a.onClose(func() {
		if err := a.events.Close(); err != nil {
			a.log.Warn("event bus close failed", logger.KeyError, err)
		}
	})
	return nil
}

func (a *app) wireServices() error {
	clock := timeutil.SystemClock{}
	ids := shared.UUIDGenerator{}

	calculator, err := progress.DefaultRegistry().Get(a.cfg.Progress.Calculator)
	if err != nil {
		return err
	}
	thresholds := enrollment.Thresholds{
		MediaPercent: a.cfg.Progress.MediaThreshold,
		PagePercent:  a.cfg.Progress.PageThreshold,
	}
	evaluators := prerequisite.DefaultRegistry(
		a.cfg.LearningPath.DefaultEvaluator,
		prerequisite.DeploymentMode(a.cfg.LearningPath.DeploymentMode),
		a.payments,
	)

	a.tracking = service.NewProgressTracking(calculator, thresholds, clock, ids, a.log)
	a.paths = service.NewPathProgress(evaluators, clock, ids, a.log)

	if err := eventhandler.NewPathListeners(a.units, a.events, a.paths, a.log).Register(a.events); err != nil {
		return fmt.Errorf("register path listeners: %w", err)
	}
	if a.cache != nil {
		pathCache := redis.NewPathProgressCache(a.cache, a.cfg.Redis.PathProgressTTL)
		if err := eventhandler.NewPathCacheInvalidator(pathCache, a.log).Register(a.events); err != nil {
			return fmt.Errorf("register cache invalidator: %w", err)
		}
	}
	return nil
}

// registerJobs always registers both jobs so they can be run by hand;
// SCHEDULER_ENABLED only decides whether the scheduler loop starts.
func (a *app) registerJobs() error {
	clock := timeutil.SystemClock{}
	a.sched = scheduler.New(scheduler.Config{Logger: a.log, Clock: clock})

	reconcileAt, err := scheduler.ParseSchedule(a.cfg.Scheduler.ReconcileSchedule)
	if err != nil {
		return fmt.Errorf("SCHEDULER_RECONCILE: %w", err)
	}
	redeliverAt, err := scheduler.ParseSchedule(a.cfg.Scheduler.RedeliverSchedule)
	if err != nil {
		return fmt.Errorf("SCHEDULER_REDELIVER: %w", err)
	}

	reconcile := jobs.NewReconcileProgressJob(a.units, a.events, a.tracking, a.paths, clock, a.log, jobs.ReconcileConfig{
		BatchSize: a.cfg.Scheduler.ReconcileBatchSize,
		Timeout:   a.cfg.Scheduler.JobTimeout,
	})
	if err := a.sched.Register(reconcile, reconcileAt); err != nil {
		return err
	}
	return a.sched.Register(jobs.NewRedeliverDeadLettersJob(a.events.DeadLetters(), clock, a.log), redeliverAt)
}

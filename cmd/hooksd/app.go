package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-hooks/adapters/gologger"
	"github.com/goliatone/go-hooks/adapters/redislock"
	"github.com/goliatone/go-hooks/core"
	"github.com/goliatone/go-hooks/httpapi"
	"github.com/goliatone/go-hooks/jobs"
	hookmigrations "github.com/goliatone/go-hooks/migrations"
	"github.com/goliatone/go-hooks/publisher"
	sqlstore "github.com/goliatone/go-hooks/store/sql"
	"github.com/goliatone/go-hooks/streams"
	"github.com/goliatone/go-hooks/subscriber"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/redis/rueidis"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	publisherPrefix  = "/publisher"
	subscriberPrefix = "/subscriber"
)

// persistenceConfig adapts core.PersistenceConfig to go-persistence-bun.
type persistenceConfig struct {
	cfg         core.PersistenceConfig
	serviceName string
}

func (c persistenceConfig) GetDebug() bool {
	return c.cfg.Debug
}

func (c persistenceConfig) GetDriver() string {
	return c.cfg.Driver
}

func (c persistenceConfig) GetServer() string {
	return c.cfg.DSN
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return c.cfg.PingTimeout
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return c.serviceName
}

type app struct {
	cfg      core.Config
	provider core.LoggerProvider
	observer core.Observer

	client     *persistence.Client
	redis      rueidis.Client
	publisher  *publisher.Publisher
	subscriber *subscriber.Subscriber
	queue      *jobs.MemoryQueue
	runner     *jobs.Runner
	scheduler  *jobs.Scheduler
	server     *http.Server
}

func newApp(ctx context.Context, cfg core.Config, provider core.LoggerProvider) (*app, error) {
	a := &app{
		cfg:      cfg,
		provider: provider,
		observer: core.NewObserver("hooksd", provider, nil, nil),
	}
	store, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	lock, err := a.lockAcquirer()
	if err != nil {
		a.close()
		return nil, err
	}
	pubOpts := []publisher.Option{
		publisher.WithConfig(cfg.Publisher),
		publisher.WithVendor(cfg.Vendor),
		publisher.WithLoggerProvider(provider),
	}
	if lock != nil {
		pubOpts = append(pubOpts, publisher.WithLockAcquirer(lock))
	}
	a.publisher, err = publisher.New(store, pubOpts...)
	if err != nil {
		a.close()
		return nil, err
	}
	a.subscriber, err = subscriber.New(store,
		subscriber.WithConfig(cfg.Subscriber),
		subscriber.WithVendor(cfg.Vendor),
		subscriber.WithLoggerProvider(provider),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	a.queue = jobs.NewMemoryQueue()
	a.runner, err = jobs.NewRunner(a.publisher, a.queue,
		jobs.WithLoggerProvider(provider),
		jobs.WithWorkerHook(gologger.NewJobLogHook("hooks.jobs", provider, nil)),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	a.scheduler = &jobs.Scheduler{
		Enqueuer: a.queue,
		Interval: cfg.Server.DrainInterval,
		Observer: core.NewObserver("hooks.jobs.scheduler", provider, nil, nil),
	}

	a.server = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

func (a *app) handler() http.Handler {
	pubRouter := httpapi.NewPublisherRouter(a.publisher, httpapi.Options{
		BasePath:       publisherPrefix,
		LoggerProvider: a.provider,
	})
	subRouter := httpapi.NewSubscriberRouter(a.subscriber, httpapi.Options{
		BasePath:       subscriberPrefix,
		LoggerProvider: a.provider,
	})
	mux := http.NewServeMux()
	mux.Handle(publisherPrefix+"/", http.StripPrefix(publisherPrefix, pubRouter))
	mux.Handle(subscriberPrefix+"/", http.StripPrefix(subscriberPrefix, subRouter))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (a *app) openStore(ctx context.Context) (streams.Store, error) {
	driver := strings.TrimSpace(a.cfg.Persistence.Driver)
	if driver == "memory" {
		return streams.NewMemoryStore(), nil
	}
	dialect, err := hookmigrations.DialectForDriver(driver)
	if err != nil {
		return nil, fmt.Errorf("hooksd: %w", err)
	}
	sqlDB, err := sql.Open(driver, a.cfg.Persistence.DSN)
	if err != nil {
		return nil, fmt.Errorf("hooksd: open database: %w", err)
	}
	client, err := newPersistenceClient(persistenceConfig{cfg: a.cfg.Persistence, serviceName: a.cfg.ServiceName}, sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("hooksd: persistence client: %w", err)
	}
	a.client = client

	versions, err := hookmigrations.Register(ctx, dialect, func(_ context.Context, _ hookmigrations.Dialect, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.observer.Log(ctx, "info", "migrations registered", map[string]any{
		"dialect":  string(dialect),
		"versions": versions,
	})
	if err := client.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("hooksd: migrate: %w", err)
	}

	factory := sqlstore.NewRepositoryFactory()
	if a.cfg.Cache.TTL > 0 {
		cacheCfg := repositorycache.DefaultConfig()
		cacheCfg.TTL = a.cfg.Cache.TTL
		cacheService, err := repositorycache.NewCacheService(cacheCfg)
		if err != nil {
			return nil, fmt.Errorf("hooksd: cache service: %w", err)
		}
		factory.WithCache(cacheService)
		if strings.TrimSpace(a.cfg.Redis.Addr) != "" {
			// Other processes append registry snapshots this one never sees.
			factory.WithCachedHeadPrefixes()
		}
	}
	return factory.BuildStores(client)
}

func newPersistenceClient(cfg persistenceConfig, sqlDB *sql.DB) (*persistence.Client, error) {
	if cfg.cfg.Driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
		return persistence.New(cfg, sqlDB, sqlitedialect.New())
	}
	return persistence.New(cfg, sqlDB, pgdialect.New())
}

// lockAcquirer returns a redis-backed lock when redis is configured, so
// several hooksd processes can share one store.
func (a *app) lockAcquirer() (core.LockAcquirer, error) {
	addr := strings.TrimSpace(a.cfg.Redis.Addr)
	if addr == "" {
		return nil, nil
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("hooksd: redis client: %w", err)
	}
	a.redis = client
	var logger core.Logger
	if a.provider != nil {
		logger = a.provider.GetLogger("hooks.redislock")
	}
	locker, err := redislock.NewFromClient(client, redislock.Config{TTL: a.cfg.Redis.LockTTL}, logger)
	if err != nil {
		return nil, err
	}
	return locker.AcquireFunc(), nil
}

// run serves HTTP and drains deliveries until ctx is cancelled.
func (a *app) run(ctx context.Context) error {
	errCh := make(chan error, 3)
	go func() { errCh <- a.runner.Run(ctx) }()
	if a.scheduler.Interval > 0 {
		go func() { errCh <- a.scheduler.Run(ctx) }()
	}
	go func() {
		a.observer.Log(ctx, "info", "hooksd listening", map[string]any{"addr": a.cfg.Server.Addr})
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.client != nil {
		_ = a.client.Close()
	}
}

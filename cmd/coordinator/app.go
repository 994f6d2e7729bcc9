package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/designsync/internal/activity"
	"github.com/dreamware/designsync/internal/auth"
	"github.com/dreamware/designsync/internal/broadcast"
	"github.com/dreamware/designsync/internal/config"
	"github.com/dreamware/designsync/internal/coordinator"
	"github.com/dreamware/designsync/internal/lock"
	"github.com/dreamware/designsync/internal/metrics"
	"github.com/dreamware/designsync/internal/presence"
	"github.com/dreamware/designsync/internal/relay"
	"github.com/dreamware/designsync/internal/sqlitedb"
	"github.com/dreamware/designsync/internal/storage"
	"github.com/dreamware/designsync/internal/upstream"
)

// app holds every long-lived component of a running relay.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	store    storage.Store
	janitor  *storage.MemoryStore // nil unless the memory backend is used
	pools    map[string]*sqlitedb.Pool
	registry *coordinator.RoomRegistry
	presence *presence.Manager
	activity *activity.Logger
	monitor  *coordinator.HealthMonitor
	relay    *relay.Service
}

// newApp wires the components described by cfg. On error everything opened
// so far is closed again.
func newApp(cfg *config.Config, logger *zap.Logger) (a *app, err error) {
	a = &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		pools:   make(map[string]*sqlitedb.Pool),
	}
	defer func() {
		if err != nil {
			a.close()
			a = nil
		}
	}()

	switch cfg.Store.Backend {
	case "redis":
		a.store = storage.NewRedisStore(storage.RedisConfig{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
	default:
		a.janitor = storage.NewMemoryStore()
		a.store = a.janitor
	}

	if err := a.openPools(); err != nil {
		return a, err
	}

	var presenceStore presence.Store = presence.NewMemoryStore()
	if cfg.Presence.Backend == "sqlite" {
		presenceStore = presence.NewSQLiteStore(a.pools[cfg.Presence.SQLitePath])
	}
	a.presence = presence.NewManager(presence.Config{
		Store:     presenceStore,
		Logger:    logger.Named("presence"),
		Freshness: cfg.Presence.FreshnessWindow,
		Timeout:   cfg.Store.Timeout,
	})

	authorizer, err := a.authorizer()
	if err != nil {
		return a, err
	}
	a.registry, err = coordinator.NewRoomRegistry(coordinator.RegistryConfig{
		Authorizer:       authorizer,
		Logger:           logger.Named("rooms"),
		NumShards:        cfg.Rooms.Shards,
		AuthorizeTimeout: cfg.Rooms.AuthorizeTimeout,
	})
	if err != nil {
		return a, err
	}

	a.activity = activity.NewLogger(activity.Config{
		Sink:      a.activitySink(),
		Logger:    logger.Named("activity"),
		Metrics:   a.metrics,
		QueueSize: cfg.Activity.QueueSize,
		Workers:   cfg.Activity.Workers,
	})

	authn, err := auth.NewAuthenticator([]byte(cfg.Auth.JWTSecret), nil)
	if err != nil {
		return a, err
	}

	a.relay, err = relay.NewService(relay.Deps{
		Authenticator: authn,
		Registry:      a.registry,
		Presence:      a.presence,
		Locks: lock.NewCoordinator(lock.Config{
			Store:   a.store,
			Logger:  logger.Named("locks"),
			Lease:   cfg.Locks.Lease,
			Timeout: cfg.Store.Timeout,
		}),
		Router:   broadcast.NewRouter(a.registry, cfg.Connection.OutboxSize, a.metrics, logger.Named("broadcast")),
		Cursors:  broadcast.NewCursorCache(a.store, cfg.Cursors.TTL, cfg.Store.Timeout),
		Activity: a.activity,
		Metrics:  a.metrics,
		Logger:   logger.Named("relay"),
	}, relay.Options{
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		WriteWait:         cfg.Connection.WriteWait,
		PongWait:          cfg.Connection.PongWait,
		PingPeriod:        cfg.Connection.PingPeriod,
		MaxMessageBytes:   cfg.Connection.MaxMessageBytes,
		MessagesPerSecond: cfg.Connection.MessagesPerSecond,
		Burst:             cfg.Connection.Burst,
	})
	if err != nil {
		return a, err
	}

	a.monitor = coordinator.NewHealthMonitor(cfg.Health.Interval, cfg.Health.MaxFailures, logger.Named("health"))
	a.monitor.AddProbe(coordinator.Probe{Name: "ephemeral-store", Check: a.store.Ping})
	a.monitor.AddProbe(coordinator.Probe{Name: "presence-store", Check: a.presence.Ping})
	for path, pool := range a.pools {
		a.monitor.AddProbe(coordinator.Probe{Name: "sqlite:" + path, Check: pool.Ping})
	}
	a.monitor.SetOnUnhealthy(func(name string) {
		logger.Error("dependency unhealthy", zap.String("dependency", name))
	})

	return a, nil
}

// openPools opens one SQLite pool per distinct file, with the schemas of
// every component stored in it.
func (a *app) openPools() error {
	schemas := make(map[string]string)
	if a.cfg.Presence.Backend == "sqlite" {
		schemas[a.cfg.Presence.SQLitePath] += presence.Schema
	}
	for _, sink := range a.cfg.Activity.Sinks() {
		if sink == "sqlite" {
			schemas[a.cfg.Activity.SQLitePath] += activity.Schema
		}
	}

	for path, schema := range schemas {
		pool, err := sqlitedb.Open(sqlitedb.Config{
			Path:   path,
			Logger: a.logger.Named("sqlite"),
			Schema: schema,
		})
		if err != nil {
			return err
		}
		a.pools[path] = pool
	}
	return nil
}

func (a *app) authorizer() (coordinator.Authorizer, error) {
	var next coordinator.Authorizer
	switch a.cfg.Rooms.Authorizer {
	case "http":
		httpAuth, err := upstream.NewHTTPAuthorizer(a.cfg.Rooms.AuthorizerURL)
		if err != nil {
			return nil, err
		}
		next = httpAuth
	default:
		if len(a.cfg.Rooms.Allow) == 0 {
			a.logger.Warn("rooms.allow is empty, every join will be denied")
		}
		next = coordinator.NewStaticAuthorizer(a.cfg.Rooms.Allow)
	}

	if a.cfg.Rooms.CacheTTL <= 0 {
		return next, nil
	}
	return coordinator.NewCachingAuthorizer(next, a.cfg.Rooms.CacheSize, a.cfg.Rooms.CacheTTL), nil
}

func (a *app) activitySink() activity.Sink {
	var sinks activity.MultiSink
	for _, name := range a.cfg.Activity.Sinks() {
		switch name {
		case "sqlite":
			sinks = append(sinks, activity.NewSQLiteSink(a.pools[a.cfg.Activity.SQLitePath]))
		case "http":
			sinks = append(sinks, activity.HTTPSink{URL: a.cfg.Activity.WebhookURL})
		}
	}
	switch len(sinks) {
	case 0:
		return activity.NopSink{}
	case 1:
		return sinks[0]
	default:
		return sinks
	}
}

// run serves until ctx is canceled or a component fails, then shuts down
// in order: stop accepting, disconnect sessions, drain the activity queue.
func (a *app) run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("coordinator listening", zap.String("addr", a.cfg.Server.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.monitor.Start(gctx)
		return nil
	})
	if a.janitor != nil {
		g.Go(func() error {
			a.janitor.RunJanitor(gctx, a.cfg.Store.JanitorInterval)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		return multierr.Combine(
			httpSrv.Shutdown(shutdownCtx),
			a.relay.Shutdown(shutdownCtx),
			a.activity.Close(shutdownCtx),
		)
	})

	return g.Wait()
}

// close releases storage handles. It tolerates a partially built app.
func (a *app) close() error {
	var err error
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.activity != nil {
		err = multierr.Append(err, a.activity.Close(context.Background()))
	}
	if a.store != nil {
		err = multierr.Append(err, a.store.Close())
	}
	for _, pool := range a.pools {
		err = multierr.Append(err, pool.Close())
	}
	return err
}

// serve runs the relay until SIGINT or SIGTERM.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	start := time.Now()
	runErr := a.run(ctx)
	closeErr := a.close()
	logger.Info("coordinator stopped", zap.Duration("uptime", time.Since(start)))
	return multierr.Combine(runErr, closeErr)
}

package daemon

import (
	"context"
	"errors"
	"net/http"

	"github.com/matheus3301/wpplus/internal/api"
	"github.com/matheus3301/wpplus/internal/bus"
	"github.com/matheus3301/wpplus/internal/config"
	"github.com/matheus3301/wpplus/internal/dispatch"
	"github.com/matheus3301/wpplus/internal/lifecycle"
	"github.com/matheus3301/wpplus/internal/lock"
	"github.com/matheus3301/wpplus/internal/logging"
	"github.com/matheus3301/wpplus/internal/mirror"
	"github.com/matheus3301/wpplus/internal/qr"
	"github.com/matheus3301/wpplus/internal/scheduler"
	"github.com/matheus3301/wpplus/internal/session"
	"github.com/matheus3301/wpplus/internal/status"
	"github.com/matheus3301/wpplus/internal/store"
	"github.com/matheus3301/wpplus/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	SessionName string
	Config      *config.Config
	// Factory overrides the whatsmeow client factory; nil uses whatsmeow.
	Factory wa.Factory
}

func (p Params) config() *config.Config {
	if p.Config == nil {
		return config.Default()
	}
	return p.Config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStatusStore,
			provideLock,
			provideStore,
			provideFactory,
			provideManager,
			provideMirror,
			provideDispatcher,
			provideScheduler,
			provideHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStatusStore(b *bus.Bus) *status.Store {
	return status.NewStore(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName), p.config().Listen)
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore takes the lock as a parameter so the database is never
// opened by a second process.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideFactory(p Params, logger *zap.Logger) wa.Factory {
	if p.Factory != nil {
		return p.Factory
	}
	return wa.NewFactory(wa.Options{
		SessionDBPath: session.SessionDBPath(p.SessionName),
		DeviceName:    p.config().DeviceName,
	}, logger)
}

func provideManager(p Params, st *status.Store, factory wa.Factory, b *bus.Bus, logger *zap.Logger) *lifecycle.Manager {
	cfg := p.config()
	return lifecycle.NewManager(st, factory, qr.DataURL, b, logger.Named("lifecycle"), lifecycle.Options{
		RetryPolicy:  cfg.RetryPolicy,
		RetryBackoff: cfg.RetryBackoff.Duration,
	})
}

func provideMirror(p Params, db *store.DB, b *bus.Bus, m *lifecycle.Manager, logger *zap.Logger) *mirror.Engine {
	return mirror.NewEngine(db, b, m, session.MediaDir(p.SessionName), logger.Named("mirror"))
}

func provideDispatcher(p Params, st *status.Store, m *lifecycle.Manager, engine *mirror.Engine, logger *zap.Logger) *dispatch.Dispatcher {
	return dispatch.New(st, m, logger.Named("dispatch"),
		dispatch.WithRecorder(engine),
		dispatch.WithTimeout(p.config().SendTimeout.Duration))
}

func provideScheduler(p Params, db *store.DB, d *dispatch.Dispatcher, b *bus.Bus, logger *zap.Logger) *scheduler.Scheduler {
	return scheduler.New(db, d, b, logger.Named("scheduler"), scheduler.Options{
		Interval: p.config().TickInterval.Duration,
	})
}

func provideHandler(p Params, m *lifecycle.Manager, d *dispatch.Dispatcher, s *scheduler.Scheduler, db *store.DB, engine *mirror.Engine, logger *zap.Logger) *api.Handler {
	return api.NewHandler(api.Deps{
		SessionName: p.SessionName,
		Session:     m,
		Sender:      d,
		Scheduler:   s,
		DB:          db,
		Mirror:      engine,
		Contacts:    m,
		MediaDir:    session.MediaDir(p.SessionName),
		Logger:      logger.Named("api"),
	})
}

func registerLifecycle(
	lc fx.Lifecycle,
	p Params,
	srv *Server,
	lk *lock.Lock,
	db *store.DB,
	b *bus.Bus,
	m *lifecycle.Manager,
	engine *mirror.Engine,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Rows a crashed process left mid-dispatch are failed, never re-sent.
			if err := sched.Recover(ctx); err != nil {
				return err
			}

			// Start mirror engine (subscribes to wa.* bus events).
			engine.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP server error", zap.Error(err))
				}
			}()

			if err := sched.Start(); err != nil {
				return err
			}

			if p.config().AutoStart {
				go func() {
					if err := m.EnsureStarted(context.Background()); err != nil {
						logger.Error("auto-start failed", zap.Error(err))
					}
				}()
			} else {
				logger.Info("auto-start disabled, session starts on first status request")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sched.Stop(ctx)
			if err := srv.Stop(ctx); err != nil {
				logger.Warn("error stopping HTTP server", zap.Error(err))
			}
			engine.Stop()
			m.Close()
			b.Close()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}

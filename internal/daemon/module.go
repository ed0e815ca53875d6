package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/clock"
	"github.com/matheus3301/wppbridge/internal/config"
	"github.com/matheus3301/wppbridge/internal/credential"
	"github.com/matheus3301/wppbridge/internal/lock"
	"github.com/matheus3301/wppbridge/internal/logging"
	"github.com/matheus3301/wppbridge/internal/reaper"
	"github.com/matheus3301/wppbridge/internal/session"
	"github.com/matheus3301/wppbridge/internal/status"
	"github.com/matheus3301/wppbridge/internal/store"
	"github.com/matheus3301/wppbridge/internal/supervisor"
	intsync "github.com/matheus3301/wppbridge/internal/sync"
	"github.com/matheus3301/wppbridge/internal/wa"
)

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(cfg *config.Config) fx.Option {
	return fx.Module("daemon",
		fx.Supply(cfg),
		fx.Provide(
			provideLayout,
			provideLogger,
			provideLock,
			provideClock,
			provideBus,
			provideStateMachine,
			provideStore,
			provideSessions,
			provideCredentials,
			provideReaper,
			provideSyncEngine,
			provideIngester,
			provideFactory,
			provideSupervisor,
			provideAPI,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLayout(cfg *config.Config) session.Layout {
	return session.Layout{DataDir: cfg.DataDir}
}

func provideLogger(cfg *config.Config, layout session.Layout) (*zap.Logger, error) {
	return logging.New(layout.LogPath(), "wppd", logging.ParseLevel(cfg.LogLevel))
}

func provideLock(layout session.Layout, logger *zap.Logger) (*lock.Lock, error) {
	if err := layout.Ensure(); err != nil {
		return nil, err
	}
	logger.Info("acquiring data dir lock", zap.String("data_dir", layout.DataDir))
	l, err := lock.Acquire(layout.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired", zap.String("path", l.Path()))
	return l, nil
}

func provideClock() clock.Clock {
	return clock.Real()
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

// provideStore opens app.db. It takes the lock so no second daemon touches
// the database.
func provideStore(layout session.Layout, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	db, err := store.OpenMigrated(layout.AppDBPath(), logger)
	if err != nil {
		return nil, err
	}
	logger.Info("store initialized", zap.String("path", layout.AppDBPath()))
	return db, nil
}

func provideSessions(cfg *config.Config, layout session.Layout, _ *lock.Lock, logger *zap.Logger) (*session.Store, error) {
	return session.NewStore(layout.AuthDir(), cfg.Client.ClientID, logger)
}

func provideCredentials(cfg *config.Config, layout session.Layout, clk clock.Clock, b *bus.Bus, _ *lock.Lock, logger *zap.Logger) *credential.Store {
	s := credential.Open(layout.TokensPath(), cfg.Tokens.TTL, clk, logger)
	s.OnChange(func(c credential.Credentials) {
		// Token values stay off the bus; subscribers only learn the expiry.
		var expiresAt *int64
		if !c.ExpiresAt.IsZero() {
			ms := c.ExpiresAt.UnixMilli()
			expiresAt = &ms
		}
		b.Emit(bus.KindTokens, map[string]any{
			"expiresAt":       expiresAt,
			"hasRefreshToken": c.RefreshToken != "",
		})
	})
	return s
}

func provideReaper(cfg *config.Config, logger *zap.Logger) *reaper.Reaper {
	return reaper.New(reaper.Config{
		ProcessPatterns: cfg.Reaper.ProcessPatterns,
		TempGlobs:       cfg.Reaper.TempGlobs,
	}, logger)
}

func provideSyncEngine(cfg *config.Config, m *status.Machine, db *store.DB, b *bus.Bus, clk clock.Clock, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(m, db, b, clk, cfg.Sync.Locale, logger)
}

func provideIngester(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Ingester {
	return intsync.NewIngester(db, b, logger)
}

func provideFactory(db *store.DB, b *bus.Bus, logger *zap.Logger) wa.Factory {
	return wa.NewFactory(db, b, logger.Named("wa"))
}

type supervisorParams struct {
	fx.In

	Config      *config.Config
	Machine     *status.Machine
	Factory     wa.Factory
	Sessions    *session.Store
	Credentials *credential.Store
	Reaper      *reaper.Reaper
	Engine      *intsync.Engine
	Clock       clock.Clock
	Logger      *zap.Logger
}

func provideSupervisor(p supervisorParams) *supervisor.Supervisor {
	return supervisor.New(supervisor.Deps{
		Machine:     p.Machine,
		Factory:     p.Factory,
		Sessions:    p.Sessions,
		Credentials: p.Credentials,
		Reaper:      p.Reaper,
		Syncer:      p.Engine,
		Clock:       p.Clock,
		Logger:      p.Logger.Named("supervisor"),
	}, p.Config.Timings, p.Config.Client.DeviceName)
}

type apiParams struct {
	fx.In

	Config      *config.Config
	Machine     *status.Machine
	Supervisor  *supervisor.Supervisor
	Engine      *intsync.Engine
	Credentials *credential.Store
	Sessions    *session.Store
	Bus         *bus.Bus
	Logger      *zap.Logger
}

func provideAPI(p apiParams) *api.Server {
	return api.New(api.Deps{
		Connection: p.Machine,
		Lifecycle:  p.Supervisor,
		Cache:      p.Engine,
		Tokens:     p.Credentials,
		Sessions:   p.Sessions,
		Bus:        p.Bus,
		Logger:     p.Logger.Named("http"),
	}, p.Config.HTTP.AllowedOrigins)
}

type lifecycleParams struct {
	fx.In

	Lifecycle   fx.Lifecycle
	Config      *config.Config
	Server      *Server
	Lock        *lock.Lock
	DB          *store.DB
	Machine     *status.Machine
	Sessions    *session.Store
	Credentials *credential.Store
	Engine      *intsync.Engine
	Ingester    *intsync.Ingester
	Supervisor  *supervisor.Supervisor
	Logger      *zap.Logger
}

func registerLifecycle(p lifecycleParams) {
	var stopRefresh context.CancelFunc
	logger := p.Logger

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Sessions.EnsureDirectory()

			// Journal inbound traffic before any client can produce it.
			p.Ingester.Start(context.Background())
			p.Engine.Load(ctx)

			if err := p.Server.Start(); err != nil {
				p.Ingester.Stop()
				return err
			}

			p.Supervisor.Start()

			var refreshCtx context.Context
			refreshCtx, stopRefresh = context.WithCancel(context.Background())
			go p.Credentials.RunAutoRefresh(refreshCtx, p.Config.Tokens.AutoRefresh, p.Machine.IsAuthenticated)

			messages, _ := p.DB.MessageCount(ctx)
			chats, _ := p.DB.ChatCount(ctx)
			logger.Info("daemon started",
				zap.String("addr", p.Server.Addr()),
				zap.Bool("session_exists", p.Sessions.HasValidSession()),
				zap.Int64("journal_messages", messages),
				zap.Int64("journal_chats", chats),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if stopRefresh != nil {
				stopRefresh()
			}
			if err := p.Supervisor.Shutdown(ctx); err != nil {
				logger.Warn("supervisor shutdown incomplete", zap.Error(err))
			}
			p.Server.Stop(ctx)
			p.Ingester.Stop()
			if err := p.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := p.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}

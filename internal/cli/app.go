package cli

import (
	"github.com/roach88/reviewlog/internal/config"
	"github.com/roach88/reviewlog/internal/reconcile"
	"github.com/roach88/reviewlog/internal/scheduler"
	"github.com/roach88/reviewlog/internal/store"
)

// app is the wiring shared by every command.
type app struct {
	cfg    *config.Config
	store  *store.Store
	cache  *store.CacheStore[scheduler.State]
	engine *reconcile.Engine[scheduler.State]
}

// openApp loads configuration, opens the database and builds the engine.
func openApp(opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}

	sched, err := cfg.Scheduler()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load scheduling policies", err)
	}

	st, err := store.Open(cfg.Database, store.WithAttachmentBaseURL(cfg.Attachments.BaseURL))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	cache := store.NewCacheStore[scheduler.State](st)
	engine := reconcile.New[scheduler.State](st, cache, sched, cfg.EngineOptions()...)
	engine.Subscribe(reconcile.SlogObserver[scheduler.State]{})

	return &app{cfg: cfg, store: st, cache: cache, engine: engine}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

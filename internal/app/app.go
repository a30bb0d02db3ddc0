// Package app wires a backend, the remote service, settings and the sharing
// coordinator into interactors for the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/the-dev-tools/recordsync/internal/config"
	"github.com/the-dev-tools/recordsync/internal/settings"
	"github.com/the-dev-tools/recordsync/pkg/idwrap"
	"github.com/the-dev-tools/recordsync/pkg/interactor"
	"github.com/the-dev-tools/recordsync/pkg/model/mcompany"
	"github.com/the-dev-tools/recordsync/pkg/model/memployee"
	"github.com/the-dev-tools/recordsync/pkg/remotesync/memremote"
	"github.com/the-dev-tools/recordsync/pkg/serialdispatch"
	"github.com/the-dev-tools/recordsync/pkg/sharing"
	"github.com/the-dev-tools/recordsync/pkg/store"
	"github.com/the-dev-tools/recordsync/pkg/store/memstore"
	"github.com/the-dev-tools/recordsync/pkg/store/sqlitestore"
)

type refresher interface {
	Refresh(ctx context.Context) error
	Close() error
}

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Backend  store.Backend
	Remote   *memremote.Service
	Settings *settings.Manager
	Sharing  *sharing.Coordinator

	dispatcher *serialdispatch.Dispatcher

	mu         sync.Mutex
	interactor []refresher
}

// New opens the configured backend. workflow receives share sessions; it
// may be nil when the caller never shares.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, set *settings.Manager, workflow sharing.Workflow) (*App, error) {
	backend, err := OpenBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Backend:    backend,
		Settings:   set,
		dispatcher: serialdispatch.New(64),
	}
	a.Remote = memremote.New(backend,
		memremote.WithLogger(logger),
		memremote.WithLatency(cfg.SyncLatency),
		memremote.WithUserID(cfg.UserID),
	)

	opts := []sharing.Option{
		sharing.WithLogger(logger),
		sharing.WithRefresher(a.refreshAll),
	}
	if cfg.ShareCacheTTL > 0 {
		opts = append(opts, sharing.WithCacheTTL(cfg.ShareCacheTTL))
	}
	if set != nil {
		opts = append(opts, sharing.WithGate(set))
		set.AddListener(func(enabled bool) {
			if enabled {
				return
			}
			if err := a.Remote.EraseLocalMetadata(); err != nil {
				logger.Error("app: erase sync metadata", "error", err)
			}
		})
	}
	a.Sharing = sharing.New(a.Remote, workflow, opts...)
	return a, nil
}

// OpenBackend opens the backend named by cfg.Backend.
func OpenBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memstore.New(), nil
	case config.BackendSQLite:
		s, err := sqlitestore.Open(ctx, cfg.DBPath, sqlitestore.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("app: open sqlite backend: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}

func (a *App) options(extra []interactor.Option) []interactor.Option {
	return append([]interactor.Option{
		interactor.WithLogger(a.Logger),
		interactor.WithDispatcher(a.dispatcher),
		interactor.WithKeyKind(a.Config.KeyKind),
	}, extra...)
}

// Companies builds the owned-company interactor, marking records the remote
// service reports as shared.
func (a *App) Companies(delegate interactor.Delegate[mcompany.Company], extra ...interactor.Option) *interactor.Company {
	extra = append([]interactor.Option{interactor.WithSharePredicate(a.Sharing.IsShared)}, extra...)
	c := interactor.NewCompany(a.Backend, delegate, a.options(extra)...)
	a.track(c)
	return c
}

func (a *App) Employees(companyID idwrap.Identifier, partition string, delegate interactor.Delegate[memployee.Employee], extra ...interactor.Option) *interactor.Employee {
	extra = append([]interactor.Option{interactor.WithPartition(partition)}, extra...)
	e := interactor.NewEmployee(a.Backend, companyID, delegate, a.options(extra)...)
	a.track(e)
	return e
}

func (a *App) Shared(delegate interactor.Delegate[mcompany.Company], extra ...interactor.Option) *interactor.Shared {
	s := interactor.NewShared(a.Backend, delegate, a.options(extra)...)
	a.track(s)
	return s
}

func (a *App) track(r refresher) {
	a.mu.Lock()
	a.interactor = append(a.interactor, r)
	a.mu.Unlock()
}

// refreshAll republishes every interactor that has loaded. Interactors that
// were never loaded report ErrNotLoaded, which is not a failure here.
func (a *App) refreshAll(ctx context.Context) error {
	a.mu.Lock()
	list := append([]refresher(nil), a.interactor...)
	a.mu.Unlock()

	var errs []error
	for _, r := range list {
		err := r.Refresh(ctx)
		if err != nil && !errors.Is(err, interactor.ErrNotLoaded) && !errors.Is(err, interactor.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) Close() error {
	a.Sharing.Close()

	a.mu.Lock()
	list := a.interactor
	a.interactor = nil
	a.mu.Unlock()

	var errs []error
	for _, r := range list {
		errs = append(errs, r.Close())
	}
	a.dispatcher.Close()
	errs = append(errs, a.Backend.Close())
	return errors.Join(errs...)
}

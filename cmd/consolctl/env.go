package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/account-consolidation/cmd/consolctl/cli"
	"github.com/odyssey-erp/account-consolidation/internal/app"
	"github.com/odyssey-erp/account-consolidation/internal/consol"
	"github.com/odyssey-erp/account-consolidation/internal/consol/fx"
	"github.com/odyssey-erp/account-consolidation/internal/consol/memstore"
	"github.com/odyssey-erp/account-consolidation/internal/platform/cache"
	"github.com/odyssey-erp/account-consolidation/internal/platform/db"
)

// exitError carries a process exit code without printing anything more.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func exitCode(code int) error {
	if code == cli.ExitOK {
		return nil
	}
	return exitError{code: code}
}

type ledgerStore interface {
	consol.Store
	cli.FXStore
}

// environment holds the dependencies shared by the subcommands.
type environment struct {
	demo bool

	cfg      *app.Config
	logger   *slog.Logger
	store    ledgerStore
	quotes   *fx.CachedProvider
	service  *consol.Service
	migrate  func(ctx context.Context) error
	holding  int64
	closers  []func()
	jobs     *cli.JobsCLI
	jobsErr  error
	jobsOpen bool
}

func (e *environment) open(ctx context.Context, stderr io.Writer) error {
	if e.store != nil {
		return nil
	}
	if e.demo {
		store, sc := memstore.Reference()
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		e.store = store
		e.holding = sc.Holding.ID
		e.quotes = fx.NewCachedProvider(store, nil, 0)
		e.service = consol.NewService(store, fx.NewConverter(e.quotes), e.logger)
		e.migrate = func(context.Context) error { return nil }
		return nil
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	e.cfg = cfg
	e.logger = app.NewLogger(cfg)
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions("consolctl"))
	if err != nil {
		return err
	}
	e.closers = append(e.closers, pool.Close)
	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.CacheOptions()); err != nil {
		_, _ = fmt.Fprintf(stderr, "consolctl: fx cache disabled: %v\n", err)
	} else {
		redisClient = client
		e.closers = append(e.closers, func() { _ = client.Close() })
	}
	repo := consol.NewRepository(pool)
	e.store = repo
	e.migrate = repo.Migrate
	e.quotes = fx.NewCachedProvider(repo, redisClient, cfg.FxCacheTTL)
	e.service = consol.NewService(repo, fx.NewConverter(e.quotes), e.logger)
	return nil
}

func (e *environment) jobsCLI() (*cli.JobsCLI, error) {
	if e.jobsOpen {
		return e.jobs, e.jobsErr
	}
	e.jobsOpen = true
	if e.demo || e.cfg == nil {
		e.jobsErr = errors.New("background queue unavailable in demo mode")
		return nil, e.jobsErr
	}
	e.jobs, e.jobsErr = cli.NewJobsCLI(e.cfg.QueueRedis(), e.cfg.ConsolQueue)
	if e.jobsErr == nil {
		jobs := e.jobs
		e.closers = append(e.closers, func() { _ = jobs.Close() })
	}
	return e.jobs, e.jobsErr
}

func (e *environment) holdingOr(id int64) int64 {
	if id <= 0 {
		return e.holding
	}
	return id
}

func (e *environment) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/landlord/config"
	"github.com/mohammad-safakhou/landlord/internal/agent/core"
	"github.com/mohammad-safakhou/landlord/internal/notify"
	"github.com/mohammad-safakhou/landlord/internal/prompts"
	"github.com/mohammad-safakhou/landlord/internal/store"
	"github.com/mohammad-safakhou/landlord/internal/worker"
	"github.com/mohammad-safakhou/landlord/provider"
	"github.com/mohammad-safakhou/landlord/tools/web_search"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds the wired collaborators shared by every subcommand.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	pipeline  *core.Pipeline
	inbox     worker.Inbox
	refresher *worker.Processor
	closers   []func() error
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	llm, err := provider.NewCompleter(ctx, cfg.LLM, logger)
	switch {
	case errors.Is(err, provider.ErrMissingAPIKey):
		logger.Warn("no llm api key configured, every stage will use its fallback")
	case err != nil:
		return nil, fmt.Errorf("llm: %w", err)
	}

	var tools []core.Tool
	var directory core.WorkerDirectory
	if searcher, key := webSearcher(cfg.Sources.WebSearch); key != "" {
		s, err := web_search.NewWebSearcher(searcher, key, cfg.Sources.WebSearch.Timeout)
		if err != nil {
			return nil, fmt.Errorf("web search: %w", err)
		}
		tools = append(tools, web_search.NewTool(s, cfg.Sources.WebSearch.MaxResults))
		directory = web_search.NewDirectory(s, cfg.Sources.WebSearch.MaxResults)
	} else {
		logger.Info("web search disabled, no api key configured")
	}

	var (
		classLog core.ClassificationLog
		listings core.ListingStore
		reports  core.ReportStore
	)
	if cfg.Storage.Postgres.Enabled() {
		timeout := cfg.Storage.Postgres.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		pctx, cancel := context.WithTimeout(ctx, timeout)
		st, err := store.NewWithDSN(pctx, cfg.Storage.Postgres.DSN())
		cancel()
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, st.Close)
		classLog, listings, reports = st, st, st
		a.inbox = st
	} else {
		logger.Info("postgres not configured, using in-memory inbox")
		a.inbox = store.NewMemoryInbox()
	}

	var lock worker.Locker
	if cfg.Storage.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:        cfg.Storage.Redis.Addr(),
			Password:    cfg.Storage.Redis.Password,
			DB:          cfg.Storage.Redis.DB,
			DialTimeout: cfg.Storage.Redis.Timeout,
		})
		a.closers = append(a.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
		lock = worker.NewRedisLocker(rdb, "")
	}

	var notifier core.Notifier
	switch {
	case cfg.Notification.Enabled():
		sender, err := notify.NewEmailSender(cfg.Notification, logger)
		if err != nil {
			return nil, err
		}
		notifier = sender
	case cfg.Notification.Recipient != "":
		notifier = notify.NewLogSender(cfg.Notification.Recipient, logger)
	}

	reg := prompts.Default()
	deps := core.Deps{
		LLM:       llm,
		Prompts:   reg,
		Augmentor: core.NewAugmentor(logger, cfg.Pipeline.ToolTimeout),
		Logger:    logger,
		Timeout:   cfg.LLM.Timeout,
	}
	classifier := core.NewClassifier(llm, reg, classLog, logger, cfg.LLM.Timeout)
	a.pipeline = core.NewPipeline(classifier, []core.Handler{
		core.NewAssetHandler(deps, tools...),
		core.NewMaintenanceHandler(deps, core.MaintenanceOptions{
			Directory:       directory,
			Listings:        listings,
			Notifier:        notifier,
			DefaultLocation: cfg.Pipeline.DefaultLocation,
		}, tools...),
		core.NewTaxationHandler(deps, reports, tools...),
		core.NewEmailDraftHandler(deps),
	}, logger)

	a.refresher = worker.NewProcessor(a.inbox, a.pipeline, lock, logger, worker.Options{
		BatchSize:   cfg.Pipeline.RefreshBatchSize,
		Concurrency: cfg.Pipeline.RefreshConcurrency,
	})
	ok = true
	return a, nil
}

func webSearcher(cfg config.WebSearchConfig) (web_search.Provider, string) {
	if web_search.Provider(cfg.Provider) == web_search.BraveProvider {
		return web_search.BraveProvider, cfg.BraveAPIKey
	}
	return web_search.SerperProvider, cfg.SerperAPIKey
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/alerts"
	"github.com/opensource-finance/kestrel/internal/budget"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/insights"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rewards"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scanner"
	"github.com/opensource-finance/kestrel/internal/stats"
)

// app is the wired set of engines shared by the subcommands.
type app struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	catalog  *rules.Catalog
	alerts   *alerts.Manager
	scans    *scanner.Service
	insights *insights.Service
	stats    *stats.Service

	closers []func() error
}

// newApp opens the adapters selected by cfg and builds the engines on top.
func newApp(ctx context.Context, cfg *domain.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("initialize repository: %w", err)
	}
	a.repo = repo
	a.closers = append(a.closers, repo.Close)
	logger.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize cache: %w", err)
	}
	a.cache = cacheImpl
	a.closers = append(a.closers, cacheImpl.Close)
	logger.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize event bus: %w", err)
	}
	a.bus = busImpl
	a.closers = append(a.closers, busImpl.Close)
	logger.Info("event bus initialized", "type", cfg.EventBus.Type)

	a.catalog = rules.NewCatalog(repo, cfg.Rules, logger)
	ruleSet, err := a.catalog.LoadDefaultRules(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load rule catalog: %w", err)
	}
	eval, err := rules.NewEvaluator(ruleSet)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("compile rule catalog: %w", err)
	}
	logger.Info("rule engine initialized", "rules_count", eval.RulesCount())

	rates, err := rewards.LoadTable(cfg.Rewards.File)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load reward rates: %w", err)
	}

	a.insights = insights.NewService(repo, cacheImpl, insights.Config{
		Rates:    rates,
		Budgets:  budget.TableFromConfig(cfg.Budget),
		TopN:     cfg.Rewards.TopN,
		CacheTTL: cfg.Insights.CacheTTL,
	}, logger)

	a.alerts = alerts.NewManager(repo, logger,
		alerts.WithEventBus(busImpl),
		alerts.WithInvalidator(a.insights),
	)
	a.scans = scanner.NewService(repo, scanner.New(a.alerts, cfg.Scanner.Workers, logger), eval, cfg.Scanner.Window, logger)
	a.stats = stats.NewService(repo, cfg.Rules.HomeCountry)

	return a, nil
}

// Close releases the adapters in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Error("failed to close component", "error", err)
		}
	}
	a.closers = nil
}

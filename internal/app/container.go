package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/reports"
	"github.com/odyssey-erp/ledger/internal/accounting/store"
	"github.com/odyssey-erp/ledger/internal/accounting/transactions"
	"github.com/odyssey-erp/ledger/internal/audit"
	"github.com/odyssey-erp/ledger/internal/observability"
	"github.com/odyssey-erp/ledger/internal/platform/cache"
	"github.com/odyssey-erp/ledger/internal/platform/db"
	"github.com/odyssey-erp/ledger/internal/platform/events"
	"github.com/odyssey-erp/ledger/internal/shared"
	"github.com/odyssey-erp/ledger/jobs"
)

// Store is the persistence surface shared by the memory and Postgres backends.
type Store interface {
	Accounts() accounts.Repository
	Transactions() transactions.Repository
	ListTransactions(ctx context.Context, filter transactions.Filter) ([]transactions.Transaction, error)
	Record(ctx context.Context, log shared.AuditLog) error
	QueryAuditLogs(ctx context.Context, q audit.Query) ([]shared.AuditLog, error)
	InstitutionIDs(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// Container holds the wired services of one process.
type Container struct {
	Config      *Config
	Logger      *slog.Logger
	Store       Store
	Redis       *redis.Client
	Events      events.Publisher
	Metrics     *observability.Metrics
	ReportCache *reports.Cache
	Accounts    *accounts.Service
	Engine      *transactions.Service
	Reports     *reports.Service
	Audit       *audit.Service

	closers []func()
}

// Bootstrap connects the configured backends and wires the services. Redis
// and RabbitMQ are optional: without them reports are built uncached and
// events are only logged.
func Bootstrap(ctx context.Context, cfg *Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}

	switch cfg.LedgerStore {
	case StorePostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		c.closers = append(c.closers, pool.Close)
		c.Store = store.NewPostgres(pool)
	default:
		c.Store = store.NewMemory()
	}

	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, report cache disabled", slog.Any("error", err))
		} else {
			c.Redis = client
			c.closers = append(c.closers, func() {
				if err := client.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			})
		}
	}

	c.Events = events.Connect(cfg.AMQPURL, cfg.EventsExchange, logger)
	c.closers = append(c.closers, c.Events.Close)

	ledgerMetrics := c.Metrics.Ledger()
	c.ReportCache = reports.NewCache(c.Redis, cfg.ReportCacheTTL).WithObserver(ledgerMetrics)
	c.Accounts = accounts.NewService(c.Store.Accounts(), c.Store, logger).WithCache(c.ReportCache)
	c.Engine = transactions.NewService(transactions.Deps{
		Repo:     c.Store.Transactions(),
		Accounts: c.Accounts,
		Audit:    c.Store,
		Events:   c.Events,
		Cache:    c.ReportCache,
		Metrics:  ledgerMetrics,
		Logger:   logger,
	})
	c.Reports = reports.NewService(c.Accounts, c.Store, c.ReportCache, logger)
	c.Audit = audit.NewService(c.Store)
	return c, nil
}

// Router builds the HTTP API over the container's services.
func (c *Container) Router() http.Handler {
	var inspector jobs.QueueInspector
	if c.Redis != nil {
		if opt, err := jobs.RedisOpt(c.Config.RedisAddr); err == nil {
			in := asynq.NewInspector(opt)
			c.closers = append(c.closers, func() { _ = in.Close() })
			inspector = in
		}
	}
	return NewRouter(RouterParams{
		Logger:              c.Logger,
		Config:              c.Config,
		Metrics:             c.Metrics,
		Health:              c.Store.Ping,
		AccountsHandler:     accounts.NewHandler(c.Logger, c.Accounts),
		TransactionsHandler: transactions.NewHandler(c.Logger, c.Engine, c.Audit),
		ReportsHandler:      reports.NewHandler(c.Logger, c.Reports),
		AuditHandler:        audit.NewHandler(c.Logger, c.Audit),
		JobHandler:          jobs.NewHandler(inspector, c.Logger),
	})
}

// Close releases connections in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

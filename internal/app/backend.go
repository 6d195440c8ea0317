// Package app wires storage, locks and domain services from configuration.
// Both the HTTP server and the stock audit CLI start from here.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"templestock/internal/config"
	"templestock/internal/core/tx"
	"templestock/internal/domain/movement"
	"templestock/internal/domain/product"
	"templestock/internal/domain/reconcile"
	"templestock/internal/domain/uniqueness"
	"templestock/internal/infrastructure/http/v1/handlers"
	"templestock/internal/infrastructure/storage/memory"
	"templestock/internal/infrastructure/storage/postgres"
	"templestock/internal/infrastructure/storage/postgres/catalog_repo"
	"templestock/internal/infrastructure/storage/postgres/document_repo"
	"templestock/internal/keylock"
	"templestock/pkg/logger"
)

// Backend holds the wired services and the resources to release on shutdown.
type Backend struct {
	Engine   *reconcile.Engine
	Products *product.Service
	Catalog  product.Repository

	// Checks are probed by the health endpoint.
	Checks map[string]handlers.Checker
	// Stats are reported by the health info endpoint.
	Stats map[string]handlers.StatsFunc

	closers []func() error
}

// ports are the storage implementations the services are built from.
type ports struct {
	products  product.Repository
	documents movement.Repository
	lines     movement.LineSet
	journal   movement.Journal
	txManager tx.Manager
}

// Open connects the configured storage and lock backends.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Backend, error) {
	b := &Backend{
		Checks: make(map[string]handlers.Checker),
		Stats:  make(map[string]handlers.StatsFunc),
	}

	p, err := b.openStorage(ctx, cfg, log)
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	locker := b.openLocker(cfg, log)

	guard := uniqueness.NewGuard(p.documents, p.products)
	b.Catalog = p.products
	b.Products = product.NewService(p.products, guard, p.txManager)
	b.Engine = reconcile.NewEngine(reconcile.Deps{
		Products:  p.products,
		Documents: p.documents,
		Lines:     p.lines,
		Guard:     guard,
		Journal:   p.journal,
		Locker:    locker,
		TxManager: p.txManager,
	}, reconcile.Config{
		OperationTimeout:    cfg.Engine.OperationTimeout,
		CompensationTimeout: cfg.Engine.CompensationTimeout,
	})
	return b, nil
}

func (b *Backend) openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (ports, error) {
	if cfg.App.Storage == config.StorageMemory {
		log.Warnw("using in-memory storage; data is lost on restart")
		st := memory.New()
		return ports{
			products:  st.Products,
			documents: st.Movements,
			lines:     st.Movements,
			journal:   st.Journal,
			txManager: st.TxManager(),
		}, nil
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.DB.DatabaseURL)
	if cfg.DB.MaxConns > 0 {
		poolCfg.MaxConns = cfg.DB.MaxConns
	}
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return ports{}, fmt.Errorf("connect database: %w", err)
	}
	b.closers = append(b.closers, func() error {
		pool.LogStats(context.WithoutCancel(ctx))
		pool.Close()
		return nil
	})
	b.Checks["database"] = pool
	b.Stats["database"] = func() any { return pool.Stats() }

	if err := postgres.Migrate(ctx, pool); err != nil {
		return ports{}, fmt.Errorf("migrate: %w", err)
	}
	log.Infow("database connection established", "max_conns", poolCfg.MaxConns)

	txm := postgres.NewTxManager(pool, cfg.DB.StatementTimeout)
	journal, err := postgres.NewJournal(txm)
	if err != nil {
		return ports{}, fmt.Errorf("journal: %w", err)
	}
	return ports{
		products:  catalog_repo.NewProductRepo(txm),
		documents: document_repo.NewDocumentRepo(txm),
		lines:     document_repo.NewLineRepo(txm),
		journal:   journal,
		txManager: txm,
	}, nil
}

func (b *Backend) openLocker(cfg *config.Config, log *logger.Logger) keylock.Locker {
	if !cfg.Redis.Enabled() {
		return keylock.NewLocal()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	b.closers = append(b.closers, rdb.Close)
	b.Checks["redis"] = redisCheck{rdb}
	log.Infow("reference locks use redis", "addr", cfg.Redis.Address, "ttl", cfg.Redis.LockTTL)

	return keylock.NewRedis(rdb, keylock.RedisOptions{
		TTL:    cfg.Redis.LockTTL,
		Prefix: "templestock:",
	})
}

// Close releases connections in reverse order of opening.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

type redisCheck struct {
	rdb *redis.Client
}

func (c redisCheck) Check(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

package cli

import (
	"context"
	"fmt"
	"log/slog"

	"enrollment/internal/platform/config"
	"enrollment/internal/platform/database"
	"enrollment/internal/platform/logger"
	"enrollment/internal/platform/redis"
	"enrollment/internal/search"
	"enrollment/internal/search/redisindex"
	voterstore "enrollment/internal/voter/store"
	"enrollment/pkg/platform/audit"
	auditpostgres "enrollment/pkg/platform/audit/store/postgres"
)

// env holds the connections one command needs. close releases whatever was opened.
type env struct {
	cfg    config.Config
	log    *slog.Logger
	db     *database.Pool
	redis  *redis.Client
	voters *voterstore.PostgresStore
}

func connect(ctx context.Context, withRedis bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	e := &env{cfg: cfg, log: logger.New(cfg.Server.LogLevel)}

	e.db, err = database.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	e.voters = voterstore.NewPostgres(e.db.DB())

	if withRedis {
		e.redis, err = redis.New(ctx, cfg.Redis, nil)
		if err != nil {
			e.close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}
	return e, nil
}

func (e *env) projector() *search.Projector {
	index := redisindex.New(e.redis.Client, redisindex.WithPrefix(e.cfg.Search.KeyPrefix+":"))
	return search.NewProjector(index, e.voters,
		search.WithTimeout(e.cfg.Search.IndexTimeout),
		search.WithBatchSize(e.cfg.Search.BatchSize),
		search.WithLogger(e.log),
	)
}

func (e *env) auditor() *audit.Writer {
	return audit.NewWriter(auditpostgres.New(e.db.DB()), e.log)
}

func (e *env) close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.db != nil {
		_ = e.db.Close()
	}
}

// Package bootstrap wires storage, cache, model client and query engine
// from configuration. Both the API server and the CLI start here.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	cache "github.com/ecom-insights/backend/internal/cache/redis"
	"github.com/ecom-insights/backend/internal/dataset"
	"github.com/ecom-insights/backend/internal/llm"
	"github.com/ecom-insights/backend/internal/query"
	"github.com/ecom-insights/backend/internal/storage/sqlite"
	"github.com/ecom-insights/backend/pkg/config"
	"github.com/ecom-insights/backend/pkg/logger"
)

type Services struct {
	Config  *config.Config
	Catalog *dataset.Catalog
	Store   *sqlite.Client
	// Cache is nil when redis is disabled or unreachable.
	Cache  *cache.Client
	LLM    *llm.Client
	Engine *query.Engine
}

func New(ctx context.Context, cfg *config.Config) (*Services, error) {
	catalog, err := dataset.DefaultCatalog()
	if err != nil {
		return nil, err
	}

	store, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite client: %w", err)
	}

	if err := store.InitSchema(); err != nil {
		store.Close()
		return nil, err
	}

	s := &Services{
		Config:  cfg,
		Catalog: catalog,
		Store:   store,
	}

	if cfg.Redis.Enabled {
		rc, err := cache.NewClient(ctx,
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSec)*time.Second,
		)
		if err != nil {
			logger.Warn("Redis unavailable, SQL caching disabled", zap.Error(err))
		} else {
			s.Cache = rc
		}
	}

	s.LLM = llm.NewClient(llm.Config{
		BaseURL:       cfg.LLM.BaseURL,
		APIKey:        cfg.LLM.APIKey,
		Model:         cfg.LLM.Model,
		HumanizeModel: cfg.LLM.HumanizeModel,
		Temperature:   cfg.LLM.Temperature,
		MaxTokens:     cfg.LLM.MaxTokens,
		Timeout:       time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	}, catalog.Describe())
	if cfg.LLM.APIKey == "" {
		logger.Warn("No LLM API key configured; SQL generation will fail")
	}

	var sqlCache query.SQLCache
	if s.Cache != nil {
		sqlCache = s.Cache
	}
	s.Engine = query.NewEngine(store, s.LLM, s.LLM, sqlCache, cfg.LLM.Model)

	return s, nil
}

// EnsureDataset loads the CSV dataset when its tables are missing or empty.
// With force the tables are dropped and reloaded, and cached SQL is
// invalidated.
func (s *Services) EnsureDataset(ctx context.Context, force bool) (map[string]int64, error) {
	names := s.Catalog.TableNames()

	if !force {
		loaded, err := s.Store.HasTables(ctx, names...)
		if err != nil {
			return nil, err
		}
		if loaded {
			logger.Info("Dataset already loaded, skipping initial load")
			return nil, nil
		}
	}

	if err := s.Store.DropTables(ctx, names...); err != nil {
		return nil, err
	}

	logger.Info("Loading dataset", zap.String("dir", s.Config.Dataset.Dir), zap.Bool("forced", force))
	counts, err := dataset.NewLoader(s.Catalog, s.Config.Dataset.Dir).LoadAll(ctx, s.Store)
	if err != nil {
		return counts, fmt.Errorf("failed to load dataset: %w", err)
	}

	if s.Cache != nil {
		if _, err := s.Cache.InvalidateSQL(ctx); err != nil {
			logger.Warn("Failed to invalidate SQL cache", zap.Error(err))
		}
	}
	return counts, nil
}

func (s *Services) Close() {
	if s.Cache != nil {
		if err := s.Cache.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if err := s.Store.Close(); err != nil {
		logger.Warn("Failed to close sqlite client", zap.Error(err))
	}
}

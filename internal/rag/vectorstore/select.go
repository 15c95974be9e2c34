package vectorstore

import (
	"context"
	"fmt"

	"budgetrag/internal/config"
	"budgetrag/internal/database/milvus"
	"budgetrag/pkg/logger"
)

// Select probes the managed Milvus backend and falls back to the in-process
// backend when Milvus is unconfigured or unhealthy. Selection failures are
// logged, never propagated: callers always get a working backend, and which
// one they got is invisible to the rest of the pipeline.
func Select(ctx context.Context, cfg *config.MilvusConfig, dim int, log *logger.Logger) Backend {
	if cfg.Address == "" {
		log.Info("Milvus address not configured, using in-memory vector backend")
		return NewMemoryBackend()
	}

	backend, err := probeMilvus(ctx, cfg, dim, log)
	if err != nil {
		log.WithError(err).Warn("Milvus backend unavailable, falling back to in-memory vector backend")
		return NewMemoryBackend()
	}

	log.Info(fmt.Sprintf("Using Milvus vector backend with collection %s", cfg.CollectionName))
	return backend
}

func probeMilvus(ctx context.Context, cfg *config.MilvusConfig, dim int, log *logger.Logger) (Backend, error) {
	client, err := milvus.GetClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := client.HealthCheck(ctx); err != nil {
		return nil, err
	}
	if err := client.EnsureCollection(ctx, dim); err != nil {
		return nil, err
	}
	return NewMilvusBackend(client, log)
}

// Package store provides the vector store backends: pgvector, Qdrant and an
// in-memory store for tests and local runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/xhad/askflare/internal/types"
	"github.com/xhad/askflare/pkg/config"
	"go.uber.org/zap"
)

var errCollectionNotFound = errors.New("collection not found")

// Store is the full set of capabilities every backend provides.
type Store interface {
	types.VectorStore
	types.VectorWriter
	types.Provisioner
	types.Pinger
	Close() error
}

var (
	_ Store = (*PGVectorStore)(nil)
	_ Store = (*QdrantStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// Open builds the backend selected by cfg.Type.
func Open(ctx context.Context, cfg config.VectorStoreConfig, timeout time.Duration, logger *zap.Logger) (Store, error) {
	switch cfg.Type {
	case "", "pgvector":
		return NewPGVector(ctx, PGVectorConfig{
			ConnString: cfg.URL,
			VectorDim:  cfg.VectorDim,
			BatchSize:  cfg.BatchSize,
			Timeout:    timeout,
		}, logger)
	case "qdrant":
		var apiKey string
		if cfg.APIKeyEnv != "" {
			apiKey = os.Getenv(cfg.APIKeyEnv)
		}
		return NewQdrant(QdrantConfig{URL: cfg.URL, APIKey: apiKey, Timeout: timeout}, logger), nil
	case "memory":
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown vector store type: %s", cfg.Type)
}

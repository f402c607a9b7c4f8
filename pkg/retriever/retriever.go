// Package retriever turns a query into ranked document chunks by embedding
// it and searching the vector store.
package retriever

import (
	"context"
	"strings"
	"time"

	"github.com/xhad/askflare/internal/errs"
	"github.com/xhad/askflare/internal/models"
	"github.com/xhad/askflare/internal/types"
	"go.uber.org/zap"
)

const unknownSource = "unknown"

type Config struct {
	Collection    string
	EmbedTimeout  time.Duration
	SearchTimeout time.Duration
}

type Retriever struct {
	embedder types.Embedder
	store    types.VectorStore
	config   Config
	logger   *zap.Logger
}

var _ types.Searcher = (*Retriever)(nil)

func New(embedder types.Embedder, store types.VectorStore, config Config, logger *zap.Logger) *Retriever {
	if config.EmbedTimeout <= 0 {
		config.EmbedTimeout = 30 * time.Second
	}
	if config.SearchTimeout <= 0 {
		config.SearchTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		config:   config,
		logger:   logger.Named("retriever"),
	}
}

// SemanticSearch embeds query in query mode and returns at most topK chunks
// in the store's ranking order. Embedding and store failures are returned as
// retrieval errors; no partial result is returned with an error.
func (r *Retriever) SemanticSearch(ctx context.Context, query string, topK int) ([]models.Chunk, error) {
	const op = "retriever.SemanticSearch"

	if strings.TrimSpace(query) == "" {
		return nil, errs.Invalid(op, "query must not be empty")
	}
	if topK < 1 {
		return nil, errs.Invalid(op, "top_k must be >= 1, got %d", topK)
	}

	vector, err := r.embed(ctx, query)
	if err != nil {
		return nil, errs.E(errs.KindRetrieval, op, errs.Wrap(errs.KindEmbedding, "embed", err))
	}

	hits, err := r.search(ctx, vector, topK)
	if err != nil {
		return nil, errs.E(errs.KindRetrieval, op, errs.Wrap(errs.KindStore, "search", err))
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}

	chunks := make([]models.Chunk, 0, len(hits))
	for _, hit := range hits {
		if hit.Payload == nil {
			r.logger.Warn("skipping hit without payload",
				zap.String("id", hit.ID),
				zap.Float64("score", hit.Score))
			continue
		}
		chunks = append(chunks, chunkFromHit(hit))
	}

	r.logger.Debug("semantic search complete",
		zap.Int("top_k", topK),
		zap.Int("hits", len(hits)),
		zap.Int("chunks", len(chunks)))

	return chunks, nil
}

func (r *Retriever) embed(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.EmbedTimeout)
	defer cancel()
	return r.embedder.Embed(ctx, query, types.ModeQuery)
}

func (r *Retriever) search(ctx context.Context, vector []float32, topK int) ([]models.Hit, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.SearchTimeout)
	defer cancel()
	return r.store.Search(ctx, r.config.Collection, vector, topK)
}

// chunkFromHit maps a payload onto a chunk. The source is the payload's
// source, then its filename, then "unknown". Keys other than text are kept
// as metadata.
func chunkFromHit(hit models.Hit) models.Chunk {
	chunk := models.Chunk{
		Score:    hit.Score,
		Source:   unknownSource,
		Metadata: make(map[string]interface{}, len(hit.Payload)),
	}
	if text, ok := hit.Payload["text"].(string); ok {
		chunk.Text = text
	}
	for k, v := range hit.Payload {
		if k != "text" {
			chunk.Metadata[k] = v
		}
	}
	if s, ok := chunk.MetaString("source"); ok {
		chunk.Source = s
	} else if s, ok := chunk.MetaString("filename"); ok {
		chunk.Source = s
	}
	return chunk
}

package types

import (
	"context"

	"github.com/xhad/askflare/internal/models"
)

// EmbedMode selects how an embedding provider represents the text. Some
// providers optimize query and document representations differently.
type EmbedMode int

const (
	ModeDocument EmbedMode = iota
	ModeQuery
)

func (m EmbedMode) String() string {
	if m == ModeQuery {
		return "query"
	}
	return "document"
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string, mode EmbedMode) ([]float32, error)
}

// BatchEmbedder embeds many documents in one call, used at ingestion time.
type BatchEmbedder interface {
	Embedder
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore performs nearest-neighbour search within a collection. Hits
// are returned in descending score order.
type VectorStore interface {
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]models.Hit, error)
}

// VectorWriter writes points into a collection, replacing existing IDs.
type VectorWriter interface {
	Upsert(ctx context.Context, collection string, points []models.Point) error
}

// Provisioner creates a collection if it does not already exist.
type Provisioner interface {
	EnsureCollection(ctx context.Context, collection string, dim int) error
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GenerateRequest is a single prompt sent to a generation provider.
type GenerateRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	// JSON asks the provider for a JSON object reply.
	JSON bool
}

// Generator turns a prompt into a free-text completion.
type Generator interface {
	Complete(ctx context.Context, req GenerateRequest) (string, error)
}

// Searcher is the retrieval capability consumed by the router and pipeline.
type Searcher interface {
	SemanticSearch(ctx context.Context, query string, topK int) ([]models.Chunk, error)
}

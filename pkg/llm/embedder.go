package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/xhad/askflare/internal/errs"
	"github.com/xhad/askflare/internal/types"
)

// EmbedderConfig represents the configuration for an embedder.
type EmbedderConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	// QueryPrefix and DocumentPrefix are prepended to the text before
	// embedding, for models trained with task prefixes.
	QueryPrefix    string
	DocumentPrefix string
	BatchSize      int
	Timeout        time.Duration
}

// Embedder turns text into vectors through a langchaingo embedder.
type Embedder struct {
	config EmbedderConfig
	embed  embeddings.Embedder
}

var _ types.BatchEmbedder = (*Embedder)(nil)

// NewEmbedderWithConfig creates an embedder for the configured provider.
func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}

	var (
		client embeddings.EmbedderClient
		err    error
	)
	switch config.Provider {
	case "", "ollama":
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		client, err = ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
	case "openai":
		opts := []openai.Option{openai.WithEmbeddingModel(config.Model), openai.WithToken(config.APIKey)}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		client, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return NewEmbedder(client, config)
}

// NewEmbedder wraps an embedding client.
func NewEmbedder(client embeddings.EmbedderClient, config EmbedderConfig) (*Embedder, error) {
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	emb, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(config.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{config: config, embed: emb}, nil
}

// Embed embeds a single text in the given mode.
func (e *Embedder) Embed(ctx context.Context, text string, mode types.EmbedMode) ([]float32, error) {
	const op = "llm.Embed"

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	var (
		vector []float32
		err    error
	)
	if mode == types.ModeQuery {
		vector, err = e.embed.EmbedQuery(ctx, e.config.QueryPrefix+text)
	} else {
		var vectors [][]float32
		vectors, err = e.embed.EmbedDocuments(ctx, []string{e.config.DocumentPrefix + text})
		if err == nil && len(vectors) > 0 {
			vector = vectors[0]
		}
	}
	if err != nil {
		return nil, errs.E(errs.KindEmbedding, op, err)
	}
	if len(vector) == 0 {
		return nil, errs.E(errs.KindEmbedding, op, fmt.Errorf("empty embedding for %s text", mode))
	}
	return vector, nil
}

// EmbedDocuments embeds texts in document mode, batched by BatchSize.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "llm.EmbedDocuments"

	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	prefixed := texts
	if e.config.DocumentPrefix != "" {
		prefixed = make([]string, len(texts))
		for i, t := range texts {
			prefixed[i] = e.config.DocumentPrefix + t
		}
	}

	vectors, err := e.embed.EmbedDocuments(ctx, prefixed)
	if err != nil {
		return nil, errs.E(errs.KindEmbedding, op, err)
	}
	if len(vectors) != len(texts) {
		return nil, errs.E(errs.KindEmbedding, op,
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors)))
	}
	return vectors, nil
}

// Package app wires configuration into a running pipeline and its
// ingestion sources. Both binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/xhad/askflare/internal/models"
	"github.com/xhad/askflare/internal/types"
	"github.com/xhad/askflare/pkg/config"
	"github.com/xhad/askflare/pkg/ingest"
	"github.com/xhad/askflare/pkg/llm"
	"github.com/xhad/askflare/pkg/pipeline"
	"github.com/xhad/askflare/pkg/processor"
	"github.com/xhad/askflare/pkg/responder"
	"github.com/xhad/askflare/pkg/retriever"
	"github.com/xhad/askflare/pkg/router"
	"github.com/xhad/askflare/pkg/scraper"
	"github.com/xhad/askflare/pkg/store"
	"go.uber.org/zap"
)

type App struct {
	Config   *config.Config
	Pipeline *pipeline.Pipeline
	Store    store.Store

	embedder  types.BatchEmbedder
	processor *processor.Processor
	logger    *zap.Logger
}

type options struct {
	routerGen    types.Generator
	responderGen types.Generator
	embedder     types.BatchEmbedder
	store        store.Store
}

type Option func(*options)

// WithGenerators replaces the configured chat models.
func WithGenerators(routerGen, responderGen types.Generator) Option {
	return func(o *options) {
		o.routerGen = routerGen
		o.responderGen = responderGen
	}
}

// WithEmbedder replaces the configured embedding model.
func WithEmbedder(e types.BatchEmbedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithStore replaces the configured vector store.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// New validates cfg and builds every component it describes.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if verrs := cfg.Validate(); len(verrs) > 0 {
		errList := make([]error, len(verrs))
		for i, e := range verrs {
			errList[i] = e
		}
		return nil, fmt.Errorf("invalid config: %w", errors.Join(errList...))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var err error
	if o.routerGen == nil {
		if o.routerGen, err = newChatEngine(cfg, cfg.Router.Model, logger); err != nil {
			return nil, err
		}
	}
	if o.responderGen == nil {
		if o.responderGen, err = newChatEngine(cfg, cfg.Responder.Model, logger); err != nil {
			return nil, err
		}
	}
	if o.embedder == nil {
		o.embedder, err = llm.NewEmbedderWithConfig(llm.EmbedderConfig{
			Provider:       cfg.Embedding.Provider,
			Model:          cfg.Embedding.Model,
			BaseURL:        cfg.Embedding.BaseURL,
			APIKey:         os.Getenv(cfg.Embedding.APIKeyEnv),
			QueryPrefix:    cfg.Embedding.QueryPrefix,
			DocumentPrefix: cfg.Embedding.DocumentPrefix,
			BatchSize:      cfg.Embedding.BatchSize,
			Timeout:        cfg.Timeouts.Embedding,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	}
	if o.store == nil {
		if o.store, err = store.Open(ctx, cfg.VectorStore, cfg.Timeouts.Store, logger); err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
	}

	ret := retriever.New(o.embedder, o.store, retriever.Config{
		Collection:    cfg.VectorStore.Collection,
		EmbedTimeout:  cfg.Timeouts.Embedding,
		SearchTimeout: cfg.Timeouts.Store,
	}, logger)

	contextK := 0
	if cfg.Router.UseContext {
		contextK = cfg.Router.ContextK
	}
	rt := router.New(o.routerGen, ret, router.Config{
		Model:         cfg.Router.Model,
		MaxTokens:     cfg.Router.MaxTokens,
		Temperature:   cfg.Router.Temperature,
		SystemPrompt:  cfg.Prompts.RouterSystem,
		Template:      cfg.Prompts.Router,
		AnswerOption:  cfg.Prompts.AnswerOption,
		ClarifyOption: cfg.Prompts.ClarifyOption,
		RejectOption:  cfg.Prompts.RejectOption,
		ContextK:      contextK,
		Timeout:       cfg.Timeouts.Generation,
	}, logger)

	resp := responder.New(o.responderGen, responder.Config{
		Model:          cfg.Responder.Model,
		MaxTokens:      cfg.Responder.MaxTokens,
		Temperature:    cfg.Responder.Temperature,
		SystemPrompt:   cfg.Prompts.ResponderSystem,
		Template:       cfg.Prompts.Responder,
		MaxRefinements: cfg.Responder.MaxRefinements,
		Timeout:        cfg.Timeouts.Generation,
	}, logger)

	return &App{
		Config:   cfg,
		Pipeline: pipeline.New(rt, ret, resp, pipeline.Config{TopK: cfg.Retrieval.TopK}, logger),
		Store:    o.store,
		embedder: o.embedder,
		processor: processor.NewWithConfig(processor.ProcessorConfig{
			ChunkSize:       cfg.Processor.ChunkSize,
			ChunkOverlap:    cfg.Processor.ChunkOverlap,
			MinChunkLength:  cfg.Processor.MinChunkLength,
			RemoveStopwords: cfg.Processor.RemoveStopwords,
			StripMarkup:     true,
		}),
		logger: logger,
	}, nil
}

func newChatEngine(cfg *config.Config, model string, logger *zap.Logger) (*llm.ChatEngine, error) {
	engine, err := llm.NewWithConfig(llm.ChatConfig{
		Provider: cfg.LLM.Provider,
		Model:    model,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey(),
		Timeout:  cfg.Timeouts.Generation,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine %s: %w", model, err)
	}
	return engine, nil
}

// Resolve answers one query.
func (a *App) Resolve(ctx context.Context, query string) (pipeline.Result, error) {
	return a.Pipeline.Resolve(ctx, query)
}

// Ingest chunks, embeds and stores docs. progress may be nil.
func (a *App) Ingest(ctx context.Context, docs []models.Document, progress func(done, total int)) (ingest.Stats, error) {
	in := ingest.New(a.processor, a.embedder, a.Store, ingest.Config{
		Collection: a.Config.VectorStore.Collection,
		VectorDim:  a.Config.VectorStore.VectorDim,
		BatchSize:  a.Config.VectorStore.BatchSize,
	}, a.logger)
	in.OnProgress = progress
	return in.Ingest(ctx, docs)
}

// LoadPath loads a CSV or document file, or every watched file under a
// directory.
func (a *App) LoadPath(path string) ([]models.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return ingest.LoadDir(path, a.Config.Ingest.WatchExtensions)
	}
	return ingest.LoadPath(path)
}

// Scrape crawls a documentation site. onPage is called for every page
// visited and may be nil.
func (a *App) Scrape(ctx context.Context, url string, onPage func(url string)) ([]models.Document, error) {
	s, err := scraper.NewWithConfig(scraper.ScraperConfig{
		BaseURL:           url,
		MaxDepth:          a.Config.Scraper.MaxDepth,
		RateLimit:         a.Config.Scraper.RateLimit,
		IgnorePatterns:    a.Config.Scraper.IgnorePatterns,
		AllowedExtensions: a.Config.Scraper.AllowedExtensions,
		Timeout:           a.Config.Scraper.Timeout,
		OnProgress:        onPage,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scraper: %w", err)
	}
	return s.Scrape(ctx, url)
}

// IngestURL scrapes url and ingests the pages it finds.
func (a *App) IngestURL(ctx context.Context, url string, progress func(done, total int)) (ingest.Stats, error) {
	docs, err := a.Scrape(ctx, url, nil)
	if err != nil {
		return ingest.Stats{}, err
	}
	return a.Ingest(ctx, docs, progress)
}

// Watch re-ingests files created or modified under the data directory
// until ctx is done.
func (a *App) Watch(ctx context.Context) error {
	w, err := ingest.NewWatcher(a.Config.Ingest.WatchExtensions, a.Config.Ingest.Debounce,
		func(ctx context.Context, path string) error {
			docs, err := ingest.LoadPath(path)
			if err != nil {
				return err
			}
			_, err = a.Ingest(ctx, docs, nil)
			return err
		}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Close()
	return w.Watch(ctx, a.Config.Ingest.DataDir)
}

func (a *App) Close() error {
	return a.Store.Close()
}

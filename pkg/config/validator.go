package config

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap/zapcore"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	add := func(field, msg string) {
		errors = append(errors, ValidationError{Field: field, Message: msg})
	}

	// Validate LLM config
	switch c.LLM.Provider {
	case "ollama":
		if c.LLM.BaseURL == "" {
			add("llm.base_url", "Ollama base URL is required")
		}
	case "openai":
		if c.LLM.APIKeyEnv == "" {
			add("llm.api_key_env", "api_key_env is required for the openai provider")
		}
	default:
		add("llm.provider", fmt.Sprintf("unknown provider: %s", c.LLM.Provider))
	}
	if c.LLM.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.LLM.BaseURL); err != nil {
			add("llm.base_url", "invalid base URL")
		}
	}

	validateModel := func(section, model string, maxTokens int, temperature float64) {
		if model == "" {
			add(section+".model", "model is required")
		}
		if maxTokens < 1 || maxTokens > 8192 {
			add(section+".max_tokens", "max_tokens must be between 1 and 8192")
		}
		if temperature < 0 || temperature > 2 {
			add(section+".temperature", "temperature must be between 0 and 2")
		}
	}
	validateModel("router", c.Router.Model, c.Router.MaxTokens, c.Router.Temperature)
	validateModel("responder", c.Responder.Model, c.Responder.MaxTokens, c.Responder.Temperature)

	if c.Router.ContextK < 1 {
		add("router.context_k", "context_k must be positive")
	}
	if c.Responder.MaxRefinements < 0 || c.Responder.MaxRefinements > 1 {
		add("responder.max_refinements", "max_refinements must be 0 or 1")
	}

	// Validate embedding config
	if c.Embedding.Provider != "ollama" && c.Embedding.Provider != "openai" {
		add("embedding.provider", fmt.Sprintf("unknown provider: %s", c.Embedding.Provider))
	}
	if c.Embedding.Model == "" {
		add("embedding.model", "model is required")
	}
	if c.Embedding.BatchSize < 1 {
		add("embedding.batch_size", "batch_size must be positive")
	}

	// Validate vector store config
	switch c.VectorStore.Type {
	case "pgvector", "qdrant":
		if c.VectorStore.URL == "" {
			add("vector_store.url", "url is required")
		} else if _, err := url.Parse(c.VectorStore.URL); err != nil {
			add("vector_store.url", "invalid vector store URL")
		}
	case "memory":
	default:
		add("vector_store.type", fmt.Sprintf("unknown vector store: %s", c.VectorStore.Type))
	}
	if c.VectorStore.Collection == "" {
		add("vector_store.collection", "collection is required")
	}
	if c.VectorStore.VectorDim < 1 {
		add("vector_store.vector_dim", "vector_dim must be positive")
	}
	if c.VectorStore.BatchSize < 1 {
		add("vector_store.batch_size", "batch_size must be positive")
	}

	if c.Retrieval.TopK < 1 {
		add("retrieval.top_k", "top_k must be positive")
	}

	if c.Timeouts.Embedding <= 0 || c.Timeouts.Store <= 0 || c.Timeouts.Generation <= 0 {
		add("timeouts", "all timeouts must be positive")
	}

	// Validate prompts
	if !strings.Contains(c.Prompts.Router, "{query}") {
		add("prompts.router", "router prompt must contain {query}")
	}
	if !strings.Contains(c.Prompts.Responder, "{query}") || !strings.Contains(c.Prompts.Responder, "{context}") {
		add("prompts.responder", "responder prompt must contain {query} and {context}")
	}
	options := []string{c.Prompts.AnswerOption, c.Prompts.ClarifyOption, c.Prompts.RejectOption}
	seen := make(map[string]bool)
	for _, opt := range options {
		key := strings.ToUpper(strings.TrimSpace(opt))
		if key == "" || seen[key] {
			add("prompts.options", "classification option labels must be non-empty and distinct")
			break
		}
		seen[key] = true
	}

	// Validate Scraper config
	if c.Scraper.MaxDepth < 1 {
		add("scraper.max_depth", "max_depth must be positive")
	}
	if c.Scraper.RateLimit <= 0 {
		add("scraper.rate_limit", "rate_limit must be positive")
	}
	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			add("scraper.allowed_extensions", fmt.Sprintf("invalid extension format: %s", ext))
		}
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 1 {
		add("processor.chunk_size", "chunk_size must be positive")
	}
	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		add("processor.chunk_overlap", "chunk_overlap must be non-negative and less than chunk_size")
	}

	if c.Server.MaxMessageLen < 1 {
		add("server.max_message_len", "max_message_len must be positive")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		add("log.level", fmt.Sprintf("invalid log level: %s", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		add("log.format", "format must be json or console")
	}

	switch c.UI.Theme {
	case "default", "ascii", "plain":
	default:
		add("ui.theme", fmt.Sprintf("unknown theme: %s", c.UI.Theme))
	}

	return errors
}

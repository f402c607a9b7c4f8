package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	// Provider is "ollama" or "openai". The openai provider also serves
	// OpenAI-compatible endpoints such as OpenRouter.
	Provider  string `yaml:"provider" toml:"provider"`
	BaseURL   string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env" toml:"api_key_env"`
}

// APIKey reads the key from the environment variable named by APIKeyEnv.
func (c LLMConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

type RouterConfig struct {
	Model       string  `yaml:"model" toml:"model"`
	MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens"`
	Temperature float64 `yaml:"temperature" toml:"temperature"`
	// UseContext lets the router look up supporting snippets before classifying.
	UseContext bool `yaml:"use_context" toml:"use_context"`
	ContextK   int  `yaml:"context_k" toml:"context_k"`
}

type ResponderConfig struct {
	Model          string  `yaml:"model" toml:"model"`
	MaxTokens      int     `yaml:"max_tokens" toml:"max_tokens"`
	Temperature    float64 `yaml:"temperature" toml:"temperature"`
	MaxRefinements int     `yaml:"max_refinements" toml:"max_refinements"`
}

type EmbeddingConfig struct {
	Provider       string `yaml:"provider" toml:"provider"`
	Model          string `yaml:"model" toml:"model"`
	BaseURL        string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env" toml:"api_key_env"`
	QueryPrefix    string `yaml:"query_prefix" toml:"query_prefix"`
	DocumentPrefix string `yaml:"document_prefix" toml:"document_prefix"`
	BatchSize      int    `yaml:"batch_size" toml:"batch_size"`
}

type VectorStoreConfig struct {
	// Type is "pgvector", "qdrant" or "memory".
	Type       string `yaml:"type" toml:"type"`
	URL        string `yaml:"url" toml:"url"`
	APIKeyEnv  string `yaml:"api_key_env" toml:"api_key_env"`
	Collection string `yaml:"collection" toml:"collection"`
	VectorDim  int    `yaml:"vector_dim" toml:"vector_dim"`
	BatchSize  int    `yaml:"batch_size" toml:"batch_size"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k" toml:"top_k"`
}

type TimeoutsConfig struct {
	Embedding  time.Duration `yaml:"embedding" toml:"embedding"`
	Store      time.Duration `yaml:"store" toml:"store"`
	Generation time.Duration `yaml:"generation" toml:"generation"`
}

// PromptsConfig holds the prompt templates. Templates use the placeholders
// {query}, {context}, {answer_option}, {clarify_option} and {reject_option}.
type PromptsConfig struct {
	RouterSystem    string `yaml:"router_system" toml:"router_system"`
	Router          string `yaml:"router" toml:"router"`
	ResponderSystem string `yaml:"responder_system" toml:"responder_system"`
	Responder       string `yaml:"responder" toml:"responder"`
	AnswerOption    string `yaml:"answer_option" toml:"answer_option"`
	ClarifyOption   string `yaml:"clarify_option" toml:"clarify_option"`
	RejectOption    string `yaml:"reject_option" toml:"reject_option"`
}

type ScraperConfig struct {
	MaxDepth          int           `yaml:"max_depth" toml:"max_depth"`
	RateLimit         float64       `yaml:"rate_limit" toml:"rate_limit"`
	IgnorePatterns    []string      `yaml:"ignore_patterns" toml:"ignore_patterns"`
	AllowedExtensions []string      `yaml:"allowed_extensions" toml:"allowed_extensions"`
	Timeout           time.Duration `yaml:"timeout" toml:"timeout"`
}

type ProcessorConfig struct {
	ChunkSize       int  `yaml:"chunk_size" toml:"chunk_size"`
	ChunkOverlap    int  `yaml:"chunk_overlap" toml:"chunk_overlap"`
	MinChunkLength  int  `yaml:"min_chunk_length" toml:"min_chunk_length"`
	RemoveStopwords bool `yaml:"remove_stopwords" toml:"remove_stopwords"`
}

type IngestConfig struct {
	DataDir         string        `yaml:"data_dir" toml:"data_dir"`
	CSVPath         string        `yaml:"csv_path" toml:"csv_path"`
	WatchExtensions []string      `yaml:"watch_extensions" toml:"watch_extensions"`
	Debounce        time.Duration `yaml:"debounce" toml:"debounce"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr" toml:"addr"`
	CORSOrigins    []string      `yaml:"cors_origins" toml:"cors_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout" toml:"request_timeout"`
	MaxMessageLen  int           `yaml:"max_message_len" toml:"max_message_len"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

type UIConfig struct {
	// Theme is "default", "ascii" or "plain". Plain disables colors.
	Theme string `yaml:"theme" toml:"theme"`
}

type Config struct {
	LLM         LLMConfig         `yaml:"llm" toml:"llm"`
	Router      RouterConfig      `yaml:"router" toml:"router"`
	Responder   ResponderConfig   `yaml:"responder" toml:"responder"`
	Embedding   EmbeddingConfig   `yaml:"embedding" toml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" toml:"retrieval"`
	Timeouts    TimeoutsConfig    `yaml:"timeouts" toml:"timeouts"`
	Prompts     PromptsConfig     `yaml:"prompts" toml:"prompts"`
	Scraper     ScraperConfig     `yaml:"scraper" toml:"scraper"`
	Processor   ProcessorConfig   `yaml:"processor" toml:"processor"`
	Ingest      IngestConfig      `yaml:"ingest" toml:"ingest"`
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Log         LogConfig         `yaml:"log" toml:"log"`
	UI          UIConfig          `yaml:"ui" toml:"ui"`
}

// LoadConfig reads the config at path, or the first file found in the
// default locations when path is empty. Values missing from the file keep
// their defaults, then environment overrides are applied. A .env file in the
// working directory is loaded first when present. Options run after the
// environment overrides and before the built-in defaults.
func LoadConfig(path string, opts ...Option) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			"config.toml",
			filepath.Join(os.Getenv("HOME"), ".config/askflare/config.yaml"),
			"/etc/askflare/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig(opts...)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := baseConfig()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(config)
	for _, opt := range opts {
		opt(config)
	}
	applyDefaults(config)

	return config, nil
}

func getDefaultConfig(opts ...Option) (*Config, error) {
	config := baseConfig()
	mergeWithEnv(config)
	for _, opt := range opts {
		opt(config)
	}
	applyDefaults(config)
	return config, nil
}

// Option adjusts a loaded configuration.
type Option func(*Config)

// WithLogDefaults sets the log level and format used when neither the file
// nor the environment sets them.
func WithLogDefaults(level, format string) Option {
	return func(c *Config) {
		if c.Log.Level == "" {
			c.Log.Level = level
		}
		if c.Log.Format == "" {
			c.Log.Format = format
		}
	}
}

// Default returns a fully populated configuration for a local Ollama +
// pgvector setup.
func Default() *Config {
	config := baseConfig()
	applyDefaults(config)
	return config
}

// baseConfig holds the defaults whose zero value is meaningful, so a file
// can still set them to false or 0.
func baseConfig() *Config {
	config := &Config{}
	config.Router.UseContext = true
	config.Responder.Temperature = 0.7
	config.Responder.MaxRefinements = 1
	return config
}

// applyDefaults fills settings that have no meaningful zero value.
func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "ollama"
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.APIKeyEnv == "" && config.LLM.Provider == "openai" {
		config.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}

	if config.Router.Model == "" {
		config.Router.Model = "mistral"
	}
	if config.Router.MaxTokens == 0 {
		config.Router.MaxTokens = 50
	}
	if config.Router.ContextK == 0 {
		config.Router.ContextK = 5
	}

	if config.Responder.Model == "" {
		config.Responder.Model = "mistral"
	}
	if config.Responder.MaxTokens == 0 {
		config.Responder.MaxTokens = 2000
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = config.LLM.Provider
	}
	if config.Embedding.BaseURL == "" {
		config.Embedding.BaseURL = config.LLM.BaseURL
	}
	if config.Embedding.APIKeyEnv == "" {
		config.Embedding.APIKeyEnv = config.LLM.APIKeyEnv
	}
	if config.Embedding.Model == "" {
		config.Embedding.Model = "nomic-embed-text:latest"
	}
	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 32
	}

	if config.VectorStore.Type == "" {
		config.VectorStore.Type = "pgvector"
	}
	if config.VectorStore.Collection == "" {
		config.VectorStore.Collection = "documents"
	}
	if config.VectorStore.VectorDim == 0 {
		config.VectorStore.VectorDim = 768
	}
	if config.VectorStore.BatchSize == 0 {
		config.VectorStore.BatchSize = 100
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 5
	}

	if config.Timeouts.Embedding == 0 {
		config.Timeouts.Embedding = 30 * time.Second
	}
	if config.Timeouts.Store == 0 {
		config.Timeouts.Store = 10 * time.Second
	}
	if config.Timeouts.Generation == 0 {
		config.Timeouts.Generation = 120 * time.Second
	}

	if config.Prompts.RouterSystem == "" {
		config.Prompts.RouterSystem = DefaultRouterSystemPrompt
	}
	if config.Prompts.Router == "" {
		config.Prompts.Router = DefaultRouterPrompt
	}
	if config.Prompts.ResponderSystem == "" {
		config.Prompts.ResponderSystem = DefaultResponderSystemPrompt
	}
	if config.Prompts.Responder == "" {
		config.Prompts.Responder = DefaultResponderPrompt
	}
	if config.Prompts.AnswerOption == "" {
		config.Prompts.AnswerOption = "ANSWER"
	}
	if config.Prompts.ClarifyOption == "" {
		config.Prompts.ClarifyOption = "CLARIFY"
	}
	if config.Prompts.RejectOption == "" {
		config.Prompts.RejectOption = "REJECT"
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 3
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}
	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 30 * time.Second
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 200
	}
	if config.Processor.MinChunkLength == 0 {
		config.Processor.MinChunkLength = 100
	}

	if config.Ingest.DataDir == "" {
		config.Ingest.DataDir = "data"
	}
	if len(config.Ingest.WatchExtensions) == 0 {
		config.Ingest.WatchExtensions = []string{".csv", ".md", ".mdx", ".txt"}
	}
	if config.Ingest.Debounce == 0 {
		config.Ingest.Debounce = 500 * time.Millisecond
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if len(config.Server.CORSOrigins) == 0 {
		config.Server.CORSOrigins = []string{"*"}
	}
	if config.Server.RequestTimeout == 0 {
		config.Server.RequestTimeout = 5 * time.Minute
	}
	if config.Server.MaxMessageLen == 0 {
		config.Server.MaxMessageLen = 4000
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "json"
	}

	if config.UI.Theme == "" {
		config.UI.Theme = "default"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
		if config.Embedding.Provider == "" || config.Embedding.Provider == "ollama" {
			config.Embedding.BaseURL = baseURL
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" && config.VectorStore.Type != "qdrant" {
		config.VectorStore.URL = dbURL
	}
	if qdrantURL := os.Getenv("QDRANT_URL"); qdrantURL != "" && config.VectorStore.Type == "qdrant" {
		config.VectorStore.URL = qdrantURL
	}
	if collection := os.Getenv("ASKFLARE_COLLECTION"); collection != "" {
		config.VectorStore.Collection = collection
	}
	if level := os.Getenv("ASKFLARE_LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}

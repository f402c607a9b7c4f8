package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/xhad/askflare/internal/errs"
	"github.com/xhad/askflare/internal/types"
	"go.uber.org/zap"
)

// ErrEmptyCompletion is returned when the provider answers without any choices.
var ErrEmptyCompletion = errors.New("no response from LLM")

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	// Provider is "ollama" or "openai".
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	// Timeout bounds every Complete call. Zero means 120s.
	Timeout time.Duration
}

// ChatEngine sends prompts to a chat model and returns the completion text.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
	logger *zap.Logger
}

var _ types.Generator = (*ChatEngine)(nil)

// NewWithConfig creates a new ChatEngine backed by the configured provider.
func NewWithConfig(config ChatConfig, logger *zap.Logger) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = "mistral"
	}

	var (
		model llms.Model
		err   error
	)
	switch config.Provider {
	case "", "ollama":
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		model, err = ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
	case "openai":
		opts := []openai.Option{openai.WithModel(config.Model), openai.WithToken(config.APIKey)}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return New(model, config, logger), nil
}

// New wraps an existing model.
func New(model llms.Model, config ChatConfig, logger *zap.Logger) *ChatEngine {
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatEngine{
		config: config,
		llm:    model,
		logger: logger.With(zap.String("model", config.Model)),
	}
}

// Complete generates a completion for req. Any provider failure, including
// the timeout, is reported as a generation error.
func (ce *ChatEngine) Complete(ctx context.Context, req types.GenerateRequest) (string, error) {
	const op = "llm.Complete"

	ctx, cancel := context.WithTimeout(ctx, ce.config.Timeout)
	defer cancel()

	var content []llms.MessageContent
	if req.System != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	var opts []llms.CallOption
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	opts = append(opts, llms.WithTemperature(req.Temperature))
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}

	start := time.Now()
	response, err := ce.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		ce.logger.Warn("generation failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return "", errs.E(errs.KindGeneration, op, err)
	}
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", errs.E(errs.KindGeneration, op, ErrEmptyCompletion)
	}

	ce.logger.Debug("generation complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chars", len(response.Choices[0].Content)))

	return response.Choices[0].Content, nil
}

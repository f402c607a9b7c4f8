package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/xhad/askflare/internal/errs"
	"github.com/xhad/askflare/internal/types"
	"github.com/xhad/askflare/pkg/llm"
	"go.uber.org/zap"
)

type fakeModel struct {
	reply    string
	err      error
	delay    time.Duration
	messages []llms.MessageContent
	options  llms.CallOptions
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, opt := range options {
		opt(&m.options)
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestNewWithConfig(t *testing.T) {
	engine, err := llm.NewWithConfig(llm.ChatConfig{
		Model:   "testmodel",
		BaseURL: "http://localhost:1234",
	}, zap.NewNop())
	assert.NoError(t, err)
	assert.NotNil(t, engine)

	_, err = llm.NewWithConfig(llm.ChatConfig{Provider: "bard"}, nil)
	assert.Error(t, err)
}

func TestComplete(t *testing.T) {
	model := &fakeModel{reply: "Flare is an EVM blockchain."}
	engine := llm.New(model, llm.ChatConfig{Model: "mistral"}, zap.NewNop())

	out, err := engine.Complete(context.Background(), types.GenerateRequest{
		System:      "be brief",
		Prompt:      "What is Flare?",
		MaxTokens:   100,
		Temperature: 0.3,
		JSON:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Flare is an EVM blockchain.", out)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, 100, model.options.MaxTokens)
	assert.Equal(t, 0.3, model.options.Temperature)
	assert.True(t, model.options.JSONMode)
}

func TestCompleteWithoutSystemPrompt(t *testing.T) {
	model := &fakeModel{reply: "ok"}
	engine := llm.New(model, llm.ChatConfig{}, nil)

	_, err := engine.Complete(context.Background(), types.GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	require.Len(t, model.messages, 1)
	assert.False(t, model.options.JSONMode)
}

func TestCompleteProviderError(t *testing.T) {
	engine := llm.New(&fakeModel{err: errors.New("connection refused")}, llm.ChatConfig{}, zap.NewNop())

	_, err := engine.Complete(context.Background(), types.GenerateRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrGeneration)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCompleteTimeout(t *testing.T) {
	model := &fakeModel{reply: "late", delay: time.Second}
	engine := llm.New(model, llm.ChatConfig{Timeout: 20 * time.Millisecond}, zap.NewNop())

	_, err := engine.Complete(context.Background(), types.GenerateRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrGeneration)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

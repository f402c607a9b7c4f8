package main

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/askflare/internal/app"
	"github.com/xhad/askflare/internal/types"
	"github.com/xhad/askflare/pkg/config"
	"go.uber.org/zap"
)

type countingGenerator struct {
	mu    sync.Mutex
	reply string
	calls int
}

func (g *countingGenerator) Complete(context.Context, types.GenerateRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.reply, nil
}

type flatEmbedder struct{}

func (flatEmbedder) Embed(context.Context, string, types.EmbedMode) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (flatEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestChatLoop(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Type = "memory"
	cfg.VectorStore.VectorDim = 2
	cfg.Router.UseContext = false

	router := &countingGenerator{reply: `{"classification": "REJECT"}`}
	responder := &countingGenerator{reply: "unused"}
	a, err := app.New(context.Background(), cfg, zap.NewNop(),
		app.WithGenerators(router, responder),
		app.WithEmbedder(flatEmbedder{}))
	require.NoError(t, err)
	defer a.Close()

	input := strings.NewReader("What is the weather?\n\n   \nEXIT\nnever read\n")
	require.NoError(t, chat(context.Background(), a, input))

	assert.Equal(t, 1, router.calls)
	assert.Equal(t, 0, responder.calls)
}

func TestChatLoopEndsAtEOF(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Type = "memory"
	cfg.VectorStore.VectorDim = 2

	a, err := app.New(context.Background(), cfg, zap.NewNop(),
		app.WithGenerators(&countingGenerator{}, &countingGenerator{}),
		app.WithEmbedder(flatEmbedder{}))
	require.NoError(t, err)
	defer a.Close()

	assert.NoError(t, chat(context.Background(), a, strings.NewReader("")))
}

func TestUseTheme(t *testing.T) {
	noColor := color.NoColor
	t.Cleanup(func() {
		color.NoColor = noColor
		theme = themes["default"]
	})

	useTheme("ascii")
	assert.Equal(t, "=", theme.bar.Saucer)
	assert.True(t, theme.colors)

	useTheme("plain")
	assert.False(t, theme.colors)
	assert.True(t, color.NoColor)

	useTheme("neon")
	assert.Equal(t, themes["default"], theme)
}

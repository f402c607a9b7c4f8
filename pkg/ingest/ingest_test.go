package ingest_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/askflare/internal/errs"
	"github.com/xhad/askflare/internal/models"
	"github.com/xhad/askflare/internal/types"
	"github.com/xhad/askflare/pkg/ingest"
	"github.com/xhad/askflare/pkg/processor"
	"github.com/xhad/askflare/pkg/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// wordEmbedder maps text onto three keyword axes.
type wordEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  string
	dim   int
}

func (e *wordEmbedder) vector(text string) []float32 {
	text = strings.ToLower(text)
	v := []float32{0.01, 0.01, 0.01}
	for i, word := range []string{"flare", "staking", "ftso"} {
		v[i] += float32(strings.Count(text, word))
	}
	if e.dim > 0 {
		return v[:e.dim]
	}
	return v
}

func (e *wordEmbedder) Embed(_ context.Context, text string, _ types.EmbedMode) ([]float32, error) {
	return e.vector(text), nil
}

func (e *wordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if e.fail != "" && strings.Contains(text, e.fail) {
			return nil, errs.E(errs.KindEmbedding, "embed", errors.New("provider down"))
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

type failingWriter struct {
	*store.MemoryStore
}

func (failingWriter) Upsert(context.Context, string, []models.Point) error {
	return errors.New("disk full")
}

func newProcessor() *processor.Processor {
	return processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 200, ChunkOverlap: 20, MinChunkLength: 10})
}

var corpus = []models.Document{
	{Source: "intro.mdx", Title: "Introduction", Author: "Alice", Content: "Flare is the blockchain for data. Flare has enshrined oracles."},
	{Source: "empty.mdx", Content: "   "},
	{Source: "staking.mdx", URL: "https://dev.flare.network/staking", Content: "Staking secures the network. Delegators earn staking rewards."},
	{Source: "ftso.mdx", Content: "The FTSO delivers decentralized price feeds."},
}

func TestIngestWritesChunks(t *testing.T) {
	mem := store.NewMemory()
	in := ingest.New(newProcessor(), &wordEmbedder{}, mem, ingest.Config{Collection: "docs", VectorDim: 3, BatchSize: 2}, zap.NewNop())

	var progress []int
	in.OnProgress = func(done, total int) {
		assert.Equal(t, len(corpus), total)
		progress = append(progress, done)
	}

	stats, err := in.Ingest(context.Background(), corpus)
	require.NoError(t, err)
	assert.Equal(t, ingest.Stats{Documents: 3, Skipped: 1, Chunks: 3}, stats)
	assert.Equal(t, []int{1, 2, 3, 4}, progress)
	assert.Equal(t, 3, mem.Len("docs"))

	hits, err := mem.Search(context.Background(), "docs", []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, ingest.PointID("staking.mdx", 0), hits[0].ID)
	assert.Equal(t, "staking.mdx", hits[0].Payload["source"])
	assert.Equal(t, "staking.mdx", hits[0].Payload["filename"])
	assert.Equal(t, "https://dev.flare.network/staking", hits[0].Payload["url"])
	assert.Equal(t, 0, hits[0].Payload["chunk_index"])
	assert.Contains(t, hits[0].Payload["text"], "Delegators earn")
	assert.NotContains(t, hits[0].Payload, "title")
}

func TestIngestIsIdempotent(t *testing.T) {
	mem := store.NewMemory()
	in := ingest.New(newProcessor(), &wordEmbedder{}, mem, ingest.Config{Collection: "docs", VectorDim: 3}, nil)

	_, err := in.Ingest(context.Background(), corpus)
	require.NoError(t, err)
	_, err = in.Ingest(context.Background(), corpus)
	require.NoError(t, err)

	assert.Equal(t, 3, mem.Len("docs"))
}

func TestIngestSkipsFailedEmbeddings(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	mem := store.NewMemory()
	in := ingest.New(newProcessor(), &wordEmbedder{fail: "FTSO"}, mem, ingest.Config{Collection: "docs", VectorDim: 3}, zap.New(core))

	stats, err := in.Ingest(context.Background(), corpus)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, mem.Len("docs"))

	failed := logs.FilterMessage("failed to embed document").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "ftso.mdx", failed[0].ContextMap()["source"])
	assert.Equal(t, 1, logs.FilterMessage("skipping document without content").Len())
}

func TestIngestRejectsWrongDimension(t *testing.T) {
	mem := store.NewMemory()
	in := ingest.New(newProcessor(), &wordEmbedder{dim: 2}, mem, ingest.Config{Collection: "docs", VectorDim: 3}, nil)

	stats, err := in.Ingest(context.Background(), corpus)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Documents)
	assert.Equal(t, 3, stats.Failed)
	assert.Equal(t, 0, mem.Len("docs"))
}

func TestIngestStoreFailureAborts(t *testing.T) {
	w := failingWriter{store.NewMemory()}
	in := ingest.New(newProcessor(), &wordEmbedder{}, w, ingest.Config{Collection: "docs", VectorDim: 3}, nil)

	_, err := in.Ingest(context.Background(), corpus)
	require.Error(t, err)
	assert.Equal(t, errs.KindStore, errs.KindOf(err))
}

func TestIngestProvisionFailure(t *testing.T) {
	in := ingest.New(newProcessor(), &wordEmbedder{}, store.NewMemory(), ingest.Config{Collection: "docs"}, nil)

	_, err := in.Ingest(context.Background(), corpus)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrStore)
}

func TestIngestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := ingest.New(newProcessor(), &wordEmbedder{}, store.NewMemory(), ingest.Config{Collection: "docs", VectorDim: 3}, nil)
	_, err := in.Ingest(ctx, corpus)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPointIDStable(t *testing.T) {
	assert.Equal(t, ingest.PointID("a.mdx", 0), ingest.PointID("a.mdx", 0))
	assert.NotEqual(t, ingest.PointID("a.mdx", 0), ingest.PointID("a.mdx", 1))
	assert.Len(t, ingest.PointID("a.mdx", 0), 36)
}

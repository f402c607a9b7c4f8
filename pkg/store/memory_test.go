package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/askflare/internal/errs"
	"github.com/xhad/askflare/internal/models"
	"github.com/xhad/askflare/pkg/config"
	"github.com/xhad/askflare/pkg/store"
)

func TestMemoryStoreSearch(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.EnsureCollection(ctx, "docs", 2))

	require.NoError(t, s.Upsert(ctx, "docs", []models.Point{
		{ID: "x", Vector: []float32{1, 0}, Payload: map[string]interface{}{"text": "x"}},
		{ID: "y", Vector: []float32{0, 1}, Payload: map[string]interface{}{"text": "y"}},
		{ID: "z", Vector: []float32{1, 1}, Payload: map[string]interface{}{"text": "z"}},
	}))

	hits, err := s.Search(ctx, "docs", []float32{1, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "x", hits[0].ID)
	assert.Equal(t, "z", hits[1].ID)
	assert.InDelta(t, 0.995, hits[0].Score, 0.01)
}

func TestMemoryStoreTiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.EnsureCollection(ctx, "docs", 2))
	require.NoError(t, s.Upsert(ctx, "docs", []models.Point{
		{ID: "first", Vector: []float32{1, 0}},
		{ID: "second", Vector: []float32{2, 0}},
	}))

	hits, err := s.Search(ctx, "docs", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "first", hits[0].ID)
	assert.Equal(t, "second", hits[1].ID)
}

func TestMemoryStoreUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.EnsureCollection(ctx, "docs", 2))

	require.NoError(t, s.Upsert(ctx, "docs", []models.Point{{ID: "a", Vector: []float32{1, 0}}}))
	require.NoError(t, s.Upsert(ctx, "docs", []models.Point{{ID: "a", Vector: []float32{0, 1}, Payload: map[string]interface{}{"text": "new"}}}))
	assert.Equal(t, 1, s.Len("docs"))

	hits, err := s.Search(ctx, "docs", []float32{0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, "new", hits[0].Payload["text"])
}

func TestMemoryStoreErrors(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	_, err := s.Search(ctx, "missing", []float32{1}, 1)
	assert.ErrorIs(t, err, errs.ErrStore)

	require.NoError(t, s.EnsureCollection(ctx, "docs", 2))
	err = s.Upsert(ctx, "docs", []models.Point{{ID: "a", Vector: []float32{1, 0, 0}}})
	assert.ErrorIs(t, err, errs.ErrStore)

	assert.Error(t, s.EnsureCollection(ctx, "bad", 0))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Search(cancelled, "docs", []float32{1, 0}, 1)
	assert.ErrorIs(t, err, errs.ErrStore)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.EnsureCollection(ctx, "docs", 2))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Upsert(ctx, "docs", []models.Point{{ID: fmt.Sprint(i), Vector: []float32{float32(i), 1}}})
			_, err := s.Search(ctx, "docs", []float32{1, 1}, 3)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, s.Len("docs"))
}

func TestOpen(t *testing.T) {
	s, err := store.Open(context.Background(), config.VectorStoreConfig{Type: "memory"}, 0, nil)
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, s)

	s, err = store.Open(context.Background(), config.VectorStoreConfig{Type: "qdrant", URL: "http://localhost:6333"}, 0, nil)
	require.NoError(t, err)
	assert.IsType(t, &store.QdrantStore{}, s)

	_, err = store.Open(context.Background(), config.VectorStoreConfig{Type: "faiss"}, 0, nil)
	assert.Error(t, err)
}

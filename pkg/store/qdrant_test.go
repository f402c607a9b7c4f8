package store_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/askflare/internal/errs"
	"github.com/xhad/askflare/internal/models"
	"github.com/xhad/askflare/pkg/store"
	"go.uber.org/zap"
)

func TestQdrantSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/collections/flare/points/search", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("api-key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(2), body["limit"])
		assert.Equal(t, true, body["with_payload"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":[
			{"id":"6f1c","score":0.91,"payload":{"text":"Flare overview","source":"1-intro.mdx"}},
			{"id":7,"score":0.52,"payload":null}
		],"status":"ok"}`))
	}))
	defer srv.Close()

	s := store.NewQdrant(store.QdrantConfig{URL: srv.URL + "/", APIKey: "secret"}, zap.NewNop())
	hits, err := s.Search(context.Background(), "flare", []float32{0.1, 0.2}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "6f1c", hits[0].ID)
	assert.Equal(t, 0.91, hits[0].Score)
	assert.Equal(t, "1-intro.mdx", hits[0].Payload["source"])
	assert.Equal(t, "7", hits[1].ID)
	assert.Nil(t, hits[1].Payload)
}

func TestQdrantSearchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"error":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := store.NewQdrant(store.QdrantConfig{URL: srv.URL}, nil)
	_, err := s.Search(context.Background(), "flare", []float32{1}, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrStore)
	assert.Contains(t, err.Error(), "boom")
}

func TestQdrantTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	s := store.NewQdrant(store.QdrantConfig{URL: srv.URL, Timeout: 20 * time.Millisecond}, nil)
	_, err := s.Search(context.Background(), "flare", []float32{1}, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrStore)
}

func TestQdrantEnsureCollectionCreatesMissing(t *testing.T) {
	var created map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			http.NotFound(w, r)
		case http.MethodPut:
			assert.Equal(t, "/collections/flare", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			_, _ = w.Write([]byte(`{"result":true}`))
		}
	}))
	defer srv.Close()

	s := store.NewQdrant(store.QdrantConfig{URL: srv.URL}, nil)
	require.NoError(t, s.EnsureCollection(context.Background(), "flare", 768))

	vectors := created["vectors"].(map[string]any)
	assert.Equal(t, float64(768), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestQdrantEnsureCollectionExisting(t *testing.T) {
	puts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			puts++
		}
		_, _ = w.Write([]byte(`{"result":{"status":"green"}}`))
	}))
	defer srv.Close()

	s := store.NewQdrant(store.QdrantConfig{URL: srv.URL}, nil)
	require.NoError(t, s.EnsureCollection(context.Background(), "flare", 768))
	assert.Zero(t, puts)
}

func TestQdrantUpsert(t *testing.T) {
	var body struct {
		Points []struct {
			ID      string         `json:"id"`
			Vector  []float32      `json:"vector"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/collections/flare/points", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	}))
	defer srv.Close()

	s := store.NewQdrant(store.QdrantConfig{URL: srv.URL}, nil)
	err := s.Upsert(context.Background(), "flare", []models.Point{
		{ID: "1b4e28ba-2fa1-11d2-883f-0016d3cca427", Vector: []float32{0.5, 0.5}, Payload: map[string]any{"text": "hello"}},
	})
	require.NoError(t, err)
	require.Len(t, body.Points, 1)
	assert.Equal(t, "1b4e28ba-2fa1-11d2-883f-0016d3cca427", body.Points[0].ID)
	assert.Equal(t, "hello", body.Points[0].Payload["text"])
}

func TestQdrantPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/readyz", r.URL.Path)
	}))
	defer srv.Close()

	assert.NoError(t, store.NewQdrant(store.QdrantConfig{URL: srv.URL}, nil).Ping(context.Background()))
}

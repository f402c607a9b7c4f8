package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xhad/askflare/internal/errs"
	"github.com/xhad/askflare/internal/models"
	"go.uber.org/zap"
)

type QdrantConfig struct {
	URL    string
	APIKey string
	// Timeout bounds every request. Zero means 10s.
	Timeout time.Duration
}

// QdrantStore is a minimal REST client to Qdrant. Collections use cosine
// distance and point IDs must be UUIDs or unsigned integers.
type QdrantStore struct {
	url    string
	apiKey string
	client *http.Client
	logger *zap.Logger
}

func NewQdrant(config QdrantConfig, logger *zap.Logger) *QdrantStore {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QdrantStore{
		url:    strings.TrimRight(config.URL, "/"),
		apiKey: config.APIKey,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("store", "qdrant")),
	}
}

func (s *QdrantStore) collectionURL(collection string, parts ...string) string {
	u := s.url + "/collections/" + url.PathEscape(collection)
	for _, p := range parts {
		u += "/" + p
	}
	return u
}

// EnsureCollection creates the collection when Qdrant reports it missing.
func (s *QdrantStore) EnsureCollection(ctx context.Context, collection string, dim int) error {
	const op = "qdrant.EnsureCollection"

	status, err := s.do(ctx, http.MethodGet, s.collectionURL(collection), nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return errs.E(errs.KindStore, op, err)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL(collection), body, nil); err != nil {
		return errs.E(errs.KindStore, op, err)
	}
	s.logger.Info("collection created", zap.String("collection", collection), zap.Int("dim", dim))
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []models.Point) error {
	const op = "qdrant.Upsert"

	if len(points) == 0 {
		return nil
	}
	body := make([]map[string]any, len(points))
	for i, p := range points {
		body[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		}
	}
	u := s.collectionURL(collection, "points") + "?wait=true"
	if _, err := s.do(ctx, http.MethodPut, u, map[string]any{"points": body}, nil); err != nil {
		return errs.E(errs.KindStore, op, err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, limit int) ([]models.Hit, error) {
	const op = "qdrant.Search"

	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL(collection, "points", "search"), req, &resp); err != nil {
		return nil, errs.E(errs.KindStore, op, err)
	}

	hits := make([]models.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, models.Hit{
			ID:      formatPointID(r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return hits, nil
}

func (s *QdrantStore) Ping(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodGet, s.url+"/readyz", nil, nil)
	return errs.E(errs.KindStore, "qdrant.Ping", err)
}

func (s *QdrantStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// do sends a JSON request and decodes the reply into out when non-nil. The
// returned status is 0 when no response was received.
func (s *QdrantStore) do(ctx context.Context, method, u string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusNotFound {
			return resp.StatusCode, fmt.Errorf("qdrant %s %s: %w", method, u, errCollectionNotFound)
		}
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s: %s", method, u, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func formatPointID(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case nil:
		return ""
	}
	return fmt.Sprint(id)
}

package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xhad/askflare/internal/errs"
	"github.com/xhad/askflare/internal/models"
)

type memoryCollection struct {
	dim    int
	points []models.Point
	index  map[string]int
}

// MemoryStore is an in-process vector store using brute-force cosine
// similarity. It is safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

func NewMemory() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

func (s *MemoryStore) EnsureCollection(_ context.Context, collection string, dim int) error {
	if dim <= 0 {
		return errs.E(errs.KindStore, "memory.EnsureCollection", fmt.Errorf("invalid dimension %d", dim))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection]; !ok {
		s.collections[collection] = &memoryCollection{dim: dim, index: make(map[string]int)}
	}
	return nil
}

// Upsert replaces points with an existing ID in place and appends new ones.
func (s *MemoryStore) Upsert(_ context.Context, collection string, points []models.Point) error {
	const op = "memory.Upsert"

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return errs.E(errs.KindStore, op, fmt.Errorf("%s: %w", collection, errCollectionNotFound))
	}
	for _, p := range points {
		if len(p.Vector) != c.dim {
			return errs.E(errs.KindStore, op, fmt.Errorf("vector dimension mismatch: got %d, want %d", len(p.Vector), c.dim))
		}
	}
	for _, p := range points {
		if i, ok := c.index[p.ID]; ok {
			c.points[i] = p
			continue
		}
		c.index[p.ID] = len(c.points)
		c.points = append(c.points, p)
	}
	return nil
}

// Search ranks points by cosine similarity. Ties keep insertion order.
func (s *MemoryStore) Search(ctx context.Context, collection string, vector []float32, limit int) ([]models.Hit, error) {
	const op = "memory.Search"

	if err := ctx.Err(); err != nil {
		return nil, errs.E(errs.KindStore, op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collection]
	if !ok {
		return nil, errs.E(errs.KindStore, op, fmt.Errorf("%s: %w", collection, errCollectionNotFound))
	}

	hits := make([]models.Hit, len(c.points))
	for i, p := range c.points {
		hits[i] = models.Hit{ID: p.ID, Score: cosine(p.Vector, vector), Payload: p.Payload}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if limit >= 0 && limit < len(hits) {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// Len returns the number of points in collection.
func (s *MemoryStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[collection]; ok {
		return len(c.points)
	}
	return 0
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

package store

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/askflare/internal/errs"
	"github.com/xhad/askflare/internal/models"
	"go.uber.org/zap"
)

var collectionPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

type PGVectorConfig struct {
	ConnString string
	VectorDim  int
	BatchSize  int
	// Timeout bounds every store call. Zero means 10s.
	Timeout time.Duration
}

// PGVectorStore keeps each collection in its own table with a cosine index.
type PGVectorStore struct {
	config PGVectorConfig
	pool   *pgxpool.Pool
	logger *zap.Logger

	mu      sync.Mutex
	ensured map[string]bool
}

func NewPGVector(ctx context.Context, config PGVectorConfig, logger *zap.Logger) (*PGVectorStore, error) {
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, errs.E(errs.KindStore, "store.NewPGVector", fmt.Errorf("failed to connect to database: %w", err))
	}

	return &PGVectorStore{
		config:  config,
		pool:    pool,
		logger:  logger.With(zap.String("store", "pgvector")),
		ensured: make(map[string]bool),
	}, nil
}

func tableName(collection string) (string, error) {
	if !collectionPattern.MatchString(collection) {
		return "", fmt.Errorf("invalid collection name %q", collection)
	}
	return pgx.Identifier{collection}.Sanitize(), nil
}

// EnsureCollection creates the vector extension, the collection table and
// its cosine index when they do not exist yet.
func (vs *PGVectorStore) EnsureCollection(ctx context.Context, collection string, dim int) error {
	const op = "pgvector.EnsureCollection"

	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.ensured[collection] {
		return nil
	}

	table, err := tableName(collection)
	if err != nil {
		return errs.E(errs.KindStore, op, err)
	}
	if dim <= 0 {
		dim = vs.config.VectorDim
	}

	ctx, cancel := context.WithTimeout(ctx, vs.config.Timeout)
	defer cancel()

	// Enable pgvector extension
	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return errs.E(errs.KindStore, op, fmt.Errorf("failed to create vector extension: %w", err))
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT,
			payload JSONB,
			embedding vector(%d)
		)`, table, dim)
	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return errs.E(errs.KindStore, op, fmt.Errorf("failed to create table: %w", err))
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		pgx.Identifier{collection + "_embedding_idx"}.Sanitize(), table)
	if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
		return errs.E(errs.KindStore, op, fmt.Errorf("failed to create index: %w", err))
	}

	vs.ensured[collection] = true
	vs.logger.Info("collection ready", zap.String("collection", collection), zap.Int("dim", dim))
	return nil
}

// Upsert writes points in batches inside a single transaction.
func (vs *PGVectorStore) Upsert(ctx context.Context, collection string, points []models.Point) error {
	const op = "pgvector.Upsert"

	if len(points) == 0 {
		return nil
	}
	table, err := tableName(collection)
	if err != nil {
		return errs.E(errs.KindStore, op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, vs.config.Timeout)
	defer cancel()

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return errs.E(errs.KindStore, op, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, content, payload, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			payload = EXCLUDED.payload,
			embedding = EXCLUDED.embedding`,
		table)

	for start := 0; start < len(points); start += vs.config.BatchSize {
		end := start + vs.config.BatchSize
		if end > len(points) {
			end = len(points)
		}

		batch := &pgx.Batch{}
		for _, p := range points[start:end] {
			payload := sanitizePayload(p.Payload)
			content, _ := payload["text"].(string)
			batch.Queue(stmt, p.ID, content, payload, pgvector.NewVector(p.Vector))
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errs.E(errs.KindStore, op, fmt.Errorf("failed to insert points: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errs.E(errs.KindStore, op, fmt.Errorf("failed to commit transaction: %w", err))
	}

	vs.logger.Debug("upserted points", zap.String("collection", collection), zap.Int("count", len(points)))
	return nil
}

// Search returns the nearest points by cosine distance. Score is the cosine
// similarity, 1 - distance.
func (vs *PGVectorStore) Search(ctx context.Context, collection string, vector []float32, limit int) ([]models.Hit, error) {
	const op = "pgvector.Search"

	table, err := tableName(collection)
	if err != nil {
		return nil, errs.E(errs.KindStore, op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, vs.config.Timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT id, payload, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		table)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, errs.E(errs.KindStore, op, fmt.Errorf("failed to query documents: %w", err))
	}
	defer rows.Close()

	var hits []models.Hit
	for rows.Next() {
		var hit models.Hit
		if err := rows.Scan(&hit.ID, &hit.Payload, &hit.Score); err != nil {
			return nil, errs.E(errs.KindStore, op, fmt.Errorf("failed to scan row: %w", err))
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.E(errs.KindStore, op, err)
	}

	return hits, nil
}

func (vs *PGVectorStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, vs.config.Timeout)
	defer cancel()
	return errs.E(errs.KindStore, "pgvector.Ping", vs.pool.Ping(ctx))
}

func (vs *PGVectorStore) Close() error {
	if vs.pool != nil {
		vs.pool.Close()
	}
	return nil
}

// sanitizePayload returns a copy of payload with invalid UTF-8 removed from
// string values. Postgres rejects invalid byte sequences in JSONB.
func sanitizePayload(payload map[string]interface{}) map[string]interface{} {
	if payload == nil {
		return nil
	}
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if s, ok := v.(string); ok {
			v = sanitizeUTF8(s)
		}
		out[k] = v
	}
	return out
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}

// Package ingest loads documents from CSV files, Markdown directories and
// scraped sites, chunks and embeds them, and writes them to a vector store.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xhad/askflare/internal/errs"
	"github.com/xhad/askflare/internal/models"
	"github.com/xhad/askflare/internal/types"
	"github.com/xhad/askflare/pkg/processor"
	"go.uber.org/zap"
)

// pointNamespace scopes the name-based point IDs.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("askflare/points"))

// Writer is the store capability needed to ingest.
type Writer interface {
	types.VectorWriter
	types.Provisioner
}

type Config struct {
	Collection string
	VectorDim  int
	BatchSize  int
}

// Stats summarizes one ingestion run.
type Stats struct {
	Documents int
	Skipped   int
	Chunks    int
	Failed    int
}

type Ingester struct {
	processor *processor.Processor
	embedder  types.BatchEmbedder
	writer    Writer
	config    Config
	logger    *zap.Logger

	// OnProgress is called after each document is handled.
	OnProgress func(done, total int)
}

func New(proc *processor.Processor, embedder types.BatchEmbedder, writer Writer, config Config, logger *zap.Logger) *Ingester {
	if config.BatchSize < 1 {
		config.BatchSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{
		processor: proc,
		embedder:  embedder,
		writer:    writer,
		config:    config,
		logger:    logger.Named("ingest"),
	}
}

// Ingest writes docs into the configured collection. Documents with no text
// and documents whose embeddings fail are logged and skipped; a store error
// aborts the run.
func (in *Ingester) Ingest(ctx context.Context, docs []models.Document) (Stats, error) {
	const op = "ingest"
	var stats Stats

	if err := in.writer.EnsureCollection(ctx, in.config.Collection, in.config.VectorDim); err != nil {
		return stats, errs.E(errs.KindStore, op, err)
	}

	pending := make([]models.Point, 0, in.config.BatchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := in.writer.Upsert(ctx, in.config.Collection, pending); err != nil {
			return errs.E(errs.KindStore, op, err)
		}
		pending = pending[:0]
		return nil
	}

	processed := in.processor.Process(docs)
	for i, doc := range processed {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		in.progress(i+1, len(processed))

		if len(doc.Chunks) == 0 {
			in.logger.Warn("skipping document without content", zap.String("source", doc.Source))
			stats.Skipped++
			continue
		}

		vectors, err := in.embedder.EmbedDocuments(ctx, doc.Chunks)
		if err != nil {
			in.logger.Warn("failed to embed document",
				zap.String("source", doc.Source),
				zap.Error(err))
			stats.Failed++
			continue
		}

		points, err := in.points(doc, vectors)
		if err != nil {
			in.logger.Warn("skipping document", zap.String("source", doc.Source), zap.Error(err))
			stats.Failed++
			continue
		}

		for _, p := range points {
			pending = append(pending, p)
			if len(pending) == in.config.BatchSize {
				if err := flush(); err != nil {
					return stats, err
				}
			}
		}
		stats.Documents++
		stats.Chunks += len(points)
	}

	if err := flush(); err != nil {
		return stats, err
	}

	in.logger.Info("ingestion complete",
		zap.String("collection", in.config.Collection),
		zap.Int("documents", stats.Documents),
		zap.Int("chunks", stats.Chunks),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed))
	return stats, nil
}

func (in *Ingester) progress(done, total int) {
	if in.OnProgress != nil {
		in.OnProgress(done, total)
	}
}

func (in *Ingester) points(doc models.ProcessedDocument, vectors [][]float32) ([]models.Point, error) {
	if len(vectors) != len(doc.Chunks) {
		return nil, fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(doc.Chunks))
	}

	key := doc.ID
	if key == "" {
		key = doc.Source
	}

	points := make([]models.Point, 0, len(doc.Chunks))
	for i, chunk := range doc.Chunks {
		if in.config.VectorDim > 0 && len(vectors[i]) != in.config.VectorDim {
			return nil, fmt.Errorf("embedding has dimension %d, want %d", len(vectors[i]), in.config.VectorDim)
		}
		points = append(points, models.Point{
			ID:      PointID(key, i),
			Vector:  vectors[i],
			Payload: payload(doc.Document, chunk, i),
		})
	}
	return points, nil
}

// PointID is stable for a document key and chunk index, so re-ingesting a
// document overwrites its earlier points.
func PointID(key string, index int) string {
	return uuid.NewSHA1(pointNamespace, []byte(fmt.Sprintf("%s#%d", key, index))).String()
}

func payload(doc models.Document, text string, index int) map[string]interface{} {
	p := map[string]interface{}{
		"text":        text,
		"source":      doc.Source,
		"filename":    doc.Source,
		"chunk_index": index,
	}
	set := func(key, value string) {
		if strings.TrimSpace(value) != "" {
			p[key] = value
		}
	}
	set("title", doc.Title)
	set("author", doc.Author)
	set("date", doc.Date)
	set("url", doc.URL)
	if raw, ok := doc.Metadata["metadata"].(string); ok {
		set("metadata", raw)
	}
	return p
}

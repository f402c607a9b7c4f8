// Package pipeline resolves a query: classify, then answer from retrieved
// documents or reply with a fixed message.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/xhad/askflare/internal/errs"
	"github.com/xhad/askflare/internal/models"
	"github.com/xhad/askflare/internal/types"
	"go.uber.org/zap"
)

const (
	ClarifyMessage  = "Please provide additional context."
	RejectMessage   = "The query is out of scope."
	FallbackMessage = "Unable to determine how to handle this query."
)

// Classifier decides how a query is handled.
type Classifier interface {
	RouteQuery(ctx context.Context, query string) (models.Classification, error)
}

// AnswerGenerator writes an answer from ranked documents.
type AnswerGenerator interface {
	GenerateResponse(ctx context.Context, query string, docs []models.Chunk) (models.Answer, error)
}

type Config struct {
	TopK int
}

// Result is the outcome of a resolved query. Response includes the sources
// footer when the answer cites documents.
type Result struct {
	Classification models.Classification `json:"classification"`
	Response       string                `json:"response"`
	Citations      []models.Citation     `json:"citations,omitempty"`
	Refined        bool                  `json:"refined,omitempty"`
}

type Pipeline struct {
	router    Classifier
	retriever types.Searcher
	responder AnswerGenerator
	config    Config
	logger    *zap.Logger
}

func New(router Classifier, retriever types.Searcher, responder AnswerGenerator, config Config, logger *zap.Logger) *Pipeline {
	if config.TopK < 1 {
		config.TopK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		router:    router,
		retriever: retriever,
		responder: responder,
		config:    config,
		logger:    logger.Named("pipeline"),
	}
}

// Resolve runs one query through the pipeline. It returns either a complete
// result or an error; failures on the answer path are never turned into a
// result. Nothing is retried here.
func (p *Pipeline) Resolve(ctx context.Context, query string) (Result, error) {
	const op = "pipeline.Resolve"

	if strings.TrimSpace(query) == "" {
		return Result{}, errs.Invalid(op, "query must not be empty")
	}

	start := time.Now()
	logger := p.logger.With(zap.Int("query_len", len(query)))

	classification, err := p.router.RouteQuery(ctx, query)
	if err != nil {
		logger.Error("classification failed", zap.Error(err))
		return Result{}, err
	}
	logger = logger.With(zap.String("classification", string(classification)))
	if !classification.Valid() {
		logger.Warn("unrecognized classification")
		return Result{Classification: classification, Response: FallbackMessage}, nil
	}

	switch classification {
	case models.ClassificationAnswer:
		docs, err := p.retriever.SemanticSearch(ctx, query, p.config.TopK)
		if err != nil {
			logger.Error("retrieval failed", zap.Error(err))
			return Result{}, err
		}

		answer, err := p.responder.GenerateResponse(ctx, query, docs)
		if err != nil {
			logger.Error("response generation failed", zap.Error(err))
			return Result{}, err
		}
		if answer.LowConfidence {
			logger.Warn("answer still low confidence after refinement", zap.Bool("refined", answer.Refined))
		}

		logger.Info("query answered",
			zap.Int("documents", len(docs)),
			zap.Int("citations", len(answer.Citations)),
			zap.Duration("elapsed", time.Since(start)))

		return Result{
			Classification: classification,
			Response:       answer.String(),
			Citations:      answer.Citations,
			Refined:        answer.Refined,
		}, nil

	case models.ClassificationClarify:
		logger.Info("query needs clarification")
		return Result{Classification: classification, Response: ClarifyMessage}, nil

	default:
		logger.Info("query rejected")
		return Result{Classification: classification, Response: RejectMessage}, nil
	}
}

// Package router classifies a query as ANSWER, CLARIFY or REJECT.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xhad/askflare/internal/errs"
	"github.com/xhad/askflare/internal/models"
	"github.com/xhad/askflare/internal/types"
	"go.uber.org/zap"
)

// SnippetLength is the number of characters of each context snippet shown
// to the classifier.
const SnippetLength = 200

type Config struct {
	Model        string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
	// Template may contain {query}, {context}, {answer_option},
	// {clarify_option} and {reject_option}. Without {context}, the context
	// block is appended to the prompt.
	Template      string
	AnswerOption  string
	ClarifyOption string
	RejectOption  string
	// ContextK is the number of snippets fetched for RouteQuery. Zero
	// disables the context lookup.
	ContextK int
	Timeout  time.Duration
}

type Router struct {
	generator types.Generator
	searcher  types.Searcher
	config    Config
	options   map[string]models.Classification
	logger    *zap.Logger
}

// New builds a router. searcher may be nil, in which case RouteQuery
// classifies without context.
func New(generator types.Generator, searcher types.Searcher, config Config, logger *zap.Logger) *Router {
	if config.AnswerOption == "" {
		config.AnswerOption = string(models.ClassificationAnswer)
	}
	if config.ClarifyOption == "" {
		config.ClarifyOption = string(models.ClassificationClarify)
	}
	if config.RejectOption == "" {
		config.RejectOption = string(models.ClassificationReject)
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Router{
		generator: generator,
		searcher:  searcher,
		config:    config,
		options: map[string]models.Classification{
			strings.ToUpper(strings.TrimSpace(config.AnswerOption)):  models.ClassificationAnswer,
			strings.ToUpper(strings.TrimSpace(config.ClarifyOption)): models.ClassificationClarify,
			strings.ToUpper(strings.TrimSpace(config.RejectOption)):  models.ClassificationReject,
		},
		logger: logger.Named("router"),
	}
}

// RouteQuery fetches supporting snippets for query when a searcher is
// configured, then classifies it. A failed lookup only drops the context.
func (r *Router) RouteQuery(ctx context.Context, query string) (models.Classification, error) {
	var docs []models.Chunk
	if r.searcher != nil && r.config.ContextK > 0 {
		found, err := r.searcher.SemanticSearch(ctx, query, r.config.ContextK)
		if err != nil {
			r.logger.Warn("context lookup failed, classifying without context", zap.Error(err))
		} else {
			docs = found
		}
	}
	return r.Classify(ctx, query, docs)
}

// Classify asks the model to classify query, showing it docs as context.
// Any reply that is not a recognized classification yields CLARIFY. Only a
// provider failure is returned as an error.
func (r *Router) Classify(ctx context.Context, query string, docs []models.Chunk) (models.Classification, error) {
	const op = "router.Classify"

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	reply, err := r.generator.Complete(ctx, types.GenerateRequest{
		System:      r.config.SystemPrompt,
		Prompt:      r.buildPrompt(query, docs),
		MaxTokens:   r.config.MaxTokens,
		Temperature: r.config.Temperature,
		JSON:        true,
	})
	if err != nil {
		return "", errs.E(errs.KindClassification, op, errs.Wrap(errs.KindGeneration, "complete", err))
	}

	label, err := parseClassification(reply)
	if err != nil {
		r.logger.Warn("unparseable classification, defaulting to clarify",
			zap.Error(err),
			zap.String("reply", models.Truncate(reply, 200)))
		return models.ClassificationClarify, nil
	}

	classification, ok := r.options[label]
	if !ok {
		r.logger.Warn("unknown classification, defaulting to clarify", zap.String("classification", label))
		return models.ClassificationClarify, nil
	}

	r.logger.Debug("query classified", zap.String("classification", string(classification)))
	return classification, nil
}

func (r *Router) buildPrompt(query string, docs []models.Chunk) string {
	contextBlock := formatContext(docs, r.config.ContextK)

	template := r.config.Template
	if template == "" {
		template = "{query}"
	}
	if !strings.Contains(template, "{context}") && contextBlock != "" {
		template += "\n{context}"
	}

	return strings.NewReplacer(
		"{answer_option}", r.config.AnswerOption,
		"{clarify_option}", r.config.ClarifyOption,
		"{reject_option}", r.config.RejectOption,
		"{context}", contextBlock,
		"{query}", query,
	).Replace(template)
}

// formatContext lists at most k snippets as "- source: preview...". k <= 0
// means no limit.
func formatContext(docs []models.Chunk, k int) string {
	if len(docs) == 0 {
		return ""
	}
	if k > 0 && len(docs) > k {
		docs = docs[:k]
	}

	var b strings.Builder
	b.WriteString("Additional Context:\n")
	for _, doc := range docs {
		source := doc.Source
		if source == "" {
			source = "unknown"
		}
		fmt.Fprintf(&b, "- %s: %s...\n", source, doc.Preview(SnippetLength))
	}
	return b.String()
}

type classificationReply struct {
	Classification *string `json:"classification"`
}

// parseClassification decodes {"classification": "..."} from reply, allowing
// a surrounding Markdown code fence, and returns the trimmed upper-cased value.
func parseClassification(reply string) (string, error) {
	body := stripCodeFence(reply)

	var parsed classificationReply
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return "", fmt.Errorf("decode classification reply: %w", err)
	}
	if parsed.Classification == nil {
		return "", fmt.Errorf("reply has no classification field")
	}
	label := strings.ToUpper(strings.TrimSpace(*parsed.Classification))
	if label == "" {
		return "", fmt.Errorf("empty classification")
	}
	return label, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line, e.g. ```json
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

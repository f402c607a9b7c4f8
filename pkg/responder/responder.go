// Package responder writes a cited answer from retrieved chunks, with one
// bounded refinement when the first completion looks unsure.
package responder

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xhad/askflare/internal/errs"
	"github.com/xhad/askflare/internal/models"
	"github.com/xhad/askflare/internal/types"
	"go.uber.org/zap"
)

const (
	// ShortQueryDocs and LongQueryDocs cap how many chunks reach the prompt,
	// depending on whether the query is longer than LongQueryThreshold.
	ShortQueryDocs     = 5
	LongQueryDocs      = 8
	LongQueryThreshold = 100

	PreviewLength = 200

	// MinConfidentLength is the shortest completion that passes the gate.
	MinConfidentLength = 30

	RefinementPrefix = "Provide more details about: "

	UnknownTitle  = "Unknown Title"
	UnknownAuthor = "Unknown Author"
	UnknownDate   = "Unknown Date"
)

var hedgePhrases = []string{
	"i'm not sure",
	"i don't know",
	"sorry",
	"i cannot find",
}

type Config struct {
	Model        string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
	// Template must contain {context} and {query}.
	Template string
	// MaxRefinements is 0 or 1; larger values are clamped to 1.
	MaxRefinements int
	Timeout        time.Duration
}

type Responder struct {
	generator types.Generator
	config    Config
	logger    *zap.Logger
}

func New(generator types.Generator, config Config, logger *zap.Logger) *Responder {
	if config.Template == "" {
		config.Template = "{context}User query: {query}\n"
	}
	if config.MaxRefinements < 0 {
		config.MaxRefinements = 0
	}
	if config.MaxRefinements > 1 {
		config.MaxRefinements = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{
		generator: generator,
		config:    config,
		logger:    logger.Named("responder"),
	}
}

// GenerateResponse answers query from docs, which must already be ranked.
// A completion that fails the confidence gate is retried once with a
// rewritten query and the same docs; if that still fails the gate it is
// returned with LowConfidence set. Provider errors are never retried.
func (r *Responder) GenerateResponse(ctx context.Context, query string, docs []models.Chunk) (models.Answer, error) {
	const op = "responder.GenerateResponse"

	current := query
	for attempt := 0; ; attempt++ {
		prompt, citations := r.buildPrompt(current, docs)

		text, err := r.complete(ctx, prompt)
		if err != nil {
			return models.Answer{}, errs.Wrap(errs.KindGeneration, op, err)
		}

		answer := models.Answer{
			Text:      text,
			Citations: citations,
			Refined:   attempt > 0,
		}
		if !LowConfidence(text) {
			return answer, nil
		}

		if attempt >= r.config.MaxRefinements {
			answer.LowConfidence = true
			r.logger.Info("returning low-confidence answer",
				zap.Int("refinements", attempt),
				zap.Int("chars", utf8.RuneCountInString(text)))
			return answer, nil
		}

		r.logger.Info("low-confidence answer, refining", zap.Int("attempt", attempt+1))
		current = RefinementPrefix + query
	}
}

func (r *Responder) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	return r.generator.Complete(ctx, types.GenerateRequest{
		System:      r.config.SystemPrompt,
		Prompt:      prompt,
		MaxTokens:   r.config.MaxTokens,
		Temperature: r.config.Temperature,
	})
}

// buildPrompt fills the template and returns the citations of the chunks
// placed in it, in prompt order.
func (r *Responder) buildPrompt(query string, docs []models.Chunk) (string, []models.Citation) {
	contextBlock, citations := BuildContext(query, docs)
	prompt := strings.NewReplacer(
		"{context}", contextBlock,
		"{query}", query,
	).Replace(r.config.Template)
	return prompt, citations
}

// DocLimit returns how many chunks a prompt for query may include.
func DocLimit(query string) int {
	if utf8.RuneCountInString(query) > LongQueryThreshold {
		return LongQueryDocs
	}
	return ShortQueryDocs
}

// BuildContext renders the top DocLimit(query) chunks as labelled blocks and
// records one citation per block.
func BuildContext(query string, docs []models.Chunk) (string, []models.Citation) {
	if n := DocLimit(query); len(docs) > n {
		docs = docs[:n]
	}
	if len(docs) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Retrieved documents:\n")
	citations := make([]models.Citation, 0, len(docs))
	for i, doc := range docs {
		title := Title(doc)
		author := metaOr(doc, "author", UnknownAuthor)
		date := metaOr(doc, "date", UnknownDate)

		fmt.Fprintf(&b, "[%d] %s (by %s, %s):\n%s...\n\n", i+1, title, author, date, doc.Preview(PreviewLength))
		citations = append(citations, models.Citation{Index: i + 1, Label: title})
	}
	return b.String(), citations
}

// Title is the chunk's title metadata, else its source, else "Unknown Title".
func Title(doc models.Chunk) string {
	if title, ok := doc.MetaString("title"); ok {
		return title
	}
	if doc.Source != "" && doc.Source != "unknown" {
		return doc.Source
	}
	return UnknownTitle
}

func metaOr(doc models.Chunk, key, fallback string) string {
	if v, ok := doc.MetaString(key); ok {
		return v
	}
	return fallback
}

// LowConfidence reports whether text contains a hedge phrase or is shorter
// than MinConfidentLength characters.
func LowConfidence(text string) bool {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < MinConfidentLength {
		return true
	}
	lower := strings.ToLower(text)
	// normalize typographic apostrophes
	lower = strings.ReplaceAll(lower, "’", "'")
	for _, phrase := range hedgePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

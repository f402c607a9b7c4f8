// Package processor cleans document text and splits it into overlapping,
// sentence-aligned chunks for embedding.
package processor

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xhad/askflare/internal/models"
)

type ProcessorConfig struct {
	ChunkSize       int
	ChunkOverlap    int
	MinChunkLength  int
	RemoveStopwords bool
	CustomStopwords []string
	// Lowercase folds the text before chunking. Chunks are shown to the
	// model as previews, so it is off by default.
	Lowercase bool
	// StripMarkup removes MDX import/export lines and HTML/JSX tags.
	StripMarkup bool
}

type Processor struct {
	config    ProcessorConfig
	stopwords map[string]struct{}
}

var (
	mdxStatement = regexp.MustCompile(`(?m)^\s*(import|export)\s.*$`)
	markupTag    = regexp.MustCompile(`</?[A-Za-z][^<>]*>`)
	fencedCode   = regexp.MustCompile("(?m)^\\s*```[^\\n]*$")
)

func NewWithConfig(config ProcessorConfig) *Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 200
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 5
	}
	if config.MinChunkLength == 0 {
		config.MinChunkLength = 100
	}

	p := &Processor{config: config}
	if config.RemoveStopwords {
		p.stopwords = make(map[string]struct{})
		for _, w := range getStopwords() {
			p.stopwords[w] = struct{}{}
		}
		for _, w := range config.CustomStopwords {
			p.stopwords[strings.ToLower(w)] = struct{}{}
		}
	}
	return p
}

// Process cleans and chunks each document. Documents whose content is empty
// after cleaning are returned with no chunks.
func (p *Processor) Process(docs []models.Document) []models.ProcessedDocument {
	processed := make([]models.ProcessedDocument, 0, len(docs))

	for _, doc := range docs {
		cleanContent := p.CleanText(doc.Content)

		processed = append(processed, models.ProcessedDocument{
			Document: doc,
			Chunks:   p.SplitIntoChunks(cleanContent),
		})
	}

	return processed
}

// CleanText strips markup when configured, collapses whitespace and applies
// the optional lowercase and stopword passes.
func (p *Processor) CleanText(text string) string {
	if p.config.StripMarkup {
		text = mdxStatement.ReplaceAllString(text, " ")
		text = fencedCode.ReplaceAllString(text, " ")
		text = markupTag.ReplaceAllString(text, " ")
	}

	if p.config.Lowercase {
		text = strings.ToLower(text)
	}

	// Replace multiple spaces with single space
	text = strings.Join(strings.Fields(text), " ")

	if p.config.RemoveStopwords {
		text = p.removeStopwords(text)
	}

	return strings.TrimSpace(text)
}

// SplitIntoChunks groups sentences into chunks of roughly ChunkSize
// characters, carrying up to ChunkOverlap characters of context into the
// next chunk. Text shorter than MinChunkLength is merged into the following
// chunk, so a chunk may exceed ChunkSize when it absorbs a short lead. A
// trailing chunk below MinChunkLength is dropped unless it is the only one.
func (p *Processor) SplitIntoChunks(text string) []string {
	var chunks []string

	sentences := splitIntoSentences(text)

	var current strings.Builder
	currentLen := 0

	for _, sentence := range sentences {
		sentenceLen := utf8.RuneCountInString(sentence)

		// A pending chunk below MinChunkLength is carried into the next one.
		if currentLen > 0 && currentLen+sentenceLen+1 > p.config.ChunkSize {
			chunk := strings.TrimSpace(current.String())
			if utf8.RuneCountInString(chunk) >= p.config.MinChunkLength {
				chunks = append(chunks, chunk)

				overlap := tail(chunk, p.config.ChunkOverlap)
				current.Reset()
				currentLen = 0
				if overlap != "" {
					current.WriteString(overlap)
					current.WriteString(" ")
					currentLen = utf8.RuneCountInString(overlap) + 1
				}
			}
		}

		current.WriteString(sentence)
		current.WriteString(" ")
		currentLen += sentenceLen + 1
	}

	last := strings.TrimSpace(current.String())
	if last != "" && (utf8.RuneCountInString(last) >= p.config.MinChunkLength || len(chunks) == 0) {
		chunks = append(chunks, last)
	}

	return chunks
}

// tail returns the last n runes of s, advanced to the next word boundary.
func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return ""
	}
	out := string(runes[len(runes)-n:])
	if i := strings.IndexByte(out, ' '); i >= 0 && i < len(out)-1 {
		out = out[i+1:]
	}
	return out
}

func splitIntoSentences(text string) []string {
	sentenceEnders := []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}
	var sentences []string

	current := strings.Builder{}

	for i := 0; i < len(text); i++ {
		current.WriteByte(text[i])

		for _, ender := range sentenceEnders {
			if strings.HasSuffix(current.String(), ender) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
				break
			}
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

func (p *Processor) removeStopwords(text string) string {
	words := strings.Fields(text)
	filtered := words[:0]

	for _, word := range words {
		if _, ok := p.stopwords[strings.ToLower(word)]; !ok {
			filtered = append(filtered, word)
		}
	}

	return strings.Join(filtered, " ")
}

// Common English stopwords
func getStopwords() []string {
	return []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with",
	}
}

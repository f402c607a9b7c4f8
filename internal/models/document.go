package models

// Document is a source document before chunking, as produced by the
// ingestion sources (CSV rows, files, scraped pages).
type Document struct {
	ID       string
	URL      string
	Source   string
	Title    string
	Author   string
	Date     string
	Content  string
	Metadata map[string]interface{}
}

type ProcessedDocument struct {
	Document
	Chunks     []string
	Embeddings [][]float32
}

// Point is a (vector, payload) pair written to a vector store collection.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// Hit is a raw nearest-neighbour match returned by a vector store, in the
// store's relevance order. Payload may be nil.
type Hit struct {
	ID      string
	Score   float64
	Payload map[string]interface{}
}

// Chunk is a retrieved unit of text with its similarity score and provenance.
type Chunk struct {
	Text     string
	Score    float64
	Source   string
	Metadata map[string]interface{}
}

// MetaString returns the metadata value for key when it is a non-empty string.
func (c Chunk) MetaString(key string) (string, bool) {
	if c.Metadata == nil {
		return "", false
	}
	s, ok := c.Metadata[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Preview returns at most n runes of the chunk text.
func (c Chunk) Preview(n int) string {
	return Truncate(c.Text, n)
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xhad/askflare/internal/models"
	"gopkg.in/yaml.v3"
)

// ErrMissingColumn is returned when a CSV file lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// LoadCSV reads documents from a CSV file with Filename, Metadata and
// Contents columns (header names are case-insensitive). Rows with empty
// contents are returned with empty Content and skipped at ingestion.
func LoadCSV(path string) ([]models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	docs, err := ReadCSV(f, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}

// ReadCSV parses CSV documents from r. origin names the file in metadata.
func ReadCSV(r io.Reader, origin string) ([]models.Document, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}

	contentsCol, ok := columns["contents"]
	if !ok {
		if contentsCol, ok = columns["content"]; !ok {
			return nil, fmt.Errorf("%w: Contents", ErrMissingColumn)
		}
	}
	filenameCol, hasFilename := columns["filename"]
	metadataCol, hasMetadata := columns["metadata"]

	field := func(record []string, i int, present bool) string {
		if !present || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var docs []models.Document
	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", row, err)
		}

		filename := strings.TrimSpace(field(record, filenameCol, hasFilename))
		if filename == "" {
			filename = fmt.Sprintf("%s#%d", origin, row)
		}

		doc := models.Document{
			ID:       filename,
			Source:   filename,
			Content:  field(record, contentsCol, true),
			Metadata: map[string]interface{}{"origin": origin},
		}
		if raw := strings.TrimSpace(field(record, metadataCol, hasMetadata)); raw != "" {
			doc.Metadata["metadata"] = raw
			applyMetadata(&doc, parseMetadata(raw))
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// LoadFile reads a Markdown, MDX or text file. YAML front matter, when
// present, supplies title, author and date and is removed from the content.
func LoadFile(path string) (models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("read file: %w", err)
	}

	name := filepath.Base(path)
	doc := models.Document{
		ID:       path,
		Source:   name,
		Metadata: map[string]interface{}{"path": path},
	}

	frontMatter, body := splitFrontMatter(data)
	doc.Content = string(body)
	if frontMatter != nil {
		applyMetadata(&doc, parseMetadata(string(frontMatter)))
	}
	return doc, nil
}

// LoadDir loads every file under dir whose extension is in exts. CSV files
// expand to one document per row.
func LoadDir(dir string, exts []string) ([]models.Document, error) {
	var docs []models.Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !hasExtension(path, exts) {
			return nil
		}
		loaded, err := LoadPath(path)
		if err != nil {
			return err
		}
		docs = append(docs, loaded...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load dir %s: %w", dir, err)
	}
	return docs, nil
}

// LoadPath loads a single CSV, Markdown, MDX or text file.
func LoadPath(path string) ([]models.Document, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return LoadCSV(path)
	}
	doc, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return []models.Document{doc}, nil
}

func hasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// splitFrontMatter separates a leading "---" delimited block from body.
func splitFrontMatter(data []byte) (frontMatter, body []byte) {
	text := bytes.TrimPrefix(data, []byte("\ufeff"))
	nl := bytes.IndexByte(text, '\n')
	if nl < 0 || string(bytes.TrimRight(text[:nl], "\r \t")) != "---" {
		return nil, data
	}
	rest := text[nl+1:]
	for offset := 0; offset < len(rest); {
		line, next := rest[offset:], len(rest)
		if i := bytes.IndexByte(line, '\n'); i >= 0 {
			line, next = line[:i], offset+i+1
		}
		if string(bytes.TrimRight(line, "\r \t")) == "---" {
			return rest[:offset], rest[next:]
		}
		offset = next
	}
	return nil, data
}

// parseMetadata decodes YAML (and therefore JSON) metadata, with or without
// "---" fences. Anything that is not a mapping yields nil.
func parseMetadata(raw string) map[string]interface{} {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "---")
	raw = strings.TrimSuffix(raw, "---")

	var meta map[string]interface{}
	if err := yaml.Unmarshal([]byte(raw), &meta); err != nil {
		return nil
	}
	return meta
}

func applyMetadata(doc *models.Document, meta map[string]interface{}) {
	if meta == nil {
		return
	}
	if v := stringValue(meta["title"]); v != "" {
		doc.Title = v
	}
	for _, key := range []string{"author", "authors"} {
		if v := stringValue(meta[key]); v != "" {
			doc.Author = v
			break
		}
	}
	for _, key := range []string{"date", "last_update", "updated"} {
		if v := stringValue(meta[key]); v != "" {
			doc.Date = v
			break
		}
	}
	if v := stringValue(meta["slug"]); v != "" {
		doc.Metadata["slug"] = v
	}
	if v := stringValue(meta["description"]); v != "" {
		doc.Metadata["description"] = v
	}
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case nil:
		return ""
	case map[string]interface{}:
		return stringValue(t["name"])
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

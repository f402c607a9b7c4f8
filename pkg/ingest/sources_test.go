package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const docsCSV = `Filename,Metadata,Contents
1-intro.mdx,"---
title: Introduction
authors:
  - Alice
  - Bob
date: 2024-01-02
---","Flare is the blockchain for data.
It has enshrined oracles."
2-empty.mdx,,
3-ftso.mdx,not yaml: [,"The FTSO delivers price feeds."
`

func TestReadCSV(t *testing.T) {
	docs, err := ReadCSV(strings.NewReader(docsCSV), "docs.csv")
	require.NoError(t, err)
	require.Len(t, docs, 3)

	intro := docs[0]
	assert.Equal(t, "1-intro.mdx", intro.Source)
	assert.Equal(t, "Introduction", intro.Title)
	assert.Equal(t, "Alice, Bob", intro.Author)
	assert.Equal(t, "2024-01-02", intro.Date)
	assert.Contains(t, intro.Content, "enshrined oracles")
	assert.Equal(t, "docs.csv", intro.Metadata["origin"])

	assert.Empty(t, docs[1].Content)

	ftso := docs[2]
	assert.Empty(t, ftso.Title)
	assert.Equal(t, "not yaml: [", ftso.Metadata["metadata"])
}

func TestReadCSVHeaderCaseAndMissingFilename(t *testing.T) {
	docs, err := ReadCSV(strings.NewReader("CONTENT\nhello world\n"), "rows.csv")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "rows.csv#1", docs[0].Source)
	assert.Equal(t, "hello world", docs[0].Content)
}

func TestReadCSVMissingContents(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("Filename,Metadata\na.mdx,\n"), "bad.csv")
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestLoadFileFrontMatter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staking.md")
	content := "---\ntitle: Staking\nauthor: Carol\n---\n# Staking\n\nDelegate your tokens.\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	doc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "staking.md", doc.Source)
	assert.Equal(t, "Staking", doc.Title)
	assert.Equal(t, "Carol", doc.Author)
	assert.Equal(t, "# Staking\n\nDelegate your tokens.\n", doc.Content)
}

func TestSplitFrontMatter(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		frontMatter string
		body        string
	}{
		{"no front matter", "# Title\nbody", "", "# Title\nbody"},
		{"front matter", "---\ntitle: x\n---\nbody", "title: x\n", "body"},
		{"crlf", "---\r\ntitle: x\r\n---\r\nbody", "title: x\r\n", "body"},
		{"unterminated", "---\ntitle: x\nbody", "", "---\ntitle: x\nbody"},
		{"rule not at start", "text\n---\nmore", "", "text\n---\nmore"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, body := splitFrontMatter([]byte(tt.input))
			assert.Equal(t, tt.frontMatter, string(fm))
			assert.Equal(t, tt.body, string(body))
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("alpha"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b.MDX"), []byte("beta"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rows.csv"), []byte("Filename,Contents\nc.mdx,gamma\nd.mdx,delta\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89}, 0644))

	docs, err := LoadDir(dir, []string{".md", ".mdx", ".csv"})
	require.NoError(t, err)

	var sources []string
	for _, d := range docs {
		sources = append(sources, d.Source)
	}
	assert.ElementsMatch(t, []string{"a.md", "b.MDX", "c.mdx", "d.mdx"}, sources)
}

func TestLoadDirMissing(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "missing"), []string{".md"})
	assert.Error(t, err)
}

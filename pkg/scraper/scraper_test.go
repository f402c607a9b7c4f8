package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScraperConfig(t *testing.T) {
	config := ScraperConfig{
		BaseURL:        "https://example.com",
		MaxDepth:       5,
		RateLimit:      1.0,
		IgnorePatterns: []string{"/ignore/", "private"},
		Timeout:        10 * time.Second,
	}

	s, err := NewWithConfig(config, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, config.BaseURL, s.config.BaseURL)
	assert.Equal(t, config.MaxDepth, s.config.MaxDepth)

	_, err = NewWithConfig(ScraperConfig{BaseURL: "not a url"}, nil)
	assert.Error(t, err)
}

func TestShouldProcessURL(t *testing.T) {
	config := ScraperConfig{
		BaseURL:           "https://example.com",
		IgnorePatterns:    []string{"/ignore/", "private"},
		AllowedExtensions: []string{".html", "/", ""},
	}

	s, err := NewWithConfig(config, nil)
	require.NoError(t, err)

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.com/docs/", true},
		{"https://example.com/docs/intro", true},
		{"https://example.com/page.html", true},
		{"https://example.com/ignore/page.html", false},
		{"https://other-domain.com/page.html", false},
		{"https://example.com/file.pdf", false},
		{"https://example.com/private/keys", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			result := s.shouldProcessURL(tt.url)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSourceLabel(t *testing.T) {
	assert.Equal(t, "intro", sourceLabel("https://dev.flare.network/docs/intro"))
	assert.Equal(t, "docs", sourceLabel("https://dev.flare.network/docs/"))
	assert.Equal(t, "dev.flare.network", sourceLabel("https://dev.flare.network/"))
}

func TestScrapeWithMockServer(t *testing.T) {
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`
			<html>
				<head><title>Test Page</title></head>
				<body>
					<nav>Navigation noise</nav>
					<main>
						<h1>Test Content</h1>
						<p>This is a test paragraph.</p>
						<a href="/page2.html">Link</a>
						<a href="/page2.html#section">Anchor</a>
						<a href="https://elsewhere.example/">External</a>
					</main>
				</body>
			</html>
		`))
	})
	mux.HandleFunc("/page2.html", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`<html><head><title>Page Two</title></head><body><article>Second page body.</article></body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	var progress []string
	config := ScraperConfig{
		BaseURL:    server.URL,
		MaxDepth:   1,
		RateLimit:  100,
		OnProgress: func(u string) { progress = append(progress, u) },
	}

	s, err := NewWithConfig(config, zap.NewNop())
	require.NoError(t, err)

	docs, err := s.Scrape(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	doc := docs[0]
	assert.Equal(t, server.URL, doc.URL)
	assert.Equal(t, "Test Page", doc.Title)
	assert.Contains(t, doc.Content, "Test Content")
	assert.Contains(t, doc.Content, "This is a test paragraph")
	assert.NotContains(t, doc.Content, "Navigation noise")

	assert.Equal(t, "Page Two", docs[1].Title)
	assert.Equal(t, "page2.html", docs[1].Source)
	assert.Equal(t, "Second page body.", docs[1].Content)

	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Len(t, progress, 2)
}

func TestScrapeStartPageError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	s, err := NewWithConfig(ScraperConfig{BaseURL: server.URL, RateLimit: 100}, nil)
	require.NoError(t, err)

	_, err = s.Scrape(context.Background(), server.URL)
	assert.Error(t, err)
}

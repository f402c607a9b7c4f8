// Package scraper crawls a documentation site and returns its pages as
// documents for ingestion.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/askflare/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ScraperConfig struct {
	BaseURL           string
	MaxDepth          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	OnProgress        func(url string)
}

type Scraper struct {
	config   ScraperConfig
	client   *http.Client
	limiter  *rate.Limiter
	baseHost string
	logger   *zap.Logger

	mu      sync.Mutex
	visited map[string]bool
}

func NewWithConfig(config ScraperConfig, logger *zap.Logger) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 3
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", config.BaseURL)
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		visited:  make(map[string]bool),
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
		logger:   logger.Named("scraper"),
	}, nil
}

func (s *Scraper) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	// Check if URL is from the same host
	if parsedURL.Host != s.baseHost {
		return false
	}

	// Check extensions
	ext := strings.ToLower(parsedURL.Path)
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if allowedExt == "" {
			if path.Ext(ext) == "" {
				validExt = true
				break
			}
			continue
		}
		if strings.HasSuffix(ext, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	// Check ignore patterns
	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

func (s *Scraper) cleanContent(content string) string {
	// Remove extra whitespace
	content = strings.Join(strings.Fields(content), " ")

	// Remove common noise
	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
		"Edit this page",
	}

	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}

func (s *Scraper) extractMainContent(doc *goquery.Document) string {
	// Navigation and scripts are never part of the page text
	doc.Find("script, style, nav, footer, header").Remove()

	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	// Fallback to body if no main content found
	if content == "" {
		content = doc.Find("body").Text()
	}

	return s.cleanContent(content)
}

// Scrape crawls from startURL up to MaxDepth links deep, staying on the base
// host. Failures on linked pages are logged and skipped; a failure on the
// start page is returned.
func (s *Scraper) Scrape(ctx context.Context, startURL string) ([]models.Document, error) {
	s.mu.Lock()
	s.visited = make(map[string]bool)
	s.mu.Unlock()

	var documents []models.Document
	err := s.scrapeRecursive(ctx, normalizeURL(startURL), 0, &documents)
	return documents, err
}

func (s *Scraper) markVisited(urlStr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visited[urlStr] {
		return false
	}
	s.visited[urlStr] = true
	return true
}

func (s *Scraper) scrapeRecursive(ctx context.Context, urlStr string, depth int, documents *[]models.Document) error {
	if depth > s.config.MaxDepth || !s.shouldProcessURL(urlStr) {
		return nil
	}
	if !s.markVisited(urlStr) {
		return nil
	}

	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	content := s.extractMainContent(doc)

	if content != "" {
		*documents = append(*documents, models.Document{
			ID:      urlStr,
			URL:     urlStr,
			Source:  sourceLabel(urlStr),
			Title:   title,
			Content: content,
			Metadata: map[string]interface{}{
				"depth":         depth,
				"content_type":  resp.Header.Get("Content-Type"),
				"last_modified": resp.Header.Get("Last-Modified"),
			},
		})
	}

	// Find and follow links
	var links []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		link, err := url.Parse(href)
		if err != nil {
			s.logger.Debug("skipping unparseable link", zap.String("href", href), zap.Error(err))
			return
		}
		links = append(links, normalizeURL(resp.Request.URL.ResolveReference(link).String()))
	})

	for _, link := range links {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.scrapeRecursive(ctx, link, depth+1, documents); err != nil {
			s.logger.Warn("error scraping page", zap.String("url", link), zap.Error(err))
		}
	}

	return nil
}

// normalizeURL drops the fragment so in-page anchors are not crawled twice.
func normalizeURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return urlStr
	}
	u.Fragment = ""
	return u.String()
}

// sourceLabel is the last path segment of urlStr, or its host for the root.
func sourceLabel(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return urlStr
	}
	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	if base == "." || base == "/" || base == "" {
		return u.Host
	}
	return base
}

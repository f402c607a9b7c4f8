package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/askflare/internal/app"
	"github.com/xhad/askflare/internal/models"
	"github.com/xhad/askflare/pkg/ingest"
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

type uiTheme struct {
	bar     progressbar.Theme
	spinner int
	colors  bool
}

var themes = map[string]uiTheme{
	"default": {
		bar: progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		},
		spinner: 14,
		colors:  true,
	},
	"ascii": {
		bar: progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		},
		spinner: 9,
		colors:  true,
	},
	"plain": {
		bar: progressbar.Theme{
			Saucer:        "#",
			SaucerHead:    "#",
			SaucerPadding: "-",
			BarStart:      "[",
			BarEnd:        "]",
		},
		spinner: 9,
	},
}

var theme = themes["default"]

// useTheme selects the REPL theme by name. Unknown names keep the default.
func useTheme(name string) {
	t, ok := themes[name]
	if !ok {
		t = themes["default"]
	}
	theme = t
	if !theme.colors {
		color.NoColor = true
	}
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(theme.bar),
		progressbar.OptionEnableColorCodes(theme.colors),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(theme.spinner),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(theme.colors),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func ingestPath(ctx context.Context, a *app.App, path string) error {
	color.Blue("\nLoading documents from %s", path)
	docs, err := a.LoadPath(path)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return storeDocs(ctx, a, docs)
}

func ingestURL(ctx context.Context, a *app.App, url string) error {
	color.Blue("\nStarting documentation pipeline for %s", url)

	var scraped int32
	bar := getSpinner("Scraping documentation...")
	start := time.Now()

	docs, err := a.Scrape(ctx, url, func(string) {
		count := atomic.AddInt32(&scraped, 1)
		bar.Describe(color.CyanString("Scraping documentation (%d pages, %.1f pages/sec)",
			count, float64(count)/time.Since(start).Seconds()))
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("failed to scrape %s: %w", url, err)
	}
	color.Green("\n✓ Scraped %d documents", len(docs))

	return storeDocs(ctx, a, docs)
}

func storeDocs(ctx context.Context, a *app.App, docs []models.Document) error {
	bar := getProgressBar(len(docs), "Embedding and storing documents")
	stats, err := a.Ingest(ctx, docs, func(done, total int) {
		_ = bar.Set(done)
	})
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("failed to store documents: %w", err)
	}
	printStats(stats)
	return nil
}

func printStats(stats ingest.Stats) {
	color.Green("\n✓ Stored %d chunks from %d documents", stats.Chunks, stats.Documents)
	if stats.Skipped > 0 || stats.Failed > 0 {
		color.Yellow("  %d empty documents skipped, %d failed", stats.Skipped, stats.Failed)
	}
}

func chat(ctx context.Context, a *app.App, in io.Reader) error {
	color.Cyan("\nAsk about the Flare documentation (type 'exit' to quit)")

	scanner := bufio.NewScanner(in)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()
	labelColor := color.New(color.FgMagenta).SprintFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		query := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(query, "exit") {
			return nil
		}
		if query == "" {
			continue
		}

		if url := urlRegex.FindString(query); url != "" {
			if err := ingestURL(ctx, a, url); err != nil {
				color.Red("%v", err)
				continue
			}
			query = strings.TrimSpace(strings.Replace(query, url, "", 1))
			if query == "" {
				continue
			}
		}

		spinner := getSpinner("Thinking...")
		result, err := a.Resolve(ctx, query)
		_ = spinner.Finish()
		fmt.Print("\r")

		if err != nil {
			color.Red("Error: %v", err)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		assistantPrompt("\nAssistant %s: %s\n", labelColor("["+string(result.Classification)+"]"), result.Response)
	}
}

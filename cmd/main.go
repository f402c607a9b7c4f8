package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/xhad/askflare/internal/app"
	"github.com/xhad/askflare/pkg/config"
	"github.com/xhad/askflare/pkg/observability"
	"go.uber.org/zap"
)

type Flags struct {
	ConfigPath string
	IngestCSV  string
	IngestDir  string
	DocsURL    string
	Watch      bool
	NoChat     bool
	LogLevel   string
}

func main() {
	flags := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func parseFlags() Flags {
	var flags Flags

	flag.StringVar(&flags.ConfigPath, "config", "", "Path to config file")
	flag.StringVar(&flags.IngestCSV, "ingest-csv", "", "CSV file of documents to ingest (Filename, Metadata, Contents)")
	flag.StringVar(&flags.IngestDir, "ingest-dir", "", "Directory of .md, .mdx, .txt and .csv files to ingest")
	flag.StringVar(&flags.DocsURL, "docs-url", "", "Documentation URL to scrape and ingest")
	flag.BoolVar(&flags.Watch, "watch", false, "Re-ingest files that change in the data directory")
	flag.BoolVar(&flags.NoChat, "no-chat", false, "Exit after ingestion instead of starting the chat")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Override the configured log level")
	flag.Parse()

	return flags
}

func run(ctx context.Context, flags Flags) error {
	// The REPL owns stdout; logs stay at warnings unless configured.
	cfg, err := config.LoadConfig(flags.ConfigPath, config.WithLogDefaults("warn", "console"))
	if err != nil {
		return err
	}
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}
	useTheme(cfg.UI.Theme)

	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, path := range []string{flags.IngestCSV, flags.IngestDir} {
		if path == "" {
			continue
		}
		if err := ingestPath(ctx, a, path); err != nil {
			return err
		}
	}
	if flags.DocsURL != "" {
		if err := ingestURL(ctx, a, flags.DocsURL); err != nil {
			return err
		}
	}

	if flags.Watch {
		color.Blue("Watching %s for changes", cfg.Ingest.DataDir)
		stop := watchInBackground(ctx, a, logger)
		// runs before the deferred Close
		defer stop()
	}

	if flags.NoChat {
		if flags.Watch {
			<-ctx.Done()
		}
		return nil
	}

	return chat(ctx, a, os.Stdin)
}

// watchInBackground re-ingests changed files until stop is called. stop
// waits for an in-flight ingestion to finish.
func watchInBackground(ctx context.Context, a *app.App, logger *zap.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.Watch(ctx); err != nil {
			logger.Error("watcher stopped", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n\nAsk questions about the indexed documentation.\n\n", os.Args[0])
		flag.PrintDefaults()
	}
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragcache/ragcache/internal/app"
	"github.com/ragcache/ragcache/internal/config"
	"github.com/ragcache/ragcache/internal/ingest"
)

var ingestURL string

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Seed the knowledge collection from CSV files or a web page",
	Long: `Embed documents and add them to the knowledge collection.

File arguments are glob patterns (including ** recursion) matching CSV
files; the first column of every record after the header row becomes one
document. With --url, the readable text of a web page is ingested instead,
one document per paragraph.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(_ *cobra.Command, args []string) error {
		return runIngest(args)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "ingest the readable text of a web page")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(patterns []string) error {
	if ingestURL == "" && len(patterns) == 0 {
		return errors.New("nothing to ingest: pass CSV files or --url")
	}
	if ingestURL != "" && len(patterns) > 0 {
		return errors.New("pass either files or --url, not both")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	if err := a.EnsureCollections(ctx); err != nil {
		return fmt.Errorf("ensuring collections: %w", err)
	}

	var progress ingest.ProgressReporter
	if ingest.StderrIsTerminal() {
		progress = ingest.NewBar()
	}

	ing, err := ingest.New(ingest.Config{
		Embedder:  a.Embedder,
		Indexer:   a.Indexer,
		Logger:    logger,
		RateLimit: cfg.IngestRateLimit,
		Progress:  progress,
	})
	if err != nil {
		return fmt.Errorf("creating ingestor: %w", err)
	}

	var n int
	if ingestURL != "" {
		n, err = ing.URL(ctx, ingestURL)
	} else {
		n, err = ing.Files(ctx, patterns)
	}
	if err != nil {
		return fmt.Errorf("ingesting: %w", err)
	}

	logger.Info("ingestion finished",
		"documents", n,
		"collection", cfg.KnowledgeCollection,
	)
	return nil
}

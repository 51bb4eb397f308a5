package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/evaluator/internal/app"
	"github.com/xhad/evaluator/pkg/config"
	"github.com/xhad/evaluator/pkg/llm"
	"github.com/xhad/evaluator/pkg/parser"
	"github.com/xhad/evaluator/pkg/processor"
	"github.com/xhad/evaluator/pkg/store"
	"golang.org/x/time/rate"
)

type args struct {
	Dir       string   `arg:"positional" help:"directory of proposal files to index"`
	URLs      []string `arg:"--url,separate" help:"proposal document URL to index (repeatable)"`
	Query     string   `arg:"--query,-q" help:"search the collection instead of indexing"`
	Limit     int      `arg:"--limit" default:"5" help:"number of matches returned by --query"`
	Delete    []string `arg:"--delete,separate" help:"remove a proposal id from the collection (repeatable)"`
	UUIDIDs   bool     `arg:"--uuid-ids" help:"key records by random UUIDs instead of file stems"`
	Workers   int      `arg:"--workers,-w" help:"parallel parsers, overrides indexer.workers"`
	RateLimit float64  `arg:"--rate-limit" help:"embedding requests per second, overrides indexer.rate_limit"`
	Config    string   `arg:"--config,-c" help:"path to config file"`
}

func (args) Description() string {
	return "Builds the proposal collection used for novelty comparison."
}

func main() {
	var a args
	p := arg.MustParse(&a)
	if a.Dir == "" && len(a.URLs) == 0 && a.Query == "" && len(a.Delete) == 0 {
		p.Fail("one of DIR, --url, --query or --delete is required")
	}

	if err := run(a); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func run(a args) error {
	cfg, err := config.LoadConfig(a.Config)
	if err != nil {
		return err
	}
	if a.Workers > 0 {
		cfg.Indexer.Workers = a.Workers
	}
	if a.RateLimit > 0 {
		cfg.Indexer.RateLimit = a.RateLimit
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Yellow("config error: %s", e)
		}
		return fmt.Errorf("invalid configuration: %d error(s)", len(errs))
	}

	logger := app.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if err := embedder.Probe(ctx); err != nil {
		return fmt.Errorf("embedding backend not ready: %w", err)
	}

	collection, err := store.Open(ctx, store.VectorStoreConfig{
		Driver:     cfg.VectorStore.Driver,
		ConnString: cfg.VectorStore.URL,
		Host:       cfg.VectorStore.Host,
		Port:       cfg.VectorStore.Port,
		APIKey:     cfg.VectorStore.APIKey,
		Collection: cfg.VectorStore.Collection,
		VectorDim:  embedder.Dimension(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer collection.Close()

	ix := &indexer{
		parser: parser.NewWithConfig(parser.ParserConfig{
			Extensions: cfg.Indexer.Extensions,
			RateLimit:  cfg.Indexer.RateLimit,
		}),
		processor:  newProcessor(cfg.Indexer),
		embedder:   embedder,
		collection: collection,
		limiter:    rate.NewLimiter(rate.Limit(cfg.Indexer.RateLimit), 1),
		logger:     logger,
		workers:    cfg.Indexer.Workers,
		uuidIDs:    a.UUIDIDs,
	}

	for _, id := range a.Delete {
		if err := collection.Delete(ctx, id); err != nil {
			return err
		}
		color.Green("✓ Deleted %s", id)
	}

	if a.Dir != "" || len(a.URLs) > 0 {
		if err := runIndex(ctx, ix, a); err != nil {
			return err
		}
	}

	if a.Query != "" {
		return runQuery(ctx, ix, a.Query, a.Limit)
	}
	return nil
}

func newProcessor(cfg config.IndexerConfig) processor.Processor {
	return processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:       cfg.ChunkSize,
		ChunkOverlap:    cfg.ChunkOverlap,
		Lowercase:       cfg.Lowercase,
		RemoveStopwords: cfg.RemoveStopwords,
		CustomStopwords: cfg.Stopwords,
	})
}

func runIndex(ctx context.Context, ix *indexer, a args) error {
	var stats indexStats
	start := time.Now()

	var files []string
	if a.Dir != "" {
		var err error
		files, err = ix.collectFiles(a.Dir)
		if err != nil {
			return err
		}
		color.Blue("\nFound %d proposal files in %s\n", len(files), a.Dir)
	}
	stats.Files = len(files) + len(a.URLs)

	parsingBar := getProgressBar(stats.Files, "📄 Parsing proposals...")
	ix.onParsed = func() { parsingBar.Add(1) }

	proposals, err := ix.parseFiles(ctx, files, &stats)
	if err != nil {
		return err
	}
	proposals = append(proposals, ix.parseURLs(ctx, a.URLs, &stats)...)
	parsingBar.Finish()
	stats.Parsed = len(proposals)
	color.Green("\n✓ Parsed %d proposals (%d skipped)\n", stats.Parsed, stats.Skipped)

	indexingBar := getProgressBar(len(proposals), "💾 Embedding and storing...")
	ix.onIndexed = func() { indexingBar.Add(1) }

	if err := ix.index(ctx, proposals, &stats); err != nil {
		return err
	}
	indexingBar.Finish()

	color.Green("\n✓ Indexed %d proposals from %d chunks in %s\n",
		stats.Upserted, stats.Chunks, time.Since(start).Round(time.Millisecond))

	if n, err := ix.collection.Count(ctx); err == nil {
		color.Cyan("Collection now holds %d proposals", n)
	}
	return nil
}

func runQuery(ctx context.Context, ix *indexer, text string, limit int) error {
	spinner := getSpinner("🔍 Searching proposals...")
	matches, err := ix.query(ctx, text, limit)
	spinner.Finish()
	fmt.Print("\r")
	if err != nil {
		return err
	}

	if len(matches) == 0 {
		color.Yellow("No similar proposals found.")
		return nil
	}

	title := color.New(color.FgCyan, color.Bold).SprintFunc()
	for i, m := range matches {
		fmt.Printf("%d. %s  %s\n", i+1, title(m.Title), color.GreenString("%.3f", m.Score))
		fmt.Printf("   id: %s  source: %s\n", m.ID, m.Source)
	}
	return nil
}

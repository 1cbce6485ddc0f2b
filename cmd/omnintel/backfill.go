// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	uerrors "github.com/omninode/omnintel/internal/errors"
	"github.com/omninode/omnintel/internal/output"
	"github.com/omninode/omnintel/internal/ui"
	"github.com/omninode/omnintel/pkg/breaker"
	"github.com/omninode/omnintel/pkg/bus"
	"github.com/omninode/omnintel/pkg/config"
	"github.com/omninode/omnintel/pkg/crawler"
	"github.com/omninode/omnintel/pkg/embed"
	"github.com/omninode/omnintel/pkg/envelope"
	"github.com/omninode/omnintel/pkg/graphstore"
	"github.com/omninode/omnintel/pkg/handler"
	"github.com/omninode/omnintel/pkg/httpx"
	"github.com/omninode/omnintel/pkg/indexer"
	"github.com/omninode/omnintel/pkg/relstore"
	"github.com/omninode/omnintel/pkg/runtimehost"
	"github.com/omninode/omnintel/pkg/vecstore"
	"github.com/omninode/omnintel/pkg/writer"
)

// BackfillResult summarizes one backfill run for JSON output.
type BackfillResult struct {
	Project         string        `json:"project"`
	Path            string        `json:"path"`
	DryRun          bool          `json:"dry_run"`
	FilesDiscovered int           `json:"files_discovered"`
	FilesPublished  int           `json:"files_published"`
	FilesSkipped    int           `json:"files_skipped"`
	DocumentsOK     int           `json:"documents_indexed"`
	DocumentsFailed int           `json:"documents_failed"`
	ItemsCreated    int           `json:"items_created"`
	ItemsUpdated    int           `json:"items_updated"`
	ItemsSkipped    int           `json:"items_skipped"`
	ItemsFailed     int           `json:"items_failed"`
	Duration        time.Duration `json:"duration_ns"`
}

// runBackfill executes the 'backfill' CLI command: it drives the full
// crawl -> index -> write pipeline in-process over an in-memory log.
// With --dry-run all writes go to in-memory stores and a deterministic
// local embedder, touching no external service.
func runBackfill(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	projectName := fs.String("project-name", "", "Project name (default: repository directory name)")
	dryRun := fs.Bool("dry-run", false, "Index into in-memory stores only")
	maxFiles := fs.Int("max-files", 0, "Stop after this many documents (0 = no limit)")
	batchSize := fs.Int("batch-size", 0, "Crawler batch size (default from config)")
	verbose := fs.BoolP("verbose", "v", false, "Log pipeline events to stderr")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: omnintel backfill [path] [options]

Walks the repository at path (default ".") and indexes every eligible
file through the in-process pipeline.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  omnintel backfill . --project-name myrepo
  omnintel backfill /src/repo --dry-run --max-files 100 -v
`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	repoPath := "."
	if fs.NArg() > 0 {
		repoPath = fs.Arg(0)
	}
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		uerrors.FatalError(uerrors.NewInputError(
			"Invalid repository path", err.Error(), "Pass an existing directory"), globals.JSON)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		uerrors.FatalError(uerrors.NewInputError(
			"Repository path is not a directory",
			abs,
			"Pass the root of the repository to index"), globals.JSON)
	}
	project := *projectName
	if project == "" {
		project = filepath.Base(abs)
	}

	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		uerrors.FatalError(uerrors.NewConfigError(
			"Cannot load configuration", err.Error(),
			"Check the --config path and environment variables", err), globals.JSON)
	}
	if *batchSize > 0 {
		cfg.Crawler.BatchSize = *batchSize
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := backfill(ctx, cfg, abs, project, *dryRun, *maxFiles, globals, logger)
	if ctx.Err() != nil {
		ui.Warning("Interrupted")
		os.Exit(uerrors.ExitInterrupted)
	}
	if err != nil {
		uerrors.FatalError(uerrors.NewInternalError(
			"Backfill failed", err.Error(),
			"Re-run with -v for pipeline logs", err), globals.JSON)
	}

	if globals.JSON {
		_ = output.JSON(result)
		return
	}
	ui.Successf("Indexed %d/%d files for project %q in %s",
		result.DocumentsOK, result.FilesPublished, project, result.Duration.Round(time.Millisecond))
	fmt.Printf("  discovered %d, skipped %d, failed %d\n",
		result.FilesDiscovered, result.FilesSkipped, result.DocumentsFailed)
	fmt.Printf("  items: %d created, %d updated, %d skipped, %d failed\n",
		result.ItemsCreated, result.ItemsUpdated, result.ItemsSkipped, result.ItemsFailed)
	if result.DryRun {
		fmt.Println(ui.DimText("  dry run: no external store was written"))
	}
}

// backfill assembles the pipeline over a MemoryBus and blocks until the
// scan's documents are all terminal, maxFiles is reached, or ctx ends.
func backfill(ctx context.Context, cfg *config.Config, repoPath, project string,
	dryRun bool, maxFiles int, globals GlobalFlags, logger *slog.Logger) (*BackfillResult, error) {

	mb := bus.NewMemoryBus(4)
	router := envelope.NewRouter(cfg.Kafka.Env, cfg.Kafka.Service, nil)
	codec := envelope.Codec{}

	rel, vec, graph, provider, cleanup, err := backfillStores(ctx, cfg, dryRun, logger)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	src := envelope.Source{Service: cfg.Kafka.Service, InstanceID: hostname()}
	emit := func(ctx context.Context, meta writer.EmitMeta, result writer.WriteResult) error {
		env, err := envelope.New(envelope.TypeDocumentIndexed, envelope.DocumentIndexed{
			SourceRef:    meta.SourceRef,
			CrawlScope:   meta.CrawlScope,
			ItemsCreated: result.ItemsCreated,
			ItemsUpdated: result.ItemsUpdated,
			ItemsSkipped: result.ItemsSkipped,
			ItemsFailed:  result.ItemsFailed,
			TotalChunks:  result.TotalChunks,
		}, src)
		if err != nil {
			return err
		}
		// The batch belongs to the chain that requested it.
		if meta.CorrelationID != "" {
			env.CorrelationID = meta.CorrelationID
		}
		if meta.ParentEventID != "" {
			parent := meta.ParentEventID
			env.CausationID = &parent
		}
		raw, err := codec.Encode(env)
		if err != nil {
			return err
		}
		return mb.Publish(ctx, router.TopicFor(env.EventType), env.Key(), raw, nil)
	}

	w := writer.New(rel, vec, graph, writer.Config{
		Collection: cfg.Stores.QdrantCollection,
		TierRules:  cfg.Bootstrap.TierRules,
	}, emit, logger)

	producer := embed.NewProducer(provider, w.WriteBatch, embed.ProducerConfig{
		MaxConcurrent: cfg.Embedding.MaxConcurrent,
		RequestDelay:  cfg.Embedding.InterRequestDelay,
		MaxFileBytes:  cfg.Embedding.MaxFileBytes,
		ChunkSize:     cfg.Embedding.ChunkSize,
		ChunkOverlap:  cfg.Embedding.ChunkOverlap,
		BatchSize:     cfg.Embedding.BatchSize,
	}, logger)

	idx := indexer.New(indexer.HeuristicIntelligence{}, producer, graph,
		breaker.NewRegistry(breaker.Config{}, logger), indexer.Config{
			MaxConcurrentDocuments: cfg.Indexer.MaxConcurrentDocuments,
			JoinTimeout:            cfg.Indexer.JoinTimeout,
			DefaultProject:         project,
		}, logger)
	crawl := crawler.New(mb, router, codec, logger)

	registry := handler.NewRegistry()
	for _, h := range []handler.Handler{crawl, idx} {
		if err := registry.Register(h); err != nil {
			return nil, err
		}
	}
	var topics []string
	for _, et := range registry.EventTypes() {
		topics = append(topics, router.TopicFor(et))
	}

	hostCtx, stopHost := context.WithCancel(ctx)
	defer stopHost()
	host := runtimehost.New(mb.NewConsumer(topics...), mb, router, codec, registry,
		runtimehost.Config{MaxInFlight: cfg.Host.MaxInFlight}, logger)
	hostDone := make(chan error, 1)
	go func() { hostDone <- host.Run(hostCtx) }()

	// Monitoring consumer watches terminal emissions to drive progress
	// and the aggregate result.
	monitor := mb.NewConsumer(
		router.TopicFor(envelope.TypeRepositoryScanCompleted),
		router.TopicFor(envelope.TypeRepositoryScanFailed),
		router.TopicFor(envelope.TypeDocumentIndexCompleted),
		router.TopicFor(envelope.TypeDocumentIndexFailed),
		router.TopicFor(envelope.TypeDocumentIndexed),
	)

	start := time.Now()
	scan, err := envelope.New(envelope.TypeRepositoryScanRequested, envelope.RepositoryScanRequest{
		RepositoryPath:  repoPath,
		ProjectName:     project,
		FilePatterns:    cfg.Crawler.FilePatterns,
		ExcludePatterns: cfg.Crawler.ExcludeGlobs,
		BatchSize:       cfg.Crawler.BatchSize,
	}, src)
	if err != nil {
		return nil, err
	}
	raw, err := codec.Encode(scan)
	if err != nil {
		return nil, err
	}
	if err := mb.Publish(ctx, router.TopicFor(scan.EventType), scan.Key(), raw, nil); err != nil {
		return nil, err
	}

	progress := NewProgressConfig(globals)
	spinner := NewSpinner(progress, "Scanning repository")
	result := &BackfillResult{Project: project, Path: repoPath, DryRun: dryRun}

	bar := (*barState)(nil)
	scanDone := false
	for ctx.Err() == nil {
		msg, err := monitor.Fetch(ctx)
		if err != nil {
			break
		}
		env, err := codec.Decode(msg.Value)
		if err != nil {
			continue
		}
		switch env.EventType {
		case envelope.TypeRepositoryScanCompleted:
			var p envelope.RepositoryScanCompleted
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return nil, err
			}
			if spinner != nil {
				_ = spinner.Finish()
			}
			result.FilesDiscovered = p.FilesDiscovered
			result.FilesPublished = p.FilesPublished
			result.FilesSkipped = p.FilesSkipped
			scanDone = true
			bar = newBarState(progress, int64(p.FilesPublished))
		case envelope.TypeRepositoryScanFailed:
			var p envelope.RepositoryScanFailed
			_ = json.Unmarshal(env.Payload, &p)
			if spinner != nil {
				_ = spinner.Finish()
			}
			return nil, fmt.Errorf("repository scan failed: %s (%s)", p.ErrorMessage, p.ErrorCode)
		case envelope.TypeDocumentIndexCompleted:
			result.DocumentsOK++
			bar.tick()
		case envelope.TypeDocumentIndexFailed:
			result.DocumentsFailed++
			bar.tick()
		case envelope.TypeDocumentIndexed:
			var p envelope.DocumentIndexed
			if err := json.Unmarshal(env.Payload, &p); err == nil {
				result.ItemsCreated += p.ItemsCreated
				result.ItemsUpdated += p.ItemsUpdated
				result.ItemsSkipped += p.ItemsSkipped
				result.ItemsFailed += p.ItemsFailed
			}
		}

		terminal := result.DocumentsOK + result.DocumentsFailed
		if scanDone && terminal >= result.FilesPublished {
			break
		}
		if maxFiles > 0 && terminal >= maxFiles {
			break
		}
	}
	bar.finish()

	stopHost()
	<-hostDone
	result.Duration = time.Since(start)
	return result, ctx.Err()
}

// backfillStores selects real collaborators or the in-memory set.
func backfillStores(ctx context.Context, cfg *config.Config, dryRun bool, logger *slog.Logger) (
	relstore.Store, vecstore.Store, *graphstore.Graph, embed.Provider, func(), error) {

	if dryRun {
		return relstore.NewMemoryStore(), vecstore.NewMemoryStore(),
			graphstore.NewGraph(graphstore.NewMemory()), embed.NewMockProvider(0), func() {}, nil
	}

	httpCfg := httpx.Config{
		MaxConnections:          cfg.HTTPClient.MaxConnections,
		MaxKeepaliveConnections: cfg.HTTPClient.MaxKeepaliveConnections,
		ConnectTimeout:          cfg.HTTPClient.ConnectTimeout,
		ReadTimeout:             cfg.HTTPClient.ReadTimeout,
		MaxAttempts:             cfg.HTTPClient.MaxAttempts,
	}
	rel, err := relstore.NewPostgresStore(ctx, cfg.Stores.PostgresDSN, logger)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	vec := vecstore.NewQdrantStore(cfg.Stores.QdrantURL, httpx.New("qdrant", httpCfg, logger), logger)
	graph := graphstore.NewGraph(graphstore.NewCypherHTTP(cfg.Stores.GraphURL, httpx.New("graph", httpCfg, logger), logger))
	provider := embed.NewHTTPProvider(embed.HTTPConfig{
		BaseURL: cfg.Embedding.ModelURL,
		Model:   cfg.Embedding.Model,
		APIKey:  cfg.Embedding.APIKey,
		Client:  httpCfg,
	}, logger)
	return rel, vec, graph, provider, rel.Close, nil
}

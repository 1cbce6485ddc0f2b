// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	uerrors "github.com/omninode/omnintel/internal/errors"
	"github.com/omninode/omnintel/internal/output"
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
	"github.com/omninode/omnintel/pkg/treeview"
	"github.com/omninode/omnintel/pkg/vecstore"
	"github.com/omninode/omnintel/pkg/writer"
)

// runServe executes the 'serve' CLI command: the Kafka consume loop plus
// the ops HTTP listener (health, metrics, tree queries).
func runServe(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listenAddr := fs.String("listen", "", "Ops listener address (overrides config)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: omnintel serve [options]

Runs the event consumer against the configured Kafka brokers and serves
/healthz, /metrics and /v1/tree/{project} on the ops listener.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		uerrors.FatalError(uerrors.NewConfigError(
			"Cannot load configuration",
			err.Error(),
			"Check the --config path and environment variables",
			err,
		), globals.JSON)
	}
	if *listenAddr != "" {
		cfg.Ops.ListenAddr = *listenAddr
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		uerrors.FatalError(uerrors.NewInternalError(
			"Service terminated with an error",
			err.Error(),
			"Inspect the logs above for the failing component",
			err,
		), globals.JSON)
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	router := envelope.NewRouter(cfg.Kafka.Env, cfg.Kafka.Service, nil)
	codec := envelope.Codec{}

	httpCfg := httpx.Config{
		MaxConnections:          cfg.HTTPClient.MaxConnections,
		MaxKeepaliveConnections: cfg.HTTPClient.MaxKeepaliveConnections,
		ConnectTimeout:          cfg.HTTPClient.ConnectTimeout,
		ReadTimeout:             cfg.HTTPClient.ReadTimeout,
		MaxAttempts:             cfg.HTTPClient.MaxAttempts,
	}

	rel, err := relstore.NewPostgresStore(ctx, cfg.Stores.PostgresDSN, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer rel.Close()

	vec := vecstore.NewQdrantStore(cfg.Stores.QdrantURL, httpx.New("qdrant", httpCfg, logger), logger)
	graph := graphstore.NewGraph(graphstore.NewCypherHTTP(cfg.Stores.GraphURL, httpx.New("graph", httpCfg, logger), logger))

	kafkaCfg := bus.KafkaConfig{
		BootstrapServers: cfg.Kafka.BootstrapServers,
		GroupID:          cfg.Kafka.GroupID,
	}
	publisher := bus.NewKafkaPublisher(kafkaCfg, logger)
	defer publisher.Close()

	// DocumentIndexed emission after each writer batch.
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
		return publisher.Publish(ctx, router.TopicFor(env.EventType), env.Key(), raw, nil)
	}

	w := writer.New(rel, vec, graph, writer.Config{
		Collection: cfg.Stores.QdrantCollection,
		TierRules:  cfg.Bootstrap.TierRules,
	}, emit, logger)

	var provider embed.Provider = embed.NewHTTPProvider(embed.HTTPConfig{
		BaseURL: cfg.Embedding.ModelURL,
		Model:   cfg.Embedding.Model,
		APIKey:  cfg.Embedding.APIKey,
		Client:  httpCfg,
	}, logger)

	producer := embed.NewProducer(provider, w.WriteBatch, embed.ProducerConfig{
		MaxConcurrent: cfg.Embedding.MaxConcurrent,
		RequestDelay:  cfg.Embedding.InterRequestDelay,
		MaxFileBytes:  cfg.Embedding.MaxFileBytes,
		ChunkSize:     cfg.Embedding.ChunkSize,
		ChunkOverlap:  cfg.Embedding.ChunkOverlap,
		BatchSize:     cfg.Embedding.BatchSize,
	}, logger)

	var intel indexer.IntelligenceService = indexer.HeuristicIntelligence{}
	if cfg.Stores.IntelligenceURL != "" {
		intel = indexer.NewHTTPIntelligence(cfg.Stores.IntelligenceURL, httpCfg, logger)
	}
	breakers := breaker.NewRegistry(breaker.Config{}, logger)

	idx := indexer.New(intel, producer, graph, breakers, indexer.Config{
		MaxConcurrentDocuments: cfg.Indexer.MaxConcurrentDocuments,
		JoinTimeout:            cfg.Indexer.JoinTimeout,
		DefaultProject:         cfg.Indexer.DefaultProject,
	}, logger)
	crawl := crawler.New(publisher, router, codec, logger)

	registry := handler.NewRegistry()
	for _, h := range []handler.Handler{crawl, idx} {
		if err := registry.Register(h); err != nil {
			return fmt.Errorf("register %s: %w", h.Name(), err)
		}
	}

	var topics []string
	for _, et := range registry.EventTypes() {
		topics = append(topics, router.TopicFor(et))
	}
	consumer := bus.NewKafkaConsumer(kafkaCfg, topics, logger)
	defer consumer.Close()

	host := runtimehost.New(consumer, publisher, router, codec, registry, runtimehost.Config{
		MaxInFlight:    cfg.Host.MaxInFlight,
		HandlerTimeout: cfg.Host.HandlerTimeout,
		ShutdownGrace:  cfg.Host.ShutdownGrace,
	}, logger)

	trees := treeview.New(graph, logger)
	ops := &http.Server{
		Addr:              cfg.Ops.ListenAddr,
		Handler:           opsRouter(trees),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return host.Run(gctx) })
	g.Go(func() error {
		logger.Info("ops.listen", "addr", cfg.Ops.ListenAddr)
		if err := ops.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ops.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// opsRouter serves health, metrics, and read-only tree queries.
func opsRouter(trees *treeview.Service) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/v1/tree/{project}", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		tr := treeview.Request{
			ProjectName:         chi.URLParam(req, "project"),
			MaxDepth:            intQuery(q.Get("max_depth")),
			IncludeDependencies: q.Get("deps") == "true",
		}
		tree, err := trees.BuildTree(req.Context(), tr)
		if err != nil {
			var notFound *treeview.ErrProjectNotFound
			status := http.StatusBadGateway
			if errors.As(err, &notFound) {
				status = http.StatusNotFound
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = output.JSONErrorTo(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = output.JSONCompactTo(w, tree)
	})
	return r
}

func intQuery(s string) int {
	var n int
	_, _ = fmt.Sscanf(s, "%d", &n)
	return n
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "omnintel"
	}
	return h
}

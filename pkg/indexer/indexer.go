// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package indexer orchestrates single-document indexing: it fans out to
// entity extraction, quality assessment, metadata stamping, and
// embedding in parallel, then maintains the file-tree graph, degrading
// gracefully when non-critical services fail.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/omninode/omnintel/pkg/breaker"
	"github.com/omninode/omnintel/pkg/embed"
	"github.com/omninode/omnintel/pkg/envelope"
	"github.com/omninode/omnintel/pkg/graphstore"
	"github.com/omninode/omnintel/pkg/handler"
	"github.com/omninode/omnintel/pkg/writer"
)

// Config tunes the orchestrator.
type Config struct {
	MaxConcurrentDocuments int           // fan-out bound (default 4)
	JoinTimeout            time.Duration // parallel phase deadline (default 30s)
	DefaultProject         string        // project when the request has none
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentDocuments <= 0 {
		c.MaxConcurrentDocuments = 4
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 30 * time.Second
	}
	if c.DefaultProject == "" {
		c.DefaultProject = "default"
	}
	return c
}

// Indexer handles document_index_requested envelopes.
type Indexer struct {
	intel    IntelligenceService
	producer *embed.Producer
	graph    *graphstore.Graph
	breakers *breaker.Registry
	sem      *semaphore.Weighted
	cfg      Config
	logger   *slog.Logger
}

// New creates the orchestrator. producer must be wired with the
// context-item writer as its sink.
func New(intel IntelligenceService, producer *embed.Producer, graph *graphstore.Graph,
	breakers *breaker.Registry, cfg Config, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Indexer{
		intel:    intel,
		producer: producer,
		graph:    graph,
		breakers: breakers,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentDocuments)),
		cfg:      cfg,
		logger:   logger,
	}
}

// Name implements handler.Handler.
func (ix *Indexer) Name() string { return "document_indexer" }

// EventTypes implements handler.Handler.
func (ix *Indexer) EventTypes() []string {
	return []string{envelope.TypeDocumentIndexRequested}
}

// Handle processes one document and emits exactly one terminal event.
func (ix *Indexer) Handle(ctx context.Context, env envelope.Envelope) handler.Outcome {
	started := time.Now()

	var req envelope.DocumentIndexRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return ix.failed(env, started, envelope.CodeInvalidInput,
			fmt.Sprintf("decode payload: %v", err), false, "", nil)
	}
	if req.SourcePath == "" {
		return ix.failed(env, started, envelope.CodeInvalidInput,
			"source_path is required", false, "", nil)
	}
	if req.Content == nil && !req.IndexingOptions.PointerOnlyIntake {
		return ix.failed(env, started, envelope.CodeInvalidInput,
			"content is required outside pointer-only intake", false, "", nil)
	}

	if err := ix.sem.Acquire(ctx, 1); err != nil {
		return handler.Retry(time.Second)
	}
	defer ix.sem.Release(1)

	var content string
	if req.Content != nil {
		content = *req.Content
	}
	project := req.ProjectID
	if project == "" {
		project = ix.cfg.DefaultProject
	}
	docHash := writer.DocumentHash(content)

	joinCtx, cancel := context.WithTimeout(ctx, ix.cfg.JoinTimeout)
	defer cancel()

	var (
		mu          sync.Mutex
		timings     = map[string]int64{}
		extraction  Extraction
		extractErr  error
		quality     *Quality
		qualityErr  error
		metadata    Metadata
		metadataErr error
		produce     embed.ProduceResult
	)
	timed := func(service string, fn func() error) error {
		t0 := time.Now()
		err := fn()
		mu.Lock()
		timings[service] = time.Since(t0).Milliseconds()
		mu.Unlock()
		return err
	}

	g, gctx := errgroup.WithContext(joinCtx)

	if !req.IndexingOptions.SkipEntities {
		g.Go(func() error {
			// Non-critical: failures degrade to zero entities.
			err := timed("entity_extraction", func() error {
				return ix.breakers.Get("document_indexer:entity_extraction").Do(func() error {
					ex, err := ix.intel.ExtractEntities(gctx, req.SourcePath, req.Language, content)
					if err != nil {
						return err
					}
					mu.Lock()
					extraction = ex
					mu.Unlock()
					return nil
				})
			})
			if err != nil {
				mu.Lock()
				extractErr = err
				mu.Unlock()
			}
			return nil
		})
	}

	if !req.IndexingOptions.SkipQualityCheck {
		g.Go(func() error {
			// Non-critical.
			err := timed("quality", func() error {
				return ix.breakers.Get("document_indexer:quality").Do(func() error {
					q, err := ix.intel.AssessQuality(gctx, req.SourcePath, req.Language, content)
					if err != nil {
						return err
					}
					mu.Lock()
					quality = &q
					mu.Unlock()
					return nil
				})
			})
			if err != nil {
				mu.Lock()
				qualityErr = err
				mu.Unlock()
			}
			return nil
		})
	}

	if !req.IndexingOptions.SkipMetadataStamp {
		g.Go(func() error {
			// Non-critical.
			err := timed("metadata_stamp", func() error {
				return ix.breakers.Get("document_indexer:metadata_stamp").Do(func() error {
					md, err := ix.intel.StampMetadata(gctx, req.SourcePath, req.Language, content)
					if err != nil {
						return err
					}
					mu.Lock()
					metadata = md
					mu.Unlock()
					return nil
				})
			})
			if err != nil {
				mu.Lock()
				metadataErr = err
				mu.Unlock()
			}
			return nil
		})
	}

	if !req.IndexingOptions.SkipEmbedding {
		g.Go(func() error {
			// Critical: the vector path failing aborts the document.
			return timed("embedding", func() error {
				return ix.breakers.Get("document_indexer:embedding").Do(func() error {
					pr, err := ix.producer.Produce(gctx, []embed.SourceFile{{
						SourceRef:     req.SourcePath,
						Content:       content,
						ItemType:      itemType(req.Language),
						CrawlScope:    project,
						CorrelationID: env.CorrelationID,
						ParentEventID: env.EventID,
						VersionHash:   docHash,
					}})
					if err != nil {
						return err
					}
					mu.Lock()
					produce = pr
					mu.Unlock()
					return nil
				})
			})
		})
	}

	if err := g.Wait(); err != nil {
		return ix.failed(env, started, classify(err), err.Error(), true, "embedding",
			partial(extraction, produce))
	}
	if produce.Write.TotalChunks > 0 && produce.Write.ItemsFailed == produce.Write.TotalChunks {
		// Every chunk failed its store writes: the vector path is down.
		return ix.failed(env, started, envelope.CodeDownstream,
			"all chunk writes failed", true, "vector_upsert", partial(extraction, produce))
	}

	relationships := 0
	if !req.IndexingOptions.SkipGraphUpsert {
		err := timed("graph_upsert", func() error {
			return ix.breakers.Get("document_indexer:graph").Do(func() error {
				n, gerr := ix.maintainGraph(ctx, project, req, extraction, docHash, len(content))
				relationships = n
				return gerr
			})
		})
		if err != nil {
			// Critical.
			return ix.failed(env, started, classify(err), err.Error(), true, "graph_upsert",
				partial(extraction, produce))
		}
	}

	vectorIDs := produce.Write.ItemIDs
	if vectorIDs == nil {
		vectorIDs = []string{}
	}
	completed := envelope.DocumentIndexCompleted{
		DocumentHash:         docHash,
		EntityIDs:            entityIDs(extraction.Entities),
		VectorIDs:            vectorIDs,
		EntitiesExtracted:    len(extraction.Entities),
		RelationshipsCreated: relationships,
		ChunksIndexed:        produce.ChunksProduced,
		ProcessingTimeMS:     time.Since(started).Milliseconds(),
		ServiceTimings:       timings,
		Metadata:             metadata,
	}
	if quality != nil {
		completed.QualityScore = &quality.Score
		completed.OnexCompliance = &quality.OnexCompliance
	}
	switch {
	case extractErr != nil:
		completed.FailedService = "entity_extraction"
		completed.PartialResults = map[string]any{"entity_extraction_error": extractErr.Error()}
	case qualityErr != nil:
		completed.FailedService = "quality"
		completed.PartialResults = map[string]any{"quality_error": qualityErr.Error()}
	case metadataErr != nil:
		completed.FailedService = "metadata_stamp"
		completed.PartialResults = map[string]any{"metadata_error": metadataErr.Error()}
	}

	out, err := envelope.Derive(env, envelope.TypeDocumentIndexCompleted, completed)
	if err != nil {
		return ix.failed(env, started, envelope.CodeInternal,
			fmt.Sprintf("build completion event: %v", err), true, "", nil)
	}

	recordDocument("completed", time.Since(started))
	ix.logger.Info("indexer.document.complete",
		"correlation_id", env.CorrelationID,
		"source_path", req.SourcePath,
		"entities", completed.EntitiesExtracted,
		"relationships", relationships,
		"chunks", completed.ChunksIndexed,
		"failed_service", completed.FailedService,
		"duration_ms", completed.ProcessingTimeMS)
	return handler.Ack(out)
}

// maintainGraph upserts the project/dir/file spine for the document and
// its DEFINES and IMPORTS edges. Returns the number of edges written.
func (ix *Indexer) maintainGraph(ctx context.Context, project string,
	req envelope.DocumentIndexRequest, ex Extraction, docHash string, size int) (int, error) {
	if err := ix.graph.EnsureProject(ctx, project, req.RepositoryURL); err != nil {
		return 0, err
	}

	rel := 0
	sourcePath := path.Clean(req.SourcePath)

	// Dir spine from the project root to the file's parent.
	parent := ""
	if dir := path.Dir(sourcePath); dir != "." {
		segs := strings.Split(dir, "/")
		for i := range segs {
			dirPath := strings.Join(segs[:i+1], "/")
			if err := ix.graph.UpsertDir(ctx, graphstore.DirNode{
				Path: dirPath, RelativePath: dirPath, Name: segs[i], Project: project,
			}); err != nil {
				return rel, err
			}
			if parent == "" {
				if err := ix.graph.LinkProjectContains(ctx, project, dirPath); err != nil {
					return rel, err
				}
			} else {
				if err := ix.graph.LinkContains(ctx, parent, dirPath); err != nil {
					return rel, err
				}
			}
			rel++
			parent = dirPath
		}
	}

	// Resolve imports first so import_count matches the edges written.
	targets := resolveImports(sourcePath, req.Language, ex.Imports)

	if err := ix.graph.UpsertFile(ctx, graphstore.FileNode{
		Path:         sourcePath,
		RelativePath: sourcePath,
		Name:         path.Base(sourcePath),
		FileType:     req.Language,
		Size:         int64(size),
		EntityCount:  len(ex.Entities),
		ImportCount:  len(targets),
		LastModified: time.Now().UTC().Format(time.RFC3339),
		FileHash:     docHash,
		EntityID:     entityID(sourcePath, path.Base(sourcePath)),
		Project:      project,
	}); err != nil {
		return rel, err
	}
	if parent == "" {
		if err := ix.graph.LinkProjectContains(ctx, project, sourcePath); err != nil {
			return rel, err
		}
	} else {
		if err := ix.graph.LinkContains(ctx, parent, sourcePath); err != nil {
			return rel, err
		}
	}
	rel++

	for _, e := range ex.Entities {
		if err := ix.graph.UpsertEntity(ctx, graphstore.EntityNode{
			EntityID: e.ID, Name: e.Name, Type: e.Type, Project: project,
		}); err != nil {
			return rel, err
		}
		if err := ix.graph.LinkDefines(ctx, sourcePath, e.ID); err != nil {
			return rel, err
		}
		rel++
	}

	for target, imp := range targets {
		if err := ix.graph.EnsureFile(ctx, target, target, path.Base(target), project); err != nil {
			return rel, err
		}
		if err := ix.graph.LinkImports(ctx, sourcePath, target, graphstore.ImportEdge{
			ImportType: imp.ImportType,
			LineNumber: imp.LineNumber,
			Confidence: imp.Confidence,
		}); err != nil {
			return rel, err
		}
		rel++
	}

	return rel, nil
}

// resolveImports maps extracted imports to repository-relative file
// paths. Imports that cannot name a file in the repository (standard
// library, external packages) carry no edge.
func resolveImports(sourcePath, language string, imports []Import) map[string]Import {
	dir := path.Dir(sourcePath)
	out := make(map[string]Import, len(imports))
	for _, imp := range imports {
		target := imp.Target
		switch {
		case strings.Contains(target, "."):
			if language == "python" && !strings.Contains(target, "/") {
				// Dotted module path.
				out[joinRel(dir, strings.ReplaceAll(target, ".", "/")+".py")] = imp
			} else if path.Ext(target) != "" {
				out[joinRel(dir, target)] = imp
			}
		case language == "python":
			out[joinRel(dir, target+".py")] = imp
		}
	}
	return out
}

func joinRel(dir, p string) string {
	if dir == "." {
		return p
	}
	return path.Join(dir, p)
}

func itemType(language string) string {
	if language == "markdown" || language == "" {
		return "doc_chunk"
	}
	return "code_chunk"
}

func entityIDs(entities []Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.ID)
	}
	return out
}

// classify maps a fan-out error onto the failure taxonomy.
func classify(err error) envelope.ErrorCode {
	switch {
	case errors.Is(err, breaker.ErrCircuitOpen):
		return envelope.CodeCircuitOpen
	case errors.Is(err, context.DeadlineExceeded):
		return envelope.CodeDownstream
	default:
		return envelope.CodeDownstream
	}
}

func partial(ex Extraction, pr embed.ProduceResult) map[string]any {
	return map[string]any{
		"entities_extracted": len(ex.Entities),
		"chunks_indexed":     pr.ChunksProduced,
	}
}

// failed builds the terminal failure event.
func (ix *Indexer) failed(env envelope.Envelope, started time.Time, code envelope.ErrorCode,
	msg string, retryAllowed bool, failedService string, partialResults map[string]any) handler.Outcome {
	out, err := envelope.Derive(env, envelope.TypeDocumentIndexFailed, envelope.DocumentIndexFailed{
		ErrorMessage:     msg,
		ErrorCode:        code,
		RetryAllowed:     retryAllowed,
		ProcessingTimeMS: time.Since(started).Milliseconds(),
		FailedService:    failedService,
		PartialResults:   partialResults,
	})
	if err != nil {
		return handler.DeadLetter(string(code))
	}
	recordDocument("failed", time.Since(started))
	ix.logger.Warn("indexer.document.failed",
		"correlation_id", env.CorrelationID, "code", code,
		"failed_service", failedService, "error", msg)
	return handler.Ack(out)
}

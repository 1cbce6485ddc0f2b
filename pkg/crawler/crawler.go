// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package crawler implements the repository scan handler: it walks a
// repository root once, prunes excluded directories in place, and fans
// the surviving files out as document index requests on the same
// correlation chain.
package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/omninode/omnintel/pkg/bus"
	"github.com/omninode/omnintel/pkg/envelope"
	"github.com/omninode/omnintel/pkg/handler"
)

// DefaultBatchSize smooths downstream load during fan-out.
const DefaultBatchSize = 50

// DefaultExcludes prune the directories no indexing run wants.
var DefaultExcludes = []string{
	".git", "node_modules", "vendor", "dist", "build", "__pycache__", ".venv",
}

// Crawler handles repository_scan_requested envelopes.
type Crawler struct {
	publisher bus.Publisher
	router    *envelope.Router
	codec     envelope.Codec
	logger    *slog.Logger
}

// New creates the scan handler.
func New(publisher bus.Publisher, router *envelope.Router, codec envelope.Codec, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{publisher: publisher, router: router, codec: codec, logger: logger}
}

// Name implements handler.Handler.
func (c *Crawler) Name() string { return "repository_crawler" }

// EventTypes implements handler.Handler.
func (c *Crawler) EventTypes() []string {
	return []string{envelope.TypeRepositoryScanRequested}
}

// Handle walks the repository and publishes one document index request
// per surviving file, then returns the terminal scan event. Invalid
// input produces a terminal failed event rather than a retry: rescanning
// a missing directory cannot succeed.
func (c *Crawler) Handle(ctx context.Context, env envelope.Envelope) handler.Outcome {
	var req envelope.RepositoryScanRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return c.failed(env, envelope.CodeInvalidInput, fmt.Sprintf("decode payload: %v", err))
	}

	info, err := os.Stat(req.RepositoryPath)
	if err != nil || !info.IsDir() {
		return c.failed(env, envelope.CodeInvalidInput,
			fmt.Sprintf("repository_path %q is not a directory", req.RepositoryPath))
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	excludes := req.ExcludePatterns
	if len(excludes) == 0 {
		excludes = DefaultExcludes
	}

	started := time.Now()
	files, skipped, err := c.walk(req.RepositoryPath, req.FilePatterns, excludes)
	if err != nil {
		return c.failed(env, envelope.CodeInternal, fmt.Sprintf("walk repository: %v", err))
	}

	published := 0
	batches := 0
	summaries := make([]envelope.FileSummary, 0, len(files))
	pending := 0
	for _, f := range files {
		raw, err := os.ReadFile(f.fullPath)
		if err != nil {
			skipped++
			c.logger.Warn("crawler.file.unreadable", "path", f.relPath, "error", err)
			continue
		}
		content := strings.ToValidUTF8(string(raw), "�")

		child, err := envelope.Derive(env, envelope.TypeDocumentIndexRequested, envelope.DocumentIndexRequest{
			SourcePath:    f.relPath,
			Content:       &content,
			Language:      f.language,
			ProjectID:     req.ProjectName,
			RepositoryURL: req.RepositoryPath,
		})
		if err != nil {
			skipped++
			c.logger.Warn("crawler.derive.failed", "path", f.relPath, "error", err)
			continue
		}
		encoded, err := c.codec.Encode(child)
		if err != nil {
			skipped++
			c.logger.Warn("crawler.encode.failed", "path", f.relPath, "error", err)
			continue
		}
		topic := c.router.TopicFor(child.EventType)
		if err := c.publisher.Publish(ctx, topic, child.Key(), encoded, nil); err != nil {
			// The broker refusing writes is transient; redeliver the scan.
			return handler.Retry(5 * time.Second)
		}
		published++
		pending++
		if pending == batchSize {
			batches++
			pending = 0
			recordBatch()
		}

		summaries = append(summaries, envelope.FileSummary{
			RelativePath: f.relPath,
			Language:     f.language,
			SizeBytes:    f.size,
		})
	}
	if pending > 0 {
		batches++
		recordBatch()
	}
	recordScan(len(files), published, skipped)

	completed, err := envelope.Derive(env, envelope.TypeRepositoryScanCompleted, envelope.RepositoryScanCompleted{
		FilesDiscovered: len(files) + skipped,
		FilesPublished:  published,
		FilesSkipped:    skipped,
		BatchesCreated:  batches,
		FileSummaries:   summaries,
	})
	if err != nil {
		return c.failed(env, envelope.CodeInternal, fmt.Sprintf("build completion event: %v", err))
	}

	c.logger.Info("crawler.scan.complete",
		"correlation_id", env.CorrelationID,
		"root", req.RepositoryPath,
		"published", published,
		"skipped", skipped,
		"batches", batches,
		"duration_ms", time.Since(started).Milliseconds())
	return handler.Ack(completed)
}

type crawledFile struct {
	relPath  string
	fullPath string
	size     int64
	language string
}

// walk traverses the tree once. Directories matching an exclude pattern
// are pruned without descending; files must match an include pattern
// (when any are given) and no exclude pattern. WalkDir visits entries in
// lexical order, so output order is stable.
func (c *Crawler) walk(root string, includes, excludes []string) ([]crawledFile, int, error) {
	var files []crawledFile
	skipped := 0

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			c.logger.Warn("crawler.walk.error", "path", p, "error", err)
			return nil
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if matchAny(excludes, rel) {
				return filepath.SkipDir
			}
			return nil
		}

		// Excluded wins over included.
		if matchAny(excludes, rel) {
			skipped++
			return nil
		}
		if len(includes) > 0 && !matchAny(includes, rel) {
			skipped++
			return nil
		}

		info, ierr := d.Info()
		if ierr != nil {
			skipped++
			return nil
		}
		files = append(files, crawledFile{
			relPath:  rel,
			fullPath: p,
			size:     info.Size(),
			language: DetectLanguage(rel),
		})
		return nil
	})
	if err != nil {
		return nil, skipped, err
	}
	return files, skipped, nil
}

// failed builds the terminal failure event for a scan.
func (c *Crawler) failed(env envelope.Envelope, code envelope.ErrorCode, msg string) handler.Outcome {
	failed, err := envelope.Derive(env, envelope.TypeRepositoryScanFailed, envelope.RepositoryScanFailed{
		ErrorCode:    code,
		ErrorMessage: msg,
		RetryAllowed: false,
	})
	if err != nil {
		return handler.DeadLetter(string(code))
	}
	c.logger.Warn("crawler.scan.failed",
		"correlation_id", env.CorrelationID, "code", code, "error", msg)
	return handler.Ack(failed)
}

// langByExt maps file extensions to language names.
var langByExt = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".sh":    "bash",
	".proto": "protobuf",
	".md":    "markdown",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".sql":   "sql",
}

// DetectLanguage classifies a file by extension; unknown extensions
// return the empty string.
func DetectLanguage(p string) string {
	return langByExt[strings.ToLower(filepath.Ext(p))]
}

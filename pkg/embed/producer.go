// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package embed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/omninode/omnintel/pkg/writer"
)

// SourceFile is one file handed to the producer.
type SourceFile struct {
	SourceRef     string
	Content       string
	ItemType      string
	CrawlScope    string
	CorrelationID string
	ParentEventID string
	VersionHash   string
}

// ProducerConfig tunes the batch producer.
type ProducerConfig struct {
	MaxConcurrent  int           // in-flight embedding requests (default 5)
	RequestDelay   time.Duration // inter-request delay per slot (default 20ms)
	MaxRetries     int           // retries after the first attempt (default 3)
	AttemptTimeout time.Duration // per-attempt deadline (default 30s)
	InitialBackoff time.Duration // default 200ms
	MaxBackoff     time.Duration // default 2s
	MaxFileBytes   int           // skip threshold (default 2 MiB)
	ChunkSize      int           // characters per chunk (default 1000)
	ChunkOverlap   int           // characters shared between chunks (default 100)
	BatchSize      int           // chunks per writer batch (default 25)
}

func (c ProducerConfig) withDefaults() ProducerConfig {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 5
	}
	if c.RequestDelay <= 0 {
		c.RequestDelay = 20 * time.Millisecond
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 30 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = 2 << 20
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = 100
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 25
	}
	return c
}

// ProduceResult carries the skip and failure counters of one run.
type ProduceResult struct {
	FilesEmbedded   int
	ChunksProduced  int
	SkippedTooLarge int
	SkippedBinary   int
	FailedEmbedding int
	Write           writer.WriteResult
}

// BatchSink receives embedded chunks, usually writer.WriteBatch.
type BatchSink func(ctx context.Context, chunks []writer.EmbeddedChunk) (writer.WriteResult, error)

// Producer turns source files into embedded chunks and hands them to a
// sink in fixed-size batches. Embedding requests run under a semaphore
// with an inter-request delay so a large backfill cannot saturate the
// embedding service.
type Producer struct {
	provider Provider
	sink     BatchSink
	cfg      ProducerConfig
	logger   *slog.Logger
}

// NewProducer creates a producer.
func NewProducer(provider Provider, sink BatchSink, cfg ProducerConfig, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{provider: provider, sink: sink, cfg: cfg.withDefaults(), logger: logger}
}

// Produce embeds every eligible chunk of every file and flushes them to
// the sink. Per-file failures are counted, not fatal; Produce only
// errors when the context is cancelled or the sink fails.
func (p *Producer) Produce(ctx context.Context, files []SourceFile) (ProduceResult, error) {
	var result ProduceResult
	sem := semaphore.NewWeighted(int64(p.cfg.MaxConcurrent))

	type embedded struct {
		chunk writer.EmbeddedChunk
		err   error
	}

	var pending []writer.EmbeddedChunk
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		wr, err := p.sink(ctx, pending)
		if err != nil {
			return fmt.Errorf("write batch: %w", err)
		}
		result.Write = accumulate(result.Write, wr)
		pending = pending[:0]
		return nil
	}

	for _, file := range files {
		switch {
		case len(file.Content) > p.cfg.MaxFileBytes:
			result.SkippedTooLarge++
			recordSkip("too_large")
			continue
		case !utf8.ValidString(file.Content):
			result.SkippedBinary++
			recordSkip("binary")
			continue
		}

		chunks := splitChunks(file, p.cfg.ChunkSize, p.cfg.ChunkOverlap)

		// Embed this file's chunks concurrently under the shared
		// semaphore, then append results in chunk order.
		results := make([]embedded, len(chunks))
		var wg sync.WaitGroup
		for i := range chunks {
			if err := sem.Acquire(ctx, 1); err != nil {
				return result, err
			}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer sem.Release(1)
				vec, err := p.embedWithRetry(ctx, chunks[i].Content)
				if err == nil {
					chunks[i].Embedding = vec
				}
				results[i] = embedded{chunk: chunks[i], err: err}
				select {
				case <-ctx.Done():
				case <-time.After(p.cfg.RequestDelay):
				}
			}(i)
		}
		wg.Wait()
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		fileFailed := false
		for _, r := range results {
			if r.err != nil {
				result.FailedEmbedding++
				fileFailed = true
				recordSkip("failed_embedding")
				p.logger.Warn("embed.chunk.failed",
					"source_ref", r.chunk.SourceRef,
					"char_start", r.chunk.CharStart,
					"error", r.err)
				continue
			}
			pending = append(pending, r.chunk)
			result.ChunksProduced++
			if len(pending) >= p.cfg.BatchSize {
				if err := flush(); err != nil {
					return result, err
				}
			}
		}
		if !fileFailed {
			result.FilesEmbedded++
		}
	}

	if err := flush(); err != nil {
		return result, err
	}

	p.logger.Info("embed.produce.complete",
		"files", len(files),
		"files_embedded", result.FilesEmbedded,
		"chunks", result.ChunksProduced,
		"skipped_too_large", result.SkippedTooLarge,
		"skipped_binary", result.SkippedBinary,
		"failed_embedding", result.FailedEmbedding)
	return result, nil
}

// embedWithRetry wraps one provider call in a per-attempt timeout and
// jittered exponential backoff.
func (p *Producer) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.InitialBackoff
	bo.MaxInterval = p.cfg.MaxBackoff
	bo.MaxElapsedTime = 0

	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
		vec, err := p.provider.Embed(attemptCtx, text)
		cancel()
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if attempt == p.cfg.MaxRetries {
			break
		}
		recordRetry()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}
	return nil, lastErr
}

// splitChunks slices content into overlapping character windows. The
// last chunk may be short; positions index into the original content.
func splitChunks(file SourceFile, size, overlap int) []writer.EmbeddedChunk {
	itemType := file.ItemType
	if itemType == "" {
		itemType = "code_chunk"
	}
	var chunks []writer.EmbeddedChunk
	step := size - overlap
	for start := 0; start < len(file.Content); start += step {
		end := start + size
		if end > len(file.Content) {
			end = len(file.Content)
		}
		chunks = append(chunks, writer.EmbeddedChunk{
			Content:       file.Content[start:end],
			ItemType:      itemType,
			CharStart:     start,
			CharEnd:       end,
			SourceRef:     file.SourceRef,
			CrawlScope:    file.CrawlScope,
			CorrelationID: file.CorrelationID,
			ParentEventID: file.ParentEventID,
			VersionHash:   file.VersionHash,
		})
		if end == len(file.Content) {
			break
		}
	}
	return chunks
}

func accumulate(a, b writer.WriteResult) writer.WriteResult {
	return writer.WriteResult{
		ItemsCreated: a.ItemsCreated + b.ItemsCreated,
		ItemsUpdated: a.ItemsUpdated + b.ItemsUpdated,
		ItemsSkipped: a.ItemsSkipped + b.ItemsSkipped,
		ItemsFailed:  a.ItemsFailed + b.ItemsFailed,
		TotalChunks:  a.TotalChunks + b.TotalChunks,
		ItemIDs:      append(append([]string{}, a.ItemIDs...), b.ItemIDs...),
		EventEmitted: a.EventEmitted || b.EventEmitted,
	}
}

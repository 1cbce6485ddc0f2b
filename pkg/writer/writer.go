// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package writer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/omninode/omnintel/pkg/graphstore"
	"github.com/omninode/omnintel/pkg/relstore"
	"github.com/omninode/omnintel/pkg/vecstore"
)

// WriteResult reports the outcome counters of one batch. It is returned
// by value and never mutated after WriteBatch returns. ItemIDs carries
// the relational item ids of every non-failed chunk; point ids in the
// vector collection are the same values.
type WriteResult struct {
	ItemsCreated int
	ItemsUpdated int
	ItemsSkipped int
	ItemsFailed  int
	TotalChunks  int
	ItemIDs      []string
	EventEmitted bool
}

// EmitMeta identifies the chain the post-write event belongs to.
// CorrelationID and ParentEventID come from the chunks, which inherit
// them from the request envelope that started the batch.
type EmitMeta struct {
	SourceRef     string
	CrawlScope    string
	CorrelationID string
	ParentEventID string
}

// EmitFunc publishes the post-write document_indexed event. A nil
// EmitFunc disables emission. Emission failures never fail the batch.
type EmitFunc func(ctx context.Context, meta EmitMeta, result WriteResult) error

// Config tunes a Writer.
type Config struct {
	Collection string
	TierRules  []TierRule
}

// Writer applies embedded chunks to the triple store: relational rows,
// vector points keyed by item id, and CONTEXT_ITEM graph links.
type Writer struct {
	rel        relstore.Store
	vec        vecstore.Store
	graph      *graphstore.Graph
	collection string
	tiers      *TierClassifier
	emit       EmitFunc
	log        *slog.Logger
}

// New creates a Writer. graph and emit may be nil; a nil graph skips the
// CONTEXT_ITEM link, a nil emit disables the post-write event.
func New(rel relstore.Store, vec vecstore.Store, graph *graphstore.Graph, cfg Config, emit EmitFunc, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "context_items"
	}
	return &Writer{
		rel:        rel,
		vec:        vec,
		graph:      graph,
		collection: collection,
		tiers:      NewTierClassifier(cfg.TierRules),
		emit:       emit,
		log:        log,
	}
}

// WriteBatch classifies and writes each chunk in order. A chunk that
// fails any of its writes counts FAILED and processing continues with
// the next chunk; the batch itself only errors on invariant violations
// (an empty batch is valid and writes nothing).
func (w *Writer) WriteBatch(ctx context.Context, chunks []EmbeddedChunk) (WriteResult, error) {
	started := time.Now()
	result := WriteResult{TotalChunks: len(chunks)}

	var meta EmitMeta
	for i := range chunks {
		chunk := &chunks[i]
		if meta.SourceRef == "" {
			meta = EmitMeta{
				SourceRef:     chunk.SourceRef,
				CrawlScope:    chunk.CrawlScope,
				CorrelationID: chunk.CorrelationID,
				ParentEventID: chunk.ParentEventID,
			}
		}
		status, itemID, err := w.writeOne(ctx, chunk)
		if itemID != "" {
			result.ItemIDs = append(result.ItemIDs, itemID)
		}
		switch status {
		case StatusCreated:
			result.ItemsCreated++
		case StatusUpdated:
			result.ItemsUpdated++
		case StatusSkipped:
			result.ItemsSkipped++
		case StatusFailed:
			result.ItemsFailed++
			w.log.Warn("writer.chunk.failed",
				"source_ref", chunk.SourceRef,
				"char_start", chunk.CharStart,
				"char_end", chunk.CharEnd,
				"error", err)
		}
		recordChunkStatus(status)
	}

	if w.emit != nil && len(chunks) > 0 {
		if err := w.emit(ctx, meta, result); err != nil {
			w.log.Warn("writer.event.emit_failed",
				"source_ref", meta.SourceRef,
				"correlation_id", meta.CorrelationID,
				"error", err)
		} else {
			result.EventEmitted = true
		}
	}

	recordBatch(time.Since(started))
	w.log.Info("writer.batch.complete",
		"source_ref", meta.SourceRef,
		"correlation_id", meta.CorrelationID,
		"created", result.ItemsCreated,
		"updated", result.ItemsUpdated,
		"skipped", result.ItemsSkipped,
		"failed", result.ItemsFailed,
		"total", result.TotalChunks,
		"duration_ms", time.Since(started).Milliseconds())
	return result, nil
}

// writeOne resolves a single chunk to its status and item id. The
// fingerprint is computed from content when the producer did not supply
// one.
func (w *Writer) writeOne(ctx context.Context, chunk *EmbeddedChunk) (string, string, error) {
	fingerprint := chunk.ContentFingerprint
	if fingerprint == "" {
		fingerprint = Fingerprint(chunk.Content)
	}

	existing, err := w.rel.LookupByPosition(ctx, chunk.SourceRef, chunk.CharStart, chunk.CharEnd)
	if err != nil {
		return StatusFailed, "", fmt.Errorf("positional lookup: %w", err)
	}

	if existing == nil {
		itemID, err := w.create(ctx, chunk, fingerprint)
		if err != nil {
			return StatusFailed, "", err
		}
		return StatusCreated, itemID, nil
	}

	if existing.Fingerprint == fingerprint {
		return StatusSkipped, existing.ItemID, nil
	}

	if err := w.update(ctx, chunk, existing.ItemID, fingerprint); err != nil {
		return StatusFailed, "", err
	}
	return StatusUpdated, existing.ItemID, nil
}

func (w *Writer) create(ctx context.Context, chunk *EmbeddedChunk, fingerprint string) (string, error) {
	tier, confidence := w.tiers.Classify(chunk.SourceRef)
	item := relstore.Item{
		ID:                   uuid.NewString(),
		SourceRef:            chunk.SourceRef,
		CharStart:            chunk.CharStart,
		CharEnd:              chunk.CharEnd,
		ItemType:             chunk.ItemType,
		ContentFingerprint:   fingerprint,
		VersionHash:          chunk.VersionHash,
		NormalisationVersion: NormalisationVersion,
		CrawlScope:           chunk.CrawlScope,
		BootstrapTier:        tier,
		BootstrapConfidence:  confidence,
		CorrelationID:        chunk.CorrelationID,
	}
	if err := w.rel.InsertItem(ctx, item); err != nil {
		return "", fmt.Errorf("insert item: %w", err)
	}
	if err := w.upsertPoint(ctx, item.ID, chunk, fingerprint, tier, confidence); err != nil {
		return "", err
	}
	if w.graph != nil {
		if err := w.graph.LinkContextItem(ctx, item.ID, chunk.SourceRef); err != nil {
			return "", err
		}
	}
	return item.ID, nil
}

func (w *Writer) update(ctx context.Context, chunk *EmbeddedChunk, itemID, fingerprint string) error {
	if err := w.rel.UpdateItemFingerprint(ctx, itemID, fingerprint, chunk.VersionHash); err != nil {
		return fmt.Errorf("update fingerprint: %w", err)
	}
	// Point id equals item id, so the upsert overwrites in place.
	tier, confidence := w.tiers.Classify(chunk.SourceRef)
	if err := w.upsertPoint(ctx, itemID, chunk, fingerprint, tier, confidence); err != nil {
		return err
	}
	// Re-emit the graph link: idempotent on an intact graph, restores
	// the edge when the graph store was rebuilt since the create.
	if w.graph != nil {
		if err := w.graph.LinkContextItem(ctx, itemID, chunk.SourceRef); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) upsertPoint(ctx context.Context, itemID string, chunk *EmbeddedChunk, fingerprint, tier string, confidence float64) error {
	payload := map[string]any{
		"source_ref":            chunk.SourceRef,
		"char_start":            chunk.CharStart,
		"char_end":              chunk.CharEnd,
		"item_type":             chunk.ItemType,
		"content_fingerprint":   fingerprint,
		"normalisation_version": NormalisationVersion,
		"crawl_scope":           chunk.CrawlScope,
		"bootstrap_tier":        tier,
		"bootstrap_confidence":  confidence,
		"correlation_id":        chunk.CorrelationID,
	}
	if err := w.vec.UpsertPoint(ctx, w.collection, itemID, chunk.Embedding, payload); err != nil {
		return fmt.Errorf("upsert point: %w", err)
	}
	return nil
}

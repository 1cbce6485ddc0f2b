// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package writer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omninode/omnintel/pkg/graphstore"
	"github.com/omninode/omnintel/pkg/relstore"
	"github.com/omninode/omnintel/pkg/vecstore"
)

func testChunks() []EmbeddedChunk {
	contents := []string{"func main() {}\n", "type Config struct {}\n", "// README intro\n"}
	chunks := make([]EmbeddedChunk, 0, len(contents))
	offset := 0
	for _, c := range contents {
		chunks = append(chunks, EmbeddedChunk{
			Content:       c,
			ItemType:      "code_chunk",
			CharStart:     offset,
			CharEnd:       offset + len(c),
			SourceRef:     "repo/src/main.go",
			CrawlScope:    "repo",
			Embedding:     []float32{0.1, 0.2, 0.3},
			CorrelationID: "corr-1",
			ParentEventID: "evt-1",
		})
		offset += len(c)
	}
	return chunks
}

func newTestWriter(t *testing.T) (*Writer, *relstore.MemoryStore, *vecstore.MemoryStore, *graphstore.Memory) {
	t.Helper()
	rel := relstore.NewMemoryStore()
	vec := vecstore.NewMemoryStore()
	mem := graphstore.NewMemory()
	w := New(rel, vec, graphstore.NewGraph(mem), Config{}, nil, nil)
	return w, rel, vec, mem
}

func TestWriteBatchCreatesAllOnFirstRun(t *testing.T) {
	w, rel, vec, _ := newTestWriter(t)
	chunks := testChunks()

	result, err := w.WriteBatch(context.Background(), chunks)
	require.NoError(t, err)

	assert.Equal(t, 3, result.ItemsCreated)
	assert.Equal(t, 0, result.ItemsUpdated)
	assert.Equal(t, 0, result.ItemsSkipped)
	assert.Equal(t, 0, result.ItemsFailed)
	assert.Equal(t, 3, result.TotalChunks)
	assert.Equal(t, 3, rel.Len())

	rec, err := rel.LookupByPosition(context.Background(), "repo/src/main.go", chunks[0].CharStart, chunks[0].CharEnd)
	require.NoError(t, err)
	require.NotNil(t, rec)
	p, ok := vec.Point("context_items", rec.ItemID)
	require.True(t, ok, "vector point id must equal item id")
	assert.Equal(t, "repo/src/main.go", p.Payload["source_ref"])
}

func TestWriteBatchSecondRunSkipsEverything(t *testing.T) {
	w, rel, _, _ := newTestWriter(t)
	chunks := testChunks()

	_, err := w.WriteBatch(context.Background(), chunks)
	require.NoError(t, err)

	result, err := w.WriteBatch(context.Background(), testChunks())
	require.NoError(t, err)

	assert.Equal(t, 0, result.ItemsCreated)
	assert.Equal(t, 0, result.ItemsUpdated)
	assert.Equal(t, 3, result.ItemsSkipped)
	assert.Equal(t, 0, result.ItemsFailed)
	assert.Equal(t, 3, rel.Len(), "re-ingest must not grow the store")
}

func TestWriteBatchUpdatesChangedContentInPlace(t *testing.T) {
	w, rel, vec, _ := newTestWriter(t)
	chunks := testChunks()

	_, err := w.WriteBatch(context.Background(), chunks)
	require.NoError(t, err)

	before, err := rel.LookupByPosition(context.Background(), chunks[1].SourceRef, chunks[1].CharStart, chunks[1].CharEnd)
	require.NoError(t, err)
	require.NotNil(t, before)

	changed := testChunks()
	changed[1].Content = "type Config struct { Debug bool }\n"
	changed[1].VersionHash = "v2"

	result, err := w.WriteBatch(context.Background(), changed)
	require.NoError(t, err)

	assert.Equal(t, 0, result.ItemsCreated)
	assert.Equal(t, 1, result.ItemsUpdated)
	assert.Equal(t, 2, result.ItemsSkipped)
	assert.Equal(t, 3, rel.Len())

	after, err := rel.LookupByPosition(context.Background(), chunks[1].SourceRef, chunks[1].CharStart, chunks[1].CharEnd)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, before.ItemID, after.ItemID, "position keeps its item id across updates")
	assert.NotEqual(t, before.Fingerprint, after.Fingerprint)

	item, ok := rel.Item(after.ItemID)
	require.True(t, ok)
	assert.Equal(t, "v2", item.VersionHash)

	p, ok := vec.Point("context_items", after.ItemID)
	require.True(t, ok)
	assert.Equal(t, after.Fingerprint, p.Payload["content_fingerprint"])
}

func TestWriteBatchNormalisationMakesLineEndingsEquivalent(t *testing.T) {
	w, _, _, _ := newTestWriter(t)
	chunks := testChunks()

	_, err := w.WriteBatch(context.Background(), chunks)
	require.NoError(t, err)

	crlf := testChunks()
	crlf[0].Content = "func main() {}\r\n"

	result, err := w.WriteBatch(context.Background(), crlf)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ItemsSkipped, "CRLF-only difference is not an update")
}

func TestWriteBatchUpdateRestoresGraphLink(t *testing.T) {
	rel := relstore.NewMemoryStore()
	vec := vecstore.NewMemoryStore()
	first := New(rel, vec, graphstore.NewGraph(graphstore.NewMemory()), Config{}, nil, nil)

	_, err := first.WriteBatch(context.Background(), testChunks())
	require.NoError(t, err)

	// Same stores, rebuilt graph: an update must re-emit the link, not
	// assume the edge from the original create survived.
	rebuilt := graphstore.NewMemory()
	second := New(rel, vec, graphstore.NewGraph(rebuilt), Config{}, nil, nil)

	changed := testChunks()
	changed[1].Content = "type Config struct { Debug bool }\n"

	result, err := second.WriteBatch(context.Background(), changed)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ItemsUpdated)

	rec, err := rel.LookupByPosition(context.Background(), changed[1].SourceRef, changed[1].CharStart, changed[1].CharEnd)
	require.NoError(t, err)
	require.NotNil(t, rec)
	_, ok := rebuilt.Node("CONTEXT_ITEM", rec.ItemID)
	assert.True(t, ok, "updated item links into the rebuilt graph")
}

func TestWriteBatchFailedChunkDoesNotStopTheBatch(t *testing.T) {
	rel := relstore.NewMemoryStore()
	vec := vecstore.NewMemoryStore()
	mem := graphstore.NewMemory()
	mem.FailOn = map[string]error{
		graphstore.QueryLinkContextItem: errors.New("graph unavailable"),
	}
	w := New(rel, vec, graphstore.NewGraph(mem), Config{}, nil, nil)

	result, err := w.WriteBatch(context.Background(), testChunks())
	require.NoError(t, err)

	assert.Equal(t, 0, result.ItemsCreated)
	assert.Equal(t, 3, result.ItemsFailed)
	assert.Equal(t, 3, result.TotalChunks)
}

func TestWriteBatchEmitsEventAfterWrites(t *testing.T) {
	rel := relstore.NewMemoryStore()
	vec := vecstore.NewMemoryStore()

	var emitted []WriteResult
	emit := func(_ context.Context, meta EmitMeta, r WriteResult) error {
		assert.Equal(t, "repo/src/main.go", meta.SourceRef)
		assert.Equal(t, "repo", meta.CrawlScope)
		assert.Equal(t, "corr-1", meta.CorrelationID, "batch keeps the chain it was requested under")
		assert.Equal(t, "evt-1", meta.ParentEventID)
		emitted = append(emitted, r)
		return nil
	}
	w := New(rel, vec, nil, Config{}, emit, nil)

	result, err := w.WriteBatch(context.Background(), testChunks())
	require.NoError(t, err)
	assert.True(t, result.EventEmitted)
	require.Len(t, emitted, 1)
	assert.Equal(t, 3, emitted[0].ItemsCreated)
	assert.Len(t, emitted[0].ItemIDs, 3, "every written chunk reports its item id")
}

func TestWriteBatchEmitFailureDoesNotFailTheBatch(t *testing.T) {
	rel := relstore.NewMemoryStore()
	vec := vecstore.NewMemoryStore()
	emit := func(context.Context, EmitMeta, WriteResult) error {
		return errors.New("broker down")
	}
	w := New(rel, vec, nil, Config{}, emit, nil)

	result, err := w.WriteBatch(context.Background(), testChunks())
	require.NoError(t, err)
	assert.False(t, result.EventEmitted)
	assert.Equal(t, 3, result.ItemsCreated)
	assert.Equal(t, 3, rel.Len())
}

func TestWriteBatchEmptyBatch(t *testing.T) {
	called := false
	emit := func(context.Context, EmitMeta, WriteResult) error {
		called = true
		return nil
	}
	w := New(relstore.NewMemoryStore(), vecstore.NewMemoryStore(), nil, Config{}, emit, nil)

	result, err := w.WriteBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, WriteResult{}, result)
	assert.False(t, called, "empty batches emit nothing")
}

func TestTierClassifierFirstMatchWins(t *testing.T) {
	c := NewTierClassifier([]TierRule{
		{Pattern: "docs/*.md", Tier: TierValidated, Confidence: 0.9},
		{Pattern: "**/vendor/*", Tier: TierQuarantine, Confidence: 0.1},
		{Pattern: "**/*.go", Tier: TierValidated, Confidence: 0.8},
	})

	tier, conf := c.Classify("docs/intro.md")
	assert.Equal(t, TierValidated, tier)
	assert.Equal(t, 0.9, conf)

	tier, conf = c.Classify("repo/vendor/dep.go")
	assert.Equal(t, TierQuarantine, tier)
	assert.Equal(t, 0.1, conf)

	tier, conf = c.Classify("repo/src/main.go")
	assert.Equal(t, TierValidated, tier)
	assert.Equal(t, 0.8, conf)

	tier, conf = c.Classify("notes.txt")
	assert.Equal(t, TierQuarantine, tier)
	assert.Equal(t, 0.0, conf)
}

func TestFingerprintStableAcrossNormalisation(t *testing.T) {
	assert.Equal(t, Fingerprint("a\nb\n"), Fingerprint("a\r\nb\r\n"))
	assert.Equal(t, Fingerprint("a  \nb\t\n"), Fingerprint("a\nb\n"))
	assert.NotEqual(t, Fingerprint("a\nb\n"), Fingerprint("a\nc\n"))
}

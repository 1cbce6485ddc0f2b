// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omninode/omnintel/pkg/breaker"
	"github.com/omninode/omnintel/pkg/embed"
	"github.com/omninode/omnintel/pkg/envelope"
	"github.com/omninode/omnintel/pkg/graphstore"
	"github.com/omninode/omnintel/pkg/handler"
	"github.com/omninode/omnintel/pkg/relstore"
	"github.com/omninode/omnintel/pkg/vecstore"
	"github.com/omninode/omnintel/pkg/writer"
)

type fixture struct {
	indexer *Indexer
	rel     *relstore.MemoryStore
	mem     *graphstore.Memory
}

func newFixture(t *testing.T, intel IntelligenceService, mem *graphstore.Memory) *fixture {
	t.Helper()
	if mem == nil {
		mem = graphstore.NewMemory()
	}
	rel := relstore.NewMemoryStore()
	w := writer.New(rel, vecstore.NewMemoryStore(), graphstore.NewGraph(mem), writer.Config{}, nil, nil)
	producer := embed.NewProducer(embed.NewMockProvider(8), w.WriteBatch, embed.ProducerConfig{
		RequestDelay: time.Microsecond,
	}, nil)
	ix := New(intel, producer, graphstore.NewGraph(mem), breaker.NewRegistry(breaker.Config{}, nil),
		Config{JoinTimeout: 5 * time.Second}, nil)
	return &fixture{indexer: ix, rel: rel, mem: mem}
}

func indexRequest(t *testing.T, req envelope.DocumentIndexRequest) envelope.Envelope {
	t.Helper()
	env, err := envelope.New(envelope.TypeDocumentIndexRequested, req,
		envelope.Source{Service: "archon-intelligence", InstanceID: "test-1"})
	require.NoError(t, err)
	return env
}

func strptr(s string) *string { return &s }

func TestHandleSuccessFlow(t *testing.T) {
	f := newFixture(t, HeuristicIntelligence{}, nil)
	env := indexRequest(t, envelope.DocumentIndexRequest{
		SourcePath: "sample.py",
		Content:    strptr("def f(): return 1"),
		Language:   "python",
		ProjectID:  "demo",
	})

	outcome := f.indexer.Handle(context.Background(), env)
	require.Equal(t, handler.KindAck, outcome.Kind)
	require.Len(t, outcome.Events, 1)

	out := outcome.Events[0]
	assert.Equal(t, envelope.TypeDocumentIndexCompleted, out.EventType)
	assert.Equal(t, env.CorrelationID, out.CorrelationID)
	require.NotNil(t, out.CausationID)
	assert.Equal(t, env.EventID, *out.CausationID)

	var payload envelope.DocumentIndexCompleted
	require.NoError(t, json.Unmarshal(out.Payload, &payload))
	assert.GreaterOrEqual(t, payload.EntitiesExtracted, 1)
	assert.GreaterOrEqual(t, payload.ChunksIndexed, 1)
	assert.NotEmpty(t, payload.DocumentHash)
	assert.NotEmpty(t, payload.ServiceTimings)
	assert.Empty(t, payload.FailedService)
	require.NotNil(t, payload.QualityScore)

	assert.Equal(t, 1, f.rel.Len())
}

func TestHandleStampsMetadataAndReportsVectorIDs(t *testing.T) {
	f := newFixture(t, HeuristicIntelligence{}, nil)
	env := indexRequest(t, envelope.DocumentIndexRequest{
		SourcePath: "pkg/util.py",
		Content:    strptr("def helper():\n    return 1\n"),
		Language:   "python",
		ProjectID:  "demo",
	})

	outcome := f.indexer.Handle(context.Background(), env)
	require.Equal(t, handler.KindAck, outcome.Kind)
	require.Equal(t, envelope.TypeDocumentIndexCompleted, outcome.Events[0].EventType)

	var payload envelope.DocumentIndexCompleted
	require.NoError(t, json.Unmarshal(outcome.Events[0].Payload, &payload))

	assert.Contains(t, payload.ServiceTimings, "metadata_stamp")
	assert.Equal(t, "python", payload.Metadata["language"])
	assert.Equal(t, "util.py", payload.Metadata["file_name"])
	assert.Equal(t, "small", payload.Metadata["size_class"])

	require.Len(t, payload.VectorIDs, payload.ChunksIndexed)
	for _, id := range payload.VectorIDs {
		_, ok := f.rel.Item(id)
		assert.True(t, ok, "vector id resolves to a stored item")
	}
}

func TestHandleSkipMetadataStampOption(t *testing.T) {
	f := newFixture(t, HeuristicIntelligence{}, nil)
	env := indexRequest(t, envelope.DocumentIndexRequest{
		SourcePath:      "pkg/util.py",
		Content:         strptr("def helper():\n    return 1\n"),
		Language:        "python",
		ProjectID:       "demo",
		IndexingOptions: envelope.IndexingOptions{SkipMetadataStamp: true},
	})

	outcome := f.indexer.Handle(context.Background(), env)
	require.Equal(t, handler.KindAck, outcome.Kind)
	require.Equal(t, envelope.TypeDocumentIndexCompleted, outcome.Events[0].EventType)

	var payload envelope.DocumentIndexCompleted
	require.NoError(t, json.Unmarshal(outcome.Events[0].Payload, &payload))
	assert.NotContains(t, payload.ServiceTimings, "metadata_stamp")
	assert.Empty(t, payload.Metadata)
}

func TestHandleNilContentIsValidationFailure(t *testing.T) {
	f := newFixture(t, HeuristicIntelligence{}, nil)
	env := indexRequest(t, envelope.DocumentIndexRequest{
		SourcePath: "sample.py",
		Content:    nil,
		Language:   "python",
	})

	outcome := f.indexer.Handle(context.Background(), env)
	require.Equal(t, handler.KindAck, outcome.Kind)
	require.Len(t, outcome.Events, 1)
	assert.Equal(t, envelope.TypeDocumentIndexFailed, outcome.Events[0].EventType)

	var payload envelope.DocumentIndexFailed
	require.NoError(t, json.Unmarshal(outcome.Events[0].Payload, &payload))
	assert.Equal(t, envelope.CodeInvalidInput, payload.ErrorCode)
	assert.False(t, payload.RetryAllowed)
}

func TestHandleUnsupportedLanguageDegradesGracefully(t *testing.T) {
	f := newFixture(t, HeuristicIntelligence{}, nil)
	env := indexRequest(t, envelope.DocumentIndexRequest{
		SourcePath: "data.cob",
		Content:    strptr("MOVE 1 TO X."),
		Language:   "unsupported-language",
	})

	outcome := f.indexer.Handle(context.Background(), env)
	require.Equal(t, handler.KindAck, outcome.Kind)
	require.Len(t, outcome.Events, 1)
	require.Equal(t, envelope.TypeDocumentIndexCompleted, outcome.Events[0].EventType)

	var payload envelope.DocumentIndexCompleted
	require.NoError(t, json.Unmarshal(outcome.Events[0].Payload, &payload))
	assert.Equal(t, 0, payload.EntitiesExtracted)
	assert.Equal(t, "entity_extraction", payload.FailedService)
	assert.NotEmpty(t, payload.ServiceTimings)
	assert.GreaterOrEqual(t, payload.ChunksIndexed, 1)
}

func TestHandleGraphFailureAborts(t *testing.T) {
	mem := graphstore.NewMemory()
	mem.FailOn = map[string]error{
		graphstore.QueryUpsertProject: errors.New("graph store unavailable"),
	}
	f := newFixture(t, HeuristicIntelligence{}, mem)
	env := indexRequest(t, envelope.DocumentIndexRequest{
		SourcePath: "sample.py",
		Content:    strptr("def f(): return 1"),
		Language:   "python",
	})

	outcome := f.indexer.Handle(context.Background(), env)
	require.Equal(t, handler.KindAck, outcome.Kind)
	require.Equal(t, envelope.TypeDocumentIndexFailed, outcome.Events[0].EventType)

	var payload envelope.DocumentIndexFailed
	require.NoError(t, json.Unmarshal(outcome.Events[0].Payload, &payload))
	assert.Equal(t, "graph_upsert", payload.FailedService)
	assert.True(t, payload.RetryAllowed)
	assert.Equal(t, envelope.CodeDownstream, payload.ErrorCode)
}

func indexDoc(t *testing.T, f *fixture, sourcePath, content string) {
	t.Helper()
	env := indexRequest(t, envelope.DocumentIndexRequest{
		SourcePath: sourcePath,
		Content:    strptr(content),
		Language:   "python",
		ProjectID:  "demo",
	})
	outcome := f.indexer.Handle(context.Background(), env)
	require.Equal(t, handler.KindAck, outcome.Kind)
	require.Equal(t, envelope.TypeDocumentIndexCompleted, outcome.Events[0].EventType)
}

func TestGraphConsistencyAndOrphans(t *testing.T) {
	f := newFixture(t, HeuristicIntelligence{}, nil)

	indexDoc(t, f, "main.py", "import utils\n\ndef main():\n    return utils.helper()\n")
	indexDoc(t, f, "utils.py", "def helper():\n    return 1\n")
	indexDoc(t, f, "orphan.py", "def lonely():\n    pass\n")

	// entity_count equals DEFINES out-degree, import_count IMPORTS out-degree.
	for _, p := range []string{"main.py", "utils.py", "orphan.py"} {
		node, ok := f.mem.Node("FILE", p)
		require.True(t, ok, p)
		assert.Equal(t, node["entity_count"], f.mem.EdgeCount("FILE", p, "DEFINES"), p)
		assert.Equal(t, node["import_count"], f.mem.EdgeCount("FILE", p, "IMPORTS"), p)
	}

	g := graphstore.NewGraph(f.mem)
	orphans, err := g.OrphanFiles(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan.py"}, orphans)
}

func TestStdlibImportStaysPlaceholder(t *testing.T) {
	f := newFixture(t, HeuristicIntelligence{}, nil)

	indexDoc(t, f, "main.py", "import os\n\ndef main():\n    return os.getcwd()\n")

	// The import target gets a node so the edge resolves, but it is
	// marked as a placeholder until its own document is indexed.
	node, ok := f.mem.Node("FILE", "os.py")
	require.True(t, ok)
	assert.Equal(t, true, node["placeholder"])

	real, ok := f.mem.Node("FILE", "main.py")
	require.True(t, ok)
	assert.Equal(t, false, real["placeholder"])

	g := graphstore.NewGraph(f.mem)
	orphans, err := g.OrphanFiles(context.Background(), "demo")
	require.NoError(t, err)
	assert.Empty(t, orphans, "a placeholder import target is not an orphan")
}

func TestHeuristicExtraction(t *testing.T) {
	ex, err := HeuristicIntelligence{}.ExtractEntities(context.Background(), "a.go", "go",
		"package a\n\nimport \"fmt\"\n\ntype Widget struct{}\n\nfunc (w *Widget) Render() {}\n\nfunc New() *Widget { return nil }\n")
	require.NoError(t, err)

	names := make([]string, 0, len(ex.Entities))
	for _, e := range ex.Entities {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Widget", "Render", "New"}, names)
	require.Len(t, ex.Imports, 1)
	assert.Equal(t, "fmt", ex.Imports[0].Target)

	_, err = HeuristicIntelligence{}.ExtractEntities(context.Background(), "x", "cobol", "")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestResolveImports(t *testing.T) {
	targets := resolveImports("src/app/main.py", "python", []Import{
		{Target: "utils", ImportType: "import"},
		{Target: "pkg.helpers", ImportType: "from_import"},
	})
	assert.Contains(t, targets, "src/app/utils.py")
	assert.Contains(t, targets, "src/app/pkg/helpers.py")

	// Go package imports name packages, not repository files.
	targets = resolveImports("main.go", "go", []Import{{Target: "fmt"}})
	assert.Empty(t, targets)
}

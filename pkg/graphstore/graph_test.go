// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package graphstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrphanFilesExcludesImportPlaceholders(t *testing.T) {
	mem := NewMemory()
	g := NewGraph(mem)
	ctx := context.Background()

	// A standard-library target only ever seen through an import edge.
	require.NoError(t, g.EnsureFile(ctx, "os.py", "os.py", "os.py", "demo"))
	// A repository file with no imports at all.
	require.NoError(t, g.UpsertFile(ctx, FileNode{
		Path: "lonely.py", RelativePath: "lonely.py", Name: "lonely.py", Project: "demo",
	}))

	node, ok := mem.Node("FILE", "os.py")
	require.True(t, ok)
	assert.Equal(t, true, node["placeholder"])

	orphans, err := g.OrphanFiles(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"lonely.py"}, orphans, "placeholders never count as orphans")
}

func TestUpsertFilePromotesPlaceholder(t *testing.T) {
	mem := NewMemory()
	g := NewGraph(mem)
	ctx := context.Background()

	// Import seen first, the file's own document indexed afterwards.
	require.NoError(t, g.EnsureFile(ctx, "utils.py", "utils.py", "utils.py", "demo"))
	require.NoError(t, g.UpsertFile(ctx, FileNode{
		Path: "utils.py", RelativePath: "utils.py", Name: "utils.py", Project: "demo",
	}))

	node, ok := mem.Node("FILE", "utils.py")
	require.True(t, ok)
	assert.Equal(t, false, node["placeholder"])

	orphans, err := g.OrphanFiles(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"utils.py"}, orphans, "a promoted file with no import edges is a real orphan")
}

// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package treeview

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omninode/omnintel/pkg/graphstore"
)

// seedGraph builds demo with src/{a.py,b.py} and a root readme.md,
// where a.py imports b.py.
func seedGraph(t *testing.T, mem *graphstore.Memory) *graphstore.Graph {
	t.Helper()
	g := graphstore.NewGraph(mem)
	ctx := context.Background()

	require.NoError(t, g.EnsureProject(ctx, "demo", "/repos/demo"))
	require.NoError(t, g.UpsertDir(ctx, graphstore.DirNode{
		Path: "src", RelativePath: "src", Name: "src", Project: "demo",
	}))
	require.NoError(t, g.LinkProjectContains(ctx, "demo", "src"))

	for _, f := range []graphstore.FileNode{
		{Path: "src/a.py", RelativePath: "src/a.py", Name: "a.py", FileType: "python",
			Size: 120, EntityCount: 2, ImportCount: 1, Project: "demo"},
		{Path: "src/b.py", RelativePath: "src/b.py", Name: "b.py", FileType: "python",
			Size: 80, EntityCount: 1, ImportCount: 0, Project: "demo"},
	} {
		require.NoError(t, g.UpsertFile(ctx, f))
		require.NoError(t, g.LinkContains(ctx, "src", f.Path))
	}
	require.NoError(t, g.UpsertFile(ctx, graphstore.FileNode{
		Path: "readme.md", RelativePath: "readme.md", Name: "readme.md",
		FileType: "markdown", Project: "demo",
	}))
	require.NoError(t, g.LinkProjectContains(ctx, "demo", "readme.md"))

	require.NoError(t, g.LinkImports(ctx, "src/a.py", "src/b.py", graphstore.ImportEdge{
		ImportType: "import", LineNumber: 1, Confidence: 0.8,
	}))
	return g
}

func TestBuildTreeStatsAndOrdering(t *testing.T) {
	mem := graphstore.NewMemory()
	svc := New(seedGraph(t, mem), nil)

	tree, err := svc.BuildTree(context.Background(), Request{ProjectName: "demo"})
	require.NoError(t, err)

	assert.Equal(t, "project", tree.Root.Type)
	require.Len(t, tree.Root.Children, 2)
	// Alphabetical at each level.
	assert.Equal(t, "readme.md", tree.Root.Children[0].Name)
	assert.Equal(t, "src", tree.Root.Children[1].Name)

	src := tree.Root.Children[1]
	require.Len(t, src.Children, 2)
	assert.Equal(t, "a.py", src.Children[0].Name)
	assert.Equal(t, "b.py", src.Children[1].Name)
	assert.Equal(t, 2, src.Children[0].EntityCount)

	assert.Equal(t, Stats{Directories: 1, Files: 3, Imports: 1, TotalNodes: 5}, tree.Stats)
}

func TestBuildTreeDependencies(t *testing.T) {
	mem := graphstore.NewMemory()
	svc := New(seedGraph(t, mem), nil)

	tree, err := svc.BuildTree(context.Background(), Request{
		ProjectName:         "demo",
		IncludeDependencies: true,
	})
	require.NoError(t, err)

	src := tree.Root.Children[1]
	deps := src.Children[0].Dependencies
	require.Len(t, deps, 1)
	assert.Equal(t, "src/b.py", deps[0].Target)
	assert.Equal(t, "import", deps[0].ImportType)
	assert.Empty(t, src.Children[1].Dependencies)
	assert.Equal(t, 1, tree.Stats.Imports)
}

func TestBuildTreeMaxDepth(t *testing.T) {
	mem := graphstore.NewMemory()
	svc := New(seedGraph(t, mem), nil)

	tree, err := svc.BuildTree(context.Background(), Request{ProjectName: "demo", MaxDepth: 1})
	require.NoError(t, err)

	src := tree.Root.Children[1]
	assert.True(t, src.Truncated)
	assert.Empty(t, src.Children)
	// Files below the cut are not counted.
	assert.Equal(t, Stats{Directories: 1, Files: 1, Imports: 0, TotalNodes: 3}, tree.Stats)
}

func TestBuildTreeUnknownProject(t *testing.T) {
	svc := New(graphstore.NewGraph(graphstore.NewMemory()), nil)

	_, err := svc.BuildTree(context.Background(), Request{ProjectName: "ghost"})
	var notFound *ErrProjectNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ghost", notFound.Project)
}

func TestBuildTreeDegradedSubtree(t *testing.T) {
	mem := graphstore.NewMemory()
	g := seedGraph(t, mem)
	mem.FailOn = map[string]error{
		graphstore.QueryNodeChildren: errors.New("graph store timeout"),
	}
	svc := New(g, nil)

	tree, err := svc.BuildTree(context.Background(), Request{ProjectName: "demo"})
	require.NoError(t, err, "store errors below the root never surface")

	src := tree.Root.Children[1]
	assert.Equal(t, "directory", src.Type)
	assert.Empty(t, src.Children)
}

func TestOrphanFiles(t *testing.T) {
	mem := graphstore.NewMemory()
	svc := New(seedGraph(t, mem), nil)

	orphans, err := svc.OrphanFiles(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"readme.md"}, orphans)
}

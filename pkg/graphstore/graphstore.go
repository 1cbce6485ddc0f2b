// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package graphstore adapts the graph collaborator store. Any backend
// implements a single operation, ExecuteQuery, over a closed set of
// cypher-like queries: node upserts, edge upserts, tree walks over
// CONTAINS, and orphan/statistics queries.
//
// Graph is a typed wrapper over the contract; domain code never builds
// query strings itself.
package graphstore

import (
	"context"
	"fmt"
	"sort"
)

// Record is one result row keyed by returned column name.
type Record map[string]any

// Querier is the adapter contract.
type Querier interface {
	ExecuteQuery(ctx context.Context, query string, params map[string]any) ([]Record, error)
}

// The closed query set. Backends may treat these strings opaquely (the
// in-memory backend does) or pass them to a cypher engine verbatim.
const (
	QueryUpsertProject = `MERGE (p:PROJECT {name: $name}) SET p.path = $path RETURN p.name AS name`

	QueryUpsertDir = `MERGE (d:DIR {path: $path})
SET d.relative_path = $relative_path, d.name = $name, d.project = $project
RETURN d.path AS path`

	QueryUpsertFile = `MERGE (f:FILE {path: $path})
SET f.relative_path = $relative_path, f.name = $name, f.file_type = $file_type,
    f.size = $size, f.entity_count = $entity_count, f.import_count = $import_count,
    f.last_modified = $last_modified, f.file_hash = $file_hash,
    f.entity_id = $entity_id, f.project = $project, f.placeholder = false
RETURN f.path AS path`

	QueryUpsertEntity = `MERGE (e:ENTITY {entity_id: $entity_id})
SET e.name = $name, e.type = $type, e.project = $project
RETURN e.entity_id AS entity_id`

	// QueryEnsureFile creates a placeholder FILE node for an import
	// target that has not been indexed yet, without clobbering counters
	// an earlier indexing pass may have set. The placeholder flag is
	// cleared when the target's own document is indexed; targets outside
	// the repository (standard library modules) keep it forever, and the
	// orphan query ignores them.
	QueryEnsureFile = `MERGE (f:FILE {path: $path})
ON CREATE SET f.relative_path = $relative_path, f.name = $name, f.project = $project,
              f.entity_count = 0, f.import_count = 0, f.placeholder = true
RETURN f.path AS path`

	QueryLinkContains = `MATCH (a {path: $parent_path}), (b {path: $child_path})
MERGE (a)-[:CONTAINS]->(b)`

	QueryLinkProjectContains = `MATCH (p:PROJECT {name: $project}), (b {path: $child_path})
MERGE (p)-[:CONTAINS]->(b)`

	QueryLinkImports = `MATCH (a:FILE {path: $from_path}), (b:FILE {path: $to_path})
MERGE (a)-[r:IMPORTS]->(b)
SET r.import_type = $import_type, r.line_number = $line_number, r.confidence = $confidence`

	QueryLinkDefines = `MATCH (f:FILE {path: $file_path}), (e:ENTITY {entity_id: $entity_id})
MERGE (f)-[:DEFINES]->(e)`

	QueryLinkContextItem = `MERGE (c:CONTEXT_ITEM {id: $item_id})
MERGE (s:SOURCE {source_ref: $source_ref})
MERGE (c)-[:FROM_SOURCE]->(s)`

	QueryGetProject = `MATCH (p:PROJECT {name: $name}) RETURN p.name AS name, p.path AS path`

	QueryProjectChildren = `MATCH (p:PROJECT {name: $name})-[:CONTAINS]->(c)
RETURN labels(c)[0] AS label, c AS node ORDER BY c.name`

	QueryNodeChildren = `MATCH (n {path: $path})-[:CONTAINS]->(c)
RETURN labels(c)[0] AS label, c AS node ORDER BY c.name`

	QueryFileImports = `MATCH (f:FILE {path: $path})-[r:IMPORTS]->(t:FILE)
RETURN t.relative_path AS target, r.import_type AS import_type,
       r.line_number AS line_number, r.confidence AS confidence
ORDER BY t.relative_path`

	QueryOrphanFiles = `MATCH (f:FILE {project: $project})
WHERE NOT (f)-[:IMPORTS]-() AND coalesce(f.placeholder, false) = false
RETURN f.relative_path AS relative_path ORDER BY f.relative_path`

	QueryProjectStats = `MATCH (p:PROJECT {name: $name})-[:CONTAINS*]->(n)
RETURN labels(n)[0] AS label, count(n) AS count`
)

// FileNode carries the FILE node properties of the file-tree graph.
type FileNode struct {
	Path         string
	RelativePath string
	Name         string
	FileType     string
	Size         int64
	EntityCount  int
	ImportCount  int
	LastModified string
	FileHash     string
	EntityID     string
	Project      string
}

// DirNode carries the DIR node properties.
type DirNode struct {
	Path         string
	RelativePath string
	Name         string
	Project      string
}

// EntityNode carries the ENTITY node properties.
type EntityNode struct {
	EntityID string
	Name     string
	Type     string
	Project  string
}

// ImportEdge carries IMPORTS edge properties.
type ImportEdge struct {
	ImportType string
	LineNumber int
	Confidence float64
}

// Child is one CONTAINS child with its label and properties.
type Child struct {
	Label string
	Props Record
}

// Graph wraps a Querier with the typed operations the core performs.
type Graph struct {
	q Querier
}

// NewGraph wraps a backend.
func NewGraph(q Querier) *Graph {
	return &Graph{q: q}
}

// EnsureProject creates the PROJECT node on first ingest; idempotent.
func (g *Graph) EnsureProject(ctx context.Context, name, path string) error {
	_, err := g.q.ExecuteQuery(ctx, QueryUpsertProject, map[string]any{"name": name, "path": path})
	if err != nil {
		return fmt.Errorf("upsert project %s: %w", name, err)
	}
	return nil
}

// UpsertDir upserts a DIR node.
func (g *Graph) UpsertDir(ctx context.Context, d DirNode) error {
	_, err := g.q.ExecuteQuery(ctx, QueryUpsertDir, map[string]any{
		"path": d.Path, "relative_path": d.RelativePath, "name": d.Name, "project": d.Project,
	})
	if err != nil {
		return fmt.Errorf("upsert dir %s: %w", d.Path, err)
	}
	return nil
}

// UpsertFile upserts a FILE node with its counters. The indexer keeps
// entity_count and import_count equal to the node's DEFINES and IMPORTS
// out-degrees.
func (g *Graph) UpsertFile(ctx context.Context, f FileNode) error {
	_, err := g.q.ExecuteQuery(ctx, QueryUpsertFile, map[string]any{
		"path": f.Path, "relative_path": f.RelativePath, "name": f.Name,
		"file_type": f.FileType, "size": f.Size, "entity_count": f.EntityCount,
		"import_count": f.ImportCount, "last_modified": f.LastModified,
		"file_hash": f.FileHash, "entity_id": f.EntityID, "project": f.Project,
	})
	if err != nil {
		return fmt.Errorf("upsert file %s: %w", f.Path, err)
	}
	return nil
}

// EnsureFile creates a FILE node if absent; counters on an existing
// node are untouched.
func (g *Graph) EnsureFile(ctx context.Context, path, relativePath, name, project string) error {
	_, err := g.q.ExecuteQuery(ctx, QueryEnsureFile, map[string]any{
		"path": path, "relative_path": relativePath, "name": name, "project": project,
	})
	if err != nil {
		return fmt.Errorf("ensure file %s: %w", path, err)
	}
	return nil
}

// UpsertEntity upserts an ENTITY node.
func (g *Graph) UpsertEntity(ctx context.Context, e EntityNode) error {
	_, err := g.q.ExecuteQuery(ctx, QueryUpsertEntity, map[string]any{
		"entity_id": e.EntityID, "name": e.Name, "type": e.Type, "project": e.Project,
	})
	if err != nil {
		return fmt.Errorf("upsert entity %s: %w", e.EntityID, err)
	}
	return nil
}

// LinkContains records parent-[:CONTAINS]->child between path-keyed nodes.
func (g *Graph) LinkContains(ctx context.Context, parentPath, childPath string) error {
	_, err := g.q.ExecuteQuery(ctx, QueryLinkContains, map[string]any{
		"parent_path": parentPath, "child_path": childPath,
	})
	if err != nil {
		return fmt.Errorf("link contains %s -> %s: %w", parentPath, childPath, err)
	}
	return nil
}

// LinkProjectContains records PROJECT-[:CONTAINS]->child.
func (g *Graph) LinkProjectContains(ctx context.Context, project, childPath string) error {
	_, err := g.q.ExecuteQuery(ctx, QueryLinkProjectContains, map[string]any{
		"project": project, "child_path": childPath,
	})
	if err != nil {
		return fmt.Errorf("link project contains %s -> %s: %w", project, childPath, err)
	}
	return nil
}

// LinkImports records FILE-[:IMPORTS]->FILE; idempotent per (from, to).
func (g *Graph) LinkImports(ctx context.Context, fromPath, toPath string, e ImportEdge) error {
	_, err := g.q.ExecuteQuery(ctx, QueryLinkImports, map[string]any{
		"from_path": fromPath, "to_path": toPath,
		"import_type": e.ImportType, "line_number": e.LineNumber, "confidence": e.Confidence,
	})
	if err != nil {
		return fmt.Errorf("link imports %s -> %s: %w", fromPath, toPath, err)
	}
	return nil
}

// LinkDefines records FILE-[:DEFINES]->ENTITY; idempotent.
func (g *Graph) LinkDefines(ctx context.Context, filePath, entityID string) error {
	_, err := g.q.ExecuteQuery(ctx, QueryLinkDefines, map[string]any{
		"file_path": filePath, "entity_id": entityID,
	})
	if err != nil {
		return fmt.Errorf("link defines %s -> %s: %w", filePath, entityID, err)
	}
	return nil
}

// LinkContextItem records CONTEXT_ITEM-[:FROM_SOURCE]->SOURCE; idempotent.
func (g *Graph) LinkContextItem(ctx context.Context, itemID, sourceRef string) error {
	_, err := g.q.ExecuteQuery(ctx, QueryLinkContextItem, map[string]any{
		"item_id": itemID, "source_ref": sourceRef,
	})
	if err != nil {
		return fmt.Errorf("link context item %s: %w", itemID, err)
	}
	return nil
}

// Project fetches the PROJECT node, or nil when absent.
func (g *Graph) Project(ctx context.Context, name string) (Record, error) {
	recs, err := g.q.ExecuteQuery(ctx, QueryGetProject, map[string]any{"name": name})
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", name, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// ProjectChildren returns the direct CONTAINS children of the PROJECT
// node, sorted by name.
func (g *Graph) ProjectChildren(ctx context.Context, name string) ([]Child, error) {
	recs, err := g.q.ExecuteQuery(ctx, QueryProjectChildren, map[string]any{"name": name})
	if err != nil {
		return nil, fmt.Errorf("project children %s: %w", name, err)
	}
	return toChildren(recs), nil
}

// Children returns the direct CONTAINS children of a path-keyed node,
// sorted by name.
func (g *Graph) Children(ctx context.Context, path string) ([]Child, error) {
	recs, err := g.q.ExecuteQuery(ctx, QueryNodeChildren, map[string]any{"path": path})
	if err != nil {
		return nil, fmt.Errorf("children of %s: %w", path, err)
	}
	return toChildren(recs), nil
}

// FileImports returns the outgoing IMPORTS targets of a FILE.
func (g *Graph) FileImports(ctx context.Context, path string) ([]Record, error) {
	recs, err := g.q.ExecuteQuery(ctx, QueryFileImports, map[string]any{"path": path})
	if err != nil {
		return nil, fmt.Errorf("imports of %s: %w", path, err)
	}
	return recs, nil
}

// OrphanFiles returns the relative paths of FILEs with no incoming or
// outgoing IMPORTS edges, sorted.
func (g *Graph) OrphanFiles(ctx context.Context, project string) ([]string, error) {
	recs, err := g.q.ExecuteQuery(ctx, QueryOrphanFiles, map[string]any{"project": project})
	if err != nil {
		return nil, fmt.Errorf("orphans of %s: %w", project, err)
	}
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		if p, ok := r["relative_path"].(string); ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func toChildren(recs []Record) []Child {
	out := make([]Child, 0, len(recs))
	for _, r := range recs {
		label, _ := r["label"].(string)
		props, _ := r["node"].(Record)
		if props == nil {
			if m, ok := r["node"].(map[string]any); ok {
				props = Record(m)
			}
		}
		out = append(out, Child{Label: label, Props: props})
	}
	sort.Slice(out, func(i, j int) bool {
		ni, _ := out[i].Props["name"].(string)
		nj, _ := out[j].Props["name"].(string)
		return ni < nj
	})
	return out
}

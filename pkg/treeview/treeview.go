// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package treeview materializes the file-tree graph as a single rooted
// structure for operators and the ops API. Store errors during descent
// degrade to empty subtrees; only a missing project is an error.
package treeview

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/omninode/omnintel/pkg/envelope"
	"github.com/omninode/omnintel/pkg/graphstore"
)

// ErrProjectNotFound reports an unknown project name.
type ErrProjectNotFound struct {
	Project string
}

func (e *ErrProjectNotFound) Error() string {
	return fmt.Sprintf("%s: project %q", envelope.CodeProjectNotFound, e.Project)
}

// Dependency is one outgoing import of a file node.
type Dependency struct {
	Target     string  `json:"target"`
	ImportType string  `json:"import_type"`
	LineNumber int     `json:"line_number"`
	Confidence float64 `json:"confidence"`
}

// Node is one tree node: the project root, a directory, or a file.
type Node struct {
	Name         string       `json:"name"`
	Type         string       `json:"type"` // project, directory, file
	Path         string       `json:"path,omitempty"`
	FileType     string       `json:"file_type,omitempty"`
	Size         int64        `json:"size,omitempty"`
	EntityCount  int          `json:"entity_count,omitempty"`
	ImportCount  int          `json:"import_count,omitempty"`
	Children     []*Node      `json:"children,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
	Truncated    bool         `json:"truncated,omitempty"`
}

// Stats aggregates the tree. TotalNodes counts the root as one.
type Stats struct {
	Directories int `json:"directories"`
	Files       int `json:"files"`
	Imports     int `json:"imports"`
	TotalNodes  int `json:"total_nodes"`
}

// Tree is the full visualisation response.
type Tree struct {
	Root  *Node `json:"root"`
	Stats Stats `json:"stats"`
}

// Request selects the projection.
type Request struct {
	ProjectName         string `json:"project_name"`
	MaxDepth            int    `json:"max_depth"`
	IncludeDependencies bool   `json:"include_dependencies"`
}

// Service builds trees over the graph store.
type Service struct {
	graph  *graphstore.Graph
	logger *slog.Logger
}

// New creates the tree service.
func New(graph *graphstore.Graph, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{graph: graph, logger: logger}
}

// BuildTree resolves the project and descends to MaxDepth (0 means
// unlimited). Children are alphabetically sorted at every level by the
// store contract.
func (s *Service) BuildTree(ctx context.Context, req Request) (*Tree, error) {
	project, err := s.graph.Project(ctx, req.ProjectName)
	if err != nil {
		return nil, fmt.Errorf("resolve project: %w", err)
	}
	if project == nil {
		return nil, &ErrProjectNotFound{Project: req.ProjectName}
	}

	root := &Node{Name: req.ProjectName, Type: "project"}
	stats := Stats{}

	children, err := s.graph.ProjectChildren(ctx, req.ProjectName)
	if err != nil {
		// Degraded: the root survives with no children.
		s.logger.Warn("treeview.children.degraded", "project", req.ProjectName, "error", err)
		children = nil
	}
	for _, child := range children {
		root.Children = append(root.Children, s.build(ctx, child, 1, req, &stats))
	}

	stats.TotalNodes = stats.Directories + stats.Files + 1
	return &Tree{Root: root, Stats: stats}, nil
}

// build converts one CONTAINS child and recurses.
func (s *Service) build(ctx context.Context, child graphstore.Child, depth int, req Request, stats *Stats) *Node {
	props := child.Props
	node := &Node{
		Name: str(props["name"]),
		Path: str(props["path"]),
	}

	switch child.Label {
	case "FILE":
		node.Type = "file"
		node.FileType = str(props["file_type"])
		node.Size = i64(props["size"])
		node.EntityCount = intOf(props["entity_count"])
		node.ImportCount = intOf(props["import_count"])
		stats.Files++
		if req.IncludeDependencies {
			node.Dependencies = s.dependencies(ctx, node.Path, stats)
		} else {
			stats.Imports += node.ImportCount
		}
		return node
	case "DIR":
		node.Type = "directory"
		stats.Directories++
	default:
		node.Type = "directory"
		stats.Directories++
	}

	if req.MaxDepth > 0 && depth >= req.MaxDepth {
		node.Truncated = true
		return node
	}

	children, err := s.graph.Children(ctx, node.Path)
	if err != nil {
		// Degraded subtree.
		s.logger.Warn("treeview.children.degraded", "path", node.Path, "error", err)
		return node
	}
	for _, c := range children {
		node.Children = append(node.Children, s.build(ctx, c, depth+1, req, stats))
	}
	return node
}

// dependencies resolves outgoing IMPORTS for a file; store errors
// degrade to an empty list.
func (s *Service) dependencies(ctx context.Context, path string, stats *Stats) []Dependency {
	recs, err := s.graph.FileImports(ctx, path)
	if err != nil {
		s.logger.Warn("treeview.imports.degraded", "path", path, "error", err)
		return nil
	}
	out := make([]Dependency, 0, len(recs))
	for _, r := range recs {
		out = append(out, Dependency{
			Target:     str(r["target"]),
			ImportType: str(r["import_type"]),
			LineNumber: intOf(r["line_number"]),
			Confidence: f64(r["confidence"]),
		})
	}
	stats.Imports += len(out)
	return out
}

// OrphanFiles lists files with no import relationships in either
// direction.
func (s *Service) OrphanFiles(ctx context.Context, project string) ([]string, error) {
	return s.graph.OrphanFiles(ctx, project)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func intOf(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func i64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func f64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

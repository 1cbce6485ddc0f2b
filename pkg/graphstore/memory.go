// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package graphstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type nodeKey struct {
	label string
	key   string
}

type memEdge struct {
	from  nodeKey
	rel   string
	to    nodeKey
	props Record
}

// Memory implements Querier in process by interpreting the closed query
// set over a node/edge map. Used by tests and dry runs.
type Memory struct {
	mu    sync.Mutex
	nodes map[nodeKey]Record
	edges []memEdge

	// FailOn injects a backend error for a given query. Used by tests
	// to exercise degraded paths.
	FailOn map[string]error
}

// NewMemory creates an empty in-memory graph backend.
func NewMemory() *Memory {
	return &Memory{nodes: make(map[nodeKey]Record)}
}

// ExecuteQuery implements Querier for the closed query set. Unknown
// queries are an error: the core never issues free-form cypher.
func (m *Memory) ExecuteQuery(_ context.Context, query string, params map[string]any) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.FailOn[query]; ok {
		return nil, err
	}

	switch query {
	case QueryUpsertProject:
		m.upsertNode("PROJECT", str(params["name"]), Record{
			"name": params["name"], "path": params["path"],
		})
		return []Record{{"name": params["name"]}}, nil

	case QueryUpsertDir:
		m.upsertNode("DIR", str(params["path"]), Record{
			"path": params["path"], "relative_path": params["relative_path"],
			"name": params["name"], "project": params["project"],
		})
		return []Record{{"path": params["path"]}}, nil

	case QueryUpsertFile:
		m.upsertNode("FILE", str(params["path"]), Record{
			"path": params["path"], "relative_path": params["relative_path"],
			"name": params["name"], "file_type": params["file_type"],
			"size": params["size"], "entity_count": params["entity_count"],
			"import_count": params["import_count"], "last_modified": params["last_modified"],
			"file_hash": params["file_hash"], "entity_id": params["entity_id"],
			"project": params["project"], "placeholder": false,
		})
		return []Record{{"path": params["path"]}}, nil

	case QueryEnsureFile:
		k := nodeKey{"FILE", str(params["path"])}
		if _, ok := m.nodes[k]; !ok {
			m.nodes[k] = Record{
				"path": params["path"], "relative_path": params["relative_path"],
				"name": params["name"], "project": params["project"],
				"entity_count": 0, "import_count": 0, "placeholder": true,
			}
		}
		return []Record{{"path": params["path"]}}, nil

	case QueryUpsertEntity:
		m.upsertNode("ENTITY", str(params["entity_id"]), Record{
			"entity_id": params["entity_id"], "name": params["name"],
			"type": params["type"], "project": params["project"],
		})
		return []Record{{"entity_id": params["entity_id"]}}, nil

	case QueryLinkContains:
		from, ok := m.findByPath(str(params["parent_path"]))
		if !ok {
			return nil, fmt.Errorf("no node with path %q", params["parent_path"])
		}
		to, ok := m.findByPath(str(params["child_path"]))
		if !ok {
			return nil, fmt.Errorf("no node with path %q", params["child_path"])
		}
		m.upsertEdge(from, "CONTAINS", to, nil)
		return nil, nil

	case QueryLinkProjectContains:
		from := nodeKey{"PROJECT", str(params["project"])}
		if _, ok := m.nodes[from]; !ok {
			return nil, fmt.Errorf("no project %q", params["project"])
		}
		to, ok := m.findByPath(str(params["child_path"]))
		if !ok {
			return nil, fmt.Errorf("no node with path %q", params["child_path"])
		}
		m.upsertEdge(from, "CONTAINS", to, nil)
		return nil, nil

	case QueryLinkImports:
		from := nodeKey{"FILE", str(params["from_path"])}
		to := nodeKey{"FILE", str(params["to_path"])}
		if _, ok := m.nodes[from]; !ok {
			return nil, fmt.Errorf("no file %q", params["from_path"])
		}
		if _, ok := m.nodes[to]; !ok {
			return nil, fmt.Errorf("no file %q", params["to_path"])
		}
		m.upsertEdge(from, "IMPORTS", to, Record{
			"import_type": params["import_type"],
			"line_number": params["line_number"],
			"confidence":  params["confidence"],
		})
		return nil, nil

	case QueryLinkDefines:
		from := nodeKey{"FILE", str(params["file_path"])}
		to := nodeKey{"ENTITY", str(params["entity_id"])}
		if _, ok := m.nodes[from]; !ok {
			return nil, fmt.Errorf("no file %q", params["file_path"])
		}
		if _, ok := m.nodes[to]; !ok {
			return nil, fmt.Errorf("no entity %q", params["entity_id"])
		}
		m.upsertEdge(from, "DEFINES", to, nil)
		return nil, nil

	case QueryLinkContextItem:
		item := nodeKey{"CONTEXT_ITEM", str(params["item_id"])}
		src := nodeKey{"SOURCE", str(params["source_ref"])}
		if _, ok := m.nodes[item]; !ok {
			m.nodes[item] = Record{"id": params["item_id"]}
		}
		if _, ok := m.nodes[src]; !ok {
			m.nodes[src] = Record{"source_ref": params["source_ref"]}
		}
		m.upsertEdge(item, "FROM_SOURCE", src, nil)
		return nil, nil

	case QueryGetProject:
		props, ok := m.nodes[nodeKey{"PROJECT", str(params["name"])}]
		if !ok {
			return nil, nil
		}
		return []Record{{"name": props["name"], "path": props["path"]}}, nil

	case QueryProjectChildren:
		return m.children(nodeKey{"PROJECT", str(params["name"])}), nil

	case QueryNodeChildren:
		from, ok := m.findByPath(str(params["path"]))
		if !ok {
			return nil, nil
		}
		return m.children(from), nil

	case QueryFileImports:
		from := nodeKey{"FILE", str(params["path"])}
		var out []Record
		for _, e := range m.edges {
			if e.from == from && e.rel == "IMPORTS" {
				target := m.nodes[e.to]["relative_path"]
				out = append(out, Record{
					"target":      target,
					"import_type": e.props["import_type"],
					"line_number": e.props["line_number"],
					"confidence":  e.props["confidence"],
				})
			}
		}
		sort.Slice(out, func(i, j int) bool { return str(out[i]["target"]) < str(out[j]["target"]) })
		return out, nil

	case QueryOrphanFiles:
		var out []Record
		for key, props := range m.nodes {
			if key.label != "FILE" || str(props["project"]) != str(params["project"]) {
				continue
			}
			if ph, _ := props["placeholder"].(bool); ph {
				continue
			}
			degree := 0
			for _, e := range m.edges {
				if e.rel == "IMPORTS" && (e.from == key || e.to == key) {
					degree++
				}
			}
			if degree == 0 {
				out = append(out, Record{"relative_path": props["relative_path"]})
			}
		}
		sort.Slice(out, func(i, j int) bool {
			return str(out[i]["relative_path"]) < str(out[j]["relative_path"])
		})
		return out, nil

	case QueryProjectStats:
		counts := map[string]int{}
		m.walkContains(nodeKey{"PROJECT", str(params["name"])}, map[nodeKey]bool{}, counts)
		var out []Record
		for label, n := range counts {
			out = append(out, Record{"label": label, "count": n})
		}
		sort.Slice(out, func(i, j int) bool { return str(out[i]["label"]) < str(out[j]["label"]) })
		return out, nil

	default:
		return nil, fmt.Errorf("query outside the supported set: %.60q", query)
	}
}

func (m *Memory) upsertNode(label, key string, props Record) {
	k := nodeKey{label, key}
	existing, ok := m.nodes[k]
	if !ok {
		m.nodes[k] = props
		return
	}
	for name, v := range props {
		existing[name] = v
	}
}

func (m *Memory) upsertEdge(from nodeKey, rel string, to nodeKey, props Record) {
	for i, e := range m.edges {
		if e.from == from && e.rel == rel && e.to == to {
			if props != nil {
				m.edges[i].props = props
			}
			return
		}
	}
	m.edges = append(m.edges, memEdge{from: from, rel: rel, to: to, props: props})
}

func (m *Memory) findByPath(path string) (nodeKey, bool) {
	for _, label := range []string{"DIR", "FILE"} {
		k := nodeKey{label, path}
		if _, ok := m.nodes[k]; ok {
			return k, true
		}
	}
	return nodeKey{}, false
}

func (m *Memory) children(from nodeKey) []Record {
	var out []Record
	for _, e := range m.edges {
		if e.from == from && e.rel == "CONTAINS" {
			props := m.nodes[e.to]
			out = append(out, Record{"label": e.to.label, "node": props})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, _ := out[i]["node"].(Record)
		pj, _ := out[j]["node"].(Record)
		return str(pi["name"]) < str(pj["name"])
	})
	return out
}

func (m *Memory) walkContains(from nodeKey, seen map[nodeKey]bool, counts map[string]int) {
	for _, e := range m.edges {
		if e.from == from && e.rel == "CONTAINS" && !seen[e.to] {
			seen[e.to] = true
			counts[e.to.label]++
			m.walkContains(e.to, seen, counts)
		}
	}
}

// EdgeCount returns the number of rel edges out of the labeled node.
// Test helper for graph-consistency assertions.
func (m *Memory) EdgeCount(label, key, rel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	from := nodeKey{label, key}
	for _, e := range m.edges {
		if e.from == from && e.rel == rel {
			n++
		}
	}
	return n
}

// Node returns a node's properties. Test helper.
func (m *Memory) Node(label, key string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	props, ok := m.nodes[nodeKey{label, key}]
	return props, ok
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package vecstore adapts the vector collaborator store. Point ids equal
// context-item ids, so re-upserting an updated chunk overwrites its
// point in place.
package vecstore

import (
	"context"
	"sort"
	"sync"
)

// Point is one stored vector with its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// CollectionInfo summarizes a collection.
type CollectionInfo struct {
	Name        string
	PointsCount int64
	VectorSize  int
	Status      string
}

// Store is the adapter contract.
type Store interface {
	UpsertPoint(ctx context.Context, collection, id string, vector []float32, payload map[string]any) error
	GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error)
	Scroll(ctx context.Context, collection, cursor string, limit int) ([]Point, string, error)
}

// MemoryStore is the in-process Store used by tests and dry runs.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]Point
}

// NewMemoryStore creates an empty in-memory vector store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Point)}
}

// UpsertPoint implements Store. Upserting an existing id overwrites the
// point.
func (s *MemoryStore) UpsertPoint(_ context.Context, collection, id string, vector []float32, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]Point)
		s.collections[collection] = coll
	}
	coll[id] = Point{ID: id, Vector: vector, Payload: payload}
	return nil
}

// GetCollectionInfo implements Store.
func (s *MemoryStore) GetCollectionInfo(_ context.Context, collection string) (*CollectionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collections[collection]
	size := 0
	for _, p := range coll {
		size = len(p.Vector)
		break
	}
	return &CollectionInfo{
		Name:        collection,
		PointsCount: int64(len(coll)),
		VectorSize:  size,
		Status:      "green",
	}, nil
}

// Scroll implements Store with a lexicographic id cursor.
func (s *MemoryStore) Scroll(_ context.Context, collection, cursor string, limit int) ([]Point, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	ids := make([]string, 0, len(s.collections[collection]))
	for id := range s.collections[collection] {
		if id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	points := make([]Point, 0, len(ids))
	for _, id := range ids {
		points = append(points, s.collections[collection][id])
	}
	next := ""
	if len(ids) == limit && limit > 0 {
		next = ids[len(ids)-1]
	}
	return points, next, nil
}

// Point returns a stored point by id. Test helper.
func (s *MemoryStore) Point(collection, id string) (Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.collections[collection][id]
	return p, ok
}

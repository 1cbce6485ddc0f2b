// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package relstore adapts the relational collaborator store. The core
// needs exactly three operations from any implementation: positional
// lookup, item insert, and fingerprint update. Positional identity is
// the tuple (source_ref, character_offset_start, character_offset_end).
package relstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Item is one context-item row.
type Item struct {
	ID                   string
	SourceRef            string
	CharStart            int
	CharEnd              int
	ItemType             string
	ContentFingerprint   string
	VersionHash          string
	NormalisationVersion string
	CrawlScope           string
	BootstrapTier        string
	BootstrapConfidence  float64
	CorrelationID        string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PositionRecord is the result of a positional lookup.
type PositionRecord struct {
	ItemID      string
	Fingerprint string
}

// Store is the adapter contract. LookupByPosition returns (nil, nil)
// when no row occupies the position.
type Store interface {
	LookupByPosition(ctx context.Context, sourceRef string, charStart, charEnd int) (*PositionRecord, error)
	InsertItem(ctx context.Context, item Item) error
	UpdateItemFingerprint(ctx context.Context, id, fingerprint, versionHash string) error
}

// positionKey identifies a chunk within a source.
type positionKey struct {
	sourceRef string
	start     int
	end       int
}

// MemoryStore is the in-process Store used by tests and dry runs. It
// enforces positional uniqueness the way the relational schema does.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Item        // by item id
	byPos map[positionKey]string // position -> item id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]Item),
		byPos: make(map[positionKey]string),
	}
}

// LookupByPosition implements Store.
func (s *MemoryStore) LookupByPosition(_ context.Context, sourceRef string, charStart, charEnd int) (*PositionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPos[positionKey{sourceRef, charStart, charEnd}]
	if !ok {
		return nil, nil
	}
	item := s.items[id]
	return &PositionRecord{ItemID: id, Fingerprint: item.ContentFingerprint}, nil
}

// InsertItem implements Store. Inserting into an occupied position is a
// programming error surfaced as a conflict.
func (s *MemoryStore) InsertItem(_ context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := positionKey{item.SourceRef, item.CharStart, item.CharEnd}
	if existing, ok := s.byPos[key]; ok {
		return fmt.Errorf("position (%s,%d,%d) already held by item %s",
			item.SourceRef, item.CharStart, item.CharEnd, existing)
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.items[item.ID] = item
	s.byPos[key] = item.ID
	return nil
}

// UpdateItemFingerprint implements Store.
func (s *MemoryStore) UpdateItemFingerprint(_ context.Context, id, fingerprint, versionHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("item %s not found", id)
	}
	item.ContentFingerprint = fingerprint
	item.VersionHash = versionHash
	item.UpdatedAt = time.Now().UTC()
	s.items[id] = item
	return nil
}

// Item returns a stored item by id. Test helper.
func (s *MemoryStore) Item(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	return item, ok
}

// Len returns the number of stored items.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package relstore

import (
	"context"
	"errors"
	"fmt"

	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a pgx connection pool. The pool is
// shared process-wide and created during startup.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects to the relational store and verifies the
// connection with a ping.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping relational store: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// EnsureSchema creates the context_items table if it does not exist.
// Idempotent, called once during startup.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS context_items (
    item_id               TEXT PRIMARY KEY,
    source_ref            TEXT NOT NULL,
    char_start            INTEGER NOT NULL,
    char_end              INTEGER NOT NULL,
    item_type             TEXT NOT NULL,
    content_fingerprint   TEXT NOT NULL,
    version_hash          TEXT NOT NULL,
    normalisation_version TEXT NOT NULL,
    crawl_scope           TEXT NOT NULL,
    bootstrap_tier        TEXT NOT NULL,
    bootstrap_confidence  DOUBLE PRECISION NOT NULL,
    correlation_id        TEXT NOT NULL,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (source_ref, char_start, char_end)
)`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure context_items schema: %w", err)
	}
	return nil
}

// LookupByPosition implements Store.
func (s *PostgresStore) LookupByPosition(ctx context.Context, sourceRef string, charStart, charEnd int) (*PositionRecord, error) {
	const q = `SELECT item_id, content_fingerprint FROM context_items
WHERE source_ref = $1 AND char_start = $2 AND char_end = $3`
	var rec PositionRecord
	err := s.pool.QueryRow(ctx, q, sourceRef, charStart, charEnd).Scan(&rec.ItemID, &rec.Fingerprint)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup by position: %w", err)
	}
	return &rec, nil
}

// InsertItem implements Store.
func (s *PostgresStore) InsertItem(ctx context.Context, item Item) error {
	const q = `INSERT INTO context_items
(item_id, source_ref, char_start, char_end, item_type, content_fingerprint,
 version_hash, normalisation_version, crawl_scope, bootstrap_tier,
 bootstrap_confidence, correlation_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := s.pool.Exec(ctx, q,
		item.ID, item.SourceRef, item.CharStart, item.CharEnd, item.ItemType,
		item.ContentFingerprint, item.VersionHash, item.NormalisationVersion,
		item.CrawlScope, item.BootstrapTier, item.BootstrapConfidence, item.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("insert item %s: %w", item.ID, err)
	}
	return nil
}

// UpdateItemFingerprint implements Store.
func (s *PostgresStore) UpdateItemFingerprint(ctx context.Context, id, fingerprint, versionHash string) error {
	const q = `UPDATE context_items
SET content_fingerprint = $2, version_hash = $3, updated_at = now()
WHERE item_id = $1`
	tag, err := s.pool.Exec(ctx, q, id, fingerprint, versionHash)
	if err != nil {
		return fmt.Errorf("update item %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %s not found", id)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

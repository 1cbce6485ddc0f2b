// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package writer implements the idempotent context-item writer, the
// lowest-level write primitive of the platform. Each embedded chunk maps
// to a CREATED, UPDATED, SKIPPED, or FAILED outcome against the triple
// store based on positional identity and content fingerprints.
package writer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalisationVersion names the normalisation rule applied before
// fingerprinting. It is stored alongside every fingerprint so a future
// rule change is detectable instead of silently reclassifying chunks.
const NormalisationVersion = "norm-v1"

// Chunk statuses. Canonical casing is UPPER-CASE everywhere.
const (
	StatusCreated = "CREATED"
	StatusUpdated = "UPDATED"
	StatusSkipped = "SKIPPED"
	StatusFailed  = "FAILED"
)

// EmbeddedChunk is one embedded slice of a source artifact. Its identity
// within the source is the position (SourceRef, CharStart, CharEnd); two
// chunks with the same position but different fingerprints represent an
// update.
type EmbeddedChunk struct {
	Content            string
	ItemType           string
	ContentFingerprint string
	VersionHash        string
	CharStart          int
	CharEnd            int
	SourceRef          string
	CrawlScope         string
	Embedding          []float32
	CorrelationID      string
	ParentEventID      string
}

// Normalize applies the norm-v1 rule: CRLF and CR unified to LF,
// trailing whitespace stripped per line, Unicode NFC.
func Normalize(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return norm.NFC.String(strings.Join(lines, "\n"))
}

// Fingerprint returns the stable hash of normalised content.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(Normalize(content)))
	return hex.EncodeToString(sum[:])
}

// DocumentHash is the whole-document fingerprint. It uses the same
// normalisation rule as chunk fingerprints but hashes the full content,
// so it is not derivable from the chunk fingerprint sequence.
func DocumentHash(content string) string {
	return Fingerprint(content)
}

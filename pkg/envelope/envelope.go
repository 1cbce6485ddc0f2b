// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package envelope defines the uniform message wrapper used on the event
// bus, its canonical JSON codec, and the event-type to topic router.
//
// Every message carries routing and correlation metadata: correlation_id is
// immutable along a causal chain, causation_id points at the immediate
// parent event (nil only at ingress). Payload schemas are determined by
// event_type.
package envelope

import (
	"fmt"
	"regexp"
	"time"

	"encoding/json"

	"github.com/google/uuid"
)

// SchemaVersion is the envelope schema version stamped on emitted events.
const SchemaVersion = "1.0.0"

// eventTypePattern validates dotted event type names such as
// "omninode.intelligence.event.document_index_completed.v1".
var eventTypePattern = regexp.MustCompile(`^[a-z_]+(\.[a-z_]+)+\.v\d+$`)

// Event types consumed and emitted by the core.
const (
	TypeRepositoryScanRequested = "omninode.intelligence.event.repository_scan_requested.v1"
	TypeRepositoryScanCompleted = "omninode.intelligence.event.repository_scan_completed.v1"
	TypeRepositoryScanFailed    = "omninode.intelligence.event.repository_scan_failed.v1"
	TypeDocumentIndexRequested  = "omninode.intelligence.event.document_index_requested.v1"
	TypeDocumentIndexCompleted  = "omninode.intelligence.event.document_index_completed.v1"
	TypeDocumentIndexFailed     = "omninode.intelligence.event.document_index_failed.v1"
	TypeDocumentIndexed         = "omninode.intelligence.event.document_indexed.v1"
)

// ErrorCode classifies failure payloads and dead-letter reasons.
type ErrorCode string

const (
	CodeMalformedEnvelope ErrorCode = "MALFORMED_ENVELOPE"
	CodePayloadTooLarge   ErrorCode = "PAYLOAD_TOO_LARGE"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeNoHandler         ErrorCode = "NO_HANDLER"
	CodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"
	CodeDownstream        ErrorCode = "DOWNSTREAM_UNAVAILABLE"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeProjectNotFound   ErrorCode = "PROJECT_NOT_FOUND"
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
)

// Source identifies the emitting service instance.
type Source struct {
	Service    string `json:"service"`
	InstanceID string `json:"instance_id"`
}

// Envelope is the uniform wrapper around every message on the bus.
//
// CorrelationID is preserved verbatim from first cause through every
// derived event and doubles as the partition key, so all events in a
// causal chain land on a single partition in send order.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	CorrelationID string          `json:"correlation_id"`
	CausationID   *string         `json:"causation_id"`
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	Source        Source          `json:"source"`
	Payload       json.RawMessage `json:"payload"`
}

// New builds an ingress envelope with a fresh correlation chain.
// CausationID is nil: externally-originated events have no parent.
func New(eventType string, payload any, src Source) (Envelope, error) {
	if !eventTypePattern.MatchString(eventType) {
		return Envelope{}, fmt.Errorf("invalid event_type %q", eventType)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		CorrelationID: uuid.NewString(),
		CausationID:   nil,
		Timestamp:     now(),
		Version:       SchemaVersion,
		Source:        src,
		Payload:       raw,
	}, nil
}

// Derive produces a child envelope with a fresh event_id and timestamp,
// preserving the parent's correlation_id and setting causation_id to the
// parent's event_id.
func Derive(parent Envelope, eventType string, payload any) (Envelope, error) {
	if !eventTypePattern.MatchString(eventType) {
		return Envelope{}, fmt.Errorf("invalid event_type %q", eventType)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload: %w", err)
	}
	causation := parent.EventID
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		CorrelationID: parent.CorrelationID,
		CausationID:   &causation,
		Timestamp:     now(),
		Version:       SchemaVersion,
		Source:        parent.Source,
		Payload:       raw,
	}, nil
}

// Validate checks the required header fields. It is called by Decode and
// by the runtime host before dispatch; a partially-constructed envelope
// never crosses a handler boundary.
func (e Envelope) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("%s: missing event_id", CodeMalformedEnvelope)
	}
	if e.EventType == "" {
		return fmt.Errorf("%s: missing event_type", CodeMalformedEnvelope)
	}
	if !eventTypePattern.MatchString(e.EventType) {
		return fmt.Errorf("%s: event_type %q does not match pattern", CodeMalformedEnvelope, e.EventType)
	}
	if e.CorrelationID == "" {
		return fmt.Errorf("%s: missing correlation_id", CodeMalformedEnvelope)
	}
	if e.Timestamp == "" {
		return fmt.Errorf("%s: missing timestamp", CodeMalformedEnvelope)
	}
	if _, err := time.Parse(time.RFC3339, e.Timestamp); err != nil {
		return fmt.Errorf("%s: bad timestamp %q", CodeMalformedEnvelope, e.Timestamp)
	}
	if e.Version == "" {
		return fmt.Errorf("%s: missing version", CodeMalformedEnvelope)
	}
	if e.Source.Service == "" {
		return fmt.Errorf("%s: missing source.service", CodeMalformedEnvelope)
	}
	return nil
}

// Key returns the partition key for the envelope.
func (e Envelope) Key() []byte {
	return []byte(e.CorrelationID)
}

// now returns the current time in RFC 3339 UTC.
func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultMaxEncodedBytes caps encoded envelope size. Oversize envelopes
// are replaced by a PAYLOAD_TOO_LARGE failure that itself fits the cap.
const DefaultMaxEncodedBytes = 1 << 20 // 1 MiB

// ErrPayloadTooLarge is returned by Codec.Encode when the encoded
// envelope exceeds the configured cap.
var ErrPayloadTooLarge = errors.New("encoded envelope exceeds payload cap")

// Codec serializes envelopes as canonical JSON: UTF-8 with
// lexicographically sorted keys, so identical envelopes always produce
// identical bytes for fingerprinting.
type Codec struct {
	// MaxEncodedBytes bounds the encoded size. Zero means
	// DefaultMaxEncodedBytes.
	MaxEncodedBytes int
}

func (c Codec) cap() int {
	if c.MaxEncodedBytes > 0 {
		return c.MaxEncodedBytes
	}
	return DefaultMaxEncodedBytes
}

// Encode serializes the envelope to canonical JSON. It validates headers
// first and returns ErrPayloadTooLarge when the result exceeds the cap.
func (c Codec) Encode(env Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	canonical, err := canonicalize(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize envelope: %w", err)
	}
	if len(canonical) > c.cap() {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(canonical), c.cap())
	}
	return canonical, nil
}

// Decode parses and validates an envelope. Messages missing any required
// header field or carrying an event_type that does not match the pattern
// surface a MALFORMED_ENVELOPE error and must be dead-lettered.
func (c Codec) Decode(b []byte) (Envelope, error) {
	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("%s: %w", CodeMalformedEnvelope, err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// TooLargeFailure derives a PAYLOAD_TOO_LARGE failure envelope from the
// parent of an oversize emission. The failure is guaranteed to fit the
// cap: error_details is truncated until it does.
func (c Codec) TooLargeFailure(parent Envelope, failType string, details string) (Envelope, []byte, error) {
	// Headroom for envelope headers plus the fixed payload fields.
	const headroom = 1024
	limit := c.cap() - headroom
	if limit < 0 {
		limit = 0
	}
	if len(details) > limit {
		details = details[:limit]
	}
	for {
		fail, err := Derive(parent, failType, DocumentIndexFailed{
			ErrorMessage: "encoded envelope exceeds payload cap",
			ErrorCode:    CodePayloadTooLarge,
			RetryAllowed: false,
			ErrorDetails: details,
		})
		if err != nil {
			return Envelope{}, nil, err
		}
		b, err := c.Encode(fail)
		if err == nil {
			return fail, b, nil
		}
		if !errors.Is(err, ErrPayloadTooLarge) || len(details) == 0 {
			return Envelope{}, nil, err
		}
		details = details[:len(details)/2]
	}
}

// canonicalize re-encodes arbitrary JSON with sorted object keys.
// encoding/json sorts map keys on marshal, so a round-trip through
// map[string]any yields the canonical form at every nesting level.
func canonicalize(raw []byte) ([]byte, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

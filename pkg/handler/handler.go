// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package handler defines the ABI every event handler implements and the
// registry the runtime host dispatches through.
//
// Handlers are stateless between envelopes; any per-chain state travels in
// payloads under the correlation_id. A handler never blocks indefinitely:
// the host bounds each invocation with a per-handler timeout.
package handler

import (
	"context"
	"time"

	"github.com/omninode/omnintel/pkg/envelope"
)

// Kind discriminates Outcome variants.
type Kind int

const (
	// KindAck commits the input after outgoing events are durably sent.
	KindAck Kind = iota
	// KindRetry redelivers the input after Delay without committing it.
	KindRetry
	// KindDeadLetter routes the input to the dead-letter topic and
	// commits it; no chain continuation is possible.
	KindDeadLetter
)

// Outcome is the tagged result of one handler invocation. Exactly one of
// the three variants applies; Events is only meaningful on ack.
type Outcome struct {
	Kind   Kind
	Delay  time.Duration // retry only
	Reason string        // dead-letter only
	Events []envelope.Envelope
}

// Ack acknowledges the input and enqueues the given outgoing events.
// Handlers emit exactly one terminal event per input envelope.
func Ack(events ...envelope.Envelope) Outcome {
	return Outcome{Kind: KindAck, Events: events}
}

// Retry requests redelivery of the input after delay.
func Retry(delay time.Duration) Outcome {
	return Outcome{Kind: KindRetry, Delay: delay}
}

// DeadLetter refuses the input permanently.
func DeadLetter(reason string) Outcome {
	return Outcome{Kind: KindDeadLetter, Reason: reason}
}

// Handler is the contract between the runtime host and domain logic.
type Handler interface {
	// Name identifies the handler in logs, metrics, and breaker scopes.
	Name() string

	// EventTypes lists the event types this handler accepts. The
	// registry rejects registration of handlers with unroutable types.
	EventTypes() []string

	// Handle processes one envelope and returns its outcome. The
	// context carries the per-handler deadline and the shutdown signal.
	Handle(ctx context.Context, env envelope.Envelope) Outcome
}

// CanHandle reports whether h accepts the given event type.
func CanHandle(h Handler, eventType string) bool {
	for _, t := range h.EventTypes() {
		if t == eventType {
			return true
		}
	}
	return false
}

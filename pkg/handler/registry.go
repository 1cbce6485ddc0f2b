// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package handler

import (
	"fmt"

	"github.com/omninode/omnintel/pkg/envelope"
)

// Registry dispatches envelopes to the first registered handler that
// accepts their event type. Registration order is dispatch order.
type Registry struct {
	handlers []Handler
	byType   map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]Handler)}
}

// Register adds a handler. Every declared event type must be in the
// compile-time topic table; the first handler to claim a type wins.
func (r *Registry) Register(h Handler) error {
	types := h.EventTypes()
	if len(types) == 0 {
		return fmt.Errorf("handler %q declares no event types", h.Name())
	}
	for _, t := range types {
		if !envelope.KnownType(t) {
			return fmt.Errorf("handler %q declares unroutable event type %q", h.Name(), t)
		}
		if _, taken := r.byType[t]; !taken {
			r.byType[t] = h
		}
	}
	r.handlers = append(r.handlers, h)
	return nil
}

// Lookup returns the handler for an event type, or false when none is
// registered; the host dead-letters those envelopes with NO_HANDLER.
func (r *Registry) Lookup(eventType string) (Handler, bool) {
	h, ok := r.byType[eventType]
	return h, ok
}

// EventTypes returns the union of all registered event types.
func (r *Registry) EventTypes() []string {
	out := make([]string, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	return out
}

// Handlers returns the registered handlers in registration order.
func (r *Registry) Handlers() []Handler {
	return r.handlers
}

// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package envelope

import (
	"fmt"
	"strings"
)

// topicTable maps event types to {aspect, operation} pairs. Unknown
// types fall through to the dead-letter topic.
var topicTable = map[string]struct {
	aspect    string
	operation string
	version   int
}{
	TypeRepositoryScanRequested: {"intelligence", "repository-scan-requested", 1},
	TypeRepositoryScanCompleted: {"intelligence", "repository-scan-completed", 1},
	TypeRepositoryScanFailed:    {"intelligence", "repository-scan-failed", 1},
	TypeDocumentIndexRequested:  {"intelligence", "document-index-requested", 1},
	TypeDocumentIndexCompleted:  {"intelligence", "document-index-completed", 1},
	TypeDocumentIndexFailed:     {"intelligence", "document-index-failed", 1},
	TypeDocumentIndexed:         {"intelligence", "document-indexed", 1},
}

// Router resolves event types to topics of the form
// {env}.{service}.{aspect}.{operation-kebab}.v{n}.
type Router struct {
	env       string
	service   string
	overrides map[string]string
}

// NewRouter creates a topic router for the given deployment environment
// and service name. Overrides map event types to fully-qualified topics
// and take precedence over the built-in table.
func NewRouter(env, service string, overrides map[string]string) *Router {
	if env == "" {
		env = "dev"
	}
	if service == "" {
		service = "omni-intelligence"
	}
	return &Router{env: env, service: service, overrides: overrides}
}

// TopicFor resolves the destination topic for an event type. Unknown
// event types resolve to the dead-letter topic so they are never lost.
func (r *Router) TopicFor(eventType string) string {
	if t, ok := r.overrides[eventType]; ok && t != "" {
		return t
	}
	entry, ok := topicTable[eventType]
	if !ok {
		return r.DeadLetterTopic()
	}
	return fmt.Sprintf("%s.%s.%s.%s.v%d", r.env, r.service, entry.aspect, entry.operation, entry.version)
}

// DeadLetterTopic returns {env}.{service}.dlq.v1.
func (r *Router) DeadLetterTopic() string {
	return fmt.Sprintf("%s.%s.dlq.v1", r.env, r.service)
}

// Topics returns every topic the router can emit to, dead-letter
// included. Consumers subscribe to the request subset of these.
func (r *Router) Topics() []string {
	seen := map[string]bool{}
	var out []string
	for et := range topicTable {
		t := r.TopicFor(et)
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	dlq := r.DeadLetterTopic()
	if !seen[dlq] {
		out = append(out, dlq)
	}
	return out
}

// KnownType reports whether the event type is in the compile-time table.
func KnownType(eventType string) bool {
	_, ok := topicTable[eventType]
	return ok
}

// Kebab converts an event operation segment to its kebab-cased topic
// form ("document_index_requested" -> "document-index-requested").
func Kebab(s string) string {
	return strings.ReplaceAll(s, "_", "-")
}

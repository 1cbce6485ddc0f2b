// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package handler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omninode/omnintel/pkg/envelope"
)

type fakeHandler struct {
	name  string
	types []string
}

func (f fakeHandler) Name() string         { return f.name }
func (f fakeHandler) EventTypes() []string { return f.types }
func (f fakeHandler) Handle(context.Context, envelope.Envelope) Outcome {
	return Ack()
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	h := fakeHandler{name: "indexer", types: []string{envelope.TypeDocumentIndexRequested}}
	require.NoError(t, r.Register(h))

	got, ok := r.Lookup(envelope.TypeDocumentIndexRequested)
	require.True(t, ok)
	assert.Equal(t, "indexer", got.Name())

	_, ok = r.Lookup(envelope.TypeRepositoryScanRequested)
	assert.False(t, ok)
}

func TestRegistryRejectsUnroutableType(t *testing.T) {
	r := NewRegistry()
	err := r.Register(fakeHandler{name: "bad", types: []string{"omnintel.unknown.event.v1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unroutable")
}

func TestRegistryRejectsEmptyTypeList(t *testing.T) {
	r := NewRegistry()
	err := r.Register(fakeHandler{name: "empty"})
	require.Error(t, err)
}

func TestRegistryFirstClaimWins(t *testing.T) {
	r := NewRegistry()
	first := fakeHandler{name: "first", types: []string{envelope.TypeDocumentIndexRequested}}
	second := fakeHandler{
		name:  "second",
		types: []string{envelope.TypeDocumentIndexRequested, envelope.TypeRepositoryScanRequested},
	}
	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(second))

	got, ok := r.Lookup(envelope.TypeDocumentIndexRequested)
	require.True(t, ok)
	assert.Equal(t, "first", got.Name())

	got, ok = r.Lookup(envelope.TypeRepositoryScanRequested)
	require.True(t, ok)
	assert.Equal(t, "second", got.Name())

	assert.Len(t, r.Handlers(), 2)
	assert.ElementsMatch(t, []string{
		envelope.TypeDocumentIndexRequested,
		envelope.TypeRepositoryScanRequested,
	}, r.EventTypes())
}

func TestOutcomeConstructors(t *testing.T) {
	env := envelope.Envelope{EventType: envelope.TypeDocumentIndexCompleted}

	out := Ack(env)
	assert.Equal(t, KindAck, out.Kind)
	require.Len(t, out.Events, 1)

	out = Retry(5 * time.Second)
	assert.Equal(t, KindRetry, out.Kind)
	assert.Equal(t, 5*time.Second, out.Delay)

	out = DeadLetter("NO_HANDLER")
	assert.Equal(t, KindDeadLetter, out.Kind)
	assert.Equal(t, "NO_HANDLER", out.Reason)
}

func TestCanHandle(t *testing.T) {
	h := fakeHandler{name: "crawler", types: []string{envelope.TypeRepositoryScanRequested}}
	assert.True(t, CanHandle(h, envelope.TypeRepositoryScanRequested))
	assert.False(t, CanHandle(h, envelope.TypeDocumentIndexRequested))
}

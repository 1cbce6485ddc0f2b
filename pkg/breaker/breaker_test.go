// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDownstream = errors.New("downstream unavailable")

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	reg := NewRegistry(Config{ConsecutiveFailures: 3, RecoveryTimeout: time.Minute}, nil)
	b := reg.Get("indexer:vector")

	calls := 0
	fail := func() error { calls++; return errDownstream }

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, b.Do(fail), errDownstream)
	}
	assert.Equal(t, "open", b.State())

	// While OPEN no downstream call is issued.
	err := b.Do(fail)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, calls, "downstream must not be touched while open")
}

func TestBreaker_HalfOpenProbeThenClose(t *testing.T) {
	reg := NewRegistry(Config{ConsecutiveFailures: 1, RecoveryTimeout: 30 * time.Millisecond}, nil)
	b := reg.Get("indexer:graph")

	require.ErrorIs(t, b.Do(func() error { return errDownstream }), errDownstream)
	assert.Equal(t, "open", b.State())

	// After the recovery timeout a single probe is allowed; success
	// closes the breaker again.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	reg := NewRegistry(Config{ConsecutiveFailures: 1, RecoveryTimeout: 30 * time.Millisecond}, nil)
	b := reg.Get("indexer:quality")

	require.Error(t, b.Do(func() error { return errDownstream }))
	time.Sleep(50 * time.Millisecond)

	require.ErrorIs(t, b.Do(func() error { return errDownstream }), errDownstream)
	assert.Equal(t, "open", b.State())
}

func TestRegistry_SharesBreakersPerScope(t *testing.T) {
	reg := NewRegistry(Config{}, nil)
	a := reg.Get("h:svc")
	b := reg.Get("h:svc")
	c := reg.Get("h:other")
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)

	states := reg.States()
	assert.Len(t, states, 2)
	assert.Equal(t, "closed", states["h:svc"])
}

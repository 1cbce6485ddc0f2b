// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package bus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus_PerKeyOrdering(t *testing.T) {
	b := NewMemoryBus(4)
	ctx := context.Background()

	// Interleave two chains; each must be consumed in send order.
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(ctx, "t", []byte("chain-a"), []byte(fmt.Sprintf("a%d", i)), nil))
		require.NoError(t, b.Publish(ctx, "t", []byte("chain-b"), []byte(fmt.Sprintf("b%d", i)), nil))
	}

	c := b.NewConsumer("t")
	seen := map[byte]int{}
	for i := 0; i < 20; i++ {
		msg, err := c.Fetch(ctx)
		require.NoError(t, err)
		chain := msg.Value[0]
		var n int
		_, err = fmt.Sscanf(string(msg.Value[1:]), "%d", &n)
		require.NoError(t, err)
		assert.Equal(t, seen[chain], n, "chain %c out of order", chain)
		seen[chain]++
		require.NoError(t, c.Commit(ctx, msg))
	}
	assert.Equal(t, 10, seen['a'])
	assert.Equal(t, 10, seen['b'])
}

func TestMemoryBus_TopicFiltering(t *testing.T) {
	b := NewMemoryBus(2)
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "wanted", []byte("k"), []byte("yes"), nil))
	require.NoError(t, b.Publish(ctx, "other", []byte("k"), []byte("no"), nil))
	require.NoError(t, b.Publish(ctx, "wanted", []byte("k"), []byte("yes2"), nil))

	c := b.NewConsumer("wanted")
	m1, err := c.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "yes", string(m1.Value))
	m2, err := c.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "yes2", string(m2.Value))
}

func TestMemoryBus_RewindRedeliversUncommitted(t *testing.T) {
	b := NewMemoryBus(1)
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "t", []byte("k"), []byte("one"), nil))
	require.NoError(t, b.Publish(ctx, "t", []byte("k"), []byte("two"), nil))

	c := b.NewConsumer("t")
	m1, err := c.Fetch(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx, m1))

	m2, err := c.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "two", string(m2.Value))

	// Not committed: after a rewind the record comes back.
	c.Rewind()
	m2again, err := c.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "two", string(m2again.Value))
	assert.Equal(t, m2.Offset, m2again.Offset)
}

func TestMemoryBus_FetchBlocksUntilPublish(t *testing.T) {
	b := NewMemoryBus(2)
	c := b.NewConsumer("t")

	done := make(chan Message, 1)
	go func() {
		m, err := c.Fetch(context.Background())
		if err == nil {
			done <- m
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Publish(context.Background(), "t", []byte("k"), []byte("v"), nil))

	select {
	case m := <-done:
		assert.Equal(t, "v", string(m.Value))
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not wake after publish")
	}
}

func TestMemoryBus_FetchHonorsContext(t *testing.T) {
	b := NewMemoryBus(1)
	c := b.NewConsumer("t")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.Fetch(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDeadLetterSink_PreservesKeyAndReason(t *testing.T) {
	b := NewMemoryBus(2)
	sink := NewDeadLetterSink(b, "dev.omni-intelligence.dlq.v1", nil)

	raw := []byte(`{"garbled":`)
	require.NoError(t, sink.Send(context.Background(), []byte("corr-1"), raw, "MALFORMED_ENVELOPE"))

	c := b.NewConsumer(sink.Topic())
	m, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, raw, m.Value)
	assert.Equal(t, "corr-1", string(m.Key))
	assert.Equal(t, "MALFORMED_ENVELOPE", m.Headers[HeaderDeadLetterReason])
}

// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package bus abstracts the partitioned durable log the core publishes to
// and consumes from. The production adapter speaks Kafka; MemoryBus
// provides the same partition-per-key ordering semantics in process for
// tests and dry runs.
//
// Messages are keyed by correlation_id, so every event in a causal chain
// lands on a single partition and is consumed in send order.
package bus

import (
	"context"
	"hash/fnv"
	"sync"
)

// Message is one record fetched from the log. Offset is the position
// within the partition and is only meaningful for Commit.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
}

// Publisher appends records to the log. Publish returns only after the
// record is durably accepted by the broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
	Close() error
}

// Consumer fetches records and commits offsets. A record whose offset is
// never committed is redelivered after a consumer restart.
type Consumer interface {
	Fetch(ctx context.Context) (Message, error)
	Commit(ctx context.Context, msg Message) error
	Close() error
}

// partitionFor hashes a key onto one of n partitions. An empty key maps
// to partition 0 rather than being sprayed randomly, keeping tests
// deterministic.
func partitionFor(key []byte, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(n))
}

// MemoryBus is an in-process partitioned log. It keeps one append-only
// slice per partition; consumers created by NewConsumer hold independent
// delivered/committed cursors, like separate consumer groups.
type MemoryBus struct {
	mu         sync.Mutex
	partitions [][]Message
	notify     chan struct{}
}

// NewMemoryBus creates a bus with the given partition count.
func NewMemoryBus(numPartitions int) *MemoryBus {
	if numPartitions <= 0 {
		numPartitions = 4
	}
	return &MemoryBus{
		partitions: make([][]Message, numPartitions),
		notify:     make(chan struct{}),
	}
}

// Publish appends a record to the partition selected by hashing key.
func (b *MemoryBus) Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	p := partitionFor(key, len(b.partitions))
	msg := Message{
		Topic:     topic,
		Partition: p,
		Offset:    int64(len(b.partitions[p])),
		Key:       key,
		Value:     value,
		Headers:   headers,
	}
	b.partitions[p] = append(b.partitions[p], msg)
	// Wake all blocked consumers.
	close(b.notify)
	b.notify = make(chan struct{})
	b.mu.Unlock()
	return nil
}

// Close implements Publisher.
func (b *MemoryBus) Close() error { return nil }

// Depth returns the total number of records on the given topic,
// delivered or not. Used by tests and the status command.
func (b *MemoryBus) Depth(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, part := range b.partitions {
		for _, m := range part {
			if m.Topic == topic {
				n++
			}
		}
	}
	return n
}

// MemoryConsumer consumes a topic subset from a MemoryBus.
type MemoryConsumer struct {
	bus    *MemoryBus
	topics map[string]bool

	mu        sync.Mutex
	delivered []int64 // next log position to inspect, per partition
	committed []int64 // first uncommitted log position, per partition
}

// NewConsumer creates an independent consumer over the given topics.
func (b *MemoryBus) NewConsumer(topics ...string) *MemoryConsumer {
	ts := make(map[string]bool, len(topics))
	for _, t := range topics {
		ts[t] = true
	}
	return &MemoryConsumer{
		bus:       b,
		topics:    ts,
		delivered: make([]int64, len(b.partitions)),
		committed: make([]int64, len(b.partitions)),
	}
}

// Fetch blocks until a subscribed record is available or ctx is done.
func (c *MemoryConsumer) Fetch(ctx context.Context) (Message, error) {
	for {
		c.bus.mu.Lock()
		notify := c.bus.notify
		c.mu.Lock()
		for p := range c.bus.partitions {
			part := c.bus.partitions[p]
			for c.delivered[p] < int64(len(part)) {
				m := part[c.delivered[p]]
				c.delivered[p]++
				if c.topics[m.Topic] {
					c.mu.Unlock()
					c.bus.mu.Unlock()
					return m, nil
				}
			}
		}
		c.mu.Unlock()
		c.bus.mu.Unlock()

		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-notify:
		}
	}
}

// Commit marks every record up to and including msg as processed.
func (c *MemoryConsumer) Commit(_ context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.Offset+1 > c.committed[msg.Partition] {
		c.committed[msg.Partition] = msg.Offset + 1
	}
	return nil
}

// Rewind resets delivery cursors to the last committed offsets, making
// every uncommitted record eligible for redelivery. The runtime host
// calls this when a handler abandons work during shutdown.
func (c *MemoryConsumer) Rewind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.delivered, c.committed)
}

// Close implements Consumer.
func (c *MemoryConsumer) Close() error { return nil }

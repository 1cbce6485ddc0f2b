// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures the broker adapters. BootstrapServers comes
// from KAFKA_BOOTSTRAP_SERVERS.
type KafkaConfig struct {
	BootstrapServers []string
	GroupID          string
	MinBytes         int
	MaxBytes         int
	MaxWait          time.Duration
	BatchTimeout     time.Duration
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.MinBytes <= 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 << 20
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 500 * time.Millisecond
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 10 * time.Millisecond
	}
	return c
}

// KafkaPublisher writes keyed records through a single shared writer.
// The Hash balancer routes equal keys to a single partition, which is
// what gives correlation chains their ordering guarantee.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaPublisher creates a publisher that requires acknowledgement
// from all in-sync replicas before Publish returns.
func NewKafkaPublisher(cfg KafkaConfig, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.BootstrapServers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: cfg.BatchTimeout,
		},
		logger: logger,
	}
}

// Publish appends one record and waits for the broker acknowledgement.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	msg := kafka.Message{Topic: topic, Key: key, Value: value}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish to %s: %w", topic, err)
	}
	recordPublished(topic)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaConsumer fetches records from a consumer group with manual offset
// commits. Offsets are committed only after the handler's terminal event
// is durably enqueued.
type KafkaConsumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	fetched offsetLog
}

// offsetLog maps partition/offset pairs back to the kafka messages
// CommitMessages needs. Fetch runs on the consume-loop goroutine while
// Commit runs on per-message workers, so access is locked.
type offsetLog struct {
	mu   sync.Mutex
	msgs map[[2]int64]kafka.Message
}

func (l *offsetLog) track(partition int, offset int64, km kafka.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.msgs == nil {
		l.msgs = make(map[[2]int64]kafka.Message)
	}
	l.msgs[[2]int64{int64(partition), offset}] = km
}

func (l *offsetLog) take(partition int, offset int64) (kafka.Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	km, ok := l.msgs[[2]int64{int64(partition), offset}]
	if ok {
		delete(l.msgs, [2]int64{int64(partition), offset})
	}
	return km, ok
}

// NewKafkaConsumer subscribes the configured group to the given topics.
func NewKafkaConsumer(cfg KafkaConfig, topics []string, logger *slog.Logger) *KafkaConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.BootstrapServers,
			GroupID:     cfg.GroupID,
			GroupTopics: topics,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			MaxWait:     cfg.MaxWait,
		}),
		logger: logger,
	}
}

// Fetch blocks for the next record without committing its offset.
func (c *KafkaConsumer) Fetch(ctx context.Context) (Message, error) {
	km, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return Message{}, err
	}
	headers := make(map[string]string, len(km.Headers))
	for _, h := range km.Headers {
		headers[h.Key] = string(h.Value)
	}
	c.fetched.track(km.Partition, km.Offset, km)
	recordConsumed(km.Topic)
	return Message{
		Topic:     km.Topic,
		Partition: km.Partition,
		Offset:    km.Offset,
		Key:       km.Key,
		Value:     km.Value,
		Headers:   headers,
	}, nil
}

// Commit acknowledges the record with the broker. A failed commit keeps
// the record tracked so a later attempt can still resolve it.
func (c *KafkaConsumer) Commit(ctx context.Context, msg Message) error {
	km, ok := c.fetched.take(msg.Partition, msg.Offset)
	if !ok {
		return fmt.Errorf("commit of unfetched message partition=%d offset=%d", msg.Partition, msg.Offset)
	}
	if err := c.reader.CommitMessages(ctx, km); err != nil {
		c.fetched.track(msg.Partition, msg.Offset, km)
		return fmt.Errorf("kafka commit: %w", err)
	}
	return nil
}

// Close leaves the consumer group cleanly so uncommitted offsets are
// redelivered to the next assignee.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package bus

import (
	"context"
	"fmt"

	"log/slog"
)

// HeaderDeadLetterReason carries the reason a record was routed to the
// dead-letter topic.
const HeaderDeadLetterReason = "x-dlq-reason"

// DeadLetterSink publishes refused records to the dead-letter topic with
// their original bytes intact, so they can be inspected and replayed.
type DeadLetterSink struct {
	pub    Publisher
	topic  string
	logger *slog.Logger
}

// NewDeadLetterSink wraps a publisher with the dead-letter topic.
func NewDeadLetterSink(pub Publisher, topic string, logger *slog.Logger) *DeadLetterSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeadLetterSink{pub: pub, topic: topic, logger: logger}
}

// Send routes raw record bytes to the dead-letter topic. The key is
// preserved so related dead letters stay on one partition.
func (s *DeadLetterSink) Send(ctx context.Context, key, raw []byte, reason string) error {
	headers := map[string]string{HeaderDeadLetterReason: reason}
	if err := s.pub.Publish(ctx, s.topic, key, raw, headers); err != nil {
		return fmt.Errorf("dead-letter publish: %w", err)
	}
	recordDeadLettered(reason)
	s.logger.Warn("bus.dead_letter", "topic", s.topic, "reason", reason, "bytes", len(raw))
	return nil
}

// Topic returns the dead-letter topic name.
func (s *DeadLetterSink) Topic() string { return s.topic }

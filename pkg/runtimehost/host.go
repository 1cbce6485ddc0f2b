// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package runtimehost runs the consume loop: it fetches envelopes,
// dispatches them through the handler registry under a global in-flight
// semaphore, applies each outcome's commit semantics, and dead-letters
// what cannot continue.
//
// Commit discipline: an input offset is committed only after its terminal
// emission is durable (ack), after its delayed copy is re-injected
// (retry), or together with its dead-letter record. An uncommitted
// offset is redelivered after restart, so every consumed envelope ends
// in exactly one of those three states.
package runtimehost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/omninode/omnintel/pkg/bus"
	"github.com/omninode/omnintel/pkg/envelope"
	"github.com/omninode/omnintel/pkg/handler"
)

// Config tunes the host.
type Config struct {
	MaxInFlight    int           // concurrent envelope bound (default 10)
	HandlerTimeout time.Duration // per-invocation deadline (default 30s)
	ShutdownGrace  time.Duration // drain window on cancel (default 10s)
}

func (c Config) withDefaults() Config {
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 10
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 30 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
	return c
}

// Host is one consume loop instance.
type Host struct {
	consumer  bus.Consumer
	publisher bus.Publisher
	router    *envelope.Router
	codec     envelope.Codec
	registry  *handler.Registry
	dlq       *bus.DeadLetterSink
	sem       *semaphore.Weighted
	cfg       Config
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// New wires a host. The dead-letter sink publishes through the same
// publisher on the router's dead-letter topic.
func New(consumer bus.Consumer, publisher bus.Publisher, router *envelope.Router,
	codec envelope.Codec, registry *handler.Registry, cfg Config, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Host{
		consumer:  consumer,
		publisher: publisher,
		router:    router,
		codec:     codec,
		registry:  registry,
		dlq:       bus.NewDeadLetterSink(publisher, router.DeadLetterTopic(), logger),
		sem:       semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		cfg:       cfg,
		logger:    logger,
	}
}

// Run consumes until ctx is cancelled, then drains in-flight handlers
// within the shutdown grace window. Envelopes still running at the
// deadline stay uncommitted and will be redelivered.
func (h *Host) Run(ctx context.Context) error {
	h.logger.Info("host.run.start", "max_in_flight", h.cfg.MaxInFlight)
	for {
		msg, err := h.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			h.logger.Warn("host.fetch.error", "error", err)
			continue
		}

		waitStart := time.Now()
		if !h.sem.TryAcquire(1) {
			recordSaturation()
			if err := h.sem.Acquire(ctx, 1); err != nil {
				break
			}
		}
		observeSemWait(time.Since(waitStart))

		h.wg.Add(1)
		go func(msg bus.Message) {
			defer h.wg.Done()
			defer h.sem.Release(1)
			h.process(ctx, msg)
		}(msg)
	}

	return h.drain()
}

func (h *Host) drain() error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		h.logger.Info("host.run.stopped")
		return nil
	case <-time.After(h.cfg.ShutdownGrace):
		h.logger.Warn("host.shutdown.grace_exceeded", "grace", h.cfg.ShutdownGrace)
		return fmt.Errorf("shutdown grace of %s exceeded with handlers in flight", h.cfg.ShutdownGrace)
	}
}

// process runs one envelope end to end. Commit/ack semantics follow the
// outcome; publishing uses a background-derived context so a shutdown
// mid-emission does not strand a half-acked envelope.
func (h *Host) process(ctx context.Context, msg bus.Message) {
	// Emissions and commits finish even when ctx is cancelled mid-flight.
	finish := context.WithoutCancel(ctx)

	env, err := h.codec.Decode(msg.Value)
	if err != nil {
		h.deadLetter(finish, msg, string(envelope.CodeMalformedEnvelope))
		return
	}

	hnd, ok := h.registry.Lookup(env.EventType)
	if !ok {
		h.deadLetter(finish, msg, string(envelope.CodeNoHandler))
		return
	}

	outcome := h.invoke(ctx, hnd, env)

	switch outcome.Kind {
	case handler.KindAck:
		h.ack(finish, msg, env, outcome)
	case handler.KindRetry:
		h.reinject(finish, msg, outcome.Delay)
	case handler.KindDeadLetter:
		h.deadLetter(finish, msg, outcome.Reason)
	}
}

// invoke bounds the handler with its timeout and converts panics into a
// dead-letter outcome carrying a stack summary.
func (h *Host) invoke(ctx context.Context, hnd handler.Handler, env envelope.Envelope) (outcome handler.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			if len(stack) > 2048 {
				stack = stack[:2048]
			}
			h.logger.Error("host.handler.panic",
				"handler", hnd.Name(), "event_id", env.EventID, "panic", r, "stack", stack)
			outcome = handler.DeadLetter(string(envelope.CodeInternal))
		}
	}()

	hctx, cancel := context.WithTimeout(ctx, h.cfg.HandlerTimeout)
	defer cancel()

	start := time.Now()
	outcome = hnd.Handle(hctx, env)
	recordHandled(hnd.Name(), kindName(outcome.Kind), time.Since(start))
	return outcome
}

// ack publishes the outgoing events durably, then commits the input. If
// any emission fails the input is dead-lettered and committed so it
// cannot loop as a poison message.
func (h *Host) ack(ctx context.Context, msg bus.Message, env envelope.Envelope, outcome handler.Outcome) {
	for _, out := range outcome.Events {
		encoded, err := h.codec.Encode(out)
		if errors.Is(err, envelope.ErrPayloadTooLarge) {
			var fallback envelope.Envelope
			fallback, encoded, err = h.codec.TooLargeFailure(env, failureTypeFor(out.EventType),
				fmt.Sprintf("event %s exceeded the payload cap", out.EventID))
			if err == nil {
				out = fallback
			}
		}
		if err != nil {
			h.logger.Error("host.emit.encode_failed", "event_type", out.EventType, "error", err)
			h.deadLetter(ctx, msg, "EMIT_FAILED")
			return
		}
		topic := h.router.TopicFor(out.EventType)
		if perr := h.publisher.Publish(ctx, topic, out.Key(), encoded, nil); perr != nil {
			h.logger.Error("host.emit.publish_failed",
				"topic", topic, "event_type", out.EventType, "error", perr)
			h.deadLetter(ctx, msg, "EMIT_FAILED")
			return
		}
	}
	h.commit(ctx, msg)
}

// reinject publishes a copy of the original record to its own topic
// after the delay, then commits the original. Same key, so the chain
// stays on its partition; ordering within the chain is already released
// by the handler choosing retry.
func (h *Host) reinject(ctx context.Context, msg bus.Message, delay time.Duration) {
	if delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
	if err := h.publisher.Publish(ctx, msg.Topic, msg.Key, msg.Value, msg.Headers); err != nil {
		// Leave the input uncommitted; broker redelivery is the fallback.
		h.logger.Error("host.reinject.failed", "topic", msg.Topic, "error", err)
		return
	}
	recordReinjected(msg.Topic)
	h.commit(ctx, msg)
}

func (h *Host) deadLetter(ctx context.Context, msg bus.Message, reason string) {
	if err := h.dlq.Send(ctx, msg.Key, msg.Value, reason); err != nil {
		h.logger.Error("host.dead_letter.failed", "reason", reason, "error", err)
		return
	}
	h.commit(ctx, msg)
}

func (h *Host) commit(ctx context.Context, msg bus.Message) {
	if err := h.consumer.Commit(ctx, msg); err != nil {
		h.logger.Error("host.commit.failed", "topic", msg.Topic, "offset", msg.Offset, "error", err)
	}
}

// failureTypeFor pairs a success emission with its failure counterpart
// for oversize fallbacks.
func failureTypeFor(eventType string) string {
	switch eventType {
	case envelope.TypeRepositoryScanCompleted:
		return envelope.TypeRepositoryScanFailed
	default:
		return envelope.TypeDocumentIndexFailed
	}
}

func kindName(k handler.Kind) string {
	switch k {
	case handler.KindAck:
		return "ack"
	case handler.KindRetry:
		return "retry"
	case handler.KindDeadLetter:
		return "dead_letter"
	}
	return "unknown"
}

// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package breaker provides per-scope circuit breakers around downstream
// services. A scope is typically "{handler_name}:{service}". Breakers
// are shared process-wide, created on first use, and closed states are
// exported as metrics.
package breaker

import (
	"errors"
	"sync"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned without touching the downstream service
// while a breaker is open, or when half-open probe capacity is taken.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Config holds breaker tuning. Zero values take the documented defaults.
type Config struct {
	// ConsecutiveFailures trips CLOSED->OPEN. Default 5.
	ConsecutiveFailures uint32
	// RecoveryTimeout is how long OPEN lasts before HALF_OPEN. Default 60s.
	RecoveryTimeout time.Duration
	// HalfOpenMaxAttempts caps concurrent probes in HALF_OPEN. Default 1.
	HalfOpenMaxAttempts uint32
}

func (c Config) withDefaults() Config {
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 60 * time.Second
	}
	if c.HalfOpenMaxAttempts == 0 {
		c.HalfOpenMaxAttempts = 1
	}
	return c
}

// Breaker wraps one gobreaker instance for a named scope.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// Do invokes fn through the breaker. While OPEN it fails immediately
// with ErrCircuitOpen and fn is never called.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State returns the current state name: closed, half-open, or open.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Registry hands out shared breakers keyed by scope name.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	logger   *slog.Logger
	breakers map[string]*Breaker
}

// NewRegistry creates a breaker registry with shared config.
func NewRegistry(cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for a scope, creating it on first use.
func (r *Registry) Get(scope string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[scope]; ok {
		return b
	}

	cfg := r.cfg
	logger := r.logger
	settings := gobreaker.Settings{
		Name:        scope,
		MaxRequests: cfg.HalfOpenMaxAttempts,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("breaker.state_change", "scope", name, "from", from.String(), "to", to.String())
			setBreakerState(name, to)
		},
	}
	b := &Breaker{name: scope, cb: gobreaker.NewCircuitBreaker(settings)}
	setBreakerState(scope, gobreaker.StateClosed)
	r.breakers[scope] = b
	return b
}

// States returns a snapshot of all breaker states by scope.
func (r *Registry) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.breakers))
	for scope, b := range r.breakers {
		out[scope] = b.State()
	}
	return out
}

// metricsBreaker exports breaker state as a gauge:
// 0 closed, 1 half-open, 2 open.
type metricsBreaker struct {
	once  sync.Once
	state *prometheus.GaugeVec
}

var brMetrics metricsBreaker

func (m *metricsBreaker) init() {
	m.once.Do(func() {
		m.state = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "omnintel_breaker_state", Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"scope"})
		prometheus.MustRegister(m.state)
	})
}

func setBreakerState(scope string, s gobreaker.State) {
	brMetrics.init()
	var v float64
	switch s {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	brMetrics.state.WithLabelValues(scope).Set(v)
}

// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package embed turns crawled documents into embedded chunks ready for
// the context-item writer. Providers generate the vectors; the batch
// producer handles chunking, concurrency, and skip accounting.
package embed

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/omninode/omnintel/pkg/httpx"
)

// Provider generates embeddings for text. Implementations return a
// unit-length vector or an error.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MockProvider generates deterministic embeddings from a text hash.
// Useful for tests and dry runs where semantic quality does not matter.
type MockProvider struct {
	dimension int
}

// NewMockProvider creates a mock provider. A common dimension is 384.
func NewMockProvider(dimension int) *MockProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &MockProvider{dimension: dimension}
}

// Embed implements Provider with a djb2-seeded pseudo-random vector.
func (m *MockProvider) Embed(_ context.Context, text string) ([]float32, error) {
	var hash uint64 = 5381
	for _, c := range text {
		hash = ((hash << 5) + hash) + uint64(c)
	}

	vec := make([]float32, m.dimension)
	for i := range vec {
		val := float32((hash+uint64(i)*7919)%10000) / 10000.0
		vec[i] = val*2.0 - 1.0
	}
	return normalizeVector(vec), nil
}

// HTTPProvider calls an OpenAI-compatible /embeddings endpoint through
// the shared retrying HTTP client.
type HTTPProvider struct {
	client  *httpx.Client
	baseURL string
	model   string
	apiKey  string
	logger  *slog.Logger
}

// HTTPConfig configures an HTTPProvider.
type HTTPConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	Client  httpx.Config
}

// NewHTTPProvider creates a provider against an OpenAI-compatible API.
func NewHTTPProvider(cfg HTTPConfig, logger *slog.Logger) *HTTPProvider {
	if logger == nil {
		logger = slog.Default()
	}
	client := httpx.New("embedding", cfg.Client, logger)
	if cfg.APIKey != "" {
		client.SetBearerToken(cfg.APIKey)
	}
	return &HTTPProvider{
		client:  client,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

type embedRequest struct {
	Input          string `json:"input"`
	Model          string `json:"model"`
	EncodingFormat string `json:"encoding_format,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// Embed implements Provider.
func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	req := embedRequest{Input: text, Model: p.model, EncodingFormat: "float"}
	var resp embedResponse
	if err := p.client.PostJSON(ctx, p.baseURL+"/embeddings", req, &resp); err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned no vector")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return normalizeVector(vec), nil
}

// normalizeVector scales to unit L2 norm. Zero vectors pass through.
func normalizeVector(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	l2 := math.Sqrt(sum)
	if l2 == 0 {
		return vec
	}
	scale := float32(l2)
	for i := range vec {
		vec[i] /= scale
	}
	return vec
}

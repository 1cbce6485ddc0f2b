// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omninode/omnintel/pkg/httpx"
)

func TestHTTPProviderBuildsClientFromConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.6,0.8]}],"model":"nomic-embed-text"}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPConfig{
		BaseURL: srv.URL,
		Model:   "nomic-embed-text",
		APIKey:  "secret",
		Client:  httpx.Config{ReadTimeout: 2 * time.Second, MaxAttempts: 1},
	}, nil)

	vec, err := p.Embed(context.Background(), "def f(): return 1")
	require.NoError(t, err)
	require.Len(t, vec, 2)
	// Normalised from (0.6, 0.8), already unit length.
	assert.InDelta(t, 0.6, float64(vec[0]), 1e-4)
	assert.InDelta(t, 0.8, float64(vec[1]), 1e-4)
}

func TestHTTPProviderEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[],"model":"nomic-embed-text"}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPConfig{
		BaseURL: srv.URL,
		Model:   "nomic-embed-text",
		Client:  httpx.Config{ReadTimeout: 2 * time.Second, MaxAttempts: 1},
	}, nil)

	_, err := p.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no vector")
}

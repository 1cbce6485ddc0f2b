// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package vecstore

import (
	"context"
	"fmt"

	"log/slog"

	"github.com/omninode/omnintel/pkg/httpx"
)

// QdrantStore implements Store against the Qdrant REST API through the
// shared retrying HTTP client.
type QdrantStore struct {
	baseURL string
	client  *httpx.Client
	logger  *slog.Logger
}

// NewQdrantStore creates a vector store adapter. baseURL has no
// trailing slash, e.g. "http://localhost:6333".
func NewQdrantStore(baseURL string, client *httpx.Client, logger *slog.Logger) *QdrantStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &QdrantStore{baseURL: baseURL, client: client, logger: logger}
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

// UpsertPoint implements Store.
func (s *QdrantStore) UpsertPoint(ctx context.Context, collection, id string, vector []float32, payload map[string]any) error {
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.baseURL, collection)
	body := map[string]any{
		"points": []qdrantPoint{{ID: id, Vector: vector, Payload: payload}},
	}
	if err := s.client.PutJSON(ctx, url, body, nil); err != nil {
		return fmt.Errorf("upsert point %s: %w", id, err)
	}
	return nil
}

type qdrantCollectionResponse struct {
	Result struct {
		Status      string `json:"status"`
		PointsCount int64  `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// GetCollectionInfo implements Store.
func (s *QdrantStore) GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	url := fmt.Sprintf("%s/collections/%s", s.baseURL, collection)
	var resp qdrantCollectionResponse
	if err := s.client.GetJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("get collection %s: %w", collection, err)
	}
	return &CollectionInfo{
		Name:        collection,
		PointsCount: resp.Result.PointsCount,
		VectorSize:  resp.Result.Config.Params.Vectors.Size,
		Status:      resp.Result.Status,
	}, nil
}

type qdrantScrollResponse struct {
	Result struct {
		Points         []qdrantPoint `json:"points"`
		NextPageOffset *string       `json:"next_page_offset"`
	} `json:"result"`
}

// Scroll implements Store using Qdrant's scroll cursor.
func (s *QdrantStore) Scroll(ctx context.Context, collection, cursor string, limit int) ([]Point, string, error) {
	if limit <= 0 {
		limit = 100
	}
	url := fmt.Sprintf("%s/collections/%s/points/scroll", s.baseURL, collection)
	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  true,
	}
	if cursor != "" {
		body["offset"] = cursor
	}
	var resp qdrantScrollResponse
	if err := s.client.PostJSON(ctx, url, body, &resp); err != nil {
		return nil, "", fmt.Errorf("scroll collection %s: %w", collection, err)
	}
	points := make([]Point, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		points = append(points, Point{ID: p.ID, Vector: p.Vector, Payload: p.Payload})
	}
	next := ""
	if resp.Result.NextPageOffset != nil {
		next = *resp.Result.NextPageOffset
	}
	return points, next, nil
}

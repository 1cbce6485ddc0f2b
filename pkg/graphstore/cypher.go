// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package graphstore

import (
	"context"
	"fmt"

	"log/slog"

	"github.com/omninode/omnintel/pkg/httpx"
)

// CypherHTTP implements Querier against a transactional cypher HTTP
// endpoint (the neo4j commit shape) through the shared retrying client.
type CypherHTTP struct {
	endpoint string
	client   *httpx.Client
	logger   *slog.Logger
}

// NewCypherHTTP creates a graph backend. endpoint is the full commit
// URL, e.g. "http://localhost:7474/db/neo4j/tx/commit".
func NewCypherHTTP(endpoint string, client *httpx.Client, logger *slog.Logger) *CypherHTTP {
	if logger == nil {
		logger = slog.Default()
	}
	return &CypherHTTP{endpoint: endpoint, client: client, logger: logger}
}

type cypherRequest struct {
	Statements []cypherStatement `json:"statements"`
}

type cypherStatement struct {
	Statement  string         `json:"statement"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type cypherResponse struct {
	Results []struct {
		Columns []string `json:"columns"`
		Data    []struct {
			Row []any `json:"row"`
		} `json:"data"`
	} `json:"results"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// ExecuteQuery implements Querier.
func (c *CypherHTTP) ExecuteQuery(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	req := cypherRequest{Statements: []cypherStatement{{Statement: query, Parameters: params}}}
	var resp cypherResponse
	if err := c.client.PostJSON(ctx, c.endpoint, req, &resp); err != nil {
		return nil, fmt.Errorf("cypher request: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("cypher error %s: %s", resp.Errors[0].Code, resp.Errors[0].Message)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	result := resp.Results[0]
	records := make([]Record, 0, len(result.Data))
	for _, d := range result.Data {
		rec := make(Record, len(result.Columns))
		for i, col := range result.Columns {
			if i < len(d.Row) {
				rec[col] = d.Row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

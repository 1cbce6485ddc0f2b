// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package output renders machine-readable CLI output. Commands switch
// to it under --json; human-readable rendering lives in internal/ui.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSON pretty-prints data to stdout with two-space indentation.
func JSON(data any) error {
	return JSONTo(os.Stdout, data)
}

// JSONTo is JSON against an arbitrary writer, which status and tree
// HTTP handlers use to respond directly.
func JSONTo(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// JSONCompactTo writes data as single-line JSON, for streaming and
// HTTP responses where size matters.
func JSONCompactTo(w io.Writer, data any) error {
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// ErrorBody is the JSON shape errors take in --json mode and on HTTP
// error responses.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSONErrorTo writes err wrapped in an ErrorBody.
func JSONErrorTo(w io.Writer, err error) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(ErrorBody{Error: err.Error()}); encErr != nil {
		return fmt.Errorf("encode json error: %w", encErr)
	}
	return nil
}

// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	uerrors "github.com/omninode/omnintel/internal/errors"
	"github.com/omninode/omnintel/internal/output"
	"github.com/omninode/omnintel/internal/ui"
	"github.com/omninode/omnintel/pkg/config"
	"github.com/omninode/omnintel/pkg/httpx"
	"github.com/omninode/omnintel/pkg/vecstore"
)

// StatusResult reports store connectivity for JSON output.
type StatusResult struct {
	Collection  string    `json:"collection"`
	QdrantURL   string    `json:"qdrant_url"`
	Connected   bool      `json:"connected"`
	PointsCount int64     `json:"points_count"`
	VectorSize  int       `json:"vector_size"`
	Status      string    `json:"status,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// runStatus executes the 'status' CLI command, showing vector-store
// connectivity and collection counts.
func runStatus(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", globals.JSON, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: omnintel status [options]

Shows vector store connectivity and the context-item collection size.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		uerrors.FatalError(uerrors.NewConfigError(
			"Cannot load configuration", err.Error(),
			"Check the --config path and environment variables", err), *jsonOutput)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	vec := vecstore.NewQdrantStore(cfg.Stores.QdrantURL, httpx.New("qdrant", httpx.Config{
		ReadTimeout: 5 * time.Second,
		MaxAttempts: 1,
	}, logger), logger)

	result := &StatusResult{
		Collection: cfg.Stores.QdrantCollection,
		QdrantURL:  cfg.Stores.QdrantURL,
		Timestamp:  time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info, err := vec.GetCollectionInfo(ctx, cfg.Stores.QdrantCollection)
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Connected = true
		result.PointsCount = info.PointsCount
		result.VectorSize = info.VectorSize
		result.Status = info.Status
	}

	if *jsonOutput {
		_ = output.JSON(result)
		if !result.Connected {
			os.Exit(uerrors.ExitNetwork)
		}
		return
	}

	ui.Header("OmniIntelligence Status")
	if !result.Connected {
		ui.Errorf("Vector store unreachable: %s", result.Error)
		fmt.Printf("  %s %s\n", ui.Label("URL:"), cfg.Stores.QdrantURL)
		os.Exit(uerrors.ExitNetwork)
	}
	ui.Success("Vector store connected")
	fmt.Printf("  %s %s\n", ui.Label("Collection:"), result.Collection)
	fmt.Printf("  %s %s\n", ui.Label("Points:"), ui.CountText(int(result.PointsCount)))
	fmt.Printf("  %s %d\n", ui.Label("Vector size:"), result.VectorSize)
	if result.Status != "" {
		fmt.Printf("  %s %s\n", ui.Label("Status:"), result.Status)
	}
}

// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package main implements the omnintel CLI for running the event-driven
// code intelligence core and operating on indexed repositories.
//
// Usage:
//
//	omnintel serve                 Run the event consumer and ops listener
//	omnintel backfill <path>       Index a repository in-process
//	omnintel tree --project-name   Show the indexed repository tree
//	omnintel status [--json]       Show store connectivity and counts
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/omninode/omnintel/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags carries options every subcommand respects.
type GlobalFlags struct {
	ConfigPath string
	JSON       bool
	Quiet      bool
	NoColor    bool
}

func main() {
	var (
		globals     GlobalFlags
		showVersion bool
	)

	flag.StringVar(&globals.ConfigPath, "config", "", "Path to omnintel.yaml (default: env only)")
	flag.BoolVar(&globals.JSON, "json", false, "Output as JSON where supported")
	flag.BoolVarP(&globals.Quiet, "quiet", "q", false, "Suppress progress output")
	flag.BoolVar(&globals.NoColor, "no-color", false, "Disable colored output")
	flag.BoolVar(&showVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `omnintel - event-driven code intelligence core

Usage:
  omnintel <command> [options]

Commands:
  serve         Run the event consumer and the ops HTTP listener
  backfill      Walk a repository and index it in-process
  tree          Show the indexed repository tree for a project
  status        Show store connectivity and collection counts
  completion    Generate shell completion script (bash|zsh|fish)

Global Options:
  --config      Path to omnintel.yaml
  --json        Output as JSON where supported
  -q, --quiet   Suppress progress output
  --no-color    Disable colored output
  --version     Show version and exit

Examples:
  omnintel serve
  omnintel backfill . --project-name myrepo
  omnintel backfill . --dry-run --max-files 100
  omnintel tree --project-name myrepo --max-depth 3
  omnintel status --json

Environment Variables:
  KAFKA_BOOTSTRAP_SERVERS  Broker list (default: localhost:9092)
  STORES_POSTGRES_DSN      Relational store DSN
  STORES_QDRANT_URL        Vector store URL (default: http://localhost:6333)
  STORES_GRAPH_URL         Graph store URL (default: http://localhost:7474)
  EMBEDDING_MODEL_URL      Embedding endpoint (default: http://localhost:11434/v1)

For detailed command help: omnintel <command> --help

`)
	}

	flag.Parse()

	if globals.JSON {
		globals.Quiet = true
	}
	ui.InitColors(globals.NoColor)

	if showVersion {
		fmt.Printf("omnintel version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "serve":
		runServe(cmdArgs, globals)
	case "backfill":
		runBackfill(cmdArgs, globals)
	case "tree":
		runTree(cmdArgs, globals)
	case "status":
		runStatus(cmdArgs, globals)
	case "completion":
		runCompletion(cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

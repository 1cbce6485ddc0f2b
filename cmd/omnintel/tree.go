// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	uerrors "github.com/omninode/omnintel/internal/errors"
	"github.com/omninode/omnintel/internal/output"
	"github.com/omninode/omnintel/internal/ui"
	"github.com/omninode/omnintel/pkg/config"
	"github.com/omninode/omnintel/pkg/graphstore"
	"github.com/omninode/omnintel/pkg/httpx"
	"github.com/omninode/omnintel/pkg/treeview"
)

// runTree executes the 'tree' CLI command, printing the indexed
// repository structure for a project from the graph store.
func runTree(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("tree", flag.ExitOnError)
	projectName := fs.String("project-name", "", "Project to display (required)")
	maxDepth := fs.Int("max-depth", 0, "Depth limit (0 = unlimited)")
	deps := fs.Bool("deps", false, "Include per-file dependencies")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: omnintel tree --project-name <name> [options]

Prints the indexed directory tree for a project, with entity and import
counts per file.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *projectName == "" {
		uerrors.FatalError(uerrors.NewInputError(
			"Missing --project-name",
			"tree needs a project to display",
			"Run: omnintel tree --project-name <name>"), globals.JSON)
	}

	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		uerrors.FatalError(uerrors.NewConfigError(
			"Cannot load configuration", err.Error(),
			"Check the --config path and environment variables", err), globals.JSON)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	graph := graphstore.NewGraph(graphstore.NewCypherHTTP(
		cfg.Stores.GraphURL, httpx.New("graph", httpx.Config{}, logger), logger))

	tree, err := treeview.New(graph, logger).BuildTree(context.Background(), treeview.Request{
		ProjectName:         *projectName,
		MaxDepth:            *maxDepth,
		IncludeDependencies: *deps,
	})
	if err != nil {
		var notFound *treeview.ErrProjectNotFound
		if errors.As(err, &notFound) {
			uerrors.FatalError(uerrors.NewNotFoundError(
				fmt.Sprintf("Project %q is not indexed", *projectName),
				"No PROJECT node exists in the graph store",
				"Run: omnintel backfill <path> --project-name "+*projectName), globals.JSON)
		}
		uerrors.FatalError(uerrors.NewNetworkError(
			"Cannot read the graph store", err.Error(),
			"Check STORES_GRAPH_URL and that the store is up", err), globals.JSON)
	}

	if globals.JSON {
		_ = output.JSON(tree)
		return
	}

	printNode(tree.Root, "")
	fmt.Println()
	fmt.Printf("%s %s directories, %s files, %s imports\n",
		ui.Label("Totals:"),
		ui.CountText(tree.Stats.Directories),
		ui.CountText(tree.Stats.Files),
		ui.CountText(tree.Stats.Imports))
}

func printNode(n *treeview.Node, indent string) {
	if n == nil {
		return
	}
	switch n.Type {
	case "file":
		detail := ""
		if n.EntityCount > 0 || n.ImportCount > 0 {
			detail = ui.DimText(fmt.Sprintf("  (%d entities, %d imports)", n.EntityCount, n.ImportCount))
		}
		fmt.Printf("%s%s%s\n", indent, n.Name, detail)
		for _, d := range n.Dependencies {
			fmt.Printf("%s  %s\n", indent, ui.DimText("-> "+d.Target))
		}
	default:
		name := n.Name + "/"
		if n.Truncated {
			name += ui.DimText(" …")
		}
		_, _ = ui.Bold.Printf("%s%s\n", indent, name)
	}
	for _, c := range n.Children {
		printNode(c, indent+"  ")
	}
}

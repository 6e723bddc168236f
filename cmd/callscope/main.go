// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command callscope extracts call graphs from Go projects.
//
// Usage:
//
//	callscope scan --project /path/to/project --out snapshot.json
//	callscope extract --project /path/to/project "demo:app.Worker.Run"
//	callscope ancestors --project /path/to/project "helper"
//	callscope serve --project /path/to/project --port 8755
//
// Example requests against the server:
//
//	# Health check
//	curl http://localhost:8755/v1/extract/health
//
//	# Extract a call tree
//	curl -X POST http://localhost:8755/v1/extract/calltree \
//	  -H "Content-Type: application/json" \
//	  -d '{"method": "run"}'
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	projectRoot  string
	snapshotPath string
	verbose      bool
)

func main() {
	root := &cobra.Command{
		Use:   "callscope",
		Short: "Call-graph extraction for Go projects",
		Long: "callscope scans Go projects with tree-sitter and answers " +
			"call-graph queries: forward call trees with polymorphic dispatch " +
			"resolution, ancestor paths up to entry points, and dependency " +
			"aggregation.",
		PersistentPreRun: func(*cobra.Command, []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&projectRoot, "project", ".", "Project root to scan")
	root.PersistentFlags().StringVar(&snapshotPath, "snapshot", "", "Load a snapshot file instead of scanning")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newScanCommand())
	root.AddCommand(newExtractCommand())
	root.AddCommand(newAncestorsCommand())
	root.AddCommand(newServeCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftline/callscope/services/extract/config"
	"github.com/driftline/callscope/services/extract/sitter"
)

func newScanCommand() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a project and write its method snapshot",
		Long: "Scans the project with tree-sitter and writes the method " +
			"snapshot as JSON. The snapshot can be loaded later with " +
			"--snapshot to skip re-scanning.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(projectRoot)
			if err != nil {
				return err
			}

			opts := []sitter.Option{sitter.WithExcludes(cfg.Scan.Excludes...)}
			if cfg.Scan.IncludeTests {
				opts = append(opts, sitter.WithTests())
			}

			idx, project, err := sitter.NewScanner(opts...).ScanProject(cmd.Context(), projectRoot)
			if err != nil {
				return err
			}

			if err := idx.WriteSnapshotFile(outPath, project); err != nil {
				return err
			}

			stats := idx.Stats()
			fmt.Printf("Scanned %s: %d methods (%d abstract), %d call sites\n",
				project, stats.TotalMethods, stats.AbstractMethods, stats.CallSites)
			fmt.Printf("Snapshot written to %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "callscope.snapshot.json", "Snapshot output path")
	return cmd
}

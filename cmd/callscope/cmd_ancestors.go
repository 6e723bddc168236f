// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftline/callscope/services/extract/callgraph"
)

func newAncestorsCommand() *cobra.Command {
	var firstPerEntryPoint bool

	cmd := &cobra.Command{
		Use:   "ancestors <method>",
		Short: "Find caller paths from a method up to entry points",
		Long: "Searches the reverse call graph from the given method and " +
			"prints every caller path that ends at an entry point (a method " +
			"nothing else calls) as JSON, innermost method first.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := buildService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			paths, err := svc.AncestorPaths(cmd.Context(), args[0], firstPerEntryPoint)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(callgraph.PathsToSerializable(paths))
		},
	}

	cmd.Flags().BoolVar(&firstPerEntryPoint, "first-per-entry-point", false,
		"Keep only the first discovered path per entry point")
	return cmd
}

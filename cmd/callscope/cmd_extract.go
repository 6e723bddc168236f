// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftline/callscope/services/extract/callgraph"
)

func newExtractCommand() *cobra.Command {
	var showDeps bool

	cmd := &cobra.Command{
		Use:   "extract <method>",
		Short: "Extract the forward call tree of a method",
		Long: "Extracts the transitive call tree rooted at the given method " +
			"and prints it as JSON. The method is a full identity key " +
			"(\"project:namespace.Type.Method\") or a bare name that matches " +
			"exactly one indexed method.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := buildService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			tree, deps, err := svc.ExtractCallTree(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(callgraph.ToSerializable(tree)); err != nil {
				return err
			}

			if showDeps {
				fmt.Fprintln(os.Stderr)
				fmt.Fprintln(os.Stderr, "Dependencies:")
				for _, row := range deps {
					fmt.Fprintf(os.Stderr, "  %4d  %s / %s\n", row.Count, row.Project, row.Namespace)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showDeps, "deps", false, "Print the dependency aggregation to stderr")
	return cmd
}

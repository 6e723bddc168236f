// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package oracle

import (
	"context"

	"github.com/driftline/callscope/services/extract/callgraph"
	"github.com/driftline/callscope/services/extract/symbol"
)

// None is an oracle that never chooses. Resolution always falls back to the
// deterministic first candidate. This is the default when no oracle is
// configured for a surface that requires one structurally.
type None struct{}

// Choose always returns (nil, nil).
func (None) Choose(context.Context, callgraph.DisambiguationRequest) (*symbol.MethodDescriptor, error) {
	return nil, nil
}

// Fixed is an oracle that always prefers candidates whose TypeName matches
// one of the configured preferences, in order. Useful for pinning known
// dispatch targets in configuration-driven runs without an LLM.
type Fixed struct {
	// Preferred lists type names in priority order.
	Preferred []string
}

// Choose returns the first candidate whose TypeName matches a preference,
// or (nil, nil) when no preference matches.
func (f Fixed) Choose(_ context.Context, req callgraph.DisambiguationRequest) (*symbol.MethodDescriptor, error) {
	for _, name := range f.Preferred {
		for _, c := range req.Candidates {
			if c.TypeName == name {
				return c, nil
			}
		}
	}
	return nil, nil
}

// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package callgraph implements the call-graph extraction engine: forward
// transitive callee extraction, backward ancestor-path search, polymorphic
// call resolution, and per-run dependency frequency aggregation.
//
// The engine consumes abstract collaborator services (see providers.go) and
// owns no parsing or presentation concerns of its own.
package callgraph

import "github.com/driftline/callscope/services/extract/symbol"

// CallNode is one node in an extracted forward call tree.
//
// Description:
//
//	A node owns one method descriptor and an ordered list of children, one
//	per distinct call site in the method body with source order preserved.
//	Multiple call sites to the same target yield multiple sibling nodes;
//	call multiplicity is intentionally visible to consumers.
//
// Ownership:
//
//	Nodes are built once per traversal step and not mutated after their
//	children are attached. Consumers must treat the tree as read-only.
type CallNode struct {
	// Method is the descriptor this node represents. Never nil.
	Method *symbol.MethodDescriptor

	// ResolvedFrom names the abstract type a call was dispatched through
	// when resolution crossed an abstraction boundary. Empty for direct
	// calls.
	ResolvedFrom string

	// Cycle marks a childless terminal emitted for a method that was
	// already expanded earlier in the same run (first-visit-wins policy).
	Cycle bool

	// Truncated marks a node whose children were not expanded because the
	// configured depth limit was reached.
	Truncated bool

	// Children are the resolved callees, in source order.
	Children []*CallNode
}

// NodeCount returns the total number of nodes in the tree rooted at n,
// including terminal cycle markers.
func (n *CallNode) NodeCount() int {
	if n == nil {
		return 0
	}
	count := 1
	for _, child := range n.Children {
		count += child.NodeCount()
	}
	return count
}

// Depth returns the height of the tree rooted at n. A leaf has depth 1.
func (n *CallNode) Depth() int {
	if n == nil {
		return 0
	}
	max := 0
	for _, child := range n.Children {
		if d := child.Depth(); d > max {
			max = d
		}
	}
	return max + 1
}

// AncestorPath is an ordered sequence of descriptors from a queried method
// outward to an entry point (a method with zero discovered callers). Within
// one path no descriptor repeats; the same method may legally appear on
// different paths.
type AncestorPath []*symbol.MethodDescriptor

// EntryPoint returns the terminal descriptor of the path (the entry point).
// Returns nil for an empty path.
func (p AncestorPath) EntryPoint() *symbol.MethodDescriptor {
	if len(p) == 0 {
		return nil
	}
	return p[len(p)-1]
}

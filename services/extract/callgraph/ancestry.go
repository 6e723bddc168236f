// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package callgraph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/driftline/callscope/services/extract/symbol"
)

// FinderOptions configures Finder behavior.
type FinderOptions struct {
	// Logger is the structured logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// FinderOption is a functional option for configuring Finder.
type FinderOption func(*FinderOptions)

// WithFinderLogger sets the structured logger.
func WithFinderLogger(logger *slog.Logger) FinderOption {
	return func(o *FinderOptions) {
		o.Logger = logger
	}
}

// Finder discovers every path of callers leading from a method up to
// program entry points.
//
// Description:
//
//	Depth-first search growing paths from the queried method toward its
//	callers. Cycle detection is path-local, not global: each branch carries
//	its own visited set, copied on fan-out, so the same method may appear
//	on different paths but never twice in one path. A branch that would
//	revisit a method is abandoned silently; abandoned branches are not
//	reported as paths.
//
// Scaling:
//
//	Pathological fan-in graphs can produce exponentially many paths. The
//	search imposes no bound; reductions (such as keeping the first path per
//	distinct entry point) belong to presentation layers, not to the search.
//
// Thread Safety: Safe for concurrent use; each call owns its search state.
type Finder struct {
	refs    ReferenceIndex
	options FinderOptions
}

// NewFinder creates a Finder.
//
// Inputs:
//
//   - refs: The reference index. Must not be nil.
//   - opts: Optional configuration (WithFinderLogger).
func NewFinder(refs ReferenceIndex, opts ...FinderOption) *Finder {
	options := FinderOptions{
		Logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Finder{
		refs:    refs,
		options: options,
	}
}

// FindAncestorPaths returns every caller path from the target method to an
// entry point.
//
// Description:
//
//	Each returned path starts at the target and ends at a method with zero
//	discovered callers. A target that itself has zero callers yields the
//	single one-element path [target]. Paths are produced whole; order
//	follows the reference index's caller order, so output is deterministic
//	given a deterministic index.
//
// Inputs:
//
//	ctx - Context for cancellation; forwarded to the reference index.
//	target - Identity of the method to search from.
//
// Outputs:
//
//	[]AncestorPath - All discovered paths, un-deduplicated.
//	error - ErrInvalidDescriptor or wrapped ErrProviderUnavailable.
//
// Thread Safety: Safe for concurrent use.
func (f *Finder) FindAncestorPaths(ctx context.Context, target *symbol.MethodDescriptor) ([]AncestorPath, error) {
	ctx, span := startOperationSpan(ctx, "FindAncestorPaths")
	defer span.End()
	start := time.Now()

	if err := target.Validate(); err != nil {
		setOperationSpanResult(span, 0, false)
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}

	var results []AncestorPath
	err := f.ascend(ctx, target, nil, make(map[string]bool), &results)
	if err != nil {
		setOperationSpanResult(span, 0, false)
		recordOperationMetrics(ctx, "ancestor_paths", time.Since(start), 0, false)
		return nil, err
	}

	f.options.Logger.Debug("ancestor search complete",
		slog.String("target", target.Key()),
		slog.Int("paths", len(results)),
		slog.Duration("elapsed", time.Since(start)),
	)
	setOperationSpanResult(span, len(results), true)
	recordOperationMetrics(ctx, "ancestor_paths", time.Since(start), len(results), true)

	return results, nil
}

// ascend grows one branch of the search. path and visited belong to the
// caller's branch; ascend copies both before fanning out so sibling
// branches stay independent.
func (f *Finder) ascend(ctx context.Context, current *symbol.MethodDescriptor, path AncestorPath, visited map[string]bool, results *[]AncestorPath) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	key := current.Key()
	if visited[key] {
		// Cycle within this branch: abandon silently.
		return nil
	}

	path = append(path, current)
	visited[key] = true

	callers, err := f.distinctCallers(ctx, current)
	if err != nil {
		return err
	}

	if len(callers) == 0 {
		// Entry point reached: the path is complete.
		*results = append(*results, clonePath(path))
		return nil
	}

	for _, caller := range callers {
		// Independent copies per branch: a method may appear on two
		// different paths but never twice in one path.
		if err := f.ascend(ctx, caller, clonePath(path), cloneVisited(visited), results); err != nil {
			return err
		}
	}
	return nil
}

// distinctCallers maps each referencing call site to its enclosing callable
// and deduplicates the enclosing callers by identity, preserving the
// reference index's order of first appearance.
func (f *Finder) distinctCallers(ctx context.Context, method *symbol.MethodDescriptor) ([]*symbol.MethodDescriptor, error) {
	locations, err := f.refs.FindCallers(ctx, method)
	if err != nil {
		return nil, fmt.Errorf("%w: callers of %s: %v", ErrProviderUnavailable, method.Key(), err)
	}

	var callers []*symbol.MethodDescriptor
	seen := make(map[string]bool)
	for _, loc := range locations {
		enclosing, err := f.refs.EnclosingMethod(ctx, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: enclosing method at %s: %v", ErrProviderUnavailable, loc.Key(), err)
		}
		if enclosing == nil {
			// Reference outside any callable; not a caller.
			continue
		}
		key := enclosing.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		callers = append(callers, enclosing)
	}
	return callers, nil
}

func clonePath(path AncestorPath) AncestorPath {
	cloned := make(AncestorPath, len(path))
	copy(cloned, path)
	return cloned
}

func cloneVisited(visited map[string]bool) map[string]bool {
	cloned := make(map[string]bool, len(visited))
	for k, v := range visited {
		cloned[k] = v
	}
	return cloned
}

// FirstPathPerEntryPoint keeps only the first discovered path per distinct
// terminal entry point.
//
// Description:
//
//	This is the common presentation-layer reduction. It lives outside the
//	search on purpose: FindAncestorPaths itself never deduplicates, and
//	consumers that need the full fan-in must not pay for a reduction they
//	did not ask for.
func FirstPathPerEntryPoint(paths []AncestorPath) []AncestorPath {
	var reduced []AncestorPath
	seen := make(map[string]bool)
	for _, p := range paths {
		entry := p.EntryPoint()
		if entry == nil {
			continue
		}
		key := entry.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		reduced = append(reduced, p)
	}
	return reduced
}

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
	"sync"
	"time"

	"github.com/driftline/callscope/services/extract/symbol"
)

// BuilderOptions configures Builder behavior.
type BuilderOptions struct {
	// MaxDepth limits forward traversal depth. 0 means unbounded, which is
	// the default: the engine does not bound cost on pathological fan-out
	// graphs, it only offers callers a guard.
	MaxDepth int

	// Logger is the structured logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// BuilderOption is a functional option for configuring Builder.
type BuilderOption func(*BuilderOptions)

// WithMaxDepth sets a forward traversal depth limit. Nodes at the limit are
// returned with Truncated set and no children.
func WithMaxDepth(depth int) BuilderOption {
	return func(o *BuilderOptions) {
		o.MaxDepth = depth
	}
}

// WithBuilderLogger sets the structured logger.
func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(o *BuilderOptions) {
		o.Logger = logger
	}
}

// Builder recursively discovers every method a root method transitively
// invokes and produces the forward call tree.
//
// Description:
//
//	Each Extract call runs with fresh state: a run-scoped seen-set for
//	first-visit-wins cycle suppression and a reset dependency index. The
//	traversal is single-threaded and cooperative; every collaborator call
//	takes the caller's context. Child order follows source order within
//	each method body, so output is deterministic given deterministic
//	collaborators.
//
// Cycle policy:
//
//	The seen-set is scoped to the whole call, not per branch: a repeated
//	method's subtree is expanded only the first time it is reached, and
//	every later occurrence becomes a childless terminal with Cycle set.
//
// Thread Safety:
//
//	Safe for concurrent use across Extract calls; each call owns its run
//	state, including its dependency index. Dependencies returns the
//	snapshot of the most recently completed call.
type Builder struct {
	symbols  SourceSymbolProvider
	resolver *Resolver
	options  BuilderOptions

	mu       sync.Mutex
	lastDeps []DependencyCount
}

// NewBuilder creates a Builder.
//
// Inputs:
//
//   - symbols: The source symbol provider. Must not be nil.
//   - resolver: The implementation resolver. Must not be nil.
//   - opts: Optional configuration (WithMaxDepth, WithBuilderLogger).
func NewBuilder(symbols SourceSymbolProvider, resolver *Resolver, opts ...BuilderOption) *Builder {
	options := BuilderOptions{
		Logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Builder{
		symbols:  symbols,
		resolver: resolver,
		options:  options,
	}
}

// extraction holds the state of one Extract run.
type extraction struct {
	seen map[string]bool
	deps *DependencyIndex
}

// Extract builds the forward call tree rooted at the given method.
//
// Description:
//
//	Locates the root through the symbol provider, then recursively resolves
//	and expands every call site. Per expanded method, one dependency
//	increment is recorded for the method's (project, namespace); the
//	returned snapshot belongs to this run alone.
//
// Inputs:
//
//	ctx - Context for cancellation; forwarded to all collaborators.
//	root - Identity of the method to extract. Must carry valid identity
//	       fields.
//
// Outputs:
//
//	*CallNode - The extracted tree. Never nil on success.
//	[]DependencyCount - This run's dependency aggregation, ordered by count
//	        descending, then project, then namespace.
//	error - ErrInvalidDescriptor, ErrMethodNotFound (root could not be
//	        located; no partial result), or wrapped ErrProviderUnavailable.
//
// Thread Safety: Safe for concurrent use.
func (b *Builder) Extract(ctx context.Context, root *symbol.MethodDescriptor) (*CallNode, []DependencyCount, error) {
	ctx, span := startOperationSpan(ctx, "Extract")
	defer span.End()
	start := time.Now()

	if err := root.Validate(); err != nil {
		setOperationSpanResult(span, 0, false)
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}

	resolved, err := b.symbols.GetDescriptor(ctx, root.Key())
	if err != nil {
		setOperationSpanResult(span, 0, false)
		return nil, nil, fmt.Errorf("%w: locating %s: %v", ErrProviderUnavailable, root.Key(), err)
	}
	if resolved == nil {
		setOperationSpanResult(span, 0, false)
		return nil, nil, fmt.Errorf("%w: %s", ErrMethodNotFound, root.Key())
	}

	// Fresh run state: overlapping extractions never interfere.
	run := &extraction{
		seen: make(map[string]bool),
		deps: NewDependencyIndex(),
	}

	node, err := b.visit(ctx, run, resolved, "", 0)
	if err != nil {
		setOperationSpanResult(span, 0, false)
		recordOperationMetrics(ctx, "extract", time.Since(start), 0, false)
		return nil, nil, err
	}

	deps := run.deps.Snapshot()
	b.mu.Lock()
	b.lastDeps = deps
	b.mu.Unlock()

	count := node.NodeCount()
	b.options.Logger.Debug("extraction complete",
		slog.String("root", resolved.Key()),
		slog.Int("nodes", count),
		slog.Int("depth", node.Depth()),
		slog.Duration("elapsed", time.Since(start)),
	)
	setOperationSpanResult(span, count, true)
	recordOperationMetrics(ctx, "extract", time.Since(start), count, true)

	return node, deps, nil
}

// visit expands one method, recursing into each resolved call site.
func (b *Builder) visit(ctx context.Context, run *extraction, method *symbol.MethodDescriptor, resolvedFrom string, depth int) (*CallNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	key := method.Key()
	if run.seen[key] {
		// First-visit-wins: later occurrences are childless terminals.
		return &CallNode{Method: method, ResolvedFrom: resolvedFrom, Cycle: true}, nil
	}
	run.seen[key] = true

	node := &CallNode{Method: method, ResolvedFrom: resolvedFrom}
	run.deps.Record(method.Project, method.Namespace)

	if b.options.MaxDepth > 0 && depth >= b.options.MaxDepth {
		node.Truncated = true
		return node, nil
	}

	sites, err := b.symbols.GetCallSites(ctx, method)
	if err != nil {
		return nil, fmt.Errorf("%w: call sites of %s: %v", ErrProviderUnavailable, key, err)
	}

	for _, site := range sites {
		if site.Target == nil {
			// Unresolvable call target: absorbed, traversal continues.
			continue
		}

		target, from, err := b.resolver.Resolve(ctx, site.Target, site)
		if err != nil {
			return nil, err
		}
		if !target.SourceAvailable {
			// External/library code: no analyzable body, no child.
			continue
		}

		child, err := b.visit(ctx, run, target, from, depth+1)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}

	return node, nil
}

// Dependencies returns the dependency snapshot of the most recently
// completed Extract call, ordered by count descending, then project, then
// namespace.
//
// Thread Safety: Safe for concurrent use.
func (b *Builder) Dependencies() []DependencyCount {
	b.mu.Lock()
	defer b.mu.Unlock()
	snapshot := make([]DependencyCount, len(b.lastDeps))
	copy(snapshot, b.lastDeps)
	return snapshot
}

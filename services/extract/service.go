// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extract wires the snapshot index, the resolver, and the
// traversal engines into one service and exposes them over HTTP.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/driftline/callscope/services/extract/callgraph"
	"github.com/driftline/callscope/services/extract/index"
	"github.com/driftline/callscope/services/extract/symbol"
)

// ErrAmbiguousReference indicates a bare method name matched more than one
// descriptor; the caller must use a full identity key.
var ErrAmbiguousReference = errors.New("ambiguous method reference")

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Oracle disambiguates polymorphic dispatch. Nil means deterministic
	// fallback only.
	Oracle callgraph.DisambiguationOracle

	// MaxDepth caps extraction depth. 0 means unbounded.
	MaxDepth int

	// Logger for service diagnostics. Default: slog.Default()
	Logger *slog.Logger
}

// Service owns one project's index and answers extraction queries on it.
//
// Thread Safety: Service is safe for concurrent use.
type Service struct {
	idx     *index.SnapshotIndex
	builder *callgraph.Builder
	finder  *callgraph.Finder
	project string
	logger  *slog.Logger
}

// NewService builds a Service around an already-populated index.
func NewService(idx *index.SnapshotIndex, project string, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	resolver := callgraph.NewResolver(idx, cfg.Oracle)

	var builderOpts []callgraph.BuilderOption
	builderOpts = append(builderOpts, callgraph.WithBuilderLogger(logger))
	if cfg.MaxDepth > 0 {
		builderOpts = append(builderOpts, callgraph.WithMaxDepth(cfg.MaxDepth))
	}

	return &Service{
		idx:     idx,
		builder: callgraph.NewBuilder(idx, resolver, builderOpts...),
		finder:  callgraph.NewFinder(idx, callgraph.WithFinderLogger(logger)),
		project: project,
		logger:  logger,
	}
}

// Project returns the indexed project name.
func (s *Service) Project() string {
	return s.project
}

// Stats returns index statistics.
func (s *Service) Stats() index.Stats {
	return s.idx.Stats()
}

// ResolveReference maps a method reference to a descriptor.
//
// Description:
//
//	A reference is either a full identity key
//	("project:namespace.Type.Method") or a bare qualified name. Keys are
//	looked up directly; bare names must match exactly one descriptor.
//
// Errors:
//
//	callgraph.ErrMethodNotFound - Nothing matches the reference.
//	ErrAmbiguousReference - A bare name matched several descriptors; the
//	error text lists their keys.
func (s *Service) ResolveReference(ctx context.Context, ref string) (*symbol.MethodDescriptor, error) {
	if strings.Contains(ref, ":") {
		desc, err := s.idx.GetDescriptor(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", callgraph.ErrProviderUnavailable, err)
		}
		if desc == nil {
			return nil, fmt.Errorf("%w: %s", callgraph.ErrMethodNotFound, ref)
		}
		return desc, nil
	}

	matches := s.idx.FindByName(ref)
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", callgraph.ErrMethodNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		keys := make([]string, len(matches))
		for i, m := range matches {
			keys[i] = m.Key()
		}
		return nil, fmt.Errorf("%w: %s matches [%s]", ErrAmbiguousReference, ref, strings.Join(keys, ", "))
	}
}

// ExtractCallTree extracts the forward call tree for a method reference
// and returns it with the dependency aggregation of that extraction.
func (s *Service) ExtractCallTree(ctx context.Context, ref string) (*callgraph.CallNode, []callgraph.DependencyCount, error) {
	desc, err := s.ResolveReference(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	tree, deps, err := s.builder.Extract(ctx, desc)
	if err != nil {
		return nil, nil, err
	}
	return tree, deps, nil
}

// Dependencies returns the dependency aggregation of the most recent
// extraction.
func (s *Service) Dependencies() []callgraph.DependencyCount {
	return s.builder.Dependencies()
}

// AncestorPaths finds every distinct caller chain from the given method up
// to its entry points. With firstPerEntryPoint set, the result is reduced
// to one representative path per entry point.
func (s *Service) AncestorPaths(ctx context.Context, ref string, firstPerEntryPoint bool) ([]callgraph.AncestorPath, error) {
	desc, err := s.ResolveReference(ctx, ref)
	if err != nil {
		return nil, err
	}

	paths, err := s.finder.FindAncestorPaths(ctx, desc)
	if err != nil {
		return nil, err
	}
	if firstPerEntryPoint {
		paths = callgraph.FirstPathPerEntryPoint(paths)
	}
	return paths, nil
}

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
	"strconv"
	"strings"

	"github.com/driftline/callscope/services/extract/symbol"
)

// Resolver resolves abstract/interface call targets to concrete methods.
//
// Description:
//
//	Concrete targets pass through unchanged. Abstract targets are resolved
//	against the implementation index:
//
//	  0 implementers - the abstract descriptor is returned unchanged and
//	    becomes a leaf (it has no retrievable body).
//	  1 implementer  - that implementer is returned, labeled with the
//	    abstract type name.
//	  N implementers - the disambiguation oracle is consulted. If it names
//	    one of the candidates, that candidate wins; on any failure (no
//	    response, malformed response, transport error, unknown name) the
//	    resolver falls back to the first candidate in index iteration
//	    order. The fallback is a documented pragmatic default, not a
//	    correctness claim.
//
//	Oracle failures never propagate: the only errors Resolve returns come
//	from the implementation index itself.
//
// Thread Safety: Safe for concurrent use; the resolver holds no per-call
// state.
type Resolver struct {
	impls  ImplementationIndex
	oracle DisambiguationOracle
	logger *slog.Logger
}

// NewResolver creates a Resolver.
//
// Inputs:
//
//   - impls: The concrete implementation index. Must not be nil.
//   - oracle: The disambiguation oracle. May be nil; resolution then always
//     uses the deterministic fallback for ambiguous targets.
func NewResolver(impls ImplementationIndex, oracle DisambiguationOracle) *Resolver {
	return &Resolver{
		impls:  impls,
		oracle: oracle,
		logger: slog.Default(),
	}
}

// Resolve maps a call target to the concrete method the traversal should
// descend into.
//
// Inputs:
//
//	ctx - Context for cancellation; forwarded to collaborators.
//	target - The static call target. Must not be nil.
//	site - The call site the target was reached through. Site.Expression
//	       is forwarded to the oracle for ambiguous targets.
//
// Outputs:
//
//	*symbol.MethodDescriptor - The resolved target. Never nil on success.
//	string - The abstract type name when resolution crossed an abstraction
//	         boundary, empty otherwise.
//	error - Non-nil only when the implementation index fails (wrapped
//	        ErrProviderUnavailable).
func (r *Resolver) Resolve(ctx context.Context, target *symbol.MethodDescriptor, site symbol.CallSite) (*symbol.MethodDescriptor, string, error) {
	if !target.Abstract {
		return target, "", nil
	}

	candidates, err := r.impls.FindImplementations(ctx, target)
	if err != nil {
		return nil, "", fmt.Errorf("%w: finding implementations of %s: %v", ErrProviderUnavailable, target.Display(), err)
	}

	switch len(candidates) {
	case 0:
		// No implementers known: the abstract method stays in the tree as
		// a leaf.
		return target, "", nil
	case 1:
		return candidates[0], target.TypeName, nil
	}

	chosen := r.disambiguate(ctx, target, site, candidates)
	return chosen, target.TypeName, nil
}

// disambiguate consults the oracle for a multi-candidate dispatch and
// applies the deterministic fallback on any failure.
func (r *Resolver) disambiguate(ctx context.Context, target *symbol.MethodDescriptor, site symbol.CallSite, candidates []*symbol.MethodDescriptor) *symbol.MethodDescriptor {
	if r.oracle == nil {
		recordOracleFallback(ctx, "no_oracle")
		return candidates[0]
	}

	choice, err := r.oracle.Choose(ctx, DisambiguationRequest{
		Abstract:       target,
		CallExpression: site.Expression,
		Candidates:     candidates,
	})
	if err != nil {
		r.logger.Debug("oracle failed, using first candidate",
			slog.String("abstract", target.Key()),
			slog.String("error", err.Error()),
		)
		recordOracleFallback(ctx, "oracle_error")
		return candidates[0]
	}
	if choice == nil {
		recordOracleFallback(ctx, "no_choice")
		return candidates[0]
	}

	if match := matchCandidate(choice, candidates); match != nil {
		return match
	}

	r.logger.Debug("oracle choice matched no candidate, using first candidate",
		slog.String("abstract", target.Key()),
		slog.String("choice", choice.Display()),
	)
	recordOracleFallback(ctx, "unknown_choice")
	return candidates[0]
}

// matchCandidate maps an oracle choice onto one of the candidates.
//
// The oracle may return a fully-populated descriptor, a bare type name in
// TypeName, or a 1-based index rendered as the qualified name. Anything
// that does not unambiguously select a candidate returns nil.
func matchCandidate(choice *symbol.MethodDescriptor, candidates []*symbol.MethodDescriptor) *symbol.MethodDescriptor {
	// Exact identity match first.
	for _, c := range candidates {
		if c.Equal(choice) {
			return c
		}
	}

	// Type-name match: accept iff exactly one candidate has that type.
	if name := strings.TrimSpace(choice.TypeName); name != "" {
		var match *symbol.MethodDescriptor
		for _, c := range candidates {
			if strings.EqualFold(c.TypeName, name) {
				if match != nil {
					return nil
				}
				match = c
			}
		}
		if match != nil {
			return match
		}
	}

	// 1-based ordinal in the qualified name ("2" selects candidates[1]).
	if n, err := strconv.Atoi(strings.TrimSpace(choice.QualifiedName)); err == nil {
		if n >= 1 && n <= len(candidates) {
			return candidates[n-1]
		}
	}

	return nil
}

// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package callgraph

import (
	"context"

	"github.com/driftline/callscope/services/extract/symbol"
)

// SourceSymbolProvider supplies method descriptors and the call sites inside
// method bodies.
//
// Description:
//
//	The provider is the engine's window into source code. Implementations
//	may be backed by an in-memory snapshot index, a language server, or any
//	other symbol source; calls may involve I/O of unspecified latency, so
//	every method takes a context.
//
// Contract:
//
//   - GetDescriptor returns (nil, nil) when no method with the given
//     identity key exists. Errors are reserved for provider failures.
//   - GetCallSites returns call sites in source order. A site whose Target
//     is nil is an unresolvable call and contributes no child.
type SourceSymbolProvider interface {
	GetDescriptor(ctx context.Context, key string) (*symbol.MethodDescriptor, error)
	GetCallSites(ctx context.Context, method *symbol.MethodDescriptor) ([]symbol.CallSite, error)
}

// ImplementationIndex locates the concrete implementations of an abstract or
// interface method.
//
// Contract:
//
//	FindImplementations returns implementers in a deterministic order that is
//	stable across calls against unchanged input. The resolver's documented
//	fallback ("first candidate in index iteration order") depends on it.
//	An empty slice means the abstract method has no known implementers.
type ImplementationIndex interface {
	FindImplementations(ctx context.Context, abstract *symbol.MethodDescriptor) ([]*symbol.MethodDescriptor, error)
}

// ReferenceIndex locates the call sites that reference a method and maps a
// location back to its nearest enclosing callable declaration.
//
// Contract:
//
//   - FindCallers returns every location where the method is referenced,
//     in a deterministic order.
//   - EnclosingMethod returns (nil, nil) when the location is not inside
//     any callable (e.g., a top-level initializer the index cannot model).
type ReferenceIndex interface {
	FindCallers(ctx context.Context, method *symbol.MethodDescriptor) ([]symbol.Location, error)
	EnclosingMethod(ctx context.Context, loc symbol.Location) (*symbol.MethodDescriptor, error)
}

// DisambiguationRequest is the input to a DisambiguationOracle: an abstract
// method, the call-site text it was reached through, and the candidate
// implementations to choose from.
type DisambiguationRequest struct {
	// Abstract is the interface/abstract method being dispatched.
	Abstract *symbol.MethodDescriptor

	// CallExpression is the call-site text, verbatim.
	CallExpression string

	// Candidates are the concrete implementations, in index iteration order.
	Candidates []*symbol.MethodDescriptor
}

// DisambiguationOracle chooses among multiple valid call targets.
//
// Description:
//
//	The oracle is an external decision service and the only collaborator
//	whose calls may involve network round-trips. It is advisory: a nil
//	choice, an error, or a choice that matches no candidate all degrade to
//	the resolver's deterministic fallback. Oracle failures never propagate
//	past the resolver.
type DisambiguationOracle interface {
	Choose(ctx context.Context, req DisambiguationRequest) (*symbol.MethodDescriptor, error)
}

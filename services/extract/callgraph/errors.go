// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package callgraph

import "errors"

// Sentinel errors returned by the extraction engine.
//
// The error taxonomy is deliberately small. Only two conditions are fatal to
// a call: the root method cannot be located, or a collaborator is unavailable.
// Everything else (unresolvable call targets, oracle failures, cyclic
// reentry) is recovered locally, consistent with a best-effort static
// analysis contract.
var (
	// ErrMethodNotFound indicates the requested root method could not be
	// located by the source symbol provider. Fatal to that single call;
	// no partial result is returned.
	ErrMethodNotFound = errors.New("method not found")

	// ErrProviderUnavailable indicates a collaborator (symbol provider,
	// implementation index, or reference index) failed outright.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrInvalidDescriptor indicates a descriptor missing required
	// identity fields was passed to an engine entry point.
	ErrInvalidDescriptor = errors.New("invalid method descriptor")
)

// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidMethod indicates a method record failed validation.
	ErrInvalidMethod = errors.New("invalid method record")

	// ErrDuplicateMethod indicates a method with the same identity key
	// already exists in the index.
	ErrDuplicateMethod = errors.New("duplicate method")

	// ErrMaxMethodsExceeded indicates the index is at capacity.
	ErrMaxMethodsExceeded = errors.New("maximum method count exceeded")
)

// BatchError aggregates the validation errors found while adding a batch.
type BatchError struct {
	Errors []error
}

func (e *BatchError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

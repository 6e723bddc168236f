// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package index provides the in-memory snapshot index backing the
// extraction engine's collaborator contracts.
//
// A SnapshotIndex is built once from a project snapshot (by the sitter
// scanner or a loaded snapshot file) and then serves read traffic: it is
// the engine's SourceSymbolProvider, ImplementationIndex, and
// ReferenceIndex in one structure.
package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/driftline/callscope/services/extract/symbol"
)

// DefaultMaxMethods is the default maximum number of methods the index can
// hold.
const DefaultMaxMethods = 1_000_000

// Options configures SnapshotIndex behavior and limits.
type Options struct {
	// MaxMethods is the maximum number of methods the index can hold.
	// Attempting to add more returns ErrMaxMethodsExceeded.
	// Default: 1,000,000
	MaxMethods int
}

// Option is a functional option for configuring SnapshotIndex.
type Option func(*Options)

// WithMaxMethods sets the maximum number of methods the index can hold.
func WithMaxMethods(max int) Option {
	return func(o *Options) {
		o.MaxMethods = max
	}
}

// MethodRecord is one indexed method: its descriptor, the ordered call
// sites inside its body, and the abstract methods it implements.
type MethodRecord struct {
	// Descriptor is the method's identity and signature. Required.
	Descriptor *symbol.MethodDescriptor `json:"descriptor"`

	// CallSites are the calls inside the method body, in source order.
	CallSites []symbol.CallSite `json:"callSites,omitempty"`

	// Implements lists the identity keys of abstract methods this method
	// provides the body for.
	Implements []string `json:"implements,omitempty"`
}

// Stats contains statistics about the index.
type Stats struct {
	// TotalMethods is the number of methods in the index.
	TotalMethods int

	// AbstractMethods is the number of abstract methods.
	AbstractMethods int

	// CallSites is the total number of indexed call sites.
	CallSites int

	// MaxMethods is the configured capacity.
	MaxMethods int
}

// SnapshotIndex provides O(1) lookups of methods, implementations, and
// references over one project snapshot.
//
// The index maintains several maps:
//   - byKey: primary index, identity key -> record
//   - byName: secondary index for name-based queries
//   - implementers: abstract method key -> implementing descriptors,
//     kept sorted by key so iteration order is deterministic (the
//     resolver's documented fallback depends on it)
//   - callers: method key -> referencing call-site locations
//   - enclosing: call-site location -> enclosing method
//
// Thread Safety:
//
//	SnapshotIndex is safe for concurrent use. Descriptors are stored by
//	pointer and MUST NOT be mutated after being added.
type SnapshotIndex struct {
	mu sync.RWMutex

	byKey        map[string]*MethodRecord
	byName       map[string][]*symbol.MethodDescriptor
	implementers map[string][]*symbol.MethodDescriptor
	callers      map[string][]symbol.Location
	enclosing    map[string]*symbol.MethodDescriptor

	totalSites int
	options    Options
}

// NewSnapshotIndex creates a new empty index with the given options.
func NewSnapshotIndex(opts ...Option) *SnapshotIndex {
	options := Options{MaxMethods: DefaultMaxMethods}
	for _, opt := range opts {
		opt(&options)
	}
	return &SnapshotIndex{
		byKey:        make(map[string]*MethodRecord),
		byName:       make(map[string][]*symbol.MethodDescriptor),
		implementers: make(map[string][]*symbol.MethodDescriptor),
		callers:      make(map[string][]symbol.Location),
		enclosing:    make(map[string]*symbol.MethodDescriptor),
		options:      options,
	}
}

// Add adds a method record to the index.
//
// Description:
//
//	Validates the record, checks duplicates and capacity, then updates all
//	secondary indexes atomically: name lookup, implementer sets, reverse
//	references (each call site is recorded as a caller location of its
//	target, and as enclosed by this record's method).
//
// Errors:
//
//	ErrInvalidMethod - Record or descriptor failed validation
//	ErrDuplicateMethod - A method with the same identity key exists
//	ErrMaxMethodsExceeded - Index is at capacity
//
// Thread Safety: Safe for concurrent use.
func (idx *SnapshotIndex) Add(rec *MethodRecord) error {
	if rec == nil || rec.Descriptor == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidMethod)
	}
	if err := rec.Descriptor.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMethod, err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(idx.byKey) >= idx.options.MaxMethods {
		return ErrMaxMethodsExceeded
	}

	key := rec.Descriptor.Key()
	if _, exists := idx.byKey[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMethod, key)
	}

	idx.addLocked(key, rec)
	return nil
}

// AddBatch adds multiple records, validating all of them first. If any
// record fails validation or duplicates another, NO records are added.
func (idx *SnapshotIndex) AddBatch(recs []*MethodRecord) error {
	if len(recs) == 0 {
		return nil
	}

	var errs []error
	seen := make(map[string]int)
	for i, rec := range recs {
		if rec == nil || rec.Descriptor == nil {
			errs = append(errs, fmt.Errorf("record[%d]: %w: record is nil", i, ErrInvalidMethod))
			continue
		}
		if err := rec.Descriptor.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("record[%d]: %w: %v", i, ErrInvalidMethod, err))
			continue
		}
		key := rec.Descriptor.Key()
		if first, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("record[%d]: duplicate key in batch (same as record[%d]): %s", i, first, key))
		} else {
			seen[key] = i
		}
	}
	if len(errs) > 0 {
		return &BatchError{Errors: errs}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(idx.byKey)+len(recs) > idx.options.MaxMethods {
		return ErrMaxMethodsExceeded
	}
	for i, rec := range recs {
		key := rec.Descriptor.Key()
		if _, exists := idx.byKey[key]; exists {
			errs = append(errs, fmt.Errorf("record[%d]: %w: %s", i, ErrDuplicateMethod, key))
		}
	}
	if len(errs) > 0 {
		return &BatchError{Errors: errs}
	}

	for _, rec := range recs {
		idx.addLocked(rec.Descriptor.Key(), rec)
	}
	return nil
}

// addLocked updates all indexes. Caller must hold idx.mu.
func (idx *SnapshotIndex) addLocked(key string, rec *MethodRecord) {
	d := rec.Descriptor
	idx.byKey[key] = rec
	idx.byName[d.QualifiedName] = append(idx.byName[d.QualifiedName], d)

	for _, abstractKey := range rec.Implements {
		impls := append(idx.implementers[abstractKey], d)
		// Sorted by identity key: deterministic iteration order is part
		// of the implementation-index contract.
		sort.Slice(impls, func(i, j int) bool {
			return impls[i].Key() < impls[j].Key()
		})
		idx.implementers[abstractKey] = impls
	}

	for _, site := range rec.CallSites {
		idx.totalSites++
		idx.enclosing[site.Location.Key()] = d
		if site.Target != nil {
			targetKey := site.Target.Key()
			idx.callers[targetKey] = append(idx.callers[targetKey], site.Location)
		}
	}
}

// GetDescriptor returns the descriptor for an identity key, or (nil, nil)
// when the method is unknown. Implements callgraph.SourceSymbolProvider.
func (idx *SnapshotIndex) GetDescriptor(_ context.Context, key string) (*symbol.MethodDescriptor, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	rec, exists := idx.byKey[key]
	if !exists {
		return nil, nil
	}
	return rec.Descriptor, nil
}

// GetCallSites returns the ordered call sites inside the given method's
// body. Implements callgraph.SourceSymbolProvider.
func (idx *SnapshotIndex) GetCallSites(_ context.Context, method *symbol.MethodDescriptor) ([]symbol.CallSite, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	rec, exists := idx.byKey[method.Key()]
	if !exists {
		return nil, nil
	}
	sites := make([]symbol.CallSite, len(rec.CallSites))
	copy(sites, rec.CallSites)
	return sites, nil
}

// FindImplementations returns the concrete implementations of an abstract
// method, sorted by identity key. Implements callgraph.ImplementationIndex.
func (idx *SnapshotIndex) FindImplementations(_ context.Context, abstract *symbol.MethodDescriptor) ([]*symbol.MethodDescriptor, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return copyDescriptors(idx.implementers[abstract.Key()]), nil
}

// FindCallers returns every indexed location referencing the given method.
// Implements callgraph.ReferenceIndex.
func (idx *SnapshotIndex) FindCallers(_ context.Context, method *symbol.MethodDescriptor) ([]symbol.Location, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	src := idx.callers[method.Key()]
	if len(src) == 0 {
		return nil, nil
	}
	locs := make([]symbol.Location, len(src))
	copy(locs, src)
	return locs, nil
}

// EnclosingMethod maps a call-site location to the method whose body
// contains it, or (nil, nil) when the location is unknown. Implements
// callgraph.ReferenceIndex.
func (idx *SnapshotIndex) EnclosingMethod(_ context.Context, loc symbol.Location) (*symbol.MethodDescriptor, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.enclosing[loc.Key()], nil
}

// FindByName returns all methods with the given qualified name, sorted by
// identity key. Used by surfaces that accept a bare method name.
func (idx *SnapshotIndex) FindByName(name string) []*symbol.MethodDescriptor {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	matches := copyDescriptors(idx.byName[name])
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Key() < matches[j].Key()
	})
	return matches
}

// Stats returns statistics about the index.
func (idx *SnapshotIndex) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	abstract := 0
	for _, rec := range idx.byKey {
		if rec.Descriptor.Abstract {
			abstract++
		}
	}
	return Stats{
		TotalMethods:    len(idx.byKey),
		AbstractMethods: abstract,
		CallSites:       idx.totalSites,
		MaxMethods:      idx.options.MaxMethods,
	}
}

// Clear removes all records from the index.
func (idx *SnapshotIndex) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.byKey = make(map[string]*MethodRecord)
	idx.byName = make(map[string][]*symbol.MethodDescriptor)
	idx.implementers = make(map[string][]*symbol.MethodDescriptor)
	idx.callers = make(map[string][]symbol.Location)
	idx.enclosing = make(map[string]*symbol.MethodDescriptor)
	idx.totalSites = 0
}

func copyDescriptors(src []*symbol.MethodDescriptor) []*symbol.MethodDescriptor {
	if len(src) == 0 {
		return nil
	}
	out := make([]*symbol.MethodDescriptor, len(src))
	copy(out, src)
	return out
}

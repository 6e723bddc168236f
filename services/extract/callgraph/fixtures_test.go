// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package callgraph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/driftline/callscope/services/extract/symbol"
)

// fakeWorld is an in-memory implementation of all collaborator contracts,
// shared by the builder, resolver, and finder tests.
type fakeWorld struct {
	methods   map[string]*symbol.MethodDescriptor
	sites     map[string][]symbol.CallSite
	impls     map[string][]*symbol.MethodDescriptor
	callers   map[string][]symbol.Location
	enclosing map[string]*symbol.MethodDescriptor

	// failure injection
	descriptorErr error
	callSitesErr  error
	implsErr      error
	callersErr    error

	// latency injected into every call-site lookup, for tests that
	// overlap extractions
	latency time.Duration

	// call accounting
	mu              sync.Mutex
	callSiteQueries int
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		methods:   make(map[string]*symbol.MethodDescriptor),
		sites:     make(map[string][]symbol.CallSite),
		impls:     make(map[string][]*symbol.MethodDescriptor),
		callers:   make(map[string][]symbol.Location),
		enclosing: make(map[string]*symbol.MethodDescriptor),
	}
}

// method registers a concrete method with an analyzable body and returns
// its descriptor.
func (w *fakeWorld) method(name, typeName, namespace, project string) *symbol.MethodDescriptor {
	d := &symbol.MethodDescriptor{
		QualifiedName:   name,
		TypeName:        typeName,
		Namespace:       namespace,
		Project:         project,
		SourceAvailable: true,
	}
	w.methods[d.Key()] = d
	return d
}

// external registers a method without an analyzable body.
func (w *fakeWorld) external(name, typeName, namespace, project string) *symbol.MethodDescriptor {
	d := w.method(name, typeName, namespace, project)
	d.SourceAvailable = false
	return d
}

// abstract registers an interface/abstract method.
func (w *fakeWorld) abstract(name, typeName, namespace, project string) *symbol.MethodDescriptor {
	d := w.method(name, typeName, namespace, project)
	d.Abstract = true
	return d
}

// call appends a call site from one method to a target, in registration
// order.
func (w *fakeWorld) call(from, to *symbol.MethodDescriptor) {
	key := from.Key()
	line := len(w.sites[key]) + 1
	loc := symbol.Location{File: key + ".go", Line: line, Column: 1}
	w.sites[key] = append(w.sites[key], symbol.CallSite{
		Target:     to,
		Expression: fmt.Sprintf("%s()", to.QualifiedName),
		Location:   loc,
	})
	if to != nil {
		w.callers[to.Key()] = append(w.callers[to.Key()], loc)
		w.enclosing[loc.Key()] = from
	}
}

// unresolvableCall appends a call site with no determinable target.
func (w *fakeWorld) unresolvableCall(from *symbol.MethodDescriptor) {
	key := from.Key()
	w.sites[key] = append(w.sites[key], symbol.CallSite{
		Expression: "dynamic()",
		Location:   symbol.Location{File: key + ".go", Line: len(w.sites[key]) + 1},
	})
}

// implement registers concrete implementers for an abstract method, in
// index iteration order.
func (w *fakeWorld) implement(abstract *symbol.MethodDescriptor, impls ...*symbol.MethodDescriptor) {
	w.impls[abstract.Key()] = impls
}

// callSiteQueryCount returns how many call-site lookups were served.
func (w *fakeWorld) callSiteQueryCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.callSiteQueries
}

// SourceSymbolProvider

func (w *fakeWorld) GetDescriptor(_ context.Context, key string) (*symbol.MethodDescriptor, error) {
	if w.descriptorErr != nil {
		return nil, w.descriptorErr
	}
	return w.methods[key], nil
}

func (w *fakeWorld) GetCallSites(_ context.Context, m *symbol.MethodDescriptor) ([]symbol.CallSite, error) {
	w.mu.Lock()
	w.callSiteQueries++
	w.mu.Unlock()
	if w.latency > 0 {
		time.Sleep(w.latency)
	}
	if w.callSitesErr != nil {
		return nil, w.callSitesErr
	}
	return w.sites[m.Key()], nil
}

// ImplementationIndex

func (w *fakeWorld) FindImplementations(_ context.Context, abstract *symbol.MethodDescriptor) ([]*symbol.MethodDescriptor, error) {
	if w.implsErr != nil {
		return nil, w.implsErr
	}
	return w.impls[abstract.Key()], nil
}

// ReferenceIndex

func (w *fakeWorld) FindCallers(_ context.Context, m *symbol.MethodDescriptor) ([]symbol.Location, error) {
	if w.callersErr != nil {
		return nil, w.callersErr
	}
	return w.callers[m.Key()], nil
}

func (w *fakeWorld) EnclosingMethod(_ context.Context, loc symbol.Location) (*symbol.MethodDescriptor, error) {
	return w.enclosing[loc.Key()], nil
}

// Oracle stubs

// fixedOracle always returns the same choice.
type fixedOracle struct {
	choice *symbol.MethodDescriptor
	calls  int
}

func (o *fixedOracle) Choose(_ context.Context, _ DisambiguationRequest) (*symbol.MethodDescriptor, error) {
	o.calls++
	return o.choice, nil
}

// failingOracle always fails.
type failingOracle struct{}

func (failingOracle) Choose(_ context.Context, _ DisambiguationRequest) (*symbol.MethodDescriptor, error) {
	return nil, errors.New("oracle transport failure")
}

// silentOracle returns no choice and no error.
type silentOracle struct{}

func (silentOracle) Choose(_ context.Context, _ DisambiguationRequest) (*symbol.MethodDescriptor, error) {
	return nil, nil
}

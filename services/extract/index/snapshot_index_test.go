// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/driftline/callscope/services/extract/symbol"
)

func desc(name, typeName string) *symbol.MethodDescriptor {
	return &symbol.MethodDescriptor{
		QualifiedName:   name,
		TypeName:        typeName,
		Namespace:       "app",
		Project:         "demo",
		SourceAvailable: true,
	}
}

func TestSnapshotIndexAdd(t *testing.T) {
	t.Run("adds and retrieves by key", func(t *testing.T) {
		idx := NewSnapshotIndex()
		d := desc("Run", "Job")
		if err := idx.Add(&MethodRecord{Descriptor: d}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}

		got, err := idx.GetDescriptor(context.Background(), d.Key())
		if err != nil {
			t.Fatalf("GetDescriptor() error = %v", err)
		}
		if got != d {
			t.Errorf("GetDescriptor() = %v, want %v", got, d)
		}
	})

	t.Run("unknown key returns nil without error", func(t *testing.T) {
		idx := NewSnapshotIndex()
		got, err := idx.GetDescriptor(context.Background(), "demo:app.Missing")
		if err != nil {
			t.Fatalf("GetDescriptor() error = %v", err)
		}
		if got != nil {
			t.Errorf("GetDescriptor() = %v, want nil", got)
		}
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		idx := NewSnapshotIndex()
		d := desc("Run", "Job")
		if err := idx.Add(&MethodRecord{Descriptor: d}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		err := idx.Add(&MethodRecord{Descriptor: desc("Run", "Job")})
		if !errors.Is(err, ErrDuplicateMethod) {
			t.Errorf("Add() error = %v, want ErrDuplicateMethod", err)
		}
	})

	t.Run("rejects invalid descriptor", func(t *testing.T) {
		idx := NewSnapshotIndex()
		err := idx.Add(&MethodRecord{Descriptor: &symbol.MethodDescriptor{}})
		if !errors.Is(err, ErrInvalidMethod) {
			t.Errorf("Add() error = %v, want ErrInvalidMethod", err)
		}
	})

	t.Run("enforces capacity", func(t *testing.T) {
		idx := NewSnapshotIndex(WithMaxMethods(1))
		if err := idx.Add(&MethodRecord{Descriptor: desc("A", "")}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		err := idx.Add(&MethodRecord{Descriptor: desc("B", "")})
		if !errors.Is(err, ErrMaxMethodsExceeded) {
			t.Errorf("Add() error = %v, want ErrMaxMethodsExceeded", err)
		}
	})
}

func TestSnapshotIndexImplementers(t *testing.T) {
	ctx := context.Background()
	idx := NewSnapshotIndex()

	iface := desc("Charge", "Gateway")
	iface.Abstract = true
	if err := idx.Add(&MethodRecord{Descriptor: iface}); err != nil {
		t.Fatalf("Add(iface) error = %v", err)
	}

	// Added out of key order on purpose; FindImplementations must return
	// them sorted by identity key regardless of insertion order.
	stripe := desc("Charge", "StripeGateway")
	adyen := desc("Charge", "AdyenGateway")
	for _, d := range []*symbol.MethodDescriptor{stripe, adyen} {
		err := idx.Add(&MethodRecord{Descriptor: d, Implements: []string{iface.Key()}})
		if err != nil {
			t.Fatalf("Add(%s) error = %v", d.TypeName, err)
		}
	}

	impls, err := idx.FindImplementations(ctx, iface)
	if err != nil {
		t.Fatalf("FindImplementations() error = %v", err)
	}
	if len(impls) != 2 {
		t.Fatalf("got %d implementations, want 2", len(impls))
	}
	if impls[0].TypeName != "AdyenGateway" || impls[1].TypeName != "StripeGateway" {
		t.Errorf("iteration order = [%s %s], want sorted [AdyenGateway StripeGateway]",
			impls[0].TypeName, impls[1].TypeName)
	}

	t.Run("no implementers", func(t *testing.T) {
		lone := desc("Refund", "Gateway")
		lone.Abstract = true
		impls, err := idx.FindImplementations(ctx, lone)
		if err != nil {
			t.Fatalf("FindImplementations() error = %v", err)
		}
		if len(impls) != 0 {
			t.Errorf("got %d implementations, want 0", len(impls))
		}
	})
}

func TestSnapshotIndexReferences(t *testing.T) {
	ctx := context.Background()
	idx := NewSnapshotIndex()

	callee := desc("parse", "")
	caller := desc("main", "")
	loc := symbol.Location{File: "main.go", Line: 10, Column: 2}

	if err := idx.Add(&MethodRecord{Descriptor: callee}); err != nil {
		t.Fatalf("Add(callee) error = %v", err)
	}
	err := idx.Add(&MethodRecord{
		Descriptor: caller,
		CallSites:  []symbol.CallSite{{Target: callee, Expression: "parse()", Location: loc}},
	})
	if err != nil {
		t.Fatalf("Add(caller) error = %v", err)
	}

	locs, err := idx.FindCallers(ctx, callee)
	if err != nil {
		t.Fatalf("FindCallers() error = %v", err)
	}
	if len(locs) != 1 || locs[0] != loc {
		t.Errorf("FindCallers() = %v, want [%v]", locs, loc)
	}

	enclosing, err := idx.EnclosingMethod(ctx, loc)
	if err != nil {
		t.Fatalf("EnclosingMethod() error = %v", err)
	}
	if enclosing != caller {
		t.Errorf("EnclosingMethod() = %v, want %v", enclosing, caller)
	}

	t.Run("call sites in source order", func(t *testing.T) {
		sites, err := idx.GetCallSites(ctx, caller)
		if err != nil {
			t.Fatalf("GetCallSites() error = %v", err)
		}
		if len(sites) != 1 || sites[0].Expression != "parse()" {
			t.Errorf("GetCallSites() = %v", sites)
		}
	})
}

func TestSnapshotIndexFindByName(t *testing.T) {
	idx := NewSnapshotIndex()

	a := desc("Handle", "UserController")
	b := desc("Handle", "AdminController")
	for _, d := range []*symbol.MethodDescriptor{a, b} {
		if err := idx.Add(&MethodRecord{Descriptor: d}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	matches := idx.FindByName("Handle")
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].TypeName != "AdminController" {
		t.Errorf("matches not sorted by key: %v", matches[0].TypeName)
	}
	if got := idx.FindByName("Missing"); len(got) != 0 {
		t.Errorf("FindByName(Missing) = %v, want empty", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	idx := NewSnapshotIndex()

	callee := desc("leaf", "")
	caller := desc("root", "")
	err := idx.AddBatch([]*MethodRecord{
		{Descriptor: callee},
		{
			Descriptor: caller,
			CallSites: []symbol.CallSite{{
				Target:   callee,
				Location: symbol.Location{File: "root.go", Line: 3},
			}},
		},
	})
	if err != nil {
		t.Fatalf("AddBatch() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := idx.WriteSnapshotFile(path, "demo"); err != nil {
		t.Fatalf("WriteSnapshotFile() error = %v", err)
	}

	loaded, err := LoadSnapshotFile(path)
	if err != nil {
		t.Fatalf("LoadSnapshotFile() error = %v", err)
	}

	stats := loaded.Stats()
	if stats.TotalMethods != 2 {
		t.Errorf("TotalMethods = %d, want 2", stats.TotalMethods)
	}
	if stats.CallSites != 1 {
		t.Errorf("CallSites = %d, want 1", stats.CallSites)
	}

	locs, err := loaded.FindCallers(context.Background(), callee)
	if err != nil {
		t.Fatalf("FindCallers() error = %v", err)
	}
	if len(locs) != 1 {
		t.Errorf("FindCallers() after round trip = %v, want 1 location", locs)
	}
}

func TestSnapshotIndexClear(t *testing.T) {
	idx := NewSnapshotIndex()
	if err := idx.Add(&MethodRecord{Descriptor: desc("A", "")}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	idx.Clear()
	if stats := idx.Stats(); stats.TotalMethods != 0 {
		t.Errorf("TotalMethods after Clear = %d, want 0", stats.TotalMethods)
	}
}

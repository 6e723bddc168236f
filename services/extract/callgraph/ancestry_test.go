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
	"testing"

	"github.com/driftline/callscope/services/extract/symbol"
)

// pathNames renders a path as a slice of qualified names for comparison.
func pathNames(p AncestorPath) []string {
	names := make([]string, len(p))
	for i, d := range p {
		names[i] = d.QualifiedName
	}
	return names
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFinderFindAncestorPaths(t *testing.T) {
	ctx := context.Background()

	t.Run("entry point returns single one-element path", func(t *testing.T) {
		w := newFakeWorld()
		e := w.method("E", "", "app", "p")

		paths, err := NewFinder(w).FindAncestorPaths(ctx, e)
		if err != nil {
			t.Fatalf("FindAncestorPaths() error = %v", err)
		}
		if len(paths) != 1 {
			t.Fatalf("got %d paths, want 1", len(paths))
		}
		if !equalNames(pathNames(paths[0]), []string{"E"}) {
			t.Errorf("path = %v, want [E]", pathNames(paths[0]))
		}
	})

	t.Run("linear chain", func(t *testing.T) {
		w := newFakeWorld()
		// main -> mid -> leaf; querying leaf walks back to main.
		main := w.method("main", "", "app", "p")
		mid := w.method("mid", "", "app", "p")
		leaf := w.method("leaf", "", "app", "p")
		w.call(main, mid)
		w.call(mid, leaf)

		paths, err := NewFinder(w).FindAncestorPaths(ctx, leaf)
		if err != nil {
			t.Fatalf("FindAncestorPaths() error = %v", err)
		}
		if len(paths) != 1 {
			t.Fatalf("got %d paths, want 1", len(paths))
		}
		if !equalNames(pathNames(paths[0]), []string{"leaf", "mid", "main"}) {
			t.Errorf("path = %v, want [leaf mid main]", pathNames(paths[0]))
		}
	})

	t.Run("diamond yields two distinct un-deduplicated paths", func(t *testing.T) {
		w := newFakeWorld()
		// G calls D and F; both call C.
		g := w.method("G", "", "app", "p")
		d := w.method("D", "", "app", "p")
		f := w.method("F", "", "app", "p")
		c := w.method("C", "", "app", "p")
		w.call(g, d)
		w.call(g, f)
		w.call(d, c)
		w.call(f, c)

		paths, err := NewFinder(w).FindAncestorPaths(ctx, c)
		if err != nil {
			t.Fatalf("FindAncestorPaths() error = %v", err)
		}
		if len(paths) != 2 {
			t.Fatalf("got %d paths, want 2", len(paths))
		}
		if !equalNames(pathNames(paths[0]), []string{"C", "D", "G"}) {
			t.Errorf("first path = %v, want [C D G]", pathNames(paths[0]))
		}
		if !equalNames(pathNames(paths[1]), []string{"C", "F", "G"}) {
			t.Errorf("second path = %v, want [C F G]", pathNames(paths[1]))
		}
		// Both paths terminate at the same entry point, deliberately
		// un-deduplicated.
		if paths[0].EntryPoint().Key() != paths[1].EntryPoint().Key() {
			t.Error("both paths should end at entry point G")
		}
	})

	t.Run("cycle branch abandoned silently", func(t *testing.T) {
		w := newFakeWorld()
		// A <-> B mutual recursion, plus root -> A. Querying A:
		//   A <- B branch re-reaches A and is abandoned;
		//   A <- root completes.
		root := w.method("root", "", "app", "p")
		a := w.method("A", "", "app", "p")
		b := w.method("B", "", "app", "p")
		w.call(root, a)
		w.call(a, b)
		w.call(b, a)

		paths, err := NewFinder(w).FindAncestorPaths(ctx, a)
		if err != nil {
			t.Fatalf("FindAncestorPaths() error = %v", err)
		}
		// A's callers: root and B. Via B: B's caller is A, already on the
		// branch -> abandoned, but B itself has caller A only, so the B
		// branch dies entirely. Via root: complete path.
		if len(paths) != 1 {
			t.Fatalf("got %d paths, want 1: %v", len(paths), paths)
		}
		if !equalNames(pathNames(paths[0]), []string{"A", "root"}) {
			t.Errorf("path = %v, want [A root]", pathNames(paths[0]))
		}
	})

	t.Run("same method on two different paths", func(t *testing.T) {
		w := newFakeWorld()
		// shared is reached via two independent middles from two roots.
		r1 := w.method("r1", "", "app", "p")
		r2 := w.method("r2", "", "app", "p")
		shared := w.method("shared", "", "app", "p")
		target := w.method("target", "", "app", "p")
		w.call(r1, shared)
		w.call(r2, shared)
		w.call(shared, target)

		paths, err := NewFinder(w).FindAncestorPaths(ctx, target)
		if err != nil {
			t.Fatalf("FindAncestorPaths() error = %v", err)
		}
		if len(paths) != 2 {
			t.Fatalf("got %d paths, want 2", len(paths))
		}
		// "shared" legally appears on both paths; never twice on one.
		for _, p := range paths {
			seen := make(map[string]int)
			for _, d := range p {
				seen[d.Key()]++
			}
			for key, n := range seen {
				if n > 1 {
					t.Errorf("descriptor %s appears %d times in one path", key, n)
				}
			}
		}
	})

	t.Run("multiple call sites from one caller dedupe to one branch", func(t *testing.T) {
		w := newFakeWorld()
		caller := w.method("caller", "", "app", "p")
		callee := w.method("callee", "", "app", "p")
		w.call(caller, callee)
		w.call(caller, callee)

		paths, err := NewFinder(w).FindAncestorPaths(ctx, callee)
		if err != nil {
			t.Fatalf("FindAncestorPaths() error = %v", err)
		}
		if len(paths) != 1 {
			t.Fatalf("got %d paths, want 1 (callers deduplicated by identity)", len(paths))
		}
	})

	t.Run("reference index failure propagates", func(t *testing.T) {
		w := newFakeWorld()
		m := w.method("m", "", "app", "p")
		w.callersErr = errors.New("index offline")

		_, err := NewFinder(w).FindAncestorPaths(ctx, m)
		if !errors.Is(err, ErrProviderUnavailable) {
			t.Errorf("FindAncestorPaths() error = %v, want ErrProviderUnavailable", err)
		}
	})

	t.Run("invalid descriptor rejected", func(t *testing.T) {
		w := newFakeWorld()
		_, err := NewFinder(w).FindAncestorPaths(ctx, &symbol.MethodDescriptor{})
		if !errors.Is(err, ErrInvalidDescriptor) {
			t.Errorf("FindAncestorPaths() error = %v, want ErrInvalidDescriptor", err)
		}
	})
}

func TestFirstPathPerEntryPoint(t *testing.T) {
	g := &symbol.MethodDescriptor{QualifiedName: "G", Namespace: "app", Project: "p"}
	h := &symbol.MethodDescriptor{QualifiedName: "H", Namespace: "app", Project: "p"}
	c := &symbol.MethodDescriptor{QualifiedName: "C", Namespace: "app", Project: "p"}
	d := &symbol.MethodDescriptor{QualifiedName: "D", Namespace: "app", Project: "p"}
	f := &symbol.MethodDescriptor{QualifiedName: "F", Namespace: "app", Project: "p"}

	paths := []AncestorPath{
		{c, d, g},
		{c, f, g},
		{c, f, h},
	}

	reduced := FirstPathPerEntryPoint(paths)
	if len(reduced) != 2 {
		t.Fatalf("got %d paths, want 2", len(reduced))
	}
	if !equalNames(pathNames(reduced[0]), []string{"C", "D", "G"}) {
		t.Errorf("first reduced path = %v, want the first G path", pathNames(reduced[0]))
	}
	if !equalNames(pathNames(reduced[1]), []string{"C", "F", "H"}) {
		t.Errorf("second reduced path = %v, want the H path", pathNames(reduced[1]))
	}
}

// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package callgraph

import (
	"reflect"
	"testing"
)

func TestDependencyIndexSnapshotOrdering(t *testing.T) {
	d := NewDependencyIndex()

	d.Record("shop", "billing")
	d.Record("shop", "billing")
	d.Record("shop", "billing")
	d.Record("lib", "util")
	d.Record("lib", "util")
	d.Record("shop", "app")
	d.Record("shop", "core")
	d.Record("lib", "strings")

	want := []DependencyCount{
		{Project: "shop", Namespace: "billing", Count: 3},
		{Project: "lib", Namespace: "util", Count: 2},
		{Project: "lib", Namespace: "strings", Count: 1},
		{Project: "shop", Namespace: "app", Count: 1},
		{Project: "shop", Namespace: "core", Count: 1},
	}
	got := d.Snapshot()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}

	// Deterministic: repeated snapshots are identical.
	if again := d.Snapshot(); !reflect.DeepEqual(got, again) {
		t.Errorf("repeated Snapshot() differed:\nfirst:  %+v\nsecond: %+v", got, again)
	}
}

func TestDependencyIndexEmptySnapshot(t *testing.T) {
	d := NewDependencyIndex()
	if got := d.Snapshot(); got == nil || len(got) != 0 {
		t.Errorf("Snapshot() = %v, want non-nil empty slice", got)
	}
}

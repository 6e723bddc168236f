// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package callgraph

import (
	"sort"
	"sync"
)

// DependencyCount is one aggregated row: how many methods in a given
// (project, namespace) were expanded during one extraction run.
type DependencyCount struct {
	// Project is the project/module name.
	Project string `json:"project"`

	// Namespace is the namespace/package name within the project.
	Namespace string `json:"namespace"`

	// Count is the number of recorded increments.
	Count int `json:"count"`
}

type depKey struct {
	project   string
	namespace string
}

// DependencyIndex accumulates per-(project, namespace) call counts during a
// single extraction run.
//
// Description:
//
//	The index is a passive observer: the builder records one increment per
//	expanded method and never reads the counts back. Each Extract call owns
//	a fresh index, so overlapping extractions never interfere.
//
// Thread Safety:
//
//	Safe for concurrent use. The baseline traversal is single-threaded, but
//	the mutex keeps the index correct if sibling traversal is ever
//	parallelized.
type DependencyIndex struct {
	mu     sync.Mutex
	counts map[depKey]int
}

// NewDependencyIndex creates an empty dependency index.
func NewDependencyIndex() *DependencyIndex {
	return &DependencyIndex{
		counts: make(map[depKey]int),
	}
}

// Record increments the counter for (project, namespace).
func (d *DependencyIndex) Record(project, namespace string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts[depKey{project: project, namespace: namespace}]++
}

// Snapshot returns the accumulated counts in a fixed, deterministic order:
// count descending, then project ascending, then namespace ascending.
//
// Description:
//
//	The order is part of the contract. Stable display and test comparison
//	both depend on identical input producing byte-identical snapshots.
//
// Outputs:
//
//	[]DependencyCount - The ordered rows. Never nil; empty when nothing
//	                    was recorded.
func (d *DependencyIndex) Snapshot() []DependencyCount {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows := make([]DependencyCount, 0, len(d.counts))
	for k, v := range d.counts {
		rows = append(rows, DependencyCount{
			Project:   k.project,
			Namespace: k.namespace,
			Count:     v,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		if rows[i].Project != rows[j].Project {
			return rows[i].Project < rows[j].Project
		}
		return rows[i].Namespace < rows[j].Namespace
	})

	return rows
}

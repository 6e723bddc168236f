// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

// SnapshotSchemaVersion is the version of the snapshot file format.
// Increment when the format changes in a breaking way.
const SnapshotSchemaVersion = "1.0"

// Snapshot is the JSON-serializable form of a project's method records.
//
// Description:
//
//	Contains everything needed to rebuild a SnapshotIndex without
//	re-scanning source. Methods are sorted by identity key for
//	deterministic output, enabling reliable diffing.
type Snapshot struct {
	// SchemaVersion identifies the snapshot format version.
	SchemaVersion string `json:"schema_version"`

	// Project is the scanned project/module name.
	Project string `json:"project"`

	// GeneratedAtMilli is the Unix timestamp in milliseconds when the
	// snapshot was produced.
	GeneratedAtMilli int64 `json:"generated_at_milli"`

	// Methods contains all method records, sorted by identity key.
	Methods []*MethodRecord `json:"methods"`
}

// ToSnapshot exports the index contents as a Snapshot.
//
// Outputs:
//
//	*Snapshot - The exported snapshot with methods sorted by identity
//	            key. Never nil.
func (idx *SnapshotIndex) ToSnapshot(project string) *Snapshot {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	keys := make([]string, 0, len(idx.byKey))
	for key := range idx.byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	methods := make([]*MethodRecord, 0, len(keys))
	for _, key := range keys {
		methods = append(methods, idx.byKey[key])
	}

	return &Snapshot{
		SchemaVersion:    SnapshotSchemaVersion,
		Project:          project,
		GeneratedAtMilli: time.Now().UnixMilli(),
		Methods:          methods,
	}
}

// FromSnapshot builds a new SnapshotIndex from a snapshot.
//
// Outputs:
//
//	*SnapshotIndex - The populated index.
//	error - Non-nil if any record fails validation or duplicates another.
func FromSnapshot(snap *Snapshot, opts ...Option) (*SnapshotIndex, error) {
	idx := NewSnapshotIndex(opts...)
	if err := idx.AddBatch(snap.Methods); err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	return idx, nil
}

// LoadSnapshotFile reads and parses a snapshot file, then builds an index
// from it.
func LoadSnapshotFile(path string, opts ...Option) (*SnapshotIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}

	return FromSnapshot(&snap, opts...)
}

// WriteSnapshotFile exports the index and writes it as indented JSON.
func (idx *SnapshotIndex) WriteSnapshotFile(path, project string) error {
	snap := idx.ToSnapshot(project)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", path, err)
	}
	return nil
}

// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/driftline/callscope/services/extract"
	"github.com/driftline/callscope/services/extract/callgraph"
	"github.com/driftline/callscope/services/extract/config"
	"github.com/driftline/callscope/services/extract/index"
	"github.com/driftline/callscope/services/extract/oracle"
	"github.com/driftline/callscope/services/extract/sitter"
	"github.com/driftline/callscope/services/extract/storage/badgercache"
)

// buildIndex loads a snapshot file when --snapshot is set, otherwise scans
// the project root.
func buildIndex(ctx context.Context, cfg config.Config) (*index.SnapshotIndex, string, error) {
	if snapshotPath != "" {
		idx, err := index.LoadSnapshotFile(snapshotPath)
		if err != nil {
			return nil, "", err
		}
		slog.Info("snapshot loaded",
			slog.String("path", snapshotPath),
			slog.Int("methods", idx.Stats().TotalMethods),
		)
		return idx, sitter.ProjectName(projectRoot), nil
	}

	opts := []sitter.Option{sitter.WithExcludes(cfg.Scan.Excludes...)}
	if cfg.Scan.IncludeTests {
		opts = append(opts, sitter.WithTests())
	}
	return sitter.NewScanner(opts...).ScanProject(ctx, projectRoot)
}

// buildOracle constructs the configured disambiguation oracle chain, along
// with a cleanup function for the decision store. A nil oracle means the
// engine uses deterministic fallback for every ambiguous dispatch.
func buildOracle(cfg config.OracleConfig) (callgraph.DisambiguationOracle, func(), error) {
	if cfg.Model == "" {
		return nil, func() {}, nil
	}

	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, nil, fmt.Errorf("oracle model %q configured but %s is not set", cfg.Model, cfg.APIKeyEnv)
	}
	client := oracle.NewClientWithConfig(apiKey, cfg.Model, cfg.BaseURL)

	if cfg.CacheDir == "" {
		return client, func() {}, nil
	}

	store, err := badgercache.Open(badgercache.Config{Path: cfg.CacheDir})
	if err != nil {
		return nil, nil, fmt.Errorf("opening oracle decision cache: %w", err)
	}

	var cachedOpts []oracle.CachedOption
	if cfg.RequestsPerSecond > 0 {
		cachedOpts = append(cachedOpts, oracle.WithRateLimit(cfg.RequestsPerSecond, 1))
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing oracle decision cache", slog.Any("error", err))
		}
	}
	return oracle.NewCached(client, store, cachedOpts...), cleanup, nil
}

// buildService wires config, index, and oracle into a ready service.
func buildService(ctx context.Context) (*extract.Service, func(), error) {
	cfg, err := config.Load(projectRoot)
	if err != nil {
		return nil, nil, err
	}

	idx, project, err := buildIndex(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	chooser, cleanup, err := buildOracle(cfg.Oracle)
	if err != nil {
		return nil, nil, err
	}

	svc := extract.NewService(idx, project, extract.ServiceConfig{
		Oracle:   chooser,
		MaxDepth: cfg.MaxDepth,
	})
	return svc, cleanup, nil
}

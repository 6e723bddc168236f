// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package badgercache provides a BadgerDB-backed oracle decision store.
//
// Oracle calls are expensive (an LLM round trip per ambiguous dispatch
// site) while decisions change only when the scanned code changes. This
// store persists decisions between runs: the request hash already covers
// the abstract method, the call expression, and the candidate set, so a
// code change that affects a decision produces a different key and the
// stale entry simply ages out via TTL. No explicit invalidation API is
// needed.
//
// Storage layout:
//
//	oracle/decision/v1/{requestHash}  →  chosen candidate identity key
//	                                     TTL: 30 days
package badgercache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/driftline/callscope/services/extract/oracle"
)

// DefaultTTL is the default lifetime of a cached decision. Long enough to
// cover a development cycle; stale entries for changed code are unreachable
// anyway because the request hash changes with the candidate set.
const DefaultTTL = 30 * 24 * time.Hour

// keyPrefix is prepended to the request hash to form the BadgerDB key.
// Versioned to allow future format changes without collision.
const keyPrefix = "oracle/decision/v1/"

// Config holds configuration for a decision store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// TTL is the lifetime of each cached decision.
	// Default: 30 days.
	TTL time.Duration

	// Logger receives BadgerDB's internal logging.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store implements oracle.DecisionStore backed by an embedded BadgerDB.
//
// Thread Safety: Store is safe for concurrent use. BadgerDB transactions
// are per-goroutine.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Open creates and opens a decision store with the given configuration.
//
// Description:
//
//	Opens a BadgerDB database at the configured path, or in memory when
//	InMemory is set. Creates the directory if it doesn't exist. The
//	caller owns the store lifecycle and must call Close when done.
//
// Outputs:
//
//	*Store - The opened store. Never nil on success.
//	error - Non-nil if the path is missing or the database cannot open.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent decision store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create decision store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open decision store: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{db: db, ttl: ttl}, nil
}

// OpenInMemory opens an in-memory decision store for testing. Data is lost
// when closed.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

// GetDecision returns the stored candidate key for a request hash.
//
// Errors:
//
//	oracle.ErrDecisionNotFound - No decision stored (or TTL expired).
func (s *Store) GetDecision(ctx context.Context, requestHash string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(requestHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return oracle.ErrDecisionNotFound
		}
		if err != nil {
			return fmt.Errorf("get decision: %w", err)
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// PutDecision stores the chosen candidate key with the configured TTL.
func (s *Store) PutDecision(ctx context.Context, requestHash, candidateKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(storeKey(requestHash), []byte(candidateKey)).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func storeKey(requestHash string) []byte {
	return []byte(keyPrefix + requestHash)
}

// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/driftline/callscope/services/extract/callgraph"
	"github.com/driftline/callscope/services/extract/symbol"
)

// ErrDecisionNotFound indicates the store has no decision for a key.
var ErrDecisionNotFound = errors.New("decision not found")

// DecisionStore persists oracle decisions keyed by request hash. The stored
// value is the identity key of the chosen candidate.
//
// Implementations must be safe for concurrent use.
type DecisionStore interface {
	// GetDecision returns the stored candidate key for a request hash.
	// Returns ErrDecisionNotFound when no decision is stored.
	GetDecision(ctx context.Context, requestHash string) (string, error)

	// PutDecision stores the chosen candidate key for a request hash.
	PutDecision(ctx context.Context, requestHash, candidateKey string) error
}

// CachedOptions configures a Cached oracle.
type CachedOptions struct {
	// Limiter throttles calls to the inner oracle. Nil means no limit.
	Limiter *rate.Limiter

	// Logger for cache diagnostics. Default: slog.Default()
	Logger *slog.Logger
}

// CachedOption is a functional option for configuring Cached.
type CachedOption func(*CachedOptions)

// WithRateLimit throttles inner oracle calls to rps requests per second
// with the given burst.
func WithRateLimit(rps float64, burst int) CachedOption {
	return func(o *CachedOptions) {
		o.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCachedLogger sets the logger for cache diagnostics.
func WithCachedLogger(logger *slog.Logger) CachedOption {
	return func(o *CachedOptions) {
		o.Logger = logger
	}
}

// Cached wraps an oracle with a persistent decision cache, request
// coalescing, and optional rate limiting.
//
// Description:
//
//	Identical disambiguation requests hash to the same cache key, so a
//	dispatch site resolved once is never re-asked, across process
//	restarts when the store is durable. Concurrent identical requests
//	are coalesced through singleflight so only one hits the inner
//	oracle. Only positive choices are cached; a "no choice" answer is
//	re-asked next time, since it may be transient.
//
// Thread Safety: Cached is safe for concurrent use.
type Cached struct {
	inner   callgraph.DisambiguationOracle
	store   DecisionStore
	group   singleflight.Group
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewCached wraps inner with the given decision store.
func NewCached(inner callgraph.DisambiguationOracle, store DecisionStore, opts ...CachedOption) *Cached {
	options := CachedOptions{Logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	return &Cached{
		inner:   inner,
		store:   store,
		limiter: options.Limiter,
		logger:  options.Logger,
	}
}

// Choose returns the cached decision for the request, or consults the inner
// oracle and caches a positive answer.
func (c *Cached) Choose(ctx context.Context, req callgraph.DisambiguationRequest) (*symbol.MethodDescriptor, error) {
	if len(req.Candidates) == 0 {
		return nil, nil
	}

	hash := requestHash(req)
	byKey := make(map[string]*symbol.MethodDescriptor, len(req.Candidates))
	for _, cand := range req.Candidates {
		byKey[cand.Key()] = cand
	}

	if key, err := c.store.GetDecision(ctx, hash); err == nil {
		if cand, ok := byKey[key]; ok {
			return cand, nil
		}
		// Stale decision from an older snapshot; fall through and re-ask.
		c.logger.Debug("cached decision no longer among candidates",
			slog.String("abstract", req.Abstract.Key()),
			slog.String("decision", key),
		)
	} else if !errors.Is(err, ErrDecisionNotFound) {
		c.logger.Warn("decision store read failed", slog.Any("error", err))
	}

	chosenKey, err, _ := c.group.Do(hash, func() (interface{}, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		choice, err := c.inner.Choose(ctx, req)
		if err != nil {
			return "", err
		}
		if choice == nil {
			return "", nil
		}
		key := choice.Key()
		if _, ok := byKey[key]; !ok {
			// Choice outside the candidate set is treated as no choice;
			// caching it would poison future lookups.
			return "", nil
		}
		if putErr := c.store.PutDecision(ctx, hash, key); putErr != nil {
			c.logger.Warn("decision store write failed", slog.Any("error", putErr))
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}

	key := chosenKey.(string)
	if key == "" {
		return nil, nil
	}
	return byKey[key], nil
}

// requestHash derives a stable cache key from the request identity: the
// abstract method, the call expression, and the candidate set in order.
func requestHash(req callgraph.DisambiguationRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Abstract.Key()))
	h.Write([]byte{0})
	h.Write([]byte(req.CallExpression))
	for _, cand := range req.Candidates {
		h.Write([]byte{0})
		h.Write([]byte(cand.Key()))
	}
	return hex.EncodeToString(h.Sum(nil))
}

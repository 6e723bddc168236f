// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/driftline/callscope/services/extract/callgraph"
	"github.com/driftline/callscope/services/extract/symbol"
)

func candidate(typeName string) *symbol.MethodDescriptor {
	return &symbol.MethodDescriptor{
		QualifiedName:   "Charge",
		TypeName:        typeName,
		Namespace:       "payments",
		Project:         "shop",
		SourceAvailable: true,
	}
}

func request(typeNames ...string) callgraph.DisambiguationRequest {
	abstract := candidate("Gateway")
	abstract.Abstract = true
	req := callgraph.DisambiguationRequest{
		Abstract:       abstract,
		CallExpression: "gateway.Charge(order)",
	}
	for _, name := range typeNames {
		req.Candidates = append(req.Candidates, candidate(name))
	}
	return req
}

// chatServer returns an httptest server that replies to every chat
// completion with the given content.
func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if len(req.Messages) != 2 {
			t.Errorf("got %d messages, want 2", len(req.Messages))
		}
		resp := chatResponse{
			ID: "chatcmpl-test",
			Choices: []chatChoice{{
				Message:      chatMessage{Role: "assistant", Content: content},
				FinishReason: "stop",
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestClientChoose(t *testing.T) {
	ctx := context.Background()

	t.Run("ordinal answer selects candidate", func(t *testing.T) {
		srv := chatServer(t, "2")
		defer srv.Close()

		client := NewClientWithConfig("test-key", "test-model", srv.URL)
		got, err := client.Choose(ctx, request("AdyenGateway", "StripeGateway"))
		if err != nil {
			t.Fatalf("Choose() error = %v", err)
		}
		if got == nil || got.TypeName != "StripeGateway" {
			t.Errorf("Choose() = %v, want StripeGateway", got)
		}
	})

	t.Run("type name answer selects candidate", func(t *testing.T) {
		srv := chatServer(t, "AdyenGateway")
		defer srv.Close()

		client := NewClientWithConfig("test-key", "", srv.URL)
		got, err := client.Choose(ctx, request("AdyenGateway", "StripeGateway"))
		if err != nil {
			t.Fatalf("Choose() error = %v", err)
		}
		if got == nil || got.TypeName != "AdyenGateway" {
			t.Errorf("Choose() = %v, want AdyenGateway", got)
		}
	})

	t.Run("unrecognized answer yields no choice", func(t *testing.T) {
		srv := chatServer(t, "It depends on the runtime configuration.")
		defer srv.Close()

		client := NewClientWithConfig("test-key", "", srv.URL)
		got, err := client.Choose(ctx, request("AdyenGateway", "StripeGateway"))
		if err != nil {
			t.Fatalf("Choose() error = %v", err)
		}
		if got != nil {
			t.Errorf("Choose() = %v, want nil", got)
		}
	})

	t.Run("non-200 status is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
		}))
		defer srv.Close()

		client := NewClientWithConfig("test-key", "", srv.URL)
		if _, err := client.Choose(ctx, request("A", "B")); err == nil {
			t.Error("Choose() error = nil, want non-nil")
		}
	})

	t.Run("malformed body is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer srv.Close()

		client := NewClientWithConfig("test-key", "", srv.URL)
		if _, err := client.Choose(ctx, request("A", "B")); err == nil {
			t.Error("Choose() error = nil, want non-nil")
		}
	})

	t.Run("empty candidate list short-circuits", func(t *testing.T) {
		client := NewClientWithConfig("test-key", "", "http://127.0.0.1:1")
		got, err := client.Choose(ctx, request())
		if err != nil {
			t.Fatalf("Choose() error = %v", err)
		}
		if got != nil {
			t.Errorf("Choose() = %v, want nil", got)
		}
	})
}

func TestMatchAnswer(t *testing.T) {
	candidates := []*symbol.MethodDescriptor{
		candidate("AdyenGateway"),
		candidate("StripeGateway"),
	}

	tests := []struct {
		name   string
		answer string
		want   string
	}{
		{"ordinal", "1", "AdyenGateway"},
		{"ordinal with period", "2.", "StripeGateway"},
		{"out of range ordinal", "7", ""},
		{"case insensitive name", "stripegateway", "StripeGateway"},
		{"quoted name", `"AdyenGateway"`, "AdyenGateway"},
		{"multiline keeps first line", "2\nbecause it is configured", "StripeGateway"},
		{"empty", "", ""},
		{"unknown name", "PaypalGateway", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchAnswer(tt.answer, candidates)
			if tt.want == "" {
				if got != nil {
					t.Errorf("matchAnswer(%q) = %v, want nil", tt.answer, got)
				}
				return
			}
			if got == nil || got.TypeName != tt.want {
				t.Errorf("matchAnswer(%q) = %v, want %s", tt.answer, got, tt.want)
			}
		})
	}
}

func TestFixedOracle(t *testing.T) {
	ctx := context.Background()

	t.Run("prefers in order", func(t *testing.T) {
		f := Fixed{Preferred: []string{"MockGateway", "StripeGateway"}}
		got, err := f.Choose(ctx, request("AdyenGateway", "StripeGateway"))
		if err != nil {
			t.Fatalf("Choose() error = %v", err)
		}
		if got == nil || got.TypeName != "StripeGateway" {
			t.Errorf("Choose() = %v, want StripeGateway", got)
		}
	})

	t.Run("no preference matches", func(t *testing.T) {
		f := Fixed{Preferred: []string{"MockGateway"}}
		got, err := f.Choose(ctx, request("AdyenGateway"))
		if err != nil {
			t.Fatalf("Choose() error = %v", err)
		}
		if got != nil {
			t.Errorf("Choose() = %v, want nil", got)
		}
	})

	t.Run("none never chooses", func(t *testing.T) {
		got, err := None{}.Choose(ctx, request("AdyenGateway"))
		if err != nil || got != nil {
			t.Errorf("Choose() = (%v, %v), want (nil, nil)", got, err)
		}
	})
}

// memStore is an in-memory DecisionStore for tests.
type memStore struct {
	mu        sync.Mutex
	decisions map[string]string
	getErr    error
	putErr    error
}

func newMemStore() *memStore {
	return &memStore{decisions: make(map[string]string)}
}

func (s *memStore) GetDecision(_ context.Context, hash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", s.getErr
	}
	key, ok := s.decisions[hash]
	if !ok {
		return "", ErrDecisionNotFound
	}
	return key, nil
}

func (s *memStore) PutDecision(_ context.Context, hash, candidateKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.decisions[hash] = candidateKey
	return nil
}

// countingOracle wraps a fixed choice and counts invocations.
type countingOracle struct {
	mu     sync.Mutex
	choice string
	err    error
	calls  int
}

func (o *countingOracle) Choose(_ context.Context, req callgraph.DisambiguationRequest) (*symbol.MethodDescriptor, error) {
	o.mu.Lock()
	o.calls++
	o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	for _, c := range req.Candidates {
		if c.TypeName == o.choice {
			return c, nil
		}
	}
	return nil, nil
}

func TestCachedOracle(t *testing.T) {
	ctx := context.Background()

	t.Run("caches positive decisions", func(t *testing.T) {
		inner := &countingOracle{choice: "StripeGateway"}
		cached := NewCached(inner, newMemStore())

		for i := 0; i < 3; i++ {
			got, err := cached.Choose(ctx, request("AdyenGateway", "StripeGateway"))
			if err != nil {
				t.Fatalf("Choose() #%d error = %v", i, err)
			}
			if got == nil || got.TypeName != "StripeGateway" {
				t.Fatalf("Choose() #%d = %v, want StripeGateway", i, got)
			}
		}
		if inner.calls != 1 {
			t.Errorf("inner oracle called %d times, want 1", inner.calls)
		}
	})

	t.Run("no choice is not cached", func(t *testing.T) {
		inner := &countingOracle{choice: "MissingGateway"}
		cached := NewCached(inner, newMemStore())

		for i := 0; i < 2; i++ {
			got, err := cached.Choose(ctx, request("AdyenGateway"))
			if err != nil {
				t.Fatalf("Choose() error = %v", err)
			}
			if got != nil {
				t.Fatalf("Choose() = %v, want nil", got)
			}
		}
		if inner.calls != 2 {
			t.Errorf("inner oracle called %d times, want 2", inner.calls)
		}
	})

	t.Run("stale decision is re-asked", func(t *testing.T) {
		store := newMemStore()
		req := request("AdyenGateway", "StripeGateway")
		store.decisions[requestHash(req)] = "shop:payments.RemovedGateway.Charge"

		inner := &countingOracle{choice: "AdyenGateway"}
		cached := NewCached(inner, store)

		got, err := cached.Choose(ctx, req)
		if err != nil {
			t.Fatalf("Choose() error = %v", err)
		}
		if got == nil || got.TypeName != "AdyenGateway" {
			t.Errorf("Choose() = %v, want AdyenGateway", got)
		}
		if inner.calls != 1 {
			t.Errorf("inner oracle called %d times, want 1", inner.calls)
		}
	})

	t.Run("inner error propagates", func(t *testing.T) {
		inner := &countingOracle{err: errors.New("upstream down")}
		cached := NewCached(inner, newMemStore())

		if _, err := cached.Choose(ctx, request("AdyenGateway", "StripeGateway")); err == nil {
			t.Error("Choose() error = nil, want non-nil")
		}
	})

	t.Run("store failures degrade to passthrough", func(t *testing.T) {
		store := newMemStore()
		store.getErr = errors.New("disk gone")
		store.putErr = errors.New("disk gone")

		inner := &countingOracle{choice: "AdyenGateway"}
		cached := NewCached(inner, store)

		got, err := cached.Choose(ctx, request("AdyenGateway"))
		if err != nil {
			t.Fatalf("Choose() error = %v", err)
		}
		if got == nil || got.TypeName != "AdyenGateway" {
			t.Errorf("Choose() = %v, want AdyenGateway", got)
		}
	})

	t.Run("distinct call sites hash differently", func(t *testing.T) {
		a := request("AdyenGateway", "StripeGateway")
		b := request("AdyenGateway", "StripeGateway")
		b.CallExpression = "fallback.Charge(order)"
		if requestHash(a) == requestHash(b) {
			t.Error("requests with different call expressions share a hash")
		}
	})
}

// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package oracle provides disambiguation oracle implementations: an
// OpenAI-compatible LLM client, deterministic stubs for tests, and a
// caching/rate-limiting wrapper.
//
// Oracles are advisory by contract. Every implementation here may return
// (nil, nil) or an error; the resolver treats both as "no choice" and falls
// back deterministically, so nothing in this package is on the correctness
// path of an extraction.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/driftline/callscope/services/extract/callgraph"
	"github.com/driftline/callscope/services/extract/symbol"
)

// =============================================================================
// OpenAI-compatible Wire Types
// =============================================================================

const defaultBaseURL = "https://api.openai.com/v1/chat/completions"

const defaultModel = "gpt-4o-mini"

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_completion_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Error   *chatError   `json:"error,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// =============================================================================
// Client Implementation
// =============================================================================

const systemPrompt = "You resolve polymorphic method calls during static " +
	"analysis. Given an abstract method, the call-site text, and a numbered " +
	"list of concrete implementations, answer with the single most likely " +
	"implementation: reply with its number or its type name, nothing else."

// Client implements callgraph.DisambiguationOracle against any
// OpenAI-compatible chat completions endpoint, using raw net/http.
//
// Thread Safety: Client is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
	logger     *slog.Logger
}

// NewClientWithConfig creates a Client with explicit configuration. Useful
// for testing with mock servers or when configuration comes from a source
// other than environment variables.
func NewClientWithConfig(apiKey, model, baseURL string) *Client {
	if model == "" {
		model = defaultModel
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		logger:     slog.Default(),
	}
}

// NewClientFromEnv creates a Client from environment variables.
//
// Description:
//
//	Reads CALLSCOPE_ORACLE_API_KEY, CALLSCOPE_ORACLE_MODEL, and
//	CALLSCOPE_ORACLE_BASE_URL. The model defaults to "gpt-4o-mini" and
//	the base URL to the OpenAI chat completions endpoint.
//
// Outputs:
//   - *Client: The configured client.
//   - error: Non-nil if the API key is missing.
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("CALLSCOPE_ORACLE_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("oracle: API key is missing (CALLSCOPE_ORACLE_API_KEY)")
	}
	return NewClientWithConfig(
		apiKey,
		os.Getenv("CALLSCOPE_ORACLE_MODEL"),
		os.Getenv("CALLSCOPE_ORACLE_BASE_URL"),
	), nil
}

// Choose asks the model to pick one candidate implementation.
//
// Description:
//
//	Builds a compact prompt from the request, performs one chat
//	completion, and maps the reply back onto the candidate list. A reply
//	that names no candidate yields (nil, nil) so the resolver's fallback
//	applies. Transport and API errors are returned as errors; callers in
//	the resolver absorb them.
//
// Outputs:
//
//	*symbol.MethodDescriptor - The chosen candidate, or nil for no choice.
//	error - Non-nil on transport/API failure.
func (c *Client) Choose(ctx context.Context, req callgraph.DisambiguationRequest) (*symbol.MethodDescriptor, error) {
	if len(req.Candidates) == 0 {
		return nil, nil
	}

	temperature := float32(0)
	maxTokens := 32
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(req)},
		},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("oracle: encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("oracle: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("oracle: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("oracle: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle: status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("oracle: decoding response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("oracle: API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, nil
	}

	answer := strings.TrimSpace(parsed.Choices[0].Message.Content)
	chosen := matchAnswer(answer, req.Candidates)
	if chosen == nil {
		c.logger.Debug("oracle answer matched no candidate",
			slog.String("abstract", req.Abstract.Key()),
			slog.String("answer", truncate(answer, 80)),
		)
	}
	return chosen, nil
}

// buildPrompt renders the disambiguation request as a compact prompt.
func buildPrompt(req callgraph.DisambiguationRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Abstract method: %s (declared on %s in %s)\n",
		req.Abstract.Display(), req.Abstract.TypeName, req.Abstract.Namespace)
	if req.CallExpression != "" {
		fmt.Fprintf(&b, "Call site: %s\n", req.CallExpression)
	}
	b.WriteString("Implementations:\n")
	for i, c := range req.Candidates {
		fmt.Fprintf(&b, "%d. %s (%s, %s)\n", i+1, c.TypeName, c.Namespace, c.Project)
	}
	b.WriteString("Which implementation is invoked here?")
	return b.String()
}

// matchAnswer maps a model reply onto the candidate list. Accepts a 1-based
// ordinal or a type name; anything else is no choice.
func matchAnswer(answer string, candidates []*symbol.MethodDescriptor) *symbol.MethodDescriptor {
	if answer == "" {
		return nil
	}
	// First line only; models occasionally append justification.
	if i := strings.IndexByte(answer, '\n'); i >= 0 {
		answer = answer[:i]
	}
	answer = strings.Trim(answer, " .\"'`")

	if n, err := strconv.Atoi(answer); err == nil {
		if n >= 1 && n <= len(candidates) {
			return candidates[n-1]
		}
		return nil
	}

	var match *symbol.MethodDescriptor
	for _, c := range candidates {
		if strings.EqualFold(c.TypeName, answer) {
			if match != nil {
				return nil
			}
			match = c
		}
	}
	return match
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

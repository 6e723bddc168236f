// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extract

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/driftline/callscope/services/extract/callgraph"
)

// RequestIDHeader carries the client-supplied request ID, generated when
// absent.
const RequestIDHeader = "X-Request-ID"

// ErrorResponse is the JSON error envelope for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ExtractRequest is the body of POST /v1/extract/calltree.
type ExtractRequest struct {
	// Method is a full identity key or a bare qualified name that
	// matches exactly one indexed method.
	Method string `json:"method" binding:"required"`
}

// ExtractResponse is the body of a successful call-tree extraction.
type ExtractResponse struct {
	SchemaVersion string                         `json:"schemaVersion"`
	Project       string                         `json:"project"`
	Tree          callgraph.SerializableCallNode `json:"tree"`
	Dependencies  []callgraph.DependencyCount    `json:"dependencies"`
	NodeCount     int                            `json:"nodeCount"`
	Depth         int                            `json:"depth"`
}

// AncestorsRequest is the body of POST /v1/extract/ancestors.
type AncestorsRequest struct {
	Method string `json:"method" binding:"required"`

	// FirstPerEntryPoint reduces the result to one representative path
	// per entry point.
	FirstPerEntryPoint bool `json:"firstPerEntryPoint"`
}

// AncestorsResponse is the body of a successful ancestor search.
type AncestorsResponse struct {
	Project string                       `json:"project"`
	Paths   []callgraph.SerializablePath `json:"paths"`
}

// DependenciesResponse is the body of GET /v1/extract/dependencies.
type DependenciesResponse struct {
	Project      string                      `json:"project"`
	Dependencies []callgraph.DependencyCount `json:"dependencies"`
}

// StatsResponse is the body of GET /v1/extract/stats.
type StatsResponse struct {
	Project         string `json:"project"`
	TotalMethods    int    `json:"totalMethods"`
	AbstractMethods int    `json:"abstractMethods"`
	CallSites       int    `json:"callSites"`
}

// Handlers holds the HTTP handlers for the extract service.
type Handlers struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandlers creates handlers bound to a service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc, logger: svc.logger}
}

// getOrCreateRequestID returns the inbound request ID, generating one when
// the header is absent, and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	id := c.GetHeader(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Header(RequestIDHeader, id)
	return id
}

// HandleExtract handles POST /v1/extract/calltree.
//
// Response:
//
//	200 OK: ExtractResponse
//	400 Bad Request: Missing method, or ambiguous bare name
//	404 Not Found: Method not indexed
//	503 Service Unavailable: A collaborator failed mid-traversal
func (h *Handlers) HandleExtract(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleExtract")

	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "method is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	tree, deps, err := h.svc.ExtractCallTree(c.Request.Context(), req.Method)
	if err != nil {
		writeExtractionError(c, logger, req.Method, err)
		return
	}

	logger.Info("call tree extracted",
		slog.String("method", req.Method),
		slog.Int("nodes", tree.NodeCount()),
		slog.Int("depth", tree.Depth()),
	)

	c.JSON(http.StatusOK, ExtractResponse{
		SchemaVersion: callgraph.CallTreeSchemaVersion,
		Project:       h.svc.Project(),
		Tree:          callgraph.ToSerializable(tree),
		Dependencies:  deps,
		NodeCount:     tree.NodeCount(),
		Depth:         tree.Depth(),
	})
}

// HandleAncestors handles POST /v1/extract/ancestors.
//
// Response:
//
//	200 OK: AncestorsResponse
//	400 Bad Request: Missing method, or ambiguous bare name
//	404 Not Found: Method not indexed
//	503 Service Unavailable: The reference index failed mid-search
func (h *Handlers) HandleAncestors(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleAncestors")

	var req AncestorsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "method is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	paths, err := h.svc.AncestorPaths(c.Request.Context(), req.Method, req.FirstPerEntryPoint)
	if err != nil {
		writeExtractionError(c, logger, req.Method, err)
		return
	}

	logger.Info("ancestor paths found",
		slog.String("method", req.Method),
		slog.Int("paths", len(paths)),
	)

	c.JSON(http.StatusOK, AncestorsResponse{
		Project: h.svc.Project(),
		Paths:   callgraph.PathsToSerializable(paths),
	})
}

// HandleDependencies handles GET /v1/extract/dependencies. Returns the
// aggregation of the most recent extraction.
func (h *Handlers) HandleDependencies(c *gin.Context) {
	getOrCreateRequestID(c)
	c.JSON(http.StatusOK, DependenciesResponse{
		Project:      h.svc.Project(),
		Dependencies: h.svc.Dependencies(),
	})
}

// HandleStats handles GET /v1/extract/stats.
func (h *Handlers) HandleStats(c *gin.Context) {
	getOrCreateRequestID(c)
	stats := h.svc.Stats()
	c.JSON(http.StatusOK, StatsResponse{
		Project:         h.svc.Project(),
		TotalMethods:    stats.TotalMethods,
		AbstractMethods: stats.AbstractMethods,
		CallSites:       stats.CallSites,
	})
}

// HandleHealth handles GET /v1/extract/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady handles GET /v1/extract/ready. Ready means the index holds
// at least one method.
func (h *Handlers) HandleReady(c *gin.Context) {
	if h.svc.Stats().TotalMethods == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "empty index"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// writeExtractionError maps engine errors onto HTTP status codes.
func writeExtractionError(c *gin.Context, logger *slog.Logger, method string, err error) {
	switch {
	case errors.Is(err, callgraph.ErrMethodNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "METHOD_NOT_FOUND",
		})
	case errors.Is(err, ErrAmbiguousReference):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "AMBIGUOUS_REFERENCE",
		})
	case errors.Is(err, callgraph.ErrInvalidDescriptor):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_DESCRIPTOR",
		})
	case errors.Is(err, callgraph.ErrProviderUnavailable):
		logger.Error("provider failed during traversal",
			slog.String("method", method),
			slog.Any("error", err),
		)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: err.Error(),
			Code:  "PROVIDER_UNAVAILABLE",
		})
	default:
		logger.Error("extraction failed",
			slog.String("method", method),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "INTERNAL_ERROR",
		})
	}
}

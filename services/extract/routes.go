// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extract

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all extract routes with the router.
//
// Description:
//
//	Registers all /v1/extract/* endpoints with the given Gin router
//	group. The router group should already have any required middleware
//	applied.
//
// Endpoints:
//
//	POST /v1/extract/calltree - Extract the forward call tree of a method
//	POST /v1/extract/ancestors - Find ancestor paths up to entry points
//	GET  /v1/extract/dependencies - Aggregation of the latest extraction
//	GET  /v1/extract/stats - Index statistics
//	GET  /v1/extract/health - Health check
//	GET  /v1/extract/ready - Readiness check
//
// Example:
//
//	service := extract.NewService(idx, project, extract.ServiceConfig{})
//	handlers := extract.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	extract.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	ex := rg.Group("/extract")
	{
		ex.POST("/calltree", handlers.HandleExtract)
		ex.POST("/ancestors", handlers.HandleAncestors)

		ex.GET("/dependencies", handlers.HandleDependencies)
		ex.GET("/stats", handlers.HandleStats)

		ex.GET("/health", handlers.HandleHealth)
		ex.GET("/ready", handlers.HandleReady)
	}
}

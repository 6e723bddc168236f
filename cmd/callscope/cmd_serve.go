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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/driftline/callscope/services/extract"
	"github.com/driftline/callscope/services/extract/config"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the extraction API over HTTP",
		Long: "Scans the project (or loads a snapshot) and serves call-graph " +
			"queries under /v1/extract. Prometheus metrics are exposed on " +
			"/metrics.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(projectRoot)
			if err != nil {
				return err
			}
			if port == 0 {
				port = cfg.Server.Port
			}
			return runServer(cmd.Context(), cfg, port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (overrides config)")
	return cmd
}

// initMetrics wires the OTel meter provider to a Prometheus exporter so that
// the counters in the extraction engine show up on /metrics.
func initMetrics() (func(context.Context) error, error) {
	exporter, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", "callscope"),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

func runServer(ctx context.Context, cfg config.Config, port int) error {
	if verbose {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	shutdownMetrics, err := initMetrics()
	if err != nil {
		return err
	}

	svc, cleanup, err := buildService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	handlers := extract.NewHandlers(svc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("callscope"))
	if verbose {
		router.Use(gin.Logger())
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	extract.RegisterRoutes(v1, handlers)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	printBanner(port, svc)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting callscope server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	case <-ctx.Done():
	}

	slog.Info("shutting down callscope server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown", slog.Any("error", err))
	}
	if err := shutdownMetrics(shutdownCtx); err != nil {
		slog.Warn("metrics shutdown", slog.Any("error", err))
	}
	return nil
}

func printBanner(port int, svc *extract.Service) {
	stats := svc.Stats()
	banner := `
╔════════════════════════════════════════════════════════════╗
║                     CALLSCOPE SERVER                       ║
╠════════════════════════════════════════════════════════════╣
║  Project: %-48s ║
║  Methods: %-6d  Abstract: %-6d  Call sites: %-8d   ║
║                                                            ║
║  curl http://localhost:%d/v1/extract/health             ║
║  curl -X POST http://localhost:%d/v1/extract/calltree \ ║
║    -H "Content-Type: application/json" \                   ║
║    -d '{"method": "run"}'                                  ║
║                                                            ║
║  Press Ctrl+C to stop                                      ║
╚════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, svc.Project(), stats.TotalMethods, stats.AbstractMethods,
		stats.CallSites, port, port)
}

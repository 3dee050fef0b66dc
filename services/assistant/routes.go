// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assistant

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// RegisterRoutes registers the /assistant endpoints on rg.
//
// Endpoints:
//
//	POST /assistant/sessions                 - Create a session
//	GET  /assistant/sessions/:id             - Session summary and turns
//	POST /assistant/sessions/:id/messages    - Send a message
//	POST /assistant/sessions/:id/reset       - Reset a session
//	POST /assistant/sessions/:id/feedback    - Rate a framework
//	GET  /assistant/frameworks               - Browse or search the library
//	GET  /assistant/frameworks/:id           - One framework with neighbours
//	GET  /assistant/health                   - Liveness
//	GET  /assistant/ready                    - Readiness
//
// Example:
//
//	v1 := engine.Group("/v1")
//	assistant.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	a := rg.Group("/assistant")
	{
		a.GET("/health", handlers.HandleHealth)
		a.GET("/ready", handlers.HandleReady)

		guarded := a.Group("")
		guarded.Use(ReadyGuardMiddleware(handlers.engine))
		{
			guarded.POST("/sessions", handlers.HandleCreateSession)
			guarded.GET("/sessions/:id", handlers.HandleGetSession)
			guarded.POST("/sessions/:id/messages", handlers.HandleMessage)
			guarded.POST("/sessions/:id/reset", handlers.HandleReset)
			guarded.POST("/sessions/:id/feedback", handlers.HandleFeedback)

			guarded.GET("/frameworks", handlers.HandleListFrameworks)
			guarded.GET("/frameworks/:id", handlers.HandleGetFramework)
		}
	}
}

// ReadyGuardMiddleware returns 503 until the engine has a catalog.
//
// Description:
//
//	The first catalog load may embed the whole catalog, which takes a while
//	on a cold vector cache. Rejected requests get a Retry-After header and
//	a span carrying the caller's trace context so the 503 can be
//	correlated.
//
// Thread Safety: Safe for concurrent use.
func ReadyGuardMiddleware(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if engine.Ready() {
			c.Next()
			return
		}
		_, span := otel.Tracer(tracerName).Start(c.Request.Context(), "ready_guard.reject",
			oteltrace.WithAttributes(
				attribute.String("path", c.Request.URL.Path),
				attribute.String("method", c.Request.Method),
				attribute.Int("http.status_code", http.StatusServiceUnavailable),
			),
		)
		defer span.End()
		span.SetStatus(codes.Error, "catalog not loaded")

		traceID := ""
		if sc := span.SpanContext(); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		slog.Warn("assistant: request rejected, catalog still loading",
			slog.String("path", c.Request.URL.Path),
			slog.String("trace_id", traceID),
		)
		c.Header("Retry-After", "10")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   ErrNotReady.Error(),
			Code:    "NOT_READY",
			Message: "The framework catalog is still loading. Please retry shortly.",
		})
	}
}

// ServerOptions configures NewHTTPHandler.
type ServerOptions struct {
	// ServiceName labels otelgin spans.
	ServiceName string

	// AccessLog enables gin's request logger.
	AccessLog bool
}

// NewHTTPHandler builds the gin engine: recovery, tracing, the /v1 API and
// /metrics.
func NewHTTPHandler(engine *Engine, opts ServerOptions, logger *slog.Logger) *gin.Engine {
	if opts.ServiceName == "" {
		opts.ServiceName = "framework-assistant"
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(opts.ServiceName))
	if opts.AccessLog {
		r.Use(gin.Logger())
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	RegisterRoutes(v1, NewHandlers(engine, logger))
	return r
}

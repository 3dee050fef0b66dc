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
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/index"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/router"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/session"
	"github.com/AleutianAI/FrameworkAssistant/services/llm"
)

// requestIDHeader carries a caller-supplied request id.
const requestIDHeader = "X-Request-ID"

// maxLibraryResults caps GET /frameworks?q= results.
const maxLibraryResults = 50

// Handlers serves the assistant HTTP API.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	engine *Engine
	logger *slog.Logger
}

// NewHandlers creates handlers over engine.
func NewHandlers(engine *Engine, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{engine: engine, logger: logger}
}

func getOrCreateRequestID(c *gin.Context) string {
	id := c.GetHeader(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Header(requestIDHeader, id)
	return id
}

// writeError maps domain errors to status codes.
func (h *Handlers) writeError(c *gin.Context, requestID string, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	message := ""
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		status, code = http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, ErrFrameworkNotFound):
		status, code = http.StatusNotFound, "FRAMEWORK_NOT_FOUND"
	case errors.Is(err, session.ErrAlreadyRated):
		status, code = http.StatusConflict, "ALREADY_RATED"
	case errors.Is(err, session.ErrVersionConflict):
		status, code = http.StatusConflict, "VERSION_CONFLICT"
	case errors.Is(err, session.ErrInvalidRating):
		status, code = http.StatusBadRequest, "INVALID_RATING"
	case errors.Is(err, router.ErrEmptyQuery):
		status, code = http.StatusBadRequest, "EMPTY_QUERY"
	case errors.Is(err, ErrNotReady):
		status, code = http.StatusServiceUnavailable, "NOT_READY"
	case errors.Is(err, llm.ErrRetryExhausted), errors.Is(err, llm.ErrProviderUnavailable):
		status, code, message = http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE", router.Apology
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("assistant: request failed",
			slog.String("request_id", requestID),
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code, Message: message, RequestID: requestID})
}

func (h *Handlers) badRequest(c *gin.Context, requestID string, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST", RequestID: requestID})
}

// =============================================================================
// Sessions
// =============================================================================

// HandleCreateSession handles POST /v1/assistant/sessions.
func (h *Handlers) HandleCreateSession(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	s, err := h.engine.NewSession(c.Request.Context())
	if err != nil {
		h.writeError(c, requestID, err)
		return
	}
	c.JSON(http.StatusCreated, CreateSessionResponse{SessionID: s.ID})
}

// HandleGetSession handles GET /v1/assistant/sessions/:id.
func (h *Handlers) HandleGetSession(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	s, err := h.engine.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, requestID, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(s))
}

// HandleMessage handles POST /v1/assistant/sessions/:id/messages.
//
// Response:
//
//	200 OK: MessageResponse
//	400 Bad Request: Missing or blank query
//	404 Not Found: Unknown or expired session
//	503 Service Unavailable: Catalog not loaded, or the model provider
//	failed after retries (the apology is recorded in the session)
func (h *Handlers) HandleMessage(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, requestID, err)
		return
	}
	resp, err := h.engine.Send(c.Request.Context(), c.Param("id"), req.Query, req.Filters)
	if err != nil {
		h.writeError(c, requestID, err)
		return
	}
	c.JSON(http.StatusOK, newMessageResponse(resp))
}

// HandleReset handles POST /v1/assistant/sessions/:id/reset.
func (h *Handlers) HandleReset(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	s, err := h.engine.Reset(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, requestID, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(s))
}

// HandleFeedback handles POST /v1/assistant/sessions/:id/feedback.
//
// Response:
//
//	200 OK: FeedbackResponse
//	400 Bad Request: Rating other than 1 or -1
//	404 Not Found: Unknown session or framework
//	409 Conflict: The framework was already rated in this session
func (h *Handlers) HandleFeedback(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, requestID, err)
		return
	}
	err := h.engine.Rate(c.Request.Context(), c.Param("id"), req.FrameworkID, session.Rating(req.Rating))
	if err != nil {
		h.writeError(c, requestID, err)
		return
	}
	c.JSON(http.StatusOK, FeedbackResponse{FrameworkID: req.FrameworkID, Rating: req.Rating})
}

// =============================================================================
// Library
// =============================================================================

// HandleListFrameworks handles GET /v1/assistant/frameworks.
//
// Query Parameters:
//
//	q: Name substring (optional, at least two characters)
//	type, difficulty: Exact match, case-insensitive (optional)
//	domain: Comma-separated business domains (optional)
func (h *Handlers) HandleListFrameworks(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	cat, err := h.engine.Catalog()
	if err != nil {
		h.writeError(c, requestID, err)
		return
	}
	filters := index.Filters{Type: c.Query("type"), Difficulty: c.Query("difficulty")}
	if d := c.Query("domain"); d != "" {
		for _, part := range strings.Split(d, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filters.Domains = append(filters.Domains, part)
			}
		}
	}

	var candidates []catalog.Framework
	if q := c.Query("q"); q != "" {
		for _, m := range catalog.SearchByName(cat.All(), q, maxLibraryResults) {
			candidates = append(candidates, m.Framework)
		}
	} else {
		candidates = catalog.UniqueSorted(cat.All())
	}

	views := make([]FrameworkView, 0, len(candidates))
	for _, f := range candidates {
		if filters.Matches(f) {
			views = append(views, NewFrameworkView(f))
		}
	}
	c.JSON(http.StatusOK, LibraryResponse{Frameworks: views, Total: len(views)})
}

// HandleGetFramework handles GET /v1/assistant/frameworks/:id.
func (h *Handlers) HandleGetFramework(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "id must be an integer", Code: "INVALID_ID", RequestID: requestID})
		return
	}
	cat, err := h.engine.Catalog()
	if err != nil {
		h.writeError(c, requestID, err)
		return
	}
	f, ok := cat.Get(id)
	if !ok {
		h.writeError(c, requestID, ErrFrameworkNotFound)
		return
	}
	resp := FrameworkResponse{
		Framework:   f,
		DisplayName: catalog.DisplayName(f),
		Questions:   f.DisplayQuestions(0),
		Related:     catalog.RelatedLabels(cat, f),
	}
	prev, next := catalog.Neighbors(cat.All(), id)
	if prev != nil {
		v := NewFrameworkView(*prev)
		resp.Previous = &v
	}
	if next != nil {
		v := NewFrameworkView(*next)
		resp.Next = &v
	}
	c.JSON(http.StatusOK, resp)
}

// =============================================================================
// Health
// =============================================================================

// HandleHealth handles GET /v1/assistant/health. It always succeeds.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Provider: h.engine.Backend().Name})
}

// HandleReady handles GET /v1/assistant/ready.
func (h *Handlers) HandleReady(c *gin.Context) {
	cat, err := h.engine.Catalog()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "loading", Provider: h.engine.Backend().Name})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:     "ready",
		Provider:   h.engine.Backend().Name,
		Frameworks: cat.Len(),
		LoadedAt:   h.engine.LoadedAt().UTC().Format(time.RFC3339),
	})
}

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
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/index"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/router"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/routing"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/session"
)

// =============================================================================
// Requests
// =============================================================================

// MessageRequest is the body of POST /sessions/:id/messages.
type MessageRequest struct {
	Query   string        `json:"query" binding:"required,max=4000"`
	Filters index.Filters `json:"filters"`
}

// FeedbackRequest is the body of POST /sessions/:id/feedback.
type FeedbackRequest struct {
	FrameworkID int `json:"framework_id" binding:"required"`
	Rating      int `json:"rating" binding:"required,oneof=-1 1"`
}

// =============================================================================
// Responses
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// CreateSessionResponse is returned by POST /sessions.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// FrameworkView is a framework as shown to API clients.
type FrameworkView struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Type        string   `json:"type,omitempty"`
	Difficulty  string   `json:"difficulty"`
	Domains     []string `json:"domains,omitempty"`
	UseCase     string   `json:"use_case,omitempty"`
}

// NewFrameworkView projects f.
func NewFrameworkView(f catalog.Framework) FrameworkView {
	return FrameworkView{
		ID:          f.ID,
		Name:        f.Name,
		DisplayName: catalog.DisplayName(f),
		Type:        f.Type,
		Difficulty:  f.Difficulty(),
		Domains:     f.Domains(),
		UseCase:     f.UseCase,
	}
}

func frameworkViews(frameworks []catalog.Framework) []FrameworkView {
	out := make([]FrameworkView, len(frameworks))
	for i, f := range frameworks {
		out[i] = NewFrameworkView(f)
	}
	return out
}

// MessageResponse is returned by POST /sessions/:id/messages.
type MessageResponse struct {
	Response      string          `json:"response"`
	Frameworks    []FrameworkView `json:"frameworks"`
	Stage         session.Stage   `json:"stage"`
	Intent        routing.Intent  `json:"intent,omitempty"`
	Confidence    float64         `json:"confidence"`
	EnhancedQuery string          `json:"enhanced_query,omitempty"`
}

func newMessageResponse(r router.Response) MessageResponse {
	return MessageResponse{
		Response:      r.Text,
		Frameworks:    frameworkViews(r.Frameworks),
		Stage:         r.Stage,
		Intent:        r.Intent,
		Confidence:    r.Confidence,
		EnhancedQuery: r.EnhancedQuery,
	}
}

// SessionResponse is returned by GET /sessions/:id and POST /sessions/:id/reset.
type SessionResponse struct {
	Summary          session.Summary           `json:"summary"`
	FrameworksViewed []session.ViewedFramework `json:"frameworks_viewed"`
	Turns            []session.Turn            `json:"turns"`
}

func newSessionResponse(s *session.Session) SessionResponse {
	resp := SessionResponse{
		Summary:          s.Summary(),
		FrameworksViewed: s.FrameworksViewed,
		Turns:            s.Turns,
	}
	if resp.FrameworksViewed == nil {
		resp.FrameworksViewed = []session.ViewedFramework{}
	}
	if resp.Turns == nil {
		resp.Turns = []session.Turn{}
	}
	return resp
}

// FeedbackResponse is returned by POST /sessions/:id/feedback.
type FeedbackResponse struct {
	FrameworkID int `json:"framework_id"`
	Rating      int `json:"rating"`
}

// LibraryResponse is returned by GET /frameworks.
type LibraryResponse struct {
	Frameworks []FrameworkView `json:"frameworks"`
	Total      int             `json:"total"`
}

// FrameworkResponse is returned by GET /frameworks/:id.
type FrameworkResponse struct {
	Framework   catalog.Framework `json:"framework"`
	DisplayName string            `json:"display_name"`
	Questions   []string          `json:"diagnostic_questions"`
	Related     []string          `json:"related"`
	Previous    *FrameworkView    `json:"previous,omitempty"`
	Next        *FrameworkView    `json:"next,omitempty"`
}

// HealthResponse is returned by /health and /ready.
type HealthResponse struct {
	Status     string `json:"status"`
	Provider   string `json:"provider,omitempty"`
	Frameworks int    `json:"frameworks,omitempty"`
	LoadedAt   string `json:"loaded_at,omitempty"`
}

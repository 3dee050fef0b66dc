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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/index"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	w := doJSON(t, h, http.MethodPost, "/v1/assistant/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[CreateSessionResponse](t, w).SessionID
	require.NotEmpty(t, id)
	return id
}

func TestHTTP_DiagnosticConversation(t *testing.T) {
	h := NewHTTPHandler(newLoadedEngine(t, nil), ServerOptions{}, nil)
	id := createSession(t, h)
	base := "/v1/assistant/sessions/" + id

	w := doJSON(t, h, http.MethodPost, base+"/messages", MessageRequest{
		Query:   "Our sales team is struggling with low conversion",
		Filters: index.Filters{Domains: []string{"Sales"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	msg := decode[MessageResponse](t, w)
	assert.Equal(t, session.StageFrameworkSelection, msg.Stage)
	assert.Equal(t, "DIAGNOSTIC", string(msg.Intent))
	assert.Len(t, msg.Frameworks, 4)

	w = doJSON(t, h, http.MethodPost, base+"/messages", MessageRequest{Query: "MEDDIC"})
	require.Equal(t, http.StatusOK, w.Code)
	msg = decode[MessageResponse](t, w)
	assert.Equal(t, session.StageDiagnosticActive, msg.Stage)
	require.Len(t, msg.Frameworks, 1)
	assert.Equal(t, 9, msg.Frameworks[0].ID)
	assert.Equal(t, "MEDDIC", msg.Frameworks[0].DisplayName)

	w = doJSON(t, h, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sess := decode[SessionResponse](t, w)
	assert.Equal(t, 2, sess.Summary.QueryCount)
	assert.Equal(t, 4, sess.Summary.MessagesCount)

	w = doJSON(t, h, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, session.StageIdle, decode[SessionResponse](t, w).Summary.Stage)
}

func TestHTTP_Feedback(t *testing.T) {
	h := NewHTTPHandler(newLoadedEngine(t, nil), ServerOptions{}, nil)
	id := createSession(t, h)
	path := "/v1/assistant/sessions/" + id + "/feedback"

	w := doJSON(t, h, http.MethodPost, path, FeedbackRequest{FrameworkID: 9, Rating: 1})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodPost, path, FeedbackRequest{FrameworkID: 9, Rating: -1})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_RATED", decode[ErrorResponse](t, w).Code)

	w = doJSON(t, h, http.MethodPost, path, map[string]int{"framework_id": 3, "rating": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, path, FeedbackRequest{FrameworkID: 404, Rating: 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHTTP_Errors(t *testing.T) {
	h := NewHTTPHandler(newLoadedEngine(t, nil), ServerOptions{}, nil)

	w := doJSON(t, h, http.MethodPost, "/v1/assistant/sessions/nope/messages", MessageRequest{Query: "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", decode[ErrorResponse](t, w).Code)

	id := createSession(t, h)
	w = doJSON(t, h, http.MethodPost, "/v1/assistant/sessions/"+id+"/messages", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/v1/assistant/sessions/"+id+"/messages", MessageRequest{Query: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "EMPTY_QUERY", decode[ErrorResponse](t, w).Code)
}

func TestHTTP_Library(t *testing.T) {
	h := NewHTTPHandler(newLoadedEngine(t, nil), ServerOptions{}, nil)

	w := doJSON(t, h, http.MethodGet, "/v1/assistant/frameworks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[LibraryResponse](t, w)
	assert.Equal(t, len(all.Frameworks), all.Total)
	seen := map[string]bool{}
	for _, f := range all.Frameworks {
		assert.False(t, seen[f.DisplayName], "duplicate display name %q", f.DisplayName)
		seen[f.DisplayName] = true
	}

	w = doJSON(t, h, http.MethodGet, "/v1/assistant/frameworks?q=selling&domain=sales", nil)
	require.Equal(t, http.StatusOK, w.Code)
	lib := decode[LibraryResponse](t, w)
	require.Len(t, lib.Frameworks, 2)
	for _, f := range lib.Frameworks {
		assert.Contains(t, f.DisplayName, "Selling")
	}

	w = doJSON(t, h, http.MethodGet, "/v1/assistant/frameworks/9", nil)
	require.Equal(t, http.StatusOK, w.Code)
	fw := decode[FrameworkResponse](t, w)
	assert.Equal(t, "MEDDIC", fw.DisplayName)
	assert.Len(t, fw.Questions, 3)
	assert.Equal(t, []string{"SPIN Selling", "Value Selling Framework"}, fw.Related, "references resolve to display names")
	assert.NotNil(t, fw.Previous)
	assert.NotNil(t, fw.Next)

	assert.Equal(t, http.StatusNotFound, doJSON(t, h, http.MethodGet, "/v1/assistant/frameworks/404", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(t, h, http.MethodGet, "/v1/assistant/frameworks/abc", nil).Code)
}

func TestHTTP_ReadyGuard(t *testing.T) {
	e := newTestEngine(t, staticConfig(t), nil)
	h := NewHTTPHandler(e, ServerOptions{}, nil)

	assert.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/v1/assistant/health", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, doJSON(t, h, http.MethodGet, "/v1/assistant/ready", nil).Code)

	w := doJSON(t, h, http.MethodPost, "/v1/assistant/sessions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "10", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/metrics", nil).Code)
}

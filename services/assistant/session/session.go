// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session holds per-conversation state: the turn history, the
// diagnostic-flow stage machine, the offered and selected frameworks and
// per-framework feedback.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/routing"
)

// Stage is the diagnostic-flow state of a session.
type Stage string

const (
	// StageIdle routes every message normally.
	StageIdle Stage = "idle"

	// StageFrameworkSelection awaits a choice from AvailableFrameworks.
	StageFrameworkSelection Stage = "framework_selection"

	// StageDiagnosticActive treats the next message as answers to the
	// selected framework's diagnostic questions.
	StageDiagnosticActive Stage = "diagnostic_active"

	// StageDiagnosticAnalyzed follows the analysis. It routes like idle.
	StageDiagnosticAnalyzed Stage = "diagnostic_analyzed"
)

// Rating is a thumbs-up or thumbs-down on a framework.
type Rating int

const (
	RatingDown Rating = -1
	RatingUp   Rating = 1
)

// Valid reports whether r is +1 or -1.
func (r Rating) Valid() bool { return r == RatingUp || r == RatingDown }

var (
	// ErrAlreadyRated is returned when a framework was already rated in
	// this session. The first rating is kept.
	ErrAlreadyRated = errors.New("session: framework already rated")

	// ErrInvalidRating is returned for ratings other than +1 and -1.
	ErrInvalidRating = errors.New("session: rating must be +1 or -1")

	// ErrSessionNotFound is returned by stores for unknown or expired ids.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrVersionConflict is returned by stores when a session was saved by
	// someone else since it was loaded.
	ErrVersionConflict = errors.New("session: version conflict")
)

// TurnMetadata records what the router decided for a turn.
type TurnMetadata struct {
	Intent          routing.Intent `json:"intent,omitempty"`
	Confidence      float64        `json:"confidence,omitempty"`
	FrameworksShown []int          `json:"frameworks_shown,omitempty"`
	EnhancedQuery   string         `json:"enhanced_query,omitempty"`
	Stage           Stage          `json:"stage,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// Turn is one message in the conversation.
type Turn struct {
	Role      routing.Role `json:"role"`
	Content   string       `json:"content"`
	Metadata  TurnMetadata `json:"metadata"`
	Timestamp time.Time    `json:"timestamp"`
}

// ViewedFramework is a framework surfaced at least once in the session.
type ViewedFramework struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Session is the state of one conversation.
//
// # Description
//
// Turns are append-only and never reordered. SelectedFrameworkID is nil
// unless a framework was chosen from AvailableFrameworks. Feedback holds at
// most one rating per framework id and a rating is never overwritten.
//
// # Thread Safety
//
// Not safe for concurrent use. A session is driven by one request at a
// time; callers serialize access per session id.
type Session struct {
	ID                  string              `json:"id"`
	Turns               []Turn              `json:"turns"`
	Stage               Stage               `json:"stage"`
	SelectedFrameworkID *int                `json:"selected_framework_id,omitempty"`
	AvailableFrameworks []catalog.Framework `json:"available_frameworks,omitempty"`
	LastQuery           string              `json:"last_query,omitempty"`
	Feedback            map[int]Rating      `json:"feedback,omitempty"`
	FrameworksViewed    []ViewedFramework   `json:"frameworks_viewed,omitempty"`
	QueryCount          int                 `json:"query_count"`
	Version             int64               `json:"version"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// New creates an idle session with a random id.
func New() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		Stage:     StageIdle,
		Feedback:  make(map[int]Rating),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// =============================================================================
// Turns
// =============================================================================

// AddUserTurn appends a user message and records it as the last query.
func (s *Session) AddUserTurn(content string) {
	s.Turns = append(s.Turns, Turn{
		Role:      routing.RoleUser,
		Content:   content,
		Metadata:  TurnMetadata{Stage: s.Stage},
		Timestamp: time.Now().UTC(),
	})
	s.LastQuery = content
	s.QueryCount++
	s.touch()
}

// AddAssistantTurn appends an assistant reply.
func (s *Session) AddAssistantTurn(content string, meta TurnMetadata) {
	if meta.Stage == "" {
		meta.Stage = s.Stage
	}
	s.Turns = append(s.Turns, Turn{
		Role:      routing.RoleAssistant,
		Content:   content,
		Metadata:  meta,
		Timestamp: time.Now().UTC(),
	})
	s.touch()
}

// History returns the turns in the form the routing package consumes.
func (s *Session) History() []routing.Turn {
	out := make([]routing.Turn, len(s.Turns))
	for i, t := range s.Turns {
		out[i] = routing.Turn{
			Role:       t.Role,
			Content:    t.Content,
			Intent:     t.Metadata.Intent,
			Confidence: t.Metadata.Confidence,
		}
	}
	return out
}

// =============================================================================
// Stage Machine
// =============================================================================

// BeginSelection offers frameworks and waits for a choice. Any previous
// selection is cleared. An empty offer leaves the session idle.
func (s *Session) BeginSelection(offered []catalog.Framework) {
	s.AvailableFrameworks = append([]catalog.Framework(nil), offered...)
	s.SelectedFrameworkID = nil
	if len(offered) == 0 {
		s.Stage = StageIdle
	} else {
		s.Stage = StageFrameworkSelection
	}
	s.touch()
}

// TrySelect resolves input against the offered frameworks.
//
// On success the framework becomes the selection and the stage moves to
// diagnostic_active. On failure nothing changes.
func (s *Session) TrySelect(input string) (catalog.Framework, bool) {
	fw, ok := ResolveSelection(input, s.AvailableFrameworks)
	if !ok {
		return catalog.Framework{}, false
	}
	s.Select(fw)
	return fw, true
}

// Select makes fw the selection and activates its diagnostic.
func (s *Session) Select(fw catalog.Framework) {
	id := fw.ID
	s.SelectedFrameworkID = &id
	s.Stage = StageDiagnosticActive
	s.touch()
}

// CompleteDiagnostic marks the analysis as delivered.
func (s *Session) CompleteDiagnostic() {
	s.Stage = StageDiagnosticAnalyzed
	s.touch()
}

// SetIdle returns to normal routing. The offered list and selection are
// kept so feedback and summaries can still refer to them.
func (s *Session) SetIdle() {
	s.Stage = StageIdle
	s.touch()
}

// Selected returns the selected framework id.
func (s *Session) Selected() (int, bool) {
	if s.SelectedFrameworkID == nil {
		return 0, false
	}
	return *s.SelectedFrameworkID, true
}

// Reset clears everything except the id, whatever the current stage.
func (s *Session) Reset() {
	id, created := s.ID, s.CreatedAt
	version := s.Version
	*s = Session{
		ID:        id,
		Stage:     StageIdle,
		Feedback:  make(map[int]Rating),
		CreatedAt: created,
		Version:   version,
	}
	s.touch()
}

// =============================================================================
// Feedback & Stats
// =============================================================================

// RecordFeedback stores a rating for a framework.
//
// Returns ErrInvalidRating for values other than +1 and -1, and
// ErrAlreadyRated when the framework already has a rating; the existing
// rating is kept.
func (s *Session) RecordFeedback(frameworkID int, rating Rating) error {
	if !rating.Valid() {
		return fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}
	if s.Feedback == nil {
		s.Feedback = make(map[int]Rating)
	}
	if _, ok := s.Feedback[frameworkID]; ok {
		return fmt.Errorf("%w: framework %d", ErrAlreadyRated, frameworkID)
	}
	s.Feedback[frameworkID] = rating
	s.touch()
	return nil
}

// Rating returns the rating recorded for a framework.
func (s *Session) Rating(frameworkID int) (Rating, bool) {
	r, ok := s.Feedback[frameworkID]
	return r, ok
}

// MarkViewed adds frameworks to the viewed set, keeping first-seen order.
func (s *Session) MarkViewed(frameworks ...catalog.Framework) {
	for _, f := range frameworks {
		seen := false
		for _, v := range s.FrameworksViewed {
			if v.ID == f.ID {
				seen = true
				break
			}
		}
		if !seen {
			s.FrameworksViewed = append(s.FrameworksViewed, ViewedFramework{ID: f.ID, Name: catalog.DisplayName(f)})
		}
	}
}

// Summary is a compact view of session activity.
type Summary struct {
	ID               string `json:"id"`
	Stage            Stage  `json:"stage"`
	QueryCount       int    `json:"query_count"`
	FrameworksViewed int    `json:"frameworks_viewed"`
	MessagesCount    int    `json:"messages_count"`
	Ratings          int    `json:"ratings"`
	SelectedID       *int   `json:"selected_framework_id,omitempty"`
}

// Summary returns activity counters.
func (s *Session) Summary() Summary {
	return Summary{
		ID:               s.ID,
		Stage:            s.Stage,
		QueryCount:       s.QueryCount,
		FrameworksViewed: len(s.FrameworksViewed),
		MessagesCount:    len(s.Turns),
		Ratings:          len(s.Feedback),
		SelectedID:       s.SelectedFrameworkID,
	}
}

// =============================================================================
// Snapshots
// =============================================================================

// Snapshot returns a deep copy of s.
func (s *Session) Snapshot() *Session {
	c := *s
	c.Turns = make([]Turn, len(s.Turns))
	for i, t := range s.Turns {
		t.Metadata.FrameworksShown = append([]int(nil), t.Metadata.FrameworksShown...)
		c.Turns[i] = t
	}
	if s.SelectedFrameworkID != nil {
		id := *s.SelectedFrameworkID
		c.SelectedFrameworkID = &id
	}
	c.AvailableFrameworks = append([]catalog.Framework(nil), s.AvailableFrameworks...)
	c.FrameworksViewed = append([]ViewedFramework(nil), s.FrameworksViewed...)
	c.Feedback = make(map[int]Rating, len(s.Feedback))
	for k, v := range s.Feedback {
		c.Feedback[k] = v
	}
	return &c
}

// Restore replaces the state of s with snap.
func (s *Session) Restore(snap *Session) {
	*s = *snap.Snapshot()
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}

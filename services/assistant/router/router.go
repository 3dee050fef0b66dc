// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package router turns one user message into one assistant response.
//
// A Router owns no mutable state. Everything conversational lives in the
// session passed to Route, so one Router serves every session and can be
// swapped wholesale when the catalog is reloaded.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/index"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/narrative"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/routing"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/session"
	"github.com/AleutianAI/FrameworkAssistant/services/llm"
)

const tracerName = "assistant.router"

var (
	routeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "router",
			Name:      "route_duration_seconds",
			Help:      "Time to answer one user message, by handled intent.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"intent"},
	)

	routeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "router",
			Name:      "errors_total",
			Help:      "Messages that failed and were rolled back, by cause.",
		},
		[]string{"cause"},
	)
)

// Handled-path labels used in metrics and spans besides intents.
const (
	pathSelection = "SELECTION"
	pathAnalysis  = "ANALYSIS"
)

// DefaultQuestionLimit caps the diagnostic questions listed after a
// selection.
const DefaultQuestionLimit = 5

// maxPromptHistory caps the earlier turns sent to the model with a prompt.
const maxPromptHistory = 6

// Apology is returned to the user when a provider call fails.
const Apology = "Sorry, I couldn't complete that request because the language service is unavailable right now. Please try again in a moment."

// ErrEmptyQuery is returned for blank messages. The session is untouched.
var ErrEmptyQuery = errors.New("router: empty query")

// QueryEmbedder embeds one query into the index's vector space.
// *embedding.Cache satisfies it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Deps are the collaborators a Router needs. All are required.
type Deps struct {
	Index      *index.Index
	Embedder   QueryEmbedder
	Classifier *routing.Classifier
	Enhancer   *routing.Enhancer
	Generator  narrative.Generator

	// TopK bounds displayed search results; <= 0 uses index.DefaultTopK.
	TopK int

	// QuestionLimit bounds the questions listed after a selection; <= 0
	// uses DefaultQuestionLimit.
	QuestionLimit int
}

// Response is what the user sees for one message.
type Response struct {
	Text          string              `json:"response"`
	Frameworks    []catalog.Framework `json:"frameworks"`
	Intent        routing.Intent      `json:"intent,omitempty"`
	Confidence    float64             `json:"confidence"`
	Stage         session.Stage       `json:"stage"`
	EnhancedQuery string              `json:"enhanced_query,omitempty"`
}

// Router dispatches messages to the diagnostic flow or an intent handler.
//
// Thread Safety: Safe for concurrent use across sessions. Calls for the
// same session must be serialized by the caller.
type Router struct {
	index         *index.Index
	embedder      QueryEmbedder
	classifier    *routing.Classifier
	enhancer      *routing.Enhancer
	generator     narrative.Generator
	topK          int
	questionLimit int
	logger        *slog.Logger
}

// New validates deps and returns a Router.
func New(deps Deps, logger *slog.Logger) (*Router, error) {
	switch {
	case deps.Index == nil:
		return nil, fmt.Errorf("router: index is required")
	case deps.Embedder == nil:
		return nil, fmt.Errorf("router: embedder is required")
	case deps.Classifier == nil:
		return nil, fmt.Errorf("router: classifier is required")
	case deps.Enhancer == nil:
		return nil, fmt.Errorf("router: enhancer is required")
	case deps.Generator == nil:
		return nil, fmt.Errorf("router: generator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if deps.TopK <= 0 {
		deps.TopK = index.DefaultTopK
	}
	if deps.QuestionLimit <= 0 {
		deps.QuestionLimit = DefaultQuestionLimit
	}
	return &Router{
		index:         deps.Index,
		embedder:      deps.Embedder,
		classifier:    deps.Classifier,
		enhancer:      deps.Enhancer,
		generator:     deps.Generator,
		topK:          deps.TopK,
		questionLimit: deps.QuestionLimit,
		logger:        logger,
	}, nil
}

// Index returns the index the router searches.
func (r *Router) Index() *index.Index { return r.index }

// Route answers query within sess.
//
// # Description
//
// A pending selection is tried first, then pending diagnostic answers.
// Anything else is enhanced with conversation context, embedded, searched
// and classified, then handed to the handler for its intent. The user
// turn and the assistant turn are both appended to sess.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//   - sess: The conversation. Mutated in place.
//   - query: The raw user message.
//   - filters: Metadata filters for the search step.
//
// # Outputs
//
//   - Response: The reply. On failure it carries the apology text.
//   - error: ErrEmptyQuery for blank input, or a wrapped provider error
//     (llm.ErrRetryExhausted once retries ran out). On a provider error
//     sess is rolled back to its state before the call, then the user turn
//     and the apology are recorded with the error in the turn metadata.
func (r *Router) Route(ctx context.Context, sess *session.Session, query string, filters index.Filters) (Response, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "router.Route")
	defer span.End()
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return Response{Stage: sess.Stage}, ErrEmptyQuery
	}

	snap := sess.Snapshot()
	history := sess.History()
	sess.AddUserTurn(query)

	out, err := r.dispatch(ctx, sess, query, history, filters)
	if err != nil {
		sess.Restore(snap)
		sess.AddUserTurn(query)
		sess.AddAssistantTurn(Apology, session.TurnMetadata{Error: err.Error()})

		cause := "provider"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			cause = "context"
		}
		routeErrorsTotal.WithLabelValues(cause).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "route failed")
		r.logger.Warn("router: message failed, session rolled back",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
		return Response{Text: Apology, Stage: sess.Stage}, fmt.Errorf("router: %w", err)
	}

	shown := make([]int, len(out.Frameworks))
	for i, f := range out.Frameworks {
		shown[i] = f.ID
	}
	sess.MarkViewed(out.Frameworks...)
	sess.AddAssistantTurn(out.Text, session.TurnMetadata{
		Intent:          out.Intent,
		Confidence:      out.Confidence,
		FrameworksShown: shown,
		EnhancedQuery:   out.EnhancedQuery,
	})
	out.Stage = sess.Stage
	if out.Frameworks == nil {
		out.Frameworks = []catalog.Framework{}
	}

	routeDuration.WithLabelValues(out.path).Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("router.path", out.path),
		attribute.String("router.stage", string(sess.Stage)),
		attribute.Int("router.frameworks", len(out.Frameworks)),
		attribute.Bool("router.enhanced", out.EnhancedQuery != ""),
	)
	r.logger.Info("router: answered message",
		slog.String("session_id", sess.ID),
		slog.String("path", out.path),
		slog.Float64("confidence", out.Confidence),
		slog.Int("frameworks", len(out.Frameworks)),
		slog.String("stage", string(sess.Stage)),
	)
	return out.Response, nil
}

// outcome is a handler result plus the label it is recorded under.
type outcome struct {
	Response
	path string
}

func (r *Router) dispatch(ctx context.Context, sess *session.Session, query string, history []routing.Turn, filters index.Filters) (outcome, error) {
	switch sess.Stage {
	case session.StageFrameworkSelection:
		if fw, ok := sess.TrySelect(query); ok {
			return r.confirmSelection(fw), nil
		}
	case session.StageDiagnosticActive:
		if id, ok := sess.Selected(); ok {
			if fw, ok := r.index.GetFrameworkByID(id); ok {
				return r.analyze(ctx, sess, fw, query)
			}
			r.logger.Warn("router: selected framework no longer in catalog",
				slog.String("session_id", sess.ID),
				slog.Int("framework_id", id),
			)
		}
	}
	return r.routeQuery(ctx, sess, query, history, filters)
}

// =============================================================================
// Diagnostic Flow
// =============================================================================

func (r *Router) confirmSelection(fw catalog.Framework) outcome {
	var b strings.Builder
	fmt.Fprintf(&b, "You selected **%s**.\n\n", catalog.DisplayName(fw))
	questions := fw.DisplayQuestions(r.questionLimit)
	if len(questions) == 0 {
		b.WriteString("Describe your situation in one message and I'll analyse it against this framework.")
	} else {
		b.WriteString("Answer these diagnostic questions in one message:\n")
		for i, q := range questions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q)
		}
	}
	return outcome{
		Response: Response{
			Text:       strings.TrimRight(b.String(), "\n"),
			Frameworks: []catalog.Framework{fw},
			Intent:     routing.IntentDiagnostic,
			Confidence: 1,
		},
		path: pathSelection,
	}
}

func (r *Router) analyze(ctx context.Context, sess *session.Session, fw catalog.Framework, answers string) (outcome, error) {
	text, err := r.generate(ctx, sess, narrative.KindDiagnosticAnalysis, narrative.Data{
		Query:     problemStatement(sess),
		Framework: fw,
		Answers:   answers,
	})
	if err != nil {
		return outcome{}, err
	}
	sess.CompleteDiagnostic()
	return outcome{
		Response: Response{Text: text, Intent: routing.IntentDiagnostic, Confidence: 1},
		path:     pathAnalysis,
	}, nil
}

// problemStatement returns the user message that started the current
// diagnostic: the last user turn recorded while the session was idle or
// analyzed.
func problemStatement(sess *session.Session) string {
	for i := len(sess.Turns) - 1; i >= 0; i-- {
		t := sess.Turns[i]
		if t.Role != routing.RoleUser {
			continue
		}
		switch t.Metadata.Stage {
		case session.StageIdle, session.StageDiagnosticAnalyzed:
			return t.Content
		}
	}
	return ""
}

// =============================================================================
// Intent Routing
// =============================================================================

// request is the per-message state shared by intent handlers.
type request struct {
	query       string
	enhancement routing.Enhancement
	filters     index.Filters
	results     []index.SearchResult // top-k
	eligible    int                  // results before the top-k cut
	class       routing.Classification
}

func (q *request) top() (catalog.Framework, bool) {
	if len(q.results) == 0 {
		return catalog.Framework{}, false
	}
	return q.results[0].Framework, true
}

func (r *Router) routeQuery(ctx context.Context, sess *session.Session, query string, history []routing.Turn, filters index.Filters) (outcome, error) {
	enh := r.enhancer.Enhance(query, history)

	vec, err := r.embedder.EmbedQuery(ctx, enh.Query)
	if err != nil {
		return outcome{}, err
	}
	all, err := r.index.Search(ctx, vec, filters, r.index.Len())
	if err != nil {
		return outcome{}, err
	}
	req := &request{query: query, enhancement: enh, filters: filters, eligible: len(all), results: all}
	if len(all) > r.topK {
		req.results = all[:r.topK]
	}

	var topSim float64
	if len(req.results) > 0 {
		topSim = req.results[0].Similarity
	}
	// The enhanced text carries the reattached context, so a bare "what
	// else" is classified against the problem it follows up on.
	req.class = r.classifier.Classify(ctx, enh.Query, history, routing.Evidence{TopSimilarity: topSim})

	var out outcome
	if len(req.results) == 0 && !answersByName(req.class) {
		sess.SetIdle()
		out = outcome{Response: Response{Text: nothingMatched(filters)}}
	} else {
		switch req.class.Intent {
		case routing.IntentDiscovery:
			out, err = r.discover(ctx, sess, req)
		case routing.IntentDetails:
			out, err = r.details(ctx, sess, req)
		case routing.IntentSequencing:
			out, err = r.sequence(ctx, sess, req)
		case routing.IntentComparison:
			out, err = r.compare(ctx, sess, req)
		default:
			out, err = r.offerDiagnostic(ctx, sess, req)
		}
		if err != nil {
			return outcome{}, err
		}
	}

	out.Intent = req.class.Intent
	out.Confidence = req.class.Confidence
	out.path = string(req.class.Intent)
	if enh.Enhanced {
		out.EnhancedQuery = enh.Query
	}
	return out, nil
}

// offerDiagnostic handles DIAGNOSTIC and UNKNOWN: it lists the best matches
// and waits for the user to pick one.
func (r *Router) offerDiagnostic(ctx context.Context, sess *session.Session, req *request) (outcome, error) {
	offered := catalog.DedupByDisplayName(frameworksOf(req.results))
	text, err := r.generate(ctx, sess, narrative.KindDiagnosticOffer, narrative.Data{
		Query:      req.query,
		Frameworks: offered,
	})
	if err != nil {
		return outcome{}, err
	}
	sess.BeginSelection(offered)
	return outcome{Response: Response{Text: text, Frameworks: offered}}, nil
}

func (r *Router) discover(ctx context.Context, sess *session.Session, req *request) (outcome, error) {
	shown := catalog.DedupByDisplayName(frameworksOf(req.results))
	text, err := r.generate(ctx, sess, narrative.KindDiscovery, narrative.Data{
		Query:         req.query,
		Frameworks:    shown,
		Total:         req.eligible,
		FilterSummary: FilterSummary(req.filters),
	})
	if err != nil {
		return outcome{}, err
	}
	sess.SetIdle()
	return outcome{Response: Response{Text: text, Frameworks: shown}}, nil
}

func (r *Router) details(ctx context.Context, sess *session.Session, req *request) (outcome, error) {
	fw, ok := r.anchor(req)
	sess.SetIdle()
	if !ok {
		return outcome{Response: Response{Text: clarifyDetails}}, nil
	}
	text, err := r.generate(ctx, sess, narrative.KindDetails, narrative.Data{Query: req.query, Framework: fw})
	if err != nil {
		return outcome{}, err
	}
	return outcome{Response: Response{Text: text, Frameworks: []catalog.Framework{fw}}}, nil
}

func (r *Router) sequence(ctx context.Context, sess *session.Session, req *request) (outcome, error) {
	fw, ok := r.anchor(req)
	sess.SetIdle()
	if !ok {
		return outcome{Response: Response{Text: clarifySequencing}}, nil
	}
	related := r.related(fw)
	text, err := r.generate(ctx, sess, narrative.KindSequencing, narrative.Data{
		Query:     req.query,
		Framework: fw,
		Related:   related,
	})
	if err != nil {
		return outcome{}, err
	}
	shown := append([]catalog.Framework{fw}, related...)
	return outcome{Response: Response{Text: text, Frameworks: shown}}, nil
}

func (r *Router) compare(ctx context.Context, sess *session.Session, req *request) (outcome, error) {
	sess.SetIdle()
	a, b, ok := r.pair(req)
	if !ok {
		return outcome{Response: Response{Text: clarifyComparison}}, nil
	}
	data := narrative.Data{Query: req.query, Framework: a, Other: b}
	if req.enhancement.Enhanced {
		data.Scenario = req.enhancement.Context
	}
	text, err := r.generate(ctx, sess, narrative.KindComparison, data)
	if err != nil {
		return outcome{}, err
	}
	return outcome{Response: Response{Text: text, Frameworks: []catalog.Framework{a, b}}}, nil
}

// anchor picks the framework a DETAILS or SEQUENCING query is about: the
// first named framework, else the top search result.
func (r *Router) anchor(req *request) (catalog.Framework, bool) {
	for _, name := range req.class.Names {
		if fw, ok := r.index.GetFrameworkByName(name); ok {
			return fw, true
		}
	}
	return req.top()
}

// pair picks the two frameworks to compare: two named frameworks, or one
// named framework and the best result that is a different framework.
func (r *Router) pair(req *request) (catalog.Framework, catalog.Framework, bool) {
	var named []catalog.Framework
	for _, name := range req.class.Names {
		fw, ok := r.index.GetFrameworkByName(name)
		if !ok || containsID(named, fw.ID) {
			continue
		}
		named = append(named, fw)
		if len(named) == 2 {
			return named[0], named[1], true
		}
	}
	if len(named) == 1 {
		for _, res := range req.results {
			if res.ID() != named[0].ID {
				return named[0], res.Framework, true
			}
		}
	}
	return catalog.Framework{}, catalog.Framework{}, false
}

// related resolves fw's related references (ids or names) against the
// catalog, skipping unknown references, fw itself and duplicates.
func (r *Router) related(fw catalog.Framework) []catalog.Framework {
	return catalog.ResolveRelated(r.index.Catalog(), fw)
}

// answersByName reports whether class can be served from the names it
// carries when no framework passed the filters. Only lookups of a named
// framework qualify; everything else needs search results.
func answersByName(class routing.Classification) bool {
	if len(class.Names) == 0 {
		return false
	}
	switch class.Intent {
	case routing.IntentDetails, routing.IntentSequencing, routing.IntentComparison:
		return true
	}
	return false
}

func (r *Router) generate(ctx context.Context, sess *session.Session, kind narrative.Kind, data narrative.Data) (string, error) {
	if data.Catalog == nil {
		data.Catalog = r.index.Catalog()
	}
	prompt, err := narrative.Build(kind, data)
	if err != nil {
		return "", err
	}
	prompt.History = promptHistory(sess)
	return r.generator.Generate(ctx, prompt)
}

// promptHistory returns the conversation before the current message, most
// recent maxPromptHistory turns only.
func promptHistory(sess *session.Session) []llm.Message {
	turns := sess.Turns
	if n := len(turns); n > 0 && turns[n-1].Role == routing.RoleUser {
		turns = turns[:n-1]
	}
	if len(turns) > maxPromptHistory {
		turns = turns[len(turns)-maxPromptHistory:]
	}
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		out = append(out, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	return out
}

func frameworksOf(results []index.SearchResult) []catalog.Framework {
	out := make([]catalog.Framework, len(results))
	for i, res := range results {
		out[i] = res.Framework
	}
	return out
}

func containsID(frameworks []catalog.Framework, id int) bool {
	for _, f := range frameworks {
		if f.ID == id {
			return true
		}
	}
	return false
}

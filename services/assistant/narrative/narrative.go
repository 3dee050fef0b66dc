// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package narrative turns structured framework facts into user-facing
// prose. Prompts are rendered from embedded templates, one per response
// situation, and sent to a chat model or rendered locally.
package narrative

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog"
	"github.com/AleutianAI/FrameworkAssistant/services/llm"
)

//go:embed templates/*.tmpl templates/static/*.tmpl
var templateFS embed.FS

// Kind names one of the six response situations.
type Kind string

const (
	KindDiagnosticOffer    Kind = "diagnostic_offer"
	KindDiagnosticAnalysis Kind = "diagnostic_analysis"
	KindDiscovery          Kind = "discovery"
	KindDetails            Kind = "details"
	KindSequencing         Kind = "sequencing"
	KindComparison         Kind = "comparison"
)

// Kinds lists every response situation.
var Kinds = []Kind{
	KindDiagnosticOffer,
	KindDiagnosticAnalysis,
	KindDiscovery,
	KindDetails,
	KindSequencing,
	KindComparison,
}

// Long reports whether k gets the long token budget.
func (k Kind) Long() bool {
	switch k {
	case KindDiagnosticAnalysis, KindDetails, KindSequencing, KindComparison:
		return true
	}
	return false
}

// Data fills a template's slots. Which fields are read depends on Kind.
type Data struct {
	Query         string
	Frameworks    []catalog.Framework // offer and discovery lists
	Framework     catalog.Framework   // analysis, details, sequencing anchor, comparison A
	Other         catalog.Framework   // comparison B
	Related       []catalog.Framework // sequencing neighbours
	Answers       string
	Scenario      string
	Total         int
	FilterSummary string

	// Catalog resolves related-framework references to display names.
	// When nil, references are shown as written.
	Catalog catalog.Store
}

// RelatedLabels returns display labels for f's related frameworks.
func (d Data) RelatedLabels(f catalog.Framework) []string {
	return catalog.RelatedLabels(d.Catalog, f)
}

// RelatedLabel joins RelatedLabels for a template slot.
func (d Data) RelatedLabel(f catalog.Framework) string {
	return strings.Join(d.RelatedLabels(f), ", ")
}

// Details renders f's fields with related frameworks resolved.
func (d Data) Details(f catalog.Framework) string {
	return FormatFrameworkDetails(f, d.RelatedLabels(f))
}

// Prompt is a rendered request for narrative text.
type Prompt struct {
	Kind   Kind
	System string
	User   string

	// History holds earlier conversation turns, oldest first. It is sent
	// between the system and user messages.
	History []llm.Message

	Data Data
}

var funcs = template.FuncMap{
	"displayName":   catalog.DisplayName,
	"frameworkList": FormatFrameworkList,
	"inc":           func(i int) int { return i + 1 },
	"truncate":      truncate,
	"join":          strings.Join,
}

var (
	promptTemplates = template.Must(template.New("prompts").Funcs(funcs).ParseFS(templateFS, "templates/*.tmpl"))
	staticTemplates = template.Must(template.New("static").Funcs(funcs).ParseFS(templateFS, "templates/static/*.tmpl"))
)

// Build renders the model prompt for kind.
func Build(kind Kind, data Data) (Prompt, error) {
	system, err := render(promptTemplates, "system")
	if err != nil {
		return Prompt{}, err
	}
	user, err := render(promptTemplates, string(kind), data)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{Kind: kind, System: system, User: user, Data: data}, nil
}

// RenderStatic renders the model-free response for kind.
func RenderStatic(kind Kind, data Data) (string, error) {
	return render(staticTemplates, string(kind), data)
}

func render(set *template.Template, name string, data ...any) (string, error) {
	t := set.Lookup(name + ".tmpl")
	if t == nil {
		return "", fmt.Errorf("narrative: no template %q", name)
	}
	var arg any
	if len(data) > 0 {
		arg = data[0]
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, arg); err != nil {
		return "", fmt.Errorf("narrative: render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func truncate(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return strings.TrimSpace(string(r[:max])) + "..."
}

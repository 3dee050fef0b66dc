// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog"
)

// Gruvbox-inspired palette.
var (
	colorGreen  = lipgloss.Color("#8ec07c")
	colorYellow = lipgloss.Color("#fabd2f")
	colorRed    = lipgloss.Color("#fb4934")
	colorBlue   = lipgloss.Color("#83a598")
	colorDim    = lipgloss.Color("#928374")
	colorHeader = lipgloss.Color("#fe8019")
)

var (
	styleGreen  = lipgloss.NewStyle().Foreground(colorGreen)
	styleYellow = lipgloss.NewStyle().Foreground(colorYellow)
	styleRed    = lipgloss.NewStyle().Foreground(colorRed)
	styleBlue   = lipgloss.NewStyle().Foreground(colorBlue)
	styleDim    = lipgloss.NewStyle().Foreground(colorDim)
	styleHeader = lipgloss.NewStyle().Foreground(colorHeader).Bold(true)
	styleBold   = lipgloss.NewStyle().Bold(true)
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// printer writes styled output when color is on and plain text otherwise.
type printer struct {
	w     io.Writer
	color bool
}

func (c *cli) printer() printer { return printer{w: c.out, color: c.color} }

func (p printer) style(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

func (p printer) println(args ...any) {
	fmt.Fprintln(p.w, args...)
}

// header renders an upper-cased section title with an underline.
func (p printer) header(text string) {
	upper := strings.ToUpper(text)
	p.println(p.style(styleHeader, upper))
	p.println(p.style(styleDim, strings.Repeat("─", len([]rune(upper)))))
}

func (p printer) dim(text string) string   { return p.style(styleDim, text) }
func (p printer) bold(text string) string  { return p.style(styleBold, text) }
func (p printer) warn(text string) string  { return p.style(styleYellow, text) }
func (p printer) fail(text string) string  { return p.style(styleRed, text) }
func (p printer) ok(text string) string    { return p.style(styleGreen, text) }
func (p printer) label(text string) string { return p.style(styleBlue, text) }

// frameworkLine is the one-line listing form: "  #9  MEDDIC  [sales, methodology, Intermediate]".
func (p printer) frameworkLine(f catalog.Framework) string {
	var tags []string
	tags = append(tags, f.Domains()...)
	if f.Type != "" {
		tags = append(tags, f.Type)
	}
	if d := f.Difficulty(); d != "" {
		tags = append(tags, d)
	}
	line := fmt.Sprintf("  %s  %s", p.dim(fmt.Sprintf("#%-3d", f.ID)), p.bold(catalog.DisplayName(f)))
	if len(tags) > 0 {
		line += "  " + p.dim("["+strings.Join(tags, ", ")+"]")
	}
	return line
}

// frameworkCard renders the detailed view of one framework. Related
// references are resolved against cat.
func (p printer) frameworkCard(cat catalog.Store, f catalog.Framework, questionLimit int) {
	p.header(catalog.DisplayName(f))
	field := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		p.printf("%s %s\n", p.label(name+":"), value)
	}
	field("ID", fmt.Sprint(f.ID))
	field("Type", f.Type)
	field("Difficulty", f.Difficulty())
	field("Domains", strings.Join(f.Domains(), ", "))
	field("Use case", f.UseCase)
	field("Symptoms", f.ProblemSymptoms)
	field("Red flags", f.RedFlagIndicators)
	field("Levers", f.Levers)
	field("Related", strings.Join(catalog.RelatedLabels(cat, f), ", "))
	if qs := f.DisplayQuestions(questionLimit); len(qs) > 0 {
		p.println(p.label("Diagnostic questions:"))
		for i, q := range qs {
			p.printf("  %d. %s\n", i+1, q)
		}
	}
}

// formatSample returns the first n values of a vector as a bracketed string.
func formatSample(v []float32, n int) string {
	if len(v) == 0 {
		return "[]"
	}
	if n > len(v) {
		n = len(v)
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("%+.4f", v[i])
	}
	suffix := ""
	if len(v) > n {
		suffix = " ..."
	}
	return "[" + strings.Join(parts, ", ") + suffix + "]"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB (%d bytes)", float64(n)/1024/1024, n)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB (%d bytes)", float64(n)/1024, n)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// plural returns singular or plural suffix based on count.
func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

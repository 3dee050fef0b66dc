// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Row is one raw catalog record keyed by normalized column name.
type Row map[string]string

// normalizeColumn lowercases a header and joins words with underscores so
// "Business Domains" and "business_domains" name the same field.
func normalizeColumn(col string) string {
	col = strings.ToLower(strings.TrimSpace(col))
	col = strings.Join(strings.Fields(col), "_")
	return strings.ReplaceAll(col, "-", "_")
}

// requireColumns fails unless every required column is present.
func requireColumns(columns []string) error {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[normalizeColumn(c)] = true
	}
	for _, req := range []string{"id", "name"} {
		if !have[req] {
			return fmt.Errorf("%w: missing required column %q", ErrCatalogMalformed, req)
		}
	}
	return nil
}

// parseID accepts integer ids, including integral floats such as "12.0"
// written by spreadsheet exports.
func parseID(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty id", ErrCatalogMalformed)
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: non-integer id %q", ErrCatalogMalformed, raw)
	}
	return int(f), nil
}

// FrameworkFromRow maps a raw row onto a Framework. Unknown columns are ignored.
func FrameworkFromRow(row Row) (Framework, error) {
	id, err := parseID(row["id"])
	if err != nil {
		return Framework{}, err
	}
	f := Framework{ID: id}
	for col, val := range row {
		val = strings.TrimSpace(val)
		switch col {
		case "name":
			f.Name = val
		case "type":
			f.Type = val
		case "difficulty_level", "difficulty":
			f.DifficultyLevel = val
		case "business_domains", "domains":
			f.BusinessDomains = val
		case "use_case":
			f.UseCase = val
		case "problem_symptoms":
			f.ProblemSymptoms = val
		case "diagnostic_questions":
			f.DiagnosticQuestions = val
		case "red_flag_indicators", "red_flags":
			f.RedFlagIndicators = val
		case "levers":
			f.Levers = val
		case "related_frameworks":
			f.RelatedFrameworks = val
		case "related_canon":
			f.RelatedCanon = val
		case "skills_required":
			f.SkillsRequired = val
		case "lifecycle_stages":
			f.LifecycleStages = val
		case "inputs_required":
			f.InputsRequired = val
		case "outputs_artifacts":
			f.OutputsArtifacts = val
		case "priority_level":
			f.PriorityLevel = val
		case "notes":
			f.Notes = val
		}
	}
	return f, nil
}

// ReadFrameworks reads every record from path without enforcing catalog
// invariants, so data-quality tooling can inspect duplicates.
//
// # Description
//
// The format is chosen by extension: .db, .sqlite and .sqlite3 are read
// from the "frameworks" table; .csv is read as a header-first CSV file.
//
// # Outputs
//
//   - []Framework: Records in source order.
//   - error: ErrCatalogNotFound when path does not exist, ErrCatalogMalformed
//     for unreadable structure or bad ids.
func ReadFrameworks(ctx context.Context, path string) ([]Framework, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCatalogNotFound, path)
		}
		return nil, fmt.Errorf("catalog: stat %s: %w", path, err)
	}

	var rows []Row
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		rows, err = readSQLiteRows(ctx, path)
	case ".csv":
		rows, err = readCSVRows(path)
	default:
		return nil, fmt.Errorf("%w: unsupported catalog format %q", ErrCatalogMalformed, filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	out := make([]Framework, 0, len(rows))
	for i, row := range rows {
		f, err := FrameworkFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("catalog: record %d: %w", i+1, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// Load reads path and builds a validated Catalog.
func Load(ctx context.Context, path string) (*Catalog, error) {
	frameworks, err := ReadFrameworks(ctx, path)
	if err != nil {
		return nil, err
	}
	c, err := New(frameworks)
	if err != nil {
		return nil, err
	}
	if c.Len() == 0 {
		slog.Warn("catalog is empty", slog.String("path", path))
	}
	slog.Info("catalog loaded", slog.String("path", path), slog.Int("frameworks", c.Len()))
	return c.WithSource(path), nil
}

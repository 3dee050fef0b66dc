// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package feedback appends framework ratings to a rotating JSON Lines log.
//
// The log is append-only across sessions and never deduplicated; one
// rating per framework per session is enforced by the session itself.
package feedback

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Record is one logged rating.
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	SessionID   string    `json:"session_id,omitempty"`
	Query       string    `json:"query"`
	FrameworkID int       `json:"framework_id"`
	Rating      int       `json:"rating"`
}

// Log accepts feedback records.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Log interface {
	Append(ctx context.Context, r Record) error
	Close() error
}

// Rotation bounds the on-disk log.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultRotation keeps five 10 MB files for 90 days.
func DefaultRotation() Rotation {
	return Rotation{MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 90, Compress: true}
}

// FileLog writes one JSON object per line to a rotating file.
type FileLog struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
	now    func() time.Time
}

// NewFileLog opens (creating parent directories) the log at path.
func NewFileLog(path string, rot Rotation) (*FileLog, error) {
	if path == "" {
		return nil, fmt.Errorf("feedback: log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("feedback: create log dir: %w", err)
	}
	return &FileLog{
		writer: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    rot.MaxSizeMB,
			MaxBackups: rot.MaxBackups,
			MaxAge:     rot.MaxAgeDays,
			Compress:   rot.Compress,
		},
		now: time.Now,
	}, nil
}

// Append writes r, stamping it with the current time when unset.
func (l *FileLog) Append(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Rating != 1 && r.Rating != -1 {
		return fmt.Errorf("feedback: rating must be +1 or -1, got %d", r.Rating)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = l.now().UTC()
	}
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("feedback: encode: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.writer.Write(line); err != nil {
		return fmt.Errorf("feedback: write: %w", err)
	}
	return nil
}

// Close closes the current log file.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writer.Close()
}

// Discard drops every record. Used when feedback logging is disabled.
type Discard struct{}

func (Discard) Append(context.Context, Record) error { return nil }
func (Discard) Close() error                         { return nil }

// ReadRecords decodes a JSON Lines stream. Blank lines are skipped.
func ReadRecords(r io.Reader) ([]Record, error) {
	var out []Record
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("feedback: line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("feedback: read: %w", err)
	}
	return out, nil
}

// Tally is the rating total for one framework.
type Tally struct {
	FrameworkID int `json:"framework_id"`
	Up          int `json:"up"`
	Down        int `json:"down"`
}

// Summarize counts ratings per framework, ordered by first appearance.
func Summarize(records []Record) []Tally {
	index := map[int]int{}
	var out []Tally
	for _, r := range records {
		i, ok := index[r.FrameworkID]
		if !ok {
			i = len(out)
			index[r.FrameworkID] = i
			out = append(out, Tally{FrameworkID: r.FrameworkID})
		}
		if r.Rating > 0 {
			out[i].Up++
		} else {
			out[i].Down++
		}
	}
	return out
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package feedback

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLog_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "feedback.jsonl")
	log, err := NewFileLog(path, DefaultRotation())
	require.NoError(t, err)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	log.now = func() time.Time { return fixed }

	ctx := context.Background()
	require.NoError(t, log.Append(ctx, Record{SessionID: "s1", Query: "low conversion", FrameworkID: 9, Rating: 1}))
	require.NoError(t, log.Append(ctx, Record{SessionID: "s2", Query: "low conversion", FrameworkID: 9, Rating: -1}))
	require.NoError(t, log.Append(ctx, Record{SessionID: "s2", Query: "churn", FrameworkID: 15, Rating: 1}))
	assert.Error(t, log.Append(ctx, Record{FrameworkID: 15, Rating: 0}))
	require.NoError(t, log.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	records, err := ReadRecords(f)
	require.NoError(t, err)
	require.Len(t, records, 3, "log is append-only and not deduplicated")
	assert.Equal(t, fixed, records[0].Timestamp)
	assert.Equal(t, "s1", records[0].SessionID)

	assert.Equal(t, []Tally{{FrameworkID: 9, Up: 1, Down: 1}, {FrameworkID: 15, Up: 1}}, Summarize(records))
}

func TestFileLog_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	log, err := NewFileLog(path, Rotation{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, log.Append(context.Background(), Record{FrameworkID: i, Rating: 1}))
		}()
	}
	wg.Wait()
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	records, err := ReadRecords(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Len(t, records, 20)
}

func TestReadRecords_Malformed(t *testing.T) {
	_, err := ReadRecords(strings.NewReader("{\"framework_id\":1}\n\nnot json\n"))
	assert.ErrorContains(t, err, "line 3")
}

func TestNewFileLog_RequiresPath(t *testing.T) {
	_, err := NewFileLog("", DefaultRotation())
	assert.Error(t, err)
	assert.NoError(t, Discard{}.Append(context.Background(), Record{}))
}

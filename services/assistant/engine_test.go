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
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog/catalogtest"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/config"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/feedback"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/index"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/router"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/session"
)

func staticConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Provider = config.ProviderStatic
	cfg.Embedding.Dimensions = 64
	cfg.VectorCacheDir = ""
	return cfg
}

func newTestEngine(t *testing.T, cfg config.Config, fb feedback.Log) *Engine {
	t.Helper()
	backend, err := NewBackend(cfg, nil, nil)
	require.NoError(t, err)
	e, err := NewEngine(context.Background(), Options{Config: cfg, Backend: backend, Feedback: fb})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func newLoadedEngine(t *testing.T, fb feedback.Log) *Engine {
	t.Helper()
	e := newTestEngine(t, staticConfig(t), fb)
	require.NoError(t, e.Install(context.Background(), catalogtest.Catalog()))
	return e
}

func TestNewBackend_Static(t *testing.T) {
	b, err := NewBackend(staticConfig(t), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, config.ProviderStatic, b.Name)
	assert.Equal(t, "static:hash", b.EmbeddingModel)
}

func TestNewBackend_OpenAIWithoutKey(t *testing.T) {
	cfg := staticConfig(t)
	cfg.Provider = config.ProviderOpenAI
	_, err := NewBackend(cfg, nil, nil)
	assert.Error(t, err)
}

func TestEngine_NotReady(t *testing.T) {
	e := newTestEngine(t, staticConfig(t), nil)
	assert.False(t, e.Ready())
	s, err := e.NewSession(context.Background())
	require.NoError(t, err)
	_, err = e.Send(context.Background(), s.ID, "hello there", index.Filters{})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestEngine_SendPersistsSession(t *testing.T) {
	e := newLoadedEngine(t, nil)
	ctx := context.Background()
	s, err := e.NewSession(ctx)
	require.NoError(t, err)

	resp, err := e.Send(ctx, s.ID, "Our sales team is struggling with low conversion", index.Filters{Domains: []string{"Sales"}})
	require.NoError(t, err)
	assert.Equal(t, session.StageFrameworkSelection, resp.Stage)

	stored, err := e.Session(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StageFrameworkSelection, stored.Stage)
	assert.Len(t, stored.Turns, 2)

	_, err = e.Send(ctx, s.ID, "   ", index.Filters{})
	assert.ErrorIs(t, err, router.ErrEmptyQuery)

	_, err = e.Send(ctx, "missing", "hello", index.Filters{})
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestEngine_RateOncePerFramework(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	fb, err := feedback.NewFileLog(path, feedback.DefaultRotation())
	require.NoError(t, err)
	e := newLoadedEngine(t, fb)
	ctx := context.Background()

	s, err := e.NewSession(ctx)
	require.NoError(t, err)
	_, err = e.Send(ctx, s.ID, "Compare SPIN Selling vs MEDDIC", index.Filters{})
	require.NoError(t, err)

	require.NoError(t, e.Rate(ctx, s.ID, 9, session.RatingUp))
	assert.ErrorIs(t, e.Rate(ctx, s.ID, 9, session.RatingDown), session.ErrAlreadyRated)
	assert.ErrorIs(t, e.Rate(ctx, s.ID, 999, session.RatingUp), ErrFrameworkNotFound)
	assert.ErrorIs(t, e.Rate(ctx, s.ID, 3, session.Rating(0)), session.ErrInvalidRating)

	stored, err := e.Session(ctx, s.ID)
	require.NoError(t, err)
	r, ok := stored.Rating(9)
	require.True(t, ok)
	assert.Equal(t, session.RatingUp, r)

	require.NoError(t, fb.Close())
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	records, err := feedback.ReadRecords(f)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, s.ID, records[0].SessionID)
	assert.Equal(t, "Compare SPIN Selling vs MEDDIC", records[0].Query)
	assert.Equal(t, 1, records[0].Rating)
}

// flakyLog fails appends while err is set.
type flakyLog struct {
	mu      sync.Mutex
	err     error
	records []feedback.Record
}

func (l *flakyLog) Append(_ context.Context, r feedback.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.records = append(l.records, r)
	return nil
}

func (l *flakyLog) Close() error { return nil }

func TestEngine_RateFailedAppendKeepsFrameworkRateable(t *testing.T) {
	fb := &flakyLog{err: errors.New("disk full")}
	e := newLoadedEngine(t, fb)
	ctx := context.Background()
	s, err := e.NewSession(ctx)
	require.NoError(t, err)

	err = e.Rate(ctx, s.ID, 9, session.RatingDown)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	stored, err := e.Session(ctx, s.ID)
	require.NoError(t, err)
	_, rated := stored.Rating(9)
	assert.False(t, rated, "a rating the log never received is not kept")

	fb.err = nil
	require.NoError(t, e.Rate(ctx, s.ID, 9, session.RatingUp))
	require.Len(t, fb.records, 1)
	assert.Equal(t, 1, fb.records[0].Rating)

	stored, err = e.Session(ctx, s.ID)
	require.NoError(t, err)
	r, ok := stored.Rating(9)
	require.True(t, ok)
	assert.Equal(t, session.RatingUp, r)
}

func TestEngine_Reset(t *testing.T) {
	e := newLoadedEngine(t, nil)
	ctx := context.Background()
	s, err := e.NewSession(ctx)
	require.NoError(t, err)
	_, err = e.Send(ctx, s.ID, "Our sales team is struggling with low conversion", index.Filters{})
	require.NoError(t, err)

	reset, err := e.Reset(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, reset.ID)
	assert.Equal(t, session.StageIdle, reset.Stage)
	assert.Empty(t, reset.Turns)
	assert.Empty(t, reset.AvailableFrameworks)
}

func TestEngine_SerializesPerSession(t *testing.T) {
	e := newLoadedEngine(t, nil)
	ctx := context.Background()
	s, err := e.NewSession(ctx)
	require.NoError(t, err)

	const n = 12
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Send(ctx, s.ID, "show me frameworks", index.Filters{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := e.Session(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, n, stored.QueryCount, "no update may be lost")
	assert.Len(t, stored.Turns, 2*n)
	assert.Zero(t, e.locks.Len())
}

func TestEngine_LoadAndWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frameworks.csv")
	header := "ID,Name,Business Domains,Difficulty Level,Use Case\n"
	require.NoError(t, os.WriteFile(path, []byte(header+
		"9,MEDDIC,Sales,intermediate,Qualify complex deals\n"), 0o644))

	cfg := staticConfig(t)
	cfg.CatalogPath = path
	e := newTestEngine(t, cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, e.Load(ctx))
	cat, err := e.Catalog()
	require.NoError(t, err)
	assert.Equal(t, 1, cat.Len())

	go func() { _ = e.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(header+
		"9,MEDDIC,Sales,intermediate,Qualify complex deals\n"+
		"3,SPIN Selling,Sales,intermediate,Discovery questioning\n"), 0o644))

	assert.Eventually(t, func() bool {
		cat, err := e.Catalog()
		return err == nil && cat.Len() == 2
	}, 5*time.Second, 50*time.Millisecond)

	// Successive edits each reload; none is dropped.
	require.NoError(t, os.WriteFile(path, []byte(header+
		"9,MEDDIC,Sales,intermediate,Qualify complex deals\n"+
		"3,SPIN Selling,Sales,intermediate,Discovery questioning\n"+
		"7,Challenger Sale,Sales,advanced,Teach and tailor\n"), 0o644))
	assert.Eventually(t, func() bool {
		cat, err := e.Catalog()
		return err == nil && cat.Len() == 3
	}, 5*time.Second, 50*time.Millisecond)
}

func TestEngine_LoadMissingCatalog(t *testing.T) {
	cfg := staticConfig(t)
	cfg.CatalogPath = filepath.Join(t.TempDir(), "missing.db")
	e := newTestEngine(t, cfg, nil)
	assert.Error(t, e.Load(context.Background()))
	assert.False(t, e.Ready())
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.Len())

	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		close(acquired)
		unlock()
	}()
	select {
	case <-acquired:
		t.Fatal("second lock on the same key must wait")
	case <-time.After(50 * time.Millisecond):
	}
	unlockA()
	<-acquired
	unlockB()
	assert.Eventually(t, func() bool { return k.Len() == 0 }, time.Second, 10*time.Millisecond)
}

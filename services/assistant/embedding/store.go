// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embedding

// =============================================================================
// VectorStore: Embedding Persistence
// =============================================================================
//
// Framework vectors are expensive to compute (one provider call per batch of
// frameworks) but change only when the catalog or the embedding model
// changes. They are persisted in BadgerDB between runs.
//
// Storage layout:
//
//	framework/emb/v1/{model}  →  gob-encoded Snapshot
//	                             (framework id → unit-normalized vector,
//	                              plus the corpus hash it was built from)
//
// Entries never expire. Staleness is decided by the Cache by comparing the
// stored corpus hash and id set with the live catalog.

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// vectorKeyPrefix is prepended to the model name to form the BadgerDB key.
// Versioned (v1) to allow future format changes without collision.
const vectorKeyPrefix = "framework/emb/v1/"

var errCacheMiss = errors.New("cache miss")

// Snapshot is one persisted set of framework vectors.
type Snapshot struct {
	Model      string
	CorpusHash string
	Dimensions int
	Vectors    map[int][]float32
	CreatedAt  time.Time
}

// IDs returns the framework ids in the snapshot, ascending.
func (s *Snapshot) IDs() []int {
	ids := make([]int, 0, len(s.Vectors))
	for id := range s.Vectors {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// VectorStore persists framework vector snapshots.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type VectorStore interface {
	// Load returns (nil, nil) when nothing is stored for model.
	Load(ctx context.Context, model string) (*Snapshot, error)

	// Save replaces the snapshot stored for snap.Model.
	Save(ctx context.Context, snap *Snapshot) error

	// Delete removes the snapshot for model. Deleting a missing entry is
	// not an error.
	Delete(ctx context.Context, model string) error

	// List returns every stored snapshot, ordered by model.
	List(ctx context.Context) ([]*Snapshot, error)
}

// =============================================================================
// DB
// =============================================================================

// DB wraps a BadgerDB handle with context-aware transaction helpers.
//
// # Thread Safety
//
// Safe for concurrent use. BadgerDB transactions are per-goroutine.
type DB struct {
	db *badger.DB
}

// OpenDB opens (creating if needed) a BadgerDB directory at dir.
func OpenDB(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("embedding: create cache dir: %w", err)
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("embedding: open badger at %s: %w", dir, err)
	}
	return &DB{db: db}, nil
}

// OpenReadOnlyDB opens an existing BadgerDB directory without writing.
func OpenReadOnlyDB(dir string) (*DB, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil).WithReadOnly(true))
	if err != nil {
		return nil, fmt.Errorf("embedding: open badger at %s: %w", dir, err)
	}
	return &DB{db: db}, nil
}

// OpenInMemoryDB opens a BadgerDB instance that lives only in memory.
func OpenInMemoryDB() (*DB, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("embedding: open in-memory badger: %w", err)
	}
	return &DB{db: db}, nil
}

// WithTxn runs fn in a read-write transaction.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(fn)
}

// WithReadTxn runs fn in a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.View(fn)
}

// Close releases the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// =============================================================================
// BadgerVectorStore
// =============================================================================

// BadgerVectorStore implements VectorStore on a DB.
//
// The store does not own the DB; the caller opens and closes it.
type BadgerVectorStore struct {
	db     *DB
	logger *slog.Logger
}

// NewBadgerVectorStore creates a store backed by db.
func NewBadgerVectorStore(db *DB, logger *slog.Logger) *BadgerVectorStore {
	if db == nil {
		panic("NewBadgerVectorStore: db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerVectorStore{db: db, logger: logger}
}

// Load retrieves the snapshot for model.
func (s *BadgerVectorStore) Load(ctx context.Context, model string) (*Snapshot, error) {
	var raw []byte
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(vectorKey(model))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get vector key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copy value: %w", err)
		}
		return nil
	})
	if errors.Is(err, errCacheMiss) {
		s.logger.Debug("vector store: miss", slog.String("model", model))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vector store load: %w", err)
	}

	snap, err := gobDecode(raw)
	if err != nil {
		return nil, fmt.Errorf("vector store decode: %w", err)
	}
	s.logger.Debug("vector store: hit",
		slog.String("model", model),
		slog.String("hash", shortHash(snap.CorpusHash)),
		slog.Int("vectors", len(snap.Vectors)),
	)
	return snap, nil
}

// Save persists snap under its model key.
func (s *BadgerVectorStore) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil || len(snap.Vectors) == 0 {
		return nil
	}
	raw, err := gobEncode(snap)
	if err != nil {
		return fmt.Errorf("vector store encode: %w", err)
	}
	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(vectorKey(snap.Model), raw)
	})
	if err != nil {
		return fmt.Errorf("vector store save: %w", err)
	}
	s.logger.Debug("vector store: saved",
		slog.String("model", snap.Model),
		slog.String("hash", shortHash(snap.CorpusHash)),
		slog.Int("vectors", len(snap.Vectors)),
	)
	return nil
}

// Delete removes the snapshot for model.
func (s *BadgerVectorStore) Delete(ctx context.Context, model string) error {
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Delete(vectorKey(model))
	})
	if err != nil {
		return fmt.Errorf("vector store delete: %w", err)
	}
	return nil
}

// List decodes every snapshot under the vector key prefix.
func (s *BadgerVectorStore) List(ctx context.Context) ([]*Snapshot, error) {
	var snaps []*Snapshot
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(vectorKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("copy value: %w", err)
			}
			snap, err := gobDecode(raw)
			if err != nil {
				return fmt.Errorf("decode %s: %w", strings.TrimPrefix(string(it.Item().Key()), vectorKeyPrefix), err)
			}
			snaps = append(snaps, snap)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vector store list: %w", err)
	}
	return snaps, nil
}

// =============================================================================
// MemoryVectorStore
// =============================================================================

// MemoryVectorStore keeps snapshots in process memory. Used when no cache
// directory is configured.
type MemoryVectorStore struct {
	snaps map[string]*Snapshot
}

// NewMemoryVectorStore creates an empty in-memory store.
//
// Not safe for concurrent use on its own; the Cache serializes access.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{snaps: make(map[string]*Snapshot)}
}

func (m *MemoryVectorStore) Load(_ context.Context, model string) (*Snapshot, error) {
	return m.snaps[model], nil
}

func (m *MemoryVectorStore) Save(_ context.Context, snap *Snapshot) error {
	if snap != nil && len(snap.Vectors) > 0 {
		m.snaps[snap.Model] = snap
	}
	return nil
}

func (m *MemoryVectorStore) Delete(_ context.Context, model string) error {
	delete(m.snaps, model)
	return nil
}

func (m *MemoryVectorStore) List(_ context.Context) ([]*Snapshot, error) {
	models := make([]string, 0, len(m.snaps))
	for k := range m.snaps {
		models = append(models, k)
	}
	sort.Strings(models)
	out := make([]*Snapshot, len(models))
	for i, k := range models {
		out[i] = m.snaps[k]
	}
	return out, nil
}

// =============================================================================
// Helpers
// =============================================================================

func vectorKey(model string) []byte {
	return []byte(vectorKeyPrefix + model)
}

func gobEncode(snap *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	return &snap, nil
}

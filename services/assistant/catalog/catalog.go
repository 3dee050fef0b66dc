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
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrCatalogNotFound is returned when the catalog source does not exist.
	ErrCatalogNotFound = errors.New("catalog: source not found")

	// ErrCatalogMalformed is returned for structurally invalid catalog data.
	ErrCatalogMalformed = errors.New("catalog: malformed")
)

// Store is the read-only view of the catalog used by the core.
type Store interface {
	All() []Framework
	Get(id int) (Framework, bool)
	GetByName(name string) (Framework, bool)
}

// Catalog is an in-memory, read-only framework catalog.
//
// # Description
//
// Records keep their load order. Lookups by id are O(1); lookups by name are
// case-insensitive exact matches on the raw name, falling back to the
// canonical name so "Attribution Framework" finds "Attribution Framework 4".
//
// # Thread Safety
//
// Catalog is immutable after New and safe for concurrent use.
type Catalog struct {
	frameworks []Framework
	byID       map[int]int
	byName     map[string]int
	byCanon    map[string]int
	source     string
}

// New builds a Catalog, rejecting duplicate ids and empty names.
func New(frameworks []Framework) (*Catalog, error) {
	c := &Catalog{
		frameworks: make([]Framework, 0, len(frameworks)),
		byID:       make(map[int]int, len(frameworks)),
		byName:     make(map[string]int, len(frameworks)),
		byCanon:    make(map[string]int, len(frameworks)),
	}
	for _, f := range frameworks {
		if _, dup := c.byID[f.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate framework id %d", ErrCatalogMalformed, f.ID)
		}
		if strings.TrimSpace(f.Name) == "" {
			return nil, fmt.Errorf("%w: framework id %d has no name", ErrCatalogMalformed, f.ID)
		}
		idx := len(c.frameworks)
		c.frameworks = append(c.frameworks, f)
		c.byID[f.ID] = idx
		if _, ok := c.byName[strings.ToLower(strings.TrimSpace(f.Name))]; !ok {
			c.byName[strings.ToLower(strings.TrimSpace(f.Name))] = idx
		}
		if !IsGenericName(f.Name) {
			if _, ok := c.byCanon[CanonicalKey(f.Name)]; !ok {
				c.byCanon[CanonicalKey(f.Name)] = idx
			}
		}
	}
	return c, nil
}

// WithSource records where the catalog was loaded from.
func (c *Catalog) WithSource(source string) *Catalog {
	c.source = source
	return c
}

// Source is the path the catalog was loaded from, if any.
func (c *Catalog) Source() string { return c.source }

// Len returns the number of records.
func (c *Catalog) Len() int { return len(c.frameworks) }

// All returns a copy of every record in load order.
func (c *Catalog) All() []Framework {
	out := make([]Framework, len(c.frameworks))
	copy(out, c.frameworks)
	return out
}

// Get returns the framework with id.
func (c *Catalog) Get(id int) (Framework, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Framework{}, false
	}
	return c.frameworks[idx], true
}

// GetByName returns the framework whose name equals name, ignoring case.
func (c *Catalog) GetByName(name string) (Framework, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if idx, ok := c.byName[key]; ok {
		return c.frameworks[idx], true
	}
	if idx, ok := c.byCanon[CanonicalKey(name)]; ok {
		return c.frameworks[idx], true
	}
	return Framework{}, false
}

// Names returns every raw framework name in load order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.frameworks))
	for i, f := range c.frameworks {
		out[i] = f.Name
	}
	return out
}

// IDs returns the sorted id set.
func (c *Catalog) IDs() []int {
	ids := make([]int, 0, len(c.frameworks))
	for _, f := range c.frameworks {
		ids = append(ids, f.ID)
	}
	sort.Ints(ids)
	return ids
}

// Facets returns the distinct domains, types and difficulty levels, sorted.
//
// Used to populate filter choices.
func (c *Catalog) Facets() (domains, types, difficulties []string) {
	d, t, l := map[string]struct{}{}, map[string]struct{}{}, map[string]struct{}{}
	for _, f := range c.frameworks {
		for _, dom := range f.Domains() {
			d[dom] = struct{}{}
		}
		if v := strings.TrimSpace(f.Type); v != "" {
			t[v] = struct{}{}
		}
		if v := strings.TrimSpace(f.DifficultyLevel); v != "" {
			l[v] = struct{}{}
		}
	}
	return sortedKeys(d), sortedKeys(t), sortedKeys(l)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

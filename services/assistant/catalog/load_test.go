// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog"
)

func writeSQLiteCatalog(t *testing.T, schema string, inserts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frameworks.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(schema)
	require.NoError(t, err)
	for _, stmt := range inserts {
		_, err = db.Exec(stmt)
		require.NoError(t, err)
	}
	return path
}

func TestLoad_SQLite(t *testing.T) {
	path := writeSQLiteCatalog(t,
		`CREATE TABLE frameworks (id INTEGER, name TEXT, type TEXT, business_domains TEXT, use_case TEXT, related_canon TEXT)`,
		`INSERT INTO frameworks VALUES (9, 'MEDDIC', 'Qualification', 'Sales, Forecasting', 'Qualify deals', NULL)`,
		`INSERT INTO frameworks VALUES (3, 'SPIN Selling', NULL, 'Sales', NULL, 'MEDDIC')`,
	)

	c, err := catalog.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, path, c.Source())

	spin, ok := c.Get(3)
	require.True(t, ok)
	assert.Equal(t, "", spin.Type, "NULL becomes empty string")
	assert.Equal(t, []string{"MEDDIC"}, spin.RelatedRefs())
}

func TestLoad_SQLiteMissingColumn(t *testing.T) {
	path := writeSQLiteCatalog(t, `CREATE TABLE frameworks (id INTEGER, title TEXT)`)
	_, err := catalog.Load(context.Background(), path)
	require.ErrorIs(t, err, catalog.ErrCatalogMalformed)
}

func TestLoad_SQLiteMissingTable(t *testing.T) {
	path := writeSQLiteCatalog(t, `CREATE TABLE other (id INTEGER)`)
	_, err := catalog.Load(context.Background(), path)
	require.ErrorIs(t, err, catalog.ErrCatalogMalformed)
}

func TestLoad_SQLiteDuplicateIDs(t *testing.T) {
	path := writeSQLiteCatalog(t,
		`CREATE TABLE frameworks (id INTEGER, name TEXT)`,
		`INSERT INTO frameworks VALUES (1, 'A')`,
		`INSERT INTO frameworks VALUES (1, 'B')`,
	)
	_, err := catalog.Load(context.Background(), path)
	require.ErrorIs(t, err, catalog.ErrCatalogMalformed)

	raw, err := catalog.ReadFrameworks(context.Background(), path)
	require.NoError(t, err, "raw read tolerates duplicates for diagnostics")
	assert.Len(t, raw, 2)
}

func TestLoad_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frameworks.csv")
	content := "ID,Name,Business Domains,Difficulty Level,Diagnostic Questions\n" +
		"9.0,MEDDIC,\"Sales, Forecasting\",intermediate,Who is the economic buyer?|What is the pain?\n" +
		"12,Value Selling Framework 2,Sales,beginner\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := catalog.Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	meddic, ok := c.Get(9)
	require.True(t, ok, "integral float ids are accepted")
	assert.Equal(t, []string{"Sales", "Forecasting"}, meddic.Domains())
	assert.Len(t, meddic.DiagnosticPrompts(), 2)

	vs, ok := c.GetByName("value selling framework")
	require.True(t, ok)
	assert.Equal(t, 12, vs.ID)
}

func TestLoad_CSVBadID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frameworks.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n1.5,Broken\n"), 0o644))
	_, err := catalog.Load(context.Background(), path)
	require.ErrorIs(t, err, catalog.ErrCatalogMalformed)
}

func TestLoad_Errors(t *testing.T) {
	_, err := catalog.Load(context.Background(), filepath.Join(t.TempDir(), "missing.db"))
	require.ErrorIs(t, err, catalog.ErrCatalogNotFound)

	path := filepath.Join(t.TempDir(), "frameworks.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, err = catalog.Load(context.Background(), path)
	require.ErrorIs(t, err, catalog.ErrCatalogMalformed)

	empty := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = catalog.Load(context.Background(), empty)
	require.ErrorIs(t, err, catalog.ErrCatalogMalformed)
}

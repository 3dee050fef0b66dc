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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/embedding"
)

// sampleWidth is how many vector components dump prints per framework.
const sampleWidth = 4

func (c *cli) embedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Manage the persisted framework vectors",
	}

	warm := &cobra.Command{
		Use:   "warm",
		Short: "Embed the catalog now, reusing fresh persisted vectors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			a, err := openLoadedApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			snap := a.engine.Cache().Current()
			if snap == nil {
				return errors.New("no vectors after load")
			}
			p := c.printer()
			p.printf("%s %d vectors, %d dims, model %s, corpus %s %s\n",
				p.ok("ready:"), len(snap.Vectors), snap.Dimensions, snap.Model,
				shortHash(snap.CorpusHash), p.dim(time.Since(start).Round(time.Millisecond).String()))
			if u := a.usage.Snapshot(); u.Calls > 0 {
				p.printf("%s %d calls, %d tokens\n", p.label("usage:"), u.Calls, u.TotalTokens)
			}
			return nil
		},
	}

	invalidate := &cobra.Command{
		Use:   "invalidate",
		Short: "Drop the persisted vectors for the configured model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if err := a.engine.Cache().Invalidate(cmd.Context()); err != nil {
				return err
			}
			p := c.printer()
			p.printf("%s %s\n", p.ok("invalidated:"), a.engine.Cache().Model())
			return nil
		},
	}

	var dir string
	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print every persisted snapshot with per-framework vector stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = c.cfg.VectorCacheDir
			}
			return c.dump(cmd, dir)
		},
	}
	dump.Flags().StringVar(&dir, "dir", "", "vector cache directory (env VECTOR_CACHE_DIR)")

	cmd.AddCommand(warm, invalidate, dump)
	return cmd
}

// dump lists snapshots from a read-only view of the vector cache. Each
// snapshot is compared with the current catalog so stale entries stand out.
func (c *cli) dump(cmd *cobra.Command, dir string) error {
	p := c.printer()
	p.printf("Vector cache path: %s\n", dir)

	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		p.println("Cache directory does not exist. Run `assistant embed warm` to populate it.")
		return nil
	}
	db, err := embedding.OpenReadOnlyDB(dir)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	snaps, err := embedding.NewBadgerVectorStore(db, c.logger).List(cmd.Context())
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		p.println("\nNo vector snapshots found.")
		return nil
	}

	frameworks, catErr := catalog.ReadFrameworks(cmd.Context(), c.cfg.CatalogPath)
	names := make(map[int]string, len(frameworks))
	for _, f := range frameworks {
		names[f.ID] = catalog.DisplayName(f)
	}

	p.printf("\nFound %d snapshot%s:\n", len(snaps), plural(len(snaps), "", "s"))
	p.println(p.dim(strings.Repeat("─", 80)))
	for i, snap := range snaps {
		p.printf("\n[%d] Model:       %s\n", i+1, snap.Model)
		p.printf("    Corpus hash: %s\n", snap.CorpusHash)
		p.printf("    Created:     %s\n", snap.CreatedAt.Format("2006-01-02 15:04:05 MST"))
		p.printf("    Payload:     %s\n", formatBytes(len(snap.Vectors)*snap.Dimensions*4))
		switch {
		case catErr != nil:
			p.printf("    Catalog:     %s\n", p.warn("unreadable: "+catErr.Error()))
		case embedding.CorpusHash(frameworks, snap.Model) == snap.CorpusHash:
			p.printf("    Catalog:     %s\n", p.ok("fresh"))
		default:
			p.printf("    Catalog:     %s\n", p.warn("stale (catalog changed since embedding)"))
		}
		p.printf("    Vectors:     %d x %d dims\n", len(snap.Vectors), snap.Dimensions)

		ids := snap.IDs()
		labels := make(map[int]string, len(ids))
		width := len("Framework")
		for _, id := range ids {
			label := fmt.Sprintf("#%d", id)
			if n, ok := names[id]; ok {
				label += " " + n
			}
			labels[id] = label
			if len(label) > width {
				width = len(label)
			}
		}

		p.printf("\n    %-*s  %5s  %7s  %s\n", width, "Framework", "Dims", "L2Norm", "Sample (first 4 values)")
		p.printf("    %s  %s  %s  %s\n",
			strings.Repeat("─", width), strings.Repeat("─", 5), strings.Repeat("─", 7), strings.Repeat("─", 40))
		for _, id := range ids {
			vec := snap.Vectors[id]
			p.printf("    %-*s  %5d  %7.4f  %s\n", width, labels[id], len(vec), embedding.L2Norm(vec), formatSample(vec, sampleWidth))
		}
	}
	p.printf("\n%s\n", p.dim(strings.Repeat("─", 80)))
	p.printf("Summary: %d snapshot%s, cache path: %s\n", len(snaps), plural(len(snaps), "", "s"), dir)
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

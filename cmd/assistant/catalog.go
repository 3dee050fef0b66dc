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
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog"
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/router"
)

func (c *cli) catalogCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Browse and check the framework catalog",
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON")

	list := &cobra.Command{
		Use:   "list",
		Short: "List unique frameworks grouped by first letter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := catalog.Load(cmd.Context(), c.cfg.CatalogPath)
			if err != nil {
				return err
			}
			groups := catalog.GroupAlphabetically(cat.All())
			if asJSON {
				return c.writeJSON(groups)
			}
			p := c.printer()
			total := 0
			for _, g := range groups {
				p.header(g.Letter)
				for _, f := range g.Frameworks {
					p.println(p.frameworkLine(f))
				}
				p.println()
				total += len(g.Frameworks)
			}
			p.println(p.dim(fmt.Sprintf("%d framework%s", total, plural(total, "", "s"))))
			return nil
		},
	}

	var maxResults int
	search := &cobra.Command{
		Use:   "search <name>",
		Short: "Find frameworks by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(cmd.Context(), c.cfg.CatalogPath)
			if err != nil {
				return err
			}
			matches := catalog.SearchByName(cat.All(), strings.Join(args, " "), maxResults)
			if asJSON {
				return c.writeJSON(matches)
			}
			p := c.printer()
			if len(matches) == 0 {
				p.println(p.dim("No framework names match."))
				return nil
			}
			for _, m := range matches {
				p.printf("%s  %s\n", p.frameworkLine(m.Framework), p.dim(fmt.Sprintf("%.1f", m.Score)))
			}
			return nil
		},
	}
	search.Flags().IntVar(&maxResults, "max", 20, "maximum results")

	show := &cobra.Command{
		Use:   "show <id|name>",
		Short: "Show one framework",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(cmd.Context(), c.cfg.CatalogPath)
			if err != nil {
				return err
			}
			ref := strings.Join(args, " ")
			f, ok := catalog.ResolveRef(cat, ref)
			if !ok {
				return fmt.Errorf("no framework %q", ref)
			}
			if asJSON {
				return c.writeJSON(f)
			}
			p := c.printer()
			p.frameworkCard(cat, f, router.DefaultQuestionLimit)
			prev, next := catalog.Neighbors(cat.All(), f.ID)
			if prev != nil || next != nil {
				p.println()
			}
			if prev != nil {
				p.printf("%s %s\n", p.dim("previous:"), p.frameworkLine(*prev))
			}
			if next != nil {
				p.printf("%s %s\n", p.dim("next:    "), p.frameworkLine(*next))
			}
			return nil
		},
	}

	diagnose := &cobra.Command{
		Use:   "diagnose",
		Short: "Report data quality problems in the catalog file",
		Long: `Report duplicate ids, names with trailing numbers, generic structural
names and use cases shared by several records.

The raw records are inspected, so files the assistant would refuse to load
(for example because of duplicate ids) can still be diagnosed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			frameworks, err := catalog.ReadFrameworks(cmd.Context(), c.cfg.CatalogPath)
			if err != nil {
				return err
			}
			report := catalog.Diagnose(frameworks)
			if asJSON {
				return c.writeJSON(report)
			}
			c.printReport(report)
			return nil
		},
	}

	cmd.AddCommand(list, search, show, diagnose)
	return cmd
}

func (c *cli) printReport(r catalog.QualityReport) {
	p := c.printer()
	p.header("Catalog quality")
	p.printf("%s %d records\n", p.label("Total:"), r.Total)
	if r.Clean() {
		p.println(p.ok("No problems found."))
		return
	}

	if len(r.DuplicateIDs) > 0 {
		ids := make([]int, 0, len(r.DuplicateIDs))
		for id := range r.DuplicateIDs {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		p.println(p.fail(fmt.Sprintf("\nDuplicate ids (%d):", len(ids))))
		for _, id := range ids {
			p.printf("  #%d  %s\n", id, strings.Join(r.DuplicateIDs[id], " | "))
		}
	}
	issues := func(title string, list []catalog.NameIssue) {
		if len(list) == 0 {
			return
		}
		p.println(p.warn(fmt.Sprintf("\n%s (%d):", title, len(list))))
		for _, n := range list {
			p.printf("  #%d  %s\n", n.ID, n.Name)
		}
	}
	issues("Names with a trailing number", r.NumberedNames)
	issues("Generic names", r.GenericNames)

	if len(r.SharedUseCases) > 0 {
		p.println(p.warn(fmt.Sprintf("\nShared use cases (%d):", len(r.SharedUseCases))))
		for _, g := range r.SharedUseCases {
			names := make([]string, len(g.Frameworks))
			for i, n := range g.Frameworks {
				names[i] = fmt.Sprintf("#%d %s", n.ID, n.Name)
			}
			p.printf("  %q\n    %s\n", g.UseCase, strings.Join(names, ", "))
		}
	}
}

func (c *cli) writeJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalogtest provides a small, fixed framework catalog for tests.
package catalogtest

import (
	"github.com/AleutianAI/FrameworkAssistant/services/assistant/catalog"
)

// Frameworks returns the fixture records in load order.
//
// Ids are deliberately sparse. "Attribution Framework 4" and
// "Attribution Framework 5" share a display name; "Framework 4" is a
// generic placeholder.
func Frameworks() []catalog.Framework {
	return []catalog.Framework{
		{
			ID:                  3,
			Name:                "SPIN Selling",
			Type:                "Sales Methodology",
			DifficultyLevel:     "intermediate",
			BusinessDomains:     "Sales, Discovery",
			UseCase:             "Structure discovery calls around situation, problem, implication and need-payoff questions.",
			ProblemSymptoms:     "low conversion rates, shallow discovery calls, prospects not engaging",
			DiagnosticQuestions: "What questions do reps ask on first calls?|How long are discovery calls?|Do prospects articulate their own pain?",
			RedFlagIndicators:   "Reps pitch before diagnosing; Calls end without a next step",
			Levers:              "Implication questioning; Pre-call planning",
			RelatedFrameworks:   "MEDDIC, Challenger Sale",
		},
		{
			ID:                  7,
			Name:                "Challenger Sale",
			Type:                "Sales Methodology",
			DifficultyLevel:     "advanced",
			BusinessDomains:     "Sales",
			UseCase:             "Teach, tailor and take control of complex enterprise sales conversations.",
			ProblemSymptoms:     "commoditized pitch, long stalled deals",
			DiagnosticQuestions: "Do reps bring commercial insight? Do they tailor messages per stakeholder?",
			RedFlagIndicators:   "Relationship-only selling",
			Levers:              "Commercial teaching; Constructive tension",
			RelatedFrameworks:   "SPIN Selling",
		},
		{
			ID:                  9,
			Name:                "MEDDIC",
			Type:                "Qualification",
			DifficultyLevel:     "intermediate",
			BusinessDomains:     "Sales, Forecasting",
			UseCase:             "Qualify enterprise opportunities with metrics, economic buyer, decision criteria, decision process, pain and champion.",
			ProblemSymptoms:     "deals slipping, low forecast accuracy, low conversion rates",
			DiagnosticQuestions: "Who is the economic buyer?|What are the decision criteria?|What is the identified pain?",
			RedFlagIndicators:   "No access to the economic buyer; Unclear decision process",
			Levers:              "Champion building; Metrics quantification",
			RelatedFrameworks:   "SPIN Selling",
			RelatedCanon:        "SPIN Selling|Value Selling Framework",
		},
		{
			ID:                  12,
			Name:                "Value Selling Framework 2",
			Type:                "Sales Methodology",
			DifficultyLevel:     "beginner",
			BusinessDomains:     "Sales, Marketing",
			UseCase:             "Connect product capabilities to quantified business value for the buyer.",
			ProblemSymptoms:     "price objections, discounting pressure",
			DiagnosticQuestions: "Can reps quantify value?|Is ROI part of every proposal?",
			RedFlagIndicators:   "Frequent discounting",
			Levers:              "Value hypotheses; ROI calculators",
			RelatedFrameworks:   "MEDDIC",
		},
		{
			ID:                  15,
			Name:                "Customer Journey Mapping",
			Type:                "Analysis",
			DifficultyLevel:     "beginner",
			BusinessDomains:     "Marketing, Customer Success",
			UseCase:             "Visualize every customer touchpoint to find friction and drop-off.",
			ProblemSymptoms:     "high churn, poor onboarding, inconsistent experience",
			DiagnosticQuestions: "Where do customers drop off?|Which touchpoints generate complaints?",
			RedFlagIndicators:   "No owner for onboarding",
			Levers:              "Moment-of-truth redesign",
			RelatedFrameworks:   "Framework 4",
		},
		{
			ID:              21,
			Name:            "Framework 4",
			Type:            "Process",
			DifficultyLevel: "beginner",
			BusinessDomains: "Customer Success",
			UseCase:         "Reduce onboarding churn for new customers, quickly. Works for SaaS.",
			ProblemSymptoms: "customers leave in the first 90 days",
		},
		{
			ID:              22,
			Name:            "Attribution Framework 4",
			Type:            "Analysis",
			DifficultyLevel: "intermediate",
			BusinessDomains: "Marketing",
			UseCase:         "Assign credit for conversions across marketing channels.",
			ProblemSymptoms: "unclear channel ROI",
		},
		{
			ID:              30,
			Name:            "Attribution Framework 5",
			Type:            "Analysis",
			DifficultyLevel: "advanced",
			BusinessDomains: "Marketing",
			UseCase:         "Multi-touch attribution modelling.",
		},
	}
}

// Catalog returns the fixture as a validated catalog. It panics on error,
// which cannot happen for the fixed data.
func Catalog() *catalog.Catalog {
	c, err := catalog.New(Frameworks())
	if err != nil {
		panic(err)
	}
	return c
}

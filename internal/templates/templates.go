// Package templates defines the document templates a research request can
// target, along with the clarification questions that refine a request
// before the research loop starts.
package templates

import (
	"sort"
	"strings"
)

// Template describes one document template.
type Template struct {
	ID             string   `json:"id"`
	DisplayName    string   `json:"display_name"`
	Description    string   `json:"description"`
	Clarifications []string `json:"clarifications"`

	// Guidance is folded into the research instructions when the
	// template is selected.
	Guidance string `json:"-"`
}

var catalog = map[string]Template{
	"academic-review": {
		ID:          "academic-review",
		DisplayName: "Academic Literature Review",
		Description: "Systematic review of published literature on a topic",
		Clarifications: []string{
			"What specific time period should the literature review cover?",
			"Are there particular research databases or sources you want prioritized?",
			"What level of technical depth is required?",
			"Should the review include methodological analysis?",
		},
		Guidance: "Structure the document as an academic literature review: introduction and scope, thematic synthesis of prior work, methodological comparison, identified gaps, and a conclusion. Cite sources inline.",
	},
	"business-report": {
		ID:          "business-report",
		DisplayName: "Business Report",
		Description: "Decision-oriented report for a business audience",
		Clarifications: []string{
			"What time period should this report cover?",
			"Who is the primary audience for this report?",
			"Are there specific metrics or KPIs that must be included?",
			"What is the desired report format (executive summary, detailed analysis, etc.)?",
		},
		Guidance: "Structure the document as a business report: executive summary first, then findings, supporting data, risks, and recommendations. Keep the language direct and decision-oriented.",
	},
	"technical-doc": {
		ID:          "technical-doc",
		DisplayName: "Technical Documentation",
		Description: "Developer-facing documentation for a system or API",
		Clarifications: []string{
			"What programming languages or frameworks should the documentation cover?",
			"Should the documentation include code examples and tutorials?",
			"What level of technical expertise should be assumed for the readers?",
			"Are there specific API endpoints or features to focus on?",
		},
		Guidance: "Structure the document as technical documentation: overview, prerequisites, concepts, step-by-step usage with code examples, and a reference section.",
	},
	"research-paper": {
		ID:          "research-paper",
		DisplayName: "Research Paper",
		Description: "Paper-style writeup with methodology and results",
		Clarifications: []string{
			"What is the target journal or conference?",
			"What methodology should be emphasized?",
			"Are there specific research questions to address?",
			"What is the expected paper length?",
		},
		Guidance: "Structure the document as a research paper: abstract, introduction, related work, methodology, results, discussion, and conclusion.",
	},
	"market-analysis": {
		ID:          "market-analysis",
		DisplayName: "Market Analysis",
		Description: "Competitive and market landscape analysis",
		Clarifications: []string{
			"What market segment should be analyzed?",
			"What geographic regions should be included?",
			"What time frame should the analysis cover?",
			"Are there specific competitors to focus on?",
		},
		Guidance: "Structure the document as a market analysis: market overview, segmentation, competitive landscape, trends and drivers, and outlook.",
	},
}

// genericClarifications are returned for unknown template IDs.
var genericClarifications = []string{
	"What is the primary goal of this document?",
	"Who is the intended audience?",
	"Are there specific sections or topics that must be included?",
	"What is the desired length or scope?",
}

// List returns all templates sorted by ID.
func List() []Template {
	out := make([]Template, 0, len(catalog))
	for _, t := range catalog {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the template with the given ID.
func Get(id string) (Template, bool) {
	t, ok := catalog[id]
	return t, ok
}

// Clarifications returns the clarification questions for a template,
// falling back to generic questions for unknown IDs.
func Clarifications(id string) []string {
	if t, ok := catalog[id]; ok {
		return append([]string(nil), t.Clarifications...)
	}
	return append([]string(nil), genericClarifications...)
}

// DisplayName returns a human-readable name for a template ID, deriving
// one from the ID for unknown templates.
func DisplayName(id string) string {
	if t, ok := catalog[id]; ok {
		return t.DisplayName
	}
	words := strings.Split(id, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Guidance returns the structure guidance for a template, empty for
// unknown IDs.
func Guidance(id string) string {
	if t, ok := catalog[id]; ok {
		return t.Guidance
	}
	return ""
}

package analyzer

import (
	"fmt"
	"math"
)

// HeadingInfo is one heading with the hierarchy issues found on it
type HeadingInfo struct {
	Level  int      `json:"level"`
	Text   string   `json:"text"`
	Issues []string `json:"issues,omitempty"`
}

// HeadingAnalysis summarises the heading hierarchy
type HeadingAnalysis struct {
	H1Count         int            `json:"h1Count"`
	Counts          map[string]int `json:"counts"`
	Headings        []HeadingInfo  `json:"headings"`
	SkippedLevels   int            `json:"skippedLevels"`
	KeywordHeadings int            `json:"keywordHeadings"`
	Issues          []string       `json:"issues"`
	Score           int            `json:"score"`
}

// analyzeStructure validates the heading hierarchy and attaches issues to the
// offending heading nodes.
func analyzeStructure(doc *ContentDocument, keywords []string, cfg StructureConfig) HeadingAnalysis {
	ha := HeadingAnalysis{
		Counts: make(map[string]int),
		Issues: []string{},
	}
	headings := doc.Headings()
	if len(headings) == 0 {
		ha.Issues = append(ha.Issues, "No headings found")
		ha.Headings = []HeadingInfo{}
		ha.Score = clampScore(cfg.NoHeadingsScore)
		return ha
	}

	score := cfg.Base
	prevLevel := 0
	subheadings := 0
	for _, i := range headings {
		n := doc.Nodes[i]
		ha.Counts[fmt.Sprintf("h%d", n.Level)]++
		if n.Level == 1 {
			ha.H1Count++
			if ha.H1Count > 1 {
				doc.addIssue(i, "additional H1 heading")
			}
		} else {
			subheadings++
		}

		if prevLevel > 0 && n.Level > prevLevel+1 {
			ha.SkippedLevels++
			issue := fmt.Sprintf("skipped heading level: H%d to H%d", prevLevel, n.Level)
			doc.addIssue(i, issue)
			ha.Issues = append(ha.Issues, fmt.Sprintf("Heading %q %s", n.Text, issue))
		}
		prevLevel = n.Level

		if n.Text == "" {
			doc.addIssue(i, "empty heading")
			ha.Issues = append(ha.Issues, fmt.Sprintf("Empty H%d heading", n.Level))
			score -= cfg.EmptyHeadingPenalty
		}

		for _, kw := range keywords {
			if containsKeyword(n.Text, kw) {
				ha.KeywordHeadings++
				break
			}
		}
	}

	switch {
	case ha.H1Count == 0:
		doc.addIssue(headings[0], "document has no H1 heading")
		ha.Issues = append(ha.Issues, "Missing H1 heading")
		score -= cfg.MissingH1Penalty
	case ha.H1Count > 1:
		ha.Issues = append(ha.Issues, fmt.Sprintf("Multiple H1 headings found (%d)", ha.H1Count))
		score -= cfg.MultipleH1Penalty
	}

	score -= math.Min(float64(ha.SkippedLevels)*cfg.SkipPenalty, cfg.MaxSkipPenalty)

	if subheadings == 0 && doc.WordCount() > cfg.NoSubheadingsWords {
		ha.Issues = append(ha.Issues, "Long content without subheadings")
		score -= cfg.NoSubheadingsPenalty
	}

	if len(keywords) > 0 {
		covered := math.Min(float64(ha.KeywordHeadings), float64(len(keywords)))
		score += cfg.KeywordBonus * covered / float64(len(keywords))
	}

	for _, i := range headings {
		n := doc.Nodes[i]
		ha.Headings = append(ha.Headings, HeadingInfo{Level: n.Level, Text: n.Text, Issues: n.Issues})
	}
	ha.Score = clampScore(score)
	return ha
}

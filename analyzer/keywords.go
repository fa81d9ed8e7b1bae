package analyzer

import (
	"math"
	"regexp"
	"strings"
)

var titleSeparatorRegex = regexp.MustCompile(`\s*[|:–—]\s*|\s-\s`)

// KeywordScore is the placement and density of one target keyword
type KeywordScore struct {
	Keyword           string  `json:"keyword"`
	InTitle           bool    `json:"inTitle"`
	InH1              bool    `json:"inH1"`
	InFirstParagraph  bool    `json:"inFirstParagraph"`
	InMetaDescription bool    `json:"inMetaDescription"`
	Occurrences       int     `json:"occurrences"`
	Density           float64 `json:"density"`
	Score             int     `json:"score"`
}

// KeywordAnalysis averages keyword placement scores across all target keywords
type KeywordAnalysis struct {
	Keywords []KeywordScore `json:"keywords"`
	Score    int            `json:"score"`
}

// targetKeywords prefers explicit keywords; otherwise it derives them from the
// H1 and the leading segment of the title.
func targetKeywords(explicit []string, doc *ContentDocument) []string {
	candidates := explicit
	if len(candidates) == 0 {
		candidates = []string{doc.FirstHeading(1)}
		if doc.Title != "" {
			candidates = append(candidates, titleSeparatorRegex.Split(doc.Title, 2)[0])
		}
	}

	out := []string{}
	seen := make(map[string]bool)
	for _, c := range candidates {
		kw := normalizePhrase(c)
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}

// keywordsFound lists the keywords present anywhere in the page text
func keywordsFound(doc *ContentDocument, keywords []string) []string {
	text := doc.Title + "\n" + doc.MetaDescription + "\n" + doc.FullText()
	found := []string{}
	for _, kw := range keywords {
		if containsKeyword(text, kw) {
			found = append(found, kw)
		}
	}
	return found
}

// analyzeKeywords returns nil when there is nothing to optimise for
func analyzeKeywords(doc *ContentDocument, keywords []string, cfg KeywordConfig) *KeywordAnalysis {
	if len(keywords) == 0 {
		return nil
	}

	tokens := words(strings.ToLower(doc.FullText()))
	h1 := doc.FirstHeading(1)
	firstParagraph := ""
	if paragraphs := doc.ParagraphText(); len(paragraphs) > 0 {
		firstParagraph = paragraphs[0]
	}

	ka := &KeywordAnalysis{Keywords: []KeywordScore{}}
	total := 0.0
	for _, kw := range keywords {
		ks := KeywordScore{
			Keyword:           kw,
			InTitle:           containsKeyword(doc.Title, kw),
			InH1:              containsKeyword(h1, kw),
			InFirstParagraph:  containsKeyword(firstParagraph, kw),
			InMetaDescription: containsKeyword(doc.MetaDescription, kw),
			Occurrences:       countPhrase(tokens, words(kw)),
		}

		score := 0.0
		if ks.InTitle {
			score += cfg.TitlePoints
		}
		if ks.InH1 {
			score += cfg.H1Points
		}
		if ks.InFirstParagraph {
			score += cfg.FirstParagraphPoints
		}
		if ks.InMetaDescription {
			score += cfg.MetaPoints
		}
		if ks.Occurrences > 0 && len(tokens) > 0 {
			density := float64(ks.Occurrences*len(words(kw))) / float64(len(tokens)) * 100
			ks.Density = round2(density)
			score += cfg.DensityPoints * cfg.Density.score(density) / 100
		}

		ks.Score = clampScore(score)
		total += score
		ka.Keywords = append(ka.Keywords, ks)
	}
	ka.Score = clampScore(total / float64(len(keywords)))
	return ka
}

// countPhrase counts whole-token occurrences of phrase in tokens, matching stems
func countPhrase(tokens, phrase []string) int {
	if len(phrase) == 0 || len(tokens) < len(phrase) {
		return 0
	}
	stems := make([]string, len(phrase))
	for i, p := range phrase {
		stems[i] = stem(p)
	}
	count := 0
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j := range phrase {
			if stem(tokens[i+j]) != stems[j] {
				match = false
				break
			}
		}
		if match {
			count++
			i += len(phrase) - 1
		}
	}
	return count
}

// contentDepth bands the word count and adds bonuses for supporting structure
func contentDepth(doc *ContentDocument, faqCount int, cfg DepthConfig) int {
	wc := doc.WordCount()
	score := cfg.Floor
	for _, b := range cfg.Bands {
		if wc >= b.MinWords {
			score = math.Max(score, b.Score)
		}
	}
	if doc.count(NodeList)+doc.count(NodeTable) > 0 {
		score += cfg.StructureBonus
	}
	if doc.count(NodeImage) > 0 {
		score += cfg.ImageBonus
	}
	if faqCount > 0 {
		score += cfg.FAQBonus
	}
	return clampScore(math.Min(100, score))
}

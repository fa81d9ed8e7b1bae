package analyzer

import (
	"math"
	"strings"
)

// Classification is the selected content category and what selected it
type Classification struct {
	ContentType ContentType      `json:"contentType"`
	Industry    string           `json:"industry,omitempty"`
	Confidence  float64          `json:"confidence"`
	Source      string           `json:"source"`
	Signals     []CategorySignal `json:"signals,omitempty"`
}

// CategorySignal is the vocabulary evidence gathered for one category
type CategorySignal struct {
	ContentType ContentType `json:"contentType"`
	Hits        float64     `json:"hits"`
	Density     float64     `json:"density"`
}

const (
	classifiedByHint       = "industry-hint"
	classifiedByVocabulary = "vocabulary"
	classifiedByDefault    = "default"
)

// classify never fails: anything that does not clear the thresholds is generic.
// A recognised industry hint takes precedence over vocabulary.
func classify(doc *ContentDocument, industry string, cfg ClassifierConfig) Classification {
	industry = collapseSpace(industry)
	if t, ok := matchIndustry(industry, cfg.Categories); ok {
		return Classification{
			ContentType: t,
			Industry:    industry,
			Confidence:  1,
			Source:      classifiedByHint,
		}
	}

	c := Classification{
		ContentType: ContentTypeGeneric,
		Industry:    industry,
		Source:      classifiedByDefault,
	}
	tokens := words(strings.ToLower(doc.Title + " " + doc.MetaDescription + " " + doc.FullText()))
	if len(tokens) == 0 {
		return c
	}
	schemaTypes := make(map[string]bool)
	for _, t := range doc.SchemaTypes() {
		schemaTypes[t] = true
	}

	best := -1.0
	for _, rule := range cfg.Categories {
		hits := float64(vocabularyHits(tokens, rule.Terms))
		for _, st := range rule.SchemaTypes {
			if schemaTypes[st] {
				hits += cfg.SchemaBonus
			}
		}
		density := hits / float64(len(tokens)) * 1000
		c.Signals = append(c.Signals, CategorySignal{
			ContentType: rule.Type,
			Hits:        hits,
			Density:     round2(density),
		})

		if hits < float64(cfg.MinHits) || density < cfg.MinDensity {
			continue
		}
		if density > best {
			best = density
			c.ContentType = rule.Type
			c.Source = classifiedByVocabulary
			c.Confidence = round2(math.Min(1, density/(cfg.MinDensity*4)))
		}
	}
	return c
}

// vocabularyHits counts term occurrences. Terms that stem to the same phrase
// are counted once.
func vocabularyHits(tokens []string, terms []string) int {
	seen := make(map[string]bool)
	hits := 0
	for _, term := range terms {
		phrase := words(strings.ToLower(term))
		key := stemPhrase(phrase)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		hits += countPhrase(tokens, phrase)
	}
	return hits
}

func stemPhrase(phrase []string) string {
	stems := make([]string, len(phrase))
	for i, w := range phrase {
		stems[i] = stem(w)
	}
	return strings.Join(stems, " ")
}

// matchIndustry resolves an industry hint through category aliases. Exact
// alias matches win over aliases merely contained in the hint.
func matchIndustry(industry string, rules []CategoryRule) (ContentType, bool) {
	hint := normalizePhrase(industry)
	if hint == "" {
		return "", false
	}
	if hint == string(ContentTypeGeneric) {
		return ContentTypeGeneric, true
	}
	for _, rule := range rules {
		if hint == normalizePhrase(string(rule.Type)) {
			return rule.Type, true
		}
		for _, alias := range rule.Aliases {
			if hint == normalizePhrase(alias) {
				return rule.Type, true
			}
		}
	}
	padded := " " + hint + " "
	for _, rule := range rules {
		for _, alias := range rule.Aliases {
			if a := normalizePhrase(alias); a != "" && strings.Contains(padded, " "+a+" ") {
				return rule.Type, true
			}
		}
	}
	return "", false
}

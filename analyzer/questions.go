package analyzer

import "math"

// QuestionItem is one question-like unit of the page with its answer text
type QuestionItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
	Source   string `json:"source"`
}

// KeywordMatch records whether a target keyword is addressed by any question
type KeywordMatch struct {
	Keyword  string `json:"keyword"`
	Matched  bool   `json:"matched"`
	Question string `json:"question,omitempty"`
}

// QuestionMatch is the question-answer coverage of the target keywords
type QuestionMatch struct {
	Questions       []QuestionItem `json:"questions"`
	FAQCount        int            `json:"faqCount"`
	Keywords        []KeywordMatch `json:"keywords"`
	MatchedKeywords int            `json:"matchedKeywords"`
	MatchRatio      float64        `json:"matchRatio"`
	Score           int            `json:"score"`
}

const (
	sourceFAQ     = "faq"
	sourceHeading = "heading"
	sourceSchema  = "schema"
)

// matchQuestions checks each keyword against question text and answers
func matchQuestions(doc *ContentDocument, keywords []string, cfg QuestionConfig) QuestionMatch {
	qm := QuestionMatch{
		Questions: collectQuestions(doc),
		Keywords:  []KeywordMatch{},
	}
	for _, q := range qm.Questions {
		if q.Answer != "" {
			qm.FAQCount++
		}
	}

	if cfg.MaxKeywords > 0 && len(keywords) > cfg.MaxKeywords {
		keywords = keywords[:cfg.MaxKeywords]
	}
	for _, kw := range keywords {
		m := KeywordMatch{Keyword: kw}
		for _, q := range qm.Questions {
			if containsKeyword(q.Question, kw) || containsKeyword(q.Answer, kw) {
				m.Matched = true
				m.Question = q.Question
				break
			}
		}
		if m.Matched {
			qm.MatchedKeywords++
		}
		qm.Keywords = append(qm.Keywords, m)
	}

	if len(keywords) > 0 {
		qm.MatchRatio = round2(float64(qm.MatchedKeywords) / float64(len(keywords)))
	}
	floor := math.Min(float64(qm.FAQCount)*cfg.FAQPoints, cfg.FAQCap)
	qm.Score = clampScore(math.Min(100, qm.MatchRatio*cfg.MatchPoints+floor))
	return qm
}

// collectQuestions gathers FAQ items, question headings and FAQPage schema
// questions in document order, deduplicated by normalised question text.
func collectQuestions(doc *ContentDocument) []QuestionItem {
	items := []QuestionItem{}
	seen := make(map[string]bool)
	add := func(q QuestionItem) {
		key := normalizePhrase(q.Question)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		items = append(items, q)
	}

	for _, n := range doc.Nodes {
		if n.Type == NodeFAQItem {
			add(QuestionItem{Question: n.Text, Answer: n.Answer, Source: sourceFAQ})
		}
	}
	for _, i := range doc.Headings() {
		n := doc.Nodes[i]
		if isQuestion(n.Text) {
			add(QuestionItem{Question: n.Text, Answer: doc.SectionText(i), Source: sourceHeading})
		}
	}
	for _, block := range doc.Schema {
		for _, ent := range block.Entities {
			for _, q := range schemaQuestions(ent) {
				add(q)
			}
		}
	}
	return items
}

// schemaQuestions reads Question entities from FAQPage.mainEntity or a bare Question
func schemaQuestions(ent SchemaEntity) []QuestionItem {
	var out []QuestionItem
	for _, t := range ent.Types {
		switch t {
		case "FAQPage":
			for _, q := range asObjects(ent.Fields["mainEntity"]) {
				if item, ok := schemaQuestion(q); ok {
					out = append(out, item)
				}
			}
			return out
		case "Question":
			if item, ok := schemaQuestion(ent.Fields); ok {
				out = append(out, item)
			}
			return out
		}
	}
	return out
}

func schemaQuestion(q map[string]interface{}) (QuestionItem, bool) {
	name, _ := q["name"].(string)
	name = collapseSpace(name)
	if name == "" {
		return QuestionItem{}, false
	}
	item := QuestionItem{Question: name, Source: sourceSchema}
	for _, a := range asObjects(q["acceptedAnswer"]) {
		if text, ok := a["text"].(string); ok && text != "" {
			item.Answer = collapseSpace(text)
			break
		}
	}
	return item, true
}

func asObjects(v interface{}) []map[string]interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return []map[string]interface{}{t}
	case []interface{}:
		var out []map[string]interface{}
		for _, item := range t {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

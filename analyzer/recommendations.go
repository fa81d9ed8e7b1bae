package analyzer

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// findings is everything the templates may inspect
type findings struct {
	doc         *ContentDocument
	contentType ContentType
	keywords    []string
	scores      Scores
	weights     map[SubScore]float64
	readability ReadabilityMetrics
	headings    HeadingAnalysis
	schema      SchemaFinding
	questions   QuestionMatch
	keywordInfo *KeywordAnalysis
	imageCount  int
	altRate     float64
	bands       ReadabilityConfig
}

// template is one rule-based recommendation bound to a sub-score. A template
// with low effort also yields a quick win.
type template struct {
	subScore SubScore
	category RecommendationCategory
	effort   Effort
	applies  func(f *findings) bool
	build    func(f *findings) Recommendation
	action   string
}

var templates = []template{
	{
		subScore: SubScoreHeadingsStructure,
		category: CategoryStructure,
		effort:   EffortLow,
		action:   "Add one H1 that states the page topic",
		applies:  func(f *findings) bool { return f.headings.H1Count == 0 },
		build: func(f *findings) Recommendation {
			return Recommendation{
				Title:       "Add a descriptive H1 heading",
				Description: "The page has no H1. Answer engines use it as the primary statement of what the page covers.",
				Rationale:   "A single clear H1 anchors the heading hierarchy that AI systems use to segment content.",
				Example:     "<h1>" + exampleTopic(f) + "</h1>",
			}
		},
	},
	{
		subScore: SubScoreHeadingsStructure,
		category: CategoryStructure,
		effort:   EffortLow,
		action:   "Demote extra H1 headings to H2",
		applies:  func(f *findings) bool { return f.headings.H1Count > 1 },
		build: func(f *findings) Recommendation {
			return Recommendation{
				Title:       "Use a single H1 heading",
				Description: fmt.Sprintf("The page has %d H1 headings. Keep one and demote the rest to H2.", f.headings.H1Count),
				Rationale:   "Multiple H1s make the main topic ambiguous.",
				Example:     "<h1>Main topic</h1> followed by <h2> section headings",
			}
		},
	},
	{
		subScore: SubScoreHeadingsStructure,
		category: CategoryStructure,
		effort:   EffortLow,
		action:   "Fix skipped heading levels",
		applies:  func(f *findings) bool { return f.headings.SkippedLevels > 0 },
		build: func(f *findings) Recommendation {
			return Recommendation{
				Title:       "Fix skipped heading levels",
				Description: fmt.Sprintf("%d heading(s) jump more than one level, for example H1 straight to H3.", f.headings.SkippedLevels),
				Rationale:   "Sequential heading levels let parsers rebuild the outline of the page correctly.",
				Example:     "H1 > H2 > H3 instead of H1 > H3",
			}
		},
	},
	{
		subScore: SubScoreHeadingsStructure,
		category: CategoryContent,
		effort:   EffortMedium,
		applies: func(f *findings) bool {
			return len(f.keywords) > 0 && f.headings.KeywordHeadings == 0 && len(f.headings.Headings) > 0
		},
		build: func(f *findings) Recommendation {
			return Recommendation{
				Title:       "Include target keywords in subheadings",
				Description: fmt.Sprintf("None of the headings mention %s.", quoteList(f.keywords, 3)),
				Rationale:   "Headings that echo the query help answer engines match sections to questions.",
				Example:     "<h2>How " + exampleTopic(f) + " works</h2>",
			}
		},
	},
	{
		subScore: SubScoreSchema,
		category: CategoryTechnical,
		effort:   EffortMedium,
		applies:  func(f *findings) bool { return len(f.doc.Schema) == 0 },
		build: func(f *findings) Recommendation {
			t := suggestedSchemaType(f.contentType)
			return Recommendation{
				Title:       fmt.Sprintf("Add %s structured data", t),
				Description: fmt.Sprintf("No structured data was found. Add a JSON-LD block describing the page as %s.", t),
				Rationale:   "Structured data gives answer engines explicit facts instead of inferred ones.",
				Example:     fmt.Sprintf(`<script type="application/ld+json">{"@context":"https://schema.org","@type":"%s"}</script>`, t),
			}
		},
	},
	{
		subScore: SubScoreSchema,
		category: CategoryTechnical,
		effort:   EffortLow,
		action:   "Wrap existing FAQs in FAQPage markup",
		applies:  func(f *findings) bool { return f.questions.FAQCount > 0 && !f.schema.HasFAQPage },
		build: func(f *findings) Recommendation {
			return Recommendation{
				Title:       "Mark up existing FAQs with FAQPage schema",
				Description: fmt.Sprintf("The page answers %d question(s) but has no valid FAQPage markup.", f.questions.FAQCount),
				Rationale:   "FAQPage markup is read directly by answer engines when composing responses.",
				Example:     `{"@type":"FAQPage","mainEntity":[{"@type":"Question","name":"...","acceptedAnswer":{"@type":"Answer","text":"..."}}]}`,
			}
		},
	},
	{
		subScore: SubScoreSchema,
		category: CategoryTechnical,
		effort:   EffortLow,
		action:   "Fix structured data that fails to parse",
		applies: func(f *findings) bool {
			for _, b := range f.schema.Blocks {
				if b.Error != "" {
					return true
				}
			}
			return false
		},
		build: func(f *findings) Recommendation {
			return Recommendation{
				Title:       "Fix invalid structured data",
				Description: "At least one structured-data block could not be parsed and was ignored.",
				Rationale:   "Unparseable markup contributes nothing and may be treated as a quality signal.",
				Example:     "Validate JSON-LD with a schema validator before publishing",
			}
		},
	},
	{
		subScore: SubScoreSchema,
		category: CategoryTechnical,
		effort:   EffortLow,
		action:   "Fill in missing required schema properties",
		applies:  func(f *findings) bool { return len(missingSchemaFields(f.schema)) > 0 },
		build: func(f *findings) Recommendation {
			return Recommendation{
				Title:       "Complete required schema properties",
				Description: "Structured data is missing: " + strings.Join(missingSchemaFields(f.schema), ", ") + ".",
				Rationale:   "Incomplete entities are often skipped by consumers of structured data.",
				Example:     `"name", "description" and type-specific fields such as "offers" for Product`,
			}
		},
	},
	{
		subScore: SubScoreQuestionAnswerMatch,
		category: CategoryContent,
		effort:   EffortMedium,
		applies:  func(f *findings) bool { return f.questions.FAQCount == 0 },
		build: func(f *findings) Recommendation {
			return Recommendation{
				Title:       "Add a FAQ section",
				Description: "The page has no question and answer pairs.",
				Rationale:   "Answer engines favour content phrased as direct answers to questions.",
				Example:     "<h2>What is " + exampleTopic(f) + "?</h2><p>A one or two sentence answer.</p>",
			}
		},
	},
	{
		subScore: SubScoreQuestionAnswerMatch,
		category: CategoryContent,
		effort:   EffortMedium,
		applies:  func(f *findings) bool { return len(unmatchedKeywords(f.questions)) > 0 },
		build: func(f *findings) Recommendation {
			missing := unmatchedKeywords(f.questions)
			return Recommendation{
				Title:       "Answer questions about your target keywords",
				Description: "No question on the page addresses " + quoteList(missing, 3) + ".",
				Rationale:   "Queries about a keyword are matched against questions and their answers.",
				Example:     fmt.Sprintf("<h2>How does %s work?</h2>", missing[0]),
			}
		},
	},
	{
		subScore: SubScoreReadability,
		category: CategoryContent,
		effort:   EffortMedium,
		applies: func(f *findings) bool {
			return f.readability.AvgSentenceLength > 0 && f.readability.AvgSentenceLength > sentenceBandMax(f)
		},
		build: func(f *findings) Recommendation {
			return Recommendation{
				Title:       "Shorten long sentences",
				Description: fmt.Sprintf("Sentences average %.1f words.", f.readability.AvgSentenceLength),
				Rationale:   "Short, self-contained sentences are easier to quote as answers.",
				Example:     "Split compound sentences at conjunctions and lead with the key fact.",
			}
		},
	},
	{
		subScore: SubScoreReadability,
		category: CategoryContent,
		effort:   EffortMedium,
		applies:  func(f *findings) bool { return f.readability.FleschKincaidGrade > gradeBandMax(f) },
		build: func(f *findings) Recommendation {
			return Recommendation{
				Title:       "Use simpler wording",
				Description: fmt.Sprintf("The text reads at grade level %.1f.", f.readability.FleschKincaidGrade),
				Rationale:   "Plain language widens the audience an answer can serve.",
				Example:     `"use" instead of "utilize", "help" instead of "facilitate"`,
			}
		},
	},
	{
		subScore: SubScoreContentDepth,
		category: CategoryContent,
		effort:   EffortHigh,
		applies:  func(f *findings) bool { return true },
		build: func(f *findings) Recommendation {
			return Recommendation{
				Title:       "Expand thin content",
				Description: fmt.Sprintf("The page has %d words of body text.", f.doc.WordCount()),
				Rationale:   "Comprehensive pages cover more of the questions a topic raises.",
				Example:     "Add sections on use cases, comparisons and common problems.",
			}
		},
	},
	{
		subScore: SubScoreContentDepth,
		category: CategoryStructure,
		effort:   EffortLow,
		action:   "Turn step or feature descriptions into lists or tables",
		applies:  func(f *findings) bool { return f.doc.count(NodeList)+f.doc.count(NodeTable) == 0 },
		build: func(f *findings) Recommendation {
			return Recommendation{
				Title:       "Add lists or tables",
				Description: "The page has no lists or tables.",
				Rationale:   "Lists and tables are extracted verbatim into generated answers.",
				Example:     "<ol><li>Step one</li><li>Step two</li></ol>",
			}
		},
	},
	{
		subScore: SubScoreContentDepth,
		category: CategoryTechnical,
		effort:   EffortLow,
		action:   "Write alt text for every image",
		applies:  func(f *findings) bool { return f.imageCount > 0 && f.altRate < 1 },
		build: func(f *findings) Recommendation {
			return Recommendation{
				Title:       "Add alt text to images",
				Description: fmt.Sprintf("%.0f%% of images have alt text.", f.altRate*100),
				Rationale:   "Alt text is the only description of an image available to text models.",
				Example:     `<img src="chart.png" alt="Monthly cost comparison by plan">`,
			}
		},
	},
	{
		subScore: SubScoreKeywordOptimization,
		category: CategoryTechnical,
		effort:   EffortLow,
		action:   "Put the primary keyword in the title",
		applies:  func(f *findings) bool { return keywordMissing(f, func(k KeywordScore) bool { return k.InTitle }) },
		build: func(f *findings) Recommendation {
			return Recommendation{
				Title:       "Include the target keyword in the page title",
				Description: "The title does not mention " + quoteList(f.keywords, 1) + ".",
				Rationale:   "The title is the strongest single relevance signal.",
				Example:     "<title>" + exampleTopic(f) + " | Brand</title>",
			}
		},
	},
	{
		subScore: SubScoreKeywordOptimization,
		category: CategoryContent,
		effort:   EffortLow,
		action:   "Put the primary keyword in the H1",
		applies:  func(f *findings) bool { return keywordMissing(f, func(k KeywordScore) bool { return k.InH1 }) },
		build: func(f *findings) Recommendation {
			return Recommendation{
				Title:       "Include the target keyword in the H1",
				Description: "The H1 does not mention " + quoteList(f.keywords, 1) + ".",
				Rationale:   "The H1 confirms the topic promised by the title.",
				Example:     "<h1>" + exampleTopic(f) + "</h1>",
			}
		},
	},
	{
		subScore: SubScoreKeywordOptimization,
		category: CategoryContent,
		effort:   EffortLow,
		action:   "Mention the primary keyword in the first paragraph",
		applies: func(f *findings) bool {
			return keywordMissing(f, func(k KeywordScore) bool { return k.InFirstParagraph })
		},
		build: func(f *findings) Recommendation {
			return Recommendation{
				Title:       "Mention the target keyword in the opening paragraph",
				Description: "The first paragraph does not mention " + quoteList(f.keywords, 1) + ".",
				Rationale:   "Opening paragraphs are most often used as the summary answer.",
				Example:     exampleTopic(f) + " is ... (define it in the first sentence)",
			}
		},
	},
	{
		subScore: SubScoreKeywordOptimization,
		category: CategoryTechnical,
		effort:   EffortLow,
		action:   "Add the primary keyword to the meta description",
		applies: func(f *findings) bool {
			return keywordMissing(f, func(k KeywordScore) bool { return k.InMetaDescription })
		},
		build: func(f *findings) Recommendation {
			return Recommendation{
				Title:       "Add the target keyword to the meta description",
				Description: "The meta description is missing or does not mention " + quoteList(f.keywords, 1) + ".",
				Rationale:   "Meta descriptions are reused as snippet text.",
				Example:     `<meta name="description" content="` + exampleTopic(f) + ` explained in plain terms.">`,
			}
		},
	},
}

// fallbacks cover sub-scores below threshold that no specific template explains
var fallbacks = map[SubScore]Recommendation{
	SubScoreReadability: {
		Title:       "Improve readability",
		Description: "Readability is below the target for this content category.",
		Rationale:   "Clear prose is easier for answer engines to quote accurately.",
		Example:     "Prefer short paragraphs that each make one point.",
		Category:    CategoryContent,
	},
	SubScoreHeadingsStructure: {
		Title:       "Strengthen the heading hierarchy",
		Description: "The heading outline does not describe the content well.",
		Rationale:   "Descriptive headings let answer engines locate the relevant section.",
		Example:     "Give every major section a descriptive H2.",
		Category:    CategoryStructure,
	},
	SubScoreSchema: {
		Title:       "Broaden structured data coverage",
		Description: "Structured data is present but covers little of the page.",
		Rationale:   "Each additional entity type adds explicit facts.",
		Example:     "Add Organization and BreadcrumbList alongside the main entity.",
		Category:    CategoryTechnical,
	},
	SubScoreQuestionAnswerMatch: {
		Title:       "Phrase headings as questions",
		Description: "Few sections read as answers to specific questions.",
		Rationale:   "Question headings map directly onto conversational queries.",
		Example:     "<h2>How long does delivery take?</h2>",
		Category:    CategoryContent,
	},
	SubScoreKeywordOptimization: {
		Title:       "Use target keywords more consistently",
		Description: "Target keywords appear too rarely or too often in the body text.",
		Rationale:   "Natural, consistent keyword use confirms topical relevance.",
		Example:     "Aim for a density between 0.5% and 2.5%.",
		Category:    CategoryContent,
	},
}

// generateRecommendations applies the templates for every sub-score below its
// threshold, then builds quick wins from the low-effort ones.
func generateRecommendations(f *findings, cfg *ScoringConfig) ([]Recommendation, []QuickWin) {
	recs := []Recommendation{}
	wins := []QuickWin{}
	seenWins := make(map[string]bool)

	for _, name := range subScoreOrder {
		score, ok := f.scores.Get(name)
		if !ok {
			continue
		}
		gap := cfg.threshold(f.contentType, name) - float64(score)
		if gap <= 0 {
			continue
		}
		impact := gap * f.weights[name]
		priority := impactPriority(impact, cfg.Recommendations)
		increase := int(math.Round(impact))

		matched := false
		for _, t := range templates {
			if t.subScore != name || !t.applies(f) {
				continue
			}
			matched = true
			r := t.build(f)
			r.Category = t.category
			r.Priority = priority
			r.ExpectedImpact = expectedImpact(name, increase)
			r.impact = impact
			recs = append(recs, r)

			if t.effort == EffortLow && t.action != "" && !seenWins[t.action] {
				seenWins[t.action] = true
				wins = append(wins, QuickWin{
					Action:            t.action,
					Impact:            r.ExpectedImpact,
					Effort:            EffortLow,
					PotentialIncrease: increase,
				})
			}
		}
		if fb, ok := fallbacks[name]; ok && !matched {
			fb.Priority = priority
			fb.ExpectedImpact = expectedImpact(name, increase)
			fb.impact = impact
			recs = append(recs, fb)
		}
	}

	sort.SliceStable(wins, func(i, j int) bool {
		if wins[i].PotentialIncrease != wins[j].PotentialIncrease {
			return wins[i].PotentialIncrease > wins[j].PotentialIncrease
		}
		return wins[i].Action < wins[j].Action
	})
	if limit := cfg.Recommendations.MaxQuickWins; limit > 0 && len(wins) > limit {
		wins = wins[:limit]
	}
	return recs, wins
}

// mergeAIRecommendations adds model recommendations whose normalised title is
// new. A known title is only upgraded when the model marks it high priority.
func mergeAIRecommendations(recs []Recommendation, ai *AIAnalysis, maxItems int) []Recommendation {
	if ai == nil {
		return recs
	}
	recs = append([]Recommendation(nil), recs...)
	index := make(map[string]int, len(recs))
	for i, r := range recs {
		index[normalizeTitle(r.Title)] = i
	}

	added := 0
	for d, dim := range ai.Dimensions() {
		for _, ar := range dim.Recommendations {
			key := normalizeTitle(ar.Title)
			if key == "" {
				continue
			}
			if i, ok := index[key]; ok {
				if ar.Priority == PriorityHigh {
					recs[i].Priority = PriorityHigh
				}
				continue
			}
			if maxItems > 0 && added >= maxItems {
				continue
			}
			priority := ar.Priority
			if priority == "" {
				priority = PriorityMedium
			}
			index[key] = len(recs)
			recs = append(recs, Recommendation{
				Title:          ar.Title,
				Description:    ar.Description,
				Rationale:      "Raised by the qualitative review of " + dimensionOrder[d] + ".",
				ExpectedImpact: "Improves how answer engines interpret the page",
				Priority:       priority,
				Category:       CategoryAI,
			})
			added++
		}
	}
	return recs
}

// sortRecommendations orders by priority, then impact, then title
func sortRecommendations(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Priority.rank() != b.Priority.rank() {
			return a.Priority.rank() < b.Priority.rank()
		}
		if a.impact != b.impact {
			return a.impact > b.impact
		}
		return a.Title < b.Title
	})
}

func impactPriority(impact float64, cfg RecommendationConfig) Priority {
	switch {
	case impact >= cfg.ImpactHigh:
		return PriorityHigh
	case impact >= cfg.ImpactMedium:
		return PriorityMedium
	}
	return PriorityLow
}

func expectedImpact(name SubScore, increase int) string {
	if increase < 1 {
		return fmt.Sprintf("Small improvement to %s", name)
	}
	return fmt.Sprintf("Up to +%d overall points via %s", increase, name)
}

// normalizeTitle folds accents, case and punctuation so near-identical titles compare equal
func normalizeTitle(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}
	folded = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return unicode.ToLower(r)
	}, folded)
	return collapseSpace(folded)
}

func suggestedSchemaType(t ContentType) string {
	switch t {
	case ContentTypeEcommerce:
		return "Product"
	case ContentTypeSaaS:
		return "SoftwareApplication"
	case ContentTypeLocalBusiness:
		return "LocalBusiness"
	case ContentTypeHealthcare:
		return "MedicalOrganization"
	}
	return "FAQPage"
}

func exampleTopic(f *findings) string {
	if len(f.keywords) > 0 {
		return f.keywords[0]
	}
	if f.doc.Title != "" {
		return f.doc.Title
	}
	return "your topic"
}

func quoteList(items []string, limit int) string {
	if len(items) > limit {
		items = items[:limit]
	}
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}

func missingSchemaFields(s SchemaFinding) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, b := range s.Blocks {
		for _, m := range b.MissingFields {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out
}

func unmatchedKeywords(q QuestionMatch) []string {
	out := []string{}
	for _, k := range q.Keywords {
		if !k.Matched {
			out = append(out, k.Keyword)
		}
	}
	return out
}

// keywordMissing checks the primary keyword only
func keywordMissing(f *findings, placed func(KeywordScore) bool) bool {
	if f.keywordInfo == nil || len(f.keywordInfo.Keywords) == 0 {
		return false
	}
	return !placed(f.keywordInfo.Keywords[0])
}

func sentenceBandMax(f *findings) float64 {
	return f.bands.SentenceLength.Max
}

func gradeBandMax(f *findings) float64 {
	return f.bands.GradeLevel.Max
}

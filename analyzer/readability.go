package analyzer

import "math"

// ReadabilityMetrics holds the raw linguistic measurements and their 0-100 mappings
type ReadabilityMetrics struct {
	Sentences           int     `json:"sentences"`
	Words               int     `json:"words"`
	Syllables           int     `json:"syllables"`
	PolysyllableWords   int     `json:"polysyllableWords"`
	AvgSentenceLength   float64 `json:"avgSentenceLength"`
	AvgWordLength       float64 `json:"avgWordLength"`
	AvgSyllablesPerWord float64 `json:"avgSyllablesPerWord"`
	FleschReadingEase   float64 `json:"fleschReadingEase"`
	FleschKincaidGrade  float64 `json:"fleschKincaidGrade"`
	SMOGIndex           float64 `json:"smogIndex"`
	ColemanLiauIndex    float64 `json:"colemanLiauIndex"`
	FleschKincaidScore  int     `json:"fleschKincaidScore"`
	SMOGScore           int     `json:"smogScore"`
	ColemanLiauScore    int     `json:"colemanLiauScore"`
	Score               int     `json:"score"`
}

// analyzeReadability measures paragraph prose. Documents without paragraphs
// fall back to every text-bearing node.
func analyzeReadability(doc *ContentDocument, cfg ReadabilityConfig) ReadabilityMetrics {
	texts := doc.ParagraphText()
	if len(texts) == 0 {
		for _, n := range doc.Nodes {
			if n.countsTowardText() && n.Type != NodeHeading {
				texts = append(texts, n.Text)
			}
		}
	}

	var m ReadabilityMetrics
	letters := 0
	for _, t := range texts {
		m.Sentences += countSentences(t)
		for _, w := range words(t) {
			m.Words++
			letters += letterCount(w)
			syl := syllables(w)
			m.Syllables += syl
			if syl >= 3 {
				m.PolysyllableWords++
			}
		}
	}

	// Nothing to measure: defined minimum instead of dividing by zero
	if m.Words == 0 || m.Sentences == 0 {
		return m
	}

	wc := float64(m.Words)
	sentences := float64(m.Sentences)
	asl := wc / sentences
	asw := float64(m.Syllables) / wc
	awl := float64(letters) / wc

	m.AvgSentenceLength = round2(asl)
	m.AvgWordLength = round2(awl)
	m.AvgSyllablesPerWord = round2(asw)
	m.FleschReadingEase = round2(206.835 - 1.015*asl - 84.6*asw)
	fk := 0.39*asl + 11.8*asw - 15.59
	smog := 1.043*math.Sqrt(float64(m.PolysyllableWords)*30/sentences) + 3.1291
	cli := 0.0588*(awl*100) - 0.296*(sentences/wc*100) - 15.8
	m.FleschKincaidGrade = round2(fk)
	m.SMOGIndex = round2(smog)
	m.ColemanLiauIndex = round2(cli)

	m.FleschKincaidScore = clampScore(cfg.GradeLevel.score(fk))
	m.SMOGScore = clampScore(cfg.GradeLevel.score(smog))
	m.ColemanLiauScore = clampScore(cfg.GradeLevel.score(cli))

	grade := (cfg.GradeLevel.score(fk) + cfg.GradeLevel.score(smog) + cfg.GradeLevel.score(cli)) / 3
	total := cfg.SentenceWeight + cfg.WordWeight + cfg.GradeWeight
	score := (cfg.SentenceLength.score(asl)*cfg.SentenceWeight +
		cfg.WordLength.score(awl)*cfg.WordWeight +
		grade*cfg.GradeWeight) / total
	m.Score = clampScore(score)
	return m
}

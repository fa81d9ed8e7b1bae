package analyzer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

const (
	DefaultQualitativeTimeout = 30 * time.Second
	DefaultDigestBudget       = 1500
	DefaultMaxContentBytes    = 5 << 20
)

// Input is one page to analyze. HTML is the already-fetched document; plain
// text and markdown are accepted too.
type Input struct {
	HTML     string   `json:"html"`
	URL      string   `json:"url"`
	Keywords []string `json:"keywords,omitempty"`
	Industry string   `json:"industry,omitempty"`
}

// Analyzer runs the AEO scoring pipeline. It holds only read-only
// configuration, so one instance can serve concurrent requests.
type Analyzer struct {
	model              ModelClient
	scoring            *ScoringConfig
	logger             arbor.ILogger
	now                func() time.Time
	qualitativeTimeout time.Duration
	digestBudget       int
	maxContentBytes    int
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithModel sets the language model for the qualitative stage. Without one
// the stage is skipped and recorded as a notice.
func WithModel(m ModelClient) Option {
	return func(a *Analyzer) { a.model = m }
}

func WithLogger(logger arbor.ILogger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithClock overrides the result timestamp source
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// WithScoring replaces the embedded scoring configuration. The config must
// already be validated.
func WithScoring(cfg *ScoringConfig) Option {
	return func(a *Analyzer) {
		if cfg != nil {
			a.scoring = cfg
		}
	}
}

func WithQualitativeTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.qualitativeTimeout = d
		}
	}
}

// WithDigestBudget sets the approximate token budget of the model digest
func WithDigestBudget(tokens int) Option {
	return func(a *Analyzer) {
		if tokens > 0 {
			a.digestBudget = tokens
		}
	}
}

func WithMaxContentBytes(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxContentBytes = n
		}
	}
}

// New creates a new Analyzer instance
func New(opts ...Option) (*Analyzer, error) {
	scoring, err := DefaultScoring()
	if err != nil {
		return nil, fmt.Errorf("failed to load scoring profiles: %w", err)
	}

	a := &Analyzer{
		scoring:            scoring,
		logger:             arbor.NewNoOpLogger(),
		now:                time.Now,
		qualitativeTimeout: DefaultQualitativeTimeout,
		digestBudget:       DefaultDigestBudget,
		maxContentBytes:    DefaultMaxContentBytes,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Analyze performs a complete AEO analysis of the given page
func (a *Analyzer) Analyze(in Input) (*AnalysisResult, error) {
	return a.AnalyzeWithContext(context.Background(), in)
}

// AnalyzeWithContext runs the pipeline. Fatal problems are returned as
// *AnalysisError; recoverable ones appear in Details.Notices. Cancelling ctx
// aborts the model call and the analysis.
func (a *Analyzer) AnalyzeWithContext(ctx context.Context, in Input) (*AnalysisResult, error) {
	start := time.Now()

	pageURL, err := normalizeURL(in.URL)
	if err != nil {
		return nil, err
	}
	if len(in.HTML) > a.maxContentBytes {
		return nil, newError(KindInvalidInput, nil, "content is %d bytes, limit is %d", len(in.HTML), a.maxContentBytes)
	}

	doc, err := Extract(in.HTML)
	if err != nil {
		return nil, err
	}
	extracted := time.Since(start)

	classification := classify(doc, in.Industry, a.scoring.Classifier)
	keywords := targetKeywords(in.Keywords, doc)
	readability := analyzeReadability(doc, a.scoring.Readability)
	headings := analyzeStructure(doc, keywords, a.scoring.Structure)
	schema := analyzeSchema(doc, a.scoring.Schema)
	questions := matchQuestions(doc, keywords, a.scoring.Questions)
	keywordInfo := analyzeKeywords(doc, keywords, a.scoring.Keywords)
	depth := contentDepth(doc, questions.FAQCount, a.scoring.Depth)
	deterministic := time.Since(start)

	notices := append([]Notice{}, doc.Notices...)
	ai, aerr := a.assessQualitative(ctx, doc, keywords, classification.ContentType)
	if ctx.Err() != nil {
		return nil, fmt.Errorf("analysis cancelled: %w", ctx.Err())
	}
	if aerr != nil {
		a.logger.Warn().Str("url", pageURL).Err(aerr).Msg("Qualitative analysis unavailable")
		notices = append(notices, aerr.notice())
	}

	scores := Scores{
		Readability:         readability.Score,
		Schema:              schema.Score,
		QuestionAnswerMatch: questions.Score,
		HeadingsStructure:   headings.Score,
		ContentDepth:        &depth,
	}
	if keywordInfo != nil {
		s := keywordInfo.Score
		scores.KeywordOptimization = &s
	}
	if ai != nil {
		s := ai.Score
		scores.AIAnalysisScore = &s
	}

	profile := selectWeightProfile(a.scoring.profile(classification.ContentType), ai != nil)
	overall, breakdown := aggregate(scores, profile)
	scores.OverallScore = overall

	imageCount, altCount := 0, 0
	lists := ListsAndTables{}
	for _, n := range doc.Nodes {
		switch n.Type {
		case NodeImage:
			imageCount++
			if n.HasAlt {
				altCount++
			}
		case NodeList:
			lists.Lists++
			lists.ListItems += n.Items
		case NodeTable:
			lists.Tables++
		}
	}
	altRate := 0.0
	if imageCount > 0 {
		altRate = round2(float64(altCount) / float64(imageCount))
	}

	f := &findings{
		doc:         doc,
		contentType: classification.ContentType,
		keywords:    keywords,
		scores:      scores,
		weights:     profile.effectiveWeights(scores),
		readability: readability,
		headings:    headings,
		schema:      schema,
		questions:   questions,
		keywordInfo: keywordInfo,
		imageCount:  imageCount,
		altRate:     altRate,
		bands:       a.scoring.Readability,
	}
	recs, wins := generateRecommendations(f, a.scoring)
	recs = mergeAIRecommendations(recs, ai, a.scoring.Recommendations.MaxAIItems)
	sortRecommendations(recs)

	ratio := 0.0
	if doc.RawLength > 0 {
		ratio = round2(float64(doc.TextLength) / float64(doc.RawLength) * 100)
	}

	result := &AnalysisResult{
		URL:             pageURL,
		Timestamp:       a.now().UTC(),
		Scores:          scores,
		Recommendations: recs,
		QuickWins:       wins,
		Details: Details{
			Title:              doc.Title,
			WordCount:          doc.WordCount(),
			HasSchema:          len(doc.Schema) > 0,
			HeadingCount:       len(headings.Headings),
			ImageCount:         imageCount,
			ImageAltTextRate:   altRate,
			ReadabilityMetrics: readability,
			HeadingAnalysis:    headings,
			SchemaDetails:      schema,
			ParagraphCount:     doc.count(NodeParagraph),
			ListsAndTables:     lists,
			FAQCount:           questions.FAQCount,
			ContentToCodeRatio: ratio,
			TargetKeywords:     keywords,
			KeywordsFound:      keywordsFound(doc, keywords),
			QuestionAnswer:     questions,
			KeywordAnalysis:    keywordInfo,
			AIAnalysis:         ai,
			ContentType:        classification.ContentType,
			Industry:           classification.Industry,
			Classification:     classification,
			ScoreBreakdown:     breakdown,
			Notices:            notices,
		},
	}

	a.logger.Debug().
		Str("url", pageURL).
		Str("content_type", string(classification.ContentType)).
		Int("overall_score", scores.OverallScore).
		Int("nodes", len(doc.Nodes)).
		Int64("extract_ms", extracted.Milliseconds()).
		Int64("deterministic_ms", deterministic.Milliseconds()).
		Int64("total_ms", time.Since(start).Milliseconds()).
		Msg("Analysis complete")

	return result, nil
}

// normalizeURL defaults a missing scheme to https. Only absolute http(s) URLs
// with a host are accepted.
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", newError(KindInvalidInput, nil, "url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", newError(KindInvalidInput, err, "malformed url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", newError(KindInvalidInput, nil, "unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", newError(KindInvalidInput, nil, "url has no host")
	}
	return u.String(), nil
}

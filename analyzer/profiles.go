package analyzer

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var defaultProfilesYAML []byte

// Scoring configuration validation errors.
var (
	ErrMissingGeneric      = errors.New("profiles.generic is required")
	ErrProfileWeights      = errors.New("profile weights must sum to 1.0")
	ErrNegativeWeight      = errors.New("profile weights must be non-negative")
	ErrUnknownSubScore     = errors.New("unknown sub-score name")
	ErrInvalidBand         = errors.New("band min must not exceed max")
	ErrReadabilityWeights  = errors.New("readability component weights must be positive")
	ErrInvalidImpactCuts   = errors.New("recommendations.impact_high must be >= impact_medium")
	ErrUnknownCategoryRule = errors.New("classifier category has no matching profile")
)

const weightTolerance = 1e-6

// ScoringConfig holds every banding constant, weight profile and vocabulary the
// engine scores with. It is read-only once loaded and safe to share.
type ScoringConfig struct {
	Readability     ReadabilityConfig            `yaml:"readability"`
	Structure       StructureConfig              `yaml:"structure"`
	Schema          SchemaConfig                 `yaml:"schema"`
	Questions       QuestionConfig               `yaml:"questions"`
	Depth           DepthConfig                  `yaml:"depth"`
	Keywords        KeywordConfig                `yaml:"keywords"`
	Classifier      ClassifierConfig             `yaml:"classifier"`
	Recommendations RecommendationConfig         `yaml:"recommendations"`
	Profiles        map[ContentType]WeightConfig `yaml:"profiles"`
}

// Band is an optimal range. Values inside score 100; values outside lose the
// matching penalty per unit of distance, floored at 0.
type Band struct {
	Min          float64 `yaml:"min"`
	Max          float64 `yaml:"max"`
	BelowPenalty float64 `yaml:"below_penalty"`
	AbovePenalty float64 `yaml:"above_penalty"`
}

func (b Band) score(v float64) float64 {
	s := 100.0
	switch {
	case v < b.Min:
		s -= (b.Min - v) * b.BelowPenalty
	case v > b.Max:
		s -= (v - b.Max) * b.AbovePenalty
	}
	return math.Max(0, s)
}

type ReadabilityConfig struct {
	SentenceLength Band    `yaml:"sentence_length"`
	WordLength     Band    `yaml:"word_length"`
	GradeLevel     Band    `yaml:"grade_level"`
	SentenceWeight float64 `yaml:"sentence_weight"`
	WordWeight     float64 `yaml:"word_weight"`
	GradeWeight    float64 `yaml:"grade_weight"`
}

type StructureConfig struct {
	Base                 float64 `yaml:"base"`
	KeywordBonus         float64 `yaml:"keyword_bonus"`
	NoHeadingsScore      float64 `yaml:"no_headings_score"`
	MissingH1Penalty     float64 `yaml:"missing_h1_penalty"`
	MultipleH1Penalty    float64 `yaml:"multiple_h1_penalty"`
	SkipPenalty          float64 `yaml:"skip_penalty"`
	MaxSkipPenalty       float64 `yaml:"max_skip_penalty"`
	EmptyHeadingPenalty  float64 `yaml:"empty_heading_penalty"`
	NoSubheadingsPenalty float64 `yaml:"no_subheadings_penalty"`
	NoSubheadingsWords   int     `yaml:"no_subheadings_words"`
}

type SchemaConfig struct {
	ValidCompleteness  float64             `yaml:"valid_completeness"`
	CompletenessPoints float64             `yaml:"completeness_points"`
	ValidityPoints     float64             `yaml:"validity_points"`
	CountPoints        float64             `yaml:"count_points"`
	CountBlocks        int                 `yaml:"count_blocks"`
	DiversityPoints    float64             `yaml:"diversity_points"`
	DiversityCap       int                 `yaml:"diversity_cap"`
	DefaultRequired    []string            `yaml:"default_required"`
	RequiredFields     map[string][]string `yaml:"required_fields"`
}

type QuestionConfig struct {
	MatchPoints float64 `yaml:"match_points"`
	FAQPoints   float64 `yaml:"faq_points"`
	FAQCap      float64 `yaml:"faq_cap"`
	MaxKeywords int     `yaml:"max_keywords"`
}

type DepthConfig struct {
	Bands          []WordBand `yaml:"bands"`
	Floor          float64    `yaml:"floor"`
	StructureBonus float64    `yaml:"structure_bonus"`
	ImageBonus     float64    `yaml:"image_bonus"`
	FAQBonus       float64    `yaml:"faq_bonus"`
}

// WordBand awards Score to documents of at least MinWords words
type WordBand struct {
	MinWords int     `yaml:"min_words"`
	Score    float64 `yaml:"score"`
}

type KeywordConfig struct {
	TitlePoints          float64 `yaml:"title_points"`
	H1Points             float64 `yaml:"h1_points"`
	FirstParagraphPoints float64 `yaml:"first_paragraph_points"`
	MetaPoints           float64 `yaml:"meta_points"`
	DensityPoints        float64 `yaml:"density_points"`
	Density              Band    `yaml:"density"`
}

type ClassifierConfig struct {
	MinHits     int            `yaml:"min_hits"`
	MinDensity  float64        `yaml:"min_density"`
	SchemaBonus float64        `yaml:"schema_bonus"`
	Categories  []CategoryRule `yaml:"categories"`
}

// CategoryRule is the vocabulary for one content type. Rules are evaluated in
// order, so earlier rules win ties.
type CategoryRule struct {
	Type        ContentType `yaml:"type"`
	Terms       []string    `yaml:"terms"`
	SchemaTypes []string    `yaml:"schema_types"`
	Aliases     []string    `yaml:"aliases"`
}

type RecommendationConfig struct {
	DefaultThreshold float64              `yaml:"default_threshold"`
	Thresholds       map[SubScore]float64 `yaml:"thresholds"`
	ImpactHigh       float64              `yaml:"impact_high"`
	ImpactMedium     float64              `yaml:"impact_medium"`
	MaxQuickWins     int                  `yaml:"max_quick_wins"`
	MaxAIItems       int                  `yaml:"max_ai_items"`
}

// WeightConfig is one category's weight profile and optional threshold overrides
type WeightConfig struct {
	Weights    map[SubScore]float64 `yaml:"weights"`
	Thresholds map[SubScore]float64 `yaml:"thresholds"`
}

var loadDefaultScoring = sync.OnceValues(func() (*ScoringConfig, error) {
	return ParseScoring(defaultProfilesYAML)
})

// DefaultScoring returns the embedded scoring configuration
func DefaultScoring() (*ScoringConfig, error) {
	return loadDefaultScoring()
}

// LoadScoringFile reads a replacement scoring configuration from disk
func LoadScoringFile(path string) (*ScoringConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scoring file: %w", err)
	}
	return ParseScoring(data)
}

// ParseScoring decodes and validates a YAML scoring configuration
func ParseScoring(data []byte) (*ScoringConfig, error) {
	var cfg ScoringConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse scoring YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scoring validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks weight sums, bands and cross references
func (c *ScoringConfig) Validate() error {
	if _, ok := c.Profiles[ContentTypeGeneric]; !ok {
		return ErrMissingGeneric
	}

	known := make(map[SubScore]bool, len(subScoreOrder))
	for _, s := range subScoreOrder {
		known[s] = true
	}

	for name, p := range c.Profiles {
		sum := 0.0
		for s, w := range p.Weights {
			if !known[s] {
				return fmt.Errorf("%w: %s in profile %s", ErrUnknownSubScore, s, name)
			}
			if w < 0 {
				return fmt.Errorf("%w: %s in profile %s", ErrNegativeWeight, s, name)
			}
			sum += w
		}
		if math.Abs(sum-1) > weightTolerance {
			return fmt.Errorf("%w: profile %s sums to %.6f", ErrProfileWeights, name, sum)
		}
		for s := range p.Thresholds {
			if !known[s] {
				return fmt.Errorf("%w: threshold %s in profile %s", ErrUnknownSubScore, s, name)
			}
		}
	}
	for s := range c.Recommendations.Thresholds {
		if !known[s] {
			return fmt.Errorf("%w: threshold %s", ErrUnknownSubScore, s)
		}
	}

	bands := map[string]Band{
		"readability.sentence_length": c.Readability.SentenceLength,
		"readability.word_length":     c.Readability.WordLength,
		"readability.grade_level":     c.Readability.GradeLevel,
		"keywords.density":            c.Keywords.Density,
	}
	for name, b := range bands {
		if b.Min > b.Max {
			return fmt.Errorf("%w: %s", ErrInvalidBand, name)
		}
	}

	r := c.Readability
	if r.SentenceWeight+r.WordWeight+r.GradeWeight <= 0 {
		return ErrReadabilityWeights
	}
	if c.Recommendations.ImpactHigh < c.Recommendations.ImpactMedium {
		return ErrInvalidImpactCuts
	}
	for _, rule := range c.Classifier.Categories {
		if _, ok := c.Profiles[rule.Type]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCategoryRule, rule.Type)
		}
	}
	return nil
}

// profile returns the weight profile for a content type, falling back to generic
func (c *ScoringConfig) profile(t ContentType) WeightConfig {
	if p, ok := c.Profiles[t]; ok {
		return p
	}
	return c.Profiles[ContentTypeGeneric]
}

// threshold resolves the recommendation threshold for a sub-score in a category
func (c *ScoringConfig) threshold(t ContentType, s SubScore) float64 {
	if v, ok := c.profile(t).Thresholds[s]; ok {
		return v
	}
	if v, ok := c.Recommendations.Thresholds[s]; ok {
		return v
	}
	return c.Recommendations.DefaultThreshold
}

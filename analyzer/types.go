package analyzer

import "time"

// SubScore names one of the scores that feed the overall score
type SubScore string

const (
	SubScoreReadability         SubScore = "readability"
	SubScoreSchema              SubScore = "schema"
	SubScoreQuestionAnswerMatch SubScore = "questionAnswerMatch"
	SubScoreHeadingsStructure   SubScore = "headingsStructure"
	SubScoreContentDepth        SubScore = "contentDepth"
	SubScoreKeywordOptimization SubScore = "keywordOptimization"
	SubScoreAIAnalysis          SubScore = "aiAnalysis"
)

// subScoreOrder fixes iteration order so aggregation and output are deterministic
var subScoreOrder = []SubScore{
	SubScoreReadability,
	SubScoreSchema,
	SubScoreQuestionAnswerMatch,
	SubScoreHeadingsStructure,
	SubScoreContentDepth,
	SubScoreKeywordOptimization,
	SubScoreAIAnalysis,
}

// ContentType is the coarse category selected by the classifier
type ContentType string

const (
	ContentTypeEcommerce     ContentType = "e-commerce"
	ContentTypeSaaS          ContentType = "saas"
	ContentTypeLocalBusiness ContentType = "local-business"
	ContentTypeHealthcare    ContentType = "healthcare"
	ContentTypeGeneric       ContentType = "generic"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

type RecommendationCategory string

const (
	CategoryTechnical RecommendationCategory = "technical"
	CategoryContent   RecommendationCategory = "content"
	CategoryStructure RecommendationCategory = "structure"
	CategoryAI        RecommendationCategory = "ai"
)

// AnalysisResult represents the complete AEO assessment of one page
type AnalysisResult struct {
	URL             string           `json:"url"`
	Timestamp       time.Time        `json:"timestamp"`
	Scores          Scores           `json:"scores"`
	Recommendations []Recommendation `json:"recommendations"`
	QuickWins       []QuickWin       `json:"quickWins"`
	Details         Details          `json:"details"`
}

// Scores holds every sub-score on a 0-100 scale. Optional scores are nil when
// they could not be computed.
type Scores struct {
	Readability         int  `json:"readability"`
	Schema              int  `json:"schema"`
	QuestionAnswerMatch int  `json:"questionAnswerMatch"`
	HeadingsStructure   int  `json:"headingsStructure"`
	OverallScore        int  `json:"overallScore"`
	ContentDepth        *int `json:"contentDepth,omitempty"`
	KeywordOptimization *int `json:"keywordOptimization,omitempty"`
	AIAnalysisScore     *int `json:"aiAnalysisScore,omitempty"`
}

// Get returns a sub-score and whether it is present
func (s Scores) Get(name SubScore) (int, bool) {
	switch name {
	case SubScoreReadability:
		return s.Readability, true
	case SubScoreSchema:
		return s.Schema, true
	case SubScoreQuestionAnswerMatch:
		return s.QuestionAnswerMatch, true
	case SubScoreHeadingsStructure:
		return s.HeadingsStructure, true
	case SubScoreContentDepth:
		return deref(s.ContentDepth)
	case SubScoreKeywordOptimization:
		return deref(s.KeywordOptimization)
	case SubScoreAIAnalysis:
		return deref(s.AIAnalysisScore)
	}
	return 0, false
}

func deref(v *int) (int, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Recommendation is a single improvement action
type Recommendation struct {
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	Rationale      string                 `json:"rationale"`
	Example        string                 `json:"example"`
	ExpectedImpact string                 `json:"expectedImpact"`
	Priority       Priority               `json:"priority"`
	Category       RecommendationCategory `json:"category"`

	impact float64
}

// QuickWin is a low-effort action tied to a sub-score below its threshold
type QuickWin struct {
	Action            string `json:"action"`
	Impact            string `json:"impact"`
	Effort            Effort `json:"effort"`
	PotentialIncrease int    `json:"potentialIncrease"`
}

// Details carries the measurements behind the scores
type Details struct {
	Title              string              `json:"title"`
	WordCount          int                 `json:"wordCount"`
	HasSchema          bool                `json:"hasSchema"`
	HeadingCount       int                 `json:"headingCount"`
	ImageCount         int                 `json:"imageCount"`
	ImageAltTextRate   float64             `json:"imageAltTextRate"`
	ReadabilityMetrics ReadabilityMetrics  `json:"readabilityMetrics"`
	HeadingAnalysis    HeadingAnalysis     `json:"headingAnalysis"`
	SchemaDetails      SchemaFinding       `json:"schemaDetails"`
	ParagraphCount     int                 `json:"paragraphCount"`
	ListsAndTables     ListsAndTables      `json:"listsAndTables"`
	FAQCount           int                 `json:"faqCount"`
	ContentToCodeRatio float64             `json:"contentToCodeRatio"`
	TargetKeywords     []string            `json:"targetKeywords"`
	KeywordsFound      []string            `json:"keywordsFound"`
	QuestionAnswer     QuestionMatch       `json:"questionAnswer"`
	KeywordAnalysis    *KeywordAnalysis    `json:"keywordAnalysis,omitempty"`
	AIAnalysis         *AIAnalysis         `json:"aiAnalysis,omitempty"`
	ContentType        ContentType         `json:"contentType,omitempty"`
	Industry           string              `json:"industry,omitempty"`
	Classification     Classification      `json:"classification"`
	ScoreBreakdown     []ScoreContribution `json:"scoreBreakdown"`
	Notices            []Notice            `json:"notices,omitempty"`
}

type ListsAndTables struct {
	Lists     int `json:"lists"`
	ListItems int `json:"listItems"`
	Tables    int `json:"tables"`
}

// ScoreContribution explains how one sub-score moved the overall score
type ScoreContribution struct {
	Name         SubScore `json:"name"`
	Score        int      `json:"score"`
	Weight       float64  `json:"weight"`
	Contribution float64  `json:"contribution"`
}

// Notice records a recovered, non-fatal problem
type Notice struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

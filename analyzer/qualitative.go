package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/aeo-optimizer/backend/llm"
	"github.com/go-playground/validator/v10"
)

// ModelClient is the external language model used by the qualitative stage.
// Every llm.Provider satisfies it.
type ModelClient interface {
	GenerateContent(ctx context.Context, request *llm.ContentRequest) (*llm.ContentResponse, error)
}

// Dimension names returned by the model, in output order
const (
	DimensionContentClarity    = "contentClarity"
	DimensionSemanticRelevance = "semanticRelevance"
	DimensionEntityCoverage    = "entityCoverage"
	DimensionCompleteness      = "completeness"
	DimensionFactualAccuracy   = "factualAccuracy"
)

var dimensionOrder = []string{
	DimensionContentClarity,
	DimensionSemanticRelevance,
	DimensionEntityCoverage,
	DimensionCompleteness,
	DimensionFactualAccuracy,
}

const charsPerToken = 4

var codeFenceRegex = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// AIRecommendation is a recommendation proposed by the model
type AIRecommendation struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    Priority `json:"priority,omitempty"`
}

// DimensionAssessment is the model's view of one quality dimension
type DimensionAssessment struct {
	Score           int                `json:"score"`
	Observations    []string           `json:"observations"`
	Recommendations []AIRecommendation `json:"recommendations"`
}

// AIAnalysis is the validated qualitative assessment
type AIAnalysis struct {
	ContentClarity    DimensionAssessment `json:"contentClarity"`
	SemanticRelevance DimensionAssessment `json:"semanticRelevance"`
	EntityCoverage    DimensionAssessment `json:"entityCoverage"`
	Completeness      DimensionAssessment `json:"completeness"`
	FactualAccuracy   DimensionAssessment `json:"factualAccuracy"`
	Summary           string              `json:"summary,omitempty"`
	Score             int                 `json:"score"`
	Provider          string              `json:"provider,omitempty"`
	Model             string              `json:"model,omitempty"`
}

// Dimensions returns the five assessments in a fixed order
func (a *AIAnalysis) Dimensions() []DimensionAssessment {
	return []DimensionAssessment{a.ContentClarity, a.SemanticRelevance, a.EntityCoverage, a.Completeness, a.FactualAccuracy}
}

// wire types mirror the model's JSON. Pointers distinguish missing from zero.
type wireRecommendation struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Priority    string `json:"priority" validate:"omitempty,oneof=high medium low"`
}

// UnmarshalJSON accepts either a bare string or an object
func (r *wireRecommendation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.Title = strings.TrimSpace(s)
		return nil
	}
	type plain wireRecommendation
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = wireRecommendation(p)
	r.Title = strings.TrimSpace(r.Title)
	r.Priority = strings.ToLower(strings.TrimSpace(r.Priority))
	return nil
}

type wireDimension struct {
	Score           *float64             `json:"score" validate:"required,min=0,max=100"`
	Observations    []string             `json:"observations"`
	Recommendations []wireRecommendation `json:"recommendations" validate:"dive"`
}

type wireAssessment struct {
	ContentClarity    *wireDimension `json:"contentClarity" validate:"required"`
	SemanticRelevance *wireDimension `json:"semanticRelevance" validate:"required"`
	EntityCoverage    *wireDimension `json:"entityCoverage" validate:"required"`
	Completeness      *wireDimension `json:"completeness" validate:"required"`
	FactualAccuracy   *wireDimension `json:"factualAccuracy" validate:"required"`
	Summary           string         `json:"summary"`
}

var assessmentValidator = validator.New()

const qualitativeInstruction = `You are an answer-engine optimization reviewer. You receive a digest of a web page: its title, meta description, heading outline, structured data types and the opening paragraphs.
Assess how well the page would be understood, trusted and quoted by AI answer engines.
Respond with ONLY a JSON object, no prose and no code fences, of this exact shape:
{
  "contentClarity":    {"score": 0-100, "observations": [string], "recommendations": [{"title": string, "description": string, "priority": "high"|"medium"|"low"}]},
  "semanticRelevance": {...same shape...},
  "entityCoverage":    {...same shape...},
  "completeness":      {...same shape...},
  "factualAccuracy":   {...same shape...},
  "summary": string
}
Give at most two recommendations per dimension. Recommendation titles are short imperative phrases.`

func outputSchema() map[string]interface{} {
	recommendation := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"title":       map[string]interface{}{"type": "string"},
			"description": map[string]interface{}{"type": "string"},
			"priority":    map[string]interface{}{"type": "string", "enum": []string{"high", "medium", "low"}},
		},
		"required": []string{"title"},
	}
	dimension := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"score":           map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 100},
			"observations":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"recommendations": map[string]interface{}{"type": "array", "items": recommendation},
		},
		"required": []string{"score", "observations", "recommendations"},
	}
	props := map[string]interface{}{
		"summary": map[string]interface{}{"type": "string"},
	}
	for _, d := range dimensionOrder {
		props[d] = dimension
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   dimensionOrder,
	}
}

// buildDigest assembles the model input from the node arena. Paragraphs are
// added in document order until the token budget is spent.
func buildDigest(doc *ContentDocument, keywords []string, contentType ContentType, budgetTokens int) string {
	maxChars := budgetTokens * charsPerToken
	var b strings.Builder

	fmt.Fprintf(&b, "Title: %s\n", doc.Title)
	if doc.MetaDescription != "" {
		fmt.Fprintf(&b, "Meta description: %s\n", doc.MetaDescription)
	}
	if len(keywords) > 0 {
		fmt.Fprintf(&b, "Target keywords: %s\n", strings.Join(keywords, ", "))
	}
	fmt.Fprintf(&b, "Content category: %s\n", contentType)
	if types := doc.SchemaTypes(); len(types) > 0 {
		fmt.Fprintf(&b, "Structured data types: %s\n", strings.Join(types, ", "))
	}

	if headings := doc.Headings(); len(headings) > 0 {
		b.WriteString("Headings:\n")
		for _, i := range headings {
			n := doc.Nodes[i]
			line := fmt.Sprintf("%sH%d: %s\n", strings.Repeat("  ", n.Level-1), n.Level, n.Text)
			if b.Len()+len(line) > maxChars {
				break
			}
			b.WriteString(line)
		}
	}

	b.WriteString("Content:\n")
	for _, p := range doc.ParagraphText() {
		remaining := maxChars - b.Len()
		if remaining <= 1 {
			break
		}
		if len(p)+1 > remaining {
			b.WriteString(truncateWords(p, remaining-1))
			b.WriteByte('\n')
			break
		}
		b.WriteString(p)
		b.WriteByte('\n')
	}
	return b.String()
}

// truncateWords cuts s to at most n bytes on a word boundary
func truncateWords(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.ToValidUTF8(cut, "")
}

// assessQualitative calls the model under a timeout derived from ctx. Every
// failure is returned as a QUALITATIVE_UNAVAILABLE error for the caller to
// record as a notice.
func (a *Analyzer) assessQualitative(ctx context.Context, doc *ContentDocument, keywords []string, contentType ContentType) (*AIAnalysis, *AnalysisError) {
	if a.model == nil {
		return nil, newError(KindQualitativeUnavailable, nil, "no model configured")
	}

	ctx, cancel := context.WithTimeout(ctx, a.qualitativeTimeout)
	defer cancel()

	req := &llm.ContentRequest{
		SystemInstruction: qualitativeInstruction,
		Messages:          []llm.Message{{Role: "user", Content: buildDigest(doc, keywords, contentType, a.digestBudget)}},
		OutputSchema:      outputSchema(),
		Temperature:       0.2,
		MaxTokens:         2048,
	}

	type result struct {
		resp *llm.ContentResponse
		err  error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		resp, err := a.model.GenerateContent(ctx, req)
		done <- result{resp, err}
	}()

	var r result
	select {
	case <-ctx.Done():
		return nil, newError(KindQualitativeUnavailable, ctx.Err(), "model call did not complete")
	case r = <-done:
	}
	a.logger.Debug().Int64("elapsed_ms", time.Since(start).Milliseconds()).Msg("Qualitative model call finished")

	if r.err != nil {
		return nil, newError(KindQualitativeUnavailable, r.err, "model call failed")
	}
	if r.resp == nil {
		return nil, newError(KindQualitativeUnavailable, nil, "model returned no response")
	}

	analysis, err := parseAssessment(r.resp.Text)
	if err != nil {
		return nil, newError(KindQualitativeUnavailable, err, "invalid model response")
	}
	analysis.Provider = string(r.resp.Provider)
	analysis.Model = r.resp.Model
	return analysis, nil
}

// parseAssessment decodes strict JSON first, then falls back to scanning for
// an embedded JSON object.
func parseAssessment(text string) (*AIAnalysis, error) {
	var lastErr error
	for _, candidate := range jsonCandidates(text) {
		var w wireAssessment
		if err := json.Unmarshal([]byte(candidate), &w); err != nil {
			lastErr = err
			continue
		}
		if err := assessmentValidator.Struct(&w); err != nil {
			lastErr = fmt.Errorf("assessment shape: %w", err)
			continue
		}
		return w.toAnalysis(), nil
	}
	if lastErr == nil {
		lastErr = errors.New("no JSON object found")
	}
	return nil, lastErr
}

// jsonCandidates yields the raw text, fenced blocks and balanced objects, in that order
func jsonCandidates(text string) []string {
	trimmed := strings.TrimSpace(text)
	candidates := []string{trimmed}
	for _, m := range codeFenceRegex.FindAllStringSubmatch(trimmed, -1) {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	candidates = append(candidates, balancedObjects(trimmed)...)
	return candidates
}

// balancedObjects returns each top-level {...} span, honouring string escapes
func balancedObjects(s string) []string {
	var out []string
	depth, start := 0, -1
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				out = append(out, s[start:i+1])
			}
		}
	}
	return out
}

func (w *wireAssessment) toAnalysis() *AIAnalysis {
	a := &AIAnalysis{
		ContentClarity:    w.ContentClarity.toDimension(),
		SemanticRelevance: w.SemanticRelevance.toDimension(),
		EntityCoverage:    w.EntityCoverage.toDimension(),
		Completeness:      w.Completeness.toDimension(),
		FactualAccuracy:   w.FactualAccuracy.toDimension(),
		Summary:           strings.TrimSpace(w.Summary),
	}
	sum := 0
	for _, d := range a.Dimensions() {
		sum += d.Score
	}
	a.Score = clampScore(float64(sum) / float64(len(dimensionOrder)))
	return a
}

func (d *wireDimension) toDimension() DimensionAssessment {
	out := DimensionAssessment{
		Score:           clampScore(math.Round(*d.Score)),
		Observations:    []string{},
		Recommendations: []AIRecommendation{},
	}
	for _, o := range d.Observations {
		if o = collapseSpace(o); o != "" {
			out.Observations = append(out.Observations, o)
		}
	}
	for _, r := range d.Recommendations {
		out.Recommendations = append(out.Recommendations, AIRecommendation{
			Title:       collapseSpace(r.Title),
			Description: collapseSpace(r.Description),
			Priority:    Priority(r.Priority),
		})
	}
	return out
}

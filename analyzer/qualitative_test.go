package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aeo-optimizer/backend/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const assessmentJSON = `{
  "contentClarity": {"score": 80, "observations": ["Clear opening"], "recommendations": [{"title": "Add a summary box", "description": "Lead with a two line answer.", "priority": "High"}]},
  "semanticRelevance": {"score": 70, "observations": [], "recommendations": ["Cover related terms"]},
  "entityCoverage": {"score": 60, "observations": [], "recommendations": []},
  "completeness": {"score": 90, "observations": [], "recommendations": []},
  "factualAccuracy": {"score": 75.4, "observations": [" cites   sources ", ""], "recommendations": []},
  "summary": "Solid page with {curly} braces and \"quotes\"."
}`

// mockModel is a testify mock of the language model
type mockModel struct {
	mock.Mock
}

func (m *mockModel) GenerateContent(ctx context.Context, req *llm.ContentRequest) (*llm.ContentResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*llm.ContentResponse)
	return resp, args.Error(1)
}

// modelFunc adapts a function to ModelClient
type modelFunc func(ctx context.Context, req *llm.ContentRequest) (*llm.ContentResponse, error)

func (f modelFunc) GenerateContent(ctx context.Context, req *llm.ContentRequest) (*llm.ContentResponse, error) {
	return f(ctx, req)
}

func staticModel(text string) ModelClient {
	return modelFunc(func(context.Context, *llm.ContentRequest) (*llm.ContentResponse, error) {
		return &llm.ContentResponse{Text: text, Provider: llm.ProviderClaude, Model: "stub"}, nil
	})
}

// blockingModel waits for cancellation and reports it on done
func blockingModel(done chan<- struct{}) ModelClient {
	return modelFunc(func(ctx context.Context, _ *llm.ContentRequest) (*llm.ContentResponse, error) {
		<-ctx.Done()
		if done != nil {
			close(done)
		}
		return nil, ctx.Err()
	})
}

func TestParseAssessment(t *testing.T) {
	a, err := parseAssessment(assessmentJSON)
	require.NoError(t, err)

	assert.Equal(t, 80, a.ContentClarity.Score)
	assert.Equal(t, 75, a.FactualAccuracy.Score)
	assert.Equal(t, 75, a.Score, "rounded mean of the five dimensions")
	assert.Equal(t, []string{"cites sources"}, a.FactualAccuracy.Observations)
	assert.Equal(t, `Solid page with {curly} braces and "quotes".`, a.Summary)

	require.Len(t, a.ContentClarity.Recommendations, 1)
	assert.Equal(t, PriorityHigh, a.ContentClarity.Recommendations[0].Priority)
	require.Len(t, a.SemanticRelevance.Recommendations, 1)
	assert.Equal(t, "Cover related terms", a.SemanticRelevance.Recommendations[0].Title)
	assert.Equal(t, Priority(""), a.SemanticRelevance.Recommendations[0].Priority)
	assert.NotNil(t, a.EntityCoverage.Recommendations)
}

func TestParseAssessment_Recovery(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"code fence", "Here you go:\n```json\n" + assessmentJSON + "\n```\nLet me know."},
		{"bare fence", "```\n" + assessmentJSON + "\n```"},
		{"prose around object", "Sure! My assessment follows. " + assessmentJSON + " Hope that helps."},
		{"decoy object first", `Draft: {"draft": true} Final: ` + assessmentJSON + ` trailing {`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := parseAssessment(tt.text)
			require.NoError(t, err)
			assert.Equal(t, 75, a.Score)
		})
	}
}

func TestParseAssessment_Rejects(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no json", "I cannot assess this page."},
		{"truncated", assessmentJSON[:120]},
		{"missing dimension", `{"contentClarity": {"score": 80}, "semanticRelevance": {"score": 80}, "entityCoverage": {"score": 80}, "completeness": {"score": 80}}`},
		{"missing score", strings.Replace(assessmentJSON, `"score": 60,`, ``, 1)},
		{"score out of range", strings.Replace(assessmentJSON, `"score": 90`, `"score": 150`, 1)},
		{"unknown priority", strings.Replace(assessmentJSON, `"High"`, `"urgent"`, 1)},
		{"recommendation without title", strings.Replace(assessmentJSON, `"Cover related terms"`, `{"description": "x"}`, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseAssessment(tt.text)
			assert.Error(t, err)
		})
	}
}

func TestBalancedObjects(t *testing.T) {
	got := balancedObjects(`a {"x": "}"} b {"y": {"z": 1}} c {"open"`)
	assert.Equal(t, []string{`{"x": "}"}`, `{"y": {"z": 1}}`}, got)
}

func TestBuildDigest(t *testing.T) {
	doc := mustExtract(t, `<html><head><title>Trail Shoes</title><meta name="description" content="All about trail shoes.">`+faqPageJSONLD+`</head><body>
<h1>Trail Shoes</h1><p>First paragraph about grip.</p>
<h2>Fit</h2><p>Second paragraph about fit.</p>
<h3>Width</h3><p>Third paragraph about width.</p></body></html>`)

	digest := buildDigest(doc, []string{"trail shoes"}, ContentTypeEcommerce, 1500)
	assert.Contains(t, digest, "Title: Trail Shoes")
	assert.Contains(t, digest, "Meta description: All about trail shoes.")
	assert.Contains(t, digest, "Target keywords: trail shoes")
	assert.Contains(t, digest, "Content category: e-commerce")
	assert.Contains(t, digest, "Structured data types: FAQPage")
	assert.Contains(t, digest, "H1: Trail Shoes\n  H2: Fit\n    H3: Width\n")
	assert.Contains(t, digest, "Third paragraph about width.")

	small := buildDigest(doc, nil, ContentTypeGeneric, 50)
	assert.LessOrEqual(t, len(small), 50*charsPerToken)
	assert.Contains(t, small, "Content:\nFirst paragraph about\n")
	assert.NotContains(t, small, "Third paragraph")
}

func TestBuildDigest_TruncatesLongParagraph(t *testing.T) {
	long := strings.Repeat("grip ", 400)
	doc := mustExtract(t, `<h1>Shoes</h1><p>`+long+`</p>`)

	digest := buildDigest(doc, nil, ContentTypeGeneric, 100)
	assert.LessOrEqual(t, len(digest), 100*charsPerToken)
	assert.Contains(t, digest, "Content:\ngrip grip")
	assert.False(t, strings.HasSuffix(strings.TrimSpace(digest), "gri"))
}

func TestAssessQualitative_WithMock(t *testing.T) {
	doc := mustExtract(t, shoeGuideHTML)
	m := &mockModel{}
	m.On("GenerateContent", mock.Anything, mock.MatchedBy(func(req *llm.ContentRequest) bool {
		return req.SystemInstruction != "" &&
			req.OutputSchema["type"] == "object" &&
			len(req.Messages) == 1 &&
			req.Messages[0].Role == "user" &&
			strings.Contains(req.Messages[0].Content, "Title: Running Shoes Guide")
	})).Return(&llm.ContentResponse{Text: assessmentJSON, Provider: llm.ProviderGemini, Model: "gemini-test"}, nil).Once()

	a, err := New(WithModel(m))
	require.NoError(t, err)

	ai, aerr := a.assessQualitative(context.Background(), doc, []string{"running shoes"}, ContentTypeGeneric)
	require.Nil(t, aerr)
	require.NotNil(t, ai)
	assert.Equal(t, 75, ai.Score)
	assert.Equal(t, "gemini", ai.Provider)
	assert.Equal(t, "gemini-test", ai.Model)
	m.AssertExpectations(t)
}

func TestAssessQualitative_Failures(t *testing.T) {
	doc := mustExtract(t, shoeGuideHTML)

	tests := []struct {
		name  string
		model ModelClient
	}{
		{"no model", nil},
		{"model error", modelFunc(func(context.Context, *llm.ContentRequest) (*llm.ContentResponse, error) {
			return nil, errors.New("upstream 503")
		})},
		{"nil response", modelFunc(func(context.Context, *llm.ContentRequest) (*llm.ContentResponse, error) {
			return nil, nil
		})},
		{"malformed json", staticModel("not json at all")},
		{"timeout", blockingModel(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []Option{WithQualitativeTimeout(20 * time.Millisecond)}
			if tt.model != nil {
				opts = append(opts, WithModel(tt.model))
			}
			a, err := New(opts...)
			require.NoError(t, err)

			ai, aerr := a.assessQualitative(context.Background(), doc, nil, ContentTypeGeneric)
			assert.Nil(t, ai)
			require.NotNil(t, aerr)
			assert.Equal(t, KindQualitativeUnavailable, aerr.Kind)
			assert.False(t, aerr.Kind.Fatal())
			assert.True(t, errors.Is(aerr, ErrQualitativeUnavailable))
		})
	}
}

func TestAssessQualitative_CancelsModelCall(t *testing.T) {
	doc := mustExtract(t, shoeGuideHTML)
	done := make(chan struct{})
	a, err := New(WithModel(blockingModel(done)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, aerr := a.assessQualitative(ctx, doc, nil, ContentTypeGeneric)
	require.NotNil(t, aerr)
	assert.ErrorIs(t, aerr, context.Canceled)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("model call was not cancelled")
	}
}

func TestOutputSchema(t *testing.T) {
	s := outputSchema()
	assert.Equal(t, dimensionOrder, s["required"])

	props, ok := s["properties"].(map[string]interface{})
	require.True(t, ok)
	for _, d := range dimensionOrder {
		assert.Contains(t, props, d)
	}
	assert.Contains(t, props, "summary")
}

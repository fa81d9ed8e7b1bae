package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aeo-optimizer/backend/config"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"
)

// GeminiProvider generates content with the Gemini API. When a request carries
// an output schema, Gemini enforces it through ResponseSchema.
type GeminiProvider struct {
	client *genai.Client
	config config.GeminiConfig
	retry  *RetryConfig
	logger arbor.ILogger
}

// NewGeminiProvider creates a Gemini provider. baseURL overrides the API
// endpoint and is normally empty.
func NewGeminiProvider(ctx context.Context, apiKey string, cfg config.GeminiConfig, logger arbor.ILogger, baseURL ...string) (*GeminiProvider, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: config.RequestTimeout(cfg.Timeout, 30*time.Second)},
	}
	if len(baseURL) > 0 && baseURL[0] != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL[0]}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		config: cfg,
		retry:  NewDefaultRetryConfig(),
		logger: logger,
	}, nil
}

func (p *GeminiProvider) GetProviderType() ProviderType {
	return ProviderGemini
}

func (p *GeminiProvider) Close() error {
	p.client = nil
	return nil
}

func (p *GeminiProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	if p.client == nil {
		return nil, fmt.Errorf("gemini provider is closed")
	}
	systemText, err := validateMessages(request.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	if request.SystemInstruction != "" {
		systemText = request.SystemInstruction
	}

	model := request.Model
	if model == "" {
		model = p.config.Model
	}
	temp := request.Temperature
	if temp <= 0 {
		temp = p.config.Temperature
	}
	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temp),
	}
	if maxTokens > 0 {
		genConfig.MaxOutputTokens = int32(maxTokens)
	}
	if systemText != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	if len(request.OutputSchema) > 0 {
		schema, err := convertToGenaiSchema(request.OutputSchema)
		if err != nil {
			// The instruction still describes the shape, so continue unenforced
			p.logger.Error().Err(err).Msg("Failed to convert output schema")
		} else if schema != nil {
			genConfig.ResponseMIMEType = "application/json"
			genConfig.ResponseSchema = schema
		}
	}

	p.logger.Debug().
		Str("model", model).
		Int("message_count", len(request.Messages)).
		Msg("Generating content with Gemini")

	contents := convertMessagesToGemini(request.Messages)
	resp, err := withRetry(ctx, p.retry, p.logger, string(ProviderGemini), func() (*genai.GenerateContentResponse, error) {
		return p.client.Models.GenerateContent(ctx, model, contents, genConfig)
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini API call failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini API")
	}
	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty text in Gemini response")
	}

	return &ContentResponse{
		Text:     text,
		Provider: ProviderGemini,
		Model:    model,
	}, nil
}

func convertMessagesToGemini(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}
		role := genai.RoleUser
		if msg.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}
	return contents
}

package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aeo-optimizer/backend/config"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
)

// ClaudeProvider generates content with the Anthropic Messages API
type ClaudeProvider struct {
	client anthropic.Client
	config config.ClaudeConfig
	retry  *RetryConfig
	logger arbor.ILogger
}

// NewClaudeProvider creates a Claude provider. Extra request options are
// appended after the API key and timeout.
func NewClaudeProvider(apiKey string, cfg config.ClaudeConfig, logger arbor.ILogger, opts ...option.RequestOption) *ClaudeProvider {
	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(config.RequestTimeout(cfg.Timeout, 30*time.Second)),
		option.WithMaxRetries(0),
	}
	clientOpts = append(clientOpts, opts...)

	return &ClaudeProvider{
		client: anthropic.NewClient(clientOpts...),
		config: cfg,
		retry:  NewDefaultRetryConfig(),
		logger: logger,
	}
}

func (p *ClaudeProvider) GetProviderType() ProviderType {
	return ProviderClaude
}

func (p *ClaudeProvider) Close() error {
	return nil
}

// GenerateContent sends the request to Claude. The output schema is not
// enforced by the API; callers describe the shape in the system instruction.
func (p *ClaudeProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
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
	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  convertMessagesToClaude(request.Messages),
	}

	temp := request.Temperature
	if temp <= 0 {
		temp = p.config.Temperature
	}
	if temp > 0 {
		params.Temperature = anthropic.Float(float64(temp))
	}
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemText},
		}
	}

	p.logger.Debug().
		Str("model", model).
		Int("message_count", len(request.Messages)).
		Msg("Generating content with Claude")

	resp, err := withRetry(ctx, p.retry, p.logger, string(ProviderClaude), func() (*anthropic.Message, error) {
		return p.client.Messages.New(ctx, params)
	})
	if err != nil {
		return nil, fmt.Errorf("Claude API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from Claude API")
	}

	return &ContentResponse{
		Text:     text.String(),
		Provider: ProviderClaude,
		Model:    model,
	}, nil
}

func convertMessagesToClaude(messages []Message) []anthropic.MessageParam {
	claudeMessages := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			continue
		case "assistant":
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		default:
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}
	return claudeMessages
}

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aeo-optimizer/backend/config"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
)

// Message is one turn of a conversation. Role is "user", "assistant" or "system".
type Message struct {
	Role    string
	Content string
}

// ContentRequest represents a provider-agnostic content generation request
type ContentRequest struct {
	Messages          []Message
	Model             string
	Temperature       float32
	MaxTokens         int
	SystemInstruction string
	OutputSchema      map[string]interface{} // JSON schema for structured output (Gemini only)
}

// ContentResponse represents a provider-agnostic content generation response
type ContentResponse struct {
	Text     string
	Provider ProviderType
	Model    string
}

// Provider defines the interface for AI content generation
type Provider interface {
	GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error)
	GetProviderType() ProviderType
	Close() error
}

// NewProvider builds the configured default provider. It fails when the
// provider's API key cannot be resolved so callers can run without a model.
func NewProvider(ctx context.Context, cfg *config.Config, logger arbor.ILogger) (Provider, error) {
	switch ProviderType(strings.ToLower(cfg.LLM.DefaultProvider)) {
	case ProviderClaude:
		apiKey, err := config.ResolveAPIKey("anthropic_api_key", cfg.Claude.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve Anthropic API key: %w", err)
		}
		return NewClaudeProvider(apiKey, cfg.Claude, logger), nil
	case ProviderGemini:
		apiKey, err := config.ResolveAPIKey("gemini_api_key", cfg.Gemini.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve Gemini API key: %w", err)
		}
		return NewGeminiProvider(ctx, apiKey, cfg.Gemini, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM.DefaultProvider)
	}
}

// validateMessages checks the request has at least one user turn and splits
// out the first system message.
func validateMessages(messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("messages cannot be empty")
	}
	hasUserMessage := false
	systemText := ""
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			hasUserMessage = true
		case "system":
			if systemText == "" {
				systemText = msg.Content
			}
		}
	}
	if !hasUserMessage {
		return "", fmt.Errorf("at least one message must have role 'user'")
	}
	return systemText, nil
}

// convertToGenaiSchema converts a map representation of a JSON schema into a
// genai.Schema.
func convertToGenaiSchema(schemaMap map[string]interface{}) (*genai.Schema, error) {
	if len(schemaMap) == 0 {
		return nil, nil
	}

	schema := &genai.Schema{}

	if typeStr, ok := schemaMap["type"].(string); ok {
		switch strings.ToLower(typeStr) {
		case "object":
			schema.Type = genai.TypeObject
		case "array":
			schema.Type = genai.TypeArray
		case "string":
			schema.Type = genai.TypeString
		case "number":
			schema.Type = genai.TypeNumber
		case "integer":
			schema.Type = genai.TypeInteger
		case "boolean":
			schema.Type = genai.TypeBoolean
		default:
			return nil, fmt.Errorf("unsupported schema type %q", typeStr)
		}
	}

	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}

	switch enumVals := schemaMap["enum"].(type) {
	case []string:
		schema.Enum = enumVals
	case []interface{}:
		for _, v := range enumVals {
			if s, ok := v.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}

	switch reqVals := schemaMap["required"].(type) {
	case []string:
		schema.Required = reqVals
	case []interface{}:
		for _, v := range reqVals {
			if s, ok := v.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	schema.Minimum = numberPtr(schemaMap["minimum"])
	schema.Maximum = numberPtr(schemaMap["maximum"])

	if itemsMap, ok := schemaMap["items"].(map[string]interface{}); ok {
		itemSchema, err := convertToGenaiSchema(itemsMap)
		if err != nil {
			return nil, fmt.Errorf("failed to convert items schema: %w", err)
		}
		schema.Items = itemSchema
	}

	if propsMap, ok := schemaMap["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for propName, propVal := range propsMap {
			propMap, ok := propVal.(map[string]interface{})
			if !ok {
				continue
			}
			propSchema, err := convertToGenaiSchema(propMap)
			if err != nil {
				return nil, fmt.Errorf("failed to convert property '%s': %w", propName, err)
			}
			schema.Properties[propName] = propSchema
		}
	}

	return schema, nil
}

func numberPtr(v interface{}) *float64 {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case float64:
		f = n
	default:
		return nil
	}
	return &f
}

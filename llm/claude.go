package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ClaudeProvider implements the Provider interface for Anthropic Claude
type ClaudeProvider struct {
	apiKey  string
	baseURL string
	config  Config
	client  *http.Client
}

// ClaudeMessage represents a message in Claude's format
type ClaudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ClaudeRequest represents a request to Claude API
type ClaudeRequest struct {
	Model       string          `json:"model"`
	Messages    []ClaudeMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
	System      string          `json:"system,omitempty"`
}

// ClaudeResponse represents a response from Claude API
type ClaudeResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
}

// claudeModelList is the body of GET /models
type claudeModelList struct {
	Data []struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	} `json:"data"`
}

// NewClaudeProvider creates a new Claude provider
func NewClaudeProvider(config Config) (*ClaudeProvider, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}

	// Set defaults
	if config.MaxTokens == 0 {
		config.MaxTokens = 2048
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.Model == "" {
		config.Model = "claude-3-5-haiku-20241022"
	}
	if config.ProviderName == "" {
		config.ProviderName = "Claude"
	}

	return &ClaudeProvider{
		apiKey:  config.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		config:  config,
		client:  newHTTPClient(config),
	}, nil
}

func (p *ClaudeProvider) send(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	claudeMessages, systemPrompt := p.convertMessages(messages)

	req := ClaudeRequest{
		Model:       p.config.Model,
		Messages:    claudeMessages,
		MaxTokens:   maxTokens,
		Temperature: p.config.Temperature,
		System:      systemPrompt,
	}

	var claudeResp ClaudeResponse
	if err := doJSON(ctx, p.client, http.MethodPost, p.baseURL+"/messages", p.headers(), req, &claudeResp); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range claudeResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("no content in response")
	}
	return sb.String(), nil
}

// Chat implements non-streaming chat
func (p *ClaudeProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	return p.send(ctx, messages, p.config.MaxTokens)
}

// GenerateTitle generates a short title from the first message
func (p *ClaudeProvider) GenerateTitle(ctx context.Context, firstMessage string) (string, error) {
	title, err := p.send(ctx, titlePrompt(firstMessage), 30)
	if err != nil {
		return "", fmt.Errorf("failed to generate title: %w", err)
	}
	return cleanTitle(title), nil
}

// ListModels returns the models available to the key
func (p *ClaudeProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var list claudeModelList
	if err := doJSON(ctx, p.client, http.MethodGet, p.baseURL+"/models", p.headers(), nil, &list); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]ModelInfo, 0, len(list.Data))
	for _, m := range list.Data {
		name := m.DisplayName
		if name == "" {
			name = m.ID
		}
		models = append(models, ModelInfo{ID: m.ID, Name: name})
	}
	return models, nil
}

// Name returns the provider name
func (p *ClaudeProvider) Name() string {
	return p.config.ProviderName
}

// Models returns the default model list
func (p *ClaudeProvider) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku"},
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet"},
		{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus"},
	}
}

// ValidateConfig validates the configuration
func (p *ClaudeProvider) ValidateConfig() error {
	if p.apiKey == "" {
		return errors.New("API key is required")
	}
	return nil
}

// convertMessages converts our Message format to Claude's format.
// System messages are moved into the separate system prompt.
func (p *ClaudeProvider) convertMessages(messages []Message) ([]ClaudeMessage, string) {
	claudeMessages := make([]ClaudeMessage, 0, len(messages))
	var system []string

	for _, msg := range messages {
		if msg.Role == "system" {
			system = append(system, msg.Content)
			continue
		}
		claudeMessages = append(claudeMessages, ClaudeMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	return claudeMessages, strings.Join(system, "\n\n")
}

// headers returns the required headers for Claude API requests
func (p *ClaudeProvider) headers() map[string]string {
	return map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": "2023-06-01",
	}
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// GeminiProvider implements the Provider interface for Google Gemini
type GeminiProvider struct {
	apiKey  string
	baseURL string
	config  Config
	client  *http.Client
}

// GeminiContent represents content in Gemini's format
type GeminiContent struct {
	Parts []GeminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

// GeminiPart represents a part of content
type GeminiPart struct {
	Text string `json:"text,omitempty"`
}

// GeminiRequest represents a request to Gemini API
type GeminiRequest struct {
	Contents          []GeminiContent         `json:"contents"`
	SystemInstruction *GeminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GeminiGenerationConfig `json:"generationConfig,omitempty"`
	SafetySettings    []GeminiSafetySetting   `json:"safetySettings,omitempty"`
}

// GeminiGenerationConfig represents generation configuration
type GeminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// GeminiSafetySetting represents safety settings
type GeminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// GeminiResponse represents a response from Gemini API
type GeminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []GeminiPart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// geminiModelList is the body of GET /models
type geminiModelList struct {
	Models []struct {
		Name                       string   `json:"name"`
		DisplayName                string   `json:"displayName"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(config Config) (*GeminiProvider, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	// Set defaults
	if config.MaxTokens == 0 {
		config.MaxTokens = 2048
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}
	if config.ProviderName == "" {
		config.ProviderName = "Gemini"
	}

	return &GeminiProvider{
		apiKey:  config.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		config:  config,
		client:  newHTTPClient(config),
	}, nil
}

func (p *GeminiProvider) send(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	contents, system := p.convertMessages(messages)

	req := GeminiRequest{
		Contents:          contents,
		SystemInstruction: system,
		GenerationConfig: &GeminiGenerationConfig{
			Temperature:     p.config.Temperature,
			MaxOutputTokens: maxTokens,
		},
		SafetySettings: p.getDefaultSafetySettings(),
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		p.baseURL, url.PathEscape(p.config.Model), url.QueryEscape(p.apiKey))

	var geminiResp GeminiResponse
	if err := doJSON(ctx, p.client, http.MethodPost, endpoint, nil, req, &geminiResp); err != nil {
		return "", err
	}

	if len(geminiResp.Candidates) == 0 {
		return "", errors.New("no candidates in response")
	}

	var sb strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return "", errors.New("no content in response")
	}
	return sb.String(), nil
}

// Chat implements non-streaming chat
func (p *GeminiProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	return p.send(ctx, messages, p.config.MaxTokens)
}

// GenerateTitle generates a short title from the first message
func (p *GeminiProvider) GenerateTitle(ctx context.Context, firstMessage string) (string, error) {
	title, err := p.send(ctx, titlePrompt(firstMessage), 30)
	if err != nil {
		return "", fmt.Errorf("failed to generate title: %w", err)
	}
	return cleanTitle(title), nil
}

// ListModels returns the models that can generate content
func (p *GeminiProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	endpoint := fmt.Sprintf("%s/models?key=%s", p.baseURL, url.QueryEscape(p.apiKey))

	var list geminiModelList
	if err := doJSON(ctx, p.client, http.MethodGet, endpoint, nil, nil, &list); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		if !supports(m.SupportedGenerationMethods, "generateContent") {
			continue
		}
		id := strings.TrimPrefix(m.Name, "models/")
		name := m.DisplayName
		if name == "" {
			name = id
		}
		models = append(models, ModelInfo{ID: id, Name: name})
	}
	return models, nil
}

func supports(methods []string, want string) bool {
	for _, m := range methods {
		if m == want {
			return true
		}
	}
	return false
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return p.config.ProviderName
}

// Models returns the default model list
func (p *GeminiProvider) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash"},
		{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro"},
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash"},
	}
}

// ValidateConfig validates the configuration
func (p *GeminiProvider) ValidateConfig() error {
	if p.apiKey == "" {
		return errors.New("API key is required")
	}
	return nil
}

// convertMessages converts our Message format to Gemini's format.
// Gemini calls the assistant "model" and takes system text separately.
func (p *GeminiProvider) convertMessages(messages []Message) ([]GeminiContent, *GeminiContent) {
	contents := make([]GeminiContent, 0, len(messages))
	var system []GeminiPart

	for _, msg := range messages {
		if msg.Role == "system" {
			system = append(system, GeminiPart{Text: msg.Content})
			continue
		}

		role := msg.Role
		if role == "assistant" {
			role = "model"
		}
		contents = append(contents, GeminiContent{
			Parts: []GeminiPart{{Text: msg.Content}},
			Role:  role,
		})
	}

	if len(system) == 0 {
		return contents, nil
	}
	return contents, &GeminiContent{Parts: system}
}

// getDefaultSafetySettings returns default safety settings
func (p *GeminiProvider) getDefaultSafetySettings() []GeminiSafetySetting {
	categories := []string{
		"HARM_CATEGORY_HARASSMENT",
		"HARM_CATEGORY_HATE_SPEECH",
		"HARM_CATEGORY_SEXUALLY_EXPLICIT",
		"HARM_CATEGORY_DANGEROUS_CONTENT",
	}

	settings := make([]GeminiSafetySetting, len(categories))
	for i, category := range categories {
		settings[i] = GeminiSafetySetting{
			Category:  category,
			Threshold: "BLOCK_MEDIUM_AND_ABOVE",
		}
	}

	return settings
}

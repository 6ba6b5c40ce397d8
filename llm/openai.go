package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface for OpenAI
type OpenAIProvider struct {
	client *openai.Client
	config Config
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	// Allow empty API key - validation happens at runtime
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = newHTTPClient(config)

	client := openai.NewClientWithConfig(clientConfig)

	// Set defaults only if not provided
	if config.MaxTokens == 0 {
		config.MaxTokens = 2048
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.ProviderName == "" {
		config.ProviderName = "OpenAI"
	}

	return &OpenAIProvider{
		client: client,
		config: config,
	}, nil
}

func (p *OpenAIProvider) request(messages []Message, maxTokens int) openai.ChatCompletionRequest {
	openaiMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return openai.ChatCompletionRequest{
		Model:       p.config.Model,
		Messages:    openaiMessages,
		MaxTokens:   maxTokens,
		Temperature: float32(p.config.Temperature),
	}
}

// Chat implements non-streaming chat
func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.request(messages, p.config.MaxTokens))
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}

	return resp.Choices[0].Message.Content, nil
}

// GenerateTitle generates a short title from the first message
func (p *OpenAIProvider) GenerateTitle(ctx context.Context, firstMessage string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.request(titlePrompt(firstMessage), 30))
	if err != nil {
		return "", fmt.Errorf("failed to generate title: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}
	return cleanTitle(resp.Choices[0].Message.Content), nil
}

// ListModels returns the chat models available to the key
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	list, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		if !strings.HasPrefix(m.ID, "gpt-") && !strings.HasPrefix(m.ID, "o") {
			continue
		}
		if strings.Contains(m.ID, "audio") || strings.Contains(m.ID, "realtime") || strings.Contains(m.ID, "tts") {
			continue
		}
		models = append(models, ModelInfo{ID: m.ID, Name: m.ID})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return p.config.ProviderName
}

// Models returns the default model list
func (p *OpenAIProvider) Models() []ModelInfo {
	return []ModelInfo{
		{ID: openai.GPT4oMini, Name: "GPT-4o mini"},
		{ID: openai.GPT4o, Name: "GPT-4o"},
		{ID: openai.GPT4Turbo, Name: "GPT-4 Turbo"},
		{ID: openai.GPT3Dot5Turbo, Name: "GPT-3.5 Turbo"},
	}
}

// ValidateConfig validates the configuration
func (p *OpenAIProvider) ValidateConfig() error {
	if p.config.APIKey == "" {
		return errors.New("API key is required")
	}
	return nil
}

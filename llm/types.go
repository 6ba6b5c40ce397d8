package llm

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Message represents a chat message
type Message struct {
	Role    string `json:"role"` // "user" or "assistant" or "system"
	Content string `json:"content"`
}

// ModelInfo describes a model offered by a vendor
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Provider interface defines the common interface for all LLM providers
type Provider interface {
	// Chat sends messages and returns the complete response
	Chat(ctx context.Context, messages []Message) (string, error)

	// GenerateTitle generates a short title for a conversation from its first message
	GenerateTitle(ctx context.Context, firstMessage string) (string, error)

	// ListModels asks the vendor which models the key can use
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Name returns the provider name
	Name() string

	// Models returns the fixed model list used when the vendor cannot be asked
	Models() []ModelInfo

	// ValidateConfig validates the provider configuration
	ValidateConfig() error
}

// Config represents provider configuration
type Config struct {
	ProviderName string // Display name for the provider
	APIKey       string
	BaseURL      string
	Model        string
	ProxyURL     string
	Timeout      int // seconds
	MaxTokens    int
	Temperature  float64
}

// MaxTitleRunes caps generated titles
const MaxTitleRunes = 30

const titleSystemPrompt = "You generate short, concise titles for journaling conversations. " +
	"Use the same language as the message. The title should be 2-6 words and capture the main topic. " +
	"Only output the title, nothing else."

// titlePrompt builds the messages sent to generate a title
func titlePrompt(firstMessage string) []Message {
	return []Message{
		{Role: "system", Content: titleSystemPrompt},
		{Role: "user", Content: "Generate a short title for a conversation that starts with:\n\n" + firstMessage},
	}
}

// cleanTitle strips quotes, brackets and line breaks from a generated title
// and caps it to MaxTitleRunes. An empty result means the title is unusable.
func cleanTitle(title string) string {
	title = strings.Map(func(r rune) rune {
		switch r {
		case '"', '\'', '`', '“', '”', '‘', '’', '「', '」', '『', '』', '《', '》',
			'[', ']', '(', ')', '{', '}', '<', '>', '【', '】', '（', '）':
			return -1
		case '\n', '\r', '\t':
			return ' '
		}
		return r
	}, title)

	// Collapse whitespace left by removed characters
	title = strings.Join(strings.Fields(title), " ")
	title = strings.TrimPrefix(title, "Title: ")

	if utf8.RuneCountInString(title) > MaxTitleRunes {
		title = strings.TrimSpace(string([]rune(title)[:MaxTitleRunes]))
	}

	return title
}

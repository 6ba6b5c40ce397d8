package llm

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/singleflight"

	"another-i/document"
	"another-i/model"
	"another-i/utils"
)

// ErrNoSettings is returned by capabilities that have no demo fallback
var ErrNoSettings = errors.New("AI settings are not configured")

// titleTimeout bounds background title generation
const titleTimeout = 15 * time.Second

const systemPrompt = "You are Another I, a calm and curious companion for self-reflection. " +
	"Help the user think through what is on their mind by asking thoughtful questions, " +
	"reflecting back what you hear and offering gentle perspective. Keep answers concise. " +
	"Reply in the user's language."

const summaryPrompt = "Turn the conversation below into a structured Markdown note about the user's thinking. " +
	"Start with a level-one heading naming the topic, then use these sections: " +
	"## Key Points, ## Insights, ## Open Questions, ## Next Steps. " +
	"Write in the same language as the conversation and only output the note.\n\n"

var demoReplies = []string{
	"That's an interesting thought. What made you start thinking about this?",
	"I hear you. If you imagine looking back on this a year from now, what would matter most?",
	"Let's slow down for a moment. Which part of this feels the most uncertain to you?",
	"It sounds like there is more than one thing going on here. Can you tell me which one weighs on you most?",
	"Thanks for sharing that. What would a small first step look like?",
}

const (
	demoGreeting = "Hello! I'm Another I, your thinking companion. What's on your mind today?"
	demoHelp     = "I'm running in demo mode. Add an API key for OpenAI, Anthropic or Gemini in the settings " +
		"to get real answers. Until then I'll reply with simple prompts to keep you thinking, " +
		"and your notes are still generated from the conversation."
)

// Completion is the result of a chat completion
type Completion struct {
	Text       string `json:"text"`
	IsFallback bool   `json:"isFallback"`
}

// Service exposes the AI capabilities used by the rest of the app: chat
// completion, summarization, titles and model listing. Absent settings mean
// demo mode.
type Service struct {
	factory ProviderFactory
	logger  *utils.Logger
	now     func() time.Time
	models  singleflight.Group
}

// NewService creates a service building providers through factory
func NewService(factory ProviderFactory, logger *utils.Logger) *Service {
	return &Service{
		factory: factory,
		logger:  logger,
		now:     time.Now,
	}
}

func toLLMMessages(msgs []model.Message) []Message {
	out := make([]Message, 0, len(msgs)+1)
	for _, m := range msgs {
		out = append(out, Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// Complete answers the conversation. Without settings it returns a canned
// demo reply and never touches the network. Vendor failures are returned
// as errors; the caller chooses the fallback.
func (s *Service) Complete(ctx context.Context, msgs []model.Message, settings *model.AISettings) (Completion, error) {
	if settings == nil {
		return Completion{Text: DemoReply(msgs), IsFallback: true}, nil
	}

	provider, err := s.factory.New(*settings)
	if err != nil {
		return Completion{}, err
	}

	messages := append([]Message{{Role: "system", Content: systemPrompt}}, toLLMMessages(msgs)...)
	text, err := provider.Chat(ctx, messages)
	if err != nil {
		s.logger.Error("Chat completion via %s failed: %v", provider.Name(), err)
		return Completion{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Completion{}, errors.New("empty completion")
	}
	return Completion{Text: text}, nil
}

// Summarize writes a thought document for the transcript. Without settings
// the local template is used.
func (s *Service) Summarize(ctx context.Context, msgs []model.Message, settings *model.AISettings) (string, error) {
	if settings == nil {
		return document.Synthesize(msgs, "", s.now()), nil
	}

	provider, err := s.factory.New(*settings)
	if err != nil {
		return "", err
	}

	prompt := summaryPrompt + transcript(msgs)
	text, err := provider.Chat(ctx, []Message{{Role: "user", Content: prompt}})
	if err != nil {
		return "", fmt.Errorf("failed to summarize: %w", err)
	}
	return text, nil
}

func transcript(msgs []model.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		speaker := "User"
		if m.Role == model.RoleAssistant {
			speaker = "Assistant"
		}
		sb.WriteString(speaker)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// TitleFor generates a short title from the first message of a conversation
func (s *Service) TitleFor(ctx context.Context, message string, settings *model.AISettings) (string, error) {
	if settings == nil {
		return "", ErrNoSettings
	}

	provider, err := s.factory.New(*settings)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	title, err := provider.GenerateTitle(ctx, message)
	if err != nil {
		return "", err
	}
	title = cleanTitle(title)
	if title == "" {
		return "", errors.New("empty title")
	}
	return title, nil
}

// ListModels asks the vendor for its models, falling back to a fixed list on
// any failure. Identical concurrent calls share one request.
func (s *Service) ListModels(ctx context.Context, provider model.Provider, apiKey string) []ModelInfo {
	settings := model.AISettings{Provider: provider, APIKey: apiKey}.Normalize()
	if !settings.Provider.Valid() {
		return []ModelInfo{}
	}

	key := string(settings.Provider) + "\x00" + settings.APIKey
	v, _, _ := s.models.Do(key, func() (interface{}, error) {
		return s.fetchModels(ctx, settings), nil
	})
	return append([]ModelInfo(nil), v.([]ModelInfo)...)
}

func (s *Service) fetchModels(ctx context.Context, settings model.AISettings) []ModelInfo {
	if settings.APIKey == "" {
		return DefaultModelList(settings.Provider)
	}
	p, err := s.factory.New(settings)
	if err != nil {
		s.logger.Warn("Cannot build %s provider: %v", settings.Provider, err)
		return DefaultModelList(settings.Provider)
	}

	models, err := p.ListModels(ctx)
	if err != nil || len(models) == 0 {
		s.logger.Warn("Listing %s models failed, using defaults: %v", settings.Provider, err)
		return p.Models()
	}
	return models
}

// DefaultModelList returns the fixed model list of a vendor
func DefaultModelList(provider model.Provider) []ModelInfo {
	var p Provider
	switch provider {
	case model.ProviderOpenAI:
		p, _ = NewOpenAIProvider(Config{})
	case model.ProviderAnthropic:
		p, _ = NewClaudeProvider(Config{})
	case model.ProviderGemini:
		p, _ = NewGeminiProvider(Config{})
	default:
		return []ModelInfo{}
	}
	return p.Models()
}

// DemoReply picks the canned reply for the last user message. The choice
// is stable for a given message; greetings and requests for help get
// dedicated answers.
func DemoReply(msgs []model.Message) string {
	last := ""
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleUser {
			last = msgs[i].Content
			break
		}
	}

	words := strings.FieldsFunc(strings.ToLower(last), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		switch w {
		case "help":
			return demoHelp
		case "hello", "hi", "hey":
			return demoGreeting
		}
	}

	h := fnv.New32a()
	h.Write([]byte(last))
	return demoReplies[h.Sum32()%uint32(len(demoReplies))]
}

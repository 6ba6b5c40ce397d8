package document

import (
	"context"
	"strings"

	"another-i/model"
	"another-i/utils"
)

// Summarizer is the remote summarization capability
type Summarizer interface {
	Summarize(ctx context.Context, messages []model.Message, settings *model.AISettings) (string, error)
}

// Synthesizer produces documents through a Summarizer
type Synthesizer struct {
	summarizer Summarizer
	logger     *utils.Logger
}

// NewSynthesizer creates a remote synthesizer
func NewSynthesizer(summarizer Summarizer, logger *utils.Logger) *Synthesizer {
	return &Synthesizer{
		summarizer: summarizer,
		logger:     logger,
	}
}

// Remote asks the summarizer for a document over the most recent
// MaxSummaryMessages messages. ok is false when the call failed or returned
// nothing; callers then keep the existing document.
func (s *Synthesizer) Remote(ctx context.Context, messages []model.Message, settings *model.AISettings) (string, bool) {
	capped := model.Recent(messages, MaxSummaryMessages)
	if len(capped) == 0 {
		return "", false
	}

	text, err := s.summarizer.Summarize(ctx, capped, settings)
	if err != nil {
		s.logger.Warn("Document synthesis failed, keeping existing document: %v", err)
		return "", false
	}

	text = strings.TrimSpace(text)
	if text == "" {
		s.logger.Warn("Document synthesis returned empty text, keeping existing document")
		return "", false
	}
	return text, true
}

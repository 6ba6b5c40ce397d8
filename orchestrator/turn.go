package orchestrator

import (
	"context"
	"sync"

	"another-i/model"
)

// TurnResult is the outcome of one turn
type TurnResult struct {
	ConversationID   string         `json:"conversationId"`
	Created          bool           `json:"created"`
	UserMessage      model.Message  `json:"userMessage"`
	AssistantMessage *model.Message `json:"assistantMessage,omitempty"`
	IsFallback       bool           `json:"isFallback"`
	// Superseded is set when an edit discarded the turn's reply
	Superseded bool `json:"superseded,omitempty"`
	Failed     bool `json:"failed"`
	Done       bool `json:"done"`
}

// Turn tracks one in-flight send
type Turn struct {
	ConversationID string

	generation uint64
	mu         sync.Mutex
	result     TurnResult
	done       chan struct{}
}

func newTurn(convID string, userMsg model.Message, created bool, generation uint64) *Turn {
	return &Turn{
		ConversationID: convID,
		generation:     generation,
		result: TurnResult{
			ConversationID: convID,
			Created:        created,
			UserMessage:    userMsg,
		},
		done: make(chan struct{}),
	}
}

func (t *Turn) set(reply model.Message, fallback, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result.AssistantMessage = &reply
	t.result.IsFallback = fallback
	t.result.Failed = failed
}

func (t *Turn) supersede() {
	t.mu.Lock()
	t.result.Superseded = true
	t.mu.Unlock()
}

func (t *Turn) finish() {
	t.mu.Lock()
	t.result.Done = true
	t.mu.Unlock()
	close(t.done)
}

// Done is closed when the completion and document refresh have finished
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the turn finishes or ctx is done
func (t *Turn) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result returns a snapshot of the turn's outcome so far
func (t *Turn) Result() TurnResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.result
	if out.AssistantMessage != nil {
		msg := *out.AssistantMessage
		out.AssistantMessage = &msg
	}
	return out
}

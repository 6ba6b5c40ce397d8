// Package orchestrator drives the send-message lifecycle: the user message
// is appended immediately, then the completion, the document refresh and the
// title run in the background and merge back into the conversation that was
// targeted at dispatch time, whatever is displayed by then.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"another-i/document"
	"another-i/llm"
	"another-i/model"
	"another-i/store"
	"another-i/utils"
)

// MaxChatMessages caps the history sent for a chat completion
const MaxChatMessages = 20

// TitleRunes bounds the provisional title taken from the first message
const TitleRunes = 30

// ApologyText replaces the assistant reply when the completion fails
const ApologyText = "Sorry, I couldn't reach the AI service just now. Please check your settings or try again in a moment."

var (
	ErrEmptyMessage         = errors.New("message is empty")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrFolderNotFound       = errors.New("folder not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotUserMessage       = errors.New("only user messages can be edited")
	errSuperseded           = errors.New("conversation was edited")
)

// AI is the set of capabilities a turn needs
type AI interface {
	Complete(ctx context.Context, msgs []model.Message, settings *model.AISettings) (llm.Completion, error)
	Summarize(ctx context.Context, msgs []model.Message, settings *model.AISettings) (string, error)
	TitleFor(ctx context.Context, message string, settings *model.AISettings) (string, error)
}

// Hooks observe finished background work
type Hooks struct {
	OnTurn  func(result TurnResult, elapsed time.Duration)
	OnTitle func(convID string, err error)
}

// SendInput is one message typed by the user
type SendInput struct {
	// ConversationID targets an existing conversation. Empty means the
	// active one, or a new one when nothing is active.
	ConversationID string
	// FolderID receives a newly created conversation; empty means the first folder
	FolderID string
	Text     string
}

// Orchestrator runs send-message turns against a store.State
type Orchestrator struct {
	state  *store.State
	ai     AI
	docs   *document.Synthesizer
	logger *utils.Logger
	hooks  Hooks

	// generations counts edits per conversation. A turn only merges while
	// the count it captured at dispatch is still current. Locked after
	// the state lock, never before.
	genMu       sync.Mutex
	generations map[string]uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator. Background work runs on its own context so
// that it outlives the request that started it; Shutdown cancels it.
func New(state *store.State, ai AI, logger *utils.Logger, hooks Hooks) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		state:  state,
		ai:     ai,
		docs:   document.NewSynthesizer(ai, logger),
		logger: logger,
		hooks:  hooks,

		generations: make(map[string]uint64),

		ctx:    ctx,
		cancel: cancel,
	}
}

func (o *Orchestrator) generation(convID string) uint64 {
	o.genMu.Lock()
	defer o.genMu.Unlock()
	return o.generations[convID]
}

func (o *Orchestrator) bumpGeneration(convID string) uint64 {
	o.genMu.Lock()
	defer o.genMu.Unlock()
	o.generations[convID]++
	return o.generations[convID]
}

// SendMessage appends the user message synchronously and starts the
// background turn. The returned Turn reports when the turn has finished.
func (o *Orchestrator) SendMessage(ctx context.Context, in SendInput) (*Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	settings := o.state.Settings()
	convID := in.ConversationID
	if convID == "" {
		convID = o.state.ActiveID()
	}

	created := false
	if convID == "" {
		id, ok := o.state.CreateConversation(in.FolderID, model.Conversation{
			Title: provisionalTitle(text),
		})
		if !ok {
			return nil, ErrFolderNotFound
		}
		convID = id
		created = true
		o.state.SetActive(convID)
		o.logger.Info("Created conversation %s", convID)
	}

	userMsg := model.Message{
		ID:        o.state.NewID(),
		Role:      model.RoleUser,
		Content:   text,
		Timestamp: o.state.Now(),
	}

	// The first-message check and the append share one critical section so
	// that only one of two racing sends starts a title.
	var prior []model.Message
	var gen uint64
	appended := o.state.Update(func(c store.Collection, now time.Time) (store.Collection, bool) {
		conv, _, ok := store.Find(c, convID)
		if !ok {
			return c, false
		}
		prior = conv.Messages
		gen = o.generation(convID)
		return store.AppendMessages(c, convID, []model.Message{userMsg}, now)
	})
	if !appended {
		return nil, ErrConversationNotFound
	}

	history := append(append([]model.Message(nil), prior...), userMsg)
	turn := newTurn(convID, userMsg, created, gen)
	o.start(turn, history, settings)

	if len(prior) == 0 && settings != nil {
		o.generateTitle(convID, text, settings)
	}
	return turn, nil
}

// EditAndResend replaces the content of a user message, drops every later
// message and runs a new turn from there.
func (o *Orchestrator) EditAndResend(ctx context.Context, convID, msgID, text string) (*Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	conv, ok := o.state.Conversation(convID)
	if !ok {
		return nil, ErrConversationNotFound
	}
	var target *model.Message
	for i := range conv.Messages {
		if conv.Messages[i].ID == msgID {
			target = &conv.Messages[i]
			break
		}
	}
	if target == nil {
		return nil, ErrMessageNotFound
	}
	if target.Role != model.RoleUser {
		return nil, ErrNotUserMessage
	}

	settings := o.state.Settings()
	var history []model.Message
	var gen uint64
	edited := o.state.Update(func(c store.Collection, now time.Time) (store.Collection, bool) {
		next, ok := store.EditMessage(c, convID, msgID, text, now)
		if !ok {
			return c, false
		}
		conv, _, _ := store.Find(next, convID)
		history = conv.Messages
		gen = o.bumpGeneration(convID)
		return next, true
	})
	if !edited {
		return nil, ErrMessageNotFound
	}

	userMsg := history[len(history)-1]
	turn := newTurn(convID, userMsg, false, gen)
	o.start(turn, history, settings)
	return turn, nil
}

func (o *Orchestrator) start(turn *Turn, history []model.Message, settings *model.AISettings) {
	o.wg.Add(1)
	utils.SafeGo(o.logger, "turn "+turn.ConversationID, func() {
		defer o.wg.Done()
		defer turn.finish()
		o.runTurn(turn, history, settings)
	})
}

// runTurn performs completion then summarization. Every merge uses the id
// captured in turn, never the active conversation, and is dropped once the
// conversation has been edited since dispatch.
func (o *Orchestrator) runTurn(turn *Turn, history []model.Message, settings *model.AISettings) {
	started := time.Now()
	convID := turn.ConversationID
	log := o.logger.With("conversation", convID)
	defer func() {
		if o.hooks.OnTurn != nil {
			o.hooks.OnTurn(turn.Result(), time.Since(started))
		}
	}()

	completion, err := o.ai.Complete(o.ctx, model.Recent(history, MaxChatMessages), settings)
	if err != nil {
		apology := o.assistantMessage(ApologyText)
		if mergeErr := o.merge(turn, apology); mergeErr != nil {
			log.Info("Dropped apology: %v", mergeErr)
			return
		}
		log.Warn("Completion failed, using apology: %v", err)
		turn.set(apology, true, true)
		return
	}

	reply := o.assistantMessage(completion.Text)
	if err := o.merge(turn, reply); err != nil {
		log.Info("Dropped reply: %v", err)
		return
	}
	turn.set(reply, completion.IsFallback, false)

	o.refreshDocument(turn, settings)
}

// merge appends msg to the turn's conversation unless the conversation is
// gone or was edited after the turn started
func (o *Orchestrator) merge(turn *Turn, msg model.Message) error {
	var mergeErr error
	o.state.Update(func(c store.Collection, now time.Time) (store.Collection, bool) {
		if o.generation(turn.ConversationID) != turn.generation {
			mergeErr = errSuperseded
			turn.supersede()
			return c, false
		}
		next, ok := store.AppendMessages(c, turn.ConversationID, []model.Message{msg}, now)
		if !ok {
			mergeErr = ErrConversationNotFound
		}
		return next, ok
	})
	return mergeErr
}

func (o *Orchestrator) refreshDocument(turn *Turn, settings *model.AISettings) {
	conv, ok := o.state.Conversation(turn.ConversationID)
	if !ok {
		return
	}

	var doc string
	if settings == nil {
		doc = document.Synthesize(conv.Messages, conv.Title, o.state.Now())
	} else if doc, ok = o.docs.Remote(o.ctx, conv.Messages, settings); !ok {
		return
	}

	o.state.Update(func(c store.Collection, now time.Time) (store.Collection, bool) {
		if o.generation(turn.ConversationID) != turn.generation {
			return c, false
		}
		return store.SetDocumentContent(c, turn.ConversationID, doc, now)
	})
}

func (o *Orchestrator) generateTitle(convID, firstMessage string, settings *model.AISettings) {
	o.wg.Add(1)
	utils.SafeGo(o.logger, "title "+convID, func() {
		defer o.wg.Done()
		log := o.logger.With("conversation", convID)

		title, err := o.ai.TitleFor(o.ctx, firstMessage, settings)
		if err == nil && strings.TrimSpace(title) == "" {
			err = errors.New("empty title")
		}
		if o.hooks.OnTitle != nil {
			o.hooks.OnTitle(convID, err)
		}
		if err != nil {
			log.Warn("Title generation failed, keeping title: %v", err)
			return
		}
		o.state.SetTitle(convID, title)
	})
}

func (o *Orchestrator) assistantMessage(text string) model.Message {
	return model.Message{
		ID:        o.state.NewID(),
		Role:      model.RoleAssistant,
		Content:   text,
		Timestamp: o.state.Now(),
	}
}

// Wait blocks until every background task has finished
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown waits for background tasks until ctx expires, then cancels them
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		<-done
		return ctx.Err()
	}
}

// provisionalTitle is the first message on one line, cut to TitleRunes
func provisionalTitle(text string) string {
	return document.Preview(strings.Join(strings.Fields(text), " "), TitleRunes)
}

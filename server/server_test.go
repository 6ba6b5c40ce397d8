package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"another-i/db"
	"another-i/llm"
	"another-i/model"
	"another-i/orchestrator"
	"another-i/store"
	"another-i/utils"
)

type fakeAI struct {
	completeErr error
	summaryErr  error
	titleErr    error

	mu   sync.Mutex
	sent [][]model.Message
}

func (f *fakeAI) Complete(_ context.Context, msgs []model.Message, settings *model.AISettings) (llm.Completion, error) {
	f.mu.Lock()
	f.sent = append(f.sent, msgs)
	f.mu.Unlock()
	if f.completeErr != nil {
		return llm.Completion{}, f.completeErr
	}
	return llm.Completion{Text: "re: " + msgs[len(msgs)-1].Content, IsFallback: settings == nil}, nil
}

func (f *fakeAI) Summarize(_ context.Context, msgs []model.Message, _ *model.AISettings) (string, error) {
	if f.summaryErr != nil {
		return "", f.summaryErr
	}
	return fmt.Sprintf("# Notes\n\n%d messages", len(msgs)), nil
}

func (f *fakeAI) TitleFor(_ context.Context, message string, settings *model.AISettings) (string, error) {
	if settings == nil {
		return "", llm.ErrNoSettings
	}
	if f.titleErr != nil {
		return "", f.titleErr
	}
	return "Title for " + message, nil
}

func (f *fakeAI) ListModels(_ context.Context, provider model.Provider, _ string) []llm.ModelInfo {
	return llm.DefaultModelList(provider)
}

var testNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

type testEnv struct {
	srv   *Server
	state *store.State
	orch  *orchestrator.Orchestrator
	ai    *fakeAI
	db    *db.DB
}

func newTestEnv(t *testing.T, cfg utils.ServerConfig) *testEnv {
	t.Helper()
	logger := utils.NewLoggerTo(nil)

	database, err := db.New(filepath.Join(t.TempDir(), "another-i.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	n := 0
	var mu sync.Mutex
	state := store.NewState(store.NewRepository(database, logger), logger,
		store.WithClock(func() time.Time { return testNow }),
		store.WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)

	ai := &fakeAI{}
	metrics := NewMetrics()
	orch := orchestrator.New(state, ai, logger, metrics.Hooks())
	t.Cleanup(func() { _ = orch.Shutdown(context.Background()) })

	srv := New(Deps{
		State:        state,
		Orchestrator: orch,
		AI:           ai,
		Storage:      database,
		Metrics:      metrics,
		Logger:       logger,
		Config:       cfg,
	})
	return &testEnv{srv: srv, state: state, orch: orch, ai: ai, db: database}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, utils.ServerConfig{})
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSendMessageCreatesConversationAndWaits(t *testing.T) {
	env := newTestEnv(t, utils.ServerConfig{})

	rec := env.do(t, http.MethodPost, "/api/messages?wait=true", map[string]string{
		"text": "I keep procrastinating on my studies",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[orchestrator.TurnResult](t, rec)
	assert.True(t, result.Created)
	assert.True(t, result.Done)
	assert.True(t, result.IsFallback)
	require.NotNil(t, result.AssistantMessage)
	assert.Equal(t, "re: I keep procrastinating on my studies", result.AssistantMessage.Content)

	rec = env.do(t, http.MethodGet, "/api/conversations/"+result.ConversationID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	conv := decode[model.Conversation](t, rec)
	assert.Equal(t, "I keep procrastinating on my s...", conv.Title)
	assert.Len(t, conv.Messages, 2)
	assert.True(t, strings.HasPrefix(conv.DocumentContent, "# I keep procrastinating on my s..."))

	state := decode[stateResponse](t, env.do(t, http.MethodGet, "/api/state", nil))
	assert.Equal(t, result.ConversationID, state.ActiveID)
	require.NotNil(t, state.Storage)
	assert.Positive(t, state.Storage.KeyCount)
}

func TestSendMessageErrors(t *testing.T) {
	env := newTestEnv(t, utils.ServerConfig{})

	rec := env.do(t, http.MethodPost, "/api/messages", map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/conversations/nope/messages", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "conversation not found")
}

func TestFailedCompletionAppendsApology(t *testing.T) {
	env := newTestEnv(t, utils.ServerConfig{})
	env.ai.completeErr = errors.New("boom")

	created := decode[model.Conversation](t, env.do(t, http.MethodPost, "/api/conversations", map[string]string{"title": "T"}))
	rec := env.do(t, http.MethodPost, "/api/conversations/"+created.ID+"/messages?wait=true", map[string]string{"text": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	result := decode[orchestrator.TurnResult](t, rec)
	assert.True(t, result.Failed)
	require.NotNil(t, result.AssistantMessage)
	assert.Equal(t, orchestrator.ApologyText, result.AssistantMessage.Content)

	metrics := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Contains(t, metrics.Body.String(), `another_i_chat_turns_total{outcome="failed"} 1`)
}

func TestEditAndResendRoute(t *testing.T) {
	env := newTestEnv(t, utils.ServerConfig{})

	first := decode[orchestrator.TurnResult](t, env.do(t, http.MethodPost, "/api/messages?wait=true", map[string]string{"text": "one"}))
	convID := first.ConversationID
	env.do(t, http.MethodPost, "/api/conversations/"+convID+"/messages?wait=true", map[string]string{"text": "two"})

	path := "/api/conversations/" + convID + "/messages/" + first.UserMessage.ID + "?wait=true"
	rec := env.do(t, http.MethodPut, path, map[string]string{"text": "uno"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	conv, ok := env.state.Conversation(convID)
	require.True(t, ok)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "uno", conv.Messages[0].Content)
	assert.Equal(t, "re: uno", conv.Messages[1].Content)

	rec = env.do(t, http.MethodPut, "/api/conversations/"+convID+"/messages/"+conv.Messages[1].ID, map[string]string{"text": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFolderRoutes(t *testing.T) {
	env := newTestEnv(t, utils.ServerConfig{})

	initial := decode[stateResponse](t, env.do(t, http.MethodGet, "/api/state", nil))
	require.Len(t, initial.Folders, 1)
	assert.Equal(t, store.DefaultFolderName, initial.Folders[0].Name)

	rec := env.do(t, http.MethodPost, "/api/folders", map[string]string{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/folders", map[string]string{"name": "Work"})
	require.Equal(t, http.StatusCreated, rec.Code)
	work := decode[model.Folder](t, rec)
	assert.True(t, work.IsExpanded)

	rec = env.do(t, http.MethodPatch, "/api/folders/"+work.ID, map[string]any{"name": "Career", "isExpanded": false})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[model.Folder](t, rec)
	assert.Equal(t, "Career", updated.Name)
	assert.False(t, updated.IsExpanded)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPatch, "/api/folders/missing", map[string]string{"name": "x"}).Code)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/folders/"+work.ID, nil).Code)
	rec = env.do(t, http.MethodDelete, "/api/folders/"+initial.Folders[0].ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestConversationRoutes(t *testing.T) {
	env := newTestEnv(t, utils.ServerConfig{})
	target := decode[model.Folder](t, env.do(t, http.MethodPost, "/api/folders", map[string]string{"name": "Later"}))

	a := decode[model.Conversation](t, env.do(t, http.MethodPost, "/api/conversations", map[string]any{"title": "Alpha", "activate": true}))
	b := decode[model.Conversation](t, env.do(t, http.MethodPost, "/api/conversations", map[string]string{"title": "Beta"}))
	assert.Equal(t, a.ID, env.state.ActiveID())

	rec := env.do(t, http.MethodPost, "/api/conversations", map[string]string{"folderId": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/conversations/"+a.ID+"/pin", map[string]bool{"pinned": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[model.Conversation](t, rec).IsPinned)

	rec = env.do(t, http.MethodPost, "/api/conversations/"+b.ID+"/move", map[string]string{"folderId": target.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	folders := env.state.Folders()
	require.Len(t, folders[1].Conversations, 1)
	assert.Equal(t, b.ID, folders[1].Conversations[0].ID)

	rec = env.do(t, http.MethodPost, "/api/conversations/"+b.ID+"/move", map[string]string{"folderId": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/active", map[string]string{"id": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodPut, "/api/active", map[string]string{"id": b.ID})
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/conversations/"+b.ID, nil).Code)
	assert.Empty(t, env.state.ActiveID())
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/conversations/"+b.ID, nil).Code)
}

func TestTagRoutes(t *testing.T) {
	env := newTestEnv(t, utils.ServerConfig{})
	a := decode[model.Conversation](t, env.do(t, http.MethodPost, "/api/conversations", map[string]string{"title": "Alpha"}))
	b := decode[model.Conversation](t, env.do(t, http.MethodPost, "/api/conversations", map[string]string{"title": "Beta"}))

	rec := env.do(t, http.MethodPost, "/api/conversations/"+a.ID+"/tags", map[string]string{"name": "work", "color": "teal"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/conversations/"+a.ID+"/tags", map[string]string{"name": "   ", "color": "blue"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.state.Tags())

	rec = env.do(t, http.MethodPost, "/api/conversations/"+a.ID+"/tags", map[string]string{"name": "work", "color": "blue"})
	require.Equal(t, http.StatusCreated, rec.Code)
	tag := decode[model.Tag](t, rec)
	assert.Equal(t, model.ColorBlue, tag.Color)

	rec = env.do(t, http.MethodPost, "/api/conversations/"+b.ID+"/tags", map[string]string{"tagId": tag.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	all := decode[[]model.Tag](t, env.do(t, http.MethodGet, "/api/tags", nil))
	assert.Equal(t, []model.Tag{tag}, all)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/conversations/"+a.ID+"/tags/"+tag.ID, nil).Code)
	conv, _ := env.state.Conversation(a.ID)
	assert.Empty(t, conv.Tags)
	assert.Len(t, env.state.Tags(), 1)
}

func TestSearchRoute(t *testing.T) {
	env := newTestEnv(t, utils.ServerConfig{})
	env.do(t, http.MethodPost, "/api/conversations", map[string]string{"title": "Morning routine"})

	results := decode[[]store.SearchResult](t, env.do(t, http.MethodGet, "/api/search?q=routine", nil))
	require.Len(t, results, 1)
	assert.Equal(t, "title", results[0].Field)

	rec := env.do(t, http.MethodGet, "/api/search?q=nothing-matches", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

const chatGPTExport = `[{
  "title": "Imported talk",
  "mapping": {
    "u": {"message": {"author": {"role": "user"}, "create_time": 1, "content": {"parts": ["Hi there"]}}},
    "a": {"message": {"author": {"role": "assistant"}, "create_time": 2, "content": {"parts": ["Hello"]}}}
  }
}, {"title": "broken"}]`

func TestImportAndExport(t *testing.T) {
	env := newTestEnv(t, utils.ServerConfig{})

	rec := env.do(t, http.MethodPost, "/api/import", `{"not": "an array"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "expected a JSON array")

	rec = env.do(t, http.MethodPost, "/api/import", chatGPTExport)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[importResponse](t, rec)
	assert.Equal(t, 1, resp.ImportedCount)
	assert.Equal(t, 1, resp.SkippedCount)
	assert.Len(t, resp.Errors, 1)

	folders := env.state.Folders()
	require.Len(t, folders[0].Conversations, 1)
	imported := folders[0].Conversations[0]
	assert.Equal(t, "Imported talk", imported.Title)

	rec = env.do(t, http.MethodGet, "/api/export?format=markdown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".md")
	assert.Contains(t, rec.Body.String(), "## Imported talk")

	rec = env.do(t, http.MethodGet, "/api/export?format=json&id="+imported.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var exported struct {
		Conversation model.Conversation `json:"conversation"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exported))
	assert.Equal(t, imported.ID, exported.Conversation.ID)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/export?scope=conversation&id=missing", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/export?format=pdf", nil).Code)
}

func TestSettingsAndPreferences(t *testing.T) {
	env := newTestEnv(t, utils.ServerConfig{})

	rec := env.do(t, http.MethodPut, "/api/settings", map[string]string{"provider": "ollama", "apiKey": "k"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/settings", map[string]string{"provider": " Anthropic ", "apiKey": " k "})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"settings":{"provider":"anthropic","apiKey":"k","model":"claude-3-5-haiku-20241022"}}`, rec.Body.String())

	value, found, err := env.db.GetSetting(store.KeyAISettings)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Contains(t, value, "anthropic")

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/settings", nil).Code)
	assert.JSONEq(t, `{"settings":null}`, env.do(t, http.MethodGet, "/api/settings", nil).Body.String())

	rec = env.do(t, http.MethodPut, "/api/preferences", map[string]string{"layout": "sideways"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/preferences", map[string]any{"layout": "document", "hasSeenGuide": true})
	require.Equal(t, http.StatusOK, rec.Code)
	prefs := decode[model.Preferences](t, env.do(t, http.MethodGet, "/api/preferences", nil))
	assert.Equal(t, model.LayoutDocument, prefs.Layout)
	assert.True(t, prefs.HasSeenGuide)
	assert.False(t, prefs.SkipDeleteConfirm)
}

func TestStorageRoutes(t *testing.T) {
	env := newTestEnv(t, utils.ServerConfig{})
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/conversations", map[string]string{"title": "Alpha"}).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/settings", map[string]string{"provider": "openai", "apiKey": "sk-secret"}).Code)

	rec := env.do(t, http.MethodGet, "/api/storage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "sk-secret")

	report := decode[storageResponse](t, rec)
	require.NotNil(t, report.Stats)
	assert.Equal(t, int64(len(report.Records)), report.Stats.KeyCount)
	keys := map[string]int{}
	for _, r := range report.Records {
		keys[r.Key] = r.Bytes
	}
	assert.Contains(t, keys, store.KeyFolders)
	assert.Positive(t, keys[store.KeyAISettings])

	rec = env.do(t, http.MethodPost, "/api/storage/vacuum", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	after := decode[storageResponse](t, rec)
	assert.Equal(t, report.Stats.KeyCount, after.Stats.KeyCount)
	assert.Positive(t, after.Stats.DBSizeBytes)
}

func TestAIProxyRoutes(t *testing.T) {
	env := newTestEnv(t, utils.ServerConfig{})
	msgs := []model.Message{{ID: "1", Role: model.RoleUser, Content: "ping", Timestamp: testNow}}

	rec := env.do(t, http.MethodPost, "/api/chat", map[string]any{"messages": msgs})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"text":"re: ping","isFallback":true}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/chat", map[string]any{"messages": []model.Message{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.ai.completeErr = errors.New("vendor down")
	rec = env.do(t, http.MethodPost, "/api/chat", map[string]any{
		"messages": msgs,
		"settings": map[string]string{"provider": "openai", "apiKey": "sk"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[chatResponse](t, rec)
	assert.Equal(t, orchestrator.ApologyText, resp.Text)
	assert.True(t, resp.IsFallback)

	env.ai.summaryErr = errors.New("vendor down")
	rec = env.do(t, http.MethodPost, "/api/summarize", map[string]any{"messages": msgs})
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[summarizeResponse](t, rec)
	assert.True(t, summary.IsFallback)
	assert.Contains(t, summary.Content, "## Summary")

	rec = env.do(t, http.MethodPost, "/api/title", map[string]string{"message": "What should I do with my weekend plans"})
	require.Equal(t, http.StatusOK, rec.Code)
	title := decode[titleResponse](t, rec)
	assert.True(t, title.IsFallback)
	assert.Equal(t, "What should I do with my weeke...", title.Title)

	rec = env.do(t, http.MethodPost, "/api/title", map[string]any{
		"message":  "Weekend",
		"settings": map[string]string{"provider": "gemini", "apiKey": "g"},
	})
	assert.JSONEq(t, `{"title":"Title for Weekend","isFallback":false}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/models", map[string]string{"provider": "Gemini"})
	require.Equal(t, http.StatusOK, rec.Code)
	models := decode[map[string][]llm.ModelInfo](t, rec)
	assert.NotEmpty(t, models["models"])

	rec = env.do(t, http.MethodPost, "/api/models", map[string]string{"provider": "ollama"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAIRoutesAreRateLimited(t *testing.T) {
	env := newTestEnv(t, utils.ServerConfig{RateLimit: 0.001, Burst: 2})
	body := map[string]string{"provider": "openai"}

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/models", body).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/models", body).Code)
	rec := env.do(t, http.MethodPost, "/api/models", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// state routes are not limited
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/state", nil).Code)
	assert.Contains(t, env.do(t, http.MethodGet, "/metrics", nil).Body.String(), "another_i_api_rate_limited_total 1")
}

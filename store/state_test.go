package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"another-i/model"
	"another-i/utils"
)

type memKV struct {
	mu      sync.Mutex
	data    map[string]string
	failGet bool
	writes  int
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}}
}

func (m *memKV) GetSetting(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return "", false, errors.New("disk on fire")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) SetSetting(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.writes++
	return nil
}

func (m *memKV) DeleteSetting(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func counterIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestState(kv *memKV) *State {
	logger := utils.NewLoggerTo(nil)
	var repo *Repository
	if kv != nil {
		repo = NewRepository(kv, logger)
	}
	return NewState(repo, logger,
		WithClock(func() time.Time { return t0 }),
		WithIDGenerator(counterIDs()),
	)
}

func TestNewStateDefaults(t *testing.T) {
	s := newTestState(newMemKV())
	folders := s.Folders()
	require.Len(t, folders, 1)
	assert.Equal(t, DefaultFolderName, folders[0].Name)
	assert.Nil(t, s.Settings())
	assert.Equal(t, model.LayoutSplit, s.Preferences().Layout)
}

func TestLoadFailureFallsBackToDefaults(t *testing.T) {
	kv := newMemKV()
	kv.data[KeyFolders] = "{not json"
	s := newTestState(kv)
	assert.Len(t, s.Folders(), 1)

	kv = newMemKV()
	kv.failGet = true
	s = newTestState(kv)
	assert.Len(t, s.Folders(), 1)
}

func TestLoadBackfillsOldRecords(t *testing.T) {
	kv := newMemKV()
	kv.data[KeyFolders] = `[{"id":"f","name":"Old","isExpanded":true,"conversations":[
	  {"id":"c","title":"legacy","messages":[{"id":"m","role":"user","content":"x","timestamp":"2024-01-02T03:04:05.000Z"}],
	   "documentContent":"","createdAt":"2024-01-02T03:04:05.000Z","updatedAt":"2024-01-02T03:04:05.000Z"}]}]`

	s := newTestState(kv)
	conv, ok := s.Conversation("c")
	require.True(t, ok)
	assert.NotNil(t, conv.Tags)
	assert.Empty(t, conv.Tags)
	assert.False(t, conv.IsPinned)
	assert.Equal(t, 2024, conv.Messages[0].Timestamp.Year())
}

func TestLoadDropsTagsWithUnknownColors(t *testing.T) {
	kv := newMemKV()
	kv.data[KeyFolders] = `[{"id":"f","name":"Mine","isExpanded":true,"conversations":[
	  {"id":"c","title":"kept","messages":[{"id":"m","role":"user","content":"x","timestamp":"2024-01-02T03:04:05Z"}],
	   "tags":[{"id":"t1","name":"work","color":"teal"},{"id":"t2","name":"ideas","color":"blue"}],
	   "createdAt":"2024-01-02T03:04:05Z","updatedAt":"2024-01-02T03:04:05Z"}]}]`

	s := newTestState(kv)
	folders := s.Folders()
	require.Len(t, folders, 1)
	assert.Equal(t, "Mine", folders[0].Name)

	conv, ok := s.Conversation("c")
	require.True(t, ok)
	assert.Equal(t, "kept", conv.Title)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, []model.Tag{{ID: "t2", Name: "ideas", Color: model.ColorBlue}}, conv.Tags)

	// the next write keeps the conversation
	require.True(t, s.SetPinned("c", true))
	assert.Contains(t, kv.data[KeyFolders], `"title":"kept"`)
	assert.NotContains(t, kv.data[KeyFolders], "teal")
}

func TestStatePersistsMutations(t *testing.T) {
	kv := newMemKV()
	s := newTestState(kv)

	id, ok := s.CreateConversation("", model.Conversation{Title: "first"})
	require.True(t, ok)
	require.True(t, s.SetPinned(id, true))

	reloaded := newTestState(kv)
	conv, ok := reloaded.Conversation(id)
	require.True(t, ok)
	assert.Equal(t, "first", conv.Title)
	assert.True(t, conv.IsPinned)
	assert.Equal(t, t0, conv.CreatedAt)
}

func TestRejectedMutationDoesNotPersist(t *testing.T) {
	kv := newMemKV()
	s := newTestState(kv)
	folderID := s.Folders()[0].ID

	assert.False(t, s.DeleteFolder(folderID))
	assert.Equal(t, 0, kv.writes)
}

func TestDeletingActiveConversationClearsSelection(t *testing.T) {
	s := newTestState(nil)
	folderID, ok := s.CreateFolder("Work")
	require.True(t, ok)

	id, _ := s.CreateConversation(folderID, model.Conversation{})
	require.True(t, s.SetActive(id))
	assert.False(t, s.SetActive("unknown"))

	require.True(t, s.DeleteFolder(folderID))
	assert.Equal(t, "", s.ActiveID())
	_, found := s.Conversation(id)
	assert.False(t, found)

	other, _ := s.CreateConversation("", model.Conversation{})
	require.True(t, s.SetActive(other))
	require.True(t, s.DeleteConversation(other))
	assert.Equal(t, "", s.ActiveID())
}

func TestCreateTagAndCollect(t *testing.T) {
	s := newTestState(nil)
	a, _ := s.CreateConversation("", model.Conversation{})
	b, _ := s.CreateConversation("", model.Conversation{})

	tag, err := s.CreateTag(a, "focus", model.ColorPurple)
	require.NoError(t, err)
	require.True(t, s.AddTag(b, tag))
	assert.False(t, s.AddTag(b, tag))

	assert.Equal(t, []model.Tag{tag}, s.Tags())

	_, err = s.CreateTag(a, "bad", model.TagColor("teal"))
	assert.ErrorIs(t, err, model.ErrInvalidColor)
	_, err = s.CreateTag("missing", "x", model.ColorRed)
	assert.Error(t, err)
}

func TestSettingsLifecycle(t *testing.T) {
	kv := newMemKV()
	s := newTestState(kv)

	_, err := s.SetSettings(model.AISettings{Provider: "unknown", APIKey: "k"})
	assert.Error(t, err)
	assert.Nil(t, s.Settings())

	saved, err := s.SetSettings(model.AISettings{Provider: " OpenAI ", APIKey: "sk-1"})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultModels[model.ProviderOpenAI], saved.Model)

	reloaded := newTestState(kv)
	require.NotNil(t, reloaded.Settings())
	assert.Equal(t, model.ProviderOpenAI, reloaded.Settings().Provider)

	reloaded.ClearSettings()
	assert.Nil(t, newTestState(kv).Settings())
}

func TestPreferencesPersistIndependently(t *testing.T) {
	kv := newMemKV()
	s := newTestState(kv)
	require.NoError(t, s.SetPreferences(model.Preferences{Layout: model.LayoutChat, HasSeenGuide: true}))
	assert.Error(t, s.SetPreferences(model.Preferences{Layout: "grid"}))

	kv.data[KeySkipDeleteConfirm] = "garbage"
	prefs := newTestState(kv).Preferences()
	assert.Equal(t, model.LayoutChat, prefs.Layout)
	assert.True(t, prefs.HasSeenGuide)
	assert.False(t, prefs.SkipDeleteConfirm)
}

func TestConcurrentAppendsAreSerialized(t *testing.T) {
	s := newTestState(newMemKV())
	id, _ := s.CreateConversation("", model.Conversation{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AppendMessages(id, model.Message{ID: fmt.Sprintf("m%d", i), Role: model.RoleUser, Content: "x"})
		}(i)
	}
	wg.Wait()

	conv, _ := s.Conversation(id)
	assert.Len(t, conv.Messages, 50)
}

func TestImportPrependsToFirstFolder(t *testing.T) {
	s := newTestState(nil)
	existing, _ := s.CreateConversation("", model.Conversation{})

	n := s.Import([]model.Conversation{{ID: "chatgpt-1"}, {ID: existing}})
	assert.Equal(t, 1, n)
	assert.Equal(t, "chatgpt-1", s.Folders()[0].Conversations[0].ID)
}

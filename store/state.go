package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"another-i/model"
	"another-i/tags"
	"another-i/utils"
)

// State owns the folder collection, the active conversation id, the AI
// settings and the preferences. All mutations are serialized and replace
// the whole collection; readers always get deep copies.
type State struct {
	mu       sync.RWMutex
	folders  Collection
	activeID string
	settings *model.AISettings
	prefs    model.Preferences

	repo   *Repository
	logger *utils.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a State
type Option func(*State)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// WithIDGenerator overrides id generation
func WithIDGenerator(newID func() string) Option {
	return func(s *State) { s.newID = newID }
}

// NewState loads the persisted state from repo. A nil repo starts from
// defaults and persists nothing.
func NewState(repo *Repository, logger *utils.Logger, opts ...Option) *State {
	s := &State{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
		prefs:  model.Preferences{Layout: model.LayoutSplit},
	}
	for _, opt := range opts {
		opt(s)
	}

	if repo == nil {
		s.folders = Default(s.newID())
		return s
	}
	s.folders = repo.LoadFolders(s.newID)
	s.settings = repo.LoadSettings()
	s.prefs = repo.LoadPreferences()
	return s
}

// Now returns the current time of the state's clock
func (s *State) Now() time.Time {
	return s.now()
}

// NewID returns a fresh identifier
func (s *State) NewID() string {
	return s.newID()
}

// Folders returns a deep copy of the collection
func (s *State) Folders() Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.folders.Clone()
}

// Conversation returns a copy of the conversation with the given id
func (s *State) Conversation(id string) (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, _, ok := Find(s.folders, id)
	return conv, ok
}

// ActiveID returns the id of the displayed conversation, or ""
func (s *State) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// SetActive selects the displayed conversation. An empty id clears the
// selection; unknown ids are rejected. In-flight work is not affected.
func (s *State) SetActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		if _, _, ok := Find(s.folders, id); !ok {
			return false
		}
	}
	s.activeID = id
	return true
}

// Update applies fn to the collection under the write lock. When fn reports
// a change the result replaces the collection and is persisted.
func (s *State) Update(fn func(c Collection, now time.Time) (Collection, bool)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(fn)
}

func (s *State) apply(fn func(c Collection, now time.Time) (Collection, bool)) bool {
	next, changed := fn(s.folders, s.now())
	if !changed {
		return false
	}
	s.folders = next
	s.persist()
	return true
}

// persist must be called with mu held so writes land in mutation order
func (s *State) persist() {
	if s.repo == nil {
		return
	}
	if err := s.repo.SaveFolders(s.folders); err != nil {
		s.logger.Error("Failed to persist folders: %v", err)
	}
}

// CreateFolder adds a folder and returns its id
func (s *State) CreateFolder(name string) (string, bool) {
	id := s.newID()
	ok := s.Update(func(c Collection, _ time.Time) (Collection, bool) {
		return CreateFolder(c, id, name)
	})
	return id, ok
}

// RenameFolder renames a folder
func (s *State) RenameFolder(id, name string) bool {
	return s.Update(func(c Collection, _ time.Time) (Collection, bool) {
		return RenameFolder(c, id, name)
	})
}

// ToggleFolder flips a folder's expanded state
func (s *State) ToggleFolder(id string) bool {
	return s.Update(func(c Collection, _ time.Time) (Collection, bool) {
		return ToggleFolder(c, id)
	})
}

// DeleteFolder removes a folder unless it is the last one. The active
// selection is cleared when it pointed into the folder.
func (s *State) DeleteFolder(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	holdsActive := s.activeID != "" && FolderContains(s.folders, id, s.activeID)
	ok := s.apply(func(c Collection, _ time.Time) (Collection, bool) {
		return DeleteFolder(c, id)
	})
	if ok && holdsActive {
		s.activeID = ""
	}
	return ok
}

// CreateConversation adds seed to the front of a folder (the first folder
// when folderID is empty). A missing id or timestamps are filled in. A seed
// whose id already exists is rejected.
func (s *State) CreateConversation(folderID string, seed model.Conversation) (string, bool) {
	if seed.ID == "" {
		seed.ID = s.newID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.apply(func(c Collection, now time.Time) (Collection, bool) {
		target := folderID
		if target == "" && len(c) > 0 {
			target = c[0].ID
		}
		if seed.CreatedAt.IsZero() {
			seed.CreatedAt = now
		}
		if seed.UpdatedAt.IsZero() {
			seed.UpdatedAt = now
		}
		return CreateConversation(c, target, seed)
	})
	return seed.ID, ok
}

// DeleteConversation removes a conversation and clears the selection if it
// was active.
func (s *State) DeleteConversation(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.apply(func(c Collection, _ time.Time) (Collection, bool) {
		return DeleteConversation(c, id)
	})
	if ok && s.activeID == id {
		s.activeID = ""
	}
	return ok
}

// MoveConversation moves a conversation to the front of another folder
func (s *State) MoveConversation(id, targetFolderID string) bool {
	return s.Update(func(c Collection, _ time.Time) (Collection, bool) {
		return MoveConversation(c, id, targetFolderID)
	})
}

// SetPinned sets the pin flag
func (s *State) SetPinned(id string, pinned bool) bool {
	return s.Update(func(c Collection, now time.Time) (Collection, bool) {
		return SetPinned(c, id, pinned, now)
	})
}

// AddTag attaches an existing tag
func (s *State) AddTag(convID string, tag model.Tag) bool {
	return s.Update(func(c Collection, now time.Time) (Collection, bool) {
		return AddTag(c, convID, tag, now)
	})
}

// CreateTag makes a new tag and attaches it to the conversation
func (s *State) CreateTag(convID, name string, color model.TagColor) (model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, ok := Find(s.folders, convID); !ok {
		return model.Tag{}, fmt.Errorf("conversation %q not found", convID)
	}
	tag, err := tags.NewTag(name, color, tags.Collect(s.folders))
	if err != nil {
		return model.Tag{}, err
	}
	s.apply(func(c Collection, now time.Time) (Collection, bool) {
		return AddTag(c, convID, tag, now)
	})
	return tag, nil
}

// RemoveTag detaches a tag
func (s *State) RemoveTag(convID, tagID string) bool {
	return s.Update(func(c Collection, now time.Time) (Collection, bool) {
		return RemoveTag(c, convID, tagID, now)
	})
}

// Tags returns every known tag in first-seen order
func (s *State) Tags() []model.Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tags.Collect(s.folders)
}

// AppendMessages appends messages to a conversation
func (s *State) AppendMessages(id string, msgs ...model.Message) bool {
	return s.Update(func(c Collection, now time.Time) (Collection, bool) {
		return AppendMessages(c, id, msgs, now)
	})
}

// SetDocumentContent replaces a conversation's document
func (s *State) SetDocumentContent(id, text string) bool {
	return s.Update(func(c Collection, now time.Time) (Collection, bool) {
		return SetDocumentContent(c, id, text, now)
	})
}

// SetTitle replaces a conversation's title
func (s *State) SetTitle(id, title string) bool {
	return s.Update(func(c Collection, now time.Time) (Collection, bool) {
		return SetTitle(c, id, title, now)
	})
}

// EditMessage replaces a message's content and drops the messages after it
func (s *State) EditMessage(convID, msgID, content string) bool {
	return s.Update(func(c Collection, now time.Time) (Collection, bool) {
		return EditMessage(c, convID, msgID, content, now)
	})
}

// Search looks up conversations matching query
func (s *State) Search(query string) []SearchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Search(s.folders, query)
}

// Import prepends conversations to the first folder, skipping ids that
// already exist, and returns how many were added.
func (s *State) Import(convs []model.Conversation) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	s.apply(func(c Collection, _ time.Time) (Collection, bool) {
		var next Collection
		next, added = Prepend(c, c[0].ID, convs)
		return next, added > 0
	})
	return added
}

// Settings returns a copy of the AI settings, or nil in demo mode
func (s *State) Settings() *model.AISettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return nil
	}
	out := *s.settings
	return &out
}

// SetSettings validates and stores AI settings
func (s *State) SetSettings(settings model.AISettings) (model.AISettings, error) {
	settings = settings.Normalize()
	if err := settings.Validate(); err != nil {
		return model.AISettings{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &settings
	if s.repo != nil {
		if err := s.repo.SaveSettings(s.settings); err != nil {
			s.logger.Error("Failed to persist AI settings: %v", err)
		}
	}
	return settings, nil
}

// ClearSettings returns to demo mode
func (s *State) ClearSettings() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = nil
	if s.repo != nil {
		if err := s.repo.SaveSettings(nil); err != nil {
			s.logger.Error("Failed to clear AI settings: %v", err)
		}
	}
}

// Preferences returns the UI preferences
func (s *State) Preferences() model.Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// SetPreferences stores the UI preferences
func (s *State) SetPreferences(p model.Preferences) error {
	if !p.Layout.Valid() {
		return fmt.Errorf("unknown layout %q", p.Layout)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = p
	if s.repo != nil {
		if err := s.repo.SavePreferences(p); err != nil {
			s.logger.Error("Failed to persist preferences: %v", err)
		}
	}
	return nil
}

package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	"another-i/model"
	"another-i/utils"
)

// Persisted record keys
const (
	KeyFolders           = "another-i:folders"
	KeyAISettings        = "another-i:ai-settings"
	KeyLayout            = "another-i:layout"
	KeySkipDeleteConfirm = "another-i:skip-delete-confirm"
	KeyHasSeenGuide      = "another-i:has-seen-guide"
)

// KV is the key-value storage primitive. GetSetting returns found=false
// for a missing key.
type KV interface {
	GetSetting(key string) (value string, found bool, err error)
	SetSetting(key, value string) error
	DeleteSetting(key string) error
}

// Repository reads and writes the persisted state layout
type Repository struct {
	kv     KV
	logger *utils.Logger
}

// NewRepository creates a repository over kv
func NewRepository(kv KV, logger *utils.Logger) *Repository {
	return &Repository{kv: kv, logger: logger}
}

// LoadFolders reads the folder collection. Missing or unreadable data yields
// a default collection; records written before tags and pinning existed are
// backfilled.
func (r *Repository) LoadFolders(newID func() string) Collection {
	raw, found, err := r.kv.GetSetting(KeyFolders)
	if err != nil {
		r.logger.Error("Failed to read folders, starting with defaults: %v", err)
		return Default(newID())
	}
	if !found {
		return Default(newID())
	}

	c, dropped, err := decodeFolders([]byte(raw))
	if err != nil {
		r.logger.Error("Failed to decode folders, starting with defaults: %v", err)
		return Default(newID())
	}
	if dropped > 0 {
		r.logger.Warn("Dropped %d tags with unknown colors", dropped)
	}
	if len(c) == 0 {
		return Default(newID())
	}
	return migrate(c)
}

// storedFolder mirrors model.Folder with tag colors left undecoded, so that
// one tag outside the palette costs that tag and not the whole collection.
type storedFolder struct {
	model.Folder
	Conversations []storedConversation `json:"conversations"`
}

type storedConversation struct {
	model.Conversation
	Tags []storedTag `json:"tags"`
}

type storedTag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// decodeFolders parses the persisted collection, dropping tags whose color
// is not in the palette. Returns the number of tags dropped.
func decodeFolders(raw []byte) (Collection, int, error) {
	var stored []storedFolder
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, 0, err
	}

	dropped := 0
	c := make(Collection, 0, len(stored))
	for _, sf := range stored {
		f := sf.Folder
		f.Conversations = make([]model.Conversation, 0, len(sf.Conversations))
		for _, sc := range sf.Conversations {
			conv := sc.Conversation
			conv.Tags = nil
			if sc.Tags != nil {
				conv.Tags = make([]model.Tag, 0, len(sc.Tags))
			}
			for _, st := range sc.Tags {
				color, err := model.ParseTagColor(st.Color)
				if err != nil {
					dropped++
					continue
				}
				conv.Tags = append(conv.Tags, model.Tag{ID: st.ID, Name: st.Name, Color: color})
			}
			f.Conversations = append(f.Conversations, conv)
		}
		c = append(c, f)
	}
	return c, dropped, nil
}

// migrate backfills fields missing from older records and drops repeated
// conversation ids, keeping the first.
func migrate(c Collection) Collection {
	seen := make(map[string]struct{})
	for i := range c {
		kept := make([]model.Conversation, 0, len(c[i].Conversations))
		for _, conv := range c[i].Conversations {
			if _, ok := seen[conv.ID]; ok {
				continue
			}
			seen[conv.ID] = struct{}{}
			if conv.Tags == nil {
				conv.Tags = []model.Tag{}
			}
			if conv.Messages == nil {
				conv.Messages = []model.Message{}
			}
			kept = append(kept, conv)
		}
		c[i].Conversations = kept
	}
	return c
}

// SaveFolders writes the folder collection
func (r *Repository) SaveFolders(c Collection) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode folders: %w", err)
	}
	if err := r.kv.SetSetting(KeyFolders, string(data)); err != nil {
		return fmt.Errorf("failed to save folders: %w", err)
	}
	return nil
}

// LoadSettings returns the stored AI settings, or nil in demo mode
func (r *Repository) LoadSettings() *model.AISettings {
	raw, found, err := r.kv.GetSetting(KeyAISettings)
	if err != nil {
		r.logger.Error("Failed to read AI settings: %v", err)
		return nil
	}
	if !found {
		return nil
	}

	var s model.AISettings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		r.logger.Error("Failed to decode AI settings: %v", err)
		return nil
	}
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		r.logger.Warn("Ignoring stored AI settings: %v", err)
		return nil
	}
	return &s
}

// SaveSettings writes the AI settings; nil clears them
func (r *Repository) SaveSettings(s *model.AISettings) error {
	if s == nil {
		if err := r.kv.DeleteSetting(KeyAISettings); err != nil {
			return fmt.Errorf("failed to clear AI settings: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode AI settings: %w", err)
	}
	if err := r.kv.SetSetting(KeyAISettings, string(data)); err != nil {
		return fmt.Errorf("failed to save AI settings: %w", err)
	}
	return nil
}

// LoadPreferences reads the layout and flags, each independently
func (r *Repository) LoadPreferences() model.Preferences {
	prefs := model.Preferences{Layout: model.LayoutSplit}

	if raw, found, err := r.kv.GetSetting(KeyLayout); err != nil {
		r.logger.Error("Failed to read layout: %v", err)
	} else if found && model.Layout(raw).Valid() {
		prefs.Layout = model.Layout(raw)
	}

	prefs.SkipDeleteConfirm = r.loadFlag(KeySkipDeleteConfirm)
	prefs.HasSeenGuide = r.loadFlag(KeyHasSeenGuide)
	return prefs
}

func (r *Repository) loadFlag(key string) bool {
	raw, found, err := r.kv.GetSetting(key)
	if err != nil {
		r.logger.Error("Failed to read %s: %v", key, err)
		return false
	}
	if !found {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		r.logger.Warn("Ignoring malformed %s value %q", key, raw)
		return false
	}
	return v
}

// SavePreferences writes the layout and flags
func (r *Repository) SavePreferences(p model.Preferences) error {
	values := map[string]string{
		KeyLayout:            string(p.Layout),
		KeySkipDeleteConfirm: strconv.FormatBool(p.SkipDeleteConfirm),
		KeyHasSeenGuide:      strconv.FormatBool(p.HasSeenGuide),
	}
	for key, value := range values {
		if err := r.kv.SetSetting(key, value); err != nil {
			return fmt.Errorf("failed to save %s: %w", key, err)
		}
	}
	return nil
}

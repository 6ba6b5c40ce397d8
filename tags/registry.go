// Package tags manages the reusable labels attached to conversations.
//
// There is no tag table: the set of known tags is whatever is attached to
// conversations, deduplicated by id.
package tags

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"another-i/model"
)

// ErrEmptyName is returned for a tag name that is blank after trimming
var ErrEmptyName = errors.New("tag name is required")

// NewTag creates a tag with an id that does not collide with any tag in existing.
func NewTag(name string, color model.TagColor, existing []model.Tag) (model.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Tag{}, ErrEmptyName
	}
	if _, err := model.ParseTagColor(string(color)); err != nil {
		return model.Tag{}, err
	}

	taken := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		taken[t.ID] = struct{}{}
	}

	id := uuid.NewString()
	for {
		if _, ok := taken[id]; !ok {
			break
		}
		id = uuid.NewString()
	}

	return model.Tag{
		ID:    id,
		Name:  name,
		Color: color,
	}, nil
}

// Attach returns the conversation with tag attached. Attaching an id that is
// already present returns the conversation unchanged and false.
func Attach(conv model.Conversation, tag model.Tag) (model.Conversation, bool) {
	if conv.HasTag(tag.ID) {
		return conv, false
	}
	out := conv.Clone()
	out.Tags = append(out.Tags, tag)
	return out, true
}

// Detach removes the tag with the given id. Returns false when it was absent.
func Detach(conv model.Conversation, tagID string) (model.Conversation, bool) {
	if !conv.HasTag(tagID) {
		return conv, false
	}
	out := conv.Clone()
	kept := make([]model.Tag, 0, len(out.Tags))
	for _, t := range out.Tags {
		if t.ID != tagID {
			kept = append(kept, t)
		}
	}
	out.Tags = kept
	return out, true
}

// Collect returns the union of all conversations' tags, deduplicated by id
// in first-seen order.
func Collect(folders []model.Folder) []model.Tag {
	seen := make(map[string]struct{})
	out := []model.Tag{}
	for _, f := range folders {
		for _, c := range f.Conversations {
			for _, t := range c.Tags {
				if _, ok := seen[t.ID]; ok {
					continue
				}
				seen[t.ID] = struct{}{}
				out = append(out, t)
			}
		}
	}
	return out
}

// Lookup finds a known tag by id
func Lookup(folders []model.Folder, tagID string) (model.Tag, bool) {
	for _, t := range Collect(folders) {
		if t.ID == tagID {
			return t, true
		}
	}
	return model.Tag{}, false
}

// Package store holds the folder collection and the operations over it.
//
// Every operation takes a Collection and returns a new one; the input is
// never modified. Operations that cannot apply (unknown id, guard
// rejection) return the input unchanged and false rather than an error.
package store

import (
	"strings"
	"time"

	"another-i/model"
	"another-i/tags"
)

// DefaultFolderName names the folder of a fresh collection
const DefaultFolderName = "My Thoughts"

// Collection is the ordered, non-empty list of folders
type Collection []model.Folder

// Default returns a collection with a single expanded folder
func Default(folderID string) Collection {
	return Collection{{
		ID:            folderID,
		Name:          DefaultFolderName,
		Conversations: []model.Conversation{},
		IsExpanded:    true,
	}}
}

// Clone returns a deep copy
func (c Collection) Clone() Collection {
	if c == nil {
		return nil
	}
	out := make(Collection, len(c))
	for i, f := range c {
		out[i] = f.Clone()
	}
	return out
}

func (c Collection) folderIndex(id string) int {
	for i, f := range c {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func (c Collection) locate(convID string) (folder, conv int) {
	for i, f := range c {
		for j, conv := range f.Conversations {
			if conv.ID == convID {
				return i, j
			}
		}
	}
	return -1, -1
}

// CreateFolder appends a folder. Rejected when the id is taken.
func CreateFolder(c Collection, id, name string) (Collection, bool) {
	if c.folderIndex(id) >= 0 {
		return c, false
	}
	out := c.Clone()
	out = append(out, model.Folder{
		ID:            id,
		Name:          strings.TrimSpace(name),
		Conversations: []model.Conversation{},
		IsExpanded:    true,
	})
	return out, true
}

// RenameFolder changes a folder's name
func RenameFolder(c Collection, id, name string) (Collection, bool) {
	i := c.folderIndex(id)
	if i < 0 {
		return c, false
	}
	out := c.Clone()
	out[i].Name = strings.TrimSpace(name)
	return out, true
}

// ToggleFolder flips a folder's expanded state
func ToggleFolder(c Collection, id string) (Collection, bool) {
	i := c.folderIndex(id)
	if i < 0 {
		return c, false
	}
	out := c.Clone()
	out[i].IsExpanded = !out[i].IsExpanded
	return out, true
}

// DeleteFolder removes a folder and its conversations. Deleting the last
// folder is rejected.
func DeleteFolder(c Collection, id string) (Collection, bool) {
	i := c.folderIndex(id)
	if i < 0 || len(c) <= 1 {
		return c, false
	}
	out := make(Collection, 0, len(c)-1)
	for j, f := range c {
		if j != i {
			out = append(out, f.Clone())
		}
	}
	return out, true
}

// FolderContains reports whether the folder holds the conversation
func FolderContains(c Collection, folderID, convID string) bool {
	i := c.folderIndex(folderID)
	if i < 0 {
		return false
	}
	for _, conv := range c[i].Conversations {
		if conv.ID == convID {
			return true
		}
	}
	return false
}

// CreateConversation prepends seed to the folder. Rejected when the folder
// is unknown or the id already exists anywhere in the collection.
func CreateConversation(c Collection, folderID string, seed model.Conversation) (Collection, bool) {
	i := c.folderIndex(folderID)
	if i < 0 || seed.ID == "" {
		return c, false
	}
	if fi, _ := c.locate(seed.ID); fi >= 0 {
		return c, false
	}
	conv := seed.Clone()
	if conv.Messages == nil {
		conv.Messages = []model.Message{}
	}
	if conv.Tags == nil {
		conv.Tags = []model.Tag{}
	}

	out := c.Clone()
	out[i].Conversations = append([]model.Conversation{conv}, out[i].Conversations...)
	return out, true
}

// DeleteConversation removes the conversation from whichever folder holds it
func DeleteConversation(c Collection, id string) (Collection, bool) {
	fi, ci := c.locate(id)
	if fi < 0 {
		return c, false
	}
	out := c.Clone()
	convs := out[fi].Conversations
	out[fi].Conversations = append(convs[:ci:ci], convs[ci+1:]...)
	return out, true
}

// MoveConversation transfers a conversation to the front of the target
// folder. No-op when either is unknown or it is already there.
func MoveConversation(c Collection, id, targetFolderID string) (Collection, bool) {
	fi, ci := c.locate(id)
	ti := c.folderIndex(targetFolderID)
	if fi < 0 || ti < 0 || fi == ti {
		return c, false
	}
	out := c.Clone()
	conv := out[fi].Conversations[ci]
	src := out[fi].Conversations
	out[fi].Conversations = append(src[:ci:ci], src[ci+1:]...)
	out[ti].Conversations = append([]model.Conversation{conv}, out[ti].Conversations...)
	return out, true
}

// update applies fn to a copy of the conversation and refreshes UpdatedAt.
// fn returns false to leave the collection untouched.
func update(c Collection, id string, now time.Time, fn func(conv *model.Conversation) bool) (Collection, bool) {
	fi, ci := c.locate(id)
	if fi < 0 {
		return c, false
	}
	conv := c[fi].Conversations[ci].Clone()
	if !fn(&conv) {
		return c, false
	}
	conv.UpdatedAt = now
	out := c.Clone()
	out[fi].Conversations[ci] = conv
	return out, true
}

// SetPinned sets the pin flag
func SetPinned(c Collection, id string, pinned bool, now time.Time) (Collection, bool) {
	return update(c, id, now, func(conv *model.Conversation) bool {
		conv.IsPinned = pinned
		return true
	})
}

// AddTag attaches a tag; attaching a present tag id changes nothing
func AddTag(c Collection, id string, tag model.Tag, now time.Time) (Collection, bool) {
	return update(c, id, now, func(conv *model.Conversation) bool {
		next, changed := tags.Attach(*conv, tag)
		*conv = next
		return changed
	})
}

// RemoveTag detaches a tag by id
func RemoveTag(c Collection, id, tagID string, now time.Time) (Collection, bool) {
	return update(c, id, now, func(conv *model.Conversation) bool {
		next, changed := tags.Detach(*conv, tagID)
		*conv = next
		return changed
	})
}

// AppendMessages adds messages to the end of the transcript
func AppendMessages(c Collection, id string, msgs []model.Message, now time.Time) (Collection, bool) {
	if len(msgs) == 0 {
		return c, false
	}
	return update(c, id, now, func(conv *model.Conversation) bool {
		conv.Messages = append(conv.Messages, msgs...)
		return true
	})
}

// SetDocumentContent replaces the thought document
func SetDocumentContent(c Collection, id, text string, now time.Time) (Collection, bool) {
	return update(c, id, now, func(conv *model.Conversation) bool {
		conv.DocumentContent = text
		return true
	})
}

// SetTitle replaces the title
func SetTitle(c Collection, id, title string, now time.Time) (Collection, bool) {
	return update(c, id, now, func(conv *model.Conversation) bool {
		conv.Title = title
		return true
	})
}

// EditMessage replaces a message's content and discards every message
// after it.
func EditMessage(c Collection, convID, msgID, content string, now time.Time) (Collection, bool) {
	return update(c, convID, now, func(conv *model.Conversation) bool {
		for i := range conv.Messages {
			if conv.Messages[i].ID != msgID {
				continue
			}
			conv.Messages[i].Content = content
			conv.Messages = conv.Messages[:i+1]
			return true
		}
		return false
	})
}

// Find returns a copy of the conversation and the id of its folder
func Find(c Collection, id string) (model.Conversation, string, bool) {
	fi, ci := c.locate(id)
	if fi < 0 {
		return model.Conversation{}, "", false
	}
	return c[fi].Conversations[ci].Clone(), c[fi].ID, true
}

// Prepend puts conversations at the front of the folder, skipping ids that
// already exist. Returns the number added.
func Prepend(c Collection, folderID string, convs []model.Conversation) (Collection, int) {
	i := c.folderIndex(folderID)
	if i < 0 {
		return c, 0
	}
	taken := make(map[string]struct{})
	for _, f := range c {
		for _, conv := range f.Conversations {
			taken[conv.ID] = struct{}{}
		}
	}

	fresh := make([]model.Conversation, 0, len(convs))
	for _, conv := range convs {
		if _, ok := taken[conv.ID]; ok || conv.ID == "" {
			continue
		}
		taken[conv.ID] = struct{}{}
		fresh = append(fresh, conv.Clone())
	}
	if len(fresh) == 0 {
		return c, 0
	}

	out := c.Clone()
	out[i].Conversations = append(fresh, out[i].Conversations...)
	return out, len(fresh)
}

// ListSorted orders conversations pinned first, keeping relative order
// within each group, and drops repeated ids after their first occurrence.
func ListSorted(convs []model.Conversation) []model.Conversation {
	seen := make(map[string]struct{}, len(convs))
	pinned := make([]model.Conversation, 0, len(convs))
	rest := make([]model.Conversation, 0, len(convs))
	for _, conv := range convs {
		if _, ok := seen[conv.ID]; ok {
			continue
		}
		seen[conv.ID] = struct{}{}
		if conv.IsPinned {
			pinned = append(pinned, conv)
		} else {
			rest = append(rest, conv)
		}
	}
	return append(pinned, rest...)
}

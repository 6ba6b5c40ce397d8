package model

import (
	"time"
)

// Role is the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Tag is a reusable label attached to conversations
type Tag struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Color TagColor `json:"color"`
}

// Conversation represents a chat conversation and its thought document
type Conversation struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Messages        []Message `json:"messages"`
	DocumentContent string    `json:"documentContent"`
	Tags            []Tag     `json:"tags"`
	IsPinned        bool      `json:"isPinned"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Folder groups conversations. The collection always holds at least one.
type Folder struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Conversations []Conversation `json:"conversations"`
	IsExpanded    bool           `json:"isExpanded"`
}

// Clone returns a deep copy of the conversation
func (c Conversation) Clone() Conversation {
	out := c
	if c.Messages != nil {
		out.Messages = append([]Message(nil), c.Messages...)
	}
	if c.Tags != nil {
		out.Tags = append([]Tag(nil), c.Tags...)
	}
	return out
}

// Clone returns a deep copy of the folder
func (f Folder) Clone() Folder {
	out := f
	if f.Conversations != nil {
		out.Conversations = make([]Conversation, len(f.Conversations))
		for i, c := range f.Conversations {
			out.Conversations[i] = c.Clone()
		}
	}
	return out
}

// HasTag reports whether a tag with the given id is attached
func (c Conversation) HasTag(tagID string) bool {
	for _, t := range c.Tags {
		if t.ID == tagID {
			return true
		}
	}
	return false
}

// CountRoles returns the number of user and assistant messages
func CountRoles(messages []Message) (users, assistants int) {
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			users++
		case RoleAssistant:
			assistants++
		}
	}
	return users, assistants
}

// Recent returns the last n messages. A non-positive n returns all of them.
// The returned slice never aliases the input.
func Recent(messages []Message, n int) []Message {
	if n <= 0 || len(messages) <= n {
		return append([]Message(nil), messages...)
	}
	return append([]Message(nil), messages[len(messages)-n:]...)
}

// Package importer converts third-party chat exports into conversations.
//
// ChatGPT exports store each conversation as a message graph (node id ->
// {message, parent, children}). The graph is flattened by sorting the nodes
// by their creation time and filtering them, not by walking it. Branches left
// by regenerated or edited messages therefore collapse into one linear
// transcript; this loss is accepted.
package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"another-i/document"
	"another-i/model"
)

const (
	// IDPrefix marks conversations that came from a ChatGPT export
	IDPrefix = "chatgpt-"

	// PlaceholderTitle is used when the export has no title
	PlaceholderTitle = "Imported conversation"
)

// ErrNotArray is returned when the input is not a JSON array
var ErrNotArray = errors.New("the file is not a ChatGPT export: expected a JSON array")

// Result summarizes one import run
type Result struct {
	Conversations []model.Conversation `json:"conversations"`
	ImportedCount int                  `json:"importedCount"`
	SkippedCount  int                  `json:"skippedCount"`
	Errors        []string             `json:"errors"`
}

type exportConversation struct {
	Title      string          `json:"title"`
	CreateTime *float64        `json:"create_time"`
	UpdateTime *float64        `json:"update_time"`
	Mapping    json.RawMessage `json:"mapping"`
}

type exportNode struct {
	ID       string         `json:"id"`
	Message  *exportMessage `json:"message"`
	Parent   *string        `json:"parent"`
	Children []string       `json:"children"`
}

type exportMessage struct {
	ID     string `json:"id"`
	Author *struct {
		Role string `json:"role"`
	} `json:"author"`
	CreateTime *float64 `json:"create_time"`
	Content    *struct {
		ContentType string            `json:"content_type"`
		Parts       []json.RawMessage `json:"parts"`
	} `json:"content"`
}

// candidate is a node that survived collection
type candidate struct {
	role    string
	content string
	created time.Time
}

// ParseChatGPT parses a ChatGPT conversations.json export. Only a non-array
// top level fails the whole import; every other problem is recorded per item.
func ParseChatGPT(data []byte, now time.Time) (*Result, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotArray
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, errors.Wrap(ErrNotArray, err.Error())
	}

	result := &Result{
		Conversations: []model.Conversation{},
		Errors:        []string{},
	}

	for i, raw := range items {
		conv, ok, err := parseConversation(raw, now)
		if err != nil {
			result.SkippedCount++
			result.Errors = append(result.Errors, fmt.Sprintf("conversation %d: %v", i+1, err))
			continue
		}
		if !ok {
			result.SkippedCount++
			continue
		}
		result.Conversations = append(result.Conversations, conv)
		result.ImportedCount++
	}

	return result, nil
}

func parseConversation(raw json.RawMessage, now time.Time) (model.Conversation, bool, error) {
	var ec exportConversation
	if err := json.Unmarshal(raw, &ec); err != nil {
		return model.Conversation{}, false, errors.Wrap(err, "invalid conversation record")
	}
	if len(ec.Mapping) == 0 || string(ec.Mapping) == "null" {
		return model.Conversation{}, false, errors.New("missing mapping")
	}

	nodes, err := decodeMapping(ec.Mapping)
	if err != nil {
		return model.Conversation{}, false, err
	}

	fallback := unixTime(ec.CreateTime, now)
	candidates, err := collect(nodes, fallback)
	if err != nil {
		return model.Conversation{}, false, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].created.Before(candidates[j].created)
	})

	messages := make([]model.Message, 0, len(candidates))
	for _, c := range candidates {
		var role model.Role
		switch c.role {
		case "user":
			role = model.RoleUser
		case "assistant":
			role = model.RoleAssistant
		default:
			continue
		}
		messages = append(messages, model.Message{
			ID:        IDPrefix + shortuuid.New(),
			Role:      role,
			Content:   c.content,
			Timestamp: c.created,
		})
	}

	if len(messages) == 0 {
		return model.Conversation{}, false, nil
	}

	title := strings.TrimSpace(ec.Title)
	if title == "" {
		title = PlaceholderTitle
	}

	return model.Conversation{
		ID:              IDPrefix + shortuuid.New(),
		Title:           title,
		Messages:        messages,
		DocumentContent: document.Synthesize(messages, title, now),
		Tags:            []model.Tag{},
		CreatedAt:       fallback,
		UpdatedAt:       unixTime(ec.UpdateTime, fallback),
	}, true, nil
}

// decodeMapping reads the mapping object keeping the order its nodes appear
// in the file, which breaks ties between equal timestamps.
func decodeMapping(raw json.RawMessage) ([]exportNode, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Wrap(err, "invalid mapping")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("mapping is not an object")
	}

	var nodes []exportNode
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrap(err, "invalid mapping")
		}
		key, _ := keyTok.(string)

		var node exportNode
		if err := dec.Decode(&node); err != nil {
			return nil, errors.Wrapf(err, "invalid mapping node %q", key)
		}
		if node.ID == "" {
			node.ID = key
		}
		nodes = append(nodes, node)
	}
	if _, err := dec.Token(); err != nil {
		return nil, errors.Wrap(err, "invalid mapping")
	}
	return nodes, nil
}

func collect(nodes []exportNode, fallback time.Time) ([]candidate, error) {
	out := make([]candidate, 0, len(nodes))
	for _, node := range nodes {
		msg := node.Message
		if msg == nil || msg.Content == nil {
			continue
		}
		if msg.Author == nil {
			return nil, errors.Errorf("mapping node %q: message has no author", node.ID)
		}

		parts := textParts(msg.Content.Parts)
		if !hasContent(parts) {
			continue
		}
		content := strings.TrimSpace(strings.Join(parts, "\n"))
		if content == "" {
			continue
		}

		out = append(out, candidate{
			role:    msg.Author.Role,
			content: content,
			created: unixTime(msg.CreateTime, fallback),
		})
	}
	return out, nil
}

// textParts keeps the string parts; attachments and other objects are ignored
func textParts(raw []json.RawMessage) []string {
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		var s string
		if err := json.Unmarshal(p, &s); err == nil {
			parts = append(parts, s)
		}
	}
	return parts
}

func hasContent(parts []string) bool {
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

func unixTime(seconds *float64, fallback time.Time) time.Time {
	if seconds == nil || *seconds <= 0 {
		return fallback
	}
	sec := int64(*seconds)
	nsec := int64((*seconds - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

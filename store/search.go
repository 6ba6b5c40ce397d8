package store

import (
	"strings"
	"unicode"

	"another-i/model"
)

const snippetRadius = 40

// SearchResult is one conversation matching a query
type SearchResult struct {
	ConversationID string      `json:"conversationId"`
	FolderID       string      `json:"folderId"`
	Title          string      `json:"title"`
	Field          string      `json:"field"` // title, tag, message or document
	Snippet        string      `json:"snippet"`
	Tags           []model.Tag `json:"tags"`
}

// Search finds conversations whose title, messages, document or tag names
// contain the query, case-insensitively. Results follow collection order
// with pinned conversations first.
func Search(c Collection, query string) []SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	results := []SearchResult{}
	if q == "" {
		return results
	}

	var pinned, rest []SearchResult
	for _, f := range c {
		for _, conv := range ListSorted(f.Conversations) {
			field, snippet, ok := match(conv, q)
			if !ok {
				continue
			}
			r := SearchResult{
				ConversationID: conv.ID,
				FolderID:       f.ID,
				Title:          conv.Title,
				Field:          field,
				Snippet:        snippet,
				Tags:           append([]model.Tag{}, conv.Tags...),
			}
			if conv.IsPinned {
				pinned = append(pinned, r)
			} else {
				rest = append(rest, r)
			}
		}
	}
	results = append(results, pinned...)
	return append(results, rest...)
}

func match(conv model.Conversation, q string) (field, snippet string, ok bool) {
	if strings.Contains(strings.ToLower(conv.Title), q) {
		return "title", conv.Title, true
	}
	for _, t := range conv.Tags {
		if strings.Contains(strings.ToLower(t.Name), q) {
			return "tag", t.Name, true
		}
	}
	for _, m := range conv.Messages {
		if s, ok := snippetAround(m.Content, q); ok {
			return "message", s, true
		}
	}
	if s, ok := snippetAround(conv.DocumentContent, q); ok {
		return "document", s, true
	}
	return "", "", false
}

// snippetAround returns the text surrounding the first match of q. Case is
// folded rune by rune so that match positions index the original text.
func snippetAround(text, q string) (string, bool) {
	runes := []rune(text)
	lower := foldRunes(runes)
	needle := foldRunes([]rune(q))

	idx := indexRunes(lower, needle)
	if idx < 0 {
		return "", false
	}
	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + len(needle) + snippetRadius
	if end > len(runes) {
		end = len(runes)
	}

	snippet := strings.Join(strings.Fields(string(runes[start:end])), " ")
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet += "..."
	}
	return snippet, true
}

func foldRunes(runes []rune) []rune {
	out := make([]rune, len(runes))
	for i, r := range runes {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return 0
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

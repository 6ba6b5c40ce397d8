// Package document derives the thought document of a conversation from its
// messages, either with a local template or through the summarization
// capability.
package document

import (
	"fmt"
	"strings"
	"time"

	"another-i/model"
)

const (
	// DefaultTitle heads documents of untitled conversations
	DefaultTitle = "Thought Notes"

	// PreviewRunes bounds assistant content in the local template
	PreviewRunes = 200

	// MaxSummaryMessages caps the transcript sent for remote summarization
	MaxSummaryMessages = 50

	timestampLayout = "2006-01-02 15:04:05"
)

// Synthesize renders the local Markdown template for a transcript. It is a
// pure function: identical inputs and now give identical output.
func Synthesize(messages []model.Message, title string, now time.Time) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", title))
	sb.WriteString(fmt.Sprintf("*Generated: %s*\n\n", now.Format(timestampLayout)))

	sb.WriteString("## Conversation\n\n")
	if len(messages) == 0 {
		sb.WriteString("_No messages yet._\n\n")
	}
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleUser:
			sb.WriteString("### You\n\n")
			sb.WriteString(strings.TrimSpace(msg.Content))
		case model.RoleAssistant:
			sb.WriteString("### Another I\n\n")
			sb.WriteString(Preview(strings.TrimSpace(msg.Content), PreviewRunes))
		default:
			continue
		}
		sb.WriteString("\n\n")
	}

	users, assistants := model.CountRoles(messages)
	sb.WriteString("## Summary\n\n")
	sb.WriteString(fmt.Sprintf("- User messages: %d\n", users))
	sb.WriteString(fmt.Sprintf("- Assistant messages: %d\n", assistants))

	return sb.String()
}

// Preview truncates s to maxRunes runes, appending "..." when cut
func Preview(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

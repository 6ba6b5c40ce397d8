package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"another-i/model"
)

// ExportFormat represents the export format
type ExportFormat string

const (
	FormatJSON     ExportFormat = "json"
	FormatMarkdown ExportFormat = "markdown"
)

// ParseExportFormat accepts "markdown", "md" and "json"
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Extension returns the file extension without the dot
func (f ExportFormat) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// ContentType returns the MIME type of an export
func (f ExportFormat) ContentType() string {
	if f == FormatMarkdown {
		return "text/markdown; charset=utf-8"
	}
	return "application/json"
}

// exportMetadata is attached to JSON exports
type exportMetadata struct {
	ExportVersion string    `json:"exportVersion"`
	ExportDate    time.Time `json:"exportDate"`
	AppName       string    `json:"appName"`
	TotalCount    int       `json:"totalCount,omitempty"`
}

type conversationExport struct {
	Metadata     exportMetadata     `json:"metadata"`
	Conversation model.Conversation `json:"conversation"`
}

type collectionExport struct {
	Metadata exportMetadata `json:"metadata"`
	Folders  []model.Folder `json:"folders"`
}

func metadata(now time.Time, count int) exportMetadata {
	return exportMetadata{
		ExportVersion: "1.0",
		ExportDate:    now,
		AppName:       "Another I",
		TotalCount:    count,
	}
}

// ExportConversation renders a single conversation
func ExportConversation(conv model.Conversation, format ExportFormat, now time.Time) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(conversationExport{Metadata: metadata(now, 0), Conversation: conv}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return data, nil
	case FormatMarkdown:
		var sb strings.Builder
		writeConversationMarkdown(&sb, conv, "#")
		writeFooter(&sb, now)
		return []byte(sb.String()), nil
	}
	return nil, fmt.Errorf("unknown export format %q", format)
}

// ExportAll renders every folder and conversation. Markdown sections are
// rendered concurrently and joined in collection order.
func ExportAll(folders []model.Folder, format ExportFormat, now time.Time) ([]byte, error) {
	total := 0
	for _, f := range folders {
		total += len(f.Conversations)
	}

	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(collectionExport{Metadata: metadata(now, total), Folders: folders}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return data, nil
	case FormatMarkdown:
		var g errgroup.Group
		sections := make([][]string, len(folders))
		for i, f := range folders {
			sections[i] = make([]string, len(f.Conversations))
			for j, conv := range f.Conversations {
				i, j, conv := i, j, conv
				g.Go(func() error {
					var sb strings.Builder
					writeConversationMarkdown(&sb, conv, "##")
					sections[i][j] = sb.String()
					return nil
				})
			}
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var sb strings.Builder
		sb.WriteString("# Another I Export\n\n")
		for i, f := range folders {
			fmt.Fprintf(&sb, "# %s\n\n", f.Name)
			if len(f.Conversations) == 0 {
				sb.WriteString("_Empty folder._\n\n")
			}
			for _, section := range sections[i] {
				sb.WriteString(section)
			}
		}
		writeFooter(&sb, now)
		return []byte(sb.String()), nil
	}
	return nil, fmt.Errorf("unknown export format %q", format)
}

// writeConversationMarkdown writes one conversation with its title at the
// given heading level and its messages one level below
func writeConversationMarkdown(sb *strings.Builder, conv model.Conversation, level string) {
	fmt.Fprintf(sb, "%s %s\n\n", level, conv.Title)
	fmt.Fprintf(sb, "**Created**: %s\n", conv.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(sb, "**Updated**: %s\n", conv.UpdatedAt.Format("2006-01-02 15:04:05"))
	if len(conv.Tags) > 0 {
		names := make([]string, 0, len(conv.Tags))
		for _, t := range conv.Tags {
			names = append(names, "`"+t.Name+"`")
		}
		fmt.Fprintf(sb, "**Tags**: %s\n", strings.Join(names, ", "))
	}
	sb.WriteString("\n")

	for _, msg := range conv.Messages {
		speaker := "You"
		if msg.Role == model.RoleAssistant {
			speaker = "Another I"
		}
		fmt.Fprintf(sb, "%s# %s\n\n", level, speaker)
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
	}

	if strings.TrimSpace(conv.DocumentContent) != "" {
		fmt.Fprintf(sb, "%s# Thought Document\n\n", level)
		sb.WriteString(demoteHeadings(conv.DocumentContent, len(level)+1))
		sb.WriteString("\n\n")
	}
	sb.WriteString("---\n\n")
}

// demoteHeadings pushes ATX headings of an embedded document below depth
func demoteHeadings(doc string, depth int) string {
	lines := strings.Split(strings.TrimSpace(doc), "\n")
	for i, line := range lines {
		n := len(line) - len(strings.TrimLeft(line, "#"))
		if n == 0 || n >= len(line) || line[n] != ' ' {
			continue
		}
		lines[i] = strings.Repeat("#", min(n+depth, 6)) + line[n:]
	}
	return strings.Join(lines, "\n")
}

func writeFooter(sb *strings.Builder, now time.Time) {
	fmt.Fprintf(sb, "*Exported: %s*\n", now.Format("2006-01-02 15:04:05"))
}

// WriteExport writes data to path, creating the directory if needed
func WriteExport(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// GenerateExportFilename generates a filename for export
func GenerateExportFilename(title string, format ExportFormat, now time.Time) string {
	// Sanitize title for filename
	sanitized := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '\n', '\r', '\t':
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	if sanitized == "" {
		sanitized = "another-i"
	}

	// Truncate if too long
	if utf8.RuneCountInString(sanitized) > 50 {
		sanitized = string([]rune(sanitized)[:50])
	}

	return fmt.Sprintf("%s_%s.%s", sanitized, now.Format("20060102_150405"), format.Extension())
}

// GetDefaultExportPath returns the default export directory
func GetDefaultExportPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	exportDir := filepath.Join(homeDir, "Documents", "Another_I_Exports")

	// Create directory if it doesn't exist
	if err := os.MkdirAll(exportDir, 0755); err != nil {
		return "", err
	}

	return exportDir, nil
}

package utils

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"another-i/model"
)

var exportTime = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func sampleConversation(id, title string) model.Conversation {
	return model.Conversation{
		ID:    id,
		Title: title,
		Messages: []model.Message{
			{ID: id + "-1", Role: model.RoleUser, Content: "What should I focus on?", Timestamp: exportTime},
			{ID: id + "-2", Role: model.RoleAssistant, Content: "What feels most urgent?", Timestamp: exportTime},
		},
		DocumentContent: "# Focus\n\n## Key Points\n- urgency",
		Tags:            []model.Tag{{ID: "t1", Name: "work", Color: model.ColorBlue}},
		CreatedAt:       exportTime,
		UpdatedAt:       exportTime,
	}
}

type heading struct {
	Level int
	Text  string
}

func headings(t *testing.T, src []byte) []heading {
	t.Helper()
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	var out []heading
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if h, ok := n.(*ast.Heading); ok && entering {
			var sb strings.Builder
			for c := h.FirstChild(); c != nil; c = c.NextSibling() {
				if txt, ok := c.(*ast.Text); ok {
					sb.Write(txt.Segment.Value(src))
				}
			}
			out = append(out, heading{Level: h.Level, Text: sb.String()})
		}
		return ast.WalkContinue, nil
	})
	require.NoError(t, err)
	return out
}

func TestExportConversationMarkdown(t *testing.T) {
	data, err := ExportConversation(sampleConversation("c1", "Focus"), FormatMarkdown, exportTime)
	require.NoError(t, err)

	assert.Equal(t, []heading{
		{1, "Focus"},
		{2, "You"},
		{2, "Another I"},
		{2, "Thought Document"},
		{3, "Focus"},
		{4, "Key Points"},
	}, headings(t, data))
	assert.Contains(t, string(data), "**Tags**: `work`")
	assert.Contains(t, string(data), "*Exported: 2024-05-01 09:30:00*")
}

func TestExportConversationJSON(t *testing.T) {
	conv := sampleConversation("c1", "Focus")
	data, err := ExportConversation(conv, FormatJSON, exportTime)
	require.NoError(t, err)

	var decoded struct {
		Metadata     map[string]any     `json:"metadata"`
		Conversation model.Conversation `json:"conversation"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Another I", decoded.Metadata["appName"])
	assert.Equal(t, conv.Messages, decoded.Conversation.Messages)
	assert.Contains(t, string(data), `"documentContent"`)
}

func TestExportAllKeepsCollectionOrder(t *testing.T) {
	folders := []model.Folder{
		{ID: "f1", Name: "Work", Conversations: []model.Conversation{
			sampleConversation("a", "Alpha"), sampleConversation("b", "Beta"),
		}},
		{ID: "f2", Name: "Empty"},
		{ID: "f3", Name: "Life", Conversations: []model.Conversation{sampleConversation("c", "Gamma")}},
	}

	data, err := ExportAll(folders, FormatMarkdown, exportTime)
	require.NoError(t, err)

	var top []string
	var convs []string
	for _, h := range headings(t, data) {
		switch h.Level {
		case 1:
			top = append(top, h.Text)
		case 2:
			if h.Text != "You" && h.Text != "Another I" && h.Text != "Thought Document" {
				convs = append(convs, h.Text)
			}
		}
	}
	assert.Equal(t, []string{"Another I Export", "Work", "Empty", "Life"}, top)
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, convs)

	data, err = ExportAll(folders, FormatJSON, exportTime)
	require.NoError(t, err)
	var decoded struct {
		Metadata struct {
			TotalCount int `json:"totalCount"`
		} `json:"metadata"`
		Folders []model.Folder `json:"folders"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 3, decoded.Metadata.TotalCount)
	assert.Len(t, decoded.Folders, 3)
}

func TestParseExportFormat(t *testing.T) {
	for in, want := range map[string]ExportFormat{"": FormatMarkdown, "md": FormatMarkdown, "Markdown": FormatMarkdown, "json": FormatJSON} {
		got, err := ParseExportFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseExportFormat("pdf")
	assert.Error(t, err)
}

func TestGenerateExportFilename(t *testing.T) {
	assert.Equal(t, "a_b_20240501_093000.md", GenerateExportFilename("a/b", FormatMarkdown, exportTime))
	assert.Equal(t, "another-i_20240501_093000.json", GenerateExportFilename("  ", FormatJSON, exportTime))

	long := GenerateExportFilename(strings.Repeat("思", 80), FormatJSON, exportTime)
	assert.Equal(t, strings.Repeat("思", 50)+"_20240501_093000.json", long)
}

func TestWriteExportCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.md")
	require.NoError(t, WriteExport(path, []byte("# hi\n")))
	assert.FileExists(t, path)
}

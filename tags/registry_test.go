package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"another-i/model"
)

func TestNewTag(t *testing.T) {
	existing := []model.Tag{{ID: "a"}, {ID: "b"}}
	tag, err := NewTag("  work ", model.ColorGreen, existing)
	require.NoError(t, err)
	assert.Equal(t, "work", tag.Name)
	assert.NotEqual(t, "a", tag.ID)
	assert.NotEqual(t, "b", tag.ID)
	assert.NotEmpty(t, tag.ID)

	_, err = NewTag("x", model.TagColor("teal"), nil)
	assert.ErrorIs(t, err, model.ErrInvalidColor)
}

func TestNewTagRejectsBlankName(t *testing.T) {
	for _, name := range []string{"", "   ", "\t\n"} {
		_, err := NewTag(name, model.ColorGreen, nil)
		assert.ErrorIs(t, err, ErrEmptyName, "%q", name)
	}
}

func TestAttachIsIdempotent(t *testing.T) {
	tag := model.Tag{ID: "t1", Name: "ideas", Color: model.ColorBlue}
	conv := model.Conversation{ID: "c1"}

	conv, changed := Attach(conv, tag)
	assert.True(t, changed)
	conv, changed = Attach(conv, tag)
	assert.False(t, changed)
	assert.Len(t, conv.Tags, 1)
}

func TestDetachMissingIsNoop(t *testing.T) {
	conv := model.Conversation{ID: "c1", Tags: []model.Tag{{ID: "t1"}}}

	out, changed := Detach(conv, "nope")
	assert.False(t, changed)
	assert.Equal(t, conv, out)

	out, changed = Detach(conv, "t1")
	assert.True(t, changed)
	assert.Empty(t, out.Tags)
	assert.Len(t, conv.Tags, 1, "input must not be mutated")
}

func TestCollectFirstSeenOrder(t *testing.T) {
	red := model.Tag{ID: "r", Name: "red", Color: model.ColorRed}
	blue := model.Tag{ID: "b", Name: "blue", Color: model.ColorBlue}
	folders := []model.Folder{
		{ID: "f1", Conversations: []model.Conversation{
			{ID: "c1", Tags: []model.Tag{blue}},
			{ID: "c2", Tags: []model.Tag{red, blue}},
		}},
		{ID: "f2", Conversations: []model.Conversation{
			{ID: "c3", Tags: []model.Tag{red}},
		}},
	}

	got := Collect(folders)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "r", got[1].ID)

	found, ok := Lookup(folders, "r")
	assert.True(t, ok)
	assert.Equal(t, red, found)
}

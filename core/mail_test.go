package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appfs "github.com/quizzq/backend/fs"
)

func TestEmailMessage_Render(t *testing.T) {
	cache, err := parseTemplates(appfs.FS)
	require.NoError(t, err)
	require.Contains(t, cache, "password_reset")
	require.Contains(t, cache, "usage_limit_reached")

	tmplMu.Lock()
	templates = cache
	tmplMu.Unlock()

	t.Run("templated", func(t *testing.T) {
		msg := &EmailMessage{
			TemplateName: "password_reset",
			TemplateData: map[string]string{"Name": "Ada", "UID": "dWlk", "Token": "tok-sig"},
		}
		require.NoError(t, msg.Render("QuizzQ", "https://app.quizzq.test"))
		assert.Contains(t, msg.TextContent, "Hi Ada,")
		assert.Contains(t, msg.TextContent, "https://app.quizzq.test/password-reset/dWlk/tok-sig")
		assert.Contains(t, msg.TextContent, "The QuizzQ Team")
		assert.True(t, strings.HasPrefix(msg.HTMLContent, "<!DOCTYPE html>"))
		assert.True(t, msg.HasContent())
	})

	t.Run("plain body", func(t *testing.T) {
		msg := &EmailMessage{BodyStr: "hello"}
		require.NoError(t, msg.Render("QuizzQ", ""))
		assert.Equal(t, "hello", msg.TextContent)
		assert.Empty(t, msg.HTMLContent)
	})

	t.Run("unknown template", func(t *testing.T) {
		msg := &EmailMessage{TemplateName: "lol"}
		assert.Error(t, msg.Render("QuizzQ", ""))
	})

	t.Run("missing data key", func(t *testing.T) {
		msg := &EmailMessage{TemplateName: "password_reset", TemplateData: map[string]string{"Name": "Ada"}}
		assert.Error(t, msg.Render("QuizzQ", ""))
	})
}

func TestEmailMessage_Attach(t *testing.T) {
	msg := new(EmailMessage)
	require.NoError(t, msg.Attach(strings.NewReader("hello"), "hello.txt"))
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "aGVsbG8=", msg.Attachments[0].Content.String())
	assert.Equal(t, "text/plain; charset=utf-8", msg.Attachments[0].ContentType)
	assert.True(t, msg.HasAttachments())
}

func TestParseOrdering(t *testing.T) {
	tests := []struct {
		name string
		val  string
		want []DBOrdering
	}{
		{name: "empty", val: " "},
		{name: "single asc", val: "name", want: []DBOrdering{{Field: "name", Ascending: true}}},
		{
			name: "mixed", val: "-created_at, name,,-",
			want: []DBOrdering{{Field: "created_at"}, {Field: "name", Ascending: true}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOrdering(tt.val))
		})
	}
	assert.Equal(t, "created_at DESC", DBOrdering{Field: "created_at"}.String())
}

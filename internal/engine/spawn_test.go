package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpawnDirectives(t *testing.T) {
	text := "Report done.\n" +
		"```spawn\n{\"agent\": \"agents/summarizer.md\", \"message\": \"summarize\", \"context\": {\"focus\": \"bugs\"}}\n```\n" +
		"More text.\n" +
		"```spawn\n{\"agent\": \"agents/archiver.md\"}\n```\n"

	directives := ParseSpawnDirectives(text)
	require.Len(t, directives, 2)

	require.True(t, directives[0].Valid())
	assert.Equal(t, "agents/summarizer.md", directives[0].Request.Target)
	assert.Equal(t, "summarize", directives[0].Request.Message)
	assert.Equal(t, "bugs", directives[0].Request.Context["focus"])

	require.True(t, directives[1].Valid())
	assert.Equal(t, "agents/archiver.md", directives[1].Request.Target)
}

func TestParseSpawnDirectivesMalformed(t *testing.T) {
	text := "```spawn\nnot json at all\n```\n" +
		"```spawn\n{\"message\": \"no target\"}\n```\n" +
		"```spawn\n{\"agent\": \"agents/ok.md\"}\n```\n"

	directives := ParseSpawnDirectives(text)
	require.Len(t, directives, 3)

	assert.False(t, directives[0].Valid())
	assert.False(t, directives[1].Valid(), "missing agent target is invalid")
	assert.True(t, directives[2].Valid())
}

func TestParseSpawnDirectivesNone(t *testing.T) {
	assert.Empty(t, ParseSpawnDirectives("plain text, no fences"))
	assert.Empty(t, ParseSpawnDirectives("```json\n{\"agent\": \"x\"}\n```"),
		"only spawn-tagged fences are directives")
}

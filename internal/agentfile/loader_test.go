package agentfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlindgren/vaultagent/internal/domain"
)

const reviewerDoc = `---
agent:
  name: reviewer
  description: Reviews daily notes
  model: sonnet
  tools: [read, grep]
  triggers:
    on_modify: ["daily/*.md"]
    cron: "0 9 * * *"
  spawns:
    - target: agents/summarizer.md
      condition: "more than 3 open items"
      context:
        focus: "open items"
  context:
    root: daily/index.md
    max_tokens: 1000
  permissions:
    read: ["daily/**"]
    write: ["reports/*.md"]
    spawn: ["agents/summarizer.md"]
  constraints:
    max_spawns: 2
    max_depth: 2
    timeout: 60
---
Review the daily notes and report open items.
`

func writeVault(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestLoadFullDefinition(t *testing.T) {
	root := writeVault(t, map[string]string{"agents/reviewer.md": reviewerDoc})
	loader := NewLoader(root)

	def, err := loader.Load("agents/reviewer.md")
	require.NoError(t, err)

	assert.Equal(t, "reviewer", def.Name)
	assert.Equal(t, "sonnet", def.Model)
	assert.Equal(t, []string{"read", "grep"}, def.Tools)
	assert.Equal(t, []string{"daily/*.md"}, def.Triggers.OnModify)
	assert.Equal(t, "0 9 * * *", def.Triggers.Cron)
	assert.Equal(t, "daily/index.md", def.Context.Root)
	assert.Equal(t, 1000, def.Context.MaxTokens)
	assert.Equal(t, []string{"daily/**"}, def.Permissions.Read)
	assert.Equal(t, []string{"reports/*.md"}, def.Permissions.Write)
	assert.Equal(t, 2, def.Constraints.MaxSpawns)
	assert.Equal(t, 60*time.Second, def.Constraints.Timeout)
	assert.Equal(t, "agents/reviewer.md", def.Path)
	assert.Equal(t, "Review the daily notes and report open items.", def.Prompt)

	require.Len(t, def.Spawns, 1)
	assert.Equal(t, "agents/summarizer.md", def.Spawns[0].Target)
	assert.Equal(t, "open items", def.Spawns[0].Context["focus"])
}

func TestLoadAppliesDefaults(t *testing.T) {
	doc := "---\nagent:\n  description: minimal\n---\nDo the thing.\n"
	root := writeVault(t, map[string]string{"agents/minimal.md": doc})

	def, err := NewLoader(root).Load("agents/minimal.md")
	require.NoError(t, err)

	assert.Equal(t, "minimal", def.Name, "name falls back to the file basename")
	assert.Equal(t, defaultTools, def.Tools)
	assert.Equal(t, []string{"**/*"}, def.Context.Include)
	assert.Equal(t, []string{"*"}, def.Permissions.Read)
	assert.Equal(t, defaultMaxTokens, def.Context.MaxTokens)
	assert.Equal(t, defaultMaxDepth, def.Constraints.MaxDepth)
	assert.Equal(t, defaultTimeout, def.Constraints.Timeout)
}

func TestLoadRejectsNonAgentDocuments(t *testing.T) {
	root := writeVault(t, map[string]string{
		"notes/plain.md":    "Just a note, no frontmatter.\n",
		"notes/metadata.md": "---\ntitle: groceries\n---\nmilk, eggs\n",
	})
	loader := NewLoader(root)

	_, err := loader.Load("notes/plain.md")
	assert.ErrorIs(t, err, domain.ErrNotAnAgent)

	_, err = loader.Load("notes/metadata.md")
	assert.ErrorIs(t, err, domain.ErrNotAnAgent, "frontmatter without an agent block is not an agent")
}

func TestLoadRejectsEscapingPaths(t *testing.T) {
	root := writeVault(t, nil)
	loader := NewLoader(root)

	_, err := loader.Load("../outside.md")
	assert.ErrorIs(t, err, domain.ErrPathEscapesRoot)

	_, err = loader.Load("agents/../../outside.md")
	assert.ErrorIs(t, err, domain.ErrPathEscapesRoot)
}

func TestLoadAllSkipsMalformed(t *testing.T) {
	root := writeVault(t, map[string]string{
		"agents/ok.md":     "---\nagent:\n  name: ok\n---\nPrompt.\n",
		"agents/broken.md": "---\nagent: [not: valid\n---\nPrompt.\n",
		"agents/note.md":   "no frontmatter here\n",
		"agents/zeta.md":   "---\nagent:\n  name: zeta\n---\nPrompt.\n",
	})

	agents, err := NewLoader(root).LoadAll()
	require.NoError(t, err)

	require.Len(t, agents, 2)
	assert.Equal(t, "ok", agents[0].Name, "results are sorted by name")
	assert.Equal(t, "zeta", agents[1].Name)
}

func TestLoadAllMissingDirectory(t *testing.T) {
	agents, err := NewLoader(t.TempDir()).LoadAll()
	require.NoError(t, err)
	assert.Empty(t, agents)
}

func TestSplitFrontmatter(t *testing.T) {
	meta, body, err := splitFrontmatter("---\na: 1\n---\nbody text\n")
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", meta)
	assert.Equal(t, "body text\n", body)

	_, _, err = splitFrontmatter("no delimiters")
	assert.ErrorIs(t, err, domain.ErrNotAnAgent)

	_, _, err = splitFrontmatter("---\nunterminated: true\n")
	assert.ErrorIs(t, err, domain.ErrNotAnAgent)
}

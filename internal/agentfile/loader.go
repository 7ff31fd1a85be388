// Package agentfile loads agent definitions from vault documents.
// A definition is a markdown document whose YAML frontmatter carries an
// `agent:` block; the body below the frontmatter is the system prompt.
package agentfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mlindgren/vaultagent/internal/domain"
	"github.com/mlindgren/vaultagent/internal/logging"
)

// AgentsDir is the conventional directory scanned by LoadAll.
const AgentsDir = "agents"

// Defaults applied to missing optional fields.
var (
	defaultTools     = []string{"read", "write", "glob", "grep", "bash"}
	defaultInclude   = []string{"**/*"}
	defaultMaxTokens = 50000
	defaultMaxDepth  = 3
	defaultTimeout   = 300 * time.Second
)

// frontmatter is the raw metadata block. Durations are given in seconds so
// that documents stay plain YAML integers.
type frontmatter struct {
	Agent *agentMeta `yaml:"agent"`
}

type agentMeta struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Model       string             `yaml:"model"`
	Tools       []string           `yaml:"tools"`
	Triggers    triggerMeta        `yaml:"triggers"`
	Spawns      []spawnMeta        `yaml:"spawns"`
	Context     contextMeta        `yaml:"context"`
	Permissions permissionsMeta    `yaml:"permissions"`
	Constraints constraintsMeta    `yaml:"constraints"`
}

type triggerMeta struct {
	OnCreate []string `yaml:"on_create"`
	OnModify []string `yaml:"on_modify"`
	Cron     string   `yaml:"cron"`
	Manual   bool     `yaml:"manual"`
}

type spawnMeta struct {
	Target    string            `yaml:"target"`
	Condition string            `yaml:"condition"`
	Context   map[string]string `yaml:"context"`
}

type contextMeta struct {
	Root      string   `yaml:"root"`
	Include   []string `yaml:"include"`
	Exclude   []string `yaml:"exclude"`
	MaxFiles  int      `yaml:"max_files"`
	MaxTokens int      `yaml:"max_tokens"`
}

type permissionsMeta struct {
	Read  []string `yaml:"read"`
	Write []string `yaml:"write"`
	Spawn []string `yaml:"spawn"`
	Tools []string `yaml:"tools"`
}

type constraintsMeta struct {
	MaxSpawns int `yaml:"max_spawns"`
	MaxDepth  int `yaml:"max_depth"`
	Timeout   int `yaml:"timeout"` // seconds
}

// Loader parses agent definitions rooted at a vault.
type Loader struct {
	vaultRoot string
	logger    *logging.Logger
}

func NewLoader(vaultRoot string) *Loader {
	return &Loader{
		vaultRoot: vaultRoot,
		logger:    logging.New("agentfile"),
	}
}

// Resolve validates that path stays inside the vault root and returns the
// absolute path plus the vault-relative form.
func (l *Loader) Resolve(path string) (abs, rel string, err error) {
	rootAbs, err := filepath.Abs(l.vaultRoot)
	if err != nil {
		return "", "", fmt.Errorf("resolve vault root: %w", err)
	}

	if filepath.IsAbs(path) {
		abs = filepath.Clean(path)
	} else {
		abs = filepath.Join(rootAbs, path)
	}

	rel, err = filepath.Rel(rootAbs, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%s: %w", path, domain.ErrPathEscapesRoot)
	}
	return abs, filepath.ToSlash(rel), nil
}

// Load parses the document at path into an agent definition. The parse is
// always fresh; edits to the document take effect on the next execution.
func (l *Loader) Load(path string) (*domain.AgentDefinition, error) {
	abs, rel, err := l.Resolve(path)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read agent document: %w", err)
	}

	meta, body, err := splitFrontmatter(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rel, err)
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(meta), &fm); err != nil {
		return nil, fmt.Errorf("%s: parse frontmatter: %w", rel, err)
	}
	if fm.Agent == nil {
		return nil, fmt.Errorf("%s: %w", rel, domain.ErrNotAnAgent)
	}

	def := fm.Agent.toDefinition(rel, body)
	applyDefaults(def)
	return def, nil
}

// LoadAll scans the conventional agents directory. A single malformed
// document is logged and skipped rather than failing the whole scan.
func (l *Loader) LoadAll() ([]*domain.AgentDefinition, error) {
	dir := filepath.Join(l.vaultRoot, AgentsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan agents directory: %w", err)
	}

	var agents []*domain.AgentDefinition
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		rel := filepath.Join(AgentsDir, e.Name())
		def, err := l.Load(rel)
		if err != nil {
			l.logger.Warn("skip_document", map[string]any{"path": rel}, err)
			continue
		}
		agents = append(agents, def)
	}

	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents, nil
}

func (m *agentMeta) toDefinition(rel, body string) *domain.AgentDefinition {
	spawns := make([]domain.SpawnRule, 0, len(m.Spawns))
	for _, s := range m.Spawns {
		spawns = append(spawns, domain.SpawnRule{
			Target:    s.Target,
			Condition: s.Condition,
			Context:   s.Context,
		})
	}

	return &domain.AgentDefinition{
		Name:        m.Name,
		Description: m.Description,
		Model:       m.Model,
		Tools:       m.Tools,
		Triggers: domain.TriggerConfig{
			OnCreate: m.Triggers.OnCreate,
			OnModify: m.Triggers.OnModify,
			Cron:     m.Triggers.Cron,
			Manual:   m.Triggers.Manual,
		},
		Spawns: spawns,
		Context: domain.ContextPolicy{
			Root:      m.Context.Root,
			Include:   m.Context.Include,
			Exclude:   m.Context.Exclude,
			MaxFiles:  m.Context.MaxFiles,
			MaxTokens: m.Context.MaxTokens,
		},
		Permissions: domain.AgentPermissions{
			Read:  m.Permissions.Read,
			Write: m.Permissions.Write,
			Spawn: m.Permissions.Spawn,
			Tools: m.Permissions.Tools,
		},
		Constraints: domain.AgentConstraints{
			MaxSpawns: m.Constraints.MaxSpawns,
			MaxDepth:  m.Constraints.MaxDepth,
			Timeout:   time.Duration(m.Constraints.Timeout) * time.Second,
		},
		Prompt: strings.TrimSpace(body),
		Path:   rel,
	}
}

func applyDefaults(def *domain.AgentDefinition) {
	if def.Name == "" {
		base := filepath.Base(def.Path)
		def.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if len(def.Tools) == 0 {
		def.Tools = append([]string(nil), defaultTools...)
	}
	if def.Context.Root == "" && len(def.Context.Include) == 0 {
		def.Context.Include = append([]string(nil), defaultInclude...)
	}
	if len(def.Permissions.Read) == 0 {
		def.Permissions.Read = []string{"*"}
	}
	if def.Context.MaxTokens <= 0 {
		def.Context.MaxTokens = defaultMaxTokens
	}
	if def.Constraints.MaxDepth <= 0 {
		def.Constraints.MaxDepth = defaultMaxDepth
	}
	if def.Constraints.Timeout <= 0 {
		def.Constraints.Timeout = defaultTimeout
	}
}

// splitFrontmatter separates the leading YAML block from the body.
// A document without one is not an agent.
func splitFrontmatter(doc string) (meta, body string, err error) {
	if !strings.HasPrefix(doc, "---\n") && !strings.HasPrefix(doc, "---\r\n") {
		return "", "", domain.ErrNotAnAgent
	}
	rest := doc[strings.Index(doc, "\n")+1:]
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return "", "", domain.ErrNotAnAgent
	}
	meta = rest[:idx+1]
	body = rest[idx+4:]
	if nl := strings.Index(body, "\n"); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}
	return meta, body, nil
}

// Package assembler builds the bounded, deduplicated content bundle an
// execution sees. Two modes: a knowledge-root document whose wiki links
// are expanded depth-first, or a list of inclusion globs. Assembly is
// deterministic and performs no writes.
package assembler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/mlindgren/vaultagent/internal/domain"
	"github.com/mlindgren/vaultagent/internal/logging"
	"github.com/mlindgren/vaultagent/internal/tokens"
)

// TruncationMarker is appended to any entry cut to fit the budget.
const TruncationMarker = "\n... [truncated]"

// safetyMargin keeps a few tokens of headroom when truncating so estimate
// drift cannot push the bundle over budget.
const safetyMargin = 32

var linkPattern = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)

// Assembler loads vault content under a token budget.
type Assembler struct {
	vaultRoot string
	estimator tokens.Estimator
	logger    *logging.Logger
}

func New(vaultRoot string, est tokens.Estimator) *Assembler {
	if est == nil {
		est = tokens.Default()
	}
	return &Assembler{
		vaultRoot: vaultRoot,
		estimator: est,
		logger:    logging.New("assembler"),
	}
}

// Assemble builds a bundle for the policy. The bundle's cumulative token
// estimate never exceeds budget; oversized files are truncated, not
// overflowed.
func (a *Assembler) Assemble(policy domain.ContextPolicy, budget int) (*domain.ContextBundle, error) {
	if budget <= 0 {
		budget = policy.MaxTokens
	}
	if policy.MaxTokens > 0 && policy.MaxTokens < budget {
		budget = policy.MaxTokens
	}

	b := &builder{
		asm:      a,
		budget:   budget,
		maxFiles: policy.MaxFiles,
		seen:     make(map[string]bool),
		bundle:   &domain.ContextBundle{},
	}

	if policy.Root != "" {
		if err := b.expandRoot(policy.Root); err != nil {
			return nil, err
		}
		return b.bundle, nil
	}

	if err := b.expandGlobs(policy.Include, policy.Exclude); err != nil {
		return nil, err
	}
	return b.bundle, nil
}

type builder struct {
	asm      *Assembler
	budget   int
	maxFiles int
	seen     map[string]bool
	bundle   *domain.ContextBundle
}

func (b *builder) remaining() int {
	return b.budget - b.bundle.TotalTokens
}

func (b *builder) full() bool {
	if b.remaining() <= 0 {
		return true
	}
	return b.maxFiles > 0 && len(b.bundle.Entries) >= b.maxFiles
}

// expandRoot loads the knowledge root, then each bracketed cross-reference
// depth-first in encounter order. Dangling links are skipped silently;
// already-loaded targets are not revisited.
func (b *builder) expandRoot(root string) error {
	rel, content, err := b.asm.readVaultFile(root)
	if err != nil {
		return fmt.Errorf("knowledge root: %w", err)
	}
	b.add(rel, domain.RoleKnowledgeRoot, content)
	b.expandLinks(content)
	return nil
}

func (b *builder) expandLinks(content string) {
	for _, m := range linkPattern.FindAllStringSubmatch(content, -1) {
		if b.full() {
			return
		}
		target := strings.TrimSpace(m[1])
		if i := strings.Index(target, "|"); i >= 0 {
			target = strings.TrimSpace(target[:i])
		}

		rel, linked, err := b.asm.resolveLink(target)
		if err != nil {
			// A dangling link is not an assembler error.
			b.asm.logger.Debug("dangling_link", map[string]any{"target": target})
			continue
		}
		if b.seen[rel] {
			continue
		}
		b.add(rel, domain.RoleLinked, linked)
		b.expandLinks(linked)
	}
}

// expandGlobs loads files matching the include patterns minus the
// excludes, deduplicated, in sorted walk order per pattern.
func (b *builder) expandGlobs(include, exclude []string) error {
	fsys := os.DirFS(b.asm.vaultRoot)
	for _, pattern := range include {
		if b.full() {
			return nil
		}
		var matches []string
		err := doublestar.GlobWalk(fsys, pattern, func(path string, d fs.DirEntry) error {
			if !d.IsDir() {
				matches = append(matches, path)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("expand %q: %w", pattern, err)
		}
		sort.Strings(matches)

		for _, rel := range matches {
			if b.full() {
				return nil
			}
			if b.seen[rel] || excluded(rel, exclude) {
				continue
			}
			content, err := os.ReadFile(filepath.Join(b.asm.vaultRoot, rel))
			if err != nil {
				b.asm.logger.Warn("skip_unreadable", map[string]any{"path": rel}, err)
				continue
			}
			b.add(rel, domain.RoleIncluded, string(content))
		}
	}
	return nil
}

// add appends an entry, truncating it to the remaining budget if needed.
func (b *builder) add(rel string, role domain.ContextRole, content string) {
	remaining := b.remaining()
	if remaining <= 0 {
		return
	}

	est := b.asm.estimator.Tokens(content)
	truncated := false
	if est > remaining {
		content, est = truncate(content, remaining, b.asm.estimator)
		if est == 0 {
			return
		}
		truncated = true
	}

	b.seen[rel] = true
	b.bundle.Entries = append(b.bundle.Entries, domain.ContextEntry{
		Path:      rel,
		Role:      role,
		Content:   content,
		Tokens:    est,
		Truncated: truncated,
	})
	b.bundle.TotalTokens += est
}

// truncate cuts content so the estimate (marker included) fits within
// budget. Returns zero tokens when nothing useful fits.
func truncate(content string, budget int, est tokens.Estimator) (string, int) {
	usable := budget - safetyMargin
	if usable <= 0 {
		usable = budget
	}

	cut := usable * 4
	for cut > 0 {
		if cut > len(content) {
			cut = len(content)
		}
		candidate := content[:cut] + TruncationMarker
		if n := est.Tokens(candidate); n <= budget {
			return candidate, n
		}
		cut = cut / 2
	}
	return "", 0
}

func excluded(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// readVaultFile loads a vault-relative path, confining it to the root.
func (a *Assembler) readVaultFile(path string) (rel string, content string, err error) {
	rootAbs, err := filepath.Abs(a.vaultRoot)
	if err != nil {
		return "", "", err
	}
	abs := filepath.Join(rootAbs, path)
	rel, err = filepath.Rel(rootAbs, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", "", fmt.Errorf("%s: %w", path, domain.ErrPathEscapesRoot)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return "", "", err
	}
	return filepath.ToSlash(rel), string(raw), nil
}

// resolveLink maps a wiki-link target to a vault file: the exact relative
// path first, then the path with .md appended, then a unique basename
// search in sorted walk order.
func (a *Assembler) resolveLink(target string) (rel, content string, err error) {
	for _, candidate := range []string{target, target + ".md"} {
		if rel, content, err = a.readVaultFile(candidate); err == nil {
			return rel, content, nil
		}
	}

	want := filepath.Base(target)
	if !strings.HasSuffix(want, ".md") {
		want += ".md"
	}

	var found string
	fsys := os.DirFS(a.vaultRoot)
	fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if found == "" && filepath.Base(path) == want {
			found = path
		}
		return nil
	})
	if found == "" {
		return "", "", fmt.Errorf("unresolved link: %s", target)
	}
	return a.readVaultFile(found)
}

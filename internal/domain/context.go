package domain

// ContextRole tags why an entry was loaded into a bundle.
type ContextRole string

const (
	RoleKnowledgeRoot ContextRole = "root"
	RoleLinked        ContextRole = "linked"
	RoleIncluded      ContextRole = "included"
)

// ContextEntry is one loaded vault document.
type ContextEntry struct {
	Path      string      `json:"path"`
	Role      ContextRole `json:"role"`
	Content   string      `json:"content"`
	Tokens    int         `json:"tokens"`
	Truncated bool        `json:"truncated,omitempty"`
}

// ContextBundle is the ordered, deduplicated content assembled for one
// execution. TotalTokens never exceeds the budget it was built under.
type ContextBundle struct {
	Entries     []ContextEntry `json:"entries"`
	TotalTokens int            `json:"total_tokens"`
}

// Paths returns entry paths in assembly order.
func (b *ContextBundle) Paths() []string {
	paths := make([]string, len(b.Entries))
	for i, e := range b.Entries {
		paths[i] = e.Path
	}
	return paths
}

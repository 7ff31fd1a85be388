package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlindgren/vaultagent/internal/domain"
)

func cronAgent(path, expr string) *domain.AgentDefinition {
	return &domain.AgentDefinition{
		Name:     path,
		Path:     path,
		Triggers: domain.TriggerConfig{Cron: expr},
	}
}

func TestTickFiresDueSlot(t *testing.T) {
	q := newFakeQueue()
	w := New(t.TempDir(), q)

	base := time.Date(2026, 8, 30, 8, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return base }
	w.SetAgents([]*domain.AgentDefinition{cronAgent("agents/daily.md", "0 9 * * *")})

	assert.Zero(t, w.Tick(base), "not due yet")

	fired := w.Tick(time.Date(2026, 8, 30, 9, 0, 30, 0, time.UTC))
	assert.Equal(t, 1, fired)

	reqs := q.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "agents/daily.md", reqs[0].AgentPath)
	assert.Contains(t, reqs[0].Context.Message, "0 9 * * *")

	// The slot advanced; the same minute does not fire twice.
	assert.Zero(t, w.Tick(time.Date(2026, 8, 30, 9, 1, 0, 0, time.UTC)))

	// Next day's slot fires again.
	assert.Equal(t, 1, w.Tick(time.Date(2026, 8, 31, 9, 0, 5, 0, time.UTC)))
}

func TestTickSkipsActiveAgent(t *testing.T) {
	q := newFakeQueue()
	w := New(t.TempDir(), q)

	base := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return base }
	w.SetAgents([]*domain.AgentDefinition{cronAgent("agents/daily.md", "0 9 * * *")})

	q.mu.Lock()
	q.active["agents/daily.md"] = true
	q.mu.Unlock()

	fired := w.Tick(time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC))
	assert.Zero(t, fired, "a still-active previous run suppresses the slot")
	assert.Empty(t, q.all())

	// The slot advanced anyway: the agent does not queue behind itself.
	q.mu.Lock()
	q.active["agents/daily.md"] = false
	q.mu.Unlock()
	assert.Zero(t, w.Tick(time.Date(2026, 8, 30, 9, 5, 0, 0, time.UTC)))
}

func TestRebuildPreservesNextForUnchangedExpr(t *testing.T) {
	q := newFakeQueue()
	w := New(t.TempDir(), q)

	base := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return base }

	agent := cronAgent("agents/daily.md", "0 9 * * *")
	w.SetAgents([]*domain.AgentDefinition{agent})

	w.mu.Lock()
	first := w.crons[agent.Path].next
	w.mu.Unlock()

	// Reload with the same expression keeps the slot.
	w.now = func() time.Time { return base.Add(30 * time.Minute) }
	w.SetAgents([]*domain.AgentDefinition{cronAgent("agents/daily.md", "0 9 * * *")})

	w.mu.Lock()
	assert.Equal(t, first, w.crons[agent.Path].next)
	w.mu.Unlock()

	// A changed expression recomputes it.
	w.SetAgents([]*domain.AgentDefinition{cronAgent("agents/daily.md", "30 10 * * *")})
	w.mu.Lock()
	assert.NotEqual(t, first, w.crons[agent.Path].next)
	w.mu.Unlock()
}

func TestRebuildDropsBadExpressions(t *testing.T) {
	q := newFakeQueue()
	w := New(t.TempDir(), q)
	w.SetAgents([]*domain.AgentDefinition{
		cronAgent("agents/bad.md", "not a cron"),
		cronAgent("agents/good.md", "*/5 * * * *"),
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Len(t, w.crons, 1)
	assert.Contains(t, w.crons, "agents/good.md")
}

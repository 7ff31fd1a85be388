package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlindgren/vaultagent/internal/domain"
)

func TestSubmitThenDrainEnqueues(t *testing.T) {
	dataDir := t.TempDir()
	loader := newFakeLoader()
	loader.add("agents/a.md")

	o := New(Config{Concurrency: 1}, loader, newFakeExecutor())
	defer o.Shutdown()

	subID, err := Submit(dataDir, EnqueueRequest{
		AgentPath: "agents/a.md",
		Context:   domain.ExecutionContext{Message: "from the cli"},
		Priority:  domain.PriorityHigh,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, subID)

	inbox := NewInbox(dataDir, o)
	inbox.drain()

	state := o.QueueState()
	items := append(append(state.Pending, state.Running...), state.Completed...)
	require.Len(t, items, 1)
	assert.Equal(t, "agents/a.md", items[0].AgentPath)
	assert.Equal(t, "from the cli", items[0].Context.Message)
	assert.Equal(t, domain.PriorityHigh, items[0].Priority)

	entries, err := os.ReadDir(filepath.Join(dataDir, "inbox"))
	require.NoError(t, err)
	assert.Empty(t, entries, "drained submissions are removed")
}

func TestDrainRemovesMalformedSubmissions(t *testing.T) {
	dataDir := t.TempDir()
	dir := filepath.Join(dataDir, "inbox")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.json"), []byte("{broken"), 0o644))

	o := New(Config{Concurrency: 1}, newFakeLoader(), newFakeExecutor())
	defer o.Shutdown()

	NewInbox(dataDir, o).drain()

	state := o.QueueState()
	assert.Empty(t, state.Pending)
	assert.Empty(t, state.Completed)
	assert.NoFileExists(t, filepath.Join(dir, "junk.json"))
}

func TestDrainRemovesRejectedSubmissions(t *testing.T) {
	dataDir := t.TempDir()
	_, err := Submit(dataDir, EnqueueRequest{AgentPath: "agents/missing.md"})
	require.NoError(t, err)

	o := New(Config{Concurrency: 1}, newFakeLoader(), newFakeExecutor())
	defer o.Shutdown()

	inbox := NewInbox(dataDir, o)
	inbox.drain()

	entries, err := os.ReadDir(filepath.Join(dataDir, "inbox"))
	require.NoError(t, err)
	assert.Empty(t, entries, "a rejected submission is not retried forever")
}

func TestDrainMissingInboxDirectory(t *testing.T) {
	o := New(Config{Concurrency: 1}, newFakeLoader(), newFakeExecutor())
	defer o.Shutdown()

	assert.NotPanics(t, func() { NewInbox(t.TempDir(), o).drain() })
}

// A submission must land in the daemon's own queue, so its next snapshot
// write carries the item instead of erasing it.
func TestSubmittedItemSurvivesDaemonPersist(t *testing.T) {
	dataDir := t.TempDir()
	loader := newFakeLoader()
	loader.add("agents/a.md")
	loader.add("agents/b.md")

	daemon := New(Config{
		Concurrency: 1,
		Persist:     true,
		PersistPath: filepath.Join(dataDir, "queue.json"),
	}, loader, newFakeExecutor())
	defer daemon.Shutdown()

	_, err := Submit(dataDir, EnqueueRequest{AgentPath: "agents/a.md"})
	require.NoError(t, err)
	NewInbox(dataDir, daemon).drain()

	submitted := daemon.QueueState()
	all := append(append(submitted.Pending, submitted.Running...), submitted.Completed...)
	require.Len(t, all, 1)
	id := all[0].ID

	// Further daemon activity rewrites the snapshot; the submitted item
	// must still be in it.
	other, err := daemon.Enqueue(EnqueueRequest{AgentPath: "agents/b.md"})
	require.NoError(t, err)
	waitTerminal(t, daemon, id)
	waitTerminal(t, daemon, other)

	data, err := os.ReadFile(filepath.Join(dataDir, "queue.json"))
	require.NoError(t, err)
	var snap queueSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))

	ids := make([]string, 0, len(snap.Items))
	for _, item := range snap.Items {
		ids = append(ids, item.ID)
	}
	assert.Contains(t, ids, id)
	assert.Contains(t, ids, other)
}

func TestSubmitRoundTripsSchedule(t *testing.T) {
	dataDir := t.TempDir()
	due := time.Now().Add(time.Hour).Truncate(time.Second)

	subID, err := Submit(dataDir, EnqueueRequest{
		AgentPath:    "agents/a.md",
		ScheduledFor: due,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dataDir, "inbox", subID+".json"))
	require.NoError(t, err)
	var sub Submission
	require.NoError(t, json.Unmarshal(data, &sub))
	assert.True(t, sub.ScheduledFor.Equal(due))
	assert.False(t, sub.SubmittedAt.IsZero())
}

package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlindgren/vaultagent/internal/domain"
)

func TestFileBridgeDecisionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := NewBroker()
	bridge := NewFileBridge(dir, b)

	id, out := requestAsync(t, b, "exec-1")

	require.NoError(t, SubmitDecision(dir, id, true, "tester"))
	bridge.applyDecisions()

	assert.True(t, <-out, "decision file grants the suspended request")

	req, ok := b.Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.RequestGranted, req.Status)
}

func TestFileBridgePendingMirror(t *testing.T) {
	dir := t.TempDir()
	b := NewBroker()
	bridge := NewFileBridge(dir, b)

	// Empty mirror before any request.
	require.NoError(t, bridge.writePending())
	reqs, err := ReadPending(dir)
	require.NoError(t, err)
	assert.Empty(t, reqs)

	id, out := requestAsync(t, b, "exec-1")

	require.NoError(t, bridge.writePending())
	reqs, err = ReadPending(dir)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, id, reqs[0].ID)
	assert.Equal(t, domain.ActionWrite, reqs[0].Action)

	b.Deny(id)
	<-out
}

func TestReadPendingMissingFile(t *testing.T) {
	reqs, err := ReadPending(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, reqs)
}

func TestFileBridgeIgnoresBadDecisionFiles(t *testing.T) {
	dir := t.TempDir()
	b := NewBroker()
	bridge := NewFileBridge(dir, b)

	require.NoError(t, SubmitDecision(dir, "unknown-id", true, "tester"))
	bridge.applyDecisions() // unknown id is applied=false, file removed

	id, out := requestAsync(t, b, "exec-1")
	require.NoError(t, SubmitDecision(dir, id, false, "tester"))
	bridge.applyDecisions()
	assert.False(t, <-out)
}

package permission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlindgren/vaultagent/internal/domain"
)

// requestAsync starts a Request in a goroutine and returns the id once it
// is visible as pending, plus a channel for the decision outcome.
func requestAsync(t *testing.T, b *Broker, execID string) (string, <-chan bool) {
	t.Helper()
	before := len(b.Pending())

	out := make(chan bool, 1)
	go func() {
		out <- b.Request(context.Background(), execID, domain.ActionWrite, "reports/out.md")
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pending := b.Pending(); len(pending) > before {
			return pending[len(pending)-1].ID, out
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("request never became pending")
	return "", nil
}

func TestBrokerGrantResumesCaller(t *testing.T) {
	b := NewBroker()
	id, out := requestAsync(t, b, "exec-1")

	assert.True(t, b.Grant(id))
	assert.True(t, <-out)

	req, ok := b.Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.RequestGranted, req.Status)
	assert.Equal(t, "user", req.ResolvedBy)
	assert.NotNil(t, req.ResolvedAt)
}

func TestBrokerDenyResumesCaller(t *testing.T) {
	b := NewBroker()
	id, out := requestAsync(t, b, "exec-1")

	assert.True(t, b.Deny(id))
	assert.False(t, <-out)
}

func TestBrokerResolveUnknownOrResolved(t *testing.T) {
	b := NewBroker()

	assert.False(t, b.Grant("no-such-id"))
	assert.False(t, b.Deny("no-such-id"))

	id, out := requestAsync(t, b, "exec-1")
	require.True(t, b.Grant(id))
	<-out

	assert.False(t, b.Grant(id), "second resolution of the same id returns false")
	assert.False(t, b.Deny(id))
}

func TestBrokerContextCancellationDenies(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())

	out := make(chan bool, 1)
	go func() {
		out <- b.Request(ctx, "exec-1", domain.ActionSpawn, "agents/child.md")
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(b.Pending()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	assert.False(t, <-out)
	assert.Empty(t, b.Pending())
}

func TestBrokerCleanupStale(t *testing.T) {
	b := NewBroker()
	id, out := requestAsync(t, b, "exec-1")

	// Nothing is old enough yet.
	assert.Zero(t, b.CleanupStale(time.Hour))

	n := b.CleanupStale(0)
	assert.Equal(t, 1, n)
	assert.False(t, <-out, "expiry resolves as denied")

	req, ok := b.Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.RequestExpired, req.Status)
	assert.Equal(t, "sweep", req.ResolvedBy)

	// A second sweep prunes the resolved record.
	b.CleanupStale(0)
	_, ok = b.Get(id)
	assert.False(t, ok)
}

func TestBrokerPendingOrder(t *testing.T) {
	b := NewBroker()

	id1, out1 := requestAsync(t, b, "exec-1")
	time.Sleep(10 * time.Millisecond)
	id2, out2 := requestAsync(t, b, "exec-2")

	pending := b.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, id1, pending[0].ID, "oldest first")
	assert.Equal(t, id2, pending[1].ID)

	b.Grant(id1)
	b.Grant(id2)
	<-out1
	<-out2
}

package permission

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mlindgren/vaultagent/internal/domain"
	"github.com/mlindgren/vaultagent/internal/logging"
)

// DefaultMaxAge is how long a request may stay pending before the sweep
// expires it. Expiry resolves as denied.
const DefaultMaxAge = 5 * time.Minute

type pendingRequest struct {
	req      *domain.PermissionRequest
	decision chan bool
}

// Broker suspends executions on interactive permission requests and
// resumes them on grant, deny or expiry. Races between an approval action
// and the sweep are expected; resolving an unknown or already-resolved id
// returns false instead of panicking.
type Broker struct {
	mu       sync.Mutex
	pending  map[string]*pendingRequest
	resolved map[string]*domain.PermissionRequest
	logger   *logging.Logger
}

func NewBroker() *Broker {
	return &Broker{
		pending:  make(map[string]*pendingRequest),
		resolved: make(map[string]*domain.PermissionRequest),
		logger:   logging.New("broker"),
	}
}

// Request creates a pending permission request and suspends the caller
// until it is granted, denied or the context ends. Context cancellation
// resolves as denied.
func (b *Broker) Request(ctx context.Context, executionID string, action domain.Action, target string) bool {
	req := &domain.PermissionRequest{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		Action:      action,
		Target:      target,
		Status:      domain.RequestPending,
		CreatedAt:   time.Now(),
	}
	p := &pendingRequest{req: req, decision: make(chan bool, 1)}

	b.mu.Lock()
	b.pending[req.ID] = p
	b.mu.Unlock()

	b.logger.Info("request_created", map[string]any{
		"id": req.ID, "execution": executionID,
		"action": string(action), "target": target,
	})

	select {
	case granted := <-p.decision:
		return granted
	case <-ctx.Done():
		b.resolve(req.ID, domain.RequestDenied, "context", false)
		return false
	}
}

// Grant approves a pending request. Returns false if the id is unknown or
// already resolved.
func (b *Broker) Grant(id string) bool {
	return b.resolve(id, domain.RequestGranted, "user", true)
}

// Deny rejects a pending request. Returns false if the id is unknown or
// already resolved.
func (b *Broker) Deny(id string) bool {
	return b.resolve(id, domain.RequestDenied, "user", false)
}

func (b *Broker) resolve(id string, status domain.RequestStatus, by string, granted bool) bool {
	b.mu.Lock()
	p, ok := b.pending[id]
	if !ok {
		b.mu.Unlock()
		return false
	}
	delete(b.pending, id)

	now := time.Now()
	p.req.Status = status
	p.req.ResolvedAt = &now
	p.req.ResolvedBy = by
	b.resolved[id] = p.req
	b.mu.Unlock()

	p.decision <- granted
	b.logger.Info("request_resolved", map[string]any{"id": id, "status": string(status)})
	return true
}

// Pending returns a snapshot of unresolved requests, oldest first.
func (b *Broker) Pending() []domain.PermissionRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.PermissionRequest, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, *p.req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Get returns a request by id, pending or resolved.
func (b *Broker) Get(id string) (domain.PermissionRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pending[id]; ok {
		return *p.req, true
	}
	if r, ok := b.resolved[id]; ok {
		return *r, true
	}
	return domain.PermissionRequest{}, false
}

// CleanupStale expires pending requests older than maxAge (expired resolves
// as denied) and prunes resolved records of the same age. Returns the
// number of requests expired.
func (b *Broker) CleanupStale(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	b.mu.Lock()
	var stale []string
	for id, p := range b.pending {
		if p.req.CreatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	for id, r := range b.resolved {
		if r.ResolvedAt != nil && r.ResolvedAt.Before(cutoff) {
			delete(b.resolved, id)
		}
	}
	b.mu.Unlock()

	for _, id := range stale {
		b.resolve(id, domain.RequestExpired, "sweep", false)
	}
	return len(stale)
}

// Sweep runs CleanupStale on each tick until the context ends.
func (b *Broker) Sweep(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.CleanupStale(maxAge); n > 0 {
				b.logger.Info("sweep_expired", map[string]any{"count": n})
			}
		}
	}
}

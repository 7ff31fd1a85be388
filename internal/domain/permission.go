package domain

import "time"

// RequestStatus is the interactive permission request lifecycle state.
type RequestStatus string

const (
	RequestPending RequestStatus = "pending"
	RequestGranted RequestStatus = "granted"
	RequestDenied  RequestStatus = "denied"
	RequestExpired RequestStatus = "expired"
)

// PermissionRequest is a suspended tool call awaiting interactive approval.
// Created by the broker when an execution needs a decision; resolved by
// grant/deny or the staleness sweep.
type PermissionRequest struct {
	ID          string        `json:"id"`
	ExecutionID string        `json:"execution_id"`
	Action      Action        `json:"action"`
	Target      string        `json:"target"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy  string        `json:"resolved_by,omitempty"`
}

// Resolved reports whether the request left the pending state.
func (r *PermissionRequest) Resolved() bool {
	return r.Status != RequestPending
}

package sla

import (
	"context"
	"errors"
	"fmt"

	"github.com/uptimekit/incident-engine/internal/model"
	"github.com/uptimekit/incident-engine/internal/store"
)

// PolicyStore is the subset of the catalog the resolver needs
type PolicyStore interface {
	MonitorPolicy(ctx context.Context, monitorID string) (*model.CommunicationSlaPolicy, error)
	DefaultPolicy(ctx context.Context, projectID string) (*model.CommunicationSlaPolicy, error)
}

// Resolver determines the communication SLA policy applicable to a
// (project, monitor) pair: the monitor's own override when present and not
// soft-deleted, otherwise the project default, otherwise ErrPolicyNotFound.
// The resolver holds no mutable state.
type Resolver struct {
	policies PolicyStore
}

// NewResolver creates a new policy resolver
func NewResolver(policies PolicyStore) *Resolver {
	return &Resolver{policies: policies}
}

// Resolve returns the applicable policy for the pair
func (r *Resolver) Resolve(ctx context.Context, projectID, monitorID string) (*model.CommunicationSlaPolicy, error) {
	policy, err := r.policies.MonitorPolicy(ctx, monitorID)
	switch {
	case err == nil && !policy.Deleted:
		return policy, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to look up monitor policy: %w", err)
	}

	// A soft-deleted override is treated as absent.
	policy, err = r.policies.DefaultPolicy(ctx, projectID)
	switch {
	case err == nil && !policy.Deleted:
		return policy, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to look up default policy: %w", err)
	}

	return nil, ErrPolicyNotFound
}

// Package providers defines the ResourceProvider contract that per-service
// adapters implement, and a registry keyed by resource type.
package providers

import (
	"context"
	"fmt"
	"sort"

	"github.com/yairfalse/raivaus/types"
)

// ResourceProvider is the per-resource-type adapter boundary. The engine
// only ever talks to cloud APIs through this interface; adapters translate
// raw API errors into the Outcome taxonomy exactly once.
type ResourceProvider interface {
	// Type returns the resource type this adapter handles, e.g.
	// "security_group".
	Type() string

	// List discovers all resources of this type in one (account, region)
	// task.
	List(ctx context.Context, account, region string) ([]types.ResourceRecord, error)

	// Describe fetches current attributes for one resource. Used by the
	// classifier for structural signals; must not mutate state.
	Describe(ctx context.Context, id string) (map[string]any, error)

	// Delete attempts to remove the resource.
	Delete(ctx context.Context, id string) types.Outcome

	// ClearReference removes one outbound reference (e.g. a security
	// group rule naming a peer group).
	ClearReference(ctx context.Context, id, reference string) types.ClearResult
}

// ReferenceClassifier is an optional upgrade for providers whose resources
// carry non-removable default references (e.g. a security group's implicit
// allow-all egress). The breaker skips permanent references instead of
// attempting them.
type ReferenceClassifier interface {
	IsPermanentReference(reference string) bool
}

// Registry holds the providers participating in one run.
type Registry struct {
	byType map[string]ResourceProvider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]ResourceProvider)}
}

// Register adds a provider. Registering the same type twice replaces the
// earlier adapter.
func (r *Registry) Register(p ResourceProvider) {
	r.byType[p.Type()] = p
}

// Get returns the provider for a resource type.
func (r *Registry) Get(resourceType string) (ResourceProvider, error) {
	p, ok := r.byType[resourceType]
	if !ok {
		return nil, fmt.Errorf("no provider registered for resource type %s", resourceType)
	}
	return p, nil
}

// Types returns the registered resource types, sorted for deterministic
// iteration.
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.byType))
	for name := range r.byType {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

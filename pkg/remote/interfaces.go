// Package remote defines the collaborator contracts the differential core
// consumes (export, apply, and schema retrieval against the policy API) and
// a thin HTTP client implementing them. The target endpoint and credentials
// are bound at construction; callers hold interfaces, not the client.
package remote

import (
	"context"

	"github.com/policydelta/policydelta/pkg/node"
)

// Exporter retrieves the full policy configuration tree for a domain scope,
// assembled (paginated if needed) by the remote side.
type Exporter interface {
	GetConfiguration(ctx context.Context, domainID string) (*node.Node, error)
}

// ApplyResult reports the remote outcome of a delta submission. A remote
// rejection is data, not a transport error.
type ApplyResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Applier submits a delta tree to the policy API. Method defaults to PATCH:
// objects omitted from the payload are left untouched, not deleted.
type Applier interface {
	ApplyDelta(ctx context.Context, delta *node.Node, method string) (*ApplyResult, error)
}

// SchemaSource returns the available OpenAPI documents keyed by source name.
// It is best-effort: an empty map is a valid answer and never an error.
type SchemaSource interface {
	GetSchemas(ctx context.Context) (map[string]*node.Node, error)
}

// CapabilityInfo is the result of explicit capability discovery. Found
// reports whether the endpoint supports the policy API at all; probing by
// catching request failures is not part of the contract.
type CapabilityInfo struct {
	Found   bool   `json:"found"`
	Version string `json:"version,omitempty"`
}

// CapabilityDiscoverer resolves what the target endpoint supports before any
// mutating call is attempted.
type CapabilityDiscoverer interface {
	Capabilities(ctx context.Context) (CapabilityInfo, error)
}

// Package taxonomy models the two-level directory tree that published
// documents land in. A snapshot is fetched fresh at the start of every run
// so taxonomy edits take effect without an invalidation mechanism.
package taxonomy

import (
	"context"
	"fmt"
)

// Node is one directory in the taxonomy.
type Node struct {
	ID       string
	Name     string
	ParentID string
	Depth    int
}

// IsLeaf reports whether the node may hold a published document. Only
// depth-2 nodes qualify.
func (n Node) IsLeaf() bool { return n.Depth == 2 }

// Provider lists the directory tree of a knowledge space.
type Provider interface {
	ListNodes(ctx context.Context, spaceID string) ([]Node, error)
}

// Snapshot is a run-scoped view of the tree, split into classification
// candidates and the fallback bucket.
type Snapshot struct {
	// Candidates are the depth-2 leaves eligible as classification
	// targets. The fallback bucket is excluded by construction.
	Candidates []Node
	// Fallback is the designated depth-1 bucket used when classification
	// does not match.
	Fallback Node
}

// ErrNoFallback is returned when the configured fallback bucket is absent
// from the tree. The run fails loudly rather than inventing a bucket.
var ErrNoFallback = fmt.Errorf("fallback bucket not found in taxonomy")

// Load fetches the tree and splits it. fallbackName is matched exactly
// against depth-1 node names.
func Load(ctx context.Context, p Provider, spaceID, fallbackName string) (Snapshot, error) {
	nodes, err := p.ListNodes(ctx, spaceID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list taxonomy nodes: %w", err)
	}
	return Split(nodes, fallbackName)
}

// Split separates candidates from the fallback bucket. The bucket itself is
// never a candidate, even when it has no children.
func Split(nodes []Node, fallbackName string) (Snapshot, error) {
	var snap Snapshot
	found := false
	for _, n := range nodes {
		if n.Depth == 1 && n.Name == fallbackName {
			snap.Fallback = n
			found = true
			continue
		}
		if n.IsLeaf() {
			snap.Candidates = append(snap.Candidates, n)
		}
	}
	if !found {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrNoFallback, fallbackName)
	}
	return snap, nil
}

// Package graph defines the property-graph store interface the rest of the
// system is built on, along with the node, edge and traversal primitives it
// exposes.
//
// The interface is deliberately small: typed nodes addressed by (label, key),
// typed directed edges, property maps, and a reachability primitive for
// transitive closures. Implementations provide snapshot-isolated read
// transactions and serializable write transactions; see the memory and
// badger subpackages.
package graph

import "context"

// Direction selects which way edges are followed from a node.
type Direction int

const (
	// Out follows edges whose From side is the node.
	Out Direction = iota
	// In follows edges whose To side is the node.
	In
)

// NodeRef addresses a node. Keys are unique per label, not globally.
type NodeRef struct {
	Label string
	Key   string
}

// Node is a labeled key with a property map. Property values are string,
// bool, int64, uint64, float64 or time.Time; implementations must round-trip
// these types exactly.
type Node struct {
	Label string
	Key   string
	Props map[string]any
}

// Ref returns the node's address.
func (n *Node) Ref() NodeRef {
	return NodeRef{Label: n.Label, Key: n.Key}
}

// Edge is a typed directed edge. Edge identity is (Type, From, To): creating
// an edge that already exists replaces its properties.
type Edge struct {
	Type  string
	From  NodeRef
	To    NodeRef
	Props map[string]any
}

// Predicate filters nodes by their property map during FindNodes scans.
type Predicate func(props map[string]any) bool

// Tx is a transaction handle. Reads within a transaction observe a
// consistent snapshot; writes are atomic with the reads that guarded them,
// so read-then-write invariants (uniqueness, cycle checks) hold without
// additional locking.
type Tx interface {
	// GetNode returns the node at ref, or false if it does not exist.
	GetNode(ref NodeRef) (*Node, bool, error)

	// FindNodes returns every node with the given label whose properties
	// satisfy pred. A nil pred matches all nodes with the label. Order is
	// unspecified.
	FindNodes(label string, pred Predicate) ([]*Node, error)

	// Edges returns the edges of the given type touching ref on the side
	// selected by dir.
	Edges(ref NodeRef, edgeType string, dir Direction) ([]*Edge, error)

	// Neighbors returns the nodes one hop from ref along edges of the given
	// type and direction, restricted to the given label. An empty label
	// matches any neighbor.
	Neighbors(ref NodeRef, edgeType string, dir Direction, label string) ([]*Node, error)

	// Reachable computes the transitive closure from ref along edges of the
	// given type and direction. The start node is not included. The result
	// maps node keys to true; all reachable nodes share the start node's
	// label for the edge types used here, so keys are unambiguous.
	Reachable(ref NodeRef, edgeType string, dir Direction) (map[string]bool, error)

	// CreateNode inserts a node. Fails with a domain AlreadyExists error if
	// a node with the same label and key is present.
	CreateNode(node *Node) error

	// SetProps merges props into the node at ref. A nil value removes the
	// property. Fails with NotFound if the node does not exist.
	SetProps(ref NodeRef, props map[string]any) error

	// Increment atomically adds delta to an int64 property, treating a
	// missing property as zero, and returns the new value.
	Increment(ref NodeRef, prop string, delta int64) (int64, error)

	// DeleteNode removes the node and every edge touching it. Deleting a
	// missing node is not an error.
	DeleteNode(ref NodeRef) error

	// CreateEdge inserts an edge, replacing the properties of an existing
	// edge with the same type and endpoints. Both endpoints must exist.
	CreateEdge(edge *Edge) error

	// DeleteEdge removes the edge. Deleting a missing edge is not an error.
	DeleteEdge(edgeType string, from, to NodeRef) error

	// DeleteAll removes every node and edge in the store.
	DeleteAll() error
}

// Store is a transactional property-graph store.
type Store interface {
	// View runs fn in a read-only transaction. Writes through the Tx are
	// implementation-defined but must not be relied on.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Update runs fn in a read-write transaction. If fn returns an error the
	// transaction is discarded and the error returned unchanged; otherwise
	// the transaction commits before Update returns.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// Close releases the store's resources. No transactions may be started
	// after Close.
	Close() error
}

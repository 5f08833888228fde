// Package hierarchy maintains the collection containment DAG.
//
// Collections form a directed acyclic graph over child_of edges: a child
// points at its parent, and a collection may have any number of parents.
// The acyclicity invariant is enforced here, inside the same transaction
// that writes the edge, so no interleaving of concurrent links can produce
// a cycle.
package hierarchy

import (
	"github.com/castellan-io/castellan/pkg/domain"
	"github.com/castellan-io/castellan/pkg/graph"
)

func collectionRef(key string) graph.NodeRef {
	return graph.NodeRef{Label: domain.LabelCollection, Key: key}
}

// Link makes child a child of parent. Both collections must exist, a
// collection cannot be its own parent, and the link is rejected with
// CycleDetected if parent is already a descendant of child (directly or
// transitively). Linking an existing child again is a no-op.
func Link(tx graph.Tx, parentKey, childKey string) error {
	if parentKey == childKey {
		return domain.CycleDetected(parentKey, childKey)
	}
	for _, key := range []string{parentKey, childKey} {
		if _, ok, err := tx.GetNode(collectionRef(key)); err != nil {
			return err
		} else if !ok {
			return domain.NotFound("collection", key)
		}
	}

	// The edge child -> parent closes a cycle exactly when child is already
	// an ancestor of parent.
	ancestors, err := tx.Reachable(collectionRef(parentKey), domain.EdgeChildOf, graph.Out)
	if err != nil {
		return err
	}
	if ancestors[childKey] {
		return domain.CycleDetected(parentKey, childKey)
	}

	return tx.CreateEdge(&graph.Edge{
		Type: domain.EdgeChildOf,
		From: collectionRef(childKey),
		To:   collectionRef(parentKey),
	})
}

// Unlink removes the parent-child relationship. Removing a link that does
// not exist is a no-op.
func Unlink(tx graph.Tx, parentKey, childKey string) error {
	return tx.DeleteEdge(domain.EdgeChildOf, collectionRef(childKey), collectionRef(parentKey))
}

// AncestorKeys returns the keys of every ancestor of the given collections,
// including the start keys themselves. The self-inclusive closure is what
// access resolution needs: a grant on a collection covers the collection
// itself as well as its descendants.
func AncestorKeys(tx graph.Tx, startKeys ...string) (map[string]bool, error) {
	return closure(tx, graph.Out, startKeys)
}

// DescendantKeys returns the keys of every descendant of the given
// collections, including the start keys themselves.
func DescendantKeys(tx graph.Tx, startKeys ...string) (map[string]bool, error) {
	return closure(tx, graph.In, startKeys)
}

func closure(tx graph.Tx, dir graph.Direction, startKeys []string) (map[string]bool, error) {
	keys := make(map[string]bool, len(startKeys))
	for _, start := range startKeys {
		keys[start] = true
		reached, err := tx.Reachable(collectionRef(start), domain.EdgeChildOf, dir)
		if err != nil {
			return nil, err
		}
		for key := range reached {
			keys[key] = true
		}
	}
	return keys, nil
}

// Children returns the direct child collections of the given collection.
func Children(tx graph.Tx, parentKey string) ([]*graph.Node, error) {
	return tx.Neighbors(collectionRef(parentKey), domain.EdgeChildOf, graph.In, domain.LabelCollection)
}

// Parents returns the direct parent collections of the given collection.
func Parents(tx graph.Tx, childKey string) ([]*graph.Node, error) {
	return tx.Neighbors(collectionRef(childKey), domain.EdgeChildOf, graph.Out, domain.LabelCollection)
}

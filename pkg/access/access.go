// Package access resolves whether users can reach files and collections.
//
// Authorization is expressed entirely in the graph: a grant is an edge of an
// access-level type from a group to a collection, and grants flow downward
// through the containment DAG. A user can access a collection at a given
// level when one of their groups holds a grant of that level on the
// collection or on any of its ancestors. A user can access a file when the
// same holds for any collection containing the file, the file's hidden
// identity collection included. Direct per-user grants are just grants on
// the user's identity group, so one traversal covers both shapes.
package access

import (
	"github.com/castellan-io/castellan/pkg/domain"
	"github.com/castellan-io/castellan/pkg/graph"
	"github.com/castellan-io/castellan/pkg/hierarchy"
)

// CanAccessCollection reports whether the user can reach the collection at
// one of the given access levels.
func CanAccessCollection(tx graph.Tx, userKey, collectionKey string, levels []string) (bool, error) {
	allowed, err := CanAccessCollections(tx, userKey, []string{collectionKey}, levels)
	if err != nil {
		return false, err
	}
	return len(allowed) == 1, nil
}

// CanAccessCollections filters collectionKeys down to those the user can
// reach at one of the given access levels, preserving input order. Unknown
// collection keys are simply not returned.
func CanAccessCollections(tx graph.Tx, userKey string, collectionKeys, levels []string) ([]string, error) {
	if err := domain.ValidateAccessLevels(levels); err != nil {
		return nil, err
	}
	granted, err := grantedCollections(tx, userKey, levels)
	if err != nil {
		return nil, err
	}
	if len(granted) == 0 {
		return nil, nil
	}

	var allowed []string
	for _, key := range collectionKeys {
		ok, err := reachesGrant(tx, []string{key}, granted)
		if err != nil {
			return nil, err
		}
		if ok {
			allowed = append(allowed, key)
		}
	}
	return allowed, nil
}

// CanAccessFile reports whether the user can reach the file at one of the
// given access levels.
func CanAccessFile(tx graph.Tx, userKey, fileKey string, levels []string) (bool, error) {
	allowed, err := CanAccessFiles(tx, userKey, []string{fileKey}, levels)
	if err != nil {
		return false, err
	}
	return len(allowed) == 1, nil
}

// CanAccessFiles filters fileKeys down to those the user can reach at one
// of the given access levels, preserving input order.
func CanAccessFiles(tx graph.Tx, userKey string, fileKeys, levels []string) ([]string, error) {
	if err := domain.ValidateAccessLevels(levels); err != nil {
		return nil, err
	}
	granted, err := grantedCollections(tx, userKey, levels)
	if err != nil {
		return nil, err
	}
	if len(granted) == 0 {
		return nil, nil
	}

	var allowed []string
	for _, fileKey := range fileKeys {
		containers, err := tx.Neighbors(
			graph.NodeRef{Label: domain.LabelFile, Key: fileKey},
			domain.EdgeContains, graph.In, domain.LabelCollection,
		)
		if err != nil {
			return nil, err
		}
		containerKeys := make([]string, 0, len(containers))
		for _, c := range containers {
			containerKeys = append(containerKeys, c.Key)
		}
		ok, err := reachesGrant(tx, containerKeys, granted)
		if err != nil {
			return nil, err
		}
		if ok {
			allowed = append(allowed, fileKey)
		}
	}
	return allowed, nil
}

// GroupKeys returns the keys of every group the user belongs to, the hidden
// identity group included.
func GroupKeys(tx graph.Tx, userKey string) ([]string, error) {
	groups, err := tx.Neighbors(
		graph.NodeRef{Label: domain.LabelUser, Key: userKey},
		domain.EdgeBelongsTo, graph.Out, domain.LabelGroup,
	)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(groups))
	for _, g := range groups {
		keys = append(keys, g.Key)
	}
	return keys, nil
}

// grantedCollections returns the keys of every collection on which one of
// the user's groups holds a grant at one of the given levels.
func grantedCollections(tx graph.Tx, userKey string, levels []string) (map[string]bool, error) {
	groupKeys, err := GroupKeys(tx, userKey)
	if err != nil {
		return nil, err
	}

	granted := make(map[string]bool)
	for _, groupKey := range groupKeys {
		ref := graph.NodeRef{Label: domain.LabelGroup, Key: groupKey}
		for _, level := range levels {
			targets, err := tx.Neighbors(ref, level, graph.Out, domain.LabelCollection)
			if err != nil {
				return nil, err
			}
			for _, c := range targets {
				granted[c.Key] = true
			}
		}
	}
	return granted, nil
}

// reachesGrant reports whether any ancestor of the start collections (the
// start collections themselves included) carries a grant.
func reachesGrant(tx graph.Tx, startKeys []string, granted map[string]bool) (bool, error) {
	if len(startKeys) == 0 {
		return false, nil
	}
	ancestors, err := hierarchy.AncestorKeys(tx, startKeys...)
	if err != nil {
		return false, err
	}
	for key := range ancestors {
		if granted[key] {
			return true, nil
		}
	}
	return false, nil
}

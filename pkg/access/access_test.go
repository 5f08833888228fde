package access_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan-io/castellan/pkg/access"
	"github.com/castellan-io/castellan/pkg/domain"
	"github.com/castellan-io/castellan/pkg/graph"
	"github.com/castellan-io/castellan/pkg/graph/memory"
	"github.com/castellan-io/castellan/pkg/hierarchy"
)

// fixture builds the graph by hand:
//
//	root <- docs <- reports        (collection hierarchy)
//	reports CONTAINS budget        (a file)
//	identity:budget CONTAINS budget
//	alice BELONGS_TO staff
//	bob   BELONGS_TO identity:bob
func fixture(t *testing.T) graph.Store {
	t.Helper()
	store := memory.NewStore()
	err := store.Update(context.Background(), func(tx graph.Tx) error {
		nodes := []*graph.Node{
			{Label: domain.LabelUser, Key: "alice"},
			{Label: domain.LabelUser, Key: "bob"},
			{Label: domain.LabelGroup, Key: "staff"},
			{Label: domain.LabelGroup, Key: "identity:bob"},
			{Label: domain.LabelCollection, Key: "root"},
			{Label: domain.LabelCollection, Key: "docs"},
			{Label: domain.LabelCollection, Key: "reports"},
			{Label: domain.LabelCollection, Key: "identity:budget"},
			{Label: domain.LabelFile, Key: "budget"},
		}
		for _, n := range nodes {
			if err := tx.CreateNode(n); err != nil {
				return err
			}
		}
		if err := hierarchy.Link(tx, "root", "docs"); err != nil {
			return err
		}
		if err := hierarchy.Link(tx, "docs", "reports"); err != nil {
			return err
		}
		edges := []*graph.Edge{
			{Type: domain.EdgeBelongsTo, From: ref(domain.LabelUser, "alice"), To: ref(domain.LabelGroup, "staff")},
			{Type: domain.EdgeBelongsTo, From: ref(domain.LabelUser, "bob"), To: ref(domain.LabelGroup, "identity:bob")},
			{Type: domain.EdgeContains, From: ref(domain.LabelCollection, "reports"), To: ref(domain.LabelFile, "budget")},
			{Type: domain.EdgeContains, From: ref(domain.LabelCollection, "identity:budget"), To: ref(domain.LabelFile, "budget")},
		}
		for _, e := range edges {
			if err := tx.CreateEdge(e); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return store
}

func ref(label, key string) graph.NodeRef {
	return graph.NodeRef{Label: label, Key: key}
}

func grant(t *testing.T, store graph.Store, groupKey, level, collectionKey string) {
	t.Helper()
	err := store.Update(context.Background(), func(tx graph.Tx) error {
		return tx.CreateEdge(&graph.Edge{
			Type: level,
			From: ref(domain.LabelGroup, groupKey),
			To:   ref(domain.LabelCollection, collectionKey),
		})
	})
	require.NoError(t, err)
}

func canAccessFile(t *testing.T, store graph.Store, userKey, fileKey string, levels []string) bool {
	t.Helper()
	var ok bool
	err := store.View(context.Background(), func(tx graph.Tx) error {
		var err error
		ok, err = access.CanAccessFile(tx, userKey, fileKey, levels)
		return err
	})
	require.NoError(t, err)
	return ok
}

func canAccessCollection(t *testing.T, store graph.Store, userKey, collectionKey string, levels []string) bool {
	t.Helper()
	var ok bool
	err := store.View(context.Background(), func(tx graph.Tx) error {
		var err error
		ok, err = access.CanAccessCollection(tx, userKey, collectionKey, levels)
		return err
	})
	require.NoError(t, err)
	return ok
}

func TestNoGrantsNoAccess(t *testing.T) {
	store := fixture(t)
	assert.False(t, canAccessFile(t, store, "alice", "budget", domain.ReadOnlyOrHigher))
	assert.False(t, canAccessCollection(t, store, "alice", "reports", domain.ReadOnlyOrHigher))
}

func TestGrantOnAncestorFlowsDown(t *testing.T) {
	store := fixture(t)
	grant(t, store, "staff", domain.AccessLevelReadOnly, "root")

	assert.True(t, canAccessCollection(t, store, "alice", "root", domain.ReadOnlyOrHigher),
		"grant covers the collection itself")
	assert.True(t, canAccessCollection(t, store, "alice", "reports", domain.ReadOnlyOrHigher),
		"grant flows to descendants")
	assert.True(t, canAccessFile(t, store, "alice", "budget", domain.ReadOnlyOrHigher),
		"grant flows to files through containment")
	assert.False(t, canAccessFile(t, store, "bob", "budget", domain.ReadOnlyOrHigher),
		"grants apply through group membership only")
}

func TestLevelsAreDisjointCapabilities(t *testing.T) {
	store := fixture(t)
	grant(t, store, "staff", domain.AccessLevelUploadOnly, "reports")

	assert.True(t, canAccessFile(t, store, "alice", "budget", domain.UploadOnlyOrHigher))
	assert.False(t, canAccessFile(t, store, "alice", "budget", domain.ReadOnlyOrHigher),
		"upload-only must not satisfy a read check")
	assert.False(t, canAccessFile(t, store, "alice", "budget", domain.CoOwnerOnly))
}

func TestDirectGrantViaIdentityCollection(t *testing.T) {
	store := fixture(t)
	// A direct user-to-file grant is an edge from the user's identity group
	// to the file's identity collection.
	grant(t, store, "identity:bob", domain.AccessLevelReadWrite, "identity:budget")

	assert.True(t, canAccessFile(t, store, "bob", "budget", domain.ReadOnlyOrHigher))
	assert.False(t, canAccessCollection(t, store, "bob", "reports", domain.ReadOnlyOrHigher),
		"a file grant does not leak to the file's other containers")
}

func TestCanAccessManyPreservesOrderAndFilters(t *testing.T) {
	store := fixture(t)
	grant(t, store, "staff", domain.AccessLevelReadOnly, "docs")

	err := store.View(context.Background(), func(tx graph.Tx) error {
		allowed, err := access.CanAccessCollections(tx, "alice",
			[]string{"reports", "missing", "docs", "root"}, domain.ReadOnlyOrHigher)
		require.NoError(t, err)
		assert.Equal(t, []string{"reports", "docs"}, allowed)
		return nil
	})
	require.NoError(t, err)
}

func TestInvalidLevelRejectedBeforeTraversal(t *testing.T) {
	store := fixture(t)
	err := store.View(context.Background(), func(tx graph.Tx) error {
		_, err := access.CanAccessFile(tx, "alice", "budget", []string{"read_only"})
		assert.True(t, domain.IsCode(err, domain.CodeInvalidAccessLevel))
		return nil
	})
	require.NoError(t, err)
}

func TestUnknownUserHasNoAccess(t *testing.T) {
	store := fixture(t)
	grant(t, store, "staff", domain.AccessLevelReadOnly, "root")
	assert.False(t, canAccessFile(t, store, "ghost", "budget", domain.ReadOnlyOrHigher))
}

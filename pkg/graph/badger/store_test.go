package badger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/castellan-io/castellan/pkg/graph"
	badgerstore "github.com/castellan-io/castellan/pkg/graph/badger"
	"github.com/castellan-io/castellan/pkg/graph/graphtest"
)

func TestBadgerStore(t *testing.T) {
	s := &graphtest.Suite{
		NewStore: func() graph.Store {
			store, err := badgerstore.NewStore(context.Background(), badgerstore.Config{InMemory: true})
			require.NoError(t, err)
			return store
		},
	}
	suite.Run(t, s)
}

func TestBadgerStorePersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := badgerstore.NewStore(ctx, badgerstore.Config{Path: dir})
	require.NoError(t, err)
	err = store.Update(ctx, func(tx graph.Tx) error {
		return tx.CreateNode(&graph.Node{
			Label: "User",
			Key:   "alice",
			Props: map[string]any{"name": "Alice"},
		})
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := badgerstore.NewStore(ctx, badgerstore.Config{Path: dir})
	require.NoError(t, err)
	defer reopened.Close()

	err = reopened.View(ctx, func(tx graph.Tx) error {
		node, ok, err := tx.GetNode(graph.NodeRef{Label: "User", Key: "alice"})
		require.NoError(t, err)
		require.True(t, ok, "nodes must survive a restart")
		require.Equal(t, "Alice", node.Props["name"])
		return nil
	})
	require.NoError(t, err)
}

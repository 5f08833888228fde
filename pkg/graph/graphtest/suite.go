// Package graphtest provides a reusable conformance suite every graph.Store
// implementation must pass. Backend test packages embed Suite and provide a
// factory for a fresh store.
package graphtest

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/castellan-io/castellan/pkg/domain"
	"github.com/castellan-io/castellan/pkg/graph"
)

// Suite exercises the graph.Store contract. Set NewStore before running.
type Suite struct {
	suite.Suite

	// NewStore returns a fresh empty store for each test.
	NewStore func() graph.Store

	store graph.Store
	ctx   context.Context
}

func (s *Suite) SetupTest() {
	s.Require().NotNil(s.NewStore, "graphtest: NewStore factory not set")
	s.store = s.NewStore()
	s.ctx = context.Background()
}

func (s *Suite) TearDownTest() {
	if s.store != nil {
		s.Require().NoError(s.store.Close())
	}
}

func (s *Suite) update(fn func(tx graph.Tx) error) {
	s.Require().NoError(s.store.Update(s.ctx, fn))
}

func (s *Suite) view(fn func(tx graph.Tx) error) {
	s.Require().NoError(s.store.View(s.ctx, fn))
}

func ref(label, key string) graph.NodeRef {
	return graph.NodeRef{Label: label, Key: key}
}

func (s *Suite) TestCreateAndGetNode() {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.update(func(tx graph.Tx) error {
		return tx.CreateNode(&graph.Node{
			Label: "Collection",
			Key:   "reports",
			Props: map[string]any{
				"name":      "Reports",
				"createdAt": created,
				"count":     int64(3),
				"archived":  false,
				"ratio":     0.5,
			},
		})
	})

	s.view(func(tx graph.Tx) error {
		node, ok, err := tx.GetNode(ref("Collection", "reports"))
		s.Require().NoError(err)
		s.Require().True(ok)
		s.Equal("Reports", node.Props["name"])
		s.Equal(created, node.Props["createdAt"], "time.Time must round-trip exactly")
		s.Equal(int64(3), node.Props["count"], "integers must not degrade to float64")
		s.Equal(false, node.Props["archived"])
		s.Equal(0.5, node.Props["ratio"])

		_, ok, err = tx.GetNode(ref("Collection", "missing"))
		s.Require().NoError(err)
		s.False(ok)

		_, ok, err = tx.GetNode(ref("File", "reports"))
		s.Require().NoError(err)
		s.False(ok, "keys are scoped per label")
		return nil
	})
}

func (s *Suite) TestCreateNodeDuplicate() {
	s.update(func(tx graph.Tx) error {
		return tx.CreateNode(&graph.Node{Label: "User", Key: "alice"})
	})
	err := s.store.Update(s.ctx, func(tx graph.Tx) error {
		return tx.CreateNode(&graph.Node{Label: "User", Key: "alice"})
	})
	s.True(domain.IsCode(err, domain.CodeAlreadyExists))
}

func (s *Suite) TestSetPropsMergeAndRemove() {
	s.update(func(tx graph.Tx) error {
		return tx.CreateNode(&graph.Node{
			Label: "File",
			Key:   "f1",
			Props: map[string]any{"name": "old", "meta_owner": "alice"},
		})
	})
	s.update(func(tx graph.Tx) error {
		return tx.SetProps(ref("File", "f1"), map[string]any{
			"name":       "new",
			"meta_tag":   "q3",
			"meta_owner": nil,
		})
	})
	s.view(func(tx graph.Tx) error {
		node, ok, err := tx.GetNode(ref("File", "f1"))
		s.Require().NoError(err)
		s.Require().True(ok)
		s.Equal("new", node.Props["name"])
		s.Equal("q3", node.Props["meta_tag"])
		s.NotContains(node.Props, "meta_owner", "nil value removes the property")
		return nil
	})

	err := s.store.Update(s.ctx, func(tx graph.Tx) error {
		return tx.SetProps(ref("File", "missing"), map[string]any{"name": "x"})
	})
	s.True(domain.IsCode(err, domain.CodeNotFound))
}

func (s *Suite) TestIncrement() {
	s.update(func(tx graph.Tx) error {
		return tx.CreateNode(&graph.Node{Label: "File", Key: "f1"})
	})
	s.update(func(tx graph.Tx) error {
		n, err := tx.Increment(ref("File", "f1"), "versionCount", 1)
		s.Require().NoError(err)
		s.Equal(int64(1), n, "missing property counts as zero")
		n, err = tx.Increment(ref("File", "f1"), "versionCount", 1)
		s.Require().NoError(err)
		s.Equal(int64(2), n)
		return nil
	})
	s.view(func(tx graph.Tx) error {
		node, _, err := tx.GetNode(ref("File", "f1"))
		s.Require().NoError(err)
		s.Equal(int64(2), node.Props["versionCount"])
		return nil
	})
}

func (s *Suite) TestEdgesAndNeighbors() {
	s.update(func(tx graph.Tx) error {
		for _, n := range []*graph.Node{
			{Label: "User", Key: "alice"},
			{Label: "Group", Key: "staff"},
			{Label: "Group", Key: "admins"},
		} {
			if err := tx.CreateNode(n); err != nil {
				return err
			}
		}
		if err := tx.CreateEdge(&graph.Edge{Type: "BELONGS_TO", From: ref("User", "alice"), To: ref("Group", "staff")}); err != nil {
			return err
		}
		return tx.CreateEdge(&graph.Edge{Type: "BELONGS_TO", From: ref("User", "alice"), To: ref("Group", "admins")})
	})

	s.view(func(tx graph.Tx) error {
		edges, err := tx.Edges(ref("User", "alice"), "BELONGS_TO", graph.Out)
		s.Require().NoError(err)
		s.Len(edges, 2)

		groups, err := tx.Neighbors(ref("User", "alice"), "BELONGS_TO", graph.Out, "Group")
		s.Require().NoError(err)
		s.Len(groups, 2)

		members, err := tx.Neighbors(ref("Group", "staff"), "BELONGS_TO", graph.In, "User")
		s.Require().NoError(err)
		s.Require().Len(members, 1)
		s.Equal("alice", members[0].Key)

		none, err := tx.Neighbors(ref("User", "alice"), "BELONGS_TO", graph.In, "")
		s.Require().NoError(err)
		s.Empty(none)
		return nil
	})
}

func (s *Suite) TestCreateEdgeReplacesProps() {
	s.update(func(tx graph.Tx) error {
		if err := tx.CreateNode(&graph.Node{Label: "File", Key: "f1"}); err != nil {
			return err
		}
		if err := tx.CreateNode(&graph.Node{Label: "RetentionPolicy", Key: "p1"}); err != nil {
			return err
		}
		return tx.CreateEdge(&graph.Edge{
			Type: "HAS_RETENTION_POLICY",
			From: ref("File", "f1"),
			To:   ref("RetentionPolicy", "p1"),
			Props: map[string]any{
				"appliedAt": time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		})
	})
	later := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	s.update(func(tx graph.Tx) error {
		return tx.CreateEdge(&graph.Edge{
			Type:  "HAS_RETENTION_POLICY",
			From:  ref("File", "f1"),
			To:    ref("RetentionPolicy", "p1"),
			Props: map[string]any{"appliedAt": later},
		})
	})
	s.view(func(tx graph.Tx) error {
		edges, err := tx.Edges(ref("File", "f1"), "HAS_RETENTION_POLICY", graph.Out)
		s.Require().NoError(err)
		s.Require().Len(edges, 1, "edge identity is (type, from, to)")
		s.Equal(later, edges[0].Props["appliedAt"])
		return nil
	})
}

func (s *Suite) TestCreateEdgeMissingEndpoint() {
	s.update(func(tx graph.Tx) error {
		return tx.CreateNode(&graph.Node{Label: "User", Key: "alice"})
	})
	err := s.store.Update(s.ctx, func(tx graph.Tx) error {
		return tx.CreateEdge(&graph.Edge{Type: "BELONGS_TO", From: ref("User", "alice"), To: ref("Group", "ghost")})
	})
	s.True(domain.IsCode(err, domain.CodeNotFound))
}

func (s *Suite) TestDeleteNodeDetachesEdges() {
	s.update(func(tx graph.Tx) error {
		for _, n := range []*graph.Node{
			{Label: "Collection", Key: "a"},
			{Label: "Collection", Key: "b"},
			{Label: "Collection", Key: "c"},
		} {
			if err := tx.CreateNode(n); err != nil {
				return err
			}
		}
		if err := tx.CreateEdge(&graph.Edge{Type: "CHILD_OF", From: ref("Collection", "b"), To: ref("Collection", "a")}); err != nil {
			return err
		}
		return tx.CreateEdge(&graph.Edge{Type: "CHILD_OF", From: ref("Collection", "c"), To: ref("Collection", "b")})
	})
	s.update(func(tx graph.Tx) error {
		return tx.DeleteNode(ref("Collection", "b"))
	})
	s.view(func(tx graph.Tx) error {
		_, ok, err := tx.GetNode(ref("Collection", "b"))
		s.Require().NoError(err)
		s.False(ok)

		children, err := tx.Neighbors(ref("Collection", "a"), "CHILD_OF", graph.In, "Collection")
		s.Require().NoError(err)
		s.Empty(children)

		parents, err := tx.Neighbors(ref("Collection", "c"), "CHILD_OF", graph.Out, "Collection")
		s.Require().NoError(err)
		s.Empty(parents)
		return nil
	})

	// Deleting again is a no-op.
	s.update(func(tx graph.Tx) error {
		return tx.DeleteNode(ref("Collection", "b"))
	})
}

func (s *Suite) TestReachable() {
	// a <- b <- c, a <- d; diamond edge c -> d keeps the closure a set.
	s.update(func(tx graph.Tx) error {
		for _, key := range []string{"a", "b", "c", "d"} {
			if err := tx.CreateNode(&graph.Node{Label: "Collection", Key: key}); err != nil {
				return err
			}
		}
		for _, e := range [][2]string{{"b", "a"}, {"c", "b"}, {"d", "a"}, {"c", "d"}} {
			err := tx.CreateEdge(&graph.Edge{Type: "CHILD_OF", From: ref("Collection", e[0]), To: ref("Collection", e[1])})
			if err != nil {
				return err
			}
		}
		return nil
	})

	s.view(func(tx graph.Tx) error {
		ancestors, err := tx.Reachable(ref("Collection", "c"), "CHILD_OF", graph.Out)
		s.Require().NoError(err)
		s.Equal(map[string]bool{"a": true, "b": true, "d": true}, ancestors)
		s.NotContains(ancestors, "c", "start node is excluded")

		descendants, err := tx.Reachable(ref("Collection", "a"), "CHILD_OF", graph.In)
		s.Require().NoError(err)
		s.Equal(map[string]bool{"b": true, "c": true, "d": true}, descendants)

		leaf, err := tx.Reachable(ref("Collection", "a"), "CHILD_OF", graph.Out)
		s.Require().NoError(err)
		s.Empty(leaf)
		return nil
	})
}

func (s *Suite) TestFindNodes() {
	s.update(func(tx graph.Tx) error {
		for _, n := range []*graph.Node{
			{Label: "File", Key: "f1", Props: map[string]any{"name": "budget"}},
			{Label: "File", Key: "f2", Props: map[string]any{"name": "forecast"}},
			{Label: "Collection", Key: "c1", Props: map[string]any{"name": "budget"}},
		} {
			if err := tx.CreateNode(n); err != nil {
				return err
			}
		}
		return nil
	})
	s.view(func(tx graph.Tx) error {
		all, err := tx.FindNodes("File", nil)
		s.Require().NoError(err)
		s.Len(all, 2, "nil predicate matches everything with the label")

		matched, err := tx.FindNodes("File", func(props map[string]any) bool {
			return props["name"] == "budget"
		})
		s.Require().NoError(err)
		s.Require().Len(matched, 1)
		s.Equal("f1", matched[0].Key)
		return nil
	})
}

func (s *Suite) TestUpdateRollsBackOnError() {
	boom := errors.New("boom")
	err := s.store.Update(s.ctx, func(tx graph.Tx) error {
		if err := tx.CreateNode(&graph.Node{Label: "User", Key: "alice"}); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	s.view(func(tx graph.Tx) error {
		_, ok, err := tx.GetNode(ref("User", "alice"))
		s.Require().NoError(err)
		s.False(ok, "failed transactions must leave no trace")
		return nil
	})
}

func (s *Suite) TestDeleteAll() {
	s.update(func(tx graph.Tx) error {
		if err := tx.CreateNode(&graph.Node{Label: "User", Key: "alice"}); err != nil {
			return err
		}
		if err := tx.CreateNode(&graph.Node{Label: "Group", Key: "staff"}); err != nil {
			return err
		}
		return tx.CreateEdge(&graph.Edge{Type: "BELONGS_TO", From: ref("User", "alice"), To: ref("Group", "staff")})
	})
	s.update(func(tx graph.Tx) error {
		return tx.DeleteAll()
	})
	s.view(func(tx graph.Tx) error {
		users, err := tx.FindNodes("User", nil)
		s.Require().NoError(err)
		s.Empty(users)
		groups, err := tx.FindNodes("Group", nil)
		s.Require().NoError(err)
		s.Empty(groups)
		return nil
	})
	// The store stays usable after a wipe.
	s.update(func(tx graph.Tx) error {
		return tx.CreateNode(&graph.Node{Label: "User", Key: "bob"})
	})
}

package catalog

import (
	"context"

	"github.com/castellan-io/castellan/pkg/domain"
	"github.com/castellan-io/castellan/pkg/graph"
	"github.com/castellan-io/castellan/pkg/query"
)

// CreateGroup creates a group attributed to createdBy.
func (c *Catalog) CreateGroup(ctx context.Context, req domain.CreateGroupRequest, createdBy string) (*domain.Group, error) {
	if err := validateKey(req.Key); err != nil {
		return nil, err
	}
	now := c.timestamp()
	props, err := c.entityProps(req.CreateEntityRequest, now)
	if err != nil {
		return nil, err
	}

	var group *domain.Group
	err = c.store.Update(ctx, func(tx graph.Tx) error {
		if _, ok, err := tx.GetNode(userRef(createdBy)); err != nil {
			return err
		} else if !ok {
			return domain.NotFound("user", createdBy)
		}
		if err := tx.CreateNode(&graph.Node{Label: domain.LabelGroup, Key: req.Key, Props: props}); err != nil {
			return err
		}
		if err := tx.CreateEdge(&graph.Edge{Type: domain.EdgeCreatedBy, From: groupRef(req.Key), To: userRef(createdBy)}); err != nil {
			return err
		}
		node := &graph.Node{Label: domain.LabelGroup, Key: req.Key, Props: props}
		group = &domain.Group{Entity: entityFromNode(node, domain.TypeGroup, createdBy)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.dispatch(domain.GroupCreatedEvent(group))
	return group, nil
}

// GetGroup fetches one group by key. Identity groups are not addressable.
func (c *Catalog) GetGroup(ctx context.Context, key string) (*domain.Group, error) {
	var group *domain.Group
	err := c.store.View(ctx, func(tx graph.Tx) error {
		node, ok, err := tx.GetNode(groupRef(key))
		if err != nil {
			return err
		}
		if !ok || isIdentity(node) {
			return domain.NotFound("group", key)
		}
		creator, err := createdByKey(tx, node.Ref())
		if err != nil {
			return err
		}
		group = &domain.Group{Entity: entityFromNode(node, domain.TypeGroup, creator)}
		return nil
	})
	return group, err
}

// UpdateGroup patches name, description and metadata.
func (c *Catalog) UpdateGroup(ctx context.Context, key string, req domain.UpdateGroupRequest) (*domain.Group, error) {
	props, err := c.updateProps(req.UpdateEntityRequest, c.timestamp())
	if err != nil {
		return nil, err
	}
	var group *domain.Group
	err = c.store.Update(ctx, func(tx graph.Tx) error {
		node, ok, err := tx.GetNode(groupRef(key))
		if err != nil {
			return err
		}
		if !ok || isIdentity(node) {
			return domain.NotFound("group", key)
		}
		if err := tx.SetProps(groupRef(key), props); err != nil {
			return err
		}
		node, _, err = tx.GetNode(groupRef(key))
		if err != nil {
			return err
		}
		creator, err := createdByKey(tx, node.Ref())
		if err != nil {
			return err
		}
		group = &domain.Group{Entity: entityFromNode(node, domain.TypeGroup, creator)}
		return nil
	})
	return group, err
}

// DeleteGroup removes the group, detaching memberships and grants. Identity
// groups only disappear with their user.
func (c *Catalog) DeleteGroup(ctx context.Context, key string) error {
	return c.store.Update(ctx, func(tx graph.Tx) error {
		node, ok, err := tx.GetNode(groupRef(key))
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFound("group", key)
		}
		if isIdentity(node) {
			return domain.Forbidden("identity groups cannot be deleted directly")
		}
		return tx.DeleteNode(groupRef(key))
	})
}

// GetAllGroups lists every group except identity groups.
func (c *Catalog) GetAllGroups(ctx context.Context) ([]*domain.Group, error) {
	return c.collectGroups(ctx, nil)
}

// FindGroups evaluates a find query over groups, identity groups excluded.
// A nil query matches nothing.
func (c *Catalog) FindGroups(ctx context.Context, clauses []query.Clause) ([]*domain.Group, error) {
	match, err := query.Compile(clauses)
	if err != nil || match == nil {
		return nil, err
	}
	return c.collectGroups(ctx, match)
}

func (c *Catalog) collectGroups(ctx context.Context, match query.Matcher) ([]*domain.Group, error) {
	var groups []*domain.Group
	err := c.store.View(ctx, func(tx graph.Tx) error {
		nodes, err := tx.FindNodes(domain.LabelGroup, notIdentity)
		if err != nil {
			return err
		}
		for _, node := range nodes {
			if match != nil && !match(matchProps(node)) {
				continue
			}
			creator, err := createdByKey(tx, node.Ref())
			if err != nil {
				return err
			}
			groups = append(groups, &domain.Group{Entity: entityFromNode(node, domain.TypeGroup, creator)})
		}
		return nil
	})
	return groups, err
}

// AddUserToGroup adds a membership edge.
func (c *Catalog) AddUserToGroup(ctx context.Context, groupKey, userKey string) error {
	var user *domain.User
	var group *domain.Group
	err := c.store.Update(ctx, func(tx graph.Tx) error {
		groupNode, ok, err := tx.GetNode(groupRef(groupKey))
		if err != nil {
			return err
		}
		if !ok || isIdentity(groupNode) {
			return domain.NotFound("group", groupKey)
		}
		userNode, ok, err := tx.GetNode(userRef(userKey))
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFound("user", userKey)
		}
		err = tx.CreateEdge(&graph.Edge{
			Type:  domain.EdgeBelongsTo,
			From:  userRef(userKey),
			To:    groupRef(groupKey),
			Props: map[string]any{domain.PropCreatedAt: c.timestamp()},
		})
		if err != nil {
			return err
		}
		creator, err := createdByKey(tx, groupNode.Ref())
		if err != nil {
			return err
		}
		user = &domain.User{Entity: entityFromNode(userNode, domain.TypeUser, "")}
		group = &domain.Group{Entity: entityFromNode(groupNode, domain.TypeGroup, creator)}
		return nil
	})
	if err != nil {
		return err
	}
	c.dispatch(domain.AddedUserToGroupEvent(user, group))
	return nil
}

// GetUsersForGroup lists the members of a group.
func (c *Catalog) GetUsersForGroup(ctx context.Context, groupKey string) ([]*domain.User, error) {
	var users []*domain.User
	err := c.store.View(ctx, func(tx graph.Tx) error {
		groupNode, ok, err := tx.GetNode(groupRef(groupKey))
		if err != nil {
			return err
		}
		if !ok || isIdentity(groupNode) {
			return domain.NotFound("group", groupKey)
		}
		nodes, err := tx.Neighbors(groupRef(groupKey), domain.EdgeBelongsTo, graph.In, domain.LabelUser)
		if err != nil {
			return err
		}
		for _, node := range nodes {
			users = append(users, &domain.User{Entity: entityFromNode(node, domain.TypeUser, "")})
		}
		return nil
	})
	return users, err
}

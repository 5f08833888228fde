package catalog

import (
	"context"

	"github.com/castellan-io/castellan/pkg/access"
	"github.com/castellan-io/castellan/pkg/domain"
	"github.com/castellan-io/castellan/pkg/graph"
	"github.com/castellan-io/castellan/pkg/query"
)

// CreateUser creates the user together with its hidden identity group, the
// principal all direct grants for this user attach to.
func (c *Catalog) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	if err := validateKey(req.Key); err != nil {
		return nil, err
	}
	now := c.timestamp()
	props, err := c.entityProps(req.CreateEntityRequest, now)
	if err != nil {
		return nil, err
	}

	identityKey := domain.IdentityGroupKey(req.Key)
	err = c.store.Update(ctx, func(tx graph.Tx) error {
		if err := tx.CreateNode(&graph.Node{Label: domain.LabelUser, Key: req.Key, Props: props}); err != nil {
			return err
		}
		identityProps := map[string]any{
			domain.PropIdentity:  true,
			domain.PropCreatedAt: now,
		}
		if err := tx.CreateNode(&graph.Node{Label: domain.LabelGroup, Key: identityKey, Props: identityProps}); err != nil {
			return err
		}
		err := tx.CreateEdge(&graph.Edge{
			Type:  domain.EdgeBelongsTo,
			From:  userRef(req.Key),
			To:    groupRef(identityKey),
			Props: map[string]any{domain.PropCreatedAt: now, domain.PropIdentity: true},
		})
		if err != nil {
			return err
		}
		return tx.CreateEdge(&graph.Edge{
			Type: domain.EdgeCreatedBy,
			From: groupRef(identityKey),
			To:   userRef(req.Key),
		})
	})
	if err != nil {
		return nil, err
	}

	user := c.userFromProps(req.Key, props)
	c.dispatch(domain.UserCreatedEvent(user))
	return user, nil
}

func (c *Catalog) userFromProps(key string, props map[string]any) *domain.User {
	node := &graph.Node{Label: domain.LabelUser, Key: key, Props: props}
	return &domain.User{Entity: entityFromNode(node, domain.TypeUser, "")}
}

// GetUser fetches one user by key.
func (c *Catalog) GetUser(ctx context.Context, key string) (*domain.User, error) {
	var user *domain.User
	err := c.store.View(ctx, func(tx graph.Tx) error {
		node, ok, err := tx.GetNode(userRef(key))
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFound("user", key)
		}
		user = &domain.User{Entity: entityFromNode(node, domain.TypeUser, "")}
		return nil
	})
	return user, err
}

// UpdateUser patches name, description and metadata. The key is immutable.
func (c *Catalog) UpdateUser(ctx context.Context, key string, req domain.UpdateUserRequest) (*domain.User, error) {
	props, err := c.updateProps(req.UpdateEntityRequest, c.timestamp())
	if err != nil {
		return nil, err
	}
	var user *domain.User
	err = c.store.Update(ctx, func(tx graph.Tx) error {
		if err := tx.SetProps(userRef(key), props); err != nil {
			return err
		}
		node, _, err := tx.GetNode(userRef(key))
		if err != nil {
			return err
		}
		user = &domain.User{Entity: entityFromNode(node, domain.TypeUser, "")}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.dispatch(domain.UserUpdatedEvent(user))
	return user, nil
}

// DeleteUser removes the user and its identity group, detaching every
// membership and grant they carried.
func (c *Catalog) DeleteUser(ctx context.Context, key string) error {
	if key == c.adminKey {
		return domain.Forbidden("the admin user cannot be deleted")
	}
	return c.store.Update(ctx, func(tx graph.Tx) error {
		if _, ok, err := tx.GetNode(userRef(key)); err != nil {
			return err
		} else if !ok {
			return domain.NotFound("user", key)
		}
		if err := tx.DeleteNode(groupRef(domain.IdentityGroupKey(key))); err != nil {
			return err
		}
		return tx.DeleteNode(userRef(key))
	})
}

// GetAllUsers lists every user except the admin.
func (c *Catalog) GetAllUsers(ctx context.Context) ([]*domain.User, error) {
	var users []*domain.User
	err := c.store.View(ctx, func(tx graph.Tx) error {
		nodes, err := tx.FindNodes(domain.LabelUser, nil)
		if err != nil {
			return err
		}
		for _, node := range nodes {
			if node.Key == c.adminKey {
				continue
			}
			users = append(users, &domain.User{Entity: entityFromNode(node, domain.TypeUser, "")})
		}
		return nil
	})
	return users, err
}

// FindUsers evaluates a find query over users. A nil query matches nothing.
func (c *Catalog) FindUsers(ctx context.Context, clauses []query.Clause) ([]*domain.User, error) {
	match, err := query.Compile(clauses)
	if err != nil || match == nil {
		return nil, err
	}
	var users []*domain.User
	err = c.store.View(ctx, func(tx graph.Tx) error {
		nodes, err := tx.FindNodes(domain.LabelUser, nil)
		if err != nil {
			return err
		}
		for _, node := range nodes {
			if node.Key == c.adminKey || !match(matchProps(node)) {
				continue
			}
			users = append(users, &domain.User{Entity: entityFromNode(node, domain.TypeUser, "")})
		}
		return nil
	})
	return users, err
}

// IsValidUserKey reports whether a user with the key exists.
func (c *Catalog) IsValidUserKey(ctx context.Context, key string) (bool, error) {
	_, err := c.GetUser(ctx, key)
	if domain.IsCode(err, domain.CodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetGroupsForUser lists the user's group memberships, identity group
// excluded.
func (c *Catalog) GetGroupsForUser(ctx context.Context, key string) ([]*domain.Group, error) {
	var groups []*domain.Group
	err := c.store.View(ctx, func(tx graph.Tx) error {
		if _, ok, err := tx.GetNode(userRef(key)); err != nil {
			return err
		} else if !ok {
			return domain.NotFound("user", key)
		}
		nodes, err := tx.Neighbors(userRef(key), domain.EdgeBelongsTo, graph.Out, domain.LabelGroup)
		if err != nil {
			return err
		}
		for _, node := range nodes {
			if isIdentity(node) {
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

// UserCanAccessFile reports whether the user reaches the file at one of the
// given access levels. The admin user reaches everything.
func (c *Catalog) UserCanAccessFile(ctx context.Context, userKey, fileKey string, levels []string) (bool, error) {
	allowed, err := c.UserCanAccessFiles(ctx, userKey, []string{fileKey}, levels)
	if err != nil {
		return false, err
	}
	return len(allowed) == 1, nil
}

// UserCanAccessFiles filters fileKeys down to those the user can reach.
func (c *Catalog) UserCanAccessFiles(ctx context.Context, userKey string, fileKeys, levels []string) ([]string, error) {
	if err := domain.ValidateAccessLevels(levels); err != nil {
		return nil, err
	}
	if userKey == c.adminKey {
		return append([]string(nil), fileKeys...), nil
	}
	var allowed []string
	err := c.store.View(ctx, func(tx graph.Tx) error {
		var err error
		allowed, err = access.CanAccessFiles(tx, userKey, fileKeys, levels)
		return err
	})
	return allowed, err
}

// UserCanAccessCollection reports whether the user reaches the collection
// at one of the given access levels.
func (c *Catalog) UserCanAccessCollection(ctx context.Context, userKey, collectionKey string, levels []string) (bool, error) {
	allowed, err := c.UserCanAccessCollections(ctx, userKey, []string{collectionKey}, levels)
	if err != nil {
		return false, err
	}
	return len(allowed) == 1, nil
}

// UserCanAccessCollections filters collectionKeys down to those the user
// can reach.
func (c *Catalog) UserCanAccessCollections(ctx context.Context, userKey string, collectionKeys, levels []string) ([]string, error) {
	if err := domain.ValidateAccessLevels(levels); err != nil {
		return nil, err
	}
	if userKey == c.adminKey {
		return append([]string(nil), collectionKeys...), nil
	}
	var allowed []string
	err := c.store.View(ctx, func(tx graph.Tx) error {
		var err error
		allowed, err = access.CanAccessCollections(tx, userKey, collectionKeys, levels)
		return err
	})
	return allowed, err
}

package catalog

import (
	"context"

	"github.com/castellan-io/castellan/pkg/domain"
	"github.com/castellan-io/castellan/pkg/graph"
	"github.com/castellan-io/castellan/pkg/hierarchy"
	"github.com/castellan-io/castellan/pkg/query"
)

// CreateCollection creates a collection attributed to createdBy. The
// creator's identity group receives a co-owner grant so the creator can
// always manage what they made.
func (c *Catalog) CreateCollection(ctx context.Context, req domain.CreateCollectionRequest, createdBy string) (*domain.Collection, error) {
	if err := validateKey(req.Key); err != nil {
		return nil, err
	}
	now := c.timestamp()
	props, err := c.entityProps(req.CreateEntityRequest, now)
	if err != nil {
		return nil, err
	}

	var collection *domain.Collection
	err = c.store.Update(ctx, func(tx graph.Tx) error {
		if _, ok, err := tx.GetNode(userRef(createdBy)); err != nil {
			return err
		} else if !ok {
			return domain.NotFound("user", createdBy)
		}
		if err := tx.CreateNode(&graph.Node{Label: domain.LabelCollection, Key: req.Key, Props: props}); err != nil {
			return err
		}
		if err := tx.CreateEdge(&graph.Edge{Type: domain.EdgeCreatedBy, From: collectionRef(req.Key), To: userRef(createdBy)}); err != nil {
			return err
		}
		err := tx.CreateEdge(&graph.Edge{
			Type:  domain.AccessLevelCoOwner,
			From:  groupRef(domain.IdentityGroupKey(createdBy)),
			To:    collectionRef(req.Key),
			Props: map[string]any{domain.PropCreatedAt: now},
		})
		if err != nil {
			return err
		}
		node := &graph.Node{Label: domain.LabelCollection, Key: req.Key, Props: props}
		collection = &domain.Collection{Entity: entityFromNode(node, domain.TypeCollection, createdBy)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.dispatch(domain.CollectionCreatedEvent(collection))
	return collection, nil
}

// GetCollection fetches one collection by key. Identity collections are not
// addressable.
func (c *Catalog) GetCollection(ctx context.Context, key string) (*domain.Collection, error) {
	var collection *domain.Collection
	err := c.store.View(ctx, func(tx graph.Tx) error {
		var err error
		collection, err = getCollection(tx, key)
		return err
	})
	return collection, err
}

func getCollection(tx graph.Tx, key string) (*domain.Collection, error) {
	node, ok, err := tx.GetNode(collectionRef(key))
	if err != nil {
		return nil, err
	}
	if !ok || isIdentity(node) {
		return nil, domain.NotFound("collection", key)
	}
	creator, err := createdByKey(tx, node.Ref())
	if err != nil {
		return nil, err
	}
	return &domain.Collection{Entity: entityFromNode(node, domain.TypeCollection, creator)}, nil
}

// UpdateCollection patches name, description and metadata.
func (c *Catalog) UpdateCollection(ctx context.Context, key string, req domain.UpdateCollectionRequest) (*domain.Collection, error) {
	props, err := c.updateProps(req.UpdateEntityRequest, c.timestamp())
	if err != nil {
		return nil, err
	}
	var collection *domain.Collection
	err = c.store.Update(ctx, func(tx graph.Tx) error {
		if _, err := getCollection(tx, key); err != nil {
			return err
		}
		if err := tx.SetProps(collectionRef(key), props); err != nil {
			return err
		}
		var err error
		collection, err = getCollection(tx, key)
		return err
	})
	return collection, err
}

// DeleteCollection removes the collection and detaches its edges. Contained
// files and child collections survive; only the containment is lost.
// Identity collections only disappear with their file.
func (c *Catalog) DeleteCollection(ctx context.Context, key string) error {
	return c.store.Update(ctx, func(tx graph.Tx) error {
		node, ok, err := tx.GetNode(collectionRef(key))
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFound("collection", key)
		}
		if isIdentity(node) {
			return domain.Forbidden("identity collections cannot be deleted directly")
		}
		return tx.DeleteNode(collectionRef(key))
	})
}

// GetAllCollections lists every collection except identity collections.
func (c *Catalog) GetAllCollections(ctx context.Context) ([]*domain.Collection, error) {
	return c.collectCollections(ctx, nil)
}

// FindCollections evaluates a find query over collections, identity
// collections excluded. A nil query matches nothing.
func (c *Catalog) FindCollections(ctx context.Context, clauses []query.Clause) ([]*domain.Collection, error) {
	match, err := query.Compile(clauses)
	if err != nil || match == nil {
		return nil, err
	}
	return c.collectCollections(ctx, match)
}

func (c *Catalog) collectCollections(ctx context.Context, match query.Matcher) ([]*domain.Collection, error) {
	var collections []*domain.Collection
	err := c.store.View(ctx, func(tx graph.Tx) error {
		nodes, err := tx.FindNodes(domain.LabelCollection, notIdentity)
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
			collections = append(collections, &domain.Collection{Entity: entityFromNode(node, domain.TypeCollection, creator)})
		}
		return nil
	})
	return collections, err
}

// AddChildToCollection links child under parent, rejecting links that would
// make a collection its own ancestor. The check and the link run in one
// transaction, so concurrent links cannot sneak a cycle in.
func (c *Catalog) AddChildToCollection(ctx context.Context, parentKey, childKey string) error {
	var parent, child *domain.Collection
	err := c.store.Update(ctx, func(tx graph.Tx) error {
		var err error
		if parent, err = getCollection(tx, parentKey); err != nil {
			return err
		}
		if child, err = getCollection(tx, childKey); err != nil {
			return err
		}
		return hierarchy.Link(tx, parentKey, childKey)
	})
	if err != nil {
		return err
	}
	c.dispatch(domain.AddedChildToCollectionEvent(child, parent))
	return nil
}

// RemoveChildFromCollection unlinks child from parent. The child keeps its
// other parents.
func (c *Catalog) RemoveChildFromCollection(ctx context.Context, parentKey, childKey string) error {
	return c.store.Update(ctx, func(tx graph.Tx) error {
		return hierarchy.Unlink(tx, parentKey, childKey)
	})
}

// GetChildCollectionsForCollection lists the direct children.
func (c *Catalog) GetChildCollectionsForCollection(ctx context.Context, key string) ([]*domain.Collection, error) {
	var children []*domain.Collection
	err := c.store.View(ctx, func(tx graph.Tx) error {
		if _, err := getCollection(tx, key); err != nil {
			return err
		}
		nodes, err := hierarchy.Children(tx, key)
		if err != nil {
			return err
		}
		for _, node := range nodes {
			creator, err := createdByKey(tx, node.Ref())
			if err != nil {
				return err
			}
			children = append(children, &domain.Collection{Entity: entityFromNode(node, domain.TypeCollection, creator)})
		}
		return nil
	})
	return children, err
}

// GetFilesForCollection lists the files the collection directly contains.
func (c *Catalog) GetFilesForCollection(ctx context.Context, key string) ([]*domain.File, error) {
	var files []*domain.File
	err := c.store.View(ctx, func(tx graph.Tx) error {
		if _, err := getCollection(tx, key); err != nil {
			return err
		}
		nodes, err := tx.Neighbors(collectionRef(key), domain.EdgeContains, graph.Out, domain.LabelFile)
		if err != nil {
			return err
		}
		for _, node := range nodes {
			file, err := fileFromNode(tx, node)
			if err != nil {
				return err
			}
			files = append(files, file)
		}
		return nil
	})
	return files, err
}

// GetItemsForCollection bundles the direct children and files.
func (c *Catalog) GetItemsForCollection(ctx context.Context, key string) (*domain.CollectionItems, error) {
	files, err := c.GetFilesForCollection(ctx, key)
	if err != nil {
		return nil, err
	}
	children, err := c.GetChildCollectionsForCollection(ctx, key)
	if err != nil {
		return nil, err
	}
	return &domain.CollectionItems{ChildCollections: children, Files: files}, nil
}

// AddFileToCollection makes the collection contain the file.
func (c *Catalog) AddFileToCollection(ctx context.Context, collectionKey string, req domain.AddFileToCollectionRequest) error {
	var collection *domain.Collection
	var file *domain.File
	err := c.store.Update(ctx, func(tx graph.Tx) error {
		var err error
		if collection, err = getCollection(tx, collectionKey); err != nil {
			return err
		}
		fileNode, ok, err := tx.GetNode(fileRef(req.FileKey))
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFound("file", req.FileKey)
		}
		if file, err = fileFromNode(tx, fileNode); err != nil {
			return err
		}
		return tx.CreateEdge(&graph.Edge{
			Type:  domain.EdgeContains,
			From:  collectionRef(collectionKey),
			To:    fileRef(req.FileKey),
			Props: map[string]any{domain.PropCreatedAt: c.timestamp()},
		})
	})
	if err != nil {
		return err
	}
	c.dispatch(domain.AddedFileToCollectionEvent(file, collection))
	return nil
}

// RemoveFileFromCollection removes the containment edge. The file and its
// other containers are untouched.
func (c *Catalog) RemoveFileFromCollection(ctx context.Context, collectionKey, fileKey string) error {
	return c.store.Update(ctx, func(tx graph.Tx) error {
		return tx.DeleteEdge(domain.EdgeContains, collectionRef(collectionKey), fileRef(fileKey))
	})
}

// AddUserToCollection grants the user the access level on the collection,
// expressed as a grant from the user's identity group.
func (c *Catalog) AddUserToCollection(ctx context.Context, collectionKey string, req domain.AddUserToCollectionRequest) error {
	if !domain.IsValidAccessLevel(req.AccessLevel) {
		return domain.InvalidAccessLevel(req.AccessLevel)
	}
	return c.store.Update(ctx, func(tx graph.Tx) error {
		if _, err := getCollection(tx, collectionKey); err != nil {
			return err
		}
		if _, ok, err := tx.GetNode(userRef(req.UserKey)); err != nil {
			return err
		} else if !ok {
			return domain.NotFound("user", req.UserKey)
		}
		return tx.CreateEdge(&graph.Edge{
			Type:  req.AccessLevel,
			From:  groupRef(domain.IdentityGroupKey(req.UserKey)),
			To:    collectionRef(collectionKey),
			Props: map[string]any{domain.PropCreatedAt: c.timestamp()},
		})
	})
}

// AddGroupToCollection grants the group the access level on the collection.
func (c *Catalog) AddGroupToCollection(ctx context.Context, collectionKey string, req domain.AddGroupToCollectionRequest) error {
	if !domain.IsValidAccessLevel(req.AccessLevel) {
		return domain.InvalidAccessLevel(req.AccessLevel)
	}
	var collection *domain.Collection
	var group *domain.Group
	err := c.store.Update(ctx, func(tx graph.Tx) error {
		var err error
		if collection, err = getCollection(tx, collectionKey); err != nil {
			return err
		}
		groupNode, ok, err := tx.GetNode(groupRef(req.GroupKey))
		if err != nil {
			return err
		}
		if !ok || isIdentity(groupNode) {
			return domain.NotFound("group", req.GroupKey)
		}
		creator, err := createdByKey(tx, groupNode.Ref())
		if err != nil {
			return err
		}
		group = &domain.Group{Entity: entityFromNode(groupNode, domain.TypeGroup, creator)}
		return tx.CreateEdge(&graph.Edge{
			Type:  req.AccessLevel,
			From:  groupRef(req.GroupKey),
			To:    collectionRef(collectionKey),
			Props: map[string]any{domain.PropCreatedAt: c.timestamp()},
		})
	})
	if err != nil {
		return err
	}
	c.dispatch(domain.AddedGroupToCollectionEvent(group, collection))
	return nil
}

// Package catalog is the operational core: every entity lifecycle,
// hierarchy, grant, retention and query operation is implemented here on top
// of the graph store, the storage provider and the event dispatcher.
//
// The catalog trusts the caller identities it is handed; authentication and
// enforcement live at the transport boundary. What the catalog does provide
// is the authority model itself: the UserCanAccess methods answer grant
// questions, and every mutation keeps the graph shape those answers are
// computed from.
//
// Each operation runs in a single store transaction, so multi-node writes
// like user-plus-identity-group either land completely or not at all.
// Events are dispatched only after the transaction commits.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/castellan-io/castellan/internal/logger"
	"github.com/castellan-io/castellan/pkg/domain"
	"github.com/castellan-io/castellan/pkg/event"
	"github.com/castellan-io/castellan/pkg/graph"
	"github.com/castellan-io/castellan/pkg/retention"
	"github.com/castellan-io/castellan/pkg/storage"
)

// Catalog exposes the full operation surface.
type Catalog struct {
	store    graph.Store
	gate     *retention.Gate
	provider *storage.Provider
	events   *event.Dispatcher
	adminKey string
	now      func() time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithClock overrides the time source used for entity timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		c.now = now
	}
}

// New assembles a Catalog. The retention gate shares the catalog's clock.
func New(store graph.Store, provider *storage.Provider, events *event.Dispatcher, adminKey string, opts ...Option) *Catalog {
	c := &Catalog{
		store:    store,
		provider: provider,
		events:   events,
		adminKey: adminKey,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.gate = retention.NewGate(retention.WithClock(c.now))
	return c
}

// AdminKey returns the configured administrator user key.
func (c *Catalog) AdminKey() string {
	return c.adminKey
}

// Init prepares the store for use, creating the admin user if it does not
// exist yet. Safe to call on every startup.
func (c *Catalog) Init(ctx context.Context) error {
	_, err := c.GetUser(ctx, c.adminKey)
	if err == nil {
		return nil
	}
	if !domain.IsCode(err, domain.CodeNotFound) {
		return err
	}
	req := domain.CreateUserRequest{}
	req.Key = c.adminKey
	if _, err := c.CreateUser(ctx, req); err != nil {
		return err
	}
	logger.Info("catalog: initialized store, admin user %q created", c.adminKey)
	return nil
}

// Reset wipes every node and edge and recreates the admin user.
func (c *Catalog) Reset(ctx context.Context) error {
	err := c.store.Update(ctx, func(tx graph.Tx) error {
		return tx.DeleteAll()
	})
	if err != nil {
		return err
	}
	logger.Warn("catalog: store reset, all data deleted")
	return c.Init(ctx)
}

// dispatch sends an event if a dispatcher is configured.
func (c *Catalog) dispatch(e domain.Event) {
	if c.events != nil {
		c.events.Dispatch(e)
	}
}

func (c *Catalog) timestamp() time.Time {
	return c.now().UTC()
}

// validateKey rejects keys that are empty, contain NUL (reserved by the
// store's key encoding), or use the identity prefix reserved for
// system-created anchors.
func validateKey(key string) error {
	if key == "" {
		return domain.InvalidArgument("key cannot be empty")
	}
	if strings.ContainsRune(key, 0) {
		return domain.InvalidArgument("key cannot contain NUL bytes")
	}
	if strings.HasPrefix(key, "identity:") {
		return domain.InvalidArgument("the prefix \"identity:\" is reserved")
	}
	return nil
}

// entityProps builds the stored property map for a create request.
func (c *Catalog) entityProps(req domain.CreateEntityRequest, now time.Time) (map[string]any, error) {
	props := map[string]any{
		domain.PropCreatedAt:  now,
		domain.PropModifiedAt: now,
	}
	if req.Name != "" {
		props[domain.PropName] = req.Name
	}
	if req.Description != "" {
		props[domain.PropDescription] = req.Description
	}
	if err := applyMetadata(props, req.Metadata); err != nil {
		return nil, err
	}
	return props, nil
}

// updateProps builds the property patch for an update request. Empty-string
// names and descriptions clear the field; nil metadata values remove the
// key.
func (c *Catalog) updateProps(req domain.UpdateEntityRequest, now time.Time) (map[string]any, error) {
	props := map[string]any{
		domain.PropModifiedAt: now,
	}
	if req.Name != nil {
		if *req.Name == "" {
			props[domain.PropName] = nil
		} else {
			props[domain.PropName] = *req.Name
		}
	}
	if req.Description != nil {
		if *req.Description == "" {
			props[domain.PropDescription] = nil
		} else {
			props[domain.PropDescription] = *req.Description
		}
	}
	if err := applyMetadata(props, req.Metadata); err != nil {
		return nil, err
	}
	return props, nil
}

// applyMetadata folds caller metadata into props under the metadata
// namespace, normalizing value types to what the store round-trips.
func applyMetadata(props map[string]any, metadata map[string]any) error {
	for k, v := range metadata {
		if k == "" {
			return domain.InvalidArgument("metadata key cannot be empty")
		}
		if strings.ContainsAny(k, " \t\n\r") {
			return domain.InvalidArgument("metadata key %q cannot contain whitespace", k)
		}
		stored := domain.MetadataKey(k)
		switch val := v.(type) {
		case nil:
			props[stored] = nil
		case string:
			if ts, err := time.Parse(time.RFC3339, val); err == nil {
				props[stored] = ts.UTC()
			} else {
				props[stored] = val
			}
		case bool, int64, float64, time.Time:
			props[stored] = val
		case int:
			props[stored] = int64(val)
		default:
			return domain.InvalidArgument("metadata value for %q has unsupported type %T", k, v)
		}
	}
	return nil
}

// entityFromNode rebuilds the shared entity fields from a stored node.
func entityFromNode(node *graph.Node, entityType domain.EntityType, createdBy string) domain.Entity {
	e := domain.Entity{
		Type:      entityType,
		Key:       node.Key,
		CreatedBy: createdBy,
	}
	for k, v := range node.Props {
		switch k {
		case domain.PropName:
			e.Name, _ = v.(string)
		case domain.PropDescription:
			e.Description, _ = v.(string)
		case domain.PropCreatedAt:
			e.CreatedAt, _ = v.(time.Time)
		case domain.PropModifiedAt:
			e.ModifiedAt, _ = v.(time.Time)
		default:
			if metaKey, ok := strings.CutPrefix(k, domain.MetadataPrefix); ok {
				if e.Metadata == nil {
					e.Metadata = make(map[string]any)
				}
				e.Metadata[metaKey] = v
			}
		}
	}
	return e
}

// isIdentity reports whether the node is a hidden identity anchor.
func isIdentity(node *graph.Node) bool {
	flag, _ := node.Props[domain.PropIdentity].(bool)
	return flag
}

// notIdentity is the FindNodes predicate excluding identity anchors.
func notIdentity(props map[string]any) bool {
	flag, _ := props[domain.PropIdentity].(bool)
	return !flag
}

// createdByKey resolves the creator of a node through its created_by edge.
func createdByKey(tx graph.Tx, ref graph.NodeRef) (string, error) {
	creators, err := tx.Neighbors(ref, domain.EdgeCreatedBy, graph.Out, domain.LabelUser)
	if err != nil {
		return "", err
	}
	if len(creators) == 0 {
		return "", nil
	}
	return creators[0].Key, nil
}

// matchProps is the view of a node's properties a compiled query runs
// against: stored properties plus the key.
func matchProps(node *graph.Node) map[string]any {
	props := make(map[string]any, len(node.Props)+1)
	for k, v := range node.Props {
		props[k] = v
	}
	props["key"] = node.Key
	return props
}

func userRef(key string) graph.NodeRef {
	return graph.NodeRef{Label: domain.LabelUser, Key: key}
}

func groupRef(key string) graph.NodeRef {
	return graph.NodeRef{Label: domain.LabelGroup, Key: key}
}

func fileRef(key string) graph.NodeRef {
	return graph.NodeRef{Label: domain.LabelFile, Key: key}
}

func collectionRef(key string) graph.NodeRef {
	return graph.NodeRef{Label: domain.LabelCollection, Key: key}
}

func policyRef(key string) graph.NodeRef {
	return graph.NodeRef{Label: domain.LabelRetentionPolicy, Key: key}
}

func classificationRef(key string) graph.NodeRef {
	return graph.NodeRef{Label: domain.LabelClassification, Key: key}
}

package catalog

import (
	"context"

	"github.com/castellan-io/castellan/pkg/domain"
	"github.com/castellan-io/castellan/pkg/graph"
	"github.com/castellan-io/castellan/pkg/query"
	"github.com/castellan-io/castellan/pkg/retention"
)

// CreateRetentionPolicy creates a retention policy with the given duration.
func (c *Catalog) CreateRetentionPolicy(ctx context.Context, req domain.CreateRetentionPolicyRequest, createdBy string) (*domain.RetentionPolicy, error) {
	if err := validateKey(req.Key); err != nil {
		return nil, err
	}
	if err := retention.ValidateSeconds(req.Seconds); err != nil {
		return nil, err
	}
	now := c.timestamp()
	props, err := c.entityProps(req.CreateEntityRequest, now)
	if err != nil {
		return nil, err
	}
	props[domain.PropSeconds] = req.Seconds

	var policy *domain.RetentionPolicy
	err = c.store.Update(ctx, func(tx graph.Tx) error {
		if _, ok, err := tx.GetNode(userRef(createdBy)); err != nil {
			return err
		} else if !ok {
			return domain.NotFound("user", createdBy)
		}
		if err := tx.CreateNode(&graph.Node{Label: domain.LabelRetentionPolicy, Key: req.Key, Props: props}); err != nil {
			return err
		}
		if err := tx.CreateEdge(&graph.Edge{Type: domain.EdgeCreatedBy, From: policyRef(req.Key), To: userRef(createdBy)}); err != nil {
			return err
		}
		node := &graph.Node{Label: domain.LabelRetentionPolicy, Key: req.Key, Props: props}
		policy = policyFromEntityNode(node, createdBy)
		return nil
	})
	return policy, err
}

// GetRetentionPolicy fetches one retention policy by key.
func (c *Catalog) GetRetentionPolicy(ctx context.Context, key string) (*domain.RetentionPolicy, error) {
	var policy *domain.RetentionPolicy
	err := c.store.View(ctx, func(tx graph.Tx) error {
		var err error
		policy, err = getRetentionPolicy(tx, key)
		return err
	})
	return policy, err
}

func getRetentionPolicy(tx graph.Tx, key string) (*domain.RetentionPolicy, error) {
	node, ok, err := tx.GetNode(policyRef(key))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.NotFound("retention policy", key)
	}
	creator, err := createdByKey(tx, node.Ref())
	if err != nil {
		return nil, err
	}
	return policyFromEntityNode(node, creator), nil
}

func policyFromEntityNode(node *graph.Node, createdBy string) *domain.RetentionPolicy {
	policy := &domain.RetentionPolicy{Entity: entityFromNode(node, domain.TypeRetentionPolicy, createdBy)}
	switch s := node.Props[domain.PropSeconds].(type) {
	case uint64:
		policy.Seconds = s
	case int64:
		policy.Seconds = uint64(s)
	}
	return policy
}

// UpdateRetentionPolicy patches the policy. The retention duration may only
// grow; a shorter duration is rejected so existing applications can never
// lose protection.
func (c *Catalog) UpdateRetentionPolicy(ctx context.Context, key string, req domain.UpdateRetentionPolicyRequest) (*domain.RetentionPolicy, error) {
	props, err := c.updateProps(req.UpdateEntityRequest, c.timestamp())
	if err != nil {
		return nil, err
	}
	if req.Seconds != nil {
		if err := retention.ValidateSeconds(*req.Seconds); err != nil {
			return nil, err
		}
	}
	var policy *domain.RetentionPolicy
	err = c.store.Update(ctx, func(tx graph.Tx) error {
		current, err := getRetentionPolicy(tx, key)
		if err != nil {
			return err
		}
		if req.Seconds != nil {
			if err := retention.ValidatePeriodChange(key, current.Seconds, *req.Seconds); err != nil {
				return err
			}
			props[domain.PropSeconds] = *req.Seconds
		}
		if err := tx.SetProps(policyRef(key), props); err != nil {
			return err
		}
		policy, err = getRetentionPolicy(tx, key)
		return err
	})
	return policy, err
}

// GetAllRetentionPolicies lists every retention policy.
func (c *Catalog) GetAllRetentionPolicies(ctx context.Context) ([]*domain.RetentionPolicy, error) {
	return c.collectRetentionPolicies(ctx, nil)
}

// FindRetentionPolicies evaluates a find query over retention policies. A
// nil query matches nothing.
func (c *Catalog) FindRetentionPolicies(ctx context.Context, clauses []query.Clause) ([]*domain.RetentionPolicy, error) {
	match, err := query.Compile(clauses)
	if err != nil || match == nil {
		return nil, err
	}
	return c.collectRetentionPolicies(ctx, match)
}

func (c *Catalog) collectRetentionPolicies(ctx context.Context, match query.Matcher) ([]*domain.RetentionPolicy, error) {
	var policies []*domain.RetentionPolicy
	err := c.store.View(ctx, func(tx graph.Tx) error {
		nodes, err := tx.FindNodes(domain.LabelRetentionPolicy, nil)
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
			policies = append(policies, policyFromEntityNode(node, creator))
		}
		return nil
	})
	return policies, err
}

// CreateClassification creates a classification tag.
func (c *Catalog) CreateClassification(ctx context.Context, req domain.CreateClassificationRequest, createdBy string) (*domain.Classification, error) {
	if err := validateKey(req.Key); err != nil {
		return nil, err
	}
	now := c.timestamp()
	props, err := c.entityProps(req.CreateEntityRequest, now)
	if err != nil {
		return nil, err
	}
	var classification *domain.Classification
	err = c.store.Update(ctx, func(tx graph.Tx) error {
		if _, ok, err := tx.GetNode(userRef(createdBy)); err != nil {
			return err
		} else if !ok {
			return domain.NotFound("user", createdBy)
		}
		if err := tx.CreateNode(&graph.Node{Label: domain.LabelClassification, Key: req.Key, Props: props}); err != nil {
			return err
		}
		if err := tx.CreateEdge(&graph.Edge{Type: domain.EdgeCreatedBy, From: classificationRef(req.Key), To: userRef(createdBy)}); err != nil {
			return err
		}
		node := &graph.Node{Label: domain.LabelClassification, Key: req.Key, Props: props}
		classification = &domain.Classification{Entity: entityFromNode(node, domain.TypeClassification, createdBy)}
		return nil
	})
	return classification, err
}

// GetClassification fetches one classification by key.
func (c *Catalog) GetClassification(ctx context.Context, key string) (*domain.Classification, error) {
	var classification *domain.Classification
	err := c.store.View(ctx, func(tx graph.Tx) error {
		var err error
		classification, err = getClassification(tx, key)
		return err
	})
	return classification, err
}

func getClassification(tx graph.Tx, key string) (*domain.Classification, error) {
	node, ok, err := tx.GetNode(classificationRef(key))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.NotFound("classification", key)
	}
	creator, err := createdByKey(tx, node.Ref())
	if err != nil {
		return nil, err
	}
	return &domain.Classification{Entity: entityFromNode(node, domain.TypeClassification, creator)}, nil
}

// UpdateClassification patches name, description and metadata.
func (c *Catalog) UpdateClassification(ctx context.Context, key string, req domain.UpdateClassificationRequest) (*domain.Classification, error) {
	props, err := c.updateProps(req.UpdateEntityRequest, c.timestamp())
	if err != nil {
		return nil, err
	}
	var classification *domain.Classification
	err = c.store.Update(ctx, func(tx graph.Tx) error {
		if _, err := getClassification(tx, key); err != nil {
			return err
		}
		if err := tx.SetProps(classificationRef(key), props); err != nil {
			return err
		}
		var err error
		classification, err = getClassification(tx, key)
		return err
	})
	return classification, err
}

// GetAllClassifications lists every classification.
func (c *Catalog) GetAllClassifications(ctx context.Context) ([]*domain.Classification, error) {
	return c.collectClassifications(ctx, nil)
}

// FindClassifications evaluates a find query over classifications. A nil
// query matches nothing.
func (c *Catalog) FindClassifications(ctx context.Context, clauses []query.Clause) ([]*domain.Classification, error) {
	match, err := query.Compile(clauses)
	if err != nil || match == nil {
		return nil, err
	}
	return c.collectClassifications(ctx, match)
}

func (c *Catalog) collectClassifications(ctx context.Context, match query.Matcher) ([]*domain.Classification, error) {
	var classifications []*domain.Classification
	err := c.store.View(ctx, func(tx graph.Tx) error {
		nodes, err := tx.FindNodes(domain.LabelClassification, nil)
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
			classifications = append(classifications, &domain.Classification{Entity: entityFromNode(node, domain.TypeClassification, creator)})
		}
		return nil
	})
	return classifications, err
}

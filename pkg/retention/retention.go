// Package retention applies retention policies to files and gates deletion
// on them.
//
// A policy holds a duration in seconds. Applying a policy to a file stamps
// the application time on the association; the application expires at
// applied-at plus the policy's current duration, so lengthening a policy
// retroactively lengthens every outstanding application. Policies can only
// ever grow. A file is deletable once every application has expired.
package retention

import (
	"sort"
	"time"

	"github.com/castellan-io/castellan/pkg/domain"
	"github.com/castellan-io/castellan/pkg/graph"
)

// Gate evaluates retention state inside graph transactions.
type Gate struct {
	now func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the time source. Tests use this to step across
// expiry boundaries.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// NewGate creates a Gate using the wall clock unless overridden.
func NewGate(opts ...Option) *Gate {
	g := &Gate{now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Now returns the gate's current time in UTC.
func (g *Gate) Now() time.Time {
	return g.now().UTC()
}

// ValidateSeconds rejects durations outside (0, 100 years].
func ValidateSeconds(seconds uint64) error {
	if seconds == 0 {
		return domain.InvalidArgument("retention period must be greater than zero seconds")
	}
	if seconds > domain.RetentionPeriodMax {
		return domain.InvalidArgument("retention period of %d seconds exceeds the maximum of %d", seconds, domain.RetentionPeriodMax)
	}
	return nil
}

// ValidatePeriodChange enforces that a policy's duration never shrinks.
func ValidatePeriodChange(policyKey string, current, requested uint64) error {
	if err := ValidateSeconds(requested); err != nil {
		return err
	}
	if requested < current {
		return domain.RetentionPeriodCannotDecrease(policyKey, current, requested)
	}
	return nil
}

func fileRef(key string) graph.NodeRef {
	return graph.NodeRef{Label: domain.LabelFile, Key: key}
}

func policyRef(key string) graph.NodeRef {
	return graph.NodeRef{Label: domain.LabelRetentionPolicy, Key: key}
}

// Apply attaches the policy to the file, stamped with the current time.
// Re-applying the same policy refreshes the application time.
func (g *Gate) Apply(tx graph.Tx, fileKey, policyKey string) error {
	if _, ok, err := tx.GetNode(fileRef(fileKey)); err != nil {
		return err
	} else if !ok {
		return domain.NotFound("file", fileKey)
	}
	if _, ok, err := tx.GetNode(policyRef(policyKey)); err != nil {
		return err
	} else if !ok {
		return domain.NotFound("retention policy", policyKey)
	}
	return tx.CreateEdge(&graph.Edge{
		Type:  domain.EdgeHasRetentionPolicy,
		From:  fileRef(fileKey),
		To:    policyRef(policyKey),
		Props: map[string]any{domain.PropAppliedAt: g.Now()},
	})
}

// ApplicationsFor returns the file's policy applications ordered by
// application time, expiry computed against each policy's current duration.
func (g *Gate) ApplicationsFor(tx graph.Tx, fileKey string) ([]domain.RetentionPolicyApplication, error) {
	edges, err := tx.Edges(fileRef(fileKey), domain.EdgeHasRetentionPolicy, graph.Out)
	if err != nil {
		return nil, err
	}

	apps := make([]domain.RetentionPolicyApplication, 0, len(edges))
	for _, e := range edges {
		node, ok, err := tx.GetNode(e.To)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		policy := policyFromNode(node)
		appliedAt, _ := e.Props[domain.PropAppliedAt].(time.Time)
		apps = append(apps, domain.RetentionPolicyApplication{
			RetentionPolicy: policy,
			AppliedAt:       appliedAt,
			ExpiresAt:       appliedAt.Add(time.Duration(policy.Seconds) * time.Second),
		})
	}
	sort.Slice(apps, func(i, j int) bool {
		return apps[i].AppliedAt.Before(apps[j].AppliedAt)
	})
	return apps, nil
}

// CanDelete fails with RetentionActive while any application of a policy to
// the file is unexpired.
func (g *Gate) CanDelete(tx graph.Tx, fileKey string) error {
	apps, err := g.ApplicationsFor(tx, fileKey)
	if err != nil {
		return err
	}
	now := g.Now()
	for _, app := range apps {
		if app.ExpiresAt.After(now) {
			return domain.RetentionActive(fileKey)
		}
	}
	return nil
}

func policyFromNode(node *graph.Node) domain.RetentionPolicy {
	policy := domain.RetentionPolicy{}
	policy.Type = domain.TypeRetentionPolicy
	policy.Key = node.Key
	if v, ok := node.Props[domain.PropName].(string); ok {
		policy.Name = v
	}
	if v, ok := node.Props[domain.PropDescription].(string); ok {
		policy.Description = v
	}
	if v, ok := node.Props[domain.PropCreatedAt].(time.Time); ok {
		policy.CreatedAt = v
	}
	if v, ok := node.Props[domain.PropModifiedAt].(time.Time); ok {
		policy.ModifiedAt = v
	}
	switch v := node.Props[domain.PropSeconds].(type) {
	case uint64:
		policy.Seconds = v
	case int64:
		policy.Seconds = uint64(v)
	}
	return policy
}

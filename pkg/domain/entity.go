// Package domain defines the entity model, access-level vocabulary, error
// taxonomy and event envelopes shared by every Castellan component.
//
// Entities form a directed graph: users belong to groups, collections contain
// files and other collections, and groups hold access-level edges to
// collections. The package also owns the persisted vocabulary (node labels,
// edge types, reserved property names) that every graph store implementation
// must honor.
package domain

import "time"

// EntityType tags each entity with its kind. The tag doubles as the
// namespace for key uniqueness: keys are unique per type, not globally.
type EntityType string

const (
	TypeUser            EntityType = "user"
	TypeGroup           EntityType = "group"
	TypeFile            EntityType = "file"
	TypeCollection      EntityType = "collection"
	TypeRetentionPolicy EntityType = "retentionPolicy"
	TypeClassification  EntityType = "classification"
)

// Entity is the common shape of every stored object.
//
// Key is caller- or system-assigned and immutable after creation.
// Metadata holds caller-defined properties; values are string, bool, int64,
// float64 or time.Time. Metadata keys live in a private namespace in the
// store (see MetadataPrefix) so they can never collide with reserved fields.
type Entity struct {
	Type        EntityType     `json:"type"`
	Key         string         `json:"key"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	CreatedBy   string         `json:"createdBy,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	ModifiedAt  time.Time      `json:"modifiedAt"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// User owns exactly one hidden identity group (key IdentityGroupKey(user.Key))
// which acts as the permission-carrying principal for direct grants.
type User struct {
	Entity
}

// Group is a set of users joined via belongs_to edges. Identity groups are
// flagged hidden and excluded from listing and find results.
type Group struct {
	Entity
}

// Collection is a node of the containment DAG. A collection may have multiple
// parents; grants placed on it flow to every descendant collection and file.
type Collection struct {
	Entity
}

// File carries one or more versions. VersionCount increments atomically with
// each AddVersion and never decreases.
type File struct {
	Entity
	VersionCount int64 `json:"versionCount"`
}

// FileVersion records one stored blob of a file. The version with the latest
// CreatedAt is current for download and copy purposes; Seq breaks ties when
// timestamps collide.
type FileVersion struct {
	StorageService string    `json:"storageService"`
	StorageID      string    `json:"storageId"`
	CreatedAt      time.Time `json:"createdAt"`
	CreatedBy      string    `json:"createdBy"`
	Seq            int64     `json:"-"`
}

// Classification is a plain taggable entity with no special semantics.
type Classification struct {
	Entity
}

// Retention period constants, in seconds. A month is 31 days; a year is
// 365.25 days. The maximum retention period is 100 years.
const (
	RetentionPeriodMinute uint64 = 60
	RetentionPeriodHour   uint64 = 3600
	RetentionPeriodDay    uint64 = 86400
	RetentionPeriodMonth  uint64 = 2678400
	RetentionPeriodYear   uint64 = 31557600
	RetentionPeriodMax    uint64 = 3155760000
)

// RetentionPolicy holds a retention duration. Seconds may only ever grow
// across updates; shortening a policy is rejected.
type RetentionPolicy struct {
	Entity
	Seconds uint64 `json:"seconds"`
}

// RetentionPolicyApplication is the derived association of a policy with a
// file: the policy, when it was applied, and when it expires. ExpiresAt is
// computed at read time from AppliedAt + policy.Seconds, so extending a
// policy retroactively extends every existing application.
type RetentionPolicyApplication struct {
	RetentionPolicy RetentionPolicy `json:"retentionPolicy"`
	AppliedAt       time.Time       `json:"appliedAt"`
	ExpiresAt       time.Time       `json:"expiresAt"`
}

// CollectionItems bundles the direct contents of a collection.
type CollectionItems struct {
	ChildCollections []*Collection `json:"childCollections"`
	Files            []*File       `json:"files"`
}

// EventProperties returns the serializable snapshot of the entity carried by
// domain events.
func (e *Entity) EventProperties() map[string]any {
	return map[string]any{
		"Type":        string(e.Type),
		"Key":         e.Key,
		"Name":        e.Name,
		"Description": e.Description,
		"CreatedBy":   e.CreatedBy,
		"CreatedAt":   e.CreatedAt,
		"ModifiedAt":  e.ModifiedAt,
	}
}

// EventProperties includes the retention duration alongside the base fields.
func (p *RetentionPolicy) EventProperties() map[string]any {
	props := p.Entity.EventProperties()
	props["Seconds"] = p.Seconds
	return props
}

// EventProperties returns the serializable snapshot of the version.
func (v *FileVersion) EventProperties() map[string]any {
	return map[string]any{
		"StorageService": v.StorageService,
		"StorageId":      v.StorageID,
		"CreatedAt":      v.CreatedAt,
		"CreatedBy":      v.CreatedBy,
	}
}

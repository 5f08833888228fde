package domain

// Persisted graph vocabulary. This is the stable contract every graph store
// implementation must honor: node labels, edge types, reserved property
// names, and the private namespace prefix for caller metadata.

// Node labels.
const (
	LabelUser            = "User"
	LabelGroup           = "Group"
	LabelFile            = "File"
	LabelFileVersion     = "FileVersion"
	LabelCollection      = "Collection"
	LabelRetentionPolicy = "RetentionPolicy"
	LabelClassification  = "Classification"
)

// Edge types. Access-level edge types are the four constants in access.go;
// a grant is an edge of that type from a Group to a Collection.
const (
	EdgeBelongsTo          = "BELONGS_TO"
	EdgeContains           = "CONTAINS"
	EdgeChildOf            = "CHILD_OF"
	EdgeCreatedBy          = "CREATED_BY"
	EdgeHasClassification  = "HAS_CLASSIFICATION"
	EdgeHasRetentionPolicy = "HAS_RETENTION_POLICY"
	EdgeHasVersion         = "HAS_VERSION"
)

// Reserved node property names. Anything outside this list stored on an
// entity node belongs to caller metadata and carries MetadataPrefix.
const (
	PropName           = "name"
	PropDescription    = "description"
	PropCreatedAt      = "createdAt"
	PropModifiedAt     = "modifiedAt"
	PropIdentity       = "identity"
	PropVersionCount   = "versionCount"
	PropSeconds        = "seconds"
	PropStorageService = "storageService"
	PropStorageID      = "storageId"
	PropCreatedBy      = "createdBy"
	PropAppliedAt      = "appliedAt"
	PropSeq            = "seq"
)

// MetadataPrefix namespaces caller-defined metadata keys on entity nodes so
// they can never shadow reserved properties.
const MetadataPrefix = "meta_"

// identityKeyPrefix marks system-created identity groups and collections.
// The derived key is deterministic so identity anchors can be resolved
// without an extra lookup.
const identityKeyPrefix = "identity:"

// IdentityGroupKey derives the key of a user's hidden identity group.
func IdentityGroupKey(userKey string) string {
	return identityKeyPrefix + userKey
}

// IdentityCollectionKey derives the key of a file's hidden identity
// collection, the attachment point for direct file grants.
func IdentityCollectionKey(fileKey string) string {
	return identityKeyPrefix + fileKey
}

// MetadataKey returns the stored property name for a caller metadata key.
func MetadataKey(key string) string {
	return MetadataPrefix + key
}

package domain

// Request shapes for lifecycle operations.
//
// Create requests carry the caller-assigned key; update requests never do
// (keys are immutable). Name and Description are pointers on update so
// callers can distinguish "leave unchanged" (nil) from "clear" (pointer to
// empty string). Metadata follows the same convention per key: a nil value
// removes the key.

// CreateEntityRequest is the common create payload.
type CreateEntityRequest struct {
	Key         string         `json:"key"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// UpdateEntityRequest is the common update payload.
type UpdateEntityRequest struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type CreateUserRequest struct {
	CreateEntityRequest
}

type UpdateUserRequest struct {
	UpdateEntityRequest
}

type CreateGroupRequest struct {
	CreateEntityRequest
}

type UpdateGroupRequest struct {
	UpdateEntityRequest
}

type CreateCollectionRequest struct {
	CreateEntityRequest
}

type UpdateCollectionRequest struct {
	UpdateEntityRequest
}

// CreateFileRequest names the storage service the first version is stored
// in.
type CreateFileRequest struct {
	CreateEntityRequest
	StorageService string `json:"storageService,omitempty"`
}

type UpdateFileRequest struct {
	UpdateEntityRequest
}

// CopyFileRequest creates a new file whose first version is a copy of the
// source file's current version.
type CopyFileRequest struct {
	CreateEntityRequest
	StorageService string `json:"storageService,omitempty"`
}

type CreateRetentionPolicyRequest struct {
	CreateEntityRequest
	Seconds uint64 `json:"seconds"`
}

type UpdateRetentionPolicyRequest struct {
	UpdateEntityRequest
	Seconds *uint64 `json:"seconds,omitempty"`
}

type CreateClassificationRequest struct {
	CreateEntityRequest
}

type UpdateClassificationRequest struct {
	UpdateEntityRequest
}

type AddUserToFileRequest struct {
	UserKey     string `json:"userKey"`
	AccessLevel string `json:"accessLevel"`
}

type AddGroupToFileRequest struct {
	GroupKey    string `json:"groupKey"`
	AccessLevel string `json:"accessLevel"`
}

type AddUserToCollectionRequest struct {
	UserKey     string `json:"userKey"`
	AccessLevel string `json:"accessLevel"`
}

type AddGroupToCollectionRequest struct {
	GroupKey    string `json:"groupKey"`
	AccessLevel string `json:"accessLevel"`
}

type AddFileToCollectionRequest struct {
	FileKey string `json:"fileKey"`
}

type AddRetentionPolicyToFileRequest struct {
	RetentionPolicyKey string `json:"retentionPolicyKey"`
}

type AddClassificationToFileRequest struct {
	ClassificationKey string `json:"classificationKey"`
}

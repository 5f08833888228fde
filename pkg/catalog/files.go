package catalog

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/castellan-io/castellan/internal/logger"
	"github.com/castellan-io/castellan/pkg/domain"
	"github.com/castellan-io/castellan/pkg/graph"
	"github.com/castellan-io/castellan/pkg/query"
)

// CreateFile stores the first version's content on the requested storage
// service, then creates the file node, its first version, its hidden
// identity collection and the creator's co-owner grant in one transaction.
// The blob write happens before the transaction; if the transaction fails
// the blob is removed best-effort.
func (c *Catalog) CreateFile(ctx context.Context, req domain.CreateFileRequest, createdBy string, content io.Reader) (*domain.File, error) {
	if err := validateKey(req.Key); err != nil {
		return nil, err
	}
	svc, err := c.provider.Get(req.StorageService)
	if err != nil {
		return nil, err
	}
	now := c.timestamp()
	props, err := c.entityProps(req.CreateEntityRequest, now)
	if err != nil {
		return nil, err
	}
	props[domain.PropVersionCount] = int64(1)

	storageID, err := svc.Store(ctx, content)
	if err != nil {
		return nil, err
	}

	version := &domain.FileVersion{
		StorageService: svc.Name(),
		StorageID:      storageID,
		CreatedAt:      now,
		CreatedBy:      createdBy,
		Seq:            1,
	}
	var file *domain.File
	err = c.store.Update(ctx, func(tx graph.Tx) error {
		if _, ok, err := tx.GetNode(userRef(createdBy)); err != nil {
			return err
		} else if !ok {
			return domain.NotFound("user", createdBy)
		}
		if err := tx.CreateNode(&graph.Node{Label: domain.LabelFile, Key: req.Key, Props: props}); err != nil {
			return err
		}
		if err := createVersion(tx, req.Key, version); err != nil {
			return err
		}

		identityKey := domain.IdentityCollectionKey(req.Key)
		identityProps := map[string]any{
			domain.PropIdentity:  true,
			domain.PropCreatedAt: now,
		}
		if err := tx.CreateNode(&graph.Node{Label: domain.LabelCollection, Key: identityKey, Props: identityProps}); err != nil {
			return err
		}
		err := tx.CreateEdge(&graph.Edge{
			Type:  domain.EdgeContains,
			From:  collectionRef(identityKey),
			To:    fileRef(req.Key),
			Props: map[string]any{domain.PropIdentity: true, domain.PropCreatedAt: now},
		})
		if err != nil {
			return err
		}
		err = tx.CreateEdge(&graph.Edge{
			Type:  domain.AccessLevelCoOwner,
			From:  groupRef(domain.IdentityGroupKey(createdBy)),
			To:    collectionRef(identityKey),
			Props: map[string]any{domain.PropCreatedAt: now},
		})
		if err != nil {
			return err
		}
		if err := tx.CreateEdge(&graph.Edge{Type: domain.EdgeCreatedBy, From: fileRef(req.Key), To: userRef(createdBy)}); err != nil {
			return err
		}
		node := &graph.Node{Label: domain.LabelFile, Key: req.Key, Props: props}
		file = &domain.File{Entity: entityFromNode(node, domain.TypeFile, createdBy), VersionCount: 1}
		return nil
	})
	if err != nil {
		if _, cleanupErr := svc.Delete(ctx, storageID); cleanupErr != nil {
			logger.Warn("catalog: orphaned blob %s on %s after failed file create: %v", storageID, svc.Name(), cleanupErr)
		}
		return nil, err
	}

	c.dispatch(domain.FileCreatedEvent(file))
	return file, nil
}

func createVersion(tx graph.Tx, fileKey string, v *domain.FileVersion) error {
	versionKey := uuid.NewString()
	node := &graph.Node{
		Label: domain.LabelFileVersion,
		Key:   versionKey,
		Props: map[string]any{
			domain.PropStorageService: v.StorageService,
			domain.PropStorageID:      v.StorageID,
			domain.PropCreatedAt:      v.CreatedAt,
			domain.PropCreatedBy:      v.CreatedBy,
			domain.PropSeq:            v.Seq,
		},
	}
	if err := tx.CreateNode(node); err != nil {
		return err
	}
	return tx.CreateEdge(&graph.Edge{
		Type: domain.EdgeHasVersion,
		From: fileRef(fileKey),
		To:   graph.NodeRef{Label: domain.LabelFileVersion, Key: versionKey},
	})
}

func fileFromNode(tx graph.Tx, node *graph.Node) (*domain.File, error) {
	creator, err := createdByKey(tx, node.Ref())
	if err != nil {
		return nil, err
	}
	file := &domain.File{Entity: entityFromNode(node, domain.TypeFile, creator)}
	switch v := node.Props[domain.PropVersionCount].(type) {
	case int64:
		file.VersionCount = v
	case uint64:
		file.VersionCount = int64(v)
	}
	return file, nil
}

func getFile(tx graph.Tx, key string) (*domain.File, error) {
	node, ok, err := tx.GetNode(fileRef(key))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.NotFound("file", key)
	}
	return fileFromNode(tx, node)
}

// GetFile fetches one file by key.
func (c *Catalog) GetFile(ctx context.Context, key string) (*domain.File, error) {
	var file *domain.File
	err := c.store.View(ctx, func(tx graph.Tx) error {
		var err error
		file, err = getFile(tx, key)
		return err
	})
	return file, err
}

// UpdateFile patches name, description and metadata. Versions and content
// are managed through AddVersionToFile.
func (c *Catalog) UpdateFile(ctx context.Context, key string, req domain.UpdateFileRequest) (*domain.File, error) {
	props, err := c.updateProps(req.UpdateEntityRequest, c.timestamp())
	if err != nil {
		return nil, err
	}
	var file *domain.File
	err = c.store.Update(ctx, func(tx graph.Tx) error {
		if _, err := getFile(tx, key); err != nil {
			return err
		}
		if err := tx.SetProps(fileRef(key), props); err != nil {
			return err
		}
		var err error
		file, err = getFile(tx, key)
		return err
	})
	return file, err
}

// DeleteFile removes the file, its versions, their stored blobs and the
// hidden identity collection, refusing while any applied retention policy is
// unexpired. Blob deletion happens outside the transaction and is retried on
// the next call if a previous delete was interrupted, so the operation is
// safe to repeat.
func (c *Catalog) DeleteFile(ctx context.Context, key string) error {
	var versions []domain.FileVersion
	err := c.store.View(ctx, func(tx graph.Tx) error {
		_, fileExists, err := tx.GetNode(fileRef(key))
		if err != nil {
			return err
		}
		_, identityExists, err := tx.GetNode(collectionRef(domain.IdentityCollectionKey(key)))
		if err != nil {
			return err
		}
		if !fileExists && !identityExists {
			return domain.NotFound("file", key)
		}
		if fileExists {
			if err := c.gate.CanDelete(tx, key); err != nil {
				return err
			}
			versions, err = fileVersions(tx, key)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, v := range versions {
		svc, err := c.provider.Get(v.StorageService)
		if err != nil {
			logger.Warn("catalog: cannot delete blob %s, storage service %q unknown: %v", v.StorageID, v.StorageService, err)
			continue
		}
		if _, err := svc.Delete(ctx, v.StorageID); err != nil {
			return err
		}
	}

	return c.store.Update(ctx, func(tx graph.Tx) error {
		_, ok, err := tx.GetNode(fileRef(key))
		if err != nil {
			return err
		}
		if ok {
			// Re-check inside the delete transaction so a policy applied
			// since the read cannot be bypassed.
			if err := c.gate.CanDelete(tx, key); err != nil {
				return err
			}
			for _, ref := range versionRefsFor(tx, key) {
				if err := tx.DeleteNode(ref); err != nil {
					return err
				}
			}
			if err := tx.DeleteNode(fileRef(key)); err != nil {
				return err
			}
		}
		return tx.DeleteNode(collectionRef(domain.IdentityCollectionKey(key)))
	})
}

// GetFileVersions lists the versions oldest first. Ties on CreatedAt fall
// back to the sequence number.
func (c *Catalog) GetFileVersions(ctx context.Context, key string) ([]domain.FileVersion, error) {
	var versions []domain.FileVersion
	err := c.store.View(ctx, func(tx graph.Tx) error {
		if _, err := getFile(tx, key); err != nil {
			return err
		}
		var err error
		versions, err = fileVersions(tx, key)
		return err
	})
	return versions, err
}

// GetLatestVersionForFile returns the current version of the file.
func (c *Catalog) GetLatestVersionForFile(ctx context.Context, key string) (*domain.FileVersion, error) {
	versions, err := c.GetFileVersions(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, domain.NotFound("file version", key)
	}
	latest := versions[len(versions)-1]
	return &latest, nil
}

// AddVersionToFile stores new content and appends it as the file's current
// version, incrementing versionCount atomically.
func (c *Catalog) AddVersionToFile(ctx context.Context, key string, createdBy string, storageService string, content io.Reader) (*domain.File, error) {
	svc, err := c.provider.Get(storageService)
	if err != nil {
		return nil, err
	}
	storageID, err := svc.Store(ctx, content)
	if err != nil {
		return nil, err
	}

	now := c.timestamp()
	version := &domain.FileVersion{
		StorageService: svc.Name(),
		StorageID:      storageID,
		CreatedAt:      now,
		CreatedBy:      createdBy,
	}
	var file *domain.File
	err = c.store.Update(ctx, func(tx graph.Tx) error {
		if _, err := getFile(tx, key); err != nil {
			return err
		}
		if _, ok, err := tx.GetNode(userRef(createdBy)); err != nil {
			return err
		} else if !ok {
			return domain.NotFound("user", createdBy)
		}
		count, err := tx.Increment(fileRef(key), domain.PropVersionCount, 1)
		if err != nil {
			return err
		}
		version.Seq = count
		if err := tx.SetProps(fileRef(key), map[string]any{domain.PropModifiedAt: now}); err != nil {
			return err
		}
		if err := createVersion(tx, key, version); err != nil {
			return err
		}
		file, err = getFile(tx, key)
		return err
	})
	if err != nil {
		if _, cleanupErr := svc.Delete(ctx, storageID); cleanupErr != nil {
			logger.Warn("catalog: orphaned blob %s on %s after failed version add: %v", storageID, svc.Name(), cleanupErr)
		}
		return nil, err
	}

	c.dispatch(domain.NewVersionOfFileCreatedEvent(file, version))
	return file, nil
}

// CopyFile creates a new file whose first version is a copy of the source
// file's current version. The destination storage service defaults to the
// source version's service.
func (c *Catalog) CopyFile(ctx context.Context, sourceKey string, req domain.CopyFileRequest, createdBy string) (*domain.File, error) {
	if err := validateKey(req.Key); err != nil {
		return nil, err
	}
	latest, err := c.GetLatestVersionForFile(ctx, sourceKey)
	if err != nil {
		return nil, err
	}
	src, err := c.provider.Get(latest.StorageService)
	if err != nil {
		return nil, err
	}
	dstName := req.StorageService
	if dstName == "" {
		dstName = latest.StorageService
	}
	dst, err := c.provider.Get(dstName)
	if err != nil {
		return nil, err
	}
	storageID, err := src.Copy(ctx, latest.StorageID, dst)
	if err != nil {
		return nil, err
	}

	now := c.timestamp()
	props, err := c.entityProps(req.CreateEntityRequest, now)
	if err != nil {
		return nil, err
	}
	props[domain.PropVersionCount] = int64(1)
	version := &domain.FileVersion{
		StorageService: dst.Name(),
		StorageID:      storageID,
		CreatedAt:      now,
		CreatedBy:      createdBy,
		Seq:            1,
	}
	var file *domain.File
	err = c.store.Update(ctx, func(tx graph.Tx) error {
		if _, err := getFile(tx, sourceKey); err != nil {
			return err
		}
		if _, ok, err := tx.GetNode(userRef(createdBy)); err != nil {
			return err
		} else if !ok {
			return domain.NotFound("user", createdBy)
		}
		if err := tx.CreateNode(&graph.Node{Label: domain.LabelFile, Key: req.Key, Props: props}); err != nil {
			return err
		}
		if err := createVersion(tx, req.Key, version); err != nil {
			return err
		}
		identityKey := domain.IdentityCollectionKey(req.Key)
		identityProps := map[string]any{domain.PropIdentity: true, domain.PropCreatedAt: now}
		if err := tx.CreateNode(&graph.Node{Label: domain.LabelCollection, Key: identityKey, Props: identityProps}); err != nil {
			return err
		}
		err := tx.CreateEdge(&graph.Edge{
			Type:  domain.EdgeContains,
			From:  collectionRef(identityKey),
			To:    fileRef(req.Key),
			Props: map[string]any{domain.PropIdentity: true, domain.PropCreatedAt: now},
		})
		if err != nil {
			return err
		}
		err = tx.CreateEdge(&graph.Edge{
			Type:  domain.AccessLevelCoOwner,
			From:  groupRef(domain.IdentityGroupKey(createdBy)),
			To:    collectionRef(identityKey),
			Props: map[string]any{domain.PropCreatedAt: now},
		})
		if err != nil {
			return err
		}
		if err := tx.CreateEdge(&graph.Edge{Type: domain.EdgeCreatedBy, From: fileRef(req.Key), To: userRef(createdBy)}); err != nil {
			return err
		}
		node := &graph.Node{Label: domain.LabelFile, Key: req.Key, Props: props}
		file = &domain.File{Entity: entityFromNode(node, domain.TypeFile, createdBy), VersionCount: 1}
		return nil
	})
	if err != nil {
		if _, cleanupErr := dst.Delete(ctx, storageID); cleanupErr != nil {
			logger.Warn("catalog: orphaned blob %s on %s after failed file copy: %v", storageID, dst.Name(), cleanupErr)
		}
		return nil, err
	}

	c.dispatch(domain.FileCreatedEvent(file))
	return file, nil
}

// OpenFileContent opens the content of the file's current version for
// reading. The caller owns closing the reader.
func (c *Catalog) OpenFileContent(ctx context.Context, key string) (io.ReadCloser, error) {
	latest, err := c.GetLatestVersionForFile(ctx, key)
	if err != nil {
		return nil, err
	}
	svc, err := c.provider.Get(latest.StorageService)
	if err != nil {
		return nil, err
	}
	return svc.Retrieve(ctx, latest.StorageID)
}

// FileDirectDownloadURL returns a presigned download link for the current
// version when the backing storage service supports one.
func (c *Catalog) FileDirectDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	latest, err := c.GetLatestVersionForFile(ctx, key)
	if err != nil {
		return "", err
	}
	svc, err := c.provider.Get(latest.StorageService)
	if err != nil {
		return "", err
	}
	return svc.DirectDownloadURL(ctx, latest.StorageID, ttl)
}

// FindFiles evaluates a find query over files. A nil query matches nothing.
func (c *Catalog) FindFiles(ctx context.Context, clauses []query.Clause) ([]*domain.File, error) {
	match, err := query.Compile(clauses)
	if err != nil || match == nil {
		return nil, err
	}
	var files []*domain.File
	err = c.store.View(ctx, func(tx graph.Tx) error {
		nodes, err := tx.FindNodes(domain.LabelFile, nil)
		if err != nil {
			return err
		}
		for _, node := range nodes {
			if !match(matchProps(node)) {
				continue
			}
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

// GetCollectionsForFile lists the collections that contain the file, the
// hidden identity collection excluded.
func (c *Catalog) GetCollectionsForFile(ctx context.Context, key string) ([]*domain.Collection, error) {
	var collections []*domain.Collection
	err := c.store.View(ctx, func(tx graph.Tx) error {
		if _, err := getFile(tx, key); err != nil {
			return err
		}
		nodes, err := tx.Neighbors(fileRef(key), domain.EdgeContains, graph.In, domain.LabelCollection)
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
			collections = append(collections, &domain.Collection{Entity: entityFromNode(node, domain.TypeCollection, creator)})
		}
		return nil
	})
	return collections, err
}

// AddUserToFile grants the user the access level on the file, expressed as a
// grant from the user's identity group to the file's identity collection.
func (c *Catalog) AddUserToFile(ctx context.Context, fileKey string, req domain.AddUserToFileRequest) error {
	if !domain.IsValidAccessLevel(req.AccessLevel) {
		return domain.InvalidAccessLevel(req.AccessLevel)
	}
	return c.store.Update(ctx, func(tx graph.Tx) error {
		if _, err := getFile(tx, fileKey); err != nil {
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
			To:    collectionRef(domain.IdentityCollectionKey(fileKey)),
			Props: map[string]any{domain.PropCreatedAt: c.timestamp()},
		})
	})
}

// AddGroupToFile grants the group the access level on the file's identity
// collection.
func (c *Catalog) AddGroupToFile(ctx context.Context, fileKey string, req domain.AddGroupToFileRequest) error {
	if !domain.IsValidAccessLevel(req.AccessLevel) {
		return domain.InvalidAccessLevel(req.AccessLevel)
	}
	return c.store.Update(ctx, func(tx graph.Tx) error {
		if _, err := getFile(tx, fileKey); err != nil {
			return err
		}
		groupNode, ok, err := tx.GetNode(groupRef(req.GroupKey))
		if err != nil {
			return err
		}
		if !ok || isIdentity(groupNode) {
			return domain.NotFound("group", req.GroupKey)
		}
		return tx.CreateEdge(&graph.Edge{
			Type:  req.AccessLevel,
			From:  groupRef(req.GroupKey),
			To:    collectionRef(domain.IdentityCollectionKey(fileKey)),
			Props: map[string]any{domain.PropCreatedAt: c.timestamp()},
		})
	})
}

// AddRetentionPolicyToFile applies the policy to the file. Re-applying the
// same policy refreshes its application timestamp.
func (c *Catalog) AddRetentionPolicyToFile(ctx context.Context, fileKey string, req domain.AddRetentionPolicyToFileRequest) error {
	return c.store.Update(ctx, func(tx graph.Tx) error {
		return c.gate.Apply(tx, fileKey, req.RetentionPolicyKey)
	})
}

// GetRetentionPolicyApplicationsForFile lists the policies applied to the
// file with their computed expirations, oldest application first.
func (c *Catalog) GetRetentionPolicyApplicationsForFile(ctx context.Context, fileKey string) ([]domain.RetentionPolicyApplication, error) {
	var apps []domain.RetentionPolicyApplication
	err := c.store.View(ctx, func(tx graph.Tx) error {
		var err error
		apps, err = c.gate.ApplicationsFor(tx, fileKey)
		return err
	})
	return apps, err
}

// AddClassificationToFile tags the file with the classification.
func (c *Catalog) AddClassificationToFile(ctx context.Context, fileKey string, req domain.AddClassificationToFileRequest) error {
	return c.store.Update(ctx, func(tx graph.Tx) error {
		if _, err := getFile(tx, fileKey); err != nil {
			return err
		}
		if _, ok, err := tx.GetNode(classificationRef(req.ClassificationKey)); err != nil {
			return err
		} else if !ok {
			return domain.NotFound("classification", req.ClassificationKey)
		}
		return tx.CreateEdge(&graph.Edge{
			Type:  domain.EdgeHasClassification,
			From:  fileRef(fileKey),
			To:    classificationRef(req.ClassificationKey),
			Props: map[string]any{domain.PropCreatedAt: c.timestamp()},
		})
	})
}

// GetClassificationsForFile lists the classifications tagged on the file.
func (c *Catalog) GetClassificationsForFile(ctx context.Context, fileKey string) ([]*domain.Classification, error) {
	var classifications []*domain.Classification
	err := c.store.View(ctx, func(tx graph.Tx) error {
		if _, err := getFile(tx, fileKey); err != nil {
			return err
		}
		nodes, err := tx.Neighbors(fileRef(fileKey), domain.EdgeHasClassification, graph.Out, domain.LabelClassification)
		if err != nil {
			return err
		}
		for _, node := range nodes {
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

func fileVersions(tx graph.Tx, fileKey string) ([]domain.FileVersion, error) {
	nodes, err := tx.Neighbors(fileRef(fileKey), domain.EdgeHasVersion, graph.Out, domain.LabelFileVersion)
	if err != nil {
		return nil, err
	}
	versions := make([]domain.FileVersion, 0, len(nodes))
	for _, node := range nodes {
		v := domain.FileVersion{}
		if s, ok := node.Props[domain.PropStorageService].(string); ok {
			v.StorageService = s
		}
		if s, ok := node.Props[domain.PropStorageID].(string); ok {
			v.StorageID = s
		}
		if s, ok := node.Props[domain.PropCreatedBy].(string); ok {
			v.CreatedBy = s
		}
		if t, ok := node.Props[domain.PropCreatedAt].(time.Time); ok {
			v.CreatedAt = t
		}
		switch seq := node.Props[domain.PropSeq].(type) {
		case int64:
			v.Seq = seq
		case uint64:
			v.Seq = int64(seq)
		}
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		if versions[i].CreatedAt.Equal(versions[j].CreatedAt) {
			return versions[i].Seq < versions[j].Seq
		}
		return versions[i].CreatedAt.Before(versions[j].CreatedAt)
	})
	return versions, nil
}

func versionRefsFor(tx graph.Tx, fileKey string) []graph.NodeRef {
	nodes, err := tx.Neighbors(fileRef(fileKey), domain.EdgeHasVersion, graph.Out, domain.LabelFileVersion)
	if err != nil {
		return nil
	}
	refs := make([]graph.NodeRef, 0, len(nodes))
	for _, node := range nodes {
		refs = append(refs, node.Ref())
	}
	return refs
}
